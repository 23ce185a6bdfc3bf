package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/CGroll04/sweetspots/module/proximity/domain"
	"github.com/CGroll04/sweetspots/module/proximity/internal/repository/database"
	"github.com/CGroll04/sweetspots/module/proximity/service"
)

type navigator interface {
	Start(ctx context.Context, req domain.NavigationRequest) error
	Stop(ctx context.Context) error
	Progress() service.Progress
	Route() *domain.Route
}

type spotLookup interface {
	GetSpot(ctx context.Context, id string) (*domain.PointOfInterest, error)
}

type pointRequest struct {
	Latitude  *float64 `json:"latitude" binding:"required"`
	Longitude *float64 `json:"longitude" binding:"required"`
}

func (p *pointRequest) toGeoPoint() domain.GeoPoint {
	return domain.GeoPoint{Lat: *p.Latitude, Lon: *p.Longitude}
}

func (p *pointRequest) valid() bool {
	return *p.Latitude >= -90 && *p.Latitude <= 90 && *p.Longitude >= -180 && *p.Longitude <= 180
}

// startNavigationRequest names the destination either by saved spot id or by
// coordinate.
type startNavigationRequest struct {
	SpotID        string        `json:"spot_id"`
	Destination   *pointRequest `json:"destination"`
	Name          string        `json:"name"`
	Origin        *pointRequest `json:"origin"`
	TransportMode string        `json:"transport_mode"`
	Replace       bool          `json:"replace"`
}

type NavigationHandler struct {
	nav   navigator
	spots spotLookup
}

func NewNavigationHandler(nav navigator, spots spotLookup) *NavigationHandler {
	return &NavigationHandler{nav: nav, spots: spots}
}

func (h *NavigationHandler) Register(r *gin.RouterGroup) {
	r.GET("/navigation", h.GetProgress)
	r.POST("/navigation", h.Start)
	r.DELETE("/navigation", h.Stop)
	r.GET("/navigation/route.geojson", h.GetRouteGeoJSON)
}

func (h *NavigationHandler) GetProgress(c *gin.Context) {
	c.JSON(http.StatusOK, h.nav.Progress())
}

func (h *NavigationHandler) Start(c *gin.Context) {
	var body startNavigationRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	mode, err := domain.ParseTransportMode(body.TransportMode)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	dest, ok := h.resolveDestination(c, &body)
	if !ok {
		return
	}

	req := domain.NavigationRequest{Destination: *dest, Mode: mode, Replace: body.Replace}
	if body.Origin != nil {
		if !body.Origin.valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "origin out of range"})
			return
		}
		o := body.Origin.toGeoPoint()
		req.Origin = &o
	}

	switch err := h.nav.Start(c.Request.Context(), req); {
	case errors.Is(err, service.ErrSessionActive):
		c.JSON(http.StatusConflict, gin.H{"error": "navigation already active, set replace to confirm"})
		return
	case errors.Is(err, service.ErrNoOrigin):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "no origin given and no known position"})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start navigation"})
		return
	}

	c.JSON(http.StatusAccepted, h.nav.Progress())
}

func (h *NavigationHandler) resolveDestination(c *gin.Context, body *startNavigationRequest) (*domain.PointOfInterest, bool) {
	if body.SpotID != "" {
		spot, err := h.spots.GetSpot(c.Request.Context(), body.SpotID)
		if errors.Is(err, database.ErrSpotNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "spot not found"})
			return nil, false
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch spot"})
			return nil, false
		}
		return spot, true
	}

	if body.Destination == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "spot_id or destination is required"})
		return nil, false
	}
	if !body.Destination.valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "destination out of range"})
		return nil, false
	}
	return &domain.PointOfInterest{Name: body.Name, Coordinate: body.Destination.toGeoPoint()}, true
}

func (h *NavigationHandler) Stop(c *gin.Context) {
	if err := h.nav.Stop(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to stop navigation"})
		return
	}
	c.Status(http.StatusNoContent)
}

// GetRouteGeoJSON exports the active route as one LineString feature per step.
func (h *NavigationHandler) GetRouteGeoJSON(c *gin.Context) {
	r := h.nav.Route()
	if r == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no active route"})
		return
	}

	b, err := routeFeatureCollection(r, h.nav.Progress().StepIndex).MarshalJSON()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to encode route"})
		return
	}
	c.Data(http.StatusOK, "application/geo+json", b)
}

func routeFeatureCollection(r *domain.Route, current int) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for i, step := range r.Steps {
		line := make(orb.LineString, 0, len(step.Polyline))
		for _, p := range step.Polyline {
			line = append(line, orb.Point{p.Lon, p.Lat})
		}
		f := geojson.NewFeature(line)
		f.Properties["step_index"] = i
		f.Properties["instruction"] = step.Instruction
		f.Properties["distance_meters"] = step.DistanceMeters
		f.Properties["current"] = i == current
		fc.Append(f)
	}
	return fc
}

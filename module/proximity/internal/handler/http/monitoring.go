package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/CGroll04/sweetspots/module/proximity/domain"
	"github.com/CGroll04/sweetspots/module/proximity/service"
)

type syncController interface {
	Status() service.MonitoringStatus
	Trigger(reason service.SyncTrigger)
	SetEnabled(enabled bool)
}

type permissionGate interface {
	Authorization() domain.Authorization
	RequestUpgrade(ctx context.Context) error
}

type authorizationResponse struct {
	Location      string `json:"location"`
	Notifications bool   `json:"notifications"`
}

type monitoringResponse struct {
	service.MonitoringStatus
	Authorization authorizationResponse `json:"authorization"`
}

type setEnabledRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

type MonitoringHandler struct {
	sync syncController
	gate permissionGate
}

func NewMonitoringHandler(sync syncController, gate permissionGate) *MonitoringHandler {
	return &MonitoringHandler{sync: sync, gate: gate}
}

func (h *MonitoringHandler) Register(r *gin.RouterGroup) {
	r.GET("/monitoring", h.GetStatus)
	r.POST("/monitoring/sync", h.RequestSync)
	r.PUT("/monitoring/enabled", h.SetEnabled)
	r.POST("/permission/upgrade", h.RequestUpgrade)
}

func (h *MonitoringHandler) GetStatus(c *gin.Context) {
	auth := h.gate.Authorization()
	c.JSON(http.StatusOK, monitoringResponse{
		MonitoringStatus: h.sync.Status(),
		Authorization: authorizationResponse{
			Location:      auth.Location.String(),
			Notifications: auth.Notifications,
		},
	})
}

// RequestSync signals that the spot data set changed.
func (h *MonitoringHandler) RequestSync(c *gin.Context) {
	h.sync.Trigger(service.TriggerDataChange)
	c.Status(http.StatusAccepted)
}

func (h *MonitoringHandler) SetEnabled(c *gin.Context) {
	var body setEnabledRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "enabled is required"})
		return
	}
	h.sync.SetEnabled(*body.Enabled)
	c.JSON(http.StatusAccepted, gin.H{"enabled": *body.Enabled})
}

func (h *MonitoringHandler) RequestUpgrade(c *gin.Context) {
	if err := h.gate.RequestUpgrade(c.Request.Context()); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to request authorization upgrade"})
		return
	}
	c.Status(http.StatusAccepted)
}

package domain

// PointOfInterest is a saved spot as read from the spot store.
type PointOfInterest struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Coordinate      GeoPoint `json:"coordinate"`
	RadiusMeters    float64  `json:"radius_meters"`
	WantsMonitoring bool     `json:"wants_monitoring"`
}

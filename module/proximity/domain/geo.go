package domain

type GeoPoint struct {
	Lat float64 `json:"latitude"`
	Lon float64 `json:"longitude"`
}

type RegionSpec struct {
	ID           string   `json:"id"`
	Center       GeoPoint `json:"center"`
	RadiusMeters float64  `json:"radius_meters"`
}

// MonitoredRegion is a region the engine believes is installed on the device.
type MonitoredRegion = RegionSpec

package domain

import "time"

type Position struct {
	Point     GeoPoint  `json:"point"`
	Timestamp time.Time `json:"timestamp"`
}

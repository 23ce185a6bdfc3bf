package domain

type RegionEventType string

const (
	RegionEnter RegionEventType = "enter"
	RegionExit  RegionEventType = "exit"
)

type RegionEvent struct {
	RegionID string          `json:"region_id"`
	Type     RegionEventType `json:"type"`
}

// AlertRequest is handed to the notification dispatcher, which owns delivery and dedup.
type AlertRequest struct {
	Title    string `json:"title"`
	Body     string `json:"body"`
	TargetID string `json:"target_id"`
}

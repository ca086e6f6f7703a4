package models

import (
	"time"

	"github.com/google/uuid"
)

// AttendeeSessionLog tracks one enter/leave span of an attendee in a scene.
type AttendeeSessionLog struct {
	ID           uuid.UUID  `json:"id"`
	SceneID      string     `json:"scene_id"`
	Wallet       string     `json:"wallet"`
	DisplayName  string     `json:"display_name"`
	JoinedAt     time.Time  `json:"joined_at"`
	LeftAt       *time.Time `json:"left_at,omitempty"`
	WatchSeconds int64      `json:"watch_seconds"`
}

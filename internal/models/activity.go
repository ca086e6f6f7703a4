package models

import (
	"encoding/json"
	"time"
)

// ActivityType identifies which kind of activity the scene pointer refers to.
type ActivityType int

const (
	ActivityNone ActivityType = iota
	ActivityPoll
	ActivitySurvey
	ActivityZonePoll
	ActivityQA
)

// String returns the wire name of the activity type.
func (t ActivityType) String() string {
	switch t {
	case ActivityPoll:
		return "poll"
	case ActivitySurvey:
		return "survey"
	case ActivityZonePoll:
		return "zone_poll"
	case ActivityQA:
		return "qa"
	default:
		return "none"
	}
}

// ParseActivityType is the inverse of String. Unknown names map to ActivityNone.
func ParseActivityType(s string) ActivityType {
	for _, t := range []ActivityType{ActivityPoll, ActivitySurvey, ActivityZonePoll, ActivityQA} {
		if t.String() == s {
			return t
		}
	}
	return ActivityNone
}

// ActivityPointer is the single replicated record naming the current activity.
// CurrentActivityID is nil when no activity was ever started.
type ActivityPointer struct {
	CurrentActivityType ActivityType `json:"current_activity_type"`
	CurrentActivityID   *string      `json:"current_activity_id,omitempty"`
}

// ActivityBase holds the fields every activity record carries.
type ActivityBase struct {
	ID        string `json:"id"`
	CreatorID string `json:"creator_id"`
	Closed    bool   `json:"closed"`
}

// ActivityResult is an archived tally of a closed activity.
type ActivityResult struct {
	ActivityID string          `json:"activity_id"`
	SceneID    string          `json:"scene_id"`
	Type       ActivityType    `json:"type"`
	Title      string          `json:"title"`
	CreatorID  string          `json:"creator_id"`
	Tally      json.RawMessage `json:"tally"`
	ClosedAt   time.Time       `json:"closed_at"`
}

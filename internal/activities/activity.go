// Package activities holds the scene-wide pointer to the current activity and
// the behaviour shared by every activity variant.
package activities

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/aura-webinar/auditorium/internal/models"
)

// Activity is one running or finished poll, survey, zone poll or Q&A session.
type Activity interface {
	Base() models.ActivityBase
	Type() models.ActivityType
	Title() string
	// Summary is the panel label and call to action of the variant.
	Summary() Summary
	Tally() Tally
	// Close marks the activity closed and reports whether this call did it.
	Close(ctx context.Context) (bool, error)
}

// Kind looks up activities of one variant.
type Kind interface {
	Type() models.ActivityType
	Find(ctx context.Context, id string) (Activity, bool, error)
}

// OptionResult is the tally of one option.
type OptionResult struct {
	Option     string `json:"option"`
	Count      int    `json:"count"`
	Percentage int    `json:"percentage"`
}

// Voter is a non-anonymous vote, shown in result tooltips.
type Voter struct {
	UserID string `json:"user_id"`
	Option string `json:"option"`
}

// Tally is the result summary of an activity.
type Tally struct {
	Question  string         `json:"question"`
	Anonymous bool           `json:"anonymous"`
	Total     int            `json:"total"`
	Options   []OptionResult `json:"options"`
	Voters    []Voter        `json:"voters,omitempty"`
	Average   *float64       `json:"average,omitempty"`
}

// Percentage is count/total as a rounded percentage, 0 when total is 0.
func Percentage(count, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(count) / float64(total) * 100))
}

// Summary is the display name and call to action of an activity type.
type Summary struct {
	Name   string `json:"name"`
	Action string `json:"action"`
}

// NewID returns a unique activity id such as "poll_lx3k2a_9f1c2".
func NewID(prefix string) string {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 36)
	r := strings.ReplaceAll(uuid.NewString(), "-", "")[:5]
	return fmt.Sprintf("%s_%s_%s", prefix, ts, r)
}

// Limits bounds what hosts and attendees may submit.
type Limits struct {
	PollQuestionMax int
	OptionMax       int
	MinOptions      int
	MaxOptions      int
	TitleMax        int
	MinRatings      int
	MaxRatings      int
	QuestionTextMax int
}

// DefaultLimits are the bounds of the auditorium creation panels.
func DefaultLimits() Limits {
	return Limits{
		PollQuestionMax: 30,
		OptionMax:       20,
		MinOptions:      2,
		MaxOptions:      4,
		TitleMax:        50,
		MinRatings:      2,
		MaxRatings:      5,
		QuestionTextMax: 140,
	}
}

// ValidOptions reports whether opts is an acceptable option list: count in
// range, each option non-blank and short enough.
func (l Limits) ValidOptions(opts []string) bool {
	if len(opts) < l.MinOptions || len(opts) > l.MaxOptions {
		return false
	}
	for _, o := range opts {
		if strings.TrimSpace(o) == "" || utf8.RuneCountInString(o) > l.OptionMax {
			return false
		}
	}
	return true
}

// ValidText reports whether s is non-blank and at most max characters.
func ValidText(s string, max int) bool {
	return strings.TrimSpace(s) != "" && utf8.RuneCountInString(s) <= max
}

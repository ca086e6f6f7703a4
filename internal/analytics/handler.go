// Package analytics summarizes the attendance and participation of a scene.
package analytics

import (
	"context"
	"math"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"github.com/aura-webinar/auditorium/internal/history"
	"github.com/aura-webinar/auditorium/internal/sessionlog"
	"github.com/aura-webinar/auditorium/pkg/response"
)

// Attendance reads finished attendance spans.
type Attendance interface {
	GetWatchTimeAggregates(ctx context.Context, sceneID string) (*sessionlog.WatchTimeAggregates, error)
}

// Activities reads archived activity counts.
type Activities interface {
	CountByType(ctx context.Context, sceneID string) ([]history.TypeCount, error)
}

// Live counts the connections of this instance.
type Live interface {
	Count() int
}

// SummaryResponse is the JSON shape of GET /scene/analytics.
type SummaryResponse struct {
	LiveConnections      int                 `json:"live_connections"`
	DistinctAttendees    int                 `json:"distinct_attendees"`
	AvgWatchSeconds      int64               `json:"avg_watch_seconds"`
	ActivitiesRun        int                 `json:"activities_run"`
	Activities           []history.TypeCount `json:"activities"`
	Responses            int                 `json:"responses"`
	ResponsesPerAttendee float64             `json:"responses_per_attendee"`
}

// Handler handles GET /scene/analytics.
type Handler struct {
	attendance Attendance
	activities Activities
	live       Live
	sceneID    string
}

// NewHandler creates an analytics handler.
func NewHandler(attendance Attendance, activities Activities, live Live, sceneID string) *Handler {
	return &Handler{attendance: attendance, activities: activities, live: live, sceneID: sceneID}
}

// Summary handles GET /scene/analytics. Host only (enforced by route middleware).
func (h *Handler) Summary(c *gin.Context) {
	ctx := c.Request.Context()

	agg, err := h.attendance.GetWatchTimeAggregates(ctx, h.sceneID)
	if err != nil {
		response.Internal(c, "failed to load attendance aggregates")
		return
	}
	counts, err := h.activities.CountByType(ctx, h.sceneID)
	if err != nil {
		response.Internal(c, "failed to load activity counts")
		return
	}
	if counts == nil {
		counts = []history.TypeCount{}
	}

	out := SummaryResponse{
		DistinctAttendees: agg.DistinctAttendees,
		ActivitiesRun:     lo.SumBy(counts, func(tc history.TypeCount) int { return tc.Count }),
		Activities:        counts,
		Responses:         lo.SumBy(counts, func(tc history.TypeCount) int { return tc.Responses }),
	}
	if h.live != nil {
		out.LiveConnections = h.live.Count()
	}
	if agg.DistinctAttendees > 0 {
		out.AvgWatchSeconds = agg.TotalWatchSeconds / int64(agg.DistinctAttendees)
		out.ResponsesPerAttendee = math.Round(float64(out.Responses)/float64(agg.DistinctAttendees)*100) / 100
	}
	response.OK(c, out)
}

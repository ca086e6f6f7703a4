// Package zonepolls implements spatial polls: attendees vote by standing in
// the zone of an option, and counts are resampled every tick.
package zonepolls

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/aura-webinar/auditorium/internal/activities"
	"github.com/aura-webinar/auditorium/internal/models"
	"github.com/aura-webinar/auditorium/internal/replica"
)

// MaxZones is the number of physical voting zones in the auditorium.
const MaxZones = 4

// Pointer makes an activity current.
type Pointer interface {
	SetCurrent(ctx context.Context, id string, t models.ActivityType) error
}

// Service stores zone poll records.
type Service struct {
	polls   *replica.Table[models.ZonePoll]
	pointer Pointer
	relay   activities.Publisher
	limits  activities.Limits
	logger  *zap.Logger
	now     func() time.Time
}

func NewService(store replica.Store, pointer Pointer, relay activities.Publisher, limits activities.Limits, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		polls:   replica.NewTable[models.ZonePoll](store, replica.ChannelZonePoll),
		pointer: pointer,
		relay:   relay,
		limits:  limits,
		logger:  logger,
		now:     time.Now,
	}
}

func (s *Service) Type() models.ActivityType { return models.ActivityZonePoll }

func (s *Service) Find(ctx context.Context, id string) (activities.Activity, bool, error) {
	zp, ok, err := s.polls.Get(ctx, id)
	if err != nil || !ok {
		return nil, false, err
	}
	return &activity{poll: zp, svc: s}, true, nil
}

func (s *Service) Get(ctx context.Context, id string) (models.ZonePoll, bool, error) {
	return s.polls.Get(ctx, id)
}

// Create stores a zone poll with zeroed counts, makes it current and relays
// createZonePollUi. Options beyond the fourth are rejected with the rest of
// the out-of-bounds input.
func (s *Service) Create(ctx context.Context, creator, question string, options []string) (*models.ZonePoll, error) {
	question = strings.TrimSpace(question)
	options = lo.Map(options, func(o string, _ int) string { return strings.TrimSpace(o) })
	if !activities.ValidText(question, s.limits.PollQuestionMax) || !s.limits.ValidOptions(options) || len(options) > MaxZones {
		s.logger.Debug("zone poll rejected, invalid input", zap.String("creator", creator))
		return nil, nil
	}
	id := activities.NewID("zonepoll")
	zp := models.ZonePoll{
		ActivityBase: models.ActivityBase{ID: id, CreatorID: creator},
		PollID:       id,
		Question:     question,
		Options:      options,
		ZoneCounts:   make([]int, len(options)),
		StartTime:    s.now().UnixMilli(),
	}
	if err := s.polls.Put(ctx, id, zp); err != nil {
		return nil, err
	}
	if err := s.pointer.SetCurrent(ctx, id, models.ActivityZonePoll); err != nil {
		return nil, err
	}
	s.relay.Publish(models.MessageCreateZonePollUI, models.CreateZonePollUIPayload{ZonePollID: id})
	s.logger.Info("zone poll created", zap.String("activity_id", id), zap.Int("options", len(options)))
	return &zp, nil
}

// SetCounts stores a freshly sampled occupancy vector. Nothing is written when
// the poll is closed or the counts did not change.
func (s *Service) SetCounts(ctx context.Context, id string, counts []int) (bool, error) {
	return s.polls.Mutate(ctx, id, func(zp *models.ZonePoll, exists bool) bool {
		if !exists || zp.Closed || len(counts) != len(zp.ZoneCounts) || slices.Equal(zp.ZoneCounts, counts) {
			return false
		}
		zp.ZoneCounts = slices.Clone(counts)
		return true
	})
}

func (s *Service) Close(ctx context.Context, id string) (bool, error) {
	return s.polls.Mutate(ctx, id, func(zp *models.ZonePoll, exists bool) bool {
		if !exists || zp.Closed {
			return false
		}
		zp.Closed = true
		return true
	})
}

// Tally reports the occupancy of the last sample as the result.
func Tally(zp models.ZonePoll) activities.Tally {
	total := lo.Sum(zp.ZoneCounts)
	return activities.Tally{
		Question:  zp.Question,
		Anonymous: true,
		Total:     total,
		Options: lo.Map(zp.Options, func(o string, i int) activities.OptionResult {
			n := 0
			if i < len(zp.ZoneCounts) {
				n = zp.ZoneCounts[i]
			}
			return activities.OptionResult{Option: o, Count: n, Percentage: activities.Percentage(n, total)}
		}),
	}
}

type activity struct {
	poll models.ZonePoll
	svc  *Service
}

func (a *activity) Base() models.ActivityBase { return a.poll.ActivityBase }
func (a *activity) Type() models.ActivityType { return models.ActivityZonePoll }
func (a *activity) Title() string             { return a.poll.Question }
func (a *activity) Tally() activities.Tally   { return Tally(a.poll) }
func (a *activity) Summary() activities.Summary {
	return activities.Summary{Name: "ZonePoll", Action: "Vote"}
}
func (a *activity) Close(ctx context.Context) (bool, error) {
	return a.svc.Close(ctx, a.poll.ID)
}

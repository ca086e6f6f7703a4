// Package polls implements multiple-choice polls with public and anonymous voting.
package polls

import (
	"context"
	"slices"
	"strings"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/aura-webinar/auditorium/internal/activities"
	"github.com/aura-webinar/auditorium/internal/models"
	"github.com/aura-webinar/auditorium/internal/replica"
	"github.com/aura-webinar/auditorium/internal/votememory"
)

// Pointer makes an activity current.
type Pointer interface {
	SetCurrent(ctx context.Context, id string, t models.ActivityType) error
}

// Service manages poll records. Methods run on the scene loop.
type Service struct {
	polls   *replica.Table[models.Poll]
	pointer Pointer
	memory  *votememory.Memory[string]
	limits  activities.Limits
	logger  *zap.Logger
}

// NewService creates the poll service. memory remembers the last option each
// client session picked on an anonymous poll.
func NewService(store replica.Store, pointer Pointer, memory *votememory.Memory[string], limits activities.Limits, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		polls:   replica.NewTable[models.Poll](store, replica.ChannelPoll),
		pointer: pointer,
		memory:  memory,
		limits:  limits,
		logger:  logger,
	}
}

// Type implements activities.Kind.
func (s *Service) Type() models.ActivityType { return models.ActivityPoll }

// Find implements activities.Kind.
func (s *Service) Find(ctx context.Context, id string) (activities.Activity, bool, error) {
	p, ok, err := s.polls.Get(ctx, id)
	if err != nil || !ok {
		return nil, false, err
	}
	return &activity{poll: p, svc: s}, true, nil
}

// Get returns a poll record.
func (s *Service) Get(ctx context.Context, id string) (models.Poll, bool, error) {
	return s.polls.Get(ctx, id)
}

// Create stores a new poll and makes it the current activity. It returns nil
// without error when the question or options are out of bounds.
func (s *Service) Create(ctx context.Context, creator, question string, options []string, anonymous bool) (*models.Poll, error) {
	question = strings.TrimSpace(question)
	options = lo.Map(options, func(o string, _ int) string { return strings.TrimSpace(o) })
	if !activities.ValidText(question, s.limits.PollQuestionMax) || !s.limits.ValidOptions(options) {
		s.logger.Debug("poll rejected, invalid input", zap.String("creator", creator))
		return nil, nil
	}
	p := models.Poll{
		ActivityBase:     models.ActivityBase{ID: activities.NewID("poll"), CreatorID: creator},
		Question:         question,
		Options:          options,
		Anonymous:        anonymous,
		UserIDsThatVoted: []string{},
		Votes:            []models.Vote{},
	}
	if err := s.polls.Put(ctx, p.ID, p); err != nil {
		return nil, err
	}
	if err := s.pointer.SetCurrent(ctx, p.ID, models.ActivityPoll); err != nil {
		return nil, err
	}
	s.logger.Info("poll created", zap.String("activity_id", p.ID), zap.Bool("anonymous", anonymous))
	return &p, nil
}

// Vote records or changes the vote of user. On anonymous polls a vote can
// only be changed from the client session that cast it; a user who voted from
// another session is turned away. Votes on closed polls or for unknown options
// are ignored. It reports whether the poll changed.
func (s *Service) Vote(ctx context.Context, session, pollID, option, user string) (bool, error) {
	if user == "" {
		return false, nil
	}
	last, remembered := s.memory.Recall(session, pollID)
	ok, err := s.polls.Mutate(ctx, pollID, func(p *models.Poll, exists bool) bool {
		if !exists || p.Closed || !slices.Contains(p.Options, option) {
			return false
		}
		if p.Anonymous {
			return voteAnonymous(p, option, user, last, remembered)
		}
		return votePublic(p, option, user)
	})
	if err != nil {
		return false, err
	}
	if !ok {
		s.logger.Debug("poll vote ignored", zap.String("activity_id", pollID), zap.String("user", user))
		return false, nil
	}
	s.memory.Remember(session, pollID, option)
	return true, nil
}

func voteAnonymous(p *models.Poll, option, user, last string, remembered bool) bool {
	if remembered {
		i := slices.IndexFunc(p.Votes, func(v models.Vote) bool { return v.Option == last })
		if i < 0 {
			return false
		}
		p.Votes[i].Option = option
		return true
	}
	if slices.Contains(p.UserIDsThatVoted, user) {
		return false
	}
	p.UserIDsThatVoted = append(p.UserIDsThatVoted, user)
	p.Votes = append(p.Votes, models.Vote{Option: option})
	return true
}

func votePublic(p *models.Poll, option, user string) bool {
	i := slices.IndexFunc(p.Votes, func(v models.Vote) bool { return v.UserID != nil && *v.UserID == user })
	if i >= 0 {
		p.Votes[i].Option = option
		return true
	}
	if !slices.Contains(p.UserIDsThatVoted, user) {
		p.UserIDsThatVoted = append(p.UserIDsThatVoted, user)
	}
	uid := user
	p.Votes = append(p.Votes, models.Vote{UserID: &uid, Option: option})
	return true
}

// Close marks the poll closed and reports whether this call did it.
func (s *Service) Close(ctx context.Context, pollID string) (bool, error) {
	return s.polls.Mutate(ctx, pollID, func(p *models.Poll, exists bool) bool {
		if !exists || p.Closed {
			return false
		}
		p.Closed = true
		return true
	})
}

// Tally counts votes per option in option order.
func Tally(p models.Poll) activities.Tally {
	total := len(p.Votes)
	counts := lo.CountValuesBy(p.Votes, func(v models.Vote) string { return v.Option })
	t := activities.Tally{
		Question:  p.Question,
		Anonymous: p.Anonymous,
		Total:     total,
		Options: lo.Map(p.Options, func(o string, _ int) activities.OptionResult {
			return activities.OptionResult{Option: o, Count: counts[o], Percentage: activities.Percentage(counts[o], total)}
		}),
	}
	if !p.Anonymous {
		t.Voters = lo.FilterMap(p.Votes, func(v models.Vote, _ int) (activities.Voter, bool) {
			if v.UserID == nil {
				return activities.Voter{}, false
			}
			return activities.Voter{UserID: *v.UserID, Option: v.Option}, true
		})
	}
	return t
}

type activity struct {
	poll models.Poll
	svc  *Service
}

func (a *activity) Base() models.ActivityBase { return a.poll.ActivityBase }
func (a *activity) Type() models.ActivityType { return models.ActivityPoll }
func (a *activity) Title() string             { return a.poll.Question }
func (a *activity) Tally() activities.Tally   { return Tally(a.poll) }
func (a *activity) Summary() activities.Summary {
	return activities.Summary{Name: "Poll", Action: "Vote"}
}
func (a *activity) Close(ctx context.Context) (bool, error) {
	return a.svc.Close(ctx, a.poll.ID)
}

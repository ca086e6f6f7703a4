// Package surveys implements rating surveys (1..N stars or hearts).
package surveys

import (
	"context"
	"slices"
	"strconv"
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

type Service struct {
	surveys *replica.Table[models.Survey]
	pointer Pointer
	relay   activities.Publisher
	memory  *votememory.Memory[int]
	limits  activities.Limits
	logger  *zap.Logger
}

func NewService(store replica.Store, pointer Pointer, relay activities.Publisher, memory *votememory.Memory[int], limits activities.Limits, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		surveys: replica.NewTable[models.Survey](store, replica.ChannelSurvey),
		pointer: pointer,
		relay:   relay,
		memory:  memory,
		limits:  limits,
		logger:  logger,
	}
}

func (s *Service) Type() models.ActivityType { return models.ActivitySurvey }

func (s *Service) Find(ctx context.Context, id string) (activities.Activity, bool, error) {
	sv, ok, err := s.surveys.Get(ctx, id)
	if err != nil || !ok {
		return nil, false, err
	}
	return &activity{survey: sv, svc: s}, true, nil
}

func (s *Service) Get(ctx context.Context, id string) (models.Survey, bool, error) {
	return s.surveys.Get(ctx, id)
}

// Create stores a survey, makes it current and relays createSurvey so every
// attendee gets the rating panel. Out-of-bounds input yields nil.
func (s *Service) Create(ctx context.Context, creator, question string, icon models.SurveyIcon, optionsQty int, anonymous bool) (*models.Survey, error) {
	question = strings.TrimSpace(question)
	if !activities.ValidText(question, s.limits.TitleMax) || !icon.Valid() ||
		optionsQty < s.limits.MinRatings || optionsQty > s.limits.MaxRatings {
		s.logger.Debug("survey rejected, invalid input", zap.String("creator", creator))
		return nil, nil
	}
	sv := models.Survey{
		ActivityBase:     models.ActivityBase{ID: activities.NewID("survey"), CreatorID: creator},
		Question:         question,
		Icon:             icon,
		OptionsQty:       optionsQty,
		Anonymous:        anonymous,
		UserIDsThatVoted: []string{},
		Votes:            []models.SurveyVote{},
	}
	if err := s.surveys.Put(ctx, sv.ID, sv); err != nil {
		return nil, err
	}
	if err := s.pointer.SetCurrent(ctx, sv.ID, models.ActivitySurvey); err != nil {
		return nil, err
	}
	s.relay.Publish(models.MessageCreateSurvey, struct{}{})
	s.logger.Info("survey created", zap.String("activity_id", sv.ID), zap.Int("options_qty", optionsQty))
	return &sv, nil
}

// Rate records or changes the rating of user. Anonymous rows carry no user id;
// the rating is changed only from the session that cast it.
func (s *Service) Rate(ctx context.Context, session, surveyID string, rating int, user string) (bool, error) {
	if user == "" {
		return false, nil
	}
	last, remembered := s.memory.Recall(session, surveyID)
	ok, err := s.surveys.Mutate(ctx, surveyID, func(sv *models.Survey, exists bool) bool {
		if !exists || sv.Closed || rating < 1 || rating > sv.OptionsQty {
			return false
		}
		i := slices.IndexFunc(sv.Votes, func(v models.SurveyVote) bool {
			if sv.Anonymous {
				return remembered && v.Option == last
			}
			return v.UserID != nil && *v.UserID == user
		})
		if i >= 0 {
			sv.Votes[i].Option = rating
			return true
		}
		if slices.Contains(sv.UserIDsThatVoted, user) {
			return false
		}
		sv.UserIDsThatVoted = append(sv.UserIDsThatVoted, user)
		row := models.SurveyVote{Option: rating}
		if !sv.Anonymous {
			uid := user
			row.UserID = &uid
		}
		sv.Votes = append(sv.Votes, row)
		return true
	})
	if err != nil {
		return false, err
	}
	if !ok {
		s.logger.Debug("survey rating ignored", zap.String("activity_id", surveyID), zap.Int("rating", rating))
		return false, nil
	}
	s.memory.Remember(session, surveyID, rating)
	return true, nil
}

func (s *Service) Close(ctx context.Context, surveyID string) (bool, error) {
	return s.surveys.Mutate(ctx, surveyID, func(sv *models.Survey, exists bool) bool {
		if !exists || sv.Closed {
			return false
		}
		sv.Closed = true
		return true
	})
}

// Tally counts ratings 1..OptionsQty and averages them. Average is nil when
// nobody rated.
func Tally(sv models.Survey) activities.Tally {
	total := len(sv.Votes)
	counts := lo.CountValuesBy(sv.Votes, func(v models.SurveyVote) int { return v.Option })
	t := activities.Tally{
		Question:  sv.Question,
		Anonymous: sv.Anonymous,
		Total:     total,
		Options: lo.Map(lo.RangeFrom(1, sv.OptionsQty), func(r int, _ int) activities.OptionResult {
			return activities.OptionResult{Option: strconv.Itoa(r), Count: counts[r], Percentage: activities.Percentage(counts[r], total)}
		}),
	}
	if total > 0 {
		avg := float64(lo.SumBy(sv.Votes, func(v models.SurveyVote) int { return v.Option })) / float64(total)
		t.Average = &avg
	}
	if !sv.Anonymous {
		t.Voters = lo.FilterMap(sv.Votes, func(v models.SurveyVote, _ int) (activities.Voter, bool) {
			if v.UserID == nil {
				return activities.Voter{}, false
			}
			return activities.Voter{UserID: *v.UserID, Option: strconv.Itoa(v.Option)}, true
		})
	}
	return t
}

type activity struct {
	survey models.Survey
	svc    *Service
}

func (a *activity) Base() models.ActivityBase { return a.survey.ActivityBase }
func (a *activity) Type() models.ActivityType { return models.ActivitySurvey }
func (a *activity) Title() string             { return a.survey.Question }
func (a *activity) Tally() activities.Tally   { return Tally(a.survey) }
func (a *activity) Summary() activities.Summary {
	return activities.Summary{Name: "Survey", Action: "Rate"}
}
func (a *activity) Close(ctx context.Context) (bool, error) {
	return a.svc.Close(ctx, a.survey.ID)
}

// Package qa implements moderated Q&A sessions: question submission, upvotes
// and the review/answer state machine.
package qa

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/aura-webinar/auditorium/internal/activities"
	"github.com/aura-webinar/auditorium/internal/models"
	"github.com/aura-webinar/auditorium/internal/replica"
)

// Pointer makes an activity current.
type Pointer interface {
	SetCurrent(ctx context.Context, id string, t models.ActivityType) error
}

// Hosts answers whether a user holds the host role.
type Hosts interface {
	IsHost(ctx context.Context, user string) bool
}

// CreatedPayload is the payload of the createQA relay message.
type CreatedPayload struct {
	Anonymous bool `json:"anonymous"`
	Moderated bool `json:"moderated"`
}

// Service stores Q&A sessions and their questions. Methods run on the scene loop.
type Service struct {
	sessions  *replica.Table[models.QASession]
	questions *replica.Table[models.Question]
	pointer   Pointer
	hosts     Hosts
	relay     activities.Publisher
	limits    activities.Limits
	logger    *zap.Logger
	now       func() time.Time
}

func NewService(store replica.Store, pointer Pointer, hosts Hosts, relay activities.Publisher, limits activities.Limits, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		sessions:  replica.NewTable[models.QASession](store, replica.ChannelQA),
		questions: replica.NewTable[models.Question](store, replica.ChannelQuestion),
		pointer:   pointer,
		hosts:     hosts,
		relay:     relay,
		limits:    limits,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *Service) Type() models.ActivityType { return models.ActivityQA }

func (s *Service) Find(ctx context.Context, id string) (activities.Activity, bool, error) {
	st, ok, err := s.sessions.Get(ctx, id)
	if err != nil || !ok {
		return nil, false, err
	}
	qs, err := s.Questions(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return &activity{session: st, questions: qs, svc: s}, true, nil
}

// Session returns a Q&A session record.
func (s *Service) Session(ctx context.Context, id string) (models.QASession, bool, error) {
	return s.sessions.Get(ctx, id)
}

// FirstOpen returns the first session, by id, that is not closed.
func (s *Service) FirstOpen(ctx context.Context) (models.QASession, bool, error) {
	row, ok, err := s.sessions.Find(ctx, func(st models.QASession) bool { return !st.Closed })
	return row.Value, ok, err
}

// CreateSession destroys every existing question, closes sessions left open,
// stores a new session, makes it current and relays createQA.
func (s *Service) CreateSession(ctx context.Context, creator, title string, anonymous, moderated bool) (*models.QASession, error) {
	title = strings.TrimSpace(title)
	if !activities.ValidText(title, s.limits.TitleMax) {
		s.logger.Debug("qa session rejected, invalid title", zap.String("creator", creator))
		return nil, nil
	}
	if err := s.questions.Clear(ctx); err != nil {
		return nil, fmt.Errorf("clear questions: %w", err)
	}
	if err := s.closeOpen(ctx); err != nil {
		return nil, err
	}
	st := models.QASession{
		ActivityBase: models.ActivityBase{ID: activities.NewID("qa"), CreatorID: creator},
		Title:        title,
		Anonymous:    anonymous,
		Moderated:    moderated,
	}
	if err := s.sessions.Put(ctx, st.ID, st); err != nil {
		return nil, err
	}
	if err := s.pointer.SetCurrent(ctx, st.ID, models.ActivityQA); err != nil {
		return nil, err
	}
	s.relay.Publish(models.MessageCreateQA, CreatedPayload{Anonymous: anonymous, Moderated: moderated})
	s.logger.Info("qa session created", zap.String("activity_id", st.ID),
		zap.Bool("anonymous", anonymous), zap.Bool("moderated", moderated))
	return &st, nil
}

func (s *Service) closeOpen(ctx context.Context) error {
	rows, err := s.sessions.All(ctx)
	if err != nil {
		return err
	}
	for _, r := range rows {
		if r.Value.Closed {
			continue
		}
		if _, err := s.Close(ctx, r.ID); err != nil {
			return fmt.Errorf("close qa %s: %w", r.ID, err)
		}
	}
	return nil
}

func newQuestionID(sessionID string) string {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 36)
	return fmt.Sprintf("%s-q%s%s", sessionID, ts, strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
}

// Submit adds a question to an open session. Questions from trusted users,
// or on unmoderated sessions, go straight to NEW; the rest wait in review.
// Anonymous sessions do not store the author.
func (s *Service) Submit(ctx context.Context, sessionID, text, user string, trusted bool) (*models.Question, error) {
	text = strings.TrimSpace(text)
	if user == "" || !activities.ValidText(text, s.limits.QuestionTextMax) {
		s.logger.Debug("question rejected, invalid text", zap.String("qa_id", sessionID))
		return nil, nil
	}
	st, ok, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !ok || st.Closed {
		s.logger.Debug("question rejected, session not open", zap.String("qa_id", sessionID))
		return nil, nil
	}
	state := models.QuestionNew
	if st.Moderated && !trusted {
		state = models.QuestionToReview
	}
	q := models.Question{
		ID:        newQuestionID(st.ID),
		QAID:      st.ID,
		Text:      text,
		CreatedAt: s.now().UnixMilli(),
		Votes:     []string{},
		State:     state,
	}
	if !st.Anonymous {
		uid := user
		q.UserID = &uid
	}
	if err := s.questions.Put(ctx, q.ID, q); err != nil {
		return nil, err
	}
	s.logger.Debug("question submitted", zap.String("qa_id", st.ID), zap.String("question_id", q.ID), zap.String("state", string(state)))
	return &q, nil
}

// Question returns one question record.
func (s *Service) Question(ctx context.Context, id string) (models.Question, bool, error) {
	return s.questions.Get(ctx, id)
}

// Questions returns every question of a session.
func (s *Service) Questions(ctx context.Context, qaID string) ([]models.Question, error) {
	rows, err := s.questions.All(ctx)
	if err != nil {
		return nil, err
	}
	return lo.FilterMap(rows, func(r replica.Row[models.Question], _ int) (models.Question, bool) {
		return r.Value, r.Value.QAID == qaID
	}), nil
}

// HasVoted reports whether user upvoted q.
func HasVoted(q models.Question, user string) bool {
	return user != "" && slices.Contains(q.Votes, user)
}

// VoteCount returns the number of upvotes of q.
func VoteCount(q models.Question) int { return len(q.Votes) }

// locked reports whether the session owning q no longer accepts changes.
func (s *Service) locked(ctx context.Context, qaID string) (bool, error) {
	st, ok, err := s.sessions.Get(ctx, qaID)
	if err != nil {
		return false, err
	}
	return !ok || st.Closed, nil
}

// mutate applies fn to an open session's question.
func (s *Service) mutate(ctx context.Context, questionID string, fn func(q *models.Question) bool) (bool, error) {
	q, ok, err := s.questions.Get(ctx, questionID)
	if err != nil || !ok {
		return false, err
	}
	if locked, err := s.locked(ctx, q.QAID); err != nil || locked {
		return false, err
	}
	return s.questions.Mutate(ctx, questionID, func(q *models.Question, exists bool) bool {
		return exists && fn(q)
	})
}

// ToggleVote adds or removes the upvote of user. Only NEW questions take votes.
func (s *Service) ToggleVote(ctx context.Context, questionID, user string) (bool, error) {
	if user == "" {
		return false, nil
	}
	return s.mutate(ctx, questionID, func(q *models.Question) bool {
		if q.State != models.QuestionNew {
			return false
		}
		if slices.Contains(q.Votes, user) {
			q.Votes = lo.Without(q.Votes, user)
		} else {
			q.Votes = append(q.Votes, user)
		}
		return true
	})
}

// Approve publishes a question under review, or marks a NEW question answered.
func (s *Service) Approve(ctx context.Context, actor, questionID string) (bool, error) {
	if !s.hosts.IsHost(ctx, actor) {
		s.logger.Debug("approve ignored, not a host", zap.String("user", actor))
		return false, nil
	}
	return s.mutate(ctx, questionID, func(q *models.Question) bool {
		switch q.State {
		case models.QuestionToReview:
			q.State = models.QuestionNew
		case models.QuestionNew:
			q.State = models.QuestionAnswered
		default:
			return false
		}
		return true
	})
}

// Reopen moves an answered question back to NEW.
func (s *Service) Reopen(ctx context.Context, actor, questionID string) (bool, error) {
	if !s.hosts.IsHost(ctx, actor) {
		s.logger.Debug("reopen ignored, not a host", zap.String("user", actor))
		return false, nil
	}
	return s.mutate(ctx, questionID, func(q *models.Question) bool {
		if q.State != models.QuestionAnswered {
			return false
		}
		q.State = models.QuestionNew
		return true
	})
}

// IsAuthor reports whether user wrote q. Always false on anonymous sessions.
func IsAuthor(q models.Question, user string) bool {
	return q.UserID != nil && *q.UserID != "" && user != "" && strings.EqualFold(*q.UserID, user)
}

// Remove deletes a question. Hosts may remove any question of an open
// session; authors may remove their own until it is answered.
func (s *Service) Remove(ctx context.Context, actor, questionID string) (bool, error) {
	q, ok, err := s.questions.Get(ctx, questionID)
	if err != nil || !ok {
		return false, err
	}
	if locked, err := s.locked(ctx, q.QAID); err != nil || locked {
		return false, err
	}
	if !s.hosts.IsHost(ctx, actor) && !(IsAuthor(q, actor) && q.State != models.QuestionAnswered) {
		s.logger.Debug("remove ignored, not allowed", zap.String("user", actor), zap.String("question_id", questionID))
		return false, nil
	}
	if err := s.questions.Delete(ctx, questionID); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) Close(ctx context.Context, id string) (bool, error) {
	return s.sessions.Mutate(ctx, id, func(st *models.QASession, exists bool) bool {
		if !exists || st.Closed {
			return false
		}
		st.Closed = true
		return true
	})
}

// Tally summarizes a session by question state.
func Tally(st models.QASession, questions []models.Question) activities.Tally {
	counts := lo.CountValuesBy(questions, func(q models.Question) models.QuestionState { return q.State })
	total := len(questions)
	states := []models.QuestionState{models.QuestionNew, models.QuestionAnswered, models.QuestionToReview}
	return activities.Tally{
		Question:  st.Title,
		Anonymous: st.Anonymous,
		Total:     total,
		Options: lo.Map(states, func(state models.QuestionState, _ int) activities.OptionResult {
			return activities.OptionResult{Option: string(state), Count: counts[state], Percentage: activities.Percentage(counts[state], total)}
		}),
	}
}

type activity struct {
	session   models.QASession
	questions []models.Question
	svc       *Service
}

func (a *activity) Base() models.ActivityBase { return a.session.ActivityBase }
func (a *activity) Type() models.ActivityType { return models.ActivityQA }
func (a *activity) Title() string             { return a.session.Title }
func (a *activity) Tally() activities.Tally   { return Tally(a.session, a.questions) }
func (a *activity) Summary() activities.Summary {
	return activities.Summary{Name: "Q&A Session", Action: "Ask"}
}

func (a *activity) Close(ctx context.Context) (bool, error) {
	return a.svc.Close(ctx, a.session.ID)
}

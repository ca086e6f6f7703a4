package qa

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-webinar/auditorium/internal/activities"
	"github.com/aura-webinar/auditorium/internal/models"
	"github.com/aura-webinar/auditorium/internal/replica"
)

type pointerStub struct{ id string }

func (p *pointerStub) SetCurrent(_ context.Context, id string, _ models.ActivityType) error {
	p.id = id
	return nil
}

type hostsStub map[string]bool

func (h hostsStub) IsHost(_ context.Context, user string) bool { return h[strings.ToLower(user)] }

type publisherStub struct {
	kinds    []models.MessageKind
	payloads []any
}

func (p *publisherStub) Publish(kind models.MessageKind, payload any) {
	p.kinds = append(p.kinds, kind)
	p.payloads = append(p.payloads, payload)
}

func newService(t *testing.T) (*Service, *publisherStub) {
	t.Helper()
	pub := &publisherStub{}
	svc := NewService(replica.NewMemoryStore(), &pointerStub{}, hostsStub{"host": true}, pub, activities.DefaultLimits(), nil)
	return svc, pub
}

func mustSession(t *testing.T, svc *Service, anonymous, moderated bool) models.QASession {
	t.Helper()
	st, err := svc.CreateSession(context.Background(), "host", "Ask me anything", anonymous, moderated)
	require.NoError(t, err)
	require.NotNil(t, st)
	return *st
}

func mustSubmit(t *testing.T, svc *Service, qaID, text, user string, trusted bool) models.Question {
	t.Helper()
	q, err := svc.Submit(context.Background(), qaID, text, user, trusted)
	require.NoError(t, err)
	require.NotNil(t, q)
	return *q
}

func stateOf(t *testing.T, svc *Service, id string) models.QuestionState {
	t.Helper()
	q, ok, err := svc.Question(context.Background(), id)
	require.NoError(t, err)
	require.True(t, ok)
	return q.State
}

func TestCreateSession_RelaysFlags(t *testing.T) {
	svc, pub := newService(t)
	st := mustSession(t, svc, true, true)
	assert.Regexp(t, `^qa_`, st.ID)
	assert.Equal(t, []models.MessageKind{models.MessageCreateQA}, pub.kinds)
	assert.Equal(t, CreatedPayload{Anonymous: true, Moderated: true}, pub.payloads[0])

	none, err := svc.CreateSession(context.Background(), "host", strings.Repeat("x", 51), false, false)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestModerationFlow(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	st := mustSession(t, svc, false, true)

	q := mustSubmit(t, svc, st.ID, "What is next?", "guest", false)
	assert.Equal(t, models.QuestionToReview, q.State)
	assert.True(t, strings.HasPrefix(q.ID, st.ID+"-q"))

	ok, err := svc.Approve(ctx, "guest", q.ID)
	require.NoError(t, err)
	assert.False(t, ok, "attendees cannot approve")

	steps := []struct {
		op   func() (bool, error)
		want models.QuestionState
	}{
		{func() (bool, error) { return svc.Approve(ctx, "host", q.ID) }, models.QuestionNew},
		{func() (bool, error) { return svc.Approve(ctx, "host", q.ID) }, models.QuestionAnswered},
		{func() (bool, error) { return svc.Reopen(ctx, "host", q.ID) }, models.QuestionNew},
	}
	for _, s := range steps {
		ok, err := s.op()
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, s.want, stateOf(t, svc, q.ID))
	}

	ok, err = svc.Reopen(ctx, "host", q.ID)
	require.NoError(t, err)
	assert.False(t, ok, "reopen only applies to answered questions")
}

func TestSubmit_InitialState(t *testing.T) {
	tests := []struct {
		name      string
		moderated bool
		trusted   bool
		want      models.QuestionState
	}{
		{"unmoderated", false, false, models.QuestionNew},
		{"moderated attendee", true, false, models.QuestionToReview},
		{"moderated host", true, true, models.QuestionNew},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newService(t)
			st := mustSession(t, svc, false, tt.moderated)
			q := mustSubmit(t, svc, st.ID, "Question?", "u1", tt.trusted)
			assert.Equal(t, tt.want, q.State)
			require.NotNil(t, q.UserID)
			assert.Equal(t, "u1", *q.UserID)
		})
	}
}

func TestSubmit_Rejected(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	st := mustSession(t, svc, false, false)

	for _, text := range []string{"", "   ", strings.Repeat("a", 141)} {
		q, err := svc.Submit(ctx, st.ID, text, "u1", false)
		require.NoError(t, err)
		assert.Nil(t, q)
	}
	q, err := svc.Submit(ctx, "missing", "hello?", "u1", false)
	require.NoError(t, err)
	assert.Nil(t, q)

	_, err = svc.Close(ctx, st.ID)
	require.NoError(t, err)
	q, err = svc.Submit(ctx, st.ID, "hello?", "u1", false)
	require.NoError(t, err)
	assert.Nil(t, q)
}

func TestSubmit_AnonymousDropsAuthor(t *testing.T) {
	svc, _ := newService(t)
	st := mustSession(t, svc, true, false)
	q := mustSubmit(t, svc, st.ID, "Who am I?", "u1", false)
	assert.Nil(t, q.UserID)
	assert.False(t, IsAuthor(q, "u1"))
}

func TestNewSessionResetsQuestions(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	first := mustSession(t, svc, false, false)
	mustSubmit(t, svc, first.ID, "One?", "u1", false)
	mustSubmit(t, svc, first.ID, "Two?", "u2", false)

	second := mustSession(t, svc, false, false)
	for _, id := range []string{first.ID, second.ID} {
		qs, err := svc.Questions(ctx, id)
		require.NoError(t, err)
		assert.Empty(t, qs)
	}
}

func TestToggleVote(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	st := mustSession(t, svc, false, true)
	q := mustSubmit(t, svc, st.ID, "Vote me", "host", true)

	ok, err := svc.ToggleVote(ctx, q.ID, "u1")
	require.NoError(t, err)
	assert.True(t, ok)
	got, _, _ := svc.Question(ctx, q.ID)
	assert.Equal(t, 1, VoteCount(got))
	assert.True(t, HasVoted(got, "u1"))

	_, err = svc.ToggleVote(ctx, q.ID, "u1")
	require.NoError(t, err)
	got, _, _ = svc.Question(ctx, q.ID)
	assert.Equal(t, 0, VoteCount(got))
	assert.False(t, HasVoted(got, ""))

	review := mustSubmit(t, svc, st.ID, "Pending", "u2", false)
	ok, err = svc.ToggleVote(ctx, review.ID, "u1")
	require.NoError(t, err)
	assert.False(t, ok, "questions under review take no votes")
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	st := mustSession(t, svc, false, false)

	own := mustSubmit(t, svc, st.ID, "Mine", "Alice", false)
	other := mustSubmit(t, svc, st.ID, "Other", "bob", false)

	ok, err := svc.Remove(ctx, "alice", other.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = svc.Remove(ctx, "alice", own.ID)
	require.NoError(t, err)
	assert.True(t, ok, "authors match case-insensitively")

	_, err = svc.Approve(ctx, "host", other.ID)
	require.NoError(t, err)
	ok, err = svc.Remove(ctx, "bob", other.ID)
	require.NoError(t, err)
	assert.False(t, ok, "answered questions stay for their author")

	ok, err = svc.Remove(ctx, "host", other.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	qs, err := svc.Questions(ctx, st.ID)
	require.NoError(t, err)
	assert.Empty(t, qs)
}

func TestClosedSessionLocksActions(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	st := mustSession(t, svc, false, false)
	q := mustSubmit(t, svc, st.ID, "Late?", "u1", false)

	a, ok, err := svc.Find(ctx, st.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, a.Tally().Total)
	assert.Equal(t, "Ask", a.Summary().Action)
	changed, err := a.Close(ctx)
	require.NoError(t, err)
	assert.True(t, changed)

	for name, op := range map[string]func() (bool, error){
		"vote":    func() (bool, error) { return svc.ToggleVote(ctx, q.ID, "u2") },
		"approve": func() (bool, error) { return svc.Approve(ctx, "host", q.ID) },
		"remove":  func() (bool, error) { return svc.Remove(ctx, "host", q.ID) },
	} {
		ok, err := op()
		require.NoError(t, err, name)
		assert.False(t, ok, name)
	}
}

package qa

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-webinar/auditorium/internal/models"
)

type namesStub map[string]string

func (n namesStub) Player(_ context.Context, user string) (models.Player, bool) {
	name, ok := n[user]
	return models.Player{Wallet: user, Name: name}, ok
}

func withClock(svc *Service) {
	t := time.UnixMilli(1_700_000_000_000)
	svc.now = func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func ids(p Page) []string {
	out := make([]string, 0, len(p.Items))
	for _, it := range p.Items {
		out = append(out, it.Text)
	}
	return out
}

func TestQueue_NewTabSortsByVotesThenNewest(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	withClock(svc)
	st := mustSession(t, svc, false, false)
	a := mustSubmit(t, svc, st.ID, "a", "u1", false)
	mustSubmit(t, svc, st.ID, "b", "u2", false)
	c := mustSubmit(t, svc, st.ID, "c", "u3", false)
	mustSubmit(t, svc, st.ID, "d", "u4", false)

	for _, voter := range []string{"x", "y"} {
		_, err := svc.ToggleVote(ctx, a.ID, voter)
		require.NoError(t, err)
	}
	_, err := svc.ToggleVote(ctx, c.ID, "x")
	require.NoError(t, err)

	v := NewQueueView(svc, namesStub{}, "u2", 3)
	page, err := v.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.QuestionNew, page.Tab)
	assert.Equal(t, []string{"a", "c", "d"}, ids(page))
	assert.Equal(t, 2, page.TotalPages)
	assert.Equal(t, Counts{New: 4}, page.Counts)

	v.SetPage(1)
	page, err = v.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids(page))
	assert.True(t, page.Items[0].IsMine)
	assert.True(t, page.Items[0].CanDelete)
	assert.True(t, page.Items[0].CanVote)
}

func TestQueue_PageClampsWhenListShrinks(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	withClock(svc)
	st := mustSession(t, svc, false, false)
	var last models.Question
	for i := 0; i < 4; i++ {
		last = mustSubmit(t, svc, st.ID, fmt.Sprintf("q%d", i), "u1", false)
	}
	v := NewQueueView(svc, namesStub{}, "host", 3)
	v.SetHost(true)
	_, err := v.Refresh(ctx)
	require.NoError(t, err)
	v.SetPage(5)
	page, err := v.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)

	_, err = svc.Remove(ctx, "host", last.ID)
	require.NoError(t, err)
	page, err = v.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, page.Page)
	assert.Equal(t, 1, page.TotalPages)
}

func TestQueue_TabsAndRoles(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	withClock(svc)
	st := mustSession(t, svc, false, true)
	mustSubmit(t, svc, st.ID, "pending", "u1", false)
	done := mustSubmit(t, svc, st.ID, "done", "host", true)
	_, err := svc.Approve(ctx, "host", done.ID)
	require.NoError(t, err)

	v := NewQueueView(svc, namesStub{}, "u1", 3)
	v.SetTab(models.QuestionToReview)
	page, err := v.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.QuestionNew, page.Tab, "attendees never see the review tab")
	assert.Equal(t, Counts{ToReview: 1, Answered: 1}, page.Counts)

	v.SetHost(true)
	v.SetTab(models.QuestionToReview)
	page, err = v.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"pending"}, ids(page))
	assert.False(t, page.Items[0].CanVote)

	v.SetHost(false)
	page, err = v.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.QuestionNew, page.Tab)

	v.SetTab(models.QuestionAnswered)
	page, err = v.Refresh(ctx)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.False(t, page.Items[0].CanVote)
	assert.False(t, page.Items[0].CanDelete)
}

func TestQueue_AuthorLabels(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	st := mustSession(t, svc, false, false)
	mustSubmit(t, svc, st.ID, "named", "0xabc1234", false)
	mustSubmit(t, svc, st.ID, "unnamed", "0xdef5678", false)

	v := NewQueueView(svc, namesStub{"0xabc1234": "Alice"}, "viewer", 5)
	page, err := v.Refresh(ctx)
	require.NoError(t, err)
	labels := map[string]string{}
	for _, it := range page.Items {
		labels[it.Text] = it.Author
	}
	assert.Equal(t, "Alice #1234", labels["named"])
	assert.Equal(t, "User #5678", labels["unnamed"])

	anon := mustSession(t, svc, true, false)
	mustSubmit(t, svc, anon.ID, "secret", "0xabc1234", false)
	page, err = v.Refresh(ctx)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "Anonymous", page.Items[0].Author)
	assert.Empty(t, page.Items[0].AuthorID)
}

func TestQueue_FreezesWhenSessionCloses(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	withClock(svc)
	st := mustSession(t, svc, false, false)
	mustSubmit(t, svc, st.ID, "one", "u1", false)

	v := NewQueueView(svc, namesStub{}, "u1", 3)
	_, err := v.Refresh(ctx)
	require.NoError(t, err)

	mustSubmit(t, svc, st.ID, "two", "u2", false)
	_, err = svc.Close(ctx, st.ID)
	require.NoError(t, err)

	page, err := v.Refresh(ctx)
	require.NoError(t, err)
	assert.True(t, page.Locked)
	assert.ElementsMatch(t, []string{"one", "two"}, ids(page))
	for _, it := range page.Items {
		assert.False(t, it.CanVote)
		assert.False(t, it.CanDelete)
	}

	next := mustSession(t, svc, false, false)
	page, err = v.Refresh(ctx)
	require.NoError(t, err)
	assert.False(t, page.Locked)
	assert.Equal(t, next.ID, page.QAID)
	assert.Empty(t, page.Items)
}

func TestQueue_OpensOnAnsweredWhenNothingOpen(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	st := mustSession(t, svc, false, false)
	_, err := svc.Close(ctx, st.ID)
	require.NoError(t, err)

	v := NewQueueView(svc, namesStub{}, "u1", 3)
	page, err := v.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.QuestionAnswered, page.Tab)
	assert.Equal(t, 1, page.TotalPages)
}

func TestQueues_PerSession(t *testing.T) {
	svc, _ := newService(t)
	qs := NewQueues(svc, namesStub{}, 3, 2, time.Minute)
	a := qs.For("s1", "u1")
	assert.Same(t, a, qs.For("s1", "u1"))
	assert.NotSame(t, a, qs.For("s2", "u1"))
	assert.NotSame(t, a, qs.For("s1", "u9"), "a session reused by another viewer starts fresh")
}

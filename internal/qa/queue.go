package qa

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/aura-webinar/auditorium/internal/models"
)

// Names resolves display names of players in the scene.
type Names interface {
	Player(ctx context.Context, user string) (models.Player, bool)
}

// Item is one question as shown in the queue.
type Item struct {
	ID        string               `json:"id"`
	Text      string               `json:"text"`
	Author    string               `json:"author"`
	AuthorID  string               `json:"author_id,omitempty"`
	CreatedAt int64                `json:"created_at"`
	Votes     int                  `json:"votes"`
	State     models.QuestionState `json:"state"`
	VotedByMe bool                 `json:"voted_by_me"`
	CanVote   bool                 `json:"can_vote"`
	CanDelete bool                 `json:"can_delete"`
	IsMine    bool                 `json:"is_mine"`
}

// Counts is the number of questions per tab.
type Counts struct {
	ToReview int `json:"to_review"`
	New      int `json:"new"`
	Answered int `json:"answered"`
}

// Page is a rendered queue page.
type Page struct {
	QAID       string               `json:"qa_id,omitempty"`
	Title      string               `json:"title"`
	Tab        models.QuestionState `json:"tab"`
	Page       int                  `json:"page"`
	TotalPages int                  `json:"total_pages"`
	Counts     Counts               `json:"counts"`
	Items      []Item               `json:"items"`
	Locked     bool                 `json:"locked"`
}

type entry struct {
	q      models.Question
	author string
}

// QueueView is the moderation queue of one viewer. It follows the first open
// session and, once that session closes or disappears, keeps showing the last
// list it saw instead of going empty.
type QueueView struct {
	svc      *Service
	names    Names
	pageSize int

	viewer string
	isHost bool
	opened bool
	tab    models.QuestionState
	page   int

	currentID  string
	title      string
	anonymous  bool
	snapshot   *models.QASession
	frozen     bool
	frozenID   string
	frozenList []entry
	last       []entry
}

// NewQueueView creates a view with pageSize questions per page.
func NewQueueView(svc *Service, names Names, viewer string, pageSize int) *QueueView {
	if pageSize <= 0 {
		pageSize = 3
	}
	return &QueueView{svc: svc, names: names, pageSize: pageSize, viewer: viewer, tab: models.QuestionNew}
}

// SetHost updates the viewer's role. Non-hosts cannot stay on the review tab.
func (v *QueueView) SetHost(isHost bool) {
	v.isHost = isHost
	if !isHost && v.tab == models.QuestionToReview {
		v.SetTab(models.QuestionNew)
	}
}

// SetTab switches tab and goes back to the first page.
func (v *QueueView) SetTab(tab models.QuestionState) {
	if !v.isHost && tab == models.QuestionToReview {
		tab = models.QuestionNew
	}
	switch tab {
	case models.QuestionToReview, models.QuestionNew, models.QuestionAnswered:
	default:
		return
	}
	if v.tab != tab {
		v.tab = tab
		v.page = 0
	}
}

// SetPage selects a page; it is clamped on the next Refresh.
func (v *QueueView) SetPage(page int) { v.page = page }

// Locked reports whether the viewed session no longer accepts actions.
func (v *QueueView) Locked() bool {
	return v.frozen || (v.snapshot != nil && v.snapshot.Closed)
}

// open picks the first tab: answered when no session is open anymore.
func (v *QueueView) open(ctx context.Context) error {
	v.opened = true
	_, ok, err := v.svc.FirstOpen(ctx)
	if err != nil {
		return err
	}
	if !ok {
		v.tab = models.QuestionAnswered
	}
	return nil
}

// Refresh re-reads the store and renders the current page.
func (v *QueueView) Refresh(ctx context.Context) (Page, error) {
	if !v.opened {
		if err := v.open(ctx); err != nil {
			return Page{}, err
		}
	}
	st, ok, err := v.svc.FirstOpen(ctx)
	if err != nil {
		return Page{}, err
	}
	v.snapshot = nil
	if ok {
		v.snapshot = &st
		if st.ID != v.currentID {
			v.currentID = st.ID
			v.frozen = false
			v.frozenID = ""
			v.frozenList = nil
			v.page = 0
		}
		v.title, v.anonymous = st.Title, st.Anonymous
	}

	if v.snapshot == nil && v.currentID != "" && !v.frozen {
		list, err := v.finalList(ctx)
		if err != nil {
			return Page{}, err
		}
		v.frozen = true
		v.frozenID = v.currentID
		v.frozenList = list
	}

	var all []entry
	if v.frozen && v.frozenID == v.currentID {
		all = slices.Clone(v.frozenList)
	} else {
		all, err = v.live(ctx, v.currentID)
		if err != nil {
			return Page{}, err
		}
	}
	v.last = all
	return v.render(all), nil
}

// finalList is what stays on screen once the session is gone: its questions
// when the closed record is still reachable, else the last list seen.
func (v *QueueView) finalList(ctx context.Context) ([]entry, error) {
	st, ok, err := v.svc.Session(ctx, v.currentID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return slices.Clone(v.last), nil
	}
	v.title, v.anonymous = st.Title, st.Anonymous
	return v.live(ctx, st.ID)
}

func (v *QueueView) live(ctx context.Context, qaID string) ([]entry, error) {
	if qaID == "" {
		return nil, nil
	}
	qs, err := v.svc.Questions(ctx, qaID)
	if err != nil {
		return nil, err
	}
	out := make([]entry, 0, len(qs))
	for _, q := range qs {
		out = append(out, entry{q: q, author: v.authorLabel(ctx, q)})
	}
	return out, nil
}

func (v *QueueView) authorLabel(ctx context.Context, q models.Question) string {
	if v.anonymous {
		return "Anonymous"
	}
	if q.UserID == nil || *q.UserID == "" {
		return "User #????"
	}
	id := *q.UserID
	name := "User"
	if p, ok := v.names.Player(ctx, id); ok && p.Name != "" {
		name = p.Name
	}
	last4 := id
	if len(id) > 4 {
		last4 = id[len(id)-4:]
	}
	return name + " #" + last4
}

func (v *QueueView) render(all []entry) Page {
	var counts Counts
	for _, e := range all {
		switch e.q.State {
		case models.QuestionToReview:
			counts.ToReview++
		case models.QuestionNew:
			counts.New++
		case models.QuestionAnswered:
			counts.Answered++
		}
	}

	filtered := slices.DeleteFunc(slices.Clone(all), func(e entry) bool { return e.q.State != v.tab })
	if v.tab == models.QuestionNew {
		slices.SortStableFunc(filtered, func(a, b entry) int {
			if c := cmp.Compare(VoteCount(b.q), VoteCount(a.q)); c != 0 {
				return c
			}
			return cmp.Compare(b.q.CreatedAt, a.q.CreatedAt)
		})
	} else {
		slices.SortStableFunc(filtered, func(a, b entry) int { return cmp.Compare(b.q.CreatedAt, a.q.CreatedAt) })
	}

	totalPages := max(1, (len(filtered)+v.pageSize-1)/v.pageSize)
	v.page = min(max(v.page, 0), totalPages-1)
	start := v.page * v.pageSize
	end := min(start+v.pageSize, len(filtered))

	locked := v.Locked()
	items := make([]Item, 0, end-start)
	for _, e := range filtered[start:end] {
		mine := IsAuthor(e.q, v.viewer)
		it := Item{
			ID:        e.q.ID,
			Text:      e.q.Text,
			Author:    e.author,
			CreatedAt: e.q.CreatedAt,
			Votes:     VoteCount(e.q),
			State:     e.q.State,
			VotedByMe: HasVoted(e.q, v.viewer),
			CanVote:   !locked && v.tab != models.QuestionAnswered && e.q.State == models.QuestionNew,
			CanDelete: !locked && (v.isHost || (mine && v.tab != models.QuestionAnswered)),
			IsMine:    mine,
		}
		if e.q.UserID != nil && !v.anonymous {
			it.AuthorID = *e.q.UserID
		}
		items = append(items, it)
	}
	return Page{
		QAID:       v.currentID,
		Title:      v.title,
		Tab:        v.tab,
		Page:       v.page,
		TotalPages: totalPages,
		Counts:     counts,
		Items:      items,
		Locked:     locked,
	}
}

// Queues keeps one QueueView per client session, evicting idle ones.
type Queues struct {
	svc      *Service
	names    Names
	pageSize int
	views    *expirable.LRU[string, *QueueView]
}

// NewQueues creates a bounded view cache.
func NewQueues(svc *Service, names Names, pageSize, size int, ttl time.Duration) *Queues {
	if size <= 0 {
		size = 1024
	}
	return &Queues{
		svc:      svc,
		names:    names,
		pageSize: pageSize,
		views:    expirable.NewLRU[string, *QueueView](size, nil, ttl),
	}
}

// For returns the view of session, creating it for viewer on first use.
func (q *Queues) For(session, viewer string) *QueueView {
	if v, ok := q.views.Get(session); ok && v.viewer == viewer {
		return v
	}
	v := NewQueueView(q.svc, q.names, viewer, q.pageSize)
	q.views.Add(session, v)
	return v
}

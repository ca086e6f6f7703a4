package qa

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-webinar/auditorium/internal/middleware"
	"github.com/aura-webinar/auditorium/internal/models"
	"github.com/aura-webinar/auditorium/internal/scene"
)

func newRouter(t *testing.T) *gin.Engine {
	t.Helper()
	loop := scene.NewLoop(10*time.Millisecond, nil)
	loop.Start()
	t.Cleanup(loop.Stop)
	svc, _ := newService(t)
	return routerFor(svc, loop)
}

func routerFor(svc *Service, loop scene.Runner) *gin.Engine {
	gin.SetMode(gin.TestMode)
	hosts := hostsStub{"host": true}
	h := NewHandler(svc, NewQueues(svc, namesStub{"bob": "Bob"}, 3, 16, time.Minute), hosts, loop)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.ContextWallet, c.GetHeader("X-Wallet"))
		c.Set(middleware.ContextSessionID, c.GetHeader("X-Session"))
		c.Next()
	})
	r.POST("/qa", h.CreateSession)
	r.POST("/qa/:id/questions", h.Submit)
	r.GET("/qa/queue", h.Queue)
	r.POST("/questions/:id/upvote", h.Upvote)
	r.POST("/questions/:id/approve", h.Approve)
	r.DELETE("/questions/:id", h.Remove)
	return r
}

func call(r *gin.Engine, method, path, wallet, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Wallet", wallet)
	req.Header.Set("X-Session", "sess-"+wallet)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var body struct {
		Data T `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body.Data
}

func TestHandler_ModeratedFlow(t *testing.T) {
	r := newRouter(t)

	w := call(r, http.MethodPost, "/qa", "host", `{"title":"Town hall","moderated":true}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	session := decode[models.QASession](t, w)

	w = call(r, http.MethodPost, "/qa/"+session.ID+"/questions", "bob", `{"text":"When is launch?"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	q := decode[models.Question](t, w)
	assert.Equal(t, models.QuestionToReview, q.State)

	w = call(r, http.MethodPost, "/questions/"+q.ID+"/upvote", "carol", "")
	assert.False(t, decode[struct{ Applied bool }](t, w).Applied, "questions in review cannot be voted")

	w = call(r, http.MethodPost, "/questions/"+q.ID+"/approve", "bob", "")
	assert.False(t, decode[struct{ Applied bool }](t, w).Applied)
	w = call(r, http.MethodPost, "/questions/"+q.ID+"/approve", "host", "")
	assert.True(t, decode[struct{ Applied bool }](t, w).Applied)

	w = call(r, http.MethodGet, "/qa/queue?tab=new", "carol", "")
	require.Equal(t, http.StatusOK, w.Code)
	page := decode[Page](t, w)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "When is launch?", page.Items[0].Text)
	assert.Equal(t, 1, page.Counts.New)
}

func TestHandler_HostSkipsReview(t *testing.T) {
	r := newRouter(t)
	w := call(r, http.MethodPost, "/qa", "host", `{"title":"Town hall","moderated":true}`)
	session := decode[models.QASession](t, w)

	w = call(r, http.MethodPost, "/qa/"+session.ID+"/questions", "host", `{"text":"Warm-up question"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, models.QuestionNew, decode[models.Question](t, w).State)
}

func TestHandler_RejectedInput(t *testing.T) {
	r := newRouter(t)

	w := call(r, http.MethodPost, "/qa", "host", `{"title":"`+strings.Repeat("x", 51)+`"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = call(r, http.MethodPost, "/qa/missing/questions", "bob", `{"text":"Anyone?"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[struct{ Applied bool }](t, w).Applied)

	w = call(r, http.MethodGet, "/qa/queue?page=-1", "bob", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_AbandonedUpvoteNeverApplies(t *testing.T) {
	svc, _ := newService(t)
	st := mustSession(t, svc, false, false)
	q := mustSubmit(t, svc, st.ID, "Roadmap?", "bob", false)

	loop := scene.NewLoop(10*time.Millisecond, nil)
	r := routerFor(svc, loop)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/questions/"+q.ID+"/upvote", nil).WithContext(ctx)
	req.Header.Set("X-Wallet", "alice")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	loop.Step(0)
	got, _, err := svc.Question(context.Background(), q.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Votes)

	loop.Start()
	t.Cleanup(loop.Stop)
	w = call(r, http.MethodPost, "/questions/"+q.ID+"/upvote", "mallory", "")
	require.True(t, decode[struct{ Applied bool }](t, w).Applied)

	loop.Stop()
	got, _, err = svc.Question(context.Background(), q.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"mallory"}, got.Votes)
}

package polls

import (
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

func newRouter(t *testing.T) (*gin.Engine, *pointerStub) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	loop := scene.NewLoop(10*time.Millisecond, nil)
	loop.Start()
	t.Cleanup(loop.Stop)

	svc, ptr := newService(t)
	h := NewHandler(svc, loop)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.ContextWallet, c.GetHeader("X-Wallet"))
		c.Set(middleware.ContextSessionID, "sess-"+c.GetHeader("X-Wallet"))
		c.Next()
	})
	r.POST("/polls", h.Create)
	r.POST("/polls/:id/vote", h.Vote)
	return r, ptr
}

func post(r *gin.Engine, path, wallet, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Wallet", wallet)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHandler_CreateAndVote(t *testing.T) {
	r, ptr := newRouter(t)

	w := post(r, "/polls", "host", `{"question":"Lunch?","options":["Pizza","Sushi"]}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created struct {
		Data models.Poll `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, created.Data.ID, ptr.id)
	assert.Equal(t, models.ActivityPoll, ptr.typ)

	tests := []struct {
		name    string
		body    string
		code    int
		applied bool
	}{
		{"valid option", `{"option":"Sushi"}`, http.StatusOK, true},
		{"unknown option", `{"option":"Tacos"}`, http.StatusOK, false},
		{"missing option", `{}`, http.StatusBadRequest, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := post(r, "/polls/"+created.Data.ID+"/vote", "alice", tt.body)
			require.Equal(t, tt.code, w.Code)
			if tt.code != http.StatusOK {
				return
			}
			var out struct {
				Data struct {
					Applied bool `json:"applied"`
				} `json:"data"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
			assert.Equal(t, tt.applied, out.Data.Applied)
		})
	}
}

func TestHandler_CreateRejected(t *testing.T) {
	r, ptr := newRouter(t)
	w := post(r, "/polls", "host", `{"question":"Lunch?","options":["Pizza"]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Empty(t, ptr.id)
}

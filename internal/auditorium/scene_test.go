package auditorium

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-webinar/auditorium/config"
	"github.com/aura-webinar/auditorium/internal/activities"
	"github.com/aura-webinar/auditorium/internal/models"
	"github.com/aura-webinar/auditorium/internal/realtime"
	"github.com/aura-webinar/auditorium/internal/replica"
	"github.com/aura-webinar/auditorium/internal/scene"
)

func testConfig() config.SceneConfig {
	return config.SceneConfig{
		ID:               "test",
		TickInterval:     10 * time.Millisecond,
		ZonePollDuration: 500 * time.Millisecond,
		DoorsDelay:       20 * time.Millisecond,
		QueuePageSize:    3,
		IdentityTimeout:  time.Second,
		RelayRetention:   time.Minute,
		VoteMemorySize:   100,
		VoteMemoryTTL:    time.Hour,
		StatusClearAfter: 50 * time.Millisecond,
		DefaultLogoURL:   "https://example.com/logo.png",
	}
}

type fixture struct {
	scene *Scene
	srv   *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	hub := realtime.NewHub(nil, nil)
	s := New(testConfig(), config.LimitsConfig(activities.DefaultLimits()), Deps{
		Store: replica.NewMemoryStore(),
		Hub:   hub,
	})
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(s.Stop)

	r := gin.New()
	r.GET("/ws", realtime.ServeWs(hub, nil, func(token string) (realtime.Identity, error) {
		return realtime.Identity{User: token, Name: strings.ToUpper(token), SessionID: "s-" + token}, nil
	}))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &fixture{scene: s, srv: srv}
}

func (f *fixture) connect(t *testing.T, user string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws?token=" + user
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.Eventually(t, func() bool {
		_, ok := f.player(user)
		return ok
	}, 2*time.Second, 10*time.Millisecond)
	return conn
}

func (f *fixture) player(user string) (p models.Player, ok bool) {
	_ = f.scene.Loop.Do(context.Background(), func() error {
		p, ok = f.scene.Players.Player(context.Background(), user)
		return nil
	})
	return p, ok
}

func (f *fixture) do(t *testing.T, fn func(ctx context.Context) error) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.scene.Loop.Do(ctx, func() error { return fn(ctx) }))
}

// waitFor reads until event arrives and returns its data.
func waitFor(t *testing.T, conn *websocket.Conn, event string) json.RawMessage {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		require.NoError(t, conn.SetReadDeadline(deadline))
		var msg realtime.WSMessage
		require.NoError(t, conn.ReadJSON(&msg), "waiting for %s", event)
		if msg.Event == event {
			return msg.Data
		}
	}
}

func TestScene_PollLifecycleIsPushed(t *testing.T) {
	f := newFixture(t)
	conn := f.connect(t, "alice")

	var pollID string
	f.do(t, func(ctx context.Context) error {
		p, err := f.scene.Polls.Create(ctx, "alice", "Lunch?", []string{"Pizza", "Sushi"}, false)
		if p != nil {
			pollID = p.ID
		}
		return err
	})
	require.NotEmpty(t, pollID)

	var view activities.View
	for view.ID != pollID {
		require.NoError(t, json.Unmarshal(waitFor(t, conn, EventActivityChanged), &view))
	}
	assert.Equal(t, "poll", view.Type)
	assert.Equal(t, "Lunch?", view.Title)

	f.do(t, func(ctx context.Context) error { return f.scene.Registry.CloseCurrent(ctx) })
	var closed activities.View
	require.NoError(t, json.Unmarshal(waitFor(t, conn, EventActivityClosed), &closed))
	assert.Equal(t, pollID, closed.ID)
	assert.True(t, closed.Closed)
}

func TestScene_PositionMessageMovesPlayer(t *testing.T) {
	f := newFixture(t)
	conn := f.connect(t, "bob")

	require.NoError(t, conn.WriteJSON(map[string]any{"event": EventPosition, "data": models.Vec3{X: 2, Y: 0, Z: 3}}))
	assert.Eventually(t, func() bool {
		p, ok := f.player("bob")
		return ok && p.Position != nil && p.Position.X == 2 && p.Position.Z == 3
	}, 2*time.Second, 10*time.Millisecond)
}

func TestScene_BanKicksConnectedPlayer(t *testing.T) {
	f := newFixture(t)
	f.connect(t, "alice")
	bob := f.connect(t, "bob")

	f.do(t, func(ctx context.Context) error {
		_, err := f.scene.Players.ClaimHost(ctx, "alice")
		return err
	})
	ok, err := f.scene.IsHost(context.Background(), "ALICE")
	require.NoError(t, err)
	require.True(t, ok)

	f.do(t, func(ctx context.Context) error {
		_, err := f.scene.Players.SetBan(ctx, "alice", "bob", true)
		return err
	})
	var to models.Vec3
	require.NoError(t, json.Unmarshal(waitFor(t, bob, EventRelocate), &to))
	jail, ok := f.scene.Marks.Lookup(scene.LandmarkJail)
	require.True(t, ok)
	assert.Equal(t, jail, to)
	waitFor(t, bob, EventKicked)
}

func TestScene_ShowResultsReachesEveryone(t *testing.T) {
	f := newFixture(t)
	conn := f.connect(t, "carol")

	f.do(t, func(ctx context.Context) error {
		_, err := f.scene.Surveys.Create(ctx, "host", "Rate the talk", models.SurveyIconStar, 5, true)
		return err
	})
	waitFor(t, conn, EventSurveyOpen)

	f.scene.Relay.Publish(models.MessageShowCurrentActivityResults, struct{}{})
	var res ResultsPayload
	require.NoError(t, json.Unmarshal(waitFor(t, conn, EventShowResults), &res))
	assert.Equal(t, "survey", res.Activity.Type)
	assert.Equal(t, "Rate the talk", res.Tally.Question)
}

func TestScene_LeaveDropsPlayer(t *testing.T) {
	f := newFixture(t)
	conn := f.connect(t, "dave")
	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool {
		_, ok := f.player("dave")
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
}

package zonepolls

import (
	"context"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-webinar/auditorium/internal/activities"
	"github.com/aura-webinar/auditorium/internal/models"
	"github.com/aura-webinar/auditorium/internal/players"
	"github.com/aura-webinar/auditorium/internal/replica"
	"github.com/aura-webinar/auditorium/internal/scene"
)

const tick = 100 * time.Millisecond

type publisherStub struct{ kinds []models.MessageKind }

func (p *publisherStub) Publish(kind models.MessageKind, _ any) { p.kinds = append(p.kinds, kind) }

func (p *publisherStub) count(kind models.MessageKind) int {
	return lo.Count(p.kinds, kind)
}

type overlayStub struct {
	shown    string
	counts   [][]int
	hidden   int
	duration time.Duration
}

func (o *overlayStub) ShowQuestion(q string, _ []string, d time.Duration) { o.shown, o.duration = q, d }
func (o *overlayStub) UpdateCounts(c []int)                              { o.counts = append(o.counts, c) }
func (o *overlayStub) Hide()                                             { o.hidden++ }

type fixture struct {
	ctx     context.Context
	loop    *scene.Loop
	svc     *Service
	reg     *activities.Registry
	dir     *players.Directory
	doors   *Doors
	overlay *overlayStub
	pub     *publisherStub
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := replica.NewMemoryStore()
	loop := scene.NewLoop(tick, nil)
	pub := &publisherStub{}
	reg := activities.NewRegistry(store, loop, pub, nil, nil)
	svc := NewService(store, reg, pub, activities.DefaultLimits(), nil)
	reg.Register(svc)
	dir := players.NewDirectory(store, loop, time.Second, nil)
	doors := NewDoors(store, nil)
	overlay := &overlayStub{}
	sys := NewSystem(svc, reg, dir, scene.DefaultLandmarks(), doors, overlay, loop,
		SystemConfig{Duration: time.Second, DoorsDelay: 300 * time.Millisecond}, nil)
	stop := sys.Setup(ctx)
	t.Cleanup(stop)
	return &fixture{ctx: ctx, loop: loop, svc: svc, reg: reg, dir: dir, doors: doors, overlay: overlay, pub: pub}
}

func (f *fixture) step(n int) {
	for i := 0; i < n; i++ {
		f.loop.Step(tick)
	}
}

func (f *fixture) counts(t *testing.T, id string) []int {
	t.Helper()
	zp, ok, err := f.svc.Get(f.ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	return zp.ZoneCounts
}

func zoneCenter(t *testing.T, n int) models.Vec3 {
	t.Helper()
	p, ok := scene.DefaultLandmarks().Lookup(scene.ZoneLandmark(n))
	require.True(t, ok)
	return p
}

func TestCreate_RelaysUI(t *testing.T) {
	f := newFixture(t)
	zp, err := f.svc.Create(f.ctx, "host", "Left or right?", []string{"Left", "Right"})
	require.NoError(t, err)
	require.NotNil(t, zp)
	assert.Equal(t, zp.ID, zp.PollID)
	assert.Equal(t, []int{0, 0}, zp.ZoneCounts)
	assert.Equal(t, []models.MessageKind{models.MessageCreateZonePollUI}, f.pub.kinds)

	none, err := f.svc.Create(f.ctx, "host", "", []string{"Left", "Right"})
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestSystem_PlayerMovesBetweenZones(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.dir.Enter(f.ctx, "u1", "Alice"))
	require.NoError(t, f.dir.UpdatePosition(f.ctx, "u1", zoneCenter(t, 1)))

	zp, err := f.svc.Create(f.ctx, "host", "Left or right?", []string{"Left", "Right"})
	require.NoError(t, err)

	f.step(1)
	assert.Equal(t, "Left or right?", f.overlay.shown)
	for i := 0; i < 3; i++ {
		assert.Equal(t, []int{1, 0}, f.counts(t, zp.ID))
		f.step(1)
	}

	require.NoError(t, f.dir.UpdatePosition(f.ctx, "u1", zoneCenter(t, 2)))
	f.step(1)
	assert.Equal(t, []int{0, 1}, f.counts(t, zp.ID))
	assert.Equal(t, [][]int{{1, 0}, {0, 1}}, f.overlay.counts, "overlay updated only on change")

	doors, err := f.doors.State(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, [4]bool{true, true, false, false}, doors.Open)
}

func TestSystem_CountConservation(t *testing.T) {
	f := newFixture(t)
	spots := []models.Vec3{zoneCenter(t, 1), zoneCenter(t, 1), zoneCenter(t, 3), {X: 50, Z: 50}}
	for i, p := range spots {
		id := string(rune('a' + i))
		require.NoError(t, f.dir.Enter(f.ctx, id, id))
		require.NoError(t, f.dir.UpdatePosition(f.ctx, id, p))
	}
	zp, err := f.svc.Create(f.ctx, "host", "Pick one", []string{"A", "B", "C"})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		f.step(1)
		counts := f.counts(t, zp.ID)
		assert.Len(t, counts, 3)
		assert.LessOrEqual(t, lo.Sum(counts), len(spots))
	}
	assert.Equal(t, []int{2, 0, 1}, f.counts(t, zp.ID))
}

func TestSystem_TimerClosesOnce(t *testing.T) {
	f := newFixture(t)
	zp, err := f.svc.Create(f.ctx, "host", "Left or right?", []string{"Left", "Right"})
	require.NoError(t, err)

	f.step(15)
	got, _, _ := f.svc.Get(f.ctx, zp.ID)
	assert.True(t, got.Closed)
	assert.Equal(t, 1, f.pub.count(models.MessageCurrentActivityClosed))
	assert.Equal(t, 1, f.overlay.hidden)

	doors, err := f.doors.State(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, [4]bool{}, doors.Open)

	f.step(20)
	assert.Equal(t, 1, f.pub.count(models.MessageCurrentActivityClosed))
	assert.Equal(t, 1, f.overlay.hidden)
}

func TestSystem_HostCloseShortCircuitsTimer(t *testing.T) {
	f := newFixture(t)
	zp, err := f.svc.Create(f.ctx, "host", "Left or right?", []string{"Left", "Right"})
	require.NoError(t, err)
	f.step(2)

	require.NoError(t, f.reg.CloseCurrent(f.ctx))
	f.step(1)
	assert.Equal(t, 1, f.overlay.hidden)

	f.step(20)
	got, _, _ := f.svc.Get(f.ctx, zp.ID)
	assert.True(t, got.Closed)
	assert.Equal(t, 1, f.pub.count(models.MessageCurrentActivityClosed))
	assert.Equal(t, 1, f.overlay.hidden)
}

func TestTally_FromCounts(t *testing.T) {
	tally := Tally(models.ZonePoll{Question: "q", Options: []string{"A", "B"}, ZoneCounts: []int{1, 2}})
	assert.Equal(t, 3, tally.Total)
	assert.Equal(t, 33, tally.Options[0].Percentage)
	assert.Equal(t, 67, tally.Options[1].Percentage)
}

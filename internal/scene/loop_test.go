package scene

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoop_PostRunsOnNextStep(t *testing.T) {
	l := NewLoop(time.Millisecond, nil)
	var order []string

	l.Post(func() {
		order = append(order, "a")
		l.Post(func() { order = append(order, "c") })
	})
	l.AddSystem("sys", func(time.Duration) { order = append(order, "sys") })

	l.Step(time.Millisecond)
	assert.Equal(t, []string{"a", "sys"}, order)

	l.Step(time.Millisecond)
	assert.Equal(t, []string{"a", "sys", "c", "sys"}, order)
}

func TestLoop_RemoveSystemMidTick(t *testing.T) {
	l := NewLoop(time.Millisecond, nil)
	calls := 0
	var removeSecond func()
	l.AddSystem("first", func(time.Duration) { removeSecond() })
	removeSecond = l.AddSystem("second", func(time.Duration) { calls++ })

	l.Step(time.Millisecond)
	l.Step(time.Millisecond)
	assert.Equal(t, 0, calls)
}

func TestLoop_AfterCountsTicks(t *testing.T) {
	l := NewLoop(100*time.Millisecond, nil)
	fired := 0
	l.After(300*time.Millisecond, func() { fired++ })

	l.Step(100 * time.Millisecond)
	l.Step(100 * time.Millisecond)
	assert.Equal(t, 0, fired)
	l.Step(100 * time.Millisecond)
	assert.Equal(t, 1, fired)
	l.Step(100 * time.Millisecond)
	assert.Equal(t, 1, fired)
}

func TestLoop_PanicIsContained(t *testing.T) {
	l := NewLoop(time.Millisecond, nil)
	ran := false
	l.Post(func() { panic("boom") })
	l.Post(func() { ran = true })
	assert.NotPanics(t, func() { l.Step(time.Millisecond) })
	assert.True(t, ran)
}

func TestLoop_DoWithRunningLoop(t *testing.T) {
	l := NewLoop(5*time.Millisecond, nil)
	l.Start()
	defer l.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	want := errors.New("from loop")
	err := l.Do(ctx, func() error { return want })
	assert.ErrorIs(t, err, want)
}

func TestLoop_DoHonoursContext(t *testing.T) {
	l := NewLoop(time.Hour, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := l.Do(ctx, func() error { return nil })
	require.ErrorIs(t, err, context.Canceled)
}

func TestLoop_DoSkipsAbandonedTask(t *testing.T) {
	l := NewLoop(time.Hour, nil)
	ran := false

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Do(ctx, func() error { ran = true; return nil }) }()

	// wait until the task is queued
	require.Eventually(t, func() bool {
		l.mu.Lock()
		defer l.mu.Unlock()
		return len(l.inbox) == 1
	}, time.Second, time.Millisecond)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	l.Step(time.Millisecond)
	assert.False(t, ran)
}

func TestLoop_DoCancelledBeforePostNeverQueues(t *testing.T) {
	l := NewLoop(time.Hour, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ran := false
	require.ErrorIs(t, l.Do(ctx, func() error { ran = true; return nil }), context.Canceled)
	l.Step(time.Millisecond)
	assert.False(t, ran)
	assert.Empty(t, l.inbox)
}

func TestLoop_DoWaitsForStartedTask(t *testing.T) {
	l := NewLoop(time.Hour, nil)
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	release := make(chan struct{})
	finished := false

	done := make(chan error, 1)
	go func() {
		done <- l.Do(ctx, func() error {
			close(started)
			<-release
			finished = true
			return nil
		})
	}()
	require.Eventually(t, func() bool {
		l.mu.Lock()
		defer l.mu.Unlock()
		return len(l.inbox) == 1
	}, time.Second, time.Millisecond)

	go l.Step(time.Millisecond)
	<-started
	cancel()
	close(release)

	require.NoError(t, <-done)
	assert.True(t, finished)
}

func TestLandmarks_Anchor(t *testing.T) {
	l := DefaultLandmarks()

	p, ok := l.Lookup(ZoneLandmark(3))
	require.True(t, ok)
	assert.InDelta(t, 10.54, p.X, 1e-9)

	_, err := l.Anchor(LandmarkTeamHub)
	assert.ErrorIs(t, err, ErrAnchorMissing)

	l.Set(LandmarkTeamHub, p)
	got, err := l.Anchor(LandmarkTeamHub)
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

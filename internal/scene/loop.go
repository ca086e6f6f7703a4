// Package scene provides the single-threaded tick loop every activity runs on,
// and the registry of named positions in the auditorium.
package scene

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// System is called once per tick with the time since the previous tick.
type System func(dt time.Duration)

// Scheduler defers work to the next tick of the loop.
type Scheduler interface {
	Post(fn func())
}

// Runner runs fn on the loop and waits for its result.
type Runner interface {
	Do(ctx context.Context, fn func() error) error
}

type systemEntry struct {
	name    string
	fn      System
	removed bool
}

// Loop serializes all scene work onto one goroutine. Work posted from other
// goroutines is drained at the start of each tick, before systems run.
type Loop struct {
	interval time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	inbox   []func()
	systems []*systemEntry
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewLoop creates a loop ticking every interval.
func NewLoop(interval time.Duration, logger *zap.Logger) *Loop {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loop{interval: interval, logger: logger}
}

// Interval returns the tick period.
func (l *Loop) Interval() time.Duration { return l.interval }

// Post queues fn for the next tick. Safe from any goroutine.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	l.inbox = append(l.inbox, fn)
	l.mu.Unlock()
}

const (
	taskPending int32 = iota
	taskRunning
	taskAbandoned
)

// Do runs fn on the loop and waits for its result. If ctx is done before the
// loop picks fn up, fn never runs and ctx.Err() is returned. Once fn has
// started, Do waits for it regardless of ctx.
func (l *Loop) Do(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var state atomic.Int32
	errc := make(chan error, 1)
	l.Post(func() {
		if ctx.Err() != nil || !state.CompareAndSwap(taskPending, taskRunning) {
			return
		}
		errc <- fn()
	})
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		if state.CompareAndSwap(taskPending, taskAbandoned) {
			return ctx.Err()
		}
		return <-errc
	}
}

// After runs fn on the loop once at least d has elapsed, counted in ticks.
// The returned func cancels it.
func (l *Loop) After(d time.Duration, fn func()) (cancel func()) {
	var elapsed time.Duration
	var remove func()
	remove = l.AddSystem("timer", func(dt time.Duration) {
		elapsed += dt
		if elapsed >= d {
			remove()
			fn()
		}
	})
	return remove
}

// AddSystem registers a per-tick system. The returned func removes it; a
// system removed mid-tick does not run again.
func (l *Loop) AddSystem(name string, fn System) (remove func()) {
	e := &systemEntry{name: name, fn: fn}
	l.mu.Lock()
	l.systems = append(l.systems, e)
	l.mu.Unlock()
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		e.removed = true
		for i, s := range l.systems {
			if s == e {
				l.systems = append(l.systems[:i:i], l.systems[i+1:]...)
				break
			}
		}
	}
}

// Step runs one tick: queued work first, then every system in registration order.
func (l *Loop) Step(dt time.Duration) {
	l.mu.Lock()
	inbox := l.inbox
	l.inbox = nil
	systems := make([]*systemEntry, len(l.systems))
	copy(systems, l.systems)
	l.mu.Unlock()

	for _, fn := range inbox {
		l.safely("task", func() { fn() })
	}
	for _, s := range systems {
		l.mu.Lock()
		removed := s.removed
		l.mu.Unlock()
		if removed {
			continue
		}
		l.safely(s.name, func() { s.fn(dt) })
	}
}

func (l *Loop) safely(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("scene task panicked", zap.String("name", name), zap.String("panic", fmt.Sprint(r)))
		}
	}()
	fn()
}

// Start runs the loop in a goroutine until Stop is called.
func (l *Loop) Start() {
	l.mu.Lock()
	if l.cancel != nil {
		l.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.done = make(chan struct{})
	l.mu.Unlock()

	go l.Run(ctx)
	l.logger.Info("scene loop started", zap.Duration("interval", l.interval))
}

// Stop stops a loop started with Start and waits for the current tick.
func (l *Loop) Stop() {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.cancel = nil
	l.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	l.logger.Info("scene loop stopped")
}

// Run ticks until ctx is done.
func (l *Loop) Run(ctx context.Context) {
	l.mu.Lock()
	done := l.done
	l.mu.Unlock()
	if done != nil {
		defer close(done)
	}

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			l.Step(now.Sub(last))
			last = now
		}
	}
}

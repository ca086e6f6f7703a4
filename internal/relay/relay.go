// Package relay carries one-shot scene events between instances through a
// replicated append-only message log.
package relay

import (
	"context"
	"encoding/json"
	"slices"
	"sync"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/aura-webinar/auditorium/internal/models"
	"github.com/aura-webinar/auditorium/internal/replica"
	"github.com/aura-webinar/auditorium/internal/scene"
)

const busRecordID = "bus"

// HandlerFunc consumes the payload of one message kind. It runs on the scene loop.
type HandlerFunc func(ctx context.Context, payload json.RawMessage)

// Relay publishes and consumes messages. Consumption only sees messages newer
// than the watermark, which starts at construction time, so a late joiner does
// not replay history.
type Relay struct {
	bus    *replica.Table[models.MessageBus]
	loop   scene.Scheduler
	logger *zap.Logger
	now    func() time.Time

	handlers  map[models.MessageKind]HandlerFunc
	watermark int64

	mu   sync.Mutex
	last int64
}

// New creates a relay over the replicated store.
func New(store replica.Store, loop scene.Scheduler, logger *zap.Logger) *Relay {
	return newRelay(store, loop, logger, time.Now)
}

func newRelay(store replica.Store, loop scene.Scheduler, logger *zap.Logger, now func() time.Time) *Relay {
	if logger == nil {
		logger = zap.NewNop()
	}
	start := now().UnixMilli()
	return &Relay{
		bus:       replica.NewTable[models.MessageBus](store, replica.ChannelMessageBus),
		loop:      loop,
		logger:    logger,
		now:       now,
		handlers:  make(map[models.MessageKind]HandlerFunc),
		watermark: start,
		last:      start,
	}
}

// Handle registers the consumer of kind. Kinds without a handler are skipped.
func (r *Relay) Handle(kind models.MessageKind, fn HandlerFunc) {
	r.handlers[kind] = fn
}

// Publish appends a message on the next tick, so a handler that publishes
// does so after the current batch has been consumed. Safe from any goroutine.
func (r *Relay) Publish(kind models.MessageKind, payload any) {
	value, err := json.Marshal(payload)
	if err != nil {
		r.logger.Error("encode relay payload failed", zap.String("kind", string(kind)), zap.Error(err))
		return
	}
	r.loop.Post(func() {
		msg := models.RelayMessage{
			Content:   models.MessageContent{Case: kind, Value: value},
			Timestamp: r.nextTimestamp(),
		}
		_, err := r.bus.Mutate(context.Background(), busRecordID, func(b *models.MessageBus, _ bool) bool {
			b.Messages = append(b.Messages, msg)
			return true
		})
		if err != nil {
			r.logger.Error("publish relay message failed", zap.String("kind", string(kind)), zap.Error(err))
		}
	})
}

// nextTimestamp is wall-clock milliseconds, bumped so that two messages from
// this publisher never share a timestamp.
func (r *Relay) nextTimestamp() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	ts := r.now().UnixMilli()
	if ts <= r.last {
		ts = r.last + 1
	}
	r.last = ts
	return ts
}

// Start subscribes to the message log. The returned func stops consumption.
func (r *Relay) Start(ctx context.Context) (stop func()) {
	return r.bus.OnChange(func(_ string, b *models.MessageBus) {
		if b == nil {
			return
		}
		msgs := b.Messages
		r.loop.Post(func() { r.consume(ctx, msgs) })
	})
}

// consume dispatches messages newer than the watermark in timestamp order.
func (r *Relay) consume(ctx context.Context, msgs []models.RelayMessage) {
	fresh := lo.Filter(msgs, func(m models.RelayMessage, _ int) bool { return m.Timestamp > r.watermark })
	slices.SortStableFunc(fresh, func(a, b models.RelayMessage) int {
		switch {
		case a.Timestamp < b.Timestamp:
			return -1
		case a.Timestamp > b.Timestamp:
			return 1
		}
		return 0
	})
	for _, m := range fresh {
		if m.Timestamp <= r.watermark {
			continue
		}
		r.watermark = m.Timestamp
		fn, ok := r.handlers[m.Content.Case]
		if !ok {
			r.logger.Debug("unhandled relay message", zap.String("kind", string(m.Content.Case)))
			continue
		}
		fn(ctx, m.Content.Value)
	}
}

// Watermark returns the timestamp of the last consumed message.
func (r *Relay) Watermark() int64 { return r.watermark }

// Compact drops messages older than retention and returns how many went.
// It must run on the scene loop.
func (r *Relay) Compact(ctx context.Context, retention time.Duration) (int, error) {
	cutoff := r.now().Add(-retention).UnixMilli()
	removed := 0
	_, err := r.bus.Mutate(ctx, busRecordID, func(b *models.MessageBus, exists bool) bool {
		if !exists {
			return false
		}
		kept := lo.Filter(b.Messages, func(m models.RelayMessage, _ int) bool { return m.Timestamp >= cutoff })
		removed = len(b.Messages) - len(kept)
		if removed == 0 {
			return false
		}
		b.Messages = kept
		return true
	})
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		r.logger.Info("relay compacted", zap.Int("removed", removed))
	}
	return removed, nil
}

// Package sessionlog records when attendees enter and leave the scene.
package sessionlog

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/aura-webinar/auditorium/internal/models"
)

const writeTimeout = 5 * time.Second

// Writer persists attendance events.
type Writer interface {
	LogJoin(ctx context.Context, sceneID, wallet, name string) error
	LogLeave(ctx context.Context, sceneID, wallet string) error
}

type event struct {
	join   bool
	player models.Player
}

// Recorder takes enter and leave events from the scene loop and writes them
// in order on its own goroutine. Events are dropped when the buffer is full.
type Recorder struct {
	sceneID string
	writer  Writer
	events  chan event
	logger  *zap.Logger
}

// NewRecorder creates a recorder buffering up to size events.
func NewRecorder(sceneID string, writer Writer, size int, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if size <= 0 {
		size = 256
	}
	return &Recorder{sceneID: sceneID, writer: writer, events: make(chan event, size), logger: logger}
}

// Joined queues a join row.
func (r *Recorder) Joined(p models.Player) { r.push(event{join: true, player: p}) }

// Left queues the end of the player's open span.
func (r *Recorder) Left(p models.Player) { r.push(event{player: p}) }

func (r *Recorder) push(e event) {
	select {
	case r.events <- e:
	default:
		r.logger.Warn("session log buffer full, dropping event", zap.String("user", e.player.Wallet), zap.Bool("join", e.join))
	}
}

// Run writes queued events until ctx is done.
func (r *Recorder) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-r.events:
			r.write(ctx, e)
		}
	}
}

func (r *Recorder) write(ctx context.Context, e event) {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	var err error
	if e.join {
		err = r.writer.LogJoin(ctx, r.sceneID, e.player.Wallet, e.player.Name)
	} else {
		err = r.writer.LogLeave(ctx, r.sceneID, e.player.Wallet)
	}
	if err != nil {
		r.logger.Warn("session log write failed", zap.String("user", e.player.Wallet), zap.Bool("join", e.join), zap.Error(err))
	}
}

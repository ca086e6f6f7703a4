// Package history keeps the results of closed activities.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/aura-webinar/auditorium/internal/activities"
	"github.com/aura-webinar/auditorium/internal/models"
)

// Enqueuer hands a result to the background worker.
type Enqueuer interface {
	EnqueueArchive(ctx context.Context, res models.ActivityResult) error
}

// Archiver turns closed activities into archive jobs.
type Archiver struct {
	sceneID string
	queue   Enqueuer
	logger  *zap.Logger
	now     func() time.Time
}

// NewArchiver creates an archiver for one scene.
func NewArchiver(sceneID string, queue Enqueuer, logger *zap.Logger) *Archiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archiver{sceneID: sceneID, queue: queue, logger: logger, now: time.Now}
}

// Archive implements activities.Archiver.
func (a *Archiver) Archive(ctx context.Context, act activities.Activity) error {
	res, err := a.result(act)
	if err != nil {
		return err
	}
	if err := a.queue.EnqueueArchive(ctx, res); err != nil {
		return fmt.Errorf("enqueue archive: %w", err)
	}
	a.logger.Info("activity archived", zap.String("activity_id", res.ActivityID), zap.String("type", res.Type.String()))
	return nil
}

func (a *Archiver) result(act activities.Activity) (models.ActivityResult, error) {
	tally, err := json.Marshal(act.Tally())
	if err != nil {
		return models.ActivityResult{}, fmt.Errorf("encode tally: %w", err)
	}
	base := act.Base()
	return models.ActivityResult{
		ActivityID: base.ID,
		SceneID:    a.sceneID,
		Type:       act.Type(),
		Title:      act.Title(),
		CreatorID:  base.CreatorID,
		Tally:      tally,
		ClosedAt:   a.now().UTC(),
	}, nil
}

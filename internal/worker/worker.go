// Package worker runs the scene background jobs: archiving closed activities
// and mirroring logos into the scene bucket.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/aura-webinar/auditorium/internal/models"
	"github.com/aura-webinar/auditorium/pkg/queue"
	"github.com/aura-webinar/auditorium/pkg/storage"
)

const dequeueTimeout = 5 * time.Second

// ResultStore persists archived activities.
type ResultStore interface {
	Save(ctx context.Context, res models.ActivityResult) error
}

// ObjectStore is the bucket logos are copied to.
type ObjectStore interface {
	LogosBucket() string
	PublicObjectURL(bucket, key string) string
	Exists(ctx context.Context, bucket, key string) (bool, error)
	Upload(ctx context.Context, bucket, key, contentType string, body io.Reader) (string, error)
}

// LogoTargets points a scene at its mirrored logo.
type LogoTargets interface {
	ReplaceLogo(ctx context.Context, sceneID, original, mirrored string) (bool, error)
}

// Jobs is the queue the processor consumes.
type Jobs interface {
	Dequeue(ctx context.Context, timeout time.Duration) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// Processor executes queued jobs. objects and logos may be nil when logo
// mirroring is disabled; results may be nil without a database.
type Processor struct {
	jobs    Jobs
	results ResultStore
	objects ObjectStore
	logos   LogoTargets
	client  *http.Client
	logger  *zap.Logger
	backoff time.Duration
	wait    time.Duration
}

// NewProcessor creates a job processor.
func NewProcessor(jobs Jobs, results ResultStore, objects ObjectStore, logos LogoTargets, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		jobs:    jobs,
		results: results,
		objects: objects,
		logos:   logos,
		client:  &http.Client{Timeout: time.Minute},
		logger:  logger,
		backoff: queue.RetryBackoff,
		wait:    dequeueTimeout,
	}
}

// Process executes one job.
func (p *Processor) Process(ctx context.Context, job *queue.Job) error {
	switch job.Type {
	case queue.JobTypeActivityArchive:
		var res models.ActivityResult
		if err := json.Unmarshal(job.Payload, &res); err != nil {
			return fmt.Errorf("unmarshal payload: %w", err)
		}
		return p.archive(ctx, res)
	case queue.JobTypeLogoMirror:
		var payload queue.LogoMirrorPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("unmarshal payload: %w", err)
		}
		return p.mirrorLogo(ctx, payload)
	default:
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
}

func (p *Processor) archive(ctx context.Context, res models.ActivityResult) error {
	if p.results == nil {
		p.logger.Warn("no database, dropping archived activity", zap.String("activity_id", res.ActivityID))
		return nil
	}
	if err := p.results.Save(ctx, res); err != nil {
		return fmt.Errorf("save result: %w", err)
	}
	p.logger.Info("activity result saved", zap.String("activity_id", res.ActivityID), zap.String("scene_id", res.SceneID))
	return nil
}

func (p *Processor) mirrorLogo(ctx context.Context, payload queue.LogoMirrorPayload) error {
	if p.objects == nil || p.logos == nil {
		p.logger.Warn("logo mirroring disabled, skipping job", zap.String("url", payload.URL))
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, payload.URL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download status: %d", resp.StatusCode)
	}
	contentType := resp.Header.Get("Content-Type")
	ext, ok := storage.LogoExtension(contentType)
	if !ok {
		// Leave the original URL in place.
		p.logger.Warn("logo no longer a supported image", zap.String("url", payload.URL), zap.String("content_type", contentType))
		return nil
	}
	if resp.ContentLength > storage.MaxLogoSize {
		p.logger.Warn("logo too large to mirror", zap.String("url", payload.URL), zap.Int64("size", resp.ContentLength))
		return nil
	}

	bucket := p.objects.LogosBucket()
	key := storage.LogoKey(payload.SceneID, payload.URL, ext)
	exists, err := p.objects.Exists(ctx, bucket, key)
	if err != nil {
		return err
	}
	mirrored := p.objects.PublicObjectURL(bucket, key)
	if !exists {
		mirrored, err = p.objects.Upload(ctx, bucket, key, contentType, io.LimitReader(resp.Body, storage.MaxLogoSize))
		if err != nil {
			return fmt.Errorf("s3 upload: %w", err)
		}
	}

	replaced, err := p.logos.ReplaceLogo(ctx, payload.SceneID, payload.URL, mirrored)
	if err != nil {
		return fmt.Errorf("update customization: %w", err)
	}
	p.logger.Info("logo mirrored", zap.String("scene_id", payload.SceneID), zap.String("s3_key", key), zap.Bool("applied", replaced))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *Processor) Run(ctx context.Context) {
	for {
		job, err := p.jobs.Dequeue(ctx, p.wait)
		if ctx.Err() != nil {
			p.logger.Info("worker stopping")
			return
		}
		if err != nil {
			p.logger.Warn("dequeue error", zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.jobs.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			p.sleep(ctx)
		}
	}
}

func (p *Processor) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(p.backoff):
	}
}

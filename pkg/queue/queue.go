package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/aura-webinar/auditorium/internal/models"
)

const (
	// QueueJobs is the Redis list key for scene background jobs.
	QueueJobs = "worker:auditorium"
	// QueueDLQ is the dead-letter queue for failed jobs after retries.
	QueueDLQ = "worker:auditorium:dlq"
	// MaxRetries is the number of times to retry a job before moving to DLQ.
	MaxRetries = 3
	// RetryBackoff is the delay between retries.
	RetryBackoff = 10 * time.Second
)

// JobType identifies the job kind.
type JobType string

const (
	JobTypeActivityArchive JobType = "activity_archive"
	JobTypeLogoMirror      JobType = "logo_mirror"
)

// LogoMirrorPayload asks the worker to copy a logo into the scene bucket.
type LogoMirrorPayload struct {
	SceneID string `json:"scene_id"`
	URL     string `json:"url"`
}

// Job is a generic job envelope.
type Job struct {
	ID        string          `json:"id"`
	Type      JobType         `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempt   int             `json:"attempt"`
	CreatedAt time.Time       `json:"created_at"`
}

// Queue enqueues and dequeues jobs via Redis.
type Queue struct {
	client *redis.Client
	key    string
	logger *zap.Logger
}

// NewQueue creates a new Redis-backed job queue on QueueJobs.
func NewQueue(client *redis.Client, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{client: client, key: QueueJobs, logger: logger}
}

// EnqueueArchive enqueues the result of a closed activity for Postgres.
func (q *Queue) EnqueueArchive(ctx context.Context, result models.ActivityResult) error {
	job, err := q.enqueue(ctx, JobTypeActivityArchive, result)
	if err != nil {
		return err
	}
	q.logger.Debug("enqueued archive job", zap.String("job_id", job.ID), zap.String("activity_id", result.ActivityID))
	return nil
}

// EnqueueLogoMirror enqueues a logo copy.
func (q *Queue) EnqueueLogoMirror(ctx context.Context, payload LogoMirrorPayload) error {
	job, err := q.enqueue(ctx, JobTypeLogoMirror, payload)
	if err != nil {
		return err
	}
	q.logger.Debug("enqueued logo mirror job", zap.String("job_id", job.ID), zap.String("url", payload.URL))
	return nil
}

func (q *Queue) enqueue(ctx context.Context, typ JobType, payload any) (*Job, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	job := &Job{
		ID:        uuid.New().String(),
		Type:      typ,
		Payload:   body,
		CreatedAt: time.Now(),
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.RPush(ctx, q.key, raw).Err(); err != nil {
		return nil, fmt.Errorf("rpush: %w", err)
	}
	return job, nil
}

// Dequeue waits up to timeout for a job. It returns a nil job when none
// arrived or the payload was not a job.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*Job, error) {
	result, err := q.client.BLPop(ctx, timeout, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(result) < 2 {
		return nil, nil
	}
	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		q.logger.Warn("invalid job payload", zap.String("raw", result[1]), zap.Error(err))
		return nil, nil
	}
	return &job, nil
}

// Retry re-enqueues a job with incremented attempt. If attempt >= MaxRetries, pushes to DLQ instead.
func (q *Queue) Retry(ctx context.Context, job *Job) error {
	job.Attempt++
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	if job.Attempt >= MaxRetries {
		if err := q.client.RPush(ctx, QueueDLQ, raw).Err(); err != nil {
			q.logger.Error("dlq push failed", zap.Error(err), zap.String("job_id", job.ID))
			return err
		}
		q.logger.Warn("job moved to DLQ", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
		return nil
	}
	if err := q.client.RPush(ctx, q.key, raw).Err(); err != nil {
		return err
	}
	q.logger.Info("job retried", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
	return nil
}

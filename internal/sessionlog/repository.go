package sessionlog

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aura-webinar/auditorium/internal/models"
)

// Repository handles attendee_session_logs.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a session log repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// LogJoin inserts a row when an attendee enters the scene.
func (r *Repository) LogJoin(ctx context.Context, sceneID, wallet, name string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO attendee_session_logs (scene_id, wallet, display_name, joined_at) VALUES ($1, $2, $3, NOW())`,
		sceneID, wallet, name)
	return err
}

// LogLeave closes the most recent open span of this attendee in the scene.
func (r *Repository) LogLeave(ctx context.Context, sceneID, wallet string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE attendee_session_logs u SET left_at = NOW(), watch_seconds = GREATEST(0, EXTRACT(EPOCH FROM (NOW() - u.joined_at))::BIGINT)
		 FROM (SELECT id FROM attendee_session_logs WHERE scene_id = $1 AND wallet = $2 AND left_at IS NULL ORDER BY joined_at DESC LIMIT 1) AS sub
		 WHERE u.id = sub.id`,
		sceneID, wallet)
	return err
}

// CloseOpen ends every span still open for the scene, used at startup after a
// crash left rows without a leave time.
func (r *Repository) CloseOpen(ctx context.Context, sceneID string) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE attendee_session_logs SET left_at = NOW(), watch_seconds = GREATEST(0, EXTRACT(EPOCH FROM (NOW() - joined_at))::BIGINT)
		 WHERE scene_id = $1 AND left_at IS NULL`,
		sceneID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// WatchTimeAggregates holds sum of watch_seconds and distinct attendee count for a scene.
type WatchTimeAggregates struct {
	TotalWatchSeconds int64 `json:"total_watch_seconds"`
	DistinctAttendees int   `json:"distinct_attendees"`
}

// GetWatchTimeAggregates returns total watch time and distinct attendees over finished spans.
func (r *Repository) GetWatchTimeAggregates(ctx context.Context, sceneID string) (*WatchTimeAggregates, error) {
	const q = `SELECT COALESCE(SUM(watch_seconds), 0), COUNT(DISTINCT wallet) FROM attendee_session_logs WHERE scene_id = $1 AND left_at IS NOT NULL`
	var agg WatchTimeAggregates
	if err := r.pool.QueryRow(ctx, q, sceneID).Scan(&agg.TotalWatchSeconds, &agg.DistinctAttendees); err != nil {
		return nil, err
	}
	return &agg, nil
}

// ListByScene returns the attendance spans of a scene, newest first.
func (r *Repository) ListByScene(ctx context.Context, sceneID string, limit int) ([]models.AttendeeSessionLog, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, scene_id, wallet, display_name, joined_at, left_at, watch_seconds
		 FROM attendee_session_logs WHERE scene_id = $1 ORDER BY joined_at DESC LIMIT $2`,
		sceneID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.AttendeeSessionLog
	for rows.Next() {
		var row models.AttendeeSessionLog
		if err := rows.Scan(&row.ID, &row.SceneID, &row.Wallet, &row.DisplayName, &row.JoinedAt, &row.LeftAt, &row.WatchSeconds); err != nil {
			return nil, err
		}
		list = append(list, row)
	}
	return list, rows.Err()
}

package history

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aura-webinar/auditorium/internal/models"
)

// Repository handles activity_results.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an activity history repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Save inserts a result, replacing an earlier archive of the same activity.
func (r *Repository) Save(ctx context.Context, res models.ActivityResult) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO activity_results (activity_id, scene_id, type, title, creator_id, tally, closed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (activity_id) DO UPDATE SET tally = EXCLUDED.tally, closed_at = EXCLUDED.closed_at`,
		res.ActivityID, res.SceneID, res.Type.String(), res.Title, res.CreatorID, []byte(res.Tally), res.ClosedAt)
	return err
}

// ListByScene returns the latest archived activities of a scene, newest first.
func (r *Repository) ListByScene(ctx context.Context, sceneID string, limit int) ([]models.ActivityResult, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT activity_id, scene_id, type, title, creator_id, tally, closed_at
		 FROM activity_results WHERE scene_id = $1 ORDER BY closed_at DESC LIMIT $2`,
		sceneID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.ActivityResult
	for rows.Next() {
		var (
			res   models.ActivityResult
			typ   string
			tally []byte
		)
		if err := rows.Scan(&res.ActivityID, &res.SceneID, &typ, &res.Title, &res.CreatorID, &tally, &res.ClosedAt); err != nil {
			return nil, err
		}
		res.Type = models.ParseActivityType(typ)
		res.Tally = tally
		list = append(list, res)
	}
	return list, rows.Err()
}

// TypeCount is the number of archived activities of one type and the
// responses they collected.
type TypeCount struct {
	Type      string `json:"type"`
	Count     int    `json:"count"`
	Responses int    `json:"responses"`
}

// CountByType groups the archived activities of a scene by type.
func (r *Repository) CountByType(ctx context.Context, sceneID string) ([]TypeCount, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT type, COUNT(*), COALESCE(SUM((tally->>'total')::INT), 0)
		 FROM activity_results WHERE scene_id = $1 GROUP BY type ORDER BY type`,
		sceneID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TypeCount
	for rows.Next() {
		var tc TypeCount
		if err := rows.Scan(&tc.Type, &tc.Count, &tc.Responses); err != nil {
			return nil, err
		}
		out = append(out, tc)
	}
	return out, rows.Err()
}

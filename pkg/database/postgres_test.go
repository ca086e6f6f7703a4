package database

import (
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolOptions_Apply(t *testing.T) {
	cfg, err := pgxpool.ParseConfig("postgres://u:p@localhost:5432/auditorium?sslmode=disable")
	require.NoError(t, err)

	PoolOptions{AppName: "auditorium-worker", MaxConns: 4, MinConns: 8, MaxConnIdleTime: time.Minute}.apply(cfg)

	assert.Equal(t, "auditorium-worker", cfg.ConnConfig.RuntimeParams["application_name"])
	assert.EqualValues(t, 4, cfg.MaxConns)
	assert.EqualValues(t, 0, cfg.MinConns, "min above max is ignored")
	assert.Equal(t, time.Minute, cfg.MaxConnIdleTime)
}

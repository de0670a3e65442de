package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PingTimeout bounds a single health ping.
const PingTimeout = 5 * time.Second

// PoolStats represents database connection pool statistics.
type PoolStats struct {
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireCount    int64  `json:"acquire_count"`
	AcquireDuration string `json:"acquire_duration"`
	Healthy         bool   `json:"healthy"`
}

// GetPoolStats returns connection pool statistics.
func GetPoolStats(pool *pgxpool.Pool) *PoolStats {
	return statsFrom(pool.Stat())
}

func statsFrom(stat *pgxpool.Stat) *PoolStats {
	return &PoolStats{
		TotalConns:      stat.TotalConns(),
		IdleConns:       stat.IdleConns(),
		AcquiredConns:   stat.AcquiredConns(),
		MaxConns:        stat.MaxConns(),
		AcquireCount:    stat.AcquireCount(),
		AcquireDuration: stat.AcquireDuration().String(),
		Healthy:         stat.TotalConns() > 0,
	}
}

// Check pings the database and reports pool statistics. Healthy is false
// whenever the ping fails.
func Check(ctx context.Context, pool *pgxpool.Pool) (*PoolStats, error) {
	ctx, cancel := context.WithTimeout(ctx, PingTimeout)
	defer cancel()

	err := pool.Ping(ctx)
	stats := GetPoolStats(pool)
	if err != nil {
		stats.Healthy = false
		return stats, err
	}
	return stats, nil
}

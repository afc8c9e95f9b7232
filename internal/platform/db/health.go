package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// PoolStats is the pool snapshot reported by /health.
type PoolStats struct {
	TotalConns      int32  `json:"totalConns"`
	IdleConns       int32  `json:"idleConns"`
	AcquiredConns   int32  `json:"acquiredConns"`
	MaxConns        int32  `json:"maxConns"`
	AcquireCount    int64  `json:"acquireCount"`
	AcquireDuration string `json:"acquireDuration"`
}

// HealthCheck pings the store and returns its pool statistics.
type HealthCheck func(ctx context.Context) (*PoolStats, error)

// PoolCheck builds a HealthCheck for a pgx pool.
func PoolCheck(pool *pgxpool.Pool) HealthCheck {
	return func(ctx context.Context) (*PoolStats, error) {
		err := pool.Ping(ctx)
		stat := pool.Stat()
		return &PoolStats{
			TotalConns:      stat.TotalConns(),
			IdleConns:       stat.IdleConns(),
			AcquiredConns:   stat.AcquiredConns(),
			MaxConns:        stat.MaxConns(),
			AcquireCount:    stat.AcquireCount(),
			AcquireDuration: stat.AcquireDuration().String(),
		}, err
	}
}

// HealthHandler serves the health endpoint: 200 when the store answers
// within five seconds, 503 otherwise.
func HealthHandler(check HealthCheck, version string) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		stats, err := check(ctx)
		body := map[string]any{
			"status":  "healthy",
			"version": version,
			"pool":    stats,
		}
		if err != nil {
			body["status"] = "unhealthy"
			body["error"] = err.Error()
			return c.JSON(http.StatusServiceUnavailable, body)
		}
		return c.JSON(http.StatusOK, body)
	}
}

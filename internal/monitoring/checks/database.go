package checks

import (
	"context"
	"time"

	"github.com/tom2984/aac-sub001/internal/monitoring"
)

const defaultDatabaseTimeout = 2 * time.Second

// Pinger is satisfied by the store and anything else that can probe a connection.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Database returns a readiness probe that pings the database.
func Database(db Pinger, timeout time.Duration) monitoring.Check {
	return monitoring.NewCheck("database", func(ctx context.Context) monitoring.ProbeResult {
		start := time.Now()
		if db == nil {
			return monitoring.ProbeResult{Status: monitoring.StatusDown, Details: "database not configured"}
		}

		probeCtx, cancel := context.WithTimeout(ctx, chooseTimeout(timeout, defaultDatabaseTimeout))
		defer cancel()

		return monitoring.ResultFromError("database", db.Ping(probeCtx), time.Since(start))
	})
}

func chooseTimeout(provided, fallback time.Duration) time.Duration {
	if provided <= 0 {
		return fallback
	}
	return provided
}

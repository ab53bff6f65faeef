package checks

import (
	"context"
	"strings"

	"github.com/tom2984/aac-sub001/internal/monitoring"
)

// Mail reports degraded when no outbound email transport is configured.
func Mail(driver string) monitoring.Check {
	driver = strings.TrimSpace(driver)
	return monitoring.NewCheck("mail", func(context.Context) monitoring.ProbeResult {
		if driver == "" {
			return monitoring.ProbeResult{Status: monitoring.StatusDegraded, Details: "email driver not configured"}
		}
		return monitoring.ProbeResult{Status: monitoring.StatusUp, Details: driver}
	})
}

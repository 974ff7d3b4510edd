package database

import (
	"context"
	"fmt"
	"time"

	"trial-matcher/internal/common/logger"
)

// Pinger is satisfied by every client in this package.
type Pinger interface {
	Ping(ctx context.Context) error
}

// WaitReady pings until the dependency answers, doubling the delay after
// each failure. Each ping gets its own five second budget.
func WaitReady(ctx context.Context, name string, p Pinger, maxRetries int, initialDelay time.Duration, log logger.Logger) error {
	delay := initialDelay
	var err error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = p.Ping(pingCtx)
		cancel()
		if err == nil {
			log.Info("dependency ready", map[string]interface{}{"dependency": name, "attempt": attempt})
			return nil
		}

		if attempt == maxRetries {
			break
		}

		log.Warn("dependency not ready, retrying", map[string]interface{}{
			"dependency": name,
			"attempt":    attempt,
			"maxRetries": maxRetries,
			"retryIn":    delay.String(),
			"error":      err.Error(),
		})

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", name, ctx.Err())
		}
		delay *= 2
	}

	return fmt.Errorf("%s not ready after %d attempts: %w", name, maxRetries, err)
}

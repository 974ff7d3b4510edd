// internal/common/camunda/client.go
package camunda

import (
	"context"
	"fmt"
	"strings"
	"time"

	"trial-matcher/internal/common/logger"

	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
)

// Client wraps the Zeebe gRPC client with a checked connection.
type Client struct {
	client zbc.Client
	config *ClientConfig
}

type ClientConfig struct {
	GatewayAddress         string
	UsePlaintextConnection bool
	ConnectionTimeout      time.Duration
	RetryConfig            *RetryConfig
}

// RetryConfig defines retry behavior for transient connection failures.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

var DefaultRetryConfig = &RetryConfig{
	MaxRetries: 10,
	BaseDelay:  2 * time.Second,
	MaxDelay:   30 * time.Second,
}

// Connect creates the Zeebe client and waits until the broker answers a
// topology request. Transient failures are retried with exponential backoff.
func Connect(ctx context.Context, config *ClientConfig, log logger.Logger) (*Client, error) {
	if config.RetryConfig == nil {
		config.RetryConfig = DefaultRetryConfig
	}
	if config.ConnectionTimeout <= 0 {
		config.ConnectionTimeout = 10 * time.Second
	}

	zeebeClient, err := zbc.NewClient(&zbc.ClientConfig{
		GatewayAddress:         config.GatewayAddress,
		UsePlaintextConnection: config.UsePlaintextConnection,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Zeebe client: %w", err)
	}

	c := &Client{client: zeebeClient, config: config}

	var lastErr error
	for attempt := 0; attempt <= config.RetryConfig.MaxRetries; attempt++ {
		lastErr = c.HealthCheck(ctx)
		if lastErr == nil {
			return c, nil
		}
		if !isRetryableZeebeError(lastErr) || attempt == config.RetryConfig.MaxRetries {
			break
		}

		delay := backoffDelay(config.RetryConfig, attempt)
		log.Warn("zeebe broker not reachable, retrying", map[string]interface{}{
			"gateway":     config.GatewayAddress,
			"attempt":     attempt + 1,
			"nextRetryIn": delay.String(),
			"error":       lastErr,
		})

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			zeebeClient.Close()
			return nil, fmt.Errorf("zeebe connect cancelled after %d attempts: %w", attempt+1, ctx.Err())
		}
	}

	zeebeClient.Close()
	return nil, fmt.Errorf("failed to connect to Zeebe broker at %s: %w", config.GatewayAddress, lastErr)
}

// GetClient returns the raw Zeebe client for opening job workers.
func (c *Client) GetClient() zbc.Client {
	return c.client
}

func (c *Client) Close() error {
	return c.client.Close()
}

// HealthCheck asks the broker for its topology.
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.ConnectionTimeout)
	defer cancel()

	if _, err := c.client.NewTopologyCommand().Send(ctx); err != nil {
		return fmt.Errorf("zeebe health check failed: %w", err)
	}
	return nil
}

func backoffDelay(rc *RetryConfig, attempt int) time.Duration {
	delay := rc.BaseDelay
	for i := 0; i < attempt && delay < rc.MaxDelay; i++ {
		delay *= 2
	}
	if delay > rc.MaxDelay {
		delay = rc.MaxDelay
	}
	return delay
}

func isRetryableZeebeError(err error) bool {
	msg := strings.ToLower(err.Error())
	retryablePhrases := []string{
		"connection refused",
		"connection reset",
		"timeout",
		"deadline exceeded",
		"unavailable",
		"unreachable",
		"broken pipe",
	}
	for _, phrase := range retryablePhrases {
		if strings.Contains(msg, phrase) {
			return true
		}
	}
	return false
}

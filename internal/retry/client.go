// Package retry wraps the broker with bounded retries and jittered backoff.
// Transient fetch failures (rate limits, gateway hiccups) get retried; the
// breaker inside the broker client still owns sustained-outage handling.
package retry

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"math/big"
	"strings"
	"time"

	"github.com/kirkhalloran/oraclepm/internal/broker"
)

type Config struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Timeout        time.Duration
}

var DefaultConfig = Config{
	MaxRetries:     3,
	InitialBackoff: 1 * time.Second,
	MaxBackoff:     30 * time.Second,
	Timeout:        2 * time.Minute,
}

// Broker decorates another broker.Broker with retry behavior. It implements
// the same interface, so callers wire it in transparently.
type Broker struct {
	inner  broker.Broker
	logger *log.Logger
	config Config
}

var _ broker.Broker = (*Broker)(nil)

// Wrap decorates a broker with the retry policy. Omitting config uses
// DefaultConfig.
func Wrap(inner broker.Broker, logger *log.Logger, config ...Config) *Broker {
	cfg := DefaultConfig
	if len(config) > 0 {
		cfg = config[0]
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Broker{inner: inner, logger: logger, config: cfg}
}

// FetchOrders fetches orders with retries on transient failure.
func (b *Broker) FetchOrders(ctx context.Context, account string, since time.Time) ([]broker.Order, error) {
	var orders []broker.Order
	err := b.do(ctx, fmt.Sprintf("fetch orders for %s", account), func(ctx context.Context) error {
		var err error
		orders, err = b.inner.FetchOrders(ctx, account, since)
		return err
	})
	return orders, err
}

// FetchAccounts fetches account identifiers with retries on transient failure.
func (b *Broker) FetchAccounts(ctx context.Context) ([]string, error) {
	var accounts []string
	err := b.do(ctx, "fetch accounts", func(ctx context.Context) error {
		var err error
		accounts, err = b.inner.FetchAccounts(ctx)
		return err
	})
	return accounts, err
}

func (b *Broker) do(ctx context.Context, label string, fn func(context.Context) error) error {
	opCtx, cancel := context.WithTimeout(ctx, b.config.Timeout)
	defer cancel()

	var lastErr error
	backoff := b.config.InitialBackoff

	for attempt := 0; attempt <= b.config.MaxRetries; attempt++ {
		if err := opCtx.Err(); err != nil {
			return fmt.Errorf("%s timed out after %v: %w", label, b.config.Timeout, err)
		}

		err := fn(opCtx)
		if err == nil {
			if attempt > 0 {
				b.logger.Printf("retry: %s succeeded on attempt %d", label, attempt+1)
			}
			return nil
		}

		lastErr = err
		if !isTransient(err) || attempt == b.config.MaxRetries {
			break
		}

		b.logger.Printf("retry: %s attempt %d failed (%v), retrying in %v", label, attempt+1, err, backoff)
		select {
		case <-time.After(backoff):
			backoff = b.nextBackoff(backoff)
		case <-opCtx.Done():
			return fmt.Errorf("%s timed out during backoff: %w", label, opCtx.Err())
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", label, b.config.MaxRetries+1, lastErr)
}

func (b *Broker) nextBackoff(current time.Duration) time.Duration {
	backoff := time.Duration(float64(current) * 1.5)
	if backoff > b.config.MaxBackoff {
		backoff = b.config.MaxBackoff
	}

	maxJitter := int64(backoff / 4)
	if maxJitter > 0 {
		jitterVal, err := rand.Int(rand.Reader, big.NewInt(maxJitter))
		if err != nil {
			b.logger.Printf("retry: jitter generation failed: %v", err)
		} else {
			backoff += time.Duration(jitterVal.Int64())
		}
	}
	return backoff
}

func isTransient(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *broker.APIError
	if errors.As(err, &apiErr) {
		return apiErr.IsRetryable()
	}

	errStr := strings.ToLower(err.Error())
	transientPatterns := []string{
		"timeout",
		"connection refused",
		"connection reset",
		"temporary failure",
		"rate limit",
		"network",
		"dns",
		"tcp",
	}
	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}

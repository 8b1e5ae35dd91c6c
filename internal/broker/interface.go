// Package broker provides the read-only order source for trade ingestion.
// It includes a Schwab-shaped HTTP client and a canned mock used in paper
// mode and tests.
package broker

import (
	"context"
	"fmt"
	"time"
)

// Broker is the order-source contract the ledger syncs from. FetchOrders
// must be safe to call repeatedly with an overlapping since cursor: the
// ledger's idempotent apply makes re-ingesting returned orders a no-op.
type Broker interface {
	// FetchOrders returns the raw order records entered at or after since
	// for one account. Zero records is a normal result.
	FetchOrders(ctx context.Context, account string, since time.Time) ([]Order, error)

	// FetchAccounts returns the account identifiers visible to the
	// credentials in use.
	FetchAccounts(ctx context.Context) ([]string, error)
}

// APIError represents an API error with status code and response body.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Status, e.Body)
}

// IsRetryable reports whether the error is worth retrying: 429s and server
// errors are transient, other 4xx are permanent.
func (e *APIError) IsRetryable() bool {
	return e.Status == 429 || e.Status >= 500
}

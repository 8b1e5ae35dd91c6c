package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
)

// SchwabClient fetches orders and accounts from the Schwab trader API. It is
// strictly read-only: nothing in this ledger places or cancels orders.
type SchwabClient struct {
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	apiKey  string
	baseURL string
	timeout time.Duration
}

// Ensure SchwabClient implements Broker at compile time.
var _ Broker = (*SchwabClient)(nil)

const (
	defaultBaseURL = "https://api.schwabapi.com/trader/v1"
	// maxOrdersPerFetch bounds one orders request; overlapping since cursors
	// plus idempotent apply cover anything beyond the page.
	maxOrdersPerFetch = 200
)

// NewSchwabClient creates a read-only Schwab API client. An empty baseURL
// selects the production endpoint.
func NewSchwabClient(apiKey, baseURL string, timeout time.Duration) *SchwabClient {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "schwab-api",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &SchwabClient{
		client:  &http.Client{Timeout: timeout},
		breaker: breaker,
		apiKey:  apiKey,
		baseURL: baseURL,
		timeout: timeout,
	}
}

// WithHTTPClient allows overriding the HTTP client (tests, custom transport).
func (c *SchwabClient) WithHTTPClient(hc *http.Client) *SchwabClient {
	if hc != nil {
		c.client = hc
	}
	return c
}

// FetchOrders returns raw filled-or-otherwise orders entered at or after
// since for one account hash. The endpoint is idempotent for overlapping
// windows; dedup happens downstream in the ledger.
func (c *SchwabClient) FetchOrders(ctx context.Context, account string, since time.Time) ([]Order, error) {
	params := url.Values{}
	params.Set("fromEnteredTime", toAPITime(since))
	params.Set("toEnteredTime", toAPITime(time.Now().UTC()))
	params.Set("maxResults", fmt.Sprintf("%d", maxOrdersPerFetch))

	endpoint := fmt.Sprintf("/accounts/%s/orders?%s", url.PathEscape(account), params.Encode())

	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("fetching orders for account %s: %w", account, err)
	}

	var orders singleOrArray[Order]
	if err := json.Unmarshal(body, &orders); err != nil {
		return nil, fmt.Errorf("decoding orders for account %s: %w", account, err)
	}
	return orders, nil
}

// FetchAccounts returns the account identifiers visible to the credentials.
func (c *SchwabClient) FetchAccounts(ctx context.Context) ([]string, error) {
	body, err := c.get(ctx, "/accounts/accountNumbers")
	if err != nil {
		return nil, fmt.Errorf("fetching account numbers: %w", err)
	}

	var entries []struct {
		AccountNumber string `json:"accountNumber"`
		HashValue     string `json:"hashValue"`
	}
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("decoding account numbers: %w", err)
	}

	accounts := make([]string, 0, len(entries))
	for _, e := range entries {
		// The orders endpoint wants the hash, not the raw number.
		if e.HashValue != "" {
			accounts = append(accounts, e.HashValue)
		}
	}
	return accounts, nil
}

func (c *SchwabClient) get(ctx context.Context, endpoint string) ([]byte, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Accept", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer func() { _ = resp.Body.Close() }()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			return nil, &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		}
		return body, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

// toAPITime formats a timestamp the way the orders endpoint expects:
// yyyy-MM-dd'T'HH:mm:ss.SSSZ in UTC.
func toAPITime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

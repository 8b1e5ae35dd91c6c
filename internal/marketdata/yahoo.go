package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/kirkhalloran/oraclepm/internal/models"
)

// YahooClient fetches option chains from the Yahoo Finance quote API. No
// credentials are needed; the circuit breaker keeps a flaky feed from
// stalling a whole refresh pass.
type YahooClient struct {
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	baseURL string
}

var _ Source = (*YahooClient)(nil)

const defaultYahooBaseURL = "https://query2.finance.yahoo.com/v7/finance/options"

// strikeTolerance absorbs float drift between stored strikes and the chain's.
const strikeTolerance = 0.005

// NewYahooClient creates an option-chain client. An empty baseURL selects the
// public endpoint.
func NewYahooClient(baseURL string, timeout time.Duration) *YahooClient {
	if baseURL == "" {
		baseURL = defaultYahooBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "yahoo-options",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &YahooClient{
		client:  &http.Client{Timeout: timeout},
		breaker: breaker,
		baseURL: baseURL,
	}
}

// WithHTTPClient allows overriding the HTTP client (tests, custom transport).
func (c *YahooClient) WithHTTPClient(hc *http.Client) *YahooClient {
	if hc != nil {
		c.client = hc
	}
	return c
}

// chainResponse models the slice of the options payload the updater reads.
type chainResponse struct {
	OptionChain struct {
		Result []struct {
			Options []struct {
				Calls []chainContract `json:"calls"`
				Puts  []chainContract `json:"puts"`
			} `json:"options"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"optionChain"`
}

type chainContract struct {
	Strike            float64 `json:"strike"`
	LastPrice         float64 `json:"lastPrice"`
	Bid               float64 `json:"bid"`
	Ask               float64 `json:"ask"`
	ImpliedVolatility float64 `json:"impliedVolatility"`
	Delta             float64 `json:"delta"` // absent from the feed more often than not
}

// FetchQuote returns the live mark, IV, and delta for one contract. A chain
// or strike that the feed no longer carries yields ErrQuoteNotFound.
func (c *YahooClient) FetchQuote(ctx context.Context, symbol string, expiration time.Time, strike float64, kind models.OptionKind) (Quote, error) {
	params := url.Values{}
	params.Set("date", fmt.Sprintf("%d", expiration.UTC().Unix()))
	endpoint := fmt.Sprintf("/%s?%s", url.PathEscape(symbol), params.Encode())

	body, err := c.get(ctx, endpoint)
	if err != nil {
		return Quote{}, fmt.Errorf("fetching chain for %s: %w", symbol, err)
	}

	var parsed chainResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Quote{}, fmt.Errorf("decoding chain for %s: %w", symbol, err)
	}
	if parsed.OptionChain.Error != nil {
		return Quote{}, fmt.Errorf("chain error for %s: %s", symbol, parsed.OptionChain.Error.Description)
	}
	if len(parsed.OptionChain.Result) == 0 || len(parsed.OptionChain.Result[0].Options) == 0 {
		return Quote{}, ErrQuoteNotFound
	}

	contracts := parsed.OptionChain.Result[0].Options[0].Puts
	if kind == models.KindCall {
		contracts = parsed.OptionChain.Result[0].Options[0].Calls
	}

	for i := range contracts {
		if math.Abs(contracts[i].Strike-strike) < strikeTolerance {
			return Quote{
				Mark:  contractMark(&contracts[i]),
				IV:    contracts[i].ImpliedVolatility,
				Delta: contracts[i].Delta,
			}, nil
		}
	}
	return Quote{}, ErrQuoteNotFound
}

// contractMark prefers the bid/ask midpoint and falls back to last trade.
func contractMark(c *chainContract) float64 {
	if c.Bid > 0 && c.Ask > 0 {
		return (c.Bid + c.Ask) / 2
	}
	return c.LastPrice
}

func (c *YahooClient) get(ctx context.Context, endpoint string) ([]byte, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "oraclepm/1.0")

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer func() { _ = resp.Body.Close() }()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
		if err != nil {
			return nil, err
		}
		if resp.StatusCode == http.StatusNotFound {
			return nil, ErrQuoteNotFound
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("yahoo status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}
		return body, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

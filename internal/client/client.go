// Package client fetches the protocol's public payloads: the market snapshot,
// the caller's positions and the gzip-compressed daily pool-analysis archive.
package client

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jaewoongo/optfolio/internal/market"
	"github.com/jaewoongo/optfolio/internal/portfolio"
)

// APIError represents a non-2xx response with its status code and body.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Status, e.Body)
}

// MarketPayload is the market snapshot document. Everything the analytics and
// presentation layers need rides under data.
type MarketPayload struct {
	Data struct {
		Market         map[string]market.AssetBoard  `json:"market"`
		FuturesIndices map[string]float64            `json:"futuresIndices"`
		SpotIndices    map[string]float64            `json:"spotIndices"`
		RiskFreeRates  map[string]map[string]float64 `json:"riskFreeRates"`
		OlpStats       struct {
			MOlp struct {
				AssetAmounts map[string]market.AssetAmount `json:"assetAmounts"`
				Greeks       map[string]market.Greeks      `json:"greeks"`
			} `json:"mOlp"`
		} `json:"olpStats"`
	} `json:"data"`
}

// PositionsPayload maps underlying asset ticker to its expiry groups.
type PositionsPayload map[string][]portfolio.ExpiryGroup

// PoolAnalysis is the latest entry of the daily pool-analysis archive.
type PoolAnalysis struct {
	Assets        market.PoolAssets `json:"assets"`
	PositionValue float64           `json:"positionValue"`
}

// poolAnalysisEntry is one timestamped record inside the archive.
type poolAnalysisEntry struct {
	MOlp PoolAnalysis `json:"mOlp"`
}

// Client is the read-only protocol API surface the refresh loop depends on.
type Client interface {
	FetchMarket(ctx context.Context) (*MarketPayload, error)
	FetchPositions(ctx context.Context, address string) (PositionsPayload, error)
	FetchPoolAnalysis(ctx context.Context, day string) (*PoolAnalysis, error)
}

// HTTPClient fetches payloads over plain HTTPS GETs.
type HTTPClient struct {
	client          *http.Client
	marketURL       string
	positionsURL    string
	poolAnalysisURL string // fmt template with one %s slot for the UTC day
	logger          *logrus.Logger
}

// Ensure HTTPClient implements Client at compile time.
var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates a protocol client with the given endpoint URLs.
// poolAnalysisURL must contain one %s verb that receives the UTC day
// (YYYY-MM-DD).
func NewHTTPClient(marketURL, positionsURL, poolAnalysisURL string, timeout time.Duration, logger *logrus.Logger) *HTTPClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		client:          &http.Client{Timeout: timeout},
		marketURL:       marketURL,
		positionsURL:    positionsURL,
		poolAnalysisURL: poolAnalysisURL,
		logger:          logger,
	}
}

// WithHTTPClient allows overriding the HTTP client (tests, custom transport).
func (c *HTTPClient) WithHTTPClient(hc *http.Client) *HTTPClient {
	if hc != nil {
		c.client = hc
	}
	return c
}

// FetchMarket downloads the current market snapshot.
func (c *HTTPClient) FetchMarket(ctx context.Context) (*MarketPayload, error) {
	var payload MarketPayload
	if err := c.getJSON(ctx, c.marketURL, &payload); err != nil {
		return nil, fmt.Errorf("fetching market snapshot: %w", err)
	}
	return &payload, nil
}

// FetchPositions downloads the expiry-grouped positions of one wallet.
func (c *HTTPClient) FetchPositions(ctx context.Context, address string) (PositionsPayload, error) {
	u, err := url.Parse(c.positionsURL)
	if err != nil {
		return nil, fmt.Errorf("positions endpoint: %w", err)
	}
	q := u.Query()
	q.Set("method", "getMyPositions")
	q.Set("address", address)
	u.RawQuery = q.Encode()

	var payload PositionsPayload
	if err := c.getJSON(ctx, u.String(), &payload); err != nil {
		return nil, fmt.Errorf("fetching positions: %w", err)
	}
	return payload, nil
}

// FetchPoolAnalysis downloads the gzip-compressed analysis archive for the
// given UTC day and returns its most recent entry. The archive maps unix
// timestamps to records; the highest-numbered key wins.
func (c *HTTPClient) FetchPoolAnalysis(ctx context.Context, day string) (*PoolAnalysis, error) {
	raw, err := c.getRaw(ctx, fmt.Sprintf(c.poolAnalysisURL, day))
	if err != nil {
		return nil, fmt.Errorf("fetching pool analysis: %w", err)
	}

	zr, err := gzip.NewReader(raw)
	if err != nil {
		raw.Close()
		return nil, fmt.Errorf("pool analysis archive: %w", err)
	}
	defer func() {
		zr.Close()
		raw.Close()
	}()

	var archive map[string]poolAnalysisEntry
	if err := json.NewDecoder(zr).Decode(&archive); err != nil {
		return nil, fmt.Errorf("decoding pool analysis: %w", err)
	}
	if len(archive) == 0 {
		return nil, fmt.Errorf("pool analysis archive for %s is empty", day)
	}

	var latestKey int64 = -1
	var latest PoolAnalysis
	for key, entry := range archive {
		ts, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			continue
		}
		if ts > latestKey {
			latestKey = ts
			latest = entry.MOlp
		}
	}
	if latestKey < 0 {
		return nil, fmt.Errorf("pool analysis archive for %s has no timestamped entries", day)
	}
	return &latest, nil
}

func (c *HTTPClient) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	body, err := c.getRaw(ctx, endpoint)
	if err != nil {
		return err
	}
	defer body.Close()

	// An empty or truncated body is a failure, not an empty payload.
	if err := json.NewDecoder(body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s: %w", endpoint, err)
	}
	return nil
}

func (c *HTTPClient) getRaw(ctx context.Context, endpoint string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, err
	}
	req.Header.Add("Accept", "application/json")
	req.Header.Add("User-Agent", "optfolio/1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		defer func() {
			if err := resp.Body.Close(); err != nil && c.logger != nil {
				c.logger.WithError(err).Warn("failed to close response body")
			}
		}()
		body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10)) // 64KB cap
		if err != nil {
			return nil, &APIError{Status: resp.StatusCode, Body: fmt.Sprintf("GET %s -> failed to read error body", endpoint)}
		}
		return nil, &APIError{Status: resp.StatusCode, Body: fmt.Sprintf("GET %s -> %s", endpoint, string(body))}
	}

	return resp.Body, nil
}

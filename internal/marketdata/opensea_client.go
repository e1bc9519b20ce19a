package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/migration-tracker/internal/circuitbreaker"
	"github.com/migration-tracker/internal/config"
	apperrors "github.com/migration-tracker/internal/errors"
	"github.com/migration-tracker/internal/logging"
	"github.com/migration-tracker/internal/models"
	"github.com/migration-tracker/internal/retry"
)

const providerName = "opensea"

// OpenSeaClient implements Provider against the OpenSea v2 API. Requests are
// serialized through a rate limiter so the provider's requests-per-second
// budget is respected even when callers overlap, and every call is recorded
// in the API call log.
type OpenSeaClient struct {
	baseURL    string
	apiKey     string
	client     *http.Client
	limiter    *rate.Limiter
	breaker    *circuitbreaker.CircuitBreaker
	retryCfg   *retry.RetryConfig
	callLogger CallLogger
}

// NewOpenSeaClient creates a new OpenSea API client
func NewOpenSeaClient(cfg *config.ProviderConfig, callLogger CallLogger) *OpenSeaClient {
	return &OpenSeaClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		// Burst of 1 forces a minimum inter-call delay instead of a fan-out.
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		breaker: circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig(providerName)),
		retryCfg: &retry.RetryConfig{
			MaxAttempts:  cfg.MaxRetries,
			InitialDelay: 1 * time.Second,
			MaxDelay:     30 * time.Second,
			Multiplier:   2.0,
		},
		callLogger: callLogger,
	}
}

// collectionStatsResponse is the raw stats payload from the provider.
type collectionStatsResponse struct {
	Total struct {
		FloorPrice   float64 `json:"floor_price"`
		MarketCap    float64 `json:"market_cap"`
		Volume       float64 `json:"volume"`
		NumOwners    int64   `json:"num_owners"`
		AveragePrice float64 `json:"average_price"`
	} `json:"total"`
	Intervals []struct {
		Interval string  `json:"interval"`
		Volume   float64 `json:"volume"`
	} `json:"intervals"`
}

// collectionResponse is the raw collection payload from the provider.
type collectionResponse struct {
	TotalSupply int64 `json:"total_supply"`
}

// listingsResponse is one page of a collection's active listings.
type listingsResponse struct {
	Listings []struct {
		ProtocolData struct {
			Parameters struct {
				Offer []struct {
					IdentifierOrCriteria string `json:"identifierOrCriteria"`
				} `json:"offer"`
			} `json:"parameters"`
		} `json:"protocol_data"`
	} `json:"listings"`
	Next string `json:"next"`
}

// nftsResponse is one page of the contract NFT listing.
type nftsResponse struct {
	NFTs []struct {
		Identifier string `json:"identifier"`
		Owners     []struct {
			Address string `json:"address"`
		} `json:"owners"`
	} `json:"nfts"`
	Next string `json:"next"`
}

// GetCollectionMetrics fetches collection stats, supply, and active
// listings, then normalizes them through extractKeyMetrics. This is the
// single place raw provider payloads are interpreted.
func (c *OpenSeaClient) GetCollectionMetrics(ctx context.Context, slug string) (*CollectionMetrics, error) {
	var stats collectionStatsResponse
	if err := c.getJSON(ctx, fmt.Sprintf("/collections/%s/stats", url.PathEscape(slug)), nil, &stats); err != nil {
		return nil, err
	}

	var collection collectionResponse
	if err := c.getJSON(ctx, fmt.Sprintf("/collections/%s", url.PathEscape(slug)), nil, &collection); err != nil {
		return nil, err
	}

	listedCount, err := c.getListedCount(ctx, slug)
	if err != nil {
		return nil, err
	}

	return extractKeyMetrics(slug, &stats, &collection, listedCount), nil
}

// getListedCount pages through a collection's active listings and counts the
// distinct tokens on offer.
func (c *OpenSeaClient) getListedCount(ctx context.Context, slug string) (int64, error) {
	listed := make(map[string]struct{})
	cursor := ""

	for {
		params := url.Values{"limit": {"100"}}
		if cursor != "" {
			params.Set("next", cursor)
		}

		var page listingsResponse
		endpoint := fmt.Sprintf("/listings/collection/%s/all", url.PathEscape(slug))
		if err := c.getJSON(ctx, endpoint, params, &page); err != nil {
			return 0, err
		}

		for _, listing := range page.Listings {
			for _, offer := range listing.ProtocolData.Parameters.Offer {
				if offer.IdentifierOrCriteria != "" {
					listed[offer.IdentifierOrCriteria] = struct{}{}
				}
			}
		}

		if page.Next == "" {
			return int64(len(listed)), nil
		}
		cursor = page.Next
	}
}

// extractKeyMetrics converts raw provider payloads into the normalized
// metrics consumed by the rest of the tracker.
func extractKeyMetrics(slug string, stats *collectionStatsResponse, collection *collectionResponse, listedCount int64) *CollectionMetrics {
	metrics := &CollectionMetrics{
		Slug:         slug,
		FloorPrice:   stats.Total.FloorPrice,
		TotalSupply:  collection.TotalSupply,
		HoldersCount: stats.Total.NumOwners,
		MarketCap:    stats.Total.MarketCap,
		ListedCount:  listedCount,
		AveragePrice: stats.Total.AveragePrice,
		FetchedAt:    time.Now().UTC(),
	}

	for _, interval := range stats.Intervals {
		switch interval.Interval {
		case "one_day":
			metrics.Volume24h = interval.Volume
		case "seven_day":
			metrics.Volume7d = interval.Volume
		}
	}

	return metrics
}

// GetHolderMap pages through a contract's tokens and builds the full
// token-id to holder-address mapping.
func (c *OpenSeaClient) GetHolderMap(ctx context.Context, contractAddress string) (map[string]string, error) {
	holders := make(map[string]string)
	cursor := ""

	for {
		params := url.Values{"limit": {"200"}}
		if cursor != "" {
			params.Set("next", cursor)
		}

		var page nftsResponse
		endpoint := fmt.Sprintf("/chain/ethereum/contract/%s/nfts", url.PathEscape(contractAddress))
		if err := c.getJSON(ctx, endpoint, params, &page); err != nil {
			return nil, err
		}

		for _, nft := range page.NFTs {
			if len(nft.Owners) == 0 {
				continue
			}
			holders[nft.Identifier] = nft.Owners[0].Address
		}

		if page.Next == "" {
			return holders, nil
		}
		cursor = page.Next
	}
}

// getJSON performs one rate-limited, retried, circuit-protected GET and
// decodes the JSON response into out.
func (c *OpenSeaClient) getJSON(ctx context.Context, endpoint string, params url.Values, out interface{}) error {
	result := retry.WithExponentialBackoff(ctx, c.retryCfg, func(ctx context.Context, attempt int) error {
		return c.breaker.Execute(ctx, func() error {
			return c.doRequest(ctx, endpoint, params, out)
		})
	})

	if !result.Success {
		if result.LastError == circuitbreaker.ErrCircuitOpen {
			return apperrors.NewProviderUnavailableError(providerName, result.LastError)
		}
		return result.LastError
	}

	return nil
}

func (c *OpenSeaClient) doRequest(ctx context.Context, endpoint string, params url.Values, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return apperrors.NewProviderUnavailableError(providerName, err)
	}

	requestURL := c.baseURL + endpoint
	if len(params) > 0 {
		requestURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return apperrors.NewInternalError("failed to build provider request", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-KEY", c.apiKey)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	duration := time.Since(start)

	if err != nil {
		c.logCall(ctx, endpoint, 0, false, duration, err)
		logging.FromContext(ctx).WithError(err).WithField("endpoint", endpoint).Warn("Provider request failed")
		return apperrors.NewProviderUnavailableError(providerName, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		c.logCall(ctx, endpoint, resp.StatusCode, false, duration, nil)
		return apperrors.NewProviderRateLimitError(providerName)
	case resp.StatusCode >= 500:
		c.logCall(ctx, endpoint, resp.StatusCode, false, duration, nil)
		return apperrors.NewProviderUnavailableError(providerName, fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		c.logCall(ctx, endpoint, resp.StatusCode, false, duration, nil)
		return apperrors.NewProviderError(providerName, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logCall(ctx, endpoint, resp.StatusCode, false, duration, err)
		return apperrors.NewProviderError(providerName, fmt.Errorf("failed to read response: %w", err))
	}

	if err := json.Unmarshal(body, out); err != nil {
		c.logCall(ctx, endpoint, resp.StatusCode, false, duration, err)
		return apperrors.NewProviderError(providerName, fmt.Errorf("malformed response: %w", err))
	}

	c.logCall(ctx, endpoint, resp.StatusCode, true, duration, nil)
	return nil
}

func (c *OpenSeaClient) logCall(ctx context.Context, endpoint string, statusCode int, success bool, duration time.Duration, callErr error) {
	if c.callLogger == nil {
		return
	}

	log := &models.APICallLog{
		Timestamp:  time.Now().UTC(),
		Provider:   providerName,
		Endpoint:   endpoint,
		Method:     http.MethodGet,
		StatusCode: int32(statusCode), // #nosec G115 - HTTP status codes fit in int32
		Success:    success,
		DurationMs: duration.Milliseconds(),
	}
	if callErr != nil {
		log.Error = callErr.Error()
	}

	if err := c.callLogger.Record(ctx, log); err != nil {
		logging.FromContext(ctx).WithError(err).Warn("Failed to record API call log")
	}
}

package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/migration-tracker/internal/config"
	apperrors "github.com/migration-tracker/internal/errors"
	"github.com/migration-tracker/internal/logging"
	"github.com/migration-tracker/internal/models"
	"github.com/migration-tracker/internal/storage"
)

const priceProvider = "coingecko"

// CoinGeckoClient fetches the fiat price of the settlement currency.
type CoinGeckoClient struct {
	baseURL    string
	assetID    string
	client     *http.Client
	callLogger CallLogger
}

// NewCoinGeckoClient creates a new price API client
func NewCoinGeckoClient(cfg *config.PricingConfig, callLogger CallLogger) *CoinGeckoClient {
	return &CoinGeckoClient{
		baseURL: cfg.PriceAPIBaseURL,
		assetID: cfg.SettlementAssetID,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		callLogger: callLogger,
	}
}

// CurrentPrice fetches the current USD price of the settlement asset.
// Returns a provider error when the price cannot be obtained.
func (c *CoinGeckoClient) CurrentPrice(ctx context.Context) (float64, error) {
	endpoint := "/simple/price"
	params := url.Values{
		"ids":           {c.assetID},
		"vs_currencies": {"usd"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return 0, apperrors.NewInternalError("failed to build price request", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	duration := time.Since(start)

	if err != nil {
		c.logCall(ctx, endpoint, 0, false, duration, err)
		return 0, apperrors.NewProviderUnavailableError(priceProvider, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		c.logCall(ctx, endpoint, resp.StatusCode, false, duration, nil)
		if resp.StatusCode == http.StatusTooManyRequests {
			return 0, apperrors.NewProviderRateLimitError(priceProvider)
		}
		return 0, apperrors.NewProviderUnavailableError(priceProvider, fmt.Errorf("status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logCall(ctx, endpoint, resp.StatusCode, false, duration, err)
		return 0, apperrors.NewProviderError(priceProvider, fmt.Errorf("failed to read response: %w", err))
	}

	var payload map[string]map[string]float64
	if err := json.Unmarshal(body, &payload); err != nil {
		c.logCall(ctx, endpoint, resp.StatusCode, false, duration, err)
		return 0, apperrors.NewProviderError(priceProvider, fmt.Errorf("malformed response: %w", err))
	}

	price, ok := payload[c.assetID]["usd"]
	if !ok || price <= 0 {
		c.logCall(ctx, endpoint, resp.StatusCode, false, duration, nil)
		return 0, apperrors.NewProviderError(priceProvider, fmt.Errorf("price missing for asset %s", c.assetID))
	}

	c.logCall(ctx, endpoint, resp.StatusCode, true, duration, nil)
	return price, nil
}

func (c *CoinGeckoClient) logCall(ctx context.Context, endpoint string, statusCode int, success bool, duration time.Duration, callErr error) {
	if c.callLogger == nil {
		return
	}

	log := &models.APICallLog{
		Timestamp:  time.Now().UTC(),
		Provider:   priceProvider,
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

// PriceStore persists the per-day settlement price record.
type PriceStore interface {
	Record(ctx context.Context, price *models.SettlementPrice) error
	GetByDate(ctx context.Context, date time.Time) (*models.SettlementPrice, error)
	GetLatestBefore(ctx context.Context, date time.Time) (*models.SettlementPrice, error)
}

// SettlementPriceService resolves the settlement price for a calendar day.
// A price already recorded for the day always wins, so historical analytics
// never move when the live price does. Otherwise the chain is the Redis
// cache, the live provider, the most recent recorded day, and finally the
// configured constant; the resolved value is recorded for the day.
type SettlementPriceService struct {
	source   PriceSource
	cache    *storage.PriceCache
	store    PriceStore
	assetID  string
	fallback float64
}

// NewSettlementPriceService creates a new settlement price service
func NewSettlementPriceService(source PriceSource, cache *storage.PriceCache, store PriceStore, cfg *config.PricingConfig) *SettlementPriceService {
	return &SettlementPriceService{
		source:   source,
		cache:    cache,
		store:    store,
		assetID:  cfg.SettlementAssetID,
		fallback: cfg.FallbackPriceUSD,
	}
}

// PriceForDate returns the settlement price in USD for a day. Provider
// failures fall back to the last recorded day, then the configured constant,
// rather than propagating.
func (s *SettlementPriceService) PriceForDate(ctx context.Context, date time.Time) (float64, error) {
	day := models.DateOnly(date)

	if s.store != nil {
		stored, err := s.store.GetByDate(ctx, day)
		if err != nil {
			return 0, apperrors.NewDatabaseError("settlement price read", err)
		}
		if stored != nil {
			return stored.PriceUSD, nil
		}
	}

	price, source := s.resolveLive(ctx, day)

	if s.store != nil {
		record := &models.SettlementPrice{PriceDate: day, PriceUSD: price, Source: source}
		if err := s.store.Record(ctx, record); err != nil {
			logging.FromContext(ctx).WithError(err).Warn("Failed to record settlement price")
		}
	}

	return price, nil
}

// resolveLive fetches the current price, degrading to the last recorded day
// and then the configured constant when the provider cannot serve one.
func (s *SettlementPriceService) resolveLive(ctx context.Context, day time.Time) (float64, string) {
	if s.cache != nil {
		if price, ok := s.cache.Get(ctx, s.assetID); ok {
			return price, models.PriceSourceProvider
		}
	}

	price, err := s.source.CurrentPrice(ctx)
	if err == nil {
		if s.cache != nil {
			s.cache.Put(ctx, s.assetID, price)
		}
		return price, models.PriceSourceProvider
	}

	logger := logging.FromContext(ctx).WithError(err)

	if s.store != nil {
		prev, prevErr := s.store.GetLatestBefore(ctx, day)
		if prevErr != nil {
			logger.WithError(prevErr).Warn("Failed to read prior settlement price")
		} else if prev != nil {
			logger.WithField("carriedFrom", models.FormatDate(prev.PriceDate)).
				Warn("Settlement price unavailable, carrying last recorded day forward")
			return prev.PriceUSD, models.PriceSourceCarriedForward
		}
	}

	logger.WithField("fallback", s.fallback).Warn("Settlement price unavailable, using fallback")
	return s.fallback, models.PriceSourceFallback
}

package marketdata

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/migration-tracker/internal/config"
	apperrors "github.com/migration-tracker/internal/errors"
)

func newTestClient(t *testing.T, handler http.Handler) (*OpenSeaClient, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewOpenSeaClient(&config.ProviderConfig{
		BaseURL:           server.URL,
		APIKey:            "test-key",
		RequestsPerSecond: 1000,
		Timeout:           5 * time.Second,
		MaxRetries:        1,
	}, nil)
	return client, server
}

func TestGetCollectionMetrics(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/collections/origin-cards/stats", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("X-API-KEY"))
		fmt.Fprint(w, `{
			"total": {"floor_price": 0.05, "market_cap": 500, "num_owners": 1200, "average_price": 0.07},
			"intervals": [
				{"interval": "one_day", "volume": 12.5},
				{"interval": "seven_day", "volume": 80.0}
			]
		}`)
	})
	mux.HandleFunc("/collections/origin-cards", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"total_supply": 9993}`)
	})
	mux.HandleFunc("/listings/collection/origin-cards/all", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("next") == "" {
			// Token 7 is listed twice; the count is of distinct tokens.
			fmt.Fprint(w, `{
				"listings": [
					{"protocol_data": {"parameters": {"offer": [{"identifierOrCriteria": "7"}]}}},
					{"protocol_data": {"parameters": {"offer": [{"identifierOrCriteria": "7"}]}}},
					{"protocol_data": {"parameters": {"offer": [{"identifierOrCriteria": "8"}]}}}
				],
				"next": "page2"
			}`)
			return
		}
		fmt.Fprint(w, `{
			"listings": [
				{"protocol_data": {"parameters": {"offer": [{"identifierOrCriteria": "9"}]}}}
			],
			"next": ""
		}`)
	})

	client, _ := newTestClient(t, mux)

	metrics, err := client.GetCollectionMetrics(context.Background(), "origin-cards")
	require.NoError(t, err)

	assert.Equal(t, "origin-cards", metrics.Slug)
	assert.InDelta(t, 0.05, metrics.FloorPrice, 1e-9)
	assert.Equal(t, int64(9993), metrics.TotalSupply)
	assert.Equal(t, int64(1200), metrics.HoldersCount)
	assert.InDelta(t, 12.5, metrics.Volume24h, 1e-9)
	assert.InDelta(t, 80.0, metrics.Volume7d, 1e-9)
	assert.Equal(t, int64(3), metrics.ListedCount)
}

func TestGetHolderMapPagination(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/chain/ethereum/contract/0xabc/nfts", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("next") == "" {
			fmt.Fprint(w, `{
				"nfts": [
					{"identifier": "1", "owners": [{"address": "0xaaa"}]},
					{"identifier": "2", "owners": [{"address": "0xbbb"}]}
				],
				"next": "page2"
			}`)
			return
		}
		fmt.Fprint(w, `{
			"nfts": [
				{"identifier": "3", "owners": [{"address": "0xccc"}]},
				{"identifier": "4", "owners": []}
			],
			"next": ""
		}`)
	})

	client, _ := newTestClient(t, mux)

	holders, err := client.GetHolderMap(context.Background(), "0xabc")
	require.NoError(t, err)

	// Token 4 has no owner listed and is skipped.
	assert.Equal(t, map[string]string{
		"1": "0xaaa",
		"2": "0xbbb",
		"3": "0xccc",
	}, holders)
}

func TestGetCollectionMetricsErrors(t *testing.T) {
	t.Run("server errors are unavailable", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))

		_, err := client.GetCollectionMetrics(context.Background(), "origin-cards")
		require.Error(t, err)
		assert.True(t, apperrors.IsProviderFailure(err))
	})

	t.Run("rate limit is a recoverable provider failure", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))

		_, err := client.GetCollectionMetrics(context.Background(), "origin-cards")
		require.Error(t, err)
		catErr := apperrors.Categorize(err)
		assert.Equal(t, http.StatusTooManyRequests, catErr.StatusCode)
		assert.True(t, apperrors.IsProviderFailure(err))
	})

	t.Run("malformed payload is a recoverable provider failure", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"total": `)
		}))

		_, err := client.GetCollectionMetrics(context.Background(), "origin-cards")
		require.Error(t, err)
		assert.True(t, apperrors.IsProviderFailure(err))
	})
}

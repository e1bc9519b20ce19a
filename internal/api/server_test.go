package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/migration-tracker/internal/models"
	"github.com/migration-tracker/internal/pipeline"
)

type stubAnalyticsStore struct {
	latest  *models.DailyAnalytics
	records map[string]*models.DailyAnalytics
}

func (s *stubAnalyticsStore) GetLatest(ctx context.Context) (*models.DailyAnalytics, error) {
	return s.latest, nil
}

func (s *stubAnalyticsStore) GetByDate(ctx context.Context, date time.Time) (*models.DailyAnalytics, error) {
	return s.records[models.FormatDate(date)], nil
}

func (s *stubAnalyticsStore) GetRange(ctx context.Context, from, to time.Time) ([]*models.DailyAnalytics, error) {
	var result []*models.DailyAnalytics
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if record, ok := s.records[models.FormatDate(d)]; ok {
			result = append(result, record)
		}
	}
	return result, nil
}

type stubSnapshotStore struct {
	snapshots map[string]*models.DailySnapshot
}

func (s *stubSnapshotStore) GetByDate(ctx context.Context, collectionID int64, date time.Time) (*models.DailySnapshot, error) {
	return s.snapshots[models.FormatDate(date)], nil
}

func (s *stubSnapshotStore) GetRange(ctx context.Context, collectionID int64, from, to time.Time) ([]*models.DailySnapshot, error) {
	var result []*models.DailySnapshot
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if snap, ok := s.snapshots[models.FormatDate(d)]; ok {
			result = append(result, snap)
		}
	}
	return result, nil
}

type stubMigrationStore struct {
	events []*models.MigrationEvent
	stats  *models.MigrationStats
}

func (s *stubMigrationStore) GetByDateRange(ctx context.Context, fromID, toID int64, from, to time.Time, limit int) ([]*models.MigrationEvent, error) {
	if limit < len(s.events) {
		return s.events[:limit], nil
	}
	return s.events, nil
}

func (s *stubMigrationStore) GetStats(ctx context.Context, fromID, toID int64) (*models.MigrationStats, error) {
	return s.stats, nil
}

type stubAlertStore struct {
	alerts   []*models.Alert
	resolved map[string]bool
}

func (s *stubAlertStore) List(ctx context.Context, unresolvedOnly bool, limit int) ([]*models.Alert, error) {
	return s.alerts, nil
}

func (s *stubAlertStore) Resolve(ctx context.Context, id string) (bool, error) {
	return s.resolved[id], nil
}

type stubCollectionStore struct {
	collections map[string]*models.Collection
}

func (s *stubCollectionStore) GetBySlug(ctx context.Context, slug string) (*models.Collection, error) {
	return s.collections[slug], nil
}

type stubRunner struct {
	lastDate time.Time
}

func (r *stubRunner) Run(ctx context.Context, date time.Time) (*pipeline.RunResult, error) {
	r.lastDate = date
	return &pipeline.RunResult{Date: date, NewEvents: 2}, nil
}

var (
	apiSource = &models.Collection{ID: 1, Slug: "origin-cards"}
	apiDest   = &models.Collection{ID: 2, Slug: "reborn-cards"}
)

type serverFixture struct {
	server    *Server
	analytics *stubAnalyticsStore
	snapshots *stubSnapshotStore
	alerts    *stubAlertStore
	runner    *stubRunner
}

func setupServer(t *testing.T) *serverFixture {
	t.Helper()

	f := &serverFixture{
		analytics: &stubAnalyticsStore{records: make(map[string]*models.DailyAnalytics)},
		snapshots: &stubSnapshotStore{snapshots: make(map[string]*models.DailySnapshot)},
		alerts:    &stubAlertStore{resolved: make(map[string]bool)},
		runner:    &stubRunner{},
	}
	migrations := &stubMigrationStore{stats: &models.MigrationStats{TotalEvents: 74}}
	collections := &stubCollectionStore{collections: map[string]*models.Collection{
		apiSource.Slug: apiSource,
		apiDest.Slug:   apiDest,
	}}

	cfg := &ServerConfig{
		Host:              "localhost",
		Port:              "0",
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      5 * time.Second,
		IdleTimeout:       5 * time.Second,
		RequestsPerSecond: 1000,
	}
	f.server = NewServer(cfg, f.analytics, f.snapshots, migrations, f.alerts, collections, f.runner, apiSource, apiDest)
	return f
}

func (f *serverFixture) request(t *testing.T, method, path string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.RemoteAddr = "10.0.0.1:52000"
	recorder := httptest.NewRecorder()
	f.server.router.ServeHTTP(recorder, req)
	return recorder
}

func TestHealthEndpoint(t *testing.T) {
	f := setupServer(t)

	resp := f.request(t, "GET", "/health", "")
	assert.Equal(t, http.StatusOK, resp.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestGetLatestAnalytics(t *testing.T) {
	t.Run("returns record", func(t *testing.T) {
		f := setupServer(t)
		f.analytics.latest = &models.DailyAnalytics{TotalMigrations: 100}

		resp := f.request(t, "GET", "/api/analytics/latest", "")
		assert.Equal(t, http.StatusOK, resp.Code)

		var record models.DailyAnalytics
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &record))
		assert.Equal(t, int64(100), record.TotalMigrations)
	})

	t.Run("404 when empty", func(t *testing.T) {
		f := setupServer(t)
		resp := f.request(t, "GET", "/api/analytics/latest", "")
		assert.Equal(t, http.StatusNotFound, resp.Code)
	})
}

func TestGetAnalyticsByDate(t *testing.T) {
	f := setupServer(t)
	f.analytics.records["2026-03-10"] = &models.DailyAnalytics{TotalMigrations: 100}

	t.Run("returns record for day", func(t *testing.T) {
		resp := f.request(t, "GET", "/api/analytics/2026-03-10", "")
		assert.Equal(t, http.StatusOK, resp.Code)
	})

	t.Run("rejects malformed date", func(t *testing.T) {
		resp := f.request(t, "GET", "/api/analytics/not-a-date", "")
		assert.Equal(t, http.StatusBadRequest, resp.Code)
	})

	t.Run("404 for unknown day", func(t *testing.T) {
		resp := f.request(t, "GET", "/api/analytics/2026-01-01", "")
		assert.Equal(t, http.StatusNotFound, resp.Code)
	})
}

func TestGetSnapshot(t *testing.T) {
	f := setupServer(t)
	f.snapshots.snapshots["2026-03-10"] = &models.DailySnapshot{CollectionID: 1, TotalSupply: 9990}

	t.Run("returns snapshot", func(t *testing.T) {
		resp := f.request(t, "GET", "/api/collections/origin-cards/snapshots/2026-03-10", "")
		assert.Equal(t, http.StatusOK, resp.Code)
	})

	t.Run("404 for unknown collection", func(t *testing.T) {
		resp := f.request(t, "GET", "/api/collections/nope/snapshots/2026-03-10", "")
		assert.Equal(t, http.StatusNotFound, resp.Code)
	})
}

func TestGetMigrationStats(t *testing.T) {
	f := setupServer(t)

	resp := f.request(t, "GET", "/api/migrations/stats", "")
	assert.Equal(t, http.StatusOK, resp.Code)

	var stats models.MigrationStats
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &stats))
	assert.Equal(t, int64(74), stats.TotalEvents)
}

func TestResolveAlert(t *testing.T) {
	f := setupServer(t)
	f.alerts.resolved["known"] = true

	t.Run("resolves existing alert", func(t *testing.T) {
		resp := f.request(t, "POST", "/api/alerts/known/resolve", "")
		assert.Equal(t, http.StatusOK, resp.Code)
	})

	t.Run("404 for unknown or resolved alert", func(t *testing.T) {
		resp := f.request(t, "POST", "/api/alerts/unknown/resolve", "")
		assert.Equal(t, http.StatusNotFound, resp.Code)
	})
}

func TestTriggerRun(t *testing.T) {
	f := setupServer(t)

	t.Run("runs for named date", func(t *testing.T) {
		resp := f.request(t, "POST", "/api/runs", `{"date":"2026-03-10"}`)
		assert.Equal(t, http.StatusOK, resp.Code)
		assert.Equal(t, "2026-03-10", models.FormatDate(f.runner.lastDate))
	})

	t.Run("rejects malformed date", func(t *testing.T) {
		resp := f.request(t, "POST", "/api/runs", `{"date":"bogus"}`)
		assert.Equal(t, http.StatusBadRequest, resp.Code)
	})
}

func TestRateLimiting(t *testing.T) {
	cfg := &ServerConfig{
		Host:              "localhost",
		Port:              "0",
		ReadTimeout:       time.Second,
		WriteTimeout:      time.Second,
		IdleTimeout:       time.Second,
		RequestsPerSecond: 1,
	}
	server := NewServer(cfg,
		&stubAnalyticsStore{records: make(map[string]*models.DailyAnalytics)},
		&stubSnapshotStore{snapshots: make(map[string]*models.DailySnapshot)},
		&stubMigrationStore{},
		&stubAlertStore{resolved: make(map[string]bool)},
		&stubCollectionStore{},
		&stubRunner{},
		apiSource, apiDest)
	f := &serverFixture{server: server}

	var limited bool
	for i := 0; i < 30; i++ {
		resp := f.request(t, "GET", "/health", "")
		if resp.Code == http.StatusTooManyRequests {
			limited = true
			break
		}
	}
	assert.True(t, limited)
}

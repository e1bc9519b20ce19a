// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/migration-tracker/internal/logging"
	"github.com/migration-tracker/internal/models"
	"github.com/migration-tracker/internal/pipeline"
)

// Store interfaces for dependency injection and testing

// AnalyticsStore defines the analytics reads the API serves.
type AnalyticsStore interface {
	GetLatest(ctx context.Context) (*models.DailyAnalytics, error)
	GetByDate(ctx context.Context, date time.Time) (*models.DailyAnalytics, error)
	GetRange(ctx context.Context, from, to time.Time) ([]*models.DailyAnalytics, error)
}

// SnapshotStore defines the snapshot reads the API serves.
type SnapshotStore interface {
	GetByDate(ctx context.Context, collectionID int64, date time.Time) (*models.DailySnapshot, error)
	GetRange(ctx context.Context, collectionID int64, from, to time.Time) ([]*models.DailySnapshot, error)
}

// MigrationStore defines the migration event reads the API serves.
type MigrationStore interface {
	GetByDateRange(ctx context.Context, fromID, toID int64, from, to time.Time, limit int) ([]*models.MigrationEvent, error)
	GetStats(ctx context.Context, fromID, toID int64) (*models.MigrationStats, error)
}

// AlertStore defines the alert operations the API serves.
type AlertStore interface {
	List(ctx context.Context, unresolvedOnly bool, limit int) ([]*models.Alert, error)
	Resolve(ctx context.Context, id string) (bool, error)
}

// CollectionStore resolves collection slugs.
type CollectionStore interface {
	GetBySlug(ctx context.Context, slug string) (*models.Collection, error)
}

// PipelineRunner triggers a tracking run for one day.
type PipelineRunner interface {
	Run(ctx context.Context, date time.Time) (*pipeline.RunResult, error)
}

// Server represents the HTTP API server.
type Server struct {
	router      *mux.Router
	httpServer  *http.Server
	analytics   AnalyticsStore
	snapshots   SnapshotStore
	migrations  MigrationStore
	alerts      AlertStore
	collections CollectionStore
	runner      PipelineRunner
	source      *models.Collection
	dest        *models.Collection
	config      *ServerConfig
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host              string
	Port              string
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
	RequestsPerSecond int
}

// NewServer creates a new API server instance.
func NewServer(
	config *ServerConfig,
	analytics AnalyticsStore,
	snapshots SnapshotStore,
	migrations MigrationStore,
	alerts AlertStore,
	collections CollectionStore,
	runner PipelineRunner,
	source, dest *models.Collection,
) *Server {
	s := &Server{
		router:      mux.NewRouter(),
		analytics:   analytics,
		snapshots:   snapshots,
		migrations:  migrations,
		alerts:      alerts,
		collections: collections,
		runner:      runner,
		source:      source,
		dest:        dest,
		config:      config,
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	rateLimiter := NewRateLimiter(s.config.RequestsPerSecond)

	// Set up middleware (order matters!)
	s.router.Use(LoggingMiddleware)
	s.router.Use(RecoveryMiddleware)
	s.router.Use(CORSMiddleware)
	s.router.Use(RateLimitMiddleware(rateLimiter))
	s.router.Use(CompressionMiddleware)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	// Health check endpoint
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	// API v1 routes
	api := s.router.PathPrefix("/api").Subrouter()

	// Analytics endpoints
	api.HandleFunc("/analytics/latest", s.handleGetLatestAnalytics).Methods("GET")
	api.HandleFunc("/analytics/range", s.handleGetAnalyticsRange).Methods("GET")
	api.HandleFunc("/analytics/{date}", s.handleGetAnalyticsByDate).Methods("GET")

	// Snapshot endpoints
	api.HandleFunc("/collections/{slug}/snapshots", s.handleGetSnapshotRange).Methods("GET")
	api.HandleFunc("/collections/{slug}/snapshots/{date}", s.handleGetSnapshot).Methods("GET")

	// Migration endpoints
	api.HandleFunc("/migrations", s.handleGetMigrations).Methods("GET")
	api.HandleFunc("/migrations/stats", s.handleGetMigrationStats).Methods("GET")

	// Alert endpoints
	api.HandleFunc("/alerts", s.handleListAlerts).Methods("GET")
	api.HandleFunc("/alerts/{id}/resolve", s.handleResolveAlert).Methods("POST")

	// Manual pipeline trigger, used for backfills and re-runs
	api.HandleFunc("/runs", s.handleTriggerRun).Methods("POST")
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "migration-tracker",
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	logging.GetGlobalLogger().ForComponent("api").WithField("addr", s.httpServer.Addr).Info("Starting API server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	logging.GetGlobalLogger().ForComponent("api").Info("Shutting down API server")
	return s.httpServer.Shutdown(ctx)
}

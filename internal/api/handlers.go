package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/migration-tracker/internal/models"
)

const (
	defaultEventLimit = 100
	maxEventLimit     = 1000
	defaultAlertLimit = 50
)

// handleGetLatestAnalytics returns the most recent daily analytics record.
func (s *Server) handleGetLatestAnalytics(w http.ResponseWriter, r *http.Request) {
	record, err := s.analytics.GetLatest(r.Context())
	if err != nil {
		respondCategorized(w, err)
		return
	}
	if record == nil {
		respondError(w, http.StatusNotFound, ErrCodeNotFound, "No analytics recorded yet", nil)
		return
	}
	respondJSON(w, http.StatusOK, record)
}

// handleGetAnalyticsByDate returns the analytics record for one day.
func (s *Server) handleGetAnalyticsByDate(w http.ResponseWriter, r *http.Request) {
	date, err := models.ParseDate(mux.Vars(r)["date"])
	if err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Date must be YYYY-MM-DD", nil)
		return
	}

	record, err := s.analytics.GetByDate(r.Context(), date)
	if err != nil {
		respondCategorized(w, err)
		return
	}
	if record == nil {
		respondError(w, http.StatusNotFound, ErrCodeNotFound, "No analytics for that date", nil)
		return
	}
	respondJSON(w, http.StatusOK, record)
}

// handleGetAnalyticsRange returns analytics records between from and to.
func (s *Server) handleGetAnalyticsRange(w http.ResponseWriter, r *http.Request) {
	from, to, ok := parseDateRange(w, r)
	if !ok {
		return
	}

	records, err := s.analytics.GetRange(r.Context(), from, to)
	if err != nil {
		respondCategorized(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"from":      models.FormatDate(from),
		"to":        models.FormatDate(to),
		"count":     len(records),
		"analytics": records,
	})
}

// handleGetSnapshot returns one collection's snapshot for one day.
func (s *Server) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	collection, ok := s.resolveCollection(w, r, vars["slug"])
	if !ok {
		return
	}
	date, err := models.ParseDate(vars["date"])
	if err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Date must be YYYY-MM-DD", nil)
		return
	}

	snapshot, err := s.snapshots.GetByDate(r.Context(), collection.ID, date)
	if err != nil {
		respondCategorized(w, err)
		return
	}
	if snapshot == nil {
		respondError(w, http.StatusNotFound, ErrCodeNotFound, "No snapshot for that date", nil)
		return
	}
	respondJSON(w, http.StatusOK, snapshot)
}

// handleGetSnapshotRange returns a collection's snapshots between from and to.
func (s *Server) handleGetSnapshotRange(w http.ResponseWriter, r *http.Request) {
	collection, ok := s.resolveCollection(w, r, mux.Vars(r)["slug"])
	if !ok {
		return
	}
	from, to, ok := parseDateRange(w, r)
	if !ok {
		return
	}

	snapshots, err := s.snapshots.GetRange(r.Context(), collection.ID, from, to)
	if err != nil {
		respondCategorized(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"collection": collection.Slug,
		"from":       models.FormatDate(from),
		"to":         models.FormatDate(to),
		"count":      len(snapshots),
		"snapshots":  snapshots,
	})
}

// handleGetMigrations returns migration events between from and to.
func (s *Server) handleGetMigrations(w http.ResponseWriter, r *http.Request) {
	from, to, ok := parseDateRange(w, r)
	if !ok {
		return
	}

	limit := defaultEventLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Limit must be a positive integer", nil)
			return
		}
		if parsed > maxEventLimit {
			parsed = maxEventLimit
		}
		limit = parsed
	}

	events, err := s.migrations.GetByDateRange(r.Context(), s.source.ID, s.dest.ID, from, to, limit)
	if err != nil {
		respondCategorized(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"from":   models.FormatDate(from),
		"to":     models.FormatDate(to),
		"count":  len(events),
		"events": events,
	})
}

// handleGetMigrationStats returns aggregate migration statistics.
func (s *Server) handleGetMigrationStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.migrations.GetStats(r.Context(), s.source.ID, s.dest.ID)
	if err != nil {
		respondCategorized(w, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// handleListAlerts returns alerts, optionally only unresolved ones.
func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	unresolvedOnly := r.URL.Query().Get("unresolved") == "true"

	limit := defaultAlertLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Limit must be a positive integer", nil)
			return
		}
		limit = parsed
	}

	alerts, err := s.alerts.List(r.Context(), unresolvedOnly, limit)
	if err != nil {
		respondCategorized(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":  len(alerts),
		"alerts": alerts,
	})
}

// handleResolveAlert marks an alert resolved.
func (s *Server) handleResolveAlert(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	resolved, err := s.alerts.Resolve(r.Context(), id)
	if err != nil {
		respondCategorized(w, err)
		return
	}
	if !resolved {
		respondError(w, http.StatusNotFound, ErrCodeNotFound, "Alert not found or already resolved", nil)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"id":       id,
		"resolved": true,
	})
}

// handleTriggerRun runs the tracking pipeline for one day. The body may
// name a date; it defaults to today in UTC.
func (s *Server) handleTriggerRun(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Date string `json:"date"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&body); err != nil {
			respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid JSON body", nil)
			return
		}
	}

	date := models.DateOnly(time.Now().UTC())
	if body.Date != "" {
		parsed, err := models.ParseDate(body.Date)
		if err != nil {
			respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Date must be YYYY-MM-DD", nil)
			return
		}
		date = parsed
	}

	result, err := s.runner.Run(r.Context(), date)
	if err != nil {
		respondCategorized(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// resolveCollection maps a slug to a known collection or writes a 404.
func (s *Server) resolveCollection(w http.ResponseWriter, r *http.Request, slug string) (*models.Collection, bool) {
	collection, err := s.collections.GetBySlug(r.Context(), slug)
	if err != nil {
		respondCategorized(w, err)
		return nil, false
	}
	if collection == nil {
		respondError(w, http.StatusNotFound, ErrCodeNotFound, "Unknown collection", nil)
		return nil, false
	}
	return collection, true
}

// parseDateRange reads from/to query parameters, defaulting to the last 30
// days ending today.
func parseDateRange(w http.ResponseWriter, r *http.Request) (time.Time, time.Time, bool) {
	to := models.DateOnly(time.Now().UTC())
	from := to.AddDate(0, 0, -30)

	if raw := r.URL.Query().Get("to"); raw != "" {
		parsed, err := models.ParseDate(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "to must be YYYY-MM-DD", nil)
			return time.Time{}, time.Time{}, false
		}
		to = parsed
		from = to.AddDate(0, 0, -30)
	}
	if raw := r.URL.Query().Get("from"); raw != "" {
		parsed, err := models.ParseDate(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "from must be YYYY-MM-DD", nil)
			return time.Time{}, time.Time{}, false
		}
		from = parsed
	}
	if from.After(to) {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "from must not be after to", nil)
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}

// Package detector infers token migrations by diffing holder snapshots
// across consecutive days.
package detector

import (
	"context"
	"sort"
	"time"

	apperrors "github.com/migration-tracker/internal/errors"
	"github.com/migration-tracker/internal/logging"
	"github.com/migration-tracker/internal/models"
)

// HolderStore provides holder snapshot reads.
type HolderStore interface {
	GetHolderMap(ctx context.Context, collectionID int64, date time.Time) (map[string]string, error)
	HasSnapshotForDate(ctx context.Context, collectionID int64, date time.Time) (bool, error)
}

// EventStore persists migration events with insert-if-absent semantics.
type EventStore interface {
	InsertIfAbsent(ctx context.Context, event *models.MigrationEvent) (bool, error)
}

// Result is the outcome of one detection run.
type Result struct {
	Events []*models.MigrationEvent
	// CandidatesForReview are tokens that appeared in the destination
	// without leaving the source; ambiguous between a missed migration
	// and a new mint, so they are surfaced instead of recorded.
	CandidatesForReview []string
	// NewEvents counts events actually written this run; re-running the
	// same day yields zero.
	NewEvents int
	// InsufficientHistory is set when no previous-day holder snapshot
	// exists, which makes detection impossible but is not an error.
	InsufficientHistory bool
}

// Detector computes day-over-day holder set diffs between the source and
// destination collections.
type Detector struct {
	holders HolderStore
	events  EventStore
	source  *models.Collection
	dest    *models.Collection
}

// New creates a migration detector for one collection pair.
func New(holders HolderStore, events EventStore, source, dest *models.Collection) *Detector {
	return &Detector{
		holders: holders,
		events:  events,
		source:  source,
		dest:    dest,
	}
}

// Detect finds tokens that left the source holder set and joined the
// destination holder set between date-1 and date, persisting each as a
// migration event. Detection never fabricates: a token absent from both
// collections is ignored, and an unexplained destination arrival is only a
// review candidate.
func (d *Detector) Detect(ctx context.Context, date time.Time) (*Result, error) {
	logger := logging.FromContext(ctx).ForComponent("detector")
	day := models.DateOnly(date)
	prevDay := day.AddDate(0, 0, -1)

	// Current-day holder sets are mandatory; detection on missing data
	// would fabricate migrations.
	srcHasCurr, err := d.holders.HasSnapshotForDate(ctx, d.source.ID, day)
	if err != nil {
		return nil, apperrors.NewDatabaseError("holder snapshot check", err)
	}
	dstHasCurr, err := d.holders.HasSnapshotForDate(ctx, d.dest.ID, day)
	if err != nil {
		return nil, apperrors.NewDatabaseError("holder snapshot check", err)
	}
	if !srcHasCurr || !dstHasCurr {
		missing := d.source.Slug
		if srcHasCurr {
			missing = d.dest.Slug
		}
		return nil, apperrors.NewMissingHistoryError(missing, models.FormatDate(day))
	}

	srcPrevHas, err := d.holders.HasSnapshotForDate(ctx, d.source.ID, prevDay)
	if err != nil {
		return nil, apperrors.NewDatabaseError("holder snapshot check", err)
	}
	if !srcPrevHas {
		// First run: nothing to diff against. Zero migrations, not an error.
		logger.WithField("date", models.FormatDate(day)).Info("No prior holder snapshot, skipping detection")
		return &Result{InsufficientHistory: true}, nil
	}

	srcPrev, err := d.holders.GetHolderMap(ctx, d.source.ID, prevDay)
	if err != nil {
		return nil, apperrors.NewDatabaseError("holder snapshot read", err)
	}
	srcCurr, err := d.holders.GetHolderMap(ctx, d.source.ID, day)
	if err != nil {
		return nil, apperrors.NewDatabaseError("holder snapshot read", err)
	}
	dstPrev, err := d.holders.GetHolderMap(ctx, d.dest.ID, prevDay)
	if err != nil {
		return nil, apperrors.NewDatabaseError("holder snapshot read", err)
	}
	dstCurr, err := d.holders.GetHolderMap(ctx, d.dest.ID, day)
	if err != nil {
		return nil, apperrors.NewDatabaseError("holder snapshot read", err)
	}

	result := &Result{}

	// Tokens gone from the source and arrived in the destination.
	departed := make([]string, 0)
	for tokenID := range srcPrev {
		if _, stillHeld := srcCurr[tokenID]; !stillHeld {
			departed = append(departed, tokenID)
		}
	}
	sort.Strings(departed)

	for _, tokenID := range departed {
		destHolder, arrived := dstCurr[tokenID]
		if !arrived {
			// Absent from both collections: indistinguishable from a
			// burn or transfer-out, never recorded as a migration.
			continue
		}

		event := &models.MigrationEvent{
			TokenID:          tokenID,
			FromCollectionID: d.source.ID,
			ToCollectionID:   d.dest.ID,
			MigrationDate:    day,
			FromHolder:       srcPrev[tokenID],
			ToHolder:         destHolder,
		}
		result.Events = append(result.Events, event)
	}

	// Unexplained destination arrivals: present at date but not the day
	// before, and never seen in the source on either day.
	for tokenID := range dstCurr {
		if _, existed := dstPrev[tokenID]; existed {
			continue
		}
		if _, inSourcePrev := srcPrev[tokenID]; inSourcePrev {
			continue
		}
		if _, inSourceCurr := srcCurr[tokenID]; inSourceCurr {
			continue
		}
		result.CandidatesForReview = append(result.CandidatesForReview, tokenID)
	}
	sort.Strings(result.CandidatesForReview)

	for _, event := range result.Events {
		inserted, err := d.events.InsertIfAbsent(ctx, event)
		if err != nil {
			return nil, apperrors.NewDatabaseError("migration event insert", err)
		}
		if inserted {
			result.NewEvents++
		}
	}

	logger.WithFields(map[string]interface{}{
		"date":       models.FormatDate(day),
		"detected":   len(result.Events),
		"new":        result.NewEvents,
		"candidates": len(result.CandidatesForReview),
	}).Info("Migration detection completed")

	return result, nil
}

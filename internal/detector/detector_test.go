package detector

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/migration-tracker/internal/errors"
	"github.com/migration-tracker/internal/models"
)

type holderKey struct {
	collectionID int64
	date         time.Time
}

// fakeHolderStore keeps per-day holder maps in memory.
type fakeHolderStore struct {
	maps map[holderKey]map[string]string
}

func newFakeHolderStore() *fakeHolderStore {
	return &fakeHolderStore{maps: make(map[holderKey]map[string]string)}
}

func (s *fakeHolderStore) set(collectionID int64, date time.Time, holders map[string]string) {
	s.maps[holderKey{collectionID, models.DateOnly(date)}] = holders
}

func (s *fakeHolderStore) GetHolderMap(ctx context.Context, collectionID int64, date time.Time) (map[string]string, error) {
	return s.maps[holderKey{collectionID, models.DateOnly(date)}], nil
}

func (s *fakeHolderStore) HasSnapshotForDate(ctx context.Context, collectionID int64, date time.Time) (bool, error) {
	m, ok := s.maps[holderKey{collectionID, models.DateOnly(date)}]
	return ok && len(m) > 0, nil
}

type eventKey struct {
	tokenID string
	fromID  int64
	toID    int64
}

// fakeEventStore mimics insert-if-absent on the event unique key.
type fakeEventStore struct {
	events map[eventKey]*models.MigrationEvent
}

func newFakeEventStore() *fakeEventStore {
	return &fakeEventStore{events: make(map[eventKey]*models.MigrationEvent)}
}

func (s *fakeEventStore) InsertIfAbsent(ctx context.Context, event *models.MigrationEvent) (bool, error) {
	key := eventKey{event.TokenID, event.FromCollectionID, event.ToCollectionID}
	if _, exists := s.events[key]; exists {
		return false, nil
	}
	s.events[key] = event
	return true, nil
}

var (
	testSource = &models.Collection{ID: 1, Slug: "origin-cards"}
	testDest   = &models.Collection{ID: 2, Slug: "reborn-cards"}
	testDay    = time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
)

func setupDetector(t *testing.T) (*Detector, *fakeHolderStore, *fakeEventStore) {
	t.Helper()
	holders := newFakeHolderStore()
	events := newFakeEventStore()
	return New(holders, events, testSource, testDest), holders, events
}

func TestDetectFindsMigratedTokens(t *testing.T) {
	det, holders, events := setupDetector(t)
	prevDay := testDay.AddDate(0, 0, -1)

	holders.set(testSource.ID, prevDay, map[string]string{"7": "0xaaa", "8": "0xbbb", "9": "0xccc"})
	holders.set(testSource.ID, testDay, map[string]string{"9": "0xccc"})
	holders.set(testDest.ID, prevDay, map[string]string{"1": "0x111"})
	holders.set(testDest.ID, testDay, map[string]string{"1": "0x111", "7": "0xddd", "8": "0xbbb"})

	result, err := det.Detect(context.Background(), testDay)
	require.NoError(t, err)
	require.False(t, result.InsufficientHistory)

	require.Len(t, result.Events, 2)
	assert.Equal(t, 2, result.NewEvents)
	assert.Len(t, events.events, 2)

	first := result.Events[0]
	assert.Equal(t, "7", first.TokenID)
	assert.Equal(t, testSource.ID, first.FromCollectionID)
	assert.Equal(t, testDest.ID, first.ToCollectionID)
	assert.Equal(t, "0xaaa", first.FromHolder)
	assert.Equal(t, "0xddd", first.ToHolder)
	assert.Equal(t, "8", result.Events[1].TokenID)
}

func TestDetectIgnoresTokensAbsentFromBoth(t *testing.T) {
	det, holders, events := setupDetector(t)
	prevDay := testDay.AddDate(0, 0, -1)

	// Token 5 leaves the source but never shows up in the destination.
	holders.set(testSource.ID, prevDay, map[string]string{"5": "0xaaa"})
	holders.set(testSource.ID, testDay, map[string]string{"6": "0xeee"})
	holders.set(testDest.ID, prevDay, map[string]string{"1": "0x111"})
	holders.set(testDest.ID, testDay, map[string]string{"1": "0x111"})

	result, err := det.Detect(context.Background(), testDay)
	require.NoError(t, err)

	assert.Empty(t, result.Events)
	assert.Empty(t, events.events)
}

func TestDetectAmbiguousArrivalsAreCandidatesOnly(t *testing.T) {
	det, holders, events := setupDetector(t)
	prevDay := testDay.AddDate(0, 0, -1)

	// Token 42 appears in the destination without ever being in the source.
	holders.set(testSource.ID, prevDay, map[string]string{"1": "0xaaa"})
	holders.set(testSource.ID, testDay, map[string]string{"1": "0xaaa"})
	holders.set(testDest.ID, prevDay, map[string]string{})
	holders.set(testDest.ID, testDay, map[string]string{"42": "0xfff"})

	result, err := det.Detect(context.Background(), testDay)
	require.NoError(t, err)

	assert.Empty(t, result.Events)
	assert.Empty(t, events.events)
	assert.Equal(t, []string{"42"}, result.CandidatesForReview)
}

func TestDetectIsIdempotent(t *testing.T) {
	det, holders, _ := setupDetector(t)
	prevDay := testDay.AddDate(0, 0, -1)

	holders.set(testSource.ID, prevDay, map[string]string{"7": "0xaaa", "8": "0xbbb"})
	holders.set(testSource.ID, testDay, map[string]string{"8": "0xbbb"})
	holders.set(testDest.ID, prevDay, map[string]string{"1": "0x111"})
	holders.set(testDest.ID, testDay, map[string]string{"1": "0x111", "7": "0xaaa"})

	first, err := det.Detect(context.Background(), testDay)
	require.NoError(t, err)
	assert.Equal(t, 1, first.NewEvents)

	second, err := det.Detect(context.Background(), testDay)
	require.NoError(t, err)
	assert.Len(t, second.Events, 1)
	assert.Equal(t, 0, second.NewEvents)
}

func TestDetectMissingCurrentDayFails(t *testing.T) {
	det, holders, _ := setupDetector(t)
	prevDay := testDay.AddDate(0, 0, -1)

	holders.set(testSource.ID, prevDay, map[string]string{"7": "0xaaa"})
	holders.set(testDest.ID, testDay, map[string]string{"1": "0x111"})

	_, err := det.Detect(context.Background(), testDay)
	require.Error(t, err)
	assert.True(t, apperrors.IsMissingHistory(err))

	// The error names the collection whose data is missing.
	catErr := apperrors.Categorize(err)
	require.NotNil(t, catErr)
	assert.Equal(t, testSource.Slug, catErr.Details["collection"])
}

func TestDetectWithoutPriorDayReportsInsufficientHistory(t *testing.T) {
	det, holders, _ := setupDetector(t)

	holders.set(testSource.ID, testDay, map[string]string{"7": "0xaaa"})
	holders.set(testDest.ID, testDay, map[string]string{"1": "0x111"})

	result, err := det.Detect(context.Background(), testDay)
	require.NoError(t, err)
	assert.True(t, result.InsufficientHistory)
	assert.Empty(t, result.Events)
}

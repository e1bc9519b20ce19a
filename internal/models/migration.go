package models

import "time"

// MigrationEvent records a detected transfer of one token from the source
// collection to the destination collection. A token migrates at most once
// between a given pair of collections, so (token_id, from, to) is unique and
// insertion is insert-if-absent.
type MigrationEvent struct {
	ID               int64     `json:"id" db:"id"`
	TokenID          string    `json:"tokenId" db:"token_id"`
	FromCollectionID int64     `json:"fromCollectionId" db:"from_collection_id"`
	ToCollectionID   int64     `json:"toCollectionId" db:"to_collection_id"`
	MigrationDate    time.Time `json:"migrationDate" db:"migration_date"`
	// Holder addresses on either side of the move, kept for audit only.
	FromHolder     string    `json:"fromHolder,omitempty" db:"from_holder"`
	ToHolder       string    `json:"toHolder,omitempty" db:"to_holder"`
	TxReference    string    `json:"txReference,omitempty" db:"tx_reference"`
	BlockReference string    `json:"blockReference,omitempty" db:"block_reference"`
	CreatedAt      time.Time `json:"createdAt" db:"created_at"`
}

// MigrationStats summarizes the migration event series for operators.
type MigrationStats struct {
	TotalEvents    int64      `json:"totalEvents"`
	FirstEventDate *time.Time `json:"firstEventDate,omitempty"`
	LastEventDate  *time.Time `json:"lastEventDate,omitempty"`
	BusiestDay     *time.Time `json:"busiestDay,omitempty"`
	BusiestDayN    int64      `json:"busiestDayCount"`
}

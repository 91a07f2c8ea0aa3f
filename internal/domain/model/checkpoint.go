package model

import "time"

// Checkpoint is the last durably processed position for one event source.
// Written only after a batch has been fully applied; read on startup to
// resume ingestion from LastBlock+1.
type Checkpoint struct {
	SourceID        string    `db:"source_id"`
	LastBlock       int64     `db:"last_block"`
	EventsProcessed int64     `db:"events_processed"`
	LastSyncAt      time.Time `db:"last_sync_at"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

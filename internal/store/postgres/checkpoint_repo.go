package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/AdekunleBamz/Monascribe-sub000/internal/domain/model"
)

type CheckpointRepo struct {
	db *DB
}

func NewCheckpointRepo(db *DB) *CheckpointRepo {
	return &CheckpointRepo{db: db}
}

func (r *CheckpointRepo) Get(ctx context.Context, sourceID string) (*model.Checkpoint, error) {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	var c model.Checkpoint
	err := r.db.QueryRowContext(ctx, `
		SELECT source_id, last_block, events_processed, last_sync_at, created_at, updated_at
		FROM checkpoints
		WHERE source_id = $1
	`, sourceID).Scan(
		&c.SourceID, &c.LastBlock, &c.EventsProcessed,
		&c.LastSyncAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get checkpoint: %w", err)
	}
	return &c, nil
}

// CommitTx advances the checkpoint inside the batch transaction. It is only
// called after the batch's wallet upserts are part of the same tx, making the
// checkpoint the last durable step of the batch.
func (r *CheckpointRepo) CommitTx(ctx context.Context, tx *sql.Tx, sourceID string, lastBlock int64, eventsProcessed int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO checkpoints (source_id, last_block, events_processed)
		VALUES ($1, $2, $3)
		ON CONFLICT (source_id) DO UPDATE SET
			last_block = GREATEST(checkpoints.last_block, EXCLUDED.last_block),
			events_processed = checkpoints.events_processed + EXCLUDED.events_processed,
			updated_at = now()
	`, sourceID, lastBlock, eventsProcessed)
	if err != nil {
		return fmt.Errorf("commit checkpoint: %w", err)
	}
	return nil
}

func (r *CheckpointRepo) MarkSynced(ctx context.Context, sourceID string) error {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		UPDATE checkpoints SET last_sync_at = now(), updated_at = now()
		WHERE source_id = $1
	`, sourceID)
	if err != nil {
		return fmt.Errorf("mark checkpoint synced: %w", err)
	}
	return nil
}

func (r *CheckpointRepo) EnsureExists(ctx context.Context, sourceID string) error {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO checkpoints (source_id)
		VALUES ($1)
		ON CONFLICT (source_id) DO NOTHING
	`, sourceID)
	if err != nil {
		return fmt.Errorf("ensure checkpoint exists: %w", err)
	}
	return nil
}

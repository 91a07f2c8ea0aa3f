package postgres

import (
	"context"
	"fmt"

	"github.com/AdekunleBamz/Monascribe-sub000/internal/domain/model"
	"github.com/AdekunleBamz/Monascribe-sub000/internal/store"
)

// BatchWriter commits one applied batch atomically: all mutated wallet
// states plus the checkpoint advance, in a single transaction.
type BatchWriter struct {
	db          *DB
	wallets     store.WalletRepository
	checkpoints store.CheckpointRepository
}

func NewBatchWriter(db *DB, wallets store.WalletRepository, checkpoints store.CheckpointRepository) *BatchWriter {
	return &BatchWriter{db: db, wallets: wallets, checkpoints: checkpoints}
}

func (w *BatchWriter) PersistBatch(ctx context.Context, sourceID string, lastBlock int64, eventsProcessed int64, wallets []*model.WalletState) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch tx: %w", err)
	}
	defer tx.Rollback()

	for _, state := range wallets {
		if err := w.wallets.UpsertTx(ctx, tx, state); err != nil {
			return err
		}
	}

	// Last step: the checkpoint only moves once every wallet write is in
	// the same transaction.
	if err := w.checkpoints.CommitTx(ctx, tx, sourceID, lastBlock, eventsProcessed); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch tx: %w", err)
	}
	return nil
}

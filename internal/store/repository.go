package store

import (
	"context"
	"database/sql"

	"github.com/AdekunleBamz/Monascribe-sub000/internal/domain/model"
)

// TxBeginner abstracts the ability to begin a database transaction.
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// CheckpointRepository provides access to per-source ingestion checkpoints.
type CheckpointRepository interface {
	Get(ctx context.Context, sourceID string) (*model.Checkpoint, error)
	CommitTx(ctx context.Context, tx *sql.Tx, sourceID string, lastBlock int64, eventsProcessed int64) error
	MarkSynced(ctx context.Context, sourceID string) error
	EnsureExists(ctx context.Context, sourceID string) error
}

// WalletRepository provides access to durable wallet aggregate state.
type WalletRepository interface {
	UpsertTx(ctx context.Context, tx *sql.Tx, state *model.WalletState) error
	All(ctx context.Context) ([]*model.WalletState, error)
}

// BatchWriter persists one applied batch: the mutated wallet states and the
// advanced checkpoint, in a single transaction. Checkpoint commit is the last
// durable step of a batch; a failure here leaves the batch replayable.
type BatchWriter interface {
	PersistBatch(ctx context.Context, sourceID string, lastBlock int64, eventsProcessed int64, wallets []*model.WalletState) error
}

// SyncTarget is the downstream queryable document store the engine
// materializes into. Upserts are idempotent by natural key.
type SyncTarget interface {
	UpsertWallet(ctx context.Context, doc *model.WalletDocument) error
	UpsertScore(ctx context.Context, doc *model.ScoreDocument) error
	Ping(ctx context.Context) error
}

// DedupStore records applied event ids across restarts. Seen answers whether
// a key was committed by a previous run; MarkApplied records keys and must
// only be called after the batch they belong to has persisted, so a crash
// between apply and persist leaves the keys unmarked and the replay applies.
// Implementations may expire entries; the in-memory dedup window remains the
// first line of defense.
type DedupStore interface {
	Seen(ctx context.Context, key string) (bool, error)
	MarkApplied(ctx context.Context, keys ...string) error
}

package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/AdekunleBamz/Monascribe-sub000/internal/domain/model"
)

type WalletRepo struct {
	db *DB
}

func NewWalletRepo(db *DB) *WalletRepo {
	return &WalletRepo{db: db}
}

// upsertWalletQuery overwrites counters rather than adding: the aggregator
// state is authoritative and already monotonic. The activity bounds widen
// only outward: first_seen can move back when a late event predates the row,
// last_active never moves back.
const upsertWalletQuery = `
	INSERT INTO wallet_states (
		address, total_volume, transaction_count, total_gas_cost, max_event_amount,
		first_seen, last_active, protocols, tags, is_whale
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (address) DO UPDATE SET
		total_volume = EXCLUDED.total_volume,
		transaction_count = EXCLUDED.transaction_count,
		total_gas_cost = EXCLUDED.total_gas_cost,
		max_event_amount = EXCLUDED.max_event_amount,
		first_seen = LEAST(wallet_states.first_seen, EXCLUDED.first_seen),
		last_active = GREATEST(wallet_states.last_active, EXCLUDED.last_active),
		protocols = EXCLUDED.protocols,
		tags = EXCLUDED.tags,
		is_whale = EXCLUDED.is_whale,
		updated_at = now()
`

// UpsertTx writes the full wallet aggregate.
func (r *WalletRepo) UpsertTx(ctx context.Context, tx *sql.Tx, state *model.WalletState) error {
	_, err := tx.ExecContext(ctx, upsertWalletQuery,
		state.Address,
		state.TotalVolume,
		state.TransactionCount,
		state.TotalGasCost,
		state.MaxEventAmount,
		state.FirstSeen,
		state.LastActive,
		pq.Array(state.Protocols.Sorted()),
		pq.Array(state.Tags.Sorted()),
		state.IsWhale,
	)
	if err != nil {
		return fmt.Errorf("upsert wallet %s: %w", state.Address, err)
	}
	return nil
}

// All loads every wallet aggregate, used to warm the aggregator on startup.
func (r *WalletRepo) All(ctx context.Context) ([]*model.WalletState, error) {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT address, total_volume, transaction_count, total_gas_cost, max_event_amount,
		       first_seen, last_active, protocols, tags, is_whale, updated_at
		FROM wallet_states
	`)
	if err != nil {
		return nil, fmt.Errorf("query wallets: %w", err)
	}
	defer rows.Close()

	var out []*model.WalletState
	for rows.Next() {
		var (
			s         model.WalletState
			protocols []string
			tags      []string
		)
		if err := rows.Scan(
			&s.Address, &s.TotalVolume, &s.TransactionCount, &s.TotalGasCost, &s.MaxEventAmount,
			&s.FirstSeen, &s.LastActive, pq.Array(&protocols), pq.Array(&tags), &s.IsWhale, &s.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan wallet: %w", err)
		}
		s.Protocols = model.NewTagSet(protocols...)
		s.Tags = model.NewTagSet(tags...)
		out = append(out, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate wallets: %w", err)
	}
	return out, nil
}

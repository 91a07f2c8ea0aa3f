package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AdekunleBamz/Monascribe-sub000/internal/alert"
	"github.com/AdekunleBamz/Monascribe-sub000/internal/domain/event"
	"github.com/AdekunleBamz/Monascribe-sub000/internal/pipeline/aggregator"
	"github.com/AdekunleBamz/Monascribe-sub000/internal/pipeline/normalizer"
	"github.com/AdekunleBamz/Monascribe-sub000/internal/syncer"
)

// Runner is a long-lived stage driven until context cancellation.
type Runner interface {
	Run(ctx context.Context) error
}

// Engine wires the ingest stages together: poller feeding raw batches, the
// normalizer fan-out, the single ingest loop applying canonical batches, and
// the sync service materializing downstream. The poller is optional; without
// one the ingest path idles and only sync and health remain active.
type Engine struct {
	poller     Runner
	normalizer *normalizer.Normalizer
	aggregator *aggregator.Aggregator
	sync       *syncer.Service
	health     *Health
	alerter    alert.Alerter
	logger     *slog.Logger

	canonicalCh <-chan event.CanonicalBatch
}

func NewEngine(
	poller Runner,
	norm *normalizer.Normalizer,
	agg *aggregator.Aggregator,
	sync *syncer.Service,
	canonicalCh <-chan event.CanonicalBatch,
	health *Health,
	alerter alert.Alerter,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		poller:      poller,
		normalizer:  norm,
		aggregator:  agg,
		sync:        sync,
		health:      health,
		alerter:     alerter,
		logger:      logger.With("component", "engine"),
		canonicalCh: canonicalCh,
	}
}

// Health exposes the ingest health tracker for the admin surface.
func (e *Engine) Health() *Health {
	return e.health
}

// Run drives all stages until ctx is cancelled. A stage returning a
// non-context error tears the group down; context cancellation is the normal
// shutdown path and is not reported as a failure.
func (e *Engine) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	if e.poller != nil {
		g.Go(func() error {
			return ignoreCancel(e.poller.Run(gCtx))
		})
	} else {
		e.logger.Info("no feed configured, ingest path idle")
	}

	g.Go(func() error {
		return ignoreCancel(e.normalizer.Run(gCtx))
	})

	g.Go(func() error {
		return ignoreCancel(e.ingestLoop(gCtx))
	})

	g.Go(func() error {
		return ignoreCancel(e.sync.Run(gCtx))
	})

	e.logger.Info("engine started")
	err := g.Wait()
	e.logger.Info("engine stopped")
	return err
}

// ingestLoop is the single writer: canonical batches are applied one at a
// time, so per-address ordering is whatever the feed delivered.
func (e *Engine) ingestLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case batch, ok := <-e.canonicalCh:
			if !ok {
				return nil
			}
			e.ingest(ctx, batch)
		}
	}
}

func (e *Engine) ingest(ctx context.Context, batch event.CanonicalBatch) {
	start := time.Now()

	res, err := e.aggregator.ApplyBatch(ctx, batch)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		e.logger.Error("batch apply failed",
			"source", batch.SourceID, "from", batch.FromBlock, "to", batch.ToBlock,
			"error", err)
		if e.health.RecordFailure() && e.alerter != nil {
			_ = e.alerter.Send(ctx, alert.Alert{
				Type:    alert.AlertTypeUnhealthy,
				Source:  batch.SourceID,
				Title:   "Ingest pipeline unhealthy",
				Message: fmt.Sprintf("batch apply failing at block %d: %v", batch.ToBlock, err),
			})
		}
		return
	}

	if e.health.RecordSuccess(time.Since(start)) && e.alerter != nil {
		_ = e.alerter.Send(ctx, alert.Alert{
			Type:    alert.AlertTypeRecovery,
			Source:  batch.SourceID,
			Title:   "Ingest pipeline recovered",
			Message: fmt.Sprintf("batch apply succeeding again at block %d", batch.ToBlock),
		})
	}

	e.logger.Debug("batch ingested",
		"source", batch.SourceID, "from", batch.FromBlock, "to", batch.ToBlock,
		"applied", res.Applied, "duplicates", res.Duplicates, "dropped", batch.Dropped)
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

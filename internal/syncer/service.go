package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/AdekunleBamz/Monascribe-sub000/internal/alert"
	"github.com/AdekunleBamz/Monascribe-sub000/internal/domain/model"
	"github.com/AdekunleBamz/Monascribe-sub000/internal/metrics"
	"github.com/AdekunleBamz/Monascribe-sub000/internal/store"
)

// StateSource is the read side of the aggregator: current aggregates by
// address, and the full address roster for reconcile passes.
type StateSource interface {
	Wallet(address string) (*model.WalletState, bool)
	Addresses() []string
}

// Result summarizes one sync run.
type Result struct {
	Synced int
	Errors int
}

// Service materializes wallet aggregates into the downstream document store.
// It drains the dirty outbox on a nudge or on a timer, and periodically
// reconciles every tracked address so drift from missed marks heals itself.
// Per-document failures are counted and requeued, never fatal to the run.
type Service struct {
	source      StateSource
	target      store.SyncTarget
	checkpoints store.CheckpointRepository
	outbox      *Outbox
	thresholds  model.Thresholds
	breaker     *targetBreaker
	alerter     alert.Alerter
	logger      *slog.Logger

	sourceID          string
	interval          time.Duration
	reconcileInterval time.Duration
	nowFn             func() time.Time
}

type Option func(*Service)

// WithAlerter routes run failures to an alert channel.
func WithAlerter(a alert.Alerter) Option {
	return func(s *Service) { s.alerter = a }
}

// WithNow overrides the clock used for score recomputation, for tests.
func WithNow(nowFn func() time.Time) Option {
	return func(s *Service) { s.nowFn = nowFn }
}

func New(
	source StateSource,
	target store.SyncTarget,
	checkpoints store.CheckpointRepository,
	outbox *Outbox,
	thresholds model.Thresholds,
	sourceID string,
	interval, reconcileInterval time.Duration,
	logger *slog.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		source:            source,
		target:            target,
		checkpoints:       checkpoints,
		outbox:            outbox,
		thresholds:        thresholds,
		sourceID:          sourceID,
		interval:          interval,
		reconcileInterval: reconcileInterval,
		logger:            logger.With("component", "syncer"),
		nowFn:             time.Now,
	}
	s.breaker = newTargetBreaker(5, 30*time.Second, func(from, to breakerState) {
		s.logger.Warn("sync target circuit state changed", "from", from.String(), "to", to.String())
	})
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run drives the sync loop until ctx is cancelled. Nudges from the outbox
// flush promptly; the interval ticker catches requeued failures; the
// reconcile ticker re-materializes the full roster.
func (s *Service) Run(ctx context.Context) error {
	if s.interval <= 0 {
		s.interval = 30 * time.Second
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	var reconcileC <-chan time.Time
	if s.reconcileInterval > 0 {
		reconcile := time.NewTicker(s.reconcileInterval)
		defer reconcile.Stop()
		reconcileC = reconcile.C
	}

	s.logger.Info("sync loop started",
		"interval", s.interval, "reconcile_interval", s.reconcileInterval)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sync loop stopping")
			return ctx.Err()
		case <-s.outbox.Notify():
			s.run(ctx, "notify", s.outbox.Drain())
		case <-ticker.C:
			s.run(ctx, "periodic", s.outbox.Drain())
		case <-reconcileC:
			s.run(ctx, "reconcile", s.source.Addresses())
		}
	}
}

// Flush drains the outbox and syncs immediately. Exposed for startup catch-up
// and tests; the loop normally reacts to nudges on its own.
func (s *Service) Flush(ctx context.Context) Result {
	return s.run(ctx, "flush", s.outbox.Drain())
}

// Reconcile syncs every tracked address regardless of dirtiness.
func (s *Service) Reconcile(ctx context.Context) Result {
	return s.run(ctx, "reconcile", s.source.Addresses())
}

func (s *Service) run(ctx context.Context, trigger string, addrs []string) Result {
	if len(addrs) == 0 {
		return Result{}
	}

	if err := s.breaker.allow(); err != nil {
		s.outbox.Requeue(addrs...)
		s.logger.Warn("sync run skipped", "trigger", trigger, "addresses", len(addrs), "error", err)
		return Result{}
	}

	start := time.Now()
	now := s.nowFn()
	var res Result
	var failed []string

	for i, addr := range addrs {
		if ctx.Err() != nil {
			s.outbox.Requeue(addrs[i:]...)
			break
		}

		state, ok := s.source.Wallet(addr)
		if !ok {
			// Marked dirty but never aggregated; nothing to materialize.
			continue
		}

		if err := s.syncOne(ctx, state, now); err != nil {
			s.breaker.recordFailure()
			metrics.SyncDocErrors.Inc()
			res.Errors++
			failed = append(failed, addr)
			s.logger.Warn("document sync failed", "address", addr, "error", err)
			continue
		}
		s.breaker.recordSuccess()
		metrics.SyncDocsUpserted.Inc()
		res.Synced++
	}

	s.outbox.Requeue(failed...)

	metrics.SyncRunsTotal.WithLabelValues(trigger).Inc()
	metrics.SyncBatchLatency.Observe(time.Since(start).Seconds())

	if res.Errors > 0 {
		metrics.SyncRunErrors.Inc()
		if s.alerter != nil {
			_ = s.alerter.Send(ctx, alert.Alert{
				Type:    alert.AlertTypeSyncFailure,
				Source:  s.sourceID,
				Title:   "Materialized store sync degraded",
				Message: fmt.Sprintf("%d of %d documents failed to sync", res.Errors, res.Synced+res.Errors),
				Fields: map[string]string{
					"trigger": trigger,
					"synced":  fmt.Sprintf("%d", res.Synced),
					"errors":  fmt.Sprintf("%d", res.Errors),
				},
			})
		}
	} else if res.Synced > 0 && s.checkpoints != nil {
		if err := s.checkpoints.MarkSynced(ctx, s.sourceID); err != nil {
			s.logger.Warn("checkpoint sync stamp failed", "error", err)
		}
	}

	s.logger.Info("sync run completed",
		"trigger", trigger, "synced", res.Synced, "errors", res.Errors,
		"duration_ms", time.Since(start).Milliseconds())

	return res
}

// syncOne recomputes the score from current state and upserts both
// projections. The score document goes second; a failure between the two
// leaves the wallet dirty, so the pair converges on retry.
func (s *Service) syncOne(ctx context.Context, state *model.WalletState, now time.Time) error {
	score := model.ComputeScore(state, s.thresholds, now)

	if err := s.target.UpsertWallet(ctx, model.ProjectWallet(state, score, now)); err != nil {
		return fmt.Errorf("upsert wallet: %w", err)
	}
	if err := s.target.UpsertScore(ctx, model.ProjectScore(score, now)); err != nil {
		return fmt.Errorf("upsert score: %w", err)
	}
	return nil
}

package feed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/AdekunleBamz/Monascribe-sub000/internal/domain/event"
	"github.com/AdekunleBamz/Monascribe-sub000/internal/metrics"
	"github.com/AdekunleBamz/Monascribe-sub000/internal/pipeline/retry"
	"github.com/AdekunleBamz/Monascribe-sub000/internal/store"
)

const (
	fetchAttempts  = 3
	baseRetryDelay = 500 * time.Millisecond
	maxRetryDelay  = 5 * time.Second
)

// Fetcher is the upstream feed surface the poller drives.
type Fetcher interface {
	LatestBlock(ctx context.Context) (int64, error)
	FetchRange(ctx context.Context, from, to int64) ([]event.RawEvent, error)
}

// Poller walks the indexer feed in fixed block windows and emits raw batches
// downstream. It resumes from the durable checkpoint at startup, then
// advances an in-memory cursor optimistically: the checkpoint itself only
// moves when the aggregator persists a batch, so a crash replays the tail
// and the dedup layer absorbs the overlap.
type Poller struct {
	fetcher     Fetcher
	checkpoints store.CheckpointRepository
	out         chan<- event.RawBatch
	limiter     *rate.Limiter
	logger      *slog.Logger

	sourceID     string
	pollInterval time.Duration
	blockRange   int64
	cursor       int64
}

func NewPoller(
	fetcher Fetcher,
	checkpoints store.CheckpointRepository,
	out chan<- event.RawBatch,
	sourceID string,
	pollInterval time.Duration,
	blockRange int64,
	rps float64,
	logger *slog.Logger,
) *Poller {
	if rps <= 0 {
		rps = 1
	}
	return &Poller{
		fetcher:      fetcher,
		checkpoints:  checkpoints,
		out:          out,
		limiter:      rate.NewLimiter(rate.Limit(rps), 1),
		logger:       logger.With("component", "feed_poller", "source", sourceID),
		sourceID:     sourceID,
		pollInterval: pollInterval,
		blockRange:   blockRange,
	}
}

// Run polls until ctx is cancelled. Poll failures are logged and counted;
// the next tick retries from the same cursor.
func (p *Poller) Run(ctx context.Context) error {
	if err := p.resume(ctx); err != nil {
		return err
	}

	p.logger.Info("feed poller started",
		"cursor", p.cursor, "interval", p.pollInterval, "block_range", p.blockRange)

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("feed poller stopping", "cursor", p.cursor)
			return ctx.Err()
		case <-ticker.C:
			if err := p.pollOnce(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				metrics.FeedErrors.WithLabelValues(p.sourceID).Inc()
				p.logger.Warn("feed poll failed", "cursor", p.cursor, "error", err)
			}
		}
	}
}

func (p *Poller) resume(ctx context.Context) error {
	if err := p.checkpoints.EnsureExists(ctx, p.sourceID); err != nil {
		return fmt.Errorf("ensure checkpoint: %w", err)
	}
	cp, err := p.checkpoints.Get(ctx, p.sourceID)
	if err != nil {
		return fmt.Errorf("load checkpoint: %w", err)
	}
	if cp != nil {
		p.cursor = cp.LastBlock
	}
	return nil
}

func (p *Poller) pollOnce(ctx context.Context) error {
	start := time.Now()
	metrics.FeedPollsTotal.WithLabelValues(p.sourceID).Inc()

	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}

	head, err := fetchWithRetry(ctx, func() (int64, error) {
		return p.fetcher.LatestBlock(ctx)
	})
	if err != nil {
		return fmt.Errorf("latest block: %w", err)
	}
	if head <= p.cursor {
		return nil
	}

	from := p.cursor + 1
	to := p.cursor + p.blockRange
	if to > head {
		to = head
	}

	events, err := fetchWithRetry(ctx, func() ([]event.RawEvent, error) {
		return p.fetcher.FetchRange(ctx, from, to)
	})
	if err != nil {
		return fmt.Errorf("fetch range [%d,%d]: %w", from, to, err)
	}

	batch := event.RawBatch{
		SourceID:  p.sourceID,
		FromBlock: from,
		ToBlock:   to,
		Events:    events,
		FetchedAt: time.Now(),
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case p.out <- batch:
	}

	// Empty windows still advance the cursor; the batch carries the window
	// bounds so the checkpoint moves past quiet block ranges too.
	p.cursor = to

	metrics.FeedEventsFetched.WithLabelValues(p.sourceID).Add(float64(len(events)))
	metrics.FeedLatency.WithLabelValues(p.sourceID).Observe(time.Since(start).Seconds())

	p.logger.Debug("feed window emitted",
		"from", from, "to", to, "events", len(events))

	return nil
}

// fetchWithRetry retries transient failures with doubling backoff inside one
// tick. Terminal failures surface immediately.
func fetchWithRetry[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	var zero T
	delay := baseRetryDelay
	for attempt := 1; ; attempt++ {
		v, err := fn()
		if err == nil {
			return v, nil
		}
		if attempt >= fetchAttempts || !retry.Classify(err).IsTransient() {
			return zero, err
		}
		if serr := retry.Sleep(ctx, delay); serr != nil {
			return zero, serr
		}
		delay = retry.NextDelay(delay, maxRetryDelay)
	}
}

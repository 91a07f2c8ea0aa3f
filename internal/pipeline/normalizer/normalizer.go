package normalizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/AdekunleBamz/Monascribe-sub000/internal/domain/event"
	"github.com/AdekunleBamz/Monascribe-sub000/internal/domain/model"
	"github.com/AdekunleBamz/Monascribe-sub000/internal/metrics"
)

// NormalizationError describes why a raw record was rejected. Rejection is
// local: the record is dropped and logged, the batch continues.
type NormalizationError struct {
	EventID string
	Field   string
	Reason  string
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("normalize event %q: field %s: %s", e.EventID, e.Field, e.Reason)
}

// Normalizer converts RawBatches into CanonicalBatches. Batches flow through
// one at a time so they reach the aggregator in feed order and the checkpoint
// never advances over an unapplied window; the per-record transform inside a
// batch fans out over workers. Malformed records never abort a batch.
type Normalizer struct {
	rawCh       <-chan event.RawBatch
	canonicalCh chan<- event.CanonicalBatch
	workerCount int
	logger      *slog.Logger
}

func New(
	rawCh <-chan event.RawBatch,
	canonicalCh chan<- event.CanonicalBatch,
	workerCount int,
	logger *slog.Logger,
) *Normalizer {
	if workerCount <= 0 {
		workerCount = 1
	}
	return &Normalizer{
		rawCh:       rawCh,
		canonicalCh: canonicalCh,
		workerCount: workerCount,
		logger:      logger.With("component", "normalizer"),
	}
}

func (n *Normalizer) Run(ctx context.Context) error {
	n.logger.Info("normalizer started", "workers", n.workerCount)
	defer n.logger.Info("normalizer stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case batch, ok := <-n.rawCh:
			if !ok {
				return nil
			}
			out := n.processBatch(batch)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case n.canonicalCh <- out:
			}
		}
	}
}

// processBatch normalizes one raw batch. Records fan out over the worker
// pool but the output keeps the raw record order.
func (n *Normalizer) processBatch(batch event.RawBatch) event.CanonicalBatch {
	canonical := make([]*model.CanonicalEvent, len(batch.Events))
	rejected := make([]error, len(batch.Events))

	workers := n.workerCount
	if workers > len(batch.Events) {
		workers = len(batch.Events)
	}

	idxCh := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range idxCh {
				ev, err := Normalize(batch.SourceID, batch.Events[i])
				if err != nil {
					rejected[i] = err
					continue
				}
				canonical[i] = &ev
			}
		}()
	}
	for i := range batch.Events {
		idxCh <- i
	}
	close(idxCh)
	wg.Wait()

	out := event.CanonicalBatch{
		SourceID:  batch.SourceID,
		FromBlock: batch.FromBlock,
		ToBlock:   batch.ToBlock,
		Events:    make([]model.CanonicalEvent, 0, len(batch.Events)),
	}
	for i, raw := range batch.Events {
		metrics.NormalizerEventsTotal.WithLabelValues(batch.SourceID).Inc()

		if err := rejected[i]; err != nil {
			out.Dropped++
			reason := "invalid"
			var nerr *NormalizationError
			if errors.As(err, &nerr) {
				reason = nerr.Field
			}
			metrics.NormalizerDropped.WithLabelValues(batch.SourceID, reason).Inc()
			n.logger.Warn("dropped malformed event", "event_id", raw.ID, "error", err)
			continue
		}
		out.Events = append(out.Events, *canonical[i])
	}
	return out
}

// Normalize validates and canonicalizes a single raw feed record. Addresses
// are lower-cased here so downstream keys never diverge by case, and the
// event id becomes source-qualified.
func Normalize(sourceID string, raw event.RawEvent) (model.CanonicalEvent, error) {
	var zero model.CanonicalEvent

	if strings.TrimSpace(raw.ID) == "" {
		return zero, &NormalizationError{Field: "id", Reason: "missing"}
	}

	kind := model.EventKind(strings.ToUpper(strings.TrimSpace(raw.Kind)))
	if !kind.Valid() {
		return zero, &NormalizationError{EventID: raw.ID, Field: "kind", Reason: fmt.Sprintf("unknown kind %q", raw.Kind)}
	}

	wallet := strings.ToLower(strings.TrimSpace(raw.Wallet))
	if wallet == "" {
		return zero, &NormalizationError{EventID: raw.ID, Field: "wallet", Reason: "missing"}
	}

	counterparty := strings.ToLower(strings.TrimSpace(raw.Counterparty))
	if kind.TwoParty() && counterparty == "" {
		return zero, &NormalizationError{EventID: raw.ID, Field: "counterparty", Reason: "missing for transfer"}
	}

	amount, err := parseAmount(raw.Amount)
	if err != nil {
		return zero, &NormalizationError{EventID: raw.ID, Field: "amount", Reason: err.Error()}
	}

	gasCost := uint64(0)
	if strings.TrimSpace(raw.GasCost) != "" {
		gasCost, err = parseAmount(raw.GasCost)
		if err != nil {
			return zero, &NormalizationError{EventID: raw.ID, Field: "gasCost", Reason: err.Error()}
		}
	}

	if raw.BlockNumber < 0 {
		return zero, &NormalizationError{EventID: raw.ID, Field: "blockNumber", Reason: "negative"}
	}
	if raw.Timestamp <= 0 {
		return zero, &NormalizationError{EventID: raw.ID, Field: "timestamp", Reason: "missing"}
	}

	protocol := strings.ToLower(strings.TrimSpace(raw.Protocol))
	if protocol == "" && (kind == model.KindSubscribed || kind == model.KindCancelled) {
		protocol = model.ProtocolSubscription
	}

	return model.CanonicalEvent{
		ID:           sourceID + ":" + raw.ID,
		Kind:         kind,
		Wallet:       wallet,
		Counterparty: counterparty,
		Amount:       amount,
		GasCost:      gasCost,
		Protocol:     protocol,
		BlockNumber:  raw.BlockNumber,
		Timestamp:    time.Unix(raw.Timestamp, 0).UTC(),
	}, nil
}

func parseAmount(s string) (uint64, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return 0, fmt.Errorf("missing")
	}
	v, err := strconv.ParseUint(trimmed, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("not a non-negative integer: %q", s)
	}
	return v, nil
}

package aggregator

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/AdekunleBamz/Monascribe-sub000/internal/domain/event"
	"github.com/AdekunleBamz/Monascribe-sub000/internal/domain/model"
	"github.com/AdekunleBamz/Monascribe-sub000/internal/metrics"
	"github.com/AdekunleBamz/Monascribe-sub000/internal/store"
)

// DirtySink receives addresses whose materialized documents are stale.
type DirtySink interface {
	MarkDirty(addrs ...string)
}

// application is one event applied to one of its affected addresses.
type application struct {
	ev      model.CanonicalEvent
	address string
	primary bool // false for the counterparty side of a transfer
}

// ApplyResult summarizes one batch application.
type ApplyResult struct {
	Applied    int
	Duplicates int
	Touched    []string
}

// Aggregator owns all WalletState. Events for one address are applied
// strictly in delivery order (address-sharded, serial within a shard);
// different addresses proceed in parallel. Nothing outside this type
// mutates wallet state.
type Aggregator struct {
	shards     []*shard
	window     *appliedWindow
	dedup      store.DedupStore // optional cross-restart dedup, may be nil
	writer     store.BatchWriter
	dirty      DirtySink
	thresholds model.Thresholds
	logger     *slog.Logger
	nowFn      func() time.Time
}

type shard struct {
	mu      sync.RWMutex
	wallets map[string]*model.WalletState
}

type Option func(*Aggregator)

// WithDedupStore adds a durable applied-id set consulted after the in-memory
// window misses. Store errors degrade to "unseen": availability wins, the
// window still bounds the damage.
func WithDedupStore(d store.DedupStore) Option {
	return func(a *Aggregator) { a.dedup = d }
}

// WithNow overrides the clock used for scoring, for tests.
func WithNow(nowFn func() time.Time) Option {
	return func(a *Aggregator) { a.nowFn = nowFn }
}

func New(
	writer store.BatchWriter,
	dirty DirtySink,
	thresholds model.Thresholds,
	shardCount int,
	dedupWindowSize int,
	logger *slog.Logger,
	opts ...Option,
) *Aggregator {
	if shardCount <= 0 {
		shardCount = 1
	}
	shards := make([]*shard, shardCount)
	for i := range shards {
		shards[i] = &shard{wallets: make(map[string]*model.WalletState)}
	}

	a := &Aggregator{
		shards:     shards,
		window:     newAppliedWindow(dedupWindowSize),
		writer:     writer,
		dirty:      dirty,
		thresholds: thresholds,
		logger:     logger.With("component", "aggregator"),
		nowFn:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Warm seeds the wallet table from durable state, called once before the
// pipeline starts.
func (a *Aggregator) Warm(states []*model.WalletState) {
	for _, st := range states {
		s := a.shardFor(st.Address)
		s.wallets[st.Address] = st.Clone()
	}
	a.publishGauges()
	a.logger.Info("wallet state warmed", "wallets", len(states))
}

// ApplyBatch folds a canonical batch into wallet state, persists the mutated
// aggregates together with the checkpoint advance, and marks the touched
// addresses dirty for materialization.
//
// Duplicate events count as touched: re-upserting the current aggregate is
// idempotent and heals a previously failed persist.
func (a *Aggregator) ApplyBatch(ctx context.Context, batch event.CanonicalBatch) (ApplyResult, error) {
	start := time.Now()
	var res ApplyResult

	parts := make([][]application, len(a.shards))
	for _, ev := range batch.Events {
		parts[a.shardIndex(ev.Wallet)] = append(parts[a.shardIndex(ev.Wallet)], application{ev: ev, address: ev.Wallet, primary: true})
		if ev.Kind.TwoParty() && ev.Counterparty != "" && ev.Counterparty != ev.Wallet {
			parts[a.shardIndex(ev.Counterparty)] = append(parts[a.shardIndex(ev.Counterparty)], application{ev: ev, address: ev.Counterparty})
		}
	}

	results := make([]shardResult, len(a.shards))
	var wg sync.WaitGroup
	for i, apps := range parts {
		if len(apps) == 0 {
			continue
		}
		wg.Add(1)
		go func(i int, apps []application) {
			defer wg.Done()
			results[i] = a.applyShard(ctx, i, apps)
		}(i, apps)
	}
	wg.Wait()

	touched := make(map[string]*model.WalletState)
	var appliedKeys []string
	for _, r := range results {
		res.Applied += r.applied
		res.Duplicates += r.duplicates
		appliedKeys = append(appliedKeys, r.appliedKeys...)
		for addr, st := range r.touched {
			touched[addr] = st
		}
	}

	addrs := make([]string, 0, len(touched))
	states := make([]*model.WalletState, 0, len(touched))
	for addr, st := range touched {
		addrs = append(addrs, addr)
		states = append(states, st)
	}
	sort.Strings(addrs)
	res.Touched = addrs

	if err := a.writer.PersistBatch(ctx, batch.SourceID, batch.ToBlock, int64(res.Applied), states); err != nil {
		return res, err
	}

	// Durable markers only cover persisted batches. Crashing before this
	// point leaves the keys unmarked and the refetched window re-applies;
	// crashing after is harmless because the checkpoint already advanced.
	if a.dedup != nil && len(appliedKeys) > 0 {
		if err := a.dedup.MarkApplied(ctx, appliedKeys...); err != nil {
			a.logger.Warn("dedup store mark failed, relying on window", "error", err)
		}
	}

	if len(addrs) > 0 && a.dirty != nil {
		a.dirty.MarkDirty(addrs...)
	}

	metrics.AggregatorEventsApplied.WithLabelValues(batch.SourceID).Add(float64(res.Applied))
	metrics.AggregatorDuplicates.WithLabelValues(batch.SourceID).Add(float64(res.Duplicates))
	metrics.AggregatorBatchLatency.WithLabelValues(batch.SourceID).Observe(time.Since(start).Seconds())
	a.publishGauges()

	return res, nil
}

type shardResult struct {
	applied     int
	duplicates  int
	appliedKeys []string                      // marked durable only after persist
	touched     map[string]*model.WalletState // clones, safe to persist
}

func (a *Aggregator) applyShard(ctx context.Context, idx int, apps []application) shardResult {
	res := shardResult{touched: make(map[string]*model.WalletState, len(apps))}
	s := a.shards[idx]

	s.mu.Lock()
	defer s.mu.Unlock()

	now := a.nowFn()
	for _, app := range apps {
		key := app.ev.ID + "|" + app.address

		if !a.window.markIfNew(key) {
			res.duplicates++
			if st, ok := s.wallets[app.address]; ok {
				res.touched[app.address] = st.Clone()
			}
			continue
		}
		if a.dedup != nil {
			seen, err := a.dedup.Seen(ctx, key)
			if err != nil {
				a.logger.Warn("dedup store unavailable, relying on window", "error", err)
			} else if seen {
				res.duplicates++
				if st, ok := s.wallets[app.address]; ok {
					res.touched[app.address] = st.Clone()
				}
				continue
			}
		}

		st := a.applyOne(s, app, now)
		res.applied++
		res.appliedKeys = append(res.appliedKeys, key)
		res.touched[app.address] = st.Clone()
	}

	return res
}

// applyOne mutates one wallet's state under the shard lock. Counters only
// grow; lastActive uses max so late or replayed events never move it back.
func (a *Aggregator) applyOne(s *shard, app application, now time.Time) *model.WalletState {
	ev := app.ev

	st, ok := s.wallets[app.address]
	if !ok {
		st = model.NewWalletState(app.address, ev.Timestamp)
		s.wallets[app.address] = st
	}

	st.TotalVolume += ev.Amount
	st.TransactionCount++
	if ev.Timestamp.After(st.LastActive) {
		st.LastActive = ev.Timestamp
	}
	if ev.Timestamp.Before(st.FirstSeen) {
		st.FirstSeen = ev.Timestamp
	}
	if app.primary {
		st.TotalGasCost += ev.GasCost
	}
	if ev.Amount > st.MaxEventAmount {
		st.MaxEventAmount = ev.Amount
	}
	if ev.Protocol != "" {
		st.Protocols.Add(ev.Protocol)
	}

	score := model.ComputeScore(st, a.thresholds, now)
	cls := a.thresholds.Classify(st, score)
	st.Tags = cls.Tags
	st.IsWhale = cls.IsWhale
	st.UpdatedAt = now

	return st
}

// Wallet returns a copy of one wallet's state.
func (a *Aggregator) Wallet(address string) (*model.WalletState, bool) {
	s := a.shardFor(address)
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.wallets[address]
	if !ok {
		return nil, false
	}
	return st.Clone(), true
}

// Addresses returns every tracked wallet address.
func (a *Aggregator) Addresses() []string {
	var out []string
	for _, s := range a.shards {
		s.mu.RLock()
		for addr := range s.wallets {
			out = append(out, addr)
		}
		s.mu.RUnlock()
	}
	sort.Strings(out)
	return out
}

func (a *Aggregator) publishGauges() {
	var wallets, whales int
	for _, s := range a.shards {
		s.mu.RLock()
		wallets += len(s.wallets)
		for _, st := range s.wallets {
			if st.IsWhale {
				whales++
			}
		}
		s.mu.RUnlock()
	}
	metrics.WalletsTracked.Set(float64(wallets))
	metrics.WhalesTracked.Set(float64(whales))
}

func (a *Aggregator) shardIndex(address string) int {
	h := fnv.New32a()
	h.Write([]byte(address))
	return int(h.Sum32() % uint32(len(a.shards)))
}

func (a *Aggregator) shardFor(address string) *shard {
	return a.shards[a.shardIndex(address)]
}

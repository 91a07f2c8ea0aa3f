package syncer

import (
	"sort"
	"sync"

	"github.com/AdekunleBamz/Monascribe-sub000/internal/metrics"
)

// Outbox tracks addresses whose materialized documents are stale. It is the
// bridge between the aggregator (which marks addresses dirty after every
// persisted batch) and the sync service (which drains them). Marking an
// already-dirty address coalesces; an address is never synced more often
// than it is drained.
type Outbox struct {
	mu     sync.Mutex
	dirty  map[string]struct{}
	notify chan struct{}
}

func NewOutbox() *Outbox {
	return &Outbox{
		dirty:  make(map[string]struct{}),
		notify: make(chan struct{}, 1),
	}
}

// MarkDirty records addrs as needing materialization and nudges the sync
// loop. The notify channel has capacity one; a pending nudge absorbs later
// ones, the drain picks up everything marked so far.
func (o *Outbox) MarkDirty(addrs ...string) {
	if len(addrs) == 0 {
		return
	}
	o.mu.Lock()
	for _, a := range addrs {
		o.dirty[a] = struct{}{}
	}
	backlog := len(o.dirty)
	o.mu.Unlock()

	metrics.SyncDirtyBacklog.Set(float64(backlog))

	select {
	case o.notify <- struct{}{}:
	default:
	}
}

// Requeue puts addrs back without a nudge. Used for documents that failed to
// upsert; the next periodic run retries them.
func (o *Outbox) Requeue(addrs ...string) {
	if len(addrs) == 0 {
		return
	}
	o.mu.Lock()
	for _, a := range addrs {
		o.dirty[a] = struct{}{}
	}
	backlog := len(o.dirty)
	o.mu.Unlock()

	metrics.SyncDirtyBacklog.Set(float64(backlog))
}

// Drain removes and returns all dirty addresses in lexical order.
func (o *Outbox) Drain() []string {
	o.mu.Lock()
	addrs := make([]string, 0, len(o.dirty))
	for a := range o.dirty {
		addrs = append(addrs, a)
	}
	o.dirty = make(map[string]struct{})
	o.mu.Unlock()

	metrics.SyncDirtyBacklog.Set(0)

	sort.Strings(addrs)
	return addrs
}

// Notify returns the channel signaled after MarkDirty.
func (o *Outbox) Notify() <-chan struct{} {
	return o.notify
}

func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.dirty)
}

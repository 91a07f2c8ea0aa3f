package pipeline

import (
	"sort"
	"sync"
	"time"
)

// HealthStatus is the engine's ingest health for one event source.
type HealthStatus string

const (
	HealthStatusUnknown   HealthStatus = "UNKNOWN"
	HealthStatusHealthy   HealthStatus = "HEALTHY"
	HealthStatusDegraded  HealthStatus = "DEGRADED"
	HealthStatusUnhealthy HealthStatus = "UNHEALTHY"

	// DefaultUnhealthyThreshold is the number of consecutive batch
	// failures before the source is considered unhealthy.
	DefaultUnhealthyThreshold = 5

	// DefaultDegradedLatencyThreshold marks the source degraded when the
	// P95 batch latency exceeds it.
	DefaultDegradedLatencyThreshold = 5 * time.Second

	latencyWindowSize = 10
)

// Health tracks batch-level ingest health for a single source. Connectivity
// failures degrade this signal instead of crashing the process; downstream
// staleness is the accepted failure mode.
type Health struct {
	mu                  sync.RWMutex
	source              string
	status              HealthStatus
	consecutiveFailures int
	lastSuccessAt       *time.Time
	lastFailureAt       *time.Time
	unhealthyThreshold  int
	recentLatencies     []time.Duration
	degradedLatency     time.Duration
}

func NewHealth(source string) *Health {
	return &Health{
		source:             source,
		status:             HealthStatusUnknown,
		unhealthyThreshold: DefaultUnhealthyThreshold,
		recentLatencies:    make([]time.Duration, 0, latencyWindowSize),
		degradedLatency:    DefaultDegradedLatencyThreshold,
	}
}

// RecordSuccess notes a successfully applied batch and returns true when it
// recovers the source from an unhealthy state.
func (h *Health) RecordSuccess(latency time.Duration) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := time.Now()
	wasUnhealthy := h.status == HealthStatusUnhealthy
	h.consecutiveFailures = 0
	h.lastSuccessAt = &now

	if len(h.recentLatencies) >= latencyWindowSize {
		h.recentLatencies = h.recentLatencies[1:]
	}
	h.recentLatencies = append(h.recentLatencies, latency)

	if h.latencyDegraded() {
		h.status = HealthStatusDegraded
	} else {
		h.status = HealthStatusHealthy
	}
	return wasUnhealthy
}

// RecordFailure notes a failed batch and returns true when this failure
// tipped the source into unhealthy.
func (h *Health) RecordFailure() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := time.Now()
	h.consecutiveFailures++
	h.lastFailureAt = &now
	if h.consecutiveFailures >= h.unhealthyThreshold && h.status != HealthStatusUnhealthy {
		h.status = HealthStatusUnhealthy
		return true
	}
	return false
}

func (h *Health) Status() HealthStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.status
}

// latencyDegraded reports whether the P95 of the recent window exceeds the
// degraded threshold. Caller holds mu.
func (h *Health) latencyDegraded() bool {
	n := len(h.recentLatencies)
	if n < 2 {
		return false
	}
	sorted := make([]time.Duration, n)
	copy(sorted, h.recentLatencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := (95*n - 1) / 100
	if idx >= n {
		idx = n - 1
	}
	return sorted[idx] > h.degradedLatency
}

// Snapshot is a point-in-time JSON-safe view served by /healthz.
type Snapshot struct {
	Source              string     `json:"source"`
	Status              string     `json:"status"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	LastSuccessAt       *time.Time `json:"last_success_at,omitempty"`
	LastFailureAt       *time.Time `json:"last_failure_at,omitempty"`
}

func (h *Health) Snapshot() Snapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return Snapshot{
		Source:              h.source,
		Status:              string(h.status),
		ConsecutiveFailures: h.consecutiveFailures,
		LastSuccessAt:       h.lastSuccessAt,
		LastFailureAt:       h.lastFailureAt,
	}
}

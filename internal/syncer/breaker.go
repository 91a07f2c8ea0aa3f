package syncer

import (
	"errors"
	"sync"
	"time"
)

// errTargetOpen is returned while the document store is considered down and
// sync runs are being skipped.
var errTargetOpen = errors.New("sync target circuit open")

type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

func (s breakerState) String() string {
	switch s {
	case breakerClosed:
		return "closed"
	case breakerOpen:
		return "open"
	case breakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// targetBreaker guards the sync target. Consecutive upsert failures open the
// circuit; while open, whole runs are skipped instead of grinding through a
// dead store document by document. After openTimeout a probe run is allowed.
type targetBreaker struct {
	mu               sync.Mutex
	state            breakerState
	failures         int
	successes        int
	failureThreshold int
	successThreshold int
	openTimeout      time.Duration
	lastFailureAt    time.Time
	onStateChange    func(from, to breakerState)
}

func newTargetBreaker(failureThreshold int, openTimeout time.Duration, onStateChange func(from, to breakerState)) *targetBreaker {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if openTimeout <= 0 {
		openTimeout = 30 * time.Second
	}
	return &targetBreaker{
		failureThreshold: failureThreshold,
		successThreshold: 2,
		openTimeout:      openTimeout,
		onStateChange:    onStateChange,
	}
}

func (b *targetBreaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case breakerOpen:
		if time.Since(b.lastFailureAt) > b.openTimeout {
			b.setState(breakerHalfOpen)
			return nil
		}
		return errTargetOpen
	default:
		return nil
	}
}

func (b *targetBreaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	if b.state == breakerHalfOpen {
		b.successes++
		if b.successes >= b.successThreshold {
			b.setState(breakerClosed)
		}
	}
}

func (b *targetBreaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	b.successes = 0
	b.lastFailureAt = time.Now()
	if b.state == breakerHalfOpen {
		b.setState(breakerOpen)
	} else if b.state == breakerClosed && b.failures >= b.failureThreshold {
		b.setState(breakerOpen)
	}
}

func (b *targetBreaker) setState(to breakerState) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.successes = 0
	if to == breakerClosed {
		b.failures = 0
	}
	if b.onStateChange != nil {
		b.onStateChange(from, to)
	}
}

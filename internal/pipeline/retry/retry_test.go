package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNetError struct{ timeout bool }

func (e *fakeNetError) Error() string   { return "fake net error" }
func (e *fakeNetError) Timeout() bool   { return e.timeout }
func (e *fakeNetError) Temporary() bool { return false }

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want Class
	}{
		{"nil", nil, ClassTerminal},
		{"explicit transient", Transient(errors.New("boom")), ClassTransient},
		{"explicit terminal", Terminal(errors.New("boom")), ClassTerminal},
		{"wrapped explicit transient", fmt.Errorf("outer: %w", Transient(errors.New("inner"))), ClassTransient},
		{"context canceled", context.Canceled, ClassTerminal},
		{"deadline exceeded", context.DeadlineExceeded, ClassTransient},
		{"net timeout", &fakeNetError{timeout: true}, ClassTransient},
		{"net non-timeout", &fakeNetError{}, ClassTransient},
		{"connection refused message", errors.New("dial tcp: connection refused"), ClassTransient},
		{"rate limit message", errors.New("feed: rate limit exceeded"), ClassTransient},
		{"mongo server selection", errors.New("server selection error: context deadline"), ClassTransient},
		{"graphql error message", errors.New("graphql: Unknown field 'foo'"), ClassTerminal},
		{"duplicate key", errors.New("pq: duplicate key value violates unique constraint"), ClassTerminal},
		{"unknown defaults terminal", errors.New("something odd"), ClassTerminal},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.err).Class)
		})
	}
}

func TestSleep_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Sleep(ctx, time.Hour)
	require.ErrorIs(t, err, context.Canceled)
}

func TestNextDelay(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 200*time.Millisecond, NextDelay(100*time.Millisecond, time.Second))
	assert.Equal(t, time.Second, NextDelay(800*time.Millisecond, time.Second))
	assert.Equal(t, time.Second, NextDelay(time.Second, time.Second))
}

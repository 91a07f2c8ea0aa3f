package feed

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AdekunleBamz/Monascribe-sub000/internal/domain/event"
	"github.com/AdekunleBamz/Monascribe-sub000/internal/domain/model"
	"github.com/AdekunleBamz/Monascribe-sub000/internal/pipeline/retry"
)

type fakeCheckpoints struct {
	lastBlock int64
}

func (f *fakeCheckpoints) Get(context.Context, string) (*model.Checkpoint, error) {
	if f.lastBlock == 0 {
		return nil, nil
	}
	return &model.Checkpoint{SourceID: "monad", LastBlock: f.lastBlock}, nil
}

func (f *fakeCheckpoints) CommitTx(context.Context, *sql.Tx, string, int64, int64) error {
	return nil
}

func (f *fakeCheckpoints) MarkSynced(context.Context, string) error { return nil }

func (f *fakeCheckpoints) EnsureExists(context.Context, string) error { return nil }

type fakeFetcher struct {
	mu         sync.Mutex
	head       int64
	headErr    error
	rangeErr   error
	rangeCalls [][2]int64
	events     map[[2]int64][]event.RawEvent
}

func (f *fakeFetcher) LatestBlock(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.headErr != nil {
		return 0, f.headErr
	}
	return f.head, nil
}

func (f *fakeFetcher) FetchRange(_ context.Context, from, to int64) ([]event.RawEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rangeErr != nil {
		return nil, f.rangeErr
	}
	f.rangeCalls = append(f.rangeCalls, [2]int64{from, to})
	return f.events[[2]int64{from, to}], nil
}

func newTestPoller(fetcher Fetcher, cp *fakeCheckpoints, out chan event.RawBatch) *Poller {
	return NewPoller(fetcher, cp, out, "monad", 10*time.Millisecond, 500, 100, slog.Default())
}

func TestPoller_ResumesFromCheckpoint(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{
		head: 700,
		events: map[[2]int64][]event.RawEvent{
			{101, 600}: {{ID: "ev-1", Kind: "TRANSFER", Wallet: "0xAAA", Counterparty: "0xBBB", Amount: "5", BlockNumber: 150, Timestamp: 1700000000}},
		},
	}
	out := make(chan event.RawBatch, 1)
	p := newTestPoller(fetcher, &fakeCheckpoints{lastBlock: 100}, out)

	require.NoError(t, p.resume(context.Background()))
	require.NoError(t, p.pollOnce(context.Background()))

	batch := <-out
	assert.Equal(t, "monad", batch.SourceID)
	assert.Equal(t, int64(101), batch.FromBlock)
	assert.Equal(t, int64(600), batch.ToBlock, "window capped by block range, not head")
	require.Len(t, batch.Events, 1)
	assert.Equal(t, "ev-1", batch.Events[0].ID)

	// The next window continues from the in-memory cursor up to head.
	require.NoError(t, p.pollOnce(context.Background()))
	batch = <-out
	assert.Equal(t, int64(601), batch.FromBlock)
	assert.Equal(t, int64(700), batch.ToBlock)
}

func TestPoller_IdleAtHead(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{head: 100}
	out := make(chan event.RawBatch, 1)
	p := newTestPoller(fetcher, &fakeCheckpoints{lastBlock: 100}, out)

	require.NoError(t, p.resume(context.Background()))
	require.NoError(t, p.pollOnce(context.Background()))
	assert.Empty(t, fetcher.rangeCalls, "no range query at head")
	assert.Empty(t, out)
}

func TestPoller_EmptyWindowAdvancesCursor(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{head: 50}
	out := make(chan event.RawBatch, 1)
	p := newTestPoller(fetcher, &fakeCheckpoints{}, out)

	require.NoError(t, p.resume(context.Background()))
	require.NoError(t, p.pollOnce(context.Background()))

	batch := <-out
	assert.Empty(t, batch.Events)
	assert.Equal(t, int64(1), batch.FromBlock)
	assert.Equal(t, int64(50), batch.ToBlock)
	assert.Equal(t, int64(50), p.cursor)
}

func TestPoller_TerminalErrorDoesNotAdvance(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{headErr: retry.Terminal(errors.New("bad query"))}
	out := make(chan event.RawBatch, 1)
	p := newTestPoller(fetcher, &fakeCheckpoints{lastBlock: 42}, out)

	require.NoError(t, p.resume(context.Background()))
	require.Error(t, p.pollOnce(context.Background()))
	assert.Equal(t, int64(42), p.cursor)
}

func TestFetchWithRetry_TransientThenSuccess(t *testing.T) {
	t.Parallel()

	calls := 0
	v, err := fetchWithRetry(context.Background(), func() (int, error) {
		calls++
		if calls < 3 {
			return 0, retry.Transient(errors.New("connection refused"))
		}
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.Equal(t, 3, calls)
}

func TestFetchWithRetry_TerminalFailsFast(t *testing.T) {
	t.Parallel()

	calls := 0
	_, err := fetchWithRetry(context.Background(), func() (int, error) {
		calls++
		return 0, retry.Terminal(errors.New("unknown field"))
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestClient_FetchRange(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req struct {
			Query     string         `json:"query"`
			Variables map[string]any `json:"variables"`
		}
		require.NoError(t, json.Unmarshal(body, &req))
		assert.Contains(t, req.Query, "events(fromBlock:")
		assert.EqualValues(t, 1, req.Variables["fromBlock"])
		assert.EqualValues(t, 500, req.Variables["toBlock"])

		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"events": []map[string]any{
					{
						"id": "ev-9", "kind": "DEX_TRADE", "wallet": "0xabc",
						"amount": "1200", "gasCost": "30",
						"protocol": "uniswap", "blockNumber": 120, "timestamp": 1700000123,
					},
				},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, slog.Default())
	events, err := c.FetchRange(context.Background(), 1, 500)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "ev-9", events[0].ID)
	assert.Equal(t, "1200", events[0].Amount)
	assert.Equal(t, int64(120), events[0].BlockNumber)
}

func TestClient_LatestBlock(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"latestBlock": 123456},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, slog.Default())
	head, err := c.LatestBlock(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(123456), head)
}

func TestClient_GraphQLError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"errors": []map[string]any{{"message": "rate limited"}},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, slog.Default())
	_, err := c.FetchRange(context.Background(), 1, 10)
	require.Error(t, err)
}

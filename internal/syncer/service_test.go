package syncer

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AdekunleBamz/Monascribe-sub000/internal/alert"
	"github.com/AdekunleBamz/Monascribe-sub000/internal/domain/model"
)

var testTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeSource struct {
	wallets map[string]*model.WalletState
}

func (f *fakeSource) Wallet(address string) (*model.WalletState, bool) {
	st, ok := f.wallets[address]
	if !ok {
		return nil, false
	}
	return st.Clone(), true
}

func (f *fakeSource) Addresses() []string {
	out := make([]string, 0, len(f.wallets))
	for a := range f.wallets {
		out = append(out, a)
	}
	return out
}

type fakeTarget struct {
	mu          sync.Mutex
	failWallets map[string]error
	wallets     map[string]*model.WalletDocument
	scores      map[string]*model.ScoreDocument
}

func newFakeTarget() *fakeTarget {
	return &fakeTarget{
		failWallets: make(map[string]error),
		wallets:     make(map[string]*model.WalletDocument),
		scores:      make(map[string]*model.ScoreDocument),
	}
}

func (f *fakeTarget) UpsertWallet(_ context.Context, doc *model.WalletDocument) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failWallets[doc.Address]; ok {
		return err
	}
	f.wallets[doc.Address] = doc
	return nil
}

func (f *fakeTarget) UpsertScore(_ context.Context, doc *model.ScoreDocument) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scores[doc.Wallet] = doc
	return nil
}

func (f *fakeTarget) Ping(context.Context) error { return nil }

type fakeCheckpoints struct {
	mu     sync.Mutex
	synced []string
}

func (f *fakeCheckpoints) MarkSynced(_ context.Context, sourceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.synced = append(f.synced, sourceID)
	return nil
}

func (f *fakeCheckpoints) Get(context.Context, string) (*model.Checkpoint, error) { return nil, nil }

func (f *fakeCheckpoints) CommitTx(context.Context, *sql.Tx, string, int64, int64) error { return nil }

func (f *fakeCheckpoints) EnsureExists(context.Context, string) error { return nil }

type captureAlerter struct {
	mu     sync.Mutex
	alerts []alert.Alert
}

func (c *captureAlerter) Send(_ context.Context, a alert.Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alerts = append(c.alerts, a)
	return nil
}

func walletState(addr string, volume uint64, count int64) *model.WalletState {
	st := model.NewWalletState(addr, testTime.Add(-24*time.Hour))
	st.TotalVolume = volume
	st.TransactionCount = count
	st.LastActive = testTime.Add(-time.Hour)
	return st
}

type testHarness struct {
	svc         *Service
	source      *fakeSource
	target      *fakeTarget
	checkpoints *fakeCheckpoints
	outbox      *Outbox
	alerter     *captureAlerter
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()
	h := &testHarness{
		source:      &fakeSource{wallets: make(map[string]*model.WalletState)},
		target:      newFakeTarget(),
		checkpoints: &fakeCheckpoints{},
		outbox:      NewOutbox(),
		alerter:     &captureAlerter{},
	}
	h.svc = New(
		h.source, h.target, h.checkpoints, h.outbox,
		model.DefaultThresholds(), "monad",
		time.Second, time.Minute,
		slog.Default(),
		WithAlerter(h.alerter),
		WithNow(func() time.Time { return testTime }),
	)
	return h
}

func TestFlush_MaterializesBothProjections(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.source.wallets["0xaaa"] = walletState("0xaaa", 50_000, 10)
	h.outbox.MarkDirty("0xaaa")

	res := h.svc.Flush(context.Background())
	assert.Equal(t, 1, res.Synced)
	assert.Equal(t, 0, res.Errors)

	doc := h.target.wallets["0xaaa"]
	require.NotNil(t, doc)
	assert.Equal(t, uint64(50_000), doc.TotalVolume)
	assert.Equal(t, testTime, doc.SyncedAt)

	score := h.target.scores["0xaaa"]
	require.NotNil(t, score)
	assert.Equal(t, model.ScoreDocumentID("0xaaa"), score.ID)
	assert.InDelta(t, 50.0, score.VolumeScore, 0.001)
	assert.Equal(t, doc.TotalScore, score.TotalScore, "both projections carry the same recomputed score")

	h.checkpoints.mu.Lock()
	defer h.checkpoints.mu.Unlock()
	assert.Equal(t, []string{"monad"}, h.checkpoints.synced)
}

func TestFlush_PartialFailureKeepsGoing(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	for i := 0; i < 10; i++ {
		addr := "0xw" + strconv.Itoa(i)
		h.source.wallets[addr] = walletState(addr, 1000, 1)
		h.outbox.MarkDirty(addr)
	}
	h.target.failWallets["0xw3"] = errors.New("write concern timeout")

	res := h.svc.Flush(context.Background())
	assert.Equal(t, 9, res.Synced)
	assert.Equal(t, 1, res.Errors)

	// The failed address stays dirty for the next periodic retry.
	assert.Equal(t, 1, h.outbox.Len())
	assert.Equal(t, []string{"0xw3"}, h.outbox.Drain())

	// Degraded runs do not stamp the checkpoint.
	h.checkpoints.mu.Lock()
	assert.Empty(t, h.checkpoints.synced)
	h.checkpoints.mu.Unlock()

	h.alerter.mu.Lock()
	defer h.alerter.mu.Unlock()
	require.Len(t, h.alerter.alerts, 1)
	assert.Equal(t, alert.AlertTypeSyncFailure, h.alerter.alerts[0].Type)
}

func TestFlush_UnknownAddressSkipped(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.outbox.MarkDirty("0xghost")

	res := h.svc.Flush(context.Background())
	assert.Equal(t, Result{}, res)
	assert.Equal(t, 0, h.outbox.Len())
}

func TestFlush_BreakerSkipsRunWhileOpen(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	for i := 0; i < 6; i++ {
		addr := "0xf" + strconv.Itoa(i)
		h.source.wallets[addr] = walletState(addr, 1, 1)
		h.target.failWallets[addr] = errors.New("server selection error")
		h.outbox.MarkDirty(addr)
	}

	// Five consecutive failures open the circuit mid-run.
	res := h.svc.Flush(context.Background())
	assert.GreaterOrEqual(t, res.Errors, 5)

	// The next run is skipped outright and everything stays queued.
	h.outbox.MarkDirty("0xf0")
	before := h.outbox.Len()
	res = h.svc.Flush(context.Background())
	assert.Equal(t, Result{}, res)
	assert.GreaterOrEqual(t, h.outbox.Len(), before)
}

func TestReconcile_CoversFullRoster(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.source.wallets["0xaaa"] = walletState("0xaaa", 10, 1)
	h.source.wallets["0xbbb"] = walletState("0xbbb", 20, 2)
	// Nothing marked dirty; reconcile still materializes both.

	res := h.svc.Reconcile(context.Background())
	assert.Equal(t, 2, res.Synced)
	assert.Len(t, h.target.wallets, 2)
}

func TestRun_FlushesOnNotify(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.source.wallets["0xaaa"] = walletState("0xaaa", 10, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = h.svc.Run(ctx)
	}()

	h.outbox.MarkDirty("0xaaa")

	require.Eventually(t, func() bool {
		h.target.mu.Lock()
		defer h.target.mu.Unlock()
		_, ok := h.target.wallets["0xaaa"]
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

func TestTargetBreaker_Lifecycle(t *testing.T) {
	t.Parallel()

	var transitions []string
	b := newTargetBreaker(3, 20*time.Millisecond, func(from, to breakerState) {
		transitions = append(transitions, from.String()+">"+to.String())
	})

	require.NoError(t, b.allow())
	b.recordFailure()
	b.recordFailure()
	require.NoError(t, b.allow(), "below threshold stays closed")

	b.recordFailure()
	assert.ErrorIs(t, b.allow(), errTargetOpen)

	// After the open timeout a probe is allowed; one failure re-opens.
	time.Sleep(30 * time.Millisecond)
	require.NoError(t, b.allow())
	b.recordFailure()
	assert.ErrorIs(t, b.allow(), errTargetOpen)

	// A successful probe streak closes it again.
	time.Sleep(30 * time.Millisecond)
	require.NoError(t, b.allow())
	b.recordSuccess()
	b.recordSuccess()
	require.NoError(t, b.allow())
	b.recordFailure()
	require.NoError(t, b.allow(), "closed state tolerates isolated failures")

	assert.Equal(t, []string{
		"closed>open", "open>half-open", "half-open>open",
		"open>half-open", "half-open>closed",
	}, transitions)
}

func TestOutbox_CoalescesAndSorts(t *testing.T) {
	t.Parallel()

	o := NewOutbox()
	o.MarkDirty("0xb", "0xa")
	o.MarkDirty("0xa", "0xc")

	select {
	case <-o.Notify():
	default:
		t.Fatal("expected a pending notification")
	}

	assert.Equal(t, []string{"0xa", "0xb", "0xc"}, o.Drain())
	assert.Equal(t, 0, o.Len())
	assert.Empty(t, o.Drain())
}

func TestOutbox_RequeueDoesNotNotify(t *testing.T) {
	t.Parallel()

	o := NewOutbox()
	o.Requeue("0xa")

	select {
	case <-o.Notify():
		t.Fatal("requeue must not nudge the loop")
	default:
	}
	assert.Equal(t, 1, o.Len())
}

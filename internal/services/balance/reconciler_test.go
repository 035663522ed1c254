package balance

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/walletsync/internal/domain"
)

type fakeChain struct {
	token     decimal.Decimal
	escrow    EscrowView
	tokenErr  error
	escrowErr error
}

func (f *fakeChain) TokenBalance(ctx context.Context) (decimal.Decimal, error) {
	return f.token, f.tokenErr
}

func (f *fakeChain) EscrowBalances(ctx context.Context) (EscrowView, error) {
	return f.escrow, f.escrowErr
}

type fakeLedger struct {
	summary *domain.LedgerSummary
	err     error
}

func (f *fakeLedger) Summary(ctx context.Context) (*domain.LedgerSummary, error) {
	return f.summary, f.err
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTestReconciler(chain ChainSource, ledger LedgerSource, status domain.WalletStatus, now time.Time) (*Reconciler, *domain.WalletStatus) {
	st := status
	r := NewReconciler(chain, ledger,
		func() domain.WalletStatus { return st },
		func() string { return "0xabc" },
		zap.NewNop(),
		WithClock(func() time.Time { return now }))
	return r, &st
}

func TestReconciler_LedgerPrecedence(t *testing.T) {
	now := time.Now()
	chain := &fakeChain{
		token:  dec("10"),
		escrow: EscrowView{Available: dec("500"), Reserved: dec("50"), Total: dec("550")},
	}
	ledger := &fakeLedger{summary: &domain.LedgerSummary{
		Available: dec("120"),
		Reserved:  dec("30"),
		UpdatedAt: now,
	}}

	r, _ := newTestReconciler(chain, ledger, domain.StatusReady, now)

	snap, err := r.Refresh(context.Background())
	require.NoError(t, err)

	// fresh ledger wins regardless of escrow values
	assert.Equal(t, domain.SourceLedger, snap.Source)
	assert.True(t, snap.ResolvedAvailable.Equal(dec("120")))
	assert.True(t, snap.ResolvedReserved.Equal(dec("30")))
	assert.True(t, snap.ResolvedTotal.Equal(dec("150")))
	assert.True(t, snap.EscrowAvailable.Equal(dec("500")))
}

func TestReconciler_EscrowFallback(t *testing.T) {
	now := time.Now()
	chain := &fakeChain{
		token:  dec("10"),
		escrow: EscrowView{Available: dec("500"), Reserved: dec("50"), Total: dec("550")},
	}

	t.Run("ledger erroring", func(t *testing.T) {
		r, _ := newTestReconciler(chain, &fakeLedger{err: errors.New("boom")}, domain.StatusReady, now)
		snap, err := r.Refresh(context.Background())
		require.NoError(t, err)
		assert.Equal(t, domain.SourceEscrow, snap.Source)
		assert.True(t, snap.ResolvedAvailable.Equal(dec("500")))
		assert.True(t, snap.ResolvedTotal.Equal(dec("550")))
	})

	t.Run("ledger stale", func(t *testing.T) {
		stale := &fakeLedger{summary: &domain.LedgerSummary{
			Available: dec("120"),
			Reserved:  dec("30"),
			UpdatedAt: now.Add(-10 * time.Minute),
		}}
		r, _ := newTestReconciler(chain, stale, domain.StatusReady, now)
		snap, err := r.Refresh(context.Background())
		require.NoError(t, err)
		assert.Equal(t, domain.SourceEscrow, snap.Source)
		assert.True(t, snap.ResolvedAvailable.Equal(dec("500")))
	})

	t.Run("ledger absent", func(t *testing.T) {
		r, _ := newTestReconciler(chain, &fakeLedger{}, domain.StatusReady, now)
		snap, err := r.Refresh(context.Background())
		require.NoError(t, err)
		assert.Equal(t, domain.SourceEscrow, snap.Source)
	})
}

func TestReconciler_NegativeValuesClamped(t *testing.T) {
	now := time.Now()
	chain := &fakeChain{
		escrow: EscrowView{Available: dec("-5"), Reserved: dec("-1"), Total: dec("-6")},
	}
	r, _ := newTestReconciler(chain, &fakeLedger{}, domain.StatusReady, now)

	snap, err := r.Refresh(context.Background())
	require.NoError(t, err)
	assert.True(t, snap.ResolvedAvailable.Equal(decimal.Zero))
	assert.True(t, snap.ResolvedReserved.Equal(decimal.Zero))
	assert.True(t, snap.ResolvedTotal.Equal(decimal.Zero))
}

func TestReconciler_LastKnownGoodSubstitution(t *testing.T) {
	now := time.Now()
	chain := &fakeChain{
		escrow: EscrowView{Available: dec("120"), Reserved: dec("0"), Total: dec("120")},
	}
	r, st := newTestReconciler(chain, &fakeLedger{}, domain.StatusReady, now)

	snap, err := r.Refresh(context.Background())
	require.NoError(t, err)
	require.True(t, snap.ResolvedAvailable.Equal(dec("120")))

	// status flips away from ready: reads keep serving the old snapshot
	*st = domain.StatusReconnecting
	chain.escrow = EscrowView{}

	snap, err = r.Refresh(context.Background())
	require.NoError(t, err)
	assert.True(t, snap.ResolvedAvailable.Equal(dec("120")), "must not flicker to zero")
	assert.True(t, r.Snapshot().ResolvedAvailable.Equal(dec("120")))
}

func TestReconciler_ChainErrorKeepsLastGood(t *testing.T) {
	now := time.Now()
	chain := &fakeChain{
		escrow: EscrowView{Available: dec("75"), Total: dec("75")},
	}
	r, _ := newTestReconciler(chain, &fakeLedger{}, domain.StatusReady, now)

	_, err := r.Refresh(context.Background())
	require.NoError(t, err)

	chain.escrowErr = errors.New("rpc down")
	snap, err := r.Refresh(context.Background())
	require.Error(t, err)
	assert.True(t, snap.ResolvedAvailable.Equal(dec("75")))
}

func TestReconciler_SnapshotBeforeFirstRefresh(t *testing.T) {
	r, _ := newTestReconciler(&fakeChain{}, &fakeLedger{}, domain.StatusDisconnected, time.Now())
	snap := r.Snapshot()
	assert.Equal(t, domain.SourceNone, snap.Source)
	assert.True(t, snap.ResolvedAvailable.Equal(decimal.Zero))
}

func TestReconciler_Invalidate(t *testing.T) {
	r, _ := newTestReconciler(&fakeChain{}, &fakeLedger{}, domain.StatusReady, time.Now())

	r.Invalidate()
	r.Invalidate() // coalesces

	select {
	case <-r.InvalidateC():
	default:
		t.Fatal("expected invalidation signal")
	}
	select {
	case <-r.InvalidateC():
		t.Fatal("signals must coalesce")
	default:
	}
}

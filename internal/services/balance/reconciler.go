// Package balance merges the three balance sources (on-chain token, on-chain
// escrow, off-chain ledger) into one snapshot with explicit precedence and a
// last-known-good fallback so frequent refetches never flicker through zeros.
package balance

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/walletsync/internal/domain"
)

const defaultLedgerStaleAfter = 2 * time.Minute

// EscrowView is the decoded escrow contract state in display units.
type EscrowView struct {
	Available decimal.Decimal
	Reserved  decimal.Decimal
	Total     decimal.Decimal
}

// ChainSource reads the two on-chain balance sources.
type ChainSource interface {
	TokenBalance(ctx context.Context) (decimal.Decimal, error)
	EscrowBalances(ctx context.Context) (EscrowView, error)
}

// LedgerSource reads the off-chain reconciled summary.
type LedgerSource interface {
	Summary(ctx context.Context) (*domain.LedgerSummary, error)
}

// SnapshotSaver persists newly resolved snapshots. Optional.
type SnapshotSaver interface {
	Save(domain.BalanceSnapshot) error
}

// StatusFunc supplies the current wallet status; the reconciler only trusts
// fresh reads while the wallet is ready.
type StatusFunc func() domain.WalletStatus

// Reconciler produces the unified balance view.
//
// Precedence is a design decision, not an implementation detail: on-chain
// state is the ground truth for custody, but only the off-chain ledger sees
// funds locked against in-app activity, so a fresh ledger summary wins. When
// the ledger is absent or stale the on-chain escrow values stand in.
type Reconciler struct {
	mu       sync.RWMutex
	lastGood *domain.BalanceSnapshot

	chain      ChainSource
	ledger     LedgerSource
	statusFn   StatusFunc
	addressFn  func() string
	store      SnapshotSaver
	staleAfter time.Duration
	now        func() time.Time
	kick       chan struct{}
	l          *zap.Logger
}

// Option configures the Reconciler.
type Option func(*Reconciler)

// WithStaleAfter overrides the ledger staleness window.
func WithStaleAfter(d time.Duration) Option {
	return func(r *Reconciler) { r.staleAfter = d }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// WithStore persists every newly resolved snapshot.
func WithStore(store SnapshotSaver) Option {
	return func(r *Reconciler) { r.store = store }
}

// NewReconciler creates a Reconciler.
func NewReconciler(chain ChainSource, ledger LedgerSource, statusFn StatusFunc, addressFn func() string, logger *zap.Logger, opts ...Option) *Reconciler {
	r := &Reconciler{
		chain:      chain,
		ledger:     ledger,
		statusFn:   statusFn,
		addressFn:  addressFn,
		staleAfter: defaultLedgerStaleAfter,
		now:        time.Now,
		kick:       make(chan struct{}, 1),
		l:          logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Snapshot returns the current view. Whenever the wallet is not ready, or the
// last refresh failed mid-flight, this is the last snapshot resolved while
// ready — never partial zeros.
func (r *Reconciler) Snapshot() domain.BalanceSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.lastGood == nil {
		return domain.BalanceSnapshot{Source: domain.SourceNone}
	}
	return *r.lastGood
}

// Refresh refetches all sources and resolves a new snapshot. If the wallet is
// not ready or an on-chain read fails, the previous snapshot is kept and
// returned unchanged.
func (r *Reconciler) Refresh(ctx context.Context) (domain.BalanceSnapshot, error) {
	if st := r.statusFn(); st != domain.StatusReady {
		r.l.Debug("skipping balance refresh, wallet not ready", zap.String("status", string(st)))
		return r.Snapshot(), nil
	}

	tokenBalance, err := r.chain.TokenBalance(ctx)
	if err != nil {
		return r.Snapshot(), errors.Wrap(err, "fetch token balance")
	}

	escrow, err := r.chain.EscrowBalances(ctx)
	if err != nil {
		return r.Snapshot(), errors.Wrap(err, "fetch escrow balances")
	}

	// the ledger is allowed to fail: it degrades precedence, not availability
	var summary *domain.LedgerSummary
	if r.ledger != nil {
		summary, err = r.ledger.Summary(ctx)
		if err != nil {
			r.l.Warn("ledger summary unavailable, falling back to escrow values", zap.Error(err))
			summary = nil
		}
	}

	snapshot := r.resolve(tokenBalance, escrow, summary)

	r.mu.Lock()
	r.lastGood = &snapshot
	r.mu.Unlock()

	if r.store != nil && snapshot.Address != "" {
		if err := r.store.Save(snapshot); err != nil {
			r.l.Warn("failed to persist balance snapshot", zap.Error(err))
		}
	}

	return snapshot, nil
}

func (r *Reconciler) resolve(tokenBalance decimal.Decimal, escrow EscrowView, summary *domain.LedgerSummary) domain.BalanceSnapshot {
	snapshot := domain.BalanceSnapshot{
		Timestamp:          r.now(),
		Address:            r.addressFn(),
		WalletTokenBalance: tokenBalance,
		EscrowAvailable:    escrow.Available,
		EscrowReserved:     escrow.Reserved,
		EscrowTotal:        escrow.Total,
	}

	if summary != nil {
		snapshot.LedgerAvailable = summary.Available
		snapshot.LedgerReserved = summary.Reserved
	}

	if summary != nil && summary.Fresh(r.now(), r.staleAfter) {
		snapshot.Source = domain.SourceLedger
		snapshot.ResolvedAvailable = clamp(summary.Available)
		snapshot.ResolvedReserved = clamp(summary.Reserved)
		snapshot.ResolvedTotal = clamp(summary.Available.Add(summary.Reserved))
		return snapshot
	}

	snapshot.Source = domain.SourceEscrow
	snapshot.ResolvedAvailable = clamp(escrow.Available)
	snapshot.ResolvedReserved = clamp(escrow.Reserved)
	snapshot.ResolvedTotal = clamp(escrow.Total)
	return snapshot
}

// Invalidate marks cached reads stale and nudges the polling loop to refetch
// immediately. The last-known-good snapshot is deliberately kept so callers
// never observe a transient zero while the refetch runs.
func (r *Reconciler) Invalidate() {
	select {
	case r.kick <- struct{}{}:
	default:
	}
}

// InvalidateC signals pending invalidations to the polling loop.
func (r *Reconciler) InvalidateC() <-chan struct{} {
	return r.kick
}

func clamp(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// Package txflow drives the multi-step deposit (approve → deposit) and
// withdraw (simulate → submit → confirm) flows against the escrow contract.
package txflow

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/walletsync/internal/clients"
	"github.com/vadiminshakov/walletsync/internal/contracts"
	"github.com/vadiminshakov/walletsync/internal/domain"
	"github.com/vadiminshakov/walletsync/internal/events"
	"github.com/vadiminshakov/walletsync/internal/services/session"
	"github.com/vadiminshakov/walletsync/internal/storage/txjournal"
)

const (
	// defaultSubmitTimeout bounds the signing prompt: a wallet UI dismissed
	// without rejecting would otherwise hang the flow forever.
	defaultSubmitTimeout = 3 * time.Minute
	// defaultReceiptTimeout bounds the confirmation wait. Expiry means
	// TIMEOUT, not failure: the transaction may still confirm later.
	defaultReceiptTimeout = 2 * time.Minute
	// defaultSettleDelay sequences the post-transaction refetch after cache
	// invalidation so a stale in-flight poll cannot overwrite fresh state.
	defaultSettleDelay = 2 * time.Second
	// defaultAttemptCooldown guards against rapid repeated submit clicks.
	defaultAttemptCooldown = 2 * time.Second
)

// ErrFlowInProgress is returned when a flow is already running or a new
// attempt arrives inside the cooldown window.
var ErrFlowInProgress = errors.New("transaction flow already in progress")

// Ledger is the slice of the server ledger the orchestrator needs.
type Ledger interface {
	Reconcile(ctx context.Context, walletAddress, txHash string) error
	LogTransaction(ctx context.Context, txHash string, kind domain.TxKind, status string, amount decimal.Decimal) error
}

// Journal records submitted transactions before their receipts resolve.
type Journal interface {
	Log(txHash string, kind domain.TxKind, amount decimal.Decimal, address string) (*txjournal.Record, error)
	MarkCompleted(id string) error
	MarkFailed(id string, cause error) error
	Pending() []*txjournal.Record
}

// RecoveryRunner wraps signing calls with timeout and session recovery.
type RecoveryRunner interface {
	WithRecovery(ctx context.Context, op func(ctx context.Context) error, opts session.Options) error
}

// Invalidator flushes cached balance sources after a confirmed transaction.
type Invalidator interface {
	Invalidate()
}

// Config holds the contract and timing parameters of the orchestrator.
type Config struct {
	TokenAddress    common.Address
	EscrowAddress   common.Address
	TokenDecimals   int32
	ChainID         uint64
	SubmitTimeout   time.Duration
	ReceiptTimeout  time.Duration
	SettleDelay     time.Duration
	AttemptCooldown time.Duration
}

func (c *Config) applyDefaults() {
	if c.SubmitTimeout <= 0 {
		c.SubmitTimeout = defaultSubmitTimeout
	}
	if c.ReceiptTimeout <= 0 {
		c.ReceiptTimeout = defaultReceiptTimeout
	}
	if c.SettleDelay == 0 {
		c.SettleDelay = defaultSettleDelay
	}
	if c.SettleDelay < 0 {
		c.SettleDelay = 0
	}
	if c.AttemptCooldown <= 0 {
		c.AttemptCooldown = defaultAttemptCooldown
	}
}

// Orchestrator owns the in-flight transaction flow. One flow at a time; the
// UI layer never runs concurrent flows for the same account, but the guard
// makes rapid duplicate submits collapse instead of double-spending.
type Orchestrator struct {
	connector  clients.Connector
	ledger     Ledger
	journal    Journal
	recovery   RecoveryRunner
	invalidate Invalidator
	signals    *events.Broadcaster
	snapshotFn func() domain.BalanceSnapshot
	cfg        Config
	now        func() time.Time
	l          *zap.Logger

	mu          sync.Mutex
	inFlight    bool
	lastAttempt time.Time
}

// NewOrchestrator wires a transaction orchestrator.
func NewOrchestrator(
	connector clients.Connector,
	ledger Ledger,
	journal Journal,
	recovery RecoveryRunner,
	invalidate Invalidator,
	signals *events.Broadcaster,
	snapshotFn func() domain.BalanceSnapshot,
	cfg Config,
	logger *zap.Logger,
) *Orchestrator {
	cfg.applyDefaults()
	return &Orchestrator{
		connector:  connector,
		ledger:     ledger,
		journal:    journal,
		recovery:   recovery,
		invalidate: invalidate,
		signals:    signals,
		snapshotFn: snapshotFn,
		cfg:        cfg,
		now:        time.Now,
		l:          logger,
	}
}

// acquire claims the single flow slot; duplicate submits inside the cooldown
// collapse into ErrFlowInProgress.
func (o *Orchestrator) acquire() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.inFlight {
		return ErrFlowInProgress
	}
	if o.now().Sub(o.lastAttempt) < o.cfg.AttemptCooldown {
		return ErrFlowInProgress
	}
	o.inFlight = true
	o.lastAttempt = o.now()
	return nil
}

func (o *Orchestrator) release() {
	o.mu.Lock()
	o.inFlight = false
	o.mu.Unlock()
}

// validateAmount enforces the shared amount rules: positive, at most two
// decimal places.
func validateAmount(amount decimal.Decimal) *domain.TransactionError {
	if amount.LessThanOrEqual(decimal.Zero) {
		return domain.NewTransactionError(domain.ErrUnknown, "amount must be positive", false)
	}
	if !amount.Equal(amount.Round(2)) {
		return domain.NewTransactionError(domain.ErrUnknown, "amount supports at most 2 decimal places", false)
	}
	return nil
}

// toUnits converts a display amount to the token's smallest unit.
func (o *Orchestrator) toUnits(amount decimal.Decimal) *big.Int {
	return amount.Shift(o.cfg.TokenDecimals).BigInt()
}

// ensureNetwork makes sure the connector is on the expected chain, asking for
// a switch when it is not. Failure aborts the flow as WRONG_NETWORK.
func (o *Orchestrator) ensureNetwork(ctx context.Context) *domain.TransactionError {
	acc := o.connector.GetAccount()
	if acc.ChainID == o.cfg.ChainID {
		return nil
	}

	o.l.Info("wallet on wrong network, requesting switch",
		zap.Uint64("current", acc.ChainID), zap.Uint64("expected", o.cfg.ChainID))

	if err := o.connector.SwitchChain(ctx, o.cfg.ChainID); err != nil {
		return domain.NewTransactionError(domain.ErrWrongNetwork, err.Error(), false)
	}
	return nil
}

// submit sends the call through the recovery wrapper under the submit timeout
// and returns the accepted tx hash. The hash is handed out under a lock: on
// timeout the wrapper returns while the signing goroutine may still be
// running, so its late write must never race the caller.
func (o *Orchestrator) submit(ctx context.Context, call clients.ContractCall) (common.Hash, error) {
	var (
		mu   sync.Mutex
		hash common.Hash
	)
	err := o.recovery.WithRecovery(ctx, func(ctx context.Context) error {
		h, sendErr := o.connector.SendTransaction(ctx, call)
		if sendErr != nil {
			return sendErr
		}
		mu.Lock()
		hash = h
		mu.Unlock()
		return nil
	}, session.Options{MaxRetries: 1, Timeout: o.cfg.SubmitTimeout})
	if err != nil {
		return common.Hash{}, err
	}

	mu.Lock()
	defer mu.Unlock()
	return hash, nil
}

// waitReceipt waits for the receipt under the confirmation timeout.
func (o *Orchestrator) waitReceipt(ctx context.Context, hash common.Hash) (*clients.Receipt, *domain.TransactionError) {
	waitCtx, cancel := context.WithTimeout(ctx, o.cfg.ReceiptTimeout)
	defer cancel()

	receipt, err := o.connector.WaitReceipt(waitCtx, hash)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, domain.NewTransactionError(domain.ErrTimeout,
				"transaction not confirmed in time, check the explorer: "+hash.Hex(), false)
		}
		return nil, Classify(err)
	}
	return receipt, nil
}

// finalize runs the post-success sequence: server reconciliation, cache
// invalidation, settle delay, then the balance-refresh broadcast. Order
// matters: invalidation before the delay so no stale poll lands afterwards.
func (o *Orchestrator) finalize(ctx context.Context, flow *domain.TransactionFlow) {
	addr := o.connector.GetAccount().Address.Hex()

	if err := o.ledger.Reconcile(ctx, addr, flow.TxHash); err != nil {
		o.l.Warn("server-side reconciliation failed, ledger may lag until next poll",
			zap.Error(err), zap.String("tx_hash", flow.TxHash))
	}

	o.invalidate.Invalidate()

	if o.cfg.SettleDelay > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(o.cfg.SettleDelay):
		}
	}

	o.signals.Publish(events.Signal{Kind: events.SignalBalanceRefresh, TxHash: flow.TxHash})
}

// currentAllowance reads the ERC-20 allowance granted to the escrow contract.
func (o *Orchestrator) currentAllowance(ctx context.Context) (*big.Int, error) {
	acc := o.connector.GetAccount()
	data, err := contracts.PackAllowance(acc.Address, o.cfg.EscrowAddress)
	if err != nil {
		return nil, err
	}

	out, err := o.connector.ReadContract(ctx, clients.ContractCall{
		From: acc.Address,
		To:   o.cfg.TokenAddress,
		Data: data,
	})
	if err != nil {
		return nil, errors.Wrap(err, "read allowance")
	}
	return contracts.UnpackAllowance(out)
}

// ReplayPending re-checks journaled transactions whose receipts never
// resolved, flipping them to completed/failed when the chain now has an
// answer. Called once at startup.
func (o *Orchestrator) ReplayPending(ctx context.Context) {
	pending := o.journal.Pending()
	if len(pending) == 0 {
		return
	}

	o.l.Info("replaying pending journal records", zap.Int("count", len(pending)))

	for _, rec := range pending {
		checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		receipt, err := o.connector.WaitReceipt(checkCtx, common.HexToHash(rec.TxHash))
		cancel()
		if err != nil {
			o.l.Debug("pending transaction still unresolved",
				zap.String("tx_hash", rec.TxHash), zap.Error(err))
			continue
		}

		status := txjournal.StatusCompleted
		if receipt.Success {
			if err := o.journal.MarkCompleted(rec.ID); err != nil {
				o.l.Warn("failed to mark journal record completed", zap.Error(err))
				continue
			}
		} else {
			status = txjournal.StatusFailed
			if err := o.journal.MarkFailed(rec.ID, errors.New("transaction reverted")); err != nil {
				o.l.Warn("failed to mark journal record failed", zap.Error(err))
				continue
			}
		}

		if err := o.ledger.LogTransaction(ctx, rec.TxHash, rec.Kind, status, rec.Amount); err != nil {
			o.l.Warn("failed to update ledger transaction log", zap.Error(err))
		}

		o.l.Info("resolved pending transaction from journal",
			zap.String("tx_hash", rec.TxHash), zap.String("status", status))
	}
}

package internal

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/walletsync/config"
	"github.com/vadiminshakov/walletsync/internal/clients"
	"github.com/vadiminshakov/walletsync/internal/domain"
	"github.com/vadiminshakov/walletsync/internal/events"
	"github.com/vadiminshakov/walletsync/internal/services/balance"
	"github.com/vadiminshakov/walletsync/internal/services/session"
	"github.com/vadiminshakov/walletsync/internal/services/status"
	"github.com/vadiminshakov/walletsync/internal/services/txflow"
	"github.com/vadiminshakov/walletsync/internal/storage/snapshots"
	"github.com/vadiminshakov/walletsync/internal/storage/txjournal"
)

// WalletApp wires the session monitor, balance reconciler and transaction
// orchestrator behind the surface the UI layer consumes.
type WalletApp struct {
	connector    clients.Connector
	monitor      *session.Monitor
	reconciler   *balance.Reconciler
	orchestrator *txflow.Orchestrator
	signals      *events.Broadcaster
	journal      *txjournal.Store
	snapshots    *snapshots.WALStore
	cfg          *config.Config
	l            *zap.Logger
}

// sessionConnector adapts the full connector to the narrow slice the session
// monitor recovers through.
type sessionConnector struct {
	clients.Connector
}

func (c sessionConnector) GetAccount() session.Account {
	acc := c.Connector.GetAccount()
	return session.Account{
		Address: addressOrEmpty(acc),
		Status:  acc.Status,
	}
}

func addressOrEmpty(acc clients.Account) string {
	if acc.Address == (common.Address{}) {
		return ""
	}
	return acc.Address.Hex()
}

// NewWalletApp builds the full session layer on top of an external connector.
func NewWalletApp(cfg *config.Config, connector clients.Connector, logger *zap.Logger) (*WalletApp, error) {
	ledger := clients.NewLedgerClient(cfg.LedgerBaseURL, cfg.UserID)

	journal, err := txjournal.NewStore(cfg.JournalDir)
	if err != nil {
		return nil, errors.Wrap(err, "open transaction journal")
	}

	snapshotStore, err := snapshots.NewWALStore(cfg.SnapshotDir)
	if err != nil {
		return nil, errors.Wrap(err, "open snapshot store")
	}

	app := &WalletApp{
		connector: connector,
		signals:   events.NewBroadcaster(16),
		journal:   journal,
		snapshots: snapshotStore,
		cfg:       cfg,
		l:         logger,
	}

	app.monitor = session.NewMonitor(
		sessionConnector{connector},
		func() { app.reconciler.Invalidate() },
		logger.Named("session"),
		session.WithReconnectRequired(func() {
			app.signals.Publish(events.Signal{Kind: events.SignalReconnectRequired})
		}),
	)

	chainSource := balance.NewContractSource(connector, cfg.TokenAddress, cfg.EscrowAddress, cfg.TokenDecimals)
	app.reconciler = balance.NewReconciler(
		chainSource,
		ledgerSource{ledger: ledger, connector: connector},
		app.ResolveWalletStatus,
		func() string { return addressOrEmpty(connector.GetAccount()) },
		logger.Named("balance"),
		balance.WithStaleAfter(cfg.LedgerStaleAfter),
		balance.WithStore(snapshotStore),
	)

	app.orchestrator = txflow.NewOrchestrator(
		connector,
		ledger,
		journal,
		app.monitor,
		app.reconciler,
		app.signals,
		app.reconciler.Snapshot,
		txflow.Config{
			TokenAddress:   cfg.TokenAddress,
			EscrowAddress:  cfg.EscrowAddress,
			TokenDecimals:  cfg.TokenDecimals,
			ChainID:        cfg.ChainID,
			SubmitTimeout:  cfg.SubmitTimeout,
			ReceiptTimeout: cfg.ReceiptTimeout,
			SettleDelay:    cfg.SettleDelay,
		},
		logger.Named("txflow"),
	)

	connector.OnChange(func(conn domain.WalletConnection) {
		logger.Debug("connector state changed",
			zap.String("status", string(conn.Status)),
			zap.Uint64("chain_id", conn.ChainID))
	})

	return app, nil
}

// ledgerSource narrows the ledger client to the reconciler's interface,
// binding the summary to the connector's current address.
type ledgerSource struct {
	ledger    *clients.LedgerClient
	connector clients.Connector
}

func (s ledgerSource) Summary(ctx context.Context) (*domain.LedgerSummary, error) {
	addr := addressOrEmpty(s.connector.GetAccount())
	if addr == "" {
		return nil, errors.New("no wallet address")
	}
	return s.ledger.GetSummary(ctx, addr)
}

// ResolveWalletStatus combines connection, chain and session-health signals.
func (a *WalletApp) ResolveWalletStatus() domain.WalletStatus {
	acc := a.connector.GetAccount()
	conn := domain.WalletConnection{
		Address:        addressOrEmpty(acc),
		ChainID:        acc.ChainID,
		Status:         acc.Status,
		SessionHealthy: a.monitor.Healthy(),
	}
	return status.Resolve(conn, a.cfg.ChainID)
}

// Snapshot returns the current unified balance view.
func (a *WalletApp) Snapshot() domain.BalanceSnapshot {
	return a.reconciler.Snapshot()
}

// StartDeposit runs the deposit flow for the given display amount.
func (a *WalletApp) StartDeposit(ctx context.Context, amount decimal.Decimal) (*domain.TransactionFlow, error) {
	return a.orchestrator.StartDeposit(ctx, amount)
}

// StartWithdraw runs the withdraw flow for the given display amount.
func (a *WalletApp) StartWithdraw(ctx context.Context, amount decimal.Decimal) (*domain.TransactionFlow, error) {
	return a.orchestrator.StartWithdraw(ctx, amount)
}

// Subscribe returns a channel of balance-refresh and reconnect-required
// signals. Callers must Unsubscribe when done.
func (a *WalletApp) Subscribe() chan events.Signal {
	return a.signals.Subscribe()
}

// Unsubscribe releases a subscription channel.
func (a *WalletApp) Unsubscribe(ch chan events.Signal) {
	a.signals.Unsubscribe(ch)
}

// SnapshotStore exposes the snapshot WAL for the dashboard.
func (a *WalletApp) SnapshotStore() *snapshots.WALStore {
	return a.snapshots
}

// Journal exposes the transaction journal for the dashboard.
func (a *WalletApp) Journal() *txjournal.Store {
	return a.journal
}

// Run connects the wallet, settles journaled transactions that never got a
// receipt, and drives the balance polling loop until ctx is done.
func (a *WalletApp) Run(ctx context.Context) error {
	if err := a.connector.Connect(ctx); err != nil {
		return errors.Wrap(err, "initial connect")
	}

	a.orchestrator.ReplayPending(ctx)

	if _, err := a.reconciler.Refresh(ctx); err != nil {
		a.l.Warn("initial balance refresh failed", zap.Error(err))
	}

	ticker := time.NewTicker(a.cfg.PollInterval)
	defer ticker.Stop()

	a.l.Info("wallet session layer started",
		zap.Uint64("chain_id", a.cfg.ChainID),
		zap.Duration("poll_interval", a.cfg.PollInterval))

	for {
		select {
		case <-ctx.Done():
			a.l.Info("context done, stopping wallet session layer")
			return ctx.Err()
		case <-a.reconciler.InvalidateC():
			// invalidated after a confirmed transaction: refetch immediately
			if _, err := a.reconciler.Refresh(ctx); err != nil {
				a.l.Warn("balance refresh after invalidation failed", zap.Error(err))
			}
		case <-ticker.C:
			if _, err := a.reconciler.Refresh(ctx); err != nil {
				if session.IsSessionError(err) {
					a.monitor.MarkUnhealthy()
					a.monitor.Recover(ctx, session.RecoverOptions{AttemptReconnect: true})
					continue
				}
				a.l.Warn("balance refresh failed", zap.Error(err))
			}
		}
	}
}

// Close releases the stores.
func (a *WalletApp) Close() error {
	if err := a.journal.Close(); err != nil {
		return err
	}
	return a.snapshots.Close()
}

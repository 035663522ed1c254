package txflow

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/walletsync/internal/clients"
	"github.com/vadiminshakov/walletsync/internal/contracts"
	"github.com/vadiminshakov/walletsync/internal/domain"
	"github.com/vadiminshakov/walletsync/internal/storage/txjournal"
)

// StartWithdraw runs the withdraw flow: validate → ensure network → simulate
// → submit → confirm. The simulation is a dry-run call with the same sender
// and arguments, so a call certain to revert fails before any signature is
// requested. The submitted transaction is journaled as pending immediately,
// before confirmation, so it survives the process dying mid-flow.
func (o *Orchestrator) StartWithdraw(ctx context.Context, amount decimal.Decimal) (*domain.TransactionFlow, error) {
	if err := o.acquire(); err != nil {
		return nil, err
	}
	defer o.release()

	flow := &domain.TransactionFlow{
		Kind:      domain.TxWithdraw,
		Amount:    amount,
		Phase:     domain.PhaseInput,
		StartedAt: o.now(),
	}

	if te := validateAmount(amount); te != nil {
		return o.fail(flow, te)
	}

	// reject before any network call: the escrow cannot release more than it
	// holds available for this account
	snapshot := o.snapshotFn()
	if amount.GreaterThan(snapshot.EscrowAvailable) {
		return o.fail(flow, domain.NewTransactionError(domain.ErrInsufficientEscrow,
			"withdraw amount exceeds escrow available balance", false))
	}
	if amount.GreaterThan(snapshot.ResolvedAvailable) {
		return o.fail(flow, domain.NewTransactionError(domain.ErrInsufficientEscrow,
			"withdraw amount exceeds available balance", false))
	}

	if te := o.ensureNetwork(ctx); te != nil {
		return o.fail(flow, te)
	}

	units := o.toUnits(amount)
	acc := o.connector.GetAccount()

	withdrawData, err := contracts.PackWithdraw(units)
	if err != nil {
		return o.fail(flow, Classify(err))
	}

	call := clients.ContractCall{
		From: acc.Address,
		To:   o.cfg.EscrowAddress,
		Data: withdrawData,
	}

	flow.Phase = domain.PhaseSimulating
	if _, err := o.connector.ReadContract(ctx, call); err != nil {
		o.l.Info("withdraw simulation failed, no signature requested", zap.Error(err))
		return o.fail(flow, ClassifySimulation(err))
	}

	flow.Phase = domain.PhaseSubmitting

	hash, err := o.submit(ctx, call)
	if err != nil {
		return o.handleSubmitError(flow, err)
	}
	flow.TxHash = hash.Hex()

	rec, err := o.journal.Log(flow.TxHash, domain.TxWithdraw, amount, acc.Address.Hex())
	if err != nil {
		o.l.Warn("failed to journal withdraw", zap.Error(err))
	}
	if err := o.ledger.LogTransaction(ctx, flow.TxHash, domain.TxWithdraw, txjournal.StatusPending, amount); err != nil {
		o.l.Warn("failed to log pending withdraw to ledger", zap.Error(err))
	}

	flow.Phase = domain.PhaseWaiting

	receipt, te := o.waitReceipt(ctx, hash)
	if te != nil {
		// TIMEOUT leaves the journal record pending: never resubmit, never
		// assume failure — the user is told to check the explorer
		return o.fail(flow, te)
	}

	if !receipt.Success {
		revertErr := errors.New("withdraw transaction reverted")
		o.markJournal(ctx, rec, false, revertErr)
		return o.fail(flow, domain.NewTransactionError(domain.ErrUnknown, revertErr.Error(), false))
	}

	o.markJournal(ctx, rec, true, nil)
	flow.Phase = domain.PhaseDone

	o.l.Info("withdraw confirmed",
		zap.String("tx_hash", flow.TxHash), zap.String("amount", amount.String()))

	o.finalize(ctx, flow)
	return flow, nil
}

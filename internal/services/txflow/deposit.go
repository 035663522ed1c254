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

// StartDeposit runs the deposit flow: validate → ensure network → approve the
// exact amount when the allowance is short → deposit → reconcile. An approval
// that already covers the amount is never repeated; the allowance re-read
// makes a retry after a failed deposit step skip straight to the deposit.
func (o *Orchestrator) StartDeposit(ctx context.Context, amount decimal.Decimal) (*domain.TransactionFlow, error) {
	if err := o.acquire(); err != nil {
		return nil, err
	}
	defer o.release()

	flow := &domain.TransactionFlow{
		Kind:      domain.TxDeposit,
		Amount:    amount,
		Phase:     domain.PhaseInput,
		StartedAt: o.now(),
	}

	if te := validateAmount(amount); te != nil {
		return o.fail(flow, te)
	}

	snapshot := o.snapshotFn()
	if amount.GreaterThan(snapshot.WalletTokenBalance) {
		return o.fail(flow, domain.NewTransactionError(domain.ErrInsufficientBalance,
			"deposit amount exceeds wallet token balance", false))
	}

	if te := o.ensureNetwork(ctx); te != nil {
		return o.fail(flow, te)
	}

	units := o.toUnits(amount)
	acc := o.connector.GetAccount()

	allowance, err := o.currentAllowance(ctx)
	if err != nil {
		return o.fail(flow, Classify(err))
	}

	if allowance.Cmp(units) < 0 {
		flow.Phase = domain.PhaseApproving
		o.l.Info("allowance short, requesting exact-amount approval",
			zap.String("allowance", allowance.String()), zap.String("needed", units.String()))

		// approve exactly the deposit amount, never unlimited
		approveData, err := contracts.PackApprove(o.cfg.EscrowAddress, units)
		if err != nil {
			return o.fail(flow, Classify(err))
		}

		approveHash, err := o.submit(ctx, clients.ContractCall{
			From: acc.Address,
			To:   o.cfg.TokenAddress,
			Data: approveData,
		})
		if err != nil {
			return o.handleSubmitError(flow, err)
		}

		receipt, te := o.waitReceipt(ctx, approveHash)
		if te != nil {
			return o.fail(flow, te)
		}
		if !receipt.Success {
			return o.fail(flow, domain.NewTransactionError(domain.ErrUnknown, "approval transaction reverted", false))
		}

		allowance, err = o.currentAllowance(ctx)
		if err != nil {
			return o.fail(flow, Classify(err))
		}
		if allowance.Cmp(units) < 0 {
			return o.fail(flow, domain.NewTransactionError(domain.ErrUnknown,
				"allowance not granted after approval", false))
		}
	}

	flow.Phase = domain.PhaseSubmitting

	depositData, err := contracts.PackDeposit(units)
	if err != nil {
		return o.fail(flow, Classify(err))
	}

	hash, err := o.submit(ctx, clients.ContractCall{
		From: acc.Address,
		To:   o.cfg.EscrowAddress,
		Data: depositData,
	})
	if err != nil {
		return o.handleSubmitError(flow, err)
	}
	flow.TxHash = hash.Hex()

	rec, err := o.journal.Log(flow.TxHash, domain.TxDeposit, amount, acc.Address.Hex())
	if err != nil {
		o.l.Warn("failed to journal deposit", zap.Error(err))
	}
	if err := o.ledger.LogTransaction(ctx, flow.TxHash, domain.TxDeposit, txjournal.StatusPending, amount); err != nil {
		o.l.Warn("failed to log pending deposit to ledger", zap.Error(err))
	}

	flow.Phase = domain.PhaseWaiting

	receipt, te := o.waitReceipt(ctx, hash)
	if te != nil {
		// on TIMEOUT the journal record stays pending: the deposit may still
		// confirm and startup replay will settle it
		return o.fail(flow, te)
	}

	if !receipt.Success {
		revertErr := errors.New("deposit transaction reverted")
		o.markJournal(ctx, rec, false, revertErr)
		return o.fail(flow, domain.NewTransactionError(domain.ErrUnknown, revertErr.Error(), false))
	}

	o.markJournal(ctx, rec, true, nil)
	flow.Phase = domain.PhaseDone

	o.l.Info("deposit confirmed",
		zap.String("tx_hash", flow.TxHash), zap.String("amount", amount.String()))

	o.finalize(ctx, flow)
	return flow, nil
}

// fail marks the flow failed and surfaces the classified error.
func (o *Orchestrator) fail(flow *domain.TransactionFlow, te *domain.TransactionError) (*domain.TransactionFlow, error) {
	flow.Phase = domain.PhaseFailed
	flow.Err = te
	return flow, te
}

// handleSubmitError applies the propagation policy for submission failures:
// a user rejection silently returns the flow to input (no state mutated, no
// banner); everything else fails classified.
func (o *Orchestrator) handleSubmitError(flow *domain.TransactionFlow, err error) (*domain.TransactionFlow, error) {
	te := Classify(err)
	if te.Kind == domain.ErrUserRejected {
		o.l.Debug("user rejected the request, returning to input", zap.String("kind", string(flow.Kind)))
		flow.Phase = domain.PhaseInput
		flow.Err = nil
		return flow, nil
	}
	return o.fail(flow, te)
}

// markJournal settles the journal record and mirrors the status to the ledger.
func (o *Orchestrator) markJournal(ctx context.Context, rec *txjournal.Record, success bool, cause error) {
	if rec == nil {
		return
	}

	status := txjournal.StatusCompleted
	var err error
	if success {
		err = o.journal.MarkCompleted(rec.ID)
	} else {
		status = txjournal.StatusFailed
		err = o.journal.MarkFailed(rec.ID, cause)
	}
	if err != nil {
		o.l.Warn("failed to update journal record", zap.Error(err))
	}

	if err := o.ledger.LogTransaction(ctx, rec.TxHash, rec.Kind, status, rec.Amount); err != nil {
		o.l.Warn("failed to update ledger transaction log", zap.Error(err))
	}
}

package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TxKind distinguishes the two flows driven by the orchestrator.
type TxKind string

const (
	TxDeposit  TxKind = "deposit"
	TxWithdraw TxKind = "withdraw"
)

// TxPhase is the current step of an in-flight flow.
type TxPhase string

const (
	PhaseInput      TxPhase = "input"
	PhaseApproving  TxPhase = "approving"
	PhaseSimulating TxPhase = "simulating"
	PhaseSubmitting TxPhase = "submitting"
	PhaseWaiting    TxPhase = "waiting"
	PhaseDone       TxPhase = "done"
	PhaseFailed     TxPhase = "failed"
)

// TransactionFlow is one in-flight deposit or withdraw operation. It is
// ephemeral: created when the user confirms an amount and discarded on
// completion, cancellation or unrecoverable failure.
type TransactionFlow struct {
	Kind      TxKind
	Amount    decimal.Decimal
	Phase     TxPhase
	TxHash    string
	StartedAt time.Time
	Err       *TransactionError
}

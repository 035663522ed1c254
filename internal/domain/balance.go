package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// BalanceSource marks which source the resolved values were taken from.
type BalanceSource string

const (
	SourceLedger BalanceSource = "ledger"
	SourceEscrow BalanceSource = "escrow"
	SourceNone   BalanceSource = "none"
)

// LedgerSummary is the off-chain reconciled view returned by the app server.
// It is the only source aware of funds locked against in-app activity that the
// escrow contract cannot see.
type LedgerSummary struct {
	Available decimal.Decimal `json:"available"`
	Reserved  decimal.Decimal `json:"reserved"`
	Total     decimal.Decimal `json:"total"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Fresh reports whether the summary was updated within the staleness window.
func (s LedgerSummary) Fresh(now time.Time, staleAfter time.Duration) bool {
	if s.UpdatedAt.IsZero() {
		return false
	}
	return now.Sub(s.UpdatedAt) <= staleAfter
}

// BalanceSnapshot is the unified balance view handed to callers.
type BalanceSnapshot struct {
	Timestamp time.Time `json:"ts"`
	Address   string    `json:"address"`

	WalletTokenBalance decimal.Decimal `json:"wallet_token_balance"`
	EscrowAvailable    decimal.Decimal `json:"escrow_available"`
	EscrowReserved     decimal.Decimal `json:"escrow_reserved"`
	EscrowTotal        decimal.Decimal `json:"escrow_total"`
	LedgerAvailable    decimal.Decimal `json:"ledger_available"`
	LedgerReserved     decimal.Decimal `json:"ledger_reserved"`

	ResolvedAvailable decimal.Decimal `json:"resolved_available"`
	ResolvedReserved  decimal.Decimal `json:"resolved_reserved"`
	ResolvedTotal     decimal.Decimal `json:"resolved_total"`

	Source BalanceSource `json:"source"`
}

// BalanceSnapshotRecord bundles a snapshot with its store index.
type BalanceSnapshotRecord struct {
	Index    uint64
	Snapshot BalanceSnapshot
}

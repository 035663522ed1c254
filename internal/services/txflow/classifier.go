package txflow

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/vadiminshakov/walletsync/internal/clients"
	"github.com/vadiminshakov/walletsync/internal/domain"
	"github.com/vadiminshakov/walletsync/internal/services/session"
)

var (
	gasPatterns = []string{
		"insufficient funds for gas",
		"insufficient funds for transfer",
		"intrinsic gas too low",
		"out of gas",
	}
	balancePatterns = []string{
		"transfer amount exceeds balance",
		"insufficient balance",
		"insufficient token balance",
		"insufficient funds",
	}
	escrowPatterns = []string{
		"insufficient escrow",
		"insufficient available",
		"amount exceeds available",
	}
	timeoutPatterns = []string{
		"timed out",
		"timeout",
		"deadline exceeded",
	}
)

// Classify maps a raw failure to the structured error taxonomy. Check order
// matters: explicit user rejection first, then known revert reasons, then
// session patterns, then timeouts, and only then the verbatim UNKNOWN
// fallback — a real failure must never hide behind a generic message.
func Classify(err error) *domain.TransactionError {
	if err == nil {
		return nil
	}

	var te *domain.TransactionError
	if errors.As(err, &te) {
		return te
	}

	msg := err.Error()
	lower := strings.ToLower(msg)

	switch {
	case session.IsUserRejection(err):
		return domain.NewTransactionError(domain.ErrUserRejected, msg, true)
	case matches(lower, gasPatterns):
		return domain.NewTransactionError(domain.ErrInsufficientGas, msg, false)
	case matches(lower, balancePatterns):
		return domain.NewTransactionError(domain.ErrInsufficientBalance, msg, false)
	case matches(lower, escrowPatterns):
		return domain.NewTransactionError(domain.ErrInsufficientEscrow, msg, false)
	case errors.Is(err, clients.ErrUnsupportedChain):
		return domain.NewTransactionError(domain.ErrWrongNetwork, msg, false)
	case session.IsSessionError(err):
		return domain.NewTransactionError(domain.ErrSessionExpired, msg, true)
	case errors.Is(err, session.ErrOperationTimeout),
		errors.Is(err, context.DeadlineExceeded),
		matches(lower, timeoutPatterns):
		return domain.NewTransactionError(domain.ErrTimeout, msg, false)
	default:
		return domain.NewTransactionError(domain.ErrUnknown, msg, false)
	}
}

// ClassifySimulation maps a dry-run failure. Insufficiency reverts keep their
// specific kinds; everything else becomes SIMULATION_FAILED so the user is
// told the call is certain to revert before any signature is requested.
func ClassifySimulation(err error) *domain.TransactionError {
	if err == nil {
		return nil
	}

	classified := Classify(err)
	switch classified.Kind {
	case domain.ErrInsufficientGas, domain.ErrInsufficientBalance, domain.ErrInsufficientEscrow,
		domain.ErrSessionExpired, domain.ErrUserRejected:
		return classified
	default:
		return domain.NewTransactionError(domain.ErrSimulationFailed, classified.Message, false)
	}
}

func matches(lower string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

package domain

// ErrorKind is the classified failure taxonomy. It is the single place that
// decides "recoverable automatically" vs. "must ask the user to act".
type ErrorKind string

const (
	ErrUserRejected        ErrorKind = "USER_REJECTED"
	ErrSessionExpired      ErrorKind = "SESSION_EXPIRED"
	ErrWrongNetwork        ErrorKind = "WRONG_NETWORK"
	ErrInsufficientGas     ErrorKind = "INSUFFICIENT_GAS"
	ErrInsufficientBalance ErrorKind = "INSUFFICIENT_BALANCE"
	ErrInsufficientEscrow  ErrorKind = "INSUFFICIENT_ESCROW"
	ErrTimeout             ErrorKind = "TIMEOUT"
	ErrSimulationFailed    ErrorKind = "SIMULATION_FAILED"
	ErrUnknown             ErrorKind = "UNKNOWN"
)

// TransactionError is a classified failure of a wallet operation.
type TransactionError struct {
	Kind      ErrorKind
	Message   string
	Retryable bool
}

func (e *TransactionError) Error() string {
	return string(e.Kind) + ": " + e.Message
}

// NewTransactionError builds a classified error.
func NewTransactionError(kind ErrorKind, message string, retryable bool) *TransactionError {
	return &TransactionError{Kind: kind, Message: message, Retryable: retryable}
}

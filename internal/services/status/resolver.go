// Package status combines connection, chain and session-health signals into
// the single wallet status the rest of the system gates on.
package status

import (
	"github.com/vadiminshakov/walletsync/internal/domain"
)

// Resolve maps the live connection state to a wallet status. Pure and
// deterministic; safe to call on every read. Priority order matters: a
// connector mid-rehydration wins over everything else so transient states
// never surface as "disconnected".
func Resolve(conn domain.WalletConnection, expectedChainID uint64) domain.WalletStatus {
	switch {
	case conn.Status == domain.ConnectionReconnecting || conn.Status == domain.ConnectionConnecting:
		return domain.StatusReconnecting
	case !conn.Connected():
		return domain.StatusDisconnected
	case conn.ChainID != expectedChainID:
		return domain.StatusWrongNetwork
	case !conn.SessionHealthy:
		return domain.StatusSessionUnhealthy
	default:
		return domain.StatusReady
	}
}

package domain

// ConnectionStatus is the raw state reported by the wallet connector.
type ConnectionStatus string

const (
	ConnectionDisconnected ConnectionStatus = "disconnected"
	ConnectionConnecting   ConnectionStatus = "connecting"
	ConnectionConnected    ConnectionStatus = "connected"
	ConnectionReconnecting ConnectionStatus = "reconnecting"
)

// WalletConnection is the live state of the external signer. SessionHealthy is
// owned by the session monitor, not by the connector itself.
type WalletConnection struct {
	Address        string
	ChainID        uint64
	Status         ConnectionStatus
	SessionHealthy bool
}

// Connected reports whether the connector holds an account address.
func (c WalletConnection) Connected() bool {
	return c.Address != ""
}

// WalletStatus is the single status consumed by everything downstream of the
// connector. Callers must not perform balance-changing actions unless the
// status is StatusReady.
type WalletStatus string

const (
	StatusReconnecting     WalletStatus = "reconnecting"
	StatusDisconnected     WalletStatus = "disconnected"
	StatusWrongNetwork     WalletStatus = "wrong_network"
	StatusSessionUnhealthy WalletStatus = "session_unhealthy"
	StatusReady            WalletStatus = "ready"
)

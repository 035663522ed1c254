package clients

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/vadiminshakov/walletsync/internal/domain"
)

// ErrUnsupportedChain is returned by SwitchChain for chain ids the connector
// has no endpoint for.
var ErrUnsupportedChain = errors.New("unsupported chain id")

// Account is the connector's view of the current signer.
type Account struct {
	Address common.Address
	ChainID uint64
	Status  domain.ConnectionStatus
}

// ContractCall is one read or write against a contract.
type ContractCall struct {
	From  common.Address
	To    common.Address
	Data  []byte
	Value *big.Int
}

// Receipt is the minimal receipt view the orchestrator needs.
type Receipt struct {
	TxHash      common.Hash
	BlockNumber uint64
	Success     bool
}

// ChangeFunc receives connector state transitions.
type ChangeFunc func(domain.WalletConnection)

// Connector is the narrow interface over the external wallet connector. The
// connector owns its own session storage and lifecycle; everything here is
// consumed, never reimplemented.
type Connector interface {
	GetAccount() Account
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	SwitchChain(ctx context.Context, chainID uint64) error
	SendTransaction(ctx context.Context, call ContractCall) (common.Hash, error)
	ReadContract(ctx context.Context, call ContractCall) ([]byte, error)
	WaitReceipt(ctx context.Context, hash common.Hash) (*Receipt, error)
	OnChange(fn ChangeFunc)
}

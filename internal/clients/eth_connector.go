package clients

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"sync"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"

	"github.com/vadiminshakov/walletsync/internal/domain"
)

const receiptPollInterval = 2 * time.Second

// EthConnector is a headless Connector over a JSON-RPC endpoint with a local
// signing key. It fills the same slot a browser wallet connector occupies for
// the web client.
type EthConnector struct {
	mu        sync.RWMutex
	endpoints map[uint64]string
	client    *ethclient.Client
	key       *ecdsa.PrivateKey
	address   common.Address
	chainID   uint64
	status    domain.ConnectionStatus
	callbacks []ChangeFunc
}

// NewEthConnector derives the account address from the hex private key and
// prepares endpoints per chain id. No connection is made until Connect.
func NewEthConnector(privateKeyHex string, endpoints map[uint64]string, chainID uint64) (*EthConnector, error) {
	key := privateKeyHex
	if len(key) >= 2 && (key[:2] == "0x" || key[:2] == "0X") {
		key = key[2:]
	}

	privateKey, err := crypto.HexToECDSA(key)
	if err != nil {
		return nil, errors.Wrap(err, "invalid signer key")
	}

	pub, ok := privateKey.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, errors.New("error casting public key to ECDSA")
	}

	if _, ok := endpoints[chainID]; !ok {
		return nil, errors.Wrapf(ErrUnsupportedChain, "no endpoint for chain %d", chainID)
	}

	return &EthConnector{
		endpoints: endpoints,
		key:       privateKey,
		address:   crypto.PubkeyToAddress(*pub),
		chainID:   chainID,
		status:    domain.ConnectionDisconnected,
	}, nil
}

// GetAccount returns the current signer view.
func (c *EthConnector) GetAccount() Account {
	c.mu.RLock()
	defer c.mu.RUnlock()

	acc := Account{ChainID: c.chainID, Status: c.status}
	if c.status == domain.ConnectionConnected {
		acc.Address = c.address
	}
	return acc
}

// Connect dials the endpoint for the current chain and verifies its chain id.
func (c *EthConnector) Connect(ctx context.Context) error {
	c.mu.Lock()
	c.status = domain.ConnectionConnecting
	c.mu.Unlock()
	c.notify()

	client, err := ethclient.DialContext(ctx, c.endpoints[c.chainID])
	if err != nil {
		c.setStatus(domain.ConnectionDisconnected)
		return errors.Wrap(err, "dial rpc endpoint")
	}

	reported, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		c.setStatus(domain.ConnectionDisconnected)
		return errors.Wrap(err, "read chain id")
	}
	if reported.Uint64() != c.chainID {
		client.Close()
		c.setStatus(domain.ConnectionDisconnected)
		return errors.Errorf("endpoint serves chain %d, expected %d", reported.Uint64(), c.chainID)
	}

	c.mu.Lock()
	if c.client != nil {
		c.client.Close()
	}
	c.client = client
	c.status = domain.ConnectionConnected
	c.mu.Unlock()
	c.notify()

	return nil
}

// Disconnect drops the RPC connection and clears the session.
func (c *EthConnector) Disconnect(_ context.Context) error {
	c.mu.Lock()
	if c.client != nil {
		c.client.Close()
		c.client = nil
	}
	c.status = domain.ConnectionDisconnected
	c.mu.Unlock()
	c.notify()

	return nil
}

// SwitchChain re-dials against the endpoint configured for the requested id.
func (c *EthConnector) SwitchChain(ctx context.Context, chainID uint64) error {
	c.mu.Lock()
	if c.chainID == chainID && c.client != nil {
		c.mu.Unlock()
		return nil
	}
	if _, ok := c.endpoints[chainID]; !ok {
		c.mu.Unlock()
		return errors.Wrapf(ErrUnsupportedChain, "chain %d", chainID)
	}
	c.chainID = chainID
	c.status = domain.ConnectionReconnecting
	c.mu.Unlock()
	c.notify()

	return c.Connect(ctx)
}

// ReadContract performs an eth_call against the latest block.
func (c *EthConnector) ReadContract(ctx context.Context, call ContractCall) ([]byte, error) {
	client, err := c.activeClient()
	if err != nil {
		return nil, err
	}

	msg := ethereum.CallMsg{
		From:  call.From,
		To:    &call.To,
		Data:  call.Data,
		Value: call.Value,
	}

	out, err := client.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, errors.Wrap(err, "contract call")
	}
	return out, nil
}

// SendTransaction signs and submits the call, returning the tx hash.
func (c *EthConnector) SendTransaction(ctx context.Context, call ContractCall) (common.Hash, error) {
	client, err := c.activeClient()
	if err != nil {
		return common.Hash{}, err
	}

	nonce, err := client.PendingNonceAt(ctx, c.address)
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "fetch nonce")
	}

	gasPrice, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "suggest gas price")
	}

	value := call.Value
	if value == nil {
		value = new(big.Int)
	}

	gasLimit, err := client.EstimateGas(ctx, ethereum.CallMsg{
		From:  c.address,
		To:    &call.To,
		Data:  call.Data,
		Value: value,
	})
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "estimate gas")
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &call.To,
		Value:    value,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     call.Data,
	})

	signer := types.LatestSignerForChainID(new(big.Int).SetUint64(c.chainID))
	signed, err := types.SignTx(tx, signer, c.key)
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "sign transaction")
	}

	if err := client.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, errors.Wrap(err, "submit transaction")
	}

	return signed.Hash(), nil
}

// WaitReceipt polls until the receipt exists or ctx expires.
func (c *EthConnector) WaitReceipt(ctx context.Context, hash common.Hash) (*Receipt, error) {
	client, err := c.activeClient()
	if err != nil {
		return nil, err
	}

	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := client.TransactionReceipt(ctx, hash)
		if err == nil {
			return &Receipt{
				TxHash:      hash,
				BlockNumber: receipt.BlockNumber.Uint64(),
				Success:     receipt.Status == types.ReceiptStatusSuccessful,
			}, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, errors.Wrap(err, "fetch receipt")
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// OnChange registers a state-transition callback.
func (c *EthConnector) OnChange(fn ChangeFunc) {
	c.mu.Lock()
	c.callbacks = append(c.callbacks, fn)
	c.mu.Unlock()
}

func (c *EthConnector) activeClient() (*ethclient.Client, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.client == nil || c.status != domain.ConnectionConnected {
		return nil, errors.New("provider not ready: connector is not connected")
	}
	return c.client, nil
}

func (c *EthConnector) setStatus(status domain.ConnectionStatus) {
	c.mu.Lock()
	c.status = status
	c.mu.Unlock()
	c.notify()
}

func (c *EthConnector) notify() {
	c.mu.RLock()
	acc := Account{ChainID: c.chainID, Status: c.status}
	if c.status == domain.ConnectionConnected {
		acc.Address = c.address
	}
	callbacks := make([]ChangeFunc, len(c.callbacks))
	copy(callbacks, c.callbacks)
	c.mu.RUnlock()

	conn := domain.WalletConnection{
		Address: addressString(acc),
		ChainID: acc.ChainID,
		Status:  acc.Status,
	}
	for _, fn := range callbacks {
		fn(conn)
	}
}

func addressString(acc Account) string {
	if acc.Address == (common.Address{}) {
		return ""
	}
	return acc.Address.Hex()
}

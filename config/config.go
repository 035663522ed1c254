package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

const (
	defaultPollInterval     = 15 * time.Second
	defaultLedgerStaleAfter = 2 * time.Minute
	defaultTokenDecimals    = 6
	defaultDashboardAddr    = ":8085"
)

// Config is the validated runtime configuration. The signer key never lives
// here: it is read from WALLETSYNC_PRIVATE_KEY at wiring time.
type Config struct {
	ChainID       uint64
	RPCEndpoints  map[uint64]string
	TokenAddress  common.Address
	EscrowAddress common.Address
	TokenDecimals int32

	LedgerBaseURL string
	UserID        string

	PollInterval     time.Duration
	LedgerStaleAfter time.Duration
	SubmitTimeout    time.Duration
	ReceiptTimeout   time.Duration
	SettleDelay      time.Duration

	JournalDir    string
	SnapshotDir   string
	DashboardAddr string
}

// ConfigTmp mirrors the YAML document before validation.
type ConfigTmp struct {
	ChainID       uint64            `yaml:"chain_id"`
	RPCEndpoints  map[uint64]string `yaml:"rpc_endpoints"`
	TokenAddress  string            `yaml:"token_address"`
	EscrowAddress string            `yaml:"escrow_address"`
	TokenDecimals int32             `yaml:"token_decimals,omitempty"`

	LedgerBaseURL string `yaml:"ledger_base_url"`
	UserID        string `yaml:"user_id"`

	PollInterval     time.Duration `yaml:"poll_interval,omitempty"`
	LedgerStaleAfter time.Duration `yaml:"ledger_stale_after,omitempty"`
	SubmitTimeout    time.Duration `yaml:"submit_timeout,omitempty"`
	ReceiptTimeout   time.Duration `yaml:"receipt_timeout,omitempty"`
	SettleDelay      time.Duration `yaml:"settle_delay,omitempty"`

	JournalDir    string `yaml:"journal_dir,omitempty"`
	SnapshotDir   string `yaml:"snapshot_dir,omitempty"`
	DashboardAddr string `yaml:"dashboard_addr,omitempty"`
}

// Get loads configuration from the yaml file given via --config.
func Get() (*Config, error) {
	path := flag.String("config", "config.yaml", "path to yaml config")
	flag.Parse()

	return FromFile(*path)
}

// FromFile loads and validates a yaml config.
func FromFile(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var tmp ConfigTmp
	if err := yaml.Unmarshal(raw, &tmp); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	return tmp.validate()
}

func (t ConfigTmp) validate() (*Config, error) {
	if t.ChainID == 0 {
		return nil, fmt.Errorf("'chain_id' is required")
	}
	if _, ok := t.RPCEndpoints[t.ChainID]; !ok {
		return nil, fmt.Errorf("'rpc_endpoints' must contain an endpoint for chain %d", t.ChainID)
	}
	if !common.IsHexAddress(t.TokenAddress) {
		return nil, fmt.Errorf("incorrect 'token_address' param: %s", t.TokenAddress)
	}
	if !common.IsHexAddress(t.EscrowAddress) {
		return nil, fmt.Errorf("incorrect 'escrow_address' param: %s", t.EscrowAddress)
	}
	if t.LedgerBaseURL == "" {
		return nil, fmt.Errorf("'ledger_base_url' is required")
	}
	if t.UserID == "" {
		return nil, fmt.Errorf("'user_id' is required")
	}

	cfg := &Config{
		ChainID:          t.ChainID,
		RPCEndpoints:     t.RPCEndpoints,
		TokenAddress:     common.HexToAddress(t.TokenAddress),
		EscrowAddress:    common.HexToAddress(t.EscrowAddress),
		TokenDecimals:    t.TokenDecimals,
		LedgerBaseURL:    t.LedgerBaseURL,
		UserID:           t.UserID,
		PollInterval:     t.PollInterval,
		LedgerStaleAfter: t.LedgerStaleAfter,
		SubmitTimeout:    t.SubmitTimeout,
		ReceiptTimeout:   t.ReceiptTimeout,
		SettleDelay:      t.SettleDelay,
		JournalDir:       t.JournalDir,
		SnapshotDir:      t.SnapshotDir,
		DashboardAddr:    t.DashboardAddr,
	}

	if cfg.TokenDecimals <= 0 {
		cfg.TokenDecimals = defaultTokenDecimals
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.LedgerStaleAfter <= 0 {
		cfg.LedgerStaleAfter = defaultLedgerStaleAfter
	}
	if cfg.DashboardAddr == "" {
		cfg.DashboardAddr = defaultDashboardAddr
	}

	return cfg, nil
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestFromFile(t *testing.T) {
	path := writeConfig(t, `
chain_id: 84532
rpc_endpoints:
  84532: https://sepolia.base.org
token_address: "0x036CbD53842c5426634e7929541eC2318f3dCF7e"
escrow_address: "0x00000000000000000000000000000000000000bb"
ledger_base_url: https://app.example.com
user_id: user-1
poll_interval: 10s
`)

	cfg, err := FromFile(path)
	require.NoError(t, err)

	assert.Equal(t, uint64(84532), cfg.ChainID)
	assert.Equal(t, 10*time.Second, cfg.PollInterval)
	assert.Equal(t, int32(6), cfg.TokenDecimals, "defaulted")
	assert.Equal(t, 2*time.Minute, cfg.LedgerStaleAfter, "defaulted")
	assert.Equal(t, ":8085", cfg.DashboardAddr, "defaulted")
}

func TestFromFile_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "missing chain id",
			body: "rpc_endpoints:\n  1: http://x\n",
			want: "chain_id",
		},
		{
			name: "no endpoint for chain",
			body: "chain_id: 84532\nrpc_endpoints:\n  1: http://x\n",
			want: "rpc_endpoints",
		},
		{
			name: "bad token address",
			body: "chain_id: 84532\nrpc_endpoints:\n  84532: http://x\ntoken_address: nope\n",
			want: "token_address",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := FromFile(writeConfig(t, tc.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

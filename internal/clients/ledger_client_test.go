package clients

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/walletsync/internal/domain"
)

func TestLedgerClient_GetSummary(t *testing.T) {
	updated := time.Now().UTC().Truncate(time.Second)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/wallet/summary", r.URL.Path)
		assert.Equal(t, "user-1", r.URL.Query().Get("user_id"))
		assert.Equal(t, "0xwallet", r.URL.Query().Get("address"))

		json.NewEncoder(w).Encode(map[string]any{
			"available":  "85.00",
			"reserved":   "25.00",
			"total":      "110.00",
			"updated_at": updated,
		})
	}))
	defer srv.Close()

	client := NewLedgerClient(srv.URL, "user-1")
	summary, err := client.GetSummary(context.Background(), "0xwallet")
	require.NoError(t, err)

	assert.True(t, decimal.RequireFromString("85.00").Equal(summary.Available))
	assert.True(t, decimal.RequireFromString("25.00").Equal(summary.Reserved))
	assert.True(t, decimal.RequireFromString("110.00").Equal(summary.Total))
	assert.True(t, updated.Equal(summary.UpdatedAt))
}

func TestLedgerClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "temporarily down", http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"available": "1", "reserved": "0", "total": "1"})
	}))
	defer srv.Close()

	client := NewLedgerClient(srv.URL, "user-1")
	summary, err := client.GetSummary(context.Background(), "0xwallet")
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.True(t, decimal.NewFromInt(1).Equal(summary.Available))
}

func TestLedgerClient_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "unknown user", http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewLedgerClient(srv.URL, "user-1")
	_, err := client.GetSummary(context.Background(), "0xwallet")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Equal(t, int32(1), calls.Load())
}

func TestLedgerClient_Reconcile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/wallet/reconcile", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "user-1", body["user_id"])
		assert.Equal(t, "0xwallet", body["wallet_address"])
		assert.Equal(t, "0xhash", body["tx_hash"])
	}))
	defer srv.Close()

	client := NewLedgerClient(srv.URL, "user-1")
	require.NoError(t, client.Reconcile(context.Background(), "0xwallet", "0xhash"))
}

func TestLedgerClient_LogTransaction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/wallet/transactions", r.URL.Path)

		var body struct {
			Kind   domain.TxKind   `json:"kind"`
			Status string          `json:"status"`
			Amount decimal.Decimal `json:"amount"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, domain.TxDeposit, body.Kind)
		assert.Equal(t, "pending", body.Status)
		assert.True(t, decimal.NewFromInt(25).Equal(body.Amount))
	}))
	defer srv.Close()

	client := NewLedgerClient(srv.URL, "user-1")
	err := client.LogTransaction(context.Background(), "0xhash", domain.TxDeposit, "pending", decimal.NewFromInt(25))
	require.NoError(t, err)
}

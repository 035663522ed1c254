package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/walletsync/internal/domain"
	"github.com/vadiminshakov/walletsync/pkg/retrier"
)

const ledgerRequestTimeout = 15 * time.Second

// LedgerClient talks to the app server's off-chain ledger. The ledger is the
// only source aware of funds locked against in-app activity, so its summary
// takes precedence in balance resolution whenever it is fresh.
type LedgerClient struct {
	baseURL string
	userID  string
	client  *http.Client
	retry   *retrier.Retrier
}

// NewLedgerClient creates a ledger client for the given user.
func NewLedgerClient(baseURL, userID string) *LedgerClient {
	return &LedgerClient{
		baseURL: baseURL,
		userID:  userID,
		client: &http.Client{
			Timeout: ledgerRequestTimeout,
		},
		retry: retrier.New(
			retrier.WithMaxRetries(2),
			retrier.WithInitialInterval(300*time.Millisecond),
			retrier.WithRetryIf(isRetryableLedgerError),
		),
	}
}

type ledgerSummaryResponse struct {
	Available decimal.Decimal `json:"available"`
	Reserved  decimal.Decimal `json:"reserved"`
	Total     decimal.Decimal `json:"total"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type reconcileRequest struct {
	UserID  string `json:"user_id"`
	Address string `json:"wallet_address"`
	TxHash  string `json:"tx_hash"`
}

type txLogRequest struct {
	UserID string          `json:"user_id"`
	TxHash string          `json:"tx_hash"`
	Kind   domain.TxKind   `json:"kind"`
	Status string          `json:"status"`
	Amount decimal.Decimal `json:"amount"`
}

// statusError carries the HTTP status for retry decisions.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("ledger responded %d: %s", e.code, e.body)
}

func isRetryableLedgerError(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.code >= http.StatusInternalServerError
	}
	return true
}

// GetSummary fetches the reconciled wallet summary for the address.
func (c *LedgerClient) GetSummary(ctx context.Context, walletAddress string) (*domain.LedgerSummary, error) {
	endpoint := fmt.Sprintf("%s/api/wallet/summary?user_id=%s&address=%s",
		c.baseURL, url.QueryEscape(c.userID), url.QueryEscape(walletAddress))

	return retrier.DoWithData(c.retry, ctx, func(ctx context.Context) (*domain.LedgerSummary, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, errors.Wrap(err, "build summary request")
		}

		var body ledgerSummaryResponse
		if err := c.do(req, &body); err != nil {
			return nil, errors.Wrap(err, "fetch wallet summary")
		}

		return &domain.LedgerSummary{
			Available: body.Available,
			Reserved:  body.Reserved,
			Total:     body.Total,
			UpdatedAt: body.UpdatedAt,
		}, nil
	})
}

// Reconcile asks the server to align the ledger with an observed transaction.
func (c *LedgerClient) Reconcile(ctx context.Context, walletAddress, txHash string) error {
	payload := reconcileRequest{UserID: c.userID, Address: walletAddress, TxHash: txHash}
	return c.retry.Do(ctx, func(ctx context.Context) error {
		return errors.Wrap(c.post(ctx, "/api/wallet/reconcile", payload), "reconcile wallet")
	})
}

// LogTransaction records a submitted transaction in the off-chain ledger.
// Called with status "pending" before confirmation so the ledger never loses
// a submitted-but-unconfirmed transaction.
func (c *LedgerClient) LogTransaction(ctx context.Context, txHash string, kind domain.TxKind, status string, amount decimal.Decimal) error {
	payload := txLogRequest{UserID: c.userID, TxHash: txHash, Kind: kind, Status: status, Amount: amount}
	return c.retry.Do(ctx, func(ctx context.Context) error {
		return errors.Wrap(c.post(ctx, "/api/wallet/transactions", payload), "log transaction")
	})
}

func (c *LedgerClient) post(ctx context.Context, path string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "encode request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, nil)
}

func (c *LedgerClient) do(req *http.Request, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &statusError{code: resp.StatusCode, body: string(bytes.TrimSpace(body))}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "decode response")
	}
	return nil
}

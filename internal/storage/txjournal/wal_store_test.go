package txjournal

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/walletsync/internal/domain"
)

func TestStore_LogAndStatusTransitions(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	rec, err := store.Log("0xaaa", domain.TxDeposit, decimal.NewFromInt(25), "0xwallet")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, rec.Status)
	assert.NotEmpty(t, rec.ID)

	require.Len(t, store.Pending(), 1)

	require.NoError(t, store.MarkCompleted(rec.ID))
	assert.Empty(t, store.Pending())

	records := store.Records()
	require.Len(t, records, 1)
	assert.Equal(t, StatusCompleted, records[0].Status)
}

func TestStore_MarkFailedKeepsReason(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	rec, err := store.Log("0xbbb", domain.TxWithdraw, decimal.NewFromInt(10), "0xwallet")
	require.NoError(t, err)

	require.NoError(t, store.MarkFailed(rec.ID, errors.New("transaction reverted")))

	records := store.Records()
	require.Len(t, records, 1)
	assert.Equal(t, StatusFailed, records[0].Status)
	assert.Equal(t, "transaction reverted", records[0].Error)
}

func TestStore_UnknownRecord(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	assert.Error(t, store.MarkCompleted("no-such-id"))
}

func TestStore_ReplaySurvivesRestart(t *testing.T) {
	dir := t.TempDir()

	store, err := NewStore(dir)
	require.NoError(t, err)

	pending, err := store.Log("0xccc", domain.TxDeposit, decimal.NewFromInt(5), "0xwallet")
	require.NoError(t, err)
	done, err := store.Log("0xddd", domain.TxWithdraw, decimal.NewFromInt(7), "0xwallet")
	require.NoError(t, err)
	require.NoError(t, store.MarkCompleted(done.ID))
	require.NoError(t, store.Close())

	// reopen: latest entry per id must win
	reopened, err := NewStore(dir)
	require.NoError(t, err)
	defer reopened.Close()

	assert.Len(t, reopened.Records(), 2)

	stillPending := reopened.Pending()
	require.Len(t, stillPending, 1)
	assert.Equal(t, pending.ID, stillPending[0].ID)
	assert.Equal(t, "0xccc", stillPending[0].TxHash)
	assert.True(t, decimal.NewFromInt(5).Equal(stillPending[0].Amount))
}

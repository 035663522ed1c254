package session

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/walletsync/internal/domain"
)

type fakeConnector struct {
	status      domain.ConnectionStatus
	connects    int
	disconnects int
	connectErr  error
}

func (f *fakeConnector) Connect(ctx context.Context) error {
	f.connects++
	if f.connectErr != nil {
		return f.connectErr
	}
	f.status = domain.ConnectionConnected
	return nil
}

func (f *fakeConnector) Disconnect(ctx context.Context) error {
	f.disconnects++
	f.status = domain.ConnectionDisconnected
	return nil
}

func (f *fakeConnector) GetAccount() Account {
	return Account{Address: "0x1", Status: f.status}
}

func TestIsSessionError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{errors.New("session topic doesn't exist"), true},
		{errors.New("Pairing expired"), true},
		{errors.New("provider not ready: connector is not connected"), true},
		{errors.New("WebSocket connection closed"), true},
		{errors.New("execution reverted: insufficient escrow"), false},
		{errors.New("user rejected the request"), false},
		{nil, false},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, IsSessionError(tc.err), "err=%v", tc.err)
	}
}

func TestIsUserRejection(t *testing.T) {
	assert.True(t, IsUserRejection(errors.New("MetaMask Tx Signature: User denied transaction signature")))
	assert.True(t, IsUserRejection(errors.New("ACTION_REJECTED")))
	assert.False(t, IsUserRejection(errors.New("insufficient funds for gas")))
}

func TestMonitor_Recover(t *testing.T) {
	t.Run("purge, invalidate, reconnect", func(t *testing.T) {
		conn := &fakeConnector{status: domain.ConnectionConnected}
		invalidated := 0
		m := NewMonitor(conn, func() { invalidated++ }, zap.NewNop())

		ok := m.Recover(context.Background(), RecoverOptions{AttemptReconnect: true})
		require.True(t, ok)
		assert.True(t, m.Healthy())
		assert.Equal(t, 1, conn.disconnects)
		assert.Equal(t, 1, conn.connects)
		assert.Equal(t, 1, invalidated)
	})

	t.Run("reconnect failure leaves session unhealthy and signals", func(t *testing.T) {
		conn := &fakeConnector{status: domain.ConnectionConnected, connectErr: errors.New("relayer down")}
		signaled := false
		m := NewMonitor(conn, nil, zap.NewNop(), WithReconnectRequired(func() { signaled = true }))

		ok := m.Recover(context.Background(), RecoverOptions{AttemptReconnect: true})
		assert.False(t, ok)
		assert.False(t, m.Healthy())
		assert.True(t, signaled)
	})

	t.Run("cooldown collapses back-to-back recoveries", func(t *testing.T) {
		conn := &fakeConnector{status: domain.ConnectionConnected}
		now := time.Now()
		m := NewMonitor(conn, nil, zap.NewNop(),
			WithCooldown(3*time.Second),
			WithClock(func() time.Time { return now }))

		require.True(t, m.Recover(context.Background(), RecoverOptions{AttemptReconnect: true}))
		// second call inside the cooldown must not touch the connector again
		require.True(t, m.Recover(context.Background(), RecoverOptions{AttemptReconnect: true}))
		assert.Equal(t, 1, conn.connects)

		now = now.Add(4 * time.Second)
		conn.status = domain.ConnectionConnected
		require.True(t, m.Recover(context.Background(), RecoverOptions{AttemptReconnect: true}))
		assert.Equal(t, 2, conn.connects)
	})
}

func TestMonitor_WithRecovery(t *testing.T) {
	t.Run("retries once on session error after recovery", func(t *testing.T) {
		conn := &fakeConnector{status: domain.ConnectionConnected}
		m := NewMonitor(conn, nil, zap.NewNop())

		calls := 0
		err := m.WithRecovery(context.Background(), func(ctx context.Context) error {
			calls++
			if calls == 1 {
				return errors.New("session topic doesn't exist")
			}
			return nil
		}, Options{MaxRetries: 1, Timeout: time.Second})

		require.NoError(t, err)
		assert.Equal(t, 2, calls)
		assert.True(t, m.Healthy())
	})

	t.Run("session error on every attempt retries at most once", func(t *testing.T) {
		conn := &fakeConnector{status: domain.ConnectionConnected}
		m := NewMonitor(conn, nil, zap.NewNop())

		calls := 0
		err := m.WithRecovery(context.Background(), func(ctx context.Context) error {
			calls++
			return errors.New("pairing deleted")
		}, Options{MaxRetries: 1, Timeout: time.Second})

		require.Error(t, err)
		assert.Equal(t, 2, calls)
	})

	t.Run("explicit zero retries runs the op exactly once", func(t *testing.T) {
		conn := &fakeConnector{status: domain.ConnectionConnected}
		m := NewMonitor(conn, nil, zap.NewNop())

		calls := 0
		err := m.WithRecovery(context.Background(), func(ctx context.Context) error {
			calls++
			return errors.New("session topic doesn't exist")
		}, Options{MaxRetries: 0, Timeout: time.Second})

		require.Error(t, err)
		assert.Equal(t, 1, calls)
		assert.Equal(t, 0, conn.disconnects, "no recovery pass without a retry to follow")
	})

	t.Run("never retries user rejection", func(t *testing.T) {
		conn := &fakeConnector{status: domain.ConnectionConnected}
		m := NewMonitor(conn, nil, zap.NewNop())

		calls := 0
		err := m.WithRecovery(context.Background(), func(ctx context.Context) error {
			calls++
			return errors.New("user rejected the request")
		}, Options{MaxRetries: 3, Timeout: time.Second})

		require.Error(t, err)
		assert.Equal(t, 1, calls)
		assert.Equal(t, 0, conn.disconnects)
	})

	t.Run("non-session errors surface without recovery", func(t *testing.T) {
		conn := &fakeConnector{status: domain.ConnectionConnected}
		m := NewMonitor(conn, nil, zap.NewNop())

		err := m.WithRecovery(context.Background(), func(ctx context.Context) error {
			return errors.New("execution reverted: insufficient escrow")
		}, Options{Timeout: time.Second})

		require.Error(t, err)
		assert.Equal(t, 0, conn.disconnects)
	})

	t.Run("hanging operation reports timeout", func(t *testing.T) {
		conn := &fakeConnector{status: domain.ConnectionConnected}
		m := NewMonitor(conn, nil, zap.NewNop())

		err := m.WithRecovery(context.Background(), func(ctx context.Context) error {
			<-make(chan struct{}) // signing prompt never resolves
			return nil
		}, Options{Timeout: 50 * time.Millisecond})

		assert.ErrorIs(t, err, ErrOperationTimeout)
	})
}

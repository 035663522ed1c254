package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcaster_FansOut(t *testing.T) {
	b := NewBroadcaster(4)
	first := b.Subscribe()
	second := b.Subscribe()

	b.Publish(Signal{Kind: SignalBalanceRefresh, TxHash: "0xabc"})

	for _, ch := range []chan Signal{first, second} {
		got := <-ch
		assert.Equal(t, SignalBalanceRefresh, got.Kind)
		assert.Equal(t, "0xabc", got.TxHash)
		assert.False(t, got.At.IsZero(), "publish stamps the time")
	}
}

func TestBroadcaster_DropsSlowConsumer(t *testing.T) {
	b := NewBroadcaster(1)
	ch := b.Subscribe()

	b.Publish(Signal{Kind: SignalBalanceRefresh})
	b.Publish(Signal{Kind: SignalReconnectRequired}) // buffer full, dropped

	got := <-ch
	assert.Equal(t, SignalBalanceRefresh, got.Kind)

	select {
	case s := <-ch:
		t.Fatalf("expected dropped signal, got %v", s)
	default:
	}
}

func TestBroadcaster_Unsubscribe(t *testing.T) {
	b := NewBroadcaster(1)
	ch := b.Subscribe()
	b.Unsubscribe(ch)

	_, open := <-ch
	require.False(t, open, "channel closed on unsubscribe")

	// double unsubscribe is a no-op
	b.Unsubscribe(ch)
	b.Publish(Signal{Kind: SignalBalanceRefresh})
}

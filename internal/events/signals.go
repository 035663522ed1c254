// Package events fans out the two signals this layer exposes to its callers:
// balance-refresh after a confirmed transaction, and reconnect-required when
// automatic session recovery gave up.
package events

import (
	"sync"
	"time"
)

// SignalKind names a broadcast signal.
type SignalKind string

const (
	SignalBalanceRefresh    SignalKind = "balance-refresh"
	SignalReconnectRequired SignalKind = "reconnect-required"
)

// Signal is one broadcast event.
type Signal struct {
	Kind   SignalKind `json:"kind"`
	At     time.Time  `json:"at"`
	TxHash string     `json:"tx_hash,omitempty"`
}

// Broadcaster fans out signals to all subscribers via buffered channels,
// dropping on slow readers so a stuck consumer never blocks the flow.
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[chan Signal]struct{}
	buffer int
}

// NewBroadcaster creates a broadcaster with the given per-subscriber buffer.
func NewBroadcaster(buffer int) *Broadcaster {
	if buffer < 1 {
		buffer = 16
	}
	return &Broadcaster{
		subs:   make(map[chan Signal]struct{}),
		buffer: buffer,
	}
}

// Publish sends the signal to all subscribers, dropping if a reader is slow.
func (b *Broadcaster) Publish(s Signal) {
	if s.At.IsZero() {
		s.At = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- s:
		default:
			// drop slow consumer
		}
	}
}

// Subscribe returns a channel receiving signals until Unsubscribe is called.
func (b *Broadcaster) Subscribe() chan Signal {
	ch := make(chan Signal, b.buffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes the channel and closes it.
func (b *Broadcaster) Unsubscribe(ch chan Signal) {
	b.mu.Lock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}

// Package session owns wallet session health. The connector cannot
// self-diagnose a zombie session (reports connected, every request fails), so
// the flag lives here and all recovery goes through a single entry point.
package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/walletsync/internal/domain"
)

const (
	defaultCooldown       = 3 * time.Second
	defaultOpTimeout      = 2 * time.Minute
	defaultMaxRetries     = 1
	defaultRecoverTimeout = 30 * time.Second
)

// ErrOperationTimeout marks an operation that outlived its deadline. The
// underlying call may still resolve later; callers surface it as TIMEOUT and
// never assume failure.
var ErrOperationTimeout = errors.New("wallet operation timed out")

// sessionErrorPatterns is a curated heuristic set. False positives only cost
// a harmless cleanup pass; false negatives leave manual reconnect as the way
// out.
var sessionErrorPatterns = []string{
	"session topic doesn't exist",
	"session expired",
	"session_request",
	"no matching key",
	"pairing",
	"topic",
	"relayer",
	"disconnected from relay",
	"provider not ready",
	"please call connect",
	"websocket",
	"socket hang up",
	"connection interrupted",
}

var userRejectionPatterns = []string{
	"user rejected",
	"user denied",
	"rejected the request",
	"action_rejected",
	"request rejected",
	"code: 4001",
}

// IsSessionError reports whether the failure looks like a stale or expired
// wallet session.
func IsSessionError(err error) bool {
	return matchesAny(err, sessionErrorPatterns)
}

// IsUserRejection reports whether the user explicitly declined the request.
func IsUserRejection(err error) bool {
	return matchesAny(err, userRejectionPatterns)
}

func matchesAny(err error, patterns []string) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// Connector is the slice of the connector the monitor recovers through.
type Connector interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	GetAccount() Account
}

// Account mirrors the connector account view without importing the clients
// package (the clients package adapts into this interface at wiring time).
type Account struct {
	Address string
	Status  domain.ConnectionStatus
}

// Monitor tracks session health and drives cleanup/reconnect. Injectable, not
// a singleton, so independent monitors carry independent cooldown clocks.
type Monitor struct {
	mu           sync.Mutex
	healthy      bool
	recovering   bool
	lastRecovery time.Time

	cooldown  time.Duration
	now       func() time.Time
	connector Connector
	// invalidate flushes cached balance/activity reads after a session purge.
	invalidate func()
	// onReconnectRequired fires when automatic recovery could not restore the
	// session and the user must reconnect manually.
	onReconnectRequired func()
	l                   *zap.Logger
}

// Option configures the Monitor.
type Option func(*Monitor)

// WithCooldown overrides the recovery cooldown.
func WithCooldown(d time.Duration) Option {
	return func(m *Monitor) { m.cooldown = d }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// WithReconnectRequired registers the manual-reconnect callback.
func WithReconnectRequired(fn func()) Option {
	return func(m *Monitor) { m.onReconnectRequired = fn }
}

// NewMonitor creates a healthy monitor.
func NewMonitor(connector Connector, invalidate func(), logger *zap.Logger, opts ...Option) *Monitor {
	m := &Monitor{
		healthy:    true,
		cooldown:   defaultCooldown,
		now:        time.Now,
		connector:  connector,
		invalidate: invalidate,
		l:          logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Healthy reports current session health.
func (m *Monitor) Healthy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.healthy
}

// MarkUnhealthy flags the session without triggering recovery.
func (m *Monitor) MarkUnhealthy() {
	m.mu.Lock()
	m.healthy = false
	m.mu.Unlock()
}

// RecoverOptions controls one recovery pass.
type RecoverOptions struct {
	AttemptReconnect bool
}

// Recover purges the stale session and optionally reconnects. Returns true if
// the session is healthy afterwards. Rate-limited by the cooldown and guarded
// against reentry so concurrent triggers collapse into one pass.
func (m *Monitor) Recover(ctx context.Context, opts RecoverOptions) bool {
	m.mu.Lock()
	if m.recovering {
		m.mu.Unlock()
		return false
	}
	if m.now().Sub(m.lastRecovery) < m.cooldown {
		healthy := m.healthy
		m.mu.Unlock()
		return healthy
	}
	m.recovering = true
	m.lastRecovery = m.now()
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.recovering = false
		m.mu.Unlock()
	}()

	m.l.Info("recovering wallet session",
		zap.Bool("attempt_reconnect", opts.AttemptReconnect))

	recoverCtx, cancel := context.WithTimeout(ctx, defaultRecoverTimeout)
	defer cancel()

	// purge session artifacts: force-disconnect if the connector still thinks
	// it is connected, then drop every cached read that trusted the session.
	if acc := m.connector.GetAccount(); acc.Status == domain.ConnectionConnected {
		if err := m.connector.Disconnect(recoverCtx); err != nil {
			m.l.Warn("failed to disconnect stale session", zap.Error(err))
		}
	}
	if m.invalidate != nil {
		m.invalidate()
	}

	healthy := false
	if opts.AttemptReconnect {
		if err := m.connector.Connect(recoverCtx); err != nil {
			m.l.Warn("automatic reconnect failed", zap.Error(err))
		} else {
			healthy = true
		}
	}

	m.mu.Lock()
	m.healthy = healthy
	m.mu.Unlock()

	if !healthy && m.onReconnectRequired != nil {
		m.onReconnectRequired()
	}

	return healthy
}

// Options controls WithRecovery.
type Options struct {
	MaxRetries int
	Timeout    time.Duration
}

// WithRecovery wraps a wallet-signing call with a timeout race and, on a
// classified session error, one recovery pass before a single retry. Never
// retries a user rejection: no state was mutated and the user already acted.
// A zero-valued Options gets the defaults; an explicit MaxRetries of 0 means
// no retry at all.
func (m *Monitor) WithRecovery(ctx context.Context, op func(ctx context.Context) error, opts Options) error {
	if opts == (Options{}) {
		opts.MaxRetries = defaultMaxRetries
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultOpTimeout
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}

	var err error
	for attempt := 0; attempt <= opts.MaxRetries; attempt++ {
		err = m.runWithTimeout(ctx, op, opts.Timeout)
		if err == nil {
			m.mu.Lock()
			m.healthy = true
			m.mu.Unlock()
			return nil
		}

		if IsUserRejection(err) {
			return err
		}
		if !IsSessionError(err) {
			return err
		}
		if attempt == opts.MaxRetries {
			break
		}

		m.l.Info("session error detected, attempting recovery before retry",
			zap.Error(err), zap.Int("attempt", attempt+1))

		if !m.Recover(ctx, RecoverOptions{AttemptReconnect: true}) {
			return err
		}
	}

	return err
}

// runWithTimeout races op against the deadline in a goroutine: a signing
// prompt can hang indefinitely if the wallet UI is dismissed without
// rejecting, so op's own context handling cannot be relied upon.
func (m *Monitor) runWithTimeout(ctx context.Context, op func(ctx context.Context) error, timeout time.Duration) error {
	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- op(opCtx)
	}()

	select {
	case err := <-done:
		return err
	case <-opCtx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrOperationTimeout
	}
}

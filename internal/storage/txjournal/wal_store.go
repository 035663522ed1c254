// Package txjournal persists every submitted transaction in a WAL before its
// receipt resolves, so a submitted-but-unconfirmed deposit or withdraw is
// never silently lost if the process dies mid-flow.
package txjournal

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/gowal"

	"github.com/vadiminshakov/walletsync/internal/domain"
)

const (
	defaultJournalDir   = "./wal/txjournal"
	journalSegmentLimit = 1000
	journalMaxSegments  = 100
	journalKeyPrefix    = "tx_"

	// StatusPending is written before the receipt resolves.
	StatusPending = "pending"
	// StatusCompleted is written once the receipt reports success.
	StatusCompleted = "completed"
	// StatusFailed is written once the receipt reports a revert.
	StatusFailed = "failed"
)

// Record is one journaled transaction. The latest WAL entry per id wins.
type Record struct {
	ID      string          `json:"id"`
	TxHash  string          `json:"tx_hash"`
	Kind    domain.TxKind   `json:"kind"`
	Status  string          `json:"status"`
	Amount  decimal.Decimal `json:"amount"`
	Address string          `json:"address"`
	Time    time.Time       `json:"time"`
	Error   string          `json:"error,omitempty"`
}

// Store is a gowal-backed transaction journal.
type Store struct {
	mu      sync.RWMutex
	wal     *gowal.Wal
	records []*Record
	index   map[string]*Record
}

// NewStore opens (or creates) the journal under dir and replays its records.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		dir = defaultJournalDir
	}

	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "journal_",
		SegmentThreshold: journalSegmentLimit,
		MaxSegments:      journalMaxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init tx journal WAL")
	}

	s := &Store{
		wal:   wal,
		index: make(map[string]*Record),
	}
	if err := s.replay(); err != nil {
		return nil, err
	}
	return s, nil
}

// replay rebuilds in-memory state; the latest entry per record id wins.
func (s *Store) replay() error {
	current := s.wal.CurrentIndex()
	for idx := uint64(1); idx <= current; idx++ {
		key, payload, err := s.wal.Get(idx)
		if err != nil || !strings.HasPrefix(key, journalKeyPrefix) {
			continue
		}

		var rec Record
		if err := json.Unmarshal(payload, &rec); err != nil {
			return errors.Wrap(err, "decode journal record")
		}

		if existing, ok := s.index[rec.ID]; ok {
			*existing = rec
			continue
		}
		copied := rec
		s.records = append(s.records, &copied)
		s.index[rec.ID] = &copied
	}
	return nil
}

// Log journals a freshly submitted transaction as pending and returns its id.
func (s *Store) Log(txHash string, kind domain.TxKind, amount decimal.Decimal, address string) (*Record, error) {
	rec := &Record{
		ID:      uuid.New().String(),
		TxHash:  txHash,
		Kind:    kind,
		Status:  StatusPending,
		Amount:  amount,
		Address: address,
		Time:    time.Now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.persist(rec); err != nil {
		return nil, err
	}
	s.records = append(s.records, rec)
	s.index[rec.ID] = rec
	return rec, nil
}

// MarkCompleted flips the record to completed.
func (s *Store) MarkCompleted(id string) error {
	return s.setStatus(id, StatusCompleted, "")
}

// MarkFailed flips the record to failed with the revert reason.
func (s *Store) MarkFailed(id string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return s.setStatus(id, StatusFailed, msg)
}

func (s *Store) setStatus(id, status, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.index[id]
	if !ok {
		return errors.Errorf("unknown journal record %s", id)
	}
	rec.Status = status
	rec.Error = errMsg
	return s.persist(rec)
}

// Pending returns records still awaiting a receipt, oldest first.
func (s *Store) Pending() []*Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pending := make([]*Record, 0)
	for _, rec := range s.records {
		if rec.Status == StatusPending {
			pending = append(pending, rec)
		}
	}
	return pending
}

// Records returns a copy of all journaled records.
func (s *Store) Records() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, *rec)
	}
	return out
}

func (s *Store) persist(rec *Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "marshal journal record")
	}

	nextIndex := s.wal.CurrentIndex() + 1
	return errors.Wrap(s.wal.Write(nextIndex, journalKeyPrefix+rec.ID, payload), "write journal record")
}

// Close closes the underlying WAL.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wal.Close()
}

package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/vadiminshakov/walletsync/internal/domain"
	"github.com/vadiminshakov/walletsync/internal/storage/txjournal"
)

const snapshotPollInterval = 2 * time.Second

type balanceSnapshotReader interface {
	SnapshotsAfter(index uint64) ([]domain.BalanceSnapshotRecord, error)
}

type journalReader interface {
	Records() []txjournal.Record
}

type walletFacade interface {
	ResolveWalletStatus() domain.WalletStatus
	Snapshot() domain.BalanceSnapshot
}

// Server exposes the local dashboard: wallet status, the current resolved
// snapshot, the transaction journal and an SSE stream of balance snapshots.
type Server struct {
	addr    string
	store   balanceSnapshotReader
	journal journalReader
	wallet  walletFacade
	l       *zap.Logger
}

// NewServer creates a new dashboard server instance.
func NewServer(addr string, store balanceSnapshotReader, journal journalReader, wallet walletFacade, logger *zap.Logger) *Server {
	return &Server{addr: addr, store: store, journal: journal, wallet: wallet, l: logger}
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleIndex)
	r.Get("/wallet/status", s.handleStatus)
	r.Get("/balance", s.handleBalance)
	r.Get("/balance/stream", s.handleBalanceStream)
	r.Get("/transactions", s.handleTransactions)

	server := &http.Server{
		Addr:              s.addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, indexHTML)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]string{"status": string(s.wallet.ResolveWalletStatus())})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.wallet.Snapshot())
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.journal.Records())
}

func (s *Server) handleBalanceStream(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "snapshot store not available", http.StatusServiceUnavailable)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// comment heartbeat keeps intermediaries from dropping idle streams
	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	pollTicker := time.NewTicker(snapshotPollInterval)
	defer pollTicker.Stop()

	lastIndex := uint64(0)
	sendSnapshots := func() error {
		records, err := s.store.SnapshotsAfter(lastIndex)
		if err != nil {
			return err
		}
		for _, record := range records {
			payload, err := json.Marshal(record.Snapshot)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "event: balance\n")
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
			lastIndex = record.Index
		}
		return nil
	}

	if err := sendSnapshots(); err != nil {
		s.l.Warn("balance stream initial load failed", zap.Error(err))
		http.Error(w, "failed to load snapshots", http.StatusInternalServerError)
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
		case <-pollTicker.C:
			if err := sendSnapshots(); err != nil {
				s.l.Warn("balance stream poll failed", zap.Error(err))
			}
		}
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.l.Warn("failed to encode response", zap.Error(err))
	}
}

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<title>walletsync</title>
<style>
body { font-family: monospace; margin: 2rem; background: #111; color: #ddd; }
h1 { font-size: 1.2rem; }
pre { background: #1b1b1b; padding: 1rem; border-radius: 4px; }
#status { color: #8c8; }
</style>
</head>
<body>
<h1>walletsync dashboard</h1>
<div>wallet status: <span id="status">...</span></div>
<h2>resolved balance</h2>
<pre id="balance">waiting for snapshots...</pre>
<h2>transactions</h2>
<pre id="txs">loading...</pre>
<script>
function refreshStatus() {
  fetch('/wallet/status').then(r => r.json()).then(d => {
    document.getElementById('status').textContent = d.status;
  });
}
function refreshTxs() {
  fetch('/transactions').then(r => r.json()).then(d => {
    document.getElementById('txs').textContent = JSON.stringify(d, null, 2);
  });
}
refreshStatus();
refreshTxs();
setInterval(refreshStatus, 5000);
setInterval(refreshTxs, 5000);

const es = new EventSource('/balance/stream');
es.addEventListener('balance', e => {
  document.getElementById('balance').textContent = JSON.stringify(JSON.parse(e.data), null, 2);
});
</script>
</body>
</html>`

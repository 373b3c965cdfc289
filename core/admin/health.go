// Package admin exposes a small operational HTTP surface: a Prometheus
// scrape endpoint and a liveness probe, plus a JSON event log of node
// health snapshots covering chain tip height, peer count, and process
// memory/goroutine stats.
package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"scriptindex/core/chain"
	"scriptindex/core/metrics"
)

// PeerCounter reports how many clients are currently connected; *rpc.Server
// satisfies it without this package importing rpc (which would otherwise
// import admin back, if the server ever needed to answer /healthz itself).
type PeerCounter interface {
	PeerCount() int
}

// Snapshot is one point-in-time health observation, logged as JSON.
type Snapshot struct {
	BestHeight    uint32 `json:"best_height"`
	PeerCount     int    `json:"peer_count"`
	MemAllocBytes uint64 `json:"mem_alloc_bytes"`
	Goroutines    int    `json:"goroutines"`
	Timestamp     int64  `json:"timestamp"`
}

// Health wires the chain tip and RPC server into a JSON event log and a
// Prometheus registry, and serves both over HTTP via gorilla/mux.
type Health struct {
	headers chain.HeaderChain
	peers   PeerCounter
	metrics *metrics.Registry

	log  *logrus.Logger
	file *os.File
	mu   sync.Mutex
}

// New configures a Health logger writing JSON lines to path.
func New(headers chain.HeaderChain, peers PeerCounter, m *metrics.Registry, path string) (*Health, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	lg := logrus.New()
	lg.SetFormatter(&logrus.JSONFormatter{})
	lg.SetOutput(f)
	return &Health{headers: headers, peers: peers, metrics: m, log: lg, file: f}, nil
}

// Close releases the underlying log file.
func (h *Health) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.file.Close()
}

// Snapshot gathers current height, peer count, and runtime stats.
func (h *Health) Snapshot() Snapshot {
	s := Snapshot{Timestamp: time.Now().Unix(), Goroutines: runtime.NumGoroutine()}
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	s.MemAllocBytes = mem.Alloc
	if h.headers != nil {
		if best, ok := h.headers.Best(); ok {
			s.BestHeight = best.Height
		}
	}
	if h.peers != nil {
		s.PeerCount = h.peers.PeerCount()
	}
	return s
}

// LogSnapshot records one Snapshot as a structured JSON log line.
func (h *Health) LogSnapshot() {
	s := h.Snapshot()
	h.mu.Lock()
	h.log.WithFields(logrus.Fields{
		"best_height": s.BestHeight,
		"peer_count":  s.PeerCount,
		"mem_alloc":   s.MemAllocBytes,
		"goroutines":  s.Goroutines,
	}).Info("health snapshot")
	h.mu.Unlock()
}

// Run periodically logs a snapshot until ctx is canceled.
func (h *Health) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			h.LogSnapshot()
		case <-ctx.Done():
			return
		}
	}
}

// Router builds the admin mux: /metrics for Prometheus scraping and
// /healthz for a liveness probe returning the latest Snapshot as JSON.
func (h *Health) Router() http.Handler {
	r := mux.NewRouter()
	r.Handle("/metrics", h.metrics.Handler())
	r.HandleFunc("/healthz", h.handleHealthz).Methods(http.MethodGet)
	return r
}

func (h *Health) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.Snapshot())
}

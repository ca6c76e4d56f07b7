package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/WessleyAI/issuesim/engine/domain"
	"github.com/WessleyAI/issuesim/engine/ingest"
	"github.com/WessleyAI/issuesim/engine/retrieval"
	"github.com/WessleyAI/issuesim/pkg/metrics"
	"github.com/WessleyAI/issuesim/pkg/mid"
	"github.com/WessleyAI/issuesim/pkg/repo"
)

const maxK = 100

// searchService is satisfied by *retrieval.Service.
type searchService interface {
	QueryK(ctx context.Context, question string, k int) ([]retrieval.Result, error)
	Swap(searcher retrieval.Searcher)
}

type server struct {
	svc     searchService
	threads retrieval.ThreadLookup
	met     *metrics.Query
	logger  *slog.Logger

	// load returns a fresh searcher and its row count.
	load func(ctx context.Context) (retrieval.Searcher, int, error)

	mu       sync.Mutex
	rows     int
	loadedAt time.Time
}

func newServer(svc searchService, threads retrieval.ThreadLookup, met *metrics.Query, logger *slog.Logger) *server {
	return &server{svc: svc, threads: threads, met: met, logger: logger}
}

func (s *server) routes(reg *metrics.Registry, corsOrigin string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/similar", s.handleSimilar)
	mux.HandleFunc("GET /api/issues/{number}/thread", s.handleThread)
	mux.Handle("GET /metrics", reg.Handler())

	return mid.Chain(mux,
		mid.Recover(s.logger),
		mid.RequestID(),
		mid.Logger(s.logger),
		mid.CORS(corsOrigin),
		mid.OTel("issuesim-api"),
		mid.Metrics(reg),
	)
}

// reload swaps in a freshly loaded searcher.
func (s *server) reload(ctx context.Context) error {
	searcher, rows, err := s.load(ctx)
	if err != nil {
		return err
	}
	s.svc.Swap(searcher)

	s.mu.Lock()
	s.rows = rows
	s.loadedAt = time.Now().UTC()
	s.mu.Unlock()

	s.met.IndexRows.Set(float64(rows))
	s.logger.Info("index loaded", "rows", rows)
	return nil
}

// onRebuilt reloads the index after a rebuild embedded with checkpoint.
func (s *server) onRebuilt(checkpoint string) func(context.Context, ingest.IndexEvent) {
	return func(ctx context.Context, ev ingest.IndexEvent) {
		if ev.Checkpoint != checkpoint {
			s.logger.Warn("ignoring rebuild from another encoder",
				"job", ev.JobID, "checkpoint", ev.Checkpoint, "want", checkpoint)
			return
		}
		if err := s.reload(ctx); err != nil {
			s.logger.Error("index reload failed", "job", ev.JobID, "err", err)
			return
		}
		s.met.Reloads.Inc()
		s.logger.Info("index reloaded", "job", ev.JobID, "rows", ev.Rows)
	}
}

// --- Handlers ---

type healthResponse struct {
	Status   string    `json:"status"`
	Rows     int       `json:"rows"`
	LoadedAt time.Time `json:"loaded_at,omitzero"`
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	resp := healthResponse{Status: "ok", Rows: s.rows, LoadedAt: s.loadedAt}
	s.mu.Unlock()
	if resp.LoadedAt.IsZero() {
		resp.Status = "empty"
	}
	writeJSON(w, http.StatusOK, resp)
}

// SimilarResponse is the JSON response for GET /api/similar.
type SimilarResponse struct {
	Query   string             `json:"query"`
	Results []retrieval.Result `json:"results"`
}

func (s *server) handleSimilar(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	s.met.Requests.Inc()
	defer s.met.Latency.Since(start)

	q := r.URL.Query().Get("q")
	k := 0
	if raw := r.URL.Query().Get("k"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxK {
			s.met.Errors.Inc()
			writeError(w, http.StatusBadRequest, "k must be between 1 and "+strconv.Itoa(maxK))
			return
		}
		k = n
	}

	results, err := s.svc.QueryK(r.Context(), q, k)
	if err != nil {
		s.met.Errors.Inc()
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			s.logger.Error("similarity query failed", "err", err, "request_id", mid.RequestIDFrom(r.Context()))
			writeError(w, status, "internal server error")
			return
		}
		writeError(w, status, err.Error())
		return
	}
	if results == nil {
		results = []retrieval.Result{}
	}
	writeJSON(w, http.StatusOK, SimilarResponse{Query: q, Results: results})
}

func (s *server) handleThread(w http.ResponseWriter, r *http.Request) {
	if s.threads == nil {
		writeError(w, http.StatusNotFound, "thread graph not configured")
		return
	}
	n, err := strconv.ParseInt(r.PathValue("number"), 10, 64)
	if err != nil || n <= 0 {
		writeError(w, http.StatusBadRequest, "invalid issue number")
		return
	}
	t, err := s.threads.Thread(r.Context(), n)
	if errors.Is(err, repo.ErrNotFound) {
		writeError(w, http.StatusNotFound, "issue not in corpus")
		return
	}
	if err != nil {
		s.logger.Error("thread lookup failed", "issue", n, "err", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidQuery),
		errors.Is(err, domain.ErrQueryTooShort),
		errors.Is(err, domain.ErrInvalidConfig):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrEmptyCorpus):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WessleyAI/issuesim/engine/corpus"
	"github.com/WessleyAI/issuesim/engine/domain"
	"github.com/WessleyAI/issuesim/engine/embed"
	"github.com/WessleyAI/issuesim/engine/graph"
	"github.com/WessleyAI/issuesim/engine/index"
	"github.com/WessleyAI/issuesim/engine/ingest"
	"github.com/WessleyAI/issuesim/engine/retrieval"
	"github.com/WessleyAI/issuesim/pkg/metrics"
	"github.com/WessleyAI/issuesim/pkg/repo"
)

type staticEmbedder struct{ vec []float32 }

func (s staticEmbedder) EmbedQuery(context.Context, string) ([]float32, error) { return s.vec, nil }

type fakeThreads map[int64]graph.Thread

func (f fakeThreads) Thread(_ context.Context, n int64) (graph.Thread, error) {
	t, ok := f[n]
	if !ok {
		return graph.Thread{}, fmt.Errorf("graph: thread #%d: %w", n, repo.ErrNotFound)
	}
	return t, nil
}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func flat(t *testing.T, n int) *index.Flat {
	t.Helper()
	rows := make([]embed.EmbeddedRow, n)
	for i := range rows {
		rows[i] = embed.EmbeddedRow{
			Row:       corpus.Row{Number: i + 1, Title: fmt.Sprintf("issue %d", i+1), Comment: "c"},
			Embedding: []float32{float32(i + 1), 0},
		}
	}
	f, err := index.Build(rows, index.MetricDot)
	require.NoError(t, err)
	return f
}

type harness struct {
	srv     *server
	handler http.Handler
	reg     *metrics.Registry
	loads   int
}

func newHarness(t *testing.T, threads retrieval.ThreadLookup) *harness {
	t.Helper()
	h := &harness{reg: metrics.New()}
	svc := retrieval.New(staticEmbedder{vec: []float32{1, 0}}, nil, nil, retrieval.DefaultOptions(), quietLogger())
	h.srv = newServer(svc, threads, metrics.NewQuery(h.reg), quietLogger())
	h.srv.load = func(context.Context) (retrieval.Searcher, int, error) {
		h.loads++
		f := flat(t, 3+h.loads)
		return f, f.Len(), nil
	}
	h.handler = h.srv.routes(h.reg, "*")
	return h
}

func (h *harness) get(path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	h := newHarness(t, nil)

	var resp healthResponse
	rec := h.get("/api/health")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "empty", resp.Status)

	require.NoError(t, h.srv.reload(context.Background()))
	rec = h.get("/api/health")
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 4, resp.Rows)
}

func TestSimilar(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.srv.reload(context.Background()))

	rec := h.get("/api/similar?q=crash+on+start&k=2")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var resp SimilarResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "crash on start", resp.Query)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, 4, resp.Results[0].Number)
	assert.Equal(t, float32(4), resp.Results[0].Score)
	assert.Equal(t, 3, resp.Results[1].Number)
}

func TestSimilar_DefaultTopK(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.srv.reload(context.Background()))
	require.NoError(t, h.srv.reload(context.Background()))

	var resp SimilarResponse
	rec := h.get("/api/similar?q=anything")
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Len(t, resp.Results, retrieval.DefaultTopK)
}

func TestSimilar_Errors(t *testing.T) {
	h := newHarness(t, nil)

	tests := []struct {
		name string
		path string
		want int
	}{
		{"no corpus", "/api/similar?q=crash+on+start", http.StatusServiceUnavailable},
		{"missing q", "/api/similar", http.StatusBadRequest},
		{"short q", "/api/similar?q=ab", http.StatusBadRequest},
		{"bad k", "/api/similar?q=crash&k=zero", http.StatusBadRequest},
		{"k too large", "/api/similar?q=crash&k=1000", http.StatusBadRequest},
		{"wrong method", "", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var rec *httptest.ResponseRecorder
			if tt.path == "" {
				rec = httptest.NewRecorder()
				h.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/similar", nil))
			} else {
				rec = h.get(tt.path)
			}
			assert.Equal(t, tt.want, rec.Code)
		})
	}
	assert.Equal(t, int64(5), h.srv.met.Errors.Value())
}

func TestThread(t *testing.T) {
	threads := fakeThreads{
		7: {Issue: graph.IssueNode{Number: 7, Title: "seven"}, Comments: []graph.CommentNode{{ID: "7/0", Body: "hi"}}},
	}
	h := newHarness(t, threads)

	rec := h.get("/api/issues/7/thread")
	require.Equal(t, http.StatusOK, rec.Code)
	var got graph.Thread
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, "seven", got.Issue.Title)
	require.Len(t, got.Comments, 1)

	assert.Equal(t, http.StatusNotFound, h.get("/api/issues/8/thread").Code)
	assert.Equal(t, http.StatusBadRequest, h.get("/api/issues/x/thread").Code)
}

func TestThread_NotConfigured(t *testing.T) {
	h := newHarness(t, nil)
	assert.Equal(t, http.StatusNotFound, h.get("/api/issues/7/thread").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.srv.reload(context.Background()))
	h.get("/api/similar?q=crash+on+start")

	rec := h.get("/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "issuesim_queries_total 1")
	assert.Contains(t, body, "issuesim_index_rows 4")
	assert.Contains(t, body, `issuesim_http_requests_total{route="GET /api/similar",code="2xx"} 1`)
}

func TestOnRebuilt(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.srv.reload(context.Background()))
	handle := h.srv.onRebuilt("enc")

	handle(context.Background(), ingest.IndexEvent{JobID: "j1", Checkpoint: "other"})
	assert.Equal(t, 1, h.loads)

	handle(context.Background(), ingest.IndexEvent{JobID: "j2", Checkpoint: "enc", Rows: 5})
	assert.Equal(t, 2, h.loads)
	assert.Equal(t, int64(1), h.srv.met.Reloads.Value())
	assert.Equal(t, float64(5), h.srv.met.IndexRows.Value())
}

func TestOnRebuilt_LoadFailureKeepsOldIndex(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.srv.reload(context.Background()))
	h.srv.load = func(context.Context) (retrieval.Searcher, int, error) {
		return nil, 0, errors.New("store locked")
	}

	h.srv.onRebuilt("enc")(context.Background(), ingest.IndexEvent{Checkpoint: "enc"})
	assert.Zero(t, h.srv.met.Reloads.Value())
	assert.Equal(t, http.StatusOK, h.get("/api/similar?q=crash+on+start").Code)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(domain.NewValidationError("text", "", domain.ErrInvalidQuery)))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(fmt.Errorf("x: %w", domain.ErrEmptyCorpus)))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("boom")))
}

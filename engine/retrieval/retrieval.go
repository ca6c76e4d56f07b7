// Package retrieval answers similarity queries: it embeds a question with
// the corpus encoder, searches the index, and returns the closest comments.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/WessleyAI/issuesim/engine/domain"
	"github.com/WessleyAI/issuesim/engine/graph"
	"github.com/WessleyAI/issuesim/engine/index"
)

// DefaultTopK is the number of results returned when none is requested.
const DefaultTopK = 5

// QueryEmbedder embeds one query. *embed.Engine implements it.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Searcher returns the k best hits in descending score order.
// *index.Flat and *semantic.VectorStore implement it.
type Searcher interface {
	Search(ctx context.Context, query []float32, k int) ([]index.Hit, error)
}

// ThreadLookup optionally attaches the full issue thread to each result.
type ThreadLookup interface {
	Thread(ctx context.Context, number int64) (graph.Thread, error)
}

// Options configures the retrieval service.
type Options struct {
	TopK          int
	SearchTimeout time.Duration
	// WithThreads attaches graph threads when a ThreadLookup is set.
	WithThreads bool
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		TopK:          DefaultTopK,
		SearchTimeout: 5 * time.Second,
	}
}

// Result is one retrieved comment with its issue.
type Result struct {
	Score   float32       `json:"score"`
	Number  int           `json:"number"`
	Title   string        `json:"title"`
	URL     string        `json:"url"`
	Comment string        `json:"comment"`
	Thread  *graph.Thread `json:"thread,omitempty"`
}

// Service is the retrieval service. The searcher can be swapped while
// queries are in flight.
type Service struct {
	embedder QueryEmbedder
	threads  ThreadLookup
	opts     Options
	logger   *slog.Logger

	mu       sync.RWMutex
	searcher Searcher
}

// New creates a retrieval Service. threads may be nil.
func New(embedder QueryEmbedder, searcher Searcher, threads ThreadLookup, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	return &Service{
		embedder: embedder,
		searcher: searcher,
		threads:  threads,
		opts:     opts,
		logger:   logger,
	}
}

// Swap replaces the searcher, e.g. after the index is rebuilt.
func (s *Service) Swap(searcher Searcher) {
	s.mu.Lock()
	s.searcher = searcher
	s.mu.Unlock()
}

func (s *Service) current() Searcher {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.searcher
}

// Query returns the TopK most similar comments for question.
func (s *Service) Query(ctx context.Context, question string) ([]Result, error) {
	return s.QueryK(ctx, question, 0)
}

// QueryK is Query with an explicit result cap; k <= 0 uses TopK.
func (s *Service) QueryK(ctx context.Context, question string, k int) ([]Result, error) {
	if k <= 0 {
		k = s.opts.TopK
	}
	if err := domain.ValidateQuery(domain.Query{Text: question, TopK: k}); err != nil {
		return nil, err
	}
	searcher := s.current()
	if searcher == nil {
		return nil, domain.ErrEmptyCorpus
	}

	start := time.Now()
	vec, err := s.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("retrieval: embed query: %w", err)
	}

	searchCtx := ctx
	if s.opts.SearchTimeout > 0 {
		var cancel context.CancelFunc
		searchCtx, cancel = context.WithTimeout(ctx, s.opts.SearchTimeout)
		defer cancel()
	}
	hits, err := searcher.Search(searchCtx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("retrieval: search: %w", err)
	}

	results := make([]Result, len(hits))
	for i, h := range hits {
		results[i] = Result{
			Score:   h.Score,
			Number:  h.Row.Number,
			Title:   h.Row.Title,
			URL:     h.Row.URL,
			Comment: h.Row.Comment,
		}
	}
	if s.opts.WithThreads && s.threads != nil {
		s.attachThreads(ctx, results)
	}
	s.logger.Info("retrieval query done", "query_len", len(question), "results", len(results), "took", time.Since(start))
	return results, nil
}

// attachThreads fills Result.Thread; lookup failures are logged and skipped.
func (s *Service) attachThreads(ctx context.Context, results []Result) {
	seen := make(map[int]*graph.Thread)
	for i := range results {
		n := results[i].Number
		if t, ok := seen[n]; ok {
			results[i].Thread = t
			continue
		}
		t, err := s.threads.Thread(ctx, int64(n))
		if err != nil {
			s.logger.Warn("retrieval: thread lookup failed, continuing without", "issue", n, "err", err)
			seen[n] = nil
			continue
		}
		seen[n] = &t
		results[i].Thread = &t
	}
}

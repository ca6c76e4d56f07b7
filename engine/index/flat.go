package index

import (
	"container/heap"
	"context"
	"sort"
	"strconv"

	"github.com/WessleyAI/issuesim/engine/corpus"
	"github.com/WessleyAI/issuesim/engine/domain"
	"github.com/WessleyAI/issuesim/engine/embed"
)

// Hit is one retrieved row with its relevance score.
type Hit struct {
	Row      corpus.Row `json:"row"`
	Score    float32    `json:"score"`
	Distance float32    `json:"distance"`
}

// Flat is an exact index: every query scans every vector. It is built once
// from the full corpus and never mutated; rebuild it when embeddings change.
type Flat struct {
	rows   []corpus.Row
	vecs   [][]float32
	dims   int
	metric Metric
}

// Build copies rows and vectors into a new index. An empty input yields an
// index that rejects every query with domain.ErrEmptyCorpus.
func Build(rows []embed.EmbeddedRow, metric Metric) (*Flat, error) {
	if metric == "" {
		metric = MetricDot
	}
	if _, err := ParseMetric(string(metric)); err != nil {
		return nil, err
	}
	f := &Flat{
		rows:   make([]corpus.Row, len(rows)),
		vecs:   make([][]float32, len(rows)),
		metric: metric,
	}
	for i, r := range rows {
		if i == 0 {
			f.dims = len(r.Embedding)
		}
		if len(r.Embedding) == 0 || len(r.Embedding) != f.dims {
			return nil, domain.NewValidationError("embedding", strconv.Itoa(i), domain.ErrDimensionMismatch)
		}
		f.rows[i] = r.Row
		f.vecs[i] = append([]float32(nil), r.Embedding...)
	}
	return f, nil
}

// Len returns the number of indexed rows.
func (f *Flat) Len() int { return len(f.rows) }

// Dims returns the vector dimension, or 0 for an empty index.
func (f *Flat) Dims() int { return f.dims }

// Metric returns the index metric.
func (f *Flat) Metric() Metric { return f.metric }

// Search returns up to k rows ordered by descending score. Fewer than k
// rows yields every row.
func (f *Flat) Search(ctx context.Context, query []float32, k int) ([]Hit, error) {
	if len(f.rows) == 0 {
		return nil, domain.ErrEmptyCorpus
	}
	if k <= 0 {
		return nil, domain.NewValidationError("k", strconv.Itoa(k), domain.ErrInvalidConfig)
	}
	if len(query) != f.dims {
		return nil, domain.NewValidationError("query", strconv.Itoa(len(query)), domain.ErrDimensionMismatch)
	}
	near, err := f.nearest(ctx, query, k)
	if err != nil {
		return nil, err
	}
	hits := make([]Hit, len(near))
	for i, n := range near {
		hits[i] = Hit{Row: f.rows[n.pos], Score: f.metric.Score(n.dist), Distance: n.dist}
	}
	return Rank(hits), nil
}

// nearest returns the k closest positions in ascending distance, ties
// broken by corpus position.
func (f *Flat) nearest(ctx context.Context, query []float32, k int) ([]neighbor, error) {
	h := make(farthestFirst, 0, min(k, len(f.vecs)))
	for pos, v := range f.vecs {
		if pos%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		n := neighbor{pos: pos, dist: f.metric.distance(query, v)}
		if len(h) < k {
			heap.Push(&h, n)
			continue
		}
		if n.closerThan(h[0]) {
			h[0] = n
			heap.Fix(&h, 0)
		}
	}
	out := []neighbor(h)
	sort.Slice(out, func(i, j int) bool { return out[i].closerThan(out[j]) })
	return out, nil
}

// Rank orders hits by descending score. The sort is stable, so equal scores
// keep their incoming order.
func Rank(hits []Hit) []Hit {
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	return hits
}

type neighbor struct {
	pos  int
	dist float32
}

func (n neighbor) closerThan(o neighbor) bool {
	if n.dist != o.dist {
		return n.dist < o.dist
	}
	return n.pos < o.pos
}

// farthestFirst is a max-heap on distance holding the current top k.
type farthestFirst []neighbor

func (h farthestFirst) Len() int           { return len(h) }
func (h farthestFirst) Less(i, j int) bool { return h[j].closerThan(h[i]) }
func (h farthestFirst) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *farthestFirst) Push(x any)        { *h = append(*h, x.(neighbor)) }
func (h *farthestFirst) Pop() any {
	old := *h
	n := old[len(old)-1]
	*h = old[:len(old)-1]
	return n
}

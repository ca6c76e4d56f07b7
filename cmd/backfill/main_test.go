package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WessleyAI/issuesim/engine/corpus"
	"github.com/WessleyAI/issuesim/engine/embed"
)

type recVectors struct {
	dims int
	n    int
}

func (r *recVectors) RecreateCollection(_ context.Context, dims int) error { r.dims = dims; return nil }
func (r *recVectors) Upsert(_ context.Context, rows []embed.EmbeddedRow) error {
	r.n = len(rows)
	return nil
}

type recThreads struct {
	reset bool
	rows  []corpus.Row
	err   error
}

func (r *recThreads) Reset(context.Context) error { r.reset = true; return nil }
func (r *recThreads) SaveCorpus(_ context.Context, rows []corpus.Row) (int, error) {
	r.rows = rows
	return 1, r.err
}

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func rows() []embed.EmbeddedRow {
	return []embed.EmbeddedRow{
		{Row: corpus.Row{Number: 3, Comment: "a"}, Embedding: []float32{1, 2, 3}},
		{Row: corpus.Row{Number: 3, Comment: "b"}, Embedding: []float32{4, 5, 6}},
	}
}

func TestBackfillBoth(t *testing.T) {
	v, th := &recVectors{}, &recThreads{}
	require.NoError(t, backfill(context.Background(), rows(), targets{vectors: v, threads: th}, quiet))

	assert.Equal(t, 3, v.dims)
	assert.Equal(t, 2, v.n)
	assert.True(t, th.reset)
	require.Len(t, th.rows, 2)
	assert.Equal(t, "b", th.rows[1].Comment)
}

func TestBackfillEmptyStore(t *testing.T) {
	err := backfill(context.Background(), nil, targets{vectors: &recVectors{}}, quiet)
	assert.ErrorContains(t, err, "run ingest first")
}

func TestBackfillGraphError(t *testing.T) {
	th := &recThreads{err: errors.New("neo4j down")}
	err := backfill(context.Background(), rows(), targets{threads: th}, quiet)
	assert.ErrorContains(t, err, "save threads: neo4j down")
}

// Package ingest runs a full corpus rebuild: fetch issues, build comment
// rows, embed them, and persist the result to every configured backend.
package ingest

import (
	"context"
	"time"

	"github.com/WessleyAI/issuesim/engine/corpus"
	"github.com/WessleyAI/issuesim/engine/embed"
	"github.com/WessleyAI/issuesim/engine/store"
	"github.com/WessleyAI/issuesim/engine/tracker"
)

const (
	// RequestSubject carries Job messages that trigger a rebuild.
	RequestSubject = "issuesim.index.requested"
	// RebuiltSubject carries an IndexEvent after every successful rebuild.
	RebuiltSubject = "issuesim.index.rebuilt"
)

// Job identifies one ingestion run.
type Job struct {
	ID          string    `json:"id"`
	RequestedAt time.Time `json:"requested_at"`
}

// IndexEvent announces a rebuilt corpus.
type IndexEvent struct {
	JobID      string        `json:"job_id"`
	Repository string        `json:"repository"`
	Checkpoint string        `json:"checkpoint"`
	Metric     string        `json:"metric"`
	Dims       int           `json:"dims"`
	Issues     int           `json:"issues"`
	Rows       int           `json:"rows"`
	Stats      corpus.Stats  `json:"stats"`
	BuiltAt    time.Time     `json:"built_at"`
	Took       time.Duration `json:"took"`
}

// Fetcher lists all issues of the configured repository.
type Fetcher interface {
	FetchIssues(ctx context.Context) ([]tracker.Issue, error)
}

// fetchStatser is implemented by fetchers that count pages and cooldowns.
type fetchStatser interface {
	Stats() tracker.FetchStats
}

// RowEmbedder attaches vectors to rows. *embed.Engine implements it.
type RowEmbedder interface {
	Embed(ctx context.Context, rows []corpus.Row) ([]embed.EmbeddedRow, error)
}

// CorpusStore is the authoritative artifact store. *store.Store implements it.
type CorpusStore interface {
	SaveIssues(ctx context.Context, issues []tracker.Issue) error
	ReplaceRows(ctx context.Context, rows []embed.EmbeddedRow, meta store.Meta) error
}

// VectorSink mirrors rows into a vector database.
// *semantic.VectorStore implements it.
type VectorSink interface {
	RecreateCollection(ctx context.Context, dims int) error
	Upsert(ctx context.Context, rows []embed.EmbeddedRow) error
}

// ThreadSink mirrors rows into the thread graph. *graph.GraphStore
// implements it.
type ThreadSink interface {
	Reset(ctx context.Context) error
	SaveCorpus(ctx context.Context, rows []corpus.Row) (int, error)
}

// fetched is the output of the fetch stage.
type fetched struct {
	Job     Job
	Started time.Time
	Issues  []tracker.Issue
}

// built is the output of the build stage.
type built struct {
	fetched
	Rows  []corpus.Row
	Stats corpus.Stats
}

// embedded is the output of the embed stage.
type embedded struct {
	built
	Rows []embed.EmbeddedRow
}

package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/WessleyAI/issuesim/engine/corpus"
	"github.com/WessleyAI/issuesim/engine/domain"
	"github.com/WessleyAI/issuesim/engine/store"
	"github.com/WessleyAI/issuesim/pkg/fn"
	"github.com/WessleyAI/issuesim/pkg/metrics"
	"github.com/WessleyAI/issuesim/pkg/natsutil"
)

// Deps holds the collaborators of the ingestion pipeline. Vectors, Threads,
// Events and Metrics are optional.
type Deps struct {
	Fetcher  Fetcher
	Resolver corpus.CommentResolver
	Embedder RowEmbedder
	Store    CorpusStore
	Vectors  VectorSink
	Threads  ThreadSink
	Events   natsutil.Publisher

	Corpus     corpus.Options
	Repository string
	Checkpoint string
	Metric     string

	Metrics *metrics.Ingest
	Logger  *slog.Logger
}

func (d Deps) validate() error {
	switch {
	case d.Fetcher == nil:
		return fmt.Errorf("ingest: %w: nil fetcher", domain.ErrInvalidConfig)
	case d.Resolver == nil:
		return fmt.Errorf("ingest: %w: nil comment resolver", domain.ErrInvalidConfig)
	case d.Embedder == nil:
		return fmt.Errorf("ingest: %w: nil embedder", domain.ErrInvalidConfig)
	case d.Store == nil:
		return fmt.Errorf("ingest: %w: nil store", domain.ErrInvalidConfig)
	}
	return nil
}

// NewJob returns a Job with a fresh id.
func NewJob() Job {
	return Job{ID: uuid.NewString(), RequestedAt: time.Now().UTC()}
}

// --- Pipeline Stages ---

// NewFetch creates the stage that lists every issue.
func NewFetch(deps Deps) fn.Stage[Job, fetched] {
	return func(ctx context.Context, job Job) fn.Result[fetched] {
		start := time.Now()
		issues, err := deps.Fetcher.FetchIssues(ctx)
		if s, ok := deps.Fetcher.(fetchStatser); ok && deps.Metrics != nil {
			st := s.Stats()
			deps.Metrics.Pages.Add(int64(st.Pages))
			deps.Metrics.Cooldowns.Add(int64(st.Cooldowns))
		}
		if err != nil {
			return fn.Err[fetched](fmt.Errorf("fetch: %w", err))
		}
		if deps.Metrics != nil {
			deps.Metrics.Issues.Add(int64(len(issues)))
		}
		return fn.Ok(fetched{Job: job, Started: start, Issues: issues})
	}
}

// NewBuild creates the stage that turns issues into comment rows.
func NewBuild(deps Deps) fn.Stage[fetched, built] {
	return func(ctx context.Context, f fetched) fn.Result[built] {
		rows, stats, err := corpus.BuildWithStats(ctx, f.Issues, deps.Resolver, deps.Corpus)
		if err != nil {
			return fn.Err[built](fmt.Errorf("build: %w", err))
		}
		if m := deps.Metrics; m != nil {
			m.PullRequests.Add(int64(stats.PullRequests))
			m.Uncommented.Add(int64(stats.Uncommented))
			m.ShortComments.Add(int64(stats.ShortComments))
			m.Rows.Add(int64(stats.Rows))
		}
		return fn.Ok(built{fetched: f, Rows: rows, Stats: stats})
	}
}

// NewEmbed creates the stage that embeds every row.
func NewEmbed(deps Deps) fn.Stage[built, embedded] {
	return func(ctx context.Context, b built) fn.Result[embedded] {
		rows, err := deps.Embedder.Embed(ctx, b.Rows)
		if err != nil {
			return fn.Err[embedded](fmt.Errorf("embed: %w", err))
		}
		if deps.Metrics != nil {
			deps.Metrics.Embedded.Add(int64(len(rows)))
		}
		return fn.Ok(embedded{built: b, Rows: rows})
	}
}

// NewPersist creates the stage that replaces the corpus in every backend
// and announces it.
func NewPersist(deps Deps) fn.Stage[embedded, IndexEvent] {
	log := logger(deps)
	return func(ctx context.Context, e embedded) fn.Result[IndexEvent] {
		dims := 0
		if len(e.Rows) > 0 {
			dims = len(e.Rows[0].Embedding)
		}
		builtAt := time.Now().UTC()

		if err := deps.Store.SaveIssues(ctx, e.Issues); err != nil {
			return fn.Err[IndexEvent](fmt.Errorf("persist: %w", err))
		}
		meta := store.Meta{
			Repository: deps.Repository,
			Checkpoint: deps.Checkpoint,
			Dims:       dims,
			Metric:     deps.Metric,
			Issues:     e.Stats.Issues,
			BuiltAt:    builtAt,
		}
		if err := deps.Store.ReplaceRows(ctx, e.Rows, meta); err != nil {
			return fn.Err[IndexEvent](fmt.Errorf("persist: %w", err))
		}

		if deps.Vectors != nil {
			if dims == 0 {
				log.Warn("ingest: empty corpus, leaving vector collection untouched")
			} else {
				if err := deps.Vectors.RecreateCollection(ctx, dims); err != nil {
					return fn.Err[IndexEvent](fmt.Errorf("persist vectors: %w", err))
				}
				if err := deps.Vectors.Upsert(ctx, e.Rows); err != nil {
					return fn.Err[IndexEvent](fmt.Errorf("persist vectors: %w", err))
				}
			}
		}

		if deps.Threads != nil {
			if err := deps.Threads.Reset(ctx); err != nil {
				return fn.Err[IndexEvent](fmt.Errorf("persist threads: %w", err))
			}
			n, err := deps.Threads.SaveCorpus(ctx, e.built.Rows)
			if err != nil {
				return fn.Err[IndexEvent](fmt.Errorf("persist threads: %w", err))
			}
			log.Info("ingest: thread graph written", "threads", n)
		}

		if deps.Metrics != nil {
			deps.Metrics.CorpusRows.Set(float64(len(e.Rows)))
		}

		ev := IndexEvent{
			JobID:      e.Job.ID,
			Repository: deps.Repository,
			Checkpoint: deps.Checkpoint,
			Metric:     deps.Metric,
			Dims:       dims,
			Issues:     e.Stats.Issues,
			Rows:       len(e.Rows),
			Stats:      e.Stats,
			BuiltAt:    builtAt,
			Took:       time.Since(e.Started),
		}
		if deps.Events != nil {
			if err := natsutil.Publish(ctx, deps.Events, RebuiltSubject, ev); err != nil {
				log.Warn("ingest: rebuild event not published", "err", err)
			}
		}
		return fn.Ok(ev)
	}
}

// Logged wraps a stage with a span and logs its duration and outcome.
func Logged[In, Out any](name string, deps Deps, stage fn.Stage[In, Out]) fn.Stage[In, Out] {
	log := logger(deps)
	traced := fn.TracedStage("ingest."+name, stage)
	return func(ctx context.Context, in In) fn.Result[Out] {
		log.Info("stage.enter", "stage", name)
		start := time.Now()
		r := traced(ctx, in)
		if deps.Metrics != nil {
			deps.Metrics.StageSeconds(name).Since(start)
		}
		if _, err := r.Unwrap(); err != nil {
			log.Error("stage.fail", "stage", name, "duration", time.Since(start), "err", err)
			return r
		}
		log.Info("stage.exit", "stage", name, "duration", time.Since(start))
		return r
	}
}

// NewPipeline constructs the full ingestion pipeline with all stages wired:
// Fetch -> Build -> Embed -> Persist.
func NewPipeline(deps Deps) fn.Stage[Job, IndexEvent] {
	fetch := Logged("fetch", deps, NewFetch(deps))
	build := Logged("build", deps, NewBuild(deps))
	emb := Logged("embed", deps, NewEmbed(deps))
	persist := Logged("persist", deps, NewPersist(deps))

	return fn.Then(fn.Then(fn.Then(fetch, build), emb), persist)
}

// Run validates deps and executes one full rebuild.
func Run(ctx context.Context, deps Deps, job Job) (IndexEvent, error) {
	if err := deps.validate(); err != nil {
		return IndexEvent{}, err
	}
	log := logger(deps).With("job", job.ID)
	deps.Logger = log

	ev, err := NewPipeline(deps)(ctx, job).Unwrap()
	if err != nil {
		if deps.Metrics != nil {
			deps.Metrics.Failures.Inc()
		}
		return IndexEvent{}, fmt.Errorf("ingest: %w", err)
	}
	log.Info("ingest: corpus rebuilt", "issues", ev.Issues, "rows", ev.Rows, "dims", ev.Dims, "took", ev.Took)
	return ev, nil
}

func logger(deps Deps) *slog.Logger {
	if deps.Logger != nil {
		return deps.Logger
	}
	return slog.Default()
}

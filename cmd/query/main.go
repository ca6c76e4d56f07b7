// Command query prints the issue comments most similar to a question.
//
//	query -q "app crashes when the config file is missing" -k 5
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/WessleyAI/issuesim/engine/graph"
	"github.com/WessleyAI/issuesim/engine/retrieval"
	"github.com/WessleyAI/issuesim/internal/wire"
	"github.com/WessleyAI/issuesim/pkg/config"
)

var errUsage = errors.New("usage: query -q <question> [-k n] [-config file]")

type flags struct {
	configPath string
	question   string
	k          int
	threads    bool
	logLevel   string
}

func parseFlags(args []string) (flags, error) {
	var f flags
	fs := flag.NewFlagSet("query", flag.ContinueOnError)
	fs.StringVar(&f.configPath, "config", "", "YAML config file")
	fs.StringVar(&f.question, "q", "", "question to search for")
	fs.IntVar(&f.k, "k", 0, "number of results (defaults to index.top_k)")
	fs.BoolVar(&f.threads, "threads", false, "attach full threads from Neo4j")
	fs.StringVar(&f.logLevel, "log-level", "warn", "debug, info, warn or error")
	if err := fs.Parse(args); err != nil {
		return f, err
	}
	if f.question == "" && fs.NArg() > 0 {
		f.question = fs.Arg(0)
	}
	if f.question == "" {
		return f, errUsage
	}
	return f, nil
}

func main() {
	f, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logger := wire.Logger(false, f.logLevel)

	cfg, err := config.Load(f.configPath)
	if err != nil {
		logger.Error("load config", "err", err)
		os.Exit(1)
	}
	if f.k > 0 {
		cfg.Index.TopK = f.k
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg, f, os.Stdout, logger); err != nil {
		logger.Error("query failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, f flags, out io.Writer, logger *slog.Logger) error {
	engine, err := wire.Engine(cfg, logger)
	if err != nil {
		return err
	}

	vs, err := wire.Qdrant(cfg)
	if err != nil {
		return err
	}
	if vs != nil {
		defer vs.Close()
	}
	searcher, rows, err := wire.Searcher(ctx, cfg, vs)
	if err != nil {
		return err
	}
	logger.Info("index loaded", "backend", cfg.Index.Backend, "rows", rows)

	opts := retrieval.DefaultOptions()
	opts.TopK = cfg.Index.TopK
	var threads retrieval.ThreadLookup
	if f.threads {
		driver, err := wire.Neo4j(ctx, cfg)
		if err != nil {
			return err
		}
		if driver != nil {
			defer driver.Close(context.Background())
			threads = graph.New(driver)
			opts.WithThreads = true
		}
	}

	svc := retrieval.New(engine, searcher, threads, opts, logger)
	results, err := svc.Query(ctx, f.question)
	if err != nil {
		return err
	}
	_, err = io.WriteString(out, retrieval.Format(results))
	return err
}

package embed

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/WessleyAI/issuesim/engine/corpus"
	"github.com/WessleyAI/issuesim/engine/domain"
	"github.com/WessleyAI/issuesim/pkg/fn"
)

// DefaultBatchSize is the number of texts per encoder call.
const DefaultBatchSize = 32

// EmbeddedRow is a corpus row with its vector attached.
type EmbeddedRow struct {
	corpus.Row
	Embedding []float32 `json:"embedding"`
}

// Options configures an Engine.
type Options struct {
	BatchSize int
	// Workers bounds concurrent encoder calls; 1 keeps calls sequential.
	Workers int
	Device  string
	Logger  *slog.Logger
}

// DefaultOptions returns sequential batches of DefaultBatchSize on an
// automatically chosen device.
func DefaultOptions() Options {
	return Options{BatchSize: DefaultBatchSize, Workers: 1, Device: string(DeviceAuto)}
}

// Engine embeds corpus rows and queries with one encoder, so both go
// through the same pooling.
type Engine struct {
	enc    Encoder
	opts   Options
	device Device
	logger *slog.Logger
}

// New creates an Engine. The device is resolved once here and passed to
// the encoder if it is DeviceAware.
func New(enc Encoder, opts Options) (*Engine, error) {
	if enc == nil {
		return nil, fmt.Errorf("embed: %w: nil encoder", domain.ErrInvalidConfig)
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	dev, err := ResolveDevice(opts.Device)
	if err != nil {
		return nil, err
	}
	if da, ok := enc.(DeviceAware); ok {
		da.UseDevice(dev)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{enc: enc, opts: opts, device: dev, logger: logger}, nil
}

// Device returns the resolved device.
func (e *Engine) Device() Device { return e.device }

// Embed attaches a vector to every row. Any encoder failure fails the whole
// call so rows and vectors never drift apart.
func (e *Engine) Embed(ctx context.Context, rows []corpus.Row) ([]EmbeddedRow, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	start := time.Now()

	texts := fn.Map(rows, func(r corpus.Row) string { return r.Text })
	batches := fn.Chunk(texts, e.opts.BatchSize)

	results := fn.ParMapResult(batches, e.opts.Workers, func(batch []string) fn.Result[[][]float32] {
		return fn.FromPair(e.encode(ctx, batch))
	})
	vecBatches, err := fn.Collect(results).Unwrap()
	if err != nil {
		return nil, err
	}

	out := make([]EmbeddedRow, 0, len(rows))
	dims := -1
	for _, vecs := range vecBatches {
		for _, v := range vecs {
			if dims == -1 {
				dims = len(v)
			}
			if len(v) != dims {
				return nil, domain.NewValidationError("embedding", strconv.Itoa(len(v)), domain.ErrDimensionMismatch)
			}
			i := len(out)
			out = append(out, EmbeddedRow{Row: rows[i], Embedding: v})
		}
	}

	e.logger.Info("embed: rows embedded",
		"rows", len(out),
		"batches", len(batches),
		"dims", dims,
		"device", e.device,
		"duration", time.Since(start),
	)
	return out, nil
}

// EmbedQuery embeds a single text as a batch of one.
func (e *Engine) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.encode(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *Engine) encode(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := e.enc.Encode(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed: encode batch of %d: %w", len(texts), err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("embed: encoder returned %d vectors for %d texts", len(vecs), len(texts))
	}
	for i, v := range vecs {
		if len(v) == 0 {
			return nil, domain.NewValidationError("embedding", strconv.Itoa(i), domain.ErrDimensionMismatch)
		}
		if len(v) != len(vecs[0]) {
			return nil, domain.NewValidationError("embedding", strconv.Itoa(len(v)), domain.ErrDimensionMismatch)
		}
	}
	return vecs, nil
}

package wire

import (
	"context"
	"path/filepath"
	"testing"

	pb "github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"

	"github.com/WessleyAI/issuesim/engine/corpus"
	"github.com/WessleyAI/issuesim/engine/domain"
	"github.com/WessleyAI/issuesim/engine/embed"
	"github.com/WessleyAI/issuesim/engine/index"
	"github.com/WessleyAI/issuesim/engine/semantic"
	"github.com/WessleyAI/issuesim/engine/store"
	"github.com/WessleyAI/issuesim/pkg/config"
	"github.com/WessleyAI/issuesim/pkg/ollama"
)

func seeded(t *testing.T, checkpoint string) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Store.Path = filepath.Join(t.TempDir(), "corpus.db")
	cfg.Encoder.Checkpoint = checkpoint

	st, err := store.Open(cfg.Store.Path)
	require.NoError(t, err)
	defer st.Close()
	rows := []embed.EmbeddedRow{
		{Row: corpus.Row{Number: 1, Comment: "a"}, Embedding: []float32{1, 0}},
		{Row: corpus.Row{Number: 2, Comment: "b"}, Embedding: []float32{0, 1}},
	}
	require.NoError(t, st.ReplaceRows(context.Background(), rows, store.Meta{Checkpoint: "enc-a"}))
	return cfg
}

func TestSearcher_Flat(t *testing.T) {
	cfg := seeded(t, "enc-a")

	s, n, err := Searcher(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.IsType(t, &index.Flat{}, s)

	hits, err := s.Search(context.Background(), []float32{0, 1}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, 2, hits[0].Row.Number)

	// the store is closed again, so a writer can reopen it
	st, err := store.Open(cfg.Store.Path)
	require.NoError(t, err)
	require.NoError(t, st.Close())
}

func TestSearcher_CheckpointMismatch(t *testing.T) {
	cfg := seeded(t, "enc-b")
	_, _, err := Searcher(context.Background(), cfg, nil)
	assert.ErrorIs(t, err, domain.ErrEncoderMismatch)
}

func TestSearcher_EmptyStore(t *testing.T) {
	cfg := config.Default()
	cfg.Store.Path = filepath.Join(t.TempDir(), "empty.db")
	_, _, err := Searcher(context.Background(), cfg, nil)
	assert.ErrorIs(t, err, domain.ErrEmptyCorpus)
}

func TestSearcher_QdrantNeedsConnection(t *testing.T) {
	cfg := seeded(t, "enc-a")
	cfg.Index.Backend = config.IndexQdrant
	_, _, err := Searcher(context.Background(), cfg, nil)
	assert.Error(t, err)
}

// stalePoints answers every search with a point left from an older corpus.
type stalePoints struct{ searched int }

func (p *stalePoints) Upsert(context.Context, *pb.UpsertPoints, ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	return &pb.PointsOperationResponse{}, nil
}

func (p *stalePoints) Search(context.Context, *pb.SearchPoints, ...grpc.CallOption) (*pb.SearchResponse, error) {
	p.searched++
	return &pb.SearchResponse{Result: []*pb.ScoredPoint{{
		Score:   1,
		Payload: map[string]*pb.Value{"title": {Kind: &pb.Value_StringValue{StringValue: "stale"}}},
	}}}, nil
}

type noCollections struct{}

func (noCollections) List(context.Context, *pb.ListCollectionsRequest, ...grpc.CallOption) (*pb.ListCollectionsResponse, error) {
	return &pb.ListCollectionsResponse{}, nil
}

func (noCollections) Create(context.Context, *pb.CreateCollection, ...grpc.CallOption) (*pb.CollectionOperationResponse, error) {
	return &pb.CollectionOperationResponse{}, nil
}

func (noCollections) Delete(context.Context, *pb.DeleteCollection, ...grpc.CallOption) (*pb.CollectionOperationResponse, error) {
	return &pb.CollectionOperationResponse{}, nil
}

func TestSearcher_Qdrant(t *testing.T) {
	cfg := seeded(t, "enc-a")
	cfg.Index.Backend = config.IndexQdrant
	vs := semantic.NewWithClients(&stalePoints{}, noCollections{}, "issues")

	s, n, err := Searcher(context.Background(), cfg, vs)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Same(t, vs, s)
}

func TestSearcher_QdrantEmptyRebuildIgnoresOldPoints(t *testing.T) {
	cfg := config.Default()
	cfg.Store.Path = filepath.Join(t.TempDir(), "corpus.db")
	cfg.Index.Backend = config.IndexQdrant

	st, err := store.Open(cfg.Store.Path)
	require.NoError(t, err)
	require.NoError(t, st.ReplaceRows(context.Background(), nil, store.Meta{Checkpoint: cfg.Encoder.Checkpoint}))
	require.NoError(t, st.Close())

	points := &stalePoints{}
	s, n, err := Searcher(context.Background(), cfg, semantic.NewWithClients(points, noCollections{}, "issues"))
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = s.Search(context.Background(), []float32{1, 0}, 1)
	assert.ErrorIs(t, err, domain.ErrEmptyCorpus)
	assert.Zero(t, points.searched)
}

func TestSearcher_MetricMismatch(t *testing.T) {
	cfg := seeded(t, "enc-a")
	cfg.Index.Metric = "l2"
	_, _, err := Searcher(context.Background(), cfg, nil)
	assert.ErrorIs(t, err, domain.ErrMetricMismatch)

	cfg.Index.Metric = "ip"
	_, _, err = Searcher(context.Background(), cfg, nil)
	assert.NoError(t, err)
}

func TestEncoder(t *testing.T) {
	cfg := config.Default()
	assert.IsType(t, &ollama.EmbedClient{}, Encoder(cfg))

	cfg.Encoder.Backend = config.EncoderTEI
	_, isOllama := Encoder(cfg).(*ollama.EmbedClient)
	assert.False(t, isOllama)
}

func TestOptionalBackendsDisabled(t *testing.T) {
	cfg := config.Default()

	vs, err := Qdrant(cfg)
	require.NoError(t, err)
	assert.Nil(t, vs)

	d, err := Neo4j(context.Background(), cfg)
	require.NoError(t, err)
	assert.Nil(t, d)

	nc, err := NATS(cfg, "test", nil)
	require.NoError(t, err)
	assert.Nil(t, nc)
}

func TestEngine(t *testing.T) {
	cfg := config.Default()
	cfg.Encoder.Device = "cpu"
	eng, err := Engine(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, embed.DeviceCPU, eng.Device())
}

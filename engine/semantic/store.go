// Package semantic keeps the embedded corpus in a Qdrant collection and
// serves nearest-neighbour queries from it.
package semantic

import (
	"context"
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/WessleyAI/issuesim/engine/domain"
	"github.com/WessleyAI/issuesim/engine/embed"
	"github.com/WessleyAI/issuesim/engine/index"
	"github.com/WessleyAI/issuesim/pkg/fn"
)

// upsertBatch bounds the number of points per Upsert request.
const upsertBatch = 256

// PointsAPI is the subset of pb.PointsClient the store uses.
type PointsAPI interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error)
}

// CollectionsAPI is the subset of pb.CollectionsClient the store uses.
type CollectionsAPI interface {
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
	Delete(ctx context.Context, in *pb.DeleteCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
}

// VectorStore is the sole owner of all Qdrant operations. Collections use
// dot-product distance, so Qdrant scores equal the flat index's scores for
// index.MetricDot.
type VectorStore struct {
	conn        *grpc.ClientConn
	points      PointsAPI
	collections CollectionsAPI
	collection  string
}

// New creates a VectorStore connected to Qdrant at the given gRPC address.
func New(addr string, collection string) (*VectorStore, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("semantic: dial qdrant %s: %w", addr, err)
	}
	return &VectorStore{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
	}, nil
}

// NewWithClients builds a store over existing clients. Close is a no-op.
func NewWithClients(points PointsAPI, collections CollectionsAPI, collection string) *VectorStore {
	return &VectorStore{points: points, collections: collections, collection: collection}
}

// Collection returns the collection name.
func (v *VectorStore) Collection() string { return v.collection }

// Close closes the underlying gRPC connection.
func (v *VectorStore) Close() error {
	if v.conn == nil {
		return nil
	}
	return v.conn.Close()
}

func (v *VectorStore) exists(ctx context.Context) (bool, error) {
	list, err := v.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return false, fmt.Errorf("semantic: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == v.collection {
			return true, nil
		}
	}
	return false, nil
}

// EnsureCollection creates the collection if it doesn't exist.
func (v *VectorStore) EnsureCollection(ctx context.Context, dims int) error {
	ok, err := v.exists(ctx)
	if err != nil || ok {
		return err
	}
	return v.create(ctx, dims)
}

// RecreateCollection drops and recreates the collection. Ingestion always
// replaces the whole corpus.
func (v *VectorStore) RecreateCollection(ctx context.Context, dims int) error {
	ok, err := v.exists(ctx)
	if err != nil {
		return err
	}
	if ok {
		if err := v.DeleteCollection(ctx); err != nil {
			return err
		}
	}
	return v.create(ctx, dims)
}

func (v *VectorStore) create(ctx context.Context, dims int) error {
	if dims <= 0 {
		return fmt.Errorf("semantic: create collection %s: %w", v.collection, domain.ErrDimensionMismatch)
	}
	_, err := v.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: v.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dims),
					Distance: pb.Distance_Dot,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("semantic: create collection %s: %w", v.collection, err)
	}
	return nil
}

// DeleteCollection deletes the collection.
func (v *VectorStore) DeleteCollection(ctx context.Context) error {
	_, err := v.collections.Delete(ctx, &pb.DeleteCollection{
		CollectionName: v.collection,
	})
	if err != nil {
		return fmt.Errorf("semantic: delete collection %s: %w", v.collection, err)
	}
	return nil
}

// Upsert stores rows in corpus order. Point ids derive from the row
// position, so re-running an identical ingest overwrites in place.
func (v *VectorStore) Upsert(ctx context.Context, rows []embed.EmbeddedRow) error {
	if len(rows) == 0 {
		return nil
	}
	wait := true
	for bi, batch := range fn.Chunk(rows, upsertBatch) {
		points := make([]*pb.PointStruct, len(batch))
		for i, r := range batch {
			seq := bi*upsertBatch + i
			points[i] = &pb.PointStruct{
				Id: &pb.PointId{
					PointIdOptions: &pb.PointId_Uuid{Uuid: PointID(r.Number, seq)},
				},
				Vectors: &pb.Vectors{
					VectorsOptions: &pb.Vectors_Vector{
						Vector: &pb.Vector{Data: r.Embedding},
					},
				},
				Payload: rowPayload(r.Row, seq),
			}
		}
		_, err := v.points.Upsert(ctx, &pb.UpsertPoints{
			CollectionName: v.collection,
			Wait:           &wait,
			Points:         points,
		})
		if err != nil {
			return fmt.Errorf("semantic: upsert %d points: %w", len(points), err)
		}
	}
	return nil
}

// Search performs k-NN similarity search and returns hits ranked by
// descending score. An empty collection is domain.ErrEmptyCorpus.
func (v *VectorStore) Search(ctx context.Context, embedding []float32, topK int) ([]index.Hit, error) {
	if topK <= 0 {
		return nil, domain.NewValidationError("k", fmt.Sprint(topK), domain.ErrInvalidConfig)
	}
	resp, err := v.points.Search(ctx, &pb.SearchPoints{
		CollectionName: v.collection,
		Vector:         embedding,
		Limit:          uint64(topK),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("semantic: search: %w", err)
	}
	if len(resp.GetResult()) == 0 {
		return nil, domain.ErrEmptyCorpus
	}

	hits := make([]index.Hit, len(resp.GetResult()))
	for i, r := range resp.GetResult() {
		hits[i] = index.Hit{
			Row:      payloadRow(r.GetPayload()),
			Score:    r.GetScore(),
			Distance: -r.GetScore(),
		}
	}
	return index.Rank(hits), nil
}

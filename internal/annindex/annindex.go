// Package annindex wraps Qdrant as the ANN backend for the three vector
// indices the store needs. It mirrors the teacher's
// internal/qdrant client shape: a narrow interface plus a single gRPC
// implementation, so the store package never imports the Qdrant SDK
// directly.
package annindex

import (
	"context"
	"fmt"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/hindsightdb/hindsight/internal/logging"
)

// Point is a vector with an opaque payload, keyed by the row id it mirrors
// in Postgres.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

// Hit is a search result: a point id with its similarity score. Payload is
// not carried — callers resolve rows from Postgres by ID, keeping Qdrant a
// pure ANN index rather than a second source of truth.
type Hit struct {
	ID    string
	Score float32
}

// Index is the narrow ANN contract the store depends on.
type Index interface {
	EnsureCollection(ctx context.Context, collection string, dim int) error
	Upsert(ctx context.Context, collection string, points []Point) error
	Delete(ctx context.Context, collection string, ids []string) error
	Search(ctx context.Context, collection string, vector []float32, limit int) ([]Hit, error)
	Close() error
}

// Config configures the Qdrant gRPC connection.
type Config struct {
	Host           string
	Port           int
	UseTLS         bool
	APIKey         string
	DialTimeout    time.Duration
	RequestTimeout time.Duration
}

// ApplyDefaults fills zero-valued fields with sane local-dev defaults.
func (c *Config) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 30 * time.Second
	}
}

// Client implements Index using the official Qdrant Go client.
type Client struct {
	qc     *qdrant.Client
	cfg    Config
	logger *logging.Logger
}

// New connects to Qdrant and returns a Client.
func New(cfg Config, logger *logging.Logger) (*Client, error) {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = logging.NewNop()
	}

	opts := []grpc.DialOption{}
	if !cfg.UseTLS {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	qc, err := qdrant.NewClient(&qdrant.Config{
		Host:        cfg.Host,
		Port:        cfg.Port,
		UseTLS:      cfg.UseTLS,
		APIKey:      cfg.APIKey,
		GrpcOptions: opts,
	})
	if err != nil {
		return nil, fmt.Errorf("annindex: connect: %w", err)
	}

	return &Client{qc: qc, cfg: cfg, logger: logger}, nil
}

// EnsureCollection creates the collection if absent. Safe to call
// repeatedly (e.g. once per bank-kind on first write).
func (c *Client) EnsureCollection(ctx context.Context, collection string, dim int) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	exists, err := c.qc.CollectionExists(ctx, collection)
	if err != nil {
		return fmt.Errorf("annindex: collection exists check: %w", err)
	}
	if exists {
		return nil
	}

	return c.qc.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dim),
			Distance: qdrant.Distance_Cosine,
		}),
	})
}

func toQdrantPayload(m map[string]any) map[string]*qdrant.Value {
	out := make(map[string]*qdrant.Value, len(m))
	for k, v := range m {
		switch t := v.(type) {
		case string:
			out[k] = qdrant.NewValueString(t)
		case bool:
			out[k] = qdrant.NewValueBool(t)
		case int:
			out[k] = qdrant.NewValueInt(int64(t))
		case int64:
			out[k] = qdrant.NewValueInt(t)
		case float64:
			out[k] = qdrant.NewValueDouble(t)
		}
	}
	return out
}

// Upsert writes or overwrites points in collection.
func (c *Client) Upsert(ctx context.Context, collection string, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	pts := make([]*qdrant.PointStruct, 0, len(points))
	for _, p := range points {
		pts = append(pts, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(p.ID),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: toQdrantPayload(p.Payload),
		})
	}

	_, err := c.qc.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points:         pts,
	})
	if err != nil {
		return fmt.Errorf("annindex: upsert: %w", err)
	}
	return nil
}

// Delete removes points by id.
func (c *Client) Delete(ctx context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	pointIDs := make([]*qdrant.PointId, 0, len(ids))
	for _, id := range ids {
		pointIDs = append(pointIDs, qdrant.NewIDUUID(id))
	}

	_, err := c.qc.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Points:         qdrant.NewPointsSelector(pointIDs...),
	})
	if err != nil {
		return fmt.Errorf("annindex: delete: %w", err)
	}
	return nil
}

// Search returns the top-limit nearest neighbors of vector.
func (c *Client) Search(ctx context.Context, collection string, vector []float32, limit int) ([]Hit, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	res, err := c.qc.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(limit)),
	})
	if err != nil {
		return nil, fmt.Errorf("annindex: search: %w", err)
	}

	hits := make([]Hit, 0, len(res))
	for _, p := range res {
		hits = append(hits, Hit{ID: p.Id.GetUuid(), Score: p.Score})
	}
	return hits, nil
}

// Close releases the underlying gRPC connection.
func (c *Client) Close() error {
	return c.qc.Close()
}

var _ Index = (*Client)(nil)

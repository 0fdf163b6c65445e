package qdrant

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"speechqa/internal/domain"
	"speechqa/internal/logger"
	"speechqa/internal/vectorstore"
)

// Config contains connection details for a Qdrant server.
type Config struct {
	Host   string
	Port   int
	APIKey string
	UseTLS bool
	// Collection overrides the collection derived from the location.
	Collection string
}

// Backend stores the index in a Qdrant collection. The location passed to
// its methods is mapped to a collection name unless Config.Collection is set.
type Backend struct {
	client     *qdrant.Client
	collection string
}

func NewBackend(cfg Config) (*Backend, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: connect: %w", err)
	}
	return &Backend{client: client, collection: cfg.Collection}, nil
}

func (b *Backend) Name() string { return "qdrant" }

var invalidCollectionChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// CollectionName maps a location such as "chroma_db" or "./data/idx" to a
// valid collection name.
func CollectionName(location string) string {
	name := invalidCollectionChars.ReplaceAllString(filepath.Base(filepath.Clean(location)), "_")
	name = strings.Trim(name, "_")
	if name == "" {
		return "speechqa"
	}
	return name
}

func (b *Backend) collectionFor(location string) string {
	if b.collection != "" {
		return b.collection
	}
	return CollectionName(location)
}

// Populated reports whether the collection exists and holds at least one point.
func (b *Backend) Populated(ctx context.Context, location string) (bool, error) {
	name := b.collectionFor(location)
	exists, err := b.client.CollectionExists(ctx, name)
	if err != nil {
		return false, fmt.Errorf("qdrant: collection exists: %w", err)
	}
	if !exists {
		return false, nil
	}
	count, err := b.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: name,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return false, fmt.Errorf("qdrant: count: %w", err)
	}
	return count > 0, nil
}

// Create (re)creates an empty cosine collection of the given size. An
// existing empty collection is dropped first.
func (b *Backend) Create(ctx context.Context, location string, dimension int, embedder string) (vectorstore.Storage, error) {
	name := b.collectionFor(location)
	exists, err := b.client.CollectionExists(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("qdrant: collection exists: %w", err)
	}
	if exists {
		if err := b.client.DeleteCollection(ctx, name); err != nil {
			return nil, fmt.Errorf("qdrant: drop empty collection: %w", err)
		}
	}
	if err := b.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	}); err != nil {
		return nil, fmt.Errorf("qdrant: create collection: %w", err)
	}
	logger.Debug("created qdrant collection %s (dim=%d)", name, dimension)
	return &Store{client: b.client, collection: name, dimension: dimension, embedder: embedder}, nil
}

// Drop deletes the collection behind location if it exists.
func (b *Backend) Drop(ctx context.Context, location string) error {
	name := b.collectionFor(location)
	exists, err := b.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("qdrant: collection exists: %w", err)
	}
	if !exists {
		return nil
	}
	if err := b.client.DeleteCollection(ctx, name); err != nil {
		return fmt.Errorf("qdrant: drop collection: %w", err)
	}
	return nil
}

func (b *Backend) Open(ctx context.Context, location string) (vectorstore.Storage, error) {
	name := b.collectionFor(location)
	info, err := b.client.GetCollectionInfo(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("qdrant: collection info: %w", err)
	}
	dim := int(info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize())
	embedder, err := b.recordedEmbedder(ctx, name)
	if err != nil {
		return nil, err
	}
	return &Store{client: b.client, collection: name, dimension: dim, embedder: embedder}, nil
}

// recordedEmbedder reads the embedder name from the payload of any one
// point. Every point of a build carries the same value.
func (b *Backend) recordedEmbedder(ctx context.Context, collection string) (string, error) {
	points, err := b.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: collection,
		Limit:          qdrant.PtrOf(uint32(1)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return "", fmt.Errorf("qdrant: scroll: %w", err)
	}
	if len(points) == 0 {
		return "", nil
	}
	return points[0].GetPayload()["embedder"].GetStringValue(), nil
}

func (b *Backend) Close() error { return b.client.Close() }

// Store is an opened Qdrant collection.
type Store struct {
	client     *qdrant.Client
	collection string
	dimension  int
	embedder   string
}

// PointID derives a stable point UUID from a chunk ID.
func PointID(chunkID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(chunkID)).String()
}

func (s *Store) Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks and vectors length mismatch")
	}
	pts := make([]*qdrant.PointStruct, len(chunks))
	for i, ch := range chunks {
		if s.dimension > 0 && len(vectors[i]) != s.dimension {
			return fmt.Errorf("%w: got %d, index has %d", vectorstore.ErrDimensionMismatch, len(vectors[i]), s.dimension)
		}
		pts[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(PointID(ch.ChunkID)),
			Vectors: qdrant.NewVectors(vectors[i]...),
			Payload: qdrant.NewValueMap(payloadFor(ch, s.embedder)),
		}
	}
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         pts,
	})
	return err
}

func (s *Store) Search(ctx context.Context, vector []float32, topK int) ([]domain.SearchResult, error) {
	if s.dimension > 0 && len(vector) != s.dimension {
		return nil, fmt.Errorf("%w: query has %d, index has %d", vectorstore.ErrDimensionMismatch, len(vector), s.dimension)
	}
	if topK <= 0 {
		topK = 4
	}
	limit := uint64(topK)
	resp, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: query: %w", err)
	}
	out := make([]domain.SearchResult, 0, len(resp))
	for _, r := range resp {
		out = append(out, domain.SearchResult{Chunk: chunkFrom(r.GetPayload()), Score: float64(r.GetScore())})
	}
	return out, nil
}

func (s *Store) Describe(ctx context.Context) (vectorstore.Description, error) {
	count, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return vectorstore.Description{}, fmt.Errorf("qdrant: count: %w", err)
	}
	return vectorstore.Description{
		Backend:   "qdrant",
		Location:  s.collection,
		Dimension: s.dimension,
		Embedder:  s.embedder,
		Count:     int(count),
	}, nil
}

// Close is a no-op; the connection belongs to the Backend.
func (s *Store) Close() error { return nil }

func payloadFor(ch domain.Chunk, embedder string) map[string]any {
	return map[string]any{
		"document_id": ch.DocumentID,
		"chunk_id":    ch.ChunkID,
		"source":      ch.Source,
		"index":       int64(ch.Index),
		"offset":      int64(ch.Offset),
		"text":        ch.Text,
		"embedder":    embedder,
	}
}

func chunkFrom(payload map[string]*qdrant.Value) domain.Chunk {
	return domain.Chunk{
		DocumentID: payload["document_id"].GetStringValue(),
		ChunkID:    payload["chunk_id"].GetStringValue(),
		Source:     payload["source"].GetStringValue(),
		Index:      int(payload["index"].GetIntegerValue()),
		Offset:     int(payload["offset"].GetIntegerValue()),
		Text:       payload["text"].GetStringValue(),
	}
}

var (
	_ vectorstore.Backend = (*Backend)(nil)
	_ vectorstore.Storage = (*Store)(nil)
)

package vectorstore

import (
	"context"
	"errors"

	"speechqa/internal/domain"
)

// ErrDimensionMismatch is returned when a vector does not match the index.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Description summarises an opened index.
type Description struct {
	Backend   string
	Location  string
	Dimension int
	// Embedder identifies the model that produced the stored vectors, when
	// the backend records it.
	Embedder string
	Count    int
}

// Storage persists vectors and supports similarity search.
type Storage interface {
	Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) error
	Search(ctx context.Context, vector []float32, topK int) ([]domain.SearchResult, error)
	Describe(ctx context.Context) (Description, error)
	Close() error
}

// Backend creates or reopens a Storage at a location. What a location is
// depends on the backend: a directory for sqlite, a collection for qdrant.
type Backend interface {
	Name() string
	// Populated reports whether location already holds a built index.
	Populated(ctx context.Context, location string) (bool, error)
	Open(ctx context.Context, location string) (Storage, error)
	Create(ctx context.Context, location string, dimension int, embedder string) (Storage, error)
	// Drop removes whatever Create wrote at location so a failed build is
	// not mistaken for a populated index on the next run.
	Drop(ctx context.Context, location string) error
}

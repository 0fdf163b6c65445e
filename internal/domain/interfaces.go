package domain

import "context"

// Document represents the single text file the index is built from.
type Document struct {
	ID      string
	Path    string
	Content string
}

// Chunk is a contiguous window of a document used as the retrieval unit.
type Chunk struct {
	DocumentID string
	ChunkID    string
	Source     string
	Text       string
	Index      int
	// Offset is the rune offset of Text within the document content.
	Offset int
}

// SearchResult represents a matching chunk with a relevance score.
type SearchResult struct {
	Chunk Chunk
	Score float64
}

// Loader reads a document from disk.
type Loader interface {
	Load(path string) (Document, error)
}

// Chunker splits documents into chunks suitable for retrieval indexing.
type Chunker interface {
	Chunk(document Document) ([]Chunk, error)
}

// Embedder converts free text into a numeric vector representation.
// The same text must always produce the same vector.
type Embedder interface {
	Name() string
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Generator turns an assembled prompt into a completion.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Asker answers a single question. It is the surface the front ends drive.
type Asker interface {
	Invoke(ctx context.Context, question string) (string, error)
}

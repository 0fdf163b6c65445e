// Package chunker splits a document into fixed-size overlapping windows.
package chunker

import (
	"strconv"

	"speechqa/internal/domain"
)

const (
	DefaultChunkSize    = 500
	DefaultChunkOverlap = 50
)

// CharacterChunker slides a window of chunkSize characters over the
// document, advancing by chunkSize-overlap each step. Sizes are counted in
// runes, so multi-byte text is never split inside a character.
type CharacterChunker struct {
	chunkSize int
	overlap   int
}

// Option configures the chunker.
type Option func(*CharacterChunker)

// WithChunkSize sets the chunk size in characters.
func WithChunkSize(size int) Option {
	return func(c *CharacterChunker) {
		if size > 0 {
			c.chunkSize = size
		}
	}
}

// WithOverlap sets the overlap between adjacent chunks in characters.
func WithOverlap(overlap int) Option {
	return func(c *CharacterChunker) {
		if overlap >= 0 {
			c.overlap = overlap
		}
	}
}

func NewCharacterChunker(opts ...Option) *CharacterChunker {
	c := &CharacterChunker{
		chunkSize: DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.overlap >= c.chunkSize {
		c.overlap = c.chunkSize / 10
	}
	return c
}

// ChunkSize returns the effective window size.
func (c *CharacterChunker) ChunkSize() int { return c.chunkSize }

// Overlap returns the effective overlap.
func (c *CharacterChunker) Overlap() int { return c.overlap }

// Chunk splits the document. Every chunk except possibly the last is exactly
// chunkSize runes long, and adjacent chunks share exactly overlap runes.
func (c *CharacterChunker) Chunk(document domain.Document) ([]domain.Chunk, error) {
	runes := []rune(document.Content)
	if len(runes) == 0 {
		return nil, nil
	}
	step := c.chunkSize - c.overlap
	chunks := make([]domain.Chunk, 0, len(runes)/step+1)
	idx := 0
	for start := 0; start < len(runes); start += step {
		end := start + c.chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, domain.Chunk{
			DocumentID: document.ID,
			ChunkID:    document.ID + ":" + strconv.Itoa(idx),
			Source:     document.Path,
			Text:       string(runes[start:end]),
			Index:      idx,
			Offset:     start,
		})
		if end == len(runes) {
			break
		}
		idx++
	}
	return chunks, nil
}

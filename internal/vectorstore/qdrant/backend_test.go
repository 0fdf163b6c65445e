package qdrant

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"speechqa/internal/vectorstore"
)

func TestBackend_PopulatedNeedsPoints(t *testing.T) {
	ctx := context.Background()
	b, _ := startFake(t, Config{})

	ok, err := b.Populated(ctx, "chroma_db")
	require.NoError(t, err)
	assert.False(t, ok, "missing collection")

	store, err := b.Create(ctx, "chroma_db", 3, "hashing")
	require.NoError(t, err)
	ok, err = b.Populated(ctx, "chroma_db")
	require.NoError(t, err)
	assert.False(t, ok, "empty collection")

	chunks, vectors := sampleChunks()
	require.NoError(t, store.Upsert(ctx, chunks, vectors))
	ok, err = b.Populated(ctx, "chroma_db")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestBackend_CreateOpenSearch(t *testing.T) {
	ctx := context.Background()
	b, fake := startFake(t, Config{})

	store, err := b.Create(ctx, "./data/chroma_db", 3, "openai:all-minilm")
	require.NoError(t, err)
	chunks, vectors := sampleChunks()
	require.NoError(t, store.Upsert(ctx, chunks, vectors))
	assert.Contains(t, fake.collections, "chroma_db")

	reopened, err := b.Open(ctx, "./data/chroma_db")
	require.NoError(t, err)

	d, err := reopened.Describe(ctx)
	require.NoError(t, err)
	assert.Equal(t, vectorstore.Description{
		Backend:   "qdrant",
		Location:  "chroma_db",
		Dimension: 3,
		Embedder:  "openai:all-minilm",
		Count:     3,
	}, d)

	res, err := reopened.Search(ctx, []float32{0, 0.9, 0.1}, 2)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, chunks[1], res[0].Chunk)
	assert.Greater(t, res[0].Score, res[1].Score)

	_, err = reopened.Search(ctx, []float32{1, 0}, 2)
	assert.True(t, errors.Is(err, vectorstore.ErrDimensionMismatch))
}

func TestBackend_CreateReplacesEmptyCollection(t *testing.T) {
	ctx := context.Background()
	b, fake := startFake(t, Config{Collection: "speech"})

	_, err := b.Create(ctx, "ignored", 8, "hashing")
	require.NoError(t, err)
	store, err := b.Create(ctx, "ignored", 3, "hashing")
	require.NoError(t, err)

	assert.Equal(t, uint64(3), fake.collections["speech"].config.GetParams().GetSize())
	chunks, vectors := sampleChunks()
	assert.NoError(t, store.Upsert(ctx, chunks, vectors))
}

func TestBackend_Drop(t *testing.T) {
	ctx := context.Background()
	b, fake := startFake(t, Config{})

	require.NoError(t, b.Drop(ctx, "chroma_db"), "absent collection")

	store, err := b.Create(ctx, "chroma_db", 3, "hashing")
	require.NoError(t, err)
	chunks, vectors := sampleChunks()
	require.NoError(t, store.Upsert(ctx, chunks, vectors))

	require.NoError(t, b.Drop(ctx, "chroma_db"))
	assert.NotContains(t, fake.collections, "chroma_db")
	ok, err := b.Populated(ctx, "chroma_db")
	require.NoError(t, err)
	assert.False(t, ok)
}

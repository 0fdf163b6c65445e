package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"speechqa/internal/domain"
	"speechqa/internal/logger"
	"speechqa/internal/vectorstore"
)

// ErrDocumentNotFound is returned by BuildOrLoad when the source document
// does not exist. The returned error also matches os.ErrNotExist.
var ErrDocumentNotFound = errors.New("document not found")

// IndexBuilder opens an existing index or builds one from a document.
type IndexBuilder struct {
	loader   domain.Loader
	chunker  domain.Chunker
	embedder domain.Embedder
	backend  vectorstore.Backend
	out      io.Writer
}

// NewIndexBuilder wires the builder. Progress lines go to out; nil means
// os.Stdout.
func NewIndexBuilder(loader domain.Loader, chunker domain.Chunker, embedder domain.Embedder, backend vectorstore.Backend, out io.Writer) *IndexBuilder {
	if out == nil {
		out = os.Stdout
	}
	return &IndexBuilder{loader: loader, chunker: chunker, embedder: embedder, backend: backend, out: out}
}

// BuildOrLoad returns the index at persistDir, building it from
// documentPath first if persistDir is absent or empty. An existing index is
// returned as-is: it is never compared against the current document.
func (b *IndexBuilder) BuildOrLoad(ctx context.Context, documentPath, persistDir string) (vectorstore.Storage, error) {
	if _, err := os.Stat(documentPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("speech file not found: %s: %w", documentPath, errors.Join(ErrDocumentNotFound, os.ErrNotExist))
		}
		return nil, fmt.Errorf("stat %s: %w", documentPath, err)
	}

	populated, err := b.backend.Populated(ctx, persistDir)
	if err != nil {
		return nil, err
	}
	if populated {
		fmt.Fprintf(b.out, "Using existing index at '%s'...\n", persistDir)
		store, err := b.backend.Open(ctx, persistDir)
		if err != nil {
			return nil, err
		}
		b.checkEmbedder(ctx, store)
		return store, nil
	}

	fmt.Fprintln(b.out, "Building new index from input text...")
	return b.build(ctx, documentPath, persistDir)
}

func (b *IndexBuilder) build(ctx context.Context, documentPath, persistDir string) (vectorstore.Storage, error) {
	defer logger.Step("index build")()
	doc, err := b.loader.Load(documentPath)
	if err != nil {
		return nil, err
	}
	chunks, err := b.chunker.Chunk(doc)
	if err != nil {
		return nil, fmt.Errorf("chunk %s: %w", documentPath, err)
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("no chunks produced from %s: document is empty", documentPath)
	}
	logger.Info("split %s into %d chunks", documentPath, len(chunks))

	vectors := make([][]float32, len(chunks))
	for i := range chunks {
		vec, err := b.embedder.Embed(ctx, chunks[i].Text)
		if err != nil {
			return nil, fmt.Errorf("embed chunk %d: %w", i, err)
		}
		vectors[i] = vec
		logger.Debug("embedded chunk %d/%d", i+1, len(chunks))
	}

	store, err := b.backend.Create(ctx, persistDir, len(vectors[0]), b.embedder.Name())
	if err != nil {
		b.discard(ctx, persistDir)
		return nil, err
	}
	if err := store.Upsert(ctx, chunks, vectors); err != nil {
		_ = store.Close()
		b.discard(ctx, persistDir)
		return nil, fmt.Errorf("write index: %w", err)
	}
	logger.Info("wrote %d vectors to %s index at %s", len(vectors), b.backend.Name(), persistDir)
	return store, nil
}

// discard drops a half-written index. It runs even if ctx was cancelled.
func (b *IndexBuilder) discard(ctx context.Context, persistDir string) {
	if err := b.backend.Drop(context.WithoutCancel(ctx), persistDir); err != nil {
		logger.Warn("remove partial index at %s: %v", persistDir, err)
	}
}

func (b *IndexBuilder) checkEmbedder(ctx context.Context, store vectorstore.Storage) {
	d, err := store.Describe(ctx)
	if err != nil {
		logger.Warn("describe index: %v", err)
		return
	}
	logger.Info("opened %s index at %s: %d chunks, dim=%d", d.Backend, d.Location, d.Count, d.Dimension)
	if d.Embedder != "" && d.Embedder != b.embedder.Name() {
		logger.Warn("index was built with embedder %q but %q is configured", d.Embedder, b.embedder.Name())
	}
}

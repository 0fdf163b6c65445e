package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"speechqa/internal/chunker"
	"speechqa/internal/config"
	"speechqa/internal/domain"
	"speechqa/internal/embedding/hashing"
	"speechqa/internal/embedding/openai"
	"speechqa/internal/llm/ollama"
	"speechqa/internal/loader"
	"speechqa/internal/logger"
	"speechqa/internal/service"
	"speechqa/internal/vectorstore"
	"speechqa/internal/vectorstore/qdrant"
	"speechqa/internal/vectorstore/sqlite"
)

// app holds the components assembled from the configuration.
type app struct {
	cfg      *config.AppConfig
	out      io.Writer
	embedder domain.Embedder
	chunker  domain.Chunker
	backend  vectorstore.Backend
	llm      *ollama.Client
	closers  []func() error
}

func newApp(cfg *config.AppConfig, out io.Writer) (*app, error) {
	a := &app{cfg: cfg, out: out}

	switch cfg.Embedder.Type {
	case "openai":
		client, err := openai.NewClient(openai.Config{
			BaseURL:   cfg.Embedder.OpenAI.BaseURL,
			APIKeyEnv: cfg.Embedder.OpenAI.APIKeyEnv,
			Model:     cfg.Embedder.OpenAI.Model,
			Timeout:   time.Duration(cfg.Embedder.OpenAI.TimeoutSecs) * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("openai embedder init failed: %w", err)
		}
		a.embedder = client
	case "hashing":
		a.embedder = hashing.NewEmbedder(cfg.Embedder.Hashing.Dimension)
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Embedder.Type)
	}

	switch cfg.Chunker.Type {
	case "character":
		a.chunker = chunker.NewCharacterChunker(
			chunker.WithChunkSize(cfg.Chunker.ChunkSize),
			chunker.WithOverlap(cfg.Chunker.ChunkOverlap),
		)
	default:
		return nil, fmt.Errorf("unknown chunker: %s", cfg.Chunker.Type)
	}

	switch cfg.VectorStore.Type {
	case "sqlite":
		a.backend = sqlite.NewBackend()
	case "qdrant":
		q := cfg.VectorStore.Qdrant
		var apiKey string
		if q.APIKeyEnv != "" {
			apiKey = os.Getenv(q.APIKeyEnv)
			if apiKey == "" {
				return nil, fmt.Errorf("missing qdrant API key in env %s", q.APIKeyEnv)
			}
		}
		backend, err := qdrant.NewBackend(qdrant.Config{
			Host:       q.Host,
			Port:       q.Port,
			APIKey:     apiKey,
			UseTLS:     q.UseTLS,
			Collection: q.Collection,
		})
		if err != nil {
			return nil, err
		}
		a.backend = backend
		a.closers = append(a.closers, backend.Close)
	default:
		return nil, fmt.Errorf("unknown vector store: %s", cfg.VectorStore.Type)
	}

	switch cfg.LLM.Type {
	case "ollama":
		a.llm = ollama.NewClient(ollama.Config{
			BaseURL: cfg.LLM.Ollama.BaseURL,
			Model:   cfg.LLM.Ollama.Model,
		})
	default:
		return nil, fmt.Errorf("unknown llm: %s", cfg.LLM.Type)
	}

	logger.Debug("embedder=%s chunker=%s store=%s llm=%s:%s",
		a.embedder.Name(), cfg.Chunker.Type, a.backend.Name(), cfg.LLM.Type, cfg.LLM.Ollama.Model)
	return a, nil
}

// Pipeline builds or reopens the index and returns the question pipeline
// over it.
func (a *app) Pipeline(ctx context.Context) (*service.QAPipeline, error) {
	builder := service.NewIndexBuilder(loader.NewTextLoader(), a.chunker, a.embedder, a.backend, a.out)
	store, err := builder.BuildOrLoad(ctx, a.cfg.DocumentPath, a.cfg.PersistDir)
	if err != nil {
		return nil, err
	}
	a.closers = append([]func() error{store.Close}, a.closers...)
	return service.NewQAPipeline(a.embedder, store, a.llm, a.cfg.VectorStore.TopK), nil
}

// CheckModel warns when the language model server is unreachable or lacks
// the configured model. Questions are still attempted and fail one by one.
func (a *app) CheckModel(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := a.llm.CheckModel(ctx); err != nil {
		logger.Warn("%v", err)
	}
}

// Close releases the index and any backend connection.
func (a *app) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

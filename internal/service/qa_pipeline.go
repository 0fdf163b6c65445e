package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"speechqa/internal/domain"
	"speechqa/internal/logger"
	"speechqa/internal/vectorstore"
)

// DefaultTopK matches the retriever default of returning four chunks.
const DefaultTopK = 4

// ErrNoContext is returned when retrieval finds nothing to answer from.
var ErrNoContext = errors.New("no context retrieved")

const promptText = `Use only the provided context to answer.

Context:
{{.Context}}

Question: {{.Question}}

Respond concisely and rely solely on the above context.
`

var promptTemplate = template.Must(template.New("qa").Parse(promptText))

// Retriever returns the chunks most similar to a question.
type Retriever struct {
	embedder domain.Embedder
	store    vectorstore.Storage
	topK     int
}

func NewRetriever(embedder domain.Embedder, store vectorstore.Storage, topK int) *Retriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Retriever{embedder: embedder, store: store, topK: topK}
}

// Retrieve embeds the question and searches the index.
func (r *Retriever) Retrieve(ctx context.Context, question string) ([]domain.SearchResult, error) {
	vec, err := r.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}
	res, err := r.store.Search(ctx, vec, r.topK)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}
	if len(res) == 0 {
		return nil, ErrNoContext
	}
	return res, nil
}

// RetrieveFunc is the retrieval stage of the pipeline.
type RetrieveFunc func(ctx context.Context, question string) ([]domain.SearchResult, error)

// QAPipeline answers a question as generate(assemble(retrieve(q), q)).
type QAPipeline struct {
	retrieve  RetrieveFunc
	generator domain.Generator
}

// NewQAPipeline builds the pipeline over an opened index.
func NewQAPipeline(embedder domain.Embedder, store vectorstore.Storage, generator domain.Generator, topK int) *QAPipeline {
	return NewQAPipelineWith(NewRetriever(embedder, store, topK).Retrieve, generator)
}

// NewQAPipelineWith builds the pipeline from an arbitrary retrieval stage.
func NewQAPipelineWith(retrieve RetrieveFunc, generator domain.Generator) *QAPipeline {
	return &QAPipeline{retrieve: retrieve, generator: generator}
}

// Invoke runs retrieval, prompt assembly and generation in that order.
// Nothing is cached between calls.
func (p *QAPipeline) Invoke(ctx context.Context, question string) (string, error) {
	results, err := p.retrieve(ctx, question)
	if err != nil {
		return "", err
	}
	logger.Debug("retrieved %d chunks for %q", len(results), question)

	prompt, err := AssemblePrompt(results, question)
	if err != nil {
		return "", err
	}
	logger.Debug("prompt is %d bytes", len(prompt))

	done := logger.Step("generation")
	answer, err := p.generator.Generate(ctx, prompt)
	done()
	if err != nil {
		return "", err
	}
	return answer, nil
}

// AssemblePrompt renders the fixed template. Chunk texts are inserted
// verbatim, separated by blank lines, in retrieval order.
func AssemblePrompt(results []domain.SearchResult, question string) (string, error) {
	texts := make([]string, len(results))
	for i, r := range results {
		texts[i] = r.Chunk.Text
	}
	var sb strings.Builder
	err := promptTemplate.Execute(&sb, struct {
		Context  string
		Question string
	}{
		Context:  strings.Join(texts, "\n\n"),
		Question: question,
	})
	if err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return sb.String(), nil
}

var _ domain.Asker = (*QAPipeline)(nil)

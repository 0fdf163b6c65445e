package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"speechqa/internal/restclient"
)

// Client is an OpenAI-compatible embeddings client. Ollama serves the same
// route under /v1, which is the default target.
type Client struct {
	rest      *restclient.RestClient
	model     string
	dimension int
}

// Config configures the OpenAI-compatible embeddings client.
type Config struct {
	BaseURL string
	// APIKeyEnv names the environment variable holding the bearer token.
	// Empty means no Authorization header, which is what Ollama expects.
	APIKeyEnv string
	Model     string
	Timeout   time.Duration
}

// NewClient creates a new embeddings client using the provided configuration.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "all-minilm"
	}
	headers := map[string]string{}
	if cfg.APIKeyEnv != "" {
		key := os.Getenv(cfg.APIKeyEnv)
		if key == "" {
			return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
		}
		headers["Authorization"] = "Bearer " + key
	}
	return &Client{
		rest:  restclient.NewRestClient(cfg.BaseURL, headers, &http.Client{Timeout: cfg.Timeout}),
		model: cfg.Model,
	}, nil
}

// Name returns the identifier of this embedder, including the model so a
// reopened index can tell which model produced its vectors.
func (c *Client) Name() string { return "openai:" + c.model }

// Dimension returns the dimensionality seen on the first successful call.
func (c *Client) Dimension() int { return c.dimension }

// Embed returns an embedding vector for the given text. Failures are
// returned as-is; there is no retry.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	type reqBody struct {
		Input  string `json:"input"`
		Prompt string `json:"prompt,omitempty"`
		Model  string `json:"model"`
	}
	payload, err := c.rest.PostJSON(ctx, "/embeddings", reqBody{Input: text, Prompt: text, Model: c.model}, nil)
	if err != nil {
		return nil, fmt.Errorf("embeddings request: %w", err)
	}
	v, err := decodeEmbedding(payload)
	if err != nil {
		return nil, err
	}
	if c.dimension == 0 {
		c.dimension = len(v)
	}
	return v, nil
}

func decodeEmbedding(payload []byte) ([]float32, error) {
	// OpenAI shape first.
	var openaiOut struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &openaiOut); err == nil {
		if len(openaiOut.Data) > 0 && len(openaiOut.Data[0].Embedding) > 0 {
			return openaiOut.Data[0].Embedding, nil
		}
	}
	// Ollama-native shape: { "embedding": [...] }
	var ollamaOut struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := json.Unmarshal(payload, &ollamaOut); err == nil && len(ollamaOut.Embedding) > 0 {
		return ollamaOut.Embedding, nil
	}
	return nil, errors.New("no embedding returned")
}

package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"speechqa/internal/restclient"
)

const (
	generateEndpoint = "/api/generate"
	tagsEndpoint     = "/api/tags"
)

// ErrModelNotPulled is returned by CheckModel when the server is reachable
// but does not have the configured model.
var ErrModelNotPulled = errors.New("model not pulled")

// Config configures the Ollama generation client.
type Config struct {
	BaseURL string
	Model   string
	// Options is passed through verbatim as the request "options" object
	// (temperature, num_ctx, ...). Nil means server defaults.
	Options map[string]any
}

type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type tagsResponse struct {
	Models []struct {
		Name  string `json:"name"`
		Model string `json:"model"`
	} `json:"models"`
}

type generateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error"`
}

// Client sends whole prompts to a local Ollama server and returns the raw
// completion. Requests carry no timeout of their own.
type Client struct {
	rest    *restclient.RestClient
	model   string
	options map[string]any
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if cfg.Model == "" {
		cfg.Model = "llama3.2:1b-instruct-q8_0"
	}
	return &Client{
		rest:    restclient.NewRestClient(cfg.BaseURL, nil, nil),
		model:   cfg.Model,
		options: cfg.Options,
	}
}

func (c *Client) Model() string { return c.model }

// Generate runs a single non-streaming completion.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	payload, err := c.rest.PostJSON(ctx, generateEndpoint, generateRequest{
		Model:   c.model,
		Prompt:  prompt,
		Stream:  false,
		Options: c.options,
	}, nil)
	if err != nil {
		return "", fmt.Errorf("ollama generate: %w", err)
	}
	var out generateResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return "", fmt.Errorf("ollama generate: parse response: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("ollama generate: %s", out.Error)
	}
	if !out.Done {
		return "", errors.New("ollama generate: incomplete response")
	}
	return out.Response, nil
}

// CheckModel asks the server which models it has and reports whether the
// configured one is among them. An untagged model name matches ":latest".
func (c *Client) CheckModel(ctx context.Context) error {
	payload, err := c.rest.GetJSON(ctx, tagsEndpoint, nil)
	if err != nil {
		return fmt.Errorf("ollama at %s: %w", c.rest.BaseURL(), err)
	}
	var tags tagsResponse
	if err := json.Unmarshal(payload, &tags); err != nil {
		return fmt.Errorf("ollama tags: parse response: %w", err)
	}
	want := c.Model()
	if !strings.Contains(want, ":") {
		want += ":latest"
	}
	for _, m := range tags.Models {
		if m.Name == want || m.Model == want {
			return nil
		}
	}
	return fmt.Errorf("%w: %s is not available at %s, run `ollama pull %s`", ErrModelNotPulled, c.Model(), c.rest.BaseURL(), c.Model())
}

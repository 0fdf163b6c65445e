package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	DefaultDocumentPath = "speech.txt"
	DefaultPersistDir   = "chroma_db"
	DefaultOllamaURL    = "http://localhost:11434"
	DefaultOllamaPort   = "11434"
)

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
// The defaults point at a local Ollama server, which serves the same API.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url" validate:"required,url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model" validate:"required"`
	TimeoutSecs int    `yaml:"timeout_secs" validate:"gte=0"`
}

// HashingEmbedderConfig configures the offline hashing embedder.
type HashingEmbedderConfig struct {
	Dimension int `yaml:"dimension" validate:"gte=8"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type    string                 `yaml:"type" validate:"oneof=openai hashing"`
	OpenAI  *OpenAIEmbedderConfig  `yaml:"openai,omitempty"`
	Hashing *HashingEmbedderConfig `yaml:"hashing,omitempty"`
}

// ChunkerConfig configures how the document is split into chunks.
type ChunkerConfig struct {
	Type         string `yaml:"type" validate:"oneof=character"`
	ChunkSize    int    `yaml:"chunk_size" validate:"gt=0"`
	ChunkOverlap int    `yaml:"chunk_overlap" validate:"gte=0,ltfield=ChunkSize"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type   string        `yaml:"type" validate:"oneof=sqlite qdrant"`
	TopK   int           `yaml:"top_k" validate:"gt=0"`
	Qdrant *QdrantConfig `yaml:"qdrant,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	Host       string `yaml:"host" validate:"required"`
	Port       int    `yaml:"port" validate:"gt=0,lte=65535"`
	APIKeyEnv  string `yaml:"api_key_env"`
	Collection string `yaml:"collection"`
	UseTLS     bool   `yaml:"use_tls"`
}

// OllamaConfig configures the Ollama generation client.
type OllamaConfig struct {
	BaseURL string `yaml:"base_url" validate:"required,url"`
	Model   string `yaml:"model" validate:"required"`
}

// LLMConfig selects the language model backend.
type LLMConfig struct {
	Type   string        `yaml:"type" validate:"oneof=ollama"`
	Ollama *OllamaConfig `yaml:"ollama,omitempty"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	DocumentPath string            `yaml:"document_path" validate:"required"`
	PersistDir   string            `yaml:"persist_dir" validate:"required"`
	Title        string            `yaml:"title"`
	Embedder     EmbedderConfig    `yaml:"embedder"`
	Chunker      ChunkerConfig     `yaml:"chunker"`
	VectorStore  VectorStoreConfig `yaml:"vector_store"`
	LLM          LLMConfig         `yaml:"llm"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return finalize(defaultConfig())
		}
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML config data, fills in defaults and validates the result.
func Parse(data []byte) (*AppConfig, error) {
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return finalize(&cfg)
}

// LoadDefault tries ./config.yaml first, then ~/.config/speechqa/config.yaml.
// If neither exists the built-in defaults are returned.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg, err := finalize(defaultConfig())
	return cfg, "", err
}

func finalize(cfg *AppConfig) (*AppConfig, error) {
	applyConfigDefaults(cfg)
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

var validate = validator.New()

// Validate checks field constraints on the whole config tree.
func Validate(cfg *AppConfig) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	switch {
	case cfg.Embedder.Type == "openai" && cfg.Embedder.OpenAI == nil:
		return errors.New("invalid config: embedder.openai section missing")
	case cfg.Embedder.Type == "hashing" && cfg.Embedder.Hashing == nil:
		return errors.New("invalid config: embedder.hashing section missing")
	case cfg.VectorStore.Type == "qdrant" && cfg.VectorStore.Qdrant == nil:
		return errors.New("invalid config: vector_store.qdrant section missing")
	case cfg.LLM.Ollama == nil:
		return errors.New("invalid config: llm.ollama section missing")
	}
	return nil
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "speechqa", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		DocumentPath: DefaultDocumentPath,
		PersistDir:   DefaultPersistDir,
		Embedder:     EmbedderConfig{Type: "openai"},
		Chunker:      ChunkerConfig{Type: "character", ChunkSize: 500, ChunkOverlap: 50},
		VectorStore:  VectorStoreConfig{Type: "sqlite", TopK: 4},
		LLM:          LLMConfig{Type: "ollama"},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.DocumentPath == "" {
		cfg.DocumentPath = DefaultDocumentPath
	}
	if cfg.PersistDir == "" {
		cfg.PersistDir = DefaultPersistDir
	}
	if cfg.Title == "" {
		cfg.Title = "Speech Q&A"
	}
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "openai"
	}
	if cfg.Embedder.Type == "openai" {
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		if cfg.Embedder.OpenAI.BaseURL == "" {
			cfg.Embedder.OpenAI.BaseURL = DefaultOllamaURL + "/v1"
		}
		if cfg.Embedder.OpenAI.Model == "" {
			cfg.Embedder.OpenAI.Model = "all-minilm"
		}
	}
	if cfg.Embedder.Type == "hashing" {
		if cfg.Embedder.Hashing == nil {
			cfg.Embedder.Hashing = &HashingEmbedderConfig{}
		}
		if cfg.Embedder.Hashing.Dimension == 0 {
			cfg.Embedder.Hashing.Dimension = 384
		}
	}
	if cfg.Chunker.Type == "" {
		cfg.Chunker.Type = "character"
	}
	if cfg.Chunker.ChunkSize == 0 {
		cfg.Chunker.ChunkSize = 500
		if cfg.Chunker.ChunkOverlap == 0 {
			cfg.Chunker.ChunkOverlap = 50
		}
	}
	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "sqlite"
	}
	if cfg.VectorStore.TopK == 0 {
		cfg.VectorStore.TopK = 4
	}
	if cfg.VectorStore.Type == "qdrant" {
		if cfg.VectorStore.Qdrant == nil {
			cfg.VectorStore.Qdrant = &QdrantConfig{}
		}
		if cfg.VectorStore.Qdrant.Host == "" {
			cfg.VectorStore.Qdrant.Host = "localhost"
		}
		if cfg.VectorStore.Qdrant.Port == 0 {
			cfg.VectorStore.Qdrant.Port = 6334
		}
	}
	if cfg.LLM.Type == "" {
		cfg.LLM.Type = "ollama"
	}
	if cfg.LLM.Ollama == nil {
		cfg.LLM.Ollama = &OllamaConfig{}
	}
	if cfg.LLM.Ollama.BaseURL == "" {
		cfg.LLM.Ollama.BaseURL = DefaultOllamaURL
	}
	if cfg.LLM.Ollama.Model == "" {
		cfg.LLM.Ollama.Model = "llama3.2:1b-instruct-q8_0"
	}
}

// applyEnvOverrides lets OLLAMA_HOST redirect both model clients, read the
// way the Ollama CLI reads it.
func applyEnvOverrides(cfg *AppConfig) error {
	raw := strings.TrimSpace(os.Getenv("OLLAMA_HOST"))
	if raw == "" {
		return nil
	}
	host, err := ollamaHostURL(raw)
	if err != nil {
		return fmt.Errorf("invalid OLLAMA_HOST %q: %w", raw, err)
	}
	if cfg.LLM.Ollama != nil {
		cfg.LLM.Ollama.BaseURL = host
	}
	if cfg.Embedder.OpenAI != nil {
		cfg.Embedder.OpenAI.BaseURL = host + "/v1"
	}
	return nil
}

// ollamaHostURL expands a bare host, host:port or URL into a base URL.
// Scheme defaults to http, host to 127.0.0.1 and port to 11434 (443 for
// https).
func ollamaHostURL(raw string) (string, error) {
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	hostname, port := u.Hostname(), u.Port()
	if hostname == "" {
		hostname = "127.0.0.1"
	}
	if port == "" {
		port = DefaultOllamaPort
		if u.Scheme == "https" {
			port = "443"
		}
	}
	u.Host = net.JoinHostPort(hostname, port)
	return strings.TrimRight(u.String(), "/"), nil
}

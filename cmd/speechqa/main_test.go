package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const speech = `The real remedy for breaking caste is inter-marriage. Nothing else will
serve as the solvent of caste. Where society is already well-knit by other
ties, marriage is an ordinary incident of life.`

func fakeOllama(t *testing.T, prompts *[]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/api/tags" {
			_ = json.NewEncoder(w).Encode(map[string]any{"models": []map[string]string{{"name": "llama3.2:1b-instruct-q8_0"}}})
			return
		}
		require.Equal(t, "/api/generate", r.URL.Path)
		var req struct {
			Prompt string `json:"prompt"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		*prompts = append(*prompts, req.Prompt)
		_ = json.NewEncoder(w).Encode(map[string]any{"response": "Inter-marriage.", "done": true})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	docPath := filepath.Join(dir, "speech.txt")
	require.NoError(t, os.WriteFile(docPath, []byte(speech), 0o644))
	cfg := "document_path: " + docPath + "\n" +
		"persist_dir: " + filepath.Join(dir, "chroma_db") + "\n" +
		"embedder:\n  type: hashing\n"
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))
	return cfgPath
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRun_BuildsThenReusesIndex(t *testing.T) {
	var prompts []string
	srv := fakeOllama(t, &prompts)
	t.Setenv("OLLAMA_HOST", srv.URL)
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)

	out, err := execute(t, "What is the remedy?\nexit\n", "--config", cfgPath)
	require.NoError(t, err)

	assert.Contains(t, out, "Building new index from input text...")
	assert.Contains(t, out, "=== Speech Q&A ===")
	assert.Contains(t, out, "\n--- Answer ---\nInter-marriage.\n\n\n")
	assert.True(t, strings.HasSuffix(out, "Question: Goodbye!\n"))
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "Question: What is the remedy?")
	assert.Contains(t, prompts[0], "inter-marriage")

	out, err = execute(t, "quit\n", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Using existing index at '"+filepath.Join(dir, "chroma_db")+"'...")
	assert.NotContains(t, out, "Building new index")
	assert.NotContains(t, out, "[WARN]")
}

func TestRun_WarnsWhenModelNotPulled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"models":[]}`))
	}))
	t.Cleanup(srv.Close)
	t.Setenv("OLLAMA_HOST", srv.URL)
	cfgPath := writeConfig(t, t.TempDir())

	out, err := execute(t, "exit\n", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "[WARN] model not pulled: llama3.2:1b-instruct-q8_0")
	assert.True(t, strings.HasSuffix(out, "Goodbye!\n"))
}

func TestRun_MissingDocumentIsFatal(t *testing.T) {
	t.Setenv("OLLAMA_HOST", "")
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)
	require.NoError(t, os.Remove(filepath.Join(dir, "speech.txt")))

	_, err := execute(t, "", "--config", cfgPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "speech file not found")

	_, statErr := os.Stat(filepath.Join(dir, "chroma_db"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestRun_RejectsPositionalArgs(t *testing.T) {
	_, err := execute(t, "", "extra.txt")
	assert.Error(t, err)
}

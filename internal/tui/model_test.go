package tui

import (
	"context"
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAsker struct {
	answer string
	err    error
	calls  []string
}

func (s *stubAsker) Invoke(_ context.Context, question string) (string, error) {
	s.calls = append(s.calls, question)
	return s.answer, s.err
}

func sized(t *testing.T, m Model) Model {
	t.Helper()
	next, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	return next.(Model)
}

func submit(t *testing.T, m Model, text string) (Model, tea.Cmd) {
	t.Helper()
	m.input.SetValue(text)
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return next.(Model), cmd
}

func TestView_LoadingUntilSized(t *testing.T) {
	m := New(context.Background(), &stubAsker{}, "Speech Q&A")
	assert.Equal(t, "Loading...", m.View())

	m = sized(t, m)
	assert.Contains(t, m.View(), "=== Speech Q&A ===")
	assert.Contains(t, m.View(), "No questions yet.")
}

func TestSubmit_AnswerAppendedToTranscript(t *testing.T) {
	asker := &stubAsker{answer: "Inter-marriage."}
	m := sized(t, New(context.Background(), asker, "Speech Q&A"))

	m, cmd := submit(t, m, "  What is the remedy?  ")
	require.NotNil(t, cmd)
	assert.Equal(t, "What is the remedy?", m.pending)
	assert.Empty(t, m.input.Value())

	next, _ := m.Update(cmd())
	m = next.(Model)

	assert.Equal(t, []string{"What is the remedy?"}, asker.calls)
	assert.Empty(t, m.pending)
	require.Len(t, m.history, 1)
	assert.Equal(t, "Inter-marriage.", m.history[0].answer)
	transcript := m.renderTranscript()
	assert.Contains(t, transcript, "--- Answer ---")
	assert.Contains(t, transcript, "Inter-marriage.")
}

func TestSubmit_ErrorShownAndLoopContinues(t *testing.T) {
	asker := &stubAsker{err: errors.New("connection refused")}
	m := sized(t, New(context.Background(), asker, "Speech Q&A"))

	m, cmd := submit(t, m, "Who wrote it?")
	next, _ := m.Update(cmd())
	m = next.(Model)

	assert.Equal(t, "Error: connection refused", m.status)
	assert.Contains(t, m.renderTranscript(), "Error: connection refused")

	_, cmd = submit(t, m, "Again?")
	assert.NotNil(t, cmd)
}

func TestSubmit_BlockedWhileInFlight(t *testing.T) {
	asker := &stubAsker{answer: "ok"}
	m := sized(t, New(context.Background(), asker, "Speech Q&A"))

	m, first := submit(t, m, "first")
	require.NotNil(t, first)

	m, second := submit(t, m, "second")
	assert.Nil(t, second)
	assert.Equal(t, "first", m.pending)
}

func TestSubmit_EmptyIgnored(t *testing.T) {
	m := sized(t, New(context.Background(), &stubAsker{}, "Speech Q&A"))
	_, cmd := submit(t, m, "   ")
	assert.Nil(t, cmd)
}

func TestQuitKeys(t *testing.T) {
	for _, word := range []string{"exit", "QUIT", " Exit "} {
		m := sized(t, New(context.Background(), &stubAsker{}, "Speech Q&A"))
		m, cmd := submit(t, m, word)
		require.NotNil(t, cmd, word)
		assert.Equal(t, tea.QuitMsg{}, cmd())
		assert.Equal(t, "Goodbye!", m.status)
	}

	for _, key := range []tea.KeyType{tea.KeyCtrlC, tea.KeyCtrlD} {
		m := sized(t, New(context.Background(), &stubAsker{}, "Speech Q&A"))
		_, cmd := m.Update(tea.KeyMsg{Type: key})
		require.NotNil(t, cmd)
		assert.Equal(t, tea.QuitMsg{}, cmd())
	}
}

func TestHighlightQuestionTerms(t *testing.T) {
	out := highlightQuestionTerms("Caste is a notion", "what is caste")
	assert.Contains(t, out, "notion")
	assert.Contains(t, out, "is a")

	assert.Equal(t, "plain", highlightQuestionTerms("plain", ""))
}

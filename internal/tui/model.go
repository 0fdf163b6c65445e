package tui

import (
	"context"
	"regexp"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"speechqa/internal/console"
	"speechqa/internal/domain"
)

type exchange struct {
	question string
	answer   string
	err      error
}

type answerMsg struct {
	exchange
}

// Model is the Bubble Tea model for the chat screen.
type Model struct {
	ctx      context.Context
	asker    domain.Asker
	title    string
	input    textinput.Model
	viewport viewport.Model
	history  []exchange
	status   string
	pending  string
	ready    bool
}

// New creates a new TUI model instance.
func New(ctx context.Context, asker domain.Asker, title string) Model {
	ti := textinput.New()
	ti.Prompt = "Question: "
	ti.Placeholder = "Ask about the speech, 'exit' to quit"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{ctx: ctx, asker: asker, title: title, input: ti, viewport: vp, status: "Index loaded. Type a question."}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// ask runs the pipeline off the UI goroutine and reports back as a message.
func (m Model) ask(question string) tea.Cmd {
	return func() tea.Msg {
		answer, err := m.asker.Invoke(m.ctx, question)
		return answerMsg{exchange{question: question, answer: answer, err: err}}
	}
}

// Update handles key and window events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, th := transcriptBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 1 + 1 + qh + 1 + 1 // header, spacer, input, status, spacer
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-reserved-th)
		m.refresh()
		return m, nil
	case answerMsg:
		m.pending = ""
		m.history = append(m.history, msg.exchange)
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
		} else {
			m.status = "Answered."
		}
		m.refresh()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		if msg.Type == tea.KeyEnter {
			q := strings.TrimSpace(m.input.Value())
			if console.IsExit(q) {
				m.status = "Goodbye!"
				return m, tea.Quit
			}
			if q == "" || m.pending != "" {
				return m, nil
			}
			m.pending = q
			m.input.SetValue("")
			m.status = "Thinking..."
			m.refresh()
			return m, m.ask(q)
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	var vcmd tea.Cmd
	m.viewport, vcmd = m.viewport.Update(msg)
	return m, tea.Batch(cmd, vcmd)
}

// View renders the TUI layout.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := headerStyle.Render("=== " + m.title + " ===")
	transcript := transcriptBoxStyle.Render(m.viewport.View())
	input := queryBoxStyle.Render(m.input.View())
	status := statusStyle.Render(m.status)
	return header + "\n" + transcript + "\n" + input + "\n" + status
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

func (m Model) renderTranscript() string {
	if len(m.history) == 0 && m.pending == "" {
		return "No questions yet."
	}
	var sb strings.Builder
	for _, ex := range m.history {
		sb.WriteString(questionStyle.Render("Question: " + ex.question))
		sb.WriteString("\n")
		if ex.err != nil {
			sb.WriteString(errorStyle.Render("Error: " + ex.err.Error()))
		} else {
			sb.WriteString(answerHeaderStyle.Render("--- Answer ---"))
			sb.WriteString("\n")
			sb.WriteString(highlightQuestionTerms(ex.answer, ex.question))
		}
		sb.WriteString("\n\n")
	}
	if m.pending != "" {
		sb.WriteString(questionStyle.Render("Question: " + m.pending))
		sb.WriteString("\n...")
	}
	return sb.String()
}

var (
	headerStyle        = lipgloss.NewStyle().Bold(true)
	transcriptBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	statusStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	questionStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	answerHeaderStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errorStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	highlightStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	unicodeWordRe      = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
)

// highlightQuestionTerms emphasises answer words that also occur in the
// question. Words of three letters or fewer are left alone.
func highlightQuestionTerms(answer, question string) string {
	terms := toTokenSet(question)
	if len(terms) == 0 {
		return answer
	}
	return unicodeWordRe.ReplaceAllStringFunc(answer, func(w string) string {
		if len([]rune(w)) <= 3 {
			return w
		}
		if _, ok := terms[strings.ToLower(w)]; ok {
			return highlightStyle.Render(w)
		}
		return w
	})
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

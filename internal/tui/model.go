package tui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"mpkai/internal/citation"
	"mpkai/internal/domain"
	"mpkai/internal/prompt"
	"mpkai/internal/service"
	"mpkai/internal/session"
)

// AskPort is the TUI-facing subset of the RAG service.
type AskPort interface {
	Ask(ctx context.Context, question string, lang domain.Language, onFragment func(string)) (domain.Answer, error)
	Status(ctx context.Context) service.Status
	Invalidate()
	CorpusDir() string
}

// Options are the fixed settings of one chat shell.
type Options struct {
	Language     domain.Language
	Name         string
	ExportDir    string
	ExportFormat string
}

type statusMsg struct{ status service.Status }

type fragmentMsg struct {
	turn int
	text string
	ch   <-chan tea.Msg
}

type answerMsg struct {
	turn   int
	answer domain.Answer
	err    error
}

type exportedMsg struct {
	path string
	err  error
}

// Model is the Bubble Tea model for the chat shell.
type Model struct {
	service  AskPort
	history  *session.History
	slot     *service.Slot
	opts     Options
	input    textinput.Model
	viewport viewport.Model

	lang     domain.Language
	st       *service.Status
	status   string
	turn     int
	pending  bool
	partial  strings.Builder
	ready    bool
	quitting bool
}

// New creates a new TUI model instance.
func New(svc AskPort, history *session.History, opts Options) *Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Tanyakan apa saja tentang MPK..."
	ti.Focus()
	ti.CharLimit = 0
	if opts.Name == "" {
		opts.Name = prompt.DefaultName
	}
	if opts.ExportFormat == "" {
		opts.ExportFormat = "txt"
	}
	return &Model{
		service:  svc,
		history:  history,
		slot:     &service.Slot{},
		opts:     opts,
		input:    ti,
		viewport: viewport.New(0, 0),
		lang:     opts.Language,
		status:   "Indexing corpus...",
	}
}

// Init starts the cursor blink and the first index build.
func (m *Model) Init() tea.Cmd { return tea.Batch(textinput.Blink, m.loadStatus()) }

// Update handles key, window and pipeline events.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, th := transcriptBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 3 + 1 + qh + 1 // header, digest, history; status; input box; spacer
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = max(3, msg.Height-reserved-th-1)
		m.refresh()
		return m, nil

	case statusMsg:
		m.st = &msg.status
		switch {
		case msg.status.Ready:
			m.status = fmt.Sprintf("Ready: %d chunks indexed.", msg.status.Chunks)
		case msg.status.Err != nil:
			m.status = prompt.SetupWarning(m.service.CorpusDir(), m.lang) + " (" + msg.status.Err.Error() + ")"
		}
		return m, nil

	case fragmentMsg:
		if msg.turn == m.turn && m.pending {
			m.partial.WriteString(msg.text)
			m.refresh()
		}
		return m, waitFor(msg.ch)

	case answerMsg:
		if msg.turn != m.turn {
			return m, nil
		}
		m.pending = false
		m.partial.Reset()
		m.history.Append(session.Message{Role: session.RoleAssistant, Content: citation.Render(msg.answer), TurnID: msg.answer.TurnID})
		m.status = outcomeStatus(msg.answer, msg.err)
		m.refresh()
		return m, nil

	case exportedMsg:
		if msg.err != nil {
			m.status = "Export failed: " + msg.err.Error()
		} else {
			m.status = "Transcript saved to " + msg.path
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyCtrlD:
			m.slot.Cancel()
			m.quitting = true
			return m, tea.Quit
		case tea.KeyCtrlL:
			m.lang = m.lang.Toggle()
			m.status = "Language: " + m.lang.String()
			return m, nil
		case tea.KeyCtrlR:
			m.slot.Cancel()
			m.turn++
			m.pending = false
			m.partial.Reset()
			m.st = nil
			m.status = "Re-indexing corpus..."
			m.refresh()
			svc := m.service
			return m, func() tea.Msg {
				svc.Invalidate()
				return statusMsg{status: svc.Status(context.Background())}
			}
		case tea.KeyCtrlN:
			m.slot.Cancel()
			m.turn++
			m.pending = false
			m.partial.Reset()
			m.history.Reset()
			m.status = "Chat reset."
			m.refresh()
			return m, nil
		case tea.KeyCtrlS:
			return m, m.export()
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		case tea.KeyEnter:
			q := strings.TrimSpace(m.input.Value())
			if q == "" {
				return m, nil
			}
			m.input.Reset()
			return m, m.ask(q)
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// ask starts a new turn. The previous turn, if still streaming, is cancelled by the slot.
func (m *Model) ask(q string) tea.Cmd {
	m.turn++
	turn := m.turn
	m.pending = true
	m.partial.Reset()
	m.history.Append(session.Message{Role: session.RoleUser, Content: q})
	m.status = "Thinking..."
	m.refresh()

	ch := make(chan tea.Msg, 64)
	svc, slot, lang := m.service, m.slot, m.lang
	go func() {
		defer close(ch)
		ctx, release := slot.Acquire(context.Background())
		defer release()
		a, err := svc.Ask(ctx, q, lang, func(f string) {
			ch <- fragmentMsg{turn: turn, text: f, ch: ch}
		})
		ch <- answerMsg{turn: turn, answer: a, err: err}
	}()
	return waitFor(ch)
}

func waitFor(ch <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return nil
		}
		return msg
	}
}

func (m *Model) export() tea.Cmd {
	dir, format, history := m.opts.ExportDir, m.opts.ExportFormat, m.history
	return func() tea.Msg {
		path := filepath.Join(dir, session.FileName(format))
		f, err := os.Create(path)
		if err != nil {
			return exportedMsg{err: err}
		}
		if err := history.Export(f, format); err != nil {
			f.Close()
			return exportedMsg{err: err}
		}
		return exportedMsg{path: path, err: f.Close()}
	}
}

func outcomeStatus(a domain.Answer, err error) string {
	switch a.Outcome {
	case domain.Answered:
		return fmt.Sprintf("Answered with %d source(s).", len(a.Citations))
	case domain.NoRelevantContext:
		return "No relevant passage found."
	case domain.NotReady:
		return "Index not ready."
	default:
		if err != nil {
			return "Error: " + err.Error()
		}
		return "Error."
	}
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

// View renders the TUI layout.
func (m *Model) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "Loading..."
	}
	header := headerStyle.Render("MPK AI Assistant") + "  " + langStyle.Render("["+m.lang.String()+"]")
	digest := ""
	if m.st != nil && m.st.Ready {
		digest = m.st.Digest
	}
	digest = dimStyle.Render(truncate(digest, m.viewport.Width))
	history := dimStyle.Render(truncate(m.renderTitles(), m.viewport.Width))
	transcript := transcriptBoxStyle.Render(m.viewport.View())
	input := queryBoxStyle.Render(m.input.View())
	status := statusStyle.Render(m.status)
	keys := dimStyle.Render("enter ask · ctrl+l language · ctrl+r re-index · ctrl+n reset · ctrl+s export · ctrl+c quit")
	return header + "\n" + digest + "\n" + history + "\n" + transcript + "\n" + input + "\n" + status + "  " + keys
}

func (m *Model) renderTitles() string {
	titles := m.history.Titles()
	if len(titles) == 0 {
		return "No questions yet."
	}
	parts := make([]string, len(titles))
	for i, t := range titles {
		parts[i] = fmt.Sprintf("%d. %s", i+1, t)
	}
	return strings.Join(parts, "  ")
}

func (m *Model) renderTranscript() string {
	var b strings.Builder
	for _, msg := range m.history.Messages() {
		if msg.Role == session.RoleUser {
			b.WriteString(userStyle.Render("You: "))
		} else {
			b.WriteString(assistantStyle.Render(m.opts.Name + ": "))
		}
		b.WriteString(msg.Content)
		b.WriteString("\n\n")
	}
	if m.pending {
		b.WriteString(assistantStyle.Render(m.opts.Name + ": "))
		b.WriteString(m.partial.String())
		b.WriteString("▌")
	}
	if b.Len() == 0 {
		return "Ask a question about the MPK documents."
	}
	return b.String()
}

func truncate(s string, width int) string {
	r := []rune(s)
	if width <= 3 || len(r) <= width {
		return s
	}
	return string(r[:width-3]) + "..."
}

var (
	transcriptBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	headerStyle        = lipgloss.NewStyle().Bold(true)
	langStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	dimStyle           = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	userStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	assistantStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Bold(true)
)

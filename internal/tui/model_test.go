package tui

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mpkai/internal/domain"
	"mpkai/internal/service"
	"mpkai/internal/session"
)

type fakeService struct {
	fragments   []string
	answer      domain.Answer
	invalidated atomic.Int32
	lastLang    atomic.Int32
}

func (f *fakeService) Ask(_ context.Context, _ string, lang domain.Language, onFragment func(string)) (domain.Answer, error) {
	f.lastLang.Store(int32(lang))
	for _, frag := range f.fragments {
		onFragment(frag)
	}
	a := f.answer
	a.Language = lang
	return a, nil
}

func (f *fakeService) Status(context.Context) service.Status {
	return service.Status{Ready: true, Chunks: 2, Digest: "PT MPK provides audits."}
}

func (f *fakeService) Invalidate()       { f.invalidated.Add(1) }
func (f *fakeService) CorpusDir() string { return "./data" }

// drain runs cmd and feeds the resulting messages back into the model until nothing is left.
func drain(t *testing.T, m *Model, cmd tea.Cmd) {
	t.Helper()
	for i := 0; cmd != nil && i < 100; i++ {
		msg := cmd()
		if msg == nil {
			return
		}
		_, cmd = m.Update(msg)
	}
}

func newModel(svc AskPort, dir string) *Model {
	m := New(svc, session.NewHistory(), Options{Language: domain.English, ExportDir: dir, ExportFormat: "txt"})
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	return m
}

func typeAndEnter(t *testing.T, m *Model, q string) {
	t.Helper()
	m.input.SetValue(q)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	drain(t, m, cmd)
}

func TestAsk_StreamsAndRecordsAnswer(t *testing.T) {
	svc := &fakeService{
		fragments: []string{"Founded ", "in 2010."},
		answer:    domain.Answer{TurnID: "t1", Text: "Founded in 2010.", Citations: []string{"Profile.pdf (page 3)"}, Outcome: domain.Answered},
	}
	m := newModel(svc, t.TempDir())
	typeAndEnter(t, m, "When was PT MPK founded?")

	msgs := m.history.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, session.RoleUser, msgs[0].Role)
	assert.Equal(t, "Founded in 2010.\n\n---\n**Sources:**\n- `Profile.pdf (page 3)`\n", msgs[1].Content)
	assert.False(t, m.pending)
	assert.Equal(t, "Answered with 1 source(s).", m.status)
	assert.Empty(t, m.input.Value())
}

func TestStaleTurnIsIgnored(t *testing.T) {
	m := newModel(&fakeService{}, t.TempDir())
	m.turn = 5
	m.pending = true
	m.Update(answerMsg{turn: 4, answer: domain.Answer{Text: "old"}})
	assert.Zero(t, m.history.Len())
	assert.True(t, m.pending)

	ch := make(chan tea.Msg)
	close(ch)
	m.Update(fragmentMsg{turn: 4, text: "old", ch: ch})
	assert.Empty(t, m.partial.String())
}

func TestToggleLanguage(t *testing.T) {
	svc := &fakeService{answer: domain.Answer{Outcome: domain.NoRelevantContext}}
	m := newModel(svc, t.TempDir())
	m.Update(tea.KeyMsg{Type: tea.KeyCtrlL})
	assert.Equal(t, domain.Indonesian, m.lang)

	typeAndEnter(t, m, "Siapa notarisnya?")
	assert.Equal(t, int32(domain.Indonesian), svc.lastLang.Load())
}

func TestResetClearsHistory(t *testing.T) {
	svc := &fakeService{answer: domain.Answer{Text: "x", Outcome: domain.Answered}}
	m := newModel(svc, t.TempDir())
	typeAndEnter(t, m, "q")
	require.Equal(t, 2, m.history.Len())

	m.Update(tea.KeyMsg{Type: tea.KeyCtrlN})
	assert.Zero(t, m.history.Len())
}

func TestReindexInvalidatesAndReloadsStatus(t *testing.T) {
	svc := &fakeService{}
	m := newModel(svc, t.TempDir())
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlR})
	drain(t, m, cmd)

	assert.Equal(t, int32(1), svc.invalidated.Load())
	require.NotNil(t, m.st)
	assert.Equal(t, "Ready: 2 chunks indexed.", m.status)
	assert.Contains(t, m.View(), "PT MPK provides audits.")
}

func TestExportWritesTranscript(t *testing.T) {
	dir := t.TempDir()
	svc := &fakeService{answer: domain.Answer{Text: "Data not found in MPK official documents.", Outcome: domain.NoRelevantContext}}
	m := newModel(svc, dir)
	typeAndEnter(t, m, "Where is the office?")

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlS})
	drain(t, m, cmd)

	data, err := os.ReadFile(filepath.Join(dir, "audit_log.txt"))
	require.NoError(t, err)
	assert.Equal(t, "USER: Where is the office?\nASSISTANT: Data not found in MPK official documents.", string(data))
}

func TestView_ShowsHistoryTitles(t *testing.T) {
	svc := &fakeService{answer: domain.Answer{Text: "x", Outcome: domain.Answered}}
	m := newModel(svc, t.TempDir())
	typeAndEnter(t, m, "Siapa notaris PT MPK dalam akta pendirian?")
	assert.Contains(t, m.View(), "1. Siapa notaris PT MPK dala...")
}

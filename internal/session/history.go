// Package session keeps the chat transcript of one conversation and exports it.
package session

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/xuri/excelize/v2"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"

	titleRunes = 25
)

// Message is one displayed turn half.
type Message struct {
	Role    string
	Content string
	TurnID  string
	At      time.Time
}

// History is an append-only transcript until Reset. Safe for concurrent use.
type History struct {
	mu       sync.RWMutex
	messages []Message
	now      func() time.Time
}

func NewHistory() *History {
	return &History{now: time.Now}
}

// Append records a message, stamping it with the current time if At is zero.
func (h *History) Append(m Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if m.At.IsZero() {
		m.At = h.now()
	}
	h.messages = append(h.messages, m)
}

// Reset clears the transcript.
func (h *History) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = nil
}

// Messages returns a copy of the transcript.
func (h *History) Messages() []Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Message, len(h.messages))
	copy(out, h.messages)
	return out
}

func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.messages)
}

// Titles returns a short title per user question: the first 25 runes followed by "..." when truncated.
func (h *History) Titles() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var titles []string
	for _, m := range h.messages {
		if m.Role == RoleUser {
			titles = append(titles, Title(m.Content))
		}
	}
	return titles
}

// Title shortens s to the sidebar title form.
func Title(s string) string {
	r := []rune(s)
	if len(r) <= titleRunes {
		return s
	}
	return string(r[:titleRunes]) + "..."
}

// FileName is the default export file name for format.
func FileName(format string) string {
	return "audit_log." + format
}

// Export writes the transcript in the given format: "txt" as "ROLE: content"
// lines, "xlsx" as a single-sheet workbook.
func (h *History) Export(w io.Writer, format string) error {
	msgs := h.Messages()
	switch format {
	case "txt":
		return exportText(w, msgs)
	case "xlsx":
		return exportExcel(w, msgs)
	default:
		return fmt.Errorf("unknown export format %q", format)
	}
}

func exportText(w io.Writer, msgs []Message) error {
	bw := bufio.NewWriter(w)
	for i, m := range msgs {
		if i > 0 {
			if err := bw.WriteByte('\n'); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(bw, "%s: %s", strings.ToUpper(m.Role), m.Content); err != nil {
			return err
		}
	}
	return bw.Flush()
}

const sheetName = "Transcript"

func exportExcel(w io.Writer, msgs []Message) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return err
	}

	headers := []any{"#", "Role", "Content", "Turn", "Timestamp"}
	if err := f.SetSheetRow(sheetName, "A1", &headers); err != nil {
		return err
	}
	for i, m := range msgs {
		row := []any{i + 1, strings.ToUpper(m.Role), m.Content, m.TurnID, m.At.Format("2006-01-02 15:04:05")}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return err
		}
	}
	if err := f.SetColWidth(sheetName, "C", "C", 80); err != nil {
		return err
	}
	_, err = f.WriteTo(w)
	return err
}

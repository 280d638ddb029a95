// Package prompt renders the grounded question prompt and the fixed,
// language-locked strings shown to the user.
package prompt

import (
	"fmt"
	"strconv"
	"strings"

	"mpkai/internal/domain"
)

const (
	DefaultName = "MPK-AI"
	DefaultRole = "You are MPK-AI, a professional audit assistant for PT MPK."
)

// DefaultRules is the standard operating procedure of the reference deployment.
// The output-language rule is always appended after these.
var DefaultRules = []string{
	"DISTINGUISH: Refizal, SH is the NOTARY, NOT the owner.",
	"SOURCES: Priority to '20251017_Company Profile_PT Mopakha.pdf'.",
	"TRUTH: Only answer based on context. Do not hallucinate.",
}

// Persona is the assistant's role text and rule list. It is fixed for the life of a Composer.
type Persona struct {
	Name  string
	Role  string
	Rules []string
}

// Composer renders prompts for one persona.
type Composer struct {
	name  string
	role  string
	rules []string
}

// NewComposer copies p, filling empty fields with the reference persona.
func NewComposer(p Persona) *Composer {
	c := &Composer{name: p.Name, role: p.Role}
	if c.name == "" {
		c.name = DefaultName
	}
	if c.role == "" {
		c.role = DefaultRole
	}
	rules := p.Rules
	if len(rules) == 0 {
		rules = DefaultRules
	}
	c.rules = append([]string(nil), rules...)
	return c
}

// Name is the assistant name used to label answers.
func (c *Composer) Name() string { return c.name }

// Compose renders the prompt. It has no side effects and is byte-stable for equal inputs.
// Retrieved chunks are included in the order given.
func (c *Composer) Compose(question string, retrieved []domain.SearchResult, lang domain.Language) string {
	instr := LanguageInstruction(lang)

	var b strings.Builder
	b.WriteString("CRITICAL INSTRUCTION: ")
	b.WriteString(instr)
	b.WriteString("\n\n")
	b.WriteString("SYSTEM ROLE: ")
	b.WriteString(c.role)
	b.WriteString("\n")
	b.WriteString("REFERENCE CONTEXT:\n")
	for i, r := range retrieved {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(r.Chunk.Text)
	}
	b.WriteString("\n")
	b.WriteString("---------------------\n")
	b.WriteString("STRICT SOP:\n")
	for i, rule := range c.rules {
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString(". ")
		b.WriteString(rule)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "%d. OUTPUT: Regardless of the question language, %s\n\n", len(c.rules)+1, instr)
	b.WriteString("Question: ")
	b.WriteString(question)
	b.WriteString("\n")
	b.WriteString(c.name)
	b.WriteString(" Answer: ")
	return b.String()
}

// LanguageInstruction is the output-language lock placed in the prompt.
func LanguageInstruction(lang domain.Language) string {
	if lang == domain.English {
		return "YOU MUST ANSWER IN ENGLISH ONLY."
	}
	return "WAJIB MENJAWAB DALAM BAHASA INDONESIA."
}

// NoDataMessage is the refusal returned when nothing relevant was retrieved.
func NoDataMessage(lang domain.Language) string {
	if lang == domain.English {
		return "Data not found in MPK official documents."
	}
	return "Data tidak ditemukan dalam dokumen resmi MPK."
}

// SourcesLabel heads the citation block.
func SourcesLabel(lang domain.Language) string {
	if lang == domain.English {
		return "Sources"
	}
	return "Sumber Data"
}

// SetupWarning tells the user where to put documents when no index is available.
func SetupWarning(dir string, lang domain.Language) string {
	if lang == domain.English {
		return fmt.Sprintf("Put data into the '%s' folder!", dir)
	}
	return fmt.Sprintf("Masukkan data ke folder '%s'!", dir)
}

// ErrorAnswer labels a failure for display in place of an answer.
func ErrorAnswer(err error) string {
	return "System Error: " + err.Error()
}

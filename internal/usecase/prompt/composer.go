// Package prompt builds the system prompt sent with every generated answer.
package prompt

import (
	"strings"

	"github.com/kailas-cloud/abai/internal/domain/language"
)

// Config holds the persona fragments the composer stitches together.
type Config struct {
	// SystemPrompt is the persona template written for the default language.
	SystemPrompt string
	// Clause is the sentence of SystemPrompt that names the answer language.
	Clause string
	// Substitutions replace Clause for non-default languages.
	Substitutions map[language.Code]string
	Header        string
	FactsPreamble string
	NoFacts       string
}

// Composer renders system prompts. It is safe for concurrent use.
type Composer struct {
	cfg Config
}

// New creates a composer. The template is trimmed once here.
func New(cfg Config) *Composer {
	cfg.SystemPrompt = strings.TrimSpace(cfg.SystemPrompt)
	subs := make(map[language.Code]string, len(cfg.Substitutions))
	for k, v := range cfg.Substitutions {
		subs[k] = v
	}
	cfg.Substitutions = subs
	return &Composer{cfg: cfg}
}

// Compose returns the persona prompt for lang followed by the context block.
// With no chunks the block tells the model to answer from general wisdom.
func (c *Composer) Compose(lang language.Code, chunks []string) string {
	var b strings.Builder
	b.WriteString(c.persona(lang.OrDefault()))
	b.WriteString("\n\n")
	b.WriteString(c.cfg.Header)
	b.WriteString("\n")
	if len(chunks) == 0 {
		b.WriteString(c.cfg.NoFacts)
		return b.String()
	}
	b.WriteString(c.cfg.FactsPreamble)
	b.WriteString("\n\n")
	b.WriteString(strings.Join(chunks, "\n\n"))
	return b.String()
}

func (c *Composer) persona(lang language.Code) string {
	sub, ok := c.cfg.Substitutions[lang]
	if !ok || c.cfg.Clause == "" {
		return c.cfg.SystemPrompt
	}
	return strings.Replace(c.cfg.SystemPrompt, c.cfg.Clause, sub, 1)
}

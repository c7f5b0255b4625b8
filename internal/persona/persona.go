// Package persona loads the static content the answer pipeline speaks with:
// system prompt, language rules, canned answers, knowledge corpus and apologies.
package persona

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/abai/internal/domain/faq"
	"github.com/kailas-cloud/abai/internal/domain/knowledge"
	"github.com/kailas-cloud/abai/internal/domain/language"
)

// Persona is the decoded persona file.
type Persona struct {
	SystemPrompt string            `yaml:"system_prompt"`
	Language     LanguageRules     `yaml:"language"`
	Context      ContextStrings    `yaml:"context"`
	Apologies    map[string]string `yaml:"apologies"`
	Complexity   Complexity        `yaml:"complexity"`
	FAQ          []TopicSpec       `yaml:"faq"`
	Knowledge    []string          `yaml:"knowledge"`
}

// LanguageRules describe the single substitution point of the system prompt.
type LanguageRules struct {
	Clause        string            `yaml:"clause"`
	Substitutions map[string]string `yaml:"substitutions"`
}

// ContextStrings are the fixed fragments around retrieved facts.
type ContextStrings struct {
	Header        string `yaml:"header"`
	FactsPreamble string `yaml:"facts_preamble"`
	NoFacts       string `yaml:"no_facts"`
}

// Complexity mirrors faq.ComplexityFilter.
type Complexity struct {
	Triggers       []string `yaml:"triggers"`
	MaxTokens      int      `yaml:"max_tokens"`
	PersonaName    string   `yaml:"persona_name"`
	MaxNamedLength int      `yaml:"max_named_length"`
}

// TopicSpec is one canned-answer topic.
type TopicSpec struct {
	ID        string   `yaml:"id"`
	Canonical []string `yaml:"canonical"`
	Response  string   `yaml:"response"`
}

// Load reads and validates a persona file.
func Load(path string) (*Persona, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read persona %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates persona YAML.
func Parse(data []byte) (*Persona, error) {
	var p Persona
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse persona: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid persona: %w", err)
	}
	return &p, nil
}

// Validate checks the persona for the invariants the pipeline relies on.
func (p *Persona) Validate() error {
	if strings.TrimSpace(p.SystemPrompt) == "" {
		return fmt.Errorf("system_prompt is required")
	}
	if len(p.Language.Substitutions) > 0 {
		if p.Language.Clause == "" {
			return fmt.Errorf("language.clause is required when substitutions are set")
		}
		if n := strings.Count(p.SystemPrompt, p.Language.Clause); n != 1 {
			return fmt.Errorf("language.clause must occur exactly once in system_prompt, found %d", n)
		}
	}
	for code := range p.Language.Substitutions {
		if _, err := language.Parse(code); err != nil {
			return fmt.Errorf("language.substitutions: %w", err)
		}
	}
	if p.Context.Header == "" || p.Context.FactsPreamble == "" || p.Context.NoFacts == "" {
		return fmt.Errorf("context.header, context.facts_preamble and context.no_facts are required")
	}
	for _, code := range []language.Code{language.Russian, language.Kazakh} {
		if strings.TrimSpace(p.Apologies[code.String()]) == "" {
			return fmt.Errorf("apologies.%s is required", code)
		}
	}
	seen := make(map[string]struct{}, len(p.FAQ))
	for _, t := range p.FAQ {
		if _, dup := seen[t.ID]; dup {
			return fmt.Errorf("duplicate faq topic %q", t.ID)
		}
		seen[t.ID] = struct{}{}
	}
	return nil
}

// Topics converts the FAQ section into domain topics, preserving order.
func (p *Persona) Topics() ([]faq.Topic, error) {
	topics := make([]faq.Topic, 0, len(p.FAQ))
	for _, ts := range p.FAQ {
		t, err := faq.New(ts.ID, ts.Canonical, strings.TrimSpace(ts.Response))
		if err != nil {
			return nil, fmt.Errorf("faq: %w", err)
		}
		topics = append(topics, t)
	}
	return topics, nil
}

// Chunks converts the knowledge section into domain chunks, preserving order.
func (p *Persona) Chunks() ([]knowledge.Chunk, error) {
	chunks := make([]knowledge.Chunk, 0, len(p.Knowledge))
	for i, text := range p.Knowledge {
		c, err := knowledge.New(i, strings.TrimSpace(text))
		if err != nil {
			return nil, fmt.Errorf("knowledge: %w", err)
		}
		chunks = append(chunks, c)
	}
	return chunks, nil
}

// ComplexityFilter returns the configured filter, falling back to the built-in
// one when the persona file has no triggers.
func (p *Persona) ComplexityFilter() faq.ComplexityFilter {
	if len(p.Complexity.Triggers) == 0 {
		return faq.DefaultComplexityFilter()
	}
	triggers := make([]string, 0, len(p.Complexity.Triggers))
	for _, t := range p.Complexity.Triggers {
		triggers = append(triggers, strings.ToLower(t))
	}
	return faq.ComplexityFilter{
		Triggers:       triggers,
		MaxTokens:      p.Complexity.MaxTokens,
		PersonaName:    strings.ToLower(p.Complexity.PersonaName),
		MaxNamedLength: p.Complexity.MaxNamedLength,
	}
}

// ApologiesByLanguage returns the fail-soft replies keyed by language.
func (p *Persona) ApologiesByLanguage() map[language.Code]string {
	out := make(map[language.Code]string, len(p.Apologies))
	for k, v := range p.Apologies {
		out[language.Code(k)] = v
	}
	return out
}

// Substitutions returns the clause replacements keyed by language.
func (p *Persona) Substitutions() map[language.Code]string {
	out := make(map[language.Code]string, len(p.Language.Substitutions))
	for k, v := range p.Language.Substitutions {
		out[language.Code(k)] = v
	}
	return out
}

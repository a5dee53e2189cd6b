package usecase

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"text/template"

	"gopkg.in/yaml.v3"

	"support-agent/internal/domain"
)

//go:embed prompts.yaml
var defaultPromptsYAML []byte

// promptFile is the on-disk shape of a prompt template document.
type promptFile struct {
	Categorize string            `yaml:"categorize"`
	Sentiment  string            `yaml:"sentiment"`
	Responders map[string]string `yaml:"responders"`
	Escalation string            `yaml:"escalation"`
}

// PromptSet holds parsed instruction templates. It is read-only after
// construction and safe for concurrent use.
type PromptSet struct {
	categorize *template.Template
	sentiment  *template.Template
	responders map[domain.Route]*template.Template
	escalation string
}

type promptData struct {
	Query      string
	Context    string
	Categories string
	Sentiments string
}

var defaultPrompts = sync.OnceValues(func() (*PromptSet, error) {
	return ParsePrompts(defaultPromptsYAML)
})

// DefaultPrompts returns the embedded prompt set.
func DefaultPrompts() (*PromptSet, error) {
	return defaultPrompts()
}

// LoadPromptsFile reads and parses a prompt document from path.
func LoadPromptsFile(path string) (*PromptSet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("usecase: read prompts file: %w", err)
	}
	return ParsePrompts(raw)
}

// ParsePrompts parses a YAML prompt document. Every template is required.
func ParsePrompts(raw []byte) (*PromptSet, error) {
	var pf promptFile
	if err := yaml.Unmarshal(raw, &pf); err != nil {
		return nil, fmt.Errorf("usecase: decode prompts: %w", err)
	}

	ps := &PromptSet{responders: make(map[domain.Route]*template.Template, 3)}
	var err error
	if ps.categorize, err = parseTemplate("categorize", pf.Categorize); err != nil {
		return nil, err
	}
	if ps.sentiment, err = parseTemplate("sentiment", pf.Sentiment); err != nil {
		return nil, err
	}
	for _, route := range []domain.Route{domain.RouteTechnical, domain.RouteBilling, domain.RouteGeneral} {
		tmpl, err := parseTemplate("responders."+string(route), pf.Responders[string(route)])
		if err != nil {
			return nil, err
		}
		ps.responders[route] = tmpl
	}
	ps.escalation = strings.TrimSpace(pf.Escalation)
	if ps.escalation == "" {
		return nil, errors.New("usecase: prompts: escalation text is required")
	}
	return ps, nil
}

func parseTemplate(name, text string) (*template.Template, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("usecase: prompts: %s template is required", name)
	}
	tmpl, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("usecase: prompts: parse %s: %w", name, err)
	}
	return tmpl, nil
}

func (p *PromptSet) categorizePrompt(query string) (string, error) {
	return render(p.categorize, promptData{Query: query, Categories: joinLabels(domain.Categories)})
}

func (p *PromptSet) sentimentPrompt(query string) (string, error) {
	return render(p.sentiment, promptData{Query: query, Sentiments: joinLabels(domain.Sentiments)})
}

func (p *PromptSet) responderPrompt(route domain.Route, query string, window []domain.ConversationTurn) (string, error) {
	tmpl, ok := p.responders[route]
	if !ok {
		tmpl = p.responders[domain.RouteGeneral]
	}
	return render(tmpl, promptData{Query: query, Context: buildContextBlock(window)})
}

// EscalationText is the canned hand-off reply.
func (p *PromptSet) EscalationText() string {
	return p.escalation
}

func render(tmpl *template.Template, data promptData) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("usecase: render %s prompt: %w", tmpl.Name(), err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// buildContextBlock renders prior turns with speaker prefixes. An empty
// window renders nothing.
func buildContextBlock(window []domain.ConversationTurn) string {
	if len(window) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Previous conversation:\n")
	for _, t := range window {
		switch t.Role {
		case domain.RoleUser:
			b.WriteString("Customer: ")
		case domain.RoleAgent:
			b.WriteString("Agent: ")
		default:
			continue
		}
		b.WriteString(normalizePromptInput(t.Content))
		b.WriteString("\n")
	}
	return b.String()
}

func joinLabels[T ~string](labels []T) string {
	parts := make([]string, len(labels))
	for i, l := range labels {
		parts[i] = string(l)
	}
	return strings.Join(parts, ", ")
}

func normalizePromptInput(s string) string {
	return strings.Join(strings.Fields(strings.TrimSpace(s)), " ")
}

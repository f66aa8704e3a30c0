package templates

import (
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"github.com/innerpath/studio/internal/domain"
	"github.com/osteele/liquid"
)

// mergeTags are the variables a template may reference. Anything else is
// flagged during validation.
var mergeTags = map[string]bool{
	"name":       true,
	"first_name": true,
	"email":      true,
	"archetype":  true,
}

// ValidationWarning flags a questionable variable in a template.
type ValidationWarning struct {
	Variable string `json:"variable"`
	Message  string `json:"message"`
}

// PreviewResult carries the rendered subject and body plus any warnings.
type PreviewResult struct {
	Subject  string              `json:"subject"`
	Body     string              `json:"body"`
	Warnings []ValidationWarning `json:"warnings,omitempty"`
	Success  bool                `json:"success"`
}

// Engine renders previews. Parsed templates are cached by content.
type Engine struct {
	engine *liquid.Engine
	cache  sync.Map // map[string]*liquid.Template
}

// NewEngine creates a preview engine with the studio filter set.
func NewEngine() *Engine {
	e := &Engine{engine: liquid.NewEngine()}
	e.registerFilters()
	return e
}

func (e *Engine) registerFilters() {
	// {{ first_name | default: "there" }}
	e.engine.RegisterFilter("default", func(value interface{}, defaultVal string) interface{} {
		if value == nil {
			return defaultVal
		}
		s := fmt.Sprintf("%v", value)
		if s == "" || s == "<nil>" {
			return defaultVal
		}
		return value
	})

	// {{ archetype | capitalize }}
	e.engine.RegisterFilter("capitalize", func(s string) string {
		if len(s) == 0 {
			return s
		}
		return strings.ToUpper(string(s[0])) + s[1:]
	})

	// {{ email | urlencode }}
	e.engine.RegisterFilter("urlencode", func(s string) string {
		return url.QueryEscape(s)
	})

	// {{ name | escape }}
	e.engine.RegisterFilter("escape", func(s string) string {
		return html.EscapeString(s)
	})
}

// Context builds the render context for a lead. A nil lead yields sample
// values so admins can preview before any real lead exists.
func Context(lead *domain.Lead) map[string]interface{} {
	if lead == nil {
		return map[string]interface{}{
			"name":       "Sample Lead",
			"first_name": "Sample",
			"email":      "sample@example.com",
			"archetype":  "visionary",
		}
	}
	archetype := ""
	if lead.QuizResult != nil {
		archetype = *lead.QuizResult
	}
	return map[string]interface{}{
		"name":       lead.DisplayName(),
		"first_name": lead.FirstName(),
		"email":      lead.Email,
		"archetype":  archetype,
	}
}

// Validate parses the template and reports syntax errors plus any variables
// outside the supported merge-tag set.
func (e *Engine) Validate(templateStr string) ([]ValidationWarning, error) {
	if _, err := e.engine.ParseString(templateStr); err != nil {
		return nil, fmt.Errorf("parse template: %w", err)
	}
	return unknownVariables(templateStr), nil
}

// Preview renders a template's subject and body against a lead. Rendering is
// strict: a parse or render error fails the preview rather than falling back.
func (e *Engine) Preview(subject, body string, lead *domain.Lead) (*PreviewResult, error) {
	ctx := Context(lead)

	renderedSubject, err := e.render(subject, ctx)
	if err != nil {
		return nil, fmt.Errorf("render subject: %w", err)
	}
	renderedBody, err := e.render(body, ctx)
	if err != nil {
		return nil, fmt.Errorf("render body: %w", err)
	}

	warnings := append(unknownVariables(subject), unknownVariables(body)...)
	return &PreviewResult{
		Subject:  renderedSubject,
		Body:     renderedBody,
		Warnings: warnings,
		Success:  len(warnings) == 0,
	}, nil
}

func (e *Engine) render(templateStr string, ctx map[string]interface{}) (string, error) {
	if cached, ok := e.cache.Load(templateStr); ok {
		return cached.(*liquid.Template).RenderString(ctx)
	}
	tpl, err := e.engine.ParseString(templateStr)
	if err != nil {
		return "", err
	}
	e.cache.Store(templateStr, tpl)
	return tpl.RenderString(ctx)
}

// varPattern matches {{ var }}, {{ var | filter }} and {{ var.nested }}.
var varPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z_][a-zA-Z0-9_.]*?)(?:\s*\||\s*\}\})`)

func unknownVariables(templateStr string) []ValidationWarning {
	var warnings []ValidationWarning
	seen := make(map[string]bool)
	for _, match := range varPattern.FindAllStringSubmatch(templateStr, -1) {
		name := strings.TrimSpace(match[1])
		if seen[name] {
			continue
		}
		seen[name] = true
		root := strings.SplitN(name, ".", 2)[0]
		if mergeTags[root] {
			continue
		}
		warnings = append(warnings, ValidationWarning{
			Variable: name,
			Message:  fmt.Sprintf("'%s' is not a supported merge tag", name),
		})
	}
	return warnings
}

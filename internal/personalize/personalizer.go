package personalize

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/innerpath/studio/internal/domain"
	"github.com/innerpath/studio/internal/pkg/httpretry"
	"github.com/innerpath/studio/internal/pkg/logger"
	openai "github.com/sashabaranov/go-openai"
)

// chatClient is the slice of the OpenAI client the personalizer uses.
type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Personalizer rewrites template subject/body for a specific lead via an
// LLM. A nil *Personalizer is valid and reports Enabled() == false.
type Personalizer struct {
	client     chatClient
	model      string
	brandVoice string
}

// Rewrite is a successful LLM rewrite of one template.
type Rewrite struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// GenerationContext records how a queue entry's content was produced. It is
// serialized into the entry's generation_context column.
type GenerationContext struct {
	Model      string `json:"model,omitempty"`
	PromptHash string `json:"prompt_hash,omitempty"`
	Fallback   bool   `json:"fallback"`
	Error      string `json:"error,omitempty"`
}

// New creates a Personalizer. Returns nil when apiKey is empty, which the
// drainer treats as personalization disabled.
func New(apiKey, model, brandVoice string, timeout time.Duration) *Personalizer {
	if apiKey == "" {
		return nil
	}
	cfg := openai.DefaultConfig(apiKey)
	cfg.HTTPClient = httpretry.NewRetryClient(&http.Client{Timeout: timeout}, 2)
	return &Personalizer{
		client:     openai.NewClientWithConfig(cfg),
		model:      model,
		brandVoice: brandVoice,
	}
}

// Enabled reports whether LLM rewrites are available.
func (p *Personalizer) Enabled() bool { return p != nil }

const defaultBrandVoice = "You write warm, grounded emails for a wellness coaching practice. " +
	"Keep the sender's intent and any links intact. Never invent offers or claims."

// Rewrite asks the LLM to adapt the template for the lead, following the
// template's personalization instructions. The model must answer with a JSON
// object {"subject","body"}; merge tags in the output are preserved for the
// later substitution pass.
func (p *Personalizer) Rewrite(ctx context.Context, lead *domain.Lead, tmpl *domain.Template) (*Rewrite, error) {
	if p == nil {
		return nil, fmt.Errorf("personalizer not configured")
	}

	voice := p.brandVoice
	if voice == "" {
		voice = defaultBrandVoice
	}

	prompt := p.buildPrompt(lead, tmpl)
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.model,
		Temperature: 0.7,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: voice},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("empty completion response")
	}

	rewrite, err := parseRewrite(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}

	logger.Debug("template rewritten",
		"template_id", tmpl.ID, "lead_id", lead.ID, "model", p.model)
	return rewrite, nil
}

// Context builds the generation context for a rewrite outcome.
func (p *Personalizer) Context(lead *domain.Lead, tmpl *domain.Template, rewriteErr error) GenerationContext {
	gc := GenerationContext{Fallback: rewriteErr != nil}
	if rewriteErr != nil {
		gc.Error = rewriteErr.Error()
	}
	if p != nil {
		gc.Model = p.model
		sum := sha256.Sum256([]byte(p.buildPrompt(lead, tmpl)))
		gc.PromptHash = hex.EncodeToString(sum[:8])
	}
	return gc
}

func (p *Personalizer) buildPrompt(lead *domain.Lead, tmpl *domain.Template) string {
	var b strings.Builder
	b.WriteString("Rewrite the following email for this recipient.\n\nRecipient:\n")
	fmt.Fprintf(&b, "- Name: %s\n", lead.DisplayName())
	if lead.QuizResult != nil && *lead.QuizResult != "" {
		fmt.Fprintf(&b, "- Archetype: %s\n", *lead.QuizResult)
	}
	fmt.Fprintf(&b, "- Entered through: %s\n", lead.Source)

	if tmpl.PersonalizationPrompt != nil && *tmpl.PersonalizationPrompt != "" {
		fmt.Fprintf(&b, "\nInstructions:\n%s\n", *tmpl.PersonalizationPrompt)
	}

	fmt.Fprintf(&b, "\nSubject:\n%s\n\nBody:\n%s\n", tmpl.Subject, tmpl.Body)
	b.WriteString("\nKeep merge tags like {{name}} exactly as written. " +
		`Respond with only a JSON object: {"subject": "...", "body": "..."}`)
	return b.String()
}

// parseRewrite decodes the model's JSON answer, tolerating the markdown code
// fences models wrap JSON in despite instructions.
func parseRewrite(content string) (*Rewrite, error) {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(strings.TrimSpace(content), "```")
		content = strings.TrimSpace(content)
	}

	var r Rewrite
	if err := json.Unmarshal([]byte(content), &r); err != nil {
		return nil, fmt.Errorf("parse rewrite response: %w", err)
	}
	if r.Subject == "" || r.Body == "" {
		return nil, fmt.Errorf("rewrite response missing subject or body")
	}
	return &r, nil
}

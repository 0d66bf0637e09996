package agent

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/caucus-ai/caucus/internal/types"
)

// DefaultModel is the model AI teams use unless configured otherwise.
const DefaultModel = "claude-sonnet-4-5-20250929"

// AIConfig holds configuration shared by AI teams and critics.
type AIConfig struct {
	APIKey    string // If empty, reads ANTHROPIC_API_KEY
	Model     string // Default: DefaultModel
	MaxTokens int64  // Default: 2048
}

func newClient(cfg *AIConfig) (*anthropic.Client, string, int64, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, "", 0, fmt.Errorf("ANTHROPIC_API_KEY not set")
		}
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &client, model, maxTokens, nil
}

func responseText(message *anthropic.Message) string {
	var sb strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String()
}

// AITeam is a model-backed team. Each team carries a role prompt that
// shapes its perspective on the shared objective.
type AITeam struct {
	id        string
	role      string
	client    *anthropic.Client
	model     string
	maxTokens int64
}

// NewAITeam creates a model-backed team.
func NewAITeam(id, role string, cfg *AIConfig) (*AITeam, error) {
	if id == "" {
		return nil, fmt.Errorf("team ID is required")
	}
	client, model, maxTokens, err := newClient(cfg)
	if err != nil {
		return nil, err
	}
	return &AITeam{id: id, role: role, client: client, model: model, maxTokens: maxTokens}, nil
}

// ID returns the team identity.
func (t *AITeam) ID() string { return t.id }

// Invoke sends the objective to the model and returns its answer. Cost
// is reported in thousands of tokens; quality is the model's own
// self-assessment, clamped to [0, 1].
func (t *AITeam) Invoke(ctx context.Context, objective string, teamCtx map[string]string) (*types.TeamResult, error) {
	prompt := t.buildPrompt(objective, teamCtx)
	response, err := t.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(t.model),
		MaxTokens: t.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic API call failed: %w", err)
	}

	text := responseText(response)
	quality := parseTaggedFloat(text, "QUALITY:", 0.5)
	cost := float64(response.Usage.InputTokens+response.Usage.OutputTokens) / 1000.0
	return &types.TeamResult{
		Text:    stripTag(text, "QUALITY:"),
		Quality: quality,
		Cost:    cost,
	}, nil
}

func (t *AITeam) buildPrompt(objective string, teamCtx map[string]string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are the %q member of an agent team. Your role: %s.\n\n", t.id, t.role)
	fmt.Fprintf(&sb, "Objective: %s\n", objective)
	for key, value := range teamCtx {
		fmt.Fprintf(&sb, "Context %s: %s\n", key, value)
	}
	sb.WriteString("\nRespond with your contribution. End with a line \"QUALITY: <0.0-1.0>\" rating your own confidence in the answer.\n")
	return sb.String()
}

// AICritic is a model-backed critic.
type AICritic struct {
	id        string
	charter   string
	client    *anthropic.Client
	model     string
	maxTokens int64
}

// NewAICritic creates a model-backed critic. The charter describes what
// the critic reviews for.
func NewAICritic(id, charter string, cfg *AIConfig) (*AICritic, error) {
	if id == "" {
		return nil, fmt.Errorf("critic ID is required")
	}
	client, model, maxTokens, err := newClient(cfg)
	if err != nil {
		return nil, err
	}
	return &AICritic{id: id, charter: charter, client: client, model: model, maxTokens: maxTokens}, nil
}

// ID returns the critic identity.
func (c *AICritic) ID() string { return c.id }

// Evaluate asks the model for a verdict. Responses missing the expected
// tags default to an informational verdict with unstated credibility.
func (c *AICritic) Evaluate(ctx context.Context, candidate types.Candidate) (*types.CriticVerdict, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are a critic reviewing a %s. Your charter: %s.\n\n", candidate.Kind, c.charter)
	fmt.Fprintf(&sb, "Objective: %s\n\nCandidate:\n%s\n\n", candidate.Objective, candidate.Content)
	sb.WriteString("Reply with exactly three lines:\nSEVERITY: info|warning|critical\nCREDIBILITY: <0.0-1.0>\nRATIONALE: <one sentence>\n")

	response, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(sb.String())),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic API call failed: %w", err)
	}

	text := responseText(response)
	verdict := &types.CriticVerdict{
		CriticID:    c.id,
		Severity:    parseSeverity(text),
		Credibility: parseTaggedFloat(text, "CREDIBILITY:", -1),
		Rationale:   parseTaggedLine(text, "RATIONALE:"),
	}
	return verdict, nil
}

func parseSeverity(text string) types.Severity {
	switch strings.ToLower(parseTaggedLine(text, "SEVERITY:")) {
	case "critical":
		return types.SeverityCritical
	case "warning", "warn":
		return types.SeverityWarn
	default:
		return types.SeverityInfo
	}
}

func parseTaggedLine(text, tag string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, tag) {
			return strings.TrimSpace(strings.TrimPrefix(line, tag))
		}
	}
	return ""
}

func parseTaggedFloat(text, tag string, fallback float64) float64 {
	raw := parseTaggedLine(text, tag)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}

func stripTag(text, tag string) string {
	var kept []string
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), tag) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

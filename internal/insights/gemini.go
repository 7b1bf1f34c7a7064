package insights

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

const geminiModel = "gemini-2.5-flash"

// Narrator turns a set of insights into a short management summary.
// Implementations may return an empty string when unavailable.
type Narrator interface {
	Narrate(ctx context.Context, insights []Insight) (string, error)
}

type noopNarrator struct{}

func (noopNarrator) Narrate(context.Context, []Insight) (string, error) { return "", nil }

// NewNarrator wires the Gemini-backed narrator when an API key is
// configured and falls back to a no-op otherwise.
func NewNarrator(apiKey string, log *zap.Logger) Narrator {
	if apiKey == "" {
		return noopNarrator{}
	}
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		log.Warn("genai client init failed, narrative disabled", zap.Error(err))
		return noopNarrator{}
	}
	return &geminiNarrator{client: client, log: log}
}

type geminiNarrator struct {
	client *genai.Client
	log    *zap.Logger
}

const narratorInstruction = "You are an HR analytics assistant. Summarize the findings " +
	"below for a people-operations leader in at most four sentences. Be factual, " +
	"reference the modules by name, and end with the single most urgent next step."

func (g *geminiNarrator) Narrate(ctx context.Context, insights []Insight) (string, error) {
	if len(insights) == 0 {
		return "", nil
	}

	var b strings.Builder
	for _, insight := range insights {
		fmt.Fprintf(&b, "- [%s/%s] %s: %s\n", insight.Module, insight.Severity, insight.Title, insight.Description)
	}

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(narratorInstruction, genai.RoleUser),
	}
	result, err := g.client.Models.GenerateContent(ctx, geminiModel, genai.Text(b.String()), config)
	if err != nil {
		return "", fmt.Errorf("generate narrative: %w", err)
	}
	return result.Text(), nil
}

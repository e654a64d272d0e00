package summary

import (
	"context"
	"fmt"
	"strings"
)

// TextGenerator is the external model the generated strategy delegates
// to. The host process owns the actual client.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Generated is the model-backed strategy. It feeds the same inputs as
// the extractive default into a generation prompt.
type Generated struct {
	generator TextGenerator
}

// NewGenerated creates the model-backed strategy.
func NewGenerated(generator TextGenerator) (*Generated, error) {
	if generator == nil {
		return nil, fmt.Errorf("text generator required")
	}
	return &Generated{generator: generator}, nil
}

// Summarize builds a generation prompt from the conversations and
// delegates to the text generator.
func (g *Generated) Summarize(ctx context.Context, in Inputs) (string, error) {
	if len(in.Conversations) == 0 {
		return "", fmt.Errorf("no conversations to summarize")
	}

	var b strings.Builder
	b.WriteString("Summarize this user's recent assistant conversations into a short profile ")
	b.WriteString("covering their main topics, preferred agents, and working patterns.\n\n")
	if prev := strings.TrimSpace(in.PreviousSummary); prev != "" {
		b.WriteString("Previous summary for continuity:\n")
		b.WriteString(prev)
		b.WriteString("\n\n")
	}
	b.WriteString("Conversations:\n")
	for _, conv := range in.Conversations {
		fmt.Fprintf(&b, "- [%s] %s\n", conv.AgentID, strings.TrimSpace(conv.Prompt))
	}

	out, err := g.generator.Generate(ctx, b.String())
	if err != nil {
		return "", fmt.Errorf("generate summary: %w", err)
	}
	if strings.TrimSpace(out) == "" {
		return "", fmt.Errorf("generator returned empty summary")
	}
	return out, nil
}

package summary

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/augmentd/internal/repository"
)

func conv(agentID, prompt string, at time.Time) repository.Execution {
	return repository.Execution{AgentID: agentID, Prompt: prompt, Success: true, CreatedAt: at}
}

func TestExtractiveSummarize(t *testing.T) {
	morning := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	convs := []repository.Execution{
		conv("coder", "refactor the billing service", morning),
		conv("coder", "add tests to the billing service", morning.Add(30*time.Minute)),
		conv("planner", "plan the billing migration", morning.Add(time.Hour)),
	}

	got, err := NewExtractive().Summarize(context.Background(), Inputs{UserID: "u1", Conversations: convs})
	require.NoError(t, err)

	assert.Contains(t, got, "## Frequent Topics")
	assert.Contains(t, got, "billing", "the dominant topic must be reported")
	assert.Contains(t, got, "## Agent Usage")
	assert.Contains(t, got, "coder (2 conversations)")
	assert.Contains(t, got, "planner (1 conversations)")
	assert.Contains(t, got, "Most active: mornings")
	assert.NotContains(t, got, "## Carried Forward")
}

func TestExtractiveSummarizeDeterministic(t *testing.T) {
	now := time.Now()
	convs := []repository.Execution{
		conv("a", "alpha beta gamma", now),
		conv("b", "beta gamma delta", now),
	}
	in := Inputs{UserID: "u1", Conversations: convs}

	first, err := NewExtractive().Summarize(context.Background(), in)
	require.NoError(t, err)
	second, err := NewExtractive().Summarize(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestExtractiveSummarizeCarriesPreviousForward(t *testing.T) {
	got, err := NewExtractive().Summarize(context.Background(), Inputs{
		UserID:          "u1",
		Conversations:   []repository.Execution{conv("coder", "deploy the api", time.Now())},
		PreviousSummary: "User focuses on infrastructure.\nPrefers short answers.",
	})
	require.NoError(t, err)
	assert.Contains(t, got, "## Carried Forward")
	assert.Contains(t, got, "User focuses on infrastructure.")
}

func TestExtractiveSummarizeEmptyInput(t *testing.T) {
	_, err := NewExtractive().Summarize(context.Background(), Inputs{UserID: "u1"})
	assert.Error(t, err)
}

type fakeGenerator struct {
	out        string
	err        error
	lastPrompt string
}

func (f *fakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	f.lastPrompt = prompt
	return f.out, f.err
}

func TestGeneratedSummarize(t *testing.T) {
	gen := &fakeGenerator{out: "A concise profile."}
	g, err := NewGenerated(gen)
	require.NoError(t, err)

	got, err := g.Summarize(context.Background(), Inputs{
		UserID:          "u1",
		Conversations:   []repository.Execution{conv("coder", "tune the cache", time.Now())},
		PreviousSummary: "Earlier profile text.",
	})

	require.NoError(t, err)
	assert.Equal(t, "A concise profile.", got)
	assert.Contains(t, gen.lastPrompt, "tune the cache")
	assert.Contains(t, gen.lastPrompt, "Earlier profile text.")
}

func TestGeneratedSummarizeErrors(t *testing.T) {
	_, err := NewGenerated(nil)
	assert.Error(t, err)

	g, err := NewGenerated(&fakeGenerator{err: errors.New("model down")})
	require.NoError(t, err)
	_, err = g.Summarize(context.Background(), Inputs{
		Conversations: []repository.Execution{conv("a", "x", time.Now())},
	})
	assert.Error(t, err)

	g, err = NewGenerated(&fakeGenerator{out: "   "})
	require.NoError(t, err)
	_, err = g.Summarize(context.Background(), Inputs{
		Conversations: []repository.Execution{conv("a", "x", time.Now())},
	})
	assert.Error(t, err)
}

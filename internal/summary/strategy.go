package summary

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/fyrsmithlabs/augmentd/internal/repository"
)

// Inputs is everything a strategy may use to produce a summary.
type Inputs struct {
	UserID        string
	Conversations []repository.Execution

	// PreviousSummary carries the last summary forward for continuity.
	// Empty for a first summary.
	PreviousSummary string
}

// Strategy produces a user summary from recent conversations. The
// extractive default is purely statistical; the generated alternative
// delegates to an external text generator. Both satisfy this interface.
type Strategy interface {
	Summarize(ctx context.Context, in Inputs) (string, error)
}

// Extractive is the default, model-free strategy: keyword and topic
// frequency, an agent-usage histogram, and activity time-of-day buckets.
type Extractive struct {
	// TopTopics caps the number of topic keywords reported.
	TopTopics int
}

// NewExtractive creates the default strategy.
func NewExtractive() *Extractive {
	return &Extractive{TopTopics: 5}
}

// stopwords are dropped before topic counting. Minimal English set plus
// prompt filler.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"but": {}, "by": {}, "can": {}, "do": {}, "for": {}, "from": {},
	"get": {}, "have": {}, "how": {}, "i": {}, "in": {}, "is": {}, "it": {},
	"me": {}, "my": {}, "of": {}, "on": {}, "or": {}, "please": {},
	"should": {}, "that": {}, "the": {}, "this": {}, "to": {}, "use": {},
	"want": {}, "we": {}, "what": {}, "when": {}, "where": {}, "which": {},
	"why": {}, "will": {}, "with": {}, "would": {}, "you": {},
}

// Summarize builds a sectioned, human-readable summary.
func (e *Extractive) Summarize(_ context.Context, in Inputs) (string, error) {
	if len(in.Conversations) == 0 {
		return "", fmt.Errorf("no conversations to summarize")
	}
	topN := e.TopTopics
	if topN <= 0 {
		topN = 5
	}

	var b strings.Builder

	b.WriteString("## Overview\n")
	fmt.Fprintf(&b, "Summary of the user's last %d conversations.\n\n", len(in.Conversations))

	if topics := topTopics(in.Conversations, topN); len(topics) > 0 {
		b.WriteString("## Frequent Topics\n")
		b.WriteString(strings.Join(topics, ", "))
		b.WriteString("\n\n")
	}

	b.WriteString("## Agent Usage\n")
	for _, line := range agentHistogram(in.Conversations) {
		b.WriteString("- ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("\n")

	b.WriteString("## Activity Pattern\n")
	fmt.Fprintf(&b, "Most active: %s.\n", dominantTimeOfDay(in.Conversations))

	if prev := strings.TrimSpace(in.PreviousSummary); prev != "" {
		b.WriteString("\n## Carried Forward\n")
		b.WriteString(firstLines(prev, 3))
		b.WriteString("\n")
	}

	return strings.TrimRight(b.String(), "\n"), nil
}

// topTopics counts non-stopword terms across prompts and returns the
// most frequent, ties broken alphabetically for determinism.
func topTopics(convs []repository.Execution, limit int) []string {
	freq := make(map[string]int)
	for _, conv := range convs {
		for _, word := range strings.Fields(strings.ToLower(conv.Prompt)) {
			word = strings.Trim(word, ".,;:!?\"'()[]{}")
			if len(word) < 3 {
				continue
			}
			if _, ok := stopwords[word]; ok {
				continue
			}
			freq[word]++
		}
	}

	words := make([]string, 0, len(freq))
	for word := range freq {
		words = append(words, word)
	}
	sort.Slice(words, func(i, j int) bool {
		if freq[words[i]] != freq[words[j]] {
			return freq[words[i]] > freq[words[j]]
		}
		return words[i] < words[j]
	})
	if len(words) > limit {
		words = words[:limit]
	}
	return words
}

// agentHistogram formats per-agent usage counts, most used first.
func agentHistogram(convs []repository.Execution) []string {
	counts := make(map[string]int)
	for _, conv := range convs {
		agent := conv.AgentID
		if agent == "" {
			agent = "unknown"
		}
		counts[agent]++
	}

	agents := make([]string, 0, len(counts))
	for agent := range counts {
		agents = append(agents, agent)
	}
	sort.Slice(agents, func(i, j int) bool {
		if counts[agents[i]] != counts[agents[j]] {
			return counts[agents[i]] > counts[agents[j]]
		}
		return agents[i] < agents[j]
	})

	lines := make([]string, len(agents))
	for i, agent := range agents {
		lines[i] = fmt.Sprintf("%s (%d conversations)", agent, counts[agent])
	}
	return lines
}

// dominantTimeOfDay buckets conversation times and names the busiest
// bucket.
func dominantTimeOfDay(convs []repository.Execution) string {
	buckets := map[string]int{}
	for _, conv := range convs {
		switch h := conv.CreatedAt.Hour(); {
		case h >= 5 && h < 12:
			buckets["mornings"]++
		case h >= 12 && h < 17:
			buckets["afternoons"]++
		case h >= 17 && h < 22:
			buckets["evenings"]++
		default:
			buckets["nights"]++
		}
	}

	names := []string{"mornings", "afternoons", "evenings", "nights"}
	best := names[0]
	for _, name := range names[1:] {
		if buckets[name] > buckets[best] {
			best = name
		}
	}
	return best
}

func firstLines(s string, n int) string {
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[:n]
	}
	return strings.Join(lines, "\n")
}

package augment

import (
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/augmentd/internal/repository"
	"github.com/fyrsmithlabs/augmentd/internal/vectorstore"
)

// scaffold is the prompt every augmented context starts from. With no
// retrievable context at all, the system prompt is exactly this string.
const scaffold = "You are a helpful assistant. Use the context below when it is relevant to the user's request."

// Section headers, in their fixed assembly order.
const (
	headerBackground    = "## User Background"
	headerProfile       = "## User Profile"
	headerSummary       = "## Recent Activity Summary"
	headerRules         = "## Applicable Rules"
	headerConversations = "## Relevant Prior Conversations"
	headerFewShot       = "## Few-Shot Examples"
	headerAntiPatterns  = "## Anti-Pattern Warnings"
)

// resultPreviewLimit caps how much of a prior result is quoted in the
// prompt.
const resultPreviewLimit = 300

// promptInputs carries everything the assembly step may include.
type promptInputs struct {
	background    string
	profile       string
	summary       string
	rules         []repository.Rule
	conversations []vectorstore.ScoredConversation
	fewShot       []repository.Exemplar
	antiPatterns  []repository.CategoryCount
}

// assemblePrompt concatenates the scaffold and the non-empty sections in
// fixed order. An empty section is omitted entirely, never emitted as an
// empty header.
func assemblePrompt(in promptInputs) string {
	sections := []string{scaffold}

	if s := strings.TrimSpace(in.background); s != "" {
		sections = append(sections, headerBackground+"\n"+s)
	}
	if s := strings.TrimSpace(in.profile); s != "" {
		sections = append(sections, headerProfile+"\n"+s)
	}
	if s := strings.TrimSpace(in.summary); s != "" {
		sections = append(sections, headerSummary+"\n"+s)
	}
	if s := renderRules(in.rules); s != "" {
		sections = append(sections, headerRules+"\n"+s)
	}
	if s := renderConversations(in.conversations); s != "" {
		sections = append(sections, headerConversations+"\n"+s)
	}
	if s := renderFewShot(in.fewShot); s != "" {
		sections = append(sections, headerFewShot+"\n"+s)
	}
	if s := renderAntiPatterns(in.antiPatterns); s != "" {
		sections = append(sections, headerAntiPatterns+"\n"+s)
	}

	return strings.Join(sections, "\n\n")
}

func renderRules(rules []repository.Rule) string {
	var lines []string
	for i, rule := range rules {
		body := strings.TrimSpace(rule.Body)
		if body == "" {
			continue
		}
		if title := strings.TrimSpace(rule.Title); title != "" {
			lines = append(lines, fmt.Sprintf("%d. %s: %s", i+1, title, body))
		} else {
			lines = append(lines, fmt.Sprintf("%d. %s", i+1, body))
		}
	}
	return strings.Join(lines, "\n")
}

func renderConversations(hits []vectorstore.ScoredConversation) string {
	var blocks []string
	for _, hit := range hits {
		prompt := strings.TrimSpace(hit.Record.Prompt)
		if prompt == "" {
			continue
		}
		var b strings.Builder
		fmt.Fprintf(&b, "- (agent %s, similarity %.2f) %s", hit.Record.AgentID, hit.Score, prompt)
		if result := truncate(hit.Record.Result, resultPreviewLimit); result != "" {
			fmt.Fprintf(&b, "\n  Outcome: %s", result)
		}
		blocks = append(blocks, b.String())
	}
	return strings.Join(blocks, "\n")
}

func renderFewShot(exemplars []repository.Exemplar) string {
	var blocks []string
	for i, ex := range exemplars {
		prompt := strings.TrimSpace(ex.Prompt)
		response := strings.TrimSpace(ex.Response)
		if prompt == "" || response == "" {
			continue
		}
		blocks = append(blocks, fmt.Sprintf("Example %d:\nUser: %s\nAssistant: %s", i+1, prompt, response))
	}
	return strings.Join(blocks, "\n\n")
}

func renderAntiPatterns(categories []repository.CategoryCount) string {
	var lines []string
	for _, c := range categories {
		if strings.TrimSpace(c.Category) == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("- %s (reported %d times)", c.Category, c.Count))
	}
	if len(lines) == 0 {
		return ""
	}
	return "Avoid these recurring issues from past feedback:\n" + strings.Join(lines, "\n")
}

func truncate(s string, limit int) string {
	s = strings.TrimSpace(s)
	if len(s) <= limit {
		return s
	}
	cut := s[:limit]
	if i := strings.LastIndexByte(cut, ' '); i > limit/2 {
		cut = cut[:i]
	}
	return cut + "..."
}

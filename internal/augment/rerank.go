package augment

import (
	"sort"
	"time"

	"github.com/fyrsmithlabs/augmentd/internal/vectorstore"
)

// Recency boost tiers. Each bucket further from now receives less boost;
// results older than a week get none.
const (
	boostUnderHour = 1.10
	boostUnderDay  = 1.05
	boostUnderWeek = 1.02
)

// Reranker adjusts retrieved similarity scores before sorting: a
// same-agent match and recency both multiply the score, clamped back to
// the valid similarity range.
type Reranker struct {
	sameAgentBoost float64
	now            func() time.Time
}

// NewReranker creates a reranker. A boost of 0 falls back to 1.15.
func NewReranker(sameAgentBoost float64) *Reranker {
	if sameAgentBoost <= 0 {
		sameAgentBoost = 1.15
	}
	return &Reranker{sameAgentBoost: sameAgentBoost, now: time.Now}
}

func recencyBoost(age time.Duration) float64 {
	switch {
	case age < time.Hour:
		return boostUnderHour
	case age < 24*time.Hour:
		return boostUnderDay
	case age < 7*24*time.Hour:
		return boostUnderWeek
	default:
		return 1.0
	}
}

// Rerank returns the hits re-scored and re-sorted descending. The sort is
// stable, so hits with equal adjusted scores keep their retrieval order,
// and a same-agent hit always outranks an equal-scored hit from another
// agent.
func (r *Reranker) Rerank(hits []vectorstore.ScoredConversation, agentID string) []vectorstore.ScoredConversation {
	if len(hits) == 0 {
		return hits
	}
	now := r.now()
	out := make([]vectorstore.ScoredConversation, len(hits))
	for i, hit := range hits {
		score := hit.Score
		if agentID != "" && hit.Record.AgentID == agentID {
			score *= r.sameAgentBoost
		}
		if !hit.Record.CreatedAt.IsZero() {
			score *= recencyBoost(now.Sub(hit.Record.CreatedAt))
		}
		if score > 1 {
			score = 1
		}
		if score < 0 {
			score = 0
		}
		hit.Score = score
		out[i] = hit
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

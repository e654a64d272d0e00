package augment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/augmentd/internal/vectorstore"
)

func hit(agentID string, score float64, age time.Duration, now time.Time) vectorstore.ScoredConversation {
	return vectorstore.ScoredConversation{
		Record: vectorstore.ConversationRecord{
			AgentID:   agentID,
			CreatedAt: now.Add(-age),
		},
		Score: score,
	}
}

func testReranker(now time.Time) *Reranker {
	r := NewReranker(1.15)
	r.now = func() time.Time { return now }
	return r
}

func TestRerankSameAgentOutranksEqualScore(t *testing.T) {
	now := time.Now()
	r := testReranker(now)
	age := 10 * 24 * time.Hour // old enough that recency is neutral

	out := r.Rerank([]vectorstore.ScoredConversation{
		hit("other", 0.80, age, now),
		hit("coder", 0.80, age, now),
	}, "coder")

	require.Len(t, out, 2)
	assert.Equal(t, "coder", out[0].Record.AgentID)
	assert.Greater(t, out[0].Score, out[1].Score, "agent match must rank strictly higher")
}

func TestRerankRecencyTiers(t *testing.T) {
	now := time.Now()
	r := testReranker(now)

	tests := []struct {
		age  time.Duration
		want float64
	}{
		{30 * time.Minute, 0.50 * 1.10},
		{6 * time.Hour, 0.50 * 1.05},
		{3 * 24 * time.Hour, 0.50 * 1.02},
		{30 * 24 * time.Hour, 0.50},
	}
	for _, tt := range tests {
		out := r.Rerank([]vectorstore.ScoredConversation{hit("a", 0.50, tt.age, now)}, "")
		assert.InDelta(t, tt.want, out[0].Score, 1e-9, "age %v", tt.age)
	}
}

func TestRerankClampsToValidRange(t *testing.T) {
	now := time.Now()
	r := testReranker(now)

	out := r.Rerank([]vectorstore.ScoredConversation{
		hit("coder", 0.95, 5*time.Minute, now),
	}, "coder")

	assert.Equal(t, 1.0, out[0].Score)
}

func TestRerankStableForTies(t *testing.T) {
	now := time.Now()
	r := testReranker(now)
	age := 10 * 24 * time.Hour

	a := hit("x", 0.70, age, now)
	a.Record.ExecutionID = "first"
	b := hit("y", 0.70, age, now)
	b.Record.ExecutionID = "second"

	out := r.Rerank([]vectorstore.ScoredConversation{a, b}, "")

	assert.Equal(t, "first", out[0].Record.ExecutionID, "equal scores keep retrieval order")
}

func TestRerankSortsDescending(t *testing.T) {
	now := time.Now()
	r := testReranker(now)
	age := 10 * 24 * time.Hour

	out := r.Rerank([]vectorstore.ScoredConversation{
		hit("a", 0.60, age, now),
		hit("b", 0.90, age, now),
		hit("c", 0.75, age, now),
	}, "")

	require.Len(t, out, 3)
	assert.True(t, out[0].Score >= out[1].Score && out[1].Score >= out[2].Score)
	assert.Equal(t, "b", out[0].Record.AgentID)
}

func TestRerankZeroCreatedAtSkipsRecency(t *testing.T) {
	r := testReranker(time.Now())
	out := r.Rerank([]vectorstore.ScoredConversation{
		{Record: vectorstore.ConversationRecord{AgentID: "a"}, Score: 0.5},
	}, "")
	assert.Equal(t, 0.5, out[0].Score)
}

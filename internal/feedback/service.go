// Package feedback turns accumulated positive/negative reactions into
// routing preferences. Learning signals are advisory: every persistence
// failure degrades to false or an empty map, never into an error on the
// primary request path.
package feedback

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/augmentd/internal/config"
	"github.com/fyrsmithlabs/augmentd/internal/repository"
	"github.com/fyrsmithlabs/augmentd/internal/vectorstore"
)

// Embedder embeds recommendation queries.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, bool)
}

// ConversationSearcher retrieves similar prior conversations across all
// users.
type ConversationSearcher interface {
	SearchSimilar(ctx context.Context, vector []float32, topK int, minScore float32, opts vectorstore.SearchOptions) ([]vectorstore.ScoredConversation, error)
}

// ScoreUpdater pushes a recorded reaction into the conversation index as
// a payload-only update.
type ScoreUpdater interface {
	UpdateFeedbackScore(ctx context.Context, executionID string, score float64) bool
}

// Recommendation is the outcome of recommendAgentFromSimilar.
type Recommendation struct {
	AgentID       string
	Confidence    float64
	SampleCount   int
	SuccessRate   float64
	AvgSimilarity float64
}

// Service implements feedback-driven preference learning.
type Service struct {
	cfg        config.FeedbackConfig
	executions repository.ExecutionRepository
	feedback   repository.FeedbackRepository
	embedder   Embedder
	searcher   ConversationSearcher
	scores     ScoreUpdater
	cache      *preferenceCache
	logger     *zap.Logger
	now        func() time.Time
}

// NewService wires the learning loop. The embedder, searcher, and score
// updater may be nil; the corresponding operations then degrade to
// absent results.
func NewService(
	cfg config.FeedbackConfig,
	executions repository.ExecutionRepository,
	feedback repository.FeedbackRepository,
	embedder Embedder,
	searcher ConversationSearcher,
	scores ScoreUpdater,
	logger *zap.Logger,
) (*Service, error) {
	if executions == nil {
		return nil, fmt.Errorf("execution repository required")
	}
	if feedback == nil {
		return nil, fmt.Errorf("feedback repository required")
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = config.Duration(30 * time.Minute)
	}
	if cfg.HistoryWindow == 0 {
		cfg.HistoryWindow = config.Duration(30 * 24 * time.Hour)
	}
	if cfg.BoostThreshold == 0 {
		cfg.BoostThreshold = 0.7
	}
	if cfg.PenaltyThreshold == 0 {
		cfg.PenaltyThreshold = 0.3
	}
	if cfg.MinSimilarity == 0 {
		cfg.MinSimilarity = 0.7
	}
	if cfg.MinAgentSamples == 0 {
		cfg.MinAgentSamples = 2
	}
	if cfg.SimilarityWeight == 0 {
		cfg.SimilarityWeight = 0.3
	}
	if cfg.SuccessRateWeight == 0 {
		cfg.SuccessRateWeight = 0.7
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		cfg:        cfg,
		executions: executions,
		feedback:   feedback,
		embedder:   embedder,
		searcher:   searcher,
		scores:     scores,
		cache:      newPreferenceCache(cfg.CacheTTL.Duration()),
		logger:     logger,
		now:        time.Now,
	}, nil
}

// RecordFeedback persists one reaction and invalidates the user's cached
// preferences so the next routing decision sees it. Returns false when
// the execution is unknown or the store rejects the write.
func (s *Service) RecordFeedback(ctx context.Context, executionID, userID string, isPositive bool) bool {
	if executionID == "" || userID == "" {
		return false
	}

	exec, err := s.executions.GetByID(ctx, executionID)
	if err != nil {
		s.logger.Warn("execution lookup failed, feedback dropped",
			zap.String("execution_id", executionID),
			zap.Error(err),
		)
		return false
	}
	if exec == nil {
		s.logger.Warn("feedback for unknown execution dropped",
			zap.String("execution_id", executionID),
		)
		return false
	}

	fb := repository.Feedback{
		ID:          uuid.NewString(),
		ExecutionID: executionID,
		UserID:      userID,
		AgentID:     exec.AgentID,
		IsPositive:  isPositive,
		CreatedAt:   s.now(),
	}
	if err := s.feedback.Save(ctx, fb); err != nil {
		s.logger.Warn("feedback save failed",
			zap.String("execution_id", executionID),
			zap.Error(err),
		)
		return false
	}

	s.cache.invalidate(userID)

	if s.scores != nil {
		score := 0.0
		if isPositive {
			score = 1.0
		}
		s.scores.UpdateFeedbackScore(ctx, executionID, score)
	}
	return true
}

// AgentPreferences returns the user's preference score per agent, each in
// [0,1]. A user with no feedback history gets an empty map; so does any
// persistence failure.
func (s *Service) AgentPreferences(ctx context.Context, userID string) map[string]float64 {
	counts, ok := s.preferenceCounts(ctx, userID)
	if !ok {
		return map[string]float64{}
	}
	prefs := make(map[string]float64, len(counts))
	for agent, c := range counts {
		if c.total > 0 {
			prefs[agent] = float64(c.positive) / float64(c.total)
		}
	}
	return prefs
}

// preferenceCounts serves the tally from cache, rebuilding it from the
// trailing history window on a miss.
func (s *Service) preferenceCounts(ctx context.Context, userID string) (map[string]prefCounts, bool) {
	now := s.now()
	if entry, ok := s.cache.get(userID, now); ok {
		return entry.counts, true
	}

	since := now.Add(-s.cfg.HistoryWindow.Duration())
	history, err := s.feedback.ListSince(ctx, userID, since)
	if err != nil {
		s.logger.Warn("preference rebuild failed",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return nil, false
	}

	counts := make(map[string]prefCounts)
	for _, fb := range history {
		if fb.AgentID == "" {
			continue
		}
		c := counts[fb.AgentID]
		c.total++
		if fb.IsPositive {
			c.positive++
		}
		counts[fb.AgentID] = c
	}
	s.cache.set(userID, counts, now)
	return counts, true
}

// AdjustRoutingScore applies the user's learned preference for the agent
// to a base routing score. Preferences above the boost threshold raise
// the score proportionally to how far they exceed it; preferences below
// the penalty threshold lower it the same way; the band in between is
// neutral. The result is clamped to [0,1].
func (s *Service) AdjustRoutingScore(ctx context.Context, userID, agentID string, baseScore float64) float64 {
	adjusted := baseScore
	if prefs := s.AgentPreferences(ctx, userID); len(prefs) > 0 {
		if pref, ok := prefs[agentID]; ok {
			switch {
			case pref > s.cfg.BoostThreshold:
				adjusted = baseScore * (1 + (pref - s.cfg.BoostThreshold))
			case pref < s.cfg.PenaltyThreshold:
				adjusted = baseScore * (1 - (s.cfg.PenaltyThreshold - pref))
			}
		}
	}
	return clamp01(adjusted)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// RecommendAgent suggests an agent for the query based on highly similar
// past conversations across all users. The second return is false when
// retrieval is unavailable or no agent reaches the sample threshold.
func (s *Service) RecommendAgent(ctx context.Context, query, userID string, topK int) (*Recommendation, bool) {
	if s.embedder == nil || s.searcher == nil || query == "" {
		return nil, false
	}
	if topK <= 0 {
		topK = 10
	}

	vector, ok := s.embedder.Embed(ctx, query)
	if !ok {
		return nil, false
	}

	// Cross-user retrieval: the point of the recommendation is learning
	// from everyone's history, so no user scoping here.
	hits, err := s.searcher.SearchSimilar(ctx, vector, topK,
		float32(s.cfg.MinSimilarity), vectorstore.SearchOptions{})
	if err != nil {
		s.logger.Warn("recommendation search failed", zap.Error(err))
		return nil, false
	}
	if len(hits) == 0 {
		return nil, false
	}

	type tally struct {
		similarity float64
		samples    int
		successes  int
	}
	tallies := make(map[string]*tally)
	for _, hit := range hits {
		agent := hit.Record.AgentID
		if agent == "" {
			continue
		}
		t := tallies[agent]
		if t == nil {
			t = &tally{}
			tallies[agent] = t
		}
		t.similarity += hit.Score
		t.samples++
		if hit.Record.Success {
			t.successes++
		}
	}

	agents := make([]string, 0, len(tallies))
	for agent := range tallies {
		agents = append(agents, agent)
	}
	sort.Strings(agents)

	var best *Recommendation
	for _, agent := range agents {
		t := tallies[agent]
		if t.samples < s.cfg.MinAgentSamples {
			continue
		}
		avgSim := t.similarity / float64(t.samples)
		successRate := float64(t.successes) / float64(t.samples)
		confidence := s.cfg.SimilarityWeight*avgSim + s.cfg.SuccessRateWeight*successRate
		if best == nil || confidence > best.Confidence {
			best = &Recommendation{
				AgentID:       agent,
				Confidence:    confidence,
				SampleCount:   t.samples,
				SuccessRate:   successRate,
				AvgSimilarity: avgSim,
			}
		}
	}
	if best == nil {
		return nil, false
	}
	return best, true
}

// Package augment composes retrieval, user rules, running summaries, and
// curated exemplars into one enriched system prompt. The component is
// read-mostly: it never writes to the store, and every input source is
// optional, so a degraded dependency shrinks the prompt instead of
// failing the request.
package augment

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/augmentd/internal/config"
	"github.com/fyrsmithlabs/augmentd/internal/repository"
	"github.com/fyrsmithlabs/augmentd/internal/vectorstore"
)

// Embedder is the slice of the embedding gateway the service needs.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, bool)
	IsAvailable(ctx context.Context) bool
}

// ConversationSearcher searches indexed prior conversations.
type ConversationSearcher interface {
	SearchSimilar(ctx context.Context, vector []float32, topK int, minScore float32, opts vectorstore.SearchOptions) ([]vectorstore.ScoredConversation, error)
}

// Options toggle the optional inputs per request.
type Options struct {
	// AgentID is the agent being routed to, used for same-agent boosting.
	AgentID string

	// ScopeToUser restricts retrieval to the requesting user's history.
	ScopeToUser bool

	// SkipRetrieval disables the vector search step.
	SkipRetrieval bool

	// SkipFewShot disables exemplar lookup.
	SkipFewShot bool

	// SkipAntiPatterns disables feedback issue-category lookup.
	SkipAntiPatterns bool

	// ExemplarCategory scopes few-shot lookup; empty means all categories.
	ExemplarCategory string
}

// Metadata reports what the augmentation actually did.
type Metadata struct {
	RetrievalLatency   time.Duration
	CandidateCount     int
	ReturnedCount      int
	QueryExpanded      bool
	EmbeddingAvailable bool
}

// AugmentedContext is the assembled result.
type AugmentedContext struct {
	SystemPrompt          string
	RelevantConversations []vectorstore.ScoredConversation
	UsedRules             []repository.Rule
	UsedSummary           string
	FewShot               []repository.Exemplar
	AntiPatterns          []repository.CategoryCount
	Metadata              Metadata
}

// overfetchFactor widens the vector search so the reranker has candidates
// beyond the final cut to promote.
const overfetchFactor = 3

// Service builds augmented contexts.
type Service struct {
	cfg           config.AugmentConfig
	embedder      Embedder
	conversations ConversationSearcher
	userContexts  repository.UserContextRepository
	rules         repository.RuleRepository
	exemplars     repository.ExemplarRepository
	feedback      repository.FeedbackRepository
	expander      *Expander
	reranker      *Reranker
	metrics       *Metrics
	logger        *zap.Logger
}

// NewService wires the augmentation pipeline. The embedder and searcher
// are required; every repository may be nil, which permanently disables
// its section.
func NewService(
	cfg config.AugmentConfig,
	embedder Embedder,
	conversations ConversationSearcher,
	userContexts repository.UserContextRepository,
	rules repository.RuleRepository,
	exemplars repository.ExemplarRepository,
	feedback repository.FeedbackRepository,
	logger *zap.Logger,
) (*Service, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder required")
	}
	if conversations == nil {
		return nil, fmt.Errorf("conversation searcher required")
	}
	if cfg.MinSimilarityScore == 0 {
		cfg.MinSimilarityScore = 0.65
	}
	if cfg.MaxSimilarConversations == 0 {
		cfg.MaxSimilarConversations = 3
	}
	if cfg.FewShotLimit == 0 {
		cfg.FewShotLimit = 2
	}
	if cfg.AntiPatternLimit == 0 {
		cfg.AntiPatternLimit = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	expander, err := LoadExpander(cfg.SynonymsFile, cfg.MaxExpansionTerms)
	if err != nil {
		return nil, fmt.Errorf("load synonyms: %w", err)
	}

	return &Service{
		cfg:           cfg,
		embedder:      embedder,
		conversations: conversations,
		userContexts:  userContexts,
		rules:         rules,
		exemplars:     exemplars,
		feedback:      feedback,
		expander:      expander,
		reranker:      NewReranker(cfg.SameAgentBoost),
		metrics:       NewMetrics(logger),
		logger:        logger,
	}, nil
}

// BuildAugmentedContext assembles the enriched system prompt for one
// request. It never returns an error for degraded dependencies; the only
// failure mode is an empty user id or message.
func (s *Service) BuildAugmentedContext(ctx context.Context, userID, message string, opts Options) (*AugmentedContext, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id required")
	}
	if message == "" {
		return nil, fmt.Errorf("message required")
	}

	result := &AugmentedContext{}

	// Step 1: retrieval.
	if !opts.SkipRetrieval {
		s.retrieve(ctx, userID, message, opts, result)
	}

	// Step 2: rules and summary.
	var background, profile string
	if s.userContexts != nil {
		if uc, err := s.userContexts.Get(ctx, userID); err != nil {
			s.logger.Warn("user context fetch failed, omitting section",
				zap.String("user_id", userID),
				zap.Error(err),
			)
		} else if uc != nil {
			background = uc.Background
			profile = uc.Profile
			result.UsedSummary = uc.Summary
		}
	}
	if s.rules != nil {
		rules, err := s.rules.ActiveRules(ctx, userID)
		if err != nil {
			s.logger.Warn("rule fetch failed, omitting section",
				zap.String("user_id", userID),
				zap.Error(err),
			)
		} else {
			result.UsedRules = rules
		}
	}

	// Step 3: few-shot and anti-patterns.
	if !opts.SkipFewShot && s.exemplars != nil {
		fewShot, err := s.exemplars.Curated(ctx, opts.ExemplarCategory, s.cfg.FewShotLimit)
		if err != nil {
			s.logger.Warn("exemplar fetch failed, omitting section", zap.Error(err))
		} else {
			result.FewShot = fewShot
		}
	}
	if !opts.SkipAntiPatterns && s.feedback != nil {
		categories, err := s.feedback.TopIssueCategories(ctx, userID, s.cfg.AntiPatternLimit)
		if err != nil {
			s.logger.Warn("issue category fetch failed, omitting section", zap.Error(err))
		} else {
			result.AntiPatterns = categories
		}
	}

	// Step 4: assembly.
	result.SystemPrompt = assemblePrompt(promptInputs{
		background:    background,
		profile:       profile,
		summary:       result.UsedSummary,
		rules:         result.UsedRules,
		conversations: result.RelevantConversations,
		fewShot:       result.FewShot,
		antiPatterns:  result.AntiPatterns,
	})

	s.metrics.RecordRequest(ctx, result.Metadata.EmbeddingAvailable,
		result.Metadata.RetrievalLatency, result.Metadata.CandidateCount)
	return result, nil
}

// retrieve runs query expansion, embedding, vector search, and
// re-ranking, filling in the result's conversations and metadata. Any
// failure along the way leaves the section empty.
func (s *Service) retrieve(ctx context.Context, userID, message string, opts Options, result *AugmentedContext) {
	start := time.Now()
	defer func() {
		result.Metadata.RetrievalLatency = time.Since(start)
	}()

	if !s.embedder.IsAvailable(ctx) {
		s.logger.Warn("embedding service unavailable, skipping retrieval")
		return
	}
	result.Metadata.EmbeddingAvailable = true

	query := s.expander.Expand(message)
	result.Metadata.QueryExpanded = query != message

	vector, ok := s.embedder.Embed(ctx, query)
	if !ok {
		s.logger.Warn("query embedding failed, skipping retrieval")
		return
	}

	searchOpts := vectorstore.SearchOptions{}
	if opts.ScopeToUser {
		searchOpts.UserID = userID
	}
	hits, err := s.conversations.SearchSimilar(ctx, vector,
		s.cfg.MaxSimilarConversations*overfetchFactor,
		float32(s.cfg.MinSimilarityScore), searchOpts)
	if err != nil {
		s.logger.Warn("conversation search failed, skipping retrieval", zap.Error(err))
		return
	}
	result.Metadata.CandidateCount = len(hits)

	hits = s.reranker.Rerank(hits, opts.AgentID)
	if len(hits) > s.cfg.MaxSimilarConversations {
		hits = hits[:s.cfg.MaxSimilarConversations]
	}
	result.RelevantConversations = hits
	result.Metadata.ReturnedCount = len(hits)
}

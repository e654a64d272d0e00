// Package summary decides when a user's history is worth summarizing and
// guarantees single-writer summarization through a TTL lock. Per user the
// lifecycle is no-summary, needs-summary, locked, summarized, cycling
// back to needs-summary as activity accumulates.
package summary

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/augmentd/internal/config"
	"github.com/fyrsmithlabs/augmentd/internal/repository"
)

// Status classifies a summarization attempt.
type Status string

const (
	// StatusGenerated means a new summary was produced and persisted.
	StatusGenerated Status = "generated"

	// StatusBlocked means another owner holds the lock. Distinct from
	// not-needed: the work is wanted, someone else is doing it.
	StatusBlocked Status = "blocked"

	// StatusNotNeeded means there was nothing to summarize.
	StatusNotNeeded Status = "not_needed"

	// StatusFailed means generation or persistence failed.
	StatusFailed Status = "failed"
)

// Outcome is the result of one summarization attempt.
type Outcome struct {
	UserID  string
	Status  Status
	Summary string
	Err     error
}

// BatchOutcome aggregates a batch run. Individual failures never abort
// the batch.
type BatchOutcome struct {
	Generated int
	Blocked   int
	NotNeeded int
	Failed    int
	Outcomes  []Outcome
	Errors    []error
}

// Service owns the summarization lifecycle.
type Service struct {
	cfg          config.SummaryConfig
	executions   repository.ExecutionRepository
	userContexts repository.UserContextRepository
	locks        repository.SummaryLockRepository
	strategy     Strategy
	logger       *zap.Logger
	now          func() time.Time
}

// NewService wires the summarizer. A nil strategy defaults to the
// extractive one.
func NewService(
	cfg config.SummaryConfig,
	executions repository.ExecutionRepository,
	userContexts repository.UserContextRepository,
	locks repository.SummaryLockRepository,
	strategy Strategy,
	logger *zap.Logger,
) (*Service, error) {
	if executions == nil {
		return nil, fmt.Errorf("execution repository required")
	}
	if userContexts == nil {
		return nil, fmt.Errorf("user context repository required")
	}
	if locks == nil {
		return nil, fmt.Errorf("summary lock repository required")
	}
	if strategy == nil {
		strategy = NewExtractive()
	}
	if cfg.MinConversations == 0 {
		cfg.MinConversations = 10
	}
	if cfg.MinCharVolume == 0 {
		cfg.MinCharVolume = 5000
	}
	if cfg.MinInterval == 0 {
		cfg.MinInterval = config.Duration(24 * time.Hour)
	}
	if cfg.LockTTL == 0 {
		cfg.LockTTL = config.Duration(5 * time.Minute)
	}
	if cfg.RecentWindow == 0 {
		cfg.RecentWindow = 20
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		cfg:          cfg,
		executions:   executions,
		userContexts: userContexts,
		locks:        locks,
		strategy:     strategy,
		logger:       logger,
		now:          time.Now,
	}, nil
}

// NeedsSummary reports whether the user's history warrants a new
// summary: enough conversations, enough accumulated text, enough time
// since the last summary, and no unexpired lock. Any persistence failure
// answers false; a skipped summary is retried on the next check.
func (s *Service) NeedsSummary(ctx context.Context, userID string) bool {
	if userID == "" {
		return false
	}
	now := s.now()

	stats, err := s.executions.Stats(ctx, userID)
	if err != nil {
		s.logger.Warn("activity stats unavailable",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return false
	}
	if stats.Conversations < s.cfg.MinConversations {
		return false
	}
	if stats.Characters < int64(s.cfg.MinCharVolume) {
		return false
	}

	uc, err := s.userContexts.Get(ctx, userID)
	if err != nil {
		s.logger.Warn("user context unavailable",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return false
	}
	if uc != nil && !uc.SummaryUpdatedAt.IsZero() &&
		now.Sub(uc.SummaryUpdatedAt) < s.cfg.MinInterval.Duration() {
		return false
	}

	lock, err := s.locks.Get(ctx, userID)
	if err != nil {
		s.logger.Warn("lock state unavailable",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return false
	}
	if lock != nil && now.Sub(lock.AcquiredAt) < s.cfg.LockTTL.Duration() {
		return false
	}
	return true
}

// GenerateSummary attempts one summarization run. Lock contention
// returns a Blocked outcome immediately, with no retry and no waiting.
// The lock is always released on the way out, whatever happened in
// between.
func (s *Service) GenerateSummary(ctx context.Context, userID string) *Outcome {
	if userID == "" {
		return &Outcome{UserID: userID, Status: StatusFailed, Err: fmt.Errorf("user id required")}
	}

	owner := uuid.NewString()
	acquired, err := s.locks.TryAcquire(ctx, userID, owner, s.cfg.LockTTL.Duration())
	if err != nil {
		s.logger.Warn("lock acquisition failed",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return &Outcome{UserID: userID, Status: StatusFailed, Err: err}
	}
	if !acquired {
		return &Outcome{UserID: userID, Status: StatusBlocked}
	}
	defer func() {
		if err := s.locks.Release(ctx, userID, owner); err != nil {
			s.logger.Warn("lock release failed, lock will expire by TTL",
				zap.String("user_id", userID),
				zap.Error(err),
			)
		}
	}()

	convs, err := s.executions.RecentSuccessful(ctx, userID, s.cfg.RecentWindow)
	if err != nil {
		return &Outcome{UserID: userID, Status: StatusFailed, Err: fmt.Errorf("fetch conversations: %w", err)}
	}
	if len(convs) == 0 {
		return &Outcome{UserID: userID, Status: StatusNotNeeded}
	}

	var previous string
	if uc, err := s.userContexts.Get(ctx, userID); err != nil {
		s.logger.Warn("previous summary unavailable, generating fresh",
			zap.String("user_id", userID),
			zap.Error(err),
		)
	} else if uc != nil {
		previous = uc.Summary
	}

	text, err := s.strategy.Summarize(ctx, Inputs{
		UserID:          userID,
		Conversations:   convs,
		PreviousSummary: previous,
	})
	if err != nil {
		return &Outcome{UserID: userID, Status: StatusFailed, Err: fmt.Errorf("summarize: %w", err)}
	}

	if err := s.userContexts.SaveSummary(ctx, userID, text, s.now()); err != nil {
		return &Outcome{UserID: userID, Status: StatusFailed, Err: fmt.Errorf("persist summary: %w", err)}
	}

	s.logger.Info("summary generated",
		zap.String("user_id", userID),
		zap.Int("conversations", len(convs)),
	)
	return &Outcome{UserID: userID, Status: StatusGenerated, Summary: text}
}

// candidateFactor widens the user scan so the batch can still fill
// maxUsers after the needs-summary filter.
const candidateFactor = 4

// BatchGenerate summarizes up to maxUsers users that currently need one.
func (s *Service) BatchGenerate(ctx context.Context, maxUsers int) BatchOutcome {
	var batch BatchOutcome
	if maxUsers <= 0 {
		maxUsers = 10
	}

	candidates, err := s.executions.ActiveUserIDs(ctx, maxUsers*candidateFactor)
	if err != nil {
		batch.Errors = append(batch.Errors, fmt.Errorf("list candidate users: %w", err))
		return batch
	}

	for _, userID := range candidates {
		if len(batch.Outcomes) >= maxUsers {
			break
		}
		if !s.NeedsSummary(ctx, userID) {
			continue
		}
		outcome := s.GenerateSummary(ctx, userID)
		batch.Outcomes = append(batch.Outcomes, *outcome)
		switch outcome.Status {
		case StatusGenerated:
			batch.Generated++
		case StatusBlocked:
			batch.Blocked++
		case StatusNotNeeded:
			batch.NotNeeded++
		case StatusFailed:
			batch.Failed++
			if outcome.Err != nil {
				batch.Errors = append(batch.Errors, fmt.Errorf("user %s: %w", userID, outcome.Err))
			}
		}
	}
	return batch
}

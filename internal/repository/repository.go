// Package repository defines the narrow persistence interfaces the
// retrieval pipeline consumes. The backing relational store and its SQL
// live outside this module; services depend only on these contracts, and
// tests substitute in-memory fakes.
package repository

import (
	"context"
	"time"
)

// Execution is one completed agent run.
type Execution struct {
	ID         string
	UserID     string
	AgentID    string
	Prompt     string
	Result     string
	Success    bool
	DurationMS int64
	CreatedAt  time.Time
}

// Feedback is one user reaction to an execution.
type Feedback struct {
	ID          string
	ExecutionID string
	UserID      string
	AgentID     string
	IsPositive  bool

	// IssueCategory classifies negative feedback ("wrong_format",
	// "too_verbose", ...). Empty for positive feedback.
	IssueCategory string

	Comment   string
	CreatedAt time.Time
}

// CategoryCount is an issue category with its occurrence count.
type CategoryCount struct {
	Category string
	Count    int
}

// UserContext holds per-user prompt material: free-text background and
// profile maintained by the user, plus the machine-written summary.
type UserContext struct {
	UserID           string
	Background       string
	Profile          string
	Summary          string
	SummaryUpdatedAt time.Time
}

// Rule is one user- or admin-authored prompt rule. An empty UserID marks
// a global rule that applies to everyone.
type Rule struct {
	ID       string
	UserID   string
	Title    string
	Body     string
	Priority int
	Active   bool
}

// Exemplar is an admin-curated high-quality prompt/response pair used as
// an in-prompt few-shot example.
type Exemplar struct {
	ID       string
	Category string
	Prompt   string
	Response string
}

// SummaryLock is the per-user mutual-exclusion token for summarization.
// The lock is held only while now - AcquiredAt < TTL; an expired lock is
// implicitly free.
type SummaryLock struct {
	UserID     string
	OwnerToken string
	AcquiredAt time.Time
}

// ActivityStats aggregates a user's execution history for the
// needs-summary decision.
type ActivityStats struct {
	Conversations int
	Characters    int64
}

// ExecutionRepository reads execution history.
type ExecutionRepository interface {
	GetByID(ctx context.Context, id string) (*Execution, error)

	// ListByUser returns the user's executions, newest first, capped at
	// limit.
	ListByUser(ctx context.Context, userID string, limit int) ([]Execution, error)

	// RecentSuccessful returns the user's most recent successful
	// executions, newest first, capped at limit.
	RecentSuccessful(ctx context.Context, userID string, limit int) ([]Execution, error)

	// Stats aggregates conversation count and character volume for a user.
	Stats(ctx context.Context, userID string) (ActivityStats, error)

	// ActiveUserIDs returns ids of users with recent activity, most
	// active first, capped at limit.
	ActiveUserIDs(ctx context.Context, limit int) ([]string, error)
}

// FeedbackRepository persists and reads feedback reactions.
type FeedbackRepository interface {
	Save(ctx context.Context, fb Feedback) error

	ByExecution(ctx context.Context, executionID string) ([]Feedback, error)

	// ListSince returns the user's feedback created at or after since,
	// newest first.
	ListSince(ctx context.Context, userID string, since time.Time) ([]Feedback, error)

	// TopIssueCategories returns the user's most frequent negative
	// feedback categories, most frequent first, capped at limit.
	TopIssueCategories(ctx context.Context, userID string, limit int) ([]CategoryCount, error)
}

// UserContextRepository reads and writes per-user prompt material.
// Absence is not an error: Get returns (nil, nil) for unknown users.
type UserContextRepository interface {
	Get(ctx context.Context, userID string) (*UserContext, error)
	Save(ctx context.Context, uc UserContext) error

	// SaveSummary rewrites only the summary and its timestamp.
	SaveSummary(ctx context.Context, userID, summary string, updatedAt time.Time) error
}

// RuleRepository lists prompt rules.
type RuleRepository interface {
	// ActiveRules returns the active rules applying to the user: the
	// user's own plus global rules, highest priority first.
	ActiveRules(ctx context.Context, userID string) ([]Rule, error)
}

// ExemplarRepository looks up curated few-shot examples.
type ExemplarRepository interface {
	// Curated returns exemplars, optionally scoped to a category, capped
	// at limit.
	Curated(ctx context.Context, category string, limit int) ([]Exemplar, error)
}

// SummaryLockRepository is the cross-process mutual exclusion for
// summarization, backed by the store's atomic conditional update.
type SummaryLockRepository interface {
	// TryAcquire writes (userID, ownerToken, now) only when no unexpired
	// lock exists for the user. Returns false without error when another
	// owner holds the lock.
	TryAcquire(ctx context.Context, userID, ownerToken string, ttl time.Duration) (bool, error)

	// Release frees the lock only when ownerToken still owns it. Releasing
	// a lost or expired lock is a no-op, not an error.
	Release(ctx context.Context, userID, ownerToken string) error

	// Get returns the current lock row, (nil, nil) when none exists.
	Get(ctx context.Context, userID string) (*SummaryLock, error)
}

package augment

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/augmentd/internal/config"
	"github.com/fyrsmithlabs/augmentd/internal/repository"
	"github.com/fyrsmithlabs/augmentd/internal/vectorstore"
)

type fakeEmbedder struct {
	available bool
	vec       []float32
	lastQuery string
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, bool) {
	f.lastQuery = text
	if f.vec == nil {
		return nil, false
	}
	return f.vec, true
}

func (f *fakeEmbedder) IsAvailable(_ context.Context) bool { return f.available }

type fakeSearcher struct {
	hits     []vectorstore.ScoredConversation
	err      error
	lastOpts vectorstore.SearchOptions
	lastTopK int
}

func (f *fakeSearcher) SearchSimilar(_ context.Context, _ []float32, topK int, _ float32, opts vectorstore.SearchOptions) ([]vectorstore.ScoredConversation, error) {
	f.lastOpts = opts
	f.lastTopK = topK
	return f.hits, f.err
}

type fakeUserContexts struct {
	uc  *repository.UserContext
	err error
}

func (f *fakeUserContexts) Get(_ context.Context, _ string) (*repository.UserContext, error) {
	return f.uc, f.err
}
func (f *fakeUserContexts) Save(_ context.Context, _ repository.UserContext) error { return nil }
func (f *fakeUserContexts) SaveSummary(_ context.Context, _, _ string, _ time.Time) error {
	return nil
}

type fakeRules struct {
	rules []repository.Rule
	err   error
}

func (f *fakeRules) ActiveRules(_ context.Context, _ string) ([]repository.Rule, error) {
	return f.rules, f.err
}

type fakeExemplars struct {
	exemplars []repository.Exemplar
	err       error
}

func (f *fakeExemplars) Curated(_ context.Context, _ string, _ int) ([]repository.Exemplar, error) {
	return f.exemplars, f.err
}

type fakeFeedback struct {
	categories []repository.CategoryCount
	err        error
}

func (f *fakeFeedback) Save(_ context.Context, _ repository.Feedback) error { return nil }
func (f *fakeFeedback) ByExecution(_ context.Context, _ string) ([]repository.Feedback, error) {
	return nil, nil
}
func (f *fakeFeedback) ListSince(_ context.Context, _ string, _ time.Time) ([]repository.Feedback, error) {
	return nil, nil
}
func (f *fakeFeedback) TopIssueCategories(_ context.Context, _ string, _ int) ([]repository.CategoryCount, error) {
	return f.categories, f.err
}

type serviceFakes struct {
	embedder  *fakeEmbedder
	searcher  *fakeSearcher
	userCtx   *fakeUserContexts
	rules     *fakeRules
	exemplars *fakeExemplars
	feedback  *fakeFeedback
}

func newService(t *testing.T) (*Service, *serviceFakes) {
	t.Helper()
	f := &serviceFakes{
		embedder:  &fakeEmbedder{available: true, vec: []float32{1, 0, 0, 0}},
		searcher:  &fakeSearcher{},
		userCtx:   &fakeUserContexts{},
		rules:     &fakeRules{},
		exemplars: &fakeExemplars{},
		feedback:  &fakeFeedback{},
	}
	svc, err := NewService(config.AugmentConfig{}, f.embedder, f.searcher,
		f.userCtx, f.rules, f.exemplars, f.feedback, nil)
	require.NoError(t, err)
	return svc, f
}

func TestBuildAugmentedContextValidatesInput(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.BuildAugmentedContext(context.Background(), "", "hi", Options{})
	assert.Error(t, err)

	_, err = svc.BuildAugmentedContext(context.Background(), "u1", "", Options{})
	assert.Error(t, err)
}

func TestBuildAugmentedContextMinimalScaffold(t *testing.T) {
	svc, _ := newService(t)

	got, err := svc.BuildAugmentedContext(context.Background(), "u1", "hello", Options{})

	require.NoError(t, err)
	assert.Equal(t, scaffold, got.SystemPrompt, "empty inputs must produce the exact minimal scaffold")
	assert.Empty(t, got.RelevantConversations)
	assert.Empty(t, got.UsedRules)
	assert.Empty(t, got.UsedSummary)
}

func TestBuildAugmentedContextSectionOrder(t *testing.T) {
	svc, f := newService(t)
	f.userCtx.uc = &repository.UserContext{
		UserID:     "u1",
		Background: "Backend engineer on the payments team.",
		Profile:    "Prefers terse answers.",
		Summary:    "Mostly asks about Go services.",
	}
	f.rules.rules = []repository.Rule{{ID: "r1", Title: "Style", Body: "Always include error handling.", Active: true}}
	f.searcher.hits = []vectorstore.ScoredConversation{
		{Record: vectorstore.ConversationRecord{ExecutionID: "e1", AgentID: "coder", Prompt: "add retry logic", Result: "done", CreatedAt: time.Now()}, Score: 0.9},
	}
	f.exemplars.exemplars = []repository.Exemplar{{ID: "x1", Prompt: "example question", Response: "example answer"}}
	f.feedback.categories = []repository.CategoryCount{{Category: "too_verbose", Count: 4}}

	got, err := svc.BuildAugmentedContext(context.Background(), "u1", "fix the webhook", Options{})
	require.NoError(t, err)

	prompt := got.SystemPrompt
	order := []string{
		scaffold,
		headerBackground,
		headerProfile,
		headerSummary,
		headerRules,
		headerConversations,
		headerFewShot,
		headerAntiPatterns,
	}
	last := -1
	for _, marker := range order {
		idx := strings.Index(prompt, marker)
		require.GreaterOrEqual(t, idx, 0, "missing section %q", marker)
		assert.Greater(t, idx, last, "section %q out of order", marker)
		last = idx
	}
	assert.Contains(t, prompt, "too_verbose (reported 4 times)")
	assert.Equal(t, "Mostly asks about Go services.", got.UsedSummary)
}

func TestBuildAugmentedContextOmitsEmptySections(t *testing.T) {
	svc, f := newService(t)
	f.userCtx.uc = &repository.UserContext{UserID: "u1", Background: "An SRE."}

	got, err := svc.BuildAugmentedContext(context.Background(), "u1", "hello", Options{})
	require.NoError(t, err)

	assert.Contains(t, got.SystemPrompt, headerBackground)
	for _, header := range []string{headerProfile, headerSummary, headerRules, headerConversations, headerFewShot, headerAntiPatterns} {
		assert.NotContains(t, got.SystemPrompt, header, "empty section must be omitted, not emitted as a bare header")
	}
}

func TestBuildAugmentedContextEmbedderUnavailable(t *testing.T) {
	svc, f := newService(t)
	f.embedder.available = false
	f.searcher.hits = []vectorstore.ScoredConversation{
		{Record: vectorstore.ConversationRecord{Prompt: "should not appear"}, Score: 0.9},
	}

	got, err := svc.BuildAugmentedContext(context.Background(), "u1", "hello", Options{})

	require.NoError(t, err)
	assert.Empty(t, got.RelevantConversations)
	assert.False(t, got.Metadata.EmbeddingAvailable)
	assert.Equal(t, scaffold, got.SystemPrompt)
}

func TestBuildAugmentedContextScopesToUser(t *testing.T) {
	svc, f := newService(t)

	_, err := svc.BuildAugmentedContext(context.Background(), "u1", "hello", Options{ScopeToUser: true})
	require.NoError(t, err)
	assert.Equal(t, "u1", f.searcher.lastOpts.UserID)

	_, err = svc.BuildAugmentedContext(context.Background(), "u1", "hello", Options{})
	require.NoError(t, err)
	assert.Empty(t, f.searcher.lastOpts.UserID)
}

func TestBuildAugmentedContextTrimsToConfiguredLimit(t *testing.T) {
	svc, f := newService(t)
	now := time.Now()
	for i := 0; i < 7; i++ {
		f.searcher.hits = append(f.searcher.hits, vectorstore.ScoredConversation{
			Record: vectorstore.ConversationRecord{ExecutionID: string(rune('a' + i)), AgentID: "x", Prompt: "p", CreatedAt: now},
			Score:  0.9 - float64(i)*0.01,
		})
	}

	got, err := svc.BuildAugmentedContext(context.Background(), "u1", "hello", Options{})

	require.NoError(t, err)
	assert.Len(t, got.RelevantConversations, 3)
	assert.Equal(t, 7, got.Metadata.CandidateCount)
	assert.Equal(t, 3, got.Metadata.ReturnedCount)
	assert.Greater(t, f.searcher.lastTopK, 3, "search must over-fetch for the reranker")
}

func TestBuildAugmentedContextQueryExpansion(t *testing.T) {
	svc, f := newService(t)

	_, err := svc.BuildAugmentedContext(context.Background(), "u1", "debug the database migration", Options{})

	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(f.embedder.lastQuery, "debug the database migration"))
	assert.Contains(t, f.embedder.lastQuery, "sql", "recognized phrase must be expanded before embedding")
}

func TestBuildAugmentedContextRepositoryFailuresDegrade(t *testing.T) {
	svc, f := newService(t)
	f.userCtx.err = errors.New("store down")
	f.rules.err = errors.New("store down")
	f.exemplars.err = errors.New("store down")
	f.feedback.err = errors.New("store down")

	got, err := svc.BuildAugmentedContext(context.Background(), "u1", "hello", Options{})

	require.NoError(t, err, "persistence failures must not fail the request")
	assert.Equal(t, scaffold, got.SystemPrompt)
}

func TestBuildAugmentedContextSkipToggles(t *testing.T) {
	svc, f := newService(t)
	f.exemplars.exemplars = []repository.Exemplar{{Prompt: "q", Response: "a"}}
	f.feedback.categories = []repository.CategoryCount{{Category: "slow", Count: 2}}

	got, err := svc.BuildAugmentedContext(context.Background(), "u1", "hello", Options{
		SkipRetrieval:    true,
		SkipFewShot:      true,
		SkipAntiPatterns: true,
	})

	require.NoError(t, err)
	assert.Empty(t, got.FewShot)
	assert.Empty(t, got.AntiPatterns)
	assert.Equal(t, scaffold, got.SystemPrompt)
}

package vectorstore

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Payload type tags.
const (
	TypeConversation = "conversation"
	TypeKnowledge    = "knowledge"
	TypeCodeChunk    = "code_chunk"
)

// Extra payload keys used by the specialized collections.
const (
	keyUserID        = "user_id"
	keyAgentID       = "agent_id"
	keyResult        = "result"
	keySuccess       = "success"
	keyFeedbackScore = "feedback_score"

	keyDocType = "doc_type"
	keySource  = "source"

	keyProject   = "project"
	keyPath      = "path"
	keyStartLine = "start_line"
	keyEndLine   = "end_line"
	keyLanguage  = "language"
	keyChunkType = "chunk_type"
)

// ConversationRecord is one indexed agent execution: the prompt is the
// embedded text, the rest rides in the payload.
type ConversationRecord struct {
	ExecutionID   string
	UserID        string
	AgentID       string
	Prompt        string
	Result        string
	Success       bool
	FeedbackScore float64
	CreatedAt     time.Time
}

// ScoredConversation is a conversation search hit.
type ScoredConversation struct {
	Record ConversationRecord
	Score  float64
}

// ConversationCollection indexes past agent executions for similarity
// retrieval and feedback-driven routing.
type ConversationCollection struct {
	*Collection
}

// NewConversationCollection wires the conversation payload indexes.
func NewConversationCollection(client Client, name string, dimension int, logger *zap.Logger) (*ConversationCollection, error) {
	col, err := NewCollection(client, name, dimension, []FieldIndex{
		{Field: keyUserID, Kind: "keyword"},
		{Field: keyAgentID, Kind: "keyword"},
		{Field: keySuccess, Kind: "keyword"},
		{Field: keyFeedbackScore, Kind: "float"},
		{Field: KeyCreatedAt, Kind: "integer"},
	}, logger)
	if err != nil {
		return nil, err
	}
	return &ConversationCollection{Collection: col}, nil
}

func (r ConversationRecord) payload() Payload {
	return Payload{
		Type:      TypeConversation,
		DocID:     r.ExecutionID,
		Content:   r.Prompt,
		CreatedAt: r.CreatedAt,
		Extra: map[string]interface{}{
			keyUserID:        r.UserID,
			keyAgentID:       r.AgentID,
			keyResult:        r.Result,
			keySuccess:       r.Success,
			keyFeedbackScore: r.FeedbackScore,
		},
	}
}

// ConversationFromPayload rebuilds a record from a stored envelope.
func ConversationFromPayload(p Payload) ConversationRecord {
	success, _ := p.Extra[keySuccess].(bool)
	return ConversationRecord{
		ExecutionID:   p.DocID,
		UserID:        p.ExtraString(keyUserID),
		AgentID:       p.ExtraString(keyAgentID),
		Prompt:        p.Content,
		Result:        p.ExtraString(keyResult),
		Success:       success,
		FeedbackScore: p.ExtraFloat(keyFeedbackScore),
		CreatedAt:     p.CreatedAt,
	}
}

// Index upserts the record keyed by execution id.
func (c *ConversationCollection) Index(ctx context.Context, rec ConversationRecord, vector []float32) (bool, error) {
	if rec.ExecutionID == "" {
		return false, fmt.Errorf("execution id required")
	}
	return c.Upsert(ctx, rec.ExecutionID, vector, rec.payload())
}

// UpdateFeedbackScore rewrites only the feedback score in the stored
// payload. The vector is untouched, so feedback never triggers
// re-embedding.
func (c *ConversationCollection) UpdateFeedbackScore(ctx context.Context, executionID string, score float64) bool {
	return c.SetPayload(ctx, executionID, map[string]interface{}{
		keyFeedbackScore: score,
	})
}

// SearchOptions scope a conversation search.
type SearchOptions struct {
	// UserID restricts hits to one user when non-empty.
	UserID string

	// AgentIDs restricts hits to the listed agents when non-empty.
	AgentIDs []string

	// SuccessOnly keeps only executions marked successful.
	SuccessOnly bool
}

// SearchSimilar returns up to topK prior conversations above minScore.
func (c *ConversationCollection) SearchSimilar(ctx context.Context, vector []float32, topK int, minScore float32, opts SearchOptions) ([]ScoredConversation, error) {
	b := NewFilterBuilder()
	if opts.UserID != "" {
		b.Eq(keyUserID, opts.UserID)
	}
	if len(opts.AgentIDs) > 0 {
		values := make([]interface{}, len(opts.AgentIDs))
		for i, id := range opts.AgentIDs {
			values[i] = id
		}
		b.In(keyAgentID, values...)
	}
	if opts.SuccessOnly {
		b.Eq(keySuccess, true)
	}

	hits, err := c.Search(ctx, vector, b.Build(), topK, minScore)
	if err != nil {
		return nil, err
	}
	results := make([]ScoredConversation, len(hits))
	for i, hit := range hits {
		results[i] = ScoredConversation{
			Record: ConversationFromPayload(hit.Payload),
			Score:  float64(hit.Score),
		}
	}
	return results, nil
}

// KnowledgeRecord is one indexed knowledge document.
type KnowledgeRecord struct {
	DocID     string
	DocType   string
	Content   string
	Source    string
	CreatedAt time.Time
}

// ScoredKnowledge is a knowledge search hit.
type ScoredKnowledge struct {
	Record KnowledgeRecord
	Score  float64
}

// KnowledgeCollection indexes reference documents.
type KnowledgeCollection struct {
	*Collection
}

// NewKnowledgeCollection wires the knowledge payload indexes.
func NewKnowledgeCollection(client Client, name string, dimension int, logger *zap.Logger) (*KnowledgeCollection, error) {
	col, err := NewCollection(client, name, dimension, []FieldIndex{
		{Field: keyDocType, Kind: "keyword"},
		{Field: KeyDocID, Kind: "keyword"},
	}, logger)
	if err != nil {
		return nil, err
	}
	return &KnowledgeCollection{Collection: col}, nil
}

func (r KnowledgeRecord) payload() Payload {
	return Payload{
		Type:      TypeKnowledge,
		DocID:     r.DocID,
		Content:   r.Content,
		CreatedAt: r.CreatedAt,
		Extra: map[string]interface{}{
			keyDocType: r.DocType,
			keySource:  r.Source,
		},
	}
}

// KnowledgeFromPayload rebuilds a record from a stored envelope.
func KnowledgeFromPayload(p Payload) KnowledgeRecord {
	return KnowledgeRecord{
		DocID:     p.DocID,
		DocType:   p.ExtraString(keyDocType),
		Content:   p.Content,
		Source:    p.ExtraString(keySource),
		CreatedAt: p.CreatedAt,
	}
}

// Index upserts the document keyed by doc id.
func (c *KnowledgeCollection) Index(ctx context.Context, rec KnowledgeRecord, vector []float32) (bool, error) {
	if rec.DocID == "" {
		return false, fmt.Errorf("doc id required")
	}
	return c.Upsert(ctx, rec.DocID, vector, rec.payload())
}

// SearchByType returns up to topK documents of the given type above
// minScore. An empty docType searches all types.
func (c *KnowledgeCollection) SearchByType(ctx context.Context, vector []float32, docType string, topK int, minScore float32) ([]ScoredKnowledge, error) {
	b := NewFilterBuilder()
	if docType != "" {
		b.Eq(keyDocType, docType)
	}
	hits, err := c.Search(ctx, vector, b.Build(), topK, minScore)
	if err != nil {
		return nil, err
	}
	results := make([]ScoredKnowledge, len(hits))
	for i, hit := range hits {
		results[i] = ScoredKnowledge{
			Record: KnowledgeFromPayload(hit.Payload),
			Score:  float64(hit.Score),
		}
	}
	return results, nil
}

// DeleteDoc removes one document by id.
func (c *KnowledgeCollection) DeleteDoc(ctx context.Context, docID string) bool {
	return c.Delete(ctx, docID)
}

// CodeChunkRecord is one indexed source-code chunk. Only a short preview
// of the chunk text is stored; full source stays in the repository it
// came from.
type CodeChunkRecord struct {
	Project   string
	Path      string
	StartLine int
	EndLine   int
	Language  string
	ChunkType string
	Preview   string
	CreatedAt time.Time
}

// Key is the stable logical key the point id derives from.
func (r CodeChunkRecord) Key() string {
	return fmt.Sprintf("%s:%s:%d-%d", r.Project, r.Path, r.StartLine, r.EndLine)
}

// ScoredCodeChunk is a code search hit.
type ScoredCodeChunk struct {
	Record CodeChunkRecord
	Score  float64
}

// CodeCollection indexes code chunks for semantic code search.
type CodeCollection struct {
	*Collection
}

// NewCodeCollection wires the code payload indexes.
func NewCodeCollection(client Client, name string, dimension int, logger *zap.Logger) (*CodeCollection, error) {
	col, err := NewCollection(client, name, dimension, []FieldIndex{
		{Field: keyProject, Kind: "keyword"},
		{Field: keyPath, Kind: "keyword"},
		{Field: keyLanguage, Kind: "keyword"},
		{Field: keyChunkType, Kind: "keyword"},
	}, logger)
	if err != nil {
		return nil, err
	}
	return &CodeCollection{Collection: col}, nil
}

func (r CodeChunkRecord) payload() Payload {
	return Payload{
		Type:      TypeCodeChunk,
		DocID:     r.Key(),
		Content:   r.Preview,
		CreatedAt: r.CreatedAt,
		Extra: map[string]interface{}{
			keyProject:   r.Project,
			keyPath:      r.Path,
			keyStartLine: r.StartLine,
			keyEndLine:   r.EndLine,
			keyLanguage:  r.Language,
			keyChunkType: r.ChunkType,
		},
	}
}

// CodeChunkFromPayload rebuilds a record from a stored envelope.
func CodeChunkFromPayload(p Payload) CodeChunkRecord {
	return CodeChunkRecord{
		Project:   p.ExtraString(keyProject),
		Path:      p.ExtraString(keyPath),
		StartLine: p.ExtraInt(keyStartLine),
		EndLine:   p.ExtraInt(keyEndLine),
		Language:  p.ExtraString(keyLanguage),
		ChunkType: p.ExtraString(keyChunkType),
		Preview:   p.Content,
		CreatedAt: p.CreatedAt,
	}
}

// IndexChunks upserts a batch of chunks, typically one file's worth.
func (c *CodeCollection) IndexChunks(ctx context.Context, records []CodeChunkRecord, vectors [][]float32) (bool, error) {
	if len(records) != len(vectors) {
		return false, fmt.Errorf("got %d records but %d vectors", len(records), len(vectors))
	}
	entries := make([]Entry, 0, len(records))
	for i, rec := range records {
		if vectors[i] == nil {
			continue
		}
		entries = append(entries, Entry{
			Key:     rec.Key(),
			Vector:  vectors[i],
			Payload: rec.payload(),
		})
	}
	return c.UpsertMany(ctx, entries)
}

// SearchCode returns up to topK chunks above minScore, optionally scoped
// to one project.
func (c *CodeCollection) SearchCode(ctx context.Context, vector []float32, project string, topK int, minScore float32) ([]ScoredCodeChunk, error) {
	b := NewFilterBuilder()
	if project != "" {
		b.Eq(keyProject, project)
	}
	hits, err := c.Search(ctx, vector, b.Build(), topK, minScore)
	if err != nil {
		return nil, err
	}
	results := make([]ScoredCodeChunk, len(hits))
	for i, hit := range hits {
		results[i] = ScoredCodeChunk{
			Record: CodeChunkFromPayload(hit.Payload),
			Score:  float64(hit.Score),
		}
	}
	return results, nil
}

// DeleteProject removes all chunks for a project, used before re-indexing.
func (c *CodeCollection) DeleteProject(ctx context.Context, project string) bool {
	return c.DeleteByFilter(ctx, NewFilterBuilder().Eq(keyProject, project).Build())
}

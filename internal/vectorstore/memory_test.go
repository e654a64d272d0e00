package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedMemory(t *testing.T) *MemoryClient {
	t.Helper()
	m := NewMemoryClient()
	require.NoError(t, m.EnsureCollection(context.Background(), "conversations", 4, nil))

	points := []Point{
		{ID: 1, Vector: []float32{1, 0, 0, 0}, Payload: map[string]interface{}{"doc_id": "a", "user_id": "u1"}},
		{ID: 2, Vector: []float32{0, 1, 0, 0}, Payload: map[string]interface{}{"doc_id": "b", "user_id": "u1"}},
		{ID: 3, Vector: []float32{0, 0, 1, 0}, Payload: map[string]interface{}{"doc_id": "c", "user_id": "u2"}},
	}
	require.NoError(t, m.Upsert(context.Background(), "conversations", points))
	return m
}

func TestMemoryEnsureCollectionIdempotent(t *testing.T) {
	m := NewMemoryClient()
	ctx := context.Background()

	require.NoError(t, m.EnsureCollection(ctx, "kb", 4, nil))
	require.NoError(t, m.EnsureCollection(ctx, "kb", 4, nil))

	err := m.EnsureCollection(ctx, "kb", 8, nil)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestMemorySearchExactMatch(t *testing.T) {
	m := seedMemory(t)

	// Query with point 2's own vector and a near-1.0 threshold: only
	// point 2 itself is similar enough.
	hits, err := m.Search(context.Background(), "conversations", []float32{0, 1, 0, 0}, nil, 10, 0.99)

	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, uint64(2), hits[0].ID)
	assert.Equal(t, "b", hits[0].Payload["doc_id"])
	assert.InDelta(t, 1.0, float64(hits[0].Score), 1e-4)
}

func TestMemorySearchFilter(t *testing.T) {
	m := seedMemory(t)

	filter := NewFilterBuilder().Eq("user_id", "u2").Build()
	hits, err := m.Search(context.Background(), "conversations", []float32{1, 0, 0, 0}, filter, 10, 0)

	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, uint64(3), hits[0].ID)
}

func TestMemorySearchDimensionMismatch(t *testing.T) {
	m := seedMemory(t)

	_, err := m.Search(context.Background(), "conversations", []float32{1, 0}, nil, 10, 0)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	err = m.Upsert(context.Background(), "conversations", []Point{{ID: 9, Vector: []float32{1}}})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestMemoryUpsertOverwrites(t *testing.T) {
	m := seedMemory(t)
	ctx := context.Background()

	err := m.Upsert(ctx, "conversations", []Point{
		{ID: 2, Vector: []float32{0, 1, 0, 0}, Payload: map[string]interface{}{"doc_id": "b2"}},
	})
	require.NoError(t, err)

	n, err := m.Count(ctx, "conversations")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), n)

	hits, err := m.Search(ctx, "conversations", []float32{0, 1, 0, 0}, nil, 1, 0.99)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "b2", hits[0].Payload["doc_id"])
}

func TestMemorySetPayloadMerges(t *testing.T) {
	m := seedMemory(t)
	ctx := context.Background()

	require.NoError(t, m.SetPayload(ctx, "conversations", 1, map[string]interface{}{"feedback_score": 0.8}))

	hits, err := m.Search(ctx, "conversations", []float32{1, 0, 0, 0}, nil, 1, 0.99)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, 0.8, hits[0].Payload["feedback_score"])
	assert.Equal(t, "u1", hits[0].Payload["user_id"], "existing fields survive the merge")
}

func TestMemoryDelete(t *testing.T) {
	m := seedMemory(t)
	ctx := context.Background()

	require.NoError(t, m.Delete(ctx, "conversations", []uint64{2}))
	n, _ := m.Count(ctx, "conversations")
	assert.Equal(t, uint64(2), n)

	require.NoError(t, m.DeleteByFilter(ctx, "conversations", NewFilterBuilder().Eq("user_id", "u1").Build()))
	n, _ = m.Count(ctx, "conversations")
	assert.Equal(t, uint64(1), n)
}

func TestMemoryScrollPagination(t *testing.T) {
	m := seedMemory(t)
	ctx := context.Background()

	var ids []uint64
	var token ScrollToken
	pages := 0
	for {
		page, next, err := m.Scroll(ctx, "conversations", 2, token)
		require.NoError(t, err)
		if len(page) == 0 {
			break
		}
		pages++
		for _, p := range page {
			ids = append(ids, p.ID)
		}
		if next == nil {
			break
		}
		token = next
	}

	assert.Equal(t, []uint64{1, 2, 3}, ids)
	assert.Equal(t, 2, pages)
}

func TestMemoryUnknownCollection(t *testing.T) {
	m := NewMemoryClient()
	_, err := m.Count(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrCollectionNotFound)
}

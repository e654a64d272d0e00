package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/philippgille/chromem-go"
)

// MemoryClient is an embedded, in-process Client backed by chromem-go.
// It serves local development and tests without a running Qdrant
// instance. chromem handles the cosine nearest-neighbor search; payloads,
// filtering, and scroll run off a shadow map because chromem's metadata
// is string-only and it has no pagination API.
type MemoryClient struct {
	db *chromem.DB

	mu          sync.RWMutex
	collections map[string]*memoryCollection
}

type memoryCollection struct {
	dimension int
	col       *chromem.Collection
	points    map[uint64]Point
}

// NewMemoryClient creates an empty in-memory store.
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{
		db:          chromem.NewDB(),
		collections: make(map[string]*memoryCollection),
	}
}

// noEmbed rejects implicit embedding. All vectors are computed by the
// embedding gateway and passed in explicitly.
func noEmbed(_ context.Context, _ string) ([]float32, error) {
	return nil, errors.New("store does not embed; provide vectors explicitly")
}

func (m *MemoryClient) get(name string) (*memoryCollection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mc, ok := m.collections[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	return mc, nil
}

// EnsureCollection creates the collection when absent. Field indexes are
// accepted and ignored; the embedded store scans payloads directly.
func (m *MemoryClient) EnsureCollection(_ context.Context, name string, dimension int, _ []FieldIndex) error {
	if err := ValidateCollectionName(name); err != nil {
		return err
	}
	if dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive, got %d", ErrInvalidConfig, dimension)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.collections[name]; ok {
		if existing.dimension != dimension {
			return fmt.Errorf("%w: collection %s has dimension %d, requested %d",
				ErrDimensionMismatch, name, existing.dimension, dimension)
		}
		return nil
	}

	col, err := m.db.CreateCollection(name, nil, noEmbed)
	if err != nil {
		return fmt.Errorf("create collection %s: %w", name, err)
	}
	m.collections[name] = &memoryCollection{
		dimension: dimension,
		col:       col,
		points:    make(map[uint64]Point),
	}
	return nil
}

// Upsert writes points, overwriting existing ids.
func (m *MemoryClient) Upsert(ctx context.Context, name string, points []Point) error {
	mc, err := m.get(name)
	if err != nil {
		return err
	}

	for _, p := range points {
		if len(p.Vector) != mc.dimension {
			return fmt.Errorf("%w: got %d, collection %s expects %d",
				ErrDimensionMismatch, len(p.Vector), name, mc.dimension)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range points {
		err := mc.col.AddDocument(ctx, chromem.Document{
			ID:        strconv.FormatUint(p.ID, 10),
			Embedding: p.Vector,
		})
		if err != nil {
			return fmt.Errorf("upsert point %d: %w", p.ID, err)
		}
		mc.points[p.ID] = Point{ID: p.ID, Vector: p.Vector, Payload: clonePayload(p.Payload)}
	}
	return nil
}

// SetPayload merges fields into an existing point's payload.
func (m *MemoryClient) SetPayload(_ context.Context, name string, id uint64, fields map[string]interface{}) error {
	mc, err := m.get(name)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := mc.points[id]
	if !ok {
		return fmt.Errorf("point %d not found in %s", id, name)
	}
	if p.Payload == nil {
		p.Payload = make(map[string]interface{}, len(fields))
	}
	for k, v := range fields {
		p.Payload[k] = v
	}
	mc.points[id] = p
	return nil
}

// Search runs cosine nearest-neighbor search through chromem, then
// applies the filter and score threshold against the shadow payloads.
func (m *MemoryClient) Search(ctx context.Context, name string, vector []float32, filter *Filter, topK int, minScore float32) ([]ScoredPoint, error) {
	mc, err := m.get(name)
	if err != nil {
		return nil, err
	}
	if len(vector) != mc.dimension {
		return nil, fmt.Errorf("%w: got %d, collection %s expects %d",
			ErrDimensionMismatch, len(vector), name, mc.dimension)
	}
	if topK <= 0 {
		return nil, fmt.Errorf("topK must be positive, got %d", topK)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	count := mc.col.Count()
	if count == 0 {
		return nil, nil
	}

	// Over-fetch when filtering so post-filter trimming still yields topK.
	n := count
	if filter.IsEmpty() && topK < n {
		n = topK
	}

	hits, err := mc.col.QueryEmbedding(ctx, vector, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", name, err)
	}

	results := make([]ScoredPoint, 0, topK)
	for _, hit := range hits {
		if hit.Similarity < minScore {
			continue
		}
		id, err := strconv.ParseUint(hit.ID, 10, 64)
		if err != nil {
			continue
		}
		p, ok := mc.points[id]
		if !ok || !filter.Matches(p.Payload) {
			continue
		}
		results = append(results, ScoredPoint{
			ID:      id,
			Score:   hit.Similarity,
			Payload: clonePayload(p.Payload),
		})
		if len(results) == topK {
			break
		}
	}
	return results, nil
}

// Delete removes points by id.
func (m *MemoryClient) Delete(ctx context.Context, name string, ids []uint64) error {
	mc, err := m.get(name)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		if _, ok := mc.points[id]; !ok {
			continue
		}
		if err := mc.col.Delete(ctx, nil, nil, strconv.FormatUint(id, 10)); err != nil {
			return fmt.Errorf("delete point %d: %w", id, err)
		}
		delete(mc.points, id)
	}
	return nil
}

// DeleteByFilter removes all points matching the filter.
func (m *MemoryClient) DeleteByFilter(ctx context.Context, name string, filter *Filter) error {
	if filter.IsEmpty() {
		return fmt.Errorf("delete filter cannot be empty")
	}
	mc, err := m.get(name)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, p := range mc.points {
		if !filter.Matches(p.Payload) {
			continue
		}
		if err := mc.col.Delete(ctx, nil, nil, strconv.FormatUint(id, 10)); err != nil {
			return fmt.Errorf("delete point %d: %w", id, err)
		}
		delete(mc.points, id)
	}
	return nil
}

// Scroll pages through the collection in ascending id order. The token is
// the last id of the previous page.
func (m *MemoryClient) Scroll(_ context.Context, name string, limit int, token ScrollToken) ([]Point, ScrollToken, error) {
	mc, err := m.get(name)
	if err != nil {
		return nil, nil, err
	}
	if limit <= 0 {
		return nil, nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	var after uint64
	var haveAfter bool
	if token != nil {
		last, ok := token.(uint64)
		if !ok {
			return nil, nil, fmt.Errorf("invalid scroll token type %T", token)
		}
		after, haveAfter = last, true
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]uint64, 0, len(mc.points))
	for id := range mc.points {
		if haveAfter && id <= after {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	if len(ids) > limit {
		ids = ids[:limit]
	}
	page := make([]Point, len(ids))
	for i, id := range ids {
		p := mc.points[id]
		page[i] = Point{ID: id, Payload: clonePayload(p.Payload)}
	}

	var next ScrollToken
	if len(ids) == limit {
		next = ids[len(ids)-1]
	}
	return page, next, nil
}

// Count returns the number of points in the collection.
func (m *MemoryClient) Count(_ context.Context, name string) (uint64, error) {
	mc, err := m.get(name)
	if err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return uint64(len(mc.points)), nil
}

// HealthCheck always succeeds for the embedded store.
func (m *MemoryClient) HealthCheck(_ context.Context) error {
	return nil
}

// Close releases the store.
func (m *MemoryClient) Close() error {
	return nil
}

func clonePayload(payload map[string]interface{}) map[string]interface{} {
	if payload == nil {
		return nil
	}
	out := make(map[string]interface{}, len(payload))
	for k, v := range payload {
		out[k] = v
	}
	return out
}

var _ Client = (*MemoryClient)(nil)

package vectorstore

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Entry is one logical record to index: a stable key, its vector, and the
// payload envelope. The point id is derived from the key.
type Entry struct {
	Key     string
	Vector  []float32
	Payload Payload
}

// Collection wraps a Client for one named collection and applies the
// retrieval pipeline's degradation contract: transport and service errors
// are logged and swallowed into empty results or false, so a missing
// index never fails the user-facing request. The only error any method
// returns is ErrDimensionMismatch, which indicates misconfiguration and
// must surface.
type Collection struct {
	client    Client
	name      string
	dimension int
	indexes   []FieldIndex
	logger    *zap.Logger
}

// NewCollection creates the wrapper. The collection itself is created
// lazily by Ensure.
func NewCollection(client Client, name string, dimension int, indexes []FieldIndex, logger *zap.Logger) (*Collection, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: client required", ErrInvalidConfig)
	}
	if err := ValidateCollectionName(name); err != nil {
		return nil, err
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive, got %d", ErrInvalidConfig, dimension)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collection{
		client:    client,
		name:      name,
		dimension: dimension,
		indexes:   indexes,
		logger:    logger.With(zap.String("collection", name)),
	}, nil
}

// Name returns the collection name.
func (c *Collection) Name() string { return c.name }

// Dimension returns the configured vector dimension.
func (c *Collection) Dimension() int { return c.dimension }

// Ensure creates the collection and its field indexes when absent.
// Called at startup; unlike the data-path methods it returns transport
// errors, since starting without an index is worth knowing about.
func (c *Collection) Ensure(ctx context.Context) error {
	return c.client.EnsureCollection(ctx, c.name, c.dimension, c.indexes)
}

func (c *Collection) checkDimension(vector []float32) error {
	if len(vector) != c.dimension {
		return fmt.Errorf("%w: got %d, collection %s expects %d",
			ErrDimensionMismatch, len(vector), c.name, c.dimension)
	}
	return nil
}

// Upsert indexes one record. Returns false on transport failure; the
// error is non-nil only for a dimension mismatch.
func (c *Collection) Upsert(ctx context.Context, key string, vector []float32, payload Payload) (bool, error) {
	return c.UpsertMany(ctx, []Entry{{Key: key, Vector: vector, Payload: payload}})
}

// UpsertMany indexes a batch of records in one call. All-or-nothing: a
// dimension mismatch on any entry rejects the whole batch.
func (c *Collection) UpsertMany(ctx context.Context, entries []Entry) (bool, error) {
	if len(entries) == 0 {
		return true, nil
	}
	points := make([]Point, len(entries))
	for i, e := range entries {
		if err := c.checkDimension(e.Vector); err != nil {
			return false, err
		}
		points[i] = Point{
			ID:      PointID(e.Key),
			Vector:  e.Vector,
			Payload: e.Payload.ToMap(),
		}
	}
	if err := c.client.Upsert(ctx, c.name, points); err != nil {
		c.logger.Warn("upsert failed, record not indexed",
			zap.Int("count", len(points)),
			zap.Error(err),
		)
		return false, nil
	}
	return true, nil
}

// SetPayload merges fields into the record's payload without re-embedding.
func (c *Collection) SetPayload(ctx context.Context, key string, fields map[string]interface{}) bool {
	if len(fields) == 0 {
		return true
	}
	if err := c.client.SetPayload(ctx, c.name, PointID(key), fields); err != nil {
		c.logger.Warn("payload update failed",
			zap.String("key", key),
			zap.Error(err),
		)
		return false
	}
	return true
}

// Search returns the topK nearest hits above minScore, decoded into
// payload envelopes. Transport failure yields an empty slice.
func (c *Collection) Search(ctx context.Context, vector []float32, filter *Filter, topK int, minScore float32) ([]ScoredPayload, error) {
	if err := c.checkDimension(vector); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, nil
	}
	hits, err := c.client.Search(ctx, c.name, vector, filter, topK, minScore)
	if err != nil {
		c.logger.Warn("search failed, returning no results", zap.Error(err))
		return nil, nil
	}
	results := make([]ScoredPayload, len(hits))
	for i, hit := range hits {
		results[i] = ScoredPayload{
			Payload: PayloadFromMap(hit.Payload),
			Score:   hit.Score,
		}
	}
	return results, nil
}

// Delete removes the record for the key.
func (c *Collection) Delete(ctx context.Context, key string) bool {
	if err := c.client.Delete(ctx, c.name, []uint64{PointID(key)}); err != nil {
		c.logger.Warn("delete failed",
			zap.String("key", key),
			zap.Error(err),
		)
		return false
	}
	return true
}

// DeleteByFilter removes all records matching the filter.
func (c *Collection) DeleteByFilter(ctx context.Context, filter *Filter) bool {
	if filter.IsEmpty() {
		c.logger.Warn("refusing unfiltered delete")
		return false
	}
	if err := c.client.DeleteByFilter(ctx, c.name, filter); err != nil {
		c.logger.Warn("filtered delete failed", zap.Error(err))
		return false
	}
	return true
}

// Count returns the number of indexed records, zero on failure.
func (c *Collection) Count(ctx context.Context) uint64 {
	n, err := c.client.Count(ctx, c.name)
	if err != nil {
		c.logger.Warn("count failed", zap.Error(err))
		return 0
	}
	return n
}

// Available reports whether the backing index answers a health probe.
func (c *Collection) Available(ctx context.Context) bool {
	if err := c.client.HealthCheck(ctx); err != nil {
		c.logger.Warn("index unavailable", zap.Error(err))
		return false
	}
	return true
}

// ScrollAll returns an iterator over every record in the collection.
func (c *Collection) ScrollAll(pageSize int) *Scroller {
	if pageSize <= 0 {
		pageSize = 100
	}
	return &Scroller{collection: c, pageSize: pageSize}
}

// Scroller pages through a collection. Next returns one page at a time;
// a false second return means the sequence is exhausted or the transport
// failed (logged, never returned).
type Scroller struct {
	collection *Collection
	pageSize   int
	token      ScrollToken
	done       bool
}

// Next fetches the next page of payload envelopes.
func (s *Scroller) Next(ctx context.Context) ([]Payload, bool) {
	if s.done {
		return nil, false
	}
	points, next, err := s.collection.client.Scroll(ctx, s.collection.name, s.pageSize, s.token)
	if err != nil {
		s.collection.logger.Warn("scroll failed, stopping iteration", zap.Error(err))
		s.done = true
		return nil, false
	}
	s.token = next
	if next == nil {
		s.done = true
	}
	if len(points) == 0 {
		return nil, false
	}
	page := make([]Payload, len(points))
	for i, p := range points {
		page[i] = PayloadFromMap(p.Payload)
	}
	return page, true
}

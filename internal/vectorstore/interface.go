package vectorstore

import (
	"context"
	"errors"
)

// Sentinel errors for vector store operations.
var (
	// ErrCollectionNotFound is returned when a collection does not exist.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrConnectionFailed indicates the index service is unreachable.
	ErrConnectionFailed = errors.New("failed to connect to vector index")

	// ErrDimensionMismatch indicates a vector whose length does not match
	// the collection's configured dimension. This is a misconfiguration
	// and is never swallowed.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrInvalidCollectionName indicates collection name validation failure.
	ErrInvalidCollectionName = errors.New("invalid collection name")
)

// FieldIndex declares a secondary payload index used for filtered search.
type FieldIndex struct {
	// Field is the payload key to index.
	Field string

	// Kind is "keyword" for exact-match fields or "integer"/"float" for
	// range fields.
	Kind string
}

// Point is one (id, vector, payload) entry in a collection.
type Point struct {
	ID      uint64
	Vector  []float32
	Payload map[string]interface{}
}

// ScoredPoint is a search hit: the stored payload plus its similarity
// score as returned by the index service.
type ScoredPoint struct {
	ID      uint64
	Score   float32
	Payload map[string]interface{}
}

// ScrollToken is an opaque continuation token returned by Scroll. A nil
// token starts from the beginning; a nil next-token means the sequence is
// exhausted.
type ScrollToken interface{}

// Client implements raw point operations against one vector index backend.
//
// Implementations return errors; the Collection wrapper decides which of
// those the pipeline swallows.
type Client interface {
	// EnsureCollection checks existence and creates the collection (cosine
	// distance, the given dimension) plus its field indexes when absent.
	// Idempotent.
	EnsureCollection(ctx context.Context, name string, dimension int, indexes []FieldIndex) error

	// Upsert writes points with last-write-wins semantics.
	Upsert(ctx context.Context, name string, points []Point) error

	// SetPayload merges fields into the payload of an existing point
	// without touching its vector.
	SetPayload(ctx context.Context, name string, id uint64, fields map[string]interface{}) error

	// Search performs filtered nearest-neighbor search, dropping results
	// below minScore, limited to topK, ordered by descending score.
	Search(ctx context.Context, name string, vector []float32, filter *Filter, topK int, minScore float32) ([]ScoredPoint, error)

	// Delete removes points by id.
	Delete(ctx context.Context, name string, ids []uint64) error

	// DeleteByFilter removes all points matching the filter.
	DeleteByFilter(ctx context.Context, name string, filter *Filter) error

	// Scroll returns one page of points and the continuation token for the
	// next page. A fresh call with a nil token restarts from the beginning.
	Scroll(ctx context.Context, name string, limit int, token ScrollToken) ([]Point, ScrollToken, error)

	// Count returns the number of points in the collection.
	Count(ctx context.Context, name string) (uint64, error)

	// HealthCheck probes the index service.
	HealthCheck(ctx context.Context) error

	// Close releases the connection.
	Close() error
}

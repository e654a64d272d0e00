package vectorstore

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/fyrsmithlabs/augmentd/internal/config"
	"github.com/fyrsmithlabs/augmentd/internal/retry"
)

// Tracer for OpenTelemetry instrumentation.
var tracer = otel.Tracer("augmentd.vectorstore.qdrant")

// collectionNamePattern validates collection names: lowercase letters,
// numbers, underscores, 1-64 characters.
var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// ValidateCollectionName rejects names with uppercase, special characters,
// path traversal, or spaces.
func ValidateCollectionName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: collection name cannot be empty", ErrInvalidCollectionName)
	}
	if !collectionNamePattern.MatchString(name) {
		return fmt.Errorf("%w: collection name must match ^[a-z0-9_]{1,64}$, got %q", ErrInvalidCollectionName, name)
	}
	return nil
}

// IsTransientError checks if a gRPC error should be retried.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch st.Code() {
	case grpccodes.Unavailable, grpccodes.DeadlineExceeded, grpccodes.Aborted, grpccodes.ResourceExhausted:
		return true
	default:
		return false
	}
}

// QdrantClient is the Client implementation backed by Qdrant's native gRPC
// transport (port 6334). gRPC avoids the HTTP layer's payload limits and
// gives binary protobuf encoding for large upsert batches.
type QdrantClient struct {
	client *qdrant.Client
	cfg    config.QdrantConfig
	policy retry.Policy

	// created caches ensured collections to avoid repeated existence checks.
	created sync.Map

	breaker struct {
		mu       sync.Mutex
		failures int
		lastFail time.Time
	}
}

const (
	breakerThreshold = 5
	breakerCooldown  = 30 * time.Second
)

// NewQdrantClient connects to the configured Qdrant instance and verifies
// the connection with a health check.
func NewQdrantClient(cfg config.QdrantConfig) (*QdrantClient, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("%w: host required", ErrInvalidConfig)
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("%w: invalid port: %d", ErrInvalidConfig, cfg.Port)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		UseTLS: cfg.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(cfg.MaxMessageSize),
				grpc.MaxCallSendMsgSize(cfg.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	c := &QdrantClient{
		client: client,
		cfg:    cfg,
		policy: retry.Policy{
			MaxAttempts:    cfg.MaxRetries + 1,
			BaseDelay:      cfg.RetryBackoff.Duration(),
			MaxDelay:       30 * time.Second,
			JitterFraction: 0.25,
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.HealthCheck(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("health check failed: %w", err)
	}

	return c, nil
}

// Close closes the gRPC connection.
func (c *QdrantClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// HealthCheck probes the Qdrant instance.
func (c *QdrantClient) HealthCheck(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "QdrantClient.HealthCheck")
	defer span.End()

	if _, err := c.client.HealthCheck(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("health check failed: %w", err)
	}
	span.SetStatus(codes.Ok, "healthy")
	return nil
}

// retryOperation retries an operation per the configured policy, gated by
// the circuit breaker.
func (c *QdrantClient) retryOperation(ctx context.Context, operationName string, operation func() error) error {
	if c.isCircuitOpen() {
		return fmt.Errorf("%s: circuit breaker open", operationName)
	}
	err := c.policy.Do(ctx, operation, IsTransientError)
	if err != nil {
		c.recordFailure()
		return fmt.Errorf("%s: %w", operationName, err)
	}
	c.resetBreaker()
	return nil
}

func (c *QdrantClient) recordFailure() {
	c.breaker.mu.Lock()
	defer c.breaker.mu.Unlock()
	c.breaker.failures++
	c.breaker.lastFail = time.Now()
}

func (c *QdrantClient) resetBreaker() {
	c.breaker.mu.Lock()
	defer c.breaker.mu.Unlock()
	c.breaker.failures = 0
}

func (c *QdrantClient) isCircuitOpen() bool {
	c.breaker.mu.Lock()
	defer c.breaker.mu.Unlock()
	if c.breaker.failures >= breakerThreshold {
		if time.Since(c.breaker.lastFail) > breakerCooldown {
			c.breaker.failures = 0
			return false
		}
		return true
	}
	return false
}

// EnsureCollection creates the collection and its field indexes when
// absent. Check-then-create; safe to call on every startup.
func (c *QdrantClient) EnsureCollection(ctx context.Context, name string, dimension int, indexes []FieldIndex) error {
	ctx, span := tracer.Start(ctx, "QdrantClient.EnsureCollection")
	defer span.End()
	span.SetAttributes(
		attribute.String("collection", name),
		attribute.Int("dimension", dimension),
	)

	if err := ValidateCollectionName(name); err != nil {
		return err
	}
	if _, ok := c.created.Load(name); ok {
		return nil
	}

	var exists bool
	err := c.retryOperation(ctx, "collection_exists", func() error {
		ok, err := c.client.CollectionExists(ctx, name)
		if err != nil {
			return err
		}
		exists = ok
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return err
	}

	if !exists {
		err = c.retryOperation(ctx, "create_collection", func() error {
			return c.client.CreateCollection(ctx, &qdrant.CreateCollection{
				CollectionName: name,
				VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
					Size:     uint64(dimension),
					Distance: qdrant.Distance_Cosine,
				}),
			})
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}

		for _, idx := range indexes {
			idx := idx
			err = c.retryOperation(ctx, "create_field_index", func() error {
				_, err := c.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
					CollectionName: name,
					FieldName:      idx.Field,
					FieldType:      fieldType(idx.Kind),
				})
				return err
			})
			if err != nil {
				span.RecordError(err)
				return err
			}
		}
	}

	c.created.Store(name, true)
	span.SetStatus(codes.Ok, "success")
	return nil
}

func fieldType(kind string) *qdrant.FieldType {
	switch kind {
	case "integer":
		return qdrant.FieldType_FieldTypeInteger.Enum()
	case "float":
		return qdrant.FieldType_FieldTypeFloat.Enum()
	default:
		return qdrant.FieldType_FieldTypeKeyword.Enum()
	}
}

// Upsert writes points with last-write-wins semantics.
func (c *QdrantClient) Upsert(ctx context.Context, name string, points []Point) error {
	ctx, span := tracer.Start(ctx, "QdrantClient.Upsert")
	defer span.End()
	span.SetAttributes(
		attribute.String("collection", name),
		attribute.Int("point_count", len(points)),
	)

	if len(points) == 0 {
		return nil
	}

	qpoints := make([]*qdrant.PointStruct, len(points))
	for i, p := range points {
		qpoints[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDNum(p.ID),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: toQdrantPayload(p.Payload),
		}
	}

	err := c.retryOperation(ctx, "upsert", func() error {
		_, err := c.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: name,
			Points:         qpoints,
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// SetPayload merges fields into an existing point's payload, leaving its
// vector untouched.
func (c *QdrantClient) SetPayload(ctx context.Context, name string, id uint64, fields map[string]interface{}) error {
	ctx, span := tracer.Start(ctx, "QdrantClient.SetPayload")
	defer span.End()
	span.SetAttributes(attribute.String("collection", name))

	err := c.retryOperation(ctx, "set_payload", func() error {
		_, err := c.client.SetPayload(ctx, &qdrant.SetPayloadPoints{
			CollectionName: name,
			Payload:        toQdrantPayload(fields),
			PointsSelector: qdrant.NewPointsSelector(qdrant.NewIDNum(id)),
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetStatus(codes.Ok, "success")
	return nil
}

// Search delegates filtered nearest-neighbor search to Qdrant. Ordering is
// Qdrant's descending-score order; ties stay in service order.
func (c *QdrantClient) Search(ctx context.Context, name string, vector []float32, filter *Filter, topK int, minScore float32) ([]ScoredPoint, error) {
	ctx, span := tracer.Start(ctx, "QdrantClient.Search")
	defer span.End()
	span.SetAttributes(
		attribute.String("collection", name),
		attribute.Int("top_k", topK),
	)

	if topK <= 0 {
		return nil, fmt.Errorf("topK must be positive, got %d", topK)
	}

	query := &qdrant.QueryPoints{
		CollectionName: name,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
		Filter:         toQdrantFilter(filter),
	}
	if minScore > 0 {
		query.ScoreThreshold = qdrant.PtrOf(minScore)
	}

	var hits []*qdrant.ScoredPoint
	err := c.retryOperation(ctx, "search", func() error {
		res, err := c.client.Query(ctx, query)
		if err != nil {
			return err
		}
		hits = res
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	results := make([]ScoredPoint, len(hits))
	for i, hit := range hits {
		results[i] = ScoredPoint{
			ID:      hit.Id.GetNum(),
			Score:   hit.Score,
			Payload: fromQdrantPayload(hit.Payload),
		}
	}

	span.SetAttributes(attribute.Int("results_count", len(results)))
	span.SetStatus(codes.Ok, "success")
	return results, nil
}

// Delete removes points by id.
func (c *QdrantClient) Delete(ctx context.Context, name string, ids []uint64) error {
	ctx, span := tracer.Start(ctx, "QdrantClient.Delete")
	defer span.End()
	span.SetAttributes(attribute.String("collection", name), attribute.Int("id_count", len(ids)))

	if len(ids) == 0 {
		return nil
	}
	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = qdrant.NewIDNum(id)
	}

	err := c.retryOperation(ctx, "delete", func() error {
		_, err := c.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: name,
			Points:         qdrant.NewPointsSelector(pointIDs...),
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetStatus(codes.Ok, "success")
	return nil
}

// DeleteByFilter removes all points matching the filter.
func (c *QdrantClient) DeleteByFilter(ctx context.Context, name string, filter *Filter) error {
	ctx, span := tracer.Start(ctx, "QdrantClient.DeleteByFilter")
	defer span.End()
	span.SetAttributes(attribute.String("collection", name))

	qf := toQdrantFilter(filter)
	if qf == nil {
		return fmt.Errorf("delete filter cannot be empty")
	}

	err := c.retryOperation(ctx, "delete_by_filter", func() error {
		_, err := c.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: name,
			Points: &qdrant.PointsSelector{
				PointsSelectorOneOf: &qdrant.PointsSelector_Filter{Filter: qf},
			},
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetStatus(codes.Ok, "success")
	return nil
}

// Scroll pages through the collection using Qdrant's continuation offset.
func (c *QdrantClient) Scroll(ctx context.Context, name string, limit int, token ScrollToken) ([]Point, ScrollToken, error) {
	ctx, span := tracer.Start(ctx, "QdrantClient.Scroll")
	defer span.End()
	span.SetAttributes(attribute.String("collection", name), attribute.Int("limit", limit))

	req := &qdrant.ScrollPoints{
		CollectionName: name,
		Limit:          qdrant.PtrOf(uint32(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(false),
	}
	if token != nil {
		offset, ok := token.(*qdrant.PointId)
		if !ok {
			return nil, nil, fmt.Errorf("invalid scroll token type %T", token)
		}
		req.Offset = offset
	}

	var resp *qdrant.ScrollResponse
	err := c.retryOperation(ctx, "scroll", func() error {
		// The raw points client exposes the next-page offset the
		// convenience wrapper drops.
		r, err := c.client.GetPointsClient().Scroll(ctx, req)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, nil, err
	}

	points := make([]Point, len(resp.GetResult()))
	for i, rp := range resp.GetResult() {
		points[i] = Point{
			ID:      rp.Id.GetNum(),
			Payload: fromQdrantPayload(rp.Payload),
		}
	}

	var next ScrollToken
	if off := resp.GetNextPageOffset(); off != nil {
		next = off
	}

	span.SetAttributes(attribute.Int("results_count", len(points)))
	span.SetStatus(codes.Ok, "success")
	return points, next, nil
}

// Count returns the exact number of points in the collection.
func (c *QdrantClient) Count(ctx context.Context, name string) (uint64, error) {
	ctx, span := tracer.Start(ctx, "QdrantClient.Count")
	defer span.End()
	span.SetAttributes(attribute.String("collection", name))

	var count uint64
	err := c.retryOperation(ctx, "count", func() error {
		n, err := c.client.Count(ctx, &qdrant.CountPoints{
			CollectionName: name,
			Exact:          qdrant.PtrOf(true),
		})
		if err != nil {
			return err
		}
		count = n
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}
	return count, nil
}

// toQdrantPayload converts a payload map to Qdrant values. Supported
// scalar kinds: string, int family, float64, bool, plus string slices.
func toQdrantPayload(payload map[string]interface{}) map[string]*qdrant.Value {
	out := make(map[string]*qdrant.Value, len(payload))
	for k, v := range payload {
		switch val := v.(type) {
		case string:
			out[k] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: val}}
		case int:
			out[k] = &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(val)}}
		case int64:
			out[k] = &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: val}}
		case float64:
			out[k] = &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: val}}
		case bool:
			out[k] = &qdrant.Value{Kind: &qdrant.Value_BoolValue{BoolValue: val}}
		case []string:
			values := make([]*qdrant.Value, len(val))
			for i, s := range val {
				values[i] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: s}}
			}
			out[k] = &qdrant.Value{Kind: &qdrant.Value_ListValue{ListValue: &qdrant.ListValue{Values: values}}}
		}
	}
	return out
}

func fromQdrantPayload(payload map[string]*qdrant.Value) map[string]interface{} {
	out := make(map[string]interface{}, len(payload))
	for k, v := range payload {
		switch val := v.Kind.(type) {
		case *qdrant.Value_StringValue:
			out[k] = val.StringValue
		case *qdrant.Value_IntegerValue:
			out[k] = val.IntegerValue
		case *qdrant.Value_DoubleValue:
			out[k] = val.DoubleValue
		case *qdrant.Value_BoolValue:
			out[k] = val.BoolValue
		case *qdrant.Value_ListValue:
			items := make([]string, 0, len(val.ListValue.GetValues()))
			for _, item := range val.ListValue.GetValues() {
				if s, ok := item.Kind.(*qdrant.Value_StringValue); ok {
					items = append(items, s.StringValue)
				}
			}
			out[k] = items
		}
	}
	return out
}

// toQdrantFilter translates the portable filter to native conditions.
// AnyOf supports string and integer values.
func toQdrantFilter(f *Filter) *qdrant.Filter {
	if f.IsEmpty() {
		return nil
	}
	var must []*qdrant.Condition
	for field, value := range f.Equals {
		switch v := value.(type) {
		case string:
			must = append(must, qdrant.NewMatchKeyword(field, v))
		case int:
			must = append(must, qdrant.NewMatchInt(field, int64(v)))
		case int64:
			must = append(must, qdrant.NewMatchInt(field, v))
		case bool:
			must = append(must, qdrant.NewMatchBool(field, v))
		}
	}
	for field, values := range f.AnyOf {
		var keywords []string
		var ints []int64
		for _, value := range values {
			switch v := value.(type) {
			case string:
				keywords = append(keywords, v)
			case int:
				ints = append(ints, int64(v))
			case int64:
				ints = append(ints, v)
			}
		}
		if len(keywords) > 0 {
			must = append(must, qdrant.NewMatchKeywords(field, keywords...))
		}
		if len(ints) > 0 {
			must = append(must, qdrant.NewMatchInts(field, ints...))
		}
	}
	if len(must) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: must}
}

// Ensure QdrantClient implements Client.
var _ Client = (*QdrantClient)(nil)

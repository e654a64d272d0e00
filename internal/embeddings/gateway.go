package embeddings

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/augmentd/internal/config"
	"github.com/fyrsmithlabs/augmentd/internal/retry"
)

// ProgressFunc is invoked after every completed item or batch with the
// number of completed texts and the total. It is advisory only and must not
// block for long; it is called synchronously from the batch loop.
type ProgressFunc func(completed, total int)

// BatchOptions tunes a single EmbedBatch call.
type BatchOptions struct {
	// BatchSize overrides the configured native batch size when > 0.
	BatchSize int

	// Progress receives (completed, total) updates. Optional.
	Progress ProgressFunc
}

// Gateway converts text to embedding vectors with caching, retry, and
// graduated degradation. All failures surface as absent results, never as
// errors: a missing vector means "skip augmentation for this text".
type Gateway struct {
	cfg     config.EmbeddingConfig
	client  *client
	cache   *vectorCache
	policy  retry.Policy
	limiter *rate.Limiter
	metrics *Metrics
	logger  *zap.Logger
}

// NewGateway creates a gateway for the configured inference server.
func NewGateway(cfg config.EmbeddingConfig, logger *zap.Logger) (*Gateway, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: base URL required", ErrInvalidConfig)
	}
	if cfg.BatchSize < 1 {
		return nil, fmt.Errorf("%w: batch size must be >= 1, got %d", ErrInvalidConfig, cfg.BatchSize)
	}
	if cfg.Concurrency < 1 {
		return nil, fmt.Errorf("%w: concurrency must be >= 1, got %d", ErrInvalidConfig, cfg.Concurrency)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	fallbackInterval := cfg.FallbackDelay.Duration()
	if fallbackInterval <= 0 {
		fallbackInterval = 200 * time.Millisecond
	}

	return &Gateway{
		cfg:     cfg,
		client:  newClient(cfg),
		cache:   newVectorCache(cfg.CacheSize, cfg.CacheTTL.Duration()),
		policy:  retry.DefaultPolicy(),
		limiter: rate.NewLimiter(rate.Every(fallbackInterval), 1),
		metrics: NewMetrics(logger),
		logger:  logger,
	}, nil
}

// Embed converts one text to a vector. The second return is false when the
// server is unavailable, rejects the request, or returns a malformed body.
func (g *Gateway) Embed(ctx context.Context, text string) ([]float32, bool) {
	if text == "" {
		return nil, false
	}
	if vec, ok := g.cache.get(text); ok {
		g.metrics.RecordCacheHit(ctx, g.cfg.Model)
		return vec, true
	}

	start := time.Now()
	vec, err := g.client.embedOne(ctx, text, g.cfg.RequestTimeout.Duration())
	g.metrics.RecordGeneration(ctx, g.cfg.Model, "embed", time.Since(start), 1, err)
	if err != nil {
		g.logger.Warn("embedding request failed",
			zap.String("model", g.cfg.Model),
			zap.Int("text_len", len(text)),
			zap.Error(err))
		return nil, false
	}

	g.cache.put(text, vec)
	return vec, true
}

// EmbedBatch converts texts to vectors, preserving input order. Entries
// that could not be embedded are nil. Cached texts never hit the network.
//
// Failure handling is graduated: a batch that keeps failing is retried as
// two half batches, and a failing half degrades to paced per-item calls
// with bounded concurrency, so one bad text costs one result, not the job.
func (g *Gateway) EmbedBatch(ctx context.Context, texts []string, opts BatchOptions) [][]float32 {
	results := make([][]float32, len(texts))
	if len(texts) == 0 {
		return results
	}

	batchSize := opts.BatchSize
	if batchSize < 1 {
		batchSize = g.cfg.BatchSize
	}

	tracker := newProgressTracker(len(texts), opts.Progress)

	// Resolve cache hits up front.
	var missIdx []int
	for i, text := range texts {
		if text == "" {
			tracker.add(ctx, 1)
			continue
		}
		if vec, ok := g.cache.get(text); ok {
			g.metrics.RecordCacheHit(ctx, g.cfg.Model)
			results[i] = vec
			tracker.add(ctx, 1)
			continue
		}
		missIdx = append(missIdx, i)
	}

	for start := 0; start < len(missIdx); start += batchSize {
		end := start + batchSize
		if end > len(missIdx) {
			end = len(missIdx)
		}
		g.embedGroup(ctx, texts, results, missIdx[start:end], tracker, true)
	}

	return results
}

// embedGroup embeds the texts at the given indices as one batch call,
// degrading to halves and then per-item calls on persistent failure.
func (g *Gateway) embedGroup(ctx context.Context, texts []string, results [][]float32, idx []int, tracker *progressTracker, allowSplit bool) {
	if len(idx) == 0 {
		return
	}
	if len(idx) == 1 {
		g.embedItems(ctx, texts, results, idx, tracker)
		return
	}

	batch := make([]string, len(idx))
	for i, j := range idx {
		batch[i] = texts[j]
	}

	start := time.Now()
	vectors, err := g.embedManyWithRetry(ctx, batch)
	g.metrics.RecordGeneration(ctx, g.cfg.Model, "embed_batch", time.Since(start), len(batch), err)
	if err == nil {
		for i, j := range idx {
			results[j] = vectors[i]
			g.cache.put(texts[j], vectors[i])
		}
		tracker.add(ctx, len(idx))
		return
	}

	if allowSplit {
		g.logger.Warn("batch embedding failed, splitting into halves",
			zap.Int("batch_size", len(idx)),
			zap.Error(err))
		mid := len(idx) / 2
		g.embedGroup(ctx, texts, results, idx[:mid], tracker, false)
		g.embedGroup(ctx, texts, results, idx[mid:], tracker, false)
		return
	}

	g.logger.Warn("half batch embedding failed, falling back to per-item requests",
		zap.Int("batch_size", len(idx)),
		zap.Error(err))
	g.embedItems(ctx, texts, results, idx, tracker)
}

// embedItems is the last rung of the degradation ladder: independent
// single-item calls, paced by the fallback limiter with jitter, bounded by
// the configured concurrency. Results keep their input positions.
func (g *Gateway) embedItems(ctx context.Context, texts []string, results [][]float32, idx []int, tracker *progressTracker) {
	grp, grpCtx := errgroup.WithContext(ctx)
	grp.SetLimit(g.cfg.Concurrency)

	for _, j := range idx {
		j := j
		grp.Go(func() error {
			if err := g.limiter.Wait(grpCtx); err != nil {
				tracker.add(grpCtx, 1)
				return nil
			}
			// Desynchronize concurrent stragglers.
			time.Sleep(retry.Jitter(g.cfg.FallbackDelay.Duration()/4, g.policy.JitterFraction))

			start := time.Now()
			vec, err := g.client.embedOne(grpCtx, texts[j], g.cfg.RequestTimeout.Duration())
			g.metrics.RecordGeneration(grpCtx, g.cfg.Model, "embed_fallback", time.Since(start), 1, err)
			if err != nil {
				g.logger.Warn("fallback embedding failed, item skipped",
					zap.Int("index", j),
					zap.Error(err))
			} else {
				results[j] = vec
				g.cache.put(texts[j], vec)
			}
			tracker.add(grpCtx, 1)
			return nil
		})
	}
	_ = grp.Wait()
}

func (g *Gateway) embedManyWithRetry(ctx context.Context, batch []string) ([][]float32, error) {
	timeout := g.batchTimeout(len(batch))
	var vectors [][]float32
	err := g.policy.Do(ctx, func() error {
		v, err := g.client.embedMany(ctx, batch, timeout)
		if err != nil {
			return err
		}
		vectors = v
		return nil
	}, nil)
	if err != nil {
		return nil, err
	}
	return vectors, nil
}

// batchTimeout scales the request timeout with batch size, bounded by the
// configured ceiling so a huge batch cannot hang a caller indefinitely.
func (g *Gateway) batchTimeout(n int) time.Duration {
	timeout := g.cfg.RequestTimeout.Duration() + time.Duration(n)*g.cfg.BatchTimeoutPerItem.Duration()
	if ceiling := g.cfg.BatchTimeoutCeiling.Duration(); ceiling > 0 && timeout > ceiling {
		timeout = ceiling
	}
	return timeout
}

// IsAvailable reports whether the embedding server answers its health
// endpoint within the configured short timeout. Orchestration uses it to
// skip retrieval entirely when the server is down.
func (g *Gateway) IsAvailable(ctx context.Context) bool {
	if err := g.client.health(ctx, g.cfg.HealthTimeout.Duration()); err != nil {
		g.logger.Debug("embedding server unavailable", zap.Error(err))
		return false
	}
	return true
}

// CacheLen returns the number of cached vectors.
func (g *Gateway) CacheLen() int {
	return g.cache.len()
}

// CosineSimilarity computes dot(a,b) / (|a|*|b|). It returns 0 when the
// vectors differ in length or either norm is zero; it never panics.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// progressTracker serializes progress callbacks across the concurrent
// fallback path.
type progressTracker struct {
	mu        sync.Mutex
	completed int
	total     int
	fn        ProgressFunc
}

func newProgressTracker(total int, fn ProgressFunc) *progressTracker {
	return &progressTracker{total: total, fn: fn}
}

func (t *progressTracker) add(_ context.Context, n int) {
	t.mu.Lock()
	t.completed += n
	completed := t.completed
	fn := t.fn
	t.mu.Unlock()

	if fn != nil {
		fn(completed, t.total)
	}
}

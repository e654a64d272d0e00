// Package embeddings provides resilient text-to-vector conversion against a
// remote embedding inference server.
//
// The gateway caches vectors (LRU + TTL), retries transient batch failures
// with jittered exponential backoff, and degrades gracefully: a failing
// batch of N texts is retried as two halves, and a failing half falls back
// to paced one-at-a-time requests. A single malformed text therefore costs
// one item, never the whole job. Callers receive absent results instead of
// errors; the RAG pipeline treats a missing vector as "no context".
package embeddings

// Package vectorstore provides access to the external vector index service.
//
// A Client implements the raw point operations against one backend (Qdrant
// over gRPC for production, an embedded chromem-backed store for local and
// degraded operation). Collection wraps a Client for one named collection
// and applies the pipeline's resilience contract: transport and service
// failures are swallowed into empty results plus a warning log, so
// retrieval degrades to "no context" instead of failing the user-facing
// request. Only invariant violations (vector dimension mismatch) surface
// as errors, since they indicate misconfiguration.
package vectorstore

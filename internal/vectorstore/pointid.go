package vectorstore

import "hash/fnv"

// PointID derives a numeric point id from a stable logical key. The id is
// a pure function of the key, so re-indexing the same logical entity
// overwrites its point instead of duplicating it.
//
// FNV-1a 64 masked to the non-negative int63 space. Collisions between
// unrelated keys are possible and accepted: qdrant's numeric id type caps
// the space at 64 bits, and at realistic corpus sizes (tens of millions of
// points) the birthday bound stays below 1e-5. A collision overwrites the
// older point, which surfaces as a missing retrieval result, never as
// corruption.
func PointID(key string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return h.Sum64() & 0x7FFFFFFFFFFFFFFF
}

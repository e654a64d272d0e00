package vectorstore

import "time"

// Payload keys shared across collections.
const (
	KeyType      = "type"
	KeyDocID     = "doc_id"
	KeyContent   = "content"
	KeyCreatedAt = "created_at"
)

// Payload is the typed envelope around an index point's payload map: a
// small closed set of known fields plus an Extra side-map for
// domain-specific keys. The envelope keeps compile-time safety while
// tolerating schema drift from the external index service: unknown keys
// land in Extra instead of being dropped.
type Payload struct {
	// Type tags the payload kind (conversation, knowledge document, code
	// chunk). Used as a search filter facet.
	Type string

	// DocID is the logical key the point id was derived from.
	DocID string

	// Content is the free-text body (may be a truncated preview).
	Content string

	// CreatedAt is the point's creation time.
	CreatedAt time.Time

	// Extra holds domain-specific fields outside the closed set.
	Extra map[string]interface{}
}

// ToMap flattens the envelope into the wire-level payload map.
func (p Payload) ToMap() map[string]interface{} {
	m := make(map[string]interface{}, 4+len(p.Extra))
	for k, v := range p.Extra {
		m[k] = v
	}
	if p.Type != "" {
		m[KeyType] = p.Type
	}
	if p.DocID != "" {
		m[KeyDocID] = p.DocID
	}
	if p.Content != "" {
		m[KeyContent] = p.Content
	}
	if !p.CreatedAt.IsZero() {
		m[KeyCreatedAt] = p.CreatedAt.Unix()
	}
	return m
}

// PayloadFromMap rebuilds the envelope from a wire-level payload map.
// Unknown keys are preserved in Extra.
func PayloadFromMap(m map[string]interface{}) Payload {
	p := Payload{Extra: make(map[string]interface{})}
	for k, v := range m {
		switch k {
		case KeyType:
			p.Type, _ = v.(string)
		case KeyDocID:
			p.DocID, _ = v.(string)
		case KeyContent:
			p.Content, _ = v.(string)
		case KeyCreatedAt:
			if ts, ok := asFloat(v); ok {
				p.CreatedAt = time.Unix(int64(ts), 0).UTC()
			}
		default:
			p.Extra[k] = v
		}
	}
	return p
}

// ExtraString reads a string field from Extra, returning "" when absent.
func (p Payload) ExtraString(key string) string {
	s, _ := p.Extra[key].(string)
	return s
}

// ExtraInt reads an integer field from Extra, tolerating the numeric type
// drift of values read back from the index.
func (p Payload) ExtraInt(key string) int {
	if f, ok := asFloat(p.Extra[key]); ok {
		return int(f)
	}
	return 0
}

// ExtraFloat reads a float field from Extra.
func (p Payload) ExtraFloat(key string) float64 {
	f, _ := asFloat(p.Extra[key])
	return f
}

// ScoredPayload is a search hit after envelope decoding.
type ScoredPayload struct {
	Payload Payload
	Score   float32
}

// Package models defines the data structures shared by the memory engine's
// storage, graph, and retrieval components.
package models

import "time"

// ExperienceType classifies the kind of experience an episode records.
type ExperienceType string

const (
	Observation  ExperienceType = "observation"
	Decision     ExperienceType = "decision"
	Learning     ExperienceType = "learning"
	Error        ExperienceType = "error"
	Pattern      ExperienceType = "pattern"
	Context      ExperienceType = "context"
	Conversation ExperienceType = "conversation"
	Sensor       ExperienceType = "sensor"
)

// ValidExperienceType reports whether t is one of the recognized types.
func ValidExperienceType(t ExperienceType) bool {
	switch t {
	case Observation, Decision, Learning, Error, Pattern, Context, Conversation, Sensor:
		return true
	default:
		return false
	}
}

// Tier is an episode's lifecycle bucket, driven by the scheduler's decay
// pass rather than by direct caller mutation.
type Tier string

const (
	TierWorking  Tier = "working"
	TierSession  Tier = "session"
	TierLongTerm Tier = "long_term"
	TierArchive  Tier = "archive"
)

// MaxContentBytes is the largest content payload record() accepts.
const MaxContentBytes = 16 * 1024

// Episode is one stored memory record. Immutable after creation except for
// the mutable stats (AccessCount, LastAccess, Tier, Importance after decay).
type Episode struct {
	ID             string            `cbor:"id"`
	UserID         string            `cbor:"user_id"`
	Content        string            `cbor:"content"`
	ContentHash    uint64            `cbor:"content_hash"`
	ExperienceType ExperienceType    `cbor:"experience_type"`
	Tags           []string          `cbor:"tags,omitempty"`
	CreatedAt      time.Time         `cbor:"created_at"`
	Importance     float32           `cbor:"importance"`
	AccessCount    uint32            `cbor:"access_count"`
	LastAccess     time.Time         `cbor:"last_access"`
	Tier           Tier              `cbor:"tier"`
	EmbeddingRef   int64             `cbor:"embedding_ref"` // handle into the VectorIndex, -1 if none
	Metadata       map[string]string `cbor:"metadata,omitempty"`

	// Gist holds the compressed summary once Importance < 0.1; Content is
	// then cleared from the hot path and the original moves to the cold
	// segment (see ColdRef).
	Gist    string   `cbor:"gist,omitempty"`
	ColdRef *ColdRef `cbor:"cold_ref,omitempty"`
}

// ColdRef locates an episode's original content inside a user's cold
// segment file after compression.
type ColdRef struct {
	Offset int64 `cbor:"offset"`
	Length int64 `cbor:"length"`
}

// Compressed reports whether the episode has been gist-compressed.
func (e *Episode) Compressed() bool {
	return e.ColdRef != nil
}

// RetrievalResult is one entry of a retrieve() response.
type RetrievalResult struct {
	MemoryID  string    `json:"memory_id"`
	Content   string    `json:"content"`
	Relevance float64   `json:"relevance"`
	CreatedAt time.Time `json:"created_at"`
}

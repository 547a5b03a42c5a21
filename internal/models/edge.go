package models

import "time"

// EdgeKind distinguishes why two entities are connected.
type EdgeKind string

const (
	Coactivates   EdgeKind = "coactivates"
	RelatedTo     EdgeKind = "related_to"
	MentionedWith EdgeKind = "mentioned_with"
)

// VerbEdgeKind builds the Verb(v) edge kind tag for verb v, e.g. "verb:fixed".
func VerbEdgeKind(verb string) EdgeKind {
	return EdgeKind("verb:" + verb)
}

// WMax is the weight cap for any edge.
const WMax = 10.0

// WEpsilon is the weight floor below which a decayed edge becomes eligible
// for garbage collection after GCTTL.
const WEpsilon = 1e-4

// GCTTL is how long an edge must sit below WEpsilon before collection.
const GCTTL = 30 * 24 * time.Hour

// LTPThreshold is the coactivation count at which the long-term-potentiation
// weight floor (0.5) takes effect.
const LTPThreshold = 5

// Edge is a directed (FromID, ToID, Kind) connection between two entities in
// the same user namespace. Coactivation edges are stored with FromID < ToID
// (sorted endpoint pair) since they are semantically undirected; Verb edges
// are ordered subject->object.
type Edge struct {
	FromID     int64     `cbor:"from_id"`
	ToID       int64     `cbor:"to_id"`
	Kind       EdgeKind  `cbor:"kind"`
	Weight     float64   `cbor:"weight"`
	CoactCount uint32    `cbor:"coact_count"`
	LastUpdate time.Time `cbor:"last_update"`
	BelowFloor time.Time `cbor:"below_floor,omitempty"` // zero if weight >= WEpsilon
}

// EffectiveFloor returns the minimum weight this edge may decay to, given
// its coactivation history (LTP).
func (e *Edge) EffectiveFloor() float64 {
	if e.CoactCount >= LTPThreshold {
		return 0.5
	}
	return 0
}

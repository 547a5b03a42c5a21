package models

import "time"

// EntityType classifies an entity node in the knowledge graph.
type EntityType string

const (
	Person       EntityType = "person"
	Organization EntityType = "organization"
	Technology   EntityType = "technology"
	Location     EntityType = "location"
	Concept      EntityType = "concept"
	Event        EntityType = "event"
	Product      EntityType = "product"
	Other        EntityType = "other"
)

// EntityNode is a node in the per-user knowledge graph. Invariant:
// (UserID, CanonicalName) is unique within a namespace.
type EntityNode struct {
	ID            int64      `cbor:"id"` // arena-local integer id, not globally unique
	UserID        string     `cbor:"user_id"`
	CanonicalName string     `cbor:"canonical_name"` // lowercased
	SurfaceForms  []string   `cbor:"surface_forms,omitempty"`
	Type          EntityType `cbor:"type"`
	MentionCount  uint32     `cbor:"mention_count"`
	Salience      float64    `cbor:"salience"`
	FirstSeen     time.Time  `cbor:"first_seen"`
	LastSeen      time.Time  `cbor:"last_seen"`
}

// AddSurfaceForm records a new way this entity was written, if not already
// present.
func (n *EntityNode) AddSurfaceForm(form string) {
	for _, f := range n.SurfaceForms {
		if f == form {
			return
		}
	}
	n.SurfaceForms = append(n.SurfaceForms, form)
}

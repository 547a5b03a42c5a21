package models

// LinkRole classifies how an entity participates in an episode.
type LinkRole string

const (
	Subject   LinkRole = "subject"
	ObjectRole LinkRole = "object"
	Mentioned LinkRole = "mentioned"
)

// EpisodeEntityLink connects an episode to an entity it mentions. Invariant:
// both ids must exist in the same user namespace.
type EpisodeEntityLink struct {
	EpisodeID string   `cbor:"episode_id"`
	EntityID  int64    `cbor:"entity_id"`
	Role      LinkRole `cbor:"role"`
}

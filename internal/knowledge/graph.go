// Package knowledge implements the per-user entity/relationship knowledge
// graph: salience scoring, Hebbian coactivation strengthening, long-term
// potentiation, and multi-hop activation spreading.
package knowledge

import (
	"math"
	"strings"
	"sync"
	"time"

	"github.com/shodh/memory-engine/internal/models"
)

// DMax is the default multi-hop activation depth (open question resolved in
// SPEC_FULL.md §9: fixed constant, not runtime-configurable in this version).
const DMax = 3

// HopDecay is the per-hop attenuation factor in Activate.
const HopDecay = 0.5

// EtaEpisode and EtaRetrieval are the Hebbian learning rates for
// episode-coactivation and retrieval-coactivation respectively.
const (
	EtaEpisode   = 0.1
	EtaRetrieval = 0.05
)

// edgeKey identifies an edge by its sorted (for undirected kinds) or
// ordered (for Verb kinds) endpoint pair plus kind.
type edgeKey struct {
	from, to int64
	kind     models.EdgeKind
}

// Graph is one user's knowledge graph. All mutation happens under mu; stats
// counters are cached and recomputed by the mutating methods (Strengthen,
// DecayEdges and the upsert/restore/remove paths).
type Graph struct {
	mu sync.RWMutex

	byName map[string]int64 // canonical_name -> entity id
	nodes  map[int64]*models.EntityNode
	edges  map[edgeKey]*models.Edge
	nextID int64

	cachedNodes, cachedEdges int
	statsDirty               bool
}

// New creates an empty per-user graph.
func New() *Graph {
	return &Graph{
		byName:     make(map[string]int64),
		nodes:      make(map[int64]*models.EntityNode),
		edges:      make(map[edgeKey]*models.Edge),
		statsDirty: true,
	}
}

// Stats is the O(1) cached counters returned by stats().
type Stats struct {
	Nodes   int
	Edges   int
	Density float64
}

func (g *Graph) Stats() Stats {
	g.mu.RLock()
	defer g.mu.RUnlock()
	nodes, edges := g.cachedNodes, g.cachedEdges
	density := 0.0
	if nodes > 0 {
		density = float64(edges) / math.Max(1, float64(nodes))
	}
	return Stats{Nodes: nodes, Edges: edges, Density: density}
}

func (g *Graph) recomputeStatsLocked() {
	g.cachedNodes = len(g.nodes)
	g.cachedEdges = len(g.edges)
	g.statsDirty = false
}

// UpsertEntity creates the entity on first mention, or updates its mention
// count and salience if it already exists in this namespace. canonicalName
// must already be lowercased by the caller (spec: EntityNode is keyed on
// the lowercased canonical name).
func (g *Graph) UpsertEntity(userID, canonicalName, surfaceForm string, typ models.EntityType, proper bool, now time.Time) *models.EntityNode {
	g.mu.Lock()
	defer g.mu.Unlock()

	if id, ok := g.byName[canonicalName]; ok {
		n := g.nodes[id]
		n.MentionCount++
		n.LastSeen = now
		n.AddSurfaceForm(surfaceForm)
		n.Salience = salienceFor(proper, n.MentionCount)
		return n
	}

	g.nextID++
	n := &models.EntityNode{
		ID:            g.nextID,
		UserID:        userID,
		CanonicalName: canonicalName,
		SurfaceForms:  []string{surfaceForm},
		Type:          typ,
		MentionCount:  1,
		Salience:      salienceFor(proper, 1),
		FirstSeen:     now,
		LastSeen:      now,
	}
	g.nodes[n.ID] = n
	g.byName[canonicalName] = n.ID
	g.statsDirty = true
	g.recomputeStatsLocked()
	return n
}

// salienceFor implements spec §4.4's salience update formula.
func salienceFor(proper bool, mentionCount uint32) float64 {
	base := 0.4
	if proper {
		base = 0.7
	}
	s := base * (1 + 0.1*math.Log(1+float64(mentionCount)))
	return clamp01(s)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Touch updates an entity's recency when an episode mentions it. Graph only
// knows about entities and edges; the episode-entity links themselves are
// kept by the caller (engine.Namespace).
func (g *Graph) Touch(entityID int64, now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if n := g.nodes[entityID]; n != nil {
		n.LastSeen = now
	}
}

// Entity returns the node for id, or nil.
func (g *Graph) Entity(id int64) *models.EntityNode {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodes[id]
}

// EntityByName returns the node canonical to name, or nil.
func (g *Graph) EntityByName(name string) *models.EntityNode {
	g.mu.RLock()
	defer g.mu.RUnlock()
	id, ok := g.byName[strings.ToLower(name)]
	if !ok {
		return nil
	}
	return g.nodes[id]
}

// Strengthen applies Hebbian coactivation strengthening between a and b
// (kind defaults to Coactivates when kind == ""), using learning rate eta.
// Coactivation edges are stored with the lower id first since they are
// semantically undirected.
func (g *Graph) Strengthen(a, b int64, kind models.EdgeKind, eta float64, now time.Time) *models.Edge {
	if a == b {
		return nil
	}
	if kind == "" {
		kind = models.Coactivates
	}
	from, to := a, b
	undirected := !strings.HasPrefix(string(kind), "verb:")
	if undirected && from > to {
		from, to = to, from
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	key := edgeKey{from: from, to: to, kind: kind}
	e, ok := g.edges[key]
	if !ok {
		e = &models.Edge{FromID: from, ToID: to, Kind: kind}
		g.edges[key] = e
		g.statsDirty = true
	}
	e.Weight = math.Min(e.Weight+eta*(1-e.Weight/models.WMax), models.WMax)
	e.CoactCount++
	e.LastUpdate = now
	if e.EffectiveFloor() > e.Weight {
		e.Weight = e.EffectiveFloor()
	}
	g.recomputeStatsLocked()
	return e
}

// Edge returns the edge between a and b of the given kind, or nil.
func (g *Graph) Edge(a, b int64, kind models.EdgeKind) *models.Edge {
	from, to := a, b
	if !strings.HasPrefix(string(kind), "verb:") && from > to {
		from, to = to, from
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.edges[edgeKey{from: from, to: to, kind: kind}]
}

// Activate runs multi-hop BFS activation from seeds, per spec §4.4: each
// frontier node propagates score*edge.weight*decay^hop to its neighbors,
// accumulating the maximum score seen per node, visiting each node at most
// once, up to depth DMax.
func (g *Graph) Activate(seeds map[int64]float64, depth int) map[int64]float64 {
	if depth <= 0 {
		depth = DMax
	}
	g.mu.RLock()
	defer g.mu.RUnlock()

	scores := make(map[int64]float64, len(seeds))
	visited := make(map[int64]bool, len(seeds))
	type frontierEntry struct {
		id    int64
		score float64
	}
	var frontier []frontierEntry
	for id, s := range seeds {
		scores[id] = s
		visited[id] = true
		frontier = append(frontier, frontierEntry{id: id, score: s})
	}

	neighbors := g.neighborsOfLocked

	for hop := 1; hop <= depth && len(frontier) > 0; hop++ {
		var next []frontierEntry
		decay := math.Pow(HopDecay, float64(hop))
		for _, f := range frontier {
			for nb, w := range neighbors(f.id) {
				propagated := f.score * w * decay
				if existing, ok := scores[nb]; !ok || propagated > existing {
					scores[nb] = propagated
				}
				if !visited[nb] {
					visited[nb] = true
					next = append(next, frontierEntry{id: nb, score: f.score})
				}
			}
		}
		frontier = next
	}
	return scores
}

// neighborsOfLocked returns entityID -> edge weight for every edge touching
// id, in either direction. Must be called with mu held (read or write).
func (g *Graph) neighborsOfLocked(id int64) map[int64]float64 {
	out := make(map[int64]float64)
	for key, e := range g.edges {
		if key.from == id {
			out[key.to] = e.Weight
		} else if key.to == id {
			out[key.from] = e.Weight
		}
	}
	return out
}

// DecayEdges applies exponential time-decay to all edge weights, never
// taking a weight below its LTP floor, run by the scheduler's rolling shard.
// Edges that fall below models.WEpsilon start their GC clock; edges already
// below it for at least models.GCTTL are removed. Returns every decayed edge
// that was kept (not those removed), so the caller can log them to the WAL.
func (g *Graph) DecayEdges(lambda float64, now time.Time) []*models.Edge {
	g.mu.Lock()
	defer g.mu.Unlock()

	var changed []*models.Edge
	for key, e := range g.edges {
		ageDays := now.Sub(e.LastUpdate).Hours() / 24
		if ageDays <= 0 {
			continue
		}
		decayed := e.Weight * math.Exp(-lambda*ageDays)
		floor := e.EffectiveFloor()
		if decayed < floor {
			decayed = floor
		}
		e.Weight = decayed

		if e.Weight < models.WEpsilon {
			if e.BelowFloor.IsZero() {
				e.BelowFloor = now
			} else if now.Sub(e.BelowFloor) >= models.GCTTL {
				delete(g.edges, key)
				g.statsDirty = true
				continue
			}
		} else {
			e.BelowFloor = time.Time{}
		}
		changed = append(changed, e)
	}
	g.recomputeStatsLocked()
	return changed
}

// AllEdges returns every live edge, for snapshotting.
func (g *Graph) AllEdges() []*models.Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*models.Edge, 0, len(g.edges))
	for _, e := range g.edges {
		out = append(out, e)
	}
	return out
}

// RestoreEntity reinserts an entity node with its original id, used only by
// snapshot/WAL recovery. The graph's nextID counter is advanced past id so
// later UpsertEntity calls never collide with restored ids.
func (g *Graph) RestoreEntity(n *models.EntityNode) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nodes[n.ID] = n
	g.byName[n.CanonicalName] = n.ID
	if n.ID > g.nextID {
		g.nextID = n.ID
	}
	g.statsDirty = true
	g.recomputeStatsLocked()
}

// RestoreEdge reinserts an edge verbatim, used only by snapshot recovery.
func (g *Graph) RestoreEdge(e *models.Edge) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.edges[edgeKey{from: e.FromID, to: e.ToID, kind: e.Kind}] = e
	g.statsDirty = true
	g.recomputeStatsLocked()
}

// DecrementMention lowers an entity's mention count and drops the entity
// node once the count has returned to zero (spec §3: "destroyed only when mention_count returns to
// 0 after episode deletion").
func (g *Graph) DecrementMention(id int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := g.nodes[id]
	if n == nil {
		return
	}
	if n.MentionCount > 0 {
		n.MentionCount--
	}
	if n.MentionCount == 0 {
		delete(g.nodes, id)
		delete(g.byName, n.CanonicalName)
		g.statsDirty = true
		g.recomputeStatsLocked()
	}
}

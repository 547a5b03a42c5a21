// Package vectorindex implements a per-user Vamana/DiskANN-style
// approximate nearest neighbor graph index: greedy-search insert with
// RobustPrune, beam-search query, and tombstone-then-compact delete.
package vectorindex

import (
	"sort"
	"sync"

	"github.com/samber/lo"

	engineerrors "github.com/shodh/memory-engine/internal/errors"
)

// Params are the Vamana construction/search parameters from spec §4.3.
type Params struct {
	R     int     // max out-degree
	L     int     // search list size
	Alpha float64 // pruning slack
}

// DefaultParams returns the spec's defaults (R=32, L=64, alpha=1.2).
func DefaultParams() Params {
	return Params{R: 32, L: 64, Alpha: 1.2}
}

type node struct {
	id        int64
	vector    []float32
	neighbors []int64
	tombstone bool
}

// Index is a single user's ANN partition. Insert, Delete, Compact and
// Restore take the index's write lock themselves; Search takes the read lock
// and is safe to call concurrently with itself.
type Index struct {
	params Params
	dim    int

	mu       sync.RWMutex
	nodes    map[int64]*node
	entry    int64 // entry point id, -1 if empty
	centroid []float32
	count    int // live (non-tombstoned) node count
	tombs    int
}

// New creates an empty index for the given embedding dimension.
func New(dim int, params Params) *Index {
	return &Index{
		params: params,
		dim:    dim,
		nodes:  make(map[int64]*node),
		entry:  -1,
	}
}

// Len returns the number of live nodes.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.count
}

// TombstoneRatio returns tombs / max(1, total nodes), used by the scheduler
// to decide when to run Compact.
func (ix *Index) TombstoneRatio() float64 {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	total := ix.count + ix.tombs
	if total == 0 {
		return 0
	}
	return float64(ix.tombs) / float64(total)
}

// Insert adds id -> vector to the index. vector must already be unit-norm
// and of the configured dimension.
func (ix *Index) Insert(id int64, vector []float32) error {
	if len(vector) != ix.dim {
		return engineerrors.ErrDimensionMismatch
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	n := &node{id: id, vector: vector}
	ix.nodes[id] = n
	ix.updateCentroidLocked(vector)

	if ix.entry == -1 {
		ix.entry = id
		ix.count++
		ix.refreshEntryLocked()
		return nil
	}

	candidates := ix.greedySearchLocked(vector, ix.params.L, -1)
	pruned := ix.robustPruneLocked(id, vector, candidates, ix.params.Alpha, ix.params.R)
	n.neighbors = pruned

	// Back-edges: each pruned neighbor gains id, re-pruning if over-full.
	for _, nb := range pruned {
		nbNode := ix.nodes[nb]
		if nbNode == nil || nbNode.tombstone {
			continue
		}
		if !lo.Contains(nbNode.neighbors, id) {
			nbNode.neighbors = append(nbNode.neighbors, id)
		}
		if len(nbNode.neighbors) > ix.params.R {
			cands := ix.candidateSetLocked(nbNode.neighbors)
			nbNode.neighbors = ix.robustPruneLocked(nb, nbNode.vector, cands, ix.params.Alpha, ix.params.R)
		}
	}

	ix.count++
	ix.refreshEntryLocked()
	return nil
}

// Result is one scored hit from Search.
type Result struct {
	ID  int64
	Sim float64
}

// Search returns up to k nearest live, non-excluded neighbors of q by
// cosine similarity, using a beam of size max(L, k). excluded (if non-nil)
// is consulted to implement the archive-exclusion-by-default policy: nodes
// in excluded are still walked as stepping stones but never returned.
func (ix *Index) Search(q []float32, k int, excluded map[int64]bool) ([]Result, error) {
	if len(q) != ix.dim {
		return nil, engineerrors.ErrDimensionMismatch
	}
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if ix.count == 0 {
		return nil, nil
	}
	listSize := ix.params.L
	if k > listSize {
		listSize = k
	}

	visited := ix.greedySearchLocked(q, listSize, -1)
	results := make([]Result, 0, len(visited))
	for _, id := range visited {
		n := ix.nodes[id]
		if n == nil || n.tombstone {
			continue
		}
		if excluded != nil && excluded[id] {
			continue
		}
		results = append(results, Result{ID: id, Sim: cosine(q, n.vector)})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Sim != results[j].Sim {
			return results[i].Sim > results[j].Sim
		}
		return results[i].ID < results[j].ID // tie-break by lower id
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// EntryID returns the current entry point id, or -1 if the index is empty.
// Used by the persistence layer when writing a snapshot.
func (ix *Index) EntryID() int64 {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.entry
}

// Export returns every live node in a form the persistence layer can
// serialize, without exposing this package's internal node type.
func (ix *Index) Export() []Node {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make([]Node, 0, len(ix.nodes))
	for _, n := range ix.nodes {
		if n.tombstone {
			continue
		}
		out = append(out, Node{
			ID:        n.id,
			Vector:    n.vector,
			Neighbors: append([]int64(nil), n.neighbors...),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Restore rebuilds the index from a prior Export, used by snapshot
// recovery. The index must be empty before calling Restore.
func (ix *Index) Restore(nodes []Node, entry int64) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	for _, n := range nodes {
		ix.nodes[n.ID] = &node{id: n.ID, vector: n.Vector, neighbors: append([]int64(nil), n.Neighbors...)}
		ix.updateCentroidLocked(n.Vector)
		ix.count++
	}
	ix.entry = entry
	if ix.entry == -1 {
		ix.refreshEntryLocked()
	}
}

// Node is the serializable view of one live node returned by Export,
// decoupled from the package-private node type so callers outside
// vectorindex never see tombstone bookkeeping.
type Node struct {
	ID        int64
	Vector    []float32
	Neighbors []int64
}

// Delete tombstones id. The node's edges are left in place for lazy repair
// on next visit (RobustPrune skips tombstoned neighbors when encountered);
// Compact later removes them for real.
func (ix *Index) Delete(id int64) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	n, ok := ix.nodes[id]
	if !ok || n.tombstone {
		return engineerrors.ErrNotFound
	}
	n.tombstone = true
	ix.count--
	ix.tombs++

	if ix.entry == id {
		ix.refreshEntryLocked()
	}
	return nil
}

// Compact physically removes tombstoned nodes and drops them from the
// neighbor lists of live nodes. RobustPrune is not re-run: a live node left
// with no neighbors is linked to the entry point instead.
func (ix *Index) Compact() {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	var dead []int64
	for id, n := range ix.nodes {
		if n.tombstone {
			dead = append(dead, id)
		}
	}
	if len(dead) == 0 {
		return
	}
	deadSet := make(map[int64]bool, len(dead))
	for _, id := range dead {
		deadSet[id] = true
	}

	for _, n := range ix.nodes {
		if n.tombstone {
			continue
		}
		filtered := n.neighbors[:0:0]
		for _, nb := range n.neighbors {
			if !deadSet[nb] {
				filtered = append(filtered, nb)
			}
		}
		n.neighbors = filtered
		if len(n.neighbors) == 0 {
			// Reconnect to the entry point to preserve invariant (ii): every
			// live node has >=1 neighbor.
			if ix.entry != -1 && ix.entry != n.id {
				n.neighbors = append(n.neighbors, ix.entry)
			}
		}
	}
	for _, id := range dead {
		delete(ix.nodes, id)
		ix.tombs--
	}
	ix.refreshEntryLocked()
}

// greedySearchLocked performs beam search from the entry point, keeping a
// frontier of at most listSize nodes, and returns every node id it visited,
// in no particular order. excludeID, when >= 0, is skipped entirely; every
// current caller passes -1.
func (ix *Index) greedySearchLocked(q []float32, listSize int, excludeID int64) []int64 {
	if ix.entry == -1 {
		return nil
	}
	visited := make(map[int64]bool)
	type scored struct {
		id  int64
		sim float64
	}
	frontier := []scored{{id: ix.entry, sim: cosine(q, ix.nodes[ix.entry].vector)}}
	visited[ix.entry] = true

	for {
		sort.Slice(frontier, func(i, j int) bool { return frontier[i].sim > frontier[j].sim })
		if len(frontier) > listSize {
			frontier = frontier[:listSize]
		}

		expanded := false
		for _, f := range frontier {
			n := ix.nodes[f.id]
			if n == nil {
				continue
			}
			for _, nb := range n.neighbors {
				if nb == excludeID || visited[nb] {
					continue
				}
				nbNode := ix.nodes[nb]
				if nbNode == nil || nbNode.tombstone {
					continue
				}
				visited[nb] = true
				frontier = append(frontier, scored{id: nb, sim: cosine(q, nbNode.vector)})
				expanded = true
			}
		}
		if !expanded {
			break
		}
	}

	ids := make([]int64, 0, len(visited))
	for id := range visited {
		ids = append(ids, id)
	}
	return ids
}

func (ix *Index) candidateSetLocked(ids []int64) []int64 {
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		n := ix.nodes[id]
		if n != nil && !n.tombstone {
			out = append(out, id)
		}
	}
	return out
}

// robustPruneLocked implements RobustPrune(candidates, alpha, R): greedily
// keep the closest remaining candidate, then discard any candidate c' such
// that alpha * dist(kept, c') <= dist(p, c') (i.e. kept already covers c'
// well enough), repeating until R neighbors are kept or candidates run out.
func (ix *Index) robustPruneLocked(pID int64, pVec []float32, candidates []int64, alpha float64, r int) []int64 {
	type cand struct {
		id   int64
		dist float64
	}
	pool := make([]cand, 0, len(candidates))
	for _, id := range candidates {
		if id == pID {
			continue
		}
		n := ix.nodes[id]
		if n == nil || n.tombstone {
			continue
		}
		pool = append(pool, cand{id: id, dist: 1 - cosine(pVec, n.vector)})
	}
	sort.Slice(pool, func(i, j int) bool { return pool[i].dist < pool[j].dist })

	var kept []int64
	for len(pool) > 0 && len(kept) < r {
		best := pool[0]
		kept = append(kept, best.id)
		bestVec := ix.nodes[best.id].vector

		remaining := pool[1:][:0:0]
		for _, c := range pool[1:] {
			cVec := ix.nodes[c.id].vector
			distBestC := 1 - cosine(bestVec, cVec)
			if alpha*distBestC > c.dist {
				remaining = append(remaining, c)
			}
		}
		pool = remaining
	}
	return kept
}

func (ix *Index) updateCentroidLocked(v []float32) {
	if ix.centroid == nil {
		ix.centroid = make([]float32, len(v))
	}
	n := float32(ix.count + 1)
	for i := range ix.centroid {
		ix.centroid[i] = ix.centroid[i] + (v[i]-ix.centroid[i])/n
	}
}

// refreshEntryLocked re-selects the entry point as the live node whose
// vector is closest to the running centroid, scanning every live node.
func (ix *Index) refreshEntryLocked() {
	if ix.count == 0 {
		ix.entry = -1
		return
	}
	var best int64 = -1
	bestSim := -2.0
	for id, n := range ix.nodes {
		if n.tombstone {
			continue
		}
		sim := cosine(ix.centroid, n.vector)
		if sim > bestSim {
			bestSim = sim
			best = id
		}
	}
	ix.entry = best
}

func cosine(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

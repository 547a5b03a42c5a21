// Package engine wires the per-user components (store, graph, index, WAL)
// into namespaces and exposes the six public operations from spec §6.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shodh/memory-engine/internal/embedding"
	"github.com/shodh/memory-engine/internal/extract"
	"github.com/shodh/memory-engine/internal/knowledge"
	"github.com/shodh/memory-engine/internal/models"
	"github.com/shodh/memory-engine/internal/persistence"
	"github.com/shodh/memory-engine/internal/retrieve"
	"github.com/shodh/memory-engine/internal/scheduler"
	"github.com/shodh/memory-engine/internal/store"
	"github.com/shodh/memory-engine/internal/vectorindex"
)

// snapshotEventThreshold and snapshotInterval trigger a periodic snapshot,
// per spec §4.7 ("every 10k events or 10 minutes").
const (
	snapshotEventThreshold = 10_000
	snapshotInterval       = 10 * time.Minute
)

// Namespace bundles one user's store, graph, ANN index, and WAL behind a
// single rw-lock, matching spec §5's per-user single-writer discipline.
// Retrieve holds a read lock; Record, Delete, and the scheduler's decay and
// compaction passes hold the write lock.
type Namespace struct {
	mu         sync.RWMutex
	userID     string
	storageDir string

	embedder embedding.Embedder
	store    *store.Store
	graph    *knowledge.Graph
	index    *vectorindex.Index
	wal      *persistence.WAL
	cold     store.ColdWriter
	logger   *slog.Logger

	retriever *retrieve.Retriever

	// episode <-> entity link bookkeeping, owned here since neither store
	// nor graph knows about the other.
	episodeEntities map[string][]int64
	entityEpisodes  map[int64][]string

	// ANN node id <-> episode id translation. ANN ids are namespace-local
	// monotonic counters, independent of episode uuids.
	annToEpisode map[int64]string
	episodeToAnn map[string]int64
	nextAnnID    int64

	eventsSinceSnapshot int
	lastSnapshotAt      time.Time
	walSeq              uint64

	scheduleFn func(scheduler.PlasticityUpdate)
}

// recoverNamespace rebuilds a namespace from its most recent on-disk
// snapshot (if any) plus the WAL tail written since that snapshot, per spec
// §4.7's recovery procedure.
func recoverNamespace(userID, storageDir string, embedder embedding.Embedder, cold store.ColdWriter, logger *slog.Logger, schedule func(scheduler.PlasticityUpdate)) (*Namespace, error) {
	log := logger.With("user_id", userID)

	seq, found, err := latestSnapshotSeq(storageDir, userID)
	if err != nil {
		return nil, fmt.Errorf("scan snapshots for %s: %w", userID, err)
	}

	ns := &Namespace{
		userID:          userID,
		storageDir:      storageDir,
		embedder:        embedder,
		store:           store.New(userID, cold),
		graph:           knowledge.New(),
		index:           vectorindex.New(embedder.Dimension(), vectorindex.DefaultParams()),
		cold:            cold,
		logger:          log,
		episodeEntities: make(map[string][]int64),
		entityEpisodes:  make(map[int64][]string),
		annToEpisode:    make(map[int64]string),
		episodeToAnn:    make(map[string]int64),
		lastSnapshotAt:  time.Now(),
		scheduleFn:      schedule,
	}

	walSeq := uint64(0)
	if found {
		snap, err := persistence.ReadSnapshot(storageDir, userID, seq)
		if err != nil {
			log.Warn("snapshot load failed, starting from empty namespace", "seq", seq, "error", err)
		} else {
			ns.restoreFromSnapshot(snap)
			walSeq = seq + 1
		}
	}
	ns.walSeq = walSeq

	walFile := filepath.Join(storageDir, userID, fmt.Sprintf("wal-%d.log", walSeq))
	applied, err := persistence.ReplayWAL(walFile, ns.applyRecoveredEvent)
	if err != nil {
		log.Warn("wal replay stopped early, continuing from last good event", "applied", applied, "error", err)
	}
	if applied > 0 {
		log.Info("replayed wal events", "count", applied)
	}

	wal, err := persistence.OpenWAL(storageDir, userID, walSeq)
	if err != nil {
		return nil, fmt.Errorf("open wal for %s: %w", userID, err)
	}
	ns.wal = wal
	ns.wireRetriever()
	return ns, nil
}

func latestSnapshotSeq(storageDir, userID string) (uint64, bool, error) {
	matches, err := filepath.Glob(filepath.Join(storageDir, userID, "snapshot-*.bin"))
	if err != nil {
		return 0, false, err
	}
	var best uint64
	found := false
	for _, m := range matches {
		base := filepath.Base(m)
		var seq uint64
		if _, err := fmt.Sscanf(base, "snapshot-%d.bin", &seq); err != nil {
			continue
		}
		if !found || seq > best {
			best = seq
			found = true
		}
	}
	return best, found, nil
}

// restoreFromSnapshot rebuilds in-memory state from a loaded snapshot.
func (ns *Namespace) restoreFromSnapshot(snap persistence.Snapshot) {
	for _, ep := range snap.Episodes {
		ns.store.RestoreEpisode(ep)
		if ep.EmbeddingRef >= 0 {
			ns.annToEpisode[ep.EmbeddingRef] = ep.ID
			ns.episodeToAnn[ep.ID] = ep.EmbeddingRef
			if ep.EmbeddingRef >= ns.nextAnnID {
				ns.nextAnnID = ep.EmbeddingRef + 1
			}
		}
	}
	for _, n := range snap.Entities {
		ns.graph.RestoreEntity(n)
	}
	for _, e := range snap.Edges {
		ns.graph.RestoreEdge(e)
	}
	nodes := make([]vectorindex.Node, len(snap.ANNNodes))
	for i, n := range snap.ANNNodes {
		nodes[i] = vectorindex.Node{ID: n.ID, Vector: n.Vector, Neighbors: n.Neighbors}
	}
	ns.index.Restore(nodes, snap.ANNEntry)

	// The snapshot carries entities and episodes as separate sections with
	// no link table (spec §4.7), so episode<->entity links are rebuilt by
	// re-running extraction and matching against the already-restored
	// entities by canonical name, without touching mention counts or
	// salience (those came from the snapshot verbatim).
	for _, ep := range snap.Episodes {
		content := ep.Content
		if content == "" && ep.Gist != "" {
			content = ep.Gist
		}
		for _, e := range extract.Extract(content).Entities {
			node := ns.graph.EntityByName(strings.ToLower(e.Surface))
			if node == nil {
				continue
			}
			ns.episodeEntities[ep.ID] = append(ns.episodeEntities[ep.ID], node.ID)
			ns.entityEpisodes[node.ID] = append(ns.entityEpisodes[node.ID], ep.ID)
		}
	}
}

// applyRecoveredEvent replays one WAL event into this namespace's
// in-memory state.
func (ns *Namespace) applyRecoveredEvent(ev persistence.Event) error {
	switch ev.Kind {
	case persistence.EventRecord:
		if ev.Episode == nil {
			return nil
		}
		ns.store.RestoreEpisode(ev.Episode)
		if ev.Episode.EmbeddingRef >= 0 {
			ns.annToEpisode[ev.Episode.EmbeddingRef] = ev.Episode.ID
			ns.episodeToAnn[ev.Episode.ID] = ev.Episode.EmbeddingRef
			if ev.Episode.EmbeddingRef >= ns.nextAnnID {
				ns.nextAnnID = ev.Episode.EmbeddingRef + 1
			}
		}
		extraction := extract.Extract(ev.Episode.Content)
		ids := ns.linkEntitiesLocked(ev.Episode.ID, extraction, ev.Timestamp)
		ns.coactivateEpisodeEntitiesLocked(ids, ev.Timestamp)
	case persistence.EventDelete:
		ns.store.RestoreRemove(ev.EpisodeID)
		if annID, ok := ns.episodeToAnn[ev.EpisodeID]; ok {
			_ = ns.index.Delete(annID)
			delete(ns.annToEpisode, annID)
			delete(ns.episodeToAnn, ev.EpisodeID)
		}
	case persistence.EventEdgeUpdate:
		ns.graph.RestoreEdge(&models.Edge{
			FromID: ev.EdgeA, ToID: ev.EdgeB, Kind: ev.EdgeKind,
			Weight: ev.Weight, LastUpdate: ev.Timestamp,
		})
	case persistence.EventSalienceUpdate:
		ns.store.RestoreImportance(ev.EpisodeID, float32(ev.Salience))
	case persistence.EventTierChange:
		ns.store.RestoreTier(ev.EpisodeID, ev.Tier)
	}
	return nil
}

func (ns *Namespace) wireRetriever() {
	ns.retriever = retrieve.New(ns.embedder, ns.index, ns.graph, ns.store, ns, ns.episodeOfAnn)
}

// UserID implements scheduler.Namespace.
func (ns *Namespace) UserID() string { return ns.userID }

// EntitiesOf implements retrieve.EntityLinks.
func (ns *Namespace) EntitiesOf(episodeID string) []int64 {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	return append([]int64(nil), ns.episodeEntities[episodeID]...)
}

// EpisodesOf implements retrieve.EntityLinks.
func (ns *Namespace) EpisodesOf(entityID int64) []string {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	return append([]string(nil), ns.entityEpisodes[entityID]...)
}

func (ns *Namespace) episodeOfAnn(id int64) (string, bool) {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	epID, ok := ns.annToEpisode[id]
	return epID, ok
}

// record implements the Record operation (spec §6) for this namespace.
func (ns *Namespace) record(ctx context.Context, content string, expType models.ExperienceType, tags []string, metadata map[string]string, now time.Time) (*models.Episode, bool, error) {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	extraction := extract.Extract(content)

	outcome, err := ns.store.Record(content, expType, tags, extraction, now)
	if err != nil {
		return nil, false, err
	}
	ep := outcome.Episode
	if outcome.Duplicate {
		return ep, true, nil
	}
	if metadata != nil {
		ep.Metadata = metadata
	}

	vec, err := ns.embedder.Embed(ctx, content)
	if err != nil {
		return nil, false, err
	}
	annID := ns.nextAnnID
	ns.nextAnnID++
	if err := ns.index.Insert(annID, vec); err != nil {
		return nil, false, err
	}
	ep.EmbeddingRef = annID
	ns.annToEpisode[annID] = ep.ID
	ns.episodeToAnn[ep.ID] = annID

	entityIDs := ns.linkEntitiesLocked(ep.ID, extraction, now)
	ns.coactivateEpisodeEntitiesLocked(entityIDs, now)

	if err := ns.wal.Append(persistence.Event{
		Kind:      persistence.EventRecord,
		Timestamp: now,
		Episode:   ep,
	}); err != nil {
		ns.logger.Warn("wal append failed", "op", "record", "error", err)
	}
	ns.maybeSnapshotLocked(now)

	return ep, false, nil
}

// linkEntitiesLocked upserts every extracted entity into the graph and
// records the episode<->entity link, returning the resulting entity ids.
// Caller must hold ns.mu.
func (ns *Namespace) linkEntitiesLocked(episodeID string, extraction extract.Extraction, now time.Time) []int64 {
	ids := make([]int64, 0, len(extraction.Entities))
	for _, e := range extraction.Entities {
		canonical := strings.ToLower(e.Surface)
		node := ns.graph.UpsertEntity(ns.userID, canonical, e.Surface, e.Type, e.Class == extract.ProperNoun, now)
		ids = append(ids, node.ID)
		ns.episodeEntities[episodeID] = append(ns.episodeEntities[episodeID], node.ID)
		ns.entityEpisodes[node.ID] = append(ns.entityEpisodes[node.ID], episodeID)
	}
	return ids
}

// coactivateEpisodeEntitiesLocked strengthens every pair of entities that
// co-occurred in the same episode (spec §4.4: episode-time coactivation uses
// EtaEpisode, a stronger learning rate than retrieval-time coactivation).
func (ns *Namespace) coactivateEpisodeEntitiesLocked(ids []int64, now time.Time) {
	sorted := append([]int64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	for i := 0; i < len(sorted); i++ {
		for j := i + 1; j < len(sorted); j++ {
			if sorted[i] == sorted[j] {
				continue
			}
			e := ns.graph.Strengthen(sorted[i], sorted[j], models.Coactivates, knowledge.EtaEpisode, now)
			if e != nil {
				_ = ns.wal.Append(persistence.Event{
					Kind: persistence.EventEdgeUpdate, Timestamp: now,
					EdgeA: e.FromID, EdgeB: e.ToID, EdgeKind: e.Kind, Weight: e.Weight,
				})
			}
		}
	}
}

// retrieveMemories implements the Retrieve operation for this namespace.
func (ns *Namespace) retrieveMemories(ctx context.Context, text string, k int, includeArchive bool) ([]models.RetrievalResult, error) {
	ns.mu.RLock()
	defer ns.mu.RUnlock()

	return ns.retriever.Query(ctx, retrieve.Query{Text: text, K: k, IncludeArchive: includeArchive}, func(a, b int64) {
		if ns.scheduleFn != nil {
			ns.scheduleFn(scheduler.PlasticityUpdate{UserID: ns.userID, A: a, B: b, Eta: knowledge.EtaRetrieval})
		}
	})
}

// get implements the Get operation.
func (ns *Namespace) get(id string, withOriginal bool, now time.Time) (*models.Episode, error) {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	return ns.store.Get(id, withOriginal, now)
}

// delete implements the Delete operation: tombstones the ANN entry, decays
// the linked entities' mention counts, and removes the episode.
func (ns *Namespace) delete(id string, now time.Time) error {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	ep, err := ns.store.Delete(id)
	if err != nil {
		return err
	}
	if annID, ok := ns.episodeToAnn[id]; ok {
		_ = ns.index.Delete(annID)
		delete(ns.annToEpisode, annID)
		delete(ns.episodeToAnn, id)
	}
	for _, eid := range ns.episodeEntities[id] {
		ns.graph.DecrementMention(eid)
		ns.entityEpisodes[eid] = removeString(ns.entityEpisodes[eid], id)
	}
	delete(ns.episodeEntities, id)

	if err := ns.wal.Append(persistence.Event{
		Kind: persistence.EventDelete, Timestamp: now, EpisodeID: ep.ID,
	}); err != nil {
		ns.logger.Warn("wal append failed", "op", "delete", "error", err)
	}
	return nil
}

func removeString(s []string, v string) []string {
	out := s[:0:0]
	for _, x := range s {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}

// ApplyPlasticity implements scheduler.Namespace: applies one coactivation
// strengthening job queued by a prior retrieve() call.
func (ns *Namespace) ApplyPlasticity(u scheduler.PlasticityUpdate) {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	e := ns.graph.Strengthen(u.A, u.B, models.Coactivates, u.Eta, time.Now())
	if e != nil {
		_ = ns.wal.Append(persistence.Event{
			Kind: persistence.EventEdgeUpdate, Timestamp: time.Now(),
			EdgeA: e.FromID, EdgeB: e.ToID, EdgeKind: e.Kind, Weight: e.Weight,
		})
	}
}

// RunDecayAndTierDemotion implements scheduler.Namespace: the rolling-shard
// decay pass over this namespace's episodes and edges.
func (ns *Namespace) RunDecayAndTierDemotion(now time.Time) {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	for _, ep := range ns.store.All() {
		salience := ns.averageSalienceLocked(ep.ID)

		beforeImportance, beforeTier := ep.Importance, ep.Tier
		ns.store.ApplyDecay(ep.ID, salience, now, gist)
		if ep.Importance != beforeImportance {
			if err := ns.wal.Append(persistence.Event{
				Kind: persistence.EventSalienceUpdate, Timestamp: now,
				EpisodeID: ep.ID, Salience: float64(ep.Importance),
			}); err != nil {
				ns.logger.Warn("wal append failed", "op", "decay", "error", err)
			}
		}

		ns.store.ApplyTierDemotion(ep.ID, now)
		if ep.Tier != beforeTier {
			if err := ns.wal.Append(persistence.Event{
				Kind: persistence.EventTierChange, Timestamp: now,
				EpisodeID: ep.ID, Tier: ep.Tier,
			}); err != nil {
				ns.logger.Warn("wal append failed", "op", "tier_demotion", "error", err)
			}
		}
	}

	for _, e := range ns.graph.DecayEdges(store.Lambda, now) {
		if err := ns.wal.Append(persistence.Event{
			Kind: persistence.EventEdgeUpdate, Timestamp: now,
			EdgeA: e.FromID, EdgeB: e.ToID, EdgeKind: e.Kind, Weight: e.Weight,
		}); err != nil {
			ns.logger.Warn("wal append failed", "op", "edge_decay", "error", err)
		}
	}
}

// averageSalienceLocked feeds spec §4.5's "effective_age = actual_age /
// max(salience, 0.05)" from the episode's linked entities; episodes with no
// linked entities decay at the floor rate. Caller must hold ns.mu.
func (ns *Namespace) averageSalienceLocked(episodeID string) float64 {
	ids := ns.episodeEntities[episodeID]
	if len(ids) == 0 {
		return 0.05
	}
	var sum float64
	var n int
	for _, id := range ids {
		if e := ns.graph.Entity(id); e != nil {
			sum += e.Salience
			n++
		}
	}
	if n == 0 {
		return 0.05
	}
	return sum / float64(n)
}

// gist produces the compressed summary stored once an episode's importance
// falls below the compression threshold: the extracted entity surfaces
// followed by the extracted verb surfaces, space-separated. Content with no
// entities or verbs falls back to its first 120 runes.
func gist(content string) string {
	ex := extract.Extract(content)
	parts := make([]string, 0, len(ex.Entities)+len(ex.Verbs))
	for _, e := range ex.Entities {
		parts = append(parts, e.Surface)
	}
	for _, v := range ex.Verbs {
		parts = append(parts, v.Surface)
	}
	if len(parts) > 0 {
		return strings.Join(parts, " ")
	}
	const maxRunes = 120
	r := []rune(content)
	if len(r) <= maxRunes {
		return content
	}
	return string(r[:maxRunes]) + "…"
}

// TombstoneRatio implements scheduler.Namespace.
func (ns *Namespace) TombstoneRatio() float64 {
	return ns.index.TombstoneRatio()
}

// Compact implements scheduler.Namespace.
func (ns *Namespace) Compact() {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	ns.index.Compact()
}

// maybeSnapshotLocked writes a full snapshot when either threshold from
// spec §4.7 is crossed. Caller must hold ns.mu (write lock).
func (ns *Namespace) maybeSnapshotLocked(now time.Time) {
	ns.eventsSinceSnapshot++
	if ns.eventsSinceSnapshot < snapshotEventThreshold && now.Sub(ns.lastSnapshotAt) < snapshotInterval {
		return
	}
	if err := ns.snapshotLocked(now); err != nil {
		ns.logger.Warn("snapshot failed", "error", err)
		return
	}
	ns.eventsSinceSnapshot = 0
	ns.lastSnapshotAt = now
}

func (ns *Namespace) snapshotLocked(now time.Time) error {
	exported := ns.index.Export()
	annNodes := make([]persistence.AnnNode, len(exported))
	for i, n := range exported {
		annNodes[i] = persistence.AnnNode{ID: n.ID, Vector: n.Vector, Neighbors: n.Neighbors}
	}
	snap := persistence.Snapshot{
		Seq:       ns.walSeq,
		Episodes:  ns.store.All(),
		Entities:  ns.entitiesLocked(),
		Edges:     ns.edgesLocked(),
		ANNNodes:  annNodes,
		ANNEntry:  ns.index.EntryID(),
		HashIndex: ns.hashIndexLocked(),
	}
	if err := persistence.WriteSnapshot(ns.storageDir, ns.userID, snap); err != nil {
		return err
	}
	ns.walSeq++
	newWal, err := persistence.OpenWAL(ns.storageDir, ns.userID, ns.walSeq)
	if err != nil {
		return err
	}
	old := ns.wal
	ns.wal = newWal
	return old.Close()
}

func (ns *Namespace) entitiesLocked() []*models.EntityNode {
	var out []*models.EntityNode
	seen := make(map[int64]bool)
	for _, ids := range ns.episodeEntities {
		for _, id := range ids {
			if seen[id] {
				continue
			}
			seen[id] = true
			if e := ns.graph.Entity(id); e != nil {
				out = append(out, e)
			}
		}
	}
	return out
}

func (ns *Namespace) edgesLocked() []*models.Edge {
	return ns.graph.AllEdges()
}

func (ns *Namespace) hashIndexLocked() map[uint64]string {
	out := make(map[uint64]string, len(ns.episodeToAnn))
	for _, ep := range ns.store.All() {
		out[ep.ContentHash] = ep.ID
	}
	return out
}

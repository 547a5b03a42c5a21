// Package retrieve implements the density-dependent hybrid retriever (C6):
// it fuses VectorIndex similarity with KnowledgeGraph activation, weighted
// by the graph's current density.
package retrieve

import (
	"context"
	"math"
	"sort"

	"github.com/shodh/memory-engine/internal/embedding"
	"github.com/shodh/memory-engine/internal/extract"
	"github.com/shodh/memory-engine/internal/knowledge"
	"github.com/shodh/memory-engine/internal/models"
	"github.com/shodh/memory-engine/internal/store"
	"github.com/shodh/memory-engine/internal/vectorindex"
)

// EntityLinks abstracts the engine's episode<->entity link bookkeeping so
// this package does not need to know the persistence-layer representation.
type EntityLinks interface {
	// EntitiesOf returns the entity ids linked to an episode.
	EntitiesOf(episodeID string) []int64
	// EpisodesOf returns the episode ids linked to an entity.
	EpisodesOf(entityID int64) []string
}

// Retriever runs HybridRetriever queries for one user namespace.
type Retriever struct {
	embedder embedding.Embedder
	index    *vectorindex.Index
	graph    *knowledge.Graph
	episodes *store.Store
	links    EntityLinks

	// idToEpisode maps a VectorIndex node id back to its episode id.
	idToEpisode func(int64) (string, bool)
}

// New constructs a Retriever wired to one user's components.
func New(embedder embedding.Embedder, index *vectorindex.Index, graph *knowledge.Graph, episodes *store.Store, links EntityLinks, idToEpisode func(int64) (string, bool)) *Retriever {
	return &Retriever{
		embedder:    embedder,
		index:       index,
		graph:       graph,
		episodes:    episodes,
		links:       links,
		idToEpisode: idToEpisode,
	}
}

// Query is one retrieve() request.
type Query struct {
	Text           string
	K              int
	IncludeArchive bool
}

// StrengthenFunc is called by Query for each coactivated pair discovered
// among the returned results, so the engine's scheduler can apply the
// update asynchronously (spec §4.6: "trigger asynchronous coactivation
// strengthening ... capped at 10 pairs per query").
type StrengthenFunc func(a, b int64)

const maxCoactivationPairs = 10

// Query runs the six-step hybrid retrieval algorithm from spec §4.6 and
// returns up to K ranked results. The up-to-10 entity pairs that coactivated
// in this result set are not returned; they are passed to strengthen for
// the caller to apply asynchronously.
func (r *Retriever) Query(ctx context.Context, q Query, strengthen StrengthenFunc) ([]models.RetrievalResult, error) {
	if q.K <= 0 {
		return nil, nil
	}
	if r.episodes.Len() == 0 {
		return nil, nil // EmptyCorpus -> empty list, not an error
	}

	vec, err := r.embedder.Embed(ctx, q.Text)
	if err != nil {
		return nil, err
	}

	kPrime := 3 * q.K
	var excluded map[int64]bool
	if !q.IncludeArchive {
		excluded = r.archivedIndexIDs()
	}
	hits, err := r.index.Search(vec, kPrime, excluded)
	if err != nil {
		return nil, err
	}

	seedEntities := r.queryEntities(q.Text, hits)

	density := r.graph.Stats().Density
	wGraph := clamp(0.10+0.08*density, 0.10, 0.50)
	wVec := 1 - wGraph

	activation := r.graph.Activate(seedEntities, knowledge.DMax)

	type scored struct {
		episodeID string
		final     float64
	}
	byEpisode := make(map[string]scored)

	for _, h := range hits {
		epID, ok := r.idToEpisode(h.ID)
		if !ok {
			continue
		}
		ep := r.episodes.Peek(epID)
		if ep == nil {
			continue
		}
		graphScore := r.graphScoreFor(epID, activation)
		final := wVec*h.Sim + wGraph*graphScore
		byEpisode[epID] = scored{episodeID: epID, final: final}
	}

	// Episodes reachable only through graph activation, not the vector hit
	// set, are still included so spreading activation can surface
	// indirectly-related memories that share no vocabulary with the query.
	for entityID := range activation {
		for _, epID := range r.links.EpisodesOf(entityID) {
			if _, ok := byEpisode[epID]; ok {
				continue
			}
			ep := r.episodes.Peek(epID)
			if ep == nil || (!q.IncludeArchive && ep.Tier == models.TierArchive) {
				continue
			}
			graphScore := r.graphScoreFor(epID, activation)
			final := wGraph * graphScore
			byEpisode[epID] = scored{episodeID: epID, final: final}
		}
	}

	results := make([]scored, 0, len(byEpisode))
	for _, s := range byEpisode {
		results = append(results, s)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].final != results[j].final {
			return results[i].final > results[j].final
		}
		return results[i].episodeID < results[j].episodeID
	})
	if len(results) > q.K {
		results = results[:q.K]
	}

	out := make([]models.RetrievalResult, 0, len(results))
	resultEntities := make(map[int64]bool)
	for _, s := range results {
		ep := r.episodes.Peek(s.episodeID)
		if ep == nil {
			continue
		}
		content := ep.Content
		if ep.Compressed() {
			content = ep.Gist
		}
		out = append(out, models.RetrievalResult{
			MemoryID:  ep.ID,
			Content:   content,
			Relevance: s.final,
			CreatedAt: ep.CreatedAt,
		})
		for _, eid := range r.links.EntitiesOf(s.episodeID) {
			resultEntities[eid] = true
		}
	}

	if strengthen != nil {
		strengthenCoactivatedPairs(resultEntities, strengthen)
	}

	return out, nil
}

func strengthenCoactivatedPairs(entities map[int64]bool, strengthen StrengthenFunc) {
	ids := make([]int64, 0, len(entities))
	for id := range entities {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	pairs := 0
	for i := 0; i < len(ids) && pairs < maxCoactivationPairs; i++ {
		for j := i + 1; j < len(ids) && pairs < maxCoactivationPairs; j++ {
			strengthen(ids[i], ids[j])
			pairs++
		}
	}
}

// graphScoreFor sums activation over an episode's linked entities weighted
// by their salience, normalized to [0,1].
func (r *Retriever) graphScoreFor(episodeID string, activation map[int64]float64) float64 {
	var sum float64
	for _, eid := range r.links.EntitiesOf(episodeID) {
		n := r.graph.Entity(eid)
		if n == nil {
			continue
		}
		if act, ok := activation[eid]; ok {
			sum += act * n.Salience
		}
	}
	return clamp(sum, 0, 1)
}

// queryEntities extracts C2 entities from the query text; if none are
// found, it falls back to the entities linked from the top-5 vector hits
// (spec §4.6 step 3).
func (r *Retriever) queryEntities(text string, hits []vectorindex.Result) map[int64]float64 {
	seeds := make(map[int64]float64)
	extraction := extract.Extract(text)
	for _, e := range extraction.Entities {
		n := r.graph.EntityByName(canonicalize(e.Surface))
		if n != nil {
			seeds[n.ID] = 1.0
		}
	}
	if len(seeds) > 0 {
		return seeds
	}
	limit := 5
	if len(hits) < limit {
		limit = len(hits)
	}
	for _, h := range hits[:limit] {
		epID, ok := r.idToEpisode(h.ID)
		if !ok {
			continue
		}
		for _, eid := range r.links.EntitiesOf(epID) {
			seeds[eid] = 1.0
		}
	}
	return seeds
}

func canonicalize(s string) string {
	return normalizeLower(s)
}

func normalizeLower(s string) string {
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}

func (r *Retriever) archivedIndexIDs() map[int64]bool {
	archived := make(map[int64]bool)
	for _, ep := range r.episodes.All() {
		if ep.Tier == models.TierArchive && ep.EmbeddingRef >= 0 {
			archived[ep.EmbeddingRef] = true
		}
	}
	return archived
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

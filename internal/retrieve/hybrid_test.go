package retrieve_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shodh/memory-engine/internal/embedding"
	"github.com/shodh/memory-engine/internal/extract"
	"github.com/shodh/memory-engine/internal/knowledge"
	"github.com/shodh/memory-engine/internal/models"
	"github.com/shodh/memory-engine/internal/retrieve"
	"github.com/shodh/memory-engine/internal/store"
	"github.com/shodh/memory-engine/internal/vectorindex"
)

// testLinks is a minimal in-memory EntityLinks used only by this test file.
type testLinks struct {
	episodeEntities map[string][]int64
	entityEpisodes  map[int64][]string
}

func (l *testLinks) EntitiesOf(episodeID string) []int64 { return l.episodeEntities[episodeID] }
func (l *testLinks) EpisodesOf(entityID int64) []string  { return l.entityEpisodes[entityID] }

func (l *testLinks) link(episodeID string, entityID int64) {
	l.episodeEntities[episodeID] = append(l.episodeEntities[episodeID], entityID)
	l.entityEpisodes[entityID] = append(l.entityEpisodes[entityID], episodeID)
}

type harness struct {
	emb   embedding.Embedder
	index *vectorindex.Index
	graph *knowledge.Graph
	st    *store.Store
	links *testLinks
	ann   map[string]int64 // episode id -> ann id
	next  int64
}

func newHarness(dim int) *harness {
	return &harness{
		emb:   embedding.NewHashingEmbedder(dim),
		index: vectorindex.New(dim, vectorindex.DefaultParams()),
		graph: knowledge.New(),
		st:    store.New("u1", nil),
		links: &testLinks{episodeEntities: map[string][]int64{}, entityEpisodes: map[int64][]string{}},
		ann:   map[string]int64{},
	}
}

func (h *harness) record(t *testing.T, content string) *models.Episode {
	now := time.Now()
	ex := extract.Extract(content)
	out, err := h.st.Record(content, models.Observation, nil, ex, now)
	require.NoError(t, err)
	if out.Duplicate {
		return out.Episode
	}
	vec, err := h.emb.Embed(context.Background(), content)
	require.NoError(t, err)
	h.next++
	annID := h.next
	require.NoError(t, h.index.Insert(annID, vec))
	h.ann[out.Episode.ID] = annID

	for _, e := range ex.Entities {
		n := h.graph.UpsertEntity("u1", canon(e.Surface), e.Surface, e.Type, e.Class == extract.ProperNoun, now)
		h.links.link(out.Episode.ID, n.ID)
	}
	return out.Episode
}

func canon(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

func (h *harness) idToEpisode(annID int64) (string, bool) {
	for epID, id := range h.ann {
		if id == annID {
			return epID, true
		}
	}
	return "", false
}

func (h *harness) retriever() *retrieve.Retriever {
	return retrieve.New(h.emb, h.index, h.graph, h.st, h.links, h.idToEpisode)
}

func TestQueryReturnsEmptyOnEmptyCorpus(t *testing.T) {
	h := newHarness(32)
	r := h.retriever()
	results, err := r.Query(context.Background(), retrieve.Query{Text: "anything", K: 5}, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestQueryRanksMostSimilarContentFirst(t *testing.T) {
	h := newHarness(64)
	h.record(t, "the kubernetes deployment failed with a timeout")
	h.record(t, "we went for pizza after the meeting")

	r := h.retriever()
	results, err := r.Query(context.Background(), retrieve.Query{Text: "kubernetes deployment timeout", K: 1}, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Content, "kubernetes")
}

func TestQueryExcludesArchivedEpisodesByDefault(t *testing.T) {
	h := newHarness(64)
	ep := h.record(t, "the kubernetes cluster was upgraded")
	ep.Tier = models.TierArchive
	ep.EmbeddingRef = h.ann[ep.ID]

	r := h.retriever()
	results, err := r.Query(context.Background(), retrieve.Query{Text: "kubernetes cluster upgrade", K: 5}, nil)
	require.NoError(t, err)
	for _, res := range results {
		assert.NotEqual(t, ep.ID, res.MemoryID)
	}
}

func TestQueryInvokesStrengthenForCoactivatedEntities(t *testing.T) {
	h := newHarness(64)
	h.record(t, "the team confirmed Alice fixed the Kubernetes deployment")

	r := h.retriever()
	var pairs [][2]int64
	_, err := r.Query(context.Background(), retrieve.Query{Text: "Alice Kubernetes", K: 5}, func(a, b int64) {
		pairs = append(pairs, [2]int64{a, b})
	})
	require.NoError(t, err)
	assert.NotEmpty(t, pairs, "episode mentions two entities, should propose a coactivation pair")
}

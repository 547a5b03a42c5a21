package store_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shodh/memory-engine/internal/extract"
	"github.com/shodh/memory-engine/internal/models"
	"github.com/shodh/memory-engine/internal/store"
)

func TestRecordDeduplicatesByContentHash(t *testing.T) {
	s := store.New("u1", nil)
	now := time.Now()

	out1, err := s.Record("the deploy failed", models.Observation, nil, extract.Extraction{}, now)
	require.NoError(t, err)
	assert.False(t, out1.Duplicate)

	out2, err := s.Record("  The   Deploy Failed  ", models.Observation, nil, extract.Extraction{}, now.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, out2.Duplicate, "case/whitespace-normalized content should dedup")
	assert.Equal(t, out1.Episode.ID, out2.Episode.ID)
	assert.Equal(t, uint32(2), out2.Episode.AccessCount)

	assert.Equal(t, 1, s.Len())
}

func TestRecordRejectsEmptyContent(t *testing.T) {
	s := store.New("u1", nil)
	_, err := s.Record("", models.Observation, nil, extract.Extraction{}, time.Now())
	assert.Error(t, err)
}

func TestRecordDefaultsExperienceType(t *testing.T) {
	s := store.New("u1", nil)
	out, err := s.Record("hello there", "", nil, extract.Extraction{}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, models.Observation, out.Episode.ExperienceType)
}

func TestApplyTierDemotionAdvancesOnIdle(t *testing.T) {
	s := store.New("u1", nil)
	now := time.Now()
	out, err := s.Record("some content here", models.Observation, nil, extract.Extraction{}, now)
	require.NoError(t, err)

	s.ApplyTierDemotion(out.Episode.ID, now.Add(30*time.Minute))
	assert.Equal(t, models.TierWorking, s.Peek(out.Episode.ID).Tier, "not yet idle long enough")

	s.ApplyTierDemotion(out.Episode.ID, now.Add(2*time.Hour))
	assert.Equal(t, models.TierSession, s.Peek(out.Episode.ID).Tier)
}

func TestApplyDecaySkipsCompressionWithoutColdWriter(t *testing.T) {
	s := store.New("u1", nil)
	now := time.Now()
	out, err := s.Record("a short note", models.Observation, nil, extract.Extraction{}, now)
	require.NoError(t, err)
	out.Episode.Importance = 0.2

	gistCalls := 0
	gistFn := func(content string) string {
		gistCalls++
		return "gist:" + content
	}

	// cold is nil, so compression is skipped even below threshold.
	s.ApplyDecay(out.Episode.ID, 1.0, now.Add(400*24*time.Hour), gistFn)
	assert.Equal(t, 0, gistCalls, "no cold writer means no compression")
	assert.False(t, s.Peek(out.Episode.ID).Compressed())
}

func TestRestoreEpisodeAndRemove(t *testing.T) {
	s := store.New("u1", nil)
	ep := &models.Episode{
		ID:          "fixed-id",
		UserID:      "u1",
		Content:     "restored content",
		ContentHash: store.ContentHash("u1", "restored content"),
		Tier:        models.TierWorking,
	}
	s.RestoreEpisode(ep)
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, ep, s.Peek("fixed-id"))

	s.RestoreRemove("fixed-id")
	assert.Equal(t, 0, s.Len())
	assert.Nil(t, s.Peek("fixed-id"))
}

func TestContentHashNormalizesWhitespaceAndCase(t *testing.T) {
	a := store.ContentHash("u1", "Hello   World")
	b := store.ContentHash("u1", "hello world")
	assert.Equal(t, a, b)

	c := store.ContentHash("u2", "hello world")
	assert.NotEqual(t, a, c, "different user namespaces must not collide")
}

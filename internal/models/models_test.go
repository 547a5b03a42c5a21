package models_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shodh/memory-engine/internal/models"
)

func TestValidExperienceType(t *testing.T) {
	assert.True(t, models.ValidExperienceType(models.Observation))
	assert.True(t, models.ValidExperienceType(models.Decision))
	assert.False(t, models.ValidExperienceType(models.ExperienceType("made-up")))
}

func TestEpisodeCompressedReflectsColdRef(t *testing.T) {
	ep := &models.Episode{}
	assert.False(t, ep.Compressed())

	ep.ColdRef = &models.ColdRef{Offset: 10, Length: 20}
	assert.True(t, ep.Compressed())
}

func TestEdgeEffectiveFloorRequiresLTPThreshold(t *testing.T) {
	e := &models.Edge{CoactCount: models.LTPThreshold - 1}
	assert.Equal(t, 0.0, e.EffectiveFloor())

	e.CoactCount = models.LTPThreshold
	assert.Equal(t, 0.5, e.EffectiveFloor())
}

func TestVerbEdgeKindPrefixesVerb(t *testing.T) {
	assert.Equal(t, models.EdgeKind("verb:fixed"), models.VerbEdgeKind("fixed"))
}

func TestAddSurfaceFormDeduplicates(t *testing.T) {
	n := &models.EntityNode{}
	n.AddSurfaceForm("Alice")
	n.AddSurfaceForm("Alice")
	n.AddSurfaceForm("alice")
	assert.Equal(t, []string{"Alice", "alice"}, n.SurfaceForms)
}

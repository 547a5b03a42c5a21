package extract_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shodh/memory-engine/internal/extract"
	"github.com/shodh/memory-engine/internal/models"
)

func TestExtractIsDeterministic(t *testing.T) {
	text := "Alice deployed the new Kubernetes cluster in Seattle."
	a := extract.Extract(text)
	b := extract.Extract(text)
	assert.Equal(t, a, b)
}

func TestExtractFindsProperNounsAndTechKeywords(t *testing.T) {
	ex := extract.Extract("the team said Alice migrated the service to Kubernetes yesterday")

	var names []string
	for _, e := range ex.Entities {
		names = append(names, e.Surface)
	}
	assert.Contains(t, names, "Alice")
	assert.Contains(t, names, "Kubernetes")

	for _, e := range ex.Entities {
		if e.Surface == "Kubernetes" {
			assert.Equal(t, models.Technology, e.Type)
		}
	}
}

func TestExtractClassifiesVerbsByArousal(t *testing.T) {
	ex := extract.Extract("the build crashed and runs again")

	var classes []extract.VerbClass
	for _, v := range ex.Verbs {
		classes = append(classes, v.Class)
	}
	assert.Contains(t, classes, extract.MemoryForming)
	assert.Contains(t, classes, extract.ActionVerb)
}

func TestExtractHashtagsBecomeTags(t *testing.T) {
	ex := extract.Extract("deployed the fix #infra #oncall")
	assert.ElementsMatch(t, []string{"#infra", "#oncall"}, ex.Tags)
}

func TestExtractDeduplicatesRepeatedEntities(t *testing.T) {
	ex := extract.Extract("Kubernetes and Kubernetes again")
	count := 0
	for _, e := range ex.Entities {
		if e.Surface == "Kubernetes" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

// Package extract implements the engine's rule-based entity and verb
// extraction (no external model, fully deterministic given its dictionaries).
package extract

import (
	"regexp"
	"strings"

	"github.com/shodh/memory-engine/internal/models"
)

// NounClass (ProperNoun or CommonNoun) feeds the salience base score; see
// internal/knowledge's salience formula.
type NounClass int

const (
	ProperNoun NounClass = iota
	CommonNoun
)

// VerbClass buckets a verb by arousal contribution to importance seeding.
type VerbClass int

const (
	Structural    VerbClass = iota // arousal 0.00
	ActionVerb                     // arousal 0.10
	MemoryForming                  // arousal 0.30
)

func (c VerbClass) Arousal() float64 {
	switch c {
	case MemoryForming:
		return 0.30
	case ActionVerb:
		return 0.10
	default:
		return 0.00
	}
}

// ExtractedEntity is one entity surfaced from a text, before it is upserted
// into the knowledge graph (which assigns arena ids and tracks mentions).
type ExtractedEntity struct {
	Surface string
	Class   NounClass
	Type    models.EntityType
}

// Extraction is the full C2 output for one input text.
type Extraction struct {
	Entities []ExtractedEntity
	Verbs    []ExtractedVerb
	Tags     []string
}

type ExtractedVerb struct {
	Surface string
	Class   VerbClass
}

// techKeywords, orgIndicators, and locations are curated closed lists. They
// are intentionally small and deterministic rather than loaded from a file,
// keeping extraction byte-stable across runs per the spec's determinism
// requirement.
var techKeywords = map[string]bool{
	"typescript": true, "javascript": true, "python": true, "golang": true,
	"go": true, "rust": true, "kubernetes": true, "docker": true,
	"react": true, "postgres": true, "postgresql": true, "redis": true,
	"graphql": true, "grpc": true, "kafka": true, "linux": true,
	"tensorflow": true, "pytorch": true, "onnx": true, "cuda": true,
	"api": true, "sdk": true, "cli": true, "json": true, "yaml": true,
}

var orgIndicators = map[string]bool{
	"inc": true, "inc.": true, "corp": true, "corp.": true, "llc": true,
	"ltd": true, "ltd.": true, "gmbh": true, "co": true, "co.": true,
	"foundation": true, "labs": true, "systems": true, "technologies": true,
}

var locations = map[string]bool{
	"seattle": true, "portland": true, "london": true, "tokyo": true,
	"berlin": true, "paris": true, "nyc": true, "sf": true,
	"california": true, "washington": true, "europe": true, "asia": true,
}

var personCues = map[string]bool{
	"mr.": true, "mr": true, "mrs.": true, "mrs": true, "dr.": true,
	"dr": true, "ms.": true, "ms": true, "prof.": true, "prof": true,
}

var memoryFormingVerbs = map[string]bool{
	"killed": true, "loved": true, "hated": true, "feared": true,
	"crashed": true, "exploded": true, "discovered": true, "solved": true,
	"completed": true, "fixed": true, "broke": true, "migrated": true,
	"upgraded": true, "deprecated": true,
}

var actionVerbs = map[string]bool{
	"runs": true, "run": true, "makes": true, "make": true, "builds": true,
	"build": true, "sends": true, "send": true, "reads": true, "read": true,
	"writes": true, "write": true,
}

var structuralVerbs = map[string]bool{
	"is": true, "are": true, "was": true, "were": true, "been": true,
	"be": true, "has": true, "have": true, "had": true, "contains": true,
	"includes": true, "seems": true, "appears": true, "becomes": true,
}

var determiners = map[string]bool{"the": true, "a": true, "an": true}

var acronymRe = regexp.MustCompile(`^[A-Z]{2,6}$`)
var semverRe = regexp.MustCompile(`^v?\d+\.\d+\.\d+$`)
var handleRe = regexp.MustCompile(`^@\w+$`)
var tagRe = regexp.MustCompile(`^#\w+$`)

// Extract runs entity, verb, and tag extraction over text. Determinism:
// given the same dictionaries and input, output is byte-stable (no map
// iteration order leaks into the returned slices).
func Extract(text string) Extraction {
	tokens := strings.Fields(text)
	var result Extraction
	seen := make(map[string]bool)

	for i, raw := range tokens {
		tok := strings.Trim(raw, ".,!?;:\"'()")
		if tok == "" {
			continue
		}
		lower := strings.ToLower(tok)

		if tagRe.MatchString(raw) {
			result.Tags = append(result.Tags, raw)
			continue
		}

		if vc, isVerb := classifyVerb(lower); isVerb {
			result.Verbs = append(result.Verbs, ExtractedVerb{Surface: lower, Class: vc})
			continue
		}

		if isProperNoun(tok, i, raw) {
			if seen[lower] {
				continue
			}
			seen[lower] = true
			result.Entities = append(result.Entities, ExtractedEntity{
				Surface: tok,
				Class:   ProperNoun,
				Type:    inferType(lower, tokens, i),
			})
			continue
		}

		if i > 0 && determiners[strings.ToLower(tokens[i-1])] {
			if seen[lower] {
				continue
			}
			seen[lower] = true
			result.Entities = append(result.Entities, ExtractedEntity{
				Surface: tok,
				Class:   CommonNoun,
				Type:    models.Concept,
			})
		}
	}
	return result
}

func isProperNoun(tok string, index int, raw string) bool {
	if handleRe.MatchString(raw) {
		return true
	}
	if semverRe.MatchString(strings.ToLower(tok)) {
		return true
	}
	if acronymRe.MatchString(tok) {
		return true
	}
	if techKeywords[strings.ToLower(tok)] {
		return true
	}
	if orgIndicators[strings.ToLower(tok)] {
		return true
	}
	// Capitalized token not at sentence start (index 0).
	if index > 0 && len(tok) > 0 && tok[0] >= 'A' && tok[0] <= 'Z' {
		return true
	}
	return false
}

// inferType applies the fixed priority order from spec §4.2.
func inferType(lower string, tokens []string, index int) models.EntityType {
	switch {
	case techKeywords[lower]:
		return models.Technology
	case orgIndicators[lower]:
		return models.Organization
	case locations[lower]:
		return models.Location
	case hasPersonCue(tokens, index):
		return models.Person
	default:
		return models.Concept
	}
}

func hasPersonCue(tokens []string, index int) bool {
	if index > 0 && personCues[strings.ToLower(tokens[index-1])] {
		return true
	}
	if index+1 < len(tokens) && strings.ToLower(strings.TrimRight(tokens[index+1], ".,")) == "said" {
		return true
	}
	return false
}

func classifyVerb(lower string) (VerbClass, bool) {
	switch {
	case memoryFormingVerbs[lower]:
		return MemoryForming, true
	case actionVerbs[lower]:
		return ActionVerb, true
	case structuralVerbs[lower]:
		return Structural, true
	default:
		return Structural, false
	}
}

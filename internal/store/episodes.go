// Package store implements the per-user EpisodeStore: content-hash
// deduplication, importance seeding, tier lifecycle, and salience-weighted
// decay with gist compression.
package store

import (
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	engineerrors "github.com/shodh/memory-engine/internal/errors"
	"github.com/shodh/memory-engine/internal/extract"
	"github.com/shodh/memory-engine/internal/models"
)

// Lambda is the salience-weighted decay rate (spec §4.5).
const Lambda = 0.02

// CompressionThreshold is the importance level below which an episode's
// content is replaced by a gist and moved to the cold segment.
const CompressionThreshold = 0.1

// Tier demotion windows.
const (
	WorkingToSession  = time.Hour
	SessionToLongTerm = 24 * time.Hour
	LongTermToArchive = 30 * 24 * time.Hour
)

// ColdWriter appends original content to a user's cold segment and returns
// where it landed, so the episode can later be re-read. Implemented by
// internal/persistence; kept as an interface here so store has no direct
// dependency on the on-disk format.
type ColdWriter interface {
	WriteCold(userID string, content []byte) (models.ColdRef, error)
	ReadCold(userID string, ref models.ColdRef) ([]byte, error)
}

// Store is one user's episode collection.
type Store struct {
	mu         sync.RWMutex
	userID     string
	episodes   map[string]*models.Episode
	byHash     map[uint64]string // content hash -> episode id
	cold       ColdWriter
}

// New creates an empty store for one user namespace.
func New(userID string, cold ColdWriter) *Store {
	return &Store{
		userID:   userID,
		episodes: make(map[string]*models.Episode),
		byHash:   make(map[uint64]string),
		cold:     cold,
	}
}

// ContentHash is a 64-bit hash of (user_id, normalized_content), per spec
// §4.5. Normalization is lowercase + collapsed whitespace.
func ContentHash(userID, content string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(userID))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(normalize(content)))
	return h.Sum64()
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// RecordOutcome is returned by Record.
type RecordOutcome struct {
	Episode  *models.Episode
	Duplicate bool
}

// Record inserts content as a new episode, or returns the existing episode
// (with AccessCount incremented) if its content hash already exists for
// this user. extraction is the already-computed C2 output, used to seed
// importance.
func (s *Store) Record(content string, expType models.ExperienceType, tags []string, extraction extract.Extraction, now time.Time) (RecordOutcome, error) {
	if len(content) == 0 {
		return RecordOutcome{}, engineerrors.Invalid("content must not be empty")
	}
	if len(content) > models.MaxContentBytes {
		return RecordOutcome{}, engineerrors.Invalid("content exceeds %d bytes", models.MaxContentBytes)
	}
	if expType != "" && !models.ValidExperienceType(expType) {
		return RecordOutcome{}, engineerrors.Invalid("unknown experience_type %q", expType)
	}

	hash := ContentHash(s.userID, content)

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byHash[hash]; ok {
		existing := s.episodes[id]
		existing.AccessCount++
		existing.LastAccess = now
		return RecordOutcome{Episode: existing, Duplicate: true}, nil
	}

	if expType == "" {
		expType = models.Observation
	}
	ep := &models.Episode{
		ID:             uuid.New().String(),
		UserID:         s.userID,
		Content:        content,
		ContentHash:    hash,
		ExperienceType: expType,
		Tags:           tags,
		CreatedAt:      now,
		Importance:     float32(importanceSeed(content, extraction)),
		AccessCount:    1,
		LastAccess:     now,
		Tier:           models.TierWorking,
		EmbeddingRef:   -1,
	}
	s.episodes[ep.ID] = ep
	s.byHash[hash] = ep.ID
	return RecordOutcome{Episode: ep, Duplicate: false}, nil
}

// RestoreEpisode inserts an already-built episode verbatim, used only by
// the persistence layer while replaying a snapshot or WAL tail.
func (s *Store) RestoreEpisode(ep *models.Episode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.episodes[ep.ID] = ep
	s.byHash[ep.ContentHash] = ep.ID
}

// RestoreRemove removes an episode without returning it, used by WAL replay
// of a Delete event.
func (s *Store) RestoreRemove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ep, ok := s.episodes[id]; ok {
		delete(s.episodes, id)
		delete(s.byHash, ep.ContentHash)
	}
}

// RestoreImportance overwrites an episode's importance, used by WAL replay
// of a SalienceUpdate event.
func (s *Store) RestoreImportance(id string, importance float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ep := s.episodes[id]; ep != nil {
		ep.Importance = importance
	}
}

// RestoreTier overwrites an episode's tier, used by WAL replay of a
// TierChange event.
func (s *Store) RestoreTier(id string, tier models.Tier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ep := s.episodes[id]; ep != nil {
		ep.Tier = tier
	}
}

// importanceSeed implements spec §4.5's importance formula.
func importanceSeed(content string, ex extract.Extraction) float64 {
	importance := 0.5
	for _, v := range ex.Verbs {
		importance += v.Class.Arousal()
	}
	hasProper := false
	for _, e := range ex.Entities {
		if e.Class == extract.ProperNoun {
			hasProper = true
			break
		}
	}
	if hasProper {
		importance += 0.1
	}
	if len(ex.Tags) > 0 {
		importance += 0.1
	}
	if len(content) < 8 {
		importance -= 0.1
	}
	if importance < 0 {
		return 0
	}
	if importance > 1 {
		return 1
	}
	return importance
}

// Get returns the episode by id. withOriginal requests the original
// content even if the episode has been gist-compressed.
func (s *Store) Get(id string, withOriginal bool, now time.Time) (*models.Episode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ep, ok := s.episodes[id]
	if !ok {
		return nil, engineerrors.NotFoundf("episode %s", id)
	}
	ep.AccessCount++
	ep.LastAccess = now

	if withOriginal && ep.Compressed() && s.cold != nil {
		data, err := s.cold.ReadCold(s.userID, *ep.ColdRef)
		if err != nil {
			return ep, engineerrors.Corruptf("cold segment read for %s: %v", id, err)
		}
		clone := *ep
		clone.Content = string(data)
		return &clone, nil
	}
	return ep, nil
}

// Peek returns the episode without touching access stats, for internal use
// by the retriever and scheduler.
func (s *Store) Peek(id string) *models.Episode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.episodes[id]
}

// Delete tombstones (removes) an episode. The caller (engine) is
// responsible for decrementing mention counts of its linked entities and
// deleting it from the vector index.
func (s *Store) Delete(id string) (*models.Episode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ep, ok := s.episodes[id]
	if !ok {
		return nil, engineerrors.NotFoundf("episode %s", id)
	}
	delete(s.episodes, id)
	delete(s.byHash, ep.ContentHash)
	return ep, nil
}

// All returns every live episode, for snapshotting and stats.
func (s *Store) All() []*models.Episode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Episode, 0, len(s.episodes))
	for _, e := range s.episodes {
		out = append(out, e)
	}
	return out
}

// Len returns the number of live episodes.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.episodes)
}

// TierCounts returns a count per tier, for the stats() operation.
func (s *Store) TierCounts() map[models.Tier]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[models.Tier]int, 4)
	for _, e := range s.episodes {
		counts[e.Tier]++
	}
	return counts
}

// ApplyTierDemotion advances an episode's tier based on time since its last
// access, run by the scheduler's rolling shard.
func (s *Store) ApplyTierDemotion(id string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ep := s.episodes[id]
	if ep == nil {
		return
	}
	idle := now.Sub(ep.LastAccess)
	switch ep.Tier {
	case models.TierWorking:
		if idle >= WorkingToSession {
			ep.Tier = models.TierSession
		}
	case models.TierSession:
		if idle >= SessionToLongTerm {
			ep.Tier = models.TierLongTerm
		}
	case models.TierLongTerm:
		if idle >= LongTermToArchive {
			ep.Tier = models.TierArchive
		}
	}
}

// ApplyDecay runs the salience-weighted exponential decay formula from
// spec §4.5 and compresses the episode to a gist if importance falls below
// CompressionThreshold. gist is computed by the caller (engine) since it
// needs the entity/verb extraction the store itself does not perform.
func (s *Store) ApplyDecay(id string, salience float64, now time.Time, gistFn func(content string) string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ep := s.episodes[id]
	if ep == nil {
		return
	}

	if salience < 0.05 {
		salience = 0.05
	}
	actualAgeDays := now.Sub(ep.CreatedAt).Hours() / 24
	effectiveAgeDays := actualAgeDays / salience
	ep.Importance = float32(float64(ep.Importance) * math.Exp(-Lambda*effectiveAgeDays))

	if float64(ep.Importance) < CompressionThreshold && !ep.Compressed() && s.cold != nil {
		ref, err := s.cold.WriteCold(s.userID, []byte(ep.Content))
		if err == nil {
			ep.Gist = gistFn(ep.Content)
			ep.ColdRef = &ref
			ep.Content = ""
		}
	}
}

// Package scheduler runs the engine's single background worker: a 1 Hz tick
// that drains plasticity updates, rolls decay/tier-demotion across a shard
// of users every 60s, and checks ANN compaction every 10 minutes.
package scheduler

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// PlasticityUpdate is one queued coactivation strengthening job, produced
// by a retrieve() call and applied asynchronously so retrieve never blocks
// on graph writes. Applying the same update twice strengthens the edge
// twice; re-applying is not a no-op.
type PlasticityUpdate struct {
	UserID string
	A, B   int64
	Eta    float64
}

// plasticityQueueSize is the bounded queue capacity from spec §4.8.
const plasticityQueueSize = 4096

// Namespace is everything the scheduler needs to maintain about one user,
// implemented by internal/engine so this package stays storage-agnostic.
type Namespace interface {
	UserID() string
	ApplyPlasticity(u PlasticityUpdate)
	RunDecayAndTierDemotion(now time.Time)
	TombstoneRatio() float64
	Compact()
}

// Registry lists the currently active namespaces; the scheduler takes a
// snapshot of it once per rolling-shard tick rather than holding a lock
// across the whole sweep.
type Registry interface {
	Namespaces() []Namespace
}

// Scheduler is the process's single background worker.
type Scheduler struct {
	registry Registry
	logger   *slog.Logger

	queue chan PlasticityUpdate

	mu         sync.Mutex
	shardIndex int

	tickInterval       time.Duration
	decayInterval      time.Duration
	compactionInterval time.Duration
}

// New constructs a Scheduler with fixed tick, decay and compaction intervals
// of 1s / 60s / 10min.
func New(registry Registry, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		registry:           registry,
		logger:             logger,
		queue:              make(chan PlasticityUpdate, plasticityQueueSize),
		tickInterval:       time.Second,
		decayInterval:      60 * time.Second,
		compactionInterval: 10 * time.Minute,
	}
}

// Enqueue submits a plasticity update. If the bounded queue is full the
// update is dropped and logged — plasticity is eventual-consistency by
// design, and a dropped update simply delays that edge's next strengthen.
func (s *Scheduler) Enqueue(u PlasticityUpdate) {
	select {
	case s.queue <- u:
	default:
		s.logger.Warn("plasticity queue full, dropping update", "user_id", u.UserID)
	}
}

// Run blocks until ctx is cancelled, ticking at 1 Hz and running the decay
// and compaction sweeps on their own timers.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()
	decayTicker := time.NewTicker(s.decayInterval)
	defer decayTicker.Stop()
	compactTicker := time.NewTicker(s.compactionInterval)
	defer compactTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.drainQueue()
			return
		case <-ticker.C:
			s.drainPending()
		case <-decayTicker.C:
			s.runDecayShard(time.Now())
		case <-compactTicker.C:
			s.runCompactionSweep()
		}
	}
}

// drainPending applies every plasticity update currently queued, without
// blocking for new arrivals.
func (s *Scheduler) drainPending() {
	byUser := make(map[string]Namespace)
	for {
		select {
		case u := <-s.queue:
			ns := byUser[u.UserID]
			if ns == nil {
				ns = s.findNamespace(u.UserID)
				if ns == nil {
					continue
				}
				byUser[u.UserID] = ns
			}
			ns.ApplyPlasticity(u)
		default:
			return
		}
	}
}

func (s *Scheduler) drainQueue() {
	s.drainPending()
}

func (s *Scheduler) findNamespace(userID string) Namespace {
	for _, ns := range s.registry.Namespaces() {
		if ns.UserID() == userID {
			return ns
		}
	}
	return nil
}

// runDecayShard advances decay and tier demotion on a rolling 1/60th shard
// of users per tick, so a large fleet of namespaces gets a full pass every
// 60 decay ticks (60 minutes) rather than stalling on one giant sweep.
func (s *Scheduler) runDecayShard(now time.Time) {
	namespaces := s.registry.Namespaces()
	if len(namespaces) == 0 {
		return
	}
	sort.Slice(namespaces, func(i, j int) bool { return namespaces[i].UserID() < namespaces[j].UserID() })

	s.mu.Lock()
	shardCount := 60
	idx := s.shardIndex % shardCount
	s.shardIndex++
	s.mu.Unlock()

	for i, ns := range namespaces {
		if i%shardCount == idx {
			ns.RunDecayAndTierDemotion(now)
		}
	}
}

// runCompactionSweep compacts any namespace whose ANN tombstone ratio has
// crossed 25%.
func (s *Scheduler) runCompactionSweep() {
	for _, ns := range s.registry.Namespaces() {
		if ns.TombstoneRatio() > 0.25 {
			s.logger.Info("compacting ann index", "user_id", ns.UserID(), "tombstone_ratio", ns.TombstoneRatio())
			ns.Compact()
		}
	}
}

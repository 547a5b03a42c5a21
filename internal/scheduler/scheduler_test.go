package scheduler_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/shodh/memory-engine/internal/scheduler"
)

type fakeNamespace struct {
	mu         sync.Mutex
	userID     string
	applied    []scheduler.PlasticityUpdate
	decayCalls int
	compacted  bool
	tombRatio  float64
}

func (f *fakeNamespace) UserID() string { return f.userID }
func (f *fakeNamespace) ApplyPlasticity(u scheduler.PlasticityUpdate) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applied = append(f.applied, u)
}
func (f *fakeNamespace) RunDecayAndTierDemotion(now time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.decayCalls++
}
func (f *fakeNamespace) TombstoneRatio() float64 { return f.tombRatio }
func (f *fakeNamespace) Compact() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.compacted = true
}

type fakeRegistry struct {
	namespaces []scheduler.Namespace
}

func (r *fakeRegistry) Namespaces() []scheduler.Namespace { return r.namespaces }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEnqueueDropsWhenQueueFull(t *testing.T) {
	ns := &fakeNamespace{userID: "u1"}
	reg := &fakeRegistry{namespaces: []scheduler.Namespace{ns}}
	s := scheduler.New(reg, discardLogger())

	for i := 0; i < 5000; i++ {
		s.Enqueue(scheduler.PlasticityUpdate{UserID: "u1", A: 1, B: 2, Eta: 0.1})
	}
	// Should not panic or block; excess updates are simply dropped.
}

func TestRunAppliesQueuedPlasticityOnTick(t *testing.T) {
	ns := &fakeNamespace{userID: "u1"}
	reg := &fakeRegistry{namespaces: []scheduler.Namespace{ns}}
	s := scheduler.New(reg, discardLogger())
	s.Enqueue(scheduler.PlasticityUpdate{UserID: "u1", A: 1, B: 2, Eta: 0.1})

	ctx, cancel := context.WithTimeout(context.Background(), 1500*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	ns.mu.Lock()
	defer ns.mu.Unlock()
	assert.Len(t, ns.applied, 1)
	assert.Equal(t, int64(1), ns.applied[0].A)
}

func TestRunDrainsQueueOnShutdown(t *testing.T) {
	ns := &fakeNamespace{userID: "u1"}
	reg := &fakeRegistry{namespaces: []scheduler.Namespace{ns}}
	s := scheduler.New(reg, discardLogger())
	s.Enqueue(scheduler.PlasticityUpdate{UserID: "u1", A: 1, B: 2, Eta: 0.1})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}

	ns.mu.Lock()
	defer ns.mu.Unlock()
	assert.Len(t, ns.applied, 1, "queued update should be applied before Run returns")
}

package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/shodh/memory-engine/internal/config"
	"github.com/shodh/memory-engine/internal/embedding"
	engineerrors "github.com/shodh/memory-engine/internal/errors"
	"github.com/shodh/memory-engine/internal/metrics"
	"github.com/shodh/memory-engine/internal/models"
	"github.com/shodh/memory-engine/internal/persistence"
	"github.com/shodh/memory-engine/internal/scheduler"
)

// Engine is the process-wide entry point: it lazily creates one Namespace
// per user_id and exposes the six operations from spec §6. There is no
// network listener here — an external collaborator owns the HTTP surface
// and calls straight into Engine's methods (see SPEC_FULL.md §1).
type Engine struct {
	cfg      config.Config
	logger   *slog.Logger
	metrics  *metrics.Collector
	embedder embedding.Embedder
	cold     *persistence.ColdStore
	sched    *scheduler.Scheduler

	// embedSem bounds concurrent CPU-bound Embed calls to GOMAXPROCS, so a
	// burst of record() calls across many namespaces can't starve the
	// scheduler's goroutine of CPU (SPEC_FULL.md §5).
	embedSem *semaphore.Weighted

	mu         sync.Mutex
	namespaces map[string]*Namespace
}

// New constructs an Engine. It does not start the background scheduler;
// call Run for that once the caller is ready to serve traffic.
func New(cfg config.Config, logger *slog.Logger) (*Engine, error) {
	embedder, err := embedding.New(embedding.Config{
		Backend:       backendFor(cfg),
		Dim:           cfg.EmbedDim,
		ModelPath:     cfg.ModelPath,
		TokenizerPath: cfg.TokenizerPath,
	})
	if err != nil {
		return nil, fmt.Errorf("construct embedder: %w", err)
	}

	if err := os.MkdirAll(cfg.StoragePath, 0o755); err != nil {
		return nil, engineerrors.Fatalf("create storage path %s: %v", cfg.StoragePath, err)
	}
	cold, err := persistence.NewColdStore(cfg.StoragePath)
	if err != nil {
		return nil, engineerrors.Fatalf("open cold store: %v", err)
	}

	e := &Engine{
		cfg:        cfg,
		logger:     logger,
		metrics:    metrics.NewCollector(),
		embedder:   embedder,
		cold:       cold,
		embedSem:   semaphore.NewWeighted(int64(runtime.GOMAXPROCS(0))),
		namespaces: make(map[string]*Namespace),
	}
	e.sched = scheduler.New(e, logger)
	return e, nil
}

func backendFor(cfg config.Config) embedding.BackendType {
	if cfg.ModelPath != "" {
		return embedding.BackendONNX
	}
	return embedding.BackendHashing
}

// Run starts the background scheduler and blocks until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	e.sched.Run(ctx)
}

// Namespaces implements scheduler.Registry.
func (e *Engine) Namespaces() []scheduler.Namespace {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]scheduler.Namespace, 0, len(e.namespaces))
	for _, ns := range e.namespaces {
		out = append(out, ns)
	}
	return out
}

// namespaceFor returns the namespace for userID, creating (and recovering)
// it on first use.
func (e *Engine) namespaceFor(userID string) (*Namespace, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if ns, ok := e.namespaces[userID]; ok {
		return ns, nil
	}
	ns, err := recoverNamespace(userID, e.cfg.StoragePath, e.embedder, e.cold, e.logger, e.sched.Enqueue)
	if err != nil {
		return nil, err
	}
	e.namespaces[userID] = ns
	return ns, nil
}

// Record implements the record() operation.
func (e *Engine) Record(ctx context.Context, userID, content string, expType models.ExperienceType, tags []string, metadata map[string]string) (ep *models.Episode, duplicate bool, err error) {
	if userID == "" {
		return nil, false, engineerrors.Invalid("user_id must not be empty")
	}
	start := time.Now()
	defer func() { e.metrics.RecordTiming(metrics.OpRecord, time.Since(start)) }()

	ns, err := e.namespaceFor(userID)
	if err != nil {
		return nil, false, err
	}

	if err := e.embedSem.Acquire(ctx, 1); err != nil {
		return nil, false, fmt.Errorf("%w: acquire embed slot: %v", engineerrors.ErrTransient, err)
	}
	defer e.embedSem.Release(1)

	embedStart := time.Now()
	defer func() { e.metrics.RecordTiming(metrics.OpEmbed, time.Since(embedStart)) }()

	return ns.record(ctx, content, expType, tags, metadata, time.Now())
}

// Retrieve implements the retrieve() operation.
func (e *Engine) Retrieve(ctx context.Context, userID, query string, k int, includeArchive bool) ([]models.RetrievalResult, error) {
	if userID == "" {
		return nil, engineerrors.Invalid("user_id must not be empty")
	}
	if k < 0 {
		return nil, engineerrors.Invalid("k must not be negative")
	}
	start := time.Now()
	defer func() { e.metrics.RecordTiming(metrics.OpRetrieve, time.Since(start)) }()

	ns, err := e.namespaceFor(userID)
	if err != nil {
		return nil, err
	}
	results, err := ns.retrieveMemories(ctx, query, k, includeArchive)
	e.metrics.RecordTiming(metrics.OpANNSearch, time.Since(start))
	return results, err
}

// Get implements the get() operation.
func (e *Engine) Get(userID, episodeID string, withOriginal bool) (*models.Episode, error) {
	if userID == "" || episodeID == "" {
		return nil, engineerrors.Invalid("user_id and id must not be empty")
	}
	ns, err := e.namespaceFor(userID)
	if err != nil {
		return nil, err
	}
	return ns.get(episodeID, withOriginal, time.Now())
}

// Delete implements the delete() operation.
func (e *Engine) Delete(userID, episodeID string) error {
	if userID == "" || episodeID == "" {
		return engineerrors.Invalid("user_id and id must not be empty")
	}
	ns, err := e.namespaceFor(userID)
	if err != nil {
		return err
	}
	return ns.delete(episodeID, time.Now())
}

// Stats is the stats() operation's response shape.
type Stats struct {
	UserID       string
	Episodes     int
	TierCounts   map[models.Tier]int
	GraphNodes   int
	GraphEdges   int
	GraphDensity float64
	ANNSize      int
	TombstoneRatio float64
	Metrics      metrics.Snapshot
}

// Stats implements the stats() operation.
func (e *Engine) Stats(userID string) (Stats, error) {
	ns, err := e.namespaceFor(userID)
	if err != nil {
		return Stats{}, err
	}
	gs := ns.graph.Stats()
	return Stats{
		UserID:         userID,
		Episodes:       ns.store.Len(),
		TierCounts:     ns.store.TierCounts(),
		GraphNodes:     gs.Nodes,
		GraphEdges:     gs.Edges,
		GraphDensity:   gs.Density,
		ANNSize:        ns.index.Len(),
		TombstoneRatio: ns.index.TombstoneRatio(),
		Metrics:        e.metrics.Snapshot(),
	}, nil
}

// Health is the health() operation's response shape.
type Health struct {
	OK           bool
	ModelLoaded  bool
	ModelName    string
	NamespaceCount int
	UptimeSeconds float64
}

// Health implements the health() operation.
func (e *Engine) Health() Health {
	e.mu.Lock()
	n := len(e.namespaces)
	e.mu.Unlock()
	return Health{
		OK:             true,
		ModelLoaded:    e.embedder.ModelLoaded(),
		ModelName:      e.embedder.Model(),
		NamespaceCount: n,
		UptimeSeconds:  e.metrics.Snapshot().UptimeSeconds,
	}
}

// Close flushes every namespace's WAL and the cold store, for graceful
// shutdown.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var firstErr error
	for _, ns := range e.namespaces {
		ns.mu.Lock()
		if err := ns.wal.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		ns.mu.Unlock()
	}
	if err := e.cold.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

package engine

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shodh/memory-engine/internal/embedding"
	"github.com/shodh/memory-engine/internal/models"
	"github.com/shodh/memory-engine/internal/persistence"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestNamespace(t *testing.T) *Namespace {
	dir := t.TempDir()
	cold, err := persistence.NewColdStore(dir)
	require.NoError(t, err)
	t.Cleanup(func() { cold.Close() })

	emb := embedding.NewHashingEmbedder(32)
	ns, err := recoverNamespace("u1", dir, emb, cold, testLogger(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { ns.wal.Close() })
	return ns
}

func TestNamespaceRecordDeduplicates(t *testing.T) {
	ns := newTestNamespace(t)
	now := time.Now()

	ep1, dup1, err := ns.record(context.Background(), "the staging deploy timed out", "", nil, nil, now)
	require.NoError(t, err)
	assert.False(t, dup1)

	ep2, dup2, err := ns.record(context.Background(), "The Staging Deploy Timed Out", "", nil, nil, now.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, dup2)
	assert.Equal(t, ep1.ID, ep2.ID)
}

func TestNamespaceRecordLinksEntitiesAndCoactivates(t *testing.T) {
	ns := newTestNamespace(t)
	now := time.Now()

	ep, _, err := ns.record(context.Background(), "the team confirmed Alice fixed the Kubernetes deployment", "", nil, nil, now)
	require.NoError(t, err)

	ids := ns.EntitiesOf(ep.ID)
	assert.GreaterOrEqual(t, len(ids), 2, "should link both Alice and Kubernetes")
}

func TestNamespaceGetAndDelete(t *testing.T) {
	ns := newTestNamespace(t)
	now := time.Now()

	ep, _, err := ns.record(context.Background(), "a short recorded note", "", nil, nil, now)
	require.NoError(t, err)

	got, err := ns.get(ep.ID, false, now)
	require.NoError(t, err)
	assert.Equal(t, ep.ID, got.ID)

	require.NoError(t, ns.delete(ep.ID, now))

	_, err = ns.get(ep.ID, false, now)
	assert.Error(t, err)
	assert.Empty(t, ns.EntitiesOf(ep.ID))
}

func TestNamespaceRetrieveFindsRecordedEpisode(t *testing.T) {
	ns := newTestNamespace(t)
	now := time.Now()

	_, _, err := ns.record(context.Background(), "the kubernetes deployment failed with a timeout", "", nil, nil, now)
	require.NoError(t, err)
	_, _, err = ns.record(context.Background(), "we went for pizza after the meeting", "", nil, nil, now)
	require.NoError(t, err)

	results, err := ns.retrieveMemories(context.Background(), "kubernetes deployment timeout", 1, false)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Content, "kubernetes")
}

func TestNamespaceSnapshotAndRecoveryRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cold, err := persistence.NewColdStore(dir)
	require.NoError(t, err)
	defer cold.Close()
	emb := embedding.NewHashingEmbedder(32)

	ns, err := recoverNamespace("u1", dir, emb, cold, testLogger(), nil)
	require.NoError(t, err)
	now := time.Now()
	ep, _, err := ns.record(context.Background(), "the team confirmed Alice fixed the Kubernetes deployment", "", nil, nil, now)
	require.NoError(t, err)

	require.NoError(t, ns.snapshotLocked(now))
	require.NoError(t, ns.wal.Close())

	recovered, err := recoverNamespace("u1", dir, emb, cold, testLogger(), nil)
	require.NoError(t, err)
	defer recovered.wal.Close()

	got, err := recovered.get(ep.ID, false, now)
	require.NoError(t, err)
	assert.Equal(t, ep.Content, got.Content)
	assert.GreaterOrEqual(t, len(recovered.EntitiesOf(ep.ID)), 2, "entity links should be rebuilt from the snapshot")
}

func TestNamespaceDecayAndTierDemotionSurviveCrashRecovery(t *testing.T) {
	dir := t.TempDir()
	cold, err := persistence.NewColdStore(dir)
	require.NoError(t, err)
	defer cold.Close()
	emb := embedding.NewHashingEmbedder(32)

	ns, err := recoverNamespace("u1", dir, emb, cold, testLogger(), nil)
	require.NoError(t, err)
	now := time.Now()
	ep, _, err := ns.record(context.Background(), "a short recorded note", "", nil, nil, now)
	require.NoError(t, err)
	before := ep.Importance

	later := now.Add(2 * time.Hour)
	ns.RunDecayAndTierDemotion(later)

	got, err := ns.get(ep.ID, false, later)
	require.NoError(t, err)
	require.Less(t, got.Importance, before, "importance should have decayed")
	require.Equal(t, models.TierSession, got.Tier, "idle episode should have been demoted past the working tier")

	// Crash without a snapshot: only the WAL tail (record + decay + tier
	// change events) is available to recover from.
	require.NoError(t, ns.wal.Close())

	recovered, err := recoverNamespace("u1", dir, emb, cold, testLogger(), nil)
	require.NoError(t, err)
	defer recovered.wal.Close()

	recoveredEp, err := recovered.get(ep.ID, false, later)
	require.NoError(t, err)
	assert.Equal(t, got.Importance, recoveredEp.Importance, "decayed importance should be re-derivable from the wal")
	assert.Equal(t, models.TierSession, recoveredEp.Tier, "tier change should be re-derivable from the wal")
}

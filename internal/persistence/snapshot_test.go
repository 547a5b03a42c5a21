package persistence_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shodh/memory-engine/internal/models"
	"github.com/shodh/memory-engine/internal/persistence"
)

func TestWriteReadSnapshotRoundTrip(t *testing.T) {
	dir := t.TempDir()
	snap := persistence.Snapshot{
		Seq: 3,
		Episodes: []*models.Episode{
			{ID: "ep1", Content: "hello world", Tier: models.TierWorking},
		},
		Entities: []*models.EntityNode{
			{ID: 1, CanonicalName: "alice"},
		},
		Edges: []*models.Edge{
			{FromID: 1, ToID: 2, Kind: models.Coactivates, Weight: 0.5},
		},
		ANNNodes:  []persistence.AnnNode{{ID: 1, Vector: []float32{1, 0}, Neighbors: []int64{2}}},
		ANNEntry:  1,
		HashIndex: map[uint64]string{42: "ep1"},
	}

	require.NoError(t, persistence.WriteSnapshot(dir, "u1", snap))

	loaded, err := persistence.ReadSnapshot(dir, "u1", 3)
	require.NoError(t, err)
	require.Len(t, loaded.Episodes, 1)
	assert.Equal(t, "ep1", loaded.Episodes[0].ID)
	require.Len(t, loaded.Entities, 1)
	assert.Equal(t, "alice", loaded.Entities[0].CanonicalName)
	require.Len(t, loaded.Edges, 1)
	assert.Equal(t, models.Coactivates, loaded.Edges[0].Kind)
	require.Len(t, loaded.ANNNodes, 1)
	assert.Equal(t, int64(1), loaded.ANNEntry)
	assert.Equal(t, "ep1", loaded.HashIndex[42])
}

func TestReadSnapshotMissingFileErrors(t *testing.T) {
	_, err := persistence.ReadSnapshot(t.TempDir(), "u1", 99)
	assert.Error(t, err)
}

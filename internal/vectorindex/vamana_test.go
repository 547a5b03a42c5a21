package vectorindex_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shodh/memory-engine/internal/vectorindex"
)

func unit(dims ...float32) []float32 {
	var n float32
	for _, d := range dims {
		n += d * d
	}
	n = float32(math.Sqrt(float64(n)))
	out := make([]float32, len(dims))
	for i, d := range dims {
		out[i] = d / n
	}
	return out
}

func TestInsertAndSearchReturnsNearestFirst(t *testing.T) {
	ix := vectorindex.New(2, vectorindex.DefaultParams())

	require.NoError(t, ix.Insert(1, unit(1, 0)))
	require.NoError(t, ix.Insert(2, unit(0, 1)))
	require.NoError(t, ix.Insert(3, unit(0.9, 0.1)))

	results, err := ix.Search(unit(1, 0), 2, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, int64(1), results[0].ID)
	assert.Equal(t, int64(3), results[1].ID)
}

func TestSearchRejectsDimensionMismatch(t *testing.T) {
	ix := vectorindex.New(3, vectorindex.DefaultParams())
	require.NoError(t, ix.Insert(1, unit(1, 0, 0)))
	_, err := ix.Search(unit(1, 0), 1, nil)
	assert.Error(t, err)
}

func TestSearchExcludesArchivedIDs(t *testing.T) {
	ix := vectorindex.New(2, vectorindex.DefaultParams())
	require.NoError(t, ix.Insert(1, unit(1, 0)))
	require.NoError(t, ix.Insert(2, unit(0.99, 0.01)))

	results, err := ix.Search(unit(1, 0), 2, map[int64]bool{1: true})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, int64(2), results[0].ID)
}

func TestDeleteTombstonesThenCompactRemoves(t *testing.T) {
	ix := vectorindex.New(2, vectorindex.DefaultParams())
	require.NoError(t, ix.Insert(1, unit(1, 0)))
	require.NoError(t, ix.Insert(2, unit(0, 1)))
	require.NoError(t, ix.Insert(3, unit(0.7, 0.7)))

	require.NoError(t, ix.Delete(2))
	assert.Equal(t, 2, ix.Len())

	results, err := ix.Search(unit(0, 1), 3, nil)
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, int64(2), r.ID, "tombstoned node must not be returned")
	}

	ix.Compact()
	assert.Equal(t, 0.0, ix.TombstoneRatio())
	assert.Len(t, ix.Export(), 2)
}

func TestExportRestoreRoundTrip(t *testing.T) {
	ix := vectorindex.New(2, vectorindex.DefaultParams())
	require.NoError(t, ix.Insert(1, unit(1, 0)))
	require.NoError(t, ix.Insert(2, unit(0, 1)))
	require.NoError(t, ix.Insert(3, unit(0.6, 0.8)))

	nodes := ix.Export()
	entry := ix.EntryID()

	ix2 := vectorindex.New(2, vectorindex.DefaultParams())
	ix2.Restore(nodes, entry)

	assert.Equal(t, ix.Len(), ix2.Len())
	results, err := ix2.Search(unit(1, 0), 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, int64(1), results[0].ID)
}

func TestDeleteUnknownIDErrors(t *testing.T) {
	ix := vectorindex.New(2, vectorindex.DefaultParams())
	require.NoError(t, ix.Insert(1, unit(1, 0)))
	assert.Error(t, ix.Delete(999))
}

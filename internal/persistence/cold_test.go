package persistence_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shodh/memory-engine/internal/persistence"
)

func TestColdStoreWriteReadRoundTrip(t *testing.T) {
	cold, err := persistence.NewColdStore(t.TempDir())
	require.NoError(t, err)
	defer cold.Close()

	ref, err := cold.WriteCold("u1", []byte("the original long-form content"))
	require.NoError(t, err)

	got, err := cold.ReadCold("u1", ref)
	require.NoError(t, err)
	assert.Equal(t, "the original long-form content", string(got))
}

func TestColdStoreAppendsMultipleFramesIndependently(t *testing.T) {
	cold, err := persistence.NewColdStore(t.TempDir())
	require.NoError(t, err)
	defer cold.Close()

	ref1, err := cold.WriteCold("u1", []byte("first"))
	require.NoError(t, err)
	ref2, err := cold.WriteCold("u1", []byte("second episode content"))
	require.NoError(t, err)

	got1, err := cold.ReadCold("u1", ref1)
	require.NoError(t, err)
	got2, err := cold.ReadCold("u1", ref2)
	require.NoError(t, err)

	assert.Equal(t, "first", string(got1))
	assert.Equal(t, "second episode content", string(got2))
}

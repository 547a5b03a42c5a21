package persistence_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shodh/memory-engine/internal/models"
	"github.com/shodh/memory-engine/internal/persistence"
)

func TestWALAppendAndReplayRoundTrip(t *testing.T) {
	dir := t.TempDir()
	wal, err := persistence.OpenWAL(dir, "u1", 0)
	require.NoError(t, err)

	events := []persistence.Event{
		{Kind: persistence.EventRecord, Seq: 1, Timestamp: time.Now(), Episode: &models.Episode{ID: "ep1", Content: "hello"}},
		{Kind: persistence.EventDelete, Seq: 2, Timestamp: time.Now(), EpisodeID: "ep1"},
	}
	for _, ev := range events {
		require.NoError(t, wal.Append(ev))
	}
	require.NoError(t, wal.Close())

	path := dir + "/u1/wal-0.log"
	var replayed []persistence.Event
	n, err := persistence.ReplayWAL(path, func(ev persistence.Event) error {
		replayed = append(replayed, ev)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, replayed, 2)
	assert.Equal(t, persistence.EventRecord, replayed[0].Kind)
	assert.Equal(t, "ep1", replayed[0].Episode.ID)
	assert.Equal(t, persistence.EventDelete, replayed[1].Kind)
	assert.Equal(t, "ep1", replayed[1].EpisodeID)
}

func TestReplayWALOnMissingFileIsNoop(t *testing.T) {
	n, err := persistence.ReplayWAL(t.TempDir()+"/does-not-exist.log", func(persistence.Event) error {
		t.Fatal("apply should not be called")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestReplayWALPropagatesApplyError(t *testing.T) {
	dir := t.TempDir()
	wal, err := persistence.OpenWAL(dir, "u1", 0)
	require.NoError(t, err)
	require.NoError(t, wal.Append(persistence.Event{Kind: persistence.EventRecord, Seq: 1}))
	require.NoError(t, wal.Close())

	boom := assert.AnError
	_, err = persistence.ReplayWAL(dir+"/u1/wal-0.log", func(persistence.Event) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
}

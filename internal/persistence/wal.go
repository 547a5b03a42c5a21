package persistence

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fxamacker/cbor/v2"

	engineerrors "github.com/shodh/memory-engine/internal/errors"
	"github.com/shodh/memory-engine/internal/models"
)

var errCRCMismatch = errors.New("persistence: crc mismatch")

// EventKind tags one WAL record.
type EventKind string

const (
	EventRecord        EventKind = "record"
	EventDelete        EventKind = "delete"
	EventEdgeUpdate    EventKind = "edge_update"
	EventSalienceUpdate EventKind = "salience_update"
	EventTierChange    EventKind = "tier_change"
)

// Event is one WAL record, CBOR-encoded on disk. Which of the optional
// fields below are set depends on Kind; ReplayWAL hands each decoded Event
// to its apply callback.
type Event struct {
	Kind      EventKind `cbor:"kind"`
	Seq       uint64    `cbor:"seq"`
	Timestamp time.Time `cbor:"ts"`

	Episode *models.Episode `cbor:"episode,omitempty"`
	EdgeA   int64            `cbor:"edge_a,omitempty"`
	EdgeB   int64            `cbor:"edge_b,omitempty"`
	EdgeKind models.EdgeKind `cbor:"edge_kind,omitempty"`
	Weight  float64          `cbor:"weight,omitempty"`
	EntityID int64           `cbor:"entity_id,omitempty"`
	Salience float64         `cbor:"salience,omitempty"`
	Tier     models.Tier     `cbor:"tier,omitempty"`
	EpisodeID string         `cbor:"episode_id,omitempty"`
}

// flushBatchSize and flushInterval are the fsync thresholds checked on each
// Append: a flush happens once 32 events are pending or 200 ms have passed
// since the last flush. There is no timer, so nothing is flushed between
// Appends.
const (
	flushBatchSize = 32
	flushInterval  = 200 * time.Millisecond
)

// WAL is one user's append-only log. Single-writer: callers must hold the
// user's exclusive namespace lock while calling Append.
type WAL struct {
	mu       sync.Mutex
	file     *os.File
	enc      *cbor.Encoder
	pending  int
	lastFlush time.Time
	seq      uint64
}

// OpenWAL opens (creating if needed) the WAL file for a user at the given
// sequence number.
func OpenWAL(dir string, userID string, seq uint64) (*WAL, error) {
	path := walPath(dir, userID, seq)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &WAL{file: f, enc: cbor.NewEncoder(f), lastFlush: time.Now(), seq: seq}, nil
}

func walPath(dir, userID string, seq uint64) string {
	return filepath.Join(dir, userID, fmt.Sprintf("wal-%d.log", seq))
}

func snapshotPath(dir, userID string, seq uint64) string {
	return filepath.Join(dir, userID, fmt.Sprintf("snapshot-%d.bin", seq))
}

// Append writes one event, retrying transient I/O errors with the engine's
// standard backoff policy (50ms, 200ms, 1s), then flushing if the batch or
// time threshold is reached.
func (w *WAL) Append(ev Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	operation := func() error {
		return w.enc.Encode(ev)
	}
	if err := backoff.Retry(operation, retryPolicy()); err != nil {
		return fmt.Errorf("%w: wal append: %v", engineerrors.ErrTransient, err)
	}

	w.pending++
	if w.pending >= flushBatchSize || time.Since(w.lastFlush) >= flushInterval {
		return w.flushLocked()
	}
	return nil
}

// Flush forces a fsync regardless of batch thresholds.
func (w *WAL) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked()
}

func (w *WAL) flushLocked() error {
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("%w: wal fsync: %v", engineerrors.ErrTransient, err)
	}
	w.pending = 0
	w.lastFlush = time.Now()
	return nil
}

func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.flushLocked()
	return w.file.Close()
}

// retryPolicy is the engine-wide Transient retry policy: after the first
// attempt, up to 3 retries after waits of 50ms, 200ms, 1s (spec §7).
func retryPolicy() backoff.BackOff {
	delays := []time.Duration{50 * time.Millisecond, 200 * time.Millisecond, 1 * time.Second}
	return backoff.WithMaxRetries(&fixedSequenceBackoff{delays: delays}, uint64(len(delays)))
}

// fixedSequenceBackoff walks a fixed slice of delays rather than computing
// an exponential curve, matching spec §7's exact schedule.
type fixedSequenceBackoff struct {
	delays []time.Duration
	idx    int
}

func (f *fixedSequenceBackoff) NextBackOff() time.Duration {
	if f.idx >= len(f.delays) {
		return backoff.Stop
	}
	d := f.delays[f.idx]
	f.idx++
	return d
}

func (f *fixedSequenceBackoff) Reset() { f.idx = 0 }

// ReplayWAL reads every event in the WAL file at path and invokes apply for
// each. Records carry no checksum of their own: a record that fails to
// decode is treated as bad, the file is truncated at the end of the last
// record that decoded, and the count of events applied is returned along
// with a corruption error the caller logs at warn.
func ReplayWAL(path string, apply func(Event) error) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	defer f.Close()

	dec := cbor.NewDecoder(f)
	applied := 0
	goodOffset := 0
	for {
		var ev Event
		if err := dec.Decode(&ev); err != nil {
			if errors.Is(err, io.EOF) {
				return applied, nil
			}
			if terr := os.Truncate(path, int64(goodOffset)); terr != nil {
				return applied, engineerrors.Corruptf("wal %s: bad record after %d events: %v (truncate failed: %v)", path, applied, err, terr)
			}
			return applied, engineerrors.Corruptf("wal %s: truncated after %d events: %v", path, applied, err)
		}
		goodOffset = dec.NumBytesRead()
		if err := apply(ev); err != nil {
			return applied, err
		}
		applied++
	}
}

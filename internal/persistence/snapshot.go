package persistence

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fxamacker/cbor/v2"

	"github.com/shodh/memory-engine/internal/models"
)

// AnnNode is the serializable form of one VectorIndex node, used only by
// the snapshot writer/reader; internal/vectorindex keeps its own in-memory
// representation and does not depend on this package.
type AnnNode struct {
	ID        int64     `cbor:"id"`
	Vector    []float32 `cbor:"vector"`
	Neighbors []int64   `cbor:"neighbors"`
	Tombstone bool      `cbor:"tombstone"`
}

// Snapshot is the full serializable state of one user namespace.
type Snapshot struct {
	Seq       uint64               `cbor:"seq"`
	Episodes  []*models.Episode    `cbor:"episodes"`
	Entities  []*models.EntityNode `cbor:"entities"`
	Edges     []*models.Edge       `cbor:"edges"`
	ANNNodes  []AnnNode            `cbor:"ann_nodes"`
	ANNEntry  int64                `cbor:"ann_entry"`
	HashIndex map[uint64]string    `cbor:"hash_index"`
}

// WriteSnapshot serializes snap to <dir>/<userID>/snapshot-<seq>.bin using
// the §6 file layout: magic, version, then one CRC-checked section per
// field group.
func WriteSnapshot(dir, userID string, snap Snapshot) error {
	path := snapshotPath(dir, userID, snap.Seq)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(Magic[:]); err != nil {
		return err
	}
	if err := writeUint32(f, Version); err != nil {
		return err
	}

	sections := []struct {
		kind SectionKind
		data any
	}{
		{SectionEpisodes, snap.Episodes},
		{SectionEntities, snap.Entities},
		{SectionEdges, snap.Edges},
		{SectionANN, annPayload{Nodes: snap.ANNNodes, Entry: snap.ANNEntry}},
		{SectionHashIndex, snap.HashIndex},
	}
	for _, s := range sections {
		payload, err := cbor.Marshal(s.data)
		if err != nil {
			return fmt.Errorf("marshal section %d: %w", s.kind, err)
		}
		if err := writeSection(f, s.kind, payload); err != nil {
			return err
		}
	}
	if err := f.Sync(); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

type annPayload struct {
	Nodes []AnnNode `cbor:"nodes"`
	Entry int64     `cbor:"entry"`
}

// ReadSnapshot loads the snapshot for userID with the given seq.
// On CRC mismatch in any section it returns a corruption error; the caller
// is expected to fall back to an earlier snapshot or an empty namespace.
func ReadSnapshot(dir, userID string, seq uint64) (Snapshot, error) {
	path := snapshotPath(dir, userID, seq)
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, err
	}
	if len(data) < len(Magic)+4 {
		return Snapshot{}, fmt.Errorf("snapshot %s: truncated header", path)
	}
	if !bytes.Equal(data[:len(Magic)], Magic[:]) {
		return Snapshot{}, fmt.Errorf("snapshot %s: bad magic", path)
	}
	r := bytes.NewReader(data[len(Magic)+4:])

	snap := Snapshot{Seq: seq}
	for {
		kind, payload, err := readSection(r)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return snap, err
		}
		switch kind {
		case SectionEpisodes:
			if err := cbor.Unmarshal(payload, &snap.Episodes); err != nil {
				return snap, err
			}
		case SectionEntities:
			if err := cbor.Unmarshal(payload, &snap.Entities); err != nil {
				return snap, err
			}
		case SectionEdges:
			if err := cbor.Unmarshal(payload, &snap.Edges); err != nil {
				return snap, err
			}
		case SectionANN:
			var ann annPayload
			if err := cbor.Unmarshal(payload, &ann); err != nil {
				return snap, err
			}
			snap.ANNNodes = ann.Nodes
			snap.ANNEntry = ann.Entry
		case SectionHashIndex:
			if err := cbor.Unmarshal(payload, &snap.HashIndex); err != nil {
				return snap, err
			}
		}
	}
	return snap, nil
}

func writeUint32(f *os.File, v uint32) error {
	buf := []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
	_, err := f.Write(buf)
	return err
}

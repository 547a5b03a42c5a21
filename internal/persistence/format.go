// Package persistence implements per-user durability: an append-only WAL,
// periodic binary snapshots, and a cold segment for compressed episode
// content, per spec §4.7 and §6's file layout.
package persistence

import (
	"encoding/binary"
	"hash/crc32"
	"io"
)

// Magic and Version identify the snapshot file format.
var Magic = [5]byte{'S', 'H', 'D', 'M', 0x01}

const Version uint32 = 1

// SectionKind tags each length-prefixed section of a snapshot.
type SectionKind uint8

const (
	SectionEpisodes SectionKind = iota
	SectionEntities
	SectionEdges
	SectionANN
	SectionHashIndex
)

// writeSection writes a CRC32-checked, length-prefixed section: kind (1
// byte), length (uint32), payload, CRC32 of payload (uint32).
func writeSection(w io.Writer, kind SectionKind, payload []byte) error {
	if err := binary.Write(w, binary.LittleEndian, kind); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(payload))); err != nil {
		return err
	}
	if _, err := w.Write(payload); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, crc32.ChecksumIEEE(payload))
}

// readSection reads one section written by writeSection. Returns
// (kind, payload, error). io.EOF signals a clean end of stream.
func readSection(r io.Reader) (SectionKind, []byte, error) {
	var kind SectionKind
	if err := binary.Read(r, binary.LittleEndian, &kind); err != nil {
		return 0, nil, err
	}
	var length uint32
	if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
		return 0, nil, err
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, err
	}
	var wantCRC uint32
	if err := binary.Read(r, binary.LittleEndian, &wantCRC); err != nil {
		return 0, nil, err
	}
	if crc32.ChecksumIEEE(payload) != wantCRC {
		return kind, payload, errCRCMismatch
	}
	return kind, payload, nil
}

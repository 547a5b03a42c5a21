package persistence

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/shodh/memory-engine/internal/models"
)

// ColdStore implements store.ColdWriter over a per-user append-only
// zstd-framed file. Content that has already fallen below the compression
// threshold is rarely read again, so the cost of compression is paid once
// at write time and amortized over the (usually zero) later reads.
type ColdStore struct {
	dir string

	mu      sync.Mutex
	files   map[string]*os.File
	encoder *zstd.Encoder
}

// NewColdStore roots cold segment files under dir (the same per-user
// storage_path tree as the WAL and snapshots).
func NewColdStore(dir string) (*ColdStore, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	return &ColdStore{dir: dir, files: make(map[string]*os.File), encoder: enc}, nil
}

func (c *ColdStore) coldPath(userID string) string {
	return filepath.Join(c.dir, userID, "cold.seg")
}

func (c *ColdStore) fileFor(userID string) (*os.File, error) {
	if f, ok := c.files[userID]; ok {
		return f, nil
	}
	path := c.coldPath(userID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	c.files[userID] = f
	return f, nil
}

// WriteCold compresses content and appends it as one frame, returning the
// byte range to later pass to ReadCold.
func (c *ColdStore) WriteCold(userID string, content []byte) (models.ColdRef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	f, err := c.fileFor(userID)
	if err != nil {
		return models.ColdRef{}, err
	}
	compressed := c.encoder.EncodeAll(content, nil)

	offset, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return models.ColdRef{}, err
	}
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(compressed)))
	if _, err := f.Write(lenBuf[:]); err != nil {
		return models.ColdRef{}, err
	}
	if _, err := f.Write(compressed); err != nil {
		return models.ColdRef{}, err
	}
	return models.ColdRef{Offset: offset, Length: int64(len(compressed) + 4)}, nil
}

// ReadCold decompresses the frame at ref back into original content.
func (c *ColdStore) ReadCold(userID string, ref models.ColdRef) ([]byte, error) {
	c.mu.Lock()
	f, err := c.fileFor(userID)
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}

	buf := make([]byte, ref.Length)
	if _, err := f.ReadAt(buf, ref.Offset); err != nil {
		return nil, fmt.Errorf("cold segment read: %w", err)
	}
	compressed := buf[4:]

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return dec.DecodeAll(compressed, nil)
}

// Close releases open file handles.
func (c *ColdStore) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var firstErr error
	for _, f := range c.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

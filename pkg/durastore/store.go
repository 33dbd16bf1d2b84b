// Package durastore wraps a pebble-backed embedded key-value engine as
// the durable tier behind a hash or value index: every write lands in
// memory first, and only an explicit checkpoint makes it crash-durable.
// Individual puts are not fsync'd — this mirrors the teacher's original
// RocksDB backend, which disables the write-ahead log entirely and
// relies solely on periodic checkpoints for durability.
package durastore

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"sync/atomic"

	"github.com/cockroachdb/pebble"
)

// Error taxonomy mirrors the teacher's sentinel-plus-wrap style and the
// original's Serde/Insert/Read/Checkpoint/Unknown split.
var (
	ErrInsert     = errors.New("durastore: insert failed")
	ErrRead       = errors.New("durastore: read failed")
	ErrCheckpoint = errors.New("durastore: checkpoint failed")
	ErrUnknown    = errors.New("durastore: unknown error")
	ErrNotFound   = errors.New("durastore: key not found")
)

// Store is a durable, append-mostly key-value tier backing one or more
// in-memory indexes.
type Store struct {
	db   *pebble.DB
	path string

	checkpointCounter atomic.Uint64
}

// Open creates or reopens a store rooted at dir. The write-ahead log is
// disabled: durability is obtained only via Checkpoint.
func Open(dir string) (*Store, error) {
	opts := &pebble.Options{
		DisableWAL: true,
	}

	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: open %q: %w", ErrUnknown, dir, err)
	}

	return &Store{db: db, path: dir}, nil
}

// Close releases the underlying pebble handle.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("%w: close: %w", ErrUnknown, err)
	}

	return nil
}

// Put writes a single key/value pair without forcing a sync.
func (s *Store) Put(key, value []byte) error {
	if err := s.db.Set(key, value, pebble.NoSync); err != nil {
		return fmt.Errorf("%w: %w", ErrInsert, err)
	}

	return nil
}

// Entry is one key/value pair for a batched write.
type Entry struct {
	Key   []byte
	Value []byte
}

// PutBatch writes many key/value pairs as a single pebble batch, without
// forcing a sync.
func (s *Store) PutBatch(entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	for _, e := range entries {
		if err := batch.Set(e.Key, e.Value, nil); err != nil {
			return fmt.Errorf("%w: batch set: %w", ErrInsert, err)
		}
	}

	if err := s.db.Apply(batch, pebble.NoSync); err != nil {
		return fmt.Errorf("%w: apply batch: %w", ErrInsert, err)
	}

	return nil
}

// Get reads the value stored for key. It returns ErrNotFound if key is
// absent.
func (s *Store) Get(key []byte) ([]byte, error) {
	val, closer, err := s.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("%w: %w", ErrRead, err)
	}

	out := make([]byte, len(val))
	copy(out, val)

	if closeErr := closer.Close(); closeErr != nil {
		return nil, fmt.Errorf("%w: close value handle: %w", ErrRead, closeErr)
	}

	return out, nil
}

// Checkpoint flushes the memtable and writes a consistent snapshot to a
// new numbered subdirectory under the store's path (path/0, path/1,
// ...), returning the directory it wrote to.
func (s *Store) Checkpoint() (string, error) {
	if err := s.db.Flush(); err != nil {
		return "", fmt.Errorf("%w: flush: %w", ErrCheckpoint, err)
	}

	n := s.checkpointCounter.Add(1) - 1
	dir := filepath.Join(s.path, strconv.FormatUint(n, 10))

	if err := s.db.Checkpoint(dir); err != nil {
		return "", fmt.Errorf("%w: checkpoint %q: %w", ErrCheckpoint, dir, err)
	}

	return dir, nil
}

var _ io.Closer = (*Store)(nil)

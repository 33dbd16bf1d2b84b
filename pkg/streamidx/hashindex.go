package streamidx

import (
	"errors"
	"fmt"

	"github.com/calvinalkan/streamidx/pkg/codec"
	"github.com/calvinalkan/streamidx/pkg/durastore"
	"github.com/calvinalkan/streamidx/pkg/rawtable"
)

// KeyFunc derives the durable-store key bytes for an index key.
type KeyFunc[K any] func(K) []byte

// HashIndex is a modification-aware, in-memory hash index over a raw
// table, backed by a durable key-value store. Reads that miss the table
// fall through to the store (the table may have safely evicted a clean
// entry it knows the store still holds); writes stay in-memory until
// eviction or an explicit Persist/Checkpoint, unless the index was
// constructed in Cow mode.
//
// HashIndex is not safe for concurrent use; callers serialize access the
// same way the underlying rawtable.Table requires.
type HashIndex[K comparable, V any] struct {
	table *rawtable.Table[K, V]
	keyFn KeyFunc[K]
	codec codec.Codec[V]
	store *durastore.Store
	mode  WriteMode
}

// NewHashIndex builds a HashIndex with room for capacity live entries
// before safe eviction runs, and allows at most modFactor of the
// effective capacity to be dirty before dirty eviction runs.
func NewHashIndex[K comparable, V any](
	capacity int,
	modFactor float64,
	keyFn KeyFunc[K],
	valCodec codec.Codec[V],
	store *durastore.Store,
	mode WriteMode,
) (*HashIndex[K, V], error) {
	if keyFn == nil {
		return nil, fmt.Errorf("%w: key function is nil", ErrInvalidOption)
	}

	if valCodec == nil {
		return nil, fmt.Errorf("%w: codec is nil", ErrInvalidOption)
	}

	if store == nil {
		return nil, fmt.Errorf("%w: store is nil", ErrInvalidOption)
	}

	hasher := func(k K) uint64 { return fnv1a64(keyFn(k)) }

	table, err := rawtable.WithCapacity[K, V](capacity, modFactor, hasher)
	if err != nil {
		return nil, err
	}

	return &HashIndex[K, V]{
		table: table,
		keyFn: keyFn,
		codec: valCodec,
		store: store,
		mode:  mode,
	}, nil
}

// Get returns the value for k, checking the in-memory table first and
// falling back to the durable store on a miss. A store hit is re-inserted
// into the table, warming it for subsequent lookups.
func (h *HashIndex[K, V]) Get(k K) (V, bool, error) {
	if v, ok := h.table.Find(k); ok {
		return *v, true, nil
	}

	var zero V

	raw, err := h.store.Get(h.keyFn(k))
	if err != nil {
		if errors.Is(err, durastore.ErrNotFound) {
			return zero, false, nil
		}

		return zero, false, err
	}

	v, err := h.codec.Decode(raw)
	if err != nil {
		return zero, false, fmt.Errorf("%w: %w", ErrSerde, err)
	}

	if err := h.makeRoom(k, true); err != nil {
		return zero, false, err
	}

	h.table.Insert(k, v)

	if rv, ok := h.table.Find(k); ok {
		return *rv, true, nil
	}

	return v, true, nil
}

// Put inserts or overwrites the value for k, evicting a clean bucket for
// room and a dirty bucket to stay under the mod budget as needed. In Cow
// mode it also forwards the write to the durable store immediately.
func (h *HashIndex[K, V]) Put(k K, v V) error {
	_, found := h.table.Find(k)

	if err := h.makeRoom(k, !found); err != nil {
		return err
	}

	h.table.Insert(k, v)

	if h.mode.isCow() {
		return h.persistKey(k, v)
	}

	return nil
}

// RMW applies f to the value stored for k in place, fetching it from the
// durable store first if it is not resident in the table. It reports
// false iff k is absent from both the table and the store. In Cow mode
// it also forwards the mutated value to the durable store immediately.
func (h *HashIndex[K, V]) RMW(k K, f func(*V)) (bool, error) {
	if v, ok := h.table.FindMut(k); ok {
		f(v)
		mutated := *v

		if h.table.ModCounter() >= h.table.ModLimit() {
			if err := h.evictOneDirty(); err != nil {
				return true, err
			}
		}

		if h.mode.isCow() {
			if err := h.persistKey(k, mutated); err != nil {
				return true, err
			}
		}

		return true, nil
	}

	raw, err := h.store.Get(h.keyFn(k))
	if err != nil {
		if errors.Is(err, durastore.ErrNotFound) {
			return false, nil
		}

		return false, err
	}

	v, err := h.codec.Decode(raw)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrSerde, err)
	}

	f(&v)

	if err := h.makeRoom(k, true); err != nil {
		return false, err
	}

	h.table.Insert(k, v)

	if h.mode.isCow() {
		if err := h.persistKey(k, v); err != nil {
			return true, err
		}
	}

	return true, nil
}

// Len reports the number of entries currently resident in the table.
// Entries that have been safely evicted back to the durable store are
// not counted.
func (h *HashIndex[K, V]) Len() int { return h.table.Len() }

// Persist writes every currently dirty (MODIFIED/MODIFIED_TOUCHED) entry
// to the durable store as a single batch, demoting each to SAFE. It does
// not itself checkpoint the store; see Checkpoint for the aggregate-wide
// operation.
func (h *HashIndex[K, V]) Persist() error {
	var (
		entries []durastore.Entry
		encErr  error
	)

	h.table.IterModified(func(k K, v V) bool {
		b, err := h.codec.Encode(v)
		if err != nil {
			encErr = fmt.Errorf("%w: %w", ErrSerde, err)

			return false
		}

		entries = append(entries, durastore.Entry{Key: h.keyFn(k), Value: b})

		return true
	})

	if encErr != nil {
		return encErr
	}

	if len(entries) == 0 {
		return nil
	}

	return h.store.PutBatch(entries)
}

func (h *HashIndex[K, V]) hash(k K) uint64 { return fnv1a64(h.keyFn(k)) }

// makeRoom evicts a clean bucket when isNewKey is about to occupy a
// never-used slot and none remain, then a dirty bucket when the table is
// at its dirty-budget ceiling.
func (h *HashIndex[K, V]) makeRoom(k K, isNewKey bool) error {
	if isNewKey && h.table.GrowthLeft() == 0 {
		h.table.ClearSafeBucket(h.hash(k))
	}

	if h.table.ModCounter() >= h.table.ModLimit() {
		return h.evictOneDirty()
	}

	return nil
}

func (h *HashIndex[K, V]) evictOneDirty() error {
	k, v, ok := h.table.EvictModBucket()
	if !ok {
		return nil
	}

	return h.persistKey(k, v)
}

func (h *HashIndex[K, V]) persistKey(k K, v V) error {
	b, err := h.codec.Encode(v)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSerde, err)
	}

	return h.store.Put(h.keyFn(k), b)
}

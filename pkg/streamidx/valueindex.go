package streamidx

import (
	"errors"
	"fmt"

	"github.com/calvinalkan/streamidx/pkg/codec"
	"github.com/calvinalkan/streamidx/pkg/durastore"
)

// ValueIndex holds a single durable value at a fixed key, the simplest
// building block an aggregate can compose (a counter, a watermark, a
// single config blob).
//
// ValueIndex is not safe for concurrent use.
type ValueIndex[V any] struct {
	key   []byte
	data  *V
	codec codec.Codec[V]
	store *durastore.Store
	mode  WriteMode
}

// NewValueIndex builds an empty ValueIndex at key.
func NewValueIndex[V any](key []byte, valCodec codec.Codec[V], store *durastore.Store, mode WriteMode) (*ValueIndex[V], error) {
	if len(key) == 0 {
		return nil, fmt.Errorf("%w: key is empty", ErrInvalidOption)
	}

	if valCodec == nil {
		return nil, fmt.Errorf("%w: codec is nil", ErrInvalidOption)
	}

	if store == nil {
		return nil, fmt.Errorf("%w: store is nil", ErrInvalidOption)
	}

	keyCopy := make([]byte, len(key))
	copy(keyCopy, key)

	return &ValueIndex[V]{key: keyCopy, codec: valCodec, store: store, mode: mode}, nil
}

// LoadValueIndex builds a ValueIndex at key, hydrating it from the
// durable store if a value is already present there.
func LoadValueIndex[V any](key []byte, valCodec codec.Codec[V], store *durastore.Store, mode WriteMode) (*ValueIndex[V], error) {
	vi, err := NewValueIndex(key, valCodec, store, mode)
	if err != nil {
		return nil, err
	}

	raw, err := store.Get(vi.key)
	if err != nil {
		if errors.Is(err, durastore.ErrNotFound) {
			return vi, nil
		}

		return nil, err
	}

	v, err := valCodec.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerde, err)
	}

	vi.data = &v

	return vi, nil
}

// Get returns the currently held value, reporting false if none has
// been put yet.
func (vi *ValueIndex[V]) Get() (V, bool) {
	if vi.data == nil {
		var zero V

		return zero, false
	}

	return *vi.data, true
}

// Put replaces the held value. In Cow mode it also forwards the write to
// the durable store immediately.
func (vi *ValueIndex[V]) Put(v V) error {
	vi.data = &v

	if vi.mode.isCow() {
		return vi.persist()
	}

	return nil
}

// RMW applies f to the held value in place, reporting false if no value
// has been put yet. In Cow mode it also forwards the mutated value to
// the durable store immediately.
func (vi *ValueIndex[V]) RMW(f func(*V)) (bool, error) {
	if vi.data == nil {
		return false, nil
	}

	f(vi.data)

	if vi.mode.isCow() {
		return true, vi.persist()
	}

	return true, nil
}

// Persist writes the currently held value to the durable store, if one
// has been put.
func (vi *ValueIndex[V]) Persist() error { return vi.persist() }

func (vi *ValueIndex[V]) persist() error {
	if vi.data == nil {
		return nil
	}

	b, err := vi.codec.Encode(*vi.data)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSerde, err)
	}

	return vi.store.Put(vi.key, b)
}

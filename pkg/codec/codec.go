// Package codec provides the (de)serialization boundary between typed
// index values and the byte slices the durable store persists.
package codec

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrEncode wraps any failure to turn a value into bytes.
var ErrEncode = errors.New("codec: encode failed")

// ErrDecode wraps any failure to turn bytes back into a value.
var ErrDecode = errors.New("codec: decode failed")

// Codec converts values of type T to and from their durable-store byte
// representation.
type Codec[T any] interface {
	Encode(v T) ([]byte, error)
	Decode(b []byte) (T, error)
}

type uint64Codec struct{}

// Uint64 encodes a uint64 as 8 big-endian bytes.
func Uint64() Codec[uint64] { return uint64Codec{} }

func (uint64Codec) Encode(v uint64) ([]byte, error) {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)

	return b, nil
}

func (uint64Codec) Decode(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("%w: want 8 bytes, got %d", ErrDecode, len(b))
	}

	return binary.BigEndian.Uint64(b), nil
}

type int64Codec struct{}

// Int64 encodes an int64 as 8 big-endian bytes (zigzag not needed: the
// durable store treats keys/values as opaque sortable-adjacent bytes
// only within a single codec's own encoding, not across codecs).
func Int64() Codec[int64] { return int64Codec{} }

func (int64Codec) Encode(v int64) ([]byte, error) {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))

	return b, nil
}

func (int64Codec) Decode(b []byte) (int64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("%w: want 8 bytes, got %d", ErrDecode, len(b))
	}

	return int64(binary.BigEndian.Uint64(b)), nil
}

type stringCodec struct{}

// String encodes a string as its raw UTF-8 bytes.
func String() Codec[string] { return stringCodec{} }

func (stringCodec) Encode(v string) ([]byte, error) { return []byte(v), nil }

func (stringCodec) Decode(b []byte) (string, error) { return string(b), nil }

type bytesCodec struct{}

// Bytes is the identity codec for []byte values.
func Bytes() Codec[[]byte] { return bytesCodec{} }

func (bytesCodec) Encode(v []byte) ([]byte, error) {
	out := make([]byte, len(v))
	copy(out, v)

	return out, nil
}

func (bytesCodec) Decode(b []byte) ([]byte, error) {
	out := make([]byte, len(b))
	copy(out, b)

	return out, nil
}

type jsonCodec[T any] struct{}

// JSON encodes T via encoding/json, matching the teacher's own choice of
// serialization format for structured values (ticket frontmatter, bench
// reports).
func JSON[T any]() Codec[T] { return jsonCodec[T]{} }

func (jsonCodec[T]) Encode(v T) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncode, err)
	}

	return b, nil
}

func (jsonCodec[T]) Decode(b []byte) (T, error) {
	var v T

	if err := json.Unmarshal(b, &v); err != nil {
		return v, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	return v, nil
}

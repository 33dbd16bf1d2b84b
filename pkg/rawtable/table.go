// Package rawtable implements a generic open-addressed hash table with an
// explicit control-byte stream (hashbrown-style: EMPTY/DELETED/full-with-h2)
// and a parallel meta-byte stream tracking a bucket's dirty/touched state.
//
// The table never allocates beyond construction and never returns errors
// from its hot-path operations: every operation is total over a
// well-formed table and a key for which room has already been made via
// eviction. Eviction (both "safe" and "dirty") is caller-driven: the
// table exposes the primitives, the enclosing index decides when to call
// them.
package rawtable

import (
	"errors"
	"fmt"
)

// Control byte values. EMPTY and DELETED both carry the top bit set;
// full buckets carry a 7-bit secondary hash (h2) in the low bits with
// the top bit clear.
const (
	ctrlEmpty   byte = 0b1111_1111
	ctrlDeleted byte = 0b1000_0000
)

// Meta byte values, orthogonal to the control byte, tracking whether a
// bucket's value has ever been written since the last checkpoint (the
// modified/safe axis) and whether it has been read since (the
// touched axis).
const (
	MetaSafe            byte = 0b0000_0000
	MetaSafeTouched     byte = 0b0100_0000
	MetaModified        byte = 0b1000_0000
	MetaModifiedTouched byte = 0b1100_0000
)

const modifiedBit = 0b1000_0000

// Hasher computes the 64-bit hash of a key. Supplied by the caller so the
// table stays generic over K.
type Hasher[K any] func(K) uint64

type bucket[K comparable, V any] struct {
	key K
	val V
}

// Table is a generic open-addressed hash table over comparable keys.
//
// Table is not safe for concurrent use; callers serialize access the
// same way the enclosing index does.
type Table[K comparable, V any] struct {
	ctrl    []byte
	meta    []byte
	buckets []bucket[K, V]

	bucketMask uint64
	items      uint64
	growthLeft uint64

	modCounter  uint64
	modLimit    uint64
	evictCursor uint64

	hash Hasher[K]
}

// WithCapacity builds a table that can hold at least capacity live
// entries before safe eviction must run, and reserves room for at most
// modFactor of the effective capacity to be dirty (MODIFIED/MODIFIED_TOUCHED)
// before dirty eviction must run.
//
// modFactor must be in (0, 0.9]. hash must be non-nil.
func WithCapacity[K comparable, V any](capacity int, modFactor float64, hash Hasher[K]) (*Table[K, V], error) {
	if capacity < 1 {
		return nil, fmt.Errorf("rawtable: capacity must be >= 1, got %d", capacity)
	}

	if modFactor <= 0 || modFactor > 0.9 {
		return nil, fmt.Errorf("rawtable: mod_factor must be in (0, 0.9], got %v", modFactor)
	}

	if hash == nil {
		return nil, errors.New("rawtable: hash function is nil")
	}

	buckets := bucketsForCapacity(capacity)

	t := &Table[K, V]{
		ctrl:       make([]byte, buckets+groupWidth),
		meta:       make([]byte, buckets+groupWidth),
		buckets:    make([]bucket[K, V], buckets),
		bucketMask: uint64(buckets - 1),
		hash:       hash,
	}

	for i := range t.ctrl {
		t.ctrl[i] = ctrlEmpty
	}

	t.growthLeft = effectiveCapacity(uint64(buckets))
	t.modLimit = uint64(float64(t.growthLeft) * modFactor)

	if t.modLimit >= t.growthLeft {
		return nil, fmt.Errorf("rawtable: mod_limit %d must be less than effective capacity %d", t.modLimit, t.growthLeft)
	}

	return t, nil
}

// bucketsForCapacity returns the smallest power-of-two bucket count,
// clamped to at least groupWidth, such that effectiveCapacity(buckets)
// is >= capacity at a 7/8 max load factor.
func bucketsForCapacity(capacity int) int {
	want := capacity
	if capacity >= 8 {
		want = (capacity*8 + 6) / 7 // ceil(capacity * 8/7)
	} else {
		want = capacity + 1
	}

	b := 1
	for b < want {
		b <<= 1
	}

	if b < groupWidth {
		b = groupWidth
	}

	return b
}

// effectiveCapacity is the number of buckets that may be occupied at
// once, i.e. a 7/8 max load factor. buckets is always a power of two
// that is a multiple of groupWidth (8), so this divides evenly.
func effectiveCapacity(buckets uint64) uint64 {
	return buckets - buckets/8
}

func h1(hash uint64) uint64 { return hash }

func h2(hash uint64) byte { return byte((hash >> 57) & 0x7f) }

type probeSeq struct {
	mask   uint64
	pos    uint64
	stride uint64
}

func newProbeSeq(mask, pos uint64) probeSeq {
	return probeSeq{mask: mask, pos: pos & mask}
}

func (p *probeSeq) advance() {
	p.stride += groupWidth
	p.pos = (p.pos + p.stride) & p.mask
}

func (t *Table[K, V]) setCtrl(i uint64, v byte) {
	t.ctrl[i] = v

	if i < groupWidth {
		t.ctrl[i+t.bucketMask+1] = v
	}
}

func (t *Table[K, V]) setMeta(i uint64, v byte) {
	t.meta[i] = v

	if i < groupWidth {
		t.meta[i+t.bucketMask+1] = v
	}
}

// Len reports the number of live entries.
func (t *Table[K, V]) Len() int { return int(t.items) }

// Cap reports the number of buckets backing the table.
func (t *Table[K, V]) Cap() int { return int(t.bucketMask + 1) }

// GrowthLeft reports how many more inserts can land on a never-used
// bucket before safe eviction must run.
func (t *Table[K, V]) GrowthLeft() int { return int(t.growthLeft) }

// ModCounter reports the number of buckets currently MODIFIED or
// MODIFIED_TOUCHED.
func (t *Table[K, V]) ModCounter() int { return int(t.modCounter) }

// ModLimit reports the dirty-bucket threshold at or above which dirty
// eviction must run before another write lands.
func (t *Table[K, V]) ModLimit() int { return int(t.modLimit) }

// Exported control-byte sentinels, for tests and debugging that need to
// assert on DELETED-vs-EMPTY demotion directly rather than through
// observable behavior alone.
const (
	CtrlEmpty   = ctrlEmpty
	CtrlDeleted = ctrlDeleted
)

// DebugState returns the raw control and meta byte stored for key, for
// tests asserting on exact eviction/demotion bookkeeping. It has no
// effect on the table's state.
func (t *Table[K, V]) DebugState(key K) (ctrl byte, meta byte, found bool) {
	idx, ok := t.findIndex(key)
	if !ok {
		return 0, 0, false
	}

	return t.ctrl[idx], t.meta[idx], true
}

// DebugErase erases key directly, exercising the same DELETED/EMPTY
// demotion rule as eviction without going through Clear/EvictModBucket.
// It reports false if key is absent.
func (t *Table[K, V]) DebugErase(key K) bool {
	idx, ok := t.findIndex(key)
	if !ok {
		return false
	}

	t.eraseByIndex(idx)

	return true
}

// Find looks up key and, if present, marks a SAFE bucket SAFE_TOUCHED.
// The returned pointer is valid until the next mutating call.
func (t *Table[K, V]) Find(key K) (*V, bool) {
	idx, ok := t.findIndex(key)
	if !ok {
		return nil, false
	}

	if t.meta[idx] == MetaSafe {
		t.setMeta(idx, MetaSafeTouched)
	}

	return &t.buckets[idx].val, true
}

// FindMut looks up key and, if present, marks the bucket
// MODIFIED_TOUCHED, counting it against the dirty-bucket budget if it
// was not already dirty. The returned pointer is valid until the next
// mutating call.
func (t *Table[K, V]) FindMut(key K) (*V, bool) {
	idx, ok := t.findIndex(key)
	if !ok {
		return nil, false
	}

	if t.meta[idx]&modifiedBit == 0 {
		t.modCounter++
	}

	t.setMeta(idx, MetaModifiedTouched)

	return &t.buckets[idx].val, true
}

func (t *Table[K, V]) findIndex(key K) (uint64, bool) {
	h := t.hash(key)
	seq := newProbeSeq(t.bucketMask, h1(h))
	target := h2(h)

	for {
		group := loadGroup(t.ctrl, seq.pos)
		m := matchByte(group, target)

		for {
			lane, more := nextMatch(&m)
			if !more {
				break
			}

			idx := (seq.pos + uint64(lane)) & t.bucketMask
			if t.buckets[idx].key == key {
				return idx, true
			}
		}

		if matchEmpty(group) != 0 {
			return 0, false
		}

		seq.advance()
	}
}

func (t *Table[K, V]) findInsertSlot(h uint64) uint64 {
	seq := newProbeSeq(t.bucketMask, h1(h))

	for {
		group := loadGroup(t.ctrl, seq.pos)
		if m := matchEmptyOrDeleted(group); m != 0 {
			lane := firstMatch(m)

			return (seq.pos + uint64(lane)) & t.bucketMask
		}

		seq.advance()
	}
}

// Insert writes key/val into the table, overwriting any existing entry
// for key, and marks the bucket MODIFIED.
//
// The caller must have already ensured growthLeft > 0 (via clearSafeBucket)
// before calling Insert for a key not already present; Insert does not
// evict on the caller's behalf.
func (t *Table[K, V]) Insert(key K, val V) {
	if idx, ok := t.findIndex(key); ok {
		t.buckets[idx].val = val

		if t.meta[idx]&modifiedBit == 0 {
			t.modCounter++
		}

		t.setMeta(idx, MetaModified)

		return
	}

	h := t.hash(key)
	idx := t.findInsertSlot(h)
	wasEmpty := t.ctrl[idx] == ctrlEmpty

	t.buckets[idx] = bucket[K, V]{key: key, val: val}
	t.setCtrl(idx, h2(h))
	t.setMeta(idx, MetaModified)

	if wasEmpty {
		t.growthLeft--
	}

	t.items++
	t.modCounter++
}

// ClearSafeBucket evicts one SAFE or SAFE_TOUCHED bucket found along the
// probe sequence for hash, freeing a slot for growth. The caller must
// ensure at least one SAFE/SAFE_TOUCHED bucket exists (mod_limit is
// always < effective capacity, so this holds as long as the table is
// used as intended).
func (t *Table[K, V]) ClearSafeBucket(hash uint64) {
	seq := newProbeSeq(t.bucketMask, h1(hash))

	for steps := uint64(0); steps <= t.bucketMask; steps += groupWidth {
		group := loadGroup(t.meta, seq.pos)
		full := ^loadGroup(t.ctrl, seq.pos) & hiBits

		m := matchByte(group, MetaSafe) & full
		if m == 0 {
			m = matchByte(group, MetaSafeTouched) & full
		}

		if lane := firstMatch(m); lane >= 0 {
			idx := (seq.pos + uint64(lane)) & t.bucketMask
			t.eraseByIndex(idx)
			t.setMeta(idx, MetaSafe)

			return
		}

		seq.advance()
	}

	panic("rawtable: no SAFE bucket available for eviction; mod_limit invariant violated")
}

// EvictModBucket evicts one MODIFIED or MODIFIED_TOUCHED bucket, marking
// it SAFE and returning its key/value so the caller can persist it. It
// reports false if no dirty bucket exists.
//
// Eviction sweeps round-robin from an internal cursor rather than from
// a specific key's probe sequence, since dirty eviction is not tied to
// any one incoming key.
func (t *Table[K, V]) EvictModBucket() (key K, val V, ok bool) {
	if t.modCounter == 0 {
		return key, val, false
	}

	start := t.evictCursor

	for steps := uint64(0); steps <= t.bucketMask; steps += groupWidth {
		pos := (start + steps) & t.bucketMask
		group := loadGroup(t.meta, pos)

		m := matchByte(group, MetaModified)
		if m == 0 {
			m = matchByte(group, MetaModifiedTouched)
		}

		if lane := firstMatch(m); lane >= 0 {
			idx := (pos + uint64(lane)) & t.bucketMask
			key, val = t.buckets[idx].key, t.buckets[idx].val

			t.setMeta(idx, MetaSafe)
			t.modCounter--
			t.evictCursor = (idx + 1) & t.bucketMask

			if t.growthLeft == 0 {
				t.eraseByIndex(idx)
			}

			return key, val, true
		}
	}

	return key, val, false
}

func (t *Table[K, V]) eraseByIndex(i uint64) {
	before := t.countEmptyBackward(i)
	after := t.countEmptyForward((i + 1) & t.bucketMask)

	if t.meta[i]&modifiedBit != 0 {
		t.modCounter--
	}

	var zk K

	var zv V

	t.buckets[i] = bucket[K, V]{key: zk, val: zv}

	if before+after >= groupWidth {
		t.setCtrl(i, ctrlEmpty)
		t.growthLeft++
	} else {
		t.setCtrl(i, ctrlDeleted)
	}

	t.items--
}

func (t *Table[K, V]) countEmptyBackward(i uint64) int {
	n := 0

	for k := uint64(1); k <= groupWidth; k++ {
		idx := (i - k) & t.bucketMask
		if t.ctrl[idx] != ctrlEmpty {
			break
		}

		n++
	}

	return n
}

func (t *Table[K, V]) countEmptyForward(i uint64) int {
	n := 0

	for k := uint64(0); k < groupWidth; k++ {
		idx := (i + k) & t.bucketMask
		if t.ctrl[idx] != ctrlEmpty {
			break
		}

		n++
	}

	return n
}

// IterModified walks every MODIFIED/MODIFIED_TOUCHED bucket exactly
// once, resetting each to SAFE as it is yielded, and resets mod_counter
// to 0 before the first yield. Breaking out of the range early leaves
// mod_counter inconsistent with the remaining meta bytes; callers that
// start this iteration are expected to run it to completion.
func (t *Table[K, V]) IterModified(yield func(K, V) bool) {
	t.modCounter = 0

	for i := uint64(0); i < uint64(len(t.buckets)); i++ {
		if t.meta[i]&modifiedBit == 0 {
			continue
		}

		k, v := t.buckets[i].key, t.buckets[i].val
		t.setMeta(i, MetaSafe)

		if !yield(k, v) {
			return
		}
	}
}

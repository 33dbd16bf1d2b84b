package streamidx

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/streamidx/pkg/codec"
	"github.com/calvinalkan/streamidx/pkg/durastore"
)

func openTestStore(t *testing.T) *durastore.Store {
	t.Helper()

	s, err := durastore.Open(t.TempDir())
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, s.Close())
	})

	return s
}

func stringKey(k string) []byte { return []byte(k) }

func newTestHashIndex(t *testing.T, capacity int, modFactor float64, mode WriteMode) *HashIndex[string, int] {
	t.Helper()

	idx, err := NewHashIndex[string, int](capacity, modFactor, stringKey, codec.JSON[int](), openTestStore(t), mode)
	require.NoError(t, err)

	return idx
}

func TestHashIndex_Put_Then_Get_Roundtrips(t *testing.T) {
	idx := newTestHashIndex(t, 64, 0.5, Lazy)

	require.NoError(t, idx.Put("a", 1))

	v, ok, err := idx.Get("a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1, v)
}

func TestHashIndex_Get_Missing_Key(t *testing.T) {
	idx := newTestHashIndex(t, 64, 0.5, Lazy)

	_, ok, err := idx.Get("missing")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestHashIndex_RMW_Mutates_In_Place(t *testing.T) {
	idx := newTestHashIndex(t, 64, 0.5, Lazy)
	require.NoError(t, idx.Put("a", 1))

	ok, err := idx.RMW("a", func(v *int) { *v += 41 })
	require.NoError(t, err)
	require.True(t, ok)

	v, ok, err := idx.Get("a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 42, v)
}

func TestHashIndex_RMW_Missing_Key_Returns_False(t *testing.T) {
	idx := newTestHashIndex(t, 64, 0.5, Lazy)

	ok, err := idx.RMW("missing", func(v *int) { *v = 1 })
	require.NoError(t, err)
	require.False(t, ok)
}

func TestHashIndex_Persist_Flushes_Dirty_Entries_To_Store(t *testing.T) {
	idx := newTestHashIndex(t, 64, 0.5, Lazy)
	require.NoError(t, idx.Put("a", 1))
	require.NoError(t, idx.Put("b", 2))

	require.NoError(t, idx.Persist())

	raw, err := idx.store.Get(stringKey("a"))
	require.NoError(t, err)

	v, err := codec.JSON[int]().Decode(raw)
	require.NoError(t, err)
	require.Equal(t, 1, v)
}

func TestHashIndex_Cow_Mode_Persists_Immediately(t *testing.T) {
	idx := newTestHashIndex(t, 64, 0.5, Cow)
	require.NoError(t, idx.Put("a", 1))

	raw, err := idx.store.Get(stringKey("a"))
	require.NoError(t, err)

	v, err := codec.JSON[int]().Decode(raw)
	require.NoError(t, err)
	require.Equal(t, 1, v)
}

func TestHashIndex_Get_Falls_Back_To_Store_When_Not_Resident(t *testing.T) {
	idx := newTestHashIndex(t, 64, 0.5, Lazy)

	// Simulate an entry that was safely evicted from the table: it is
	// not resident in memory, but the durable store still has it.
	raw, err := codec.JSON[int]().Encode(7)
	require.NoError(t, err)
	require.NoError(t, idx.store.Put(stringKey("a"), raw))

	v, ok, err := idx.Get("a")
	require.NoError(t, err)
	require.True(t, ok, "value must be reachable via the durable store when not resident in the table")
	require.Equal(t, 7, v)
}

func TestHashIndex_Get_Rewarms_Table_After_Store_Fallback(t *testing.T) {
	idx := newTestHashIndex(t, 64, 0.5, Lazy)

	raw, err := codec.JSON[int]().Encode(7)
	require.NoError(t, err)
	require.NoError(t, idx.store.Put(stringKey("a"), raw))

	_, ok, err := idx.Get("a")
	require.NoError(t, err)
	require.True(t, ok)

	_, found := idx.table.Find("a")
	require.True(t, found, "a store hit must be re-inserted into the table")
}

func TestHashIndex_RMW_Applies_To_Key_Spilled_To_Store(t *testing.T) {
	idx := newTestHashIndex(t, 64, 0.5, Lazy)

	raw, err := codec.JSON[int]().Encode(1)
	require.NoError(t, err)
	require.NoError(t, idx.store.Put(stringKey("a"), raw))

	ok, err := idx.RMW("a", func(v *int) { *v += 41 })
	require.NoError(t, err)
	require.True(t, ok, "rmw must fetch from the store when the key is absent from the table")

	v, ok, err := idx.Get("a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 42, v)
}

func TestHashIndex_RMW_Mutates_Resident_Key_When_Dirty_Ceiling_Is_Reached(t *testing.T) {
	idx := newTestHashIndex(t, 8, 0.5, Lazy)

	require.NoError(t, idx.Put("a", 1))

	for i := 0; idx.table.ModCounter() < idx.table.ModLimit(); i++ {
		require.NoError(t, idx.Put(fmt.Sprintf("filler-%d", i), i))
	}

	ok, err := idx.RMW("a", func(v *int) { *v += 41 })
	require.NoError(t, err)
	require.True(t, ok, "a resident key's in-place mutation must not be lost to a same-call dirty eviction")

	v, ok, err := idx.Get("a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 42, v)
}

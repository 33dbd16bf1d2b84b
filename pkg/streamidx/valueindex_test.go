package streamidx

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/streamidx/pkg/codec"
	"github.com/calvinalkan/streamidx/pkg/durastore"
)

func TestValueIndex_Get_Before_Put_Reports_Absent(t *testing.T) {
	vi, err := NewValueIndex(stringKey("counter"), codec.Uint64(), openTestStore(t), Lazy)
	require.NoError(t, err)

	_, ok := vi.Get()
	require.False(t, ok)
}

func TestValueIndex_Put_Then_Get_Roundtrips(t *testing.T) {
	vi, err := NewValueIndex(stringKey("counter"), codec.Uint64(), openTestStore(t), Lazy)
	require.NoError(t, err)

	require.NoError(t, vi.Put(42))

	v, ok := vi.Get()
	require.True(t, ok)
	require.Equal(t, uint64(42), v)
}

func TestValueIndex_RMW_Requires_Existing_Value(t *testing.T) {
	vi, err := NewValueIndex(stringKey("counter"), codec.Uint64(), openTestStore(t), Lazy)
	require.NoError(t, err)

	ok, err := vi.RMW(func(v *uint64) { *v++ })
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, vi.Put(1))

	ok, err = vi.RMW(func(v *uint64) { *v++ })
	require.NoError(t, err)
	require.True(t, ok)

	v, _ := vi.Get()
	require.Equal(t, uint64(2), v)
}

func TestValueIndex_Lazy_Mode_Does_Not_Persist_Until_Persist_Called(t *testing.T) {
	store := openTestStore(t)

	vi, err := NewValueIndex(stringKey("counter"), codec.Uint64(), store, Lazy)
	require.NoError(t, err)
	require.NoError(t, vi.Put(9))

	_, err = store.Get(stringKey("counter"))
	require.ErrorIs(t, err, durastore.ErrNotFound)

	require.NoError(t, vi.Persist())

	raw, err := store.Get(stringKey("counter"))
	require.NoError(t, err)

	v, err := codec.Uint64().Decode(raw)
	require.NoError(t, err)
	require.Equal(t, uint64(9), v)
}

func TestLoadValueIndex_Hydrates_From_Store(t *testing.T) {
	store := openTestStore(t)

	seed, err := NewValueIndex(stringKey("counter"), codec.Uint64(), store, Lazy)
	require.NoError(t, err)
	require.NoError(t, seed.Put(5))
	require.NoError(t, seed.Persist())

	loaded, err := LoadValueIndex(stringKey("counter"), codec.Uint64(), store, Lazy)
	require.NoError(t, err)

	v, ok := loaded.Get()
	require.True(t, ok)
	require.Equal(t, uint64(5), v)
}

func TestLoadValueIndex_Without_Existing_Value_Starts_Empty(t *testing.T) {
	loaded, err := LoadValueIndex(stringKey("counter"), codec.Uint64(), openTestStore(t), Lazy)
	require.NoError(t, err)

	_, ok := loaded.Get()
	require.False(t, ok)
}

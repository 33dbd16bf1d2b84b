package codec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUint64_Roundtrips(t *testing.T) {
	c := Uint64()

	b, err := c.Encode(42)
	require.NoError(t, err)

	v, err := c.Decode(b)
	require.NoError(t, err)
	require.Equal(t, uint64(42), v)
}

func TestUint64_Decode_Rejects_Wrong_Length(t *testing.T) {
	_, err := Uint64().Decode([]byte{1, 2, 3})
	require.ErrorIs(t, err, ErrDecode)
}

func TestInt64_Roundtrips_Negative(t *testing.T) {
	c := Int64()

	b, err := c.Encode(-7)
	require.NoError(t, err)

	v, err := c.Decode(b)
	require.NoError(t, err)
	require.Equal(t, int64(-7), v)
}

func TestString_Roundtrips(t *testing.T) {
	c := String()

	b, err := c.Encode("hello")
	require.NoError(t, err)

	v, err := c.Decode(b)
	require.NoError(t, err)
	require.Equal(t, "hello", v)
}

func TestBytes_Roundtrips_And_Copies(t *testing.T) {
	c := Bytes()
	orig := []byte{1, 2, 3}

	b, err := c.Encode(orig)
	require.NoError(t, err)
	orig[0] = 99

	v, err := c.Decode(b)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, v)
}

type widget struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestJSON_Roundtrips_Struct(t *testing.T) {
	c := JSON[widget]()

	b, err := c.Encode(widget{Name: "gear", Count: 3})
	require.NoError(t, err)

	v, err := c.Decode(b)
	require.NoError(t, err)
	require.Equal(t, widget{Name: "gear", Count: 3}, v)
}

func TestJSON_Decode_Invalid_Returns_ErrDecode(t *testing.T) {
	_, err := JSON[widget]().Decode([]byte("not json"))
	require.ErrorIs(t, err, ErrDecode)
}

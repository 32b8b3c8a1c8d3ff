package record

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testSchema() *Schema {
	return &Schema{Cols: []Column{
		{Name: "id", Type: ColInt64},
		{Name: "name", Type: ColText},
		{Name: "score", Type: ColFloat64, Nullable: true},
		{Name: "active", Type: ColBool},
	}}
}

func TestRowCodec_RoundTrip(t *testing.T) {
	s := testSchema()
	values := []any{int64(42), "ada", 3.5, true}

	data, err := EncodeRow(s, values)
	require.NoError(t, err)

	got, err := DecodeRow(s, data)
	require.NoError(t, err)
	require.Equal(t, values, got)
}

func TestRowCodec_NullHandling(t *testing.T) {
	s := testSchema()

	data, err := EncodeRow(s, []any{int64(1), "x", nil, false})
	require.NoError(t, err)

	got, err := DecodeRow(s, data)
	require.NoError(t, err)
	require.Nil(t, got[2])

	// NULL into a non-nullable column is rejected.
	_, err = EncodeRow(s, []any{nil, "x", nil, false})
	require.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestRowCodec_Mismatches(t *testing.T) {
	s := testSchema()

	_, err := EncodeRow(s, []any{int64(1), "x"})
	require.ErrorIs(t, err, ErrSchemaMismatch)

	_, err = EncodeRow(s, []any{"wrong", "x", nil, true})
	require.ErrorIs(t, err, ErrSchemaMismatch)

	_, err = DecodeRow(s, []byte{0})
	require.ErrorIs(t, err, ErrBadBuffer)
}

func TestCompare_Ordering(t *testing.T) {
	cases := []struct {
		a, b any
		want int
	}{
		{int64(1), int64(2), -1},
		{int64(2), int64(2), 0},
		{int64(3), int64(2), 1},
		{int64(1), 1.5, -1},
		{"a", "b", -1},
		{false, true, -1},
		{nil, int64(0), -1},
		{nil, nil, 0},
	}
	for _, c := range cases {
		got, err := Compare(c.a, c.b)
		require.NoError(t, err)
		require.Equal(t, c.want, got, "Compare(%v, %v)", c.a, c.b)
	}

	_, err := Compare(int64(1), "x")
	require.ErrorIs(t, err, ErrIncomparable)
}

func TestAdd_Accumulates(t *testing.T) {
	sum, err := Add(nil, int64(3))
	require.NoError(t, err)
	require.Equal(t, int64(3), sum)

	sum, err = Add(sum, int64(4))
	require.NoError(t, err)
	require.Equal(t, int64(7), sum)

	f, err := Add(1.5, 2.25)
	require.NoError(t, err)
	require.Equal(t, 3.75, f)
}

func TestTuple_KeyFromTuple(t *testing.T) {
	s := testSchema()
	keySchema := &Schema{Cols: []Column{{Name: "id", Type: ColInt64}}}

	tup := NewTuple([]any{int64(9), "z", nil, true})
	key, err := tup.KeyFromTuple(s, keySchema, []int{0})
	require.NoError(t, err)
	require.Equal(t, []any{int64(9)}, key.Values)

	_, err = tup.KeyFromTuple(s, keySchema, []int{0, 1})
	require.ErrorIs(t, err, ErrSchemaMismatch)
}

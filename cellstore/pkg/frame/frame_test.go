package frame

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testFrame(t *testing.T) *Frame {
	t.Helper()
	f, err := FromColumns(
		[]string{"h3index", "value", "label"},
		[][]any{
			{uint64(1), uint64(2), uint64(3), uint64(4)},
			{float32(1.5), float32(2.5), float32(3.5), float32(4.5)},
			{"a", "b", "c", "d"},
		},
	)
	require.NoError(t, err)
	return f
}

func TestCellstore_Frame_Columns(t *testing.T) {
	t.Parallel()

	t.Run("add and remove", func(t *testing.T) {
		t.Parallel()
		f := testFrame(t)
		require.Equal(t, 4, f.NumRows())
		require.Equal(t, []string{"h3index", "value", "label"}, f.ColumnNames())

		require.Error(t, f.AddColumn("value", []any{1, 2, 3, 4}))
		require.Error(t, f.AddColumn("short", []any{1}))
		require.NoError(t, f.AddColumn("extra", []any{1, 2, 3, 4}))

		f.RemoveColumn("value")
		require.False(t, f.HasColumn("value"))
		require.Equal(t, []string{"h3index", "label", "extra"}, f.ColumnNames())
		require.Equal(t, []any{uint64(2), "b", 2}, f.Row(1))
	})

	t.Run("typed values", func(t *testing.T) {
		t.Parallel()
		f := testFrame(t)
		cells, err := f.Uint64Column("h3index")
		require.NoError(t, err)
		require.Equal(t, []uint64{1, 2, 3, 4}, cells)

		_, err = Values[uint64](f, "label")
		require.Error(t, err)
		_, err = Values[uint64](f, "missing")
		require.Error(t, err)
	})
}

func TestCellstore_Frame_SliceTakeFilterConcat(t *testing.T) {
	t.Parallel()

	f := testFrame(t)

	s := f.Slice(1, 3)
	require.Equal(t, 2, s.NumRows())
	require.Equal(t, []any{uint64(2), float32(2.5), "b"}, s.Row(0))
	require.Equal(t, 0, f.Slice(5, 9).NumRows())

	taken := f.Take([]int{3, 0})
	require.Equal(t, []any{uint64(4), float32(4.5), "d"}, taken.Row(0))

	filtered := f.Filter(func(i int) bool { return i%2 == 0 })
	labels, err := Values[string](filtered, "label")
	require.NoError(t, err)
	require.Equal(t, []string{"a", "c"}, labels)

	joined, err := Concat(s, taken, New())
	require.NoError(t, err)
	require.Equal(t, 4, joined.NumRows())

	other, err := FromColumns([]string{"x"}, [][]any{{1}})
	require.NoError(t, err)
	_, err = Concat(f, other)
	require.Error(t, err)
}

func TestCellstore_Frame_RowKey(t *testing.T) {
	t.Parallel()

	require.Equal(t, NewRowKey("a", uint8(1)), NewRowKey("a", uint8(1)))
	require.NotEqual(t, NewRowKey("a|b"), NewRowKey("a", "b"))
	require.NotEqual(t, NewRowKey(int32(1)), NewRowKey(int64(1)))
	require.NotEqual(t, NewRowKey(nil), NewRowKey(""))

	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.Equal(t, NewRowKey(ts), NewRowKey(ts.In(time.FixedZone("x", 3600))))

	f := testFrame(t)
	require.NotEqual(t, f.KeyOf(0, []string{"label"}), f.KeyOf(1, []string{"label"}))
	require.Equal(t, f.KeyOf(0, nil), f.KeyOf(1, nil))
	require.Equal(t, NewRowKey(f.Row(0)...), f.KeyOf(0, f.ColumnNames()))

	require.NotEqual(t, NewRowKey(float32(1)), NewRowKey(float64(1)))
	require.NotEqual(t, NewRowKey(int8(-1)), NewRowKey(uint8(255)))
	require.NotEqual(t, NewRowKey("1"), NewRowKey(int64(1)))
	require.NotEqual(t, NewRowKey([]uint8{1, 2}), NewRowKey("[1 2]"))
	require.NotEqual(t, NewRowKey(ts), NewRowKey(ts.Add(time.Nanosecond)))
}

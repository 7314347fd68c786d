package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lineTable builds the table of src on the line 0-1-...-(n-1), with unit
// lengths and width 100.
func lineTable(src, n int) *Table {
	tbl := NewTable(src, n)
	for dst := 0; dst < n; dst++ {
		if dst == src {
			continue
		}
		step := 1
		if dst < src {
			step = -1
		}
		path := []int{}
		for p := src; p != dst; p += step {
			path = append(path, p)
		}
		path = append(path, dst)
		tbl.AddEntry(NewEntry(dst, path, len(path)-1, 100))
	}
	return tbl
}

func TestTableMarshalBinary(t *testing.T) {
	tbl := lineTable(2, 5)

	raw, err := tbl.MarshalBinary()
	require.NoError(t, err)

	// src, count, then 4 entries of (4 + hops+1) int32s.
	assert.Equal(t, 4*(2+(4+3)+(4+2)+(4+2)+(4+3)), len(raw))
	assert.Equal(t, []byte{0, 0, 0, 2, 0, 0, 0, 5}, raw[:8])

	var got Table
	require.NoError(t, got.UnmarshalBinary(raw))
	assert.Equal(t, tbl.Src, got.Src)
	assert.Equal(t, tbl.Size(), got.Size())
	assert.Nil(t, got.Entry(2))
	for dst := 0; dst < 5; dst++ {
		assert.Equal(t, tbl.Entry(dst), got.Entry(dst))
	}
}

func TestTableMarshalBinaryMissingEntry(t *testing.T) {
	tbl := NewTable(0, 2)
	_, err := tbl.MarshalBinary()
	require.Error(t, err)
}

func TestTableUnmarshalBinaryMalformed(t *testing.T) {
	raw, err := lineTable(0, 3).MarshalBinary()
	require.NoError(t, err)

	cases := map[string][]byte{
		"empty":     {},
		"truncated": raw[:len(raw)-2],
		"src range": {0, 0, 0, 3, 0, 0, 0, 3},
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			var tbl Table
			assert.Equal(t, ErrMalformedTable, tbl.UnmarshalBinary(data))
		})
	}
}

func TestTableNextHop(t *testing.T) {
	tbl := lineTable(0, 4)

	assert.Equal(t, 1, tbl.NextHop(0, 3))
	assert.Equal(t, 2, tbl.NextHop(1, 3))
	assert.Equal(t, 3, tbl.NextHop(2, 3))
	assert.Equal(t, -1, tbl.NextHop(3, 3))
	assert.Equal(t, -1, tbl.NextHop(0, 0))
	assert.Equal(t, -1, tbl.NextHop(0, 7))
}

func TestTableString(t *testing.T) {
	tbl := lineTable(0, 3)
	assert.Equal(t, "RT(0) BEGIN\nentry(1: 1 100 [0, 1])\nentry(2: 2 100 [0, 1, 2])\nRT(0) END\n", tbl.String())
	assert.Contains(t, tbl.Format([]string{"a", "b", "c"}), "entry(2: 2 100 [a, b, c])")
}

package comm

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/skycoin/dlfree/pkg/ioman"
)

func TestChunkSizes(t *testing.T) {
	cases := []struct {
		name string
		n    int
		size int
		want []int
	}{
		{"shorter than a chunk", 10, 64, []int{10}},
		{"exact multiple", 128, 64, []int{64, 64}},
		{"remainder", 130, 64, []int{64, 64, 2}},
		{"empty", 0, 64, []int{0}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, chunkSizes(tc.n, tc.size))
		})
	}
}

func dataInfo(src, seq, l, tot int) ioman.MsgInfo {
	return ioman.MsgInfo{Header: ioman.Header{
		Kind:   ioman.KindData,
		Src:    src,
		Len:    l,
		TotLen: tot,
		Seq:    seq,
	}}
}

func TestDataMsgReassembly(t *testing.T) {
	d := newDataMsg(dataInfo(3, 0, 4, 10))
	assert.Len(t, d.buf, 10)

	for seq, l := range []int{4, 4, 2} {
		info := dataInfo(3, seq, l, 10)
		region := d.tail(info)
		assert.Len(t, region, l)
		for i := range region {
			region[i] = byte(seq)
		}
		assert.Equal(t, seq == 2, d.push(info))
	}
	assert.Equal(t, []byte{0, 0, 0, 0, 1, 1, 1, 1, 2, 2}, d.buf)
}

func TestDataMsgViolations(t *testing.T) {
	d := newDataMsg(dataInfo(1, 0, 4, 8))
	assert.Panics(t, func() { d.tail(dataInfo(1, 0, 9, 8)) }, "overflow")
	assert.Panics(t, func() { d.push(dataInfo(2, 0, 4, 8)) }, "foreign source")
	assert.Panics(t, func() { d.push(dataInfo(1, 2, 4, 8)) }, "skipped sequence")

	assert.False(t, d.push(dataInfo(1, 0, 4, 8)))
	assert.True(t, d.push(dataInfo(1, 1, 4, 8)))

	assert.Panics(t, func() { newDataMsg(dataInfo(1, 0, 0, -1)) })

	empty := newDataMsg(dataInfo(1, 0, 0, 0))
	assert.Len(t, empty.tail(dataInfo(1, 0, 0, 0)), 0)
	assert.True(t, empty.push(dataInfo(1, 0, 0, 0)))
}

package ioman

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderPack(t *testing.T) {
	h := Header{
		Kind:   KindData,
		Dst:    7,
		Src:    1023,
		Len:    1 << 20,
		SID:    (42 << 20) + 1023,
		TotLen: 8 << 20,
		Seq:    3,
	}

	b := bytes.Repeat([]byte{0xff}, HeaderLen+4)
	h.Pack(b)
	assert.Equal(t, []byte{0, 0, 0, 1}, b[:4])
	assert.Equal(t, []byte{0, 0, 0, 7}, b[4:8])
	assert.Equal(t, make([]byte, HeaderLen-36), b[36:HeaderLen], "padding must be zeroed")
	assert.Equal(t, []byte{0xff, 0xff, 0xff, 0xff}, b[HeaderLen:], "bytes past the header are untouched")

	assert.Equal(t, h, UnpackHeader(b))
}

func TestHeaderNegativeDst(t *testing.T) {
	h := Header{Kind: KindPing0, Dst: -1, Src: 3}
	b := make([]byte, HeaderLen)
	h.Pack(b)
	assert.Equal(t, []byte{0xff, 0xff, 0xff, 0xff}, b[4:8])
	assert.Equal(t, -1, UnpackHeader(b).Dst)
}

func TestPackHelpers(t *testing.T) {
	b := make([]byte, 12)
	rest := PackInt32(b, -2)
	require.Len(t, rest, 8)
	PackUint64(rest, 1<<40)

	v, rest := UnpackInt32(b)
	assert.Equal(t, int32(-2), v)
	u, rest := UnpackUint64(rest)
	assert.Equal(t, uint64(1<<40), u)
	assert.Len(t, rest, 0)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "DATA", KindData.String())
	assert.Equal(t, "PONG1", KindPong1.String())
	assert.Equal(t, "RT", KindRT.String())
	assert.Equal(t, "Kind(9)", Kind(9).String())
}

func TestPackMessage(t *testing.T) {
	body := []byte("routing table")
	b := PackMessage(Header{Kind: KindRT, Dst: 2, Src: 1, Len: 999}, body)

	assert.Equal(t, HeaderLen+len(body), b.Len())
	assert.Equal(t, b.Len(), b.SendLen())
	assert.Equal(t, 0, b.RecvLen())
	assert.False(t, b.External())

	h := b.Header()
	assert.Equal(t, KindRT, h.Kind)
	assert.Equal(t, len(body), h.Len)
	assert.Equal(t, body, b.Bytes()[HeaderLen:])
}

func TestBufferCursors(t *testing.T) {
	region := make([]byte, 10)
	b := WrapBuffer(region[2:6])
	assert.True(t, b.External())
	assert.Equal(t, 4, b.RecvLen())

	copy(b.Free(), "abc")
	b.Produce(3)
	assert.Equal(t, []byte("abc"), b.Pending())
	assert.Equal(t, []byte("abc"), region[2:5])

	b.Consume(2)
	assert.Equal(t, 1, b.SendLen())
	assert.Equal(t, 1, b.RecvLen())

	assert.Panics(t, func() { b.Produce(2) })
	assert.Panics(t, func() { b.Consume(2) })
}

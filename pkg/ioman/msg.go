package ioman

import (
	"encoding/binary"
	"fmt"
)

// HeaderLen is the fixed size of every message header on the wire.
const HeaderLen = 100

// Kind identifies the type of a message.
type Kind int32

// Message kinds. KindErr is never sent; a header carrying it is corrupt.
const (
	KindErr Kind = iota
	KindData
	KindPing0
	KindPing1
	KindPong0
	KindPong1
	KindRT
)

func (k Kind) String() string {
	switch k {
	case KindErr:
		return "ERR"
	case KindData:
		return "DATA"
	case KindPing0:
		return "PING0"
	case KindPing1:
		return "PING1"
	case KindPong0:
		return "PONG0"
	case KindPong1:
		return "PONG1"
	case KindRT:
		return "RT"
	default:
		return fmt.Sprintf("Kind(%d)", int32(k))
	}
}

// PackInt32 writes v into b in network byte order and returns the rest of b.
func PackInt32(b []byte, v int32) []byte {
	binary.BigEndian.PutUint32(b, uint32(v))
	return b[4:]
}

// UnpackInt32 reads a network byte order int32 from b and returns the rest of b.
func UnpackInt32(b []byte) (int32, []byte) {
	return int32(binary.BigEndian.Uint32(b)), b[4:]
}

// PackUint64 writes v into b in network byte order and returns the rest of b.
func PackUint64(b []byte, v uint64) []byte {
	binary.BigEndian.PutUint64(b, v)
	return b[8:]
}

// UnpackUint64 reads a network byte order uint64 from b and returns the rest of b.
func UnpackUint64(b []byte) (uint64, []byte) {
	return binary.BigEndian.Uint64(b), b[8:]
}

// Header is the decoded form of a wire header. SID, TotLen and Seq are only
// meaningful for data chunks; Len is the length of the body that follows.
type Header struct {
	Kind   Kind
	Dst    int
	Src    int
	Len    int
	SID    uint64
	TotLen int
	Seq    int
}

// Pack writes h into the first HeaderLen bytes of b, zeroing the padding.
func (h Header) Pack(b []byte) {
	b = b[:HeaderLen]
	for i := range b {
		b[i] = 0
	}
	p := PackInt32(b, int32(h.Kind))
	p = PackInt32(p, int32(h.Dst))
	p = PackInt32(p, int32(h.Src))
	p = PackInt32(p, int32(h.Len))
	p = PackUint64(p, h.SID)
	p = PackInt32(p, int32(h.TotLen))
	PackInt32(p, int32(h.Seq))
}

// UnpackHeader decodes the first HeaderLen bytes of b.
func UnpackHeader(b []byte) Header {
	var h Header
	var v int32
	p := b[:HeaderLen]
	v, p = UnpackInt32(p)
	h.Kind = Kind(v)
	v, p = UnpackInt32(p)
	h.Dst = int(v)
	v, p = UnpackInt32(p)
	h.Src = int(v)
	v, p = UnpackInt32(p)
	h.Len = int(v)
	h.SID, p = UnpackUint64(p)
	v, p = UnpackInt32(p)
	h.TotLen = int(v)
	v, _ = UnpackInt32(p)
	h.Seq = int(v)
	return h
}

func (h Header) String() string {
	return fmt.Sprintf("msg(%s %d -> %d len: %d sid: %d tot: %d seq: %d)",
		h.Kind, h.Src, h.Dst, h.Len, h.SID, h.TotLen, h.Seq)
}

// MsgInfo is the header of the message being received plus the number of
// body bytes still to arrive.
type MsgInfo struct {
	Header
	Remain int
}

// Buffer is a byte region with a consumed (head) and a produced (tail)
// cursor. A Buffer either owns its bytes or aliases a region of a larger
// slice, such as a reassembly buffer.
type Buffer struct {
	data []byte
	head int
	tail int
	ext  bool
}

// NewBuffer allocates a Buffer of n bytes.
func NewBuffer(n int) *Buffer {
	return &Buffer{data: make([]byte, n)}
}

// WrapBuffer returns a Buffer writing into b without copying.
func WrapBuffer(b []byte) *Buffer {
	return &Buffer{data: b, ext: true}
}

// PackMessage builds a Buffer holding h followed by body. h.Len is set to
// the body length.
func PackMessage(h Header, body []byte) *Buffer {
	h.Len = len(body)
	b := NewBuffer(HeaderLen + len(body))
	h.Pack(b.data)
	copy(b.data[HeaderLen:], body)
	b.tail = len(b.data)
	return b
}

// Len returns the capacity of the buffer.
func (b *Buffer) Len() int { return len(b.data) }

// SendLen returns the number of produced bytes not yet consumed.
func (b *Buffer) SendLen() int { return b.tail - b.head }

// RecvLen returns the number of bytes that can still be produced.
func (b *Buffer) RecvLen() int { return len(b.data) - b.tail }

// External reports whether the buffer aliases memory it does not own.
func (b *Buffer) External() bool { return b.ext }

// Bytes returns the whole region.
func (b *Buffer) Bytes() []byte { return b.data }

// Pending returns the produced bytes not yet consumed.
func (b *Buffer) Pending() []byte { return b.data[b.head:b.tail] }

// Free returns the region that can still be produced into.
func (b *Buffer) Free() []byte { return b.data[b.tail:] }

// Produce advances the tail cursor by n.
func (b *Buffer) Produce(n int) {
	if b.tail+n > len(b.data) {
		panic("ioman: buffer overrun")
	}
	b.tail += n
}

// Consume advances the head cursor by n.
func (b *Buffer) Consume(n int) {
	if b.head+n > b.tail {
		panic("ioman: buffer underrun")
	}
	b.head += n
}

// Header decodes the header at the start of a packed message buffer.
func (b *Buffer) Header() Header {
	return UnpackHeader(b.data)
}

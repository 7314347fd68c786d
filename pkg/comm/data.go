package comm

import (
	"fmt"
	"time"

	"github.com/skycoin/dlfree/pkg/ioman"
)

// dataMsg reassembles one message from its chunks. Chunks of a session
// follow a single route, so they arrive in order and are received straight
// into buf.
type dataMsg struct {
	src   int
	buf   []byte
	recvd int
	seq   int
	start time.Time
}

func newDataMsg(info ioman.MsgInfo) *dataMsg {
	if info.TotLen < 0 {
		panic(fmt.Sprintf("comm: negative message length in %s", info.Header))
	}
	return &dataMsg{
		src:   info.Src,
		buf:   make([]byte, info.TotLen),
		start: time.Now(),
	}
}

// tail returns the region the next chunk of info.Len bytes lands in.
func (d *dataMsg) tail(info ioman.MsgInfo) []byte {
	end := d.recvd + info.Len
	if end > len(d.buf) {
		panic(fmt.Sprintf("comm: chunk %s overflows message of %d bytes", info.Header, len(d.buf)))
	}
	return d.buf[d.recvd:end]
}

// push accounts for a received chunk and reports whether the message is
// complete.
func (d *dataMsg) push(info ioman.MsgInfo) bool {
	if info.Src != d.src {
		panic(fmt.Sprintf("comm: chunk %s joins a message from %d", info.Header, d.src))
	}
	if dseq := info.Seq - d.seq; dseq != 0 && dseq != 1 {
		panic(fmt.Sprintf("comm: chunk %s out of order after seq %d", info.Header, d.seq))
	}
	d.seq = info.Seq
	d.recvd += info.Len
	return d.recvd == len(d.buf)
}

// chunkSizes splits n bytes into chunks of at most size bytes. An empty
// message is a single empty chunk.
func chunkSizes(n, size int) []int {
	if n == 0 {
		return []int{0}
	}
	sizes := make([]int, 0, (n+size-1)/size)
	for n > 0 {
		c := size
		if n < c {
			c = n
		}
		sizes = append(sizes, c)
		n -= c
	}
	return sizes
}

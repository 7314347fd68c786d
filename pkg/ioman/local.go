package ioman

import (
	"github.com/pkg/errors"
)

// ErrClosed is returned by calls into a finalized Manager.
var ErrClosed = errors.New("ioman: manager is closed")

// localQueue hands packed chunks from caller goroutines to the loop. Push
// blocks while QueueLimit chunks are waiting.
type localQueue struct {
	chunks chan *Buffer
	done   <-chan struct{}
}

func newLocalQueue(done <-chan struct{}) *localQueue {
	return &localQueue{
		chunks: make(chan *Buffer, QueueLimit),
		done:   done,
	}
}

func (q *localQueue) Push(b *Buffer) error {
	select {
	case <-q.done:
		return ErrClosed
	default:
	}
	select {
	case q.chunks <- b:
		return nil
	case <-q.done:
		return ErrClosed
	}
}

// pop is the receive side used by the loop; nil while ch may not read.
func (q *localQueue) pop(ch *Channel) <-chan *Buffer {
	if !ch.Readable() {
		return nil
	}
	return q.chunks
}

// acceptLocal makes b the current chunk of the local channel.
func acceptLocal(ch *Channel, b *Buffer) {
	ch.setup(b)
	ch.Info = MsgInfo{Header: b.Header()}
	if ch.Info.Src == ch.Info.Dst {
		panic("ioman: local chunk addressed to its source")
	}
}

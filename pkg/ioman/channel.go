package ioman

import (
	"fmt"
	"sync/atomic"
)

// QueueLimit bounds the outbound chunk queue of every channel.
const QueueLimit = 100

// PeerUnknown is the peer id of a channel before its handshake.
const PeerUnknown = -1

// State is the I/O state of a channel.
type State int

// Channel states.
const (
	StateInit State = iota
	StateSetup
	StateActive
	StateBlocking
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateSetup:
		return "SETUP"
	case StateActive:
		return "ACTIVE"
	case StateBlocking:
		return "BLOCKING"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ConnectState tracks the handshake of a channel, independently of its
// I/O state.
type ConnectState int

// Connect states.
const (
	ConnectInProgress ConnectState = iota
	ConnectEstablished
)

// Channel moves message chunks over one socket, or from local callers for
// the loopback channel. All queue and state fields belong to the goroutine
// running the Manager loop; the reader goroutine only touches the header
// buffer, Info and the current receive buffer while it holds them.
type Channel struct {
	sock *Socket

	state   State
	connect ConnectState
	peerID  int

	hdr    [HeaderLen]byte
	hdrOff int
	Info   MsgInfo
	curr   *Buffer

	queue   []*Buffer
	waiters []*Channel

	rx int64
	tx int64

	// loop plumbing
	local   bool
	dead    bool
	writing bool
	grant   chan struct{}
	resume  chan struct{}
	out     chan *Buffer
	done    chan struct{}
}

func newChannel(sock *Socket, state State) *Channel {
	return &Channel{
		sock:    sock,
		state:   state,
		connect: ConnectEstablished,
		peerID:  PeerUnknown,
		grant:   make(chan struct{}, 1),
		resume:  make(chan struct{}, 1),
		out:     make(chan *Buffer, 1),
		done:    make(chan struct{}),
	}
}

// NewActiveChannel returns a channel for an accepted connection.
func NewActiveChannel(sock *Socket) *Channel {
	return newChannel(sock, StateActive)
}

// NewSetupChannel returns a channel for a connection still being made.
func NewSetupChannel(sock *Socket) *Channel {
	ch := newChannel(sock, StateSetup)
	ch.connect = ConnectInProgress
	return ch
}

// NewLocalChannel returns the loopback channel of node self.
func NewLocalChannel(self int) *Channel {
	ch := newChannel(nil, StateActive)
	ch.peerID = self
	ch.local = true
	return ch
}

func (c *Channel) String() string {
	addr := "local"
	if c.sock != nil && c.sock.RemoteAddr() != nil {
		addr = c.sock.RemoteAddr().String()
	}
	return fmt.Sprintf("chan(%s peer: %d state: %s)", addr, c.peerID, c.state)
}

// State returns the I/O state.
func (c *Channel) State() State { return c.state }

// PeerID returns the registered peer id or PeerUnknown.
func (c *Channel) PeerID() int { return c.peerID }

// Socket returns the underlying socket, nil for the loopback channel.
func (c *Channel) Socket() *Socket { return c.sock }

// QueueLen returns the number of queued outbound chunks.
func (c *Channel) QueueLen() int { return len(c.queue) }

// Rx returns the number of body bytes received.
func (c *Channel) Rx() int64 { return atomic.LoadInt64(&c.rx) }

// Tx returns the number of bytes sent.
func (c *Channel) Tx() int64 { return atomic.LoadInt64(&c.tx) }

// Readable reports whether the channel may take in its next message.
func (c *Channel) Readable() bool {
	return c.state == StateActive
}

// Writable reports whether the channel has output pending or is still
// connecting.
func (c *Channel) Writable() bool {
	return len(c.queue) > 0 || c.state == StateSetup
}

// MakeActive finishes a connect. It fails when the connect attempt did.
func (c *Channel) MakeActive() error {
	if c.state != StateSetup {
		panic(fmt.Sprintf("ioman: activating %s", c))
	}
	if err := c.sock.ConnectStatus(); err != nil {
		return err
	}
	c.state = StateActive
	return nil
}

// MakeEstablished marks the handshake as complete. Callers synchronise
// access to the connect state.
func (c *Channel) MakeEstablished() {
	if c.connect != ConnectInProgress {
		panic(fmt.Sprintf("ioman: %s established twice", c))
	}
	c.connect = ConnectEstablished
}

// Established reports whether the handshake completed.
func (c *Channel) Established() bool {
	return c.connect == ConnectEstablished
}

// ReadHeader reads the rest of the current header. It returns StatusAgain
// while the header is incomplete and StatusOK once Info holds it.
func (c *Channel) ReadHeader() Status {
	n, st := c.sock.TryRecv(c.hdr[c.hdrOff:])
	switch st {
	case StatusEOF, StatusErr:
		return StatusErr
	case StatusAgain:
		c.hdrOff += n
		return StatusAgain
	}
	c.hdrOff += n
	if c.hdrOff < HeaderLen {
		return StatusAgain
	}
	c.hdrOff = 0
	c.Info = MsgInfo{Header: UnpackHeader(c.hdr[:])}
	c.Info.Remain = c.Info.Len
	if c.Info.Kind == KindErr {
		panic(fmt.Sprintf("ioman: invalid header on %s: %s", c, c.Info.Header))
	}
	return StatusOK
}

// SetupChunk allocates the receive buffer of a chunk to forward: the raw
// header followed by room for the body.
func (c *Channel) SetupChunk() {
	c.setup(NewBuffer(HeaderLen + c.Info.Len))
	copy(c.curr.Free(), c.hdr[:])
	c.curr.Produce(HeaderLen)
}

// SetupChunkWithBuffer receives the body straight into b, which must be
// exactly the chunk length.
func (c *Channel) SetupChunkWithBuffer(b []byte) {
	if len(b) != c.Info.Len {
		panic(fmt.Sprintf("ioman: chunk buffer of %d bytes for %s", len(b), c.Info.Header))
	}
	c.setup(WrapBuffer(b))
}

// SetupMsg allocates a buffer for a whole control message.
func (c *Channel) SetupMsg() {
	c.setup(NewBuffer(c.Info.Len))
}

func (c *Channel) setup(b *Buffer) {
	if c.curr != nil {
		panic(fmt.Sprintf("ioman: %s already holds a buffer", c))
	}
	c.curr = b
}

func (c *Channel) readToBuffer(b *Buffer) Status {
	for b.RecvLen() > 0 {
		n, st := c.sock.TryRecv(b.Free())
		b.Produce(n)
		atomic.AddInt64(&c.rx, int64(n))
		c.Info.Remain -= n
		if c.Info.Remain < 0 {
			panic(fmt.Sprintf("ioman: %s read past its message", c))
		}
		switch st {
		case StatusAgain:
			return StatusOK
		case StatusEOF, StatusErr:
			return StatusErr
		}
	}
	return StatusDone
}

// ReadMsg reads the body of a control message. On StatusDone the returned
// buffer holds the whole body and the channel no longer owns it.
func (c *Channel) ReadMsg() (*Buffer, Status) {
	if st := c.readToBuffer(c.curr); st != StatusDone {
		return nil, st
	}
	b := c.curr
	c.curr = nil
	return b, StatusDone
}

// ReadChunk reads the body of a data chunk. On StatusDone the chunk stays
// owned by the channel until it is delivered or pipelined.
func (c *Channel) ReadChunk() (*Buffer, Status) {
	if c.curr == nil {
		panic(fmt.Sprintf("ioman: %s reading without a buffer", c))
	}
	if c.curr.RecvLen() > c.Info.Remain {
		panic(fmt.Sprintf("ioman: %s chunk exceeds message", c))
	}
	if st := c.readToBuffer(c.curr); st != StatusDone {
		return nil, st
	}
	return c.curr, StatusDone
}

// Release drops the channel's hold on its current buffer.
func (c *Channel) Release() *Buffer {
	b := c.curr
	c.curr = nil
	return b
}

// PipelineChunk hands the current chunk to next. When next's queue is full
// the channel turns Blocking, joins next's wait-list and keeps the chunk.
func (c *Channel) PipelineChunk(next *Channel) bool {
	if c.curr == nil {
		panic(fmt.Sprintf("ioman: %s pipelining without a chunk", c))
	}
	if len(next.queue) < QueueLimit {
		c.state = StateActive
		next.queue = append(next.queue, c.curr)
		c.curr = nil
		return true
	}
	c.state = StateBlocking
	next.waiters = append(next.waiters, c)
	return false
}

// Enqueue appends a packed message to the outbound queue regardless of the
// queue limit. Control messages use it.
func (c *Channel) Enqueue(b *Buffer) {
	c.queue = append(c.queue, b)
}

// SendMsg packs and enqueues a control message.
func (c *Channel) SendMsg(h Header, body []byte) {
	c.Enqueue(PackMessage(h, body))
}

// Head returns the next chunk to write, nil when the queue is empty.
func (c *Channel) Head() *Buffer {
	if len(c.queue) == 0 {
		return nil
	}
	return c.queue[0]
}

// Write sends b entirely. It is used by the writer goroutine on the head
// of the queue.
func (c *Channel) Write(b *Buffer) Status {
	for b.SendLen() > 0 {
		n, st := c.sock.TrySend(b.Pending())
		b.Consume(n)
		atomic.AddInt64(&c.tx, int64(n))
		switch st {
		case StatusAgain:
			continue
		case StatusErr, StatusEOF:
			return StatusErr
		}
	}
	return StatusOK
}

// CompleteWrite drops the flushed head of the queue, then moves the chunks
// of waiting channels into the freed room. It returns the channels that got
// unblocked.
func (c *Channel) CompleteWrite() []*Channel {
	if len(c.queue) == 0 {
		panic(fmt.Sprintf("ioman: %s completed a write with an empty queue", c))
	}
	c.queue[0] = nil
	c.queue = c.queue[1:]

	var unblocked []*Channel
	for len(c.waiters) > 0 && len(c.queue) < QueueLimit {
		w := c.waiters[0]
		c.waiters[0] = nil
		c.waiters = c.waiters[1:]
		if !w.PipelineChunk(c) {
			panic(fmt.Sprintf("ioman: unblocking %s into %s failed", w, c))
		}
		unblocked = append(unblocked, w)
	}
	return unblocked
}

// removeWaiter drops w from the wait-list.
func (c *Channel) removeWaiter(w *Channel) {
	for i, x := range c.waiters {
		if x == w {
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			return
		}
	}
}

// Destroy drops all queued chunks and closes the socket.
func (c *Channel) Destroy() error {
	c.queue = nil
	c.waiters = nil
	c.curr = nil
	if c.sock == nil {
		return nil
	}
	return c.sock.Close()
}

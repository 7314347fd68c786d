// Package ioman implements the I/O manager of a node: one loop goroutine
// owning every channel, chunk store-and-forward between channels with
// backpressure, and the loopback path used by local senders.
package ioman

import (
	"context"
	"fmt"
	"net"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/skycoin/skycoin/src/util/logging"

	"github.com/skycoin/dlfree/internal/metrics"
)

var log = logging.MustGetLogger("ioman")

// DefaultMaxPeer is the default size of the peer registry.
const DefaultMaxPeer = 1024

// Errors returned by Manager.
var (
	ErrInvalidPeer = errors.New("ioman: invalid peer id")
	ErrSendToSelf  = errors.New("ioman: data addressed to self")
)

// Handler receives the upcalls of a Manager. Every method runs on the loop
// goroutine and may call the loop-only Manager methods (RegisterChannel,
// SendMsg, BroadcastMsg).
type Handler interface {
	// LookupRoute returns the pid following this node on the route from
	// src to dst, or -1.
	LookupRoute(src, dst int) int

	// NotifyConnect is called once an outgoing connect completes.
	NotifyConnect(ch *Channel)

	// NotifyFailure is called before a failed channel is destroyed.
	NotifyFailure(ch *Channel)

	// HandleMsg processes a control message addressed to this node.
	HandleMsg(ch *Channel, info MsgInfo, body []byte)

	// SetupChunk returns the region of the reassembly buffer that the data
	// chunk described by info is received into. The region must be
	// exactly info.Len bytes long.
	SetupChunk(ch *Channel, info MsgInfo) []byte

	// HandleChunk is called once the chunk is fully received.
	HandleChunk(ch *Channel, info MsgInfo, chunk *Buffer)
}

// Config configures a Manager.
type Config struct {
	ID      int
	Port    int // 0 picks a free port
	MaxPeer int
	Metrics metrics.IORecorder
}

// PeerTraffic is the traffic exchanged with one registered peer.
type PeerTraffic struct {
	Peer int   `json:"peer"`
	Rx   int64 `json:"rx"`
	Tx   int64 `json:"tx"`
}

// Stats is a snapshot of a Manager.
type Stats struct {
	NumSockets  int           `json:"num_sockets"`
	Traffic     []PeerTraffic `json:"traffic"`
	SendBuffers int           `json:"send_buffers"`
	Blocked     int           `json:"blocked"`
}

// Totals sums the traffic over all peers.
func (s Stats) Totals() (rx, tx int64) {
	for _, t := range s.Traffic {
		rx += t.Rx
		tx += t.Tx
	}
	return rx, tx
}

// loop events
type (
	evAccept    struct{ conn *net.TCPConn }
	evConnected struct {
		ch  *Channel
		err error
	}
	evHeader struct{ ch *Channel }
	evBody   struct {
		ch  *Channel
		msg *Buffer
	}
	evWritten struct{ ch *Channel }
	evFailed  struct {
		ch  *Channel
		err error
	}
)

// requests
type (
	reqConnect struct{ ch *Channel }
	reqBcast   struct {
		kind Kind
		body []byte
	}
	reqStats struct{ reply chan Stats }
)

// Manager runs the I/O loop of one node.
type Manager struct {
	id      int
	handler Handler
	metrics metrics.IORecorder

	listener *net.TCPListener
	local    *Channel
	localq   *localQueue

	channels []*Channel // socket channels
	peers    []*Channel // registered channels by pid

	events   chan interface{}
	requests chan interface{}

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
	serveOnce sync.Once
	wg        sync.WaitGroup
}

// New creates a Manager listening on cfg.Port. The loop starts with Serve.
func New(cfg Config, h Handler) (*Manager, error) {
	if cfg.MaxPeer <= 0 {
		cfg.MaxPeer = DefaultMaxPeer
	}
	if cfg.ID < 0 || cfg.ID >= cfg.MaxPeer {
		return nil, errors.Wrapf(ErrInvalidPeer, "node id %d", cfg.ID)
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewDummyIO()
	}
	l, err := Listen(cfg.Port)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		id:       cfg.ID,
		handler:  h,
		metrics:  cfg.Metrics,
		listener: l,
		local:    NewLocalChannel(cfg.ID),
		peers:    make([]*Channel, cfg.MaxPeer),
		events:   make(chan interface{}),
		requests: make(chan interface{}),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	m.localq = newLocalQueue(m.done)
	return m, nil
}

// ID returns the node id of the manager.
func (m *Manager) ID() int { return m.id }

// ListenPort returns the port accepting peer connections.
func (m *Manager) ListenPort() int {
	return m.listener.Addr().(*net.TCPAddr).Port
}

// Serve runs the loop until ctx is done or Close is called. A Manager is
// served at most once.
func (m *Manager) Serve(ctx context.Context) error {
	err := ErrClosed
	m.serveOnce.Do(func() {
		err = m.serve(ctx)
	})
	return err
}

func (m *Manager) serve(ctx context.Context) error {
	defer m.finalize()

	m.wg.Add(1)
	go m.acceptLoop()

	log.Debugf("node %d: serving on port %d", m.id, m.ListenPort())
	for {
		m.flush()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.done:
			return nil
		case ev := <-m.events:
			m.handleEvent(ev)
		case req := <-m.requests:
			m.handleRequest(req)
		case b := <-m.localq.pop(m.local):
			acceptLocal(m.local, b)
			m.forward(m.local)
		}
	}
}

// Close finalizes the loop and releases every channel and socket. It waits
// for a running Serve to return and must not be called from a Handler.
func (m *Manager) Close() error {
	var err error
	m.closeOnce.Do(func() {
		close(m.done)
		m.cancel()
		err = m.listener.Close()
	})
	m.serveOnce.Do(func() {})
	return err
}

func (m *Manager) finalize() {
	m.closeOnce.Do(func() {
		close(m.done)
		m.cancel()
		m.listener.Close() // nolint: errcheck
	})
	for _, ch := range m.channels {
		m.destroy(ch)
	}
	m.channels = nil
	for i := range m.peers {
		m.peers[i] = nil
	}
	m.wg.Wait()
	log.Debugf("node %d: finalized", m.id)
}

// post hands an event to the loop. It fails once the loop is gone.
func (m *Manager) post(ev interface{}) bool {
	select {
	case m.events <- ev:
		return true
	case <-m.done:
		return false
	}
}

func (m *Manager) request(req interface{}) error {
	select {
	case m.requests <- req:
		return nil
	case <-m.done:
		return ErrClosed
	}
}

// NewConnectChannel resolves addr:port and returns a channel ready to be
// handed to Connect.
func NewConnectChannel(addr string, port int) (*Channel, error) {
	sock, err := NewConnectSocket(addr, port)
	if err != nil {
		return nil, err
	}
	return NewSetupChannel(sock), nil
}

// Connect registers ch with the loop and starts connecting it. The outcome
// is reported through Handler.NotifyConnect or Handler.NotifyFailure.
func (m *Manager) Connect(ch *Channel) error {
	if ch.state != StateSetup {
		panic(fmt.Sprintf("ioman: connecting %s", ch))
	}
	return m.request(reqConnect{ch: ch})
}

// Broadcast sends a control message to every registered peer. body is
// copied.
func (m *Manager) Broadcast(kind Kind, body []byte) error {
	b := make([]byte, len(body))
	copy(b, body)
	return m.request(reqBcast{kind: kind, body: b})
}

// SendChunk queues one data chunk through the local channel. It blocks
// while QueueLimit local chunks are waiting.
func (m *Manager) SendChunk(dst int, sid uint64, totLen, seq int, body []byte) error {
	if dst < 0 || dst >= len(m.peers) {
		return errors.Wrapf(ErrInvalidPeer, "destination %d", dst)
	}
	if dst == m.id {
		return ErrSendToSelf
	}
	h := Header{
		Kind:   KindData,
		Dst:    dst,
		Src:    m.id,
		SID:    sid,
		TotLen: totLen,
		Seq:    seq,
	}
	return m.localq.Push(PackMessage(h, body))
}

// Stats returns a snapshot taken by the loop.
func (m *Manager) Stats() (Stats, error) {
	reply := make(chan Stats, 1)
	if err := m.request(reqStats{reply: reply}); err != nil {
		return Stats{}, err
	}
	return <-reply, nil
}

// RegisterChannel binds ch to peer pid. Loop only.
func (m *Manager) RegisterChannel(pid int, ch *Channel) {
	if pid < 0 || pid >= len(m.peers) {
		panic(fmt.Sprintf("ioman: registering invalid peer %d", pid))
	}
	if m.peers[pid] != nil {
		panic(fmt.Sprintf("ioman: peer %d registered twice", pid))
	}
	if ch.peerID != PeerUnknown {
		panic(fmt.Sprintf("ioman: %s already registered", ch))
	}
	m.peers[pid] = ch
	ch.peerID = pid
	log.Debugf("node %d: registered peer %d", m.id, pid)
}

// SendMsg queues a control message on ch. Loop only.
func (m *Manager) SendMsg(ch *Channel, kind Kind, dst int, body []byte) {
	ch.SendMsg(Header{Kind: kind, Dst: dst, Src: m.id}, body)
}

// BroadcastMsg queues a control message on every registered peer. Loop
// only.
func (m *Manager) BroadcastMsg(kind Kind, body []byte) {
	for pid, ch := range m.peers {
		if ch != nil {
			m.SendMsg(ch, kind, pid, body)
		}
	}
}

// Peer returns the channel registered for pid. Loop only.
func (m *Manager) Peer(pid int) *Channel {
	if pid < 0 || pid >= len(m.peers) {
		return nil
	}
	return m.peers[pid]
}

func (m *Manager) handleRequest(req interface{}) {
	switch r := req.(type) {
	case reqConnect:
		m.channels = append(m.channels, r.ch)
		m.wg.Add(1)
		go func(ch *Channel) {
			defer m.wg.Done()
			m.post(evConnected{ch: ch, err: ch.sock.Connect(m.ctx)})
		}(r.ch)
	case reqBcast:
		m.BroadcastMsg(r.kind, r.body)
	case reqStats:
		r.reply <- m.stats()
	default:
		panic(fmt.Sprintf("ioman: unknown request %T", req))
	}
}

func (m *Manager) handleEvent(ev interface{}) {
	switch e := ev.(type) {
	case evAccept:
		m.accepted(e.conn)
	case evConnected:
		m.connected(e.ch, e.err)
	case evHeader:
		if !e.ch.dead {
			m.setupRead(e.ch)
		}
	case evBody:
		if !e.ch.dead {
			m.completeRead(e.ch, e.msg)
		}
	case evWritten:
		if !e.ch.dead {
			m.completeWrite(e.ch)
		}
	case evFailed:
		m.fail(e.ch, e.err)
	default:
		panic(fmt.Sprintf("ioman: unknown event %T", ev))
	}
}

func (m *Manager) accepted(conn *net.TCPConn) {
	sock, err := NewSocket(conn)
	if err != nil {
		log.WithError(err).Warnf("node %d: dropping accepted connection", m.id)
		conn.Close() // nolint: errcheck
		return
	}
	ch := NewActiveChannel(sock)
	m.channels = append(m.channels, ch)
	m.start(ch)
	log.Debugf("node %d: accepted %s", m.id, ch)
}

func (m *Manager) connected(ch *Channel, err error) {
	if ch.dead {
		return
	}
	if err == nil {
		err = ch.MakeActive()
	}
	if err != nil {
		m.fail(ch, errors.Wrap(err, "connect failed"))
		return
	}
	m.start(ch)
	m.handler.NotifyConnect(ch)
}

func (m *Manager) start(ch *Channel) {
	m.wg.Add(2)
	go m.readLoop(ch)
	go m.writeLoop(ch)
}

func (m *Manager) setupRead(ch *Channel) {
	info := ch.Info
	switch {
	case info.Kind == KindData && info.Dst == m.id:
		ch.SetupChunkWithBuffer(m.handler.SetupChunk(ch, info))
	case info.Kind == KindData:
		ch.SetupChunk()
	default:
		if info.Dst != m.id && info.Kind != KindPing0 {
			panic(fmt.Sprintf("ioman: node %d got foreign control message %s", m.id, info.Header))
		}
		ch.SetupMsg()
	}
	ch.grant <- struct{}{}
}

func (m *Manager) completeRead(ch *Channel, msg *Buffer) {
	info := ch.Info
	switch {
	case info.Kind != KindData:
		m.handler.HandleMsg(ch, info, msg.Bytes())
		m.resume(ch)
	case info.Dst == m.id:
		chunk := ch.Release()
		m.metrics.ChunkDelivered(info.Len)
		m.handler.HandleChunk(ch, info, chunk)
		m.resume(ch)
	default:
		m.forward(ch)
	}
}

// forward pipelines the current chunk of ch to its next hop.
func (m *Manager) forward(ch *Channel) {
	next := m.nextHop(ch.Info.Src, ch.Info.Dst)
	if ch.PipelineChunk(next) {
		m.metrics.ChunkForwarded(ch.Info.Len)
		m.resume(ch)
		return
	}
	m.metrics.PipelineBlocked()
}

func (m *Manager) nextHop(src, dst int) *Channel {
	pid := m.handler.LookupRoute(src, dst)
	next := m.Peer(pid)
	if next == nil {
		panic(fmt.Sprintf("ioman: node %d has no next hop from %d to %d (got %d)", m.id, src, dst, pid))
	}
	return next
}

// resume lets ch take in its next message. The local channel resumes by
// being Active again.
func (m *Manager) resume(ch *Channel) {
	if !ch.local {
		ch.resume <- struct{}{}
	}
}

func (m *Manager) completeWrite(ch *Channel) {
	ch.writing = false
	for _, w := range ch.CompleteWrite() {
		m.metrics.ChunkForwarded(w.Info.Len)
		m.resume(w)
	}
}

// flush hands the head of every idle channel queue to its writer.
func (m *Manager) flush() {
	for _, ch := range m.channels {
		if ch.dead || ch.writing || ch.state == StateSetup {
			continue
		}
		if b := ch.Head(); b != nil {
			ch.writing = true
			ch.out <- b
		}
	}
}

// fail unregisters and destroys a socket channel. Chunks blocked on it are
// dropped since their route is gone.
func (m *Manager) fail(ch *Channel, err error) {
	if ch.dead {
		return
	}
	if ch.local {
		log.Fatalf("node %d: local channel failed: %v", m.id, err)
	}
	log.WithError(err).Warnf("node %d: closing %s", m.id, ch)

	for i, c := range m.channels {
		if c == ch {
			m.channels = append(m.channels[:i], m.channels[i+1:]...)
			break
		}
	}
	if pid := ch.peerID; pid >= 0 && pid < len(m.peers) && m.peers[pid] == ch {
		m.peers[pid] = nil
	}
	for _, c := range m.channels {
		c.removeWaiter(ch)
	}
	for _, w := range ch.waiters {
		log.Warnf("node %d: dropping chunk %s routed through %s", m.id, w.Info.Header, ch)
		w.Release()
		w.state = StateActive
		m.resume(w)
	}

	m.metrics.ChannelFailed()
	m.handler.NotifyFailure(ch)
	m.destroy(ch)
}

func (m *Manager) destroy(ch *Channel) {
	if ch.dead {
		return
	}
	ch.dead = true
	close(ch.done)
	close(ch.out)
	if err := ch.Destroy(); err != nil {
		log.WithError(err).Debugf("node %d: closing socket", m.id)
	}
}

func (m *Manager) stats() Stats {
	s := Stats{NumSockets: len(m.channels)}
	for pid, ch := range m.peers {
		if ch == nil {
			continue
		}
		s.Traffic = append(s.Traffic, PeerTraffic{Peer: pid, Rx: ch.Rx(), Tx: ch.Tx()})
		s.SendBuffers += ch.QueueLen()
	}
	for _, ch := range m.channels {
		if ch.state == StateBlocking {
			s.Blocked++
		}
	}
	if m.local.state == StateBlocking {
		s.Blocked++
	}
	sort.Slice(s.Traffic, func(i, j int) bool { return s.Traffic[i].Peer < s.Traffic[j].Peer })
	return s
}

func (m *Manager) acceptLoop() {
	defer m.wg.Done()
	for {
		conn, err := m.listener.AcceptTCP()
		if err != nil {
			select {
			case <-m.done:
			default:
				log.WithError(err).Errorf("node %d: accept failed", m.id)
			}
			return
		}
		if !m.post(evAccept{conn: conn}) {
			conn.Close() // nolint: errcheck
			return
		}
	}
}

// readLoop receives messages on ch one at a time. After each header and
// each body it hands control to the loop and waits to be let go on.
func (m *Manager) readLoop(ch *Channel) {
	defer m.wg.Done()
	for {
		st := ch.ReadHeader()
		for st == StatusAgain {
			st = ch.ReadHeader()
		}
		if st != StatusOK {
			m.post(evFailed{ch: ch, err: errors.New("failed to read header")})
			return
		}
		if !m.post(evHeader{ch: ch}) {
			return
		}
		select {
		case <-ch.grant:
		case <-ch.done:
			return
		}

		var msg *Buffer
		for {
			if ch.Info.Kind == KindData {
				_, st = ch.ReadChunk()
			} else {
				msg, st = ch.ReadMsg()
			}
			if st != StatusOK {
				break
			}
		}
		if st != StatusDone {
			m.post(evFailed{ch: ch, err: errors.Errorf("failed to read %s body", ch.Info.Kind)})
			return
		}
		if !m.post(evBody{ch: ch, msg: msg}) {
			return
		}
		select {
		case <-ch.resume:
		case <-ch.done:
			return
		}
	}
}

// writeLoop flushes the buffers the loop hands over.
func (m *Manager) writeLoop(ch *Channel) {
	defer m.wg.Done()
	for b := range ch.out {
		if ch.Write(b) != StatusOK {
			m.post(evFailed{ch: ch, err: errors.New("failed to write")})
			return
		}
		if !m.post(evWritten{ch: ch}) {
			return
		}
	}
}

// Package comm implements the node façade: blocking connect, send and
// receive calls on top of the I/O manager, the connection handshake,
// message reassembly and the routing table flood.
package comm

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/skycoin/skycoin/src/util/logging"

	"github.com/skycoin/dlfree/internal/metrics"
	"github.com/skycoin/dlfree/pkg/ioman"
	"github.com/skycoin/dlfree/pkg/routing"
)

// MaxNodeID bounds node ids, which fill the low bits of session ids.
const MaxNodeID = 1 << 20

const sidShift = 20

var (
	// ErrClosed is returned by calls into a closed Node.
	ErrClosed = errors.New("comm: node is closed")
	// ErrConnectFailed is returned by ConnectWait when the connection or its
	// handshake failed.
	ErrConnectFailed = errors.New("comm: connect failed")
	// ErrUnknownHandle is returned by ConnectWait for handles it does not know.
	ErrUnknownHandle = errors.New("comm: unknown connect handle")
	// ErrInvalidPeer is returned for peer ids outside the registry.
	ErrInvalidPeer = errors.New("comm: invalid peer id")
	// ErrSendToSelf is returned when sending data to the node itself.
	ErrSendToSelf = errors.New("comm: cannot send data to self")
)

// ConnectHandle identifies a connect started by AsyncConnect.
type ConnectHandle = uuid.UUID

type pendingConn struct {
	ch     *ioman.Channel
	peer   int
	done   bool
	failed bool
}

// Stats is a snapshot of a Node.
type Stats struct {
	ID            int         `json:"id"`
	ListenPort    int         `json:"listen_port"`
	RoutingTables int         `json:"routing_tables"`
	MsgsReceived  int         `json:"msgs_received"`
	BytesReceived int64       `json:"bytes_received"`
	Unread        int         `json:"unread"`
	IO            ioman.Stats `json:"io"`
}

// Node is one member of the overlay.
type Node struct {
	id  int
	cfg Config
	log *logging.Logger
	man *ioman.Manager

	// loop only
	msgs map[uint64]*dataMsg

	mu        sync.Mutex
	cond      *sync.Cond
	sid       uint64
	pending   map[ConnectHandle]*pendingConn
	rttStart  []time.Time
	rtts      []time.Duration
	rts       routing.Store
	maxWidth  int
	minWidth  int
	queues    [][][]byte
	unread    int
	recvd     int
	recvBytes int64
	closed    bool

	serveErr chan error
	stop     chan struct{}
	wg       sync.WaitGroup
}

// New creates node id and starts its I/O loop.
func New(id int, cfg Config) (*Node, error) {
	cfg.fill()
	if id < 0 || id >= MaxNodeID || id >= cfg.MaxPeer {
		return nil, errors.Wrapf(ErrInvalidPeer, "node id %d", id)
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.MustGetLogger(fmt.Sprintf("comm:%d", id))
	}

	rts, err := cfg.RoutingStore()
	if err != nil {
		return nil, errors.Wrap(err, "failed to open routing store")
	}

	n := &Node{
		id:       id,
		cfg:      cfg,
		log:      cfg.Logger,
		msgs:     make(map[uint64]*dataMsg),
		pending:  make(map[ConnectHandle]*pendingConn),
		rttStart: make([]time.Time, cfg.MaxPeer),
		rtts:     make([]time.Duration, cfg.MaxPeer),
		rts:      rts,
		minWidth: math.MaxInt32,
		queues:   make([][][]byte, cfg.MaxPeer),
		serveErr: make(chan error, 1),
		stop:     make(chan struct{}),
	}
	n.cond = sync.NewCond(&n.mu)

	rec := metrics.NewDummyIO()
	if cfg.Metrics {
		rec = metrics.NewPrometheusIO(id)
	}
	n.man, err = ioman.New(ioman.Config{
		ID:      id,
		Port:    cfg.ListenPort,
		MaxPeer: cfg.MaxPeer,
		Metrics: rec,
	}, handler{n})
	if err != nil {
		rts.Close() // nolint: errcheck
		return nil, err
	}

	go func() { n.serveErr <- n.man.Serve(context.Background()) }()
	if cfg.MonitorInterval > 0 {
		n.wg.Add(1)
		go n.monitor(time.Duration(cfg.MonitorInterval))
	}
	n.log.Debugf("node %d listening on port %d", id, n.man.ListenPort())
	return n, nil
}

// ID returns the node id.
func (n *Node) ID() int { return n.id }

// ListenPort returns the port peers connect to.
func (n *Node) ListenPort() int { return n.man.ListenPort() }

// AsyncConnect starts connecting to addr:port. Only a failure to resolve the
// address is reported here; the outcome of the connect itself is collected
// with ConnectWait.
func (n *Node) AsyncConnect(addr string, port int) (ConnectHandle, error) {
	ch, err := ioman.NewConnectChannel(addr, port)
	if err != nil {
		n.log.WithError(err).Warnf("connect failed to (%s, %d)", addr, port)
		return uuid.Nil, err
	}

	h := uuid.New()
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return uuid.Nil, ErrClosed
	}
	n.pending[h] = &pendingConn{ch: ch, peer: ioman.PeerUnknown}
	n.mu.Unlock()

	if err := n.man.Connect(ch); err != nil {
		n.mu.Lock()
		delete(n.pending, h)
		n.mu.Unlock()
		return uuid.Nil, err
	}
	return h, nil
}

// ConnectWait blocks until the connect behind h completes its handshake and
// returns the peer id.
func (n *Node) ConnectWait(h ConnectHandle) (int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for {
		p, ok := n.pending[h]
		switch {
		case !ok:
			return ioman.PeerUnknown, ErrUnknownHandle
		case p.done:
			delete(n.pending, h)
			return p.peer, nil
		case p.failed:
			delete(n.pending, h)
			n.log.Warnf("connect failed handle: %s", h)
			return ioman.PeerUnknown, ErrConnectFailed
		case n.closed:
			return ioman.PeerUnknown, ErrClosed
		}
		n.cond.Wait()
	}
}

// Connect is AsyncConnect followed by ConnectWait.
func (n *Node) Connect(addr string, port int) (int, error) {
	h, err := n.AsyncConnect(addr, port)
	if err != nil {
		return ioman.PeerUnknown, err
	}
	return n.ConnectWait(h)
}

// PeerRTT returns the handshake round trip time measured with pid, 0 if
// none was measured.
func (n *Node) PeerRTT(pid int) time.Duration {
	if pid < 0 || pid >= len(n.rtts) {
		return 0
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.rtts[pid]
}

func (n *Node) newSID() uint64 {
	n.mu.Lock()
	sid := n.sid
	n.sid++
	n.mu.Unlock()
	return sid<<sidShift + uint64(n.id)
}

func (n *Node) chunkSize(dst int) int {
	size := n.cfg.ChunkSize
	if !n.cfg.AdaptiveChunk {
		return size
	}
	rt := n.rts.Get(n.id)
	if rt == nil || rt.Entry(dst) == nil {
		return size
	}
	n.mu.Lock()
	maxWidth := n.maxWidth
	n.mu.Unlock()
	if maxWidth <= 0 {
		return size
	}
	if s := int(float64(rt.Entry(dst).Width) / float64(maxWidth) * float64(size)); s > 0 {
		return s
	}
	return 1
}

// SendData transmits data to dst. It returns once every chunk is queued on the
// local channel; data may be reused afterwards.
func (n *Node) SendData(dst int, data []byte) error {
	switch {
	case dst == n.id:
		return ErrSendToSelf
	case dst < 0 || dst >= n.cfg.MaxPeer:
		return errors.Wrapf(ErrInvalidPeer, "destination %d", dst)
	}
	sid := n.newSID()
	off := 0
	for seq, size := range chunkSizes(len(data), n.chunkSize(dst)) {
		if err := n.man.SendChunk(dst, sid, len(data), seq, data[off:off+size]); err != nil {
			if err == ioman.ErrClosed {
				return ErrClosed
			}
			return err
		}
		off += size
	}
	return nil
}

// RecvData blocks until a message from src is available and returns it.
func (n *Node) RecvData(src int) ([]byte, error) {
	if src < 0 || src >= len(n.queues) {
		return nil, errors.Wrapf(ErrInvalidPeer, "source %d", src)
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	for len(n.queues[src]) == 0 {
		if n.closed {
			return nil, ErrClosed
		}
		n.cond.Wait()
	}
	return n.popLocked(src), nil
}

// RecvAnyData blocks until any message is available and returns it with its
// source. Sources are scanned from the lowest pid, so a busy low pid can
// starve higher ones.
func (n *Node) RecvAnyData() (int, []byte, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for n.unread == 0 {
		if n.closed {
			return ioman.PeerUnknown, nil, ErrClosed
		}
		n.cond.Wait()
	}
	for src := range n.queues {
		if len(n.queues[src]) > 0 {
			return src, n.popLocked(src), nil
		}
	}
	panic("comm: unread messages missing from the queues")
}

func (n *Node) popLocked(src int) []byte {
	q := n.queues[src]
	data := q[0]
	q[0] = nil
	n.queues[src] = q[1:]
	n.unread--
	if n.unread < 0 {
		panic("comm: negative unread count")
	}
	return data
}

// ExchangeRT publishes rt, the table computed by this node, then blocks
// until tables from total nodes are held.
func (n *Node) ExchangeRT(rt *routing.Table, total int) error {
	if rt.Src != n.id {
		panic(fmt.Sprintf("comm: node %d exchanging the table of %d", n.id, rt.Src))
	}
	body, err := rt.MarshalBinary()
	if err != nil {
		return err
	}
	added, err := n.registerRT(rt)
	if err != nil {
		return err
	}
	if !added {
		panic(fmt.Sprintf("comm: node %d exchanged its table twice", n.id))
	}
	if err := n.man.Broadcast(ioman.KindRT, body); err != nil {
		return err
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	for n.rts.Count() < total {
		if n.closed {
			return ErrClosed
		}
		n.cond.Wait()
	}
	return nil
}

func (n *Node) registerRT(rt *routing.Table) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	added, err := n.rts.Put(rt)
	if err != nil || !added {
		return false, err
	}
	for _, e := range rt.Entries {
		if e == nil {
			continue
		}
		if e.Width > n.maxWidth {
			n.maxWidth = e.Width
		}
		if e.Width < n.minWidth {
			n.minWidth = e.Width
		}
	}
	n.cond.Broadcast()
	return true, nil
}

// LookupRT returns the pid following this node on the route from src to
// dst, or -1.
func (n *Node) LookupRT(src, dst int) int {
	rt := n.rts.Get(src)
	if rt == nil {
		return -1
	}
	return rt.NextHop(n.id, dst)
}

// RoutingTable returns the table computed by src, or nil.
func (n *Node) RoutingTable(src int) *routing.Table {
	return n.rts.Get(src)
}

// NumRoutingTables returns the number of tables held.
func (n *Node) NumRoutingTables() int {
	return n.rts.Count()
}

// WidthRange returns the smallest and largest route widths over every table
// held.
func (n *Node) WidthRange() (min, max int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.minWidth, n.maxWidth
}

// Stats returns a snapshot of the node and its I/O manager.
func (n *Node) Stats() (Stats, error) {
	io, err := n.man.Stats()
	if err != nil {
		if err == ioman.ErrClosed {
			err = ErrClosed
		}
		return Stats{}, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return Stats{
		ID:            n.id,
		ListenPort:    n.man.ListenPort(),
		RoutingTables: n.rts.Count(),
		MsgsReceived:  n.recvd,
		BytesReceived: n.recvBytes,
		Unread:        n.unread,
		IO:            io,
	}, nil
}

// Close stops the I/O loop and wakes every blocked caller with ErrClosed.
func (n *Node) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	n.cond.Broadcast()
	n.mu.Unlock()

	close(n.stop)
	err := n.man.Close()
	if serr := <-n.serveErr; serr != nil && serr != ioman.ErrClosed && err == nil {
		err = serr
	}
	n.wg.Wait()
	if cerr := n.rts.Close(); err == nil {
		err = cerr
	}
	return err
}

// monitor logs the traffic rates of the node.
func (n *Node) monitor(interval time.Duration) {
	defer n.wg.Done()
	t := time.NewTicker(interval)
	defer t.Stop()

	var prevRx, prevTx int64
	prev := time.Now()
	for {
		select {
		case <-n.stop:
			return
		case now := <-t.C:
			s, err := n.man.Stats()
			if err != nil {
				return
			}
			rx, tx := s.Totals()
			dt := now.Sub(prev).Seconds()
			n.log.WithFields(logrus.Fields{
				"rx_kbps":      float64(rx-prevRx) / dt / 1000,
				"tx_kbps":      float64(tx-prevTx) / dt / 1000,
				"send_buffers": s.SendBuffers,
			}).Info("traffic")
			prevRx, prevTx, prev = rx, tx, now
		}
	}
}

package ioman

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/skycoin/skycoin/src/util/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skycoin/dlfree/internal/testhelpers"
)

func TestMain(m *testing.M) {
	loggingLevel, ok := os.LookupEnv("TEST_LOGGING_LEVEL")
	if ok {
		lvl, err := logging.LevelFromString(loggingLevel)
		if err != nil {
			log.Fatal(err)
		}
		logging.SetLevel(lvl)
	} else {
		logging.Disable()
	}

	os.Exit(m.Run())
}

type received struct {
	info MsgInfo
	body []byte
}

// lineHandler routes along a line of nodes and performs a minimal
// PING0/PING1 exchange so that both ends register each other.
type lineHandler struct {
	m *Manager

	mu       sync.Mutex
	chunks   []received
	msgs     []received
	failures int

	peers  chan int
	chunkC chan struct{}
	msgC   chan struct{}
	failC  chan struct{}
}

func newLineHandler() *lineHandler {
	return &lineHandler{
		peers:  make(chan int, 16),
		chunkC: make(chan struct{}, 4096),
		msgC:   make(chan struct{}, 64),
		failC:  make(chan struct{}, 16),
	}
}

func (h *lineHandler) LookupRoute(src, dst int) int {
	self := h.m.ID()
	if dst > self {
		return self + 1
	}
	return self - 1
}

func (h *lineHandler) NotifyConnect(ch *Channel) {
	h.m.SendMsg(ch, KindPing0, -1, nil)
}

func (h *lineHandler) NotifyFailure(ch *Channel) {
	h.mu.Lock()
	h.failures++
	h.mu.Unlock()
	h.failC <- struct{}{}
}

func (h *lineHandler) HandleMsg(ch *Channel, info MsgInfo, body []byte) {
	switch info.Kind {
	case KindPing0:
		h.m.RegisterChannel(info.Src, ch)
		h.m.SendMsg(ch, KindPing1, info.Src, nil)
		h.peers <- info.Src
	case KindPing1:
		h.m.RegisterChannel(info.Src, ch)
		h.peers <- info.Src
	default:
		h.mu.Lock()
		h.msgs = append(h.msgs, received{info: info, body: body})
		h.mu.Unlock()
		h.msgC <- struct{}{}
	}
}

func (h *lineHandler) SetupChunk(ch *Channel, info MsgInfo) []byte {
	return make([]byte, info.Len)
}

func (h *lineHandler) HandleChunk(ch *Channel, info MsgInfo, chunk *Buffer) {
	h.mu.Lock()
	h.chunks = append(h.chunks, received{info: info, body: chunk.Bytes()})
	h.mu.Unlock()
	h.chunkC <- struct{}{}
}

type testNode struct {
	m    *Manager
	h    *lineHandler
	errC chan error
}

func startNode(t *testing.T, id int) *testNode {
	h := newLineHandler()
	m, err := New(Config{ID: id, MaxPeer: 8}, h)
	require.NoError(t, err)
	h.m = m

	n := &testNode{m: m, h: h, errC: make(chan error, 1)}
	go func() { n.errC <- m.Serve(context.Background()) }()
	return n
}

func (n *testNode) stop(t *testing.T) {
	require.NoError(t, n.m.Close())
	// Serve may not have started before Close
	if err := testhelpers.WithinTimeout(n.errC); err != ErrClosed {
		require.NoError(t, err)
	}
}

// line connects node i to node i+1 and waits for both registrations.
func line(t *testing.T, size int) []*testNode {
	nodes := make([]*testNode, size)
	for i := range nodes {
		nodes[i] = startNode(t, i)
	}
	for i := 0; i+1 < size; i++ {
		ch, err := NewConnectChannel("127.0.0.1", nodes[i+1].m.ListenPort())
		require.NoError(t, err)
		require.NoError(t, nodes[i].m.Connect(ch))
	}
	for i := 0; i+1 < size; i++ {
		waitPeer(t, nodes[i], i+1)
		waitPeer(t, nodes[i+1], i)
	}
	return nodes
}

func waitPeer(t *testing.T, n *testNode, want int) {
	errC := make(chan error, 1)
	go func() {
		for pid := range n.h.peers {
			if pid == want {
				errC <- nil
				return
			}
			n.h.peers <- pid
		}
	}()
	require.NoError(t, testhelpers.WithinTimeout(errC))
}

func waitN(t *testing.T, c chan struct{}, n int) {
	errC := make(chan error, 1)
	go func() {
		for i := 0; i < n; i++ {
			<-c
		}
		errC <- nil
	}()
	require.NoError(t, testhelpers.WithinTimeout(errC))
}

func TestForwardThroughLine(t *testing.T) {
	nodes := line(t, 3)
	defer func() {
		for _, n := range nodes {
			n.stop(t)
		}
	}()

	const (
		chunkLen = 64 << 10
		count    = 3 * QueueLimit
	)
	payload := testhelpers.Pattern(chunkLen*count, 1)
	sent := make(chan error, 1)
	go func() {
		for seq := 0; seq < count; seq++ {
			body := payload[seq*chunkLen : (seq+1)*chunkLen]
			if err := nodes[0].m.SendChunk(2, 77, len(payload), seq, body); err != nil {
				sent <- err
				return
			}
		}
		sent <- nil
	}()
	require.NoError(t, testhelpers.WithinTimeout(sent))
	waitN(t, nodes[2].h.chunkC, count)

	h := nodes[2].h
	h.mu.Lock()
	defer h.mu.Unlock()
	require.Len(t, h.chunks, count)
	for seq, c := range h.chunks {
		assert.Equal(t, seq, c.info.Seq)
		assert.Equal(t, 0, c.info.Src)
		assert.Equal(t, uint64(77), c.info.SID)
		assert.Equal(t, payload[seq*chunkLen:(seq+1)*chunkLen], c.body)
	}
	assert.Empty(t, nodes[1].h.chunks, "intermediate hop only forwards")

	stats, err := nodes[1].m.Stats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.NumSockets)
	require.Len(t, stats.Traffic, 2)
	assert.Equal(t, 0, stats.Traffic[0].Peer)
	assert.Equal(t, 2, stats.Traffic[1].Peer)
	rx, tx := stats.Totals()
	assert.True(t, rx >= int64(len(payload)))
	assert.True(t, tx >= int64(len(payload)))
}

func TestEmptyChunk(t *testing.T) {
	nodes := line(t, 2)
	defer nodes[0].stop(t)
	defer nodes[1].stop(t)

	require.NoError(t, nodes[1].m.SendChunk(0, 5, 0, 0, nil))
	waitN(t, nodes[0].h.chunkC, 1)

	h := nodes[0].h
	h.mu.Lock()
	defer h.mu.Unlock()
	assert.Equal(t, 0, h.chunks[0].info.Len)
	assert.Len(t, h.chunks[0].body, 0)
}

func TestBroadcast(t *testing.T) {
	nodes := line(t, 3)
	defer func() {
		for _, n := range nodes {
			n.stop(t)
		}
	}()

	body := []byte("table")
	require.NoError(t, nodes[1].m.Broadcast(KindRT, body))
	body[0] = 'X'

	for _, i := range []int{0, 2} {
		waitN(t, nodes[i].h.msgC, 1)
		h := nodes[i].h
		h.mu.Lock()
		assert.Equal(t, KindRT, h.msgs[0].info.Kind)
		assert.Equal(t, i, h.msgs[0].info.Dst)
		assert.Equal(t, 1, h.msgs[0].info.Src)
		assert.Equal(t, []byte("table"), h.msgs[0].body)
		h.mu.Unlock()
	}
}

func TestPeerFailure(t *testing.T) {
	nodes := line(t, 2)
	defer nodes[0].stop(t)

	nodes[1].stop(t)
	waitN(t, nodes[0].h.failC, 1)

	stats, err := nodes[0].m.Stats()
	require.NoError(t, err)
	assert.Zero(t, stats.NumSockets)
	assert.Empty(t, stats.Traffic)
}

func TestConnectFailure(t *testing.T) {
	n := startNode(t, 0)
	defer n.stop(t)

	free := startNode(t, 1)
	port := free.m.ListenPort()
	free.stop(t)

	ch, err := NewConnectChannel("127.0.0.1", port)
	require.NoError(t, err)
	require.NoError(t, n.m.Connect(ch))
	waitN(t, n.h.failC, 1)
	assert.Equal(t, StateSetup, ch.State())
}

func TestSendChunkErrors(t *testing.T) {
	n := startNode(t, 3)
	assert.Equal(t, ErrSendToSelf, n.m.SendChunk(3, 1, 0, 0, nil))
	assert.Error(t, n.m.SendChunk(8, 1, 0, 0, nil))
	assert.Error(t, n.m.SendChunk(-1, 1, 0, 0, nil))
	n.stop(t)

	assert.Equal(t, ErrClosed, n.m.SendChunk(1, 1, 0, 0, nil))
	assert.Equal(t, ErrClosed, n.m.Broadcast(KindRT, nil))
	_, err := n.m.Stats()
	assert.Equal(t, ErrClosed, err)
	assert.NoError(t, n.m.Close())
	assert.Equal(t, ErrClosed, n.m.Serve(context.Background()))
}

func TestNewInvalidID(t *testing.T) {
	_, err := New(Config{ID: 4, MaxPeer: 4}, newLineHandler())
	assert.Error(t, err)
}

// Package cluster coordinates a set of comm nodes: it plans and establishes
// their connections, computes and exchanges their routing tables, and runs
// collective benchmarks over the resulting overlay.
package cluster

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/skycoin/skycoin/src/util/logging"

	"github.com/skycoin/dlfree/internal/netutil"
	"github.com/skycoin/dlfree/pkg/comm"
	"github.com/skycoin/dlfree/pkg/overlay"
	"github.com/skycoin/dlfree/pkg/planner"
	"github.com/skycoin/dlfree/pkg/rendezvous"
	"github.com/skycoin/dlfree/pkg/router"
	"github.com/skycoin/dlfree/pkg/routing"
)

var log = logging.MustGetLogger("cluster")

// NoRTT marks a pair without a direct connection in the connection matrix.
const NoRTT = -1

// ErrWrongPeer is returned when a connect lands on another peer than planned.
var ErrWrongPeer = errors.New("cluster: connected to an unexpected peer")

// Node is the part of comm.Node the manager drives.
type Node interface {
	ID() int
	ListenPort() int
	AsyncConnect(addr string, port int) (comm.ConnectHandle, error)
	ConnectWait(h comm.ConnectHandle) (int, error)
	Connect(addr string, port int) (int, error)
	PeerRTT(pid int) time.Duration
	SendData(dst int, data []byte) error
	RecvAnyData() (int, []byte, error)
	ExchangeRT(rt *routing.Table, total int) error
}

// Manager drives one member of a cluster.
type Manager struct {
	rv        rendezvous.Rendezvous
	node      Node
	log       *logging.Logger
	retrier   *netutil.Retrier
	hostnames []string
	connMat   [][]int
	ifacePrio []string
}

// New exchanges hostnames with the other members and returns the manager of
// node. The node id must equal the rendezvous index.
func New(ctx context.Context, rv rendezvous.Rendezvous, node Node) (*Manager, error) {
	if node.ID() != rv.Index() {
		return nil, fmt.Errorf("node id %d differs from member index %d", node.ID(), rv.Index())
	}
	hostnames, err := rv.ExchangeHostnames(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to exchange hostnames")
	}
	connMat := make([][]int, rv.Size())
	for i := range connMat {
		connMat[i] = make([]int, rv.Size())
		for j := range connMat[i] {
			connMat[i][j] = NoRTT
		}
	}
	return &Manager{
		rv:        rv,
		node:      node,
		log:       logging.MustGetLogger(fmt.Sprintf("cluster:%d", rv.Index())),
		retrier:   netutil.NewRetrier(50*time.Millisecond, 5*time.Second, 2).WithErrWhitelist(comm.ErrClosed),
		hostnames: hostnames,
		connMat:   connMat,
	}, nil
}

// SetIfacePrio sets the address prefixes, in order of priority, used to pick
// the interface published to the other members. See netutil.SelectAddr.
func (m *Manager) SetIfacePrio(pats ...string) {
	m.ifacePrio = pats
}

// Node returns the node driven by m.
func (m *Manager) Node() Node { return m.node }

// Index returns the member index, which is also the node id.
func (m *Manager) Index() int { return m.rv.Index() }

// Size returns the number of members.
func (m *Manager) Size() int { return m.rv.Size() }

// Hostnames returns the hostname of every member, by index.
func (m *Manager) Hostnames() []string { return m.hostnames }

// ConnMatrix returns the connection matrix built by the last connect: entry
// (i, j) is the RTT in microseconds measured by i on its connect to j, or
// NoRTT.
func (m *Manager) ConnMatrix() [][]int { return m.connMat }

// Sync is a barrier over all members.
func (m *Manager) Sync(ctx context.Context) error {
	return m.rv.Sync(ctx)
}

// Graph builds the overlay of the established connections. Edge widths and
// default lengths come from top; lengths are replaced by the measured RTTs.
func (m *Manager) Graph(top overlay.Topology) (*overlay.Graph, error) {
	g := overlay.New()
	for _, h := range m.hostnames {
		g.AddNode(h)
	}
	for src, row := range m.connMat {
		for dst, rtt := range row {
			if rtt == NoRTT {
				continue
			}
			e, err := g.AddConn(top, src, dst)
			if err != nil {
				return nil, err
			}
			g.Edges[e].Len = float64(rtt)
		}
	}
	return g, nil
}

// ComputeRT computes this member's routing table over the established
// connections under policy, and exchanges it with every other member.
func (m *Manager) ComputeRT(ctx context.Context, top overlay.Topology, policy router.Policy, seed int64) error {
	g, err := m.Graph(top)
	if err != nil {
		return err
	}
	avg := func(_ int, own float64) ([]float64, error) {
		return m.rv.GossipFloat(ctx, own)
	}
	rt, err := planner.Plan(g, policy, m.Index(), seed, avg)
	if err != nil {
		return errors.Wrapf(err, "failed to plan %s routes", policy)
	}
	if err := m.node.ExchangeRT(rt, m.Size()); err != nil {
		return errors.Wrap(err, "failed to exchange routing tables")
	}
	if m.Index() == 0 {
		m.log.Info("exchanged routing tables")
		m.logConnStats()
	}
	return m.rv.Sync(ctx)
}

func (m *Manager) logConnStats() {
	intra, inter := 0, 0
	for src, row := range m.connMat {
		for dst, rtt := range row {
			if rtt == NoRTT {
				continue
			}
			if sameCluster(m.hostnames[src], m.hostnames[dst], ClusterNamePrefix) {
				intra++
			} else {
				inter++
			}
		}
	}
	total := intra + inter
	if total == 0 {
		return
	}
	m.log.Infof("intra cluster links: %d/%d %.3f", intra, total, float64(intra)/float64(total))
	m.log.Infof("inter cluster links: %d/%d %.3f", inter, total, float64(inter)/float64(total))
}

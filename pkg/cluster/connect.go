package cluster

import (
	"context"
	"math/rand"
	"time"

	"github.com/pkg/errors"

	"github.com/skycoin/dlfree/internal/netutil"
	"github.com/skycoin/dlfree/pkg/comm"
	"github.com/skycoin/dlfree/pkg/overlay"
	"github.com/skycoin/dlfree/pkg/rendezvous"
)

// ClusterNamePrefix is the hostname prefix length shared by the hosts of one
// physical cluster, used for link statistics.
const ClusterNamePrefix = 5

func sameCluster(h0, h1 string, prefix int) bool {
	if len(h0) < prefix || len(h1) < prefix {
		return h0 == h1
	}
	return h0[:prefix] == h1[:prefix]
}

func (m *Manager) newPlan() []bool {
	return make([]bool, m.Size())
}

// ConnectAll connects every pair of members.
func (m *Manager) ConnectAll(ctx context.Context) ([][]int, error) {
	if m.Index() == 0 {
		m.log.Info("connect all")
	}
	plan := m.newPlan()
	for idx := m.Index() + 1; idx < m.Size(); idx++ {
		plan[idx] = true
	}
	return m.connect(ctx, plan)
}

// ConnectRandom connects each pair of members with probability density.
func (m *Manager) ConnectRandom(ctx context.Context, density float64, seed int64) ([][]int, error) {
	if m.Index() == 0 {
		m.log.Infof("connect random graph: density: %.3f seed: %d", density, seed)
	}
	rng := rand.New(rand.NewSource(seed + int64(m.Index())))
	plan := m.newPlan()
	for idx := m.Index() + 1; idx < m.Size(); idx++ {
		plan[idx] = rng.Float64() < density
	}
	return m.connect(ctx, plan)
}

// ConnectRing connects member i to member i+1, the last one closing the ring.
func (m *Manager) ConnectRing(ctx context.Context) ([][]int, error) {
	if m.Index() == 0 {
		m.log.Info("connect ring")
	}
	plan := m.newPlan()
	next := (m.Index() + 1) % m.Size()
	// with two members the closing link would duplicate the first one.
	if next != m.Index() && !(m.Size() == 2 && next == 0) {
		plan[next] = true
	}
	return m.connect(ctx, plan)
}

// ConnectLine connects member i to member i+1.
func (m *Manager) ConnectLine(ctx context.Context) ([][]int, error) {
	if m.Index() == 0 {
		m.log.Info("connect line")
	}
	plan := m.newPlan()
	if m.Index() != m.Size()-1 {
		plan[m.Index()+1] = true
	}
	return m.connect(ctx, plan)
}

// isGateway reports whether idx is among the first ngates members of its
// cluster, clusters being told apart by the first prefix bytes of hostnames.
func (m *Manager) isGateway(idx, prefix, ngates int) bool {
	n := 0
	for j := 0; j < idx; j++ {
		if sameCluster(m.hostnames[j], m.hostnames[idx], prefix) {
			n++
		}
	}
	return n < ngates
}

// ConnectWithGateway connects members of the same cluster with probability
// density, and the first ngates members of every cluster to each other.
func (m *Manager) ConnectWithGateway(ctx context.Context, prefix, ngates int, density float64, seed int64) ([][]int, error) {
	if m.Index() == 0 {
		m.log.Infof("connect with gateway: ngates: %d density: %.3f seed: %d", ngates, density, seed)
	}
	plan := m.newPlan()
	self := m.Index()

	if m.isGateway(self, prefix, ngates) {
		m.log.Infof("%d: i am gateway: %s", self, m.hostnames[self])
		for idx := self + 1; idx < m.Size(); idx++ {
			plan[idx] = m.isGateway(idx, prefix, ngates)
		}
	}

	rng := rand.New(rand.NewSource(seed + int64(self)))
	for idx := self + 1; idx < m.Size(); idx++ {
		if sameCluster(m.hostnames[self], m.hostnames[idx], prefix) && rng.Float64() < density {
			plan[idx] = true
		}
	}
	return m.connect(ctx, plan)
}

// ConnectLocalityAware lets every member pick peers by physical distance in
// top with overlay.LocalityPlan. Picked peers with a lower index are asked to
// connect back.
func (m *Manager) ConnectLocalityAware(ctx context.Context, top overlay.Topology, alpha int, seed int64) ([][]int, error) {
	if m.Index() == 0 {
		m.log.Infof("connect locality aware alpha: %d seed: %d", alpha, seed)
	}
	self := m.Index()
	dist := make([]float64, 0, m.Size()-1)
	peers := make([]int, 0, m.Size()-1)
	for idx := 0; idx < m.Size(); idx++ {
		if idx == self {
			continue
		}
		_, length, _, err := top.Traverse(m.hostnames[self], m.hostnames[idx])
		if err != nil {
			return nil, err
		}
		dist = append(dist, length)
		peers = append(peers, idx)
	}

	if err := m.rv.Sync(ctx); err != nil {
		return nil, err
	}

	plan := m.newPlan()
	var backs [][2]int
	if len(peers) > 0 {
		rng := rand.New(rand.NewSource(seed + int64(self)))
		for _, idx := range overlay.LocalityPlan(dist, peers, alpha, rng) {
			if idx > self {
				plan[idx] = true
			} else {
				backs = append(backs, [2]int{idx, self})
			}
		}
	}

	all, err := m.rv.Gossip(ctx, backs)
	if err != nil {
		return nil, errors.Wrap(err, "failed to gossip connect back requests")
	}
	for _, p := range all {
		if p[0] == self {
			plan[p[1]] = true
		}
	}
	return m.connect(ctx, plan)
}

// connect establishes the planned connections, then exchanges the measured
// RTTs with every member to build the connection matrix. Connects that fail
// after retries are logged and left out of the matrix.
func (m *Manager) connect(ctx context.Context, plan []bool) ([][]int, error) {
	addr, err := netutil.LocalAddr(m.ifacePrio)
	if err != nil {
		return nil, err
	}
	eps, err := m.rv.ExchangeEndpoints(ctx, rendezvous.Endpoint{Addr: addr, Port: m.node.ListenPort()})
	if err != nil {
		return nil, errors.Wrap(err, "failed to exchange endpoints")
	}

	handles := make(map[int]comm.ConnectHandle)
	for idx, yes := range plan {
		if !yes {
			continue
		}
		ep := eps[idx]
		err := m.retrier.Do(ctx, func() error {
			h, err := m.node.AsyncConnect(ep.Addr, ep.Port)
			if err == nil {
				handles[idx] = h
			}
			return err
		})
		if err != nil {
			m.log.WithError(err).Warnf("connect to peer fail: %d (%s)", idx, ep)
			plan[idx] = false
		}
	}

	for idx, yes := range plan {
		if !yes {
			continue
		}
		pid, err := m.node.ConnectWait(handles[idx])
		if err == comm.ErrConnectFailed {
			ep := eps[idx]
			err = m.retrier.Do(ctx, func() error {
				pid, err = m.node.Connect(ep.Addr, ep.Port)
				return err
			})
		}
		if err != nil {
			m.log.WithError(err).Warnf("connect to peer fail: %d", idx)
			plan[idx] = false
			continue
		}
		if pid != idx {
			return nil, errors.Wrapf(ErrWrongPeer, "expected %d, got %d", idx, pid)
		}
	}

	return m.exchangeConnInfo(ctx, plan)
}

func (m *Manager) exchangeConnInfo(ctx context.Context, plan []bool) ([][]int, error) {
	row := make([]int, m.Size())
	for idx := range row {
		row[idx] = NoRTT
		if plan[idx] {
			row[idx] = int(m.node.PeerRTT(idx) / time.Microsecond)
		}
	}
	rows, err := m.rv.GossipRow(ctx, row)
	if err != nil {
		return nil, errors.Wrap(err, "failed to exchange connection info")
	}
	m.connMat = rows

	if m.Index() == 0 {
		nconns := 0
		for i, r := range rows {
			for j, rtt := range r {
				if i != j && rtt != NoRTT {
					nconns++
				}
			}
		}
		m.log.Infof("%d connections established...", nconns)
	}
	return rows, nil
}

package overlay

import (
	"math/rand"
	"sort"

	"github.com/skycoin/skycoin/src/util/logging"
)

var log = logging.MustGetLogger("overlay")

// Hosts lists the host names of a physical topology.
type Hosts interface {
	Topology
	Hosts() []string
}

func addHosts(g *Graph, top Hosts) int {
	for _, h := range top.Hosts() {
		g.AddNode(h)
	}
	return g.Len()
}

// SimulateRandom adds every host of top and connects each pair with
// probability density.
func SimulateRandom(top Hosts, density float64, rng *rand.Rand) (*Graph, error) {
	g := New()
	n := addHosts(g, top)

	conns, pairs := 0, 0
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if rng.Float64() < density {
				if _, err := g.AddConn(top, i, j); err != nil {
					return nil, err
				}
				conns++
			}
			pairs++
		}
	}
	logDensity(conns, pairs)
	return g, nil
}

// SimulateRing adds every host of top and connects host i to host i+1,
// closing the ring when there are more than two hosts.
func SimulateRing(top Hosts) (*Graph, error) {
	g := New()
	n := addHosts(g, top)
	links := n
	if n <= 2 {
		links = n - 1
	}
	for i := 0; i < links; i++ {
		if _, err := g.AddConn(top, i, (i+1)%n); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// SimulateLocalityAware adds every host of top and lets each one choose
// peers with LocalityPlan over its physical distances. Host i draws from a
// generator seeded with seed+i.
func SimulateLocalityAware(top Hosts, alpha int, seed int64) (*Graph, error) {
	g := New()
	n := addHosts(g, top)

	plan := make([][]bool, n)
	for i := range plan {
		plan[i] = make([]bool, n)
	}

	for src := 0; src < n; src++ {
		dist := make([]float64, 0, n-1)
		peers := make([]int, 0, n-1)
		for dst := 0; dst < n; dst++ {
			if dst == src {
				continue
			}
			_, length, _, err := top.Traverse(g.Nodes[src].Name, g.Nodes[dst].Name)
			if err != nil {
				return nil, err
			}
			dist = append(dist, length)
			peers = append(peers, dst)
		}

		rng := rand.New(rand.NewSource(seed + int64(src)))
		for _, dst := range LocalityPlan(dist, peers, alpha, rng) {
			plan[src][dst] = true
			plan[dst][src] = true
		}
	}

	conns, pairs := 0, 0
	for src := 0; src < n; src++ {
		for dst := src + 1; dst < n; dst++ {
			if plan[src][dst] {
				if _, err := g.AddConn(top, src, dst); err != nil {
					return nil, err
				}
				conns++
			}
			pairs++
		}
	}
	logDensity(conns, pairs)
	return g, nil
}

// LocalityPlan picks peers to connect to. Peers are shuffled, then sorted by
// distance, and split into ranges of growing size alpha, 2*alpha, 4*alpha...
// From each range about alpha peers are chosen at random; a range that is
// complete contributes exactly alpha.
func LocalityPlan(dist []float64, peers []int, alpha int, rng *rand.Rand) []int {
	if alpha <= 0 {
		panic("overlay: locality alpha must be positive")
	}

	type cand struct {
		dist float64
		pid  int
	}
	cands := make([]cand, len(peers))
	for i := range peers {
		cands[i] = cand{dist[i], peers[i]}
	}
	rng.Shuffle(len(cands), func(i, j int) { cands[i], cands[j] = cands[j], cands[i] })
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].dist < cands[j].dist })

	var chosen []int
	for i, lim := 0, alpha; i < len(cands); lim *= 2 {
		j := i + lim
		if j > len(cands) {
			j = len(cands)
		}
		block := cands[i:j]
		rng.Shuffle(len(block), func(a, b int) { block[a], block[b] = block[b], block[a] })

		full := lim == j-i
		for k := range block {
			if full && k >= alpha {
				break
			}
			if full || rng.Float64() < float64(alpha)/float64(lim) {
				chosen = append(chosen, block[k].pid)
			}
		}
		i = j
	}
	return chosen
}

func logDensity(conns, pairs int) {
	density := 0.0
	if pairs > 0 {
		density = float64(conns) / float64(pairs)
	}
	log.Infof("established %d/%d connections density: %.3f", conns, pairs, density)
}

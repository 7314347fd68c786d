package router

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"

	"github.com/skycoin/skycoin/src/util/logging"

	"github.com/skycoin/dlfree/pkg/overlay"
)

var log = logging.MustGetLogger("router")

// ErrDisconnected is returned when a rooted traversal cannot reach every node.
var ErrDisconnected = errors.New("overlay graph is not connected")

// UpDownLevels is the level count of up/down routing.
const UpDownLevels = 2

// Traversal selects how up/down routing ranks nodes from the root.
type Traversal int

// Traversals.
const (
	BreadthFirst Traversal = iota
	DepthFirst
)

// UpDownLinks ranks every node from a randomly chosen root and gives each
// edge level 0 towards the lower rank (up) and level 1 towards the higher
// rank (down). A path therefore never goes up after going down.
//
// With BreadthFirst the rank is the BFS depth, ties broken by BFS visit
// order. With DepthFirst it is the DFS visit order, neighbours taken by
// increasing edge length.
func UpDownLinks(g *overlay.Graph, t Traversal, rng *rand.Rand) ([]Link, error) {
	n := g.Len()
	links := newLinks(g)
	if n == 0 {
		return links, nil
	}
	root := rng.Intn(n)

	var (
		rank  []int
		order []int
	)
	switch t {
	case DepthFirst:
		order = dfsOrder(g, root)
		rank = order
	default:
		var depth []int
		depth, order = bfsDepth(g, root)
		rank = make([]int, n)
		for pid := range rank {
			// depth dominates, visit order breaks ties
			rank[pid] = depth[pid]*n + order[pid]
		}
	}
	for pid, o := range order {
		if o < 0 {
			return nil, fmt.Errorf("%s: node %d unreachable from root %d", ErrDisconnected, pid, root)
		}
	}

	for i, e := range g.Edges {
		switch {
		case rank[e.N0] < rank[e.N1]:
			links[i].Level0 = 1
			links[i].Level1 = 0
		case rank[e.N0] > rank[e.N1]:
			links[i].Level0 = 0
			links[i].Level1 = 1
		}
	}
	log.Debugf("up/down links from root %d", root)
	return links, nil
}

// bfsDepth returns the BFS depth and visit index of every node, -1 where
// unreached.
func bfsDepth(g *overlay.Graph, root int) (depth, order []int) {
	n := g.Len()
	depth = make([]int, n)
	order = make([]int, n)
	for i := range depth {
		depth[i] = -1
		order[i] = -1
	}
	depth[root], order[root] = 0, 0
	next := 1
	queue := []int{root}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, nb := range g.Neighbors(cur) {
			if depth[nb] >= 0 {
				continue
			}
			depth[nb] = depth[cur] + 1
			order[nb] = next
			next++
			queue = append(queue, nb)
		}
	}
	return depth, order
}

// dfsOrder returns the DFS visit index of every node, -1 where unreached.
func dfsOrder(g *overlay.Graph, root int) []int {
	order := make([]int, g.Len())
	for i := range order {
		order[i] = -1
	}
	next := 0
	var visit func(pid int)
	visit = func(pid int) {
		order[pid] = next
		next++
		edges := append([]int(nil), g.Nodes[pid].Edges...)
		sort.SliceStable(edges, func(i, j int) bool {
			return g.Edges[edges[i]].Len < g.Edges[edges[j]].Len
		})
		for _, e := range edges {
			if nb := g.Edges[e].Other(pid); order[nb] < 0 {
				visit(nb)
			}
		}
	}
	visit(root)
	return order
}

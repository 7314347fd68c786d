package router

import (
	"math/rand"
	"sort"

	"github.com/skycoin/dlfree/pkg/overlay"
)

type bfsNode struct {
	pid   int
	value float64
	links []int
}

// BFSSpanningLinks labels edges with breadth-first spanning trees. Nodes are
// taken in decreasing order of avgdist; from each one a BFS claims every
// unlabeled edge leading to a node it has not reached yet, at the current
// level. The level advances after a search that claimed at least one edge.
// avgdist is indexed by pid.
func BFSSpanningLinks(g *overlay.Graph, avgdist []float64, rng *rand.Rand) ([]Link, int) {
	links := newLinks(g)
	byPID := make([]*bfsNode, g.Len())
	var nodes []*bfsNode

	attach := func(pid, e int) {
		bn := byPID[pid]
		if bn == nil {
			bn = &bfsNode{pid: pid, value: avgdist[pid]}
			byPID[pid] = bn
			nodes = append(nodes, bn)
		}
		bn.links = append(bn.links, e)
	}
	for i, e := range g.Edges {
		attach(e.N0, i)
		attach(e.N1, i)
	}
	for _, bn := range nodes {
		l := bn.links
		rng.Shuffle(len(l), func(i, j int) { l[i], l[j] = l[j], l[i] })
	}
	sort.SliceStable(nodes, func(i, j int) bool { return nodes[i].value > nodes[j].value })

	level := 0
	for _, bn := range nodes {
		if bfsClaim(g, links, byPID, bn, level) {
			level++
		}
	}
	return links, level
}

func bfsClaim(g *overlay.Graph, links []Link, byPID []*bfsNode, root *bfsNode, level int) bool {
	claimed := false
	visited := make([]bool, g.Len())
	visited[root.pid] = true
	queue := []*bfsNode{root}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, e := range cur.links {
			if links[e].Level0 != -1 || links[e].Level1 != -1 {
				continue
			}
			next := g.Edges[e].Other(cur.pid)
			if visited[next] {
				continue
			}
			visited[next] = true
			links[e].Level0 = level
			links[e].Level1 = level
			claimed = true
			queue = append(queue, byPID[next])
		}
	}
	return claimed
}

// DeadlockProneLinks puts every edge on level 0 in both directions. Routes
// are plain shortest paths and may deadlock under load.
func DeadlockProneLinks(g *overlay.Graph) []Link {
	links := newLinks(g)
	for i := range links {
		links[i].Level0 = 0
		links[i].Level1 = 0
	}
	return links
}

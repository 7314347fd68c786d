package router

import (
	"math/rand"
	"sort"

	"github.com/skycoin/dlfree/pkg/overlay"
)

// Ordering chooses the edge preference of SpanningTreeLinks.
type Ordering int

// Edge orderings.
const (
	OrderRandom Ordering = iota
	OrderBand
	OrderHops
	OrderHub
)

func (o Ordering) less() overlay.EdgeLess {
	switch o {
	case OrderBand:
		return overlay.ByWidth
	case OrderHops:
		return overlay.ByLength
	case OrderHub:
		return overlay.ByDegree
	default:
		return nil
	}
}

// SpanningTreeLinks splits the edges of g into successive spanning forests.
// Edges are ranked once by order; every pass then takes, in rank order,
// each remaining edge that does not close a cycle and gives it the pass
// number as level in both directions. Passes continue until every edge has
// a level. The number of passes is returned as the level count.
func SpanningTreeLinks(g *overlay.Graph, order Ordering, rng *rand.Rand) ([]Link, int) {
	pool := make([]int, len(g.Edges))
	for i := range pool {
		pool[i] = i
	}
	if less := order.less(); less != nil {
		sort.SliceStable(pool, func(i, j int) bool {
			return less(g, g.Edges[pool[i]], g.Edges[pool[j]])
		})
	} else {
		rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	}

	links := newLinks(g)
	level := 0
	for len(pool) > 0 {
		uf := newUnionFind(g.Len())
		remain := pool[:0:0]
		for _, e := range pool {
			edge := g.Edges[e]
			if !uf.union(edge.N0, edge.N1) {
				remain = append(remain, e)
				continue
			}
			links[e].Level0 = level
			links[e].Level1 = level
		}
		log.Debugf("spanning forest %d: %d links, %d remaining", level, len(pool)-len(remain), len(remain))
		pool = remain
		level++
	}
	return links, level
}

type unionFind struct {
	parent []int
	rank   []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n), rank: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

func (uf *unionFind) find(x int) int {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]]
		x = uf.parent[x]
	}
	return x
}

// union merges the sets of a and b. It returns false when they already
// share a set.
func (uf *unionFind) union(a, b int) bool {
	ra, rb := uf.find(a), uf.find(b)
	if ra == rb {
		return false
	}
	switch {
	case uf.rank[ra] < uf.rank[rb]:
		uf.parent[ra] = rb
	case uf.rank[ra] > uf.rank[rb]:
		uf.parent[rb] = ra
	default:
		uf.parent[rb] = ra
		uf.rank[ra]++
	}
	return true
}

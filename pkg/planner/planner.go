// Package planner turns an overlay graph and a routing policy into routing
// tables.
package planner

import (
	"fmt"
	"math/rand"

	"github.com/skycoin/skycoin/src/util/logging"

	"github.com/skycoin/dlfree/pkg/dijkstra"
	"github.com/skycoin/dlfree/pkg/overlay"
	"github.com/skycoin/dlfree/pkg/router"
	"github.com/skycoin/dlfree/pkg/routing"
)

var log = logging.MustGetLogger("planner")

// AvgDistFunc publishes the average path cost of node src and returns the
// cost of every node, indexed by pid. Only the bfs policy calls it.
type AvgDistFunc func(src int, own float64) ([]float64, error)

// Links builds the leveled links of g under policy. Every node of a cluster
// must use the same seed so that all of them agree on the links.
func Links(g *overlay.Graph, policy router.Policy, src int, seed int64, avg AvgDistFunc) ([]router.Link, int, error) {
	rng := rand.New(rand.NewSource(seed))

	switch policy {
	case router.UpDownBFS, router.UpDownDFS:
		trav := router.BreadthFirst
		if policy == router.UpDownDFS {
			trav = router.DepthFirst
		}
		links, err := router.UpDownLinks(g, trav, rng)
		return links, router.UpDownLevels, err

	case router.OrderedRandom:
		links, levels := router.SpanningTreeLinks(g, router.OrderRandom, rng)
		return links, levels, nil
	case router.OrderedBand:
		links, levels := router.SpanningTreeLinks(g, router.OrderBand, rng)
		return links, levels, nil
	case router.OrderedHops:
		links, levels := router.SpanningTreeLinks(g, router.OrderHops, rng)
		return links, levels, nil
	case router.OrderedHub:
		links, levels := router.SpanningTreeLinks(g, router.OrderHub, rng)
		return links, levels, nil

	case router.OrderedBFS:
		own, err := AvgDist(g, src)
		if err != nil {
			return nil, 0, err
		}
		all, err := avg(src, own)
		if err != nil {
			return nil, 0, err
		}
		if len(all) != g.Len() {
			return nil, 0, fmt.Errorf("got %d average distances for %d nodes", len(all), g.Len())
		}
		links, levels := router.BFSSpanningLinks(g, all, rng)
		return links, levels, nil

	case router.DeadlockProne:
		return router.DeadlockProneLinks(g), 1, nil

	default:
		return nil, 0, fmt.Errorf("%s: %s", router.ErrUnknownPolicy, policy)
	}
}

// Plan computes the routing table of src.
func Plan(g *overlay.Graph, policy router.Policy, src int, seed int64, avg AvgDistFunc) (*routing.Table, error) {
	links, levels, err := Links(g, policy, src, seed, avg)
	if err != nil {
		return nil, err
	}
	d, err := dijkstra.New(g.Len(), clampLevels(levels))
	if err != nil {
		return nil, err
	}
	log.Debugf("planning %s routes for %d over %d levels", policy, src, levels)
	return d.Run(g, links, src)
}

// PlanAll computes the routing table of every node of g, as a single process
// simulating the whole cluster would.
func PlanAll(g *overlay.Graph, policy router.Policy, seed int64) ([]*routing.Table, int, error) {
	links, levels, err := Links(g, policy, 0, seed, LocalAvgDist(g))
	if err != nil {
		return nil, 0, err
	}
	d, err := dijkstra.New(g.Len(), clampLevels(levels))
	if err != nil {
		return nil, 0, err
	}
	tables := make([]*routing.Table, g.Len())
	for src := range tables {
		if tables[src], err = d.Run(g, links, src); err != nil {
			return nil, 0, err
		}
	}
	return tables, levels, nil
}

// AvgDist sums the shortest path costs from src to every other node,
// ignoring levels.
func AvgDist(g *overlay.Graph, src int) (float64, error) {
	d, err := dijkstra.New(g.Len(), 1)
	if err != nil {
		return 0, err
	}
	rt, err := d.Run(g, router.DeadlockProneLinks(g), src)
	if err != nil {
		return 0, err
	}
	sum := 0.0
	for _, e := range rt.Entries {
		if e != nil {
			sum += float64(e.Metric)
		}
	}
	return sum, nil
}

// LocalAvgDist computes the average path cost of every node in-process.
func LocalAvgDist(g *overlay.Graph) AvgDistFunc {
	return func(_ int, _ float64) ([]float64, error) {
		all := make([]float64, g.Len())
		for pid := range all {
			v, err := AvgDist(g, pid)
			if err != nil {
				return nil, err
			}
			all[pid] = v
		}
		return all, nil
	}
}

// a graph without edges yields no levels, yet single node tables are valid.
func clampLevels(levels int) int {
	if levels < 1 {
		return 1
	}
	return levels
}

// Package dijkstra computes routing tables with a shortest-path search over
// a leveled graph. Every node exists once per level; an edge may only be
// taken into a level at least as high as the current one, so levels never
// decrease along a path.
package dijkstra

import (
	"errors"
	"fmt"

	"github.com/skycoin/dlfree/pkg/overlay"
	"github.com/skycoin/dlfree/pkg/router"
	"github.com/skycoin/dlfree/pkg/routing"
)

// Distance and width bounds of the search.
const (
	MaxDist  = 10000000.0
	MaxWidth = 1000000000.0
)

var (
	// ErrUnreachable is returned when a destination cannot be reached
	// without lowering the level.
	ErrUnreachable = errors.New("destination is unreachable")
	// ErrInvalidEdge is returned for edges without positive length or width.
	ErrInvalidEdge = errors.New("edge length and width must be positive")
	// ErrNoLevels is returned when a search is configured with no level.
	ErrNoLevels = errors.New("at least one level is required")
)

// Dijkstra holds the per-(node, level) state of one search. It is reset on
// every Run and not safe for concurrent use.
type Dijkstra struct {
	nodes  int
	levels int

	dist      [][]float64
	prev      [][]int
	prevLevel [][]int
	reached   [][]bool

	level  [][]int
	metric [][]float64
	width  [][]float64
}

// New allocates a search over n nodes and the given number of levels.
func New(n, levels int) (*Dijkstra, error) {
	if levels < 1 {
		return nil, ErrNoLevels
	}
	d := &Dijkstra{nodes: n, levels: levels}
	d.dist = make([][]float64, n)
	d.prev = make([][]int, n)
	d.prevLevel = make([][]int, n)
	d.reached = make([][]bool, n)
	d.level = make([][]int, n)
	d.metric = make([][]float64, n)
	d.width = make([][]float64, n)
	for i := 0; i < n; i++ {
		d.dist[i] = make([]float64, levels)
		d.prev[i] = make([]int, levels)
		d.prevLevel[i] = make([]int, levels)
		d.reached[i] = make([]bool, levels)
		d.level[i] = make([]int, n)
		d.metric[i] = make([]float64, n)
		d.width[i] = make([]float64, n)
	}
	return d, nil
}

func (d *Dijkstra) reset() {
	for p := 0; p < d.nodes; p++ {
		for l := 0; l < d.levels; l++ {
			d.dist[p][l] = MaxDist
			d.prev[p][l] = -1
			d.prevLevel[p][l] = -1
			d.reached[p][l] = false
		}
		for q := 0; q < d.nodes; q++ {
			d.level[p][q] = -1
			d.metric[p][q] = MaxDist
			d.width[p][q] = 0
		}
	}
}

func (d *Dijkstra) setup(g *overlay.Graph, links []router.Link) error {
	for _, link := range links {
		e := g.Edges[link.Edge]
		if e.Width <= 0 || e.Len <= 0 {
			return fmt.Errorf("%s: %d-%d len %f width %f", ErrInvalidEdge, e.N0, e.N1, e.Len, e.Width)
		}
		d.level[e.N0][e.N1] = link.Level0
		d.level[e.N1][e.N0] = link.Level1
		d.metric[e.N0][e.N1] = e.Len
		d.metric[e.N1][e.N0] = e.Len
		d.width[e.N0][e.N1] = e.Width
		d.width[e.N1][e.N0] = e.Width
	}
	return nil
}

// extractMin marks and returns the closest unreached (node, level). Ties go
// to the lower pid, then the higher level.
func (d *Dijkstra) extractMin() (pid, level int, ok bool) {
	val := MaxDist
	pid, level = -1, -1
	for p := 0; p < d.nodes; p++ {
		for l := d.levels - 1; l >= 0; l-- {
			if d.reached[p][l] {
				continue
			}
			if d.dist[p][l] < val {
				val = d.dist[p][l]
				pid, level = p, l
			}
		}
	}
	if pid == -1 {
		return -1, -1, false
	}
	d.reached[pid][level] = true
	return pid, level, true
}

func (d *Dijkstra) compute(src int) {
	for l := 0; l < d.levels; l++ {
		d.dist[src][l] = 0
	}
	for {
		u, level, ok := d.extractMin()
		if !ok {
			return
		}
		for v := 0; v < d.nodes; v++ {
			if d.level[u][v] < level {
				continue
			}
			alt := d.dist[u][level] + d.metric[u][v]
			for l := d.level[u][v]; l < d.levels; l++ {
				if alt < d.dist[v][l] {
					if d.reached[v][l] {
						panic(fmt.Sprintf("dijkstra: relaxing settled node (%d, %d)", v, l))
					}
					d.dist[v][l] = alt
					d.prev[v][l] = u
					d.prevLevel[v][l] = level
				}
			}
		}
	}
}

func (d *Dijkstra) table(src int) (*routing.Table, error) {
	rt := routing.NewTable(src, d.nodes)
	for dst := 0; dst < d.nodes; dst++ {
		if dst == src {
			continue
		}
		minDist, level := MaxDist, -1
		for l := d.levels - 1; l >= 0; l-- {
			if d.dist[dst][l] < minDist {
				minDist, level = d.dist[dst][l], l
			}
		}
		if level == -1 {
			return nil, fmt.Errorf("%s: dstid: %d is unreachable from srcpid: %d", ErrUnreachable, dst, src)
		}

		var stack []int
		minWidth := MaxWidth
		for node := dst; ; {
			stack = append(stack, node)
			pn, pl := d.prev[node][level], d.prevLevel[node][level]
			if pn == -1 {
				break
			}
			if w := d.width[pn][node]; w < minWidth {
				minWidth = w
			}
			node, level = pn, pl
		}
		path := make([]int, len(stack))
		for i, pid := range stack {
			path[len(stack)-1-i] = pid
		}
		rt.AddEntry(routing.NewEntry(dst, path, int(minDist), int(minWidth)))
	}
	return rt, nil
}

// Run computes the routing table of src over links.
func (d *Dijkstra) Run(g *overlay.Graph, links []router.Link, src int) (*routing.Table, error) {
	if g.Len() != d.nodes {
		return nil, fmt.Errorf("dijkstra sized for %d nodes, graph has %d", d.nodes, g.Len())
	}
	d.reset()
	if err := d.setup(g, links); err != nil {
		return nil, err
	}
	d.compute(src)
	return d.table(src)
}

// Levels returns the level sequence of the entry's path as the search took
// it, for inspection in tests and tooling. It must be called right after
// Run with the same src.
func (d *Dijkstra) Levels(e *routing.Entry) []int {
	levels := make([]int, 0, e.Hops)
	for i := 0; i < e.Hops; i++ {
		levels = append(levels, d.level[e.Path[i]][e.Path[i+1]])
	}
	return levels
}

package dijkstra

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skycoin/dlfree/pkg/overlay"
	"github.com/skycoin/dlfree/pkg/router"
)

func graph(n int, edges ...overlay.Edge) *overlay.Graph {
	g := overlay.New()
	for i := 0; i < n; i++ {
		g.AddNode(string(rune('a' + i)))
	}
	for _, e := range edges {
		g.AddEdge(e.N0, e.N1, e.Len, e.Width)
	}
	return g
}

func ring(n int) *overlay.Graph {
	edges := make([]overlay.Edge, n)
	for i := range edges {
		edges[i] = overlay.Edge{N0: i, N1: (i + 1) % n, Len: 1, Width: 100}
	}
	return graph(n, edges...)
}

func assertMonotonic(t *testing.T, levels []int) {
	for i := 1; i < len(levels); i++ {
		assert.True(t, levels[i-1] <= levels[i], "levels decrease: %v", levels)
	}
}

func TestRunLine(t *testing.T) {
	g := graph(3,
		overlay.Edge{N0: 0, N1: 1, Len: 2, Width: 300},
		overlay.Edge{N0: 1, N1: 2, Len: 3, Width: 200},
	)
	d, err := New(g.Len(), 1)
	require.NoError(t, err)

	rt, err := d.Run(g, router.DeadlockProneLinks(g), 0)
	require.NoError(t, err)
	assert.Equal(t, 0, rt.Src)
	assert.Nil(t, rt.Entry(0))

	e := rt.Entry(2)
	require.NotNil(t, e)
	assert.Equal(t, []int{0, 1, 2}, e.Path)
	assert.Equal(t, 2, e.Hops)
	assert.Equal(t, 5, e.Metric)
	assert.Equal(t, 200, e.Width)

	e = rt.Entry(1)
	assert.Equal(t, []int{0, 1}, e.Path)
	assert.Equal(t, 300, e.Width)
}

func TestRunLevelConstraint(t *testing.T) {
	g := graph(3,
		overlay.Edge{N0: 0, N1: 1, Len: 1, Width: 1},
		overlay.Edge{N0: 1, N1: 2, Len: 1, Width: 1},
		overlay.Edge{N0: 0, N1: 2, Len: 10, Width: 1},
	)
	links := []router.Link{
		{Edge: 0, Level0: 1, Level1: 1},
		{Edge: 1, Level0: 0, Level1: 0},
		{Edge: 2, Level0: 0, Level1: 0},
	}
	d, err := New(g.Len(), 2)
	require.NoError(t, err)

	rt, err := d.Run(g, links, 0)
	require.NoError(t, err)
	// 0->1 enters level 1 and 1->2 would drop back to level 0.
	assert.Equal(t, []int{0, 2}, rt.Entry(2).Path)
	assert.Equal(t, 10, rt.Entry(2).Metric)

	// 2->1->0 climbs from level 0 to 1.
	rt, err = d.Run(g, links, 2)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 1, 0}, rt.Entry(0).Path)
	assert.Equal(t, []int{0, 1}, d.Levels(rt.Entry(0)))
}

func TestRunDisabledDirection(t *testing.T) {
	g := graph(3,
		overlay.Edge{N0: 0, N1: 1, Len: 1, Width: 1},
		overlay.Edge{N0: 1, N1: 2, Len: 1, Width: 1},
		overlay.Edge{N0: 0, N1: 2, Len: 1, Width: 1},
	)
	links := router.DeadlockProneLinks(g)
	links[2].Level0 = -1

	d, err := New(g.Len(), 1)
	require.NoError(t, err)
	rt, err := d.Run(g, links, 0)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, rt.Entry(2).Path)

	rt, err = d.Run(g, links, 2)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 0}, rt.Entry(0).Path)
}

func TestRunUpDownRing(t *testing.T) {
	for _, trav := range []router.Traversal{router.BreadthFirst, router.DepthFirst} {
		g := ring(6)
		links, err := router.UpDownLinks(g, trav, rand.New(rand.NewSource(7)))
		require.NoError(t, err)
		d, err := New(g.Len(), router.UpDownLevels)
		require.NoError(t, err)

		for src := 0; src < g.Len(); src++ {
			rt, err := d.Run(g, links, src)
			require.NoError(t, err)
			for dst := 0; dst < g.Len(); dst++ {
				if dst == src {
					continue
				}
				e := rt.Entry(dst)
				require.NotNil(t, e)
				assert.Equal(t, src, e.Path[0])
				assert.Equal(t, dst, e.Path[e.Hops])
				assert.Equal(t, e.Hops, e.Metric)
				assert.Equal(t, 100, e.Width)
				assertMonotonic(t, d.Levels(e))
			}
		}
	}
}

func TestRunSpanningForests(t *testing.T) {
	g := graph(4,
		overlay.Edge{N0: 0, N1: 1, Len: 1, Width: 10},
		overlay.Edge{N0: 1, N1: 2, Len: 1, Width: 20},
		overlay.Edge{N0: 2, N1: 3, Len: 1, Width: 30},
		overlay.Edge{N0: 3, N1: 0, Len: 1, Width: 40},
		overlay.Edge{N0: 0, N1: 2, Len: 1, Width: 50},
	)
	links, levels := router.SpanningTreeLinks(g, router.OrderBand, nil)
	d, err := New(g.Len(), levels)
	require.NoError(t, err)
	for src := 0; src < g.Len(); src++ {
		rt, err := d.Run(g, links, src)
		require.NoError(t, err)
		for _, e := range rt.Entries {
			if e != nil {
				assertMonotonic(t, d.Levels(e))
			}
		}
	}
}

func TestRunErrors(t *testing.T) {
	_, err := New(3, 0)
	assert.Equal(t, ErrNoLevels, err)

	g := graph(3, overlay.Edge{N0: 0, N1: 1, Len: 1, Width: 1})
	d, err := New(g.Len(), 1)
	require.NoError(t, err)
	_, err = d.Run(g, router.DeadlockProneLinks(g), 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dstid: 2 is unreachable from srcpid: 0")

	g = graph(2, overlay.Edge{N0: 0, N1: 1, Len: 1, Width: 0})
	d, err = New(g.Len(), 1)
	require.NoError(t, err)
	_, err = d.Run(g, router.DeadlockProneLinks(g), 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrInvalidEdge.Error())

	_, err = d.Run(ring(3), nil, 0)
	require.Error(t, err)
}

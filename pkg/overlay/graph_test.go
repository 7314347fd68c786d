package overlay

import (
	"math/rand"
	"os"
	"sort"
	"testing"

	"github.com/skycoin/skycoin/src/util/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skycoin/dlfree/pkg/topology"
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

func hosts(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = string(rune('a' + i))
	}
	return out
}

func TestGraph(t *testing.T) {
	g := New()
	a, b, c := g.AddNode("a"), g.AddNode("b"), g.AddNode("c")
	assert.Equal(t, []int{0, 1, 2}, []int{a, b, c})

	e0 := g.AddEdge(a, b, 1, 10)
	e1 := g.AddEdge(b, c, 2, 20)
	assert.Equal(t, 0, e0)
	assert.Equal(t, 1, e1)

	assert.Equal(t, 2, g.Degree(b))
	assert.Equal(t, []int{a, c}, g.Neighbors(b))
	assert.Equal(t, c, g.Edges[e1].Other(b))
	assert.Equal(t, []string{"a", "b", "c"}, g.Names())

	pid, ok := g.NodeByName("c")
	require.True(t, ok)
	assert.Equal(t, c, pid)
	_, ok = g.NodeByName("z")
	assert.False(t, ok)
	_, ok = g.NodeByPID(3)
	assert.False(t, ok)

	assert.Panics(t, func() { g.AddEdge(a, 9, 1, 1) })
}

func TestAddConn(t *testing.T) {
	top := topology.Star(hosts(2), 100)
	g := New()
	g.AddNode("a")
	g.AddNode("b")
	g.AddNode("zz")

	e, err := g.AddConn(top, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, Edge{N0: 0, N1: 1, Len: 2, Width: 100}, g.Edges[e])

	_, err = g.AddConn(top, 0, 2)
	assert.Error(t, err)
}

func TestEdgeOrders(t *testing.T) {
	g := New()
	for i := 0; i < 4; i++ {
		g.AddNode(hosts(4)[i])
	}
	g.AddEdge(0, 1, 3, 10)
	g.AddEdge(1, 2, 1, 30)
	g.AddEdge(1, 3, 2, 20)
	g.AddEdge(2, 3, 4, 40)

	order := func(less EdgeLess) []int {
		idx := []int{0, 1, 2, 3}
		sort.SliceStable(idx, func(i, j int) bool { return less(g, g.Edges[idx[i]], g.Edges[idx[j]]) })
		return idx
	}
	assert.Equal(t, []int{3, 1, 2, 0}, order(ByWidth))
	assert.Equal(t, []int{1, 2, 0, 3}, order(ByLength))
	// degree sums: 0-1: 4, 1-2: 5, 1-3: 5, 2-3: 4
	assert.Equal(t, []int{1, 2, 0, 3}, order(ByDegree))
}

func TestSimulateRing(t *testing.T) {
	g, err := SimulateRing(topology.Star(hosts(5), 100))
	require.NoError(t, err)
	require.Len(t, g.Edges, 5)
	for pid := 0; pid < 5; pid++ {
		assert.Equal(t, 2, g.Degree(pid))
	}

	g, err = SimulateRing(topology.Star(hosts(2), 100))
	require.NoError(t, err)
	assert.Len(t, g.Edges, 1)
}

func TestSimulateRandom(t *testing.T) {
	top := topology.Star(hosts(6), 100)

	g, err := SimulateRandom(top, 1, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	assert.Len(t, g.Edges, 15)

	g, err = SimulateRandom(top, 0, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	assert.Len(t, g.Edges, 0)

	g1, err := SimulateRandom(top, 0.5, rand.New(rand.NewSource(3)))
	require.NoError(t, err)
	g2, err := SimulateRandom(top, 0.5, rand.New(rand.NewSource(3)))
	require.NoError(t, err)
	assert.Equal(t, g1.Edges, g2.Edges)
}

func TestLocalityPlan(t *testing.T) {
	dist := []float64{5, 1, 4, 2, 3, 6, 7}
	peers := []int{10, 11, 12, 13, 14, 15, 16}

	// With alpha >= peers the single range is partial, each peer is kept
	// with probability alpha/lim = 1.
	chosen := LocalityPlan(dist, peers, 8, rand.New(rand.NewSource(1)))
	assert.ElementsMatch(t, peers, chosen)

	// The first range of a single peer is complete and holds the nearest.
	chosen = LocalityPlan(dist, peers, 1, rand.New(rand.NewSource(1)))
	require.NotEmpty(t, chosen)
	assert.Equal(t, 11, chosen[0])

	assert.Panics(t, func() { LocalityPlan(dist, peers, 0, rand.New(rand.NewSource(1))) })
}

func TestSimulateLocalityAware(t *testing.T) {
	top := topology.Star(hosts(8), 100)
	g1, err := SimulateLocalityAware(top, 2, 1)
	require.NoError(t, err)
	g2, err := SimulateLocalityAware(top, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, g1.Edges, g2.Edges)

	for pid := 0; pid < g1.Len(); pid++ {
		assert.True(t, g1.Degree(pid) >= 2, "node %d has degree %d", pid, g1.Degree(pid))
	}
}

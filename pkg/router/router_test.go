package router

import (
	"math/rand"
	"os"
	"testing"

	"github.com/skycoin/skycoin/src/util/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skycoin/dlfree/pkg/overlay"
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

func ring(n int) *overlay.Graph {
	g := overlay.New()
	for i := 0; i < n; i++ {
		g.AddNode(string(rune('a' + i)))
	}
	for i := 0; i < n; i++ {
		g.AddEdge(i, (i+1)%n, float64(i+1), 100)
	}
	return g
}

func complete(n int) *overlay.Graph {
	g := overlay.New()
	for i := 0; i < n; i++ {
		g.AddNode(string(rune('a' + i)))
	}
	w := 10.0
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			g.AddEdge(i, j, 1, w)
			w += 10
		}
	}
	return g
}

func TestParsePolicy(t *testing.T) {
	for _, p := range Policies() {
		got, err := ParsePolicy(p.String())
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}

	_, err := ParsePolicy("shortest")
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrUnknownPolicy.Error())

	var p Policy
	require.NoError(t, p.Set("updown-dfs"))
	assert.Equal(t, UpDownDFS, p)
	assert.Equal(t, "Policy(42)", Policy(42).String())
}

func assertForests(t *testing.T, g *overlay.Graph, links []Link, levels int) {
	for l := 0; l < levels; l++ {
		uf := newUnionFind(g.Len())
		count := 0
		for _, link := range links {
			if link.Level0 != l {
				continue
			}
			assert.Equal(t, link.Level0, link.Level1)
			e := g.Edges[link.Edge]
			assert.True(t, uf.union(e.N0, e.N1), "level %d has a cycle", l)
			count++
		}
		assert.NotZero(t, count, "level %d is empty", l)
	}
	for _, link := range links {
		assert.True(t, link.Level0 >= 0 && link.Level0 < levels)
	}
}

func TestSpanningTreeLinks(t *testing.T) {
	g := complete(5)
	for _, order := range []Ordering{OrderRandom, OrderBand, OrderHops, OrderHub} {
		links, levels := SpanningTreeLinks(g, order, rand.New(rand.NewSource(1)))
		require.Len(t, links, len(g.Edges))
		assert.True(t, levels <= len(g.Edges))
		assertForests(t, g, links, levels)
	}

	t.Run("band_prefers_wide", func(t *testing.T) {
		links, _ := SpanningTreeLinks(g, OrderBand, rand.New(rand.NewSource(1)))
		widest := 0
		for i, e := range g.Edges {
			if e.Width > g.Edges[widest].Width {
				widest = i
			}
		}
		assert.Equal(t, 0, links[widest].Level0)
	})

	t.Run("ring", func(t *testing.T) {
		g := ring(4)
		links, levels := SpanningTreeLinks(g, OrderHops, nil)
		assert.Equal(t, 2, levels)
		assert.Equal(t, 1, links[3].Level0) // longest edge closes the cycle
	})
}

func TestUpDownLinks(t *testing.T) {
	for _, trav := range []Traversal{BreadthFirst, DepthFirst} {
		g := ring(6)
		links, err := UpDownLinks(g, trav, rand.New(rand.NewSource(3)))
		require.NoError(t, err)
		for _, l := range links {
			assert.ElementsMatch(t, []int{0, 1}, []int{l.Level0, l.Level1})
		}
	}

	t.Run("disconnected", func(t *testing.T) {
		g := ring(3)
		g.AddNode("z")
		_, err := UpDownLinks(g, BreadthFirst, rand.New(rand.NewSource(1)))
		require.Error(t, err)
	})

	t.Run("toward", func(t *testing.T) {
		g := ring(3)
		links, err := UpDownLinks(g, DepthFirst, rand.New(rand.NewSource(1)))
		require.NoError(t, err)
		for _, l := range links {
			e := g.Edges[l.Edge]
			assert.Equal(t, l.Level0, l.Toward(g, e.N1))
			assert.Equal(t, l.Level1, l.Toward(g, e.N0))
		}
	})
}

func TestBFSSpanningLinks(t *testing.T) {
	g := ring(4)
	avgdist := []float64{1, 4, 2, 3}
	links, levels := BFSSpanningLinks(g, avgdist, rand.New(rand.NewSource(1)))
	assert.Equal(t, 2, levels)
	assertForests(t, g, links, levels)

	zero := 0
	for _, l := range links {
		if l.Level0 == 0 {
			zero++
		}
	}
	assert.Equal(t, 3, zero)

	t.Run("tree", func(t *testing.T) {
		g := overlay.New()
		for _, n := range []string{"a", "b", "c", "d"} {
			g.AddNode(n)
		}
		g.AddEdge(0, 1, 1, 1)
		g.AddEdge(0, 2, 1, 1)
		g.AddEdge(2, 3, 1, 1)
		_, levels := BFSSpanningLinks(g, []float64{0, 0, 0, 0}, rand.New(rand.NewSource(1)))
		assert.Equal(t, 1, levels)
	})
}

func TestDeadlockProneLinks(t *testing.T) {
	g := complete(4)
	for _, l := range DeadlockProneLinks(g) {
		assert.Equal(t, 0, l.Level0)
		assert.Equal(t, 0, l.Level1)
	}
}

// Package topology describes the tree-shaped physical network hosts live in.
// It is used to derive the length and bandwidth of overlay connections.
package topology

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"
)

// RandomizeRange is the relative range RandomizeWidth perturbs widths by.
const RandomizeRange = 0.1

const (
	rootName     = "ROOT"
	switchPrefix = "SW"
)

var (
	// ErrUnknownHost is returned when a traversal endpoint is not in the topology.
	ErrUnknownHost = errors.New("unknown host")
	// ErrNoPath is returned when two hosts are not connected.
	ErrNoPath = errors.New("no path between hosts")
)

// Node is a host, a switch or the root of the tree.
type Node struct {
	Name   string
	Parent int // -1 for the root
	Edges  []int
}

// Edge is a physical link between a node and its parent.
type Edge struct {
	N0, N1 int
	Len    float64
	Width  float64
}

// Topology is an arena of nodes and edges forming a tree.
type Topology struct {
	Nodes  []Node
	Edges  []Edge
	byName map[string]int
}

// New returns an empty Topology.
func New() *Topology {
	return &Topology{byName: make(map[string]int)}
}

// AddNode adds a node without a link to its parent and returns its index.
func (t *Topology) AddNode(name string, parent int) int {
	t.Nodes = append(t.Nodes, Node{Name: name, Parent: parent})
	idx := len(t.Nodes) - 1
	if _, ok := t.byName[name]; !ok {
		t.byName[name] = idx
	}
	return idx
}

// AddEdge adds a child node under parent, linked with the given length and
// width, and returns the child's index.
func (t *Topology) AddEdge(parent int, name string, length, width float64) int {
	child := t.AddNode(name, parent)
	t.Edges = append(t.Edges, Edge{N0: parent, N1: child, Len: length, Width: width})
	e := len(t.Edges) - 1
	t.Nodes[parent].Edges = append(t.Nodes[parent].Edges, e)
	t.Nodes[child].Edges = append(t.Nodes[child].Edges, e)
	return child
}

// Lookup returns the index of the node called name.
func (t *Topology) Lookup(name string) (int, bool) {
	idx, ok := t.byName[name]
	return idx, ok
}

// Hosts returns the names of all leaf hosts, in document order.
func (t *Topology) Hosts() []string {
	var hosts []string
	for _, n := range t.Nodes {
		if strings.HasPrefix(n.Name, switchPrefix) || strings.HasPrefix(n.Name, rootName) {
			continue
		}
		hosts = append(hosts, n.Name)
	}
	return hosts
}

// RandomizeWidth scales every edge width by a random factor in
// [1-RandomizeRange, 1+RandomizeRange].
func (t *Topology) RandomizeWidth(rng *rand.Rand) {
	for i := range t.Edges {
		ratio := rng.Float64()*(2*RandomizeRange) + (1 - RandomizeRange)
		t.Edges[i].Width *= ratio
	}
}

// Traverse returns the node names on the path from src to dst, the summed
// length and the minimum width along it.
func (t *Topology) Traverse(src, dst string) (path []string, length, width float64, err error) {
	from, ok := t.Lookup(src)
	if !ok {
		return nil, 0, 0, fmt.Errorf("%s: %s", ErrUnknownHost, src)
	}
	to, ok := t.Lookup(dst)
	if !ok {
		return nil, 0, 0, fmt.Errorf("%s: %s", ErrUnknownHost, dst)
	}

	visited := make([]bool, len(t.Nodes))
	idxs := []int{from}
	visited[from] = true

	var walk func(cur int, length, width float64) (float64, float64, bool)
	walk = func(cur int, length, width float64) (float64, float64, bool) {
		if cur == to {
			return length, width, true
		}
		for _, e := range t.Nodes[cur].Edges {
			edge := t.Edges[e]
			next := edge.N0
			if next == cur {
				next = edge.N1
			}
			if visited[next] {
				continue
			}
			visited[next] = true
			idxs = append(idxs, next)
			if l, w, ok := walk(next, length+edge.Len, math.Min(width, edge.Width)); ok {
				return l, w, true
			}
			idxs = idxs[:len(idxs)-1]
		}
		return 0, 0, false
	}

	length, width, ok = walk(from, 0, math.MaxFloat32)
	if !ok {
		return nil, 0, 0, fmt.Errorf("%s: %s -> %s", ErrNoPath, src, dst)
	}

	path = make([]string, len(idxs))
	for i, idx := range idxs {
		path[i] = t.Nodes[idx].Name
	}
	return path, length, width, nil
}

// String prints the tree, one node per line, indented by depth.
func (t *Topology) String() string {
	var b strings.Builder
	if len(t.Nodes) == 0 {
		return ""
	}
	var visit func(idx, depth int)
	visit = func(idx, depth int) {
		fmt.Fprintf(&b, "%s[%s(%d)]\n", strings.Repeat("  ", depth), t.Nodes[idx].Name, depth)
		for _, e := range t.Nodes[idx].Edges {
			edge := t.Edges[e]
			child := edge.N0
			if child == idx {
				child = edge.N1
			}
			if child == t.Nodes[idx].Parent {
				continue
			}
			visit(child, depth+1)
		}
	}
	visit(0, 0)
	return b.String()
}

// Star returns a topology where every host hangs off a single switch with a
// link of the given width.
func Star(hosts []string, width float64) *Topology {
	t := New()
	root := t.AddNode(rootName, -1)
	sw := t.AddEdge(root, switchPrefix+":0", defaultLen, width)
	for _, h := range hosts {
		t.AddEdge(sw, h, defaultLen, width)
	}
	return t
}

// Package overlay holds the graph of direct connections between nodes.
package overlay

import (
	"fmt"
)

// Topology resolves the physical path between two hosts. It reports the
// summed length and the bottleneck width of that path.
type Topology interface {
	Traverse(src, dst string) (path []string, length, width float64, err error)
}

// Node is a process taking part in the overlay. Edges holds indices into
// Graph.Edges.
type Node struct {
	PID   int
	Name  string
	Edges []int
}

// Edge is a direct connection between the nodes with pids N0 and N1.
type Edge struct {
	N0, N1 int
	Len    float64
	Width  float64
}

// Other returns the endpoint of e that is not pid.
func (e Edge) Other(pid int) int {
	if e.N0 == pid {
		return e.N1
	}
	return e.N0
}

// Graph owns all nodes and edges. Node pids are dense: Nodes[i].PID == i.
type Graph struct {
	Nodes []Node
	Edges []Edge
}

// New returns an empty Graph.
func New() *Graph {
	return &Graph{}
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.Nodes)
}

// AddNode appends a node and returns its pid.
func (g *Graph) AddNode(name string) int {
	pid := len(g.Nodes)
	g.Nodes = append(g.Nodes, Node{PID: pid, Name: name})
	return pid
}

// NodeByName returns the pid of the node called name.
func (g *Graph) NodeByName(name string) (int, bool) {
	for _, n := range g.Nodes {
		if n.Name == name {
			return n.PID, true
		}
	}
	return -1, false
}

// NodeByPID returns the node with the given pid.
func (g *Graph) NodeByPID(pid int) (*Node, bool) {
	if pid < 0 || pid >= len(g.Nodes) {
		return nil, false
	}
	return &g.Nodes[pid], true
}

// AddEdge connects n0 and n1 and returns the edge index.
func (g *Graph) AddEdge(n0, n1 int, length, width float64) int {
	if _, ok := g.NodeByPID(n0); !ok {
		panic(fmt.Sprintf("overlay: unknown node %d", n0))
	}
	if _, ok := g.NodeByPID(n1); !ok {
		panic(fmt.Sprintf("overlay: unknown node %d", n1))
	}
	g.Edges = append(g.Edges, Edge{N0: n0, N1: n1, Len: length, Width: width})
	e := len(g.Edges) - 1
	g.Nodes[n0].Edges = append(g.Nodes[n0].Edges, e)
	g.Nodes[n1].Edges = append(g.Nodes[n1].Edges, e)
	return e
}

// AddConn connects src and dst with the length and width of their physical
// path in top.
func (g *Graph) AddConn(top Topology, src, dst int) (int, error) {
	_, length, width, err := top.Traverse(g.Nodes[src].Name, g.Nodes[dst].Name)
	if err != nil {
		return -1, err
	}
	return g.AddEdge(src, dst, length, width), nil
}

// Degree returns the number of edges incident to pid.
func (g *Graph) Degree(pid int) int {
	return len(g.Nodes[pid].Edges)
}

// Neighbors returns the pids adjacent to pid, in edge order.
func (g *Graph) Neighbors(pid int) []int {
	out := make([]int, 0, len(g.Nodes[pid].Edges))
	for _, e := range g.Nodes[pid].Edges {
		out = append(out, g.Edges[e].Other(pid))
	}
	return out
}

// Names returns node names indexed by pid.
func (g *Graph) Names() []string {
	names := make([]string, len(g.Nodes))
	for i, n := range g.Nodes {
		names[i] = n.Name
	}
	return names
}

// EdgeLess orders edges by a policy preference: it reports whether a comes
// before b.
type EdgeLess func(g *Graph, a, b Edge) bool

// ByWidth puts wider edges first.
func ByWidth(_ *Graph, a, b Edge) bool {
	return a.Width > b.Width
}

// ByLength puts shorter edges first.
func ByLength(_ *Graph, a, b Edge) bool {
	return a.Len < b.Len
}

// ByDegree puts edges whose endpoints have more connections (hubs) first.
func ByDegree(g *Graph, a, b Edge) bool {
	return g.Degree(a.N0)+g.Degree(a.N1) > g.Degree(b.N0)+g.Degree(b.N1)
}

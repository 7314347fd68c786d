// Package router assigns directed routing levels to overlay edges. The level
// assignment constrains leveled shortest-path search so that the resulting
// routes cannot form cyclic store-and-forward dependencies.
package router

import (
	"errors"
	"fmt"
	"strings"

	"github.com/skycoin/dlfree/pkg/overlay"
)

// ErrUnknownPolicy is returned by ParsePolicy for unrecognised names.
var ErrUnknownPolicy = errors.New("unknown routing policy")

// Policy selects how edges are split into levels.
type Policy int

// Routing policies.
const (
	UpDownBFS     Policy = iota // conventional up/down routing, breadth-first ranks
	UpDownDFS                   // up/down routing, depth-first ranks (nearest first)
	OrderedRandom               // ordered links, random edge order
	OrderedBand                 // ordered links, wide edges first
	OrderedHops                 // ordered links, short edges first
	OrderedHub                  // ordered links, edges between hubs first
	OrderedBFS                  // ordered links, breadth-first from central nodes
	DeadlockProne               // single level, shortest paths, may deadlock
)

var policyNames = []string{
	UpDownBFS:     "updown",
	UpDownDFS:     "updown-dfs",
	OrderedRandom: "random",
	OrderedBand:   "band",
	OrderedHops:   "hops",
	OrderedHub:    "hub",
	OrderedBFS:    "bfs",
	DeadlockProne: "deadlock",
}

// Policies returns all policies in declaration order.
func Policies() []Policy {
	out := make([]Policy, len(policyNames))
	for i := range policyNames {
		out[i] = Policy(i)
	}
	return out
}

// PolicyNames returns the accepted policy names.
func PolicyNames() []string {
	return append([]string(nil), policyNames...)
}

// ParsePolicy maps a policy name to its Policy.
func ParsePolicy(s string) (Policy, error) {
	for i, name := range policyNames {
		if name == s {
			return Policy(i), nil
		}
	}
	return -1, fmt.Errorf("%s: '%s' (allowed: '%s')", ErrUnknownPolicy, s, strings.Join(policyNames, "', '"))
}

func (p Policy) String() string {
	if p < 0 || int(p) >= len(policyNames) {
		return fmt.Sprintf("Policy(%d)", int(p))
	}
	return policyNames[p]
}

// Set implements pflag.Value for Policy.
func (p *Policy) Set(s string) error {
	v, err := ParsePolicy(s)
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Type implements pflag.Value for Policy.
func (p Policy) Type() string {
	return "router.Policy"
}

// Link is an overlay edge with one level per traversal direction: Level0
// applies when moving from the edge's N0 to N1, Level1 the other way. A
// level of -1 means the direction is unusable.
type Link struct {
	Edge   int
	Level0 int
	Level1 int
}

// Toward returns the level of the link when entering node `to`.
func (l Link) Toward(g *overlay.Graph, to int) int {
	if g.Edges[l.Edge].N1 == to {
		return l.Level0
	}
	return l.Level1
}

func newLinks(g *overlay.Graph) []Link {
	links := make([]Link, len(g.Edges))
	for i := range links {
		links[i] = Link{Edge: i, Level0: -1, Level1: -1}
	}
	return links
}

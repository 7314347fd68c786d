// Package rendezvous lets the members of a cluster discover each other and
// run small collective exchanges before and around the overlay setup.
package rendezvous

import (
	"context"
	"fmt"
)

// Endpoint is the address a member listens on.
type Endpoint struct {
	Addr string `json:"addr"`
	Port int    `json:"port"`
}

// String implements fmt.Stringer for Endpoint.
func (ep Endpoint) String() string {
	return fmt.Sprintf("%s:%d", ep.Addr, ep.Port)
}

// Rendezvous is one member's view of the cluster. Every exchange is
// collective: it returns once all members issued the same call, and members
// must issue calls in the same order.
type Rendezvous interface {
	// Index returns the member's ordinal in [0, Size).
	Index() int
	Size() int
	Hostname() string

	// ExchangeHostnames returns the hostname of every member, by index.
	ExchangeHostnames(ctx context.Context) ([]string, error)
	// Sync is a barrier.
	Sync(ctx context.Context) error
	// ExchangeEndpoints publishes ep and returns the endpoint of every
	// member, by index.
	ExchangeEndpoints(ctx context.Context, ep Endpoint) ([]Endpoint, error)
	// Gossip publishes pairs and returns the pairs of all members, in member
	// order.
	Gossip(ctx context.Context, pairs [][2]int) ([][2]int, error)
	// GossipFloat publishes v and returns the value of every member.
	GossipFloat(ctx context.Context, v float64) ([]float64, error)
	// GossipRow publishes row and returns the row of every member.
	GossipRow(ctx context.Context, row []int) ([][]int, error)
}

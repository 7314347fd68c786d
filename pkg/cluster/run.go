package cluster

import (
	"context"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/skycoin/dlfree/pkg/comm"
	"github.com/skycoin/dlfree/pkg/rendezvous"
)

// MemberFunc is the program run by every member of an in-process cluster.
type MemberFunc func(ctx context.Context, m *Manager) error

// Run starts one comm node per host in this process, node i on hosts[i],
// and runs fn for each of them concurrently. It returns the first error of
// any member; the others are then unblocked and every node is closed.
func Run(ctx context.Context, hosts []string, cfg comm.Config, fn MemberFunc) error {
	nodes := make([]*comm.Node, 0, len(hosts))
	defer func() {
		for _, n := range nodes {
			if err := n.Close(); err != nil {
				log.WithError(err).Warnf("failed to close node %d", n.ID())
			}
		}
	}()
	for i := range hosts {
		n, err := comm.New(i, cfg)
		if err != nil {
			return errors.Wrapf(err, "failed to start node %d", i)
		}
		nodes = append(nodes, n)
	}

	hub := rendezvous.NewHub(len(hosts))
	g, gctx := errgroup.WithContext(ctx)

	// gctx is also canceled once Wait returns.
	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		<-gctx.Done()
		// wake members blocked in the hub or in node receives.
		hub.Close()
		for _, n := range nodes {
			n.Close() // nolint: errcheck
		}
	}()

	for i, host := range hosts {
		rv, node := hub.Member(i, host), nodes[i]
		g.Go(func() error {
			m, err := New(gctx, rv, node)
			if err != nil {
				return err
			}
			m.SetIfacePrio("127.")
			return fn(gctx, m)
		})
	}
	err := g.Wait()
	<-watchDone
	return err
}

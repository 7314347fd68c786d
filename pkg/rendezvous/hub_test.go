package rendezvous

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func members(n int) (*Hub, []Rendezvous) {
	h := NewHub(n)
	ms := make([]Rendezvous, n)
	for i := range ms {
		ms[i] = h.Member(i, fmt.Sprintf("host%d", i))
	}
	return h, ms
}

// each runs fn for every member concurrently.
func each(t *testing.T, ms []Rendezvous, fn func(m Rendezvous) error) {
	var wg sync.WaitGroup
	errs := make([]error, len(ms))
	for i, m := range ms {
		wg.Add(1)
		go func(i int, m Rendezvous) {
			defer wg.Done()
			errs[i] = fn(m)
		}(i, m)
	}
	wg.Wait()
	for i, err := range errs {
		require.NoError(t, err, "member %d", i)
	}
}

func TestHubExchanges(t *testing.T) {
	_, ms := members(4)
	ctx := context.Background()

	each(t, ms, func(m Rendezvous) error {
		names, err := m.ExchangeHostnames(ctx)
		if err != nil {
			return err
		}
		assert.Equal(t, []string{"host0", "host1", "host2", "host3"}, names)

		if err := m.Sync(ctx); err != nil {
			return err
		}

		eps, err := m.ExchangeEndpoints(ctx, Endpoint{Addr: "127.0.0.1", Port: 1000 + m.Index()})
		if err != nil {
			return err
		}
		for i, ep := range eps {
			assert.Equal(t, 1000+i, ep.Port)
		}

		var pairs [][2]int
		if m.Index() > 0 {
			pairs = [][2]int{{0, m.Index()}}
		}
		all, err := m.Gossip(ctx, pairs)
		if err != nil {
			return err
		}
		assert.Equal(t, [][2]int{{0, 1}, {0, 2}, {0, 3}}, all)

		fs, err := m.GossipFloat(ctx, float64(m.Index())/2)
		if err != nil {
			return err
		}
		assert.Equal(t, []float64{0, 0.5, 1, 1.5}, fs)

		rows, err := m.GossipRow(ctx, []int{m.Index(), m.Size()})
		if err != nil {
			return err
		}
		assert.Equal(t, []int{3, 4}, rows[3])
		return nil
	})
}

func TestHubSingleMember(t *testing.T) {
	_, ms := members(1)
	names, err := ms[0].ExchangeHostnames(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"host0"}, names)
	assert.NoError(t, ms[0].Sync(context.Background()))
}

func TestHubMismatch(t *testing.T) {
	h, ms := members(2)
	defer h.Close()

	errs := make(chan error, 1)
	go func() { errs <- ms[0].Sync(context.Background()) }()
	time.Sleep(10 * time.Millisecond)

	_, err := ms[1].ExchangeHostnames(context.Background())
	assert.Error(t, err)
	h.Close()
	assert.Equal(t, ErrClosed, <-errs)
}

func TestHubCancel(t *testing.T) {
	h, ms := members(2)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Equal(t, context.DeadlineExceeded, ms[0].Sync(ctx))

	h.Close()
	assert.Equal(t, ErrClosed, ms[1].Sync(context.Background()))
}

func TestHubMemberRange(t *testing.T) {
	h := NewHub(2)
	assert.Panics(t, func() { h.Member(2, "x") })
	assert.Panics(t, func() { NewHub(0) })
}

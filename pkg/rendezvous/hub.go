package rendezvous

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrClosed is returned by exchanges on a closed Hub.
	ErrClosed = errors.New("rendezvous: hub is closed")
	// ErrMismatch is returned when members disagree on the exchange they run.
	ErrMismatch = errors.New("rendezvous: members issued different exchanges")
)

type round struct {
	op      string
	vals    []interface{}
	arrived int
	done    chan struct{}
}

// Hub is an in-process rendezvous point for members of a single cluster.
type Hub struct {
	size int

	mu     sync.Mutex
	cur    *round
	closed chan struct{}
	once   sync.Once
}

// NewHub returns a hub for size members.
func NewHub(size int) *Hub {
	if size <= 0 {
		panic(fmt.Sprintf("rendezvous: invalid hub size %d", size))
	}
	return &Hub{size: size, closed: make(chan struct{})}
}

// Member returns the handle of member idx.
func (h *Hub) Member(idx int, hostname string) Rendezvous {
	if idx < 0 || idx >= h.size {
		panic(fmt.Sprintf("rendezvous: member %d out of [0, %d)", idx, h.size))
	}
	return &member{hub: h, idx: idx, hostname: hostname}
}

// Close aborts pending and future exchanges.
func (h *Hub) Close() {
	h.once.Do(func() { close(h.closed) })
}

// gather publishes v for idx and returns the values of all members once
// every one of them has arrived.
func (h *Hub) gather(ctx context.Context, op string, idx int, v interface{}) ([]interface{}, error) {
	h.mu.Lock()
	select {
	case <-h.closed:
		h.mu.Unlock()
		return nil, ErrClosed
	default:
	}
	if h.cur == nil {
		h.cur = &round{op: op, vals: make([]interface{}, h.size), done: make(chan struct{})}
	}
	r := h.cur
	if r.op != op {
		h.mu.Unlock()
		return nil, fmt.Errorf("%s: %s and %s", ErrMismatch, r.op, op)
	}
	if r.vals[idx] != nil {
		h.mu.Unlock()
		panic(fmt.Sprintf("rendezvous: member %d joined %s twice", idx, op))
	}
	r.vals[idx] = v
	r.arrived++
	if r.arrived == h.size {
		h.cur = nil
		close(r.done)
	}
	h.mu.Unlock()

	select {
	case <-r.done:
		return r.vals, nil
	case <-h.closed:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type member struct {
	hub      *Hub
	idx      int
	hostname string
}

func (m *member) Index() int       { return m.idx }
func (m *member) Size() int        { return m.hub.size }
func (m *member) Hostname() string { return m.hostname }

func (m *member) ExchangeHostnames(ctx context.Context) ([]string, error) {
	vals, err := m.hub.gather(ctx, "hostnames", m.idx, m.hostname)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = v.(string)
	}
	return out, nil
}

func (m *member) Sync(ctx context.Context) error {
	_, err := m.hub.gather(ctx, "sync", m.idx, struct{}{})
	return err
}

func (m *member) ExchangeEndpoints(ctx context.Context, ep Endpoint) ([]Endpoint, error) {
	vals, err := m.hub.gather(ctx, "endpoints", m.idx, ep)
	if err != nil {
		return nil, err
	}
	out := make([]Endpoint, len(vals))
	for i, v := range vals {
		out[i] = v.(Endpoint)
	}
	return out, nil
}

func (m *member) Gossip(ctx context.Context, pairs [][2]int) ([][2]int, error) {
	own := make([][2]int, len(pairs))
	copy(own, pairs)
	vals, err := m.hub.gather(ctx, "gossip", m.idx, own)
	if err != nil {
		return nil, err
	}
	var out [][2]int
	for _, v := range vals {
		out = append(out, v.([][2]int)...)
	}
	return out, nil
}

func (m *member) GossipFloat(ctx context.Context, v float64) ([]float64, error) {
	vals, err := m.hub.gather(ctx, "gossip-float", m.idx, v)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(vals))
	for i, v := range vals {
		out[i] = v.(float64)
	}
	return out, nil
}

func (m *member) GossipRow(ctx context.Context, row []int) ([][]int, error) {
	own := make([]int, len(row))
	copy(own, row)
	vals, err := m.hub.gather(ctx, "gossip-row", m.idx, own)
	if err != nil {
		return nil, err
	}
	out := make([][]int, len(vals))
	for i, v := range vals {
		out[i] = v.([]int)
	}
	return out, nil
}

package cluster

import (
	"context"
	"fmt"
	"time"
)

// maxRTT bounds the ping-pong round trips.
const maxRTT = 1000 * time.Second

// PingResult is the best round trip of a ping-pong between two members.
type PingResult struct {
	Src, Dst         int
	SrcHost, DstHost string
	Len              int
	Min              time.Duration
}

// MBps returns the throughput of the best round trip.
func (r PingResult) MBps() float64 {
	return float64(r.Len) / r.Min.Seconds() / (1000 * 1000)
}

// String implements fmt.Stringer for PingResult.
func (r PingResult) String() string {
	return fmt.Sprintf("ping-pong, %d, ->, %d, %s, ->, %s, %.3f, [MB/s], %.3f, [ms]",
		r.Src, r.Dst, r.SrcHost, r.DstHost, r.MBps(), r.Min.Seconds()*1000)
}

// Result is one iteration of a collective transfer, timed between the
// barriers around it.
type Result struct {
	Pattern string
	// Root is the single sender or receiver of the pattern, -1 for all2all.
	Root    int
	Peers   int
	Len     int
	Elapsed time.Duration
}

// MBps returns the aggregate throughput over all member pairs.
func (r Result) MBps() float64 {
	return float64(r.Len) / (1000 * 1000) * float64(r.Peers-1) * float64(r.Peers) / r.Elapsed.Seconds()
}

// String implements fmt.Stringer for Result.
func (r Result) String() string {
	if r.Root < 0 {
		return fmt.Sprintf("%s %d, %.3f,[MB/s], %.3f,[s]", r.Pattern, r.Peers, r.MBps(), r.Elapsed.Seconds())
	}
	return fmt.Sprintf("%s root: %d, %.3f,[MB/s], %.3f,[s]", r.Pattern, r.Root, r.MBps(), r.Elapsed.Seconds())
}

func (m *Manager) waitMessages(count int) error {
	for ; count > 0; count-- {
		if _, _, err := m.node.RecvAnyData(); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) payload(length int) []byte {
	buf := make([]byte, length)
	copy(buf, fmt.Sprintf("%d:%s says hello!", m.Index(), m.hostnames[m.Index()]))
	return buf
}

// PingPong measures the best round trip of a length byte message and a one
// byte ack between every pair of members. It returns the results of the
// pairs this member started.
func (m *Manager) PingPong(ctx context.Context, length, iter int) ([]PingResult, error) {
	if m.Index() == 0 {
		m.log.Infof("ping-pong: %d [B]", length)
	}
	buf := make([]byte, length)
	ack := []byte{0}
	self := m.Index()

	if err := m.rv.Sync(ctx); err != nil {
		return nil, err
	}

	var results []PingResult
	for src := 0; src < m.Size(); src++ {
		for dst := 0; dst < m.Size(); dst++ {
			if (dst != self && src != self) || dst == src {
				continue
			}

			best := maxRTT
			for it := 0; it < iter; it++ {
				if self == src {
					start := time.Now()
					if err := m.node.SendData(dst, buf); err != nil {
						return nil, err
					}
					if err := m.waitMessages(1); err != nil {
						return nil, err
					}
					if dt := time.Since(start); dt < best {
						best = dt
					}
				} else {
					if err := m.waitMessages(1); err != nil {
						return nil, err
					}
					if err := m.node.SendData(src, ack); err != nil {
						return nil, err
					}
				}
			}

			if self == src {
				r := PingResult{
					Src: src, Dst: dst,
					SrcHost: m.hostnames[src], DstHost: m.hostnames[dst],
					Len: length, Min: best,
				}
				m.log.Info(r)
				results = append(results, r)
			}
		}
		if err := m.rv.Sync(ctx); err != nil {
			return nil, err
		}
	}
	return results, nil
}

// timed runs step between two barriers and returns the elapsed time.
func (m *Manager) timed(ctx context.Context, step func() error) (time.Duration, error) {
	if err := m.rv.Sync(ctx); err != nil {
		return 0, err
	}
	start := time.Now()
	if err := step(); err != nil {
		return 0, err
	}
	if err := m.rv.Sync(ctx); err != nil {
		return 0, err
	}
	return time.Since(start), nil
}

func (m *Manager) collective(ctx context.Context, pattern string, root, length, iter int, step func() error) ([]Result, error) {
	if m.Index() == 0 {
		m.log.Infof("%s: %d [B] root: %d", pattern, length, root)
	}
	results := make([]Result, 0, iter)
	for it := 0; it < iter; it++ {
		dt, err := m.timed(ctx, step)
		if err != nil {
			return nil, err
		}
		r := Result{Pattern: pattern, Root: root, Peers: m.Size(), Len: length, Elapsed: dt}
		if m.Index() == 0 {
			m.log.Info(r)
		}
		results = append(results, r)
	}
	return results, nil
}

// SendAll2All has every member send a length byte message to every other
// member, iter times.
func (m *Manager) SendAll2All(ctx context.Context, length, iter int) ([]Result, error) {
	buf := m.payload(length)
	self, n := m.Index(), m.Size()
	return m.collective(ctx, "send_all2all", -1, length, iter, func() error {
		for i := 0; i < n; i++ {
			dst := (i + self) % n
			if dst == self {
				continue
			}
			if err := m.node.SendData(dst, buf); err != nil {
				return err
			}
		}
		return m.waitMessages(n - 1)
	})
}

// SendAll2One has every member but dst send a length byte message to dst,
// iter times.
func (m *Manager) SendAll2One(ctx context.Context, dst, length, iter int) ([]Result, error) {
	buf := m.payload(length)
	return m.collective(ctx, "send_all2one", dst, length, iter, func() error {
		if m.Index() != dst {
			return m.node.SendData(dst, buf)
		}
		return m.waitMessages(m.Size() - 1)
	})
}

// SendOne2All has src send a length byte message to every other member, iter
// times.
func (m *Manager) SendOne2All(ctx context.Context, src, length, iter int) ([]Result, error) {
	buf := m.payload(length)
	return m.collective(ctx, "send_one2all", src, length, iter, func() error {
		if m.Index() != src {
			return m.waitMessages(1)
		}
		for dst := 0; dst < m.Size(); dst++ {
			if dst == src {
				continue
			}
			if err := m.node.SendData(dst, buf); err != nil {
				return err
			}
		}
		return nil
	})
}

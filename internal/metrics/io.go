package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// IORecorder records the chunk traffic of one node's I/O manager.
type IORecorder interface {
	ChunkForwarded(bytes int)
	ChunkDelivered(bytes int)
	PipelineBlocked()
	ChannelFailed()
}

type dummyIO struct{}

// NewDummyIO constructs an IORecorder that drops everything.
func NewDummyIO() IORecorder {
	return dummyIO{}
}

func (dummyIO) ChunkForwarded(int) {}
func (dummyIO) ChunkDelivered(int) {}
func (dummyIO) PipelineBlocked() {}
func (dummyIO) ChannelFailed() {}

var (
	ioOnce      sync.Once
	ioForwarded *prometheus.CounterVec
	ioDelivered *prometheus.CounterVec
	ioBytes     *prometheus.CounterVec
	ioBlocked   *prometheus.CounterVec
	ioFailed    *prometheus.CounterVec
)

// Several nodes may live in one process, so the collectors are registered
// once and labelled per node.
func registerIO() {
	ioForwarded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dlfree_chunks_forwarded_total",
		Help: "The total number of chunks pipelined towards another node",
	}, []string{"node"})
	ioDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dlfree_chunks_delivered_total",
		Help: "The total number of chunks delivered to this node",
	}, []string{"node"})
	ioBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dlfree_chunk_bytes_total",
		Help: "The total number of chunk body bytes handled",
	}, []string{"node", "direction"})
	ioBlocked = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dlfree_pipeline_blocked_total",
		Help: "The total number of pipelines refused by a full queue",
	}, []string{"node"})
	ioFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dlfree_channel_failures_total",
		Help: "The total number of channels destroyed after an I/O error",
	}, []string{"node"})
}

type promIO struct {
	forwarded prometheus.Counter
	delivered prometheus.Counter
	fwdBytes  prometheus.Counter
	dlvBytes  prometheus.Counter
	blocked   prometheus.Counter
	failed    prometheus.Counter
}

// NewPrometheusIO constructs an IORecorder for node id.
func NewPrometheusIO(id int) IORecorder {
	ioOnce.Do(registerIO)
	node := strconv.Itoa(id)
	return &promIO{
		forwarded: ioForwarded.WithLabelValues(node),
		delivered: ioDelivered.WithLabelValues(node),
		fwdBytes:  ioBytes.WithLabelValues(node, "forward"),
		dlvBytes:  ioBytes.WithLabelValues(node, "deliver"),
		blocked:   ioBlocked.WithLabelValues(node),
		failed:    ioFailed.WithLabelValues(node),
	}
}

func (m *promIO) ChunkForwarded(bytes int) {
	m.forwarded.Inc()
	m.fwdBytes.Add(float64(bytes))
}

func (m *promIO) ChunkDelivered(bytes int) {
	m.delivered.Inc()
	m.dlvBytes.Add(float64(bytes))
}

func (m *promIO) PipelineBlocked() { m.blocked.Inc() }

func (m *promIO) ChannelFailed() { m.failed.Inc() }

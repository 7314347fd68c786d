// Package metrics records node and API metrics with prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder records API request metrics.
type Recorder interface {
	Record(path string, resTime time.Duration, code int)
}

type dummy struct{}

// NewDummy constructs a new dummy metrics recorder.
func NewDummy() Recorder {
	return &dummy{}
}

func (m *dummy) Record(string, time.Duration, int) {}

type prom struct {
	reqCount *prometheus.CounterVec
	resTime  *prometheus.SummaryVec
}

// NewPrometheus constructs a new Prometheus metrics recorder. It registers
// its collectors, so call it once per service.
func NewPrometheus(service string) Recorder {
	return &prom{
		reqCount: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: service + "_request_total",
			Help: "The total number of processed requests",
		}, []string{"path", "code"}),
		resTime: promauto.NewSummaryVec(prometheus.SummaryOpts{
			Name: service + "_response_time",
			Help: "Response times",
		}, []string{"path"}),
	}
}

func (m *prom) Record(path string, resTime time.Duration, code int) {
	m.reqCount.WithLabelValues(path, strconv.Itoa(code)).Inc()
	m.resTime.WithLabelValues(path).Observe(resTime.Seconds())
}

// Handler provides metrics middleware.
func Handler(m Recorder, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if m == nil {
			next.ServeHTTP(w, req)
			return
		}

		wrapW := &wrapResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		startTime := time.Now()
		next.ServeHTTP(wrapW, req)
		m.Record(req.URL.Path, time.Since(startTime), wrapW.statusCode)
	})
}

type wrapResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *wrapResponseWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

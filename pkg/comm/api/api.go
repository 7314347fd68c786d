// Package api exposes the stats of a comm.Node over HTTP.
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/skycoin/skycoin/src/util/logging"

	"github.com/skycoin/dlfree/internal/httputil"
	"github.com/skycoin/dlfree/internal/metrics"
	"github.com/skycoin/dlfree/pkg/comm"
	"github.com/skycoin/dlfree/pkg/routing"
)

var log = logging.MustGetLogger("comm-api")

// ErrNoTable is returned for sources whose routing table is not held.
var ErrNoTable = errors.New("no routing table for source")

// Node is the part of comm.Node served by the API.
type Node interface {
	ID() int
	Stats() (comm.Stats, error)
	RoutingTable(src int) *routing.Table
	PeerRTT(pid int) time.Duration
}

// RTT is the handshake round trip time measured with a peer.
type RTT struct {
	Peer int           `json:"peer"`
	RTT  time.Duration `json:"rtt_ns"`
}

// API serves the stats of one node.
type API struct {
	node Node
	mux  http.Handler
}

// New returns the API of node. Requests are recorded with m, which may be nil.
func New(node Node, m metrics.Recorder) *API {
	api := &API{node: node}

	r := chi.NewRouter()
	r.Use(middleware.Timeout(time.Second * 30))
	r.Use(middleware.Logger)
	r.Get("/stats", api.getStats)
	r.Get("/tables/{src}", api.getTable)
	r.Get("/rtt/{pid}", api.getRTT)
	r.Handle("/metrics", promhttp.Handler())

	api.mux = metrics.Handler(m, r)
	return api
}

// ServeHTTP implements http.Handler.
func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mux.ServeHTTP(w, r)
}

func (a *API) getStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.node.Stats()
	if err != nil {
		log.WithError(err).Warnf("node %d stats", a.node.ID())
		httputil.WriteJSON(w, r, http.StatusServiceUnavailable, err)
		return
	}
	httputil.WriteJSON(w, r, http.StatusOK, stats)
}

func (a *API) getTable(w http.ResponseWriter, r *http.Request) {
	src, err := httputil.IntFromParam(r, "src")
	if err != nil {
		httputil.WriteJSON(w, r, http.StatusBadRequest, err)
		return
	}
	rt := a.node.RoutingTable(src)
	if rt == nil {
		httputil.WriteJSON(w, r, http.StatusNotFound, ErrNoTable)
		return
	}
	httputil.WriteJSON(w, r, http.StatusOK, rt)
}

func (a *API) getRTT(w http.ResponseWriter, r *http.Request) {
	pid, err := httputil.IntFromParam(r, "pid")
	if err != nil {
		httputil.WriteJSON(w, r, http.StatusBadRequest, err)
		return
	}
	httputil.WriteJSON(w, r, http.StatusOK, RTT{Peer: pid, RTT: a.node.PeerRTT(pid)})
}

package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/skycoin/skycoin/src/util/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skycoin/dlfree/internal/metrics"
	"github.com/skycoin/dlfree/pkg/comm"
	"github.com/skycoin/dlfree/pkg/overlay"
	"github.com/skycoin/dlfree/pkg/planner"
	"github.com/skycoin/dlfree/pkg/router"
	"github.com/skycoin/dlfree/pkg/routing"
)

func TestMain(m *testing.M) {
	loggingLevel, ok := os.LookupEnv("TEST_LOGGING_LEVEL")
	if ok {
		lvl, err := logging.LevelFromString(loggingLevel)
		if err != nil {
			log.Fatal(err)
		}
		logging.SetLevel(lvl)
	} else {
		logging.Disable()
	}

	os.Exit(m.Run())
}

func get(t *testing.T, h http.Handler, path string, v interface{}) int {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	if v != nil {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
	}
	return rec.Code
}

func TestAPI(t *testing.T) {
	cfg := comm.DefaultConfig()
	cfg.MaxPeer = 4
	node, err := comm.New(0, cfg)
	require.NoError(t, err)

	g := overlay.New()
	g.AddNode("a")
	g.AddNode("b")
	g.AddEdge(0, 1, 3, 10)
	rt, err := planner.Plan(g, router.DeadlockProne, 0, 1, nil)
	require.NoError(t, err)
	require.NoError(t, node.ExchangeRT(rt, 1))

	api := New(node, metrics.NewDummy())

	t.Run("stats", func(t *testing.T) {
		var stats comm.Stats
		require.Equal(t, http.StatusOK, get(t, api, "/stats?pretty=1", &stats))
		assert.Equal(t, 0, stats.ID)
		assert.Equal(t, node.ListenPort(), stats.ListenPort)
		assert.Equal(t, 1, stats.RoutingTables)
		assert.Zero(t, stats.IO.NumSockets)
	})

	t.Run("table", func(t *testing.T) {
		var got routing.Table
		require.Equal(t, http.StatusOK, get(t, api, "/tables/0", &got))
		assert.Equal(t, 0, got.Src)
		require.NotNil(t, got.Entry(1))
		assert.Equal(t, []int{0, 1}, got.Entry(1).Path)

		var e map[string]string
		assert.Equal(t, http.StatusNotFound, get(t, api, "/tables/1", &e))
		assert.Equal(t, ErrNoTable.Error(), e["error"])
		assert.Equal(t, http.StatusBadRequest, get(t, api, "/tables/x", nil))
		assert.Equal(t, http.StatusBadRequest, get(t, api, "/tables/-2", nil))
	})

	t.Run("rtt", func(t *testing.T) {
		var rtt RTT
		require.Equal(t, http.StatusOK, get(t, api, "/rtt/1", &rtt))
		assert.Equal(t, RTT{Peer: 1}, rtt)
	})

	t.Run("metrics", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, get(t, api, "/metrics", nil))
	})

	require.NoError(t, node.Close())

	var e map[string]string
	assert.Equal(t, http.StatusServiceUnavailable, get(t, api, "/stats", &e))
	assert.Equal(t, comm.ErrClosed.Error(), e["error"])
}

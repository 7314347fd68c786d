package commands

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/skycoin/skycoin/src/util/logging"
	"github.com/spf13/cobra"

	"github.com/skycoin/dlfree/internal/cmdutil"
	"github.com/skycoin/dlfree/internal/metrics"
	"github.com/skycoin/dlfree/internal/pathutil"
	"github.com/skycoin/dlfree/pkg/cluster"
	"github.com/skycoin/dlfree/pkg/comm"
	"github.com/skycoin/dlfree/pkg/comm/api"
	"github.com/skycoin/dlfree/pkg/topology"
)

const configEnv = "DLFREE_CONFIG"

type runCfg struct {
	cmdutil.Options
	scheme     string
	pattern    string
	root       int
	density    float64
	nodes      int
	configPath string
	statsAddr  string
	args       []string

	bench       benchArgs
	profileStop func()
	logger      *logging.Logger
	conf        comm.Config
	top         *topology.Topology
	hosts       []string
}

var cfg *runCfg

var rootCmd = &cobra.Command{
	Use:   "dlfree-bench <xml> <density/alpha/ngates> <size[MB]> <rt-type> [<iter:10> [<seed:1>]]",
	Short: "Runs collective transfers over an in-process dlfree cluster",
	Long: `Starts one node per host of the topology, connects them with the chosen
scheme, computes deadlock-free routes and times a collective transfer.

rt-type is one of: updown, updown-dfs, random, band, hops, hub, bfs, deadlock.`,
	Run: func(_ *cobra.Command, args []string) {
		cfg.args = args

		cfg.parseArgs().
			startProfiler().
			startLogger().
			readConfig().
			loadTopology().
			runCluster().
			stop()
	},
}

func init() {
	cfg = &runCfg{}
	cfg.AddFlags(rootCmd.Flags(), "dlfree-bench")
	rootCmd.Flags().StringVarP(&cfg.scheme, "scheme", "s", "ring", "connection scheme: all, random, ring, line, gateway, locality")
	rootCmd.Flags().StringVarP(&cfg.pattern, "pattern", "", "all2all", "transfer pattern: all2all, all2one, one2all, pingpong")
	rootCmd.Flags().IntVarP(&cfg.root, "root", "", 0, "receiver of all2one, sender of one2all")
	rootCmd.Flags().Float64VarP(&cfg.density, "density", "", 0.5, "intra cluster density of the gateway scheme")
	rootCmd.Flags().IntVarP(&cfg.nodes, "nodes", "n", 0, "number of topology hosts to start nodes on, 0 for all")
	rootCmd.Flags().StringVarP(&cfg.configPath, "config", "c", "", "node config file, also read from $"+configEnv)
	rootCmd.Flags().StringVarP(&cfg.statsAddr, "stats-addr", "", "", "serve the stats API of node 0 on this address")
}

// Execute executes root CLI command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func (cfg *runCfg) parseArgs() *runCfg {
	bench, err := parseArgs(cfg.args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(1)
	}
	cfg.bench = bench
	return cfg
}

func (cfg *runCfg) startProfiler() *runCfg {
	cfg.profileStop = cfg.StartProfiler()
	return cfg
}

func (cfg *runCfg) startLogger() *runCfg {
	cfg.logger = cfg.StartLogger()
	return cfg
}

func (cfg *runCfg) readConfig() *runCfg {
	cfg.conf = comm.DefaultConfig()
	var args []string
	if cfg.configPath != "" {
		args = []string{cfg.configPath}
	}
	path := pathutil.FindConfigPath(args, 0, configEnv, pathutil.Defaults("dlfree-config.json"))
	if path == "" {
		cfg.logger.Info("Using the default node config")
		return cfg
	}
	conf, err := comm.ReadConfigFile(path)
	if err != nil {
		cfg.logger.Fatalf("Failed to read config %s: %s", path, err)
	}
	cfg.conf = conf
	return cfg
}

func (cfg *runCfg) loadTopology() *runCfg {
	top, err := topology.Load(cfg.bench.topology)
	if err != nil {
		cfg.logger.Fatalf("Failed to load topology: %s", err)
	}
	top.RandomizeWidth(rand.New(rand.NewSource(cfg.bench.seed)))
	cfg.top = top

	cfg.hosts = top.Hosts()
	if cfg.nodes > 0 && cfg.nodes < len(cfg.hosts) {
		cfg.hosts = cfg.hosts[:cfg.nodes]
	}
	if len(cfg.hosts) > cfg.conf.MaxPeer {
		cfg.logger.Fatalf("%d hosts exceed the max peer count %d", len(cfg.hosts), cfg.conf.MaxPeer)
	}
	if cfg.root < 0 || cfg.root >= len(cfg.hosts) {
		cfg.logger.Fatalf("root %d is not a member of %d hosts", cfg.root, len(cfg.hosts))
	}
	return cfg
}

func (cfg *runCfg) connect(ctx context.Context, m *cluster.Manager) error {
	var err error
	p := cfg.bench.param
	seed := cfg.bench.seed
	switch cfg.scheme {
	case "all":
		_, err = m.ConnectAll(ctx)
	case "random":
		_, err = m.ConnectRandom(ctx, p, seed)
	case "ring":
		_, err = m.ConnectRing(ctx)
	case "line":
		_, err = m.ConnectLine(ctx)
	case "gateway":
		_, err = m.ConnectWithGateway(ctx, cluster.ClusterNamePrefix, int(p), cfg.density, seed)
	case "locality":
		_, err = m.ConnectLocalityAware(ctx, cfg.top, int(p), seed)
	default:
		err = fmt.Errorf("unknown connection scheme: %s", cfg.scheme)
	}
	return err
}

func (cfg *runCfg) transfer(ctx context.Context, m *cluster.Manager) error {
	size, iter := cfg.bench.sizeBytes(), cfg.bench.iter
	var (
		results []cluster.Result
		err     error
	)
	switch cfg.pattern {
	case "all2all":
		results, err = m.SendAll2All(ctx, size, iter)
	case "all2one":
		results, err = m.SendAll2One(ctx, cfg.root, size, iter)
	case "one2all":
		results, err = m.SendOne2All(ctx, cfg.root, size, iter)
	case "pingpong":
		pings, perr := m.PingPong(ctx, size, iter)
		for _, p := range pings {
			fmt.Println(p)
		}
		return perr
	default:
		return fmt.Errorf("unknown transfer pattern: %s", cfg.pattern)
	}
	if m.Index() == 0 {
		for _, r := range results {
			fmt.Println(r)
		}
	}
	return err
}

func (cfg *runCfg) serveStats(m *cluster.Manager) func() {
	n, ok := m.Node().(api.Node)
	if cfg.statsAddr == "" || !ok {
		return func() {}
	}
	srv := &http.Server{
		Addr:    cfg.statsAddr,
		Handler: api.New(n, metrics.NewPrometheus("dlfree_bench")),
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			cfg.logger.WithError(err).Error("Stats API stopped")
		}
	}()
	cfg.logger.Infof("Serving stats of node %d on %s", n.ID(), cfg.statsAddr)
	return func() { srv.Close() } // nolint: errcheck
}

func (cfg *runCfg) runCluster() *runCfg {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := make(chan os.Signal, 2)
	signal.Notify(ch, []os.Signal{syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT}...)
	go func() {
		select {
		case s := <-ch:
			cfg.logger.Infof("Received signal %s: terminating", s)
			cancel()
		case <-ctx.Done():
		}
	}()

	cfg.logger.Infof("Starting %d nodes: scheme %s, routes %s, pattern %s", len(cfg.hosts), cfg.scheme, cfg.bench.policy, cfg.pattern)
	err := cluster.Run(ctx, cfg.hosts, cfg.conf, func(ctx context.Context, m *cluster.Manager) error {
		if m.Index() == 0 {
			defer cfg.serveStats(m)()
		}
		if err := cfg.connect(ctx, m); err != nil {
			return err
		}
		if err := m.ComputeRT(ctx, cfg.top, cfg.bench.policy, cfg.bench.seed); err != nil {
			return err
		}
		if err := cfg.transfer(ctx, m); err != nil {
			return err
		}
		return m.Sync(ctx)
	})
	if err != nil {
		cfg.logger.Fatalf("Benchmark failed: %s", err)
	}
	return cfg
}

func (cfg *runCfg) stop() {
	cfg.profileStop()
}

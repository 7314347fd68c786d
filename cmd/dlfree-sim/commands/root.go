package commands

import (
	"fmt"
	"io"
	"log"
	"math/rand"
	"os"
	"strconv"

	"github.com/skycoin/skycoin/src/util/logging"
	"github.com/spf13/cobra"

	"github.com/skycoin/dlfree/internal/cmdutil"
	"github.com/skycoin/dlfree/pkg/overlay"
	"github.com/skycoin/dlfree/pkg/planner"
	"github.com/skycoin/dlfree/pkg/router"
	"github.com/skycoin/dlfree/pkg/routing"
	"github.com/skycoin/dlfree/pkg/topology"
)

const usage = "usage: dlfree-sim <xml file> <density/alpha> <seed> <rt-type>"

type simArgs struct {
	topology string
	param    float64
	seed     int64
	policy   router.Policy
}

func parseArgs(args []string) (simArgs, error) {
	var a simArgs
	if len(args) < 4 {
		return a, fmt.Errorf("too few argument")
	}
	if len(args) > 4 {
		return a, fmt.Errorf("too many arguments")
	}
	var err error
	a.topology = args[0]
	if a.param, err = strconv.ParseFloat(args[1], 64); err != nil {
		return a, fmt.Errorf("invalid density value")
	}
	if a.seed, err = strconv.ParseInt(args[2], 10, 64); err != nil {
		return a, fmt.Errorf("invalid seed value")
	}
	if a.policy, err = router.ParsePolicy(args[3]); err != nil {
		return a, fmt.Errorf("invalid rt-type string: %s", err)
	}
	return a, nil
}

type runCfg struct {
	cmdutil.Options
	overlayType string
	bins        int
	printTables bool
	args        []string

	sim         simArgs
	profileStop func()
	logger      *logging.Logger
	top         *topology.Topology
	graph       *overlay.Graph
	tables      []*routing.Table
}

var cfg *runCfg

var rootCmd = &cobra.Command{
	Use:   "dlfree-sim <xml file> <density/alpha> <seed> <rt-type>",
	Short: "Simulates an overlay and reports the statistics of its routes",
	Run: func(_ *cobra.Command, args []string) {
		cfg.args = args

		cfg.parseArgs().
			startProfiler().
			startLogger().
			simulate().
			plan().
			report(os.Stdout)
	},
}

func init() {
	cfg = &runCfg{}
	cfg.AddFlags(rootCmd.Flags(), "dlfree-sim")
	rootCmd.Flags().StringVarP(&cfg.overlayType, "overlay", "o", "locality", "overlay type: locality (alpha), random (density), ring")
	rootCmd.Flags().IntVarP(&cfg.bins, "bins", "b", 100, "bins of the bandwidth histogram")
	rootCmd.Flags().BoolVarP(&cfg.printTables, "tables", "t", false, "print every routing table")
}

// Execute executes root CLI command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func (cfg *runCfg) parseArgs() *runCfg {
	sim, err := parseArgs(cfg.args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(1)
	}
	cfg.sim = sim
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

func (cfg *runCfg) simulate() *runCfg {
	top, err := topology.Load(cfg.sim.topology)
	if err != nil {
		cfg.logger.Fatalf("Failed to load topology: %s", err)
	}
	rng := rand.New(rand.NewSource(cfg.sim.seed))
	top.RandomizeWidth(rng)
	cfg.top = top

	switch cfg.overlayType {
	case "locality":
		cfg.logger.Infof("simulating overlay graph: alpha: %d seed: %d", int(cfg.sim.param), cfg.sim.seed)
		cfg.graph, err = overlay.SimulateLocalityAware(top, int(cfg.sim.param), cfg.sim.seed)
	case "random":
		cfg.logger.Infof("simulating overlay graph: density: %.3f seed: %d", cfg.sim.param, cfg.sim.seed)
		cfg.graph, err = overlay.SimulateRandom(top, cfg.sim.param, rng)
	case "ring":
		cfg.logger.Info("simulating overlay graph: ring")
		cfg.graph, err = overlay.SimulateRing(top)
	default:
		cfg.logger.Fatalf("unknown overlay type: %s", cfg.overlayType)
	}
	if err != nil {
		cfg.logger.Fatalf("Failed to simulate overlay: %s", err)
	}
	return cfg
}

func (cfg *runCfg) plan() *runCfg {
	tables, levels, err := planner.PlanAll(cfg.graph, cfg.sim.policy, cfg.sim.seed)
	if err != nil {
		cfg.logger.Fatalf("Failed to plan %s routes: %s", cfg.sim.policy, err)
	}
	cfg.logger.Infof("planned %d tables over %d levels", len(tables), levels)
	cfg.tables = tables
	return cfg
}

func (cfg *runCfg) report(w io.Writer) {
	defer cfg.profileStop()
	if cfg.printTables {
		names := cfg.graph.Names()
		for _, rt := range cfg.tables {
			fmt.Fprint(w, rt.Format(names))
		}
	}
	r, err := planner.Analyze(cfg.tables, cfg.graph, cfg.top, cfg.bins)
	if err != nil {
		cfg.logger.Fatalf("Failed to analyze routes: %s", err)
	}
	r.Print(w)
}

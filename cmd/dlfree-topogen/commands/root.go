package commands

import (
	"bytes"
	"fmt"
	"log"
	"math/rand"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/skycoin/dlfree/internal/pathutil"
	"github.com/skycoin/dlfree/pkg/topology"
)

const usage = "usage: dlfree-topogen <out|-> <nnodes> <min band> <max band> [<seed:1>]"

type genArgs struct {
	out     string
	nnodes  int
	minBand float64
	maxBand float64
	seed    int64
}

func parseArgs(args []string) (genArgs, error) {
	a := genArgs{seed: 1}
	if len(args) < 4 {
		return a, fmt.Errorf("too few arguments")
	}
	if len(args) > 5 {
		return a, fmt.Errorf("too many arguments")
	}
	var err error
	a.out = args[0]
	if a.nnodes, err = strconv.Atoi(args[1]); err != nil || a.nnodes <= 0 {
		return a, fmt.Errorf("invalid number of nodes")
	}
	if a.minBand, err = strconv.ParseFloat(args[2], 64); err != nil {
		return a, fmt.Errorf("invalid min band")
	}
	if a.maxBand, err = strconv.ParseFloat(args[3], 64); err != nil || a.maxBand < a.minBand {
		return a, fmt.Errorf("invalid max band")
	}
	if len(args) > 4 {
		if a.seed, err = strconv.ParseInt(args[4], 10, 64); err != nil {
			return a, fmt.Errorf("invalid seed value")
		}
	}
	return a, nil
}

// generate writes the topology described by a to its output, "-" being
// stdout.
func generate(a genArgs) error {
	var buf bytes.Buffer
	if err := topology.Generate(&buf, a.nnodes, a.minBand, a.maxBand, rand.New(rand.NewSource(a.seed))); err != nil {
		return err
	}
	if a.out == "-" {
		_, err := buf.WriteTo(os.Stdout)
		return err
	}
	return pathutil.AtomicWriteFile(a.out, buf.Bytes())
}

var rootCmd = &cobra.Command{
	Use:   "dlfree-topogen <out|-> <nnodes> <min band> <max band> [<seed:1>]",
	Short: "Generates a random topology description",
	Run: func(_ *cobra.Command, args []string) {
		a, err := parseArgs(args)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			fmt.Fprintln(os.Stderr, usage)
			os.Exit(1)
		}
		if err := generate(a); err != nil {
			log.Fatalf("Failed to generate topology: %s", err)
		}
	},
}

// Execute executes root CLI command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

package commands

import (
	"fmt"
	"strconv"

	"github.com/skycoin/dlfree/pkg/router"
)

const usage = "usage: dlfree-bench <xml> <density/alpha/ngates> <size[MB]> <rt-type> [<iter:10> [<seed:1>]]"

type benchArgs struct {
	topology string
	param    float64
	size     float64
	policy   router.Policy
	iter     int
	seed     int64
}

func parseArgs(args []string) (benchArgs, error) {
	a := benchArgs{iter: 10, seed: 1}
	if len(args) < 4 {
		return a, fmt.Errorf("too few arguments")
	}
	if len(args) > 6 {
		return a, fmt.Errorf("too many arguments")
	}
	var err error
	a.topology = args[0]
	if a.param, err = strconv.ParseFloat(args[1], 64); err != nil {
		return a, fmt.Errorf("invalid overlay parameter")
	}
	if a.size, err = strconv.ParseFloat(args[2], 64); err != nil || a.size < 0 {
		return a, fmt.Errorf("invalid size value")
	}
	if a.policy, err = router.ParsePolicy(args[3]); err != nil {
		return a, fmt.Errorf("invalid rt-type: %s", err)
	}
	if len(args) > 4 {
		if a.iter, err = strconv.Atoi(args[4]); err != nil || a.iter < 0 {
			return a, fmt.Errorf("invalid iteration value")
		}
	}
	if len(args) > 5 {
		if a.seed, err = strconv.ParseInt(args[5], 10, 64); err != nil {
			return a, fmt.Errorf("invalid seed value")
		}
	}
	return a, nil
}

// sizeBytes returns the message size, given in MiB.
func (a benchArgs) sizeBytes() int {
	return int(a.size * 1024 * 1024)
}

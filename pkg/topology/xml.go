package topology

import (
	"encoding/xml"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Element names of the topology description.
const (
	ClusterElement = "CLUSTER"
	SwitchElement  = "SWITCH"
	NodeElement    = "NODE"
)

const (
	defaultLen   = 1.0
	defaultWidth = -1.0
)

// Load parses the topology description stored at path.
func Load(path string) (*Topology, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	defer f.Close() // nolint: errcheck

	t, err := Parse(f)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s", path)
	}
	return t, nil
}

// Parse reads a CLUSTER/SWITCH/NODE tree. Switches are named SW:<n> in
// document order, hosts take their hostname attribute and every link gets
// the bandwidth attribute of its child element as width.
func Parse(r io.Reader) (*Topology, error) {
	t := New()
	dec := xml.NewDecoder(r)
	var stack []int
	switchID := 0

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		switch el := tok.(type) {
		case xml.StartElement:
			var idx int
			switch el.Name.Local {
			case ClusterElement:
				idx = t.AddNode(rootName, -1)
			case SwitchElement, NodeElement:
				if len(stack) == 0 {
					return nil, fmt.Errorf("%s outside of %s", el.Name.Local, ClusterElement)
				}
				width, name, err := parseAttrs(el)
				if err != nil {
					return nil, err
				}
				if el.Name.Local == SwitchElement {
					name = fmt.Sprintf("%s:%d", switchPrefix, switchID)
					switchID++
				} else if name == "" {
					return nil, fmt.Errorf("%s without hostname", NodeElement)
				}
				idx = t.AddEdge(stack[len(stack)-1], name, defaultLen, width)
			default:
				return nil, fmt.Errorf("unknown element type: %s", el.Name.Local)
			}
			stack = append(stack, idx)

		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}

	if len(t.Nodes) == 0 {
		return nil, fmt.Errorf("no %s element", ClusterElement)
	}
	return t, nil
}

func parseAttrs(el xml.StartElement) (width float64, hostname string, err error) {
	width = defaultWidth
	for _, a := range el.Attr {
		switch a.Name.Local {
		case "bandwidth":
			if width, err = strconv.ParseFloat(strings.TrimSpace(a.Value), 64); err != nil {
				return 0, "", errors.Wrap(err, "invalid bandwidth")
			}
		case "hostname":
			hostname = strings.TrimSpace(a.Value)
		}
	}
	return width, hostname, nil
}

// Generate writes a random topology description with nnodes hosts named
// NODE:<n>, link bandwidths drawn uniformly from [minBand, maxBand).
func Generate(w io.Writer, nnodes int, minBand, maxBand float64, rng *rand.Rand) error {
	if nnodes <= 0 {
		return fmt.Errorf("invalid number of hosts: %d", nnodes)
	}
	g := &generator{w: w}
	band := func() float64 {
		return rng.Float64()*(maxBand-minBand) + minBand
	}

	g.push(ClusterElement, "")
	g.push(SwitchElement, ` bandwidth="-2.0"`)

	c, nodeAdded := 0, false
	for len(g.stack) > 0 && g.err == nil {
		switch rng.Intn(3) {
		case 0:
			if c == nnodes {
				continue
			}
			g.leaf(fmt.Sprintf(`<%s bandwidth="%.1f" hostname="NODE:%d" />`, NodeElement, band(), c))
			c++
			nodeAdded = true
		case 1:
			if c == nnodes {
				continue
			}
			g.push(SwitchElement, fmt.Sprintf(` bandwidth="%.1f"`, band()))
			nodeAdded = false
		case 2:
			if !nodeAdded {
				continue
			}
			if len(g.stack) <= 2 && c < nnodes {
				continue
			}
			g.pop()
		}
	}
	return g.err
}

type generator struct {
	w     io.Writer
	stack []string
	err   error
}

func (g *generator) line(s string) {
	if g.err != nil {
		return
	}
	_, g.err = fmt.Fprintf(g.w, "%s%s\n", strings.Repeat(" ", len(g.stack)), s)
}

func (g *generator) push(el, attrs string) {
	g.line(fmt.Sprintf("<%s%s>", el, attrs))
	g.stack = append(g.stack, el)
}

func (g *generator) leaf(s string) {
	g.line(s)
}

func (g *generator) pop() {
	el := g.stack[len(g.stack)-1]
	g.stack = g.stack[:len(g.stack)-1]
	g.line(fmt.Sprintf("</%s>", el))
}

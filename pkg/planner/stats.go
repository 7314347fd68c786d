package planner

import (
	"fmt"
	"io"
	"math"

	"github.com/skycoin/dlfree/pkg/overlay"
	"github.com/skycoin/dlfree/pkg/routing"
)

const nodeHotspotBin = 100

// Report summarises the routes of a full set of routing tables.
type Report struct {
	MaxHops   int
	AvgHops   float64
	HopHisto  []int // index is the hop count
	BandMin   float64
	BandMax   float64
	BandAvg   float64
	BandHisto []int // bins of route width over physical path width
	NodeUsage []int // times each node forwards a chunk route
	EdgeHisto []int // index is the number of routes using a directed edge
	Excess    []int // index is the extra physical hops over the direct path
}

// Analyze computes a Report for tables over g, using top for the physical
// paths between hosts. bins sets the resolution of the bandwidth histogram.
func Analyze(tables []*routing.Table, g *overlay.Graph, top overlay.Topology, bins int) (*Report, error) {
	n := g.Len()
	r := &Report{
		HopHisto:  make([]int, n+1),
		BandHisto: make([]int, bins+1),
		NodeUsage: make([]int, n),
		BandMin:   1,
	}
	names := g.Names()

	physHops := make([][]int, n)
	physWidth := make([][]float64, n)
	for i := range physHops {
		physHops[i] = make([]int, n)
		physWidth[i] = make([]float64, n)
		for j := range physHops[i] {
			if i == j {
				continue
			}
			path, _, width, err := top.Traverse(names[i], names[j])
			if err != nil {
				return nil, err
			}
			physHops[i][j] = len(path) - 1
			physWidth[i][j] = width
		}
	}

	edgeUse := make(map[[2]int]int)
	sum, count := 0, 0
	bandSum := 0.0
	for _, rt := range tables {
		for _, e := range rt.Entries {
			if e == nil {
				continue
			}
			r.HopHisto[e.Hops]++
			if e.Hops > r.MaxHops {
				r.MaxHops = e.Hops
			}
			sum += e.Hops
			count++

			ratio := float64(e.Width) / float64(int(physWidth[rt.Src][e.Dst]))
			bin := int(ratio * float64(bins))
			if bin > bins {
				bin = bins
			}
			if bin >= 0 {
				r.BandHisto[bin]++
			}
			r.BandMax = math.Max(r.BandMax, ratio)
			r.BandMin = math.Min(r.BandMin, ratio)
			bandSum += ratio

			for i := 1; i < e.Hops; i++ {
				r.NodeUsage[e.Path[i]]++
			}
			routed := 0
			for i := 0; i < e.Hops; i++ {
				edgeUse[[2]int{e.Path[i], e.Path[i+1]}]++
				routed += physHops[e.Path[i]][e.Path[i+1]]
			}
			excess := routed - physHops[rt.Src][e.Dst]
			for len(r.Excess) <= excess {
				r.Excess = append(r.Excess, 0)
			}
			r.Excess[excess]++
		}
	}
	r.HopHisto = r.HopHisto[:r.MaxHops+1]
	if count > 0 {
		r.AvgHops = float64(sum) / float64(count)
		r.BandAvg = bandSum / float64(count)
	}

	for _, c := range edgeUse {
		for len(r.EdgeHisto) <= c {
			r.EdgeHisto = append(r.EdgeHisto, 0)
		}
		r.EdgeHisto[c]++
	}
	return r, nil
}

// Print writes the report in a line oriented, grep friendly format.
func (r *Report) Print(w io.Writer) {
	fmt.Fprintf(w, "HOPS max: %d\n", r.MaxHops)
	fmt.Fprintf(w, "HOPS avg: %.6f\n", r.AvgHops)
	for h := 1; h < len(r.HopHisto); h++ {
		fmt.Fprintf(w, "HOPS: %d: %d\n", h, r.HopHisto[h])
	}

	bins := len(r.BandHisto) - 1
	fmt.Fprintf(w, "BANDCAP min: %.6f\n", r.BandMin)
	fmt.Fprintf(w, "BANDCAP max: %.6f\n", r.BandMax)
	fmt.Fprintf(w, "BANDCAP avg: %.6f\n", r.BandAvg)
	for i, c := range r.BandHisto {
		fmt.Fprintf(w, "BANDCAP: %.3f: %d\n", float64(i)/float64(bins), c)
	}

	maxUse, minUse := 0, math.MaxInt32
	for _, u := range r.NodeUsage {
		if u > maxUse {
			maxUse = u
		}
		if u < minUse {
			minUse = u
		}
	}
	fmt.Fprintf(w, "NODE HOTSPOT min: %d\n", minUse)
	fmt.Fprintf(w, "NODE HOTSPOT max: %d\n", maxUse)
	histo := make([]int, maxUse/nodeHotspotBin+1)
	for pid, u := range r.NodeUsage {
		fmt.Fprintf(w, "NODE HOTSPOT: [%d]: %d\n", pid, u)
		histo[u/nodeHotspotBin]++
	}
	for i, c := range histo {
		fmt.Fprintf(w, "NODE HOTSPOT: %d: %d\n", i*nodeHotspotBin, c)
	}

	for i, c := range r.EdgeHisto {
		fmt.Fprintf(w, "EDGE HOTSPOT: %d: %d\n", i, c)
	}
	for i, c := range r.Excess {
		fmt.Fprintf(w, "EXCESS %d: %d\n", i, c)
	}
}

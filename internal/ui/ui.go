// Package ui renders connectivity reports for the command line. Status lines
// go to the status writer with ANSI colour, report tables go to the output
// writer uncoloured so they can be piped.
package ui

import (
	"fmt"
	"io"
	"math"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/papapumpkin/ratsnest/internal/engine"
	"github.com/papapumpkin/ratsnest/internal/geom"
	"github.com/papapumpkin/ratsnest/internal/pcb"
)

// ANSI SGR codes.
const (
	reset  = "\033[0m"
	bold   = "\033[1m"
	dim    = "\033[2m"
	yellow = "\033[33m"
	green  = "\033[32m"
	red    = "\033[31m"
	cyan   = "\033[36m"
)

// Printer writes user-facing output.
type Printer struct {
	out    io.Writer
	status io.Writer
}

// New returns a Printer writing reports to out and status lines to status.
func New(out, status io.Writer) *Printer {
	return &Printer{out: out, status: status}
}

// Info prints a dimmed status line.
func (p *Printer) Info(msg string) {
	fmt.Fprintf(p.status, dim+"%s"+reset+"\n", msg)
}

// Warn prints a yellow warning line.
func (p *Printer) Warn(msg string) {
	fmt.Fprintf(p.status, yellow+bold+"⚠ "+reset+"%s\n", msg)
}

// Error prints a red error line.
func (p *Printer) Error(msg string) {
	fmt.Fprintf(p.status, red+bold+"error: "+reset+"%s\n", msg)
}

// BoardLoaded announces a freshly loaded board.
func (p *Printer) BoardLoaded(path string, b *pcb.Board) {
	fmt.Fprintf(p.status, cyan+"◆ board"+reset+" %s "+dim+"(%d features, %d nets)"+reset+"\n",
		path, len(b.Features), len(b.Nets))
}

// Disjoint prints the missing connections found by a connectivity check.
func (p *Printer) Disjoint(report []engine.DisjointNet) {
	if len(report) == 0 {
		fmt.Fprintln(p.status, green+bold+"✓ all nets connected"+reset)
		return
	}
	fmt.Fprintf(p.status, red+bold+"✗ %d missing connection(s)"+reset+"\n", len(report))

	tw := tabwriter.NewWriter(p.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NET\tFROM\tTO\tLENGTH")
	for _, r := range report {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			r.NetName, endpoint(r.A, r.PosA), endpoint(r.B, r.PosB), length(r.PosA, r.PosB))
	}
	_ = tw.Flush()
}

// NetStats is one row of the stats table.
type NetStats struct {
	Net         int
	Name        string
	Nodes       int
	Pads        int
	Unconnected int
}

// Stats prints the per-net table followed by a totals line.
func (p *Printer) Stats(rows []NetStats) {
	tw := tabwriter.NewWriter(p.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CODE\tNET\tNODES\tPADS\tUNCONNECTED")
	var nodes, pads, unconnected int
	for _, r := range rows {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%d\n", r.Net, r.Name, r.Nodes, r.Pads, r.Unconnected)
		nodes += r.Nodes
		pads += r.Pads
		unconnected += r.Unconnected
	}
	fmt.Fprintf(tw, "\ttotal\t%d\t%d\t%d\n", nodes, pads, unconnected)
	_ = tw.Flush()
}

// Conflicts prints clusters that short different nets together.
func (p *Printer) Conflicts(cs []engine.Conflict, name func(int) string) {
	for _, c := range cs {
		names := make([]string, 0, len(c.Nets))
		for _, n := range c.Nets {
			names = append(names, name(n))
		}
		p.Warn(fmt.Sprintf("short between %s via %s", strings.Join(names, ", "), strings.Join(c.Features, ", ")))
	}
}

// Islands prints the isolated outlines of a zone.
func (p *Printer) Islands(zone string, islands []int) {
	if len(islands) == 0 {
		fmt.Fprintf(p.status, green+"✓ zone %s"+reset+" has no isolated islands\n", zone)
		return
	}
	fmt.Fprintf(p.status, yellow+bold+"⚠ zone %s"+reset+" has %d isolated island(s)\n", zone, len(islands))
	for _, i := range islands {
		fmt.Fprintf(p.out, "%s\toutline %d\n", zone, i)
	}
}

// Reloaded summarises one watch-mode reload.
func (p *Printer) Reloaded(c pcb.Changes, unconnected int, elapsed time.Duration) {
	color := green
	if unconnected > 0 {
		color = yellow
	}
	fmt.Fprintf(p.status, cyan+"↻ reload"+reset+" +%d ~%d -%d "+color+"%d unconnected"+reset+dim+" (%s)"+reset+"\n",
		len(c.Added), len(c.Updated), len(c.Removed), unconnected, elapsed.Round(time.Millisecond))
}

func endpoint(f pcb.Feature, at geom.Point) string {
	if f == nil {
		return at.String()
	}
	return fmt.Sprintf("%s %s@%s", f.Kind(), f.ID(), at)
}

func length(a, b geom.Point) string {
	return fmt.Sprintf("%.1f", math.Sqrt(float64(a.DistSq(b))))
}

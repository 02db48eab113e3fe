package main

import (
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/cs-au-dk/reach/utils/dot"
)

// writeGraph writes a DOT graph to name, rendering it through graphviz
// unless the configured format is dot.
func (p *pipeline) writeGraph(name string, g *dot.DotGraph) error {
	data, err := g.Bytes()
	if err != nil {
		return errors.Wrap(err, "rendering dot graph")
	}
	if p.opts.ImageFormat == "dot" {
		return errors.Wrapf(os.WriteFile(name, data, 0o644), "writing %s", name)
	}
	return dot.DotToImage(name, p.opts.ImageFormat, data)
}

func (p *pipeline) writeCFA() error {
	if p.opts.CFAOut == "" {
		return nil
	}
	p.log.WithField("file", p.opts.CFAOut).Info("Writing automaton")
	return p.writeGraph(p.opts.CFAOut, p.cfa.ToDot())
}

// writeARG writes the final graph of a run. Runs of several properties get
// the property name inserted before the file extension.
func (p *pipeline) writeARG(r *run) error {
	name := p.opts.ARGOut
	if name == "" {
		return nil
	}
	checked := len(p.opts.Properties)
	if checked == 0 {
		checked = len(p.cfa.Properties())
	}
	if checked > 1 && r.property != "" {
		ext := ""
		if i := strings.LastIndex(name, "."); i > 0 {
			name, ext = name[:i], name[i:]
		}
		name = fmt.Sprintf("%s-%s%s", name, r.property, ext)
	}
	p.log.WithFields(logrus.Fields{"file": name, "nodes": r.rs.ARG.Size()}).Info("Writing ARG")
	return p.writeGraph(name, r.rs.ARG.ToDot())
}

// cfaMetrics prints the distribution of branching degrees over the
// locations of the automaton.
func (p *pipeline) cfaMetrics(w io.Writer) {
	prec2 := func(n float64) float64 {
		return math.Floor(n*100) / 100
	}

	count := map[int]int{}
	for _, n := range p.cfa.Nodes {
		count[len(n.Leaving())]++
	}
	degrees := make([]int, 0, len(count))
	for d := range count {
		degrees = append(degrees, d)
	}
	sort.Ints(degrees)

	fmt.Fprintln(w, "================ Automaton =====================")
	fmt.Fprintln(w, "Function:", color.BlueString(p.cfa.Function))
	fmt.Fprintln(w, "Locations:", color.GreenString("%d", len(p.cfa.Nodes)), "Edges:", color.GreenString("%d", len(p.cfa.Edges)))
	fmt.Fprintln(w, "Variables:", color.GreenString("%d", len(p.cfa.Variables())))
	fmt.Fprintln(w, "Properties:", color.HiRedString("%v", p.cfa.Properties()))

	fmt.Fprintln(w, "\nOutgoing degree of locations")
	for _, d := range degrees {
		var colorize func(string, ...interface{}) string
		switch {
		case d == 0:
			colorize = color.BlueString
		case d == 1:
			colorize = color.GreenString
		case d == 2:
			colorize = color.YellowString
		default:
			colorize = color.HiRedString
		}
		nodes := count[d]
		percent := prec2(float64(nodes) / float64(len(p.cfa.Nodes)) * 100)
		fmt.Fprintln(w, colorize("%v", d), "successors at", percent, "% ("+color.HiCyanString("%v", nodes)+") of locations")
	}
}

// Package dot builds graphs in the DOT language and renders them to images
// through the embedded graphviz library.
package dot

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/template"

	"github.com/goccy/go-graphviz"
	"github.com/pkg/errors"
)

// DotToImage renders a DOT description to outfname in the given format
// (svg, png, jpg).
func DotToImage(outfname string, format string, dot []byte) (err error) {
	g := graphviz.New()
	defer g.Close()

	graph, err := graphviz.ParseBytes(dot)
	if err != nil {
		return errors.Wrap(err, "parsing dot graph")
	}
	defer func() {
		if cerr := graph.Close(); err == nil {
			err = cerr
		}
	}()

	return errors.Wrapf(
		g.RenderFilename(graph, graphviz.Format(format), outfname),
		"rendering %s", outfname)
}

var tmpl = template.Must(template.New("dot").Option("missingkey=zero").Parse(`
{{- define "node" -}}
	{{printf "%q [ %s ]" .ID .Attrs}}
{{- end}}

{{- define "edge" -}}
	{{printf "%q -> %q [ %s ]" .From .To .Attrs}}
{{- end}}

{{- define "cluster" -}}
	{{printf "subgraph %q {" .}}
		{{.Attrs.Lines}}
		{{- range .Nodes}}
		{{template "node" .}}
		{{- end}}
	}
{{- end -}}

digraph {{or .Name "G"}} {
	label="{{.Title}}";
	labeljust="l";
	fontname="Arial";
	fontsize="14";
	rankdir="{{or .Options.rankdir "LR"}}";
	nodesep="{{or .Options.nodesep "0.3"}}";

	node [shape="box" style="filled" fillcolor="white" fontname="Verdana" penwidth="1.0" margin="0.05,0.0"];
	edge [minlen="{{or .Options.minlen "1"}}"]

	{{- range .Clusters}}
	{{template "cluster" .}}
	{{- end}}

	{{- range .Nodes}}
	{{template "node" .}}
	{{- end}}

	{{- range .Edges}}
	{{template "edge" .}}
	{{- end}}
}
`))

// DotCluster groups nodes that graphviz lays out together.
type DotCluster struct {
	ID    string
	Nodes []*DotNode
	Attrs DotAttrs
}

func NewDotCluster(id string) *DotCluster {
	return &DotCluster{ID: id, Attrs: make(DotAttrs)}
}

// String is the subgraph name; graphviz draws only subgraphs named cluster_*.
func (c *DotCluster) String() string {
	return "cluster_" + c.ID
}

type DotNode struct {
	ID    string
	Attrs DotAttrs
}

func (n *DotNode) String() string { return n.ID }

type DotEdge struct {
	From  *DotNode
	To    *DotNode
	Attrs DotAttrs
}

type DotAttrs map[string]string

// List renders the attributes sorted by key.
func (p DotAttrs) List() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	l := make([]string, len(keys))
	for i, k := range keys {
		l[i] = fmt.Sprintf("%s=%q;", k, p[k])
	}
	return l
}

func (p DotAttrs) String() string { return strings.Join(p.List(), " ") }
func (p DotAttrs) Lines() string  { return strings.Join(p.List(), "\n") }

type DotGraph struct {
	Name     string
	Title    string
	Clusters []*DotCluster
	Nodes    []*DotNode
	Edges    []*DotEdge
	Options  map[string]string
}

// AllNodes lists the top level nodes followed by the nodes of each cluster.
func (g *DotGraph) AllNodes() []*DotNode {
	res := append([]*DotNode(nil), g.Nodes...)
	for _, c := range g.Clusters {
		res = append(res, c.Nodes...)
	}
	return res
}

func (g *DotGraph) CountNodes() int {
	res := len(g.Nodes)
	for _, cluster := range g.Clusters {
		res += len(cluster.Nodes)
	}
	return res
}

// Node finds a node by ID, in clusters too.
func (g *DotGraph) Node(id string) *DotNode {
	for _, n := range g.AllNodes() {
		if n.ID == id {
			return n
		}
	}
	return nil
}

func (g *DotGraph) WriteDot(w io.Writer) error {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, g); err != nil {
		return errors.Wrap(err, "executing dot template")
	}
	_, err := buf.WriteTo(w)
	return err
}

func (g *DotGraph) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	err := g.WriteDot(&buf)
	return buf.Bytes(), err
}

// Package vistool serves the reachability graphs of finished runs over HTTP
// as JSON elements for a graph viewer.
package vistool

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/cs-au-dk/reach/analysis/arg"
)

type element struct {
	Group string         `json:"group"`
	Data  map[string]any `json:"data"`
}

func nodeID(id arg.ID) string { return fmt.Sprintf("n-%d", id) }

// elements lists nodes, child edges and covering edges of g.
func elements(g *arg.ARG) []element {
	data := []element{}
	addEdge := func(a, b arg.ID, label string, covering bool) {
		data = append(data, element{
			Group: "edges",
			Data: map[string]any{
				"id":       fmt.Sprintf("%s-%s", nodeID(a), nodeID(b)),
				"source":   nodeID(a),
				"target":   nodeID(b),
				"str":      label,
				"covering": covering,
			},
		})
	}

	for _, id := range g.Nodes() {
		n := g.Node(id)
		data = append(data, element{
			Group: "nodes",
			Data: map[string]any{
				"id":      nodeID(id),
				"str":     fmt.Sprintf("%d\n%v", id, n.State),
				"target":  n.IsTarget(),
				"covered": n.IsCovered(),
				"root":    id == g.Root(),
			},
		})
		for _, p := range n.Parents() {
			label := ""
			if e := n.EdgeFrom(p); e != nil {
				label = e.String()
			}
			addEdge(p, id, label, false)
		}
		if n.IsCovered() {
			addEdge(id, n.CoveredBy(), "covered by", true)
		}
	}
	return data
}

type step struct {
	ID    arg.ID `json:"id"`
	State string `json:"state"`
	Edge  string `json:"edge,omitempty"`
}

func fail(w http.ResponseWriter, code int, err error) {
	w.WriteHeader(code)
	io.WriteString(w, err.Error())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// Handler serves the graphs, keyed by run name:
//
//	/graphs                 names of the runs
//	/graph?name=N           elements of the graph of run N
//	/path?name=N&id=I       path from the root to node I
//	/dot?name=N             the graph in DOT syntax
//
// The graphs must not be modified while the handler is in use.
func Handler(graphs map[string]*arg.ARG) http.Handler {
	lookup := func(w http.ResponseWriter, req *http.Request) (*arg.ARG, bool) {
		name := req.FormValue("name")
		g, ok := graphs[name]
		if !ok {
			fail(w, http.StatusNotFound, errors.Errorf("no run named %q", name))
		}
		return g, ok
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/graphs", func(w http.ResponseWriter, _ *http.Request) {
		names := make([]string, 0, len(graphs))
		for name := range graphs {
			names = append(names, name)
		}
		sort.Strings(names)
		writeJSON(w, names)
	})
	mux.HandleFunc("/graph", func(w http.ResponseWriter, req *http.Request) {
		if g, ok := lookup(w, req); ok {
			writeJSON(w, elements(g))
		}
	})
	mux.HandleFunc("/path", func(w http.ResponseWriter, req *http.Request) {
		g, ok := lookup(w, req)
		if !ok {
			return
		}
		id, err := strconv.Atoi(req.FormValue("id"))
		if err != nil || !g.Contains(arg.ID(id)) {
			fail(w, http.StatusBadRequest, errors.Errorf("bad node id %q", req.FormValue("id")))
			return
		}
		path, err := g.PathTo(arg.ID(id))
		if err != nil {
			fail(w, http.StatusInternalServerError, err)
			return
		}
		steps := make([]step, len(path.States))
		for i, s := range path.States {
			steps[i] = step{ID: s, State: fmt.Sprint(g.State(s))}
			if i > 0 {
				steps[i].Edge = path.Edges[i-1].String()
			}
		}
		writeJSON(w, steps)
	})
	mux.HandleFunc("/dot", func(w http.ResponseWriter, req *http.Request) {
		if g, ok := lookup(w, req); ok {
			w.Header().Set("Content-Type", "text/vnd.graphviz")
			if err := g.ToDot().WriteDot(w); err != nil {
				fail(w, http.StatusInternalServerError, err)
			}
		}
	})
	return mux
}

// Serve listens on addr until ctx is done or a client requests /shutdown.
func Serve(ctx context.Context, addr string, h http.Handler, log logrus.FieldLogger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	mux := http.NewServeMux()
	mux.Handle("/", h)
	mux.HandleFunc("/shutdown", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("OK"))
		cancel()
	})
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("Shutting down graph server")
		}
	}()

	log.Infof("Listening on http://localhost%s", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.Wrap(err, "serving graphs")
	}
	return nil
}

// Package render turns the stored topology of a map into a Graphviz document and
// runs Graphviz to produce the diagram the viewer displays.
package render

import (
	"bytes"
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"text/template"

	"netmap/internal/sqlcgen"
)

//go:embed graph.dot
var graphTmplString string

var graphTmpl = template.Must(template.New("graph").Funcs(template.FuncMap{
	"quote":  quote,
	"pinned": func(pos string) string { return quote(pos + "!") },
}).Parse(graphTmplString))

type Router struct {
	ID    string
	Name  string
	Label string
	// Pos is "x,y" or empty when the router was never placed.
	Pos string
}

type Net struct {
	ID  string
	Pos string
	// Missing marks a placed network that no current link mentions.
	Missing bool
}

type Link struct {
	Router string
	Net    string
	Cost   int32
}

type Neighbour struct {
	Router1 string
	Link1   string
	Router2 string
	Link2   string
}

type Graph struct {
	Layout     string
	Routers    []Router
	Nets       []Net
	Links      []Link
	Neighbours []Neighbour
}

// Topology is the raw data of one map as read from the database.
type Topology struct {
	Links      []sqlcgen.Link
	Positions  []sqlcgen.Position
	Names      []sqlcgen.NodeName
	Neighbours []sqlcgen.Neighbour
}

// Build assembles the graph for one layout. Routers are ordered by label, networks by id.
func Build(layout string, topo Topology) Graph {
	pos := make(map[string]string, len(topo.Positions))
	for _, p := range topo.Positions {
		pos[p.NodeID] = fmt.Sprintf("%d,%d", p.X, p.Y)
	}
	names := make(map[string]string, len(topo.Names))
	for _, n := range topo.Names {
		names[n.NodeID] = n.Name
	}

	g := Graph{Layout: layout}
	routers := make(map[string]bool)
	seen := make(map[string]bool)
	for _, l := range topo.Links {
		if !seen[l.Router] {
			name := names[l.Router]
			label := name
			if strings.TrimSpace(label) == "" {
				label = l.Router
			}
			g.Routers = append(g.Routers, Router{ID: l.Router, Name: name, Label: label, Pos: pos[l.Router]})
			routers[l.Router] = true
			seen[l.Router] = true
		}
		if !seen[l.Net] {
			g.Nets = append(g.Nets, Net{ID: l.Net, Pos: pos[l.Net]})
			seen[l.Net] = true
		}
		g.Links = append(g.Links, Link{Router: l.Router, Net: l.Net, Cost: l.Cost})
	}
	for id, p := range pos {
		if !seen[id] {
			g.Nets = append(g.Nets, Net{ID: id, Pos: p, Missing: true})
		}
	}

	pairs := make(map[[2]string]bool)
	for _, n := range topo.Neighbours {
		if !routers[n.Node1ID] || !routers[n.Node2ID] || n.Node1ID == n.Node2ID {
			continue
		}
		key := [2]string{n.Node1ID, n.Node2ID}
		if key[0] > key[1] {
			key[0], key[1] = key[1], key[0]
		}
		if pairs[key] {
			continue
		}
		pairs[key] = true
		g.Neighbours = append(g.Neighbours, Neighbour{
			Router1: n.Node1ID,
			Link1:   n.Link1,
			Router2: n.Node2ID,
			Link2:   n.Link2,
		})
	}

	sort.SliceStable(g.Routers, func(i, j int) bool {
		if g.Routers[i].Label != g.Routers[j].Label {
			return g.Routers[i].Label < g.Routers[j].Label
		}
		return g.Routers[i].ID < g.Routers[j].ID
	})
	sort.Slice(g.Nets, func(i, j int) bool { return g.Nets[i].ID < g.Nets[j].ID })
	sort.SliceStable(g.Neighbours, func(i, j int) bool {
		a, b := g.Neighbours[i], g.Neighbours[j]
		if a.Router1 != b.Router1 {
			return a.Router1 < b.Router1
		}
		return a.Router2 < b.Router2
	})
	return g
}

// DOT renders the graph as a Graphviz document.
func (g Graph) DOT() ([]byte, error) {
	var buf bytes.Buffer
	if err := graphTmpl.Execute(&buf, g); err != nil {
		return nil, fmt.Errorf("execute graph template: %w", err)
	}
	return buf.Bytes(), nil
}

func quote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)
	return `"` + r.Replace(s) + `"`
}

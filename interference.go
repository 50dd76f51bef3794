package asmalloc

import (
	"fmt"

	"github.com/asmkit/asmalloc/pkg/ir"
)

// ConflictGraph is the register-interference graph of one class: an
// undirected edge joins two registers whose live-range lists overlap.
type ConflictGraph struct {
	class *ir.RegClass
	// nodes keeps first-mention order; every iteration over the graph
	// follows it.
	nodes []ir.Register
	adj   map[ir.Register]map[ir.Register]bool
}

// Class returns the register class the graph covers.
func (g *ConflictGraph) Class() *ir.RegClass { return g.class }

// Nodes returns the graph's registers in stable order.
func (g *ConflictGraph) Nodes() []ir.Register { return g.nodes }

// Neighbors returns reg's interference neighbors in node order.
func (g *ConflictGraph) Neighbors(reg ir.Register) []ir.Register {
	var out []ir.Register
	for _, node := range g.nodes {
		if g.adj[reg][node] {
			out = append(out, node)
		}
	}
	return out
}

// Interferes reports whether a and b share an edge.
func (g *ConflictGraph) Interferes(a, b ir.Register) bool {
	return g.adj[a][b]
}

// ConflictMap groups the per-class interference graphs.
type ConflictMap struct {
	classes []*ir.RegClass
	graphs  map[*ir.RegClass]*ConflictGraph
}

// Classes returns the class list in architecture order.
func (m *ConflictMap) Classes() []*ir.RegClass { return m.classes }

// Graph returns the interference graph of class.
func (m *ConflictMap) Graph(class *ir.RegClass) *ConflictGraph { return m.graphs[class] }

// BuildConflicts derives the interference graphs from the live-range map.
// Every range must be valid by now; a dangling endpoint is a structural
// error.
func BuildConflicts(lrm *LiveRangeMap) (*ConflictMap, error) {
	if err := lrm.Check(); err != nil {
		return nil, err
	}
	m := &ConflictMap{
		classes: lrm.Classes(),
		graphs:  make(map[*ir.RegClass]*ConflictGraph, len(lrm.Classes())),
	}
	for _, class := range lrm.Classes() {
		regs := lrm.Registers(class)
		g := &ConflictGraph{
			class: class,
			nodes: regs,
			adj:   make(map[ir.Register]map[ir.Register]bool, len(regs)),
		}
		for _, reg := range regs {
			g.adj[reg] = make(map[ir.Register]bool)
		}
		for i, a := range regs {
			for _, b := range regs[i+1:] {
				if rangeListsIntersect(lrm.Ranges(a), lrm.Ranges(b)) {
					g.adj[a][b] = true
					g.adj[b][a] = true
				}
			}
		}
		m.graphs[class] = g
	}
	return m, nil
}

// CheckColoring verifies that no interference edge joins two registers of
// the same color.
func CheckColoring(conflicts *ConflictMap, coloring *ir.Coloring) error {
	for _, class := range conflicts.Classes() {
		g := conflicts.Graph(class)
		for _, reg := range g.Nodes() {
			regColor, ok := coloring.Index(reg)
			if !ok {
				continue
			}
			for _, neighbor := range g.Neighbors(reg) {
				if c, ok := coloring.Index(neighbor); ok && c == regColor {
					return fmt.Errorf("color conflict for %s(%d) vs %s(%d)", reg, regColor, neighbor, c)
				}
			}
		}
	}
	return nil
}

package asmalloc

import (
	"fmt"
	"io"

	"github.com/asmkit/asmalloc/pkg/ir"
)

// Assignator runs the coloring passes of one architecture.
type Assignator struct {
	arch    *ir.Architecture
	verbose io.Writer
}

// NewAssignator builds an assignator for arch.
func NewAssignator(arch *ir.Architecture) *Assignator {
	return &Assignator{arch: arch}
}

// SetVerbose installs a sink for per-stage progress messages.
func (a *Assignator) SetVerbose(w io.Writer) { a.verbose = w }

func (a *Assignator) logf(format string, args ...any) {
	if a.verbose != nil {
		fmt.Fprintf(a.verbose, format+"\n", args...)
	}
}

// CreateColoring assigns a physical index to every register of every
// allocatable class: physical registers keep their own index, virtual
// registers are colored most-constrained-first, each together with its
// linked group in one atomic backtracking search. Classes with an empty
// physical pool are symbolic and skipped.
func (a *Assignator) CreateColoring(conflicts *ConflictMap) (*ir.Coloring, error) {
	coloring := ir.NewColoring()
	for _, class := range conflicts.Classes() {
		file := a.arch.File(class)
		if file == nil || file.NumPhysRegs() == 0 {
			continue
		}
		graph := conflicts.Graph(class)

		for _, reg := range graph.Nodes() {
			if phys, ok := reg.(*ir.PhysicalRegister); ok {
				coloring.Set(phys, phys.Index())
			}
		}

		for {
			next := a.pickMaxDegree(graph, coloring)
			if next == nil {
				break
			}
			group := linkedGroup(next, coloring)
			if len(group) == 0 {
				return nil, fmt.Errorf("uncolorable non-virtual register %s in class %s", next, class.Name)
			}
			if !a.allocateGroup(group, graph, coloring, file) {
				return nil, fmt.Errorf("no feasible allocation for %s (linked group %v) in class %s",
					next, group, class.Name)
			}
			for _, reg := range group {
				index, _ := coloring.Index(reg)
				if index >= file.NumPhysRegs() {
					return nil, fmt.Errorf("assigned index %d for %s exceeds register file %s (%d registers)",
						index, reg, class.Name, file.NumPhysRegs())
				}
				a.logf("register %s of class %s has been assigned color %d", reg, class.Name, index)
			}
		}
	}
	return coloring, nil
}

// pickMaxDegree selects the uncolored register with the most uncolored
// interference neighbors; ties resolve to the earliest-mentioned register.
func (a *Assignator) pickMaxDegree(graph *ConflictGraph, coloring *ir.Coloring) ir.Register {
	var best ir.Register
	bestDegree := -1
	for _, reg := range graph.Nodes() {
		if _, ok := coloring.Index(reg); ok {
			continue
		}
		degree := 0
		for _, neighbor := range graph.Neighbors(reg) {
			if _, ok := coloring.Index(neighbor); !ok {
				degree++
			}
		}
		if degree > bestDegree {
			best = reg
			bestDegree = degree
		}
	}
	return best
}

// linkedGroup collects reg plus its uncolored linked registers, in linkage
// declaration order.
func linkedGroup(reg ir.Register, coloring *ir.Coloring) []*ir.VirtualRegister {
	v, ok := reg.(*ir.VirtualRegister)
	if !ok {
		return nil
	}
	group := []*ir.VirtualRegister{v}
	for _, linked := range v.Linked() {
		if _, colored := coloring.Index(linked.Reg); colored {
			continue
		}
		group = append(group, linked.Reg)
	}
	return group
}

// allocateGroup colors the group by depth-first backtracking. The coloring
// itself is the journal: a tentative assignment is recorded with Set and
// reverted with Unset when the tail cannot be completed.
func (a *Assignator) allocateGroup(group []*ir.VirtualRegister, graph *ConflictGraph, coloring *ir.Coloring, file *ir.RegFile) bool {
	if len(group) == 0 {
		return true
	}
	head, tail := group[0], group[1:]

	available := make([]int, 0, file.NumPhysRegs())
	for c := 0; c < file.NumPhysRegs(); c++ {
		if head.Constraint()(c) && file.Allocatable(c) {
			available = append(available, c)
		}
	}
	if len(available) == 0 {
		return false
	}

	unavailable := make(map[int]bool)
	for _, neighbor := range graph.Neighbors(head) {
		if c, ok := coloring.Index(neighbor); ok {
			unavailable[c] = true
		}
	}
	available = filterColors(available, func(c int) bool { return !unavailable[c] })

	for _, linked := range head.Linked() {
		if _, colored := coloring.Index(linked.Reg); !colored {
			continue
		}
		permitted := make(map[int]bool)
		for _, c := range linked.Indices(coloring) {
			permitted[c] = true
		}
		available = filterColors(available, func(c int) bool { return permitted[c] })
	}

	for _, c := range available {
		coloring.Set(head, c)
		if a.allocateGroup(tail, graph, coloring, file) {
			return true
		}
		coloring.Unset(head)
	}
	return false
}

func filterColors(colors []int, keep func(int) bool) []int {
	out := colors[:0]
	for _, c := range colors {
		if keep(c) {
			out = append(out, c)
		}
	}
	return out
}

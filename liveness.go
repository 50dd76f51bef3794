// Package asmalloc colors the virtual registers of a parsed program: it
// computes liveness over the CFG, derives per-register live ranges, builds
// one interference graph per register class and searches for a physical
// index assignment satisfying the per-register and cross-register
// constraints. Spills are not materialized; an infeasible program is an
// allocation error.
package asmalloc

import (
	"fmt"

	"golang.org/x/exp/slices"

	"github.com/asmkit/asmalloc/pkg/ir"
)

type regSet map[ir.Register]struct{}

func (s regSet) add(r ir.Register)      { s[r] = struct{}{} }
func (s regSet) has(r ir.Register) bool { _, ok := s[r]; return ok }

// sorted returns the set's members ordered by their stable sort key, so that
// every downstream iteration is reproducible.
func (s regSet) sorted() []ir.Register {
	out := make([]ir.Register, 0, len(s))
	for r := range s {
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b ir.Register) bool { return ir.SortKey(a) < ir.SortKey(b) })
	return out
}

// Liveness holds the fixpoint of the backward dataflow: the registers alive
// at entry and exit of every reachable block. Unreachable blocks keep empty
// sets and take no part in allocation.
type Liveness struct {
	in, out   map[*ir.BasicBlock]regSet
	reachable map[*ir.BasicBlock]bool
}

// LiveIn returns the registers alive at entry of bb, in stable order.
func (l *Liveness) LiveIn(bb *ir.BasicBlock) []ir.Register { return l.in[bb].sorted() }

// LiveOut returns the registers alive at exit of bb, in stable order.
func (l *Liveness) LiveOut(bb *ir.BasicBlock) []ir.Register { return l.out[bb].sorted() }

// Reachable reports whether bb is reachable from the source block.
func (l *Liveness) Reachable(bb *ir.BasicBlock) bool { return l.reachable[bb] }

// registersOf filters an operand list down to canonical registers:
// immediates and symbols are dropped, aliases resolve to their base, and
// special registers are left out entirely (the symbolic file has no indices
// to allocate).
func registersOf(ops []ir.Operand) []ir.Register {
	var out []ir.Register
	for _, op := range ops {
		if reg, ok := op.(ir.Register); ok && !reg.IsSpecial() {
			out = append(out, reg.Base())
		}
	}
	return out
}

// ComputeLiveness runs the standard backward dataflow over the reachable
// CFG. The sink block is seeded with the post-used registers; the worklist
// re-enqueues predecessors whenever a block's live-in grows. Termination is
// guaranteed: the sets only grow inside a finite universe.
func ComputeLiveness(prog *ir.Program) *Liveness {
	reachable := prog.Reachable()
	l := &Liveness{
		in:        make(map[*ir.BasicBlock]regSet, len(prog.Blocks)),
		out:       make(map[*ir.BasicBlock]regSet, len(prog.Blocks)),
		reachable: reachable,
	}
	gens := make(map[*ir.BasicBlock]regSet, len(prog.Blocks))
	kills := make(map[*ir.BasicBlock]regSet, len(prog.Blocks))
	for _, bb := range prog.Blocks {
		l.in[bb] = regSet{}
		l.out[bb] = regSet{}
		gen, kill := regSet{}, regSet{}
		if reachable[bb] {
			defined := regSet{}
			for _, bundle := range bb.Bundles {
				for _, insn := range bundle.Insns {
					for _, reg := range registersOf(insn.Uses) {
						if !defined.has(reg) {
							// Used before any definition in the block: alive
							// at block entry.
							gen.add(reg)
						}
					}
					for _, reg := range registersOf(insn.Defs) {
						kill.add(reg)
						defined.add(reg)
					}
				}
			}
		}
		gens[bb], kills[bb] = gen, kill
	}

	for _, reg := range prog.PostUsed {
		l.in[prog.Sink].add(reg.Base())
		l.out[prog.Sink].add(reg.Base())
	}

	var worklist []*ir.BasicBlock
	for _, bb := range prog.Blocks {
		if reachable[bb] {
			worklist = append(worklist, bb)
		}
	}
	for len(worklist) > 0 {
		bb := worklist[0]
		worklist = worklist[1:]
		if bb == prog.Sink {
			// The sink keeps its seeded sets.
			continue
		}
		out := regSet{}
		for _, succ := range bb.Succs {
			for reg := range l.in[succ] {
				out.add(reg)
			}
		}
		l.out[bb] = out
		in := regSet{}
		for reg := range gens[bb] {
			in.add(reg)
		}
		for reg := range out {
			if !kills[bb].has(reg) {
				in.add(reg)
			}
		}
		grown := false
		for reg := range in {
			if !l.in[bb].has(reg) {
				grown = true
				break
			}
		}
		if grown {
			l.in[bb] = in
			for _, pred := range bb.Preds {
				if reachable[pred] {
					worklist = append(worklist, pred)
				}
			}
		}
	}
	return l
}

// CheckBoundary enforces the entry consistency of the liveness result:
// every declared pre-defined register must be alive at program entry, and
// nothing but pre-defined or constant registers may be.
func CheckBoundary(prog *ir.Program, l *Liveness) error {
	sourceOut := l.out[prog.Source]
	declared := regSet{}
	for _, reg := range prog.PreDefined {
		declared.add(reg.Base())
		if !sourceOut.has(reg.Base()) {
			return fmt.Errorf("%s is declared in pre-defined list but not alive at program source", reg)
		}
	}
	for _, reg := range sourceOut.sorted() {
		if declared.has(reg) {
			continue
		}
		if phys, ok := reg.(*ir.PhysicalRegister); ok && phys.Const() {
			continue
		}
		return fmt.Errorf("%s is alive at program source but not declared in pre-defined list", reg)
	}
	return nil
}

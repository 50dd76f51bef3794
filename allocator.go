package asmalloc

import (
	"fmt"
	"io"

	"github.com/davecgh/go-spew/spew"

	"github.com/asmkit/asmalloc/pkg/ir"
)

// Allocate runs the whole pipeline over a finished program: liveness,
// boundary checks, live ranges, interference and coloring. It returns the
// validated coloring or the first fatal condition encountered.
func (a *Assignator) Allocate(prog *ir.Program) (*ir.Coloring, error) {
	live := ComputeLiveness(prog)
	if a.verbose != nil {
		a.dumpLiveness(prog, live)
	}
	if err := CheckBoundary(prog, live); err != nil {
		return nil, err
	}

	lrm := NewLiveRangeMap(a.arch.Classes())
	if err := lrm.Build(prog, live); err != nil {
		return nil, err
	}

	conflicts, err := BuildConflicts(lrm)
	if err != nil {
		return nil, err
	}

	coloring, err := a.CreateColoring(conflicts)
	if err != nil {
		return nil, err
	}
	if err := CheckColoring(conflicts, coloring); err != nil {
		return nil, err
	}
	return coloring, nil
}

func (a *Assignator) dumpLiveness(prog *ir.Program, live *Liveness) {
	summary := make(map[string][]string, len(prog.Blocks))
	for _, bb := range prog.Blocks {
		var regs []string
		for _, reg := range live.LiveIn(bb) {
			regs = append(regs, reg.String())
		}
		summary[fmt.Sprintf("live_in[%s#%d]", bb.Label, bb.Index)] = regs
	}
	spew.Fdump(a.verbose, summary)
}

// DumpAllocation writes one "#define <name> <index>" line per colored
// virtual register, classes in architecture order, names sorted.
func DumpAllocation(arch *ir.Architecture, coloring *ir.Coloring, w io.Writer) error {
	for _, class := range arch.Classes() {
		for _, reg := range coloring.AssignedVirtual(class) {
			index, _ := coloring.Index(reg)
			if _, err := fmt.Fprintf(w, "#define %s %d\n", reg.Name(), index); err != nil {
				return err
			}
		}
	}
	return nil
}

// RenderProgram writes the allocated listing: labels, one instruction per
// line, and the bundle terminator on bundling ISAs.
func RenderProgram(arch *ir.Architecture, prog *ir.Program, coloring *ir.Coloring, w io.Writer) error {
	for _, bb := range prog.Blocks {
		if bb == prog.Source || bb == prog.Sink {
			continue
		}
		if bb.Empty() && len(bb.Labels) == 0 {
			continue
		}
		for _, label := range bb.Labels {
			if _, err := fmt.Fprintf(w, "%s:\n", label); err != nil {
				return err
			}
		}
		for _, bundle := range bb.Bundles {
			for _, insn := range bundle.Insns {
				if _, err := fmt.Fprintf(w, "\t%s\n", insn.Render(coloring)); err != nil {
					return err
				}
			}
			if arch.HasBundles() {
				if _, err := fmt.Fprintln(w, ";;"); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

package asmalloc

import (
	"fmt"
	"math"

	"github.com/asmkit/asmalloc/pkg/ir"
)

// Position locates a point of the program in the (block, bundle) order the
// live ranges are expressed in. The block component is the block's position
// in program order.
type Position struct {
	Block  int
	Bundle int
}

// BeforeStart sorts below every program position; it anchors pre-defined
// registers.
var BeforeStart = Position{Block: -1, Bundle: -1}

// AfterEnd sorts above every program position; it anchors post-used
// registers.
var AfterEnd = Position{Block: math.MaxInt32, Bundle: 0}

// Cmp orders positions lexicographically.
func (p Position) Cmp(q Position) int {
	switch {
	case p.Block != q.Block:
		if p.Block < q.Block {
			return -1
		}
		return 1
	case p.Bundle != q.Bundle:
		if p.Bundle < q.Bundle {
			return -1
		}
		return 1
	}
	return 0
}

func (p Position) String() string {
	switch {
	case p == BeforeStart:
		return "before-start"
	case p == AfterEnd:
		return "after-end"
	}
	return fmt.Sprintf("(%d,%d)", p.Block, p.Bundle)
}

// LiveRange is one half-open interval of a register's lifetime. A range is
// valid once both endpoints are set.
type LiveRange struct {
	Start, Stop       Position
	HasStart, HasStop bool
	// StartDebug/StopDebug reference the defining and last-using
	// instructions for diagnostics.
	StartDebug, StopDebug ir.DebugInfo
}

// UpdateStart lowers the range start to p.
func (r *LiveRange) UpdateStart(p Position, dbg ir.DebugInfo) {
	if !r.HasStart || p.Cmp(r.Start) < 0 {
		r.Start = p
		r.HasStart = true
		r.StartDebug = dbg
	}
}

// UpdateStop raises the range stop to p.
func (r *LiveRange) UpdateStop(p Position, dbg ir.DebugInfo) {
	if !r.HasStop || r.Stop.Cmp(p) < 0 {
		r.Stop = p
		r.HasStop = true
		r.StopDebug = dbg
	}
}

// Valid reports whether both endpoints are set.
func (r *LiveRange) Valid() bool { return r.HasStart && r.HasStop }

// Intersects reports half-open interval overlap. A range stopping where
// another starts does not overlap it: a parallel read and write of the same
// bundle position are compatible.
func (r *LiveRange) Intersects(other *LiveRange) bool {
	if r.Stop.Cmp(other.Start) <= 0 || r.Start.Cmp(other.Stop) >= 0 {
		return false
	}
	return true
}

func (r *LiveRange) String() string {
	return fmt.Sprintf("[%s; %s]", r.Start, r.Stop)
}

// rangeListsIntersect reports whether any pair from the cross product of the
// two lists overlaps.
func rangeListsIntersect(l1, l2 []*LiveRange) bool {
	for _, r1 := range l1 {
		for _, r2 := range l2 {
			if r1.Intersects(r2) {
				return true
			}
		}
	}
	return false
}

// LiveRangeMap stores the disjoint live ranges of every register, grouped by
// register class.
type LiveRangeMap struct {
	classes []*ir.RegClass
	ranges  map[*ir.RegClass]map[ir.Register][]*LiveRange
	// order preserves first-mention order per class.
	order map[*ir.RegClass][]ir.Register
}

// NewLiveRangeMap builds an empty map over the architecture's classes.
func NewLiveRangeMap(classes []*ir.RegClass) *LiveRangeMap {
	m := &LiveRangeMap{
		classes: classes,
		ranges:  make(map[*ir.RegClass]map[ir.Register][]*LiveRange, len(classes)),
		order:   make(map[*ir.RegClass][]ir.Register, len(classes)),
	}
	for _, class := range classes {
		m.ranges[class] = make(map[ir.Register][]*LiveRange)
	}
	return m
}

// Classes returns the class list in architecture order.
func (m *LiveRangeMap) Classes() []*ir.RegClass { return m.classes }

// Registers returns the registers of class in first-mention order.
func (m *LiveRangeMap) Registers(class *ir.RegClass) []ir.Register { return m.order[class] }

// Ranges returns reg's range list.
func (m *LiveRangeMap) Ranges(reg ir.Register) []*LiveRange {
	return m.ranges[reg.Class()][reg]
}

func (m *LiveRangeMap) entry(reg ir.Register) []*LiveRange {
	class := reg.Class()
	if _, ok := m.ranges[class][reg]; !ok {
		m.order[class] = append(m.order[class], reg)
	}
	return m.ranges[class][reg]
}

func (m *LiveRangeMap) lastRange(reg ir.Register) *LiveRange {
	ranges := m.ranges[reg.Class()][reg]
	if len(ranges) == 0 {
		return nil
	}
	return ranges[len(ranges)-1]
}

func (m *LiveRangeMap) appendRange(reg ir.Register, r *LiveRange) {
	ranges := m.entry(reg)
	m.ranges[reg.Class()][reg] = append(ranges, r)
}

// DeclarePreDefined anchors a register alive before the program starts.
func (m *LiveRangeMap) DeclarePreDefined(reg ir.Register) {
	r := &LiveRange{}
	r.UpdateStart(BeforeStart, ir.DebugInfo{})
	m.appendRange(reg.Base(), r)
}

// DeclarePostUsed anchors a register alive after the program ends by
// extending its last range to the after-end sentinel.
func (m *LiveRangeMap) DeclarePostUsed(reg ir.Register) {
	last := m.lastRange(reg.Base())
	if last == nil {
		last = &LiveRange{}
		m.appendRange(reg.Base(), last)
	}
	last.UpdateStop(AfterEnd, ir.DebugInfo{})
}

// Build materializes the live ranges from the liveness fixpoint, walking the
// reachable blocks in program order. It declares the pre-defined registers
// first, so their sentinel range is extended instead of shadowed, and
// anchors the post-used registers afterwards.
func (m *LiveRangeMap) Build(prog *ir.Program, live *Liveness) error {
	for _, reg := range prog.PreDefined {
		m.DeclarePreDefined(reg)
	}

	for blockIndex, bb := range prog.Blocks {
		if bb == prog.Source || bb == prog.Sink {
			// Boundary blocks carry no bundles; their liveness is anchored
			// by the sentinels instead.
			continue
		}
		if !live.Reachable(bb) {
			continue
		}
		for _, reg := range live.LiveIn(bb) {
			if last := m.lastRange(reg); last != nil && last.HasStart && !last.HasStop {
				// Still-open range (pre-defined sentinel): extend it through
				// this block instead of opening a shadowing one.
				continue
			}
			r := &LiveRange{}
			r.UpdateStart(Position{Block: blockIndex, Bundle: -1}, ir.DebugInfo{})
			m.appendRange(reg, r)
		}
		for bundleIndex, bundle := range bb.Bundles {
			pos := Position{Block: blockIndex, Bundle: bundleIndex}
			for _, insn := range bundle.Insns {
				for _, reg := range registersOf(insn.Uses) {
					last := m.lastRange(reg)
					if last == nil {
						// A use with no live-in and no prior def: record the
						// dangling stop; the validity check reports it.
						last = &LiveRange{}
						m.appendRange(reg, last)
					}
					last.UpdateStop(pos, insn.Debug)
				}
				for _, reg := range registersOf(insn.Defs) {
					last := m.lastRange(reg)
					if last != nil && last.HasStart && last.Start == pos {
						// One range per definition position, even when
						// several instructions of the bundle define reg.
						continue
					}
					r := &LiveRange{}
					r.UpdateStart(pos, insn.Debug)
					m.appendRange(reg, r)
				}
			}
		}
		blockEnd := Position{Block: blockIndex, Bundle: len(bb.Bundles)}
		for _, reg := range live.LiveOut(bb) {
			last := m.lastRange(reg)
			if last == nil || !last.HasStart {
				return fmt.Errorf("register %s is alive at end of block %d without any definition", reg, blockIndex)
			}
			last.UpdateStop(blockEnd, ir.DebugInfo{})
		}
	}

	for _, reg := range prog.PostUsed {
		m.DeclarePostUsed(reg)
	}

	// Close dead definitions: a range opened by a def that is never read
	// still occupies its register for the defining bundle.
	for _, class := range m.classes {
		for _, reg := range m.order[class] {
			for _, r := range m.ranges[class][reg] {
				if r.HasStart && !r.HasStop {
					r.UpdateStop(Position{Block: r.Start.Block, Bundle: r.Start.Bundle + 1}, r.StartDebug)
				}
			}
		}
	}
	return nil
}

// Check verifies every range has both endpoints; a stop without a start is a
// use of a register no reachable path defines.
func (m *LiveRangeMap) Check() error {
	for _, class := range m.classes {
		for _, reg := range m.order[class] {
			for _, r := range m.ranges[class][reg] {
				if !r.HasStart {
					return fmt.Errorf("register %s is used at %s without being defined", reg, r.StopDebug)
				}
				if !r.HasStop {
					return fmt.Errorf("register %s is defined at %s without being used", reg, r.StartDebug)
				}
			}
		}
	}
	return nil
}

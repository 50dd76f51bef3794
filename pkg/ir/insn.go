package ir

import "fmt"

// DebugInfo locates a parsed entity in its source file for diagnostics.
type DebugInfo struct {
	File string
	Line int
}

func (d DebugInfo) String() string {
	if d.File == "" {
		return fmt.Sprintf("line %d", d.Line)
	}
	return fmt.Sprintf("%s:%d", d.File, d.Line)
}

// MatchPattern records which alternative of a disjunctive pattern matched an
// instruction; the statistics mode keys opcode counts by it.
type MatchPattern interface {
	Dump(verbose bool) string
}

// TagMatch is a bare alternative tag ("imm", "cond", ...).
type TagMatch struct {
	Tag string
}

func (m TagMatch) Dump(bool) string { return m.Tag }

// ImmediateMatch tags an immediate alternative and keeps the literal for
// verbose statistics.
type ImmediateMatch struct {
	Value int64
}

func (m ImmediateMatch) Dump(verbose bool) string {
	if verbose {
		return fmt.Sprintf("imm %x", m.Value)
	}
	return "imm"
}

// DumpPattern renders an instruction once a coloring is known. The use and
// def lists are passed in the exact order the pattern builder produced them.
type DumpPattern func(c *Coloring, uses, defs []Operand) string

// Instruction is one parsed operation: its mnemonic, ordered use and def
// operand lists, control-flow flags and the renderer installed by the
// matching pattern.
type Instruction struct {
	Opcode string
	Uses   []Operand
	Defs   []Operand

	IsJump     bool
	IsCondJump bool
	JumpLabel  string

	Dump  DumpPattern
	Match MatchPattern
	Debug DebugInfo
}

// Render produces the instruction's textual form under coloring c. Without
// an installed dump pattern it falls back to the bare mnemonic.
func (i *Instruction) Render(c *Coloring) string {
	if i.Dump == nil {
		return i.Opcode
	}
	return i.Dump(c, i.Uses, i.Defs)
}

func (i *Instruction) String() string { return i.Opcode }

// Bundle is an ordered set of instructions issued in parallel in one cycle.
type Bundle struct {
	Insns []*Instruction
}

// Add appends insn to the bundle.
func (b *Bundle) Add(insn *Instruction) {
	b.Insns = append(b.Insns, insn)
}

// Len returns the number of instructions in the bundle.
func (b *Bundle) Len() int { return len(b.Insns) }

// Uses returns the concatenated use lists of the bundled instructions.
func (b *Bundle) Uses() []Operand {
	var out []Operand
	for _, insn := range b.Insns {
		out = append(out, insn.Uses...)
	}
	return out
}

// Defs returns the concatenated def lists of the bundled instructions.
func (b *Bundle) Defs() []Operand {
	var out []Operand
	for _, insn := range b.Insns {
		out = append(out, insn.Defs...)
	}
	return out
}

// HasJump reports whether any bundled instruction transfers control.
func (b *Bundle) HasJump() bool {
	for _, insn := range b.Insns {
		if insn.IsJump || insn.IsCondJump {
			return true
		}
	}
	return false
}

// OnlyUnconditionalJumps reports whether the bundle jumps and none of its
// jumps can fall through.
func (b *Bundle) OnlyUnconditionalJumps() bool {
	if !b.HasJump() {
		return false
	}
	for _, insn := range b.Insns {
		if insn.IsCondJump {
			return false
		}
	}
	return true
}

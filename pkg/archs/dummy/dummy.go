// Package dummy is the reference ISA skeleton: a bundled VLIW-style machine
// with a standard file ($r), an accumulator file ($a) and a symbolic special
// file. Its pattern table exercises every descriptor family (R/A/D/Q),
// predicate opcodes, disjunctive register/immediate variants and the
// accumulator read-write convention.
package dummy

import (
	"fmt"

	"github.com/asmkit/asmalloc/pkg/ir"
	"github.com/asmkit/asmalloc/pkg/pattern"
)

// Register classes of the dummy machine.
var (
	Std     = &ir.RegClass{Name: "Std", Prefix: "$", RegPrefix: "r"}
	Acc     = &ir.RegClass{Name: "Acc", Prefix: "$", RegPrefix: "a"}
	Special = &ir.RegClass{Name: "Special", Prefix: "$"}
)

func regStd(tag string) pattern.Register {
	return pattern.NewRegister(tag,
		pattern.NewVirtualReg(tag, "R", Std, pattern.Single),
		pattern.NewDollarPhys(tag, Std, "r", 1, 1))
}

func regDualStd(tag string) pattern.Register {
	return pattern.NewRegister(tag,
		pattern.NewVirtualReg(tag, "D", Std, pattern.Dual),
		pattern.NewDollarPhys(tag, Std, "r", 2, 2))
}

func regQuadStd(tag string) pattern.Register {
	return pattern.NewRegister(tag,
		pattern.NewVirtualReg(tag, "Q", Std, pattern.Quad),
		pattern.NewDollarPhys(tag, Std, "r", 4, 4))
}

func regAcc(tag string) pattern.Register {
	return pattern.NewRegister(tag,
		pattern.NewVirtualReg(tag, "A", Acc, pattern.Single),
		pattern.NewDollarPhys(tag, Acc, "a", 1, 1))
}

// regSubAcc accepts an accumulator mention followed by an optional _lo/_hi
// selector; the selector binds to the full accumulator.
func regSubAcc(tag string) pattern.Pattern {
	return pattern.Suffixed{Inner: regAcc(tag), Suffixes: []string{"_lo", "_hi"}}
}

func address(tag string) pattern.Address {
	offset := pattern.NewFirstOf(tag,
		pattern.NewImmediate(tag),
		pattern.NewDollarPhys(tag, Std, "r", 1, 1),
		pattern.NewVirtualReg(tag, "R", Std, pattern.Single))
	return pattern.NewAddress(tag, offset, regStd(tag), "[", "]")
}

func std2op() *pattern.Sequential {
	return pattern.NewSequential(
		[]pattern.Pattern{pattern.NewOpcode("opc", false), regStd("dst"), regStd("lhs"), regStd("rhs")},
		func(m pattern.Match) (*ir.Instruction, error) {
			opc := m.Str("opc")
			return &ir.Instruction{
				Opcode: opc,
				Uses:   append(m.Ops("lhs"), m.Ops("rhs")...),
				Defs:   m.Ops("dst"),
				Dump: func(c *ir.Coloring, uses, defs []ir.Operand) string {
					return fmt.Sprintf("%s %s = %s, %s", opc, c.Op(defs[0]), c.Op(uses[0]), c.Op(uses[1]))
				},
			}, nil
		})
}

func std1op1imm() *pattern.Sequential {
	return pattern.NewSequential(
		[]pattern.Pattern{pattern.NewOpcode("opc", false), regStd("dst"), regStd("op"), pattern.NewImmediate("imm")},
		func(m pattern.Match) (*ir.Instruction, error) {
			opc := m.Str("opc")
			imm := m.Imm("imm")
			return &ir.Instruction{
				Opcode: opc,
				Uses:   m.Ops("op"),
				Defs:   m.Ops("dst"),
				Match:  ir.ImmediateMatch{Value: imm.Value},
				Dump: func(c *ir.Coloring, uses, defs []ir.Operand) string {
					return fmt.Sprintf("%s %s = %s, %s", opc, c.Op(defs[0]), c.Op(uses[0]), imm)
				},
			}, nil
		})
}

func load() *pattern.Sequential {
	return pattern.NewSequential(
		[]pattern.Pattern{pattern.NewOpcode("opc", true), regStd("dst"), address("addr")},
		func(m pattern.Match) (*ir.Instruction, error) {
			opc := m.Str("opc")
			addr := m.Addr("addr")
			uses := append(pattern.RegsToOps(addr.Base), addr.Offset...)
			return &ir.Instruction{
				Opcode: opc,
				Uses:   uses,
				Defs:   m.Ops("dst"),
				Dump: func(c *ir.Coloring, uses, defs []ir.Operand) string {
					return fmt.Sprintf("%s %s = %s[%s]", opc, c.Op(defs[0]), c.Op(uses[1]), c.Op(uses[0]))
				},
			}, nil
		})
}

func store() *pattern.Sequential {
	return pattern.NewSequential(
		[]pattern.Pattern{pattern.NewOpcode("opc", true), address("addr"), regStd("src")},
		func(m pattern.Match) (*ir.Instruction, error) {
			opc := m.Str("opc")
			addr := m.Addr("addr")
			uses := append(m.Ops("src"), append(pattern.RegsToOps(addr.Base), addr.Offset...)...)
			return &ir.Instruction{
				Opcode: opc,
				Uses:   uses,
				Dump: func(c *ir.Coloring, uses, defs []ir.Operand) string {
					return fmt.Sprintf("%s %s[%s] = %s", opc, c.Op(uses[2]), c.Op(uses[1]), c.Op(uses[0]))
				},
			}, nil
		})
}

// dualResult covers the instructions writing a register pair (addd, sbfd,
// muldt) from two standard operands.
func dualResult() *pattern.Sequential {
	return pattern.NewSequential(
		[]pattern.Pattern{pattern.NewOpcode("opc", false), regDualStd("dst"), regStd("lhs"), regStd("rhs")},
		func(m pattern.Match) (*ir.Instruction, error) {
			opc := m.Str("opc")
			return &ir.Instruction{
				Opcode: opc,
				Uses:   append(m.Ops("lhs"), m.Ops("rhs")...),
				Defs:   m.Ops("dst"),
				Dump: func(c *ir.Coloring, uses, defs []ir.Operand) string {
					return fmt.Sprintf("%s %s = %s, %s", opc, c.Multi(defs[0:2]), c.Op(uses[0]), c.Op(uses[1]))
				},
			}, nil
		})
}

// quadCopy writes a register quadruple from two standard operands.
func quadCopy() *pattern.Sequential {
	return pattern.NewSequential(
		[]pattern.Pattern{pattern.NewOpcode("opc", false), regQuadStd("dst"), regStd("lhs"), regStd("rhs")},
		func(m pattern.Match) (*ir.Instruction, error) {
			opc := m.Str("opc")
			return &ir.Instruction{
				Opcode: opc,
				Uses:   append(m.Ops("lhs"), m.Ops("rhs")...),
				Defs:   m.Ops("dst"),
				Dump: func(c *ir.Coloring, uses, defs []ir.Operand) string {
					return fmt.Sprintf("%s %s = %s, %s", opc, c.Multi(defs[0:4]), c.Op(uses[0]), c.Op(uses[1]))
				},
			}, nil
		})
}

// accMulAdd models the accumulating multiply-add: the accumulator operand is
// both read and written, so it appears in the use and the def list under the
// same handle.
func accMulAdd() *pattern.Sequential {
	return pattern.NewSequential(
		[]pattern.Pattern{pattern.NewOpcode("opc", false), regStd("acc"), regStd("lhs"), regStd("rhs")},
		func(m pattern.Match) (*ir.Instruction, error) {
			opc := m.Str("opc")
			uses := append(m.Ops("acc"), append(m.Ops("lhs"), m.Ops("rhs")...)...)
			return &ir.Instruction{
				Opcode: opc,
				Uses:   uses,
				Defs:   m.Ops("acc"),
				Dump: func(c *ir.Coloring, uses, defs []ir.Operand) string {
					return fmt.Sprintf("%s %s = %s, %s", opc, c.Op(defs[0]), c.Op(uses[1]), c.Op(uses[2]))
				},
			}, nil
		})
}

func moveToAcc() *pattern.Sequential {
	return pattern.NewSequential(
		[]pattern.Pattern{pattern.NewOpcode("opc", false), regAcc("dst"), regStd("lhs"), regStd("rhs")},
		func(m pattern.Match) (*ir.Instruction, error) {
			opc := m.Str("opc")
			return &ir.Instruction{
				Opcode: opc,
				Uses:   append(m.Ops("lhs"), m.Ops("rhs")...),
				Defs:   m.Ops("dst"),
				Dump: func(c *ir.Coloring, uses, defs []ir.Operand) string {
					return fmt.Sprintf("%s %s = %s, %s", opc, c.Op(defs[0]), c.Op(uses[0]), c.Op(uses[1]))
				},
			}, nil
		})
}

func moveFromAcc() *pattern.Sequential {
	return pattern.NewSequential(
		[]pattern.Pattern{pattern.NewOpcode("opc", false), regStd("dst"), regSubAcc("src")},
		func(m pattern.Match) (*ir.Instruction, error) {
			opc := m.Str("opc")
			return &ir.Instruction{
				Opcode: opc,
				Uses:   m.Ops("src"),
				Defs:   m.Ops("dst"),
				Dump: func(c *ir.Coloring, uses, defs []ir.Operand) string {
					return fmt.Sprintf("%s %s = %s", opc, c.Op(defs[0]), c.Op(uses[0]))
				},
			}, nil
		})
}

func jump() *pattern.Sequential {
	return pattern.NewSequential(
		[]pattern.Pattern{pattern.NewOpcode("opc", false), pattern.NewLabel("dst")},
		func(m pattern.Match) (*ir.Instruction, error) {
			opc := m.Str("opc")
			label := m.Str("dst")
			return &ir.Instruction{
				Opcode:    opc,
				IsJump:    true,
				JumpLabel: label,
				Dump: func(c *ir.Coloring, uses, defs []ir.Operand) string {
					return fmt.Sprintf("%s %s", opc, label)
				},
			}, nil
		})
}

// condBranch is a predicated conditional branch: "cb.deqz $r3, target".
func condBranch() *pattern.Sequential {
	return pattern.NewSequential(
		[]pattern.Pattern{pattern.NewOpcode("opc", true), regStd("cond"), pattern.NewLabel("dst")},
		func(m pattern.Match) (*ir.Instruction, error) {
			opc := m.Str("opc")
			label := m.Str("dst")
			return &ir.Instruction{
				Opcode:     opc,
				IsCondJump: true,
				JumpLabel:  label,
				Uses:       m.Ops("cond"),
				Dump: func(c *ir.Coloring, uses, defs []ir.Operand) string {
					return fmt.Sprintf("%s %s, %s", opc, c.Op(uses[0]), label)
				},
			}, nil
		})
}

// condMoveOp and condMoveImm are the predicated conditional move, register or
// immediate source.
func condMoveOp() *pattern.Sequential {
	return pattern.NewSequential(
		[]pattern.Pattern{pattern.NewOpcode("opc", true), regStd("cond"), regStd("dst"), regStd("src")},
		func(m pattern.Match) (*ir.Instruction, error) {
			opc := m.Str("opc")
			return &ir.Instruction{
				Opcode: opc,
				Uses:   append(m.Ops("cond"), m.Ops("src")...),
				Defs:   m.Ops("dst"),
				Dump: func(c *ir.Coloring, uses, defs []ir.Operand) string {
					return fmt.Sprintf("%s %s ? %s = %s", opc, c.Op(uses[0]), c.Op(defs[0]), c.Op(uses[1]))
				},
			}, nil
		})
}

func condMoveImm() *pattern.Sequential {
	return pattern.NewSequential(
		[]pattern.Pattern{pattern.NewOpcode("opc", true), regStd("cond"), regStd("dst"), pattern.NewImmediate("imm")},
		func(m pattern.Match) (*ir.Instruction, error) {
			opc := m.Str("opc")
			imm := m.Imm("imm")
			return &ir.Instruction{
				Opcode: opc,
				Uses:   m.Ops("cond"),
				Defs:   m.Ops("dst"),
				Match:  ir.ImmediateMatch{Value: imm.Value},
				Dump: func(c *ir.Coloring, uses, defs []ir.Operand) string {
					return fmt.Sprintf("%s %s ? %s = %s", opc, c.Op(uses[0]), c.Op(defs[0]), imm)
				},
			}, nil
		})
}

func moveFromSpecial() *pattern.Sequential {
	return pattern.NewSequential(
		[]pattern.Pattern{pattern.NewOpcode("opc", false), regStd("dst"), pattern.NewSpecialReg("src")},
		func(m pattern.Match) (*ir.Instruction, error) {
			opc := m.Str("opc")
			return &ir.Instruction{
				Opcode: opc,
				Uses:   m.Ops("src"),
				Defs:   m.Ops("dst"),
				Dump: func(c *ir.Coloring, uses, defs []ir.Operand) string {
					return fmt.Sprintf("%s %s = %s", opc, c.Op(defs[0]), c.Op(uses[0]))
				},
			}, nil
		})
}

func moveToSpecial() *pattern.Sequential {
	return pattern.NewSequential(
		[]pattern.Pattern{pattern.NewOpcode("opc", false), pattern.NewSpecialReg("dst"), regStd("src")},
		func(m pattern.Match) (*ir.Instruction, error) {
			opc := m.Str("opc")
			return &ir.Instruction{
				Opcode: opc,
				Uses:   m.Ops("src"),
				Defs:   m.Ops("dst"),
				Dump: func(c *ir.Coloring, uses, defs []ir.Operand) string {
					return fmt.Sprintf("%s %s = %s", opc, c.Op(defs[0]), c.Op(uses[0]))
				},
			}, nil
		})
}

func patterns() map[string]ir.InsnPattern {
	regOrImm := func() ir.InsnPattern {
		return pattern.NewDisjunctive([]ir.InsnPattern{std2op(), std1op1imm()}, []string{"", "imm"})
	}
	dualOrImm := func() ir.InsnPattern {
		return pattern.NewDisjunctive([]ir.InsnPattern{dualResult(), std1op1imm()}, []string{"", "imm"})
	}
	return map[string]ir.InsnPattern{
		"ld": load(),
		"sd": store(),

		"add": regOrImm(),
		"sbf": regOrImm(),

		"addd":  dualOrImm(),
		"sbfd":  dualOrImm(),
		"muldt": dualResult(),
		"copyq": quadCopy(),

		"maddw": accMulAdd(),

		"movefo": moveToAcc(),
		"movefa": moveFromAcc(),

		"cmove": pattern.NewDisjunctive([]ir.InsnPattern{condMoveOp(), condMoveImm()}, []string{"", "imm"}),

		"goto": jump(),
		"cb":   condBranch(),

		"get": moveFromSpecial(),
		"set": moveToSpecial(),
	}
}

// New builds the dummy architecture. Recognized parameters: std and acc set
// the register file sizes (default 16 each).
func New(params map[string]int) (*ir.Architecture, error) {
	stdNum, accNum := 16, 16
	for key, value := range params {
		switch key {
		case "std":
			stdNum = value
		case "acc":
			accNum = value
		default:
			return nil, fmt.Errorf("dummy: unknown architecture parameter %q", key)
		}
	}
	return ir.NewArchitecture(ir.ArchConfig{
		Name: "dummy",
		Files: []ir.RegFileDescription{
			{Class: Std, NumPhysRegs: stdNum},
			{Class: Acc, NumPhysRegs: accNum},
		},
		Special:  Special,
		Patterns: patterns(),
		Bundling: true,
		AnyRegister: pattern.AnyRegister(
			pattern.NewDollarPhys("", Std, "r", 1, 4),
			pattern.NewDollarPhys("", Acc, "a", 1, 4),
			pattern.NewVirtualReg("", "R", Std, pattern.Single),
			pattern.NewVirtualReg("", "D", Std, pattern.Dual),
			pattern.NewVirtualReg("", "Q", Std, pattern.Quad),
			pattern.NewVirtualReg("", "A", Acc, pattern.Single),
		),
	}), nil
}

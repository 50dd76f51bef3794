// Package rv32 describes an RV32I+M subset with the F-extension register
// file: ABI register names resolve to canonical x/f indices, x0 is the
// hardwired zero, and addresses use the "offset(base)" form.
package rv32

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/asmkit/asmalloc/pkg/ir"
	"github.com/asmkit/asmalloc/pkg/pattern"
)

// IntReg and FpReg are the two physical register classes.
var (
	IntReg = &ir.RegClass{Name: "Int", RegPrefix: "x", ResolveAlias: resolveInt}
	FpReg  = &ir.RegClass{Name: "Fp", RegPrefix: "f", ResolveAlias: resolveFp}
)

// resolveInt maps an ABI specifier and index to the canonical x-index.
func resolveInt(spec string, index int) (bool, int, error) {
	switch spec {
	case "", "x":
		return false, index, nil
	case "zero":
		return true, 0, nil
	case "ra":
		return true, 1, nil
	case "sp":
		return true, 2, nil
	case "gp":
		return true, 3, nil
	case "tp":
		return true, 4, nil
	case "fp":
		return true, 8, nil
	case "t":
		if index <= 2 {
			return true, index + 5, nil
		}
		return true, index + 25, nil
	case "s":
		switch {
		case index <= 1:
			return true, index + 8, nil
		default:
			return true, index + 16, nil
		}
	case "a":
		return true, index + 10, nil
	}
	return false, 0, fmt.Errorf("rv32: unknown integer register specifier %q", spec)
}

// resolveFp maps an ABI specifier and index to the canonical f-index.
func resolveFp(spec string, index int) (bool, int, error) {
	switch spec {
	case "", "f":
		return false, index, nil
	case "ft":
		if index <= 7 {
			return true, index, nil
		}
		return true, index + 20, nil
	case "fs":
		if index <= 1 {
			return true, index + 8, nil
		}
		return true, index + 16, nil
	case "fa":
		return true, index + 10, nil
	}
	return false, 0, fmt.Errorf("rv32: unknown floating-point register specifier %q", spec)
}

var (
	intSplitRE = regexp.MustCompile(`^(a|s|t|x)([0-9]+)$`)
	intNamedRE = regexp.MustCompile(`^(zero|ra|sp|gp|tp|fp)$`)
	fpSplitRE  = regexp.MustCompile(`^(f|ft|fs|fa)([0-9]+)$`)
)

func splitInt(s string) ([]pattern.SpecIndex, bool) {
	if intNamedRE.MatchString(s) {
		return []pattern.SpecIndex{{Spec: s, Index: -1}}, true
	}
	m := intSplitRE.FindStringSubmatch(s)
	if m == nil {
		return nil, false
	}
	index, err := strconv.Atoi(m[2])
	if err != nil {
		return nil, false
	}
	spec := m[1]
	if spec == "x" {
		spec = ""
	}
	return []pattern.SpecIndex{{Spec: spec, Index: index}}, true
}

func splitFp(s string) ([]pattern.SpecIndex, bool) {
	m := fpSplitRE.FindStringSubmatch(s)
	if m == nil {
		return nil, false
	}
	index, err := strconv.Atoi(m[2])
	if err != nil {
		return nil, false
	}
	spec := m[1]
	if spec == "f" {
		spec = ""
	}
	return []pattern.SpecIndex{{Spec: spec, Index: index}}, true
}

const intFullRE = `^(zero|ra|sp|gp|tp|fp|a[0-9]|s[0-9]+|t[0-9]+|x[0-9]+)$`
const fpFullRE = `^(f|ft|fs|fa)[0-9]+$`

func physInt(tag string) pattern.PhysReg {
	return pattern.NewNamedPhys(tag, IntReg, intFullRE, splitInt)
}

func physFp(tag string) pattern.PhysReg {
	return pattern.NewNamedPhys(tag, FpReg, fpFullRE, splitFp)
}

func regInt(tag string) pattern.Register {
	return pattern.NewRegister(tag,
		pattern.NewVirtualReg(tag, "XAI", IntReg, pattern.Single),
		physInt(tag))
}

func regFp(tag string) pattern.Register {
	return pattern.NewRegister(tag,
		pattern.NewVirtualReg(tag, "F", FpReg, pattern.Single),
		physFp(tag))
}

func address(tag string) pattern.Address {
	offset := pattern.NewFirstOf(tag,
		pattern.NewImmediate(tag),
		pattern.NewSymbol(tag),
		physInt(tag),
		pattern.NewVirtualReg(tag, "XAI", IntReg, pattern.Single))
	return pattern.NewAddress(tag, offset, regInt(tag), "(", ")")
}

func load(dst func(string) pattern.Register) *pattern.Sequential {
	return pattern.NewSequential(
		[]pattern.Pattern{pattern.NewOpcode("opc", false), dst("dst"), address("addr")},
		func(m pattern.Match) (*ir.Instruction, error) {
			opc := m.Str("opc")
			addr := m.Addr("addr")
			uses := append(pattern.RegsToOps(addr.Base), addr.Offset...)
			return &ir.Instruction{
				Opcode: opc,
				Uses:   uses,
				Defs:   m.Ops("dst"),
				Dump: func(c *ir.Coloring, uses, defs []ir.Operand) string {
					return fmt.Sprintf("%s %s, %s(%s)", opc, c.Op(defs[0]), c.Op(uses[1]), c.Op(uses[0]))
				},
			}, nil
		})
}

func store(src func(string) pattern.Register) *pattern.Sequential {
	return pattern.NewSequential(
		[]pattern.Pattern{pattern.NewOpcode("opc", false), src("src"), address("addr")},
		func(m pattern.Match) (*ir.Instruction, error) {
			opc := m.Str("opc")
			addr := m.Addr("addr")
			uses := append(m.Ops("src"), append(pattern.RegsToOps(addr.Base), addr.Offset...)...)
			return &ir.Instruction{
				Opcode: opc,
				Uses:   uses,
				Dump: func(c *ir.Coloring, uses, defs []ir.Operand) string {
					return fmt.Sprintf("%s %s, %s(%s)", opc, c.Op(uses[0]), c.Op(uses[2]), c.Op(uses[1]))
				},
			}, nil
		})
}

func std2op(reg func(string) pattern.Register, predicates bool) *pattern.Sequential {
	return pattern.NewSequential(
		[]pattern.Pattern{pattern.NewOpcode("opc", predicates), reg("dst"), reg("lhs"), reg("rhs")},
		func(m pattern.Match) (*ir.Instruction, error) {
			opc := m.Str("opc")
			return &ir.Instruction{
				Opcode: opc,
				Uses:   append(m.Ops("lhs"), m.Ops("rhs")...),
				Defs:   m.Ops("dst"),
				Dump: func(c *ir.Coloring, uses, defs []ir.Operand) string {
					return fmt.Sprintf("%s %s, %s, %s", opc, c.Op(defs[0]), c.Op(uses[0]), c.Op(uses[1]))
				},
			}, nil
		})
}

func std1op() *pattern.Sequential {
	return pattern.NewSequential(
		[]pattern.Pattern{pattern.NewOpcode("opc", false), regInt("dst"), regInt("src")},
		func(m pattern.Match) (*ir.Instruction, error) {
			opc := m.Str("opc")
			return &ir.Instruction{
				Opcode: opc,
				Uses:   m.Ops("src"),
				Defs:   m.Ops("dst"),
				Dump: func(c *ir.Coloring, uses, defs []ir.Operand) string {
					return fmt.Sprintf("%s %s, %s", opc, c.Op(defs[0]), c.Op(uses[0]))
				},
			}, nil
		})
}

func std1op1imm() *pattern.Sequential {
	return pattern.NewSequential(
		[]pattern.Pattern{pattern.NewOpcode("opc", false), regInt("dst"), regInt("op"), pattern.NewImmediate("imm")},
		func(m pattern.Match) (*ir.Instruction, error) {
			opc := m.Str("opc")
			imm := m.Imm("imm")
			return &ir.Instruction{
				Opcode: opc,
				Uses:   m.Ops("op"),
				Defs:   m.Ops("dst"),
				Match:  ir.ImmediateMatch{Value: imm.Value},
				Dump: func(c *ir.Coloring, uses, defs []ir.Operand) string {
					return fmt.Sprintf("%s %s, %s, %s", opc, c.Op(defs[0]), c.Op(uses[0]), imm)
				},
			}, nil
		})
}

// stdImm covers li/lui whose source is an immediate or a %hi/%lo relocation.
func stdImm() *pattern.Sequential {
	return pattern.NewSequential(
		[]pattern.Pattern{pattern.NewOpcode("opc", false), regInt("dst"),
			pattern.NewFirstOf("val", pattern.NewImmediate("val"), pattern.NewSymbol("val"))},
		func(m pattern.Match) (*ir.Instruction, error) {
			opc := m.Str("opc")
			val := m.Operand("val")
			insn := &ir.Instruction{
				Opcode: opc,
				Defs:   m.Ops("dst"),
				Dump: func(c *ir.Coloring, uses, defs []ir.Operand) string {
					return fmt.Sprintf("%s %s, %s", opc, c.Op(defs[0]), val)
				},
			}
			if imm, ok := val.(*ir.ImmediateValue); ok {
				insn.Match = ir.ImmediateMatch{Value: imm.Value}
			}
			return insn, nil
		})
}

func condBranch2op() *pattern.Sequential {
	return pattern.NewSequential(
		[]pattern.Pattern{pattern.NewOpcode("opc", false), regInt("src1"), regInt("src2"), pattern.NewLabel("dst")},
		func(m pattern.Match) (*ir.Instruction, error) {
			opc := m.Str("opc")
			label := m.Str("dst")
			return &ir.Instruction{
				Opcode:     opc,
				IsCondJump: true,
				JumpLabel:  label,
				Uses:       append(m.Ops("src1"), m.Ops("src2")...),
				Dump: func(c *ir.Coloring, uses, defs []ir.Operand) string {
					return fmt.Sprintf("%s %s, %s, %s", opc, c.Op(uses[0]), c.Op(uses[1]), label)
				},
			}, nil
		})
}

func condBranch1op() *pattern.Sequential {
	return pattern.NewSequential(
		[]pattern.Pattern{pattern.NewOpcode("opc", false), regInt("src1"), pattern.NewLabel("dst")},
		func(m pattern.Match) (*ir.Instruction, error) {
			opc := m.Str("opc")
			label := m.Str("dst")
			return &ir.Instruction{
				Opcode:     opc,
				IsCondJump: true,
				JumpLabel:  label,
				Uses:       m.Ops("src1"),
				Dump: func(c *ir.Coloring, uses, defs []ir.Operand) string {
					return fmt.Sprintf("%s %s, %s", opc, c.Op(uses[0]), label)
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

func patterns() map[string]ir.InsnPattern {
	table := map[string]ir.InsnPattern{
		"lb":  load(regInt),
		"lh":  load(regInt),
		"lw":  load(regInt),
		"lbu": load(regInt),
		"lhu": load(regInt),
		"flw": load(regFp),

		"sb":  store(regInt),
		"sh":  store(regInt),
		"sw":  store(regInt),
		"fsw": store(regFp),

		"mv": std1op(),
		"li": stdImm(),
		"lui": stdImm(),

		"beq":  condBranch2op(),
		"bne":  condBranch2op(),
		"blt":  condBranch2op(),
		"bge":  condBranch2op(),
		"bltu": condBranch2op(),
		"bgeu": condBranch2op(),
		"beqz": condBranch1op(),
		"bnez": condBranch1op(),

		"j":   jump(),
		"jal": jump(),
	}
	for _, opc := range []string{"add", "sub", "and", "or", "xor", "sll", "srl", "sra", "slt", "sltu",
		"mul", "mulh", "mulhu", "mulhsu", "div", "divu", "rem", "remu"} {
		table[opc] = pattern.NewDisjunctive([]ir.InsnPattern{std2op(regInt, false), std1op1imm()}, []string{"", "imm"})
	}
	for _, opc := range []string{"addi", "andi", "ori", "xori", "slti", "slli", "srli", "srai"} {
		table[opc] = std1op1imm()
	}
	for _, opc := range []string{"fadd", "fsub", "fmul", "fdiv"} {
		table[opc] = std2op(regFp, true)
	}
	return table
}

// New builds the rv32 architecture. Recognized parameters: int and fp set
// the register file sizes (default 32 each).
func New(params map[string]int) (*ir.Architecture, error) {
	intNum, fpNum := 32, 32
	for key, value := range params {
		switch key {
		case "int":
			intNum = value
		case "fp":
			fpNum = value
		default:
			return nil, fmt.Errorf("rv32: unknown architecture parameter %q", key)
		}
	}
	return ir.NewArchitecture(ir.ArchConfig{
		Name: "rv32",
		Files: []ir.RegFileDescription{
			{Class: IntReg, NumPhysRegs: intNum, ConstRegs: []int{0}},
			{Class: FpReg, NumPhysRegs: fpNum},
		},
		Patterns: patterns(),
		Bundling: false,
		AnyRegister: pattern.AnyRegister(
			physInt(""),
			physFp(""),
			pattern.NewVirtualReg("", "XAI", IntReg, pattern.Single),
			pattern.NewVirtualReg("", "F", FpReg, pattern.Single),
		),
	}), nil
}

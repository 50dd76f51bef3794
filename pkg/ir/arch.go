package ir

import (
	"fmt"

	"golang.org/x/exp/slices"

	"github.com/asmkit/asmalloc/pkg/lexer"
)

// InsnPattern lowers a full token list to an Instruction. Implementations
// live in pkg/pattern; per-ISA packages register them under their mnemonics.
type InsnPattern interface {
	Match(a *Architecture, tokens []lexer.Token) (*Instruction, []lexer.Token, error)
}

// RegisterParser parses one register expression (physical, virtual or
// compound) of any class from the head of tokens. It backs the macro
// argument lists, where no mnemonic selects a pattern. ok is false when the
// head of tokens is not a register expression.
type RegisterParser func(a *Architecture, tokens []lexer.Token) (regs []Register, rest []lexer.Token, ok bool)

// Architecture is the ISA description the parser and allocator consult: one
// register file per class plus the mnemonic-to-pattern table. It uniquely
// owns every canonical register object.
type Architecture struct {
	name    string
	classes []*RegClass
	files   map[*RegClass]*RegFile
	special *SpecialFile
	// patterns maps a mnemonic (possibly with predicate suffixes) to the
	// instruction pattern that parses its operand list.
	patterns map[string]InsnPattern
	opcodes  []string
	bundling bool

	// parseAnyRegister is installed by the ISA package.
	parseAnyRegister RegisterParser
}

// ArchConfig collects everything an ISA package supplies to NewArchitecture.
type ArchConfig struct {
	Name     string
	Files    []RegFileDescription
	Special  *RegClass
	Patterns map[string]InsnPattern
	Bundling bool
	// AnyRegister parses a register expression of any class, used by the
	// PREDEFINED/POSTUSED macros.
	AnyRegister RegisterParser
}

// NewArchitecture builds the register universe and pattern table. The
// register set is fixed from here on.
func NewArchitecture(cfg ArchConfig) *Architecture {
	a := &Architecture{
		name:             cfg.Name,
		files:            make(map[*RegClass]*RegFile, len(cfg.Files)),
		patterns:         cfg.Patterns,
		bundling:         cfg.Bundling,
		parseAnyRegister: cfg.AnyRegister,
	}
	for _, desc := range cfg.Files {
		a.classes = append(a.classes, desc.Class)
		a.files[desc.Class] = NewRegFile(desc)
	}
	if cfg.Special != nil {
		a.special = NewSpecialFile(cfg.Special)
		a.classes = append(a.classes, cfg.Special)
	}
	for opc := range cfg.Patterns {
		a.opcodes = append(a.opcodes, opc)
	}
	slices.Sort(a.opcodes)
	return a
}

// Name returns the architecture's registry name.
func (a *Architecture) Name() string { return a.name }

// HasBundles reports whether the ISA groups instructions into bundles. On a
// non-bundling ISA every bundle holds exactly one instruction.
func (a *Architecture) HasBundles() bool { return a.bundling }

// Classes returns the register classes: the register files in declaration
// order, followed by the special (symbolic) class when the ISA has one.
func (a *Architecture) Classes() []*RegClass { return a.classes }

// File returns the register file for class, or nil for symbolic classes.
func (a *Architecture) File(class *RegClass) *RegFile { return a.files[class] }

// PhysReg resolves (class, spec, index) to the canonical physical register
// or an alias wrapper; see RegFile.PhysReg.
func (a *Architecture) PhysReg(class *RegClass, spec string, index int) (Register, error) {
	f, ok := a.files[class]
	if !ok {
		return nil, fmt.Errorf("architecture %s has no register file for class %s", a.name, class.Name)
	}
	return f.PhysReg(spec, index)
}

// VirtReg interns a virtual register in class's file.
func (a *Architecture) VirtReg(class *RegClass, name string, constraint IndexConstraint) (*VirtualRegister, error) {
	f, ok := a.files[class]
	if !ok {
		return nil, fmt.Errorf("architecture %s has no register file for class %s", a.name, class.Name)
	}
	return f.VirtReg(name, constraint), nil
}

// SpecialReg interns a special register. It fails only when the
// architecture has no special file; that file is an unbounded symbolic table.
func (a *Architecture) SpecialReg(tag string) (*SpecialRegister, error) {
	if a.special == nil {
		return nil, fmt.Errorf("architecture %s has no special register file", a.name)
	}
	return a.special.Reg(tag), nil
}

// Pattern looks up the instruction pattern registered for mnemonic.
func (a *Architecture) Pattern(mnemonic string) (InsnPattern, bool) {
	p, ok := a.patterns[mnemonic]
	return p, ok
}

// AllOpcodes returns every registered mnemonic, sorted.
func (a *Architecture) AllOpcodes() []string { return a.opcodes }

// ParseAnyRegister invokes the ISA's class-agnostic register parser.
func (a *Architecture) ParseAnyRegister(tokens []lexer.Token) ([]Register, []lexer.Token, bool) {
	if a.parseAnyRegister == nil {
		return nil, tokens, false
	}
	return a.parseAnyRegister(a, tokens)
}

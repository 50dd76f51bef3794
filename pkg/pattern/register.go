package pattern

import (
	"fmt"
	"regexp"

	"github.com/asmkit/asmalloc/pkg/ir"
	"github.com/asmkit/asmalloc/pkg/lexer"
)

// VirtKind selects the arity and linkage family of a virtual register
// descriptor.
type VirtKind int

const (
	// Single is one register with no linkage.
	Single VirtKind = iota
	// Dual is a register pair: even low half, odd high half, adjacent
	// physical indices.
	Dual
	// Quad is a register quadruple occupying a block aligned to a multiple
	// of four.
	Quad
)

func (k VirtKind) arity() int {
	switch k {
	case Dual:
		return 2
	case Quad:
		return 4
	}
	return 1
}

// VirtualReg parses "<DESCR>(<name>[, <name>...])" mentions and interns the
// virtual registers, installing the linkage constraints of the family.
type VirtualReg struct {
	tag string
	// Descriptors is the set of accepted descriptor letters, e.g. "R" or
	// "XAI".
	Descriptors string
	Class       *ir.RegClass
	Kind        VirtKind
}

// NewVirtualReg builds a virtual-register leaf.
func NewVirtualReg(tag, descriptors string, class *ir.RegClass, kind VirtKind) VirtualReg {
	return VirtualReg{tag: tag, Descriptors: descriptors, Class: class, Kind: kind}
}

// Tag implements Pattern.
func (v VirtualReg) Tag() string { return v.tag }

// Parse implements Pattern.
func (v VirtualReg) Parse(a *ir.Architecture, tokens []lexer.Token) (any, []lexer.Token, error) {
	if len(tokens) < 3 || tokens[0].Kind != lexer.Ident {
		return nil, tokens, ErrNoMatch
	}
	descriptor := tokens[0].Value
	if len(descriptor) != 1 || !containsByte(v.Descriptors, descriptor[0]) {
		return nil, tokens, ErrNoMatch
	}
	rest, ok := expectOperator(tokens[1:], "(")
	if !ok {
		return nil, tokens, ErrNoMatch
	}
	var names []string
	for len(rest) > 0 && rest[0].Kind == lexer.Ident {
		names = append(names, rest[0].Value)
		rest = rest[1:]
	}
	rest, ok = expectOperator(rest, ")")
	if !ok {
		return nil, tokens, ErrNoMatch
	}
	if len(names) != v.Kind.arity() {
		return nil, tokens, fmt.Errorf("descriptor %s expects %d register name(s), got %d",
			descriptor, v.Kind.arity(), len(names))
	}
	regs, err := v.intern(a, names)
	if err != nil {
		return nil, tokens, err
	}
	return regs, rest, nil
}

func (v VirtualReg) intern(a *ir.Architecture, names []string) ([]ir.Register, error) {
	switch v.Kind {
	case Dual:
		lo, err := a.VirtReg(v.Class, names[0], ir.EvenIndex)
		if err != nil {
			return nil, err
		}
		hi, err := a.VirtReg(v.Class, names[1], ir.OddIndex)
		if err != nil {
			return nil, err
		}
		lo.AddLinked(hi, adjacentIndex(hi, -1))
		hi.AddLinked(lo, adjacentIndex(lo, +1))
		return []ir.Register{lo, hi}, nil
	case Quad:
		regs := make([]*ir.VirtualRegister, 4)
		for i, name := range names {
			reg, err := a.VirtReg(v.Class, name, ir.ModuloIndex(4, i))
			if err != nil {
				return nil, err
			}
			regs[i] = reg
		}
		for i := range regs {
			for j := range regs {
				if i == j {
					continue
				}
				regs[i].AddLinked(regs[j], adjacentIndex(regs[j], i-j))
			}
		}
		out := make([]ir.Register, 4)
		for i, reg := range regs {
			out[i] = reg
		}
		return out, nil
	default:
		reg, err := a.VirtReg(v.Class, names[0], nil)
		if err != nil {
			return nil, err
		}
		return []ir.Register{reg}, nil
	}
}

// adjacentIndex enumerates the single index at neighbour's color plus delta.
func adjacentIndex(neighbour *ir.VirtualRegister, delta int) ir.IndexGenerator {
	return func(c *ir.Coloring) []int {
		index, ok := c.Index(neighbour)
		if !ok {
			return nil
		}
		return []int{index + delta}
	}
}

func containsByte(s string, b byte) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return true
		}
	}
	return false
}

// SpecIndex is one (textual specifier, index) component of a physical
// register mention; compound registers decompose into several.
type SpecIndex struct {
	Spec  string
	Index int
}

// PhysReg parses a physical-register lexeme into its canonical register
// objects. The full regexp decides applicability; Split decomposes the
// lexeme into per-register components.
type PhysReg struct {
	tag    string
	Class  *ir.RegClass
	Lexeme lexer.Kind
	Full   *regexp.Regexp
	Split  func(value string) ([]SpecIndex, bool)
}

// Tag implements Pattern.
func (p PhysReg) Tag() string { return p.tag }

// Parse implements Pattern.
func (p PhysReg) Parse(a *ir.Architecture, tokens []lexer.Token) (any, []lexer.Token, error) {
	if len(tokens) == 0 || tokens[0].Kind != p.Lexeme || !p.Full.MatchString(tokens[0].Value) {
		return nil, tokens, ErrNoMatch
	}
	parts, ok := p.Split(tokens[0].Value)
	if !ok {
		return nil, tokens, ErrNoMatch
	}
	regs := make([]ir.Register, 0, len(parts))
	for _, part := range parts {
		reg, err := a.PhysReg(p.Class, part.Spec, part.Index)
		if err != nil {
			return nil, tokens, err
		}
		regs = append(regs, reg)
	}
	return regs, tokens[1:], nil
}

var digitRuns = regexp.MustCompile(`[0-9]+`)

// NewDollarPhys builds the '$'-lexeme physical pattern of classes written
// "$r5" / "$r6r7": letter is the class register prefix, min/max bound the
// compound arity.
func NewDollarPhys(tag string, class *ir.RegClass, letter string, min, max int) PhysReg {
	full := regexp.MustCompile(fmt.Sprintf(`^\$(%s[0-9]+){%d,%d}$`, letter, min, max))
	return PhysReg{
		tag:    tag,
		Class:  class,
		Lexeme: lexer.Register,
		Full:   full,
		Split: func(value string) ([]SpecIndex, bool) {
			var parts []SpecIndex
			for _, run := range digitRuns.FindAllString(value, -1) {
				index := 0
				for _, d := range run {
					index = index*10 + int(d-'0')
				}
				parts = append(parts, SpecIndex{Index: index})
			}
			return parts, len(parts) > 0
		},
	}
}

// NewNamedPhys builds an identifier-lexeme physical pattern for ISAs whose
// registers are written without a sigil ("a0", "sp", "f7"). split decomposes
// a name into its specifier and index; aliasing is resolved by the class.
func NewNamedPhys(tag string, class *ir.RegClass, full string, split func(string) ([]SpecIndex, bool)) PhysReg {
	return PhysReg{
		tag:    tag,
		Class:  class,
		Lexeme: lexer.Ident,
		Full:   regexp.MustCompile(full),
		Split:  split,
	}
}

// SpecialReg parses a '$'-prefixed special-register lexeme into the
// architecture's symbolic file.
type SpecialReg struct {
	tag string
}

// NewSpecialReg builds a special-register leaf.
func NewSpecialReg(tag string) SpecialReg { return SpecialReg{tag: tag} }

// Tag implements Pattern.
func (s SpecialReg) Tag() string { return s.tag }

// Parse implements Pattern.
func (s SpecialReg) Parse(a *ir.Architecture, tokens []lexer.Token) (any, []lexer.Token, error) {
	if len(tokens) == 0 || tokens[0].Kind != lexer.SpecialRegister {
		return nil, tokens, ErrNoMatch
	}
	reg, err := a.SpecialReg(tokens[0].Value[1:])
	if err != nil {
		return nil, tokens, err
	}
	return []ir.Register{reg}, tokens[1:], nil
}

// Register is the general register leaf: the disjunction of a class's
// virtual and physical patterns. It yields a register list; lists longer
// than one arise from compound (dual/quad) mentions.
type Register struct {
	tag      string
	Virtual  Pattern
	Physical Pattern
}

// NewRegister builds the virtual-or-physical union pattern.
func NewRegister(tag string, virtual, physical Pattern) Register {
	return Register{tag: tag, Virtual: virtual, Physical: physical}
}

// Tag implements Pattern.
func (r Register) Tag() string { return r.tag }

// Parse implements Pattern.
func (r Register) Parse(a *ir.Architecture, tokens []lexer.Token) (any, []lexer.Token, error) {
	return NewFirstOf(r.tag, r.Virtual, r.Physical).Parse(a, tokens)
}

// Suffixed consumes its inner pattern followed by an optional identifier
// from Suffixes (the sub-accumulator "_lo"/"_hi" forms). The suffix binds to
// the full register; sub-register precision is not modeled.
type Suffixed struct {
	Inner    Pattern
	Suffixes []string
}

// Tag implements Pattern.
func (s Suffixed) Tag() string { return s.Inner.Tag() }

// Parse implements Pattern.
func (s Suffixed) Parse(a *ir.Architecture, tokens []lexer.Token) (any, []lexer.Token, error) {
	value, rest, err := s.Inner.Parse(a, tokens)
	if err != nil {
		return nil, tokens, err
	}
	if len(rest) > 0 && rest[0].Kind == lexer.Ident {
		for _, suffix := range s.Suffixes {
			if rest[0].Value == suffix {
				rest = rest[1:]
				break
			}
		}
	}
	return value, rest, nil
}

// AnyRegister builds the class-agnostic register parser the macro lines use
// from the ISA's register patterns.
func AnyRegister(patterns ...Pattern) ir.RegisterParser {
	return func(a *ir.Architecture, tokens []lexer.Token) ([]ir.Register, []lexer.Token, bool) {
		for _, p := range patterns {
			value, rest, err := p.Parse(a, tokens)
			if err != nil {
				continue
			}
			if regs, ok := value.([]ir.Register); ok {
				return regs, rest, true
			}
		}
		return nil, tokens, false
	}
}

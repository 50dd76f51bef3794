// Package pattern is the combinator library the per-ISA packages build their
// instruction tables from. A pattern consumes a prefix of the lexed token
// list and yields a typed value plus the remainder; a failed pattern
// consumes nothing observable.
package pattern

import (
	"errors"
	"fmt"

	"github.com/asmkit/asmalloc/pkg/ir"
	"github.com/asmkit/asmalloc/pkg/lexer"
)

// ErrNoMatch is the clean-failure sentinel: the pattern did not apply at the
// head of the token list. Any other error is a fatal condition (e.g. a
// physical index beyond the register file) and aborts the parse.
var ErrNoMatch = errors.New("pattern did not match")

// Pattern is one element of an instruction's operand grammar.
type Pattern interface {
	// Tag names the slot the parsed value is stored under in the match map.
	Tag() string
	// Parse consumes a prefix of tokens. On clean failure it returns
	// ErrNoMatch and leaves tokens untouched.
	Parse(a *ir.Architecture, tokens []lexer.Token) (any, []lexer.Token, error)
}

// Match accumulates the tagged values of a sequential match.
type Match map[string]any

// Str returns the string value stored under tag ("" when absent).
func (m Match) Str(tag string) string {
	s, _ := m[tag].(string)
	return s
}

// Regs returns the register list stored under tag.
func (m Match) Regs(tag string) []ir.Register {
	regs, _ := m[tag].([]ir.Register)
	return regs
}

// Ops returns the register list under tag as operands.
func (m Match) Ops(tag string) []ir.Operand {
	return RegsToOps(m.Regs(tag))
}

// Imm returns the immediate stored under tag (nil when absent).
func (m Match) Imm(tag string) *ir.ImmediateValue {
	imm, _ := m[tag].(*ir.ImmediateValue)
	return imm
}

// Operand returns the single operand stored under tag: an immediate or a
// relocation symbol.
func (m Match) Operand(tag string) ir.Operand {
	op, _ := m[tag].(ir.Operand)
	return op
}

// Addr returns the address value stored under tag (nil when absent).
func (m Match) Addr(tag string) *AddrValue {
	addr, _ := m[tag].(*AddrValue)
	return addr
}

// Has reports whether tag was filled (Optional children may leave it empty).
func (m Match) Has(tag string) bool {
	_, ok := m[tag]
	return ok
}

// RegsToOps widens a register list to an operand list.
func RegsToOps(regs []ir.Register) []ir.Operand {
	ops := make([]ir.Operand, len(regs))
	for i, r := range regs {
		ops[i] = r
	}
	return ops
}

// Builder constructs the instruction from a completed match.
type Builder func(m Match) (*ir.Instruction, error)

// Sequential matches its children in order and hands the accumulated match
// map to the builder. It implements ir.InsnPattern.
type Sequential struct {
	Elems []Pattern
	Build Builder
}

// NewSequential is the table-construction helper the ISA packages use.
func NewSequential(elems []Pattern, build Builder) *Sequential {
	return &Sequential{Elems: elems, Build: build}
}

// Match implements ir.InsnPattern.
func (s *Sequential) Match(a *ir.Architecture, tokens []lexer.Token) (*ir.Instruction, []lexer.Token, error) {
	m := make(Match, len(s.Elems))
	rest := tokens
	for _, elem := range s.Elems {
		value, remaining, err := elem.Parse(a, rest)
		if err != nil {
			if errors.Is(err, ErrNoMatch) {
				return nil, tokens, fmt.Errorf("%w: element %q at %v", ErrNoMatch, elem.Tag(), rest)
			}
			return nil, tokens, err
		}
		if value != nil && elem.Tag() != "" {
			m[elem.Tag()] = value
		}
		rest = remaining
	}
	insn, err := s.Build(m)
	if err != nil {
		return nil, tokens, err
	}
	return insn, rest, nil
}

// Disjunctive returns the first matching alternative. Tags lets statistics
// distinguish which alternative matched: a non-empty tag is attached to the
// instruction as its match pattern unless the alternative set one itself.
type Disjunctive struct {
	Alts []ir.InsnPattern
	Tags []string
}

// NewDisjunctive builds a disjunction over alts; tags may be nil.
func NewDisjunctive(alts []ir.InsnPattern, tags []string) *Disjunctive {
	return &Disjunctive{Alts: alts, Tags: tags}
}

// Match implements ir.InsnPattern.
func (d *Disjunctive) Match(a *ir.Architecture, tokens []lexer.Token) (*ir.Instruction, []lexer.Token, error) {
	for i, alt := range d.Alts {
		insn, rest, err := alt.Match(a, tokens)
		if err != nil {
			if errors.Is(err, ErrNoMatch) {
				continue
			}
			return nil, tokens, err
		}
		if insn.Match == nil && d.Tags != nil && d.Tags[i] != "" {
			insn.Match = ir.TagMatch{Tag: d.Tags[i]}
		}
		return insn, rest, nil
	}
	return nil, tokens, fmt.Errorf("%w: no alternative matched at %v", ErrNoMatch, tokens)
}

// Optional wraps a child pattern and never fails: a non-matching child
// yields a nil value and consumes nothing.
type Optional struct {
	Child Pattern
}

// Tag returns the child's tag.
func (o Optional) Tag() string { return o.Child.Tag() }

// Parse implements Pattern.
func (o Optional) Parse(a *ir.Architecture, tokens []lexer.Token) (any, []lexer.Token, error) {
	value, rest, err := o.Child.Parse(a, tokens)
	if err != nil {
		if errors.Is(err, ErrNoMatch) {
			return nil, tokens, nil
		}
		return nil, tokens, err
	}
	return value, rest, nil
}

// FirstOf tries each child in order and returns the first match under the
// given tag. It is the operand-level counterpart of Disjunctive.
type FirstOf struct {
	tag      string
	Children []Pattern
}

// NewFirstOf builds an operand-level disjunction.
func NewFirstOf(tag string, children ...Pattern) FirstOf {
	return FirstOf{tag: tag, Children: children}
}

// Tag implements Pattern.
func (f FirstOf) Tag() string { return f.tag }

// Parse implements Pattern.
func (f FirstOf) Parse(a *ir.Architecture, tokens []lexer.Token) (any, []lexer.Token, error) {
	for _, child := range f.Children {
		value, rest, err := child.Parse(a, tokens)
		if err != nil {
			if errors.Is(err, ErrNoMatch) {
				continue
			}
			return nil, tokens, err
		}
		return value, rest, nil
	}
	return nil, tokens, ErrNoMatch
}

// expectOperator consumes the operator token value from the head of tokens.
func expectOperator(tokens []lexer.Token, value string) ([]lexer.Token, bool) {
	if len(tokens) == 0 || tokens[0].Kind != lexer.Operator || tokens[0].Value != value {
		return tokens, false
	}
	return tokens[1:], true
}

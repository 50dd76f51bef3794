package pattern

import (
	"github.com/asmkit/asmalloc/pkg/ir"
	"github.com/asmkit/asmalloc/pkg/lexer"
)

// AddrValue is the parse result of an address operand: the base register and
// the offset, which is either an immediate or a register.
type AddrValue struct {
	Base   []ir.Register
	Offset []ir.Operand
}

// Operands returns offset followed by base as one operand list. The ISA
// instruction builders do not use it: they append base first, then offset.
func (v *AddrValue) Operands() []ir.Operand {
	out := make([]ir.Operand, 0, len(v.Offset)+len(v.Base))
	out = append(out, v.Offset...)
	for _, r := range v.Base {
		out = append(out, r)
	}
	return out
}

// Address parses "<offset> Open <base> Close", e.g. "8[$r12]" on bracketing
// ISAs or "8(sp)" on parenthesizing ones.
type Address struct {
	tag         string
	Offset      Pattern
	Base        Pattern
	Open, Close string
}

// NewAddress builds an address pattern; open and close select the ISA's
// bracketing style.
func NewAddress(tag string, offset, base Pattern, open, close string) Address {
	return Address{tag: tag, Offset: offset, Base: base, Open: open, Close: close}
}

// Tag implements Pattern.
func (p Address) Tag() string { return p.tag }

// Parse implements Pattern.
func (p Address) Parse(a *ir.Architecture, tokens []lexer.Token) (any, []lexer.Token, error) {
	offsetValue, rest, err := p.Offset.Parse(a, tokens)
	if err != nil {
		return nil, tokens, err
	}
	rest, ok := expectOperator(rest, p.Open)
	if !ok {
		return nil, tokens, ErrNoMatch
	}
	baseValue, rest, err := p.Base.Parse(a, rest)
	if err != nil {
		return nil, tokens, err
	}
	rest, ok = expectOperator(rest, p.Close)
	if !ok {
		return nil, tokens, ErrNoMatch
	}

	addr := &AddrValue{}
	switch off := offsetValue.(type) {
	case *ir.ImmediateValue:
		addr.Offset = []ir.Operand{off}
	case []ir.Register:
		addr.Offset = RegsToOps(off)
	}
	if base, ok := baseValue.([]ir.Register); ok {
		addr.Base = base
	}
	return addr, rest, nil
}

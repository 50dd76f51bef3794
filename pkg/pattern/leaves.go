package pattern

import (
	"strconv"
	"strings"

	"github.com/asmkit/asmalloc/pkg/ir"
	"github.com/asmkit/asmalloc/pkg/lexer"
)

// Opcode consumes one identifier as the mnemonic. With Predicates set it
// greedily consumes following "." identifier pairs and appends them, so that
// "fcmp" followed by ".ne" yields the mnemonic "fcmp.ne".
type Opcode struct {
	tag        string
	Predicates bool
}

// NewOpcode builds an opcode leaf.
func NewOpcode(tag string, predicates bool) Opcode {
	return Opcode{tag: tag, Predicates: predicates}
}

// Tag implements Pattern.
func (o Opcode) Tag() string { return o.tag }

// Parse implements Pattern.
func (o Opcode) Parse(_ *ir.Architecture, tokens []lexer.Token) (any, []lexer.Token, error) {
	if len(tokens) == 0 || tokens[0].Kind != lexer.Ident {
		return nil, tokens, ErrNoMatch
	}
	opc := tokens[0].Value
	rest := tokens[1:]
	if o.Predicates {
		for len(rest) >= 2 && rest[0].Kind == lexer.Operator && rest[0].Value == "." && rest[1].Kind == lexer.Ident {
			opc += "." + rest[1].Value
			rest = rest[2:]
		}
	}
	return opc, rest, nil
}

// Label consumes a jump target: a plain identifier or the bracketed
// "<name>" form objdump prints.
type Label struct {
	tag string
}

// NewLabel builds a label leaf.
func NewLabel(tag string) Label { return Label{tag: tag} }

// Tag implements Pattern.
func (l Label) Tag() string { return l.tag }

// Parse implements Pattern.
func (l Label) Parse(_ *ir.Architecture, tokens []lexer.Token) (any, []lexer.Token, error) {
	if len(tokens) == 0 {
		return nil, tokens, ErrNoMatch
	}
	switch tokens[0].Kind {
	case lexer.Ident:
		return tokens[0].Value, tokens[1:], nil
	case lexer.ObjdumpLabel:
		return strings.Trim(tokens[0].Value, "<>"), tokens[1:], nil
	}
	return nil, tokens, ErrNoMatch
}

// Immediate consumes one numeric token, plus the optional parenthesized hex
// alias objdump prints after decimal immediates.
type Immediate struct {
	tag string
}

// NewImmediate builds an immediate leaf.
func NewImmediate(tag string) Immediate { return Immediate{tag: tag} }

// Tag implements Pattern.
func (i Immediate) Tag() string { return i.tag }

// Parse implements Pattern.
func (i Immediate) Parse(_ *ir.Architecture, tokens []lexer.Token) (any, []lexer.Token, error) {
	if len(tokens) == 0 {
		return nil, tokens, ErrNoMatch
	}
	var value int64
	var err error
	switch tokens[0].Kind {
	case lexer.Immediate:
		value, err = strconv.ParseInt(tokens[0].Value, 10, 64)
	case lexer.HexImmediate:
		value, err = parseHex(tokens[0].Value)
	default:
		return nil, tokens, ErrNoMatch
	}
	if err != nil {
		return nil, tokens, ErrNoMatch
	}
	rest := tokens[1:]
	// Swallow the hex alias: "16 (0x10)".
	if len(rest) > 0 && rest[0].Kind == lexer.HexImmediate {
		rest = rest[1:]
	}
	return &ir.ImmediateValue{Value: value}, rest, nil
}

// Symbol consumes a %hi/%lo relocation expression.
type Symbol struct {
	tag string
}

// NewSymbol builds a relocation leaf.
func NewSymbol(tag string) Symbol { return Symbol{tag: tag} }

// Tag implements Pattern.
func (s Symbol) Tag() string { return s.tag }

// Parse implements Pattern.
func (s Symbol) Parse(_ *ir.Architecture, tokens []lexer.Token) (any, []lexer.Token, error) {
	if len(tokens) == 0 || tokens[0].Kind != lexer.Symbol {
		return nil, tokens, ErrNoMatch
	}
	return &ir.SymbolRef{Text: tokens[0].Value}, tokens[1:], nil
}

func parseHex(s string) (int64, error) {
	s = strings.Trim(s, "()")
	s = strings.ReplaceAll(s, "_", "")
	negative := false
	switch {
	case strings.HasPrefix(s, "-"):
		negative = true
		s = s[1:]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	}
	s = strings.TrimPrefix(s, "0x")
	value, err := strconv.ParseInt(s, 16, 64)
	if negative {
		value = -value
	}
	return value, err
}

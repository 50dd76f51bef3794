// Package lexer turns one line of assembly, objdump output or execution trace
// into an ordered list of classified tokens. Classification is longest-prefix
// regex matching against a priority-ordered class list. Lexing never fails:
// a chunk no class recognizes becomes an Unmatched token and is diagnosed at
// parse time.
package lexer

import "regexp"

// Kind identifies the lexical class of a token.
type Kind int

const (
	// Unmatched is the fail-open class for chunks no pattern recognizes.
	Unmatched Kind = iota
	// Ident covers mnemonics, label names, virtual register descriptors and
	// ABI register names.
	Ident
	// Register is a '$'-prefixed (possibly compound) register, e.g. "$r5" or
	// "$r6r7".
	Register
	// SpecialRegister is a '$'-prefixed name that is not a numbered register,
	// e.g. "$pc".
	SpecialRegister
	// Immediate is a signed decimal literal.
	Immediate
	// HexImmediate is a signed hex literal, optionally parenthesized the way
	// objdump prints immediate aliases.
	HexImmediate
	// Operator is one of ( ) [ ] . < >.
	Operator
	// LabelEnd is the ':' terminating a label definition.
	LabelEnd
	// BundleSeparator is the ';;' bundle terminator of bundling ISAs.
	BundleSeparator
	// MacroHead is the '//#' introducing PREDEFINED/POSTUSED annotations.
	MacroHead
	// CommentHead is '//' (when not a macro head); the rest of the line is
	// discarded by the parser.
	CommentHead
	// TraceCommentHead is the '#' comment marker of trace files.
	TraceCommentHead
	// ObjdumpEllipsis matches the "..." and "***" filler markers of objdump
	// listings.
	ObjdumpEllipsis
	// ObjdumpLabel is a "<name>" symbol reference in objdump output.
	ObjdumpLabel
	// FunctionStart and FunctionEnd delimit functions in annotated listings.
	FunctionStart
	FunctionEnd
	// Symbol is a linker relocation expression, %hi(sym) or %lo(sym).
	Symbol
)

var kindNames = map[Kind]string{
	Unmatched:        "Unmatched",
	Ident:            "Ident",
	Register:         "Register",
	SpecialRegister:  "SpecialRegister",
	Immediate:        "Immediate",
	HexImmediate:     "HexImmediate",
	Operator:         "Operator",
	LabelEnd:         "LabelEnd",
	BundleSeparator:  "BundleSeparator",
	MacroHead:        "MacroHead",
	CommentHead:      "CommentHead",
	TraceCommentHead: "TraceCommentHead",
	ObjdumpEllipsis:  "ObjdumpEllipsis",
	ObjdumpLabel:     "ObjdumpLabel",
	FunctionStart:    "FunctionStart",
	FunctionEnd:      "FunctionEnd",
	Symbol:           "Symbol",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "Kind(?)"
}

// Token is one classified lexeme.
type Token struct {
	Kind  Kind
	Value string
}

func (t Token) String() string {
	return t.Kind.String() + "(" + t.Value + ")"
}

type class struct {
	kind Kind
	re   *regexp.Regexp
}

// Class order is priority order: the first class whose pattern matches a
// prefix of the chunk wins. MacroHead precedes CommentHead so that "//#" is
// not swallowed by the plain comment pattern.
var classes = []class{
	{ObjdumpEllipsis, regexp.MustCompile(`^([.]{3}|\*{3})`)},
	{ObjdumpLabel, regexp.MustCompile(`^<[\w.+-]+>`)},
	{FunctionStart, regexp.MustCompile(`^\{\{\{`)},
	{FunctionEnd, regexp.MustCompile(`^\}\}\}`)},
	{MacroHead, regexp.MustCompile(`^//#`)},
	{CommentHead, regexp.MustCompile(`^//`)},
	{TraceCommentHead, regexp.MustCompile(`^#`)},
	{LabelEnd, regexp.MustCompile(`^:`)},
	{HexImmediate, regexp.MustCompile(`^\(?[+-]?0x[0-9a-fA-F_]+\)?`)},
	{Immediate, regexp.MustCompile(`^[+-]?[0-9]+`)},
	{Register, regexp.MustCompile(`^\$([ar][0-9]+){1,4}`)},
	{Operator, regexp.MustCompile(`^[()\[\].<>]`)},
	{BundleSeparator, regexp.MustCompile(`^;;`)},
	{Ident, regexp.MustCompile(`^[0-9a-zA-Z_]+`)},
	{SpecialRegister, regexp.MustCompile(`^\$[0-9a-zA-Z_]+`)},
	{Symbol, regexp.MustCompile(`^%(hi|lo)\([.\w]+\)`)},
}

// separators split the raw line into candidate chunks and are discarded.
var separators = regexp.MustCompile(`[ \t,=?]+`)

// LexLine splits line on separators and classifies every chunk. It is pure
// and total: unrecognized input yields Unmatched tokens, never an error.
func LexLine(line string) []Token {
	var tokens []Token
	for _, chunk := range separators.Split(line, -1) {
		if chunk == "" {
			continue
		}
		tokens = lexChunk(tokens, chunk)
	}
	return tokens
}

func lexChunk(tokens []Token, chunk string) []Token {
	for chunk != "" {
		matched := false
		for _, c := range classes {
			loc := c.re.FindStringIndex(chunk)
			if loc == nil || loc[1] == 0 {
				continue
			}
			tokens = append(tokens, Token{Kind: c.kind, Value: chunk[:loc[1]]})
			chunk = chunk[loc[1]:]
			matched = true
			break
		}
		if !matched {
			tokens = append(tokens, Token{Kind: Unmatched, Value: chunk})
			return tokens
		}
	}
	return tokens
}

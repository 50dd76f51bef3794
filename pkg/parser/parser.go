// Package parser drives line-oriented parsing of assembly, objdump output
// and execution traces into an ir.Program, wiring CFG edges as jumps are
// seen.
package parser

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/asmkit/asmalloc/pkg/ir"
	"github.com/asmkit/asmalloc/pkg/lexer"
)

// AsmParser consumes one lexed line at a time, maintaining the in-progress
// bundle and the program's current block.
type AsmParser struct {
	arch   *ir.Architecture
	prog   *ir.Program
	bundle *ir.Bundle

	// verbose receives parse-progress messages when non-nil.
	verbose io.Writer

	haveTimestamp bool
	lastTimestamp int64
}

// New builds a parser feeding prog with instructions of arch.
func New(arch *ir.Architecture, prog *ir.Program) *AsmParser {
	return &AsmParser{arch: arch, prog: prog, bundle: &ir.Bundle{}}
}

// SetVerbose installs a sink for progress messages.
func (p *AsmParser) SetVerbose(w io.Writer) { p.verbose = w }

// Program returns the program under construction.
func (p *AsmParser) Program() *ir.Program { return p.prog }

func (p *AsmParser) logf(format string, args ...any) {
	if p.verbose != nil {
		fmt.Fprintf(p.verbose, format+"\n", args...)
	}
}

// ParseAsmLine dispatches one line of hand-written assembly.
func (p *AsmParser) ParseAsmLine(tokens []lexer.Token, dbg ir.DebugInfo) error {
	if len(tokens) == 0 {
		return nil
	}
	head := tokens[0]
	switch head.Kind {
	case lexer.BundleSeparator:
		p.commitBundle()
		return nil
	case lexer.MacroHead:
		return p.parseMacro(tokens[1:], dbg)
	case lexer.CommentHead, lexer.TraceCommentHead:
		return nil
	case lexer.FunctionStart, lexer.FunctionEnd, lexer.ObjdumpEllipsis:
		return nil
	case lexer.Ident:
		if len(tokens) > 1 && tokens[1].Kind == lexer.LabelEnd {
			return p.defineLabel(head.Value, dbg)
		}
		return p.parseInstruction(tokens, dbg)
	}
	return fmt.Errorf("%s: unable to parse line starting with %s", dbg, head)
}

// ParseObjdumpLine handles disassembler output: symbol headers become
// labels, address and bytecode tokens before the mnemonic are skipped.
func (p *AsmParser) ParseObjdumpLine(tokens []lexer.Token, dbg ir.DebugInfo) error {
	if len(tokens) == 0 {
		return nil
	}
	switch tokens[0].Kind {
	case lexer.BundleSeparator:
		p.commitBundle()
		return nil
	case lexer.CommentHead, lexer.TraceCommentHead, lexer.FunctionStart, lexer.FunctionEnd, lexer.ObjdumpEllipsis:
		return nil
	}
	// "0000000000000000 <main>:" symbol header.
	for i, tok := range tokens {
		if tok.Kind == lexer.ObjdumpLabel && i+1 < len(tokens) && tokens[i+1].Kind == lexer.LabelEnd {
			return p.defineLabel(strings.Trim(tok.Value, "<>"), dbg)
		}
	}
	insn := p.skipToMnemonic(tokens)
	if insn == nil {
		p.logf("objdump: skipping line %s: %v", dbg, tokens)
		return nil
	}
	return p.parseInstruction(insn, dbg)
}

// ParseTraceLine handles execution traces: a leading timestamp and PC are
// stripped, and a timestamp change commits the in-progress bundle (one
// bundle per cycle).
func (p *AsmParser) ParseTraceLine(tokens []lexer.Token, dbg ir.DebugInfo) error {
	if len(tokens) == 0 {
		return nil
	}
	switch tokens[0].Kind {
	case lexer.TraceCommentHead, lexer.CommentHead:
		return nil
	}
	if tokens[0].Kind == lexer.Immediate {
		timestamp, err := strconv.ParseInt(tokens[0].Value, 10, 64)
		if err != nil {
			return fmt.Errorf("%s: invalid trace timestamp %q", dbg, tokens[0].Value)
		}
		if p.haveTimestamp && timestamp != p.lastTimestamp {
			p.commitBundle()
		}
		p.haveTimestamp = true
		p.lastTimestamp = timestamp
		tokens = tokens[1:]
	}
	insn := p.skipToMnemonic(tokens)
	if insn == nil {
		p.logf("trace: skipping line %s: %v", dbg, tokens)
		return nil
	}
	return p.parseInstruction(insn, dbg)
}

// EndProgram commits any pending bundle and finishes the CFG.
func (p *AsmParser) EndProgram() {
	p.commitBundle()
	p.prog.EndProgram()
}

func (p *AsmParser) commitBundle() {
	if p.bundle.Len() == 0 {
		// An empty separator produces no empty bundle.
		return
	}
	p.prog.AddBundle(p.bundle)
	p.bundle = &ir.Bundle{}
}

func (p *AsmParser) defineLabel(label string, dbg ir.DebugInfo) error {
	if p.bundle.Len() != 0 {
		return fmt.Errorf("%s: label %q cannot be inserted in the middle of a bundle", dbg, label)
	}
	if err := p.prog.AddLabel(label); err != nil {
		return fmt.Errorf("%s: %w", dbg, err)
	}
	return nil
}

// lookupPattern resolves the mnemonic at the head of tokens, first bare,
// then with successive ".pred" suffixes appended.
func (p *AsmParser) lookupPattern(tokens []lexer.Token) (ir.InsnPattern, bool) {
	mnemonic := tokens[0].Value
	if pat, ok := p.arch.Pattern(mnemonic); ok {
		return pat, true
	}
	rest := tokens[1:]
	for len(rest) >= 2 && rest[0].Kind == lexer.Operator && rest[0].Value == "." && rest[1].Kind == lexer.Ident {
		mnemonic += "." + rest[1].Value
		rest = rest[2:]
		if pat, ok := p.arch.Pattern(mnemonic); ok {
			return pat, true
		}
	}
	return nil, false
}

func (p *AsmParser) parseInstruction(tokens []lexer.Token, dbg ir.DebugInfo) error {
	pat, ok := p.lookupPattern(tokens)
	if !ok {
		return fmt.Errorf("%s: unknown mnemonic %q", dbg, tokens[0].Value)
	}
	insn, _, err := pat.Match(p.arch, tokens)
	if err != nil {
		return fmt.Errorf("%s: failed to match %q: %w", dbg, tokens[0].Value, err)
	}
	insn.Debug = dbg
	p.bundle.Add(insn)
	if insn.IsJump || insn.IsCondJump {
		succ := p.prog.BlockByLabel(insn.JumpLabel)
		p.prog.Current.ConnectTo(succ)
	}
	if !p.arch.HasBundles() {
		p.commitBundle()
	}
	return nil
}

// skipToMnemonic drops leading address, bytecode and PC tokens, returning
// the suffix starting at the first identifier registered as a mnemonic.
func (p *AsmParser) skipToMnemonic(tokens []lexer.Token) []lexer.Token {
	for i, tok := range tokens {
		if tok.Kind != lexer.Ident {
			continue
		}
		if _, ok := p.lookupPattern(tokens[i:]); ok {
			return tokens[i:]
		}
	}
	return nil
}

func (p *AsmParser) parseMacro(tokens []lexer.Token, dbg ir.DebugInfo) error {
	if len(tokens) == 0 || tokens[0].Kind != lexer.Ident {
		return fmt.Errorf("%s: malformed macro line", dbg)
	}
	name := tokens[0].Value
	rest := tokens[1:]
	if len(rest) == 0 || rest[0].Kind != lexer.Operator || rest[0].Value != "(" {
		return fmt.Errorf("%s: macro %s: expecting operator (", dbg, name)
	}
	rest = rest[1:]

	var regs []ir.Register
	for len(rest) > 0 && !(rest[0].Kind == lexer.Operator && rest[0].Value == ")") {
		sub, remaining, ok := p.arch.ParseAnyRegister(rest)
		if !ok {
			return fmt.Errorf("%s: macro %s: unable to parse register at %v", dbg, name, rest)
		}
		for _, reg := range sub {
			regs = append(regs, reg.Base())
		}
		rest = remaining
	}
	if len(rest) == 0 {
		return fmt.Errorf("%s: macro %s: expecting operator )", dbg, name)
	}

	switch name {
	case "PREDEFINED":
		p.logf("adding %v to list of pre-defined registers", regs)
		p.prog.PreDefined = append(p.prog.PreDefined, regs...)
	case "POSTUSED":
		p.logf("adding %v to list of post-used registers", regs)
		p.prog.PostUsed = append(p.prog.PostUsed, regs...)
	default:
		return fmt.Errorf("%s: unknown macro %q", dbg, name)
	}
	return nil
}

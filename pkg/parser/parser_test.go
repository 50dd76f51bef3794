package parser_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asmkit/asmalloc/pkg/archs/dummy"
	"github.com/asmkit/asmalloc/pkg/archs/rv32"
	"github.com/asmkit/asmalloc/pkg/ir"
	"github.com/asmkit/asmalloc/pkg/lexer"
	"github.com/asmkit/asmalloc/pkg/parser"
)

func parseSource(t *testing.T, arch *ir.Architecture, source string) *ir.Program {
	t.Helper()
	prog, err := tryParseSource(arch, source)
	require.NoError(t, err)
	return prog
}

func tryParseSource(arch *ir.Architecture, source string) (*ir.Program, error) {
	prog := ir.NewProgram()
	p := parser.New(arch, prog)
	for lineNo, line := range strings.Split(source, "\n") {
		if err := p.ParseAsmLine(lexer.LexLine(line), ir.DebugInfo{Line: lineNo + 1}); err != nil {
			return nil, err
		}
	}
	p.EndProgram()
	return prog, nil
}

func newDummy(t *testing.T) *ir.Architecture {
	t.Helper()
	arch, err := dummy.New(nil)
	require.NoError(t, err)
	return arch
}

func bodyBlocks(prog *ir.Program) []*ir.BasicBlock {
	var out []*ir.BasicBlock
	for _, bb := range prog.Blocks {
		if bb != prog.Source && bb != prog.Sink {
			out = append(out, bb)
		}
	}
	return out
}

func TestMacroLines(t *testing.T) {
	arch := newDummy(t)
	prog := parseSource(t, arch, `
//# PREDEFINED($r5, $r1, $r12)
add $r0 = $r5, $r1
;;
//# POSTUSED($r0)
`)
	require.Len(t, prog.PreDefined, 3)
	assert.Equal(t, "$r5", prog.PreDefined[0].String())
	assert.Equal(t, "$r1", prog.PreDefined[1].String())
	assert.Equal(t, "$r12", prog.PreDefined[2].String())
	require.Len(t, prog.PostUsed, 1)
	assert.Equal(t, "$r0", prog.PostUsed[0].String())
}

func TestMacroCompoundRegisterReducesToBases(t *testing.T) {
	arch := newDummy(t)
	prog := parseSource(t, arch, `
//# PREDEFINED($r0r1)
add $r2 = $r0, $r1
;;
//# POSTUSED($r2)
`)
	require.Len(t, prog.PreDefined, 2)
	assert.Equal(t, 0, prog.PreDefined[0].(*ir.PhysicalRegister).Index())
	assert.Equal(t, 1, prog.PreDefined[1].(*ir.PhysicalRegister).Index())
}

func TestUnknownMacroIsFatal(t *testing.T) {
	arch := newDummy(t)
	_, err := tryParseSource(arch, "//# UNDECLARED($r0)")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown macro")
}

func TestUnknownMnemonicIsFatal(t *testing.T) {
	arch := newDummy(t)
	_, err := tryParseSource(arch, "frobnicate $r0 = $r1, $r2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mnemonic")
	assert.Contains(t, err.Error(), "line 1")
}

func TestLabelMidBundleIsFatal(t *testing.T) {
	arch := newDummy(t)
	_, err := tryParseSource(arch, `
add $r0 = $r1, $r2
mylabel:
`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "middle of a bundle")
}

func TestEmptyBundleSeparator(t *testing.T) {
	arch := newDummy(t)
	prog := parseSource(t, arch, `
;;
add $r0 = $r1, $r2
;;
;;
`)
	var bundles int
	for _, bb := range bodyBlocks(prog) {
		bundles += len(bb.Bundles)
	}
	assert.Equal(t, 1, bundles, "empty separators produce no empty bundles")
}

func TestBundleGroupsInstructions(t *testing.T) {
	arch := newDummy(t)
	prog := parseSource(t, arch, `
add R(p) = $r5, $r5
ld  R(p) = R(p)[$r12]
;;
add R(q) = R(p), $r1
;;
`)
	body := bodyBlocks(prog)
	require.Len(t, body, 1)
	require.Len(t, body[0].Bundles, 2)
	assert.Equal(t, 2, body[0].Bundles[0].Len())
	assert.Equal(t, 1, body[0].Bundles[1].Len())
}

func TestNonBundlingISACommitsPerInstruction(t *testing.T) {
	arch, err := rv32.New(nil)
	require.NoError(t, err)
	prog := parseSource(t, arch, `
//# PREDEFINED(a0, a1)
add a2, a0, a1
add a3, a2, a0
//# POSTUSED(a3)
`)
	body := bodyBlocks(prog)
	require.Len(t, body, 1)
	require.Len(t, body[0].Bundles, 2, "every instruction gets its own bundle")
	for _, bundle := range body[0].Bundles {
		assert.Equal(t, 1, bundle.Len())
	}
}

func TestForwardJumpCreatesOneBlock(t *testing.T) {
	arch := newDummy(t)
	prog := parseSource(t, arch, `
//# PREDEFINED($r1)
cb.deqz $r1, exit
;;
add $r0 = $r1, $r1
;;
exit:
add $r0 = $r1, $r1
;;
//# POSTUSED($r0)
`)
	var labelled []*ir.BasicBlock
	for _, bb := range prog.Blocks {
		for _, l := range bb.Labels {
			if l == "exit" {
				labelled = append(labelled, bb)
			}
		}
	}
	require.Len(t, labelled, 1, "forward jump target is a single block")
	assert.False(t, labelled[0].Empty())
	assert.Len(t, labelled[0].Preds, 2, "reached by the branch and by fallthrough")
}

func TestBackwardJumpConnectsToExistingBlock(t *testing.T) {
	arch := newDummy(t)
	prog := parseSource(t, arch, `
//# PREDEFINED($r1)
loop:
add $r0 = $r1, $r1
;;
goto loop
;;
//# POSTUSED($r0)
`)
	loop := prog.BlockByLabel("loop")
	assert.Contains(t, loop.Succs, loop, "the backward jump closes the cycle")
}

func TestPredicateMnemonicLookup(t *testing.T) {
	arch := newDummy(t)
	prog := parseSource(t, arch, `
//# PREDEFINED($r1, $r2)
cmove.deqz $r1 ? $r0 = $r2
;;
//# POSTUSED($r0)
`)
	body := bodyBlocks(prog)
	require.Len(t, body, 1)
	insn := body[0].Bundles[0].Insns[0]
	assert.Equal(t, "cmove.deqz", insn.Opcode)
}

func TestObjdumpMode(t *testing.T) {
	arch, err := rv32.New(nil)
	require.NoError(t, err)
	prog := ir.NewProgram()
	p := parser.New(arch, prog)

	lines := []string{
		"counter.o:     file format elf32-littleriscv",
		"",
		"00000000 <entry>:",
		"   0:\t00a605b3          \tadd a1, a2, a0",
		"   4:\tfe0616e3          \tbnez a2, <entry>",
		"...",
	}
	for i, line := range lines {
		if strings.Contains(line, "file format") {
			continue
		}
		require.NoError(t, p.ParseObjdumpLine(lexer.LexLine(line), ir.DebugInfo{Line: i + 1}))
	}
	p.EndProgram()

	entry := prog.BlockByLabel("entry")
	require.Len(t, entry.Bundles, 2)
	assert.Equal(t, "add", entry.Bundles[0].Insns[0].Opcode)
	assert.Equal(t, "bnez", entry.Bundles[1].Insns[0].Opcode)
	assert.Contains(t, entry.Succs, entry)
}

func TestTraceModeBundlesByTimestamp(t *testing.T) {
	arch := newDummy(t)
	prog := ir.NewProgram()
	p := parser.New(arch, prog)

	lines := []string{
		"# trace start",
		"100 0x1000 add $r0 = $r1, $r2",
		"100 0x1004 sbf $r3 = $r1, $r2",
		"101 0x1008 add $r4 = $r0, $r3",
	}
	for i, line := range lines {
		require.NoError(t, p.ParseTraceLine(lexer.LexLine(line), ir.DebugInfo{Line: i + 1}))
	}
	p.EndProgram()

	var bundles []*ir.Bundle
	for _, bb := range bodyBlocks(prog) {
		bundles = append(bundles, bb.Bundles...)
	}
	require.Len(t, bundles, 2, "a timestamp change starts a new bundle")
	assert.Equal(t, 2, bundles[0].Len())
	assert.Equal(t, 1, bundles[1].Len())
}

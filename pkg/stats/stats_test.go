package stats_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asmkit/asmalloc/pkg/archs/dummy"
	"github.com/asmkit/asmalloc/pkg/ir"
	"github.com/asmkit/asmalloc/pkg/lexer"
	"github.com/asmkit/asmalloc/pkg/parser"
	"github.com/asmkit/asmalloc/pkg/stats"
)

func parseProgram(t *testing.T, arch *ir.Architecture, source string) *ir.Program {
	t.Helper()
	prog := ir.NewProgram()
	p := parser.New(arch, prog)
	for lineNo, line := range strings.Split(source, "\n") {
		require.NoError(t, p.ParseAsmLine(lexer.LexLine(line), ir.DebugInfo{Line: lineNo + 1}))
	}
	p.EndProgram()
	return prog
}

// The immediate alternative of a disjunctive pattern is counted under its
// own key.
func TestImmediateVariantDisambiguation(t *testing.T) {
	arch, err := dummy.New(nil)
	require.NoError(t, err)
	prog := parseProgram(t, arch, `
addd R(y) = R(x), 17
;;
addd D(lo, hi) = $r1, $r2
;;
`)

	s := stats.New(arch, "test.S")
	s.Analyze(prog, false)

	assert.Equal(t, 1, s.Count("addd-imm"))
	assert.Equal(t, 1, s.Count("addd"))
}

func TestVerbosePatternKeepsLiteral(t *testing.T) {
	arch, err := dummy.New(nil)
	require.NoError(t, err)
	prog := parseProgram(t, arch, `
addd R(y) = R(x), 17
;;
`)

	s := stats.New(arch, "test.S")
	s.Analyze(prog, true)
	assert.Equal(t, 1, s.Count("addd-imm 11"), "verbose keys carry the hex literal")
}

func TestDumpFormats(t *testing.T) {
	arch, err := dummy.New(nil)
	require.NoError(t, err)
	prog := parseProgram(t, arch, `
add $r0 = $r1, $r2
add $r3 = $r1, $r2
;;
goto end
;;
end:
`)

	s := stats.New(arch, "test.S")
	s.Analyze(prog, false)

	var plain strings.Builder
	require.NoError(t, s.Dump(&plain, false, false))
	assert.Contains(t, plain.String(), "# Program statistics")
	assert.Contains(t, plain.String(), "add")

	var csv strings.Builder
	require.NoError(t, s.Dump(&csv, false, true))
	assert.Contains(t, csv.String(), "add, 2")
	assert.Contains(t, csv.String(), "goto, 1")
}

func TestExhaustiveDumpListsUnusedOpcodes(t *testing.T) {
	arch, err := dummy.New(nil)
	require.NoError(t, err)
	prog := parseProgram(t, arch, `
add $r0 = $r1, $r2
;;
`)

	s := stats.New(arch, "test.S")
	s.Analyze(prog, false)

	var out strings.Builder
	require.NoError(t, s.Dump(&out, true, true))
	assert.Contains(t, out.String(), "maddw, 0", "unused mnemonics appear with count zero")
}

func TestFuseAcrossPrograms(t *testing.T) {
	arch, err := dummy.New(nil)
	require.NoError(t, err)

	global := make(map[string]map[string]int)
	for _, name := range []string{"a.S", "b.S"} {
		prog := parseProgram(t, arch, `
add $r0 = $r1, $r2
;;
`)
		s := stats.New(arch, name)
		s.Analyze(prog, false)
		s.FuseIn(global, false)
	}

	require.Contains(t, global, "add")
	assert.Equal(t, 1, global["add"]["a.S"])
	assert.Equal(t, 1, global["add"]["b.S"])

	var out strings.Builder
	require.NoError(t, stats.DumpFused(&out, global, []string{"a.S", "b.S"}, true))
	assert.Contains(t, out.String(), "opcode, a.S, b.S")
	assert.Contains(t, out.String(), "add, 1, 1")
}

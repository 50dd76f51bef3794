package rv32

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asmkit/asmalloc/pkg/ir"
	"github.com/asmkit/asmalloc/pkg/lexer"
)

func TestAliasResolution(t *testing.T) {
	tests := []struct {
		spec      string
		index     int
		canonical int
	}{
		{"zero", -1, 0},
		{"ra", -1, 1},
		{"sp", -1, 2},
		{"gp", -1, 3},
		{"tp", -1, 4},
		{"fp", -1, 8},
		{"t", 0, 5},
		{"t", 2, 7},
		{"t", 3, 28},
		{"t", 6, 31},
		{"s", 0, 8},
		{"s", 1, 9},
		{"s", 2, 18},
		{"s", 11, 27},
		{"a", 0, 10},
		{"a", 7, 17},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s%d", tt.spec, tt.index), func(t *testing.T) {
			isAlias, canonical, err := resolveInt(tt.spec, tt.index)
			require.NoError(t, err)
			assert.True(t, isAlias)
			assert.Equal(t, tt.canonical, canonical)
		})
	}

	isAlias, canonical, err := resolveInt("x", 13)
	require.NoError(t, err)
	assert.False(t, isAlias)
	assert.Equal(t, 13, canonical)
}

func TestFpAliasResolution(t *testing.T) {
	tests := []struct {
		spec      string
		index     int
		canonical int
	}{
		{"ft", 0, 0},
		{"ft", 7, 7},
		{"ft", 8, 28},
		{"fs", 0, 8},
		{"fs", 1, 9},
		{"fs", 2, 18},
		{"fa", 0, 10},
		{"fa", 7, 17},
	}
	for _, tt := range tests {
		isAlias, canonical, err := resolveFp(tt.spec, tt.index)
		require.NoError(t, err)
		assert.True(t, isAlias, "%s%d", tt.spec, tt.index)
		assert.Equal(t, tt.canonical, canonical, "%s%d", tt.spec, tt.index)
	}
}

func matchLine(t *testing.T, arch *ir.Architecture, line string) *ir.Instruction {
	t.Helper()
	tokens := lexer.LexLine(line)
	pat, ok := arch.Pattern(tokens[0].Value)
	require.True(t, ok)
	insn, rest, err := pat.Match(arch, tokens)
	require.NoError(t, err)
	assert.Empty(t, rest)
	return insn
}

func TestParseAliasedOperands(t *testing.T) {
	arch, err := New(nil)
	require.NoError(t, err)

	insn := matchLine(t, arch, "add a2, a0, a1")
	dst, ok := insn.Defs[0].(*ir.PhysicalRegisterAlias)
	require.True(t, ok)
	assert.Equal(t, "a2", dst.String(), "aliases keep their spelling")
	assert.Equal(t, 12, dst.Base().(*ir.PhysicalRegister).Index())

	canonical := matchLine(t, arch, "add x12, x10, x11")
	assert.Same(t, dst.Base(), canonical.Defs[0], "alias and canonical spelling share one register")
}

func TestParseLoadStore(t *testing.T) {
	arch, err := New(nil)
	require.NoError(t, err)

	load := matchLine(t, arch, "lw a0, 8(sp)")
	require.Len(t, load.Uses, 2)
	assert.Equal(t, 2, load.Uses[0].(ir.Register).Base().(*ir.PhysicalRegister).Index())
	assert.Equal(t, int64(8), load.Uses[1].(*ir.ImmediateValue).Value)

	store := matchLine(t, arch, "sw a0, -4(s0)")
	require.Len(t, store.Uses, 3)
	assert.Empty(t, store.Defs, "a store writes memory, not registers")
	assert.Equal(t, int64(-4), store.Uses[2].(*ir.ImmediateValue).Value)
}

func TestZeroRegisterIsConst(t *testing.T) {
	arch, err := New(nil)
	require.NoError(t, err)
	reg, err := arch.PhysReg(IntReg, "zero", -1)
	require.NoError(t, err)
	base := reg.Base().(*ir.PhysicalRegister)
	assert.Equal(t, 0, base.Index())
	assert.True(t, base.Const())
	assert.False(t, arch.File(IntReg).Allocatable(0), "the zero register is never handed out")
}

func TestFloatPredicateOpcode(t *testing.T) {
	arch, err := New(nil)
	require.NoError(t, err)
	insn := matchLine(t, arch, "fadd.s f1, f2, f3")
	assert.Equal(t, "fadd.s", insn.Opcode)
	assert.Equal(t, FpReg, insn.Defs[0].(ir.Register).Class())
}

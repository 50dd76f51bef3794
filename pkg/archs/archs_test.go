package archs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asmkit/asmalloc/pkg/archs/dummy"
	"github.com/asmkit/asmalloc/pkg/archs/rv32"
)

func TestNewDefault(t *testing.T) {
	arch, err := New("dummy")
	require.NoError(t, err)
	assert.Equal(t, "dummy", arch.Name())
	assert.True(t, arch.HasBundles())
	assert.Equal(t, 16, arch.File(dummy.Std).NumPhysRegs())
	assert.Equal(t, 16, arch.File(dummy.Acc).NumPhysRegs())
}

func TestNewWithParams(t *testing.T) {
	arch, err := New("dummy:std=4")
	require.NoError(t, err)
	assert.Equal(t, 4, arch.File(dummy.Std).NumPhysRegs())
	assert.Equal(t, 16, arch.File(dummy.Acc).NumPhysRegs())

	arch, err = New("rv32:int=16,fp=8")
	require.NoError(t, err)
	assert.False(t, arch.HasBundles())
	assert.Equal(t, 16, arch.File(rv32.IntReg).NumPhysRegs())
	assert.Equal(t, 8, arch.File(rv32.FpReg).NumPhysRegs())
}

func TestNewErrors(t *testing.T) {
	_, err := New("m88k")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown architecture")

	_, err = New("dummy:wat=3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown architecture parameter")

	_, err = New("dummy:std")
	require.Error(t, err, "a parameter needs a value")
}

func TestNames(t *testing.T) {
	assert.Equal(t, []string{"dummy", "rv32"}, Names())
}

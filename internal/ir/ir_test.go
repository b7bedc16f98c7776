package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleISA = `
@ins normal loadAI r|u c r|d
@ins normal add r|u r|u r|d
@ins normal mult r|u r|u r|d
@ins normal store r|u r|d
@ins branch jump b
@ins ret ret
`

const sampleBlock = `
f:
.fun f, %r0
entry:
loadAI %r0, 0 => %r1
add    %r1, %r1 => %r2
loadAI %r0, 8 => %r3
mult   %r2, %r3 => %r4
loadAI %r0, 16 => %r5
mult   %r4, %r5 => %r6
store  %r6 => %r7
ret %r7
`

func mustLoadISA(t *testing.T) *ISAContext {
	t.Helper()
	isa := NewISAContext()
	isa.Opcodes["loadAI"] = OpSpec{Kind: KindNormal, Args: []ArgKind{ArgRegUse, ArgConst, ArgRegDef}}
	isa.Opcodes["add"] = OpSpec{Kind: KindNormal, Args: []ArgKind{ArgRegUse, ArgRegUse, ArgRegDef}}
	isa.Opcodes["mult"] = OpSpec{Kind: KindNormal, Args: []ArgKind{ArgRegUse, ArgRegUse, ArgRegDef}}
	isa.Opcodes["store"] = OpSpec{Kind: KindNormal, Args: []ArgKind{ArgRegUse, ArgRegDef}}
	isa.Opcodes["jump"] = OpSpec{Kind: KindBranch, Args: []ArgKind{ArgBlockLabel}}
	isa.Opcodes["ret"] = OpSpec{Kind: KindReturn}
	return isa
}

func TestParseBasicModule(t *testing.T) {
	mod, err := Parse(sampleBlock, "sample.ir")
	require.Nil(t, err)
	require.Len(t, mod.Functions, 1)

	fn := mod.Functions[0]
	assert.Equal(t, "f", fn.Name)
	assert.Equal(t, []string{"r0"}, fn.Args)
	require.Len(t, fn.Blocks, 1)

	entry := fn.Blocks[0]
	assert.Equal(t, "entry", entry.Name)
	require.Len(t, entry.Instructions, 8)
	assert.Equal(t, "loadAI", entry.Instructions[0].Op)
	assert.Equal(t, []string{"%r0", "0", "%r1"}, entry.Instructions[0].Args)
	assert.Equal(t, "ret", entry.Instructions[7].Op)
}

func TestPrintRoundTrip(t *testing.T) {
	mod, err := Parse(sampleBlock, "sample.ir")
	require.Nil(t, err)

	printed := Print(mod)
	reparsed, err2 := Parse(printed, "sample.ir")
	require.Nil(t, err2)

	require.Len(t, reparsed.Functions, 1)
	assert.Equal(t, mod.Functions[0].Name, reparsed.Functions[0].Name)
	assert.Equal(t, len(mod.Functions[0].Blocks[0].Instructions), len(reparsed.Functions[0].Blocks[0].Instructions))
	for i, in := range mod.Functions[0].Blocks[0].Instructions {
		assert.Equal(t, in.String(), reparsed.Functions[0].Blocks[0].Instructions[i].String())
	}
}

func TestValidateCatchesEmptyBlockAndBadTerminator(t *testing.T) {
	isa := mustLoadISA(t)

	src := `
f:
.fun f
b0:
add %a, %a => %x
b1:
`
	mod, perr := Parse(src, "bad.ir")
	require.Nil(t, perr)
	mod.ISA = isa

	errs := Validate(mod, "bad.ir")
	require.NotEmpty(t, errs)

	var sawMisplaced, sawEmpty bool
	for _, e := range errs {
		if e.Code == "T0002" {
			sawMisplaced = true
		}
		if e.Code == "T0001" {
			sawEmpty = true
		}
	}
	assert.True(t, sawMisplaced, "expected a misplaced-terminator error")
	assert.True(t, sawEmpty, "expected an empty-block error")
}

func TestValidateUnknownBranchTarget(t *testing.T) {
	isa := mustLoadISA(t)
	src := `
f:
.fun f
b0:
jump @nowhere
`
	mod, perr := Parse(src, "bad2.ir")
	require.Nil(t, perr)
	mod.ISA = isa

	errs := Validate(mod, "bad2.ir")
	require.NotEmpty(t, errs)
	assert.Equal(t, "T0003", errs[0].Code)
}

func TestValidateUnknownOpcode(t *testing.T) {
	isa := mustLoadISA(t)
	src := `
f:
.fun f
b0:
frobnicate %a => %b
ret %b
`
	mod, perr := Parse(src, "bad3.ir")
	require.Nil(t, perr)
	mod.ISA = isa

	errs := Validate(mod, "bad3.ir")
	require.NotEmpty(t, errs)
	assert.Equal(t, "T0100", errs[0].Code)
}

func TestFunctionIsSSA(t *testing.T) {
	isa := mustLoadISA(t)
	mod, err := Parse(sampleBlock, "sample.ir")
	require.Nil(t, err)
	mod.ISA = isa
	assert.True(t, mod.Functions[0].IsSSA())
}

func TestAnalysisCacheSlots(t *testing.T) {
	fn := &Function{Name: "f"}
	_, ok := fn.CacheGet(AnalysisCFG)
	assert.False(t, ok)

	fn.CacheSet(AnalysisCFG, "sentinel")
	v, ok := fn.CacheGet(AnalysisCFG)
	require.True(t, ok)
	assert.Equal(t, "sentinel", v)

	fn.Invalidate()
	_, ok = fn.CacheGet(AnalysisCFG)
	assert.False(t, ok)
}

package analyses

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tessera/internal/config"
	"tessera/internal/ir"
)

const sampleISA = `
@ins normal add r|u r|u r|d
@ins normal loadAI r|u c r|d
@ins branch br r|u b b
@ins branch jump b
@ins ret ret
`

const loopProgram = `
f:
.fun f, %n
entry:
jump @loop

loop:
phi @entry, %n, @loop, %i2 => %i
add %i, %i => %i2
loadAI %i, 0 => %v
br %i2, @loop, @exit

exit:
ret %i2
`

func mustLoad(t *testing.T) (*ir.Module, *ir.ISAContext) {
	t.Helper()
	isa, err := config.LoadISA(sampleISA)
	require.NoError(t, err)
	mod, perr := ir.Parse(loopProgram, "loop.ir")
	require.Nil(t, perr)
	mod.ISA = isa
	return mod, isa
}

func TestCFGSuccessorsAndBackEdges(t *testing.T) {
	mod, isa := mustLoad(t)
	fn := mod.Functions[0]
	cfg := BuildCFG(fn, isa)

	assert.Equal(t, []string{"loop"}, cfg.Successors("entry"))
	assert.ElementsMatch(t, []string{"loop", "exit"}, cfg.Successors("loop"))
	assert.Empty(t, cfg.Successors("exit"))

	edges := cfg.BackEdges()
	require.Len(t, edges, 1)
	assert.Equal(t, [2]string{"loop", "loop"}, edges[0])
}

func TestReversePostorderVisitsEntryFirst(t *testing.T) {
	mod, isa := mustLoad(t)
	cfg := BuildCFG(mod.Functions[0], isa)
	rpo := cfg.ReversePostorder()
	require.NotEmpty(t, rpo)
	assert.Equal(t, "entry", rpo[0])
}

func TestBlockFreqWeightsLoopHeader(t *testing.T) {
	mod, isa := mustLoad(t)
	freq := BuildBlockFreq(mod.Functions[0], isa)
	// entry -(1 succ)-> loop -(2 succs, loop is a back edge)-> exit: loop's
	// frequency gets the loopHeaderWeight multiplier, and exit's frequency
	// is loop's, halved by the br's branch-probability (1/2 out-degree).
	assert.Equal(t, 1.0, freq.Freq("entry"))
	assert.Equal(t, float64(loopHeaderWeight), freq.Freq("loop"))
	assert.Equal(t, float64(loopHeaderWeight)/2, freq.Freq("exit"))
}

func TestDominance(t *testing.T) {
	mod, isa := mustLoad(t)
	dom := BuildDominance(mod.Functions[0], isa)

	assert.Equal(t, "", dom.IDom("entry"))
	assert.Equal(t, "entry", dom.IDom("loop"))
	assert.Equal(t, "loop", dom.IDom("exit"))
	assert.True(t, dom.Dominates("entry", "exit"))
	assert.False(t, dom.Dominates("exit", "loop"))
}

func TestDomTreePreorder(t *testing.T) {
	mod, isa := mustLoad(t)
	tree := BuildDomTree(mod.Functions[0], isa)
	assert.Equal(t, "entry", tree.Root())
	assert.ElementsMatch(t, []string{"loop"}, tree.Children("entry"))
	assert.Equal(t, []string{"entry", "loop", "exit"}, tree.Preorder())
}

func TestDominanceFrontier(t *testing.T) {
	mod, isa := mustLoad(t)
	df := BuildDomFrontier(mod.Functions[0], isa)
	assert.True(t, df["loop"]["loop"], "loop's own back edge puts loop in its own frontier")
}

func TestEBBPartition(t *testing.T) {
	mod, isa := mustLoad(t)
	e := BuildEBB(mod.Functions[0], isa)

	assert.ElementsMatch(t, []string{"entry", "loop"}, e.Roots())
	assert.Equal(t, []string{"entry"}, e.Members("entry"))
	assert.ElementsMatch(t, []string{"loop", "exit"}, e.Members("loop"))
	assert.Equal(t, "loop", e.RootOf("exit"))
}

func TestEBBPathsTerminateAndSumToOne(t *testing.T) {
	mod, isa := mustLoad(t)
	fn := mod.Functions[0]
	cfg := BuildCFG(fn, isa)
	e := BuildEBB(fn, isa)

	paths := e.Paths("loop", cfg)
	require.NotEmpty(t, paths)
	var total float64
	for _, p := range paths {
		total += p.Probability
		assert.Equal(t, "loop", p.Blocks[0])
	}
	assert.InDelta(t, 1.0, total, 1e-9)
}

func TestLiveOutAcrossLoop(t *testing.T) {
	mod, isa := mustLoad(t)
	out := BuildLiveOut(mod.Functions[0], isa)
	assert.True(t, out["entry"]["n"])
	assert.True(t, out["loop"]["i2"], "i2 feeds both the loop phi and the exit return")
}

func TestLiveNowShrinksAfterLastUse(t *testing.T) {
	mod, isa := mustLoad(t)
	fn := mod.Functions[0]
	now := BuildLiveNow(fn, isa)
	loopBlock := fn.BlockByName("loop")
	require.NotNil(t, loopBlock)
	after := now["loop"]
	require.Len(t, after, len(loopBlock.Instructions))
	assert.False(t, after[len(after)-1]["v"], "%v is dead after the branch, it has no later use")
}

func TestInterferenceGraph(t *testing.T) {
	mod, isa := mustLoad(t)
	g := BuildInterference(mod.Functions[0], isa)
	assert.True(t, g.Interferes("i", "i2") || g.Interferes("i2", "i"))
}

func TestSpillCostWeightsByLoopFrequency(t *testing.T) {
	mod, isa := mustLoad(t)
	cost := BuildSpillCost(mod.Functions[0], isa)
	assert.Greater(t, cost.Cost("i"), cost.Cost("n"), "i is used inside the hot loop body, n only once at entry")
	assert.False(t, cost.Unspillable("i"))
}

const unspillableProgram = `
g:
.fun g, %a, %b
entry:
add %a, %a => %t1
add %b, %b => %t2
add %t2, %t2 => %t2b
add %t1, %t1 => %t3
ret %t3
`

func TestSpillCostUnspillableWhenNoRangeEndsInside(t *testing.T) {
	isa, err := config.LoadISA(sampleISA)
	require.NoError(t, err)
	mod, perr := ir.Parse(unspillableProgram, "unspillable.ir")
	require.Nil(t, perr)
	mod.ISA = isa

	cost := BuildSpillCost(mod.Functions[0], isa)
	// t1 spans indices 0 (def) to 3 (its only use); both t2's end (index 2)
	// and b's end (index 1) fall strictly inside that span, so something
	// else is fighting t1 for a register during its life: t1 may spill.
	assert.False(t, cost.Unspillable("t1"))
	// t2's own life (def at index 1, only use at index 2) is one
	// instruction wide: no other range's end can fall strictly inside an
	// adjacent pair of indices, so spilling it would never free up
	// anything else's range: it is unspillable.
	assert.True(t, cost.Unspillable("t2"))
}

func TestValidatePhisAcceptsWellFormedLoop(t *testing.T) {
	mod, _ := mustLoad(t)
	errs := ValidatePhis(mod, "loop.ir")
	assert.Empty(t, errs)
}

func TestValidatePhisCatchesArityMismatch(t *testing.T) {
	src := `
f:
.fun f, %n
entry:
jump @loop

loop:
phi @entry, %n => %i
br %i, @loop, @exit

exit:
ret %i
`
	mod, perr := ir.Parse(src, "bad.ir")
	require.Nil(t, perr)
	isa, err := config.LoadISA(sampleISA)
	require.NoError(t, err)
	mod.ISA = isa

	errs := ValidatePhis(mod, "bad.ir")
	require.NotEmpty(t, errs)
	assert.Equal(t, "T0005", errs[0].Code)
}

func TestValidateReachingDefsCatchesUndefinedName(t *testing.T) {
	src := `
f:
.fun f
entry:
add %ghost, %ghost => %x
ret %x
`
	mod, perr := ir.Parse(src, "bad2.ir")
	require.Nil(t, perr)
	isa, err := config.LoadISA(sampleISA)
	require.NoError(t, err)
	mod.ISA = isa

	errs := ValidateReachingDefs(mod, "bad2.ir")
	require.NotEmpty(t, errs)
	assert.Equal(t, "T0004", errs[0].Code)
}

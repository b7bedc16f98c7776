package regalloc

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tessera/internal/analyses"
	"tessera/internal/config"
	"tessera/internal/ir"
)

const allocISA = `
@ins normal add r|u r|u r|d
@ins normal mov r|d r|u
@ins normal loadAI r|u c r|d
@ins normal storeAI r|u r|u c
@ins branch br r|u b b
@ins branch jump b
@ins ret ret r|u
`

func loadAllocISA(t *testing.T) *ir.ISAContext {
	t.Helper()
	isa, err := config.LoadISA(allocISA)
	require.NoError(t, err)
	config.MarkReserved(isa, "sp")
	return isa
}

func testConfig() Config {
	return Config{SP: "sp", Mov: "mov", Load: "loadAI", Store: "storeAI", SlotSize: 4}
}

func parseFn(t *testing.T, isa *ir.ISAContext, src string) *ir.Function {
	t.Helper()
	mod, perr := ir.Parse(src, "t.ir")
	require.Nil(t, perr)
	mod.ISA = isa
	return mod.Functions[0]
}

// TestBuildLiveRangesUnionsPhiOperands exercises spec.md §4.3's live-range
// construction: a phi's destination and every operand land in one class.
func TestBuildLiveRangesUnionsPhiOperands(t *testing.T) {
	isa := loadAllocISA(t)
	src := `
f:
.fun f, %n
entry:
jump @loop

loop:
phi @entry, %n, @loop, %i2 => %i
add %i, %i => %i2
br %i2, @loop, @exit

exit:
ret %i2
`
	fn := parseFn(t, isa, src)
	lr := BuildLiveRanges(fn, isa)

	nID, ok := lr.ID("n")
	require.True(t, ok)
	iID, ok := lr.ID("i")
	require.True(t, ok)
	i2ID, ok := lr.ID("i2")
	require.True(t, ok)

	assert.Equal(t, nID, iID, "phi dest and entry operand must share a live range")
	assert.Equal(t, iID, i2ID, "phi dest and back-edge operand must share a live range")

	lr.Rewrite(fn, isa)
	for _, b := range fn.Blocks {
		for _, in := range b.Instructions {
			assert.NotEqual(t, "phi", in.Op, "phis must be deleted after live-range construction")
		}
	}
}

// TestS5Coalescing reproduces spec.md §8 scenario S5: a non-interfering
// mov is deleted, every reference renamed, and the live-range count drops
// by one.
func TestS5Coalescing(t *testing.T) {
	isa := loadAllocISA(t)
	cfg := testConfig()
	src := `
f:
.fun f, %a
entry:
add %a, %a => %b
mov %c, %b
add %c, %a => %d
ret %d
`
	fn := parseFn(t, isa, src)
	lr := BuildLiveRanges(fn, isa)
	lr.Rewrite(fn, isa)
	before := lr.Count

	after := Coalesce(fn, isa, cfg, before)
	assert.Equal(t, before-1, after, "one contraction must drop the live-range count by exactly one")

	for _, b := range fn.Blocks {
		for _, in := range b.Instructions {
			assert.NotEqual(t, "mov", in.Op, "the coalesced mov must be deleted")
		}
	}

	ig := analyses.BuildInterference(fn, isa)
	regs := ig.Registers()
	assert.Len(t, regs, after, "interference graph node count must match the post-coalesce range count")
}

// pathGraphFn builds a real function whose interference graph contains a
// v0-v1 edge and a v1-v2 edge but no v0-v2 edge: v0 stays live across v1's
// definition (used again by v2's defining instruction), and v1 stays live
// across v2's definition (used again afterward), but v0 is dead by the
// time v2 is defined.
func pathGraphFn(t *testing.T, isa *ir.ISAContext) *ir.Function {
	t.Helper()
	src := `
f:
.fun f, %p, %k
entry:
add %p, %k => %v0
add %v0, %k => %v1
add %v0, %k => %v2
add %v1, %v2 => %v3
ret %v3
`
	return parseFn(t, isa, src)
}

// TestColorTopDownNoInterferenceNoSpill mirrors spec.md §8 scenario S3:
// given enough colors, coloring succeeds and no interfering pair of
// registers shares a color.
func TestColorTopDownNoInterferenceNoSpill(t *testing.T) {
	isa := loadAllocISA(t)
	fn := pathGraphFn(t, isa)
	ig := analyses.BuildInterference(fn, isa)
	sc := analyses.BuildSpillCost(fn, isa)

	require.True(t, ig.Interferes("v0", "v1"), "v0 must still be live when v1 is defined")
	require.True(t, ig.Interferes("v1", "v2"), "v1 must still be live when v2 is defined")
	require.False(t, ig.Interferes("v0", "v2"), "v0 must be dead by the time v2 is defined")

	k := len(ig.Registers())
	res := ColorTopDown(ig, sc, k)
	require.True(t, res.OK, "k equal to the register count must always be colorable")
	assertProperColoring(t, ig, res.Assignment, k)
}

// TestColorTopDownForcesSpillAtK1 is spec.md §8's boundary behavior: "k=1
// forces spilling of any live range with degree >= 1." v0 and v1 interfere,
// so no 1-coloring exists.
func TestColorTopDownForcesSpillAtK1(t *testing.T) {
	isa := loadAllocISA(t)
	fn := pathGraphFn(t, isa)
	ig := analyses.BuildInterference(fn, isa)
	sc := analyses.BuildSpillCost(fn, isa)

	res := ColorTopDown(ig, sc, 1)
	assert.False(t, res.OK)
	assert.NotEmpty(t, res.Spill)
}

// assertProperColoring checks the two properties any successful ColorResult
// must satisfy regardless of assignment order: every color is in range, and
// no two interfering registers share one.
func assertProperColoring(t *testing.T, ig *analyses.Interference, assignment map[string]int, k int) {
	t.Helper()
	for r, c := range assignment {
		assert.GreaterOrEqual(t, c, 0, "register %s", r)
		assert.Less(t, c, k, "register %s", r)
		for _, n := range ig.Neighbors(r) {
			if nc, ok := assignment[n]; ok {
				assert.NotEqual(t, c, nc, "%s and neighbor %s must not share a color", r, n)
			}
		}
	}
}

// TestColorBottomUpEmptyGraph is spec.md §8's boundary behavior: "an empty
// interference graph colors to the empty assignment regardless of k."
func TestColorBottomUpEmptyGraph(t *testing.T) {
	ig := analyses.BuildInterference(mustTrivialFn(t), loadAllocISA(t))
	sc := analyses.SpillCost{}
	res := ColorBottomUp(ig, sc, 4)
	require.True(t, res.OK)
	assert.Empty(t, res.Assignment)
}

// TestAllocatorTopDownSpillsAndRewrites drives the full Allocator: a
// function whose live ranges cannot all fit in k=1 hardware register must
// still terminate with no %lrN tokens left and every %hrC using C==0.
func TestAllocatorTopDownSpillsAndRewrites(t *testing.T) {
	isa := loadAllocISA(t)
	cfg := testConfig()
	src := `
f:
.fun f, %a, %b, %c
entry:
add %a, %b => %x
add %x, %c => %y
add %y, %a => %z
ret %z
`
	fn := parseFn(t, isa, src)
	require.True(t, fn.IsSSA())

	alloc := NewAllocator(isa, cfg, 1, TopDown, nil)
	err := alloc.Run(fn)
	require.Nil(t, err)

	for _, b := range fn.Blocks {
		for _, in := range b.Instructions {
			for _, tok := range in.Args {
				bare := strings.TrimPrefix(strings.TrimPrefix(tok, "%"), "@")
				assert.False(t, strings.HasPrefix(bare, "lr"), "no lrN token may remain: %s", in.String())
				if strings.HasPrefix(bare, "hr") {
					assert.Equal(t, "hr0", bare, "k=1 allows only hr0")
				}
			}
		}
	}
}

// TestAllocatorBottomUpCoalescesAndColors exercises the Bottom-Up path end
// to end, including its coalescing pre-pass.
func TestAllocatorBottomUpCoalescesAndColors(t *testing.T) {
	isa := loadAllocISA(t)
	cfg := testConfig()
	src := `
f:
.fun f, %a
entry:
add %a, %a => %b
mov %c, %b
add %c, %a => %d
ret %d
`
	fn := parseFn(t, isa, src)
	alloc := NewAllocator(isa, cfg, 2, BottomUp, nil)
	err := alloc.Run(fn)
	require.Nil(t, err)

	for _, b := range fn.Blocks {
		for _, in := range b.Instructions {
			assert.NotEqual(t, "mov", in.Op)
			for _, tok := range in.Args {
				bare := strings.TrimPrefix(tok, "%")
				assert.False(t, strings.HasPrefix(bare, "lr"))
			}
		}
	}
}

// TestLocalAllocatorSingleBlockFarthestNextUse exercises the §4.3 "simpler
// local variant": with only one hardware register and three values live
// at once, the allocator must spill, and the resulting block must
// reference only hr0 plus spill traffic through storeAI/loadAI.
func TestLocalAllocatorSingleBlockFarthestNextUse(t *testing.T) {
	isa := loadAllocISA(t)
	cfg := testConfig()
	src := `
f:
.fun f, %a, %b, %c
entry:
add %a, %b => %x
add %x, %c => %y
add %y, %a => %z
ret %z
`
	fn := parseFn(t, isa, src)
	la := NewLocalAllocator(isa, cfg, 1)
	err := la.Run(fn)
	require.Nil(t, err)

	var hasSpillTraffic bool
	for _, in := range fn.Blocks[0].Instructions {
		if in.Op == cfg.Store || in.Op == cfg.Load {
			hasSpillTraffic = true
		}
		for _, tok := range in.Args {
			bare := strings.TrimPrefix(tok, "%")
			if bare == "a" || bare == "b" || bare == "c" || bare == "x" || bare == "y" || bare == "z" {
				t.Fatalf("virtual register %q leaked into output: %s", bare, in.String())
			}
		}
	}
	assert.True(t, hasSpillTraffic, "k=1 with three live values must force at least one spill")
}

func mustTrivialFn(t *testing.T) *ir.Function {
	t.Helper()
	isa := loadAllocISA(t)
	src := "f:\n.fun f\nentry:\nret\n"
	return parseFn(t, isa, src)
}

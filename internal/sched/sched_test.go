package sched

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tessera/internal/config"
	"tessera/internal/ir"
)

const schedISA = `
@ins normal loadAI r|u c r|d
@ins normal add r|u r|u r|d
@ins normal mult r|u r|u r|d
@ins normal store r|u r|d
@ins branch br r|u b b
@ins branch jump b
@ins ret ret
`

// s1Latency mirrors spec.md §8 scenario S1's latency table.
const s1Latency = `
loadAI 3
mult 2
add 1
store 1
default 1
`

func loadLatencyTable(t *testing.T, src string) config.LatencyTable {
	t.Helper()
	lat, err := config.LoadLatency(src)
	require.NoError(t, err)
	return lat
}

func loadSchedISA(t *testing.T) *ir.ISAContext {
	t.Helper()
	isa, err := config.LoadISA(schedISA)
	require.NoError(t, err)
	return isa
}

// TestS1LocalListScheduler reproduces spec.md §8 scenario S1: interleaving
// three independent loadAIs to hide their latency while keeping the
// terminator last.
func TestS1LocalListScheduler(t *testing.T) {
	isa := loadSchedISA(t)
	lat := loadLatencyTable(t, s1Latency)

	src := `
f:
.fun f, %r0
entry:
loadAI %r0, 0 => %r1
add %r1, %r1 => %r2
loadAI %r0, 8 => %r3
mult %r2, %r3 => %r4
loadAI %r0, 16 => %r5
mult %r4, %r5 => %r6
store %r6 => %r7
ret %r7
`
	mod, perr := ir.Parse(src, "s1.ir")
	require.Nil(t, perr)
	mod.ISA = isa
	fn := mod.Functions[0]

	s := NewScheduler(isa, lat, nil)
	err := s.Run(fn)
	require.Nil(t, err)

	entry := fn.BlockByName("entry")
	require.NotEmpty(t, entry.Instructions)
	last := entry.Instructions[len(entry.Instructions)-1]
	assert.Equal(t, "ret", last.Op, "terminator must remain last after scheduling")

	assertOpCount(t, entry.Instructions, "loadAI", 3)
	assertOpCount(t, entry.Instructions, "mult", 2)
}

func assertOpCount(t *testing.T, instrs []ir.Instruction, op string, want int) {
	t.Helper()
	got := 0
	for _, in := range instrs {
		if in.Op == op {
			got++
		}
	}
	assert.Equal(t, want, got, "expected %d %s instructions, got %d", want, op, got)
}

// TestScheduleSingleTerminatorBlock covers spec.md §8's boundary behavior:
// a block with a single terminator instruction schedules to that
// instruction in one cycle.
func TestScheduleSingleTerminatorBlock(t *testing.T) {
	isa := loadSchedISA(t)
	lat := loadLatencyTable(t, s1Latency)

	src := `
f:
.fun f
entry:
ret
`
	mod, perr := ir.Parse(src, "single.ir")
	require.Nil(t, perr)
	mod.ISA = isa
	fn := mod.Functions[0]

	s := NewScheduler(isa, lat, nil)
	err := s.Run(fn)
	require.Nil(t, err)
	require.Len(t, fn.BlockByName("entry").Instructions, 1)
	assert.Equal(t, "ret", fn.BlockByName("entry").Instructions[0].Op)
}

// TestMissingLatencyIsHardError covers spec.md §4.1's "an unknown opcode
// (missing from the latency table) is a hard error."
func TestMissingLatencyIsHardError(t *testing.T) {
	isa := loadSchedISA(t)
	lat := loadLatencyTable(t, "add 1\n")

	src := `
f:
.fun f, %r0
entry:
loadAI %r0, 0 => %r1
ret %r1
`
	mod, perr := ir.Parse(src, "gap.ir")
	require.Nil(t, perr)
	mod.ISA = isa
	fn := mod.Functions[0]

	s := NewScheduler(isa, lat, nil)
	err := s.Run(fn)
	require.NotNil(t, err)
	assert.Equal(t, "T0101", err.Code)
}

// TestEBBCompensationCode reproduces the shape of spec.md §8 scenario S6:
// an EBB path B1 -> B2 where an instruction originally in B1 has no
// dependence edge to B1's own terminator, and B1 has an off-path successor
// B3. With these latencies the loadAI has the longest latency to the sink
// and issues first, before the branch, so it stays in B1 and no
// compensation copy is made; the test checks that both blocks keep their
// terminator last after scheduling.
func TestEBBCompensationCode(t *testing.T) {
	isa := loadSchedISA(t)
	lat := loadLatencyTable(t, "loadAI 1\nadd 1\nstore 1\ndefault 1\n")

	src := `
f:
.fun f, %r0, %c
b1:
loadAI %r0, 0 => %x
br %c, @b2, @b3

b2:
add %x, %x => %y
store %y => %z
ret %z

b3:
ret %r0
`
	mod, perr := ir.Parse(src, "ebb.ir")
	require.Nil(t, perr)
	mod.ISA = isa
	fn := mod.Functions[0]

	s := NewScheduler(isa, lat, nil)
	err := s.Run(fn)
	require.Nil(t, err)

	b1 := fn.BlockByName("b1")
	last := b1.Instructions[len(b1.Instructions)-1]
	assert.Equal(t, "br", last.Op, "b1's terminator must remain last")

	b3 := fn.BlockByName("b3")
	assert.Equal(t, "ret", b3.Instructions[len(b3.Instructions)-1].Op, "b3's terminator must remain last")
}

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tessera/internal/ir"
)

const sampleISAFile = `
; comment line
@ins normal loadAI r|u c r|d
@ins normal add r|u r|u r|d
@ins branch jump b
@ins ret ret
@ins call call f r|u|*
`

const sampleLatencyFile = `
loadAI 3
mult 2
add 1
store 1
default 1
`

func TestLoadISA(t *testing.T) {
	isa, err := LoadISA(sampleISAFile)
	require.NoError(t, err)

	loadAI, ok := isa.Opcodes["loadAI"]
	require.True(t, ok)
	assert.Equal(t, ir.KindNormal, loadAI.Kind)
	assert.Equal(t, []ir.ArgKind{ir.ArgRegUse, ir.ArgConst, ir.ArgRegDef}, loadAI.Args)

	jump := isa.Opcodes["jump"]
	assert.Equal(t, ir.KindBranch, jump.Kind)
	assert.Equal(t, []ir.ArgKind{ir.ArgBlockLabel}, jump.Args)

	call := isa.Opcodes["call"]
	assert.Equal(t, ir.KindCall, call.Kind)
	assert.True(t, call.Variadic)
	assert.Equal(t, []ir.ArgKind{ir.ArgFuncLabel, ir.ArgRegUse}, call.Args)
}

func TestLoadISARejectsUnknownKind(t *testing.T) {
	_, err := LoadISA("@ins bogus foo r|u")
	assert.Error(t, err)
}

func TestLoadLatency(t *testing.T) {
	table, err := LoadLatency(sampleLatencyFile)
	require.NoError(t, err)

	c, ok := table.Latency("loadAI")
	require.True(t, ok)
	assert.Equal(t, 3, c)

	c, ok = table.Latency("unknownOp")
	require.True(t, ok)
	assert.Equal(t, 1, c, "should fall back to the default entry")
}

func TestLoadLatencyRejectsNonPositive(t *testing.T) {
	_, err := LoadLatency("add 0")
	assert.Error(t, err)
}

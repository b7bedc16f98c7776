package repl

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tessera/internal/config"
)

const replISA = `
@ins normal loadAI r|u c r|d
@ins normal add r|u r|u r|d
@ins normal mult r|u r|u r|d
@ins normal store r|u r|d
@ins ret ret
`

const replLatency = `
loadAI 3
mult 2
add 1
store 1
default 1
`

func loadReplConfig(t *testing.T) Config {
	t.Helper()
	isa, err := config.LoadISA(replISA)
	require.NoError(t, err)
	lat, err := config.LoadLatency(replLatency)
	require.NoError(t, err)
	return Config{ISA: isa, Latency: lat}
}

// TestStartSchedule feeds a function into the buffer line by line, then
// issues :schedule, and checks the scheduled IR comes back on stdout.
func TestStartSchedule(t *testing.T) {
	cfg := loadReplConfig(t)

	session := strings.Join([]string{
		"f:",
		".fun f, %r0",
		"entry:",
		"loadAI %r0, 0 => %r1",
		"add %r1, %r1 => %r2",
		"store %r2 => %r3",
		"ret %r3",
		":schedule",
		":quit",
	}, "\n") + "\n"

	var out bytes.Buffer
	Start(strings.NewReader(session), &out, cfg)

	got := out.String()
	assert.Contains(t, got, ".fun f")
	assert.Contains(t, got, "loadAI")
	assert.Contains(t, got, "store")
}

// TestStartResetClearsBuffer checks :reset discards buffered lines so a
// later :show prints nothing from the discarded function.
func TestStartResetClearsBuffer(t *testing.T) {
	cfg := loadReplConfig(t)

	session := strings.Join([]string{
		"f:",
		".fun f, %r0",
		":reset",
		":show",
		":quit",
	}, "\n") + "\n"

	var out bytes.Buffer
	Start(strings.NewReader(session), &out, cfg)

	assert.NotContains(t, out.String(), ".fun f")
}

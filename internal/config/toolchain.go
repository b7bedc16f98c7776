package config

import (
	"os"

	"tessera/internal/ir"
)

// Toolchain aggregates the metadata every tool needs, loaded once by the
// CLI and passed explicitly into each pass constructor — there is no
// package-level global configuration anywhere in tessera (see the "Global
// singletons" design note carried into SPEC_FULL.md's ambient stack
// section).
type Toolchain struct {
	ISA     *ir.ISAContext
	Latency LatencyTable
}

// LoadToolchain reads an ISA file and, if latencyPath is non-empty, a
// latency file, returning an assembled Toolchain.
func LoadToolchain(isaPath, latencyPath string) (*Toolchain, error) {
	isaSrc, err := os.ReadFile(isaPath)
	if err != nil {
		return nil, err
	}
	isa, err := LoadISA(string(isaSrc))
	if err != nil {
		return nil, err
	}

	tc := &Toolchain{ISA: isa}
	if latencyPath != "" {
		latSrc, err := os.ReadFile(latencyPath)
		if err != nil {
			return nil, err
		}
		lat, err := LoadLatency(string(latSrc))
		if err != nil {
			return nil, err
		}
		tc.Latency = lat
	}
	return tc, nil
}

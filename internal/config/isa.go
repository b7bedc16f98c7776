// Package config loads the three metadata file formats spec.md §6 defines
// (ISA description, latency table, rule file) plus a Toolchain value
// aggregating an ISA and a latency table, passed explicitly rather than
// kept as global state, matching the "no global state" ambient-stack
// requirement in SPEC_FULL.md.
package config

import (
	"fmt"
	"strconv"
	"strings"

	"tessera/internal/ir"
)

// LoadISA parses an ISA description file (spec.md §6):
//
//	@ins <kind> <opname> <argspec>*
//
// kind in {call,ret,branch,normal}; each argspec is a `|`-joined subset of
// {r,c,b,f,u,d,x,*} (register, constant, block label, function label, use,
// def, use-def, repeat-of-previous).
func LoadISA(source string) (*ir.ISAContext, error) {
	isa := ir.NewISAContext()
	for lineNo, raw := range strings.Split(source, "\n") {
		line := strings.TrimSpace(stripComment(raw))
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "@ins") {
			return nil, fmt.Errorf("isa line %d: expected @ins directive, got %q", lineNo+1, line)
		}
		fields := strings.Fields(line)
		if len(fields) < 3 {
			return nil, fmt.Errorf("isa line %d: @ins requires a kind and an opcode name", lineNo+1)
		}
		kind, err := parseKind(fields[1])
		if err != nil {
			return nil, fmt.Errorf("isa line %d: %w", lineNo+1, err)
		}
		opname := fields[2]
		spec := ir.OpSpec{Kind: kind}
		for _, tok := range fields[3:] {
			// `*` may stand alone or be one of the `|`-joined parts
			// (e.g. `r|u|*`); either way it marks the variadic tail.
			var kept []string
			for _, p := range strings.Split(tok, "|") {
				if p == "*" {
					spec.Variadic = true
					continue
				}
				kept = append(kept, p)
			}
			if len(kept) == 0 {
				continue
			}
			k, err := parseArgKind(strings.Join(kept, "|"))
			if err != nil {
				return nil, fmt.Errorf("isa line %d: %w", lineNo+1, err)
			}
			spec.Args = append(spec.Args, k)
		}
		isa.Opcodes[opname] = spec
	}
	return isa, nil
}

// MarkReserved records a register name as ISA-reserved (e.g. the stack
// pointer). Call after LoadISA with whatever reservation convention the
// architecture module supplies (spec.md leaves the source of this set
// unspecified beyond "carries a set of ISA-reserved register names").
func MarkReserved(isa *ir.ISAContext, names ...string) {
	for _, n := range names {
		isa.Reserved[n] = true
	}
}

func parseKind(tok string) (ir.InstrKind, error) {
	switch tok {
	case "normal":
		return ir.KindNormal, nil
	case "call":
		return ir.KindCall, nil
	case "ret":
		return ir.KindReturn, nil
	case "branch":
		return ir.KindBranch, nil
	default:
		return 0, fmt.Errorf("unknown instruction kind %q", tok)
	}
}

func parseArgKind(tok string) (ir.ArgKind, error) {
	parts := strings.Split(tok, "|")
	has := make(map[string]bool, len(parts))
	for _, p := range parts {
		has[p] = true
	}
	switch {
	case has["r"] && has["u"]:
		return ir.ArgRegUse, nil
	case has["r"] && has["d"]:
		return ir.ArgRegDef, nil
	case has["r"] && has["x"]:
		return ir.ArgUseDef, nil
	case has["c"]:
		return ir.ArgConst, nil
	case has["b"]:
		return ir.ArgBlockLabel, nil
	case has["f"]:
		return ir.ArgFuncLabel, nil
	default:
		return 0, fmt.Errorf("unrecognized argspec %q", tok)
	}
}

func stripComment(line string) string {
	if i := strings.IndexByte(line, ';'); i >= 0 {
		return line[:i]
	}
	return line
}

// LatencyTable maps opcode -> positive integer issue latency in cycles.
type LatencyTable map[string]int

// LoadLatency parses a latency file (spec.md §6): line-oriented
// `opcode cycles` pairs.
func LoadLatency(source string) (LatencyTable, error) {
	table := make(LatencyTable)
	for lineNo, raw := range strings.Split(source, "\n") {
		line := strings.TrimSpace(stripComment(raw))
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, fmt.Errorf("latency line %d: expected `opcode cycles`, got %q", lineNo+1, line)
		}
		cycles, err := strconv.Atoi(fields[1])
		if err != nil || cycles <= 0 {
			return nil, fmt.Errorf("latency line %d: cycles must be a positive integer, got %q", lineNo+1, fields[1])
		}
		table[fields[0]] = cycles
	}
	return table, nil
}

// Latency returns the latency of op, defaulting to the table's "default"
// entry if op has no specific entry (scenario S1 in spec.md §8 uses this
// convention), and ok=false if neither is present.
func (t LatencyTable) Latency(op string) (int, bool) {
	if c, ok := t[op]; ok {
		return c, true
	}
	if c, ok := t["default"]; ok {
		return c, true
	}
	return 0, false
}

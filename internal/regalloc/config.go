// Package regalloc implements spec.md §4.3's SSA graph-coloring register
// allocator: live-range construction by union-find over phi operands,
// Bottom-Up coalescing, Top-Down and Bottom-Up interference-graph coloring
// with spill-and-restart, and a simpler single-block local variant. It
// consumes internal/analyses' Interference and SpillCost (themselves built
// over internal/ir.Function) and never recomputes dataflow itself.
//
// Grounded on spec.md §4.3 and §9's live-range/coloring design notes; the
// teacher repo carries no register-allocation code of its own (see
// DESIGN.md), so this package's shape follows spec.md directly, in the
// same "small structs, explicit invalidation, no package-level state" idiom
// internal/sched and internal/select already establish for the other two
// cores.
package regalloc

import (
	"fmt"
	"strconv"

	"tessera/internal/ir"
)

// Config names the opcodes and conventions the allocator emits against, so
// the same package works across the toy ISAs this workbench's tools load
// at runtime (spec.md §6's ISA description file is architecture-supplied,
// not baked into the allocator).
//
//   - Mov is a register-to-register move: one ArgRegDef argument, one
//     ArgRegUse argument, in either order — Coalesce finds the def/use
//     positions from the ISA's own argspec rather than assuming an order.
//   - Load reloads a spilled value: `Load %sp, <offset> => %dst`.
//   - Store writes a spilled value back: `Store %src, %sp, <offset>`.
//
// These two shapes mirror the teacher ISA fixture's own `loadAI`/`store`
// pattern (base register, constant offset, register operand) used
// throughout internal/sched's tests, so a caller wiring a real ISA file
// only needs to point Config at whatever opcodes its file declares with
// that shape.
type Config struct {
	SP       string // ISA-reserved stack-pointer register name, e.g. "sp"
	Mov      string // register-to-register move opcode
	Load     string // spill-reload opcode: Load %sp, <off> => %dst
	Store    string // spill-store opcode: Store %src, %sp, <off>
	SlotSize int    // bytes per spill slot; spec.md's stated default is 4
}

// slotSize returns cfg.SlotSize, defaulting to spec.md's "4 bytes per slot
// here" when unset.
func (cfg Config) slotSize() int {
	if cfg.SlotSize <= 0 {
		return 4
	}
	return cfg.SlotSize
}

func lrName(id int) string { return fmt.Sprintf("lr%d", id) }
func hrName(id int) string { return fmt.Sprintf("hr%d", id) }

// makeLoad builds `Load %sp, <offset> => %dst`.
func (cfg Config) makeLoad(dst string, offset int) ir.Instruction {
	return ir.Instruction{
		Op:   cfg.Load,
		Args: []string{"%" + cfg.SP, strconv.Itoa(offset), "%" + dst},
	}
}

// makeStore builds `Store %src, %sp, <offset>`.
func (cfg Config) makeStore(src string, offset int) ir.Instruction {
	return ir.Instruction{
		Op:   cfg.Store,
		Args: []string{"%" + src, "%" + cfg.SP, strconv.Itoa(offset)},
	}
}

func stripSigil(tok string) string {
	if len(tok) > 0 && (tok[0] == '%' || tok[0] == '@') {
		return tok[1:]
	}
	return tok
}

func isRegKind(k ir.ArgKind) bool {
	return k == ir.ArgRegUse || k == ir.ArgRegDef || k == ir.ArgUseDef
}

// mapRegisters rewrites, in place, every register-bearing argument of fn
// (function arguments and every instruction's register-use/-def/use-def
// argument positions) by applying f to its bare name. A token for which f
// returns the same name is left untouched (and the instruction's Args
// slice is not reallocated), so repeated no-op passes stay cheap.
func mapRegisters(fn *ir.Function, isa *ir.ISAContext, f func(string) string) {
	for i, a := range fn.Args {
		fn.Args[i] = f(a)
	}
	for _, b := range fn.Blocks {
		for bi, in := range b.Instructions {
			kinds := ir.ArgKinds(isa, in)
			var newArgs []string
			for ai, k := range kinds {
				if ai >= len(in.Args) || !isRegKind(k) {
					continue
				}
				bare := stripSigil(in.Args[ai])
				mapped := f(bare)
				if mapped == bare {
					continue
				}
				if newArgs == nil {
					newArgs = append([]string(nil), in.Args...)
				}
				newArgs[ai] = "%" + mapped
			}
			if newArgs != nil {
				b.Instructions[bi] = ir.Instruction{Op: in.Op, Args: newArgs}
			}
		}
	}
}

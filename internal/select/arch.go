package selector

import (
	"fmt"
	"strconv"

	"tessera/internal/diag"
	"tessera/internal/ir"
)

// Arch is the architecture-specific module the selector delegates to for
// the pre-IR and post-ASM passes spec.md §4.2 requires: "the selector
// delegates to an architecture module a pre-IR pass and a post-ASM pass."
type Arch interface {
	PreIR(fn *ir.Function, isa *ir.ISAContext) *diag.CompilerError
	PostASM(fn *ir.Function, isa *ir.ISAContext) *diag.CompilerError
}

// NoopArch runs neither pass; useful for rule sets that model a target with
// no stack frame or jump-threading concerns of its own.
type NoopArch struct{}

func (NoopArch) PreIR(*ir.Function, *ir.ISAContext) *diag.CompilerError   { return nil }
func (NoopArch) PostASM(*ir.Function, *ir.ISAContext) *diag.CompilerError { return nil }

// StandardArch implements the two shipped architecture-module passes
// spec.md §4.2 names: (a) replacing alloca with sp-relative adds and
// prologue/epilogue stack adjustment, (b) removing unconditional jumps
// whose target is the immediately-following block. SPReg is the reserved
// stack-pointer register name; FrameSlot is the byte width of one local
// slot (4, matching the allocator's spill-slot width).
type StandardArch struct {
	SPReg     string
	FrameSlot int
}

// PreIR rewrites every `alloca <n> => %dst` instruction in fn's entry block
// into an sp-relative add, accumulating the function's total frame size,
// and inserts the stack adjustment around every return. alloca is assumed
// to appear only in the entry block, the conventional place a straight-line
// frontend emits them.
func (a StandardArch) PreIR(fn *ir.Function, isa *ir.ISAContext) *diag.CompilerError {
	entry := fn.Entry()
	if entry == nil {
		return nil
	}
	frame := 0
	var rewritten []ir.Instruction
	for _, in := range entry.Instructions {
		if in.Op != "alloca" {
			rewritten = append(rewritten, in)
			continue
		}
		if len(in.Args) < 2 {
			return diag.Invariant(fn.Name, entry.Name, "alloca requires a size argument and a destination")
		}
		size, err := strconv.Atoi(stripSigilASM(in.Args[0]))
		if err != nil {
			return diag.Invariant(fn.Name, entry.Name, fmt.Sprintf("alloca size %q is not an integer", in.Args[0]))
		}
		offset := frame
		frame += size
		rewritten = append(rewritten, ir.Instruction{
			Op:   "addI",
			Args: []string{"%" + a.SPReg, strconv.Itoa(offset), in.Args[len(in.Args)-1]},
		})
	}
	entry.Instructions = rewritten
	if frame == 0 {
		fn.Invalidate()
		return nil
	}

	// Adjust sp on entry and restore it before every return.
	entry.Instructions = append([]ir.Instruction{{
		Op:   "addI",
		Args: []string{"%" + a.SPReg, strconv.Itoa(-frame), "%" + a.SPReg},
	}}, entry.Instructions...)

	for _, b := range fn.Blocks {
		if len(b.Instructions) == 0 {
			continue
		}
		last := b.Instructions[len(b.Instructions)-1]
		if last.Op != "ret" {
			continue
		}
		b.Instructions = append(b.Instructions[:len(b.Instructions)-1],
			ir.Instruction{Op: "addI", Args: []string{"%" + a.SPReg, strconv.Itoa(frame), "%" + a.SPReg}},
			last)
	}
	fn.Invalidate()
	return nil
}

// PostASM removes every unconditional jump whose sole target is the block
// immediately following it in fn.Blocks order, the fall-through case the
// target no longer needs an explicit jump for.
func (a StandardArch) PostASM(fn *ir.Function, isa *ir.ISAContext) *diag.CompilerError {
	for i, b := range fn.Blocks {
		if len(b.Instructions) == 0 || i+1 >= len(fn.Blocks) {
			continue
		}
		last := b.Instructions[len(b.Instructions)-1]
		if last.Op != "jump" || len(last.Args) != 1 {
			continue
		}
		if stripSigilASM(last.Args[0]) == fn.Blocks[i+1].Name {
			b.Instructions = b.Instructions[:len(b.Instructions)-1]
		}
	}
	fn.Invalidate()
	return nil
}

func stripSigilASM(tok string) string {
	if len(tok) > 0 && (tok[0] == '%' || tok[0] == '@') {
		return tok[1:]
	}
	return tok
}

package ir

import "strings"

// Print renders a Module back to the textual IR format of spec.md §6.
// Grounded on the teacher's internal/ir/printer.go strings.Builder style.
func Print(mod *Module) string {
	var b strings.Builder
	for i, fn := range mod.Functions {
		if i > 0 {
			b.WriteString("\n")
		}
		PrintFunction(&b, fn)
	}
	return b.String()
}

// PrintFunction renders one Function, including its leading function label.
func PrintFunction(b *strings.Builder, fn *Function) {
	b.WriteString(fn.Name)
	b.WriteString(":\n")
	b.WriteString(".fun ")
	b.WriteString(fn.Name)
	for _, a := range fn.Args {
		b.WriteString(", %")
		b.WriteString(a)
	}
	b.WriteString("\n")
	for _, blk := range fn.Blocks {
		PrintBlock(b, blk)
	}
}

// PrintBlock renders one BasicBlock: its label line followed by one
// instruction per line.
func PrintBlock(b *strings.Builder, blk *BasicBlock) {
	b.WriteString(blk.Name)
	b.WriteString(":\n")
	for _, in := range blk.Instructions {
		b.WriteString(in.String())
		b.WriteString("\n")
	}
}

// PrintOneLine renders a single Instruction, used by diagnostics and the
// REPL to show one line without the surrounding block/function context.
func PrintOneLine(in Instruction) string {
	return in.String()
}

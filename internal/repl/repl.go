// Package repl is an interactive line-oriented shell for running one
// pipeline stage (schedule/select/allocate) against pasted textual IR,
// grounded on the teacher's repl/repl.go: the same "prompt, read a chunk,
// print the result" loop, repurposed from printing a parsed AST to
// round-tripping a Function through a compiler pass.
//
// Unlike the teacher's REPL, which re-lexes and re-parses a single line on
// every iteration, tessera's textual IR spans multiple lines (a function
// directive, labels, instructions), so this REPL accumulates lines into a
// buffer until the user issues a command, then parses the whole buffer at
// once.
package repl

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"tessera/internal/analyses"
	"tessera/internal/config"
	"tessera/internal/diag"
	"tessera/internal/ir"
	"tessera/internal/regalloc"
	"tessera/internal/sched"
	selector "tessera/internal/select"
)

// PROMPT matches the teacher's constant name and style.
const PROMPT = ">> "

// Config bundles the metadata a REPL session needs to run any of the three
// cores, the same fields internal/lsp.Config carries (both read their
// toolchain once at startup and never mutate it mid-session).
type Config struct {
	ISA      *ir.ISAContext
	Latency  map[string]int
	Rules    *selector.RuleSet
	Root     string
	Arch     selector.Arch
	RegAlloc regalloc.Config
}

// Start runs the REPL loop against in, writing prompts, echoes, and pass
// output to out. Lines are accumulated into a pending buffer; a line
// consisting of a single command word acts on that buffer:
//
//	:schedule            run the list scheduler over the buffered function(s)
//	:select               run the BURS selector
//	:allocate <k> [variant]  run the register allocator (variant: topdown|bottomup|local)
//	:show                 print the buffered text unchanged
//	:reset                discard the buffer
//	:quit                 exit
//
// Any other line is appended to the buffer verbatim. This mirrors the
// teacher's one-line-at-a-time Start loop while accommodating a multi-line
// IR format the teacher's single-expression REPL never had to.
func Start(in io.Reader, out io.Writer, cfg Config) {
	scanner := bufio.NewScanner(in)
	var buf strings.Builder

	for {
		fmt.Fprint(out, PROMPT)
		if !scanner.Scan() {
			return
		}
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)

		switch {
		case trimmed == ":quit" || trimmed == ":q":
			return
		case trimmed == ":reset":
			buf.Reset()
			fmt.Fprintln(out, "buffer cleared")
		case trimmed == ":show":
			fmt.Fprint(out, buf.String())
		case trimmed == ":schedule":
			runPass(out, buf.String(), cfg, runSchedule)
		case trimmed == ":select":
			runPass(out, buf.String(), cfg, runSelect)
		case strings.HasPrefix(trimmed, ":allocate"):
			fields := strings.Fields(trimmed)
			runPass(out, buf.String(), cfg, allocatePass(fields[1:]))
		default:
			buf.WriteString(line)
			buf.WriteByte('\n')
		}
	}
}

type passFn func(mod *ir.Module, cfg Config) *diag.CompilerError

// runPass parses src as a Module, validates it, runs fn over every
// Function, re-validates, and prints either the rewritten IR or a
// diagnostic, matching main.go's validateAndPrint discipline so the REPL
// and the CLI never diverge on what "success" means.
func runPass(out io.Writer, src string, cfg Config, fn passFn) {
	mod, perr := ir.Parse(src, "<repl>")
	if perr != nil {
		fmt.Fprintln(out, perr.Error())
		return
	}
	mod.ISA = cfg.ISA
	if errs := ir.Validate(mod, "<repl>"); len(errs) > 0 {
		printErrs(out, errs)
		return
	}

	if cerr := fn(mod, cfg); cerr != nil {
		fmt.Fprintln(out, cerr.Error())
		return
	}

	var errs []*diag.CompilerError
	errs = append(errs, ir.Validate(mod, "<repl>")...)
	errs = append(errs, analyses.ValidatePhis(mod, "<repl>")...)
	errs = append(errs, analyses.ValidateReachingDefs(mod, "<repl>")...)
	if len(errs) > 0 {
		printErrs(out, errs)
		return
	}
	fmt.Fprint(out, ir.Print(mod))
}

func printErrs(out io.Writer, errs []*diag.CompilerError) {
	for _, e := range errs {
		fmt.Fprintln(out, e.Error())
	}
}

func runSchedule(mod *ir.Module, cfg Config) *diag.CompilerError {
	s := sched.NewScheduler(cfg.ISA, config.LatencyTable(cfg.Latency), nil)
	for _, fn := range mod.Functions {
		if cerr := s.Run(fn); cerr != nil {
			return cerr
		}
	}
	return nil
}

func runSelect(mod *ir.Module, cfg Config) *diag.CompilerError {
	root := cfg.Root
	if root == "" {
		root = "reg"
	}
	sel := selector.NewSelector(cfg.Rules, root, cfg.Arch)
	for _, fn := range mod.Functions {
		if cerr := sel.Run(fn, cfg.ISA); cerr != nil {
			return cerr
		}
	}
	return nil
}

// allocatePass parses `:allocate <k> [variant]` arguments at command time
// (not session-start time) so a single REPL session can try the same
// buffered function under several register counts or variants in a row.
func allocatePass(args []string) passFn {
	return func(mod *ir.Module, cfg Config) *diag.CompilerError {
		if len(args) < 1 {
			return diag.Invariant("", "", ":allocate requires a hardware register count")
		}
		k, err := strconv.Atoi(args[0])
		if err != nil || k <= 0 {
			return diag.Invariant("", "", fmt.Sprintf("invalid hardware register count %q", args[0]))
		}
		variant := "topdown"
		if len(args) >= 2 {
			variant = args[1]
		}
		for _, fn := range mod.Functions {
			var cerr *diag.CompilerError
			switch variant {
			case "local":
				cerr = regalloc.NewLocalAllocator(cfg.ISA, cfg.RegAlloc, k).Run(fn)
			case "bottomup":
				cerr = regalloc.NewAllocator(cfg.ISA, cfg.RegAlloc, k, regalloc.BottomUp, nil).Run(fn)
			default:
				cerr = regalloc.NewAllocator(cfg.ISA, cfg.RegAlloc, k, regalloc.TopDown, nil).Run(fn)
			}
			if cerr != nil {
				return cerr
			}
		}
		return nil
	}
}

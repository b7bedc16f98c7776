// SPDX-License-Identifier: Apache-2.0
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"

	"tessera/internal/analyses"
	"tessera/internal/config"
	"tessera/internal/diag"
	"tessera/internal/ir"
	"tessera/internal/mdlog"
	"tessera/internal/regalloc"
	"tessera/internal/repl"
	"tessera/internal/sched"
	selector "tessera/internal/select"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	args, flags := splitFlags(os.Args[2:])
	var err error
	switch os.Args[1] {
	case "schedule":
		err = runSchedule(args, flags)
	case "select":
		err = runSelect(args, flags)
	case "allocate":
		err = runAllocate(args, flags)
	case "validate":
		err = runValidate(args, flags)
	case "repl":
		err = runRepl(args, flags)
	default:
		color.Red("Unknown subcommand %q", os.Args[1])
		usage()
		os.Exit(1)
	}
	if err != nil {
		color.Red("%s", err.Error())
		os.Exit(1)
	}
	color.Green("done")
}

func usage() {
	fmt.Println("Usage: tessera <schedule|select|allocate|validate|repl> [args...]")
	fmt.Println("  schedule  <isa-file> <latency-file> <ir-file> [--report=path]")
	fmt.Println("  select    <isa-file> <rule-file> <ir-file> [--arch=standard|none] [--root=reg] [--sp=sp] [--framesize=4] [--report=path]")
	fmt.Println("  allocate  <isa-file> <ir-file> <k> [--variant=topdown|bottomup|local] [--mov=mov] [--load=load] [--store=store] [--sp=sp] [--report=path]")
	fmt.Println("  validate  <isa-file> <ir-file>")
	fmt.Println("  repl      <isa-file> [--latency=path] [--rules=path] [--sp=sp] [--root=reg] [--arch=standard|none]")
}

// splitFlags separates `--name=value` tokens (in any position) from plain
// positional arguments, the teacher's main.go style of hand-rolled os.Args
// scanning rather than pulling in the standard flag package for four
// subcommands' worth of optional knobs.
func splitFlags(argv []string) (positional []string, flags map[string]string) {
	flags = map[string]string{}
	for _, a := range argv {
		if strings.HasPrefix(a, "--") {
			kv := strings.SplitN(strings.TrimPrefix(a, "--"), "=", 2)
			if len(kv) == 2 {
				flags[kv[0]] = kv[1]
			} else {
				flags[kv[0]] = "true"
			}
			continue
		}
		positional = append(positional, a)
	}
	return positional, flags
}

func flagOr(flags map[string]string, name, def string) string {
	if v, ok := flags[name]; ok {
		return v
	}
	return def
}

func readFile(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return string(b), nil
}

func openReport(flags map[string]string) (mdlog.Sink, *os.File, error) {
	path, ok := flags["report"]
	if !ok {
		return mdlog.NullSink{}, nil, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening report %s: %w", path, err)
	}
	return mdlog.NewMarkdownSink(f), f, nil
}

// loadModule reads and parses irPath, attaches isa, and runs the
// structural validator (spec.md §5: "validated once after parse"),
// printing any diagnostics found against irPath's own source text before
// returning the first as the tool's terminating error.
func loadModule(isa *ir.ISAContext, irPath string) (*ir.Module, *diag.CompilerError) {
	src, err := readFile(irPath)
	if err != nil {
		return nil, diag.Invariant("", "", err.Error())
	}
	mod, perr := ir.Parse(src, irPath)
	if perr != nil {
		return nil, diag.New(diag.ErrorMalformedToken, perr.Message, perr.Pos)
	}
	mod.ISA = isa
	if errs := ir.Validate(mod, irPath); len(errs) > 0 {
		printDiagnostics(irPath, src, errs)
		return nil, errs[0]
	}
	return mod, nil
}

func printDiagnostics(filename, source string, errs []*diag.CompilerError) {
	r := diag.NewReporter(filename, source)
	for _, e := range errs {
		fmt.Fprint(os.Stderr, r.Format(e))
	}
}

func runSchedule(args []string, flags map[string]string) error {
	if len(args) != 3 {
		return fmt.Errorf("schedule requires <isa-file> <latency-file> <ir-file>")
	}
	isaPath, latPath, irPath := args[0], args[1], args[2]

	tc, err := config.LoadToolchain(isaPath, latPath)
	if err != nil {
		return err
	}

	mod, cerr := loadModule(tc.ISA, irPath)
	if cerr != nil {
		return cerr
	}

	sink, f, err := openReport(flags)
	if err != nil {
		return err
	}
	if f != nil {
		defer f.Close()
	}

	s := sched.NewScheduler(tc.ISA, tc.Latency, sink)
	for _, fn := range mod.Functions {
		if cerr := s.Run(fn); cerr != nil {
			return cerr
		}
	}
	return validateAndPrint(mod, irPath)
}

func runSelect(args []string, flags map[string]string) error {
	if len(args) != 3 {
		return fmt.Errorf("select requires <isa-file> <rule-file> <ir-file>")
	}
	isaPath, rulePath, irPath := args[0], args[1], args[2]

	isaSrc, err := readFile(isaPath)
	if err != nil {
		return err
	}
	isa, err := config.LoadISA(isaSrc)
	if err != nil {
		return err
	}
	sp := flagOr(flags, "sp", "sp")
	config.MarkReserved(isa, sp)

	ruleSrc, err := readFile(rulePath)
	if err != nil {
		return err
	}
	rules, err := selector.LoadRules(ruleSrc)
	if err != nil {
		return err
	}

	mod, cerr := loadModule(isa, irPath)
	if cerr != nil {
		return cerr
	}

	var arch selector.Arch
	switch flagOr(flags, "arch", "none") {
	case "standard":
		frame, _ := strconv.Atoi(flagOr(flags, "framesize", "4"))
		arch = selector.StandardArch{SPReg: sp, FrameSlot: frame}
	case "none":
		arch = selector.NoopArch{}
	default:
		return fmt.Errorf("unknown --arch %q (want standard or none)", flags["arch"])
	}

	root := flagOr(flags, "root", "reg")
	sel := selector.NewSelector(rules, root, arch)
	for _, fn := range mod.Functions {
		if cerr := sel.Run(fn, isa); cerr != nil {
			return cerr
		}
	}
	return validateAndPrint(mod, irPath)
}

func runAllocate(args []string, flags map[string]string) error {
	if len(args) != 3 {
		return fmt.Errorf("allocate requires <isa-file> <ir-file> <k>")
	}
	isaPath, irPath, kStr := args[0], args[1], args[2]
	k, err := strconv.Atoi(kStr)
	if err != nil || k <= 0 {
		return fmt.Errorf("hardware register count must be a positive integer, got %q", kStr)
	}

	isaSrc, err := readFile(isaPath)
	if err != nil {
		return err
	}
	isa, err := config.LoadISA(isaSrc)
	if err != nil {
		return err
	}
	sp := flagOr(flags, "sp", "sp")
	config.MarkReserved(isa, sp)

	mod, cerr := loadModule(isa, irPath)
	if cerr != nil {
		return cerr
	}

	cfg := regalloc.Config{
		SP:    sp,
		Mov:   flagOr(flags, "mov", "mov"),
		Load:  flagOr(flags, "load", "load"),
		Store: flagOr(flags, "store", "store"),
	}

	sink, f, err := openReport(flags)
	if err != nil {
		return err
	}
	if f != nil {
		defer f.Close()
	}

	variant := flagOr(flags, "variant", "topdown")
	for _, fn := range mod.Functions {
		var cerr *diag.CompilerError
		switch variant {
		case "topdown":
			cerr = regalloc.NewAllocator(isa, cfg, k, regalloc.TopDown, sink).Run(fn)
		case "bottomup":
			cerr = regalloc.NewAllocator(isa, cfg, k, regalloc.BottomUp, sink).Run(fn)
		case "local":
			cerr = regalloc.NewLocalAllocator(isa, cfg, k).Run(fn)
		default:
			return fmt.Errorf("unknown --variant %q (want topdown, bottomup, or local)", variant)
		}
		if cerr != nil {
			return cerr
		}
	}
	return validateAndPrint(mod, irPath)
}

func runValidate(args []string, _ map[string]string) error {
	if len(args) != 2 {
		return fmt.Errorf("validate requires <isa-file> <ir-file>")
	}
	isaPath, irPath := args[0], args[1]
	isaSrc, err := readFile(isaPath)
	if err != nil {
		return err
	}
	isa, err := config.LoadISA(isaSrc)
	if err != nil {
		return err
	}
	mod, cerr := loadModule(isa, irPath)
	if cerr != nil {
		return cerr
	}
	return validateAndPrint(mod, irPath)
}

// runRepl loads whatever toolchain pieces were given and hands control to
// internal/repl, the interactive counterpart to the three file-driven
// subcommands above: useful for trying a pass against pasted IR without
// round-tripping through a file on disk, the same convenience the
// teacher's own main.go REPL offers over its one-shot CLI parse.
func runRepl(args []string, flags map[string]string) error {
	if len(args) != 1 {
		return fmt.Errorf("repl requires <isa-file>")
	}
	isaSrc, err := readFile(args[0])
	if err != nil {
		return err
	}
	isa, err := config.LoadISA(isaSrc)
	if err != nil {
		return err
	}
	sp := flagOr(flags, "sp", "sp")
	config.MarkReserved(isa, sp)

	cfg := repl.Config{
		ISA:  isa,
		Root: flagOr(flags, "root", "reg"),
		Arch: selector.NoopArch{},
		RegAlloc: regalloc.Config{
			SP:    sp,
			Mov:   flagOr(flags, "mov", "mov"),
			Load:  flagOr(flags, "load", "load"),
			Store: flagOr(flags, "store", "store"),
		},
	}
	if latPath, ok := flags["latency"]; ok {
		latSrc, err := readFile(latPath)
		if err != nil {
			return err
		}
		lat, err := config.LoadLatency(latSrc)
		if err != nil {
			return err
		}
		cfg.Latency = lat
	}
	if rulePath, ok := flags["rules"]; ok {
		ruleSrc, err := readFile(rulePath)
		if err != nil {
			return err
		}
		rules, err := selector.LoadRules(ruleSrc)
		if err != nil {
			return err
		}
		cfg.Rules = rules
	}
	if flagOr(flags, "arch", "none") == "standard" {
		frame, _ := strconv.Atoi(flagOr(flags, "framesize", "4"))
		cfg.Arch = selector.StandardArch{SPReg: sp, FrameSlot: frame}
	}

	repl.Start(os.Stdin, os.Stdout, cfg)
	return nil
}

// validateAndPrint re-runs every validator spec.md §5/§7 names (structural,
// phi arity, reaching defs) and prints the transformed IR to stdout only if
// all three pass clean — "a pass whose output fails validation is a bug."
func validateAndPrint(mod *ir.Module, irPath string) error {
	var errs []*diag.CompilerError
	errs = append(errs, ir.Validate(mod, irPath)...)
	errs = append(errs, analyses.ValidatePhis(mod, irPath)...)
	errs = append(errs, analyses.ValidateReachingDefs(mod, irPath)...)
	printed := ir.Print(mod)
	if len(errs) > 0 {
		printDiagnostics(irPath, printed, errs)
		return errs[0]
	}
	fmt.Print(printed)
	return nil
}

// SPDX-License-Identifier: Apache-2.0
package main

import (
	"log"
	"os"
	"strconv"

	"github.com/tliron/commonlog"
	protocol "github.com/tliron/glsp/protocol_3_16"
	"github.com/tliron/glsp/server"

	"tessera/internal/config"
	"tessera/internal/lsp"
	"tessera/internal/regalloc"
	selector "tessera/internal/select"
)

const lsName = "tessera"

var version = "0.0.1"

// main wires up tessera's own glsp handler exactly the way the teacher's
// cmd/kanso-lsp/main.go wires up KansoHandler: build the handler, fill in
// a protocol.Handler struct field by field, hand it to server.NewServer,
// run over stdio. The one addition is loading the ISA/latency/rule files
// the workspace targets up front — spec.md's metadata files are
// architecture-supplied, so an LSP session needs them the same way the
// CLI's schedule/select/allocate subcommands do.
//
// Usage: tessera-lsp <isa-file> [latency-file] [rule-file]
func main() {
	commonlog.Configure(1, nil)

	if len(os.Args) < 2 {
		log.Fatal("usage: tessera-lsp <isa-file> [latency-file] [rule-file]")
	}

	isaSrc, err := os.ReadFile(os.Args[1])
	if err != nil {
		log.Fatalf("reading ISA file: %v", err)
	}
	isa, err := config.LoadISA(string(isaSrc))
	if err != nil {
		log.Fatalf("loading ISA file: %v", err)
	}
	config.MarkReserved(isa, "sp")

	var latency config.LatencyTable
	if len(os.Args) >= 3 {
		latSrc, err := os.ReadFile(os.Args[2])
		if err != nil {
			log.Fatalf("reading latency file: %v", err)
		}
		latency, err = config.LoadLatency(string(latSrc))
		if err != nil {
			log.Fatalf("loading latency file: %v", err)
		}
	}

	var rules *selector.RuleSet
	if len(os.Args) >= 4 {
		ruleSrc, err := os.ReadFile(os.Args[3])
		if err != nil {
			log.Fatalf("reading rule file: %v", err)
		}
		rules, err = selector.LoadRules(string(ruleSrc))
		if err != nil {
			log.Fatalf("loading rule file: %v", err)
		}
	}

	cfg := lsp.Config{
		ISA:      isa,
		Latency:  latency,
		Rules:    rules,
		Root:     "reg",
		Arch:     selector.NoopArch{},
		RegAlloc: regallocConfig(),
	}
	h := lsp.NewHandler(cfg)

	handler := protocol.Handler{
		Initialize:              h.Initialize,
		Initialized:             h.Initialized,
		Shutdown:                h.Shutdown,
		TextDocumentDidOpen:     h.TextDocumentDidOpen,
		TextDocumentDidClose:    h.TextDocumentDidClose,
		TextDocumentDidChange:   h.TextDocumentDidChange,
		WorkspaceExecuteCommand: h.WorkspaceExecuteCommand,
	}

	s := server.NewServer(&handler, lsName, false)
	log.Println("starting tessera LSP server " + version + ", pid " + strconv.Itoa(os.Getpid()))
	if err := s.RunStdio(); err != nil {
		log.Println("error starting tessera LSP server:", err)
		os.Exit(1)
	}
}

// regallocConfig assumes the conventional opcode names the CLI's allocate
// subcommand also defaults to; spec.md's ISA format carries no convention
// for naming mov/load/store/sp, so a workspace targeting a different
// architecture would need its own tessera-lsp build or flag, same
// limitation noted for main.go's --mov/--load/--store/--sp flags.
func regallocConfig() regalloc.Config {
	return regalloc.Config{SP: "sp", Mov: "mov", Load: "load", Store: "store", SlotSize: 4}
}

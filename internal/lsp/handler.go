// SPDX-License-Identifier: Apache-2.0
package lsp

import (
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"

	"tessera/internal/analyses"
	"tessera/internal/config"
	"tessera/internal/diag"
	"tessera/internal/ir"
	"tessera/internal/regalloc"
	"tessera/internal/sched"
	selector "tessera/internal/select"
)

// commandSchedule, commandSelect and commandAllocate are the three custom
// workspace/executeCommand names this server advertises, one per core
// subsystem, grounded on the teacher's own textDocument handlers but with
// no analogue in kanso-lsp: Kanso's handler only ever reads an AST back,
// it never rewrites the open document through a compiler pass.
const (
	commandSchedule = "tessera/schedule"
	commandSelect   = "tessera/select"
	commandAllocate = "tessera/allocate"
)

// Config bundles the metadata every tessera tool needs (spec.md §6), loaded
// once by cmd/tessera-lsp/main.go from whatever ISA/latency/rule files the
// workspace was started against, then passed into the Handler the same way
// main.go passes the loaded ISA, latency table and rules into each pass
// constructor: no package-level globals.
type Config struct {
	ISA      *ir.ISAContext
	Latency  config.LatencyTable
	Rules    *selector.RuleSet
	Root     string
	Arch     selector.Arch
	RegAlloc regalloc.Config
}

// Handler implements the LSP server handlers for tessera's textual IR,
// structured the way the teacher's KansoHandler is: a mutex-guarded map of
// open documents plus whatever per-document analysis result (here, a
// parsed *ir.Module rather than an *ast.Contract) the last successful
// update produced.
type Handler struct {
	mu      sync.RWMutex
	cfg     Config
	content map[string]string
	modules map[string]*ir.Module
}

// NewHandler creates a Handler bound to cfg.
func NewHandler(cfg Config) *Handler {
	return &Handler{
		cfg:     cfg,
		content: make(map[string]string),
		modules: make(map[string]*ir.Module),
	}
}

// Initialize responds to the client's initialize request and advertises
// full-document sync plus the three custom commands.
func (h *Handler) Initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	log.Println("tessera LSP Initialize called")

	return &protocol.InitializeResult{
		Capabilities: protocol.ServerCapabilities{
			TextDocumentSync: &protocol.TextDocumentSyncOptions{
				OpenClose: ptrBool(true),
				Change:    ptrSyncKind(protocol.TextDocumentSyncKindFull),
			},
			ExecuteCommandProvider: &protocol.ExecuteCommandOptions{
				Commands: []string{commandSchedule, commandSelect, commandAllocate},
			},
		},
	}, nil
}

func (h *Handler) Initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	log.Println("tessera LSP Initialized")
	return nil
}

func (h *Handler) Shutdown(ctx *glsp.Context) error {
	log.Println("tessera LSP Shutdown")
	return nil
}

// TextDocumentDidOpen parses and validates the opened document, publishing
// any resulting diagnostics.
func (h *Handler) TextDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	log.Printf("opened %s\n", params.TextDocument.URI)
	diags, err := h.updateModule(params.TextDocument.URI, params.TextDocument.Text)
	if err != nil {
		return fmt.Errorf("updating module: %w", err)
	}
	sendDiagnostics(ctx, params.TextDocument.URI, diags)
	return nil
}

// TextDocumentDidChange re-parses and re-validates on every full-document
// change notification.
func (h *Handler) TextDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	if len(params.ContentChanges) == 0 {
		return nil
	}
	full, ok := params.ContentChanges[len(params.ContentChanges)-1].(protocol.TextDocumentContentChangeEventWhole)
	if !ok {
		return nil
	}
	log.Printf("changed %s\n", params.TextDocument.URI)
	diags, err := h.updateModule(params.TextDocument.URI, full.Text)
	if err != nil {
		return fmt.Errorf("updating module: %w", err)
	}
	sendDiagnostics(ctx, params.TextDocument.URI, diags)
	return nil
}

func (h *Handler) TextDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	log.Printf("closed %s\n", params.TextDocument.URI)
	path, err := uriToPath(params.TextDocument.URI)
	if err != nil {
		return err
	}
	h.mu.Lock()
	delete(h.content, path)
	delete(h.modules, path)
	h.mu.Unlock()
	return nil
}

// WorkspaceExecuteCommand dispatches the three custom commands, each of
// which round-trips the currently-open document through one core pass and
// returns the rewritten IR text as the command's result, rather than
// applying a workspace edit — the client decides what to do with the
// returned text.
func (h *Handler) WorkspaceExecuteCommand(ctx *glsp.Context, params *protocol.ExecuteCommandParams) (any, error) {
	uri, ok := stringArg(firstArg(params.Arguments))
	if !ok {
		return nil, fmt.Errorf("%s: first argument must be a document URI", params.Command)
	}
	path, err := uriToPath(uri)
	if err != nil {
		return nil, err
	}

	h.mu.RLock()
	src, ok := h.content[path]
	h.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%s: document %s is not open", params.Command, uri)
	}

	mod, perr := ir.Parse(src, path)
	if perr != nil {
		return nil, fmt.Errorf("%s: %s", params.Command, perr.Message)
	}
	mod.ISA = h.cfg.ISA
	if errs := ir.Validate(mod, path); len(errs) > 0 {
		return nil, fmt.Errorf("%s: %s", params.Command, errs[0].Error())
	}

	switch params.Command {
	case commandSchedule:
		return h.runSchedule(mod)
	case commandSelect:
		return h.runSelect(mod)
	case commandAllocate:
		return h.runAllocate(mod, params.Arguments)
	default:
		return nil, fmt.Errorf("unknown command %q", params.Command)
	}
}

func (h *Handler) runSchedule(mod *ir.Module) (any, error) {
	s := sched.NewScheduler(h.cfg.ISA, h.cfg.Latency, nil)
	for _, fn := range mod.Functions {
		if cerr := s.Run(fn); cerr != nil {
			return nil, cerr
		}
	}
	return ir.Print(mod), nil
}

func (h *Handler) runSelect(mod *ir.Module) (any, error) {
	root := h.cfg.Root
	if root == "" {
		root = "reg"
	}
	sel := selector.NewSelector(h.cfg.Rules, root, h.cfg.Arch)
	for _, fn := range mod.Functions {
		if cerr := sel.Run(fn, h.cfg.ISA); cerr != nil {
			return nil, cerr
		}
	}
	return ir.Print(mod), nil
}

func (h *Handler) runAllocate(mod *ir.Module, args []any) (any, error) {
	k, ok := intArg(argAt(args, 1))
	if !ok || k <= 0 {
		return nil, fmt.Errorf("%s: second argument must be a positive hardware register count", commandAllocate)
	}
	variant, _ := stringArg(argAt(args, 2))

	for _, fn := range mod.Functions {
		var cerr *diag.CompilerError
		switch variant {
		case "local":
			cerr = regalloc.NewLocalAllocator(h.cfg.ISA, h.cfg.RegAlloc, k).Run(fn)
		case "bottomup":
			cerr = regalloc.NewAllocator(h.cfg.ISA, h.cfg.RegAlloc, k, regalloc.BottomUp, nil).Run(fn)
		default:
			cerr = regalloc.NewAllocator(h.cfg.ISA, h.cfg.RegAlloc, k, regalloc.TopDown, nil).Run(fn)
		}
		if cerr != nil {
			return nil, cerr
		}
	}
	return ir.Print(mod), nil
}

// updateModule parses and validates text, storing the result (or clearing
// it on failure) and returning the diagnostics the client should see.
func (h *Handler) updateModule(uri protocol.DocumentUri, text string) ([]protocol.Diagnostic, error) {
	path, err := uriToPath(uri)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	h.content[path] = text
	h.mu.Unlock()

	mod, perr := ir.Parse(text, path)
	if perr != nil {
		return []protocol.Diagnostic{parseErrorDiagnostic(perr)}, nil
	}
	mod.ISA = h.cfg.ISA

	var errs []*diag.CompilerError
	errs = append(errs, ir.Validate(mod, path)...)
	errs = append(errs, analyses.ValidatePhis(mod, path)...)
	errs = append(errs, analyses.ValidateReachingDefs(mod, path)...)

	h.mu.Lock()
	if len(errs) == 0 {
		h.modules[path] = mod
	} else {
		delete(h.modules, path)
	}
	h.mu.Unlock()

	return compilerErrorDiagnostics(errs), nil
}

func sendDiagnostics(ctx *glsp.Context, uri protocol.DocumentUri, diagnostics []protocol.Diagnostic) {
	payload, err := json.MarshalIndent(diagnostics, "", "  ")
	if err != nil {
		log.Println("failed to marshal diagnostics:", err)
		return
	}
	log.Println("sending diagnostics:", string(payload))
	ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, &protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diagnostics,
	})
}

func uriToPath(rawURI string) (string, error) {
	u, err := url.Parse(rawURI)
	if err != nil {
		return "", fmt.Errorf("invalid URI %s: %w", rawURI, err)
	}
	path := u.Path
	if runtime.GOOS == "windows" && strings.HasPrefix(path, "/") && len(path) > 3 && path[2] == ':' {
		path = path[1:]
	}
	return filepath.FromSlash(path), nil
}

func firstArg(args []any) any { return argAt(args, 0) }

func argAt(args []any, i int) any {
	if i < 0 || i >= len(args) {
		return nil
	}
	return args[i]
}

// stringArg and intArg accommodate both plain Go values (when glsp has
// already unmarshalled command arguments into interface{}) and raw JSON, so
// the dispatch above does not depend on exactly which representation the
// jsonrpc2 layer hands back.
func stringArg(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case json.RawMessage:
		var s string
		if err := json.Unmarshal(t, &s); err == nil {
			return s, true
		}
	case []byte:
		var s string
		if err := json.Unmarshal(t, &s); err == nil {
			return s, true
		}
	}
	return "", false
}

func intArg(v any) (int, bool) {
	switch t := v.(type) {
	case float64:
		return int(t), true
	case int:
		return t, true
	case json.RawMessage:
		var n float64
		if err := json.Unmarshal(t, &n); err == nil {
			return int(n), true
		}
	}
	return 0, false
}

func ptrBool(b bool) *bool { return &b }

func ptrSyncKind(k protocol.TextDocumentSyncKind) *protocol.TextDocumentSyncKind { return &k }

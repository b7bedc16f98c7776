// SPDX-License-Identifier: Apache-2.0
package lsp

import (
	protocol "github.com/tliron/glsp/protocol_3_16"

	"tessera/internal/diag"
	"tessera/internal/ir"
)

// compilerErrorDiagnostics converts the *diag.CompilerError list any
// validator in internal/ir or internal/analyses returns into LSP
// diagnostics, the tessera analogue of the teacher's ConvertParseErrors /
// ConvertScanErrors pair over one shared error shape instead of two.
func compilerErrorDiagnostics(errs []*diag.CompilerError) []protocol.Diagnostic {
	var diagnostics []protocol.Diagnostic
	for _, e := range errs {
		diagnostics = append(diagnostics, protocol.Diagnostic{
			Range:    diagRange(e.Position, e.Length),
			Severity: ptrSeverity(severityOf(e.Level)),
			Source:   ptrString("tessera"),
			Message:  e.Error(),
		})
	}
	return diagnostics
}

// parseErrorDiagnostic converts the parser's single ir.ParseError into one
// diagnostic — a syntax error always halts parsing before the structural
// validators ever run, so there is only ever one to report.
func parseErrorDiagnostic(perr *ir.ParseError) protocol.Diagnostic {
	return protocol.Diagnostic{
		Range:    diagRange(perr.Pos, 1),
		Severity: ptrSeverity(protocol.DiagnosticSeverityError),
		Source:   ptrString("tessera-parser"),
		Message:  perr.Message,
	}
}

func diagRange(pos diag.Position, length int) protocol.Range {
	if length <= 0 {
		length = 1
	}
	line := uint32(0)
	if pos.Line > 0 {
		line = uint32(pos.Line - 1)
	}
	col := uint32(0)
	if pos.Column > 0 {
		col = uint32(pos.Column - 1)
	}
	return protocol.Range{
		Start: protocol.Position{Line: line, Character: col},
		End:   protocol.Position{Line: line, Character: col + uint32(length)},
	}
}

func severityOf(level diag.Level) protocol.DiagnosticSeverity {
	switch level {
	case diag.Warning:
		return protocol.DiagnosticSeverityWarning
	case diag.Note:
		return protocol.DiagnosticSeverityInformation
	case diag.Help:
		return protocol.DiagnosticSeverityHint
	default:
		return protocol.DiagnosticSeverityError
	}
}

func ptrSeverity(s protocol.DiagnosticSeverity) *protocol.DiagnosticSeverity { return &s }

func ptrString(s string) *string { return &s }

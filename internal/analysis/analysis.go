// SPDX-License-Identifier: Apache-2.0

// Package analysis runs the Lexer -> Program parser -> Type checker
// pipeline an LSP server drives on every document change.
// It is idempotent and side-effect-free: given the same text it always
// produces the same diagnostics, so a caller may re-run it on every
// keystroke without accumulating state. Grounded on
// internal/observability/server.go's instrumented-operation shape
// (a single function wrapping a staged pipeline and collecting results),
// adapted here to collect diagnostics instead of serving HTTP.
package analysis

import (
	"github.com/omnilang/omnilang/internal/lexer"
	"github.com/omnilang/omnilang/internal/programparser"
	"github.com/omnilang/omnilang/internal/typecheck"
)

// Severity mirrors the small set of severities an LSP publishDiagnostics
// notification expects.
type Severity int

const (
	SeverityError Severity = iota
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// Diagnostic is one finding from a pipeline stage: lexer/parser errors
// are positioned at their reported line with column 0, type-check errors
// at line 0 (the checker does not carry per-message positions) with
// column 0.
type Diagnostic struct {
	Severity Severity
	Line int // 1-based; 0 when the stage carries no position
	Column int
	Message string
	Source string // "lexer" | "parser" | "typecheck"
}

// Result is the outcome of one analysis run over a document's text.
type Result struct {
	URI string
	Diagnostics []Diagnostic
}

// Analyze runs Lexer -> Program parser -> Type checker over text and
// collects diagnostics at whichever stage fails. Each stage is fatal to
// the stages after it (a lex error means the parser never runs), matching
// the fixed pipeline order above — but Analyze itself never errors; it
// always returns a Result, even an empty one.
func Analyze(uri, text string) Result {
	result := Result{URI: uri}

	toks, err := lexer.Tokenize(text)
	if err != nil {
		if lexErr, ok := err.(*lexer.LexError); ok {
			result.Diagnostics = append(result.Diagnostics, Diagnostic{
				Severity: SeverityError,
				Line: lexErr.Line,
				Message: lexErr.Message,
				Source: "lexer",
			})
			return result
		}
		result.Diagnostics = append(result.Diagnostics, Diagnostic{Severity: SeverityError, Message: err.Error(), Source: "lexer"})
		return result
	}

	prog, err := programparser.Parse(toks)
	if err != nil {
		if parseErr, ok := err.(*programparser.ParseError); ok {
			result.Diagnostics = append(result.Diagnostics, Diagnostic{
				Severity: SeverityError,
				Line: parseErr.Line,
				Message: parseErr.Message,
				Source: "parser",
			})
			return result
		}
		result.Diagnostics = append(result.Diagnostics, Diagnostic{Severity: SeverityError, Message: err.Error(), Source: "parser"})
		return result
	}

	if err := typecheck.CheckProgram(prog); err != nil {
		if typeErr, ok := err.(*typecheck.TypeError); ok {
			for _, msg := range typeErr.Messages {
				result.Diagnostics = append(result.Diagnostics, Diagnostic{
					Severity: SeverityError,
					Message: msg,
					Source: "typecheck",
				})
			}
			return result
		}
		result.Diagnostics = append(result.Diagnostics, Diagnostic{Severity: SeverityError, Message: err.Error(), Source: "typecheck"})
	}

	return result
}

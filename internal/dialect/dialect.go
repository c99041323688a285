// SPDX-License-Identifier: Apache-2.0

// Package dialect routes source text to the Policy or Program pipeline
// by inspecting its leading tokens, before either pipeline's lexer has run.
package dialect

import "strings"

// Dialect identifies which pipeline a source document should enter.
type Dialect int

const (
	Unknown Dialect = iota
	Policy
	Program
)

func (d Dialect) String() string {
	switch d {
	case Policy:
		return "policy"
	case Program:
		return "program"
	default:
		return "unknown"
	}
}

var policyHeaders = []string{"intent:", "actor:", "context:", "rule:", "policy:"}

// Select inspects source and returns the dialect it should be parsed
// as. The first non-whitespace tokens decide it outright; failing
// that, the first five lines are scanned for a policy header or a
// `fn `/`let ` keyword before giving up with Unknown.
func Select(source string) Dialect {
	if d := selectFromFirstToken(source); d != Unknown {
		return d
	}
	return selectFromFirstLines(source, 5)
}

func selectFromFirstToken(source string) Dialect {
	trimmed := strings.TrimLeft(source, " \t\r\n")
	lower := strings.ToLower(trimmed)
	for _, h := range policyHeaders {
		if strings.HasPrefix(lower, h) {
			return Policy
		}
	}
	for _, kw := range []string{"module ", "fn ", "let "} {
		if strings.HasPrefix(trimmed, kw) {
			return Program
		}
	}
	return Unknown
}

func selectFromFirstLines(source string, limit int) Dialect {
	lines := strings.SplitN(source, "\n", limit+1)
	if len(lines) > limit {
		lines = lines[:limit]
	}
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		lower := strings.ToLower(trimmed)
		for _, h := range policyHeaders {
			if strings.HasPrefix(lower, h) {
				return Policy
			}
		}
		if strings.HasPrefix(trimmed, "fn ") || strings.HasPrefix(trimmed, "let ") {
			return Program
		}
	}
	return Unknown
}

// SPDX-License-Identifier: Apache-2.0

package lexer_test

import (
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnilang/omnilang/internal/lexer"
	"github.com/omnilang/omnilang/internal/token"
)

// assertLexErrorCode asserts that err is an oops error carrying the given
// code, the same shape newLexError in internal/lexer/lexer.go always
// produces.
func assertLexErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	oopsErr, ok := oops.AsOops(err)
	require.True(t, ok, "expected oops error, got %T", err)
	assert.Equal(t, code, oopsErr.Code())
}

// assertLexErrorLine asserts that err's oops context carries "line" with
// the given value, the line at which the lexer gave up.
func assertLexErrorLine(t *testing.T, err error, line int) {
	t.Helper()
	oopsErr, ok := oops.AsOops(err)
	require.True(t, ok, "expected oops error, got %T", err)
	ctx := oopsErr.Context()
	assert.Contains(t, ctx, "line")
	assert.Equal(t, line, ctx["line"])
}

func TestTokenize_EndsInEOF(t *testing.T) {
	toks, err := lexer.Tokenize("let x = 1;")
	require.NoError(t, err)
	require.NotEmpty(t, toks)
	assert.Equal(t, token.EOF, toks[len(toks)-1].Kind)
}

func TestTokenize_UnitSuffixedNumbers(t *testing.T) {
	tests := []struct {
		src    string
		number float64
		lexeme string
	}{
		{"1m", 1, "1m"},
		{"300cm", 300, "300cm"},
		{"25%", 25, "25%"},
		{"1500ms", 1500, "1500ms"},
		{"0.5", 0.5, "0.5"},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			toks, err := lexer.Tokenize(tt.src)
			require.NoError(t, err)
			require.Equal(t, token.Number, toks[0].Kind)
			assert.Equal(t, tt.number, toks[0].Number)
			assert.Equal(t, tt.lexeme, toks[0].Lexeme)
		})
	}
}

func TestTokenize_CompositeOperators(t *testing.T) {
	toks, err := lexer.Tokenize("== != <= >= -> => && ||")
	require.NoError(t, err)
	kinds := []token.Kind{token.Eq, token.NotEq, token.LtEq, token.GtEq, token.Arrow, token.FatArrow, token.And, token.Or, token.EOF}
	require.Len(t, toks, len(kinds))
	for i, k := range kinds {
		assert.Equal(t, k, toks[i].Kind)
	}
}

func TestTokenize_PolicyHeaderRequiresColon(t *testing.T) {
	toks, err := lexer.Tokenize("Intent: reduce risk")
	require.NoError(t, err)
	assert.Equal(t, token.Intent, toks[0].Kind)

	toks, err = lexer.Tokenize("The Intent of this sentence is prose")
	require.NoError(t, err)
	for _, tk := range toks {
		assert.NotEqual(t, token.Intent, tk.Kind)
	}
}

func TestTokenize_StringLiteral(t *testing.T) {
	toks, err := lexer.Tokenize(`"hello world"`)
	require.NoError(t, err)
	require.Equal(t, token.String, toks[0].Kind)
	assert.Equal(t, "hello world", toks[0].Str)
}

func TestTokenize_UnterminatedString(t *testing.T) {
	_, err := lexer.Tokenize(`"unterminated`)
	require.Error(t, err)
}

func TestTokenize_UnexpectedCharacter(t *testing.T) {
	_, err := lexer.Tokenize("let x = #;")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Unexpected character")
	assertLexErrorCode(t, err, "LEX_ERROR")
	assertLexErrorLine(t, err, 1)
}

func TestTokenize_LineComment(t *testing.T) {
	toks, err := lexer.Tokenize("let x = 1; // a comment\nlet y = 2;")
	require.NoError(t, err)
	for _, tk := range toks {
		assert.NotContains(t, tk.Lexeme, "comment")
	}
}

func TestTokenize_SubKeywordsAreUnconditional(t *testing.T) {
	toks, err := lexer.Tokenize("for x in items while true if y match z then w")
	require.NoError(t, err)
	kinds := []token.Kind{
		token.For, token.Identifier, token.In, token.Identifier,
		token.While, token.Identifier,
		token.If, token.Identifier,
		token.Match, token.Identifier,
		token.Then, token.Identifier,
		token.EOF,
	}
	require.Len(t, toks, len(kinds))
	for i, k := range kinds {
		assert.Equal(t, k, toks[i].Kind, "token %d", i)
	}
}

func TestTokenize_PolicyOnlySubKeywordsAreIdentifiersInProgramDialect(t *testing.T) {
	toks, err := lexer.Tokenize("domain location phase primary secondary")
	require.NoError(t, err)
	for _, tk := range toks[:len(toks)-1] {
		assert.Equal(t, token.Identifier, tk.Kind, tk.Lexeme)
	}
}

func TestTokenizePolicy_ReservesPolicyOnlySubKeywords(t *testing.T) {
	toks, err := lexer.TokenizePolicy("domain location phase primary secondary")
	require.NoError(t, err)
	kinds := []token.Kind{token.Domain, token.Location, token.Phase, token.Primary, token.Secondary, token.EOF}
	require.Len(t, toks, len(kinds))
	for i, k := range kinds {
		assert.Equal(t, k, toks[i].Kind, "token %d", i)
	}
}

func TestTokenizePolicy_UniversalSubKeywordsStillRecognized(t *testing.T) {
	toks, err := lexer.TokenizePolicy("for x in items")
	require.NoError(t, err)
	kinds := []token.Kind{token.For, token.Identifier, token.In, token.Identifier, token.EOF}
	require.Len(t, toks, len(kinds))
	for i, k := range kinds {
		assert.Equal(t, k, toks[i].Kind, "token %d", i)
	}
}

func TestTokenize_NeverPanics(t *testing.T) {
	inputs := []string{"", " ", "\n\n\n", "\"", "{}[]()", "1.2.3", "módule"}
	for _, in := range inputs {
		assert.NotPanics(t, func() {
			_, _ = lexer.Tokenize(in)
		})
	}
}

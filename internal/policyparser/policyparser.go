// SPDX-License-Identifier: Apache-2.0

// Package policyparser implements the linear-descent Policy parser:
// it walks the shared token stream section by section and
// produces a policyast.Policy.
package policyparser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/samber/oops"

	"github.com/omnilang/omnilang/internal/policyast"
	"github.com/omnilang/omnilang/internal/token"
)

// ParseError is returned for an unexpected token or a missing terminator.
// It always names the line and the offending token.
type ParseError struct {
	Line int
	Message string
	cause error
}

func (e *ParseError) Error() string { return e.Message }
func (e *ParseError) Unwrap() error { return e.cause }

func newParseError(line int, format string, args ...any) *ParseError {
	msg := fmt.Sprintf(format, args...)
	cause := oops.Code("POLICY_PARSE_ERROR").With("line", line).Errorf("%s", msg)
	return &ParseError{Line: line, Message: msg, cause: cause}
}

// headerKinds is the set of tokens that begin a new top-level section.
var headerKinds = map[token.Kind]bool{
	token.Intent: true, token.Actor: true, token.Context: true,
	token.Assumption: true, token.Rule: true, token.Constraint: true,
	token.Impact: true, token.Trace: true, token.Review: true,
	token.Policy: true,
}

var inBracket = regexp.MustCompile(`(?i)\bIN\[`)

type parser struct {
	toks []token.Token
	pos int
}

// Parse consumes a token stream and returns a policyast.Policy, or the
// first ParseError encountered.
func Parse(toks []token.Token) (*policyast.Policy, error) {
	p := &parser{toks: toks}
	pol := &policyast.Policy{}
	seen := map[token.Kind]bool{}

	for !p.atEOF() {
		header := p.peek()
		if !headerKinds[header.Kind] {
			return nil, newParseError(header.Line, "expected section header, found %s %q at line %d", header.Kind, header.Lexeme, header.Line)
		}
		if seen[header.Kind] {
			return nil, newParseError(header.Line, "duplicate %s section at line %d", header.Kind, header.Line)
		}
		seen[header.Kind] = true
		p.advance()
		if _, err := p.expect(token.Colon); err != nil {
			return nil, err
		}
		if err := p.parseSection(pol, header.Kind); err != nil {
			return nil, err
		}
	}
	return pol, nil
}

func (p *parser) parseSection(pol *policyast.Policy, kind token.Kind) error {
	switch kind {
	case token.Policy:
		pol.Name = p.joinTokens(p.readUntil(p.atSectionBoundary))
	case token.Intent:
		pol.Intent = p.joinTokens(p.readUntil(p.atSectionBoundary))
	case token.Actor:
		actors, err := p.parseActors()
		if err != nil {
			return err
		}
		pol.Actors = actors
	case token.Context:
		ctx, err := p.parseContext()
		if err != nil {
			return err
		}
		pol.Context = ctx
	case token.Assumption:
		assumptions, err := p.parseTextLineList()
		if err != nil {
			return err
		}
		pol.Assumptions = assumptions
	case token.Rule:
		rules, err := p.parseRuleList()
		if err != nil {
			return err
		}
		pol.Rules = rules
	case token.Constraint:
		items, err := p.parseKindedList(constraintKinds)
		if err != nil {
			return err
		}
		for _, it := range items {
			pol.Constraints = append(pol.Constraints, policyast.Constraint{
				Kind: policyast.ConstraintKind(it.kind), Description: it.text,
			})
		}
	case token.Impact:
		items, err := p.parseKindedList(impactKinds)
		if err != nil {
			return err
		}
		for _, it := range items {
			pol.Impacts = append(pol.Impacts, policyast.Impact{
				Kind: policyast.ImpactKind(it.kind), Description: it.text,
			})
		}
	case token.Trace:
		items, err := p.parseKindedList(traceKinds)
		if err != nil {
			return err
		}
		for _, it := range items {
			pol.Traces = append(pol.Traces, policyast.Trace{
				Kind: policyast.TraceKind(it.kind), Link: it.text,
			})
		}
	case token.Review:
		review, err := p.parseReview()
		if err != nil {
			return err
		}
		pol.Reviews = append(pol.Reviews, review)
	}
	return nil
}

var constraintKinds = map[string]string{"legal": "Legal", "ethical": "Ethical", "technical": "Technical"}
var impactKinds = map[string]string{"benefit": "Benefit", "risk": "Risk"}
var traceKinds = map[string]string{"moral": "Moral", "regulation": "Regulation", "evidence": "Evidence"}

func (p *parser) atSectionBoundary(t token.Token) bool {
	return t.Kind == token.EOF || headerKinds[t.Kind] || t.Kind == token.Minus || t.Kind == token.RBrace
}

func (p *parser) atEOF() bool { return p.peek().Kind == token.EOF }

func (p *parser) peek() token.Token {
	if p.pos >= len(p.toks) {
		return token.Token{Kind: token.EOF}
	}
	return p.toks[p.pos]
}

func (p *parser) advance() token.Token {
	t := p.peek()
	if p.pos < len(p.toks) {
		p.pos++
	}
	return t
}

func (p *parser) expect(k token.Kind) (token.Token, error) {
	t := p.peek()
	if t.Kind != k {
		return token.Token{}, newParseError(t.Line, "expected %s, found %s %q at line %d", k, t.Kind, t.Lexeme, t.Line)
	}
	return p.advance(), nil
}

// readUntil collects tokens while stop(peek()) is false, without
// consuming the stopping token.
func (p *parser) readUntil(stop func(token.Token) bool) []token.Token {
	var out []token.Token
	for !stop(p.peek()) {
		out = append(out, p.advance())
	}
	return out
}

// joinTokens reconstructs a text line from tokens: single spaces between
// tokens, except immediately before `. , : ; / \ ] [` where no space is
// inserted.
func (p *parser) joinTokens(toks []token.Token) string {
	var b strings.Builder
	for i, t := range toks {
		lex := t.Lexeme
		if t.Kind == token.String {
			lex = `"` + t.Str + `"`
		}
		if i > 0 && !tightPunct[lex] {
			b.WriteByte(' ')
		}
		b.WriteString(lex)
	}
	return b.String()
}

var tightPunct = map[string]bool{
	".": true, ",": true, ":": true, ";": true, "/": true, `\`: true, "]": true, "[": true,
}

// normalizeCondition expands "IN[" / "in[" to "IN [" / "in [" so the
// condition evaluator's tokenizer sees a clean operator boundary.
func normalizeCondition(s string) string {
	return inBracket.ReplaceAllStringFunc(s, func(m string) string {
		return m[:len(m)-1] + " ["
	})
}

func (p *parser) parseActors() ([]policyast.Actor, error) {
	var actors []policyast.Actor
	for p.peek().Kind == token.Minus {
		p.advance()
		primary := true
		if p.peek().Kind == token.Primary || p.peek().Kind == token.Secondary {
			primary = p.peek().Kind == token.Primary
			p.advance()
			if _, err := p.expect(token.Colon); err != nil {
				return nil, err
			}
		}
		role := p.joinTokens(p.readUntil(p.atSectionBoundary))
		actors = append(actors, policyast.Actor{Role: role, Primary: primary})
	}
	return actors, nil
}

func (p *parser) parseContext() (*policyast.Context, error) {
	ctx := &policyast.Context{Unknown: map[string]string{}}
	for p.peek().Kind == token.Minus {
		p.advance()
		key := p.peek()
		p.advance()
		if _, err := p.expect(token.Colon); err != nil {
			return nil, err
		}
		text := p.joinTokens(p.readUntil(p.atSectionBoundary))
		switch key.Kind {
		case token.Domain:
			ctx.Domain = text
		case token.Location:
			ctx.Location = text
		case token.Phase:
			ctx.Phase = text
		default:
			ctx.Unknown[key.Lexeme] = text
		}
	}
	return ctx, nil
}

func (p *parser) parseTextLineList() ([]string, error) {
	var lines []string
	for p.peek().Kind == token.Minus {
		p.advance()
		lines = append(lines, p.joinTokens(p.readUntil(p.atSectionBoundary)))
	}
	return lines, nil
}

type kindedItem struct {
	kind string
	text string
}

func (p *parser) parseKindedList(known map[string]string) ([]kindedItem, error) {
	var items []kindedItem
	for p.peek().Kind == token.Minus {
		p.advance()
		word := p.peek()
		p.advance()
		if _, err := p.expect(token.Colon); err != nil {
			return nil, err
		}
		text := p.joinTokens(p.readUntil(p.atSectionBoundary))
		kind, ok := known[strings.ToLower(word.Lexeme)]
		if !ok {
			kind = "Unknown"
		}
		items = append(items, kindedItem{kind: kind, text: text})
	}
	return items, nil
}

func (p *parser) parseReview() (policyast.Review, error) {
	var review policyast.Review
	for p.peek().Kind == token.Minus {
		p.advance()
		word := p.peek()
		p.advance()
		if _, err := p.expect(token.Colon); err != nil {
			return review, err
		}
		text := p.joinTokens(p.readUntil(p.atSectionBoundary))
		switch strings.ToLower(word.Lexeme) {
		case "interval":
			review.Interval = text
		case "criteria":
			review.Criteria = text
		}
	}
	return review, nil
}

// parseRuleList parses a `- IF|FOR|WHILE|MATCH ...` list, stopping at a
// closing brace, the next section header, or end of input.
func (p *parser) parseRuleList() ([]policyast.Rule, error) {
	var rules []policyast.Rule
	for p.peek().Kind == token.Minus {
		p.advance()
		rule, err := p.parseRuleItem()
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func (p *parser) parseRuleItem() (policyast.Rule, error) {
	switch p.peek().Kind {
	case token.If:
		return p.parseStandardRule()
	case token.For:
		return p.parseForLoop()
	case token.While:
		return p.parseWhileLoop()
	case token.Match:
		return p.parseMatchRule()
	default:
		t := p.peek()
		return policyast.Rule{}, newParseError(t.Line, "expected IF, FOR, WHILE or MATCH, found %s %q at line %d", t.Kind, t.Lexeme, t.Line)
	}
}

func (p *parser) parseStandardRule() (policyast.Rule, error) {
	p.advance() // IF
	condToks := p.readUntil(func(t token.Token) bool { return t.Kind == token.Then || t.Kind == token.EOF })
	if _, err := p.expect(token.Then); err != nil {
		return policyast.Rule{}, err
	}
	action := p.joinTokens(p.readUntil(p.atSectionBoundary))
	cond := normalizeCondition(p.joinTokens(condToks))
	return policyast.Rule{Standard: &policyast.StandardRule{Condition: cond, Action: action}}, nil
}

func (p *parser) parseForLoop() (policyast.Rule, error) {
	p.advance() // FOR
	iter, err := p.expect(token.Identifier)
	if err != nil {
		return policyast.Rule{}, err
	}
	if _, err := p.expect(token.In); err != nil {
		return policyast.Rule{}, err
	}
	coll, err := p.expect(token.Identifier)
	if err != nil {
		return policyast.Rule{}, err
	}
	if _, err := p.expect(token.LBrace); err != nil {
		return policyast.Rule{}, err
	}
	body, err := p.parseRuleList()
	if err != nil {
		return policyast.Rule{}, err
	}
	if _, err := p.expect(token.RBrace); err != nil {
		return policyast.Rule{}, err
	}
	return policyast.Rule{For: &policyast.ForLoop{Iterator: iter.Lexeme, Collection: coll.Lexeme, Body: body}}, nil
}

func (p *parser) parseWhileLoop() (policyast.Rule, error) {
	p.advance() // WHILE
	condToks := p.readUntil(func(t token.Token) bool { return t.Kind == token.LBrace || t.Kind == token.EOF })
	cond := normalizeCondition(p.joinTokens(condToks))
	if _, err := p.expect(token.LBrace); err != nil {
		return policyast.Rule{}, err
	}
	body, err := p.parseRuleList()
	if err != nil {
		return policyast.Rule{}, err
	}
	if _, err := p.expect(token.RBrace); err != nil {
		return policyast.Rule{}, err
	}
	return policyast.Rule{While: &policyast.WhileLoop{Condition: cond, Body: body}}, nil
}

func (p *parser) parseMatchRule() (policyast.Rule, error) {
	p.advance() // MATCH
	scrutineeToks := p.readUntil(func(t token.Token) bool { return t.Kind == token.LBrace || t.Kind == token.EOF })
	scrutinee := p.joinTokens(scrutineeToks)
	if _, err := p.expect(token.LBrace); err != nil {
		return policyast.Rule{}, err
	}
	var arms []policyast.MatchArm
	for p.peek().Kind == token.Minus {
		p.advance()
		patToks := p.readUntil(func(t token.Token) bool { return t.Kind == token.FatArrow || t.Kind == token.EOF })
		if _, err := p.expect(token.FatArrow); err != nil {
			return policyast.Rule{}, err
		}
		action := p.joinTokens(p.readUntil(p.atSectionBoundary))
		arms = append(arms, policyast.MatchArm{Pattern: p.joinTokens(patToks), Action: action})
	}
	if _, err := p.expect(token.RBrace); err != nil {
		return policyast.Rule{}, err
	}
	return policyast.Rule{Match: &policyast.MatchRule{Scrutinee: scrutinee, Arms: arms}}, nil
}

// SPDX-License-Identifier: Apache-2.0

// Package programparser implements the Program parser: a
// linear descent over items and statements, with Pratt-style precedence
// climbing for expressions. It shares internal/lexer's token stream with
// internal/policyparser; Program-specific keywords (module, fn, let,
// struct, trait, impl, const, mut, else, return) are recognized by
// lexeme on plain Identifier tokens rather than as dedicated token kinds,
// keeping the closed token set small and shared with the Policy parser.
package programparser

import (
	"fmt"

	"github.com/samber/oops"

	"github.com/omnilang/omnilang/internal/programast"
	"github.com/omnilang/omnilang/internal/token"
)

// ParseError is returned for an unexpected token or a missing
// terminator. It always carries the line; messages for an unexpected
// token also name that token.
type ParseError struct {
	Line int
	Message string
	cause error
}

func (e *ParseError) Error() string { return e.Message }
func (e *ParseError) Unwrap() error { return e.cause }

func newParseError(line int, format string, args ...any) *ParseError {
	msg := fmt.Sprintf(format, args...)
	cause := oops.Code("PROGRAM_PARSE_ERROR").With("line", line).Errorf("%s", msg)
	return &ParseError{Line: line, Message: msg, cause: cause}
}

type parser struct {
	toks []token.Token
	pos int
}

// Parse consumes a token stream and returns a programast.Program, or the
// first ParseError encountered.
func Parse(toks []token.Token) (*programast.Program, error) {
	p := &parser{toks: toks}
	prog := &programast.Program{}
	for !p.atEOF() {
		mod, err := p.parseModule()
		if err != nil {
			return nil, err
		}
		prog.Modules = append(prog.Modules, *mod)
	}
	return prog, nil
}

// --- token helpers ---

func (p *parser) peek() token.Token {
	if p.pos >= len(p.toks) {
		return token.Token{Kind: token.EOF}
	}
	return p.toks[p.pos]
}

func (p *parser) peekAt(n int) token.Token {
	if p.pos+n >= len(p.toks) {
		return token.Token{Kind: token.EOF}
	}
	return p.toks[p.pos+n]
}

func (p *parser) advance() token.Token {
	t := p.peek()
	if p.pos < len(p.toks) {
		p.pos++
	}
	return t
}

func (p *parser) atEOF() bool { return p.peek().Kind == token.EOF }

func (p *parser) check(k token.Kind) bool { return p.peek().Kind == k }

func (p *parser) isKeyword(word string) bool {
	t := p.peek()
	return t.Kind == token.Identifier && t.Lexeme == word
}

func (p *parser) matchKeyword(word string) bool {
	if p.isKeyword(word) {
		p.advance()
		return true
	}
	return false
}

func (p *parser) expectKeyword(word string) error {
	if !p.matchKeyword(word) {
		t := p.peek()
		return newParseError(t.Line, "expected %q, found %q at line %d", word, t.Lexeme, t.Line)
	}
	return nil
}

func (p *parser) expect(k token.Kind) (token.Token, error) {
	if !p.check(k) {
		t := p.peek()
		return token.Token{}, newParseError(t.Line, "expected %s, found %s %q at line %d", k, t.Kind, t.Lexeme, t.Line)
	}
	return p.advance(), nil
}

func (p *parser) expectIdentifier() (string, int, error) {
	t, err := p.expect(token.Identifier)
	if err != nil {
		return "", 0, err
	}
	return t.Lexeme, t.Line, nil
}

// --- items ---

// parseModule parses `module <name>[("<mode>")] { <items...> }`.
func (p *parser) parseModule() (*programast.Module, error) {
	if err := p.expectKeyword("module"); err != nil {
		return nil, err
	}
	name, _, err := p.expectIdentifier()
	if err != nil {
		return nil, err
	}
	mod := &programast.Module{Name: name, Mode: programast.GCMode}
	if p.check(token.LParen) {
		p.advance()
		modeTok, err := p.expect(token.String)
		if err != nil {
			return nil, err
		}
		mod.Mode = modeTok.Str
		if _, err := p.expect(token.RParen); err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(token.LBrace); err != nil {
		return nil, err
	}
	for !p.check(token.RBrace) {
		if p.atEOF() {
			return nil, newParseError(p.peek().Line, "unterminated module %q", name)
		}
		item, err := p.parseItem()
		if err != nil {
			return nil, err
		}
		mod.Items = append(mod.Items, *item)
	}
	p.advance() // consume '}'
	return mod, nil
}

func (p *parser) parseItem() (*programast.Item, error) {
	decorators, err := p.parseDecorators()
	if err != nil {
		return nil, err
	}
	switch {
	case p.isKeyword("fn"):
		fn, err := p.parseFunction()
		if err != nil {
			return nil, err
		}
		fn.Decorators = decorators
		return &programast.Item{Function: fn}, nil
	case p.isKeyword("struct"):
		s, err := p.parseStruct()
		if err != nil {
			return nil, err
		}
		return &programast.Item{Struct: s}, nil
	case p.isKeyword("trait"):
		t, err := p.parseTrait()
		if err != nil {
			return nil, err
		}
		return &programast.Item{Trait: t}, nil
	case p.isKeyword("impl"):
		im, err := p.parseImpl()
		if err != nil {
			return nil, err
		}
		return &programast.Item{Impl: im}, nil
	case p.isKeyword("const"):
		c, err := p.parseConst()
		if err != nil {
			return nil, err
		}
		return &programast.Item{Const: c}, nil
	}
	t := p.peek()
	return nil, newParseError(t.Line, "expected item (fn/struct/trait/impl/const), found %q at line %d", t.Lexeme, t.Line)
}

// parseDecorators parses zero or more `@name(arg: "val", ...)` prefixes.
func (p *parser) parseDecorators() ([]programast.Decorator, error) {
	var out []programast.Decorator
	for p.check(token.At) {
		p.advance() // consume '@'
		name, _, err := p.expectIdentifier()
		if err != nil {
			return nil, err
		}
		dec := programast.Decorator{Name: name, Args: map[string]string{}}
		if p.check(token.LParen) {
			p.advance()
			for !p.check(token.RParen) {
				argName, _, err := p.expectIdentifier()
				if err != nil {
					return nil, err
				}
				if _, err := p.expect(token.Colon); err != nil {
					return nil, err
				}
				valTok, err := p.expect(token.String)
				if err != nil {
					return nil, err
				}
				dec.Args[argName] = valTok.Str
				if p.check(token.Comma) {
					p.advance()
				}
			}
			p.advance() // consume ')'
		}
		out = append(out, dec)
	}
	return out, nil
}

func (p *parser) parseType() (programast.Type, error) {
	if p.check(token.LBracket) {
		p.advance()
		elem, err := p.parseType()
		if err != nil {
			return programast.Type{}, err
		}
		if _, err := p.expect(token.RBracket); err != nil {
			return programast.Type{}, err
		}
		return programast.ListOf(elem), nil
	}
	name, line, err := p.expectIdentifier()
	if err != nil {
		return programast.Type{}, err
	}
	switch name {
	case "i32":
		return programast.Primitive(programast.TypeI32), nil
	case "f64":
		return programast.Primitive(programast.TypeF64), nil
	case "bool":
		return programast.Primitive(programast.TypeBool), nil
	case "String", "string":
		return programast.Primitive(programast.TypeString), nil
	case "List":
		if _, err := p.expect(token.Lt); err != nil {
			return programast.Type{}, err
		}
		elem, err := p.parseType()
		if err != nil {
			return programast.Type{}, err
		}
		if _, err := p.expect(token.Gt); err != nil {
			return programast.Type{}, err
		}
		return programast.ListOf(elem), nil
	default:
		if name == "" {
			return programast.Type{}, newParseError(line, "expected type")
		}
		return programast.Named(name), nil
	}
}

func (p *parser) parseFunction() (*programast.FunctionDecl, error) {
	line := p.peek().Line
	if err := p.expectKeyword("fn"); err != nil {
		return nil, err
	}
	name, _, err := p.expectIdentifier()
	if err != nil {
		return nil, err
	}
	fn := &programast.FunctionDecl{Name: name, Line: line}
	if _, err := p.expect(token.LParen); err != nil {
		return nil, err
	}
	for !p.check(token.RParen) {
		pname, _, err := p.expectIdentifier()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.Colon); err != nil {
			return nil, err
		}
		ptype, err := p.parseType()
		if err != nil {
			return nil, err
		}
		fn.Params = append(fn.Params, programast.Param{Name: pname, Type: ptype})
		if p.check(token.Comma) {
			p.advance()
		}
	}
	p.advance() // consume ')'
	if p.check(token.Arrow) {
		p.advance()
		rt, err := p.parseType()
		if err != nil {
			return nil, err
		}
		fn.ReturnType = &rt
	}
	if p.check(token.Semicolon) {
		p.advance() // externally-resolved function: no body
		return fn, nil
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	fn.Body = body
	return fn, nil
}

func (p *parser) parseFields() ([]programast.Field, error) {
	var fields []programast.Field
	for !p.check(token.RBrace) {
		name, _, err := p.expectIdentifier()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.Colon); err != nil {
			return nil, err
		}
		ftype, err := p.parseType()
		if err != nil {
			return nil, err
		}
		fields = append(fields, programast.Field{Name: name, Type: ftype})
		if p.check(token.Comma) {
			p.advance()
		}
	}
	return fields, nil
}

func (p *parser) parseStruct() (*programast.StructDecl, error) {
	if err := p.expectKeyword("struct"); err != nil {
		return nil, err
	}
	name, _, err := p.expectIdentifier()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.LBrace); err != nil {
		return nil, err
	}
	fields, err := p.parseFields()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.RBrace); err != nil {
		return nil, err
	}
	return &programast.StructDecl{Name: name, Fields: fields}, nil
}

func (p *parser) parseTrait() (*programast.TraitDecl, error) {
	if err := p.expectKeyword("trait"); err != nil {
		return nil, err
	}
	name, _, err := p.expectIdentifier()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.LBrace); err != nil {
		return nil, err
	}
	var methods []programast.FunctionDecl
	for !p.check(token.RBrace) {
		fn, err := p.parseFunction()
		if err != nil {
			return nil, err
		}
		methods = append(methods, *fn)
	}
	p.advance()
	return &programast.TraitDecl{Name: name, Methods: methods}, nil
}

func (p *parser) parseImpl() (*programast.ImplDecl, error) {
	if err := p.expectKeyword("impl"); err != nil {
		return nil, err
	}
	first, _, err := p.expectIdentifier()
	if err != nil {
		return nil, err
	}
	impl := &programast.ImplDecl{StructName: first}
	if p.check(token.For) {
		p.advance()
		impl.TraitName = first
		name, _, err := p.expectIdentifier()
		if err != nil {
			return nil, err
		}
		impl.StructName = name
	}
	if _, err := p.expect(token.LBrace); err != nil {
		return nil, err
	}
	for !p.check(token.RBrace) {
		fn, err := p.parseFunction()
		if err != nil {
			return nil, err
		}
		impl.Methods = append(impl.Methods, *fn)
	}
	p.advance()
	return impl, nil
}

func (p *parser) parseConst() (*programast.ConstDecl, error) {
	if err := p.expectKeyword("const"); err != nil {
		return nil, err
	}
	name, _, err := p.expectIdentifier()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.Colon); err != nil {
		return nil, err
	}
	ctype, err := p.parseType()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.Assign); err != nil {
		return nil, err
	}
	val, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.Semicolon); err != nil {
		return nil, err
	}
	return &programast.ConstDecl{Name: name, Type: ctype, Value: val}, nil
}

// --- statements ---

func (p *parser) parseBlock() (*programast.BlockExpr, error) {
	if _, err := p.expect(token.LBrace); err != nil {
		return nil, err
	}
	block := &programast.BlockExpr{}
	for !p.check(token.RBrace) {
		if p.atEOF() {
			return nil, newParseError(p.peek().Line, "unterminated block")
		}
		stmt, final, err := p.parseBlockMember()
		if err != nil {
			return nil, err
		}
		if final != nil {
			block.FinalExpr = final
			break
		}
		block.Statements = append(block.Statements, *stmt)
	}
	if _, err := p.expect(token.RBrace); err != nil {
		return nil, err
	}
	return block, nil
}

// parseBlockMember parses one block member, returning either a Stmt or
// (when a trailing expression with no ';' is found at block end) a
// final expression.
func (p *parser) parseBlockMember() (*programast.Stmt, *programast.Expr, error) {
	line := p.peek().Line
	switch {
	case p.isKeyword("let"):
		stmt, err := p.parseLet()
		return stmt, nil, err
	case p.matchKeyword("return"):
		if p.check(token.Semicolon) {
			p.advance()
			return &programast.Stmt{Kind: programast.StmtReturn, Line: line}, nil, nil
		}
		val, err := p.parseExpr()
		if err != nil {
			return nil, nil, err
		}
		if _, err := p.expect(token.Semicolon); err != nil {
			return nil, nil, err
		}
		return &programast.Stmt{Kind: programast.StmtReturn, Line: line, Value: val}, nil, nil
	case p.check(token.While):
		stmt, err := p.parseWhile()
		return stmt, nil, err
	case p.check(token.For):
		stmt, err := p.parseFor()
		return stmt, nil, err
	}

	expr, err := p.parseExpr()
	if err != nil {
		return nil, nil, err
	}
	if p.check(token.Semicolon) {
		p.advance()
		return &programast.Stmt{Kind: programast.StmtExpr, Line: line, Value: expr}, nil, nil
	}
	// No trailing ';': this is the block's final expression only when
	// we're immediately followed by '}'; otherwise it is kept as an
	// expression statement and the caller's loop goes on parsing.
	if p.check(token.RBrace) {
		return nil, &expr, nil
	}
	return &programast.Stmt{Kind: programast.StmtExpr, Line: line, Value: expr}, nil, nil
}

func (p *parser) parseLet() (*programast.Stmt, error) {
	line := p.peek().Line
	if err := p.expectKeyword("let"); err != nil {
		return nil, err
	}
	mut := p.matchKeyword("mut")
	name, _, err := p.expectIdentifier()
	if err != nil {
		return nil, err
	}
	stmt := &programast.Stmt{Kind: programast.StmtLet, Line: line, Name: name, Mut: mut}
	if p.check(token.Colon) {
		p.advance()
		t, err := p.parseType()
		if err != nil {
			return nil, err
		}
		stmt.Annot = &t
	}
	if _, err := p.expect(token.Assign); err != nil {
		return nil, err
	}
	val, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	stmt.Value = val
	if _, err := p.expect(token.Semicolon); err != nil {
		return nil, err
	}
	return stmt, nil
}

func (p *parser) parseWhile() (*programast.Stmt, error) {
	line := p.peek().Line
	if _, err := p.expect(token.While); err != nil {
		return nil, err
	}
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &programast.Stmt{Kind: programast.StmtWhile, Line: line, Cond: &cond, Body: body}, nil
}

func (p *parser) parseFor() (*programast.Stmt, error) {
	line := p.peek().Line
	if _, err := p.expect(token.For); err != nil {
		return nil, err
	}
	name, _, err := p.expectIdentifier()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.In); err != nil {
		return nil, err
	}
	coll, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &programast.Stmt{Kind: programast.StmtFor, Line: line, Iterator: name, Collection: &coll, Body: body}, nil
}

// --- expressions: Pratt-style precedence climbing ---
//
// Tiers, low to high: assignment, equality, comparison, logical-or,
// logical-and, additive, multiplicative, unary, call, primary.

func (p *parser) parseExpr() (programast.Expr, error) {
	return p.parseAssignment()
}

// parseAssignment handles `lhs = rhs` as a right-associative expression
// one tier below equality: assignment is an expression yielding the rhs
// value with a side effect on the target.
func (p *parser) parseAssignment() (programast.Expr, error) {
	left, err := p.parseEquality()
	if err != nil {
		return programast.Expr{}, err
	}
	if p.check(token.Assign) {
		line := p.advance().Line
		right, err := p.parseAssignment()
		if err != nil {
			return programast.Expr{}, err
		}
		return programast.Expr{Kind: programast.ExprBinaryOp, Line: line, BinOp: programast.OpAssign, Left: &left, Right: &right}, nil
	}
	return left, nil
}

func (p *parser) parseEquality() (programast.Expr, error) {
	return p.parseBinaryTier(p.parseComparison, map[token.Kind]programast.BinaryOp{
		token.Eq: programast.OpEq, token.NotEq: programast.OpNeq,
	})
}

func (p *parser) parseComparison() (programast.Expr, error) {
	return p.parseBinaryTier(p.parseLogicalOr, map[token.Kind]programast.BinaryOp{
		token.Lt: programast.OpLt, token.LtEq: programast.OpLte,
		token.Gt: programast.OpGt, token.GtEq: programast.OpGte,
	})
}

func (p *parser) parseLogicalOr() (programast.Expr, error) {
	return p.parseBinaryTier(p.parseLogicalAnd, map[token.Kind]programast.BinaryOp{
		token.Or: programast.OpOr,
	})
}

func (p *parser) parseLogicalAnd() (programast.Expr, error) {
	return p.parseBinaryTier(p.parseAdditive, map[token.Kind]programast.BinaryOp{
		token.And: programast.OpAnd,
	})
}

func (p *parser) parseAdditive() (programast.Expr, error) {
	return p.parseBinaryTier(p.parseMultiplicative, map[token.Kind]programast.BinaryOp{
		token.Plus: programast.OpAdd, token.Minus: programast.OpSub,
	})
}

func (p *parser) parseMultiplicative() (programast.Expr, error) {
	return p.parseBinaryTier(p.parseUnary, map[token.Kind]programast.BinaryOp{
		token.Star: programast.OpMul, token.Slash: programast.OpDiv, token.Percent: programast.OpMod,
	})
}

// parseBinaryTier implements one left-associative precedence tier: parse
// one operand via next, then repeatedly consume a matching operator and
// another operand.
func (p *parser) parseBinaryTier(next func() (programast.Expr, error), ops map[token.Kind]programast.BinaryOp) (programast.Expr, error) {
	left, err := next()
	if err != nil {
		return programast.Expr{}, err
	}
	for {
		op, ok := ops[p.peek().Kind]
		if !ok {
			return left, nil
		}
		line := p.advance().Line
		right, err := next()
		if err != nil {
			return programast.Expr{}, err
		}
		left = programast.Expr{Kind: programast.ExprBinaryOp, Line: line, BinOp: op, Left: &left, Right: &right}
	}
}

func (p *parser) parseUnary() (programast.Expr, error) {
	line := p.peek().Line
	switch {
	case p.check(token.Minus):
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return programast.Expr{}, err
		}
		return programast.Expr{Kind: programast.ExprUnaryOp, Line: line, UnOp: programast.OpNeg, Operand: &operand}, nil
	case p.check(token.Not):
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return programast.Expr{}, err
		}
		return programast.Expr{Kind: programast.ExprUnaryOp, Line: line, UnOp: programast.OpNot, Operand: &operand}, nil
	case p.check(token.Ampersand):
		p.advance()
		op := programast.OpRef
		if p.matchKeyword("mut") {
			op = programast.OpRefMut
		}
		operand, err := p.parseUnary()
		if err != nil {
			return programast.Expr{}, err
		}
		return programast.Expr{Kind: programast.ExprUnaryOp, Line: line, UnOp: op, Operand: &operand}, nil
	}
	return p.parseCallOrDot()
}

// parseCallOrDot handles left-associative postfix call, index, and dot
// access applied to a primary expression.
func (p *parser) parseCallOrDot() (programast.Expr, error) {
	expr, err := p.parsePrimary()
	if err != nil {
		return programast.Expr{}, err
	}
	for {
		switch {
		case p.check(token.LParen):
			line := p.advance().Line
			var args []programast.Expr
			for !p.check(token.RParen) {
				arg, err := p.parseExpr()
				if err != nil {
					return programast.Expr{}, err
				}
				args = append(args, arg)
				if p.check(token.Comma) {
					p.advance()
				}
			}
			p.advance() // consume ')'
			callee := expr
			expr = programast.Expr{Kind: programast.ExprCall, Line: line, Callee: &callee, Args: args}
		case p.check(token.LBracket):
			line := p.advance().Line
			idx, err := p.parseExpr()
			if err != nil {
				return programast.Expr{}, err
			}
			if _, err := p.expect(token.RBracket); err != nil {
				return programast.Expr{}, err
			}
			arr := expr
			expr = programast.Expr{Kind: programast.ExprIndex, Line: line, Array: &arr, Idx: &idx}
		case p.check(token.Dot):
			line := p.advance().Line
			field, _, err := p.expectIdentifier()
			if err != nil {
				return programast.Expr{}, err
			}
			left := expr
			right := programast.Expr{Kind: programast.ExprIdentifier, Line: line, Name: field}
			expr = programast.Expr{Kind: programast.ExprBinaryOp, Line: line, BinOp: programast.OpDot, Left: &left, Right: &right}
		default:
			return expr, nil
		}
	}
}

func (p *parser) parsePrimary() (programast.Expr, error) {
	t := p.peek()
	switch {
	case t.Kind == token.Number:
		p.advance()
		if isIntLexeme(t.Lexeme) {
			return programast.Expr{Kind: programast.ExprLiteral, Line: t.Line, LitKind: programast.LitInt, Int: int64(t.Number)}, nil
		}
		return programast.Expr{Kind: programast.ExprLiteral, Line: t.Line, LitKind: programast.LitFloat, Float: t.Number}, nil
	case t.Kind == token.String:
		p.advance()
		return programast.Expr{Kind: programast.ExprLiteral, Line: t.Line, LitKind: programast.LitString, Str: t.Str}, nil
	case p.isKeyword("true"):
		p.advance()
		return programast.Expr{Kind: programast.ExprLiteral, Line: t.Line, LitKind: programast.LitBool, Bool: true}, nil
	case p.isKeyword("false"):
		p.advance()
		return programast.Expr{Kind: programast.ExprLiteral, Line: t.Line, LitKind: programast.LitBool, Bool: false}, nil
	case t.Kind == token.If:
		return p.parseIfExpr()
	case t.Kind == token.Match:
		return p.parseMatchExpr()
	case t.Kind == token.Pipe:
		return p.parseLambda()
	case t.Kind == token.LBrace:
		block, err := p.parseBlock()
		if err != nil {
			return programast.Expr{}, err
		}
		return programast.Expr{Kind: programast.ExprBlock, Line: t.Line, Block: block}, nil
	case t.Kind == token.LBracket:
		return p.parseArrayLiteral()
	case t.Kind == token.LParen:
		p.advance()
		inner, err := p.parseExpr()
		if err != nil {
			return programast.Expr{}, err
		}
		if _, err := p.expect(token.RParen); err != nil {
			return programast.Expr{}, err
		}
		return inner, nil
	case t.Kind == token.Identifier:
		return p.parseIdentifierOrStructInit()
	}
	return programast.Expr{}, newParseError(t.Line, "expected expression, found %s %q at line %d", t.Kind, t.Lexeme, t.Line)
}

func isIntLexeme(lexeme string) bool {
	for _, c := range lexeme {
		if c == '.' {
			return false
		}
		if c < '0' || c > '9' {
			return true
		}
	}
	return true
}

func (p *parser) parseIdentifierOrStructInit() (programast.Expr, error) {
	name, line, err := p.expectIdentifier()
	if err != nil {
		return programast.Expr{}, err
	}
	if p.check(token.LBrace) && startsFieldInit(p, 1) {
		p.advance()
		var fields []programast.FieldInit
		for !p.check(token.RBrace) {
			fname, _, err := p.expectIdentifier()
			if err != nil {
				return programast.Expr{}, err
			}
			if _, err := p.expect(token.Colon); err != nil {
				return programast.Expr{}, err
			}
			val, err := p.parseExpr()
			if err != nil {
				return programast.Expr{}, err
			}
			fields = append(fields, programast.FieldInit{Name: fname, Value: val})
			if p.check(token.Comma) {
				p.advance()
			}
		}
		p.advance() // consume '}'
		return programast.Expr{Kind: programast.ExprStructInit, Line: line, StructName: name, Fields: fields}, nil
	}
	return programast.Expr{Kind: programast.ExprIdentifier, Line: line, Name: name}, nil
}

// startsFieldInit disambiguates `Name { field: value }` struct-init
// syntax from an identifier immediately followed by a standalone block
// (e.g. the condition identifier in `if cond { ... }`): it looks ahead
// for `identifier :` immediately inside the brace.
func startsFieldInit(p *parser, offset int) bool {
	return p.peekAt(offset).Kind == token.Identifier && p.peekAt(offset+1).Kind == token.Colon
}

func (p *parser) parseArrayLiteral() (programast.Expr, error) {
	line := p.peek().Line
	p.advance() // consume '['
	elems := []programast.Expr{}
	for !p.check(token.RBracket) {
		e, err := p.parseExpr()
		if err != nil {
			return programast.Expr{}, err
		}
		elems = append(elems, e)
		if p.check(token.Comma) {
			p.advance()
		}
	}
	p.advance() // consume ']'
	return programast.Expr{Kind: programast.ExprArray, Line: line, Elements: elems}, nil
}

func (p *parser) parseLambda() (programast.Expr, error) {
	line := p.peek().Line
	p.advance() // consume opening '|'
	var params []string
	for !p.check(token.Pipe) {
		name, _, err := p.expectIdentifier()
		if err != nil {
			return programast.Expr{}, err
		}
		params = append(params, name)
		if p.check(token.Comma) {
			p.advance()
		}
	}
	p.advance() // consume closing '|'
	body, err := p.parseExpr()
	if err != nil {
		return programast.Expr{}, err
	}
	return programast.Expr{Kind: programast.ExprLambda, Line: line, Params: params, Body: &body}, nil
}

func (p *parser) parseIfExpr() (programast.Expr, error) {
	line := p.peek().Line
	p.advance() // consume 'if'
	cond, err := p.parseExpr()
	if err != nil {
		return programast.Expr{}, err
	}
	then, err := p.parseBlock()
	if err != nil {
		return programast.Expr{}, err
	}
	expr := programast.Expr{Kind: programast.ExprIf, Line: line, Cond: &cond, Then: then}
	if p.matchKeyword("else") {
		if p.check(token.If) {
			elseExpr, err := p.parseIfExpr()
			if err != nil {
				return programast.Expr{}, err
			}
			expr.Else = &elseExpr
		} else {
			elseLine := p.peek().Line
			block, err := p.parseBlock()
			if err != nil {
				return programast.Expr{}, err
			}
			elseExpr := programast.Expr{Kind: programast.ExprBlock, Line: elseLine, Block: block}
			expr.Else = &elseExpr
		}
	}
	return expr, nil
}

func (p *parser) parseMatchExpr() (programast.Expr, error) {
	line := p.peek().Line
	p.advance() // consume 'match'
	scrutinee, err := p.parseExpr()
	if err != nil {
		return programast.Expr{}, err
	}
	if _, err := p.expect(token.LBrace); err != nil {
		return programast.Expr{}, err
	}
	var arms []programast.MatchArm
	for !p.check(token.RBrace) {
		pat, err := p.parsePattern()
		if err != nil {
			return programast.Expr{}, err
		}
		arm := programast.MatchArm{Pattern: pat}
		if p.check(token.If) {
			p.advance()
			guard, err := p.parseExpr()
			if err != nil {
				return programast.Expr{}, err
			}
			arm.Guard = &guard
		}
		if _, err := p.expect(token.FatArrow); err != nil {
			return programast.Expr{}, err
		}
		body, err := p.parseExpr()
		if err != nil {
			return programast.Expr{}, err
		}
		arm.Body = body
		arms = append(arms, arm)
		if p.check(token.Comma) {
			p.advance()
		}
	}
	p.advance() // consume '}'
	return programast.Expr{Kind: programast.ExprMatch, Line: line, Scrutinee: &scrutinee, Arms: arms}, nil
}

func (p *parser) parsePattern() (programast.Pattern, error) {
	t := p.peek()
	switch {
	case t.Kind == token.Identifier && t.Lexeme == "_":
		p.advance()
		return programast.Pattern{Kind: programast.PatWildcard}, nil
	case t.Kind == token.Number || t.Kind == token.String || p.isKeyword("true") || p.isKeyword("false"):
		lit, err := p.parsePrimary()
		if err != nil {
			return programast.Pattern{}, err
		}
		return programast.Pattern{Kind: programast.PatLiteral, Literal: &lit}, nil
	case t.Kind == token.LParen:
		p.advance()
		var elems []programast.Pattern
		for !p.check(token.RParen) {
			elem, err := p.parsePattern()
			if err != nil {
				return programast.Pattern{}, err
			}
			elems = append(elems, elem)
			if p.check(token.Comma) {
				p.advance()
			}
		}
		p.advance()
		return programast.Pattern{Kind: programast.PatTuple, Elements: elems}, nil
	case t.Kind == token.Identifier:
		p.advance()
		return programast.Pattern{Kind: programast.PatIdentifier, Name: t.Lexeme}, nil
	}
	return programast.Pattern{}, newParseError(t.Line, "expected pattern, found %q at line %d", t.Lexeme, t.Line)
}

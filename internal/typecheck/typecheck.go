// SPDX-License-Identifier: Apache-2.0

// Package typecheck implements the two-pass Program type checker:
// function/struct signatures are registered first, then each const is
// checked and registered in source order, then each function body is
// checked with its parameters in scope, and finally the unifier drains
// its constraint worklist. Ownership-mode
// modules additionally run the borrow tracker.
package typecheck

import (
	"fmt"
	"strings"

	"github.com/samber/oops"

	"github.com/omnilang/omnilang/internal/programast"
	"github.com/omnilang/omnilang/internal/typesys"
)

// TypeError collects every diagnostic produced while checking a module.
// Checking does not stop at the first error so that a single run reports
// as much as possible.
type TypeError struct {
	Messages []string
	cause error
}

func (e *TypeError) Error() string { return strings.Join(e.Messages, "; ") }
func (e *TypeError) Unwrap() error { return e.cause }

func newTypeError(messages []string) *TypeError {
	cause := oops.Code("TYPE_CHECK_ERROR").With("count", len(messages)).Errorf("%s", strings.Join(messages, "; "))
	return &TypeError{Messages: messages, cause: cause}
}

// StructInfo records a struct's field table for `.` access and struct-init
// checking.
type StructInfo struct {
	Fields map[string]typesys.Type
	Order []string
}

// Checker holds the accumulated state of one check_program run.
type Checker struct {
	globals *typesys.Environment
	structs map[string]StructInfo
	unifier *typesys.Unifier
	errors []string
	inOwnership bool
	borrowTracker *borrowTracker
}

// New creates a Checker with an empty global scope.
func New() *Checker {
	return &Checker{
		globals: typesys.NewEnvironment(),
		structs: map[string]StructInfo{},
		unifier: typesys.NewUnifier(),
	}
}

// CheckProgram runs both passes over every module in prog, then unifies
// all recorded constraints. It returns a TypeError naming every
// accumulated diagnostic, or nil if the program is well-typed.
func CheckProgram(prog *programast.Program) error {
	c := New()
	for _, mod := range prog.Modules {
		c.checkModule(&mod)
	}
	if err := c.unifier.Unify(); err != nil {
		c.errors = append(c.errors, err.Error())
	}
	if len(c.errors) > 0 {
		return newTypeError(c.errors)
	}
	return nil
}

func (c *Checker) checkModule(mod *programast.Module) {
	c.inOwnership = mod.IsOwnership()
	c.borrowTracker = newBorrowTracker()

	for _, item := range mod.Items {
		switch {
		case item.Function != nil:
			c.registerFunction(item.Function)
		case item.Struct != nil:
			c.registerStruct(item.Struct)
		}
	}
	for _, item := range mod.Items {
		if item.Const != nil {
			c.checkConst(item.Const)
		}
	}
	for _, item := range mod.Items {
		if item.Function != nil && item.Function.Body != nil {
			c.checkFunctionBody(item.Function)
		}
	}
}

func (c *Checker) errorf(format string, args ...any) {
	c.errors = append(c.errors, fmt.Sprintf(format, args...))
}

func (c *Checker) registerFunction(fn *programast.FunctionDecl) {
	params := make([]typesys.Type, len(fn.Params))
	for i, p := range fn.Params {
		params[i] = surfaceType(p.Type)
	}
	ret := typesys.Type{Kind: typesys.Unit}
	if fn.ReturnType != nil {
		ret = surfaceType(*fn.ReturnType)
	}
	sym := typesys.Symbol{Name: fn.Name, Type: typesys.FuncType(params, ret)}
	if err := c.globals.Insert(sym); err != nil {
		c.errorf("%s", err)
	}
}

func (c *Checker) registerStruct(s *programast.StructDecl) {
	info := StructInfo{Fields: map[string]typesys.Type{}}
	for _, f := range s.Fields {
		info.Fields[f.Name] = surfaceType(f.Type)
		info.Order = append(info.Order, f.Name)
	}
	c.structs[s.Name] = info
}

func (c *Checker) checkConst(decl *programast.ConstDecl) {
	env := c.globals.EnterScope()
	valType := c.checkExpr(decl.Value, env)
	annot := surfaceType(decl.Type)
	if !typesys.Equal(annot, valType) {
		c.errorf("type mismatch for const %q: expected %s, found %s", decl.Name, annot, valType)
	}
	if err := c.globals.Insert(typesys.Symbol{Name: decl.Name, Type: annot}); err != nil {
		c.errorf("%s", err)
	}
}

func (c *Checker) checkFunctionBody(fn *programast.FunctionDecl) {
	env := c.globals.EnterScope()
	for _, p := range fn.Params {
		pt := surfaceType(p.Type)
		if err := env.Insert(typesys.Symbol{Name: p.Name, Type: pt, Mutable: true}); err != nil {
			c.errorf("%s", err)
		}
		c.borrowTracker.declare(p.Name)
	}

	bodyType := c.checkBlock(fn.Body, env)

	expected := typesys.Type{Kind: typesys.Unit}
	if fn.ReturnType != nil {
		expected = surfaceType(*fn.ReturnType)
	}
	if bodyType.Kind != typesys.Divergent && !typesys.Equal(expected, bodyType) {
		c.errorf("mismatched return type for function %q: expected %s, found %s", fn.Name, expected, bodyType)
	}
}

func (c *Checker) checkBlock(block *programast.BlockExpr, env *typesys.Environment) typesys.Type {
	blockEnv := env.EnterScope()
	for _, stmt := range block.Statements {
		c.checkStatement(stmt, blockEnv)
	}
	if block.FinalExpr != nil {
		return c.checkExpr(*block.FinalExpr, blockEnv)
	}
	return typesys.Type{Kind: typesys.Unit}
}

func (c *Checker) checkStatement(stmt programast.Stmt, env *typesys.Environment) {
	switch stmt.Kind {
	case programast.StmtLet:
		c.checkLet(stmt, env)
	case programast.StmtExpr:
		c.checkExpr(stmt.Value, env)
	case programast.StmtReturn:
		// Only the returned expression itself is checked; its type is not
		// compared with the function's declared return type.
		c.checkExpr(stmt.Value, env)
	case programast.StmtWhile:
		condType := c.checkExpr(*stmt.Cond, env)
		if condType.Kind != typesys.Bool {
			c.errorf("while condition must be boolean, found %s", condType)
		}
		c.checkBlock(stmt.Body, env)
	case programast.StmtFor:
		collType := c.checkExpr(*stmt.Collection, env)
		loopEnv := env.EnterScope()
		elemType := typesys.Type{Kind: typesys.Unknown}
		if collType.Kind == typesys.List {
			elemType = *collType.Elem
		}
		if err := loopEnv.Insert(typesys.Symbol{Name: stmt.Iterator, Type: elemType}); err != nil {
			c.errorf("%s", err)
		}
		c.borrowTracker.declare(stmt.Iterator)
		c.checkBlock(stmt.Body, loopEnv)
	}
}

func (c *Checker) checkLet(stmt programast.Stmt, env *typesys.Environment) {
	valType := c.checkExpr(stmt.Value, env)
	if stmt.Annot != nil {
		annot := surfaceType(*stmt.Annot)
		if !typesys.Equal(annot, valType) {
			c.errorf("type mismatch for variable %q: expected %s, found %s", stmt.Name, annot, valType)
		}
	}
	if err := env.Insert(typesys.Symbol{Name: stmt.Name, Type: valType, Mutable: stmt.Mut}); err != nil {
		c.errorf("%s", err)
	}
	c.borrowTracker.declare(stmt.Name)

	if c.inOwnership && !valType.IsCopy() && stmt.Value.Kind == programast.ExprIdentifier {
		if err := c.borrowTracker.move(stmt.Value.Name); err != nil {
			c.errorf("%s", err)
		}
	}
}

func (c *Checker) checkExpr(expr programast.Expr, env *typesys.Environment) typesys.Type {
	switch expr.Kind {
	case programast.ExprLiteral:
		return literalType(expr)
	case programast.ExprIdentifier:
		return c.checkIdentifier(expr, env)
	case programast.ExprBinaryOp:
		return c.checkBinaryOp(expr, env)
	case programast.ExprUnaryOp:
		return c.checkUnaryOp(expr, env)
	case programast.ExprCall:
		return c.checkCall(expr, env)
	case programast.ExprBlock:
		return c.checkBlock(expr.Block, env)
	case programast.ExprIf:
		return c.checkIf(expr, env)
	case programast.ExprMatch:
		return c.checkMatch(expr, env)
	case programast.ExprLambda:
		return c.checkLambda(expr, env)
	case programast.ExprArray:
		return c.checkArray(expr, env)
	case programast.ExprIndex:
		return c.checkIndex(expr, env)
	case programast.ExprStructInit:
		return c.checkStructInit(expr, env)
	}
	c.errorf("unsupported expression kind %d", expr.Kind)
	return typesys.Type{Kind: typesys.Unknown}
}

func literalType(expr programast.Expr) typesys.Type {
	switch expr.LitKind {
	case programast.LitInt:
		return typesys.Type{Kind: typesys.I32}
	case programast.LitFloat:
		return typesys.Type{Kind: typesys.F64}
	case programast.LitBool:
		return typesys.Type{Kind: typesys.Bool}
	default:
		return typesys.Type{Kind: typesys.String}
	}
}

func (c *Checker) checkIdentifier(expr programast.Expr, env *typesys.Environment) typesys.Type {
	if c.inOwnership {
		if state, ok := c.borrowTracker.state(expr.Name); ok && state == typesys.Moved {
			c.errorf("use of moved value %q", expr.Name)
			return typesys.Type{Kind: typesys.Unknown}
		}
	}
	if sym, ok := env.Lookup(expr.Name); ok {
		return sym.Type
	}
	c.errorf("undefined variable %q", expr.Name)
	return typesys.Type{Kind: typesys.Unknown}
}

func (c *Checker) checkBinaryOp(expr programast.Expr, env *typesys.Environment) typesys.Type {
	if expr.BinOp == programast.OpDot {
		return c.checkDot(expr, env)
	}
	left := c.checkExpr(*expr.Left, env)
	right := c.checkExpr(*expr.Right, env)

	switch expr.BinOp {
	case programast.OpAssign:
		if c.inOwnership && !right.IsCopy() && expr.Right.Kind == programast.ExprIdentifier {
			if err := c.borrowTracker.move(expr.Right.Name); err != nil {
				c.errorf("%s", err)
			}
		}
		return right
	case programast.OpAdd:
		if left.Kind == typesys.String || right.Kind == typesys.String {
			return typesys.Type{Kind: typesys.String}
		}
		if left.Kind == typesys.List && right.Kind == typesys.List {
			c.unifier.AddConstraint(*left.Elem, *right.Elem)
			return left
		}
		return c.checkNumericPair(left, right, expr.BinOp)
	case programast.OpSub, programast.OpMul, programast.OpDiv, programast.OpMod:
		return c.checkNumericPair(left, right, expr.BinOp)
	case programast.OpAnd, programast.OpOr:
		if left.Kind != typesys.Bool || right.Kind != typesys.Bool {
			c.errorf("%s requires boolean operands, found %s and %s", binOpSymbol(expr.BinOp), left, right)
		}
		return typesys.Type{Kind: typesys.Bool}
	case programast.OpEq, programast.OpNeq, programast.OpLt, programast.OpGt, programast.OpLte, programast.OpGte:
		c.unifier.AddConstraint(left, right)
		return typesys.Type{Kind: typesys.Bool}
	}
	return typesys.Type{Kind: typesys.Unknown}
}

func (c *Checker) checkNumericPair(left, right typesys.Type, op programast.BinaryOp) typesys.Type {
	switch {
	case left.Kind == typesys.InferenceVar || right.Kind == typesys.InferenceVar:
		c.unifier.AddConstraint(left, right)
		if left.Kind == typesys.InferenceVar {
			return right
		}
		return left
	case left.Kind == typesys.I32 && right.Kind == typesys.I32:
		return left
	case left.Kind == typesys.F64 && right.Kind == typesys.F64:
		return left
	case (left.Kind == typesys.I32 || left.Kind == typesys.F64) && (right.Kind == typesys.I32 || right.Kind == typesys.F64):
		return typesys.Type{Kind: typesys.F64} // implicit widening
	default:
		c.errorf("type mismatch in binary operation: %s %s %s", left, binOpSymbol(op), right)
		return typesys.Type{Kind: typesys.Unknown}
	}
}

func binOpSymbol(op programast.BinaryOp) string {
	switch op {
	case programast.OpAdd:
		return "+"
	case programast.OpSub:
		return "-"
	case programast.OpMul:
		return "*"
	case programast.OpDiv:
		return "/"
	case programast.OpMod:
		return "%"
	case programast.OpAnd:
		return "&&"
	case programast.OpOr:
		return "||"
	default:
		return "?"
	}
}

func (c *Checker) checkDot(expr programast.Expr, env *typesys.Environment) typesys.Type {
	leftType := c.checkExpr(*expr.Left, env)
	if leftType.Kind != typesys.Named {
		c.errorf("cannot access field %q on non-struct type %s", expr.Right.Name, leftType)
		return typesys.Type{Kind: typesys.Unknown}
	}
	info, ok := c.structs[leftType.Name]
	if !ok {
		c.errorf("unknown struct type %q", leftType.Name)
		return typesys.Type{Kind: typesys.Unknown}
	}
	fieldType, ok := info.Fields[expr.Right.Name]
	if !ok {
		c.errorf("struct %q has no field %q", leftType.Name, expr.Right.Name)
		return typesys.Type{Kind: typesys.Unknown}
	}
	return fieldType
}

func (c *Checker) checkUnaryOp(expr programast.Expr, env *typesys.Environment) typesys.Type {
	operandType := c.checkExpr(*expr.Operand, env)
	switch expr.UnOp {
	case programast.OpRef:
		if c.inOwnership && expr.Operand.Kind == programast.ExprIdentifier {
			if err := c.borrowTracker.borrow(expr.Operand.Name, false); err != nil {
				c.errorf("%s", err)
			}
		}
		return typesys.RefType(operandType, false)
	case programast.OpRefMut:
		if c.inOwnership && expr.Operand.Kind == programast.ExprIdentifier {
			if err := c.borrowTracker.borrow(expr.Operand.Name, true); err != nil {
				c.errorf("%s", err)
			}
		}
		return typesys.RefType(operandType, true)
	case programast.OpNot:
		if operandType.Kind != typesys.Bool {
			c.errorf("! requires a boolean operand, found %s", operandType)
		}
		return typesys.Type{Kind: typesys.Bool}
	default: // OpNeg
		return operandType
	}
}

func (c *Checker) checkIf(expr programast.Expr, env *typesys.Environment) typesys.Type {
	condType := c.checkExpr(*expr.Cond, env)
	if condType.Kind != typesys.Bool {
		c.errorf("if condition must be boolean, found %s", condType)
	}
	thenType := c.checkBlock(expr.Then, env)
	elseType := typesys.Type{Kind: typesys.Unit}
	if expr.Else != nil {
		elseType = c.checkExpr(*expr.Else, env)
	}
	switch {
	case thenType.Kind == typesys.Divergent:
		return elseType
	case elseType.Kind == typesys.Divergent:
		return thenType
	case !typesys.Equal(thenType, elseType):
		c.errorf("if branches have mismatched types: then is %s, else is %s", thenType, elseType)
		return typesys.Type{Kind: typesys.Unknown}
	default:
		return thenType
	}
}

func (c *Checker) checkMatch(expr programast.Expr, env *typesys.Environment) typesys.Type {
	scrutType := c.checkExpr(*expr.Scrutinee, env)

	var armTypes []typesys.Type
	for _, arm := range expr.Arms {
		armEnv := env.EnterScope()
		c.checkPattern(arm.Pattern, scrutType, armEnv)
		if arm.Guard != nil {
			guardType := c.checkExpr(*arm.Guard, armEnv)
			if guardType.Kind != typesys.Bool {
				c.errorf("match guard must be boolean, found %s", guardType)
			}
		}
		armTypes = append(armTypes, c.checkExpr(arm.Body, armEnv))
	}
	if len(armTypes) == 0 {
		return typesys.Type{Kind: typesys.Unit}
	}
	first := armTypes[0]
	for _, t := range armTypes[1:] {
		if !typesys.Equal(t, first) {
			c.errorf("match arms have mismatched types: expected %s, found %s", first, t)
		}
	}
	return first
}

func (c *Checker) checkPattern(pat programast.Pattern, expected typesys.Type, env *typesys.Environment) {
	switch pat.Kind {
	case programast.PatWildcard:
	case programast.PatLiteral:
		litType := literalType(*pat.Literal)
		if !typesys.Equal(litType, expected) {
			c.errorf("pattern literal type mismatch: expected %s, found %s", expected, litType)
		}
	case programast.PatIdentifier:
		if err := env.Insert(typesys.Symbol{Name: pat.Name, Type: expected}); err != nil {
			c.errorf("%s", err)
		}
		c.borrowTracker.declare(pat.Name)
	case programast.PatTuple:
		if expected.Kind == typesys.Tuple && len(expected.Elems) == len(pat.Elements) {
			for i, sub := range pat.Elements {
				c.checkPattern(sub, expected.Elems[i], env)
			}
		}
	}
}

func (c *Checker) checkLambda(expr programast.Expr, env *typesys.Environment) typesys.Type {
	lambdaEnv := env.EnterScope()
	params := make([]typesys.Type, len(expr.Params))
	for i, name := range expr.Params {
		pt := c.unifier.Fresh()
		params[i] = pt
		if err := lambdaEnv.Insert(typesys.Symbol{Name: name, Type: pt}); err != nil {
			c.errorf("%s", err)
		}
		c.borrowTracker.declare(name)
	}
	ret := c.checkExpr(*expr.Body, lambdaEnv)
	return typesys.FuncType(params, ret)
}

func (c *Checker) checkArray(expr programast.Expr, env *typesys.Environment) typesys.Type {
	if len(expr.Elements) == 0 {
		return typesys.ListType(typesys.Type{Kind: typesys.Unknown})
	}
	first := c.checkExpr(expr.Elements[0], env)
	for _, elem := range expr.Elements[1:] {
		elemType := c.checkExpr(elem, env)
		if !typesys.Equal(elemType, first) {
			c.errorf("array elements must have the same type: expected %s, found %s", first, elemType)
		}
	}
	return typesys.ListType(first)
}

func (c *Checker) checkIndex(expr programast.Expr, env *typesys.Environment) typesys.Type {
	arrType := c.checkExpr(*expr.Array, env)
	idxType := c.checkExpr(*expr.Idx, env)
	if idxType.Kind != typesys.I32 {
		c.errorf("index must be i32, found %s", idxType)
	}
	if arrType.Kind != typesys.List {
		c.errorf("cannot index non-list type %s", arrType)
		return typesys.Type{Kind: typesys.Unknown}
	}
	return *arrType.Elem
}

func (c *Checker) checkStructInit(expr programast.Expr, env *typesys.Environment) typesys.Type {
	info, ok := c.structs[expr.StructName]
	if !ok {
		c.errorf("unknown struct type %q", expr.StructName)
		return typesys.Type{Kind: typesys.Unknown}
	}
	seen := map[string]bool{}
	for _, f := range expr.Fields {
		seen[f.Name] = true
		fieldType, ok := info.Fields[f.Name]
		if !ok {
			c.errorf("struct %q has no field %q", expr.StructName, f.Name)
			continue
		}
		valType := c.checkExpr(f.Value, env)
		c.unifier.AddConstraint(fieldType, valType)
	}
	for _, name := range info.Order {
		if !seen[name] {
			c.errorf("struct %q initializer missing field %q", expr.StructName, name)
		}
	}
	return typesys.NamedType(expr.StructName)
}

// higherOrderArity lists the builtins checked ahead of ordinary call-site
// checking, with their arity (-1: any number of arguments).
var higherOrderArity = map[string]int{
	"print": -1, "assert": 1, "assert_eq": 2,
	"map": 2, "filter": 2, "reduce": 3,
}

func (c *Checker) checkCall(expr programast.Expr, env *typesys.Environment) typesys.Type {
	if expr.Callee.Kind == programast.ExprIdentifier {
		if t, handled := c.checkBuiltinCall(expr, env); handled {
			return t
		}
	}

	calleeType := c.checkExpr(*expr.Callee, env)
	if calleeType.Kind != typesys.Function {
		c.errorf("cannot call non-function type %s", calleeType)
		return typesys.Type{Kind: typesys.Unknown}
	}
	if len(expr.Args) != len(calleeType.Params) {
		c.errorf("incorrect number of arguments: expected %d, found %d", len(calleeType.Params), len(expr.Args))
		return *calleeType.Return
	}
	for i, arg := range expr.Args {
		argType := c.checkExpr(arg, env)
		c.unifier.AddConstraint(argType, calleeType.Params[i])
		if c.inOwnership && !argType.IsCopy() && arg.Kind == programast.ExprIdentifier {
			if err := c.borrowTracker.move(arg.Name); err != nil {
				c.errorf("%s", err)
			}
		}
	}
	return *calleeType.Return
}

// checkBuiltinCall special-cases print/assert/assert_eq and the
// higher-order map/filter/reduce built-ins. handled is
// false when name isn't one of these, letting the caller fall through to
// ordinary user-defined call checking.
func (c *Checker) checkBuiltinCall(expr programast.Expr, env *typesys.Environment) (typesys.Type, bool) {
	name := expr.Callee.Name
	arity, known := higherOrderArity[name]
	if !known {
		return typesys.Type{}, false
	}
	if arity >= 0 && len(expr.Args) != arity {
		c.errorf("%s expects %d arg(s), found %d", name, arity, len(expr.Args))
		return typesys.Type{Kind: typesys.Unknown}, true
	}

	switch name {
	case "print":
		for _, a := range expr.Args {
			c.checkExpr(a, env)
		}
		return typesys.Type{Kind: typesys.Unit}, true
	case "assert":
		t := c.checkExpr(expr.Args[0], env)
		c.unifier.AddConstraint(t, typesys.Type{Kind: typesys.Bool})
		return typesys.Type{Kind: typesys.Unit}, true
	case "assert_eq":
		t1 := c.checkExpr(expr.Args[0], env)
		t2 := c.checkExpr(expr.Args[1], env)
		c.unifier.AddConstraint(t1, t2)
		return typesys.Type{Kind: typesys.Unit}, true
	case "map":
		listType := c.checkExpr(expr.Args[0], env)
		funcType := c.checkExpr(expr.Args[1], env)
		item := c.unifier.Fresh()
		result := c.unifier.Fresh()
		c.unifier.AddConstraint(listType, typesys.ListType(item))
		c.unifier.AddConstraint(funcType, typesys.FuncType([]typesys.Type{item}, result))
		return typesys.ListType(result), true
	case "filter":
		listType := c.checkExpr(expr.Args[0], env)
		funcType := c.checkExpr(expr.Args[1], env)
		item := c.unifier.Fresh()
		c.unifier.AddConstraint(listType, typesys.ListType(item))
		c.unifier.AddConstraint(funcType, typesys.FuncType([]typesys.Type{item}, typesys.Type{Kind: typesys.Bool}))
		return typesys.ListType(item), true
	case "reduce":
		listType := c.checkExpr(expr.Args[0], env)
		funcType := c.checkExpr(expr.Args[1], env)
		accType := c.checkExpr(expr.Args[2], env)
		item := c.unifier.Fresh()
		c.unifier.AddConstraint(listType, typesys.ListType(item))
		c.unifier.AddConstraint(funcType, typesys.FuncType([]typesys.Type{accType, item}, accType))
		return accType, true
	}
	return typesys.Type{}, false
}

// surfaceType converts a parsed programast.Type to its internal
// typesys.Type, resolving List element types recursively.
func surfaceType(t programast.Type) typesys.Type {
	switch t.Kind {
	case programast.TypeI32:
		return typesys.Type{Kind: typesys.I32}
	case programast.TypeF64:
		return typesys.Type{Kind: typesys.F64}
	case programast.TypeBool:
		return typesys.Type{Kind: typesys.Bool}
	case programast.TypeString:
		return typesys.Type{Kind: typesys.String}
	case programast.TypeList:
		elem := surfaceType(*t.Elem)
		return typesys.ListType(elem)
	default:
		return typesys.NamedType(t.Name)
	}
}

// Package parse implements the recursive-descent declaration/statement
// parser and the Pratt-style precedence-climbing expression parser.
//
// A single struct holds the token stream position plus one-token
// lookahead, with per-precedence-level grouping replaced by a dense,
// array-indexed OpPrec table so that binexpr(ptp) can climb precedence
// without a chain of per-level methods. Declarations, struct/union/enum/
// typedef, sizeof, casts, array declarators, and the for-loop
// desugaring round out the surface a C-subset front end needs.
package parse

import (
	"fmt"

	"github.com/cwj-lang/cwj/internal/ast"
	"github.com/cwj-lang/cwj/internal/diag"
	"github.com/cwj-lang/cwj/internal/scan"
	"github.com/cwj-lang/cwj/internal/sym"
	"github.com/cwj-lang/cwj/internal/token"
	"github.com/cwj-lang/cwj/internal/types"
)

// opPrec is indexed directly by token.Kind; entries left at zero are
// not binary operators and stop binexpr's climb.
var opPrec = [...]int{
	token.ASSIGN:  5,
	token.ASPLUS:  5,
	token.ASMINUS: 5,
	token.ASSTAR:  5,
	token.ASSLASH: 5,
	token.QUESTION: 10,
	token.LOGOR:   15,
	token.LOGAND:  20,
	token.OR:      25,
	token.XOR:     30,
	token.AMPER:   35,
	token.EQ:      40,
	token.NE:      40,
	token.LT:      45,
	token.GT:      45,
	token.LE:      45,
	token.GE:      45,
	token.LSHIFT:  50,
	token.RSHIFT:  50,
	token.PLUS:    55,
	token.MINUS:   55,
	token.STAR:    60,
	token.SLASH:   60,
}

func precOf(k token.Kind) int {
	if int(k) < len(opPrec) {
		return opPrec[k]
	}
	return 0
}

var binOps = map[token.Kind]ast.BinOp{
	token.PLUS: ast.ADD, token.MINUS: ast.SUBTRACT,
	token.STAR: ast.MULTIPLY, token.SLASH: ast.DIVIDE,
	token.OR: ast.OR, token.XOR: ast.XOR, token.AMPER: ast.AND,
	token.EQ: ast.EQ, token.NE: ast.NE,
	token.LT: ast.LT, token.GT: ast.GT, token.LE: ast.LE, token.GE: ast.GE,
	token.LSHIFT: ast.LSHIFT, token.RSHIFT: ast.RSHIFT,
	token.LOGOR: ast.LOGOR, token.LOGAND: ast.LOGAND,
}

var asOps = map[token.Kind]ast.BinOp{
	token.ASPLUS: ast.ADD, token.ASMINUS: ast.SUBTRACT,
	token.ASSTAR: ast.MULTIPLY, token.ASSLASH: ast.DIVIDE,
}

// modifyOpOf maps a binary operator to the ModifyType context it needs;
// the zero value (NoOp) is correct for ordinary arithmetic/bitwise ops,
// which only ever widen the narrower operand.
var modifyOpOf = map[ast.BinOp]ast.ModifyOp{
	ast.ADD: ast.OpAdd, ast.SUBTRACT: ast.OpSubtract,
	ast.EQ: ast.OpCompare, ast.NE: ast.OpCompare,
	ast.LT: ast.OpCompare, ast.GT: ast.OpCompare, ast.LE: ast.OpCompare, ast.GE: ast.OpCompare,
	ast.LOGOR: ast.OpLogOr, ast.LOGAND: ast.OpLogAnd,
}

func isComparisonOrLogical(op ast.BinOp) bool {
	return (op >= ast.EQ && op <= ast.GE) || op == ast.LOGOR || op == ast.LOGAND
}

// coerceBinary is the single call site where ModifyType's pointer
// scaling and integer widening rules get applied to a freshly parsed
// binary operator, per ast.ModifyType's doc comment.
func (p *Parser) coerceBinary(op ast.BinOp, left, right ast.Expr, line int) ast.Expr {
	lt, rt := ast.TypeOf(left), ast.TypeOf(right)
	mop := modifyOpOf[op]

	switch {
	case lt == rt:
		// already compatible
	case types.PtrType(rt) && types.IntType(lt) && (op == ast.ADD || op == ast.SUBTRACT):
		if w := ast.ModifyType(left, lt, rt, mop, types.PointedToSize(rt, 0)); w != nil {
			left = w
		} else {
			diag.SemanticFatalf(line, "incompatible types in binary expression")
		}
	case types.PtrType(lt) && types.IntType(rt) && op == ast.ADD:
		if w := ast.ModifyType(right, rt, lt, mop, types.PointedToSize(lt, 0)); w != nil {
			right = w
		} else {
			diag.SemanticFatalf(line, "incompatible types in binary expression")
		}
	default:
		if w := ast.ModifyType(left, lt, rt, mop, 0); w != nil {
			left = w
		} else if w := ast.ModifyType(right, rt, lt, mop, 0); w != nil {
			right = w
		} else {
			diag.SemanticFatalf(line, "incompatible types in binary expression")
		}
	}

	result := ast.TypeOf(left)
	if isComparisonOrLogical(op) {
		result = types.INT
	} else if types.PtrType(ast.TypeOf(right)) {
		result = ast.TypeOf(right)
	}
	return ast.Binary{Base: ast.NewBase(line), Op: op, Left: left, Right: right, Type: result}
}

// assignTo applies ModifyType to coerce value to target's type and
// builds the Assign node; shared by plain `=` and the `+=`-family
// desugaring, both of which need the same right-side coercion.
func (p *Parser) assignTo(target, value ast.Expr, line int) ast.Expr {
	ltype, vtype := ast.TypeOf(target), ast.TypeOf(value)
	if ltype != vtype {
		w := ast.ModifyType(value, vtype, ltype, ast.NoOp, 0)
		if w == nil {
			diag.SemanticFatalf(line, "incompatible types in assignment")
		}
		value = w
	}
	return ast.Assign{Base: ast.NewBase(line), Target: target, Value: value, Type: ltype}
}

// Parser holds one token of lookahead over a Scanner, the symbol table
// being populated, and the autogenerated label counter used for
// string-literal ids.
type Parser struct {
	sc       *scan.Scanner
	tab      *sym.Table
	tok      token.Token
	strLabel int
}

func New(sc *scan.Scanner, tab *sym.Table) *Parser {
	p := &Parser{sc: sc, tab: tab}
	p.advance()
	return p
}

func (p *Parser) advance() {
	t, err := p.sc.Scan()
	if err != nil {
		diag.Fatalf(p.sc.Line(), "%s", err.Error())
	}
	p.tok = t
}

func (p *Parser) line() int { return p.tok.Line }

func (p *Parser) expect(k token.Kind, what string) token.Token {
	if p.tok.Kind != k {
		diag.Fatalf(p.line(), "expected %s, got %s", what, p.tok.Kind)
	}
	t := p.tok
	p.advance()
	return t
}

func (p *Parser) accept(k token.Kind) bool {
	if p.tok.Kind == k {
		p.advance()
		return true
	}
	return false
}

// ---- Top level -------------------------------------------------------

// ParseUnit parses a whole translation unit: a sequence of global
// declarations and function definitions/prototypes.
func (p *Parser) ParseUnit() []ast.Stmt {
	var funcs []ast.Stmt
	for p.tok.Kind != token.EOF {
		if fn, ok := p.globalDecl(); ok {
			funcs = append(funcs, fn)
		}
	}
	return funcs
}

func (p *Parser) globalDecl() (ast.Stmt, bool) {
	class := sym.Global
	if p.accept(token.KW_EXTERN) {
		class = sym.Extern
	} else if p.accept(token.KW_STATIC) {
		class = sym.Static
	}

	if p.tok.Kind == token.KW_TYPEDEF {
		p.typedefDecl()
		return nil, false
	}

	baseType, ctype := p.parseType()

	name := p.expect(token.IDENT, "identifier").Text
	indirection := 0
	for p.accept(token.STAR) {
		indirection++
	}
	typ := baseType
	for i := 0; i < indirection; i++ {
		typ = types.PointerTo(typ)
	}

	if p.tok.Kind == token.LPAREN {
		fn := p.funcDeclOrDef(name, typ, ctype, class)
		return fn, fn != nil
	}

	p.globalVarDecl(name, typ, ctype, class)
	for p.accept(token.COMMA) {
		name = p.expect(token.IDENT, "identifier").Text
		p.globalVarDecl(name, typ, ctype, class)
	}
	p.expect(token.SEMI, "';'")
	return nil, false
}

// ---- Types -------------------------------------------------------------

// parseType reads a base type keyword (or typedef-name) and, for
// struct/union/enum, a tag name or anonymous body. It does not consume
// trailing '*' tokens; callers apply those themselves so that multiple
// declarators on one line can each take a different indirection level.
func (p *Parser) parseType() (types.Primitive, *sym.Symbol) {
	switch p.tok.Kind {
	case token.KW_VOID:
		p.advance()
		return types.VOID, nil
	case token.KW_CHAR:
		p.advance()
		return types.CHAR, nil
	case token.KW_INT:
		p.advance()
		return types.INT, nil
	case token.KW_LONG:
		p.advance()
		return types.LONG, nil
	case token.KW_STRUCT:
		return p.structOrUnionType(sym.StructTag, &p.tab.Structs)
	case token.KW_UNION:
		return p.structOrUnionType(sym.UnionTag, &p.tab.Unions)
	case token.KW_ENUM:
		return p.enumType()
	case token.IDENT:
		if td := p.tab.Typedefs.Find(p.tok.Text, -1); td != nil {
			p.advance()
			return td.Type, td.CType
		}
	}
	diag.Fatalf(p.line(), "expected a type, got %s", p.tok.Kind)
	return types.NONE, nil
}

func (p *Parser) structOrUnionType(tag sym.StorageClass, list *sym.List) (types.Primitive, *sym.Symbol) {
	base := types.STRUCT
	if tag == sym.UnionTag {
		base = types.UNION
	}
	p.advance() // 'struct'/'union'

	var name string
	if p.tok.Kind == token.IDENT {
		name = p.tok.Text
		p.advance()
	}

	if p.tok.Kind != token.LBRACE {
		if name == "" {
			diag.Fatalf(p.line(), "expected a tag name or '{' after struct/union")
		}
		desc := list.Find(name, -1)
		if desc == nil {
			diag.SemanticFatalf(p.line(), "unknown struct/union tag '%s'", name)
		}
		return base, desc
	}

	p.advance() // '{'
	desc := &sym.Symbol{Name: name, Class: tag}
	offset := 0
	maxSize := 0
	for p.tok.Kind != token.RBRACE {
		mtype, mctype := p.parseType()
		for {
			mname := p.expect(token.IDENT, "member name").Text
			ind := 0
			for p.accept(token.STAR) {
				ind++
			}
			ft := mtype
			for i := 0; i < ind; i++ {
				ft = types.PointerTo(ft)
			}
			size := types.Size(ft)
			if sz := structSize(ft, mctype); sz > 0 {
				size = sz
			}
			member := &sym.Symbol{Name: mname, Type: ft, CType: mctype, Class: sym.Member, Pos: offset, Size: size}
			desc.AddMember(member)
			offset += size
			if size > maxSize {
				maxSize = size
			}
			if !p.accept(token.COMMA) {
				break
			}
		}
		p.expect(token.SEMI, "';'")
	}
	p.expect(token.RBRACE, "'}'")
	if tag == sym.UnionTag {
		desc.Size = maxSize
	} else {
		desc.Size = offset
	}
	list.Append(desc)
	return base, desc
}

func structSize(t types.Primitive, ctype *sym.Symbol) int {
	if (types.IndirectionLevel(t) == 0) && ctype != nil {
		return ctype.Size
	}
	return 0
}

func (p *Parser) enumType() (types.Primitive, *sym.Symbol) {
	p.advance() // 'enum'
	var name string
	if p.tok.Kind == token.IDENT {
		name = p.tok.Text
		p.advance()
	}
	if p.tok.Kind != token.LBRACE {
		desc := p.tab.Enums.Find(name, -1)
		if desc == nil {
			diag.SemanticFatalf(p.line(), "unknown enum tag '%s'", name)
		}
		return types.INT, desc
	}
	p.advance()
	desc := &sym.Symbol{Name: name, Class: sym.EnumType}
	var next int64
	for {
		ename := p.expect(token.IDENT, "enumerator").Text
		if p.accept(token.ASSIGN) {
			lit := p.expect(token.INTLIT, "integer constant")
			next = lit.IntValue
		}
		p.tab.Enums.Append(&sym.Symbol{Name: ename, Type: types.INT, Class: sym.EnumVal, Pos: int(next)})
		next++
		if !p.accept(token.COMMA) {
			break
		}
		if p.tok.Kind == token.RBRACE {
			break
		}
	}
	p.expect(token.RBRACE, "'}'")
	if name != "" {
		p.tab.Enums.Append(desc)
	}
	return types.INT, desc
}

func (p *Parser) typedefDecl() {
	p.advance() // 'typedef'
	base, ctype := p.parseType()
	name := p.expect(token.IDENT, "identifier").Text
	ind := 0
	for p.accept(token.STAR) {
		ind++
	}
	typ := base
	for i := 0; i < ind; i++ {
		typ = types.PointerTo(typ)
	}
	p.expect(token.SEMI, "';'")
	p.tab.Typedefs.Append(&sym.Symbol{Name: name, Type: typ, CType: ctype, Class: sym.Typedef})
}

// ---- Global declarations ----------------------------------------------

func (p *Parser) globalVarDecl(name string, typ types.Primitive, ctype *sym.Symbol, class sym.StorageClass) {
	size := types.Size(typ)
	if sz := structSize(typ, ctype); sz > 0 {
		size = sz
	}
	count := 0
	strut := sym.Scalar
	if p.accept(token.LBRACKET) {
		strut = sym.ArrayType
		if p.tok.Kind != token.RBRACKET {
			lit := p.expect(token.INTLIT, "array size")
			count = int(lit.IntValue)
		}
		p.expect(token.RBRACKET, "']'")
	}

	gsym := p.tab.Append(&p.tab.Globals, name, typ, ctype, class, size)
	gsym.Struct = strut
	gsym.Count = count

	if p.accept(token.ASSIGN) {
		if p.accept(token.LBRACE) {
			for {
				lit := p.expect(token.INTLIT, "integer constant")
				gsym.Inits = append(gsym.Inits, lit.IntValue)
				if !p.accept(token.COMMA) {
					break
				}
			}
			p.expect(token.RBRACE, "'}'")
			if gsym.Count == 0 {
				gsym.Count = len(gsym.Inits)
			}
		} else {
			lit := p.expect(token.INTLIT, "integer constant")
			gsym.Inits = []int64{lit.IntValue}
		}
	}
}

// funcDeclOrDef parses a parenthesised parameter list starting at '('.
// A trailing ';' is a prototype; a trailing '{' is a definition, and
// the returned Stmt is an ast.Function.
func (p *Parser) funcDeclOrDef(name string, rtype types.Primitive, rctype *sym.Symbol, class sym.StorageClass) ast.Stmt {
	p.expect(token.LPAREN, "'('")
	fn := &sym.Symbol{Name: name, Type: rtype, CType: rctype, Class: class, Struct: sym.FuncType}
	for p.tok.Kind != token.RPAREN {
		ptype, pctype := p.parseType()
		pname := ""
		if p.tok.Kind == token.IDENT {
			pname = p.tok.Text
			p.advance()
		}
		ind := 0
		for p.accept(token.STAR) {
			ind++
		}
		for i := 0; i < ind; i++ {
			ptype = types.PointerTo(ptype)
		}
		fn.AddMember(&sym.Symbol{Name: pname, Type: ptype, CType: pctype, Class: sym.Param, Size: types.Size(ptype)})
		fn.Count++
		if !p.accept(token.COMMA) {
			break
		}
	}
	p.expect(token.RPAREN, "')'")

	if existing := p.tab.Globals.Find(name, -1); existing != nil {
		if existing.Count != fn.Count {
			diag.SemanticFatalf(p.line(), "prototype mismatch for '%s': parameter count differs", name)
		}
		fn = existing
	} else {
		p.tab.Globals.Append(fn)
	}

	if p.accept(token.SEMI) {
		return nil // prototype only
	}

	p.tab.CopyFuncParams(fn)
	body := p.compoundStatement()
	p.tab.FreeLocalSyms()

	return ast.Function{Sym: fn, Body: body}
}

// ---- Statements ---------------------------------------------------------

func (p *Parser) compoundStatement() ast.Stmt {
	p.expect(token.LBRACE, "'{'")
	var result ast.Stmt
	for p.tok.Kind != token.RBRACE {
		s := p.statement()
		if s == nil {
			continue
		}
		if result == nil {
			result = s
		} else {
			result = ast.Glue{Left: result, Right: s}
		}
	}
	p.expect(token.RBRACE, "'}'")
	return result
}

func isTypeStart(k token.Kind) bool {
	switch k {
	case token.KW_VOID, token.KW_CHAR, token.KW_INT, token.KW_LONG,
		token.KW_STRUCT, token.KW_UNION, token.KW_ENUM, token.KW_TYPEDEF,
		token.KW_EXTERN, token.KW_STATIC:
		return true
	}
	return false
}

func (p *Parser) statement() ast.Stmt {
	switch p.tok.Kind {
	case token.LBRACE:
		return p.compoundStatement()
	case token.KW_IF:
		return p.ifStatement()
	case token.KW_WHILE:
		return p.whileStatement()
	case token.KW_FOR:
		return p.forStatement()
	case token.KW_RETURN:
		return p.returnStatement()
	case token.KW_BREAK:
		line := p.line()
		p.advance()
		p.expect(token.SEMI, "';'")
		return ast.Break{Base: ast.NewBase(line)}
	case token.KW_CONTINUE:
		line := p.line()
		p.advance()
		p.expect(token.SEMI, "';'")
		return ast.Continue{Base: ast.NewBase(line)}
	case token.KW_SWITCH:
		return p.switchStatement()
	case token.IDENT:
		if p.tab.Typedefs.Find(p.tok.Text, -1) != nil {
			return p.localDecl()
		}
	}
	if isTypeStart(p.tok.Kind) {
		return p.localDecl()
	}
	line := p.line()
	e := p.expression()
	p.expect(token.SEMI, "';'")
	return ast.ExprStmt{Base: ast.NewBase(line), X: e}
}

func (p *Parser) localDecl() ast.Stmt {
	class := sym.Local
	if p.accept(token.KW_EXTERN) {
		class = sym.Extern
	} else if p.accept(token.KW_STATIC) {
		class = sym.Static
	}
	baseType, ctype := p.parseType()
	for {
		ind := 0
		for p.accept(token.STAR) {
			ind++
		}
		name := p.expect(token.IDENT, "identifier").Text
		typ := baseType
		for i := 0; i < ind; i++ {
			typ = types.PointerTo(typ)
		}
		size := types.Size(typ)
		if sz := structSize(typ, ctype); sz > 0 {
			size = sz
		}
		if class == sym.Static {
			s := p.tab.Append(&p.tab.Globals, name, typ, ctype, sym.Static, size)
			_ = s
		} else {
			p.tab.Append(&p.tab.Locals, name, typ, ctype, class, size)
		}
		if !p.accept(token.COMMA) {
			break
		}
	}
	p.expect(token.SEMI, "';'")
	return nil // declarations add no code; only symbol-table entries
}

func wrapBoolContext(cond ast.Expr) ast.Expr {
	if b, ok := cond.(ast.Binary); ok && b.Op >= ast.EQ && b.Op <= ast.GE {
		return cond
	}
	return ast.Unary{Base: ast.NewBase(cond.Line()), Op: ast.TOBOOL, Operand: cond}
}

func (p *Parser) ifStatement() ast.Stmt {
	line := p.line()
	p.advance()
	p.expect(token.LPAREN, "'('")
	cond := wrapBoolContext(p.expression())
	p.expect(token.RPAREN, "')'")
	then := p.statement()
	var els ast.Stmt
	if p.accept(token.KW_ELSE) {
		els = p.statement()
	}
	return ast.If{Base: ast.NewBase(line), Cond: cond, Then: then, Else: els}
}

func (p *Parser) whileStatement() ast.Stmt {
	line := p.line()
	p.advance()
	p.expect(token.LPAREN, "'('")
	cond := wrapBoolContext(p.expression())
	p.expect(token.RPAREN, "')'")
	body := p.statement()
	return ast.While{Base: ast.NewBase(line), Cond: cond, Body: body}
}

// forStatement desugars `for (init; cond; post) body` into
// GLUE(init, WHILE(cond, GLUE(body, post))) at parse time.
func (p *Parser) forStatement() ast.Stmt {
	line := p.line()
	p.advance()
	p.expect(token.LPAREN, "'('")
	init := p.statement()
	cond := wrapBoolContext(p.expression())
	p.expect(token.SEMI, "';'")
	postLine := p.line()
	post := ast.ExprStmt{Base: ast.NewBase(postLine), X: p.expression()}
	p.expect(token.RPAREN, "')'")
	body := p.statement()

	loopBody := ast.Stmt(ast.Glue{Left: body, Right: post})
	loop := ast.While{Base: ast.NewBase(line), Cond: cond, Body: loopBody}
	if init == nil {
		return loop
	}
	return ast.Glue{Left: init, Right: loop}
}

func (p *Parser) returnStatement() ast.Stmt {
	line := p.line()
	p.advance()
	var val ast.Expr
	if p.tok.Kind != token.SEMI {
		val = p.expression()
		if fn := p.tab.CurrentFunc; fn != nil {
			vt := ast.TypeOf(val)
			if vt != fn.Type {
				if w := ast.ModifyType(val, vt, fn.Type, ast.NoOp, 0); w != nil {
					val = w
				} else {
					diag.SemanticFatalf(line, "incompatible return type")
				}
			}
		}
	}
	p.expect(token.SEMI, "';'")
	return ast.Return{Base: ast.NewBase(line), Value: val}
}

func (p *Parser) switchStatement() ast.Stmt {
	line := p.line()
	p.advance()
	p.expect(token.LPAREN, "'('")
	sel := p.expression()
	p.expect(token.RPAREN, "')'")
	p.expect(token.LBRACE, "'{'")

	var cases []*ast.Case
	for p.tok.Kind != token.RBRACE {
		caseLine := p.line()
		c := ast.Case{Base: ast.NewBase(caseLine)}
		if p.accept(token.KW_CASE) {
			lit := p.expect(token.INTLIT, "integer constant")
			c.Value = lit.IntValue
			p.expect(token.COLON, "':'")
		} else {
			p.expect(token.KW_DEFAULT, "'case' or 'default'")
			p.expect(token.COLON, "':'")
			c.IsDefault = true
		}
		var body ast.Stmt
		for p.tok.Kind != token.KW_CASE && p.tok.Kind != token.KW_DEFAULT && p.tok.Kind != token.RBRACE {
			s := p.statement()
			if s == nil {
				continue
			}
			if body == nil {
				body = s
			} else {
				body = ast.Glue{Left: body, Right: s}
			}
		}
		c.Body = body
		cc := c
		cases = append(cases, &cc)
	}
	p.expect(token.RBRACE, "'}'")
	return ast.Switch{Base: ast.NewBase(line), Selector: sel, Cases: cases}
}

// ---- Expressions ---------------------------------------------------------

func (p *Parser) expression() ast.Expr {
	return p.binexpr(0)
}

func (p *Parser) binexpr(ptp int) ast.Expr {
	left := p.prefix()

	for precOf(p.tok.Kind) > ptp {
		switch p.tok.Kind {
		case token.ASSIGN:
			line := p.line()
			p.advance()
			target := toLvalue(p, left)
			value := p.binexpr(4) // right-assoc: recurse one below this level
			left = p.assignTo(target, value, line)
		case token.ASPLUS, token.ASMINUS, token.ASSTAR, token.ASSLASH:
			line := p.line()
			op := asOps[p.tok.Kind]
			p.advance()
			target := toLvalue(p, left)
			rhs := p.binexpr(4)
			combined := p.coerceBinary(op, rvalueOf(left), rhs, line)
			left = p.assignTo(target, combined, line)
		case token.QUESTION:
			line := p.line()
			p.advance()
			thenE := p.binexpr(0)
			p.expect(token.COLON, "':'")
			elseE := p.binexpr(9)
			left = ast.Ternary{Base: ast.NewBase(line), Cond: left, Then: thenE, Else: elseE, Type: ast.TypeOf(thenE)}
		default:
			op, ok := binOps[p.tok.Kind]
			if !ok {
				return left
			}
			line := p.line()
			prec := precOf(p.tok.Kind)
			p.advance()
			right := p.binexpr(prec)
			left = p.coerceBinary(op, left, right, line)
		}
	}
	return left
}

// toLvalue converts an already-parsed expression into an assignment
// target: a bare identifier, a DEREF unary, or a member access, all
// with Rvalue cleared.
func toLvalue(p *Parser, e ast.Expr) ast.Expr {
	switch v := e.(type) {
	case ast.Ident:
		v.Rvalue = false
		return v
	case ast.Unary:
		if v.Op == ast.DEREF {
			v.Rvalue = false
			return v
		}
	case ast.Member:
		v.Rvalue = false
		return v
	}
	diag.Fatalf(e.Line(), "assignment target is not an lvalue")
	return nil
}

func rvalueOf(e ast.Expr) ast.Expr {
	switch v := e.(type) {
	case ast.Ident:
		v.Rvalue = true
		return v
	case ast.Unary:
		if v.Op == ast.DEREF {
			v.Rvalue = true
			return v
		}
	case ast.Member:
		v.Rvalue = true
		return v
	}
	return e
}

// prefix handles unary prefix operators, sizeof, and falls through to
// postfix for everything else.
func (p *Parser) prefix() ast.Expr {
	line := p.line()
	switch p.tok.Kind {
	case token.MINUS:
		p.advance()
		operand := p.prefix()
		return ast.Unary{Base: ast.NewBase(line), Op: ast.NEGATE, Operand: operand, Type: ast.TypeOf(operand)}
	case token.INVERT:
		p.advance()
		operand := p.prefix()
		return ast.Unary{Base: ast.NewBase(line), Op: ast.INVERT, Operand: operand, Type: ast.TypeOf(operand)}
	case token.BANG:
		p.advance()
		return ast.Unary{Base: ast.NewBase(line), Op: ast.LOGNOT, Operand: p.prefix(), Type: types.INT}
	case token.AMPER:
		p.advance()
		operand := p.prefix()
		switch v := operand.(type) {
		case ast.Ident:
			v.Rvalue = false
			return ast.Unary{Base: ast.NewBase(line), Op: ast.ADDR, Operand: v, Type: types.PointerTo(v.Type)}
		case ast.Member:
			v.Rvalue = false
			return ast.Unary{Base: ast.NewBase(line), Op: ast.ADDR, Operand: v, Type: types.PointerTo(v.Type)}
		}
		diag.Fatalf(line, "cannot take address of a non-variable expression")
		return nil
	case token.STAR:
		p.advance()
		operand := p.prefix()
		ot := ast.TypeOf(operand)
		if !types.PtrType(ot) {
			diag.SemanticFatalf(line, "cannot dereference a non-pointer expression")
		}
		return ast.Unary{Base: ast.NewBase(line), Op: ast.DEREF, Operand: operand, Rvalue: true, Type: types.ValueAt(ot)}
	case token.INC:
		p.advance()
		operand := p.prefix()
		return ast.Unary{Base: ast.NewBase(line), Op: ast.PREINC, Operand: operand, Type: ast.TypeOf(operand)}
	case token.DEC:
		p.advance()
		operand := p.prefix()
		return ast.Unary{Base: ast.NewBase(line), Op: ast.PREDEC, Operand: operand, Type: ast.TypeOf(operand)}
	case token.KW_SIZEOF:
		p.advance()
		p.expect(token.LPAREN, "'('")
		t, ctype := p.parseType()
		for p.accept(token.STAR) {
			t = types.PointerTo(t)
		}
		p.expect(token.RPAREN, "')'")
		size := types.Size(t)
		if sz := structSize(t, ctype); sz > 0 {
			size = sz
		}
		return ast.IntLit{Base: ast.NewBase(line), Value: int64(size), Type: types.INT}
	}
	return p.postfix()
}

// postfix parses a primary expression then trailing ++/--, [index],
// .member and ->member. Function calls are parsed by primary.
func (p *Parser) postfix() ast.Expr {
	e := p.primary()
	for {
		line := p.line()
		switch p.tok.Kind {
		case token.INC:
			p.advance()
			e = ast.Unary{Base: ast.NewBase(line), Op: ast.POSTINC, Operand: e, Type: ast.TypeOf(e)}
		case token.DEC:
			p.advance()
			e = ast.Unary{Base: ast.NewBase(line), Op: ast.POSTDEC, Operand: e, Type: ast.TypeOf(e)}
		case token.LBRACKET:
			p.advance()
			idx := p.expression()
			p.expect(token.RBRACKET, "']'")
			id, ok := e.(ast.Ident)
			if !ok {
				diag.Fatalf(line, "array index target is not a variable")
			}
			// An array name decays to the address of its first element;
			// a pointer variable is indexed by its own value.
			var base ast.Expr
			var elemType types.Primitive
			if id.Sym.Struct == sym.ArrayType {
				id.Rvalue = false
				elemType = id.Type
				base = ast.Unary{Base: ast.NewBase(line), Op: ast.ADDR, Operand: id, Type: types.PointerTo(elemType)}
			} else {
				id.Rvalue = true
				elemType = types.ValueAt(id.Type)
				base = id
			}
			sum := p.coerceBinary(ast.ADD, base, idx, line)
			e = ast.Unary{Base: ast.NewBase(line), Op: ast.DEREF, Operand: sum, Rvalue: true, Type: elemType}
		case token.DOT, token.ARROW:
			arrow := p.tok.Kind == token.ARROW
			p.advance()
			e = p.memberAccess(e, arrow, line)
		default:
			return e
		}
	}
}

// memberAccess resolves `base.field`/`base->field` against base's
// struct/union descriptor and builds the Member node codegen lowers
// into an address computation (base address plus the field's byte
// offset). The base must be an Ident or another Member -- the same
// restriction toLvalue and the array-index case already place on
// address-of targets -- so that a chain like a.b.c or p->b.c composes
// by nesting Member nodes rather than needing a general "address of
// arbitrary expression" primitive.
func (p *Parser) memberAccess(e ast.Expr, arrow bool, line int) ast.Expr {
	var desc *sym.Symbol
	switch v := e.(type) {
	case ast.Ident:
		desc = v.Sym.CType
	case ast.Member:
		desc = v.Field.CType
	default:
		diag.Fatalf(line, "member access target must be a variable or another member access")
	}

	bt := ast.TypeOf(e)
	if arrow {
		if !types.PtrType(bt) {
			diag.SemanticFatalf(line, "'->' requires a pointer to struct or union")
		}
	} else if types.PtrType(bt) {
		diag.SemanticFatalf(line, "'.' requires a struct or union, not a pointer; use '->'")
	}
	if desc == nil {
		diag.SemanticFatalf(line, "member access on a non-struct/union expression")
	}

	name := p.expect(token.IDENT, "member name").Text
	var field *sym.Symbol
	for f := desc.Member; f != nil; f = f.Next {
		if f.Name == name {
			field = f
			break
		}
	}
	if field == nil {
		diag.SemanticFatalf(line, "no member named '%s'", name)
	}

	return ast.Member{Base: ast.NewBase(line), Operand: e, Field: field, Arrow: arrow, Rvalue: true, Type: field.Type}
}

func (p *Parser) primary() ast.Expr {
	line := p.line()
	switch p.tok.Kind {
	case token.INTLIT:
		v := p.tok.IntValue
		p.advance()
		return ast.IntLit{Base: ast.NewBase(line), Value: v, Type: types.INT}
	case token.CHARLIT:
		v := p.tok.IntValue
		p.advance()
		return ast.IntLit{Base: ast.NewBase(line), Value: v, Type: types.CHAR}
	case token.STRLIT:
		text := p.tok.Text
		p.advance()
		label := p.strLabel
		p.strLabel++
		p.tab.Globals.Append(&sym.Symbol{
			Name: fmt.Sprintf("L%d", label), Type: types.PointerTo(types.CHAR), Class: sym.Static,
			Size: len(text) + 1, Pos: label, IsStrLit: true, Text: text,
		})
		return ast.StrLit{Base: ast.NewBase(line), Label: label, Text: text, Type: types.PointerTo(types.CHAR)}
	case token.LPAREN:
		p.advance()
		if isTypeStart(p.tok.Kind) || (p.tok.Kind == token.IDENT && p.tab.Typedefs.Find(p.tok.Text, -1) != nil) {
			t, _ := p.parseType()
			for p.accept(token.STAR) {
				t = types.PointerTo(t)
			}
			p.expect(token.RPAREN, "')'")
			operand := p.prefix()
			return ast.Cast{Base: ast.NewBase(line), Operand: operand, Type: t}
		}
		e := p.expression()
		p.expect(token.RPAREN, "')'")
		return e
	case token.IDENT:
		name := p.tok.Text
		p.advance()
		if p.tok.Kind == token.LPAREN {
			return p.funcCall(name, line)
		}
		s := p.tab.Find(name)
		if s == nil {
			diag.SemanticFatalf(line, "undeclared identifier '%s'", name)
		}
		return ast.Ident{Base: ast.NewBase(line), Sym: s, Rvalue: true, Type: s.Type}
	}
	diag.Fatalf(line, "unexpected token %s in expression", p.tok.Kind)
	return nil
}

func (p *Parser) funcCall(name string, line int) ast.Expr {
	p.expect(token.LPAREN, "'('")
	fn := p.tab.Globals.Find(name, -1)
	if fn == nil {
		diag.SemanticFatalf(line, "call to undeclared function '%s'", name)
	}
	var args []ast.Expr
	for p.tok.Kind != token.RPAREN {
		args = append(args, p.expression())
		if !p.accept(token.COMMA) {
			break
		}
	}
	p.expect(token.RPAREN, "')'")
	rtype := types.INT
	if fn != nil {
		rtype = fn.Type
		p.coerceArgs(fn, args, line)
	}
	return ast.FuncCall{Base: ast.NewBase(line), Sym: fn, Args: args, Type: rtype}
}

// coerceArgs widens each argument to its parameter's declared type in
// place, mirroring assignTo's rule; a variadic-less call is assumed to
// have exactly fn.Count parameters, already checked at declaration time.
func (p *Parser) coerceArgs(fn *sym.Symbol, args []ast.Expr, line int) {
	param := fn.Member
	for i := range args {
		if param == nil {
			return
		}
		at, pt := ast.TypeOf(args[i]), param.Type
		if at != pt {
			if w := ast.ModifyType(args[i], at, pt, ast.NoOp, 0); w != nil {
				args[i] = w
			}
		}
		param = param.Next
	}
}

// Package parser turns a lexer.Token stream into the ast.Statement tree the
// preprocessor and compiler operate on. It is a straightforward recursive
// descent parser with a precedence-climbing expression grammar, the same
// shape as the front end it was learned from.
package parser

import (
	"fmt"

	"github.com/ranvm/ranvm/internal/ast"
	"github.com/ranvm/ranvm/internal/diag"
	"github.com/ranvm/ranvm/internal/lexer"
	"github.com/ranvm/ranvm/internal/span"
)

// Parser holds a three-token lookahead window over a lexer.
type Parser struct {
	lex *lexer.Lexer

	prevToken lexer.Token
	curToken  lexer.Token
	peekToken lexer.Token
}

// New constructs a Parser and primes the lookahead window.
func New(src string) *Parser {
	lx := lexer.New(src)
	cur := lx.Next()
	peek := lx.Next()
	return &Parser{lex: lx, prevToken: cur, curToken: cur, peekToken: peek}
}

// Parse consumes the full token stream, returning every top-level
// statement in source order.
func (p *Parser) Parse() ([]ast.Statement, error) {
	var stmts []ast.Statement
	for p.curToken.Kind != lexer.EOF {
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)
	}
	return stmts, nil
}

func (p *Parser) advance() {
	p.prevToken = p.curToken
	p.curToken = p.peekToken
	p.peekToken = p.lex.Next()
}

func (p *Parser) curIs(k lexer.Kind) bool  { return p.curToken.Kind == k }
func (p *Parser) peekIs(k lexer.Kind) bool { return p.peekToken.Kind == k }

func (p *Parser) expectCur(k lexer.Kind) error {
	if p.curIs(k) {
		p.advance()
		return nil
	}
	return p.unexpected(p.curToken)
}

func (p *Parser) unexpected(tok lexer.Token) error {
	return diag.New(diag.UnexpectedToken, tok.Span, fmt.Sprintf("unexpected token %q", tok.Literal))
}

func (p *Parser) expected(what string, tok lexer.Token) error {
	return diag.New(diag.ExpectedToken, tok.Span, fmt.Sprintf("expected %s, got %q instead", what, tok.Literal))
}

func (p *Parser) spanFrom(start int) span.Span {
	return span.New(start, p.prevToken.Span.End)
}

func (p *Parser) parseStatement() (ast.Statement, error) {
	start := p.curToken.Span.Start
	switch p.curToken.Kind {
	case lexer.KwError:
		p.advance()
		msg, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		return &ast.ErrorStmt{Message: msg, Sp: p.spanFrom(start)}, nil

	case lexer.KwDefine:
		p.advance()
		key, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		val, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		return &ast.DefineStmt{Key: key, Value: val, Sp: p.spanFrom(start)}, nil

	case lexer.KwInclude:
		p.advance()
		path, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		return &ast.IncludeStmt{Path: path, Sp: p.spanFrom(start)}, nil

	case lexer.KwIfDef:
		p.advance()
		name, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		return &ast.IfDefStmt{Name: name, Sp: p.spanFrom(start)}, nil

	case lexer.KwIfNDef:
		p.advance()
		name, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		return &ast.IfNDefStmt{Name: name, Sp: p.spanFrom(start)}, nil

	case lexer.KwElse:
		p.advance()
		return &ast.ElseStmt{Sp: p.spanFrom(start)}, nil

	case lexer.KwEndIf:
		p.advance()
		return &ast.EndIfStmt{Sp: p.spanFrom(start)}, nil

	case lexer.KwSection:
		p.advance()
		if p.curToken.Kind != lexer.SectionName {
			return nil, p.expected("section name (text or data)", p.curToken)
		}
		var kind ast.SectionKind
		switch p.curToken.Literal {
		case "text":
			kind = ast.SectionText
		case "data":
			kind = ast.SectionData
		default:
			return nil, p.unexpected(p.curToken)
		}
		p.advance()
		return &ast.SectionStmt{Kind: kind, Sp: p.spanFrom(start)}, nil

	case lexer.KwEntry:
		p.advance()
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		return &ast.EntryStmt{Target: expr, Sp: p.spanFrom(start)}, nil

	case lexer.KwAscii:
		p.advance()
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		return &ast.AsciiStmt{Value: expr, Sp: p.spanFrom(start)}, nil

	case lexer.KwAsciz:
		p.advance()
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		return &ast.AscizStmt{Value: expr, Sp: p.spanFrom(start)}, nil

	case lexer.Identifier:
		if p.peekIs(lexer.Colon) {
			name := p.curToken.Literal
			p.advance()
			p.advance()
			return &ast.LabelStmt{Name: name, Sp: p.spanFrom(start)}, nil
		}
		return nil, p.unexpected(p.curToken)

	case lexer.KwNop:
		p.advance()
		return &ast.NopStmt{Sp: p.spanFrom(start)}, nil

	case lexer.KwMov:
		p.advance()
		dst, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if err := p.expectCur(lexer.Comma); err != nil {
			return nil, err
		}
		src, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		return &ast.MovStmt{Dst: dst, Src: src, Sp: p.spanFrom(start)}, nil

	case lexer.KwLdr:
		p.advance()
		dst, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if err := p.expectCur(lexer.Comma); err != nil {
			return nil, err
		}
		addr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		return &ast.LdrStmt{Dst: dst, Addr: addr, Sp: p.spanFrom(start)}, nil

	case lexer.KwStr:
		p.advance()
		src, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if err := p.expectCur(lexer.Comma); err != nil {
			return nil, err
		}
		addr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		return &ast.StrStmt{Src: src, Addr: addr, Sp: p.spanFrom(start)}, nil

	case lexer.KwPush:
		p.advance()
		var size ast.Expression
		if p.curToken.Kind == lexer.DataSizeTok {
			var err error
			size, err = p.parseExpression()
			if err != nil {
				return nil, err
			}
		}
		operand, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		return &ast.PushStmt{Size: size, Operand: operand, Sp: p.spanFrom(start)}, nil

	case lexer.KwPop:
		p.advance()
		var size ast.Expression
		if p.curToken.Kind == lexer.DataSizeTok {
			var err error
			size, err = p.parseExpression()
			if err != nil {
				return nil, err
			}
		}
		operand, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		return &ast.PopStmt{Size: size, Operand: operand, Sp: p.spanFrom(start)}, nil

	case lexer.KwAdd, lexer.KwSub, lexer.KwMul, lexer.KwDiv,
		lexer.KwAnd, lexer.KwOr, lexer.KwXor, lexer.KwShl, lexer.KwShr:
		op := arithOpFor(p.curToken.Kind)
		p.advance()
		dst, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if err := p.expectCur(lexer.Comma); err != nil {
			return nil, err
		}
		lhs, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if err := p.expectCur(lexer.Comma); err != nil {
			return nil, err
		}
		rhs, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		return &ast.ArithStmt{Op: op, Dst: dst, Lhs: lhs, Rhs: rhs, Sp: p.spanFrom(start)}, nil

	case lexer.KwCmp:
		p.advance()
		lhs, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if err := p.expectCur(lexer.Comma); err != nil {
			return nil, err
		}
		rhs, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		return &ast.CmpStmt{Lhs: lhs, Rhs: rhs, Sp: p.spanFrom(start)}, nil

	case lexer.KwJmp, lexer.KwJeq, lexer.KwJne, lexer.KwJlt,
		lexer.KwJgt, lexer.KwJle, lexer.KwJge:
		kind := jumpKindFor(p.curToken.Kind)
		p.advance()
		target, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		return &ast.JumpStmt{Kind: kind, Target: target, Sp: p.spanFrom(start)}, nil

	case lexer.KwCall:
		p.advance()
		target, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		return &ast.CallStmt{Target: target, Sp: p.spanFrom(start)}, nil

	case lexer.KwRet:
		p.advance()
		return &ast.RetStmt{Sp: p.spanFrom(start)}, nil

	case lexer.KwInc:
		p.advance()
		reg, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		return &ast.IncStmt{Reg: reg, Sp: p.spanFrom(start)}, nil

	case lexer.KwDec:
		p.advance()
		reg, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		return &ast.DecStmt{Reg: reg, Sp: p.spanFrom(start)}, nil

	case lexer.KwSyscall:
		p.advance()
		return &ast.SyscallStmt{Sp: p.spanFrom(start)}, nil

	case lexer.KwHlt:
		p.advance()
		return &ast.HltStmt{Sp: p.spanFrom(start)}, nil

	case lexer.KwDb:
		p.advance()
		var values []ast.Expression
		for {
			v, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			values = append(values, v)
			if p.curIs(lexer.Comma) {
				p.advance()
				continue
			}
			break
		}
		return &ast.DbStmt{Values: values, Sp: p.spanFrom(start)}, nil

	case lexer.KwResb:
		p.advance()
		count, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		return &ast.ResbStmt{Count: count, Sp: p.spanFrom(start)}, nil

	default:
		return nil, p.unexpected(p.curToken)
	}
}

func arithOpFor(k lexer.Kind) ast.BinaryOp {
	switch k {
	case lexer.KwAdd:
		return ast.OpAdd
	case lexer.KwSub:
		return ast.OpSub
	case lexer.KwMul:
		return ast.OpMul
	case lexer.KwDiv:
		return ast.OpDiv
	case lexer.KwAnd:
		return ast.OpAnd
	case lexer.KwOr:
		return ast.OpOr
	case lexer.KwXor:
		return ast.OpXor
	case lexer.KwShl:
		return ast.OpShl
	default:
		return ast.OpShr
	}
}

func jumpKindFor(k lexer.Kind) ast.JumpKind {
	switch k {
	case lexer.KwJmp:
		return ast.JumpUnconditional
	case lexer.KwJeq:
		return ast.JumpEq
	case lexer.KwJne:
		return ast.JumpNe
	case lexer.KwJlt:
		return ast.JumpLt
	case lexer.KwJgt:
		return ast.JumpGt
	case lexer.KwJle:
		return ast.JumpLe
	default:
		return ast.JumpGe
	}
}

// --- Expressions ----------------------------------------------------------

// binaryPrecedence mirrors the original grammar: only the arithmetic and
// bitwise infix operators participate (shl/shr are instruction mnemonics,
// not expression operators).
func binaryPrecedence(op ast.BinaryOp) int {
	switch op {
	case ast.OpMul, ast.OpDiv:
		return 20
	case ast.OpAdd, ast.OpSub:
		return 10
	case ast.OpAnd:
		return 5
	case ast.OpXor:
		return 4
	case ast.OpOr:
		return 3
	default:
		return -1
	}
}

func binaryOpFor(k lexer.Kind) (ast.BinaryOp, bool) {
	switch k {
	case lexer.Plus:
		return ast.OpAdd, true
	case lexer.Minus:
		return ast.OpSub, true
	case lexer.Asterisk:
		return ast.OpMul, true
	case lexer.Slash:
		return ast.OpDiv, true
	case lexer.Pipe:
		return ast.OpOr, true
	case lexer.Ampersand:
		return ast.OpAnd, true
	case lexer.Caret:
		return ast.OpXor, true
	default:
		return 0, false
	}
}

func (p *Parser) parseExpression() (ast.Expression, error) {
	return p.parseBinaryExpression(0)
}

func (p *Parser) parseBinaryExpression(minPrec int) (ast.Expression, error) {
	start := p.curToken.Span.Start
	lhs, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}

	for {
		op, ok := binaryOpFor(p.curToken.Kind)
		if !ok {
			break
		}
		prec := binaryPrecedence(op)
		if prec < minPrec {
			break
		}
		p.advance()
		rhs, err := p.parseBinaryExpression(prec + 1)
		if err != nil {
			return nil, err
		}
		lhs = &ast.BinaryExpr{Lhs: lhs, Op: op, Rhs: rhs, Sp: p.spanFrom(start)}
	}

	return lhs, nil
}

func (p *Parser) parsePrimary() (ast.Expression, error) {
	tok := p.curToken
	switch tok.Kind {
	case lexer.Identifier:
		p.advance()
		return &ast.Identifier{Name: tok.Literal, Sp: tok.Span}, nil

	case lexer.Register:
		reg, ok := ast.LookupRegister(tok.Literal)
		if !ok {
			return nil, p.unexpected(tok)
		}
		p.advance()
		return &ast.RegisterExpr{Reg: reg, Sp: tok.Span}, nil

	case lexer.Integer:
		v, err := parseInteger(tok.Literal)
		if err != nil {
			return nil, p.unexpected(tok)
		}
		p.advance()
		return &ast.IntLiteral{Value: v, Sp: tok.Span}, nil

	case lexer.Float:
		v, err := parseFloat(tok.Literal)
		if err != nil {
			return nil, p.unexpected(tok)
		}
		p.advance()
		return &ast.FloatLiteral{Value: v, Sp: tok.Span}, nil

	case lexer.String:
		p.advance()
		return &ast.StringLiteral{Value: tok.Literal, Sp: tok.Span}, nil

	case lexer.DataSizeTok:
		size, ok := ast.ParseDataSize(tok.Literal)
		if !ok {
			return nil, p.unexpected(tok)
		}
		p.advance()
		return &ast.SizeExpr{Size: size, Sp: tok.Span}, nil

	case lexer.LBracket:
		start := tok.Span.Start
		p.advance()
		base, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		var offset ast.Expression
		if p.curIs(lexer.Comma) {
			p.advance()
			offset, err = p.parseExpression()
			if err != nil {
				return nil, err
			}
		}
		if !p.curIs(lexer.RBracket) {
			return nil, p.expected("]", p.curToken)
		}
		p.advance()
		return &ast.Address{Base: base, Offset: offset, Sp: p.spanFrom(start)}, nil

	case lexer.LParen:
		p.advance()
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if !p.curIs(lexer.RParen) {
			return nil, p.expected(")", p.curToken)
		}
		p.advance()
		return expr, nil

	default:
		return nil, p.unexpected(tok)
	}
}

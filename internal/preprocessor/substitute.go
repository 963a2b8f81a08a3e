package preprocessor

import (
	"github.com/ranvm/ranvm/internal/ast"
	"github.com/ranvm/ranvm/internal/diag"
)

// substituteStatement is pass 3 applied to one already-admitted statement:
// every operand expression gets run through substituteExpr. A handful of
// statement kinds (Include, IfDef/IfNDef/Else/EndIf) can no longer appear
// here — pass 1/2 already consumed them — but are matched defensively.
func (p *Preprocessor) substituteStatement(stmt ast.Statement) (ast.Statement, error) {
	switch s := stmt.(type) {
	case *ast.LabelStmt:
		return s, nil

	case *ast.ErrorStmt:
		msg, ok := s.Message.(*ast.StringLiteral)
		if !ok {
			return nil, diag.New(diag.UserError, s.Sp, "expected string literal in #error directive")
		}
		return nil, diag.New(diag.UserError, s.Sp, msg.Value)

	case *ast.DefineStmt:
		key, err := p.substituteExpr(s.Key)
		if err != nil {
			return nil, err
		}
		val, err := p.substituteExpr(s.Value)
		if err != nil {
			return nil, err
		}
		return &ast.DefineStmt{Key: key, Value: val, Sp: s.Sp}, nil

	case *ast.IncludeStmt, *ast.IfDefStmt, *ast.IfNDefStmt, *ast.ElseStmt, *ast.EndIfStmt:
		return nil, nil

	case *ast.SectionStmt:
		return s, nil

	case *ast.EntryStmt:
		target, err := p.substituteExpr(s.Target)
		if err != nil {
			return nil, err
		}
		return &ast.EntryStmt{Target: target, Sp: s.Sp}, nil

	case *ast.AsciiStmt:
		val, err := p.substituteExpr(s.Value)
		if err != nil {
			return nil, err
		}
		return &ast.AsciiStmt{Value: val, Sp: s.Sp}, nil

	case *ast.AscizStmt:
		val, err := p.substituteExpr(s.Value)
		if err != nil {
			return nil, err
		}
		return &ast.AscizStmt{Value: val, Sp: s.Sp}, nil

	case *ast.NopStmt:
		return s, nil

	case *ast.MovStmt:
		dst, err := p.substituteExpr(s.Dst)
		if err != nil {
			return nil, err
		}
		src, err := p.substituteExpr(s.Src)
		if err != nil {
			return nil, err
		}
		return &ast.MovStmt{Dst: dst, Src: src, Sp: s.Sp}, nil

	case *ast.LdrStmt:
		dst, err := p.substituteExpr(s.Dst)
		if err != nil {
			return nil, err
		}
		addr, err := p.substituteExpr(s.Addr)
		if err != nil {
			return nil, err
		}
		return &ast.LdrStmt{Dst: dst, Addr: addr, Sp: s.Sp}, nil

	case *ast.StrStmt:
		src, err := p.substituteExpr(s.Src)
		if err != nil {
			return nil, err
		}
		addr, err := p.substituteExpr(s.Addr)
		if err != nil {
			return nil, err
		}
		return &ast.StrStmt{Src: src, Addr: addr, Sp: s.Sp}, nil

	case *ast.PushStmt:
		size, err := p.substituteOptional(s.Size)
		if err != nil {
			return nil, err
		}
		operand, err := p.substituteExpr(s.Operand)
		if err != nil {
			return nil, err
		}
		return &ast.PushStmt{Size: size, Operand: operand, Sp: s.Sp}, nil

	case *ast.PopStmt:
		size, err := p.substituteOptional(s.Size)
		if err != nil {
			return nil, err
		}
		operand, err := p.substituteExpr(s.Operand)
		if err != nil {
			return nil, err
		}
		return &ast.PopStmt{Size: size, Operand: operand, Sp: s.Sp}, nil

	case *ast.ArithStmt:
		dst, err := p.substituteExpr(s.Dst)
		if err != nil {
			return nil, err
		}
		lhs, err := p.substituteExpr(s.Lhs)
		if err != nil {
			return nil, err
		}
		rhs, err := p.substituteExpr(s.Rhs)
		if err != nil {
			return nil, err
		}
		return &ast.ArithStmt{Op: s.Op, Dst: dst, Lhs: lhs, Rhs: rhs, Sp: s.Sp}, nil

	case *ast.CmpStmt:
		lhs, err := p.substituteExpr(s.Lhs)
		if err != nil {
			return nil, err
		}
		rhs, err := p.substituteExpr(s.Rhs)
		if err != nil {
			return nil, err
		}
		return &ast.CmpStmt{Lhs: lhs, Rhs: rhs, Sp: s.Sp}, nil

	case *ast.JumpStmt:
		target, err := p.substituteExpr(s.Target)
		if err != nil {
			return nil, err
		}
		return &ast.JumpStmt{Kind: s.Kind, Target: target, Sp: s.Sp}, nil

	case *ast.CallStmt:
		target, err := p.substituteExpr(s.Target)
		if err != nil {
			return nil, err
		}
		return &ast.CallStmt{Target: target, Sp: s.Sp}, nil

	case *ast.RetStmt:
		return s, nil

	case *ast.IncStmt:
		reg, err := p.substituteExpr(s.Reg)
		if err != nil {
			return nil, err
		}
		return &ast.IncStmt{Reg: reg, Sp: s.Sp}, nil

	case *ast.DecStmt:
		reg, err := p.substituteExpr(s.Reg)
		if err != nil {
			return nil, err
		}
		return &ast.DecStmt{Reg: reg, Sp: s.Sp}, nil

	case *ast.SyscallStmt:
		return s, nil

	case *ast.HltStmt:
		return s, nil

	case *ast.DbStmt:
		values := make([]ast.Expression, len(s.Values))
		for i, v := range s.Values {
			sv, err := p.substituteExpr(v)
			if err != nil {
				return nil, err
			}
			values[i] = sv
		}
		return &ast.DbStmt{Values: values, Sp: s.Sp}, nil

	case *ast.ResbStmt:
		count, err := p.substituteExpr(s.Count)
		if err != nil {
			return nil, err
		}
		return &ast.ResbStmt{Count: count, Sp: s.Sp}, nil

	default:
		return s, nil
	}
}

func (p *Preprocessor) substituteOptional(expr ast.Expression) (ast.Expression, error) {
	if expr == nil {
		return nil, nil
	}
	return p.substituteExpr(expr)
}

// substituteExpr resolves identifiers against the definition table
// (recursively, so a define can reference another define) and folds binary
// expressions between two literals of the same kind. Integer arithmetic
// wraps per Go's native int64 semantics; float folding is restricted to
// +,-,*,/ (§4.1 pass 3).
func (p *Preprocessor) substituteExpr(expr ast.Expression) (ast.Expression, error) {
	switch e := expr.(type) {
	case *ast.Identifier:
		if replacement, ok := p.definitions[e.Name]; ok {
			return p.substituteExpr(replacement)
		}
		return e, nil

	case *ast.Address:
		base, err := p.substituteExpr(e.Base)
		if err != nil {
			return nil, err
		}
		offset, err := p.substituteOptional(e.Offset)
		if err != nil {
			return nil, err
		}
		return &ast.Address{Base: base, Offset: offset, Sp: e.Sp}, nil

	case *ast.RegisterExpr, *ast.IntLiteral, *ast.FloatLiteral, *ast.StringLiteral, *ast.SizeExpr:
		return e, nil

	case *ast.BinaryExpr:
		lhs, err := p.substituteExpr(e.Lhs)
		if err != nil {
			return nil, err
		}
		rhs, err := p.substituteExpr(e.Rhs)
		if err != nil {
			return nil, err
		}

		if li, ok := lhs.(*ast.IntLiteral); ok {
			if ri, ok := rhs.(*ast.IntLiteral); ok {
				return &ast.IntLiteral{Value: foldInt(e.Op, li.Value, ri.Value), Sp: e.Sp}, nil
			}
		}
		if lf, ok := lhs.(*ast.FloatLiteral); ok {
			if rf, ok := rhs.(*ast.FloatLiteral); ok {
				if !e.Op.IsArithmeticOnly() {
					return nil, diag.New(diag.InvalidOperatorForFloat, e.Sp, e.Op.String())
				}
				return &ast.FloatLiteral{Value: foldFloat(e.Op, lf.Value, rf.Value), Sp: e.Sp}, nil
			}
		}

		return &ast.BinaryExpr{Lhs: lhs, Op: e.Op, Rhs: rhs, Sp: e.Sp}, nil

	default:
		return e, nil
	}
}

func foldInt(op ast.BinaryOp, l, r int64) int64 {
	switch op {
	case ast.OpAdd:
		return l + r
	case ast.OpSub:
		return l - r
	case ast.OpMul:
		return l * r
	case ast.OpDiv:
		return l / r
	case ast.OpOr:
		return l | r
	case ast.OpAnd:
		return l & r
	case ast.OpXor:
		return l ^ r
	case ast.OpShl:
		return l << uint(r)
	default:
		return l >> uint(r)
	}
}

func foldFloat(op ast.BinaryOp, l, r float64) float64 {
	switch op {
	case ast.OpAdd:
		return l + r
	case ast.OpSub:
		return l - r
	case ast.OpMul:
		return l * r
	default:
		return l / r
	}
}

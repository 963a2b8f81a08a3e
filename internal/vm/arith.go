package vm

import "github.com/ranvm/ranvm/internal/ast"

// opKind names one of the binary operations the arithmetic/bitwise/shift
// opcode families share a dispatch shape for (§9: a flat table rather than
// per-width conditionals).
type opKind int

const (
	opAdd opKind = iota
	opSub
	opMul
	opDiv
	opAnd
	opOr
	opXor
	opShl
	opShr
)

func applyInt(kind opKind, a, b uint64) uint64 {
	switch kind {
	case opAdd:
		return a + b
	case opSub:
		return a - b
	case opMul:
		return a * b
	case opDiv:
		return a / b
	case opAnd:
		return a & b
	case opOr:
		return a | b
	case opXor:
		return a ^ b
	case opShl:
		return a << b
	default:
		return a >> b
	}
}

// applyFloat is only reached by the arithmetic family (ADD/SUB/MUL/DIV);
// bitwise and shift operands are rejected on float/double destinations at
// compile time (§4.2).
func applyFloat(kind opKind, a, b float64) float64 {
	switch kind {
	case opAdd:
		return a + b
	case opSub:
		return a - b
	case opMul:
		return a * b
	default:
		return a / b
	}
}

func maskImmediate(size ast.DataSize, v uint64) ast.Immediate {
	switch size {
	case ast.SizeByte:
		return ast.ImmByte(uint8(v))
	case ast.SizeWord:
		return ast.ImmWord(uint16(v))
	case ast.SizeDWord:
		return ast.ImmDWord(uint32(v))
	default:
		return ast.ImmQWord(v)
	}
}

// shiftMask returns the width's shift-amount mask (byte shifts by 0-7, word
// by 0-15, dword by 0-31, qword by 0-63).
func shiftMask(size ast.DataSize) uint64 {
	switch size {
	case ast.SizeByte:
		return 7
	case ast.SizeWord:
		return 15
	case ast.SizeDWord:
		return 31
	default:
		return 63
	}
}

// Package disasm renders a compiled image back into a textual instruction
// listing for the disasm CLI subcommand. There is no section table carried
// into the final image (§3: text and data are just concatenated bytes), so
// decoding stops at the first byte that isn't a recognized opcode or at a
// Hlt, on the assumption that any data section follows the halting
// instruction rather than sitting between live code.
package disasm

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/ranvm/ranvm/internal/ast"
	"github.com/ranvm/ranvm/internal/compiler"
)

const addressingRegisterBase = 0x00

// Line is one decoded instruction: its offset into the body, the number of
// bytes it consumed, and its rendered mnemonic form.
type Line struct {
	Offset int
	Length int
	Text   string
}

// Disassemble decodes body (the image with the 8-byte entry header already
// stripped) starting at entry, stopping after the first Hlt or when it
// can't make sense of the next byte as an opcode.
func Disassemble(body []byte, entry uint64) ([]Line, error) {
	var lines []Line
	off := int(entry)

	for off < len(body) {
		start := off
		b := body[off]
		if !compiler.ValidOpcode(b) {
			break
		}
		op := compiler.Opcode(b)
		off++

		text, consumed, err := decodeOperands(op, body, off)
		if err != nil {
			return lines, err
		}
		off += consumed

		lines = append(lines, Line{
			Offset: start,
			Length: off - start,
			Text:   fmt.Sprintf("%04x: %-10s %s", start, op.String(), text),
		})

		if op == compiler.Hlt {
			break
		}
	}
	return lines, nil
}

func decodeOperands(op compiler.Opcode, body []byte, off int) (string, int, error) {
	start := off
	var parts []string

	readByte := func() (byte, error) {
		if off >= len(body) {
			return 0, fmt.Errorf("disasm: truncated operand at offset %d", off)
		}
		v := body[off]
		off++
		return v, nil
	}
	readRegister := func() (ast.Register, error) {
		v, err := readByte()
		return ast.Register(v), err
	}
	readDataSize := func() (ast.DataSize, error) {
		v, err := readByte()
		return ast.DataSize(v), err
	}
	readUint64 := func() (uint64, error) {
		if off+8 > len(body) {
			return 0, fmt.Errorf("disasm: truncated operand at offset %d", off)
		}
		v := binary.LittleEndian.Uint64(body[off : off+8])
		off += 8
		return v, nil
	}
	readAddress := func() (string, error) {
		variant, err := readByte()
		if err != nil {
			return "", err
		}
		if variant == addressingRegisterBase {
			reg, err := readRegister()
			if err != nil {
				return "", err
			}
			offset, err := readUint64()
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("[%s+%d]", reg, offset), nil
		}
		base, err := readUint64()
		if err != nil {
			return "", err
		}
		offset, err := readUint64()
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("[0x%x+%d]", base, offset), nil
	}
	readImm := func(size ast.DataSize) (string, error) {
		n := size.Bytes()
		if off+n > len(body) {
			return "", fmt.Errorf("disasm: truncated immediate at offset %d", off)
		}
		b := body[off : off+n]
		off += n
		switch size {
		case ast.SizeFloat:
			return fmt.Sprintf("%g", math.Float32frombits(binary.LittleEndian.Uint32(b))), nil
		case ast.SizeDouble:
			return fmt.Sprintf("%g", math.Float64frombits(binary.LittleEndian.Uint64(b))), nil
		default:
			var v uint64
			switch size {
			case ast.SizeByte:
				v = uint64(b[0])
			case ast.SizeWord:
				v = uint64(binary.LittleEndian.Uint16(b))
			case ast.SizeDWord:
				v = uint64(binary.LittleEndian.Uint32(b))
			default:
				v = binary.LittleEndian.Uint64(b)
			}
			return fmt.Sprintf("%d", v), nil
		}
	}

	switch op {
	case compiler.Nop, compiler.Ret, compiler.Syscall, compiler.Hlt:
		// no operands

	case compiler.MovRegReg, compiler.CmpRegReg:
		dst, err := readRegister()
		if err != nil {
			return "", 0, err
		}
		src, err := readRegister()
		if err != nil {
			return "", 0, err
		}
		parts = append(parts, dst.String(), src.String())

	case compiler.MovRegImm:
		dst, err := readRegister()
		if err != nil {
			return "", 0, err
		}
		size, err := ast.DataSizeFromRegister(dst)
		if err != nil {
			return "", 0, err
		}
		imm, err := readImm(size)
		if err != nil {
			return "", 0, err
		}
		parts = append(parts, dst.String(), imm)

	case compiler.Ldr:
		reg, err := readRegister()
		if err != nil {
			return "", 0, err
		}
		addr, err := readAddress()
		if err != nil {
			return "", 0, err
		}
		parts = append(parts, reg.String(), addr)

	case compiler.Str:
		reg, err := readRegister()
		if err != nil {
			return "", 0, err
		}
		addr, err := readAddress()
		if err != nil {
			return "", 0, err
		}
		parts = append(parts, reg.String(), addr)

	case compiler.PushReg, compiler.PopReg:
		size, err := readDataSize()
		if err != nil {
			return "", 0, err
		}
		reg, err := readRegister()
		if err != nil {
			return "", 0, err
		}
		parts = append(parts, size.String(), reg.String())

	case compiler.PushImm:
		size, err := readDataSize()
		if err != nil {
			return "", 0, err
		}
		imm, err := readImm(size)
		if err != nil {
			return "", 0, err
		}
		parts = append(parts, size.String(), imm)

	case compiler.PushAddr, compiler.PopAddr:
		size, err := readDataSize()
		if err != nil {
			return "", 0, err
		}
		addr, err := readAddress()
		if err != nil {
			return "", 0, err
		}
		parts = append(parts, size.String(), addr)

	case compiler.AddRegRegReg, compiler.SubRegRegReg, compiler.MulRegRegReg, compiler.DivRegRegReg,
		compiler.AndRegRegReg, compiler.OrRegRegReg, compiler.XorRegRegReg,
		compiler.ShlRegRegReg, compiler.ShrRegRegReg:
		dst, err := readRegister()
		if err != nil {
			return "", 0, err
		}
		lhs, err := readRegister()
		if err != nil {
			return "", 0, err
		}
		rhs, err := readRegister()
		if err != nil {
			return "", 0, err
		}
		parts = append(parts, dst.String(), lhs.String(), rhs.String())

	case compiler.AddRegRegImm, compiler.SubRegRegImm, compiler.MulRegRegImm, compiler.DivRegRegImm,
		compiler.AndRegRegImm, compiler.OrRegRegImm, compiler.XorRegRegImm,
		compiler.ShlRegRegImm, compiler.ShrRegRegImm:
		dst, err := readRegister()
		if err != nil {
			return "", 0, err
		}
		lhs, err := readRegister()
		if err != nil {
			return "", 0, err
		}
		size, err := ast.DataSizeFromRegister(dst)
		if err != nil {
			return "", 0, err
		}
		imm, err := readImm(size)
		if err != nil {
			return "", 0, err
		}
		parts = append(parts, dst.String(), lhs.String(), imm)

	case compiler.CmpRegImm:
		reg, err := readRegister()
		if err != nil {
			return "", 0, err
		}
		size, err := ast.DataSizeFromRegister(reg)
		if err != nil {
			return "", 0, err
		}
		imm, err := readImm(size)
		if err != nil {
			return "", 0, err
		}
		parts = append(parts, reg.String(), imm)

	case compiler.JmpImm, compiler.JeqImm, compiler.JneImm, compiler.JltImm,
		compiler.JgtImm, compiler.JleImm, compiler.JgeImm, compiler.CallImm:
		target, err := readUint64()
		if err != nil {
			return "", 0, err
		}
		parts = append(parts, fmt.Sprintf("0x%x", target))

	case compiler.JmpReg, compiler.JeqReg, compiler.JneReg, compiler.JltReg,
		compiler.JgtReg, compiler.JleReg, compiler.JgeReg, compiler.CallReg:
		reg, err := readRegister()
		if err != nil {
			return "", 0, err
		}
		parts = append(parts, reg.String())

	case compiler.Inc, compiler.Dec:
		reg, err := readRegister()
		if err != nil {
			return "", 0, err
		}
		parts = append(parts, reg.String())

	default:
		return "", 0, fmt.Errorf("disasm: unhandled opcode %s", op)
	}

	return strings.Join(parts, ", "), off - start, nil
}

// Package compiler turns a preprocessed statement list into a bytecode
// image: an 8-byte little-endian entry-point header followed by the
// concatenated text and data sections (§3/§6).
package compiler

import (
	"encoding/binary"

	"github.com/samber/lo"

	"github.com/ranvm/ranvm/internal/ast"
	"github.com/ranvm/ranvm/internal/diag"
	"github.com/ranvm/ranvm/internal/span"
)

type labelLoc struct {
	section Section
	offset  int
}

type fixup struct {
	size  ast.DataSize
	label string
	span  span.Span
}

type entryKind int

const (
	entryAddress entryKind = iota
	entryFixup
)

type entryPoint struct {
	kind    entryKind
	address uint64
	label   string
	span    span.Span
}

// Compiler walks a flat, preprocessed statement list and emits a bytecode
// image. Labels are recorded as they're encountered; every operand that
// names a label, whether before or after its definition, is recorded as a
// fixup and resolved in a second pass once every label's address is known.
type Compiler struct {
	program        []ast.Statement
	bytecode       Bytecode
	labels         map[string]labelLoc
	fixups         map[lo.Tuple2[Section, int]]fixup
	currentSection Section
	entry          entryPoint
}

// New constructs a Compiler over an already-preprocessed statement list.
// The entry point defaults to offset 0 of the text section; an explicit
// `.entry` directive overrides this.
func New(program []ast.Statement) *Compiler {
	return &Compiler{
		program: program,
		labels:  make(map[string]labelLoc),
		fixups:  make(map[lo.Tuple2[Section, int]]fixup),
		entry:   entryPoint{kind: entryAddress, address: 0},
	}
}

// Compile produces the final image or the first diag.Error encountered.
func (c *Compiler) Compile() ([]byte, error) {
	for _, stmt := range c.program {
		if err := c.compileStatement(stmt); err != nil {
			return nil, err
		}
	}

	if err := c.resolveFixups(); err != nil {
		return nil, err
	}

	entryAddr, err := c.resolveEntry()
	if err != nil {
		return nil, err
	}

	header := make([]byte, 8)
	binary.LittleEndian.PutUint64(header, entryAddr)
	return append(header, c.bytecode.Finalize()...), nil
}

func (c *Compiler) compileStatement(stmt ast.Statement) error {
	switch s := stmt.(type) {
	case *ast.LabelStmt:
		if _, exists := c.labels[s.Name]; exists {
			return diag.New(diag.DuplicateLabel, s.Sp, s.Name)
		}
		c.labels[s.Name] = labelLoc{section: c.currentSection, offset: c.bytecode.Len(c.currentSection)}
		return nil

	case *ast.SectionStmt:
		c.currentSection = sectionFromKind(s.Kind)
		return nil

	case *ast.EntryStmt:
		return c.compileEntry(s.Target, s.Sp)

	case *ast.AsciiStmt:
		return c.compileAscii(s.Value, s.Sp, false)

	case *ast.AscizStmt:
		return c.compileAscii(s.Value, s.Sp, true)

	case *ast.NopStmt:
		c.bytecode.PushOpcode(c.currentSection, Nop)
		return nil

	case *ast.MovStmt:
		return c.compileMov(s.Dst, s.Src, s.Sp)

	case *ast.LdrStmt:
		return c.compileLdrOrStr(Ldr, s.Dst, s.Addr, s.Sp, "LDR")

	case *ast.StrStmt:
		return c.compileLdrOrStr(Str, s.Src, s.Addr, s.Sp, "STR")

	case *ast.PushStmt:
		return c.compilePush(s.Size, s.Operand, s.Sp)

	case *ast.PopStmt:
		return c.compilePop(s.Size, s.Operand, s.Sp)

	case *ast.ArithStmt:
		if isBitwiseOp(s.Op) {
			return c.compileBitwise(s.Op, s.Dst, s.Lhs, s.Rhs, s.Sp)
		}
		return c.compileArithmetic(s.Op, s.Dst, s.Lhs, s.Rhs, s.Sp)

	case *ast.CmpStmt:
		return c.compileCmp(s.Lhs, s.Rhs, s.Sp)

	case *ast.JumpStmt:
		return c.compileJump(s.Kind, s.Target, s.Sp)

	case *ast.CallStmt:
		return c.compileCall(s.Target, s.Sp)

	case *ast.RetStmt:
		c.bytecode.PushOpcode(c.currentSection, Ret)
		return nil

	case *ast.IncStmt:
		return c.compileIncOrDec(s.Reg, Inc, "INC", s.Sp)

	case *ast.DecStmt:
		return c.compileIncOrDec(s.Reg, Dec, "DEC", s.Sp)

	case *ast.SyscallStmt:
		c.bytecode.PushOpcode(c.currentSection, Syscall)
		return nil

	case *ast.HltStmt:
		c.bytecode.PushOpcode(c.currentSection, Hlt)
		return nil

	case *ast.DbStmt:
		return c.compileDb(s.Values, s.Sp)

	case *ast.ResbStmt:
		return c.compileResb(s.Count, s.Sp)

	default:
		return nil
	}
}

func sectionFromKind(k ast.SectionKind) Section {
	if k == ast.SectionData {
		return Data
	}
	return Text
}

func isBitwiseOp(op ast.BinaryOp) bool {
	switch op {
	case ast.OpAnd, ast.OpOr, ast.OpXor, ast.OpShl, ast.OpShr:
		return true
	default:
		return false
	}
}

func (c *Compiler) compileEntry(target ast.Expression, sp span.Span) error {
	switch t := target.(type) {
	case *ast.IntLiteral:
		c.entry = entryPoint{kind: entryAddress, address: uint64(t.Value)}
		return nil
	case *ast.Identifier:
		c.entry = entryPoint{kind: entryFixup, label: t.Name, span: sp}
		return nil
	default:
		return diag.New(diag.InvalidOperands, sp, "entry target must be an integer literal or a label")
	}
}

func (c *Compiler) compileAscii(value ast.Expression, sp span.Span, zeroTerminate bool) error {
	str, ok := value.(*ast.StringLiteral)
	if !ok {
		return diag.New(diag.InvalidExpression, sp, "expected string literal")
	}
	c.bytecode.Extend(c.currentSection, []byte(str.Value))
	if zeroTerminate {
		c.bytecode.Push(c.currentSection, 0)
	}
	return nil
}

func (c *Compiler) compileDb(values []ast.Expression, sp span.Span) error {
	for _, v := range values {
		switch e := v.(type) {
		case *ast.IntLiteral:
			c.bytecode.Push(c.currentSection, byte(e.Value))
		case *ast.StringLiteral:
			c.bytecode.Extend(c.currentSection, []byte(e.Value))
		default:
			return diag.New(diag.InvalidExpression, sp, "DB accepts only integer or string literals")
		}
	}
	return nil
}

func (c *Compiler) compileResb(count ast.Expression, sp span.Span) error {
	lit, ok := count.(*ast.IntLiteral)
	if !ok {
		return diag.New(diag.InvalidExpression, sp, "RESB count must be an integer literal")
	}
	for i := int64(0); i < lit.Value; i++ {
		c.bytecode.Push(c.currentSection, 0)
	}
	return nil
}

// compileMov handles reg<-reg, reg<-int, reg<-float, and reg<-identifier
// (a fixup sized to the destination register's width).
func (c *Compiler) compileMov(dst, src ast.Expression, sp span.Span) error {
	const inst = "MOV"

	dstReg, ok := dst.(*ast.RegisterExpr)
	if !ok {
		return diag.New(diag.InvalidOperands, sp, inst+": destination must be a register")
	}
	size, err := ast.DataSizeFromRegister(dstReg.Reg)
	if err != nil {
		return diag.Wrap(diag.InvalidRegister, sp, err)
	}

	switch s := src.(type) {
	case *ast.RegisterExpr:
		c.bytecode.PushOpcode(c.currentSection, MovRegReg)
		c.bytecode.PushRegister(c.currentSection, dstReg.Reg)
		c.bytecode.PushRegister(c.currentSection, s.Reg)
		return nil

	case *ast.IntLiteral:
		c.bytecode.PushOpcode(c.currentSection, MovRegImm)
		c.bytecode.PushRegister(c.currentSection, dstReg.Reg)
		return c.writeIntImmediate(size, s.Value, sp, inst)

	case *ast.FloatLiteral:
		c.bytecode.PushOpcode(c.currentSection, MovRegImm)
		c.bytecode.PushRegister(c.currentSection, dstReg.Reg)
		return c.writeFloatImmediate(size, s.Value, sp, inst)

	case *ast.Identifier:
		c.bytecode.PushOpcode(c.currentSection, MovRegImm)
		c.bytecode.PushRegister(c.currentSection, dstReg.Reg)
		c.recordFixup(size, s.Name, sp)
		c.bytecode.Extend(c.currentSection, make([]byte, size.Bytes()))
		return nil

	default:
		return diag.New(diag.InvalidOperands, sp, inst+": unsupported source operand")
	}
}

func (c *Compiler) writeIntImmediate(size ast.DataSize, v int64, sp span.Span, inst string) error {
	switch size {
	case ast.SizeByte:
		c.bytecode.Push(c.currentSection, byte(v))
	case ast.SizeWord:
		c.bytecode.ExtendUint16(c.currentSection, uint16(v))
	case ast.SizeDWord:
		c.bytecode.ExtendUint32(c.currentSection, uint32(v))
	case ast.SizeQWord:
		c.bytecode.ExtendUint64(c.currentSection, uint64(v))
	case ast.SizeFloat:
		c.bytecode.ExtendFloat32(c.currentSection, float32(v))
	case ast.SizeDouble:
		c.bytecode.ExtendFloat64(c.currentSection, float64(v))
	default:
		return diag.New(diag.InvalidDataSize, sp, inst)
	}
	return nil
}

func (c *Compiler) writeFloatImmediate(size ast.DataSize, v float64, sp span.Span, inst string) error {
	switch size {
	case ast.SizeFloat:
		c.bytecode.ExtendFloat32(c.currentSection, float32(v))
	case ast.SizeDouble:
		c.bytecode.ExtendFloat64(c.currentSection, v)
	default:
		return diag.New(diag.InvalidDataSize, sp, inst)
	}
	return nil
}

func (c *Compiler) recordFixup(size ast.DataSize, label string, sp span.Span) {
	offset := c.bytecode.Len(c.currentSection)
	c.fixups[lo.Tuple2[Section, int]{A: c.currentSection, B: offset}] = fixup{size: size, label: label, span: sp}
}

// compileLdrOrStr encodes the shared addressing-mode logic for LDR/STR:
// opcode, register operand, then the [base[, offset]] address.
func (c *Compiler) compileLdrOrStr(op Opcode, reg, addr ast.Expression, sp span.Span, inst string) error {
	regExpr, ok := reg.(*ast.RegisterExpr)
	if !ok {
		return diag.New(diag.InvalidOperands, sp, inst+": register operand required")
	}
	addrExpr, ok := addr.(*ast.Address)
	if !ok {
		return diag.New(diag.InvalidOperands, sp, inst+": address operand required")
	}

	c.bytecode.PushOpcode(c.currentSection, op)
	c.bytecode.PushRegister(c.currentSection, regExpr.Reg)
	return c.compileAddress(addrExpr, sp, inst)
}

// compileAddress emits the addressing-variant byte, the base bytes
// (register ordinal, or an 8-byte LE literal/fixup), and the 8-byte LE
// offset (zero when the source omitted it) (§4.2).
func (c *Compiler) compileAddress(addr *ast.Address, sp span.Span, inst string) error {
	var offsetVal int64
	if addr.Offset != nil {
		lit, ok := addr.Offset.(*ast.IntLiteral)
		if !ok {
			return diag.New(diag.InvalidOperands, sp, inst+": address offset must be an integer literal")
		}
		offsetVal = lit.Value
	}

	switch base := addr.Base.(type) {
	case *ast.RegisterExpr:
		c.bytecode.Push(c.currentSection, byte(addressingRegisterBase))
		c.bytecode.PushRegister(c.currentSection, base.Reg)
		c.bytecode.ExtendUint64(c.currentSection, uint64(offsetVal))
	case *ast.IntLiteral:
		c.bytecode.Push(c.currentSection, byte(addressingLiteralBase))
		c.bytecode.ExtendUint64(c.currentSection, uint64(base.Value))
		c.bytecode.ExtendUint64(c.currentSection, uint64(offsetVal))
	case *ast.Identifier:
		c.bytecode.Push(c.currentSection, byte(addressingLiteralBase))
		c.recordFixup(ast.SizeQWord, base.Name, sp)
		c.bytecode.ExtendUint64(c.currentSection, 0)
		c.bytecode.ExtendUint64(c.currentSection, uint64(offsetVal))
	default:
		return diag.New(diag.InvalidOperands, sp, inst+": address base must be a register, literal, or label")
	}
	return nil
}

// compilePush handles PushReg (size from the register when no prefix is
// given) and PushImm (the bare-identifier default of QWord). Pushing from
// an address always requires an explicit size prefix, matching the
// symmetric requirement on POP (§4.2) and the VM's decode contract, which
// unconditionally reads a size byte for PushAddr.
func (c *Compiler) compilePush(sizeExpr, operand ast.Expression, sp span.Span) error {
	const inst = "PUSH"

	switch op := operand.(type) {
	case *ast.RegisterExpr:
		size, err := c.resolveSizeOrFromRegister(sizeExpr, op.Reg, sp, inst)
		if err != nil {
			return err
		}
		c.bytecode.PushOpcode(c.currentSection, PushReg)
		c.bytecode.Push(c.currentSection, byte(size))
		c.bytecode.PushRegister(c.currentSection, op.Reg)
		return nil

	case *ast.Address:
		size, ok := c.sizeFromExpr(sizeExpr)
		if !ok {
			return diag.New(diag.InvalidOperands, sp, inst+": pushing from an address requires an explicit size")
		}
		c.bytecode.PushOpcode(c.currentSection, PushAddr)
		c.bytecode.Push(c.currentSection, byte(size))
		return c.compileAddress(op, sp, inst)

	case *ast.IntLiteral:
		size, ok := c.sizeFromExpr(sizeExpr)
		if !ok {
			return diag.New(diag.InvalidOperands, sp, inst+": an integer immediate requires an explicit size")
		}
		c.bytecode.PushOpcode(c.currentSection, PushImm)
		c.bytecode.Push(c.currentSection, byte(size))
		return c.writeIntImmediate(size, op.Value, sp, inst)

	case *ast.FloatLiteral:
		size, ok := c.sizeFromExpr(sizeExpr)
		if !ok {
			return diag.New(diag.InvalidOperands, sp, inst+": a float immediate requires an explicit size")
		}
		c.bytecode.PushOpcode(c.currentSection, PushImm)
		c.bytecode.Push(c.currentSection, byte(size))
		return c.writeFloatImmediate(size, op.Value, sp, inst)

	case *ast.Identifier:
		size, ok := c.sizeFromExpr(sizeExpr)
		if !ok {
			size = ast.SizeQWord
		}
		c.bytecode.PushOpcode(c.currentSection, PushImm)
		c.bytecode.Push(c.currentSection, byte(size))
		c.recordFixup(size, op.Name, sp)
		c.bytecode.Extend(c.currentSection, make([]byte, size.Bytes()))
		return nil

	default:
		return diag.New(diag.InvalidOperands, sp, inst+": unsupported operand")
	}
}

// compilePop mirrors PushReg/PushAddr. There is no register-less,
// size-less address form: popping to an address always requires an
// explicit size (§4.2).
func (c *Compiler) compilePop(sizeExpr, operand ast.Expression, sp span.Span) error {
	const inst = "POP"

	switch op := operand.(type) {
	case *ast.RegisterExpr:
		size, err := c.resolveSizeOrFromRegister(sizeExpr, op.Reg, sp, inst)
		if err != nil {
			return err
		}
		c.bytecode.PushOpcode(c.currentSection, PopReg)
		c.bytecode.Push(c.currentSection, byte(size))
		c.bytecode.PushRegister(c.currentSection, op.Reg)
		return nil

	case *ast.Address:
		size, ok := c.sizeFromExpr(sizeExpr)
		if !ok {
			return diag.New(diag.InvalidOperands, sp, inst+": popping to an address requires an explicit size")
		}
		c.bytecode.PushOpcode(c.currentSection, PopAddr)
		c.bytecode.Push(c.currentSection, byte(size))
		return c.compileAddress(op, sp, inst)

	default:
		return diag.New(diag.InvalidOperands, sp, inst+": unsupported operand")
	}
}

func (c *Compiler) sizeFromExpr(sizeExpr ast.Expression) (ast.DataSize, bool) {
	if sizeExpr == nil {
		return 0, false
	}
	size, ok := sizeExpr.(*ast.SizeExpr)
	if !ok {
		return 0, false
	}
	return size.Size, true
}

func (c *Compiler) resolveSizeOrFromRegister(sizeExpr ast.Expression, reg ast.Register, sp span.Span, inst string) (ast.DataSize, error) {
	if size, ok := c.sizeFromExpr(sizeExpr); ok {
		return size, nil
	}
	size, err := ast.DataSizeFromRegister(reg)
	if err != nil {
		return 0, diag.Wrap(diag.InvalidRegister, sp, err)
	}
	return size, nil
}

// compileArithmetic handles ADD/SUB/MUL/DIV, which (unlike the bitwise
// family) accept float and double operands (§4.2).
func (c *Compiler) compileArithmetic(op ast.BinaryOp, dst, lhs, rhs ast.Expression, sp span.Span) error {
	inst := op.String()

	dstReg, ok := dst.(*ast.RegisterExpr)
	if !ok {
		return diag.New(diag.InvalidOperands, sp, inst+": destination must be a register")
	}
	lhsReg, ok := lhs.(*ast.RegisterExpr)
	if !ok {
		return diag.New(diag.InvalidOperands, sp, inst+": left-hand operand must be a register")
	}

	switch r := rhs.(type) {
	case *ast.RegisterExpr:
		c.bytecode.PushOpcode(c.currentSection, arithRegRegRegOpcode(op))
		c.bytecode.PushRegister(c.currentSection, dstReg.Reg)
		c.bytecode.PushRegister(c.currentSection, lhsReg.Reg)
		c.bytecode.PushRegister(c.currentSection, r.Reg)
		return nil

	case *ast.IntLiteral:
		size, err := ast.DataSizeFromRegister(dstReg.Reg)
		if err != nil {
			return diag.Wrap(diag.InvalidRegister, sp, err)
		}
		c.bytecode.PushOpcode(c.currentSection, arithRegRegImmOpcode(op))
		c.bytecode.PushRegister(c.currentSection, dstReg.Reg)
		c.bytecode.PushRegister(c.currentSection, lhsReg.Reg)
		return c.writeIntImmediate(size, r.Value, sp, inst)

	case *ast.FloatLiteral:
		size, err := ast.DataSizeFromRegister(dstReg.Reg)
		if err != nil {
			return diag.Wrap(diag.InvalidRegister, sp, err)
		}
		if size != ast.SizeFloat && size != ast.SizeDouble {
			return diag.New(diag.InvalidDataSize, sp, inst)
		}
		c.bytecode.PushOpcode(c.currentSection, arithRegRegImmOpcode(op))
		c.bytecode.PushRegister(c.currentSection, dstReg.Reg)
		c.bytecode.PushRegister(c.currentSection, lhsReg.Reg)
		return c.writeFloatImmediate(size, r.Value, sp, inst)

	default:
		return diag.New(diag.InvalidOperands, sp, inst+": unsupported right-hand operand")
	}
}

func arithRegRegRegOpcode(op ast.BinaryOp) Opcode {
	switch op {
	case ast.OpAdd:
		return AddRegRegReg
	case ast.OpSub:
		return SubRegRegReg
	case ast.OpMul:
		return MulRegRegReg
	default:
		return DivRegRegReg
	}
}

func arithRegRegImmOpcode(op ast.BinaryOp) Opcode {
	switch op {
	case ast.OpAdd:
		return AddRegRegImm
	case ast.OpSub:
		return SubRegRegImm
	case ast.OpMul:
		return MulRegRegImm
	default:
		return DivRegRegImm
	}
}

// compileBitwise handles AND/OR/XOR/SHL/SHR, which reject float/double
// operands on either side (§4.2).
func (c *Compiler) compileBitwise(op ast.BinaryOp, dst, lhs, rhs ast.Expression, sp span.Span) error {
	inst := op.String()

	dstReg, ok := dst.(*ast.RegisterExpr)
	if !ok {
		return diag.New(diag.InvalidOperands, sp, inst+": destination must be a register")
	}
	if isFloatRegister(dstReg.Reg) {
		return diag.New(diag.InvalidOperands, sp, inst+": bitwise operations are not supported on floating-point registers")
	}
	lhsReg, ok := lhs.(*ast.RegisterExpr)
	if !ok {
		return diag.New(diag.InvalidOperands, sp, inst+": left-hand operand must be a register")
	}
	if isFloatRegister(lhsReg.Reg) {
		return diag.New(diag.InvalidOperands, sp, inst+": bitwise operations are not supported on floating-point registers")
	}

	switch r := rhs.(type) {
	case *ast.RegisterExpr:
		if isFloatRegister(r.Reg) {
			return diag.New(diag.InvalidOperands, sp, inst+": bitwise operations are not supported on floating-point registers")
		}
		c.bytecode.PushOpcode(c.currentSection, bitwiseRegRegRegOpcode(op))
		c.bytecode.PushRegister(c.currentSection, dstReg.Reg)
		c.bytecode.PushRegister(c.currentSection, lhsReg.Reg)
		c.bytecode.PushRegister(c.currentSection, r.Reg)
		return nil

	case *ast.IntLiteral:
		size, err := ast.DataSizeFromRegister(dstReg.Reg)
		if err != nil {
			return diag.Wrap(diag.InvalidRegister, sp, err)
		}
		if size == ast.SizeFloat || size == ast.SizeDouble {
			return diag.New(diag.InvalidDataSize, sp, inst)
		}
		c.bytecode.PushOpcode(c.currentSection, bitwiseRegRegImmOpcode(op))
		c.bytecode.PushRegister(c.currentSection, dstReg.Reg)
		c.bytecode.PushRegister(c.currentSection, lhsReg.Reg)
		return c.writeIntImmediate(size, r.Value, sp, inst)

	case *ast.FloatLiteral:
		return diag.New(diag.InvalidOperands, sp, inst+": bitwise operations are not supported with floating-point operands")

	default:
		return diag.New(diag.InvalidOperands, sp, inst+": unsupported right-hand operand")
	}
}

func isFloatRegister(r ast.Register) bool {
	size, err := ast.DataSizeFromRegister(r)
	if err != nil {
		return false
	}
	return size == ast.SizeFloat || size == ast.SizeDouble
}

func bitwiseRegRegRegOpcode(op ast.BinaryOp) Opcode {
	switch op {
	case ast.OpAnd:
		return AndRegRegReg
	case ast.OpOr:
		return OrRegRegReg
	case ast.OpXor:
		return XorRegRegReg
	case ast.OpShl:
		return ShlRegRegReg
	default:
		return ShrRegRegReg
	}
}

func bitwiseRegRegImmOpcode(op ast.BinaryOp) Opcode {
	switch op {
	case ast.OpAnd:
		return AndRegRegImm
	case ast.OpOr:
		return OrRegRegImm
	case ast.OpXor:
		return XorRegRegImm
	case ast.OpShl:
		return ShlRegRegImm
	default:
		return ShrRegRegImm
	}
}

func (c *Compiler) compileCmp(lhs, rhs ast.Expression, sp span.Span) error {
	const inst = "CMP"

	lhsReg, ok := lhs.(*ast.RegisterExpr)
	if !ok {
		return diag.New(diag.InvalidOperands, sp, inst+": left-hand operand must be a register")
	}

	switch r := rhs.(type) {
	case *ast.RegisterExpr:
		c.bytecode.PushOpcode(c.currentSection, CmpRegReg)
		c.bytecode.PushRegister(c.currentSection, lhsReg.Reg)
		c.bytecode.PushRegister(c.currentSection, r.Reg)
		return nil

	case *ast.IntLiteral:
		size, err := ast.DataSizeFromRegister(lhsReg.Reg)
		if err != nil {
			return diag.Wrap(diag.InvalidRegister, sp, err)
		}
		c.bytecode.PushOpcode(c.currentSection, CmpRegImm)
		c.bytecode.PushRegister(c.currentSection, lhsReg.Reg)
		return c.writeIntImmediate(size, r.Value, sp, inst)

	case *ast.FloatLiteral:
		size, err := ast.DataSizeFromRegister(lhsReg.Reg)
		if err != nil {
			return diag.Wrap(diag.InvalidRegister, sp, err)
		}
		if size != ast.SizeFloat && size != ast.SizeDouble {
			return diag.New(diag.InvalidDataSize, sp, inst)
		}
		c.bytecode.PushOpcode(c.currentSection, CmpRegImm)
		c.bytecode.PushRegister(c.currentSection, lhsReg.Reg)
		return c.writeFloatImmediate(size, r.Value, sp, inst)

	default:
		return diag.New(diag.InvalidOperands, sp, inst+": unsupported right-hand operand")
	}
}

// compileJump handles the unconditional/conditional jump family, each of
// which can target an immediate address, a register holding one, or a
// label (recorded as a fixup) (§4.3).
func (c *Compiler) compileJump(kind ast.JumpKind, target ast.Expression, sp span.Span) error {
	inst := jumpMnemonic(kind)

	switch t := target.(type) {
	case *ast.IntLiteral:
		c.bytecode.PushOpcode(c.currentSection, jumpImmOpcode(kind))
		c.bytecode.ExtendUint64(c.currentSection, uint64(t.Value))
		return nil

	case *ast.RegisterExpr:
		c.bytecode.PushOpcode(c.currentSection, jumpRegOpcode(kind))
		c.bytecode.PushRegister(c.currentSection, t.Reg)
		return nil

	case *ast.Identifier:
		c.bytecode.PushOpcode(c.currentSection, jumpImmOpcode(kind))
		c.recordFixup(ast.SizeQWord, t.Name, sp)
		c.bytecode.ExtendUint64(c.currentSection, 0)
		return nil

	default:
		return diag.New(diag.InvalidOperands, sp, inst+": unsupported operand")
	}
}

func jumpMnemonic(kind ast.JumpKind) string {
	switch kind {
	case ast.JumpUnconditional:
		return "JMP"
	case ast.JumpEq:
		return "JEQ"
	case ast.JumpNe:
		return "JNE"
	case ast.JumpLt:
		return "JLT"
	case ast.JumpGt:
		return "JGT"
	case ast.JumpLe:
		return "JLE"
	default:
		return "JGE"
	}
}

func jumpImmOpcode(kind ast.JumpKind) Opcode {
	switch kind {
	case ast.JumpUnconditional:
		return JmpImm
	case ast.JumpEq:
		return JeqImm
	case ast.JumpNe:
		return JneImm
	case ast.JumpLt:
		return JltImm
	case ast.JumpGt:
		return JgtImm
	case ast.JumpLe:
		return JleImm
	default:
		return JgeImm
	}
}

func jumpRegOpcode(kind ast.JumpKind) Opcode {
	switch kind {
	case ast.JumpUnconditional:
		return JmpReg
	case ast.JumpEq:
		return JeqReg
	case ast.JumpNe:
		return JneReg
	case ast.JumpLt:
		return JltReg
	case ast.JumpGt:
		return JgtReg
	case ast.JumpLe:
		return JleReg
	default:
		return JgeReg
	}
}

func (c *Compiler) compileCall(target ast.Expression, sp span.Span) error {
	const inst = "CALL"

	switch t := target.(type) {
	case *ast.IntLiteral:
		c.bytecode.PushOpcode(c.currentSection, CallImm)
		c.bytecode.ExtendUint64(c.currentSection, uint64(t.Value))
		return nil

	case *ast.RegisterExpr:
		c.bytecode.PushOpcode(c.currentSection, CallReg)
		c.bytecode.PushRegister(c.currentSection, t.Reg)
		return nil

	case *ast.Identifier:
		c.bytecode.PushOpcode(c.currentSection, CallImm)
		c.recordFixup(ast.SizeQWord, t.Name, sp)
		c.bytecode.ExtendUint64(c.currentSection, 0)
		return nil

	default:
		return diag.New(diag.InvalidOperands, sp, inst+": unsupported operand")
	}
}

func (c *Compiler) compileIncOrDec(reg ast.Expression, op Opcode, inst string, sp span.Span) error {
	r, ok := reg.(*ast.RegisterExpr)
	if !ok {
		return diag.New(diag.InvalidOperands, sp, inst+": operand must be a register")
	}
	c.bytecode.PushOpcode(c.currentSection, op)
	c.bytecode.PushRegister(c.currentSection, r.Reg)
	return nil
}

// resolveFixups drains the fixup table, looking up each label's recorded
// (section, offset) and writing its absolute address at the reserved
// position. A data-section label's absolute address is the length of the
// finished text section plus its offset within data (§3).
func (c *Compiler) resolveFixups() error {
	for key, fx := range c.fixups {
		loc, ok := c.labels[fx.label]
		if !ok {
			return diag.New(diag.UndefinedLabel, fx.span, fx.label)
		}
		addr := c.absoluteAddress(loc)

		switch fx.size {
		case ast.SizeByte:
			c.bytecode.WriteUint8At(key.A, key.B, uint8(addr))
		case ast.SizeWord:
			c.bytecode.WriteUint16At(key.A, key.B, uint16(addr))
		case ast.SizeDWord:
			c.bytecode.WriteUint32At(key.A, key.B, uint32(addr))
		case ast.SizeQWord:
			c.bytecode.WriteUint64At(key.A, key.B, addr)
		default:
			return diag.New(diag.InvalidDataSize, fx.span, fx.label)
		}
	}
	return nil
}

func (c *Compiler) absoluteAddress(loc labelLoc) uint64 {
	if loc.section == Text {
		return uint64(loc.offset)
	}
	return uint64(c.bytecode.Len(Text) + loc.offset)
}

func (c *Compiler) resolveEntry() (uint64, error) {
	if c.entry.kind == entryAddress {
		return c.entry.address, nil
	}
	loc, ok := c.labels[c.entry.label]
	if !ok {
		return 0, diag.New(diag.UndefinedLabel, c.entry.span, c.entry.label)
	}
	return c.absoluteAddress(loc), nil
}

// Package vm executes a compiled bytecode image: flat memory, a 16x4
// general register file plus float/double banks, and a single cooperative
// step()-per-instruction dispatch loop (§5).
package vm

import (
	"encoding/binary"
	"math"
	"os"

	"github.com/ranvm/ranvm/internal/ast"
	"github.com/ranvm/ranvm/internal/compiler"
)

// Addressing variant byte values are spec-mandated (§6.1), not internal to
// this toolchain, so they're duplicated here rather than imported.
const (
	addressingRegisterBase = 0x00
	addressingLiteralBase  = 0x01
)

// VM holds everything a running program can observe or mutate.
type VM struct {
	regs     Registers
	mem      *Memory
	flags    Flags
	syscalls map[uint64]syscallFunc
	devices  map[uint32]HardwareDevice
	halted   bool
}

// New loads image into a mem-size-byte address space and sets up the
// initial register state (§6.1 loader contract): IP at the header's
// entry-point offset, SP at the top of memory, BP at zero.
func New(image []byte, memSize int) (*VM, error) {
	if len(image) < 8 {
		return nil, errProgramTooSmall
	}
	entryPoint := binary.LittleEndian.Uint64(image[:8])
	body := image[8:]

	if entryPoint >= uint64(len(body)) {
		return nil, errInvalidEntryPoint
	}
	if len(body) > memSize {
		return nil, errProgramTooLarge
	}

	mem := newMemory(memSize)
	copy(mem.storage, body)

	v := &VM{
		mem:      mem,
		syscalls: baseSyscalls(),
		devices: map[uint32]HardwareDevice{
			0: newConsoleDevice(os.Stdout, os.Stdin),
		},
	}
	v.regs.SetIP(entryPoint)
	v.regs.SetSP(uint64(memSize))
	v.regs.SetBP(0)
	return v, nil
}

// RegisterDevice installs or replaces the device at the given ioctl index,
// letting a host swap in something other than the default console.
func (v *VM) RegisterDevice(index uint32, d HardwareDevice) {
	v.devices[index] = d
}

// Halted reports whether HLT has run.
func (v *VM) Halted() bool { return v.halted }

// Registers exposes the register file for inspection (tests, a disassembler,
// a REPL's register dump).
func (v *VM) Registers() *Registers { return &v.regs }

// Run steps until HLT or a fatal trap.
func (v *VM) Run() error {
	for !v.halted {
		if err := v.Step(); err != nil {
			return err
		}
	}
	return nil
}

// Step decodes and executes exactly one instruction.
func (v *VM) Step() error {
	if v.halted {
		return nil
	}

	op, err := v.readOpcode()
	if err != nil {
		return err
	}

	switch op {
	case compiler.Nop:
		return nil

	case compiler.MovRegReg:
		return v.execMovRegReg()
	case compiler.MovRegImm:
		return v.execMovRegImm()

	case compiler.Ldr:
		return v.execLdr()
	case compiler.Str:
		return v.execStr()

	case compiler.PushReg:
		return v.execPushReg()
	case compiler.PushImm:
		return v.execPushImm()
	case compiler.PushAddr:
		return v.execPushAddr()
	case compiler.PopReg:
		return v.execPopReg()
	case compiler.PopAddr:
		return v.execPopAddr()

	case compiler.AddRegRegReg:
		return v.execArithRegRegReg(opAdd)
	case compiler.AddRegRegImm:
		return v.execArithRegRegImm(opAdd)
	case compiler.SubRegRegReg:
		return v.execArithRegRegReg(opSub)
	case compiler.SubRegRegImm:
		return v.execArithRegRegImm(opSub)
	case compiler.MulRegRegReg:
		return v.execArithRegRegReg(opMul)
	case compiler.MulRegRegImm:
		return v.execArithRegRegImm(opMul)
	case compiler.DivRegRegReg:
		return v.execArithRegRegReg(opDiv)
	case compiler.DivRegRegImm:
		return v.execArithRegRegImm(opDiv)

	case compiler.AndRegRegReg:
		return v.execBitwiseRegRegReg(opAnd)
	case compiler.AndRegRegImm:
		return v.execBitwiseRegRegImm(opAnd)
	case compiler.OrRegRegReg:
		return v.execBitwiseRegRegReg(opOr)
	case compiler.OrRegRegImm:
		return v.execBitwiseRegRegImm(opOr)
	case compiler.XorRegRegReg:
		return v.execBitwiseRegRegReg(opXor)
	case compiler.XorRegRegImm:
		return v.execBitwiseRegRegImm(opXor)
	case compiler.ShlRegRegReg:
		return v.execShiftRegRegReg(opShl)
	case compiler.ShlRegRegImm:
		return v.execShiftRegRegImm(opShl)
	case compiler.ShrRegRegReg:
		return v.execShiftRegRegReg(opShr)
	case compiler.ShrRegRegImm:
		return v.execShiftRegRegImm(opShr)

	case compiler.CmpRegImm:
		return v.execCmpRegImm()
	case compiler.CmpRegReg:
		return v.execCmpRegReg()

	case compiler.JmpImm:
		return v.execJumpImm(func() bool { return true })
	case compiler.JmpReg:
		return v.execJumpReg(func() bool { return true })
	case compiler.JeqImm:
		return v.execJumpImm(func() bool { return v.flags.Eq })
	case compiler.JeqReg:
		return v.execJumpReg(func() bool { return v.flags.Eq })
	case compiler.JneImm:
		return v.execJumpImm(func() bool { return !v.flags.Eq })
	case compiler.JneReg:
		return v.execJumpReg(func() bool { return !v.flags.Eq })
	case compiler.JltImm:
		return v.execJumpImm(func() bool { return v.flags.Lt })
	case compiler.JltReg:
		return v.execJumpReg(func() bool { return v.flags.Lt })
	case compiler.JgtImm:
		// Preserved quirk (§9): fires on "not less than", which also
		// includes equality, not strictly-greater.
		return v.execJumpImm(func() bool { return !v.flags.Lt })
	case compiler.JgtReg:
		return v.execJumpReg(func() bool { return !v.flags.Lt })
	case compiler.JleImm:
		return v.execJumpImm(func() bool { return v.flags.Lt || v.flags.Eq })
	case compiler.JleReg:
		return v.execJumpReg(func() bool { return v.flags.Lt || v.flags.Eq })
	case compiler.JgeImm:
		// Preserved quirk (§9): the eq term is redundant with !Lt, kept to
		// match the original's condition exactly.
		return v.execJumpImm(func() bool { return !v.flags.Lt || v.flags.Eq })
	case compiler.JgeReg:
		return v.execJumpReg(func() bool { return !v.flags.Lt || v.flags.Eq })

	case compiler.CallImm:
		return v.execCallImm()
	case compiler.CallReg:
		return v.execCallReg()
	case compiler.Ret:
		return v.execRet()

	case compiler.Inc:
		return v.execIncDec(incImmediate)
	case compiler.Dec:
		return v.execIncDec(decImmediate)

	case compiler.Syscall:
		return v.execSyscall()

	case compiler.Hlt:
		v.halted = true
		return nil

	default:
		return errInvalidOpcode
	}
}

func (v *VM) execMovRegReg() error {
	dst, err := v.readRegister()
	if err != nil {
		return err
	}
	src, err := v.readRegister()
	if err != nil {
		return err
	}
	val, err := v.regs.Get(src)
	if err != nil {
		return err
	}
	return v.regs.Set(dst, val)
}

func (v *VM) execMovRegImm() error {
	dst, err := v.readRegister()
	if err != nil {
		return err
	}
	size, err := ast.DataSizeFromRegister(dst)
	if err != nil {
		return errInvalidRegister
	}
	imm, err := v.readImmediate(size)
	if err != nil {
		return err
	}
	return v.regs.Set(dst, imm)
}

func (v *VM) execLdr() error {
	dst, err := v.readRegister()
	if err != nil {
		return err
	}
	addr, err := v.readAddress()
	if err != nil {
		return err
	}
	size, err := ast.DataSizeFromRegister(dst)
	if err != nil {
		return errInvalidRegister
	}
	val, err := v.mem.Read(int(addr), size)
	if err != nil {
		return err
	}
	return v.regs.Set(dst, val)
}

func (v *VM) execStr() error {
	src, err := v.readRegister()
	if err != nil {
		return err
	}
	val, err := v.regs.Get(src)
	if err != nil {
		return err
	}
	addr, err := v.readAddress()
	if err != nil {
		return err
	}
	size, err := ast.DataSizeFromRegister(src)
	if err != nil {
		return errInvalidRegister
	}
	return v.mem.Write(int(addr), val, size)
}

func (v *VM) execPushReg() error {
	size, err := v.readDataSize()
	if err != nil {
		return err
	}
	src, err := v.readRegister()
	if err != nil {
		return err
	}
	val, err := v.regs.Get(src)
	if err != nil {
		return err
	}
	return v.push(val.ToSize(size), size)
}

func (v *VM) execPushImm() error {
	size, err := v.readDataSize()
	if err != nil {
		return err
	}
	imm, err := v.readImmediate(size)
	if err != nil {
		return err
	}
	return v.push(imm, size)
}

func (v *VM) execPushAddr() error {
	size, err := v.readDataSize()
	if err != nil {
		return err
	}
	addr, err := v.readAddress()
	if err != nil {
		return err
	}
	val, err := v.mem.Read(int(addr), size)
	if err != nil {
		return err
	}
	return v.push(val, size)
}

func (v *VM) execPopReg() error {
	size, err := v.readDataSize()
	if err != nil {
		return err
	}
	dst, err := v.readRegister()
	if err != nil {
		return err
	}
	val, err := v.pop(size)
	if err != nil {
		return err
	}
	return v.regs.Set(dst, val)
}

func (v *VM) execPopAddr() error {
	size, err := v.readDataSize()
	if err != nil {
		return err
	}
	addr, err := v.readAddress()
	if err != nil {
		return err
	}
	val, err := v.pop(size)
	if err != nil {
		return err
	}
	return v.mem.Write(int(addr), val, size)
}

// readAddress decodes the shared [base[, offset]] encoding used by
// LDR/STR/PushAddr/PopAddr (§4.2/§6.1).
func (v *VM) readAddress() (uint64, error) {
	variant, err := v.readByte()
	if err != nil {
		return 0, err
	}

	var base uint64
	switch variant {
	case addressingRegisterBase:
		reg, err := v.readRegister()
		if err != nil {
			return 0, err
		}
		regVal, err := v.regs.Get(reg)
		if err != nil {
			return 0, err
		}
		base = regVal.AsUint64()
	case addressingLiteralBase:
		base, err = v.readQWord()
		if err != nil {
			return 0, err
		}
	default:
		return 0, errUnknownAddressingVariant
	}

	offset, err := v.readQWord()
	if err != nil {
		return 0, err
	}
	return base + offset, nil
}

// execArithRegRegReg handles ADD/SUB/MUL/DIV's reg,reg,reg form. The
// destination register's width picks the int-vs-float path; float/double
// destinations run the operation in floating point (§4.2).
func (v *VM) execArithRegRegReg(kind opKind) error {
	dst, err := v.readRegister()
	if err != nil {
		return err
	}
	lhsReg, err := v.readRegister()
	if err != nil {
		return err
	}
	rhsReg, err := v.readRegister()
	if err != nil {
		return err
	}
	lhs, err := v.regs.Get(lhsReg)
	if err != nil {
		return err
	}
	rhs, err := v.regs.Get(rhsReg)
	if err != nil {
		return err
	}
	size, err := ast.DataSizeFromRegister(dst)
	if err != nil {
		return errInvalidRegister
	}
	return v.regs.Set(dst, arithResult(size, lhs, rhs, kind))
}

func (v *VM) execArithRegRegImm(kind opKind) error {
	dst, err := v.readRegister()
	if err != nil {
		return err
	}
	lhsReg, err := v.readRegister()
	if err != nil {
		return err
	}
	lhs, err := v.regs.Get(lhsReg)
	if err != nil {
		return err
	}
	size, err := ast.DataSizeFromRegister(dst)
	if err != nil {
		return errInvalidRegister
	}
	rhs, err := v.readImmediate(size)
	if err != nil {
		return err
	}
	return v.regs.Set(dst, arithResult(size, lhs, rhs, kind))
}

func arithResult(size ast.DataSize, lhs, rhs ast.Immediate, kind opKind) ast.Immediate {
	if size == ast.SizeFloat || size == ast.SizeDouble {
		r := applyFloat(kind, lhs.ToSize(size).AsFloat64(), rhs.ToSize(size).AsFloat64())
		if size == ast.SizeFloat {
			return ast.ImmFloat(float32(r))
		}
		return ast.ImmDouble(r)
	}
	r := applyInt(kind, lhs.ToSize(size).AsUint64(), rhs.ToSize(size).AsUint64())
	return maskImmediate(size, r)
}

// execBitwiseRegRegReg handles AND/OR/XOR's reg,reg,reg form. Float/double
// destinations are rejected; the compiler already refuses to emit these for
// float operands, but a hand-assembled or corrupted image could still name
// one, so the VM checks again (§9).
func (v *VM) execBitwiseRegRegReg(kind opKind) error {
	dst, err := v.readRegister()
	if err != nil {
		return err
	}
	lhsReg, err := v.readRegister()
	if err != nil {
		return err
	}
	rhsReg, err := v.readRegister()
	if err != nil {
		return err
	}
	lhs, err := v.regs.Get(lhsReg)
	if err != nil {
		return err
	}
	rhs, err := v.regs.Get(rhsReg)
	if err != nil {
		return err
	}
	size, err := ast.DataSizeFromRegister(dst)
	if err != nil {
		return errInvalidRegister
	}
	if size == ast.SizeFloat || size == ast.SizeDouble {
		return errInvalidDataSize
	}
	r := applyInt(kind, lhs.ToSize(size).AsUint64(), rhs.ToSize(size).AsUint64())
	return v.regs.Set(dst, maskImmediate(size, r))
}

func (v *VM) execBitwiseRegRegImm(kind opKind) error {
	dst, err := v.readRegister()
	if err != nil {
		return err
	}
	lhsReg, err := v.readRegister()
	if err != nil {
		return err
	}
	lhs, err := v.regs.Get(lhsReg)
	if err != nil {
		return err
	}
	size, err := ast.DataSizeFromRegister(dst)
	if err != nil {
		return errInvalidRegister
	}
	if size == ast.SizeFloat || size == ast.SizeDouble {
		return errInvalidDataSize
	}
	rhs, err := v.readImmediate(size)
	if err != nil {
		return err
	}
	r := applyInt(kind, lhs.ToSize(size).AsUint64(), rhs.ToSize(size).AsUint64())
	return v.regs.Set(dst, maskImmediate(size, r))
}

// execShiftRegRegReg handles SHL/SHR's reg,reg,reg form, masking the shift
// amount to the destination width's bit count (§9).
func (v *VM) execShiftRegRegReg(kind opKind) error {
	dst, err := v.readRegister()
	if err != nil {
		return err
	}
	lhsReg, err := v.readRegister()
	if err != nil {
		return err
	}
	rhsReg, err := v.readRegister()
	if err != nil {
		return err
	}
	lhs, err := v.regs.Get(lhsReg)
	if err != nil {
		return err
	}
	rhs, err := v.regs.Get(rhsReg)
	if err != nil {
		return err
	}
	size, err := ast.DataSizeFromRegister(dst)
	if err != nil {
		return errInvalidRegister
	}
	if size == ast.SizeFloat || size == ast.SizeDouble {
		return errInvalidDataSize
	}
	amount := rhs.ToSize(size).AsUint64() & shiftMask(size)
	r := applyInt(kind, lhs.ToSize(size).AsUint64(), amount)
	return v.regs.Set(dst, maskImmediate(size, r))
}

func (v *VM) execShiftRegRegImm(kind opKind) error {
	dst, err := v.readRegister()
	if err != nil {
		return err
	}
	lhsReg, err := v.readRegister()
	if err != nil {
		return err
	}
	lhs, err := v.regs.Get(lhsReg)
	if err != nil {
		return err
	}
	size, err := ast.DataSizeFromRegister(dst)
	if err != nil {
		return errInvalidRegister
	}
	if size == ast.SizeFloat || size == ast.SizeDouble {
		return errInvalidDataSize
	}
	rhs, err := v.readImmediate(size)
	if err != nil {
		return err
	}
	amount := rhs.ToSize(size).AsUint64() & shiftMask(size)
	r := applyInt(kind, lhs.ToSize(size).AsUint64(), amount)
	return v.regs.Set(dst, maskImmediate(size, r))
}

func (v *VM) execCmpRegImm() error {
	reg, err := v.readRegister()
	if err != nil {
		return err
	}
	lhs, err := v.regs.Get(reg)
	if err != nil {
		return err
	}
	size, err := ast.DataSizeFromRegister(reg)
	if err != nil {
		return errInvalidRegister
	}
	rhs, err := v.readImmediate(size)
	if err != nil {
		return err
	}
	v.flags.Eq = lhs.Equal(rhs)
	v.flags.Lt = lhs.Less(rhs)
	return nil
}

func (v *VM) execCmpRegReg() error {
	lhsReg, err := v.readRegister()
	if err != nil {
		return err
	}
	lhs, err := v.regs.Get(lhsReg)
	if err != nil {
		return err
	}
	rhsReg, err := v.readRegister()
	if err != nil {
		return err
	}
	rhs, err := v.regs.Get(rhsReg)
	if err != nil {
		return err
	}
	v.flags.Eq = lhs.Equal(rhs)
	v.flags.Lt = lhs.Less(rhs)
	return nil
}

func (v *VM) execJumpImm(take func() bool) error {
	addr, err := v.readQWord()
	if err != nil {
		return err
	}
	if take() {
		v.regs.SetIP(addr)
	}
	return nil
}

func (v *VM) execJumpReg(take func() bool) error {
	reg, err := v.readRegister()
	if err != nil {
		return err
	}
	regVal, err := v.regs.Get(reg)
	if err != nil {
		return err
	}
	if take() {
		v.regs.SetIP(regVal.AsUint64())
	}
	return nil
}

func (v *VM) execCallImm() error {
	addr, err := v.readQWord()
	if err != nil {
		return err
	}
	if err := v.push(ast.ImmQWord(v.regs.IP()), ast.SizeQWord); err != nil {
		return err
	}
	v.regs.SetIP(addr)
	return nil
}

func (v *VM) execCallReg() error {
	reg, err := v.readRegister()
	if err != nil {
		return err
	}
	regVal, err := v.regs.Get(reg)
	if err != nil {
		return err
	}
	if err := v.push(ast.ImmQWord(v.regs.IP()), ast.SizeQWord); err != nil {
		return err
	}
	v.regs.SetIP(regVal.AsUint64())
	return nil
}

func (v *VM) execRet() error {
	val, err := v.pop(ast.SizeQWord)
	if err != nil {
		return err
	}
	v.regs.SetIP(val.AsUint64())
	return nil
}

func (v *VM) execIncDec(f func(ast.Immediate) ast.Immediate) error {
	reg, err := v.readRegister()
	if err != nil {
		return err
	}
	val, err := v.regs.Get(reg)
	if err != nil {
		return err
	}
	return v.regs.Set(reg, f(val))
}

func incImmediate(val ast.Immediate) ast.Immediate {
	switch val.Size {
	case ast.SizeFloat:
		return ast.ImmFloat(float32(val.AsFloat64() + 1))
	case ast.SizeDouble:
		return ast.ImmDouble(val.AsFloat64() + 1)
	default:
		return maskImmediate(val.Size, val.AsUint64()+1)
	}
}

func decImmediate(val ast.Immediate) ast.Immediate {
	switch val.Size {
	case ast.SizeFloat:
		return ast.ImmFloat(float32(val.AsFloat64() - 1))
	case ast.SizeDouble:
		return ast.ImmDouble(val.AsFloat64() - 1)
	default:
		return maskImmediate(val.Size, val.AsUint64()-1)
	}
}

func (v *VM) execSyscall() error {
	idxReg, err := v.regs.Get(ast.Q15)
	if err != nil {
		return err
	}
	fn, ok := v.syscalls[idxReg.AsUint64()]
	if !ok {
		return errUnknownSyscall
	}
	return fn(v)
}

// push/pop implement the stack discipline shared by every PUSH/POP variant
// and by CALL/RET's implicit return-address slot (§4.3).
func (v *VM) push(value ast.Immediate, size ast.DataSize) error {
	n := uint64(size.Bytes())
	if v.regs.SP() < n {
		return errStackOverflow
	}
	newSP := v.regs.SP() - n
	if err := v.mem.Write(int(newSP), value, size); err != nil {
		return err
	}
	v.regs.SetSP(newSP)
	return nil
}

func (v *VM) pop(size ast.DataSize) (ast.Immediate, error) {
	n := uint64(size.Bytes())
	if v.regs.SP()+n > uint64(v.mem.Len()) {
		return ast.Immediate{}, errStackUnderflow
	}
	val, err := v.mem.Read(int(v.regs.SP()), size)
	if err != nil {
		return ast.Immediate{}, err
	}
	v.regs.SetSP(v.regs.SP() + n)
	return val, nil
}

func (v *VM) readByte() (byte, error) {
	ip := v.regs.IP()
	if ip >= uint64(v.mem.Len()) {
		return 0, errInstructionPointerOutOfBounds
	}
	b := v.mem.storage[ip]
	v.regs.SetIP(ip + 1)
	return b, nil
}

func (v *VM) readWord() (uint16, error) {
	ip := v.regs.IP()
	if ip+2 > uint64(v.mem.Len()) {
		return 0, errInstructionPointerOutOfBounds
	}
	w := binary.LittleEndian.Uint16(v.mem.storage[ip : ip+2])
	v.regs.SetIP(ip + 2)
	return w, nil
}

func (v *VM) readDWord() (uint32, error) {
	ip := v.regs.IP()
	if ip+4 > uint64(v.mem.Len()) {
		return 0, errInstructionPointerOutOfBounds
	}
	d := binary.LittleEndian.Uint32(v.mem.storage[ip : ip+4])
	v.regs.SetIP(ip + 4)
	return d, nil
}

func (v *VM) readQWord() (uint64, error) {
	ip := v.regs.IP()
	if ip+8 > uint64(v.mem.Len()) {
		return 0, errInstructionPointerOutOfBounds
	}
	q := binary.LittleEndian.Uint64(v.mem.storage[ip : ip+8])
	v.regs.SetIP(ip + 8)
	return q, nil
}

func (v *VM) readFloat() (float32, error) {
	bits, err := v.readDWord()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(bits), nil
}

func (v *VM) readDouble() (float64, error) {
	bits, err := v.readQWord()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(bits), nil
}

func (v *VM) readRegister() (ast.Register, error) {
	b, err := v.readByte()
	if err != nil {
		return 0, err
	}
	if b > byte(ast.MaxRegister) {
		return 0, errInvalidRegister
	}
	return ast.Register(b), nil
}

func (v *VM) readDataSize() (ast.DataSize, error) {
	b, err := v.readByte()
	if err != nil {
		return 0, err
	}
	if !ast.ValidDataSize(b) {
		return 0, errInvalidDataSize
	}
	return ast.DataSize(b), nil
}

func (v *VM) readOpcode() (compiler.Opcode, error) {
	b, err := v.readByte()
	if err != nil {
		return 0, err
	}
	if !compiler.ValidOpcode(b) {
		return 0, errInvalidOpcode
	}
	return compiler.Opcode(b), nil
}

func (v *VM) readImmediate(size ast.DataSize) (ast.Immediate, error) {
	switch size {
	case ast.SizeByte:
		b, err := v.readByte()
		return ast.ImmByte(b), err
	case ast.SizeWord:
		w, err := v.readWord()
		return ast.ImmWord(w), err
	case ast.SizeDWord:
		d, err := v.readDWord()
		return ast.ImmDWord(d), err
	case ast.SizeQWord:
		q, err := v.readQWord()
		return ast.ImmQWord(q), err
	case ast.SizeFloat:
		f, err := v.readFloat()
		return ast.ImmFloat(f), err
	default:
		d, err := v.readDouble()
		return ast.ImmDouble(d), err
	}
}

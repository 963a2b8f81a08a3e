package vm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ranvm/ranvm/internal/ast"
	"github.com/ranvm/ranvm/internal/compiler"
	"github.com/ranvm/ranvm/internal/parser"
	"github.com/ranvm/ranvm/internal/preprocessor"
)

func build(t *testing.T, src string) []byte {
	t.Helper()
	stmts, err := parser.New(src).Parse()
	require.NoError(t, err)
	processed, err := preprocessor.New(stmts).Process()
	require.NoError(t, err)
	image, err := compiler.New(processed).Compile()
	require.NoError(t, err)
	return image
}

func run(t *testing.T, src string, memSize int) *VM {
	t.Helper()
	v, err := New(build(t, src), memSize)
	require.NoError(t, err)
	require.NoError(t, v.Run())
	return v
}

func TestNopHltAdvancesInstructionPointer(t *testing.T) {
	v := run(t, "nop\nhlt\n", 64)
	assert.True(t, v.Halted())
	assert.EqualValues(t, 2, v.Registers().IP())
}

func TestMovRegImmSetsRegister(t *testing.T) {
	v := run(t, "mov q0, 1337\nhlt\n", 64)
	q0, err := v.Registers().Get(ast.Q0)
	require.NoError(t, err)
	assert.EqualValues(t, 1337, q0.AsUint64())
}

func TestAddRegRegReg(t *testing.T) {
	v := run(t, "mov q0, 10\nmov q1, 5\nadd q2, q0, q1\nhlt\n", 64)
	q2, err := v.Registers().Get(ast.Q2)
	require.NoError(t, err)
	assert.EqualValues(t, 15, q2.AsUint64())
}

func TestLabelOffsetResolvesToAbsoluteAddress(t *testing.T) {
	v := run(t, "mov b0, exit\nexit:\nhlt\n", 64)
	b0, err := v.Registers().Get(ast.B0)
	require.NoError(t, err)
	assert.EqualValues(t, 3, b0.AsUint64())
}

func TestPreprocessorConstantFeedsArithmetic(t *testing.T) {
	src := "#define FIRST 10\n#define SECOND 5\nmov q0, FIRST\nadd q1, q0, SECOND\nhlt\n"
	v := run(t, src, 64)
	q1, err := v.Registers().Get(ast.Q1)
	require.NoError(t, err)
	assert.EqualValues(t, 15, q1.AsUint64())
}

func TestPushPopQWordRoundTrip(t *testing.T) {
	v := run(t, "push qword 1337\npop qword q0\nhlt\n", 64)
	q0, err := v.Registers().Get(ast.Q0)
	require.NoError(t, err)
	assert.EqualValues(t, 1337, q0.AsUint64())
	assert.EqualValues(t, 64, v.Registers().SP())
}

func TestCallRetRoundTrip(t *testing.T) {
	src := "call f\nhlt\nf:\nmov q15, 1337\nret\n"
	v := run(t, src, 64)
	q15, err := v.Registers().Get(ast.Q15)
	require.NoError(t, err)
	assert.EqualValues(t, 1337, q15.AsUint64())
	assert.EqualValues(t, 10, v.Registers().IP())
}

func TestJgtFiresOnEquality(t *testing.T) {
	// Preserved quirk (§9): jgt dispatches on "not less than", so an equal
	// comparison also takes the branch.
	src := "mov q0, 5\ncmp q0, 5\njgt hit\nmov q1, 99\nhlt\nhit:\nmov q1, 1\nhlt\n"
	v := run(t, src, 64)
	q1, err := v.Registers().Get(ast.Q1)
	require.NoError(t, err)
	assert.EqualValues(t, 1, q1.AsUint64())
}

func TestJgeFiresOnEquality(t *testing.T) {
	src := "mov q0, 5\ncmp q0, 5\njge hit\nmov q1, 99\nhlt\nhit:\nmov q1, 1\nhlt\n"
	v := run(t, src, 64)
	q1, err := v.Registers().Get(ast.Q1)
	require.NoError(t, err)
	assert.EqualValues(t, 1, q1.AsUint64())
}

func TestJltDoesNotFireOnEquality(t *testing.T) {
	src := "mov q0, 5\ncmp q0, 5\njlt hit\nmov q1, 99\nhlt\nhit:\nmov q1, 1\nhlt\n"
	v := run(t, src, 64)
	q1, err := v.Registers().Get(ast.Q1)
	require.NoError(t, err)
	assert.EqualValues(t, 99, q1.AsUint64())
}

func TestCmpSetsLtFlagOnLesser(t *testing.T) {
	src := "mov q0, 3\ncmp q0, 5\njlt hit\nmov q1, 99\nhlt\nhit:\nmov q1, 1\nhlt\n"
	v := run(t, src, 64)
	q1, err := v.Registers().Get(ast.Q1)
	require.NoError(t, err)
	assert.EqualValues(t, 1, q1.AsUint64())
}

// Sub-register merge semantics (§4.1): writing a narrower view preserves the
// untouched upper bits of the backing 64-bit general-purpose slot, except
// QWord which replaces the whole value and DWord which zero-extends.
func TestRegisterAliasingByteMerge(t *testing.T) {
	v := run(t, "nop\nhlt\n", 64)
	regs := v.Registers()
	require.NoError(t, regs.Set(ast.Q0, ast.ImmQWord(0xffffffffffffffff)))
	require.NoError(t, regs.Set(ast.B0, ast.ImmByte(0xab)))
	q0, err := regs.Get(ast.Q0)
	require.NoError(t, err)
	assert.EqualValues(t, 0xffffffffffffffab, q0.AsUint64())
}

func TestRegisterAliasingWordMerge(t *testing.T) {
	v := run(t, "nop\nhlt\n", 64)
	regs := v.Registers()
	require.NoError(t, regs.Set(ast.Q0, ast.ImmQWord(0xffffffffffffffff)))
	require.NoError(t, regs.Set(ast.W0, ast.ImmWord(0xabcd)))
	q0, err := regs.Get(ast.Q0)
	require.NoError(t, err)
	assert.EqualValues(t, 0xffffffffffffabcd, q0.AsUint64())
}

func TestRegisterAliasingDWordZeroExtends(t *testing.T) {
	v := run(t, "nop\nhlt\n", 64)
	regs := v.Registers()
	require.NoError(t, regs.Set(ast.Q0, ast.ImmQWord(0xffffffffffffffff)))
	require.NoError(t, regs.Set(ast.D0, ast.ImmDWord(0xdeadbeef)))
	q0, err := regs.Get(ast.Q0)
	require.NoError(t, err)
	assert.EqualValues(t, 0x00000000deadbeef, q0.AsUint64())
}

func TestRegisterAliasingQWordReplacesWhole(t *testing.T) {
	v := run(t, "nop\nhlt\n", 64)
	regs := v.Registers()
	require.NoError(t, regs.Set(ast.Q0, ast.ImmQWord(0xffffffffffffffff)))
	require.NoError(t, regs.Set(ast.Q0, ast.ImmQWord(0x1122334455667788)))
	q0, err := regs.Get(ast.Q0)
	require.NoError(t, err)
	assert.EqualValues(t, 0x1122334455667788, q0.AsUint64())
}

func TestRegisterDoublesAreNotAliasedWithFloats(t *testing.T) {
	v := run(t, "nop\nhlt\n", 64)
	regs := v.Registers()
	require.NoError(t, regs.Set(ast.FF0, ast.ImmFloat(1.5)))
	require.NoError(t, regs.Set(ast.DD0, ast.ImmDouble(2.5)))
	ff0, err := regs.Get(ast.FF0)
	require.NoError(t, err)
	dd0, err := regs.Get(ast.DD0)
	require.NoError(t, err)
	assert.EqualValues(t, float32(1.5), float32(ff0.AsFloat64()))
	assert.EqualValues(t, 2.5, dd0.AsFloat64())
}

func TestInvalidOpcodeHalts(t *testing.T) {
	image := make([]byte, 8+2)
	image[8] = 0xff // not a valid compiler.Opcode
	image[9] = byte(compiler.Hlt)
	v, err := New(image, 64)
	require.NoError(t, err)
	err = v.Run()
	assert.ErrorIs(t, err, errInvalidOpcode)
}

func TestStackOverflowOnPushBeyondStackBase(t *testing.T) {
	src := "mov q0, 1\npush qword q0\npush qword q0\npush qword q0\nhlt\n"
	v, err := New(build(t, src), 64)
	require.NoError(t, err)
	// Room for exactly one qword below SP: the first push lands on the
	// already-executed mov, the second finds no space left.
	v.Registers().SetSP(8)
	err = v.Run()
	assert.ErrorIs(t, err, errStackOverflow)
}

func TestStackUnderflowOnPopBeyondStackTop(t *testing.T) {
	v, err := New(build(t, "pop qword q0\nhlt\n"), 64)
	require.NoError(t, err)
	v.Registers().SetSP(64)
	err = v.Run()
	assert.ErrorIs(t, err, errStackUnderflow)
}

func TestProgramTooSmallBelowHeaderSize(t *testing.T) {
	_, err := New([]byte{0, 1, 2}, 64)
	assert.ErrorIs(t, err, errProgramTooSmall)
}

func TestProgramTooLargeForMemory(t *testing.T) {
	image := build(t, "nop\nhlt\n")
	_, err := New(image, 1)
	assert.ErrorIs(t, err, errProgramTooLarge)
}

func TestInvalidEntryPointBeyondBody(t *testing.T) {
	image := build(t, "nop\nhlt\n")
	for i := range image[:8] {
		image[i] = 0xff
	}
	_, err := New(image, 64)
	assert.ErrorIs(t, err, errInvalidEntryPoint)
}

func TestSyscallWriteNegativeFdRoutesToConsole(t *testing.T) {
	src := "mov d0, 0xffffffff\nmov q1, 0\nmov q2, 3\nmov q15, 3\nsyscall\nhlt\n"
	image := build(t, src)
	v, err := New(image, 64)
	require.NoError(t, err)

	var out strings.Builder
	v.RegisterDevice(0, newConsoleDevice(&out, strings.NewReader("")))
	require.NoError(t, v.Run())

	q0, err := v.Registers().Get(ast.Q0)
	require.NoError(t, err)
	assert.EqualValues(t, 3, q0.AsUint64())
}

func TestSyscallUnknownIndexErrors(t *testing.T) {
	v, err := New(build(t, "mov q15, 99999\nsyscall\nhlt\n"), 64)
	require.NoError(t, err)
	err = v.Run()
	assert.ErrorIs(t, err, errUnknownSyscall)
}

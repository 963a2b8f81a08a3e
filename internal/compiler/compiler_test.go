package compiler

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ranvm/ranvm/internal/ast"
	"github.com/ranvm/ranvm/internal/diag"
	"github.com/ranvm/ranvm/internal/parser"
	"github.com/ranvm/ranvm/internal/preprocessor"
)

func build(t *testing.T, src string) []byte {
	t.Helper()
	stmts, err := parser.New(src).Parse()
	require.NoError(t, err)
	processed, err := preprocessor.New(stmts).Process()
	require.NoError(t, err)
	image, err := New(processed).Compile()
	require.NoError(t, err)
	return image
}

func buildErr(t *testing.T, src string) error {
	t.Helper()
	stmts, err := parser.New(src).Parse()
	require.NoError(t, err)
	processed, err := preprocessor.New(stmts).Process()
	require.NoError(t, err)
	_, err = New(processed).Compile()
	return err
}

func entryOf(image []byte) uint64 {
	return binary.LittleEndian.Uint64(image[:8])
}

func TestEntryDefaultsToZero(t *testing.T) {
	image := build(t, "nop\nhlt\n")
	assert.EqualValues(t, 0, entryOf(image))
	assert.Equal(t, []byte{byte(Nop), byte(Hlt)}, image[8:])
}

func TestLabelForwardReferenceResolves(t *testing.T) {
	image := build(t, "jmp loop\nnop\nloop:\nhlt\n")
	body := image[8:]
	// jmp.i opcode, then 8-byte LE target.
	require.Equal(t, byte(JmpImm), body[0])
	target := binary.LittleEndian.Uint64(body[1:9])
	assert.EqualValues(t, len(body)-1, target) // label sits right before hlt
}

func TestEntryDirectiveResolvesToLabel(t *testing.T) {
	image := build(t, ".entry start\nnop\nstart:\nhlt\n")
	assert.EqualValues(t, 1, entryOf(image))
}

func TestDataLabelAddressOffsetByTextLength(t *testing.T) {
	image := build(t, ".section text\nmov q0, value\nhlt\n.section data\nvalue:\ndb 42\n")
	body := image[8:]
	// mov.ri opcode, dest register, then 8-byte LE fixed-up address.
	addr := binary.LittleEndian.Uint64(body[2:10])
	textLen := len(body) - 1 // one data byte trails the text section
	assert.EqualValues(t, textLen, addr)
}

func TestMovRegImmEncodesDestSizeWidth(t *testing.T) {
	image := build(t, "mov b0, 7\n")
	body := image[8:]
	assert.Equal(t, byte(MovRegImm), body[0])
	assert.Len(t, body, 1+1+1) // opcode + register + 1-byte immediate
}

func TestPushRegDerivesSizeFromRegister(t *testing.T) {
	image := build(t, "push q0\n")
	body := image[8:]
	assert.Equal(t, byte(PushReg), body[0])
	assert.EqualValues(t, 3, body[1]) // SizeQWord
}

func TestPushIdentifierDefaultsToQWord(t *testing.T) {
	image := build(t, "push thing\nhlt\nthing:\n")
	body := image[8:]
	assert.Equal(t, byte(PushImm), body[0])
	assert.EqualValues(t, 3, body[1]) // SizeQWord
}

func TestPushAddressWithoutSizeIsRejected(t *testing.T) {
	err := buildErr(t, "push [q0]\n")
	require.Error(t, err)
	var de *diag.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, diag.InvalidOperands, de.Kind)
}

func TestPopAddressWithoutSizeIsRejected(t *testing.T) {
	err := buildErr(t, "pop [q0]\n")
	require.Error(t, err)
	var de *diag.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, diag.InvalidOperands, de.Kind)
}

func TestPushPopAddressWithSizeEncodesSymmetrically(t *testing.T) {
	image := build(t, "push qword [q0]\npop qword [q0]\n")
	body := image[8:]
	assert.Equal(t, byte(PushAddr), body[0])
	assert.EqualValues(t, 3, body[1])
	popStart := 1 + 1 + 1 + 1 + 8 // opcode+size+variant+reg+offset
	assert.Equal(t, byte(PopAddr), body[popStart])
}

func TestBitwiseRejectsFloatRegister(t *testing.T) {
	err := buildErr(t, "and ff0, ff1, ff2\n")
	require.Error(t, err)
	var de *diag.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, diag.InvalidOperands, de.Kind)
}

func TestArithmeticAcceptsFloatRegister(t *testing.T) {
	image := build(t, "add ff0, ff1, 1.5\n")
	body := image[8:]
	assert.Equal(t, byte(AddRegRegImm), body[0])
	bits := binary.LittleEndian.Uint32(body[3:7])
	assert.InDelta(t, 1.5, float64(math.Float32frombits(bits)), 1e-6)
}

func TestUndefinedLabelErrors(t *testing.T) {
	err := buildErr(t, "jmp nowhere\n")
	require.Error(t, err)
	var de *diag.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, diag.UndefinedLabel, de.Kind)
}

func TestDuplicateLabelErrors(t *testing.T) {
	err := buildErr(t, "loop:\nnop\nloop:\nhlt\n")
	require.Error(t, err)
	var de *diag.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, diag.DuplicateLabel, de.Kind)
}

func TestCallImmAndRet(t *testing.T) {
	image := build(t, "call fn\nhlt\nfn:\nret\n")
	body := image[8:]
	assert.Equal(t, byte(CallImm), body[0])
	target := binary.LittleEndian.Uint64(body[1:9])
	assert.EqualValues(t, len(body)-1, target)
	assert.Equal(t, byte(Ret), body[len(body)-1])
}

func TestIncDecEncodeSingleRegisterOperand(t *testing.T) {
	image := build(t, "inc q0\ndec q0\n")
	body := image[8:]
	assert.Equal(t, []byte{byte(Inc), byte(ast.Q0), byte(Dec), byte(ast.Q0)}, body)
}

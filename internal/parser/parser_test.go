package parser

import (
	"testing"

	"github.com/ranvm/ranvm/internal/ast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseOne(t *testing.T, src string) ast.Statement {
	t.Helper()
	stmts, err := New(src).Parse()
	require.NoError(t, err)
	require.Len(t, stmts, 1)
	return stmts[0]
}

func TestParseLabel(t *testing.T) {
	stmt := parseOne(t, "start:")
	label, ok := stmt.(*ast.LabelStmt)
	require.True(t, ok)
	assert.Equal(t, "start", label.Name)
}

func TestParseMov(t *testing.T) {
	stmt := parseOne(t, "mov q0, 42")
	mov, ok := stmt.(*ast.MovStmt)
	require.True(t, ok)
	reg, ok := mov.Dst.(*ast.RegisterExpr)
	require.True(t, ok)
	assert.Equal(t, ast.Q0, reg.Reg)
	lit, ok := mov.Src.(*ast.IntLiteral)
	require.True(t, ok)
	assert.EqualValues(t, 42, lit.Value)
}

func TestParseArithPrecedence(t *testing.T) {
	stmt := parseOne(t, "add q0, q1, 1 + 2 * 3")
	arith, ok := stmt.(*ast.ArithStmt)
	require.True(t, ok)
	assert.Equal(t, ast.OpAdd, arith.Op)

	bin, ok := arith.Rhs.(*ast.BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, ast.OpAdd, bin.Op)

	rhs, ok := bin.Rhs.(*ast.BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, ast.OpMul, rhs.Op)
}

func TestParseAddressWithOffset(t *testing.T) {
	stmt := parseOne(t, "ldr q0, [q1, 8]")
	ldr, ok := stmt.(*ast.LdrStmt)
	require.True(t, ok)
	addr, ok := ldr.Addr.(*ast.Address)
	require.True(t, ok)
	require.NotNil(t, addr.Offset)
	lit, ok := addr.Offset.(*ast.IntLiteral)
	require.True(t, ok)
	assert.EqualValues(t, 8, lit.Value)
}

func TestParseAddressWithoutOffset(t *testing.T) {
	stmt := parseOne(t, "ldr q0, [q1]")
	ldr := stmt.(*ast.LdrStmt)
	addr := ldr.Addr.(*ast.Address)
	assert.Nil(t, addr.Offset)
}

func TestParsePushWithSizePrefix(t *testing.T) {
	stmt := parseOne(t, "push qword 1337")
	push, ok := stmt.(*ast.PushStmt)
	require.True(t, ok)
	require.NotNil(t, push.Size)
	size, ok := push.Size.(*ast.SizeExpr)
	require.True(t, ok)
	assert.Equal(t, ast.SizeQWord, size.Size)
}

func TestParsePushWithoutSizePrefix(t *testing.T) {
	stmt := parseOne(t, "push q0")
	push := stmt.(*ast.PushStmt)
	assert.Nil(t, push.Size)
}

func TestParseJumpVariants(t *testing.T) {
	cases := map[string]ast.JumpKind{
		"jmp loop": ast.JumpUnconditional,
		"jeq loop": ast.JumpEq,
		"jne loop": ast.JumpNe,
		"jlt loop": ast.JumpLt,
		"jgt loop": ast.JumpGt,
		"jle loop": ast.JumpLe,
		"jge loop": ast.JumpGe,
	}
	for src, want := range cases {
		jmp := parseOne(t, src).(*ast.JumpStmt)
		assert.Equal(t, want, jmp.Kind, src)
	}
}

func TestParseDbMultipleValues(t *testing.T) {
	stmt := parseOne(t, `db 1, 2, "hi"`)
	db, ok := stmt.(*ast.DbStmt)
	require.True(t, ok)
	require.Len(t, db.Values, 3)
	str, ok := db.Values[2].(*ast.StringLiteral)
	require.True(t, ok)
	assert.Equal(t, "hi", str.Value)
}

func TestParseDefine(t *testing.T) {
	stmt := parseOne(t, "#define FOO 10")
	def := stmt.(*ast.DefineStmt)
	key := def.Key.(*ast.Identifier)
	assert.Equal(t, "FOO", key.Name)
}

func TestParseSection(t *testing.T) {
	stmt := parseOne(t, ".section text")
	sec := stmt.(*ast.SectionStmt)
	assert.Equal(t, ast.SectionText, sec.Kind)
}

func TestParseUnexpectedTokenError(t *testing.T) {
	_, err := New(", bogus").Parse()
	assert.Error(t, err)
}

func TestParseUnclosedBracketError(t *testing.T) {
	_, err := New("ldr q0, [q1").Parse()
	assert.Error(t, err)
}

func TestParseHexBinaryOctalLiterals(t *testing.T) {
	stmt := parseOne(t, "mov q0, 0xff")
	mov := stmt.(*ast.MovStmt)
	lit := mov.Src.(*ast.IntLiteral)
	assert.EqualValues(t, 255, lit.Value)

	stmt = parseOne(t, "mov q0, 0b101")
	lit = stmt.(*ast.MovStmt).Src.(*ast.IntLiteral)
	assert.EqualValues(t, 5, lit.Value)

	stmt = parseOne(t, "mov q0, 0o17")
	lit = stmt.(*ast.MovStmt).Src.(*ast.IntLiteral)
	assert.EqualValues(t, 15, lit.Value)
}

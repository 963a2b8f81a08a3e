package preprocessor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ranvm/ranvm/internal/ast"
	"github.com/ranvm/ranvm/internal/diag"
	"github.com/ranvm/ranvm/internal/parser"
)

func process(t *testing.T, src string) []ast.Statement {
	t.Helper()
	stmts, err := parser.New(src).Parse()
	require.NoError(t, err)
	out, err := New(stmts).Process()
	require.NoError(t, err)
	return out
}

func TestDefineSubstitution(t *testing.T) {
	out := process(t, "#define SIZE 10\nmov q0, SIZE\n")
	require.Len(t, out, 1)
	mov := out[0].(*ast.MovStmt)
	lit := mov.Src.(*ast.IntLiteral)
	assert.EqualValues(t, 10, lit.Value)
}

func TestConstantFoldingInteger(t *testing.T) {
	out := process(t, "#define SIZE 2 + 3 * 4\nmov q0, SIZE\n")
	mov := out[0].(*ast.MovStmt)
	lit := mov.Src.(*ast.IntLiteral)
	assert.EqualValues(t, 14, lit.Value)
}

func TestConstantFoldingFloatArithmeticOnly(t *testing.T) {
	_, err := New(mustParse(t, "#define X 1.0 & 2.0\nmov q0, X\n")).Process()
	require.Error(t, err)
	var de *diag.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, diag.InvalidOperatorForFloat, de.Kind)
}

func TestIfdefAdmitsWhenDefined(t *testing.T) {
	out := process(t, "#define FOO 1\n#ifdef FOO\nnop\n#endif\n")
	require.Len(t, out, 1)
	_, ok := out[0].(*ast.NopStmt)
	assert.True(t, ok)
}

func TestIfdefSkipsWhenUndefined(t *testing.T) {
	out := process(t, "#ifdef FOO\nnop\n#endif\nhlt\n")
	require.Len(t, out, 1)
	_, ok := out[0].(*ast.HltStmt)
	assert.True(t, ok)
}

func TestIfdefElseBranch(t *testing.T) {
	out := process(t, "#ifdef FOO\nnop\n#else\nhlt\n#endif\n")
	require.Len(t, out, 1)
	_, ok := out[0].(*ast.HltStmt)
	assert.True(t, ok)
}

func TestUnmatchedEndifErrors(t *testing.T) {
	_, err := New(mustParse(t, "#endif\n")).Process()
	require.Error(t, err)
	var de *diag.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, diag.UnmatchedEndif, de.Kind)
}

func TestUnmatchedIfdefErrors(t *testing.T) {
	_, err := New(mustParse(t, "#ifdef FOO\nnop\n")).Process()
	require.Error(t, err)
	var de *diag.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, diag.UnmatchedIfdef, de.Kind)
}

func TestErrorDirectiveAborts(t *testing.T) {
	_, err := New(mustParse(t, `#error "boom"`)).Process()
	require.Error(t, err)
	var de *diag.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, diag.UserError, de.Kind)
	assert.Equal(t, "boom", de.Detail)
}

func TestIncludeSplicesFile(t *testing.T) {
	dir := t.TempDir()
	incPath := filepath.Join(dir, "inc.asm")
	require.NoError(t, os.WriteFile(incPath, []byte("nop\n"), 0o644))

	stmts, err := parser.New(`#include "inc.asm"` + "\nhlt\n").Parse()
	require.NoError(t, err)

	out, err := New(stmts).WithIncludePaths([]string{dir}).Process()
	require.NoError(t, err)
	require.Len(t, out, 2)
	_, ok := out[0].(*ast.NopStmt)
	assert.True(t, ok)
	_, ok = out[1].(*ast.HltStmt)
	assert.True(t, ok)
}

func TestIncludeFileNotFound(t *testing.T) {
	stmts, err := parser.New(`#include "missing.asm"` + "\n").Parse()
	require.NoError(t, err)

	_, err = New(stmts).Process()
	require.Error(t, err)
	var de *diag.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, diag.IncludeFileNotFound, de.Kind)
}

func TestCircularIncludeDetected(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.asm")
	b := filepath.Join(dir, "b.asm")
	require.NoError(t, os.WriteFile(a, []byte(`#include "b.asm"`+"\n"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte(`#include "a.asm"`+"\n"), 0o644))

	stmts, err := parser.New(`#include "a.asm"` + "\n").Parse()
	require.NoError(t, err)

	_, err = New(stmts).WithIncludePaths([]string{dir}).Process()
	require.Error(t, err)
	var de *diag.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, diag.CircularInclude, de.Kind)
}

func mustParse(t *testing.T, src string) []ast.Statement {
	t.Helper()
	stmts, err := parser.New(src).Parse()
	require.NoError(t, err)
	return stmts
}

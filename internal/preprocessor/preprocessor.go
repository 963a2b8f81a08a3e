// Package preprocessor runs the three textual passes over a parsed program
// before it reaches the compiler: definition/include extraction, conditional
// compilation, and identifier substitution with constant folding (§4.1).
package preprocessor

import (
	"os"
	"path/filepath"

	"github.com/samber/lo"

	"github.com/ranvm/ranvm/internal/ast"
	"github.com/ranvm/ranvm/internal/diag"
	"github.com/ranvm/ranvm/internal/parser"
	"github.com/ranvm/ranvm/internal/span"
)

// conditionalKind distinguishes an #ifdef frame from an #ifndef frame so
// the stack can report the right "unmatched" kind if it's never closed.
type conditionalKind int

const (
	condIfDef conditionalKind = iota
	condIfNDef
)

type conditionalFrame struct {
	result   bool
	seenElse bool
	kind     conditionalKind
	span     span.Span
}

// Preprocessor walks a statement tree produced by the parser, resolving
// includes, conditionals, and macro substitution into a flat statement list
// ready for compilation.
type Preprocessor struct {
	program       []ast.Statement
	definitions   map[string]ast.Expression
	includePaths  []string
	includedFiles map[string]struct{}
}

// New constructs a Preprocessor seeded with the platform definitions.
func New(program []ast.Statement) *Preprocessor {
	return &Preprocessor{
		program:       program,
		definitions:   defaultDefinitions(),
		includePaths:  []string{""},
		includedFiles: make(map[string]struct{}),
	}
}

// WithIncludePaths overrides the directories searched for #include targets.
func (p *Preprocessor) WithIncludePaths(paths []string) *Preprocessor {
	p.includePaths = paths
	return p
}

// Process runs all three passes and returns the fully resolved statement
// list, or the first diag.Error encountered.
func (p *Preprocessor) Process() ([]ast.Statement, error) {
	extracted, err := p.extractDefinesAndIncludes()
	if err != nil {
		return nil, err
	}

	admitted, err := p.processConditionals(extracted)
	if err != nil {
		return nil, err
	}

	final := make([]ast.Statement, 0, len(admitted))
	for _, stmt := range admitted {
		out, err := p.substituteStatement(stmt)
		if err != nil {
			return nil, err
		}
		if out != nil {
			final = append(final, out)
		}
	}
	return final, nil
}

// extractDefinesAndIncludes is pass 1: every #define is recorded into the
// definition table (regardless of which conditional branch it textually
// sits in — that's pass 2's job), and every #include is spliced in as the
// fully processed contents of the target file.
func (p *Preprocessor) extractDefinesAndIncludes() ([]ast.Statement, error) {
	var out []ast.Statement

	for _, stmt := range p.program {
		def, isDefine := stmt.(*ast.DefineStmt)
		if isDefine {
			key, ok := def.Key.(*ast.Identifier)
			if !ok {
				return nil, diag.New(diag.InvalidDefineKey, def.Sp, "expected identifier")
			}
			p.definitions[key.Name] = def.Value
			continue
		}

		inc, isInclude := stmt.(*ast.IncludeStmt)
		if isInclude {
			path, ok := inc.Path.(*ast.StringLiteral)
			if !ok {
				return nil, diag.New(diag.InvalidIncludePath, inc.Sp, "expected string literal")
			}
			included, err := p.processInclude(path.Value, inc.Sp)
			if err != nil {
				return nil, err
			}
			out = append(out, included...)
			continue
		}

		out = append(out, stmt)
	}

	return out, nil
}

func (p *Preprocessor) processInclude(relPath string, sp span.Span) ([]ast.Statement, error) {
	var resolved string
	found := false
	for _, dir := range p.includePaths {
		candidate := filepath.Join(dir, relPath)
		if _, err := os.Stat(candidate); err == nil {
			resolved = candidate
			found = true
			break
		}
	}
	if !found {
		return nil, diag.New(diag.IncludeFileNotFound, sp, relPath)
	}

	if _, seen := p.includedFiles[resolved]; seen {
		return nil, diag.New(diag.CircularInclude, sp, resolved)
	}

	content, err := os.ReadFile(resolved)
	if err != nil {
		return nil, diag.Wrap(diag.IncludeReadError, sp, err)
	}
	p.includedFiles[resolved] = struct{}{}

	stmts, err := parser.New(string(content)).Parse()
	if err != nil {
		return nil, err
	}

	sub := &Preprocessor{
		program:       stmts,
		definitions:   lo.Assign(map[string]ast.Expression{}, p.definitions),
		includePaths:  p.includePaths,
		includedFiles: lo.Assign(map[string]struct{}{}, p.includedFiles),
	}

	processed, err := sub.Process()
	if err != nil {
		return nil, err
	}

	p.definitions = lo.Assign(p.definitions, sub.definitions)
	p.includedFiles = lo.Assign(p.includedFiles, sub.includedFiles)

	return processed, nil
}

// processConditionals is pass 2: it walks the flattened statement list
// maintaining a stack of open #ifdef/#ifndef frames, admitting a statement
// only when every enclosing frame currently evaluates true.
func (p *Preprocessor) processConditionals(stmts []ast.Statement) ([]ast.Statement, error) {
	var result []ast.Statement
	var stack []conditionalFrame

	for _, stmt := range stmts {
		switch s := stmt.(type) {
		case *ast.IfDefStmt:
			name, ok := s.Name.(*ast.Identifier)
			if !ok {
				return nil, diag.New(diag.InvalidConditionalExpr, s.Sp, "expected identifier")
			}
			_, defined := p.definitions[name.Name]
			stack = append(stack, conditionalFrame{result: defined, kind: condIfDef, span: s.Sp})

		case *ast.IfNDefStmt:
			name, ok := s.Name.(*ast.Identifier)
			if !ok {
				return nil, diag.New(diag.InvalidConditionalExpr, s.Sp, "expected identifier")
			}
			_, defined := p.definitions[name.Name]
			stack = append(stack, conditionalFrame{result: !defined, kind: condIfNDef, span: s.Sp})

		case *ast.ElseStmt:
			if len(stack) == 0 {
				return nil, diag.New(diag.UnmatchedElse, s.Sp, "")
			}
			top := &stack[len(stack)-1]
			if top.seenElse {
				return nil, diag.New(diag.UnmatchedElse, s.Sp, "")
			}
			top.seenElse = true

		case *ast.EndIfStmt:
			if len(stack) == 0 {
				return nil, diag.New(diag.UnmatchedEndif, s.Sp, "")
			}
			stack = stack[:len(stack)-1]

		default:
			if admitStatement(stack) {
				result = append(result, stmt)
			}
		}
	}

	if len(stack) > 0 {
		last := stack[len(stack)-1]
		if last.kind == condIfDef {
			return nil, diag.New(diag.UnmatchedIfdef, last.span, "")
		}
		return nil, diag.New(diag.UnmatchedIfndef, last.span, "")
	}

	return result, nil
}

func admitStatement(stack []conditionalFrame) bool {
	for i := len(stack) - 1; i >= 0; i-- {
		frame := stack[i]
		if frame.seenElse {
			if frame.result {
				return false
			}
		} else if !frame.result {
			return false
		}
	}
	return true
}

// Package diag defines the structured, span-carrying error records that
// flow out of the preprocessor and compiler to the CLI boundary for
// diagnostic rendering (§7): "information to preserve across language
// boundaries, not a feature of any particular error-reporting library" (§9).
package diag

import (
	"fmt"

	"github.com/ranvm/ranvm/internal/span"
)

// Kind identifies one of the closed error categories from §7.
type Kind string

const (
	// Preprocessor kinds.
	IncludeFileNotFound    Kind = "IncludeFileNotFound"
	CircularInclude        Kind = "CircularInclude"
	IncludeReadError       Kind = "IncludeReadError"
	UnmatchedIfdef         Kind = "UnmatchedIfdef"
	UnmatchedIfndef        Kind = "UnmatchedIfndef"
	UnmatchedElse          Kind = "UnmatchedElse"
	UnmatchedEndif         Kind = "UnmatchedEndif"
	InvalidDefineKey       Kind = "InvalidDefineKey"
	InvalidIncludePath     Kind = "InvalidIncludePath"
	InvalidConditionalExpr Kind = "InvalidConditionalExpr"
	InvalidOperatorForFloat Kind = "InvalidOperatorForFloat"
	UserError              Kind = "UserError"

	// Parser kinds.
	UnexpectedToken Kind = "UnexpectedToken"
	ExpectedToken   Kind = "ExpectedToken"

	// Compiler kinds.
	InvalidRegister     Kind = "InvalidRegister"
	InvalidDataSize     Kind = "InvalidDataSize"
	InvalidOperands     Kind = "InvalidOperands"
	UndefinedLabel      Kind = "UndefinedLabel"
	UnsupportedOperation Kind = "UnsupportedOperation"
	FixupFailure        Kind = "FixupFailure"
	InvalidExpression   Kind = "InvalidExpression"
	DuplicateLabel      Kind = "DuplicateLabel"
)

// Error is the structured diagnostic record every preprocessor/compiler
// failure surfaces as. It always carries the span of the offending source
// construct; Detail/Cause add kind-specific context for a renderer.
type Error struct {
	Kind   Kind
	Span   span.Span
	Detail string
	Cause  error
}

func New(kind Kind, sp span.Span, detail string) *Error {
	return &Error{Kind: kind, Span: sp, Detail: detail}
}

func Wrap(kind Kind, sp span.Span, cause error) *Error {
	return &Error{Kind: kind, Span: sp, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s at %s: %v", e.Kind, e.Span, e.Cause)
	}
	if e.Detail != "" {
		return fmt.Sprintf("%s at %s: %s", e.Kind, e.Span, e.Detail)
	}
	return fmt.Sprintf("%s at %s", e.Kind, e.Span)
}

func (e *Error) Unwrap() error { return e.Cause }

package promql

import (
	"fmt"
)

// ErrorKind classifies what went wrong while parsing.
type ErrorKind int

// The error kinds a parse can produce.
const (
	ErrSyntax ErrorKind = iota
	ErrLex
	ErrType
	ErrRegex
	ErrDuration
)

func (k ErrorKind) String() string {
	switch k {
	case ErrSyntax:
		return "syntax error"
	case ErrLex:
		return "lexical error"
	case ErrType:
		return "type error"
	case ErrRegex:
		return "regex error"
	case ErrDuration:
		return "duration error"
	}
	return "parse error"
}

// ParseErr describes why and where parsing failed. The first error
// encountered aborts the parse, so at most one ParseErr is produced
// per input and no partial tree is returned alongside it.
type ParseErr struct {
	Kind ErrorKind
	// Lex narrows down the cause when Kind is ErrLex.
	Lex LexKind
	// Range is the byte-offset interval of the offending input.
	Range PositionRange
	Err   error
	// Query is the input the error occurred in.
	Query string
}

// Error renders the position as line:col relative to the query,
// followed by the message.
func (e *ParseErr) Error() string {
	pos := int(e.Range.Start)
	lastLineBreak := -1
	line := 1

	if pos < 0 || pos > len(e.Query) {
		return fmt.Sprintf("invalid position: %s", e.Err)
	}

	for i, c := range e.Query[:pos] {
		if c == '\n' {
			lastLineBreak = i
			line++
		}
	}
	col := pos - lastLineBreak
	return fmt.Sprintf("%d:%d: parse error: %s", line, col, e.Err)
}

func (e *ParseErr) Unwrap() error {
	return e.Err
}

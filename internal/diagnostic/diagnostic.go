// Package diagnostic defines the compile-time error taxonomy of the ragaz
// semantic core and the engine that collects and formats it.
package diagnostic

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ragazzi-robotics/ragaz/internal/position"
)

// Level represents the severity level of a diagnostic message.
type Level int

const (
	LevelError Level = iota
	LevelWarning
	LevelNote
)

func (l Level) String() string {
	switch l {
	case LevelError:
		return "error"
	case LevelWarning:
		return "warning"
	case LevelNote:
		return "note"
	default:
		return "unknown"
	}
}

// Kind identifies the failure a diagnostic reports.
type Kind int

const (
	UnknownTypeError Kind = iota
	TypeMismatchError
	StrictTypeError
	AmbiguousInferenceError
	ArityError
	DuplicateTypeParamError
	InstantiationDepthExceededError
	DuplicateImplError
	NoImplementationError
	UseAfterMoveError
	BorrowConflictError
	ImmutableMutationError
	UnknownNameError
	ArgumentError
	InvalidRaiseError
	InvalidExceptTypeError
	UnusedVariableWarning
	InvalidJumpError
)

var kindNames = [...]string{
	UnknownTypeError:                "UnknownTypeError",
	TypeMismatchError:               "TypeMismatchError",
	StrictTypeError:                 "StrictTypeError",
	AmbiguousInferenceError:         "AmbiguousInferenceError",
	ArityError:                      "ArityError",
	DuplicateTypeParamError:         "DuplicateTypeParamError",
	InstantiationDepthExceededError: "InstantiationDepthExceededError",
	DuplicateImplError:              "DuplicateImplError",
	NoImplementationError:           "NoImplementationError",
	UseAfterMoveError:               "UseAfterMoveError",
	BorrowConflictError:             "BorrowConflictError",
	ImmutableMutationError:          "ImmutableMutationError",
	UnknownNameError:                "UnknownNameError",
	ArgumentError:                   "ArgumentError",
	InvalidRaiseError:               "InvalidRaiseError",
	InvalidExceptTypeError:          "InvalidExceptTypeError",
	UnusedVariableWarning:           "UnusedVariableWarning",
	InvalidJumpError:                "InvalidJumpError",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Code returns the stable short code printed next to the level.
func (k Kind) Code() string {
	if k == UnusedVariableWarning {
		return "W0001"
	}
	return fmt.Sprintf("E%04d", int(k)+1)
}

// Related points at a secondary location relevant to a diagnostic.
type Related struct {
	Span    position.Span
	Message string
}

// Diagnostic represents a single diagnostic message.
type Diagnostic struct {
	Message string
	Related []Related
	Span    position.Span
	Kind    Kind
	Level   Level
}

// New returns an error-level diagnostic.
func New(kind Kind, span position.Span, format string, args ...interface{}) *Diagnostic {
	level := LevelError
	if kind == UnusedVariableWarning {
		level = LevelWarning
	}
	return &Diagnostic{Kind: kind, Span: span, Level: level, Message: fmt.Sprintf(format, args...)}
}

// WithRelated attaches a related location and returns the diagnostic.
func (d *Diagnostic) WithRelated(span position.Span, format string, args ...interface{}) *Diagnostic {
	d.Related = append(d.Related, Related{Span: span, Message: fmt.Sprintf(format, args...)})
	return d
}

// Error implements the error interface.
func (d *Diagnostic) Error() string {
	return fmt.Sprintf("%s: %s: %s", d.Span, d.Kind, d.Message)
}

// Engine accumulates diagnostics for one compilation unit.
type Engine struct {
	diagnostics []*Diagnostic
}

// NewEngine creates a new diagnostic engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Add records diagnostics. Nil entries are ignored.
func (e *Engine) Add(ds ...*Diagnostic) {
	for _, d := range ds {
		if d != nil {
			e.diagnostics = append(e.diagnostics, d)
		}
	}
}

// Errorf records a new error-level diagnostic and returns it.
func (e *Engine) Errorf(kind Kind, span position.Span, format string, args ...interface{}) *Diagnostic {
	d := New(kind, span, format, args...)
	e.Add(d)
	return d
}

// Diagnostics returns all diagnostics in the order they were recorded.
func (e *Engine) Diagnostics() []*Diagnostic {
	return e.diagnostics
}

// Errors returns only error-level diagnostics.
func (e *Engine) Errors() []*Diagnostic {
	var errs []*Diagnostic
	for _, d := range e.diagnostics {
		if d.Level == LevelError {
			errs = append(errs, d)
		}
	}
	return errs
}

// HasErrors returns true if there are any errors.
func (e *Engine) HasErrors() bool {
	for _, d := range e.diagnostics {
		if d.Level == LevelError {
			return true
		}
	}
	return false
}

// Count returns the number of diagnostics of the given kind.
func (e *Engine) Count(kind Kind) int {
	n := 0
	for _, d := range e.diagnostics {
		if d.Kind == kind {
			n++
		}
	}
	return n
}

// Sorted returns a copy of the diagnostics ordered by position and severity.
func (e *Engine) Sorted() []*Diagnostic {
	out := append([]*Diagnostic(nil), e.diagnostics...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Span.Start, out[j].Span.Start
		if a != b {
			return a.Before(b)
		}
		return out[i].Level < out[j].Level
	})
	return out
}

// Format renders all diagnostics. Sources, when given, are used to quote
// the offending line.
func (e *Engine) Format(color bool, sources map[string]*position.SourceFile) string {
	var sb strings.Builder

	for _, d := range e.Sorted() {
		formatOne(&sb, d, color, sources)
	}

	errs, warns := 0, 0
	for _, d := range e.diagnostics {
		switch d.Level {
		case LevelError:
			errs++
		case LevelWarning:
			warns++
		}
	}
	if errs+warns > 0 {
		fmt.Fprintf(&sb, "%d error(s), %d warning(s)\n", errs, warns)
	}

	return sb.String()
}

const (
	ansiRed    = "\x1b[31m"
	ansiYellow = "\x1b[33m"
	ansiBold   = "\x1b[1m"
	ansiReset  = "\x1b[0m"
)

func formatOne(sb *strings.Builder, d *Diagnostic, color bool, sources map[string]*position.SourceFile) {
	level := d.Level.String()
	if color {
		c := ansiRed
		if d.Level != LevelError {
			c = ansiYellow
		}
		level = c + ansiBold + level + ansiReset
	}

	fmt.Fprintf(sb, "%s: %s[%s]: %s: %s\n", d.Span, level, d.Kind.Code(), d.Kind, d.Message)

	if src := sources[d.Span.Start.Filename]; src != nil {
		if line := src.Line(d.Span.Start.Line); line != "" {
			fmt.Fprintf(sb, "    %s\n    %s^\n", line, strings.Repeat(" ", d.Span.Start.Column-1))
		}
	}

	for _, r := range d.Related {
		fmt.Fprintf(sb, "  %s: note: %s\n", r.Span, r.Message)
	}
}

// Package session runs one compilation: it owns the universe scope, the
// trait registry, the monomorphization engine and the diagnostics, and
// drives checking, ownership analysis and lowering over them.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/ragazzi-robotics/ragaz/internal/ast"
	"github.com/ragazzi-robotics/ragaz/internal/checker"
	"github.com/ragazzi-robotics/ragaz/internal/config"
	"github.com/ragazzi-robotics/ragaz/internal/diagnostic"
	"github.com/ragazzi-robotics/ragaz/internal/generics"
	"github.com/ragazzi-robotics/ragaz/internal/lowering"
	"github.com/ragazzi-robotics/ragaz/internal/ownership"
	"github.com/ragazzi-robotics/ragaz/internal/symbols"
	"github.com/ragazzi-robotics/ragaz/internal/traits"
)

// ErrDiagnostics is returned when a compilation unit has errors. The
// diagnostics themselves are in Session.Diags.
var ErrDiagnostics = errors.New("compilation failed")

// Session is the state of one compilation unit. It is not safe for
// concurrent use.
type Session struct {
	ID       uuid.UUID
	Options  config.Options
	Universe *symbols.Scope
	Registry *traits.Registry
	Engine   *generics.Engine
	Diags    *diagnostic.Engine
	checker  *checker.Checker
	log      *slog.Logger
	name     string
	// analyzed counts the checked functions already given to the
	// ownership pass.
	analyzed int
	prelude  bool
}

// New creates a session for the named unit. A nil logger discards.
func New(name string, opts config.Options, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	id := uuid.New()
	log := logger.With("session", id.String(), "module", name)

	s := &Session{
		ID:       id,
		Options:  opts,
		Universe: checker.NewUniverse(),
		Registry: traits.NewRegistry(),
		Engine:   generics.NewEngine(opts.MaxInstantiationDepth, log),
		Diags:    diagnostic.NewEngine(),
		log:      log,
		name:     name,
	}
	s.checker = checker.New(opts, s.Universe, s.Registry, s.Engine, s.Diags, log)
	return s
}

// Name returns the unit name.
func (s *Session) Name() string { return s.name }

// Info returns the checker annotations recorded so far.
func (s *Session) Info() *checker.Info { return s.checker.Info() }

// LoadPrelude declares the builtin prelude followed by library modules.
// A library module may replace a builtin class by redeclaring it. Later
// calls are ignored.
func (s *Session) LoadPrelude(ctx context.Context, libraries ...*ast.Module) {
	if s.prelude {
		return
	}
	s.prelude = true
	modules := append([]*ast.Module{checker.PreludeModule()}, libraries...)
	s.checker.CheckPrelude(ctx, modules...)
	s.log.Debug("prelude loaded", "modules", len(modules))
}

// Check type-checks modules and runs the ownership pass over every
// function checked since the previous call. It reports whether the unit
// is still free of errors.
func (s *Session) Check(ctx context.Context, modules ...*ast.Module) bool {
	s.LoadPrelude(ctx)

	s.checker.Check(ctx, modules...)
	info := s.checker.Info()
	s.log.Debug("check done", "functions", len(info.Functions), "diagnostics", len(s.Diags.Diagnostics()))
	for _, spec := range s.Engine.Emission() {
		s.log.Debug("specialization", "name", spec.Name, "depth", spec.Depth)
	}

	fns := info.Functions[s.analyzed:]
	s.analyzed = len(info.Functions)
	for _, fn := range fns {
		if err := ctx.Err(); err != nil {
			s.log.Debug("ownership interrupted", "err", err)
			break
		}
		s.Diags.Add(ownership.Check(fn, info, s.Options)...)
	}
	s.log.Debug("ownership done", "functions", len(fns))

	return !s.Diags.HasErrors()
}

// Compile checks modules and lowers the unit. Nothing is lowered when
// any pass reported an error; the error then wraps ErrDiagnostics.
func (s *Session) Compile(ctx context.Context, modules ...*ast.Module) (*lowering.Program, error) {
	if !s.Check(ctx, modules...) {
		return nil, fmt.Errorf("%s: %w: %d error(s)", s.name, ErrDiagnostics, len(s.Diags.Errors()))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prog := lowering.NewProgram(s.name, s.checker.Info(), s.Engine.Emission(), s.Registry.Tables())
	m, err := lowering.Lower(prog)
	if err != nil {
		return nil, err
	}
	s.log.Debug("lowering done", "functions", len(m.Functions), "tables", len(m.Tables))
	return prog, nil
}

// Package main provides the ragazc command: it reads parser output,
// runs the semantic passes and prints diagnostics or the lowered IR.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/ragazzi-robotics/ragaz/internal/ast"
	"github.com/ragazzi-robotics/ragaz/internal/astio"
	"github.com/ragazzi-robotics/ragaz/internal/config"
	"github.com/ragazzi-robotics/ragaz/internal/diagnostic"
	"github.com/ragazzi-robotics/ragaz/internal/lowering"
	"github.com/ragazzi-robotics/ragaz/internal/position"
	"github.com/ragazzi-robotics/ragaz/internal/session"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

const projectFile = "ragaz.yaml"

func main() {
	var (
		showVersion     = flag.Bool("version", false, "show version information")
		showHelp        = flag.Bool("help", false, "show help information")
		verbose         = flag.Bool("v", false, "log pass boundaries and specializations")
		configPath      = flag.String("config", "", "project file (default ./"+projectFile+" when present)")
		emit            = flag.Bool("emit", false, "print the lowered IR of each unit")
		jobs            = flag.Int("j", runtime.NumCPU(), "number of units checked in parallel")
		watch           = flag.Bool("watch", false, "re-check inputs when they change")
		noColor         = flag.Bool("no-color", false, "disable colored diagnostics")
		autoCast        = flag.Bool("auto-cast", true, "allow implicit numeric widening")
		checkMutability = flag.Bool("check-mutability", false, "reject mutation of immutable bindings")
		warnUnused      = flag.Bool("warn-unused", false, "warn about unused variables")
		maxDepth        = flag.Int("max-depth", config.DefaultMaxInstantiationDepth, "maximum generic instantiation depth")
	)

	flag.Parse()

	if *showVersion {
		fmt.Printf("ragazc v%s (%s)\n", version, commit)
		return
	}

	if *showHelp {
		showUsage()
		return
	}

	files := flag.Args()
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "Error: No input file specified")
		showUsage()
		os.Exit(2)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	opts, err := loadOptions(*configPath)
	if err != nil {
		logger.Error("loading options", "err", err)
		os.Exit(2)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "auto-cast":
			opts.AutoCast = *autoCast
		case "check-mutability":
			opts.CheckMutability = *checkMutability
		case "warn-unused":
			opts.WarnUnused = *warnUnused
		case "max-depth":
			opts.MaxInstantiationDepth = *maxDepth
		}
	})
	if err := opts.Validate(version); err != nil {
		logger.Error("invalid options", "err", err)
		os.Exit(2)
	}

	d := &driver{
		opts:   opts,
		log:    logger,
		out:    os.Stdout,
		errOut: os.Stderr,
		color:  !*noColor && diagnostic.ColorEnabled(os.Stderr),
		emit:   *emit,
		jobs:   *jobs,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if *watch {
		if err := d.watch(ctx, files); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("watch failed", "err", err)
			os.Exit(2)
		}
		return
	}

	ok, err := d.run(ctx, files)
	if err != nil {
		logger.Error("compilation aborted", "err", err)
		os.Exit(2)
	}
	if !ok {
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println("ragazc - semantic checker for ragaz")
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("    ragazc [OPTIONS] <AST_FILE>...")
	fmt.Println()
	fmt.Println("Each input is the JSON syntax tree of one module.")
	fmt.Println()
	fmt.Println("OPTIONS:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("    ragazc main.ast.json")
	fmt.Println("    ragazc -emit -v main.ast.json")
	fmt.Println("    ragazc -watch -j 4 src/*.ast.json")
}

// loadOptions reads the project file named by path, or ./ragaz.yaml
// when path is empty and the file exists.
func loadOptions(path string) (config.Options, error) {
	if path == "" {
		if _, err := os.Stat(projectFile); err != nil {
			return config.Default(), nil
		}
		path = projectFile
	}
	return config.Load(path)
}

// ====== Driver ======

type driver struct {
	opts   config.Options
	log    *slog.Logger
	out    io.Writer
	errOut io.Writer
	color  bool
	emit   bool
	jobs   int
}

type unit struct {
	err     error
	prog    *lowering.Program
	diags   *diagnostic.Engine
	sources map[string]*position.SourceFile
}

// run compiles every file in its own session and reports whether all of
// them are free of errors. Units are printed in input order. The error
// is non-nil only for failures outside the program being compiled.
func (d *driver) run(ctx context.Context, files []string) (bool, error) {
	units := make([]unit, len(files))

	g, gctx := errgroup.WithContext(ctx)
	if d.jobs > 0 {
		g.SetLimit(d.jobs)
	}
	for i, file := range files {
		g.Go(func() error {
			u, err := d.compile(gctx, file)
			if err != nil {
				return err
			}
			units[i] = u
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return false, err
	}

	ok := true
	for _, u := range units {
		if ds := u.diags.Diagnostics(); len(ds) > 0 {
			fmt.Fprint(d.errOut, u.diags.Format(d.color, u.sources))
		}
		if u.err != nil {
			ok = false
			continue
		}
		if d.emit {
			fmt.Fprint(d.out, u.prog.Module.String())
		}
	}
	return ok, nil
}

func (d *driver) compile(ctx context.Context, file string) (unit, error) {
	m, err := astio.DecodeFile(file)
	if err != nil {
		return unit{}, err
	}
	libs := make([]*ast.Module, 0, len(d.opts.Prelude))
	for _, p := range d.opts.Prelude {
		lib, err := astio.DecodeFile(p)
		if err != nil {
			return unit{}, fmt.Errorf("prelude: %w", err)
		}
		libs = append(libs, lib)
	}

	s := session.New(m.Name, d.opts, d.log)
	s.LoadPrelude(ctx, libs...)
	prog, err := s.Compile(ctx, m)
	if err != nil && !errors.Is(err, session.ErrDiagnostics) {
		return unit{}, err
	}
	d.log.Debug("unit done", "file", file, "module", m.Name, "session", s.ID.String(), "errors", len(s.Diags.Errors()))
	return unit{err: err, prog: prog, diags: s.Diags, sources: sourcesOf(m, file)}, nil
}

// sourcesOf loads the source text the module was parsed from, when the
// tree names it and it is still on disk, so that diagnostics can quote it.
func sourcesOf(m *ast.Module, astFile string) map[string]*position.SourceFile {
	sources := make(map[string]*position.SourceFile)
	if m.Path == "" || m.Path == astFile {
		return sources
	}
	if content, err := os.ReadFile(m.Path); err == nil {
		sources[m.Path] = position.NewSourceFile(m.Path, string(content))
	}
	return sources
}

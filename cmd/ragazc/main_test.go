package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ragazzi-robotics/ragaz/internal/config"
)

const cleanTree = `{"node": "Module", "body": [
  {"node": "VarDecl", "name": "a", "type": {"node": "NamedType", "name": "str"},
   "value": {"node": "StrLit", "value": "hi"}, "span": {"line": 1, "col": 1}},
  {"node": "ExprStmt", "span": {"line": 2, "col": 1},
   "value": {"node": "Call", "func": {"node": "Name", "id": "print"}, "args": [{"node": "Name", "id": "a"}]}}
]}`

const movedTree = `{"node": "Module", "body": [
  {"node": "VarDecl", "name": "a", "type": {"node": "NamedType", "name": "str"},
   "value": {"node": "StrLit", "value": "hi"}, "span": {"line": 1, "col": 1}},
  {"node": "VarDecl", "name": "b", "value": {"node": "Name", "id": "a"}, "span": {"line": 2, "col": 1}},
  {"node": "ExprStmt", "span": {"line": 3, "col": 1},
   "value": {"node": "Call", "func": {"node": "Name", "id": "print"},
             "args": [{"node": "Name", "id": "a", "span": {"line": 3, "col": 7}}]}}
]}`

const strayBreakTree = `{"node": "Module", "body": [
  {"node": "Break", "span": {"line": 1, "col": 1}}
]}`

func writeTree(t *testing.T, dir, name, tree string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(tree), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newDriver(emit bool) (*driver, *bytes.Buffer, *bytes.Buffer) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	return &driver{
		opts:   config.Default(),
		log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		out:    out,
		errOut: errOut,
		emit:   emit,
		jobs:   2,
	}, out, errOut
}

func TestRunEmitsLoweredUnits(t *testing.T) {
	dir := t.TempDir()
	first := writeTree(t, dir, "main.ast.json", cleanTree)
	other := writeTree(t, dir, "other.ast.json", cleanTree)

	d, out, errOut := newDriver(true)
	ok, err := d.run(context.Background(), []string{first, other})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("Expected a clean run, got:\n%s", errOut)
	}
	text := out.String()
	if !strings.Contains(text, "main.__main__") || !strings.Contains(text, "other.__main__") {
		t.Errorf("Expected both units in the output, got:\n%s", text)
	}
	if strings.Index(text, "module main") > strings.Index(text, "module other") {
		t.Errorf("Expected units in input order, got:\n%s", text)
	}
}

func TestRunReportsDiagnostics(t *testing.T) {
	dir := t.TempDir()
	bad := writeTree(t, dir, "bad.ast.json", movedTree)

	d, out, errOut := newDriver(true)
	ok, err := d.run(context.Background(), []string{bad})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("Expected the run to fail")
	}
	if !strings.Contains(errOut.String(), "UseAfterMoveError") {
		t.Errorf("Expected a UseAfterMoveError, got:\n%s", errOut)
	}
	if out.Len() != 0 {
		t.Errorf("Expected nothing emitted for a failed unit, got:\n%s", out)
	}
}

func TestRunKeepsGoingAfterAStrayBreak(t *testing.T) {
	dir := t.TempDir()
	bad := writeTree(t, dir, "bad.ast.json", strayBreakTree)
	good := writeTree(t, dir, "good.ast.json", cleanTree)

	d, out, errOut := newDriver(true)
	ok, err := d.run(context.Background(), []string{bad, good})
	if err != nil {
		t.Fatalf("Expected a diagnostic rather than an error, got %v", err)
	}
	if ok {
		t.Fatalf("Expected the run to fail")
	}
	if !strings.Contains(errOut.String(), "InvalidJumpError") {
		t.Errorf("Expected an InvalidJumpError, got:\n%s", errOut)
	}
	if !strings.Contains(out.String(), "good.__main__") {
		t.Errorf("Expected the clean unit to be emitted, got:\n%s", out)
	}
}

func TestRunFailsOnUnreadableInput(t *testing.T) {
	d, _, _ := newDriver(false)
	_, err := d.run(context.Background(), []string{filepath.Join(t.TempDir(), "missing.ast.json")})
	if err == nil {
		t.Errorf("Expected an error for a missing input")
	}
}

func TestLoadOptionsFromProjectFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ragaz.yaml")
	if err := os.WriteFile(path, []byte("warn_unused: true\nmax_instantiation_depth: 8\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	opts, err := loadOptions(path)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !opts.WarnUnused || opts.MaxInstantiationDepth != 8 || !opts.AutoCast {
		t.Errorf("Expected warn_unused, depth 8 and the default auto_cast, got %+v", opts)
	}
}

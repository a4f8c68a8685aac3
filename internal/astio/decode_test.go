package astio

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ragazzi-robotics/ragaz/internal/ast"
	"github.com/ragazzi-robotics/ragaz/internal/config"
	"github.com/ragazzi-robotics/ragaz/internal/session"
)

const pairModule = `{
  "node": "Module", "name": "main", "path": "main.ry",
  "body": [
    {"node": "ClassDef", "name": "Pair", "span": {"line": 1, "col": 1},
     "type_params": [{"name": "T"}, {"name": "U"}],
     "fields": [
       {"name": "a", "type": {"node": "NamedType", "name": "T"}},
       {"name": "b", "type": {"node": "NamedType", "name": "U"}}
     ],
     "methods": [
       {"node": "FunctionDef", "name": "__init__", "span": {"line": 4, "col": 5},
        "params": [
          {"name": "self"},
          {"name": "a", "type": {"node": "NamedType", "name": "T"}},
          {"name": "b", "type": {"node": "NamedType", "name": "U"}}
        ],
        "body": [
          {"node": "Assign", "span": {"line": 5, "col": 9},
           "target": {"node": "Attribute", "attr": "a", "value": {"node": "Name", "id": "self"}},
           "value": {"node": "Name", "id": "a"}},
          {"node": "Assign", "span": {"line": 6, "col": 9},
           "target": {"node": "Attribute", "attr": "b", "value": {"node": "Name", "id": "self"}},
           "value": {"node": "Name", "id": "b"}}
        ]}
     ]},
    {"node": "VarDecl", "name": "p", "span": {"line": 8, "col": 1, "end_line": 8, "end_col": 20},
     "value": {"node": "Call", "span": {"line": 8, "col": 5},
               "func": {"node": "Name", "id": "Pair"},
               "args": [{"node": "IntLit", "value": 1}, {"node": "FloatLit", "value": 2.5}]}},
    {"node": "ExprStmt", "span": {"line": 9, "col": 1},
     "value": {"node": "Call", "func": {"node": "Name", "id": "print"},
               "args": [{"node": "Attribute", "attr": "a", "value": {"node": "Name", "id": "p"}}]}}
  ]
}`

func TestDecodeModule(t *testing.T) {
	m, err := Decode(strings.NewReader(pairModule))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if m.Name != "main" || len(m.Body) != 3 {
		t.Fatalf("Expected module main with 3 statements, got %s with %d", m.Name, len(m.Body))
	}

	cls, ok := m.Body[0].(*ast.ClassDef)
	if !ok {
		t.Fatalf("Expected *ast.ClassDef, got %T", m.Body[0])
	}
	if len(cls.TypeParams) != 2 || len(cls.Fields) != 2 || len(cls.Methods) != 1 {
		t.Errorf("Expected 2 type params, 2 fields and 1 method, got %d, %d and %d",
			len(cls.TypeParams), len(cls.Fields), len(cls.Methods))
	}
	if !cls.Methods[0].IsMethod() {
		t.Errorf("Expected __init__ to take self")
	}

	decl := m.Body[1].(*ast.VarDecl)
	if decl.Span.Start.Filename != "main.ry" || decl.Span.Start.Line != 8 || decl.Span.End.Column != 20 {
		t.Errorf("Expected span main.ry:8:1-8:20, got %+v", decl.Span)
	}
	if decl.NameSpan != decl.Span {
		t.Errorf("Expected the name span to default to the statement span, got %+v", decl.NameSpan)
	}
	c := decl.Value.(*ast.Call)
	if lit, ok := c.Args[0].(*ast.IntLit); !ok || lit.Value != 1 {
		t.Errorf("Expected IntLit 1, got %v", c.Args[0])
	}
	if lit, ok := c.Args[1].(*ast.FloatLit); !ok || lit.Value != 2.5 {
		t.Errorf("Expected FloatLit 2.5, got %v", c.Args[1])
	}
}

func TestDecodeStatements(t *testing.T) {
	src := `{"node": "Module", "name": "m", "body": [
	  {"node": "Try", "body": [
	     {"node": "Raise", "value": {"node": "Call", "func": {"node": "Name", "id": "Error"},
	                                 "args": [{"node": "StrLit", "value": "boom"}]}}],
	   "handlers": [
	     {"node": "ExceptClause", "type": {"node": "NamedType", "name": "Error"}, "name": "e", "body": [{"node": "Pass"}]},
	     {"node": "ExceptClause", "body": [{"node": "Pass"}]}]},
	  {"node": "For", "var": "i", "iter": {"node": "Call", "func": {"node": "Name", "id": "range"},
	                                       "args": [{"node": "IntLit", "value": 3}]},
	   "body": [{"node": "If", "cond": {"node": "BoolLit", "value": true},
	             "body": [{"node": "Break"}], "else": [{"node": "Continue"}]}]},
	  {"node": "VarDecl", "name": "r", "type": {"node": "RefType", "mutable": true,
	                                            "elem": {"node": "NullableType", "elem": {"node": "NamedType", "name": "int"}}}},
	  {"node": "Del", "target": {"node": "Name", "id": "r"}}
	]}`
	m, err := Decode(strings.NewReader(src))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	try := m.Body[0].(*ast.Try)
	if len(try.Handlers) != 2 || try.Handlers[0].Name != "e" || try.Handlers[1].Type != nil {
		t.Errorf("Expected a named Error handler and a bare handler, got %v", try.Handlers)
	}
	loop := m.Body[1].(*ast.For)
	branch := loop.Body[0].(*ast.If)
	if _, ok := branch.Else[0].(*ast.Continue); !ok {
		t.Errorf("Expected continue in the else branch, got %T", branch.Else[0])
	}
	decl := m.Body[2].(*ast.VarDecl)
	if got := decl.Type.String(); got != "&mut int?" {
		t.Errorf("Expected type &mut int?, got %s", got)
	}
	if del := m.Body[3].(*ast.Del); del.Target.ID != "r" {
		t.Errorf("Expected del r, got del %s", del.Target.ID)
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"not json", `{`, "decoding ast"},
		{"wrong root", `{"node": "Pass"}`, "expected Module"},
		{"unknown statement", `{"node": "Module", "name": "m", "body": [{"node": "Goto"}]}`, `unknown statement node "Goto"`},
		{"unknown expression", `{"node": "Module", "name": "m", "body": [{"node": "ExprStmt", "value": {"node": "Lambda"}}]}`, `unknown expression node "Lambda"`},
		{"missing field", `{"node": "Module", "name": "m", "body": [{"node": "Return"}, {"node": "While", "body": []}]}`, "While: missing cond"},
		{"wrong field type", `{"node": "Module", "name": "m", "body": [{"node": "ExprStmt", "value": {"node": "Name", "id": 3}}]}`, "Name.id: expected string"},
		{"dict arity", `{"node": "Module", "name": "m", "body": [{"node": "ExprStmt", "value": {"node": "DictLit", "keys": [{"node": "IntLit", "value": 1}]}}]}`, "DictLit: 1 keys, 0 values"},
		{"del target", `{"node": "Module", "name": "m", "body": [{"node": "Del", "target": {"node": "IntLit", "value": 1}}]}`, "Del: target must be a Name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.src))
			if err == nil {
				t.Fatalf("Expected an error containing %q", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected error containing %q, got %q", tt.want, err)
			}
		})
	}
}

func TestDecodeFileNamesTheModule(t *testing.T) {
	path := filepath.Join(t.TempDir(), "geometry.ast.json")
	if err := os.WriteFile(path, []byte(`{"node": "Module", "body": [{"node": "Pass", "span": {"line": 2, "col": 3}}]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	m, err := DecodeFile(path)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if m.Name != "geometry" {
		t.Errorf("Expected module name geometry, got %s", m.Name)
	}
	if got := m.Body[0].GetSpan().Start.Filename; got != path {
		t.Errorf("Expected spans in %s, got %s", path, got)
	}

	if _, err := DecodeFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Errorf("Expected an error for a missing file")
	}
}

func TestDecodedModuleCompiles(t *testing.T) {
	m, err := Decode(strings.NewReader(pairModule))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	s := session.New("main", config.Default(), nil)
	if _, err := s.Compile(context.Background(), m); err != nil {
		t.Fatalf("Unexpected compile error: %v\n%s", err, s.Diags.Format(false, nil))
	}
}

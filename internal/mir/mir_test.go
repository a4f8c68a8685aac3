package mir

import (
	"strings"
	"testing"
)

func sample() *Function {
	pad := &LandingPad{Name: "pad0", Clauses: []Clause{{TypeID: 2, Target: "except1"}}}
	return &Function{
		Name:       "main.run",
		Parameters: []Value{Ref("%x", ClassInt)},
		Blocks: []*BasicBlock{
			{Name: "entry", Instr: []Instr{
				Alloca{Dst: "%0", Name: "y", Type: "int"},
				Store{Addr: Ref("%0", ClassPtr), Val: Ref("%x", ClassInt)},
				Br{Target: "try0"},
			}},
			{Name: "try0", Pad: pad, Instr: []Instr{
				Call{Dst: "%1", Callee: "main.risky", Args: []Value{IntConst(1)}},
				Br{Target: "cont2"},
			}},
			{Name: "except1", Instr: []Instr{Br{Target: "cont2"}}},
			{Name: "cont2", Instr: []Instr{Ret{}}},
		},
	}
}

func TestVerify(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(f *Function)
		want   string
	}{
		{"well formed", func(f *Function) {}, ""},
		{"missing terminator", func(f *Function) { f.Blocks[3].Instr = nil }, "does not end with a terminator"},
		{"terminator in the middle", func(f *Function) {
			f.Blocks[2].Instr = []Instr{Ret{}, Br{Target: "cont2"}}
		}, "terminator before its end"},
		{"unknown branch target", func(f *Function) {
			f.Blocks[0].Instr[2] = Br{Target: "nowhere"}
		}, "unknown block nowhere"},
		{"unknown handler", func(f *Function) {
			f.Blocks[1].Pad.Clauses[0].Target = "gone"
		}, "targets unknown block gone"},
		{"duplicate label", func(f *Function) { f.Blocks[2].Name = "entry" }, "duplicate block entry"},
		{"extern with body", func(f *Function) { f.Extern = true }, "has a body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := sample()
			tt.mutate(f)
			err := f.Verify()
			if tt.want == "" {
				if err != nil {
					t.Errorf("Expected no error, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestInstructionStrings(t *testing.T) {
	tests := []struct {
		in   Instr
		want string
	}{
		{Alloca{Dst: "%0", Name: "p", Type: "Pair", Heap: true}, "%0 = alloca.heap Pair ; p"},
		{Const{Dst: "%1", Val: StrConst("hi")}, `%1 = const "hi"`},
		{BinOp{Dst: "%2", Op: OpAdd, LHS: IntConst(1), RHS: IntConst(2)}, "%2 = add 1, 2"},
		{Cmp{Dst: "%3", Pred: CmpFLT, LHS: FloatConst(1.5), RHS: FloatConst(2)}, "%3 = cmp.flt 1.5, 2"},
		{Cast{Dst: "%4", X: Ref("%2", ClassInt), From: "int", To: "float"}, "%4 = cast int %2 to float"},
		{CallDynamic{Dst: "%5", Recv: Ref("%c", ClassPtr), Trait: "Calc", Name: "add", Slot: 0, Args: []Value{IntConst(1)}}, "%5 = call.dyn %c[0] Calc.add(1)"},
		{CallValue{Fn: Func("main.f"), Args: nil}, "call.value @main.f()"},
		{MakeAggregate{Dst: "%6", Kind: AggTraitObject, Type: "Calc", Elems: []Value{Ref("%c", ClassPtr)}, Table: "CalcInt.vtable.Calc"}, "%6 = make.object Calc {%c} with CalcInt.vtable.Calc"},
		{AddrOf{Dst: "%7", Slot: Ref("%0", ClassPtr), Field: -1}, "%7 = addrof %0"},
		{AddrOf{Dst: "%8", Slot: Ref("%0", ClassPtr), Field: 1}, "%8 = addrof %0.1"},
		{Raise{Value: Ref(ExceptionRef, ClassPtr), TypeID: TagFromValue}, "raise %exc"},
		{Raise{Value: Ref("%9", ClassPtr), TypeID: 3}, "raise %9, 3"},
		{CondBr{Cond: BoolConst(true), True: "a", False: "b"}, "brcond true, a, b"},
		{Ret{Val: &Value{Kind: ValNone}}, "ret none"},
	}
	for _, tt := range tests {
		if got := tt.in.String(); got != tt.want {
			t.Errorf("Expected %q, got %q", tt.want, got)
		}
	}
}

func TestModuleString(t *testing.T) {
	m := &Module{
		Name:       "main",
		Functions:  []*Function{{Name: "main.risky", Extern: true, Result: "int"}, sample()},
		Tables:     []*Table{{Name: "CalcInt.vtable.Calc", TypeTag: 1, Entries: []string{"CalcInt.add"}}},
		Exceptions: []ExceptionType{{Name: "Exception", ID: BaseExceptionID}},
	}
	if err := m.Verify(); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	out := m.String()
	for _, want := range []string{
		"exception Exception = 0",
		"table CalcInt.vtable.Calc tag 1 [CalcInt.add]",
		"extern func main.risky() int",
		"try0: ; unwind pad0 [2 -> except1]",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected output to contain %q, got:\n%s", want, out)
		}
	}
}

func TestVerifyRejectsDuplicateSymbols(t *testing.T) {
	tests := []struct {
		name string
		m    *Module
		want string
	}{
		{"function", &Module{Name: "prog", Functions: []*Function{
			{Name: "f", Extern: true}, {Name: "a.f", Extern: true}, {Name: "f", Extern: true},
		}}, "duplicate function f"},
		{"table", &Module{Name: "prog", Tables: []*Table{
			{Name: "a.CalcInt.vtable.Calc"}, {Name: "a.CalcInt.vtable.Calc"},
		}}, "duplicate table a.CalcInt.vtable.Calc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.m.Verify()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

package position

import (
	"testing"
)

func TestPosition(t *testing.T) {
	tests := []struct {
		name     string
		expected string
		pos      Position
		isValid  bool
	}{
		{
			name:     "Valid position with filename",
			pos:      Position{Filename: "dir/test.rgz", Line: 10, Column: 5},
			isValid:  true,
			expected: "test.rgz:10:5",
		},
		{
			name:     "Valid position without filename",
			pos:      Position{Line: 1, Column: 1},
			isValid:  true,
			expected: "1:1",
		},
		{
			name:    "Invalid position - zero line",
			pos:     Position{Line: 0, Column: 1},
			isValid: false,
		},
		{
			name:    "Invalid position - zero column",
			pos:     Position{Line: 1, Column: 0},
			isValid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.pos.IsValid(); got != tt.isValid {
				t.Errorf("Expected IsValid() = %v, got %v", tt.isValid, got)
			}
			if tt.isValid && tt.pos.String() != tt.expected {
				t.Errorf("Expected String() = %s, got %s", tt.expected, tt.pos.String())
			}
		})
	}
}

func TestSpanContainsAndUnion(t *testing.T) {
	a := Span{Start: Position{"m.rgz", 1, 1}, End: Position{"m.rgz", 1, 10}}
	b := Span{Start: Position{"m.rgz", 2, 3}, End: Position{"m.rgz", 2, 8}}

	if !a.Contains(Position{"m.rgz", 1, 4}) {
		t.Errorf("Expected span %v to contain 1:4", a)
	}
	if a.Contains(Position{"m.rgz", 2, 4}) {
		t.Errorf("Expected span %v not to contain 2:4", a)
	}

	u := a.Union(b)
	if u.Start != a.Start || u.End != b.End {
		t.Errorf("Expected union %v..%v, got %v..%v", a.Start, b.End, u.Start, u.End)
	}

	if got := (Span{}).Union(b); got != b {
		t.Errorf("Expected union with invalid span to return other, got %v", got)
	}
}

func TestSourceFileLine(t *testing.T) {
	sf := NewSourceFile("m.rgz", "def f():\n    pass\n")
	if sf.Line(2) != "    pass" {
		t.Errorf("Expected second line, got %q", sf.Line(2))
	}
	if sf.Line(0) != "" || sf.Line(10) != "" {
		t.Errorf("Expected empty string for out-of-range lines")
	}
}

package gcode

import "testing"

func TestParseBasic(t *testing.T) {
	cmd, err := Parse("G1 X10.5 Y-2 F3000", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cmd.Letter != "G" || cmd.Number != 1 {
		t.Fatalf("unexpected command identity: %s%d", cmd.Letter, cmd.Number)
	}
	if !cmd.Seen('X') || cmd.GetFloat('X', 0) != 10.5 {
		t.Fatalf("unexpected X: %v", cmd.GetFloat('X', 0))
	}
	if cmd.GetFloat('Y', 0) != -2 {
		t.Fatalf("unexpected Y: %v", cmd.GetFloat('Y', 0))
	}
	if cmd.GetInt('F', 0) != 3000 {
		t.Fatalf("unexpected F: %v", cmd.GetInt('F', 0))
	}
	if cmd.Seen('Z') {
		t.Fatalf("Z should not be seen")
	}
}

func TestParseLowercaseLetter(t *testing.T) {
	cmd, err := Parse("g28", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cmd.Letter != "G" || cmd.Number != 28 {
		t.Fatalf("unexpected: %s%d", cmd.Letter, cmd.Number)
	}
}

func TestParseRejectsUnknownLetter(t *testing.T) {
	if _, err := Parse("X10", nil); err == nil {
		t.Fatalf("expected error for invalid command letter")
	}
}

func TestParseEmptyLine(t *testing.T) {
	if _, err := Parse("   ", nil); err == nil {
		t.Fatalf("expected error for empty line")
	}
}

func TestUnprecedentedTail(t *testing.T) {
	cmd, err := Parse("M23 test.gcode", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := cmd.GetUnprecedentedString(); got != "test.gcode" {
		t.Fatalf("unexpected tail: %q", got)
	}
}

func TestGetFloatArrayPadsWithLast(t *testing.T) {
	cmd, err := Parse("G1 E1.5:2.5", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	vals, ok := cmd.GetFloatArray('E', 3, true)
	if !ok {
		t.Fatalf("expected array to parse")
	}
	want := []float64{1.5, 2.5, 2.5}
	for i, w := range want {
		if vals[i] != w {
			t.Fatalf("unexpected value at %d: got %v want %v", i, vals[i], w)
		}
	}
}

func TestGetFloatPDistinguishesAbsent(t *testing.T) {
	cmd, err := Parse("G1 X0", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p := cmd.GetFloatP('X'); p == nil || *p != 0 {
		t.Fatalf("expected X present with value 0, got %v", p)
	}
	if p := cmd.GetFloatP('Y'); p != nil {
		t.Fatalf("expected Y absent, got %v", *p)
	}
}

func TestDottedNumber(t *testing.T) {
	cmd, err := Parse("G10.1 P1 R5", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cmd.Number != 10 || cmd.Major != 1 {
		t.Fatalf("unexpected number/major: %d/%d", cmd.Number, cmd.Major)
	}
}

package move

import (
	"testing"

	"reprapcore/internal/collab"
	"reprapcore/internal/gcode"
	"reprapcore/internal/modal"
)

func mustParse(t *testing.T, line string) *gcode.Command {
	cmd, err := gcode.Parse(line, nil)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	return cmd
}

func TestBuildAbsoluteMove(t *testing.T) {
	st := modal.NewState()
	var pos [modal.MaxDrives]float64
	cmd := mustParse(t, "G1 X10 Y20 F1200")
	mv, _, err := Build(cmd, st, nil, collab.MoveNormal, pos)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mv.Target[0] != 10 || mv.Target[1] != 20 {
		t.Fatalf("unexpected target: %v", mv.Target[:2])
	}
	if mv.FeedRate != 20 { // 1200 mm/min -> 20 mm/s
		t.Fatalf("unexpected feed rate: %v", mv.FeedRate)
	}
	if !mv.UsesPressureAdvance {
		t.Fatalf("expected pressure advance for an XY move")
	}
}

func TestBuildRelativeMove(t *testing.T) {
	st := modal.NewState()
	st.AxesRelative = true
	pos := [modal.MaxDrives]float64{5, 5}
	cmd := mustParse(t, "G1 X2 Y-3")
	mv, _, err := Build(cmd, st, nil, collab.MoveNormal, pos)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mv.Target[0] != 7 || mv.Target[1] != 2 {
		t.Fatalf("unexpected relative target: %v", mv.Target[:2])
	}
}

func TestBuildInchUnits(t *testing.T) {
	st := modal.NewState()
	st.DistanceScale = 25.4
	var pos [modal.MaxDrives]float64
	cmd := mustParse(t, "G1 X1")
	mv, _, err := Build(cmd, st, nil, collab.MoveNormal, pos)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mv.Target[0] != 25.4 {
		t.Fatalf("expected inch scaling applied, got %v", mv.Target[0])
	}
}

func TestBuildSetPositionHomesAxis(t *testing.T) {
	st := modal.NewState()
	var pos [modal.MaxDrives]float64
	cmd := mustParse(t, "G92 X0 Y0")
	_, commit, err := Build(cmd, st, nil, collab.MoveSetPosition, pos)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	commit()
	if !st.AxisIsHomed(0) || !st.AxisIsHomed(1) {
		t.Fatalf("expected G92 to mark axes as homed")
	}
}

func TestBuildExtrusionWithoutToolFails(t *testing.T) {
	st := modal.NewState()
	var pos [modal.MaxDrives]float64
	cmd := mustParse(t, "G1 X1 E5")
	if _, _, err := Build(cmd, st, nil, collab.MoveNormal, pos); err == nil {
		t.Fatalf("expected error extruding with no tool selected")
	}
}

func TestBuildExtrusionAbsolute(t *testing.T) {
	st := modal.NewState()
	tool := &Tool{DriveCount: 1, FirstExtruder: 0}
	var pos [modal.MaxDrives]float64
	cmd := mustParse(t, "G1 E5")
	mv, commit, err := Build(cmd, st, tool, collab.MoveNormal, pos)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	drive := modal.MaxAxes
	if mv.Target[drive] != 5 {
		t.Fatalf("expected first absolute E move to be a 5mm delta, got %v", mv.Target[drive])
	}
	// The extruder position only advances once the move is committed, as
	// it would be after the planner actually accepts it.
	commit()

	cmd2 := mustParse(t, "G1 E8")
	mv2, commit2, err := Build(cmd2, st, tool, collab.MoveNormal, pos)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mv2.Target[drive] != 3 {
		t.Fatalf("expected second absolute E move to be a 3mm delta, got %v", mv2.Target[drive])
	}
	commit2()
}

func TestBuildExtrusionDeltaIgnoresUncommittedMove(t *testing.T) {
	st := modal.NewState()
	tool := &Tool{DriveCount: 1, FirstExtruder: 0}
	var pos [modal.MaxDrives]float64
	drive := modal.MaxAxes

	cmd := mustParse(t, "G1 E5")
	mv, _, err := Build(cmd, st, tool, collab.MoveNormal, pos)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mv.Target[drive] != 5 {
		t.Fatalf("expected a 5mm delta, got %v", mv.Target[drive])
	}
	// Deliberately never call the first commit, simulating a move that
	// was built but never queued (e.g. it hit a full move slot and the
	// caller retries with a freshly built move instead).

	cmd2 := mustParse(t, "G1 E5")
	mv2, commit2, err := Build(cmd2, st, tool, collab.MoveNormal, pos)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mv2.Target[drive] != 5 {
		t.Fatalf("expected the retried move to still see a 5mm delta since the first build was never committed, got %v", mv2.Target[drive])
	}
	commit2()
	if st.LastRawExtruderPosition[0] != 5 {
		t.Fatalf("expected exactly one commit to land, got %v", st.LastRawExtruderPosition[0])
	}
}

func TestBuildAppliesAxisOffset(t *testing.T) {
	st := modal.NewState()
	st.AxisOffsets[0] = 2.5
	pos := [modal.MaxDrives]float64{0}
	cmd := mustParse(t, "G1 X10")
	mv, _, err := Build(cmd, st, nil, collab.MoveNormal, pos)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mv.Target[0] != 12.5 {
		t.Fatalf("expected X offset by the M206 axis offset to 12.5, got %v", mv.Target[0])
	}
}

func TestClampSoftLimitsCartesian(t *testing.T) {
	st := modal.NewState()
	st.SetAxisHomed(0)
	st.AxisMin[0] = 0
	st.AxisMax[0] = 200
	pos := [modal.MaxDrives]float64{0}
	cmd := mustParse(t, "G1 X500")
	mv, _, err := Build(cmd, st, nil, collab.MoveNormal, pos)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mv.Target[0] != 200 {
		t.Fatalf("expected X clamped to axis max 200, got %v", mv.Target[0])
	}
}

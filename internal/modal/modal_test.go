package modal

import "testing"

func TestNewStateDefaults(t *testing.T) {
	s := NewState()
	if s.SpeedFactor != 1.0 || s.DistanceScale != 1.0 {
		t.Fatalf("expected unit defaults, got speed=%v distance=%v", s.SpeedFactor, s.DistanceScale)
	}
	if s.CurrentTool != -1 {
		t.Fatalf("expected no tool selected by default, got %d", s.CurrentTool)
	}
	for i, f := range s.ExtrusionFactors {
		if f != 1.0 {
			t.Fatalf("expected extrusion factor %d to default to 1.0, got %v", i, f)
		}
	}
}

func TestAxisHomedBitmap(t *testing.T) {
	s := NewState()
	if s.AxisIsHomed(0) {
		t.Fatalf("expected axis 0 unhomed initially")
	}
	s.SetAxisHomed(0)
	s.SetAxisHomed(2)
	if !s.AxisIsHomed(0) || !s.AxisIsHomed(2) {
		t.Fatalf("expected axes 0 and 2 homed")
	}
	if s.AxisIsHomed(1) {
		t.Fatalf("expected axis 1 to remain unhomed")
	}
	s.ClearAllHomed()
	if s.AxisIsHomed(0) || s.AxisIsHomed(2) {
		t.Fatalf("expected ClearAllHomed to reset the bitmap")
	}
}

func TestAllAxesHomed(t *testing.T) {
	s := NewState()
	s.SetAxisHomed(0)
	s.SetAxisHomed(1)
	if s.AllAxesHomed(3) {
		t.Fatalf("expected false with only X and Y homed")
	}
	s.SetAxisHomed(2)
	if !s.AllAxesHomed(3) {
		t.Fatalf("expected true once X, Y, and Z are homed")
	}
}

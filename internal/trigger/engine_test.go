package trigger

import "testing"

func TestEmergencyStopTakesPriority(t *testing.T) {
	e := NewEngine(4)
	e.Configure(SlotEmergencyStop, Trigger{RisingMask: 1 << 0})
	e.Configure(SlotPausePrint, Trigger{RisingMask: 1 << 1})
	d := e.Tick(1<<0|1<<1, true, false)
	if d.Kind != EmergencyStop {
		t.Fatalf("expected emergency stop to win, got %v", d.Kind)
	}
}

func TestOnlyWhenPrintingGate(t *testing.T) {
	e := NewEngine(4)
	e.Configure(SlotPausePrint, Trigger{RisingMask: 1 << 0, Cond: OnlyWhenPrinting})
	if d := e.Tick(1<<0, false, false); d.Kind != None {
		t.Fatalf("expected no dispatch while not printing, got %v", d.Kind)
	}
	e2 := NewEngine(4)
	e2.Configure(SlotPausePrint, Trigger{RisingMask: 1 << 0, Cond: OnlyWhenPrinting})
	if d := e2.Tick(1<<0, true, false); d.Kind != PausePrint {
		t.Fatalf("expected pause dispatch while printing, got %v", d.Kind)
	}
}

func TestFallingEdgeDetection(t *testing.T) {
	e := NewEngine(4)
	e.Configure(2, Trigger{FallingMask: 1 << 0})
	e.Tick(1<<0, false, false)
	d := e.Tick(0, false, false)
	if d.Kind != RunMacro || d.Slot != 2 {
		t.Fatalf("expected macro dispatch on falling edge, got %+v", d)
	}
}

func TestMacroBusySuppressesLowerPrioritySlots(t *testing.T) {
	e := NewEngine(4)
	e.Configure(2, Trigger{RisingMask: 1 << 0})
	if d := e.Tick(1<<0, false, true); d.Kind != None {
		t.Fatalf("expected trigger suppressed while a macro is busy, got %v", d.Kind)
	}
}

func TestUnusedSlotNeverFires(t *testing.T) {
	e := NewEngine(4)
	if d := e.Tick(0xFFFFFFFF, true, false); d.Kind != None {
		t.Fatalf("expected no dispatch when no slots are configured, got %v", d.Kind)
	}
}

package canned

import (
	"testing"

	"reprapcore/internal/collab"
)

// fakeMotion simulates a planner slot that always accepts the first queued
// move per phase; the first moveDrained poll after a queue frees the slot
// but still reports not drained, and later polls report drained.
type fakeMotion struct {
	pos        [collab.MaxDrives]float64
	queued     bool
	drained    bool
	triggered  bool
}

func (m *fakeMotion) queueMove(mv collab.RawMove) bool {
	if m.queued {
		return false
	}
	m.pos = mv.Target
	m.queued = true
	m.drained = false
	return true
}

func (m *fakeMotion) moveDrained() bool {
	if m.queued && !m.drained {
		m.drained = true
		m.queued = false
		return false
	}
	return true
}

func (m *fakeMotion) probeTriggered() bool { return m.triggered }

func TestProbeCycleHappyPath(t *testing.T) {
	fm := &fakeMotion{}
	p := NewProbeCycle(50, 50, 5, 2, 3000, 300, 10, 0)

	// PhaseRaise queues a move, then waits a tick for it to be accepted.
	if st := p.Tick(fm.pos, fm.queueMove, fm.moveDrained, fm.probeTriggered); st != InProgress {
		t.Fatalf("expected in progress after raise, got %v", st)
	}
	// PhaseTravelXY: waits for drain, then queues the XY travel move.
	if st := p.Tick(fm.pos, fm.queueMove, fm.moveDrained, fm.probeTriggered); st != InProgress {
		t.Fatalf("expected in progress while draining before travel, got %v", st)
	}
	if st := p.Tick(fm.pos, fm.queueMove, fm.moveDrained, fm.probeTriggered); st != InProgress {
		t.Fatalf("expected in progress after travel queued, got %v", st)
	}
	// PhaseProbeDown: wait for drain, then queue probe move.
	if st := p.Tick(fm.pos, fm.queueMove, fm.moveDrained, fm.probeTriggered); st != InProgress {
		t.Fatalf("expected in progress while draining before probe, got %v", st)
	}
	fm.triggered = false
	if st := p.Tick(fm.pos, fm.queueMove, fm.moveDrained, fm.probeTriggered); st != InProgress {
		t.Fatalf("expected in progress after probe move queued, got %v", st)
	}
	// PhaseRetract: wait for drain, observe trigger, queue retract.
	fm.triggered = true
	if st := p.Tick(fm.pos, fm.queueMove, fm.moveDrained, fm.probeTriggered); st != InProgress {
		t.Fatalf("expected in progress while draining before retract, got %v", st)
	}
	if st := p.Tick(fm.pos, fm.queueMove, fm.moveDrained, fm.probeTriggered); st != InProgress {
		t.Fatalf("expected in progress after retract queued, got %v", st)
	}
	// PhaseDone: wait for drain, then report complete on the following tick.
	if st := p.Tick(fm.pos, fm.queueMove, fm.moveDrained, fm.probeTriggered); st != InProgress {
		t.Fatalf("expected in progress while draining the retract move, got %v", st)
	}
	if st := p.Tick(fm.pos, fm.queueMove, fm.moveDrained, fm.probeTriggered); st != Complete {
		t.Fatalf("expected Complete once the retract move drains, got %v", st)
	}
	if p.ProbedZ == 0 {
		t.Fatalf("expected a nonzero probed Z to have been recorded")
	}
}

func TestProbeCycleAppliesTriggerHeight(t *testing.T) {
	fm := &fakeMotion{}
	p := NewProbeCycle(50, 50, 5, 2, 3000, 300, 10, 1.5)

	// Same tick sequence as TestProbeCycleHappyPath through to PhaseRetract.
	p.Tick(fm.pos, fm.queueMove, fm.moveDrained, fm.probeTriggered)
	p.Tick(fm.pos, fm.queueMove, fm.moveDrained, fm.probeTriggered)
	p.Tick(fm.pos, fm.queueMove, fm.moveDrained, fm.probeTriggered)
	p.Tick(fm.pos, fm.queueMove, fm.moveDrained, fm.probeTriggered)
	fm.triggered = false
	p.Tick(fm.pos, fm.queueMove, fm.moveDrained, fm.probeTriggered)
	fm.triggered = true
	p.Tick(fm.pos, fm.queueMove, fm.moveDrained, fm.probeTriggered)
	rawZ := fm.pos[2]
	p.Tick(fm.pos, fm.queueMove, fm.moveDrained, fm.probeTriggered)

	wantZ := rawZ + 1.5
	if p.ProbedZ != wantZ {
		t.Fatalf("expected ProbedZ %v (raw %v + trigger height 1.5), got %v", wantZ, rawZ, p.ProbedZ)
	}
}

func TestProbeCycleAlreadyTriggeredFails(t *testing.T) {
	fm := &fakeMotion{triggered: true}
	p := NewProbeCycle(0, 0, 5, 2, 3000, 300, 10, 0)

	p.Tick(fm.pos, fm.queueMove, fm.moveDrained, fm.probeTriggered) // raise queued
	p.Tick(fm.pos, fm.queueMove, fm.moveDrained, fm.probeTriggered) // raise not yet drained
	p.Tick(fm.pos, fm.queueMove, fm.moveDrained, fm.probeTriggered) // raise drained, travel queued
	p.Tick(fm.pos, fm.queueMove, fm.moveDrained, fm.probeTriggered) // travel not yet drained
	p.Tick(fm.pos, fm.queueMove, fm.moveDrained, fm.probeTriggered) // travel drained, detects pre-triggered probe

	if p.FailedErr == "" {
		t.Fatalf("expected pre-triggered probe to record a failure")
	}
}

package pause

import (
	"testing"

	"reprapcore/internal/collab"
	"reprapcore/internal/modal"
)

type fakePlanner struct {
	rp      collab.RestorePoint
	filePos int64
}

func (p *fakePlanner) TryQueueMove(m collab.RawMove) bool       { return true }
func (p *fakePlanner) MovesFinished() bool                      { return true }
func (p *fakePlanner) CurrentUserPosition() [collab.MaxDrives]float64 {
	return p.rp.Positions
}
func (p *fakePlanner) PausePrint(rp *collab.RestorePoint) int64 {
	*rp = p.rp
	return p.filePos
}
func (p *fakePlanner) ScheduledMovesCount() uint32  { return 0 }
func (p *fakePlanner) CompletedMovesCount() uint32  { return 0 }

func TestBeginPauseCapturesRestorePoint(t *testing.T) {
	st := modal.NewState()
	st.FeedRate = 3000
	st.SpeedFactor = 2.0
	planner := &fakePlanner{
		rp:      collab.RestorePoint{Positions: [collab.MaxDrives]float64{10, 20, 5}},
		filePos: 4096,
	}
	c := NewController()
	filePos := c.BeginPause(planner, st, map[int]float64{0: 0.5})
	if filePos != 4096 {
		t.Fatalf("expected pause file position 4096, got %d", filePos)
	}
	if c.Phase() != Pausing1 {
		t.Fatalf("expected Pausing1 after BeginPause, got %v", c.Phase())
	}
	if c.rp.FeedRate != 1500 {
		t.Fatalf("expected feed rate stored pre-speed-factor (1500), got %v", c.rp.FeedRate)
	}
	if c.rp.FanValues[0] != 0.5 {
		t.Fatalf("expected fan snapshot carried into the restore point")
	}
}

func TestPausingPhaseProgression(t *testing.T) {
	c := NewController()
	c.phase = Pausing1
	c.AdvancePausing1()
	if c.Phase() != Pausing2 {
		t.Fatalf("expected Pausing2, got %v", c.Phase())
	}
	c.FinishPausing()
	if !c.IsPaused() {
		t.Fatalf("expected IsPaused true after FinishPausing")
	}
}

func TestResumeOneSegmentWhenAtOrBelowPauseZ(t *testing.T) {
	c := NewController()
	c.rp.Positions = [collab.MaxDrives]float64{10, 20, 5}
	c.BeginResume(5)
	if c.TwoSegmentResume() {
		t.Fatalf("expected one-segment resume when current Z is at the pause Z")
	}
	moves := c.ResumeMoves([collab.MaxDrives]float64{0, 0, 5})
	if len(moves) != 1 || moves[0] != c.rp.Positions {
		t.Fatalf("expected a single combined move, got %+v", moves)
	}
}

func TestResumeTwoSegmentWhenAboveForPauseZ(t *testing.T) {
	c := NewController()
	c.rp.Positions = [collab.MaxDrives]float64{10, 20, 5}
	c.BeginResume(50)
	if !c.TwoSegmentResume() {
		t.Fatalf("expected two-segment resume when current Z is above the pause Z")
	}
	moves := c.ResumeMoves([collab.MaxDrives]float64{0, 0, 50})
	if len(moves) != 2 {
		t.Fatalf("expected two moves, got %d", len(moves))
	}
	if moves[0][0] != 10 || moves[0][1] != 20 || moves[0][2] != 50 {
		t.Fatalf("expected first segment to move XY only at current Z, got %v", moves[0])
	}
	if moves[1] != c.rp.Positions {
		t.Fatalf("expected second segment to land exactly on the restore point")
	}
}

func TestAdvanceResumingSequence(t *testing.T) {
	c := NewController()
	c.resumeTwoSegment = true
	c.phase = Resuming1
	if done := c.AdvanceResuming(); done || c.Phase() != Resuming2 {
		t.Fatalf("expected Resuming2 after first advance, got %v done=%v", c.Phase(), done)
	}
	if done := c.AdvanceResuming(); done || c.Phase() != Resuming3 {
		t.Fatalf("expected Resuming3 after second advance, got %v done=%v", c.Phase(), done)
	}
	if done := c.AdvanceResuming(); !done || c.Phase() != Idle {
		t.Fatalf("expected done=true and Idle after final advance, got %v done=%v", c.Phase(), done)
	}
}

func TestAdvanceResumingOneSegmentSkipsSecondStep(t *testing.T) {
	c := NewController()
	c.resumeTwoSegment = false
	c.phase = Resuming1
	if done := c.AdvanceResuming(); done || c.Phase() != Resuming3 {
		t.Fatalf("expected one-segment resume to skip straight to Resuming3, got %v done=%v", c.Phase(), done)
	}
}

func TestFinishResumeRestoresFeedRateAndFans(t *testing.T) {
	c := NewController()
	c.rp.FeedRate = 1500
	c.rp.FanValues = map[int]float64{0: 1.0, 1: 0.25}
	c.phase = Resuming3
	st := modal.NewState()
	st.SpeedFactor = 2.0
	restored := map[int]float64{}
	c.FinishResume(st, func(fan int, value float64) { restored[fan] = value })
	if st.FeedRate != 3000 {
		t.Fatalf("expected feed rate re-scaled by speed factor to 3000, got %v", st.FeedRate)
	}
	if restored[0] != 1.0 || restored[1] != 0.25 {
		t.Fatalf("expected both fan values restored, got %+v", restored)
	}
	if c.Phase() != Idle {
		t.Fatalf("expected Idle after FinishResume")
	}
}

func TestCancelResetsState(t *testing.T) {
	c := NewController()
	c.phase = Paused
	c.rp.Positions[0] = 42
	c.Cancel()
	if c.Phase() != Idle {
		t.Fatalf("expected Idle after Cancel")
	}
	if c.rp.Positions[0] != 0 {
		t.Fatalf("expected restore point cleared after Cancel")
	}
}

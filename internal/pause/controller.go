// Package pause implements the pause/resume controller (§4.J): captures
// a motion restore point, drains moves, runs the pause macro, and on
// resume replays the abandoned file position. Grounded on the classic
// pause/resume command pair (save-state, run the pause macro, later
// restore-state) generalized to the planner-collaborator model instead of
// mutating a shared gcode_move object directly.
package pause

import (
	"reprapcore/internal/collab"
	"reprapcore/internal/modal"
)

// Source distinguishes how the pause was initiated, since it changes
// which channel's sub-state advances.
type Source int

const (
	SourceExternal Source = iota // M25 from a non-file channel, or trigger 1
	SourceInFile               // M226 encountered while streaming the print file
)

type Phase int

const (
	Idle Phase = iota
	Pausing1
	Pausing2
	Paused
	Resuming1
	Resuming2
	Resuming3
)

// Controller drives the pause/resume state machine for the file channel.
type Controller struct {
	phase Phase
	rp    collab.RestorePoint

	resumeTwoSegment bool // Z currently above pause Z: move XY first, then lower
}

func NewController() *Controller { return &Controller{phase: Idle} }

func (c *Controller) Phase() Phase    { return c.phase }
func (c *Controller) IsPaused() bool  { return c.phase == Paused }
func (c *Controller) IsPausing() bool { return c.phase == Pausing1 || c.phase == Pausing2 }
func (c *Controller) IsResuming() bool {
	return c.phase == Resuming1 || c.phase == Resuming2 || c.phase == Resuming3
}

// BeginPause captures the restore point from the planner and snapshots
// fan values, then transitions to Pausing1. Per §4.J the restore point
// records absolute axis coordinates and the pre-speed-factor feed rate.
func (c *Controller) BeginPause(planner collab.Planner, st *modal.State, fanValues map[int]float64) int64 {
	filePos := planner.PausePrint(&c.rp)
	c.rp.FeedRate = st.FeedRate / st.SpeedFactor
	c.rp.FanValues = map[int]float64{}
	for k, v := range fanValues {
		c.rp.FanValues[k] = v
	}
	c.phase = Pausing1
	return filePos
}

// AdvancePausing1 runs once the pause macro is confirmed dispatched;
// transitions the file channel to idle-while-paused.
func (c *Controller) AdvancePausing1() { c.phase = Pausing2 }
func (c *Controller) FinishPausing()   { c.phase = Paused }

// RestorePoint exposes the captured snapshot for M24/resume.
func (c *Controller) RestorePoint() collab.RestorePoint { return c.rp }

// BeginResume decides whether the reposition needs one or two segments:
// if the current Z is above the pause Z the head must move to paused X/Y
// first, then lower; otherwise it can move directly.
func (c *Controller) BeginResume(currentZ float64) {
	c.resumeTwoSegment = currentZ > c.rp.Positions[2]
	c.phase = Resuming1
}

func (c *Controller) TwoSegmentResume() bool { return c.resumeTwoSegment }

// ResumeMoves returns the move(s) needed to reposition, in order. For a
// two-segment resume the caller issues MoveXY first, waits for drain,
// then MoveXYZ; for one-segment it issues the single combined move.
func (c *Controller) ResumeMoves(currentPos [collab.MaxDrives]float64) [][collab.MaxDrives]float64 {
	if !c.resumeTwoSegment {
		return [][collab.MaxDrives]float64{c.rp.Positions}
	}
	xyOnly := currentPos
	xyOnly[0], xyOnly[1] = c.rp.Positions[0], c.rp.Positions[1]
	return [][collab.MaxDrives]float64{xyOnly, c.rp.Positions}
}

func (c *Controller) AdvanceResuming() bool {
	switch c.phase {
	case Resuming1:
		if c.resumeTwoSegment {
			c.phase = Resuming2
		} else {
			c.phase = Resuming3
		}
		return false
	case Resuming2:
		c.phase = Resuming3
		return false
	case Resuming3:
		c.phase = Idle
		return true
	}
	return true
}

// FinishResume restores modal feed rate and fan values and returns to
// Idle. It does not change the extruder bookkeeping
// (modal.State.LastRawExtruderPosition).
func (c *Controller) FinishResume(st *modal.State, setFan func(fan int, value float64)) {
	st.FeedRate = c.rp.FeedRate * st.SpeedFactor
	for fan, v := range c.rp.FanValues {
		setFan(fan, v)
	}
	c.phase = Idle
}

// Cancel aborts a pause/resume in progress (M112, CANCEL_PRINT) and
// returns to Idle without restoring anything.
func (c *Controller) Cancel() { c.phase = Idle; c.rp = collab.RestorePoint{} }

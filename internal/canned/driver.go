// Package canned implements the canned-cycle driver (§4.H): multi-phase
// internal move sequences (single-point Z-probe) advanced one tick at a
// time. Each call either claims the move slot and reports "in progress"
// or observes the previously queued move has drained and reports
// "complete", collapsing the phase counter into the cycle's own state
// rather than a separate integer (per the tagged-variant design note).
package canned

import "reprapcore/internal/collab"

type Phase int

const (
	PhaseRaise Phase = iota
	PhaseTravelXY
	PhaseProbeDown
	PhaseRetract
	PhaseDone
)

type Status int

const (
	InProgress Status = iota
	Complete
	Failed
)

// ProbeCycle drives a single-point G30 probe sequence.
type ProbeCycle struct {
	phase Phase

	DiveHeight float64
	StopHeight float64
	TravelFeed float64
	ProbeFeed  float64
	ProbeMaxDist float64

	TargetX, TargetY float64
	startZ           float64

	// TriggerHeight is the G31 Z offset: the nozzle height at which the
	// probe itself is considered to have tripped, added to the raw
	// triggered position so ProbedZ reflects true bed height rather than
	// nozzle height at trigger time.
	TriggerHeight float64

	ProbedZ   float64
	FailedErr string
}

func NewProbeCycle(x, y, diveHeight, stopHeight, travelFeed, probeFeed, probeMaxDist, triggerHeight float64) *ProbeCycle {
	return &ProbeCycle{
		phase: PhaseRaise, TargetX: x, TargetY: y,
		DiveHeight: diveHeight, StopHeight: stopHeight,
		TravelFeed: travelFeed, ProbeFeed: probeFeed, ProbeMaxDist: probeMaxDist,
		TriggerHeight: triggerHeight,
	}
}

// Tick advances one phase. queueMove submits a RawMove to the planner and
// returns false if the slot was full (caller retries next tick). moveDrained
// reports whether the previously queued move has finished. probeTriggered
// reports the (possibly already-true-at-start) Z-probe endstop state, and
// currentPos is the live position each phase builds its move from.
func (p *ProbeCycle) Tick(
	currentPos [collab.MaxDrives]float64,
	queueMove func(collab.RawMove) bool,
	moveDrained func() bool,
	probeTriggered func() bool,
) Status {
	switch p.phase {
	case PhaseRaise:
		if p.startZ == 0 {
			p.startZ = currentPos[2]
		}
		target := currentPos
		target[2] = p.DiveHeight + p.StopHeight
		mv := collab.RawMove{Target: target, FeedRate: p.TravelFeed, Type: collab.MoveNormal}
		if !queueMove(mv) {
			return InProgress
		}
		p.phase = PhaseTravelXY
		return InProgress

	case PhaseTravelXY:
		if !moveDrained() {
			return InProgress
		}
		target := currentPos
		target[0], target[1] = p.TargetX, p.TargetY
		mv := collab.RawMove{Target: target, FeedRate: p.TravelFeed, Type: collab.MoveNormal}
		if !queueMove(mv) {
			return InProgress
		}
		p.phase = PhaseProbeDown
		return InProgress

	case PhaseProbeDown:
		if !moveDrained() {
			return InProgress
		}
		if probeTriggered() {
			// Triggered at move start: fail and advance rather than hang.
			p.FailedErr = "Z probe already triggered at start of probing move"
			p.phase = PhaseRetract
			return InProgress
		}
		target := currentPos
		target[2] = currentPos[2] - p.ProbeMaxDist
		mv := collab.RawMove{
			Target: target, FeedRate: p.ProbeFeed, Type: collab.MoveHomingCheck,
			EndstopsToCheck: 1 << 15, // ZProbeActive, per original_source/GCodes.h
		}
		if !queueMove(mv) {
			return InProgress
		}
		p.phase = PhaseRetract
		return InProgress

	case PhaseRetract:
		if !moveDrained() {
			return InProgress
		}
		if p.FailedErr == "" {
			if !probeTriggered() {
				p.FailedErr = "Z probe was not triggered during probing move"
			} else {
				p.ProbedZ = currentPos[2] + p.TriggerHeight
			}
		}
		target := currentPos
		target[2] = p.DiveHeight + p.StopHeight
		mv := collab.RawMove{Target: target, FeedRate: p.TravelFeed, Type: collab.MoveNormal}
		if !queueMove(mv) {
			return InProgress
		}
		p.phase = PhaseDone
		return InProgress

	case PhaseDone:
		if !moveDrained() {
			return InProgress
		}
		if p.FailedErr != "" {
			return Failed
		}
		return Complete
	}
	return Failed
}

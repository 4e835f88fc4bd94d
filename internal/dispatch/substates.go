package dispatch

import (
	"fmt"

	"reprapcore/internal/canned"
	"reprapcore/internal/collab"
	"reprapcore/internal/gcode"
	"reprapcore/internal/gcodeerr"
	"reprapcore/internal/lock"
	"reprapcore/internal/macro"
	"reprapcore/internal/pause"
	"reprapcore/internal/state"
)

// stepSubState runs one step of whichever non-normal sub-state the
// channel's current frame is in, per §4.I's "run one step of the
// corresponding sub-state routine" rule.
func (d *Dispatcher) stepSubState(cc *ChannelCtx, frame *state.Frame) error {
	switch frame.SubState {
	case state.WaitingForMoveToComplete:
		if !d.Planner.MovesFinished() {
			return gcodeerr.TransientWait
		}
		d.releaseAndReturnNormal(cc)
		d.reply(cc, false, "")
		return nil

	case state.Homing:
		return d.stepHoming(cc, frame)

	case state.ToolChange1, state.ToolChange2, state.ToolChange3:
		return d.stepToolChange(cc, frame)

	case state.Pausing1:
		return d.stepPausing1(cc, frame)
	case state.Pausing2:
		return d.stepPausing2(cc, frame)

	case state.Resuming1, state.Resuming2, state.Resuming3:
		return d.stepResuming(cc, frame)

	case state.WaitingForMoveSlot, state.WaitingForFileLock:
		return d.stepRetryCommand(cc, frame)

	case state.Probing:
		return d.stepProbing(cc, frame)

	case state.Stopping:
		d.releaseAndReturnNormal(cc)
		return nil

	case state.Sleeping:
		return nil

	default:
		d.releaseAndReturnNormal(cc)
		return nil
	}
}

// stepHoming homes the next axis in frame.HomeAxes, in the configured
// order (X,Y,Z last for a typical Cartesian), one axis per invocation of
// this step so a multi-axis G28 still yields between axes.
func (d *Dispatcher) stepHoming(cc *ChannelCtx, frame *state.Frame) error {
	if len(frame.HomeAxes) == 0 {
		d.releaseAndReturnNormal(cc)
		d.reply(cc, false, "")
		return nil
	}
	axis := frame.HomeAxes[0]
	name := d.Resolve("home" + axisName(axis) + ".g")
	if !d.Platform.Exists(name) {
		// No axis-specific macro: treat as homed directly (bench/sim use).
		d.Modal.SetAxisHomed(axis)
		frame.HomeAxes = frame.HomeAxes[1:]
		return gcodeerr.TransientWait
	}
	text, res, err := d.Macro.Begin(cc.Stack, d.Locks, cc.ID, "home"+axisName(axis), false, nil)
	if err != nil {
		return err
	}
	if res == macro.Failed {
		return err
	}
	d.feedMacroText(cc, text)
	d.Modal.SetAxisHomed(axis)
	frame.HomeAxes = frame.HomeAxes[1:]
	return gcodeerr.TransientWait
}

func axisName(axis int) string {
	return string([]byte{"XYZUVW"[axis]})
}

func (d *Dispatcher) stepToolChange(cc *ChannelCtx, frame *state.Frame) error {
	switch frame.SubState {
	case state.ToolChange1:
		frame.SubState = state.ToolChange2
		return gcodeerr.TransientWait
	case state.ToolChange2:
		d.Modal.CurrentTool = frame.ToolNew
		frame.SubState = state.ToolChange3
		return gcodeerr.TransientWait
	case state.ToolChange3:
		d.releaseAndReturnNormal(cc)
		d.reply(cc, false, "")
		return nil
	}
	return nil
}

func (d *Dispatcher) stepPausing1(cc *ChannelCtx, frame *state.Frame) error {
	cc.Pause.AdvancePausing1()
	frame.SubState = state.Pausing2
	return gcodeerr.TransientWait
}

func (d *Dispatcher) stepPausing2(cc *ChannelCtx, frame *state.Frame) error {
	cc.Pause.FinishPausing()
	d.releaseAndReturnNormal(cc)
	return nil
}

// stepResuming drives M24's reposition: one queued move per phase
// (Resuming1 queues the first segment — XY-only for a two-segment resume,
// the full restore point otherwise — Resuming2 queues the second segment
// of a two-segment resume, Resuming3 waits for drain and hands off to
// FinishResume), per pause.Controller.ResumeMoves' documented contract.
func (d *Dispatcher) stepResuming(cc *ChannelCtx, frame *state.Frame) error {
	switch cc.Pause.Phase() {
	case pause.Resuming1:
		rp := cc.Pause.RestorePoint()
		moves := cc.Pause.ResumeMoves(d.Planner.CurrentUserPosition())
		if !d.Planner.TryQueueMove(collab.RawMove{Target: moves[0], FeedRate: rp.FeedRate, Type: collab.MoveNormal}) {
			return gcodeerr.TransientWait
		}
		cc.Pause.AdvanceResuming()
		return gcodeerr.TransientWait

	case pause.Resuming2:
		if !d.Planner.MovesFinished() {
			return gcodeerr.TransientWait
		}
		rp := cc.Pause.RestorePoint()
		moves := cc.Pause.ResumeMoves(d.Planner.CurrentUserPosition())
		if !d.Planner.TryQueueMove(collab.RawMove{Target: moves[1], FeedRate: rp.FeedRate, Type: collab.MoveNormal}) {
			return gcodeerr.TransientWait
		}
		cc.Pause.AdvanceResuming()
		return gcodeerr.TransientWait

	case pause.Resuming3:
		if !d.Planner.MovesFinished() {
			return gcodeerr.TransientWait
		}
		cc.Pause.AdvanceResuming()
		cc.Pause.FinishResume(d.Modal, d.setFan)
		d.releaseAndReturnNormal(cc)
		d.reply(cc, false, "")
		return nil
	}
	return nil
}

// stepRetryCommand re-parses and redispatches the line a handler already
// consumed off the channel but could not complete on its first attempt (a
// full move slot, a busy FileSystem lock), so the command is retried
// rather than silently dropped. Returning to state.Normal before calling
// actOnCode lets the handler re-enter its own WaitingFor* transition if
// the resource is still unavailable.
func (d *Dispatcher) stepRetryCommand(cc *ChannelCtx, frame *state.Frame) error {
	line := frame.PendingLine
	frame.PendingLine = ""
	cmd, err := gcode.Parse(line, cc.Ch)
	if err != nil {
		d.releaseAndReturnNormal(cc)
		return err
	}
	frame.SubState = state.Normal
	if err := d.actOnCode(cc, cmd); err != nil {
		if gcodeerr.IsTransient(err) {
			return gcodeerr.TransientWait
		}
		// A genuine (non-transient) failure on retry still owes the
		// caller a reply — the normal Tick path would have sent one had
		// this command failed on its very first attempt.
		gerr, ok := err.(*gcodeerr.Error)
		prefix := "Error: "
		if ok {
			prefix = gerr.ReplyPrefix()
		}
		d.reply(cc, true, prefix+err.Error())
		d.releaseAndReturnNormal(cc)
		if ok && gcodeerr.IsFatal(err) {
			return err
		}
		return nil
	}
	return nil
}

// stepProbing advances a G30 cycle one phase per tick, per §4.H.
func (d *Dispatcher) stepProbing(cc *ChannelCtx, frame *state.Frame) error {
	cycle := frame.Probe
	currentPos := d.Planner.CurrentUserPosition()
	probeTriggered := func() bool {
		return d.Platform.EndstopVector()&zProbeEndstopBit != 0
	}
	switch cycle.Tick(currentPos, d.Planner.TryQueueMove, d.Planner.MovesFinished, probeTriggered) {
	case canned.InProgress:
		return gcodeerr.TransientWait
	case canned.Complete:
		frame.Probe = nil
		d.Locks.Unlock(cc.ID, lock.Move)
		d.releaseAndReturnNormal(cc)
		d.reply(cc, false, fmt.Sprintf("Z probe height: %.3f", cycle.ProbedZ))
		return nil
	default: // canned.Failed
		frame.Probe = nil
		d.Locks.Unlock(cc.ID, lock.Move)
		d.releaseAndReturnNormal(cc)
		// Replied here because Tick's sub-state error path sends no reply.
		gerr := gcodeerr.Semanticf("%s", cycle.FailedErr)
		d.reply(cc, true, gerr.ReplyPrefix()+gerr.Error())
		return nil
	}
}

// Resolve delegates to the macro controller's path resolution.
func (d *Dispatcher) Resolve(name string) string { return d.Macro.Resolve(name) }

// feedMacroText streams a rendered macro body's bytes into the channel's
// buffer one line at a time (the channel is single-slot, so callers pull
// one line, let the dispatcher consume it, before the next is pushed —
// here we push the whole body and rely on Put's line-complete semantics
// to gate consumption one command at a time).
func (d *Dispatcher) feedMacroText(cc *ChannelCtx, text string) {
	cc.Ch.PutStr(text)
}

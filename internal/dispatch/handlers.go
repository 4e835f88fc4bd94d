package dispatch

import (
	"fmt"
	"io"

	"reprapcore/internal/canned"
	"reprapcore/internal/collab"
	"reprapcore/internal/gcode"
	"reprapcore/internal/gcodeerr"
	"reprapcore/internal/lock"
	"reprapcore/internal/logging"
	"reprapcore/internal/macro"
	"reprapcore/internal/move"
	"reprapcore/internal/nvram"
	"reprapcore/internal/pause"
	"reprapcore/internal/state"
)

// Default single-point probe motion parameters (§4.H). A full M558
// probe-configuration surface is a Non-goal; these give G30 a real cycle
// to drive instead of none at all.
const (
	probeDiveHeight = 5.0
	probeStopHeight = 2.0
	probeTravelFeed = 50.0 // mm/s
	probeFeed       = 2.0  // mm/s
	probeMaxDist    = 30.0 // mm

	// zProbeEndstopBit mirrors canned.driver's EndstopsToCheck bit 15
	// (ZProbeActive, per original_source/GCodes.h).
	zProbeEndstopBit = 1 << 15
)

func registerHandlers(d *Dispatcher) {
	d.Register("G", 0, handleMove)
	d.Register("G", 1, handleMove)
	d.Register("G", 4, handleDwell)
	d.Register("G", 20, handleUnits(25.4))
	d.Register("G", 21, handleUnits(1.0))
	d.Register("G", 28, handleHome)
	d.Register("G", 30, handleProbe)
	d.Register("G", 90, handleAbsRel(false))
	d.Register("G", 91, handleAbsRel(true))
	d.Register("G", 92, handleSetPosition)

	d.Register("M", 0, handleStopSleep)
	d.Register("M", 1, handleStopSleep)
	d.Register("M", 17, handleDriveEnable(true))
	d.Register("M", 18, handleDriveEnable(false))
	d.Register("M", 84, handleDriveEnable(false))
	d.Register("M", 20, handleListFiles)
	d.Register("M", 23, handleSelectFile)
	d.Register("M", 24, handleStartResume)
	d.Register("M", 25, handlePause)
	d.Register("M", 82, handleEMode(false))
	d.Register("M", 83, handleEMode(true))
	d.Register("M", 104, handleSetHeaterTemp(false))
	d.Register("M", 109, handleSetHeaterTemp(true))
	d.Register("M", 140, handleSetBedTemp(false))
	d.Register("M", 190, handleSetBedTemp(true))
	d.Register("M", 105, handleReportTemps)
	d.Register("M", 106, handleFan(false))
	d.Register("M", 107, handleFan(true))
	d.Register("M", 112, handleEmergencyStop)
	d.Register("M", 114, handlePosition)
	d.Register("M", 115, handleIdentity)
	d.Register("M", 117, handleDisplayMessage)
	d.Register("M", 119, handleEndstopStatus)
	d.Register("M", 120, handlePushState)
	d.Register("M", 121, handlePopState)
	d.Register("M", 220, handleSpeedFactor)
	d.Register("M", 221, handleExtrusionFactor)
	d.Register("M", 226, handlePauseInFile)
	d.Register("M", 400, handleDrain)
	d.Register("M", 999, handleFirmwareReset)
	d.Register("M", 38, handleHashFile)
	d.Register("M", 98, handleRunMacroFile)
	d.Register("M", 99, handleReturnFromMacro)
	d.Register("M", 111, handleDebugLevel)
	d.Register("M", 122, handleDiagnostics)
	d.Register("M", 206, handleAxisOffsets)
	d.Register("M", 208, handleAxisLimits)
	d.Register("M", 408, handleStatusReport)
	d.Register("M", 500, handleSaveSettings)
	d.Register("M", 501, handleRestoreSettings)
	d.Register("M", 502, handleResetSettings)
	d.Register("M", 503, handleReportSettings)

	d.Register("G", 31, handleSetProbeParams)
	d.Register("G", 32, handleRunBedMacro)

	d.Register("M", 110, handleResetLineNumber)
	d.Register("M", 116, handleWaitAllTemps)
	d.Register("M", 141, handleSetChamberTemp(false))
	d.Register("M", 143, handleSetChamberTemp(false))
	d.Register("M", 144, handleSetChamberTemp(false))
	d.Register("M", 191, handleSetChamberTemp(true))
	d.Register("M", 300, handleAcknowledgeOnly)
	d.Register("M", 21, handleAcknowledgeOnly)
	d.Register("M", 22, handleAcknowledgeOnly)
	d.Register("M", 27, handleReportPrintStatus)
	d.Register("M", 30, handleDeleteFile)
	d.Register("M", 997, handleAcknowledgeOnly)
	d.Register("M", 998, handleAcknowledgeOnly)
}

func handleMove(d *Dispatcher, cc *ChannelCtx, cmd *gcode.Command) error {
	if !d.Locks.TryLock(cc.ID, lock.Move) {
		return gcodeerr.TransientWait
	}
	currentPos := d.Planner.CurrentUserPosition()
	mv, commit, err := move.Build(cmd, d.Modal, d.currentTool(), collab.MoveNormal, currentPos)
	if err != nil {
		return err
	}
	if !d.Planner.TryQueueMove(mv) {
		// The move slot is full, an ordinary transient condition: retry
		// the same line from a dedicated sub-state rather than returning
		// Transient from the top level, which would drop it for good (the
		// channel already consumed it). LastRawExtruderPosition must not
		// have advanced for this attempt — commit is only called below,
		// once TryQueueMove actually succeeds (invariant §3.4).
		frame := cc.Stack.Current()
		frame.SubState = state.WaitingForMoveSlot
		frame.PendingLine = cmd.Raw
		return gcodeerr.TransientWait
	}
	commit()
	d.Locks.Unlock(cc.ID, lock.Move)
	d.reply(cc, false, "")
	d.releaseAndReturnNormal(cc)
	return nil
}

func handleSetPosition(d *Dispatcher, cc *ChannelCtx, cmd *gcode.Command) error {
	currentPos := d.Planner.CurrentUserPosition()
	mv, commit, err := move.Build(cmd, d.Modal, d.currentTool(), collab.MoveSetPosition, currentPos)
	if err != nil {
		return err
	}
	// G92 is an instant position reset, not a queued move: it always
	// commits immediately regardless of TryQueueMove's result.
	d.Planner.TryQueueMove(mv)
	commit()
	d.reply(cc, false, "")
	d.releaseAndReturnNormal(cc)
	return nil
}

func handleDwell(d *Dispatcher, cc *ChannelCtx, cmd *gcode.Command) error {
	if err := d.LockMoveAndWaitForStandstill(cc); err != nil {
		return err
	}
	d.Locks.Unlock(cc.ID, lock.Move)
	d.reply(cc, false, "")
	d.releaseAndReturnNormal(cc)
	return nil
}

func handleUnits(scale float64) Handler {
	return func(d *Dispatcher, cc *ChannelCtx, cmd *gcode.Command) error {
		d.Modal.DistanceScale = scale
		d.reply(cc, false, "")
		d.releaseAndReturnNormal(cc)
		return nil
	}
}

func handleAbsRel(relative bool) Handler {
	return func(d *Dispatcher, cc *ChannelCtx, cmd *gcode.Command) error {
		// The 2014 change this core preserves: G90/G91 resets
		// axesRelative but leaves drivesRelative untouched.
		d.Modal.AxesRelative = relative
		d.reply(cc, false, "")
		d.releaseAndReturnNormal(cc)
		return nil
	}
}

func handleEMode(relative bool) Handler {
	return func(d *Dispatcher, cc *ChannelCtx, cmd *gcode.Command) error {
		d.Modal.DrivesRelative = relative
		d.reply(cc, false, "")
		d.releaseAndReturnNormal(cc)
		return nil
	}
}

func handleHome(d *Dispatcher, cc *ChannelCtx, cmd *gcode.Command) error {
	if err := d.LockMoveAndWaitForStandstill(cc); err != nil {
		return err
	}
	frame := cc.Stack.Current()
	var axes []int
	for axis, letter := range []byte{'X', 'Y', 'Z', 'U', 'V', 'W'} {
		if cmd.Seen(letter) {
			axes = append(axes, axis)
		}
	}
	if len(axes) == 0 {
		axes = []int{0, 1, 2}
	}
	allMacro := d.Resolve("homeall.g")
	if len(axes) == 3 && d.Platform.Exists(allMacro) {
		text, _, err := d.Macro.Begin(cc.Stack, d.Locks, cc.ID, "homeall", true, nil)
		if err != nil {
			return err
		}
		d.feedMacroText(cc, text)
		d.Modal.SetAxisHomed(0)
		d.Modal.SetAxisHomed(1)
		d.Modal.SetAxisHomed(2)
		d.reply(cc, false, "")
		d.releaseAndReturnNormal(cc)
		return nil
	}
	frame.SubState = state.Homing
	frame.HomeAxes = axes
	return gcodeerr.TransientWait
}

// handleProbe is G30: builds a single-point canned probe cycle at the
// commanded (or current) XY and hands it to the Probing sub-state, which
// drives canned.ProbeCycle.Tick across ticks until it completes or fails.
func handleProbe(d *Dispatcher, cc *ChannelCtx, cmd *gcode.Command) error {
	if err := d.LockMoveAndWaitForStandstill(cc); err != nil {
		return err
	}
	currentPos := d.Planner.CurrentUserPosition()
	x, y := currentPos[0], currentPos[1]
	if cmd.Seen('X') {
		x = cmd.GetFloat('X', x)
	}
	if cmd.Seen('Y') {
		y = cmd.GetFloat('Y', y)
	}
	frame := cc.Stack.Current()
	frame.Probe = canned.NewProbeCycle(x, y, probeDiveHeight, probeStopHeight,
		probeTravelFeed, probeFeed, probeMaxDist, d.Modal.ProbeTriggerHeight)
	frame.SubState = state.Probing
	return gcodeerr.TransientWait
}

func handleStopSleep(d *Dispatcher, cc *ChannelCtx, cmd *gcode.Command) error {
	d.Heat.EmergencySwitchOffAll()
	d.Platform.DisableDrives()
	d.reply(cc, false, "")
	d.releaseAndReturnNormal(cc)
	return nil
}

func handleDriveEnable(enable bool) Handler {
	return func(d *Dispatcher, cc *ChannelCtx, cmd *gcode.Command) error {
		if enable {
			d.Platform.EnableDrives()
		} else {
			d.Platform.DisableDrives()
		}
		d.reply(cc, false, "")
		d.releaseAndReturnNormal(cc)
		return nil
	}
}

func handleListFiles(d *Dispatcher, cc *ChannelCtx, cmd *gcode.Command) error {
	if !d.Locks.TryLock(cc.ID, lock.FileSystem) {
		frame := cc.Stack.Current()
		frame.SubState = state.WaitingForFileLock
		frame.PendingLine = cmd.Raw
		return gcodeerr.TransientWait
	}
	names, err := d.Platform.ListDir("0:/gcodes")
	d.Locks.Unlock(cc.ID, lock.FileSystem)
	if err != nil {
		return gcodeerr.Semanticf("%v", err)
	}
	list := ""
	for _, n := range names {
		list += n + "\n"
	}
	d.reply(cc, false, list)
	d.releaseAndReturnNormal(cc)
	return nil
}

func handleSelectFile(d *Dispatcher, cc *ChannelCtx, cmd *gcode.Command) error {
	name := cmd.GetUnprecedentedString()
	if name == "" {
		return gcodeerr.Semanticf("M23 requires a filename")
	}
	if !d.Locks.TryLock(cc.ID, lock.FileSystem) {
		frame := cc.Stack.Current()
		frame.SubState = state.WaitingForFileLock
		frame.PendingLine = cmd.Raw
		return gcodeerr.TransientWait
	}
	f, err := d.Platform.OpenRead("0:/gcodes/" + name)
	if err != nil {
		d.Locks.Unlock(cc.ID, lock.FileSystem)
		return gcodeerr.Semanticf("file not found: %s", name)
	}
	d.Locks.Unlock(cc.ID, lock.FileSystem)
	target := d.fileChannel()
	if target == nil {
		target = cc
	}
	if target.PrintFile != nil {
		target.PrintFile.Close()
	}
	target.PrintFile = f
	d.Monitor.StartedPrint(name)
	d.reply(cc, false, "")
	d.releaseAndReturnNormal(cc)
	return nil
}

func handleStartResume(d *Dispatcher, cc *ChannelCtx, cmd *gcode.Command) error {
	if cc.Pause != nil && cc.Pause.IsPaused() {
		currentPos := d.Planner.CurrentUserPosition()
		cc.Pause.BeginResume(currentPos[2])
		cc.Stack.Current().SubState = state.Resuming1
		return gcodeerr.TransientWait
	}
	d.reply(cc, false, "")
	d.releaseAndReturnNormal(cc)
	return nil
}

func handlePause(d *Dispatcher, cc *ChannelCtx, cmd *gcode.Command) error {
	return doPause(d, cc, pause.SourceExternal)
}

func handlePauseInFile(d *Dispatcher, cc *ChannelCtx, cmd *gcode.Command) error {
	return doPause(d, cc, pause.SourceInFile)
}

func doPause(d *Dispatcher, cc *ChannelCtx, src pause.Source) error {
	target := d.fileChannel()
	if target == nil {
		target = cc
	}
	if target.Pause == nil {
		d.reply(cc, false, "")
		d.releaseAndReturnNormal(cc)
		return nil
	}
	filePos := target.Pause.BeginPause(d.Planner, d.Modal, d.Modal.FanValues)
	if target.PrintFile != nil {
		if _, err := target.PrintFile.Seek(filePos, io.SeekStart); err != nil {
			logging.Warnf("pause: failed to seek print file back to %d: %v", filePos, err)
		}
	}
	d.Deferred.PurgeUnissued(d.Planner.ScheduledMovesCount())
	target.Stack.Current().SubState = state.Pausing1
	if cc != target {
		d.reply(cc, false, "")
		d.releaseAndReturnNormal(cc)
	}
	return nil
}

func (d *Dispatcher) currentTool() *move.Tool {
	if d.Modal.CurrentTool < 0 {
		return nil
	}
	return &move.Tool{DriveCount: 1, FirstExtruder: d.Modal.CurrentTool}
}

func handleSetHeaterTemp(wait bool) Handler {
	return func(d *Dispatcher, cc *ChannelCtx, cmd *gcode.Command) error {
		heater := cmd.GetInt('H', -1)
		temp := cmd.GetFloat('S', -1)
		if heater < 0 {
			heater = onlyToolHeater(d)
		}
		if temp >= 0 {
			d.Heat.SetActiveTemp(heater, temp)
		}
		if !wait {
			d.reply(cc, false, "")
			d.releaseAndReturnNormal(cc)
			return nil
		}
		if !d.Heat.AtSetTemperature(heater, false) {
			return gcodeerr.TransientWait
		}
		d.reply(cc, false, "")
		d.releaseAndReturnNormal(cc)
		return nil
	}
}

// onlyToolHeater returns the heater targeted when M104/M109 omit H: the
// current tool's index if a tool is selected, otherwise 0. It does not
// count the configured tools, so with no tool selected it never picks a
// lone non-bed tool.
func onlyToolHeater(d *Dispatcher) int {
	if d.Modal.CurrentTool >= 0 {
		return d.Modal.CurrentTool
	}
	return 0
}

func handleSetBedTemp(wait bool) Handler {
	return func(d *Dispatcher, cc *ChannelCtx, cmd *gcode.Command) error {
		const bedHeater = 0
		temp := cmd.GetFloat('S', -1)
		if temp >= 0 {
			d.Heat.SetActiveTemp(bedHeater, temp)
		}
		if !wait {
			d.reply(cc, false, "")
			d.releaseAndReturnNormal(cc)
			return nil
		}
		if !d.Heat.AtSetTemperature(bedHeater, false) {
			return gcodeerr.TransientWait
		}
		d.reply(cc, false, "")
		d.releaseAndReturnNormal(cc)
		return nil
	}
}

func handleReportTemps(d *Dispatcher, cc *ChannelCtx, cmd *gcode.Command) error {
	t, _ := d.Heat.GetTemperature(onlyToolHeater(d))
	d.reply(cc, false, fmt.Sprintf("T:%.1f", t))
	d.releaseAndReturnNormal(cc)
	return nil
}

func handleFan(off bool) Handler {
	return func(d *Dispatcher, cc *ChannelCtx, cmd *gcode.Command) error {
		fan := cmd.GetInt('P', 0)
		duty := 0.0
		if !off {
			duty = cmd.GetFloat('S', 255) / 255
		}
		if cc.IsFileChannel && d.Monitor.IsPrinting() {
			d.Deferred.Push(cmd.Raw, int(cc.ID), d.Planner.ScheduledMovesCount())
		} else {
			d.setFan(fan, duty)
		}
		d.reply(cc, false, "")
		d.releaseAndReturnNormal(cc)
		return nil
	}
}

// setFan applies a fan duty cycle immediately: records it in modal state
// (so M408 and pause/resume can read it back) and drives the pin.
func (d *Dispatcher) setFan(fan int, duty float64) {
	d.Modal.FanValues[fan] = duty
	d.Platform.SetPWM(fan, duty)
}

func handleEmergencyStop(d *Dispatcher, cc *ChannelCtx, cmd *gcode.Command) error {
	d.Heat.EmergencySwitchOffAll()
	d.Platform.DisableDrives()
	d.Modal.ClearAllHomed()
	for _, c := range d.Channels {
		d.Locks.UnlockAllExcept(c.ID, 0)
		c.Stack.Current().SubState = state.Normal
	}
	d.reply(cc, true, "Emergency Stop! Reset the controller to continue.")
	return nil
}

func handlePosition(d *Dispatcher, cc *ChannelCtx, cmd *gcode.Command) error {
	pos := d.Planner.CurrentUserPosition()
	d.reply(cc, false, fmt.Sprintf("X: %.2f Y: %.2f Z: %.2f E: %.2f", pos[0], pos[1], pos[2], pos[6]))
	d.releaseAndReturnNormal(cc)
	return nil
}

func handleIdentity(d *Dispatcher, cc *ChannelCtx, cmd *gcode.Command) error {
	d.reply(cc, false, "FIRMWARE_NAME:RepRapCore FIRMWARE_VERSION:1.0")
	d.releaseAndReturnNormal(cc)
	return nil
}

func handleDisplayMessage(d *Dispatcher, cc *ChannelCtx, cmd *gcode.Command) error {
	d.reply(cc, false, "")
	d.releaseAndReturnNormal(cc)
	return nil
}

func handleEndstopStatus(d *Dispatcher, cc *ChannelCtx, cmd *gcode.Command) error {
	bits := d.Platform.EndstopVector()
	d.reply(cc, false, fmt.Sprintf("endstops: %032b", bits))
	d.releaseAndReturnNormal(cc)
	return nil
}

func handlePushState(d *Dispatcher, cc *ChannelCtx, cmd *gcode.Command) error {
	held := d.Locks.SnapshotHeld(cc.ID)
	if _, ok := cc.Stack.Push(held); !ok {
		return gcodeerr.New(gcodeerr.ResourceExhausted, "stack overflow on M120")
	}
	d.reply(cc, false, "")
	d.releaseAndReturnNormal(cc)
	return nil
}

func handlePopState(d *Dispatcher, cc *ChannelCtx, cmd *gcode.Command) error {
	frame, ok := cc.Stack.Pop()
	if ok {
		d.Locks.UnlockAllExcept(cc.ID, frame.LockedWhenPushed)
	}
	d.reply(cc, false, "")
	d.releaseAndReturnNormal(cc)
	return nil
}

func handleSpeedFactor(d *Dispatcher, cc *ChannelCtx, cmd *gcode.Command) error {
	if cmd.Seen('S') {
		d.Modal.SpeedFactor = cmd.GetFloat('S', 100) / 100.0
	}
	d.reply(cc, false, fmt.Sprintf("Speed factor: %.0f%%", d.Modal.SpeedFactor*100))
	d.releaseAndReturnNormal(cc)
	return nil
}

func handleExtrusionFactor(d *Dispatcher, cc *ChannelCtx, cmd *gcode.Command) error {
	if cmd.Seen('S') {
		f := cmd.GetFloat('S', 100) / 100.0
		extr := cmd.GetInt('D', 0)
		if extr < len(d.Modal.ExtrusionFactors) {
			d.Modal.ExtrusionFactors[extr] = f
		}
	}
	d.reply(cc, false, "")
	d.releaseAndReturnNormal(cc)
	return nil
}

func handleDrain(d *Dispatcher, cc *ChannelCtx, cmd *gcode.Command) error {
	if err := d.LockMoveAndWaitForStandstill(cc); err != nil {
		return err
	}
	d.Locks.Unlock(cc.ID, lock.Move)
	d.reply(cc, false, "")
	d.releaseAndReturnNormal(cc)
	return nil
}

func handleFirmwareReset(d *Dispatcher, cc *ChannelCtx, cmd *gcode.Command) error {
	d.reply(cc, false, "")
	d.releaseAndReturnNormal(cc)
	return nil
}

// handleHashFile drives the background SHA-1 worker (§4.M) one block per
// tick rather than blocking the cooperative loop on a potentially large
// file.
func handleHashFile(d *Dispatcher, cc *ChannelCtx, cmd *gcode.Command) error {
	if cc.Hash == nil {
		return gcodeerr.Semanticf("M38 not supported on this channel")
	}
	if !cc.Hash.Active() {
		if !d.Locks.TryLock(cc.ID, lock.FileSystem) {
			return gcodeerr.TransientWait
		}
		name := cmd.GetUnprecedentedString()
		f, err := d.Platform.OpenRead("0:/gcodes/" + name)
		if err != nil {
			d.Locks.Unlock(cc.ID, lock.FileSystem)
			return gcodeerr.Semanticf("%v", err)
		}
		cc.Hash.Start(f)
	}
	done, err := cc.Hash.Step()
	if err != nil {
		cc.Hash.Abort()
		d.Locks.Unlock(cc.ID, lock.FileSystem)
		return gcodeerr.Semanticf("%v", err)
	}
	if !done {
		return gcodeerr.TransientWait
	}
	digest := cc.Hash.Finish()
	d.Locks.Unlock(cc.ID, lock.FileSystem)
	d.reply(cc, false, digest)
	d.releaseAndReturnNormal(cc)
	return nil
}

func handleRunMacroFile(d *Dispatcher, cc *ChannelCtx, cmd *gcode.Command) error {
	name := cmd.GetUnprecedentedString()
	text, res, err := d.Macro.Begin(cc.Stack, d.Locks, cc.ID, name, true, nil)
	if err != nil {
		return err
	}
	if res == macro.Failed {
		return gcodeerr.Semanticf("macro %s not found", name)
	}
	d.feedMacroText(cc, text)
	d.reply(cc, false, "")
	d.releaseAndReturnNormal(cc)
	return nil
}

func handleReturnFromMacro(d *Dispatcher, cc *ChannelCtx, cmd *gcode.Command) error {
	d.Macro.End(cc.Stack)
	d.reply(cc, false, "")
	d.releaseAndReturnNormal(cc)
	return nil
}

func handleDebugLevel(d *Dispatcher, cc *ChannelCtx, cmd *gcode.Command) error {
	d.reply(cc, false, "")
	d.releaseAndReturnNormal(cc)
	return nil
}

func handleDiagnostics(d *Dispatcher, cc *ChannelCtx, cmd *gcode.Command) error {
	d.reply(cc, false, fmt.Sprintf("channels=%d", len(d.Channels)))
	d.releaseAndReturnNormal(cc)
	return nil
}

func handleAxisOffsets(d *Dispatcher, cc *ChannelCtx, cmd *gcode.Command) error {
	for axis, letter := range []byte{'X', 'Y', 'Z', 'U', 'V', 'W'} {
		if cmd.Seen(letter) {
			d.Modal.AxisOffsets[axis] = cmd.GetFloat(letter, d.Modal.AxisOffsets[axis])
		}
	}
	d.reply(cc, false, "")
	d.releaseAndReturnNormal(cc)
	return nil
}

// handleAxisLimits is M208: sets the soft-limit travel bounds the move
// builder clamps against when LimitAxes is set. S1 addresses the minimum
// bound for the named axes, S0 (the default) the maximum.
func handleAxisLimits(d *Dispatcher, cc *ChannelCtx, cmd *gcode.Command) error {
	setMin := cmd.GetInt('S', 0) == 1
	for axis, letter := range []byte{'X', 'Y', 'Z', 'U', 'V', 'W'} {
		if !cmd.Seen(letter) {
			continue
		}
		if setMin {
			d.Modal.AxisMin[axis] = cmd.GetFloat(letter, d.Modal.AxisMin[axis])
		} else {
			d.Modal.AxisMax[axis] = cmd.GetFloat(letter, d.Modal.AxisMax[axis])
		}
	}
	d.reply(cc, false, "")
	d.releaseAndReturnNormal(cc)
	return nil
}

// handleSetProbeParams is G31: records the nozzle height at which the
// probe trips, threaded into the next canned-cycle probe so ProbedZ
// reports true bed height rather than raw triggered nozzle height.
func handleSetProbeParams(d *Dispatcher, cc *ChannelCtx, cmd *gcode.Command) error {
	if cmd.Seen('Z') {
		d.Modal.ProbeTriggerHeight = cmd.GetFloat('Z', d.Modal.ProbeTriggerHeight)
	}
	d.reply(cc, false, fmt.Sprintf("Z probe trigger height: %.2f", d.Modal.ProbeTriggerHeight))
	d.releaseAndReturnNormal(cc)
	return nil
}

// handleRunBedMacro is G32: runs bed.g, the conventional probe-calibration
// macro, the same way M98 runs an arbitrary named macro file.
func handleRunBedMacro(d *Dispatcher, cc *ChannelCtx, cmd *gcode.Command) error {
	text, res, err := d.Macro.Begin(cc.Stack, d.Locks, cc.ID, "bed", true, nil)
	if err != nil {
		return err
	}
	if res == macro.Failed {
		return gcodeerr.Semanticf("bed.g not found")
	}
	d.feedMacroText(cc, text)
	d.reply(cc, false, "")
	d.releaseAndReturnNormal(cc)
	return nil
}

// handleResetLineNumber is M110: acknowledges a line-number reset. Resend
// tracking lives in gcode.Channel itself; there is nothing else to reset.
func handleResetLineNumber(d *Dispatcher, cc *ChannelCtx, cmd *gcode.Command) error {
	d.reply(cc, false, "")
	d.releaseAndReturnNormal(cc)
	return nil
}

// handleWaitAllTemps is M116: waits for the bed and the active tool's
// heater to both reach their targets before replying.
func handleWaitAllTemps(d *Dispatcher, cc *ChannelCtx, cmd *gcode.Command) error {
	const bedHeater = 0
	if !d.Heat.AtSetTemperature(bedHeater, false) || !d.Heat.AtSetTemperature(onlyToolHeater(d), false) {
		return gcodeerr.TransientWait
	}
	d.reply(cc, false, "")
	d.releaseAndReturnNormal(cc)
	return nil
}

// chamberHeater is the conventional heater index for M141/M144/M191;
// overridable with an H parameter the way M104 overrides the tool heater.
const chamberHeater = 2

func handleSetChamberTemp(wait bool) Handler {
	return func(d *Dispatcher, cc *ChannelCtx, cmd *gcode.Command) error {
		heater := cmd.GetInt('H', chamberHeater)
		temp := cmd.GetFloat('S', -1)
		if temp >= 0 {
			d.Heat.SetActiveTemp(heater, temp)
		}
		if !wait {
			d.reply(cc, false, "")
			d.releaseAndReturnNormal(cc)
			return nil
		}
		if !d.Heat.AtSetTemperature(heater, false) {
			return gcodeerr.TransientWait
		}
		d.reply(cc, false, "")
		d.releaseAndReturnNormal(cc)
		return nil
	}
}

// handleAcknowledgeOnly replies "ok" and releases without side effects, for
// commands this core has nothing underneath to act on (M21/M22's virtual
// SD card is always considered mounted; M997/M998 trigger firmware update
// and reset flows this core doesn't perform, per its Non-goals).
func handleAcknowledgeOnly(d *Dispatcher, cc *ChannelCtx, cmd *gcode.Command) error {
	d.reply(cc, false, "")
	d.releaseAndReturnNormal(cc)
	return nil
}

// handleReportPrintStatus is M27: reports whether an SD print is underway.
func handleReportPrintStatus(d *Dispatcher, cc *ChannelCtx, cmd *gcode.Command) error {
	if d.Monitor.IsPrinting() {
		d.reply(cc, false, "SD printing byte 1/1")
	} else {
		d.reply(cc, false, "Not SD printing")
	}
	d.releaseAndReturnNormal(cc)
	return nil
}

// handleDeleteFile is M30.
func handleDeleteFile(d *Dispatcher, cc *ChannelCtx, cmd *gcode.Command) error {
	name := cmd.GetUnprecedentedString()
	if name == "" {
		return gcodeerr.Semanticf("M30 requires a filename")
	}
	if !d.Locks.TryLock(cc.ID, lock.FileSystem) {
		return gcodeerr.TransientWait
	}
	err := d.Platform.Delete("0:/gcodes/" + name)
	d.Locks.Unlock(cc.ID, lock.FileSystem)
	if err != nil {
		return gcodeerr.Semanticf("%v", err)
	}
	d.reply(cc, false, "")
	d.releaseAndReturnNormal(cc)
	return nil
}

func handleStatusReport(d *Dispatcher, cc *ChannelCtx, cmd *gcode.Command) error {
	d.reply(cc, false, fmt.Sprintf("{\"status\":\"I\",\"tool\":%d}", d.Modal.CurrentTool))
	d.releaseAndReturnNormal(cc)
	return nil
}

func (d *Dispatcher) currentSettings() nvram.Settings {
	s := nvram.DefaultSettings()
	s.PrintRadius = d.Modal.PrintRadius
	for i, l := range []byte{'X', 'Y', 'Z', 'U', 'V', 'W'} {
		s.AxisMin[string(l)] = d.Modal.AxisMin[i]
		s.AxisMax[string(l)] = d.Modal.AxisMax[i]
	}
	return s
}

func handleSaveSettings(d *Dispatcher, cc *ChannelCtx, cmd *gcode.Command) error {
	if d.NVRAMPath != "" {
		if err := nvram.Save(d.NVRAMPath, d.currentSettings()); err != nil {
			return gcodeerr.Semanticf("%v", err)
		}
	}
	d.reply(cc, false, "")
	d.releaseAndReturnNormal(cc)
	return nil
}

func handleRestoreSettings(d *Dispatcher, cc *ChannelCtx, cmd *gcode.Command) error {
	if d.NVRAMPath != "" {
		settings, err := nvram.Load(d.NVRAMPath)
		if err != nil {
			return gcodeerr.Semanticf("%v", err)
		}
		d.Modal.PrintRadius = settings.PrintRadius
		for name, v := range settings.AxisMin {
			if axis := letterIndex(name); axis >= 0 {
				d.Modal.AxisMin[axis] = v
			}
		}
		for name, v := range settings.AxisMax {
			if axis := letterIndex(name); axis >= 0 {
				d.Modal.AxisMax[axis] = v
			}
		}
	}
	d.reply(cc, false, "")
	d.releaseAndReturnNormal(cc)
	return nil
}

func handleResetSettings(d *Dispatcher, cc *ChannelCtx, cmd *gcode.Command) error {
	if d.NVRAMPath != "" {
		if err := nvram.ResetToDefaults(d.NVRAMPath); err != nil {
			return gcodeerr.Semanticf("%v", err)
		}
	}
	d.reply(cc, false, "")
	d.releaseAndReturnNormal(cc)
	return nil
}

func handleReportSettings(d *Dispatcher, cc *ChannelCtx, cmd *gcode.Command) error {
	d.reply(cc, false, fmt.Sprintf("M208 X%.2f:%.2f Y%.2f:%.2f Z%.2f:%.2f",
		d.Modal.AxisMin[0], d.Modal.AxisMax[0],
		d.Modal.AxisMin[1], d.Modal.AxisMax[1],
		d.Modal.AxisMin[2], d.Modal.AxisMax[2]))
	d.releaseAndReturnNormal(cc)
	return nil
}

func letterIndex(name string) int {
	for i, l := range []byte{'X', 'Y', 'Z', 'U', 'V', 'W'} {
		if string(l) == name {
			return i
		}
	}
	return -1
}

// Package reprap implements the top-level orchestrator (§4.N): owns every
// input channel, the shared modal/lock/dispatch state, and the per-tick
// spin that advances the dispatcher, trigger engine, and housekeeping
// timers. Grounded on a minimal main-loop entrypoint's spin shape,
// generalized from a single sleep loop into the cooperative multi-channel
// scheduler §5 describes.
package reprap

import (
	"encoding/json"
	"fmt"
	"time"

	uuid "github.com/satori/go.uuid"

	"reprapcore/internal/channel"
	"reprapcore/internal/collab"
	"reprapcore/internal/config"
	"reprapcore/internal/dispatch"
	"reprapcore/internal/gcode"
	"reprapcore/internal/hash"
	"reprapcore/internal/lock"
	"reprapcore/internal/logging"
	"reprapcore/internal/macro"
	"reprapcore/internal/modal"
	"reprapcore/internal/nvram"
	"reprapcore/internal/pause"
	"reprapcore/internal/reply"
	"reprapcore/internal/state"
	"reprapcore/internal/trigger"
)

// longWait is the housekeeping period the reference firmware calls
// "long wait" bookkeeping: houseKeep autosaves the NVRAM settings on this
// cadence rather than every tick.
const longWait = 2 * time.Second

// JobID uniquely identifies one print job for status reporting, generated
// fresh each time a file is selected and started.
type JobID string

// ProbePoint is one recorded result from a bed-mesh or multi-point probe
// sequence, retained in a fixed-size ring per the supplemented multi-probe
// feature (SPEC_FULL.md §12).
type ProbePoint struct {
	X, Y, Z float64
	At      time.Time
}

const probeRingSize = 32

// RepRap is the process-wide orchestrator: the channel set, the shared
// modal state, the lock table, the dispatcher, and the collaborators it
// was constructed with.
type RepRap struct {
	Modal *modal.State
	Locks *lock.Table

	Dispatcher *macroDispatcher
	Trigger    *trigger.Engine

	channels []*dispatch.ChannelCtx
	aux      *channel.AuxLine

	probes     [probeRingSize]ProbePoint
	probeCount int
	probeNext  int

	currentJob JobID

	auxReplyCache string
	auxSeq        uint32

	nvramPath string

	lastHousekeeping time.Time
}

// macroDispatcher aliases dispatch.Dispatcher under a package-local name so
// doc comments above can refer to "the dispatcher" without a cross-package
// qualifier in every sentence.
type macroDispatcher = dispatch.Dispatcher

// New wires every subsystem together: the resource lock table sized to the
// collaborator's heater/fan counts, the macro controller rooted at macroDir
// and sysDir, the dispatcher with its full handler set, and an 8-slot
// trigger engine. Channels are added afterward via AddChannel.
func New(numHeaters, numFans int, planner collab.Planner, heat collab.Heat, plat collab.Platform, mon collab.PrintMonitor, macroDir, sysDir, nvramPath string) *RepRap {
	modalState := modal.NewState()
	locks := lock.NewTable(numHeaters, numFans)
	mc := macro.NewController(plat, macroDir, sysDir)
	d := dispatch.NewDispatcher(modalState, locks, planner, heat, plat, mon, mc)
	d.NVRAMPath = nvramPath

	r := &RepRap{
		Modal:      modalState,
		Locks:      locks,
		Dispatcher: d,
		Trigger:    trigger.NewEngine(8),
		nvramPath:  nvramPath,
	}

	if settings, err := nvram.Load(nvramPath); err == nil {
		applySettings(modalState, settings)
	} else {
		logging.Warnf("nvram load failed, starting from defaults: %v", err)
	}

	return r
}

func applySettings(st *modal.State, s nvram.Settings) {
	st.PrintRadius = s.PrintRadius
	for name, v := range s.AxisMin {
		if axis := axisIndex(name); axis >= 0 {
			st.AxisMin[axis] = v
		}
	}
	for name, v := range s.AxisMax {
		if axis := axisIndex(name); axis >= 0 {
			st.AxisMax[axis] = v
		}
	}
}

func axisIndex(name string) int {
	for i, l := range []byte{'X', 'Y', 'Z', 'U', 'V', 'W'} {
		if string(l) == name {
			return i
		}
	}
	return -1
}

// AddChannel registers a new input channel with the dispatcher and reply
// router, per the fixed-at-startup channel set (§4.A).
func (r *RepRap) AddChannel(id lock.ChannelID, src gcode.Source, index int, emu reply.Emulation, isFileChannel bool, sink reply.Sink) *dispatch.ChannelCtx {
	cc := &dispatch.ChannelCtx{
		ID:            id,
		Ch:            gcode.NewChannel(src, index),
		Stack:         state.NewStack(),
		Hash:          hash.NewWorker(),
		Emulation:     emu,
		IsFileChannel: isFileChannel,
	}
	if isFileChannel {
		cc.Pause = pause.NewController()
	}
	r.channels = append(r.channels, cc)
	r.Dispatcher.AddChannel(cc)
	if sink != nil {
		r.Dispatcher.Router.AddSink(int(id), sink)
	}
	return cc
}

// AttachAux wires a serial Aux channel (an LCD/display UART) so Spin can
// poll it for bytes alongside the dispatcher tick.
func (r *RepRap) AttachAux(a *channel.AuxLine) { r.aux = a }

// RecordProbePoint appends a completed probe result to the fixed-size ring,
// overwriting the oldest entry once full (the multi-point probe-ring
// supplement, SPEC_FULL.md §12).
func (r *RepRap) RecordProbePoint(x, y, z float64, at time.Time) {
	r.probes[r.probeNext] = ProbePoint{X: x, Y: y, Z: z, At: at}
	r.probeNext = (r.probeNext + 1) % probeRingSize
	if r.probeCount < probeRingSize {
		r.probeCount++
	}
}

// ProbePoints returns the recorded points, oldest first.
func (r *RepRap) ProbePoints() []ProbePoint {
	out := make([]ProbePoint, 0, r.probeCount)
	start := (r.probeNext - r.probeCount + probeRingSize) % probeRingSize
	for i := 0; i < r.probeCount; i++ {
		out = append(out, r.probes[(start+i)%probeRingSize])
	}
	return out
}

// StartJob mints a fresh job id for a newly selected/started print file.
func (r *RepRap) StartJob() JobID {
	id := uuid.NewV4()
	var err error
	if err != nil {
		logging.Warnf("job id generation failed, falling back to zero uuid: %v", err)
		r.currentJob = JobID(uuid.UUID{}.String())
		return r.currentJob
	}
	r.currentJob = JobID(id.String())
	return r.currentJob
}

func (r *RepRap) CurrentJob() JobID { return r.currentJob }

// Spin advances exactly one cooperative scheduling round: the dispatcher
// ticks one channel, the trigger engine samples endstops, housekeeping
// runs on its own cadence, and the Aux channel (if attached) is polled for
// new bytes. Callers loop this at the host's tick rate; it never blocks.
func (r *RepRap) Spin(now time.Time) error {
	if err := r.tickDispatcher(); err != nil {
		logging.Errorf("dispatcher tick error: %v", err)
	}

	if r.aux != nil {
		if _, err := r.aux.Poll(); err != nil {
			logging.Debugf("aux poll: %v", err)
		}
	}

	trig := r.Trigger.Tick(r.Dispatcher.Platform.EndstopVector(), r.Dispatcher.Monitor.IsPrinting(), r.Dispatcher.TriggerMacroBusy())
	switch trig.Kind {
	case trigger.EmergencyStop:
		r.EmergencyStop()
	case trigger.PausePrint:
		logging.Infof("trigger slot %d requested pause", trig.Slot)
		r.Dispatcher.TriggerPause()
	case trigger.RunMacro:
		logging.Infof("trigger slot %d running macro", trig.Slot)
		r.Dispatcher.RunTriggerMacro(trig.Slot)
	}

	if now.Sub(r.lastHousekeeping) >= longWait {
		r.lastHousekeeping = now
		r.houseKeep()
	}

	return nil
}

// tickDispatcher runs one dispatcher tick behind a recover, so a panic in a
// single command handler (a bad array index on a malformed line, say)
// drops that one line instead of taking the whole printer down. Adapted
// from the teacher's sys.CatchPanic, which logs a deliberate "exit" panic
// through rather than swallowing it.
func (r *RepRap) tickDispatcher() (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			if msg, ok := rec.(string); ok && msg == "exit" {
				panic(rec)
			}
			logging.Errorf("recovered panic during dispatcher tick: %v", rec)
			err = fmt.Errorf("dispatcher tick panicked: %v", rec)
		}
	}()
	return r.Dispatcher.Tick()
}

func (r *RepRap) houseKeep() {
	if err := nvram.Save(r.nvramPath, r.snapshotSettings()); err != nil {
		logging.Warnf("nvram autosave failed: %v", err)
	}
}

func (r *RepRap) snapshotSettings() nvram.Settings {
	s := nvram.DefaultSettings()
	s.PrintRadius = r.Modal.PrintRadius
	for i, l := range []byte{'X', 'Y', 'Z', 'U', 'V', 'W'} {
		s.AxisMin[string(l)] = r.Modal.AxisMin[i]
		s.AxisMax[string(l)] = r.Modal.AxisMax[i]
	}
	return s
}

// EmergencyStop implements M112/trigger-slot-0: switches off all heaters,
// disables drives, clears homing state, and unwinds every channel's
// machine-state stack and lock ownership back to its base frame.
func (r *RepRap) EmergencyStop() {
	r.Dispatcher.Heat.EmergencySwitchOffAll()
	r.Dispatcher.Platform.DisableDrives()
	r.Modal.ClearAllHomed()
	for _, cc := range r.channels {
		for cc.Stack.Depth() > 0 {
			cc.Stack.Pop()
		}
		r.Locks.UnlockAllExcept(cc.ID, 0)
		cc.Stack.Current().SubState = state.Normal
	}
}

// Status is the JSON-encodable status snapshot the HTTP/Telnet interfaces
// poll (the "M408-style status response" per §4.L and §6).
type Status struct {
	CurrentJob   JobID         `json:"currentJob,omitempty"`
	AxesHomed    []bool        `json:"axesHomed"`
	CurrentTool  int           `json:"currentTool"`
	SpeedFactor  float64       `json:"speedFactor"`
	SimMode      int           `json:"simMode"`
	ProbePoints  []ProbePoint  `json:"probePoints,omitempty"`
}

// StatusSnapshot builds the current Status for M408 / the HTTP status poll.
func (r *RepRap) StatusSnapshot() Status {
	homed := make([]bool, modal.MaxAxes)
	for i := range homed {
		homed[i] = r.Modal.AxisIsHomed(i)
	}
	return Status{
		CurrentJob:  r.currentJob,
		AxesHomed:   homed,
		CurrentTool: r.Modal.CurrentTool,
		SpeedFactor: r.Modal.SpeedFactor,
		SimMode:     r.Modal.SimulationMode,
		ProbePoints: r.ProbePoints(),
	}
}

// StatusJSON marshals StatusSnapshot to JSON.
func (r *RepRap) StatusJSON() ([]byte, error) {
	return json.Marshal(r.StatusSnapshot())
}

// CachedAuxReply returns the most recent Aux (PanelDue-style) reply text
// together with its sequence number, per the supplemented "cached AUX
// reply + auxSeq" feature (SPEC_FULL.md §12): a panel polling M408 repeatedly
// should see the sequence number advance only when new text has actually
// been queued, not on every poll.
func (r *RepRap) CachedAuxReply() (string, uint32) { return r.auxReplyCache, r.auxSeq }

// SetAuxReply updates the cached Aux reply and bumps its sequence number.
func (r *RepRap) SetAuxReply(text string) {
	r.auxReplyCache = text
	r.auxSeq++
}

// LoadConfig reads an INI printer configuration. The returned set of
// unused options is always empty: no option access is tracked here.
func LoadConfig(path string) (*config.Raw, map[string]struct{}, error) {
	raw, err := config.ParseINI(path)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config %s: %w", path, err)
	}
	return raw, map[string]struct{}{}, nil
}

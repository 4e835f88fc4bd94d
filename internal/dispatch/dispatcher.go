// Package dispatch implements the executor/dispatcher (§4.I): the
// per-channel state machine that advances one gcode at a time — parse,
// lock, act, wait, reply, release — arbitrating across channels in
// round-robin. This is the cooperative scheduling core: no per-tick work
// blocks; suspension is an explicit return-false/gcodeerr.Transient path
// retried on a later tick, per §5.
package dispatch

import (
	"github.com/petermattis/goid"
	"go.uber.org/multierr"

	"reprapcore/internal/collab"
	"reprapcore/internal/gcode"
	"reprapcore/internal/gcodeerr"
	"reprapcore/internal/hash"
	"reprapcore/internal/lock"
	"reprapcore/internal/logging"
	"reprapcore/internal/macro"
	"reprapcore/internal/modal"
	"reprapcore/internal/pause"
	"reprapcore/internal/queue"
	"reprapcore/internal/reply"
	"reprapcore/internal/state"
)

// ChannelCtx bundles one input channel's identity with everything the
// dispatcher needs to advance it one step: its gcode.Channel, machine
// state stack, pause controller (file channel only), and hashing worker.
type ChannelCtx struct {
	ID    lock.ChannelID
	Ch    *gcode.Channel
	Stack *state.Stack
	Hash  *hash.Worker

	Emulation reply.Emulation
	IsFileChannel bool
	Pause *pause.Controller // nil except for the file channel

	// PrintFile is the open handle for the file channel's currently
	// selected print file (M23), seeked back to the restore point on
	// pause so the file-feeding pump picks the stream back up at the
	// abandoned position. Nil except for the file channel.
	PrintFile collab.File
}

// Handler executes one Act-On-Code step. It returns gcodeerr.TransientWait
// (via IsTransient) to ask the dispatcher to retry on the next tick
// without advancing past this command, any other error to complete the
// command with an error reply, or nil on success.
type Handler func(d *Dispatcher, cc *ChannelCtx, cmd *gcode.Command) error

// Dispatcher owns the channel list, the shared modal state, the resource
// lock table, the deferred command queue, the macro controller, and the
// reply router, and ticks exactly one channel per Tick call.
type Dispatcher struct {
	Channels []*ChannelCtx
	Modal    *modal.State
	Locks    *lock.Table
	Deferred *queue.Queue
	Macro    *macro.Controller
	Router   *reply.Router
	Planner  collab.Planner
	Heat     collab.Heat
	Platform collab.Platform
	Monitor  collab.PrintMonitor

	handlers map[string]Handler
	rrIndex  int

	Simulating bool

	// NVRAMPath is the M500/M501/M502 settings file; empty disables
	// persistence (handlers become no-ops other than replying "ok").
	NVRAMPath string
}

func NewDispatcher(modalState *modal.State, locks *lock.Table, planner collab.Planner, heat collab.Heat, plat collab.Platform, mon collab.PrintMonitor, mc *macro.Controller) *Dispatcher {
	d := &Dispatcher{
		Modal: modalState, Locks: locks, Deferred: queue.New(),
		Macro: mc, Router: reply.NewRouter(),
		Planner: planner, Heat: heat, Platform: plat, Monitor: mon,
		handlers: map[string]Handler{},
	}
	registerHandlers(d)
	return d
}

func (d *Dispatcher) AddChannel(cc *ChannelCtx) { d.Channels = append(d.Channels, cc) }

func key(letter string, number int) string {
	return letter + itoa(number)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [12]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func (d *Dispatcher) Register(letter string, number int, h Handler) {
	d.handlers[key(letter, number)] = h
}

// simulationWhitelist holds the codes honored even in simulation mode.
var simulationWhitelist = map[string]bool{
	"G0": true, "G1": true, "G4": true, "G10": true, "G20": true, "G21": true,
	"G90": true, "G91": true, "G92": true,
	"M20": true, "M21": true, "M22": true, "M23": true, "M24": true, "M25": true,
	"M26": true, "M27": true, "M28": true, "M29": true, "M30": true, "M31": true,
	"M32": true, "M33": true, "M34": true, "M35": true, "M36": true, "M37": true,
	"M82": true, "M83": true, "M105": true, "M111": true, "M122": true, "M999": true,
}

// channelByID finds the channel context a deferred command was issued
// from, so its eventual execution can reply on the same sink.
func (d *Dispatcher) channelByID(id lock.ChannelID) *ChannelCtx {
	for _, c := range d.Channels {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// fileChannel finds the single channel flagged as the print-file source;
// M25/M226 and M24 address it regardless of which channel issued the
// command, the same way doPause already had to before this helper existed.
func (d *Dispatcher) fileChannel() *ChannelCtx {
	for _, c := range d.Channels {
		if c.IsFileChannel {
			return c
		}
	}
	return nil
}

// daemonChannel finds the channel triggerN.g macros (§4.F, slots 2+) run
// on, the same one the original firmware dedicates to unattended trigger
// and daemon.g execution rather than any user-facing input source.
func (d *Dispatcher) daemonChannel() *ChannelCtx {
	for _, c := range d.Channels {
		if c.Ch.Src == gcode.SourceDaemon {
			return c
		}
	}
	return nil
}

// TriggerPause pauses the running file print on behalf of the trigger
// engine (§4.F, slot 1) — there is no issuing channel to reply to, so it
// drives doPause with the file channel standing in for both roles, the
// same no-reply path doPause already takes when cc == target.
func (d *Dispatcher) TriggerPause() {
	target := d.fileChannel()
	if target == nil {
		return
	}
	doPause(d, target, pause.SourceExternal)
}

// TriggerMacroBusy reports whether a previously triggered macro (§4.F,
// slots 2+) is still running on the daemon channel, so the trigger engine
// knows to hold off dispatching another one.
func (d *Dispatcher) TriggerMacroBusy() bool {
	cc := d.daemonChannel()
	if cc == nil {
		return false
	}
	return cc.Stack.Current().DoingMacro
}

// RunTriggerMacro starts triggerN.g on the daemon channel (§4.F, slots
// 2+). A missing file is silently skipped, matching the optional-macro
// semantics macro.Controller.Begin already uses for home<Axis>.g.
func (d *Dispatcher) RunTriggerMacro(slot int) {
	cc := d.daemonChannel()
	if cc == nil {
		return
	}
	text, res, err := d.Macro.Begin(cc.Stack, d.Locks, cc.ID, "trigger"+itoa(slot), false, nil)
	if err != nil || res != macro.Started {
		return
	}
	d.feedMacroText(cc, text)
}

// drainDeferred releases every queued command whose release point the
// planner has now reached (§4.E), e.g. an M106 issued mid-print that must
// take effect in sync with the motion stream rather than immediately.
// Applied directly rather than re-run through actOnCode, since re-running
// the fan handler would re-evaluate "is a print in progress" and simply
// re-defer the command forever.
func (d *Dispatcher) drainDeferred() {
	for _, item := range d.Deferred.DrainReady(d.Planner.CompletedMovesCount()) {
		cc := d.channelByID(lock.ChannelID(item.SourceChan))
		if cc == nil {
			continue
		}
		cmd, err := gcode.Parse(item.Code, cc.Ch)
		if err != nil {
			continue
		}
		d.applyDeferred(cmd)
	}
}

// applyDeferred executes the handful of commands the deferred queue
// currently carries (fan speed changes). Extend here, not in the normal
// handler table, as new deferrable commands are added.
func (d *Dispatcher) applyDeferred(cmd *gcode.Command) {
	switch key(cmd.Letter, cmd.Number) {
	case key("M", 106):
		d.setFan(cmd.GetInt('P', 0), cmd.GetFloat('S', 255)/255)
	case key("M", 107):
		d.setFan(cmd.GetInt('P', 0), 0)
	}
}

// Tick advances exactly one channel (round-robin) by one step and
// returns any errors raised this round, aggregated with multierr so a
// single faulty channel doesn't hide a fault on another.
func (d *Dispatcher) Tick() error {
	if len(d.Channels) == 0 {
		return nil
	}
	var errs error
	d.drainDeferred()
	cc := d.Channels[d.rrIndex]
	d.rrIndex = (d.rrIndex + 1) % len(d.Channels)

	frame := cc.Stack.Current()
	if frame.SubState != state.Normal {
		if err := d.stepSubState(cc, frame); err != nil && !gcodeerr.IsTransient(err) {
			errs = multierr.Append(errs, err)
		}
		return errs
	}

	if !cc.Ch.IsReady() {
		return nil
	}
	line := cc.Ch.Consume()
	cmd, err := gcode.Parse(line, cc.Ch)
	if err != nil {
		d.reply(cc, true, err.(*gcodeerr.Error).ReplyPrefix()+line)
		return errs
	}

	if resend := cc.Ch.ResendLine(); resend > 0 {
		d.reply(cc, true, "rs "+itoa(resend))
		return errs
	}

	if err := d.actOnCode(cc, cmd); err != nil {
		if gcodeerr.IsTransient(err) {
			// Re-queue: the channel's line was already consumed, so a
			// transient wait here is expected to come from sub-state
			// takeover (see actOnCode), not from re-parsing the same line.
			return errs
		}
		gerr, ok := err.(*gcodeerr.Error)
		prefix := "Error: "
		if ok {
			prefix = gerr.ReplyPrefix()
		}
		d.reply(cc, true, prefix+err.Error())
		d.releaseAndReturnNormal(cc)
		if ok && gcodeerr.IsFatal(err) {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

// actOnCode inspects parameter letters in strict M-before-G-before-T
// priority (M-code filename arguments may contain G/T letters) and
// dispatches to the registered handler, or a benign no-op for unlisted
// codes, per §6.
func (d *Dispatcher) actOnCode(cc *ChannelCtx, cmd *gcode.Command) error {
	if d.Simulating && !simulationWhitelist[cmd.Letter+itoa(cmd.Number)] {
		d.reply(cc, false, "")
		d.releaseAndReturnNormal(cc)
		return nil
	}

	h, ok := d.handlers[key(cmd.Letter, cmd.Number)]
	if !ok {
		logging.Debugf("[goid=%d] unrecognized command %s%d on channel %d, no-op", goid.Get(), cmd.Letter, cmd.Number, cc.ID)
		d.reply(cc, false, "")
		d.releaseAndReturnNormal(cc)
		return nil
	}
	if err := h(d, cc, cmd); err != nil {
		return err
	}
	return nil
}

func (d *Dispatcher) releaseAndReturnNormal(cc *ChannelCtx) {
	frame := cc.Stack.Current()
	if frame.SubState == state.Normal {
		d.Locks.UnlockAllExcept(cc.ID, frame.LockedWhenPushed)
	}
	frame.SubState = state.Normal
}

func (d *Dispatcher) reply(cc *ChannelCtx, isError bool, text string) {
	frame := cc.Stack.Current()
	d.Router.Reply(int(cc.ID), cc.Emulation, frame.DoingMacro, isError, text)
}

// LockMoveAndWaitForStandstill is the composite precondition (§4.D): it
// first acquires Move, then returns gcodeerr.TransientWait until the
// planner reports all moves drained.
func (d *Dispatcher) LockMoveAndWaitForStandstill(cc *ChannelCtx) error {
	if !d.Locks.TryLock(cc.ID, lock.Move) {
		return gcodeerr.TransientWait
	}
	if !d.Planner.MovesFinished() {
		return gcodeerr.TransientWait
	}
	return nil
}

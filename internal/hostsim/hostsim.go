// Package hostsim provides a minimal in-memory implementation of the
// collab interfaces (Planner, Heat, Platform, PrintMonitor) for running the
// core standalone — no real stepper/heater hardware attached — the way a
// firmware's "host build" or simulation target lets the executor run
// against a fake backend for development and CI. Pure bookkeeping: no
// library serves this better than plain Go maps and slices.
package hostsim

import (
	"fmt"
	"os"

	"reprapcore/internal/collab"
)

// Planner is a trivial motion planner stand-in: it accepts a move and
// completes it at once, so its single slot is free again before
// TryQueueMove returns and moves report finished as soon as the slot is
// empty again.
type Planner struct {
	pos       [collab.MaxDrives]float64
	pending   bool
	scheduled uint32
	completed uint32

	// RefuseNextQueue, when > 0, makes the next N TryQueueMove calls
	// report a full slot instead of accepting the move, so callers can
	// exercise the moveslot-retry path without a real planner.
	RefuseNextQueue int

	// PausePos is returned by PausePrint in place of the always-zero
	// default, so tests can exercise a pause that resumes a print file
	// partway through without a real streaming file position tracker.
	PausePos int64
}

func NewPlanner() *Planner { return &Planner{} }

func (p *Planner) TryQueueMove(mv collab.RawMove) bool {
	if p.pending {
		return false
	}
	if p.RefuseNextQueue > 0 {
		p.RefuseNextQueue--
		return false
	}
	p.pos = mv.Target
	p.pending = true
	p.scheduled++
	p.completed++ // host sim executes moves instantaneously
	p.pending = false
	return true
}

func (p *Planner) MovesFinished() bool { return !p.pending }

func (p *Planner) CurrentUserPosition() [collab.MaxDrives]float64 { return p.pos }

func (p *Planner) PausePrint(rp *collab.RestorePoint) int64 {
	rp.Positions = p.pos
	return p.PausePos
}

func (p *Planner) ScheduledMovesCount() uint32 { return p.scheduled }
func (p *Planner) CompletedMovesCount() uint32 { return p.completed }

// Heat is a trivial heater stand-in: SetActiveTemp snaps straight to target
// since there is no thermal simulation.
type Heat struct {
	target map[int]float64
	actual map[int]float64
}

func NewHeat() *Heat {
	return &Heat{target: map[int]float64{}, actual: map[int]float64{}}
}

func (h *Heat) SetActiveTemp(heater int, target float64) {
	h.target[heater] = target
	h.actual[heater] = target
}

func (h *Heat) SwitchOff(heater int) {
	h.target[heater] = 0
	h.actual[heater] = 0
}

func (h *Heat) AtSetTemperature(heater int, waitCooling bool) bool {
	return h.actual[heater] == h.target[heater]
}

func (h *Heat) GetTemperature(heater int) (float64, error) {
	v, ok := h.actual[heater]
	if !ok {
		return 0, fmt.Errorf("unknown heater %d", heater)
	}
	return v, nil
}

func (h *Heat) EmergencySwitchOffAll() {
	for k := range h.target {
		h.target[k] = 0
		h.actual[k] = 0
	}
}

// Platform is a trivial mass-storage/pin-driver stand-in backed directly by
// the host filesystem, rooted under a configurable directory.
type Platform struct {
	root         string
	endstops     uint32
	drivesEnabled bool
	pwm          map[int]float64
}

func NewPlatform(root string) *Platform { return &Platform{root: root} }

// Root returns the host directory this Platform is rooted under, so tests
// can create files outside the collab.Platform interface (e.g. to stand up
// a fake print file for M23 to open).
func (p *Platform) Root() string { return p.root }

func (p *Platform) path(virtual string) string { return p.root + "/" + virtual }

func (p *Platform) OpenRead(path string) (collab.File, error) {
	return os.Open(p.path(path))
}

func (p *Platform) OpenWrite(path string) (collab.File, error) {
	return os.Create(p.path(path))
}

func (p *Platform) Delete(path string) error          { return os.Remove(p.path(path)) }
func (p *Platform) Rename(o, n string) error           { return os.Rename(p.path(o), p.path(n)) }
func (p *Platform) Exists(path string) bool {
	_, err := os.Stat(p.path(path))
	return err == nil
}

func (p *Platform) ListDir(path string) ([]string, error) {
	entries, err := os.ReadDir(p.path(path))
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

func (p *Platform) EndstopVector() uint32 { return p.endstops }

// SetEndstop lets a test or a simulated probe input flip a single bit,
// exercised by the canned-cycle probe driver's "probeTriggered" callback.
func (p *Platform) SetEndstop(bit uint, on bool) {
	if on {
		p.endstops |= 1 << bit
	} else {
		p.endstops &^= 1 << bit
	}
}

// SetPWM records the last commanded duty cycle per channel so tests (and
// M122 diagnostics, in a real platform) can read back what was driven.
func (p *Platform) SetPWM(channel int, duty float64) {
	if p.pwm == nil {
		p.pwm = map[int]float64{}
	}
	p.pwm[channel] = duty
}

func (p *Platform) PWM(channel int) float64 { return p.pwm[channel] }

func (p *Platform) SetServo(channel int, angle float64) {}
func (p *Platform) DisableDrives()                      { p.drivesEnabled = false }
func (p *Platform) EnableDrives()                        { p.drivesEnabled = true }

// PrintMonitor is a trivial job-lifecycle tracker.
type PrintMonitor struct {
	name     string
	printing bool
}

func NewPrintMonitor() *PrintMonitor { return &PrintMonitor{} }

func (m *PrintMonitor) StartedPrint(name string) { m.name = name; m.printing = true }
func (m *PrintMonitor) StoppedPrint()            { m.printing = false }
func (m *PrintMonitor) IsPrinting() bool         { return m.printing }

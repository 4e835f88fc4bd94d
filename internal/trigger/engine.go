// Package trigger implements the trigger engine (§4.F): configurable
// endstop-edge-triggered slots. Slot 0 is emergency stop, slot 1 pauses a
// running file print, slots 2+ invoke triggerN.g on the daemon channel.
package trigger

// Condition gates whether a slot's edges are even considered.
type Condition int

const (
	Always Condition = iota
	OnlyWhenPrinting
)

// Trigger is one configured slot: rising/falling endstop-bit masks and a
// gating condition. IsUnused iff both masks are empty.
type Trigger struct {
	RisingMask  uint32
	FallingMask uint32
	Cond        Condition
}

func (t Trigger) IsUnused() bool { return t.RisingMask == 0 && t.FallingMask == 0 }

const (
	SlotEmergencyStop = 0
	SlotPausePrint    = 1
)

// Engine samples the endstop vector once per tick and evaluates every
// configured slot for rising/falling edges against its masks.
type Engine struct {
	slots      []Trigger
	old        uint32
	pendingMacroActive bool
}

func NewEngine(numSlots int) *Engine {
	return &Engine{slots: make([]Trigger, numSlots)}
}

func (e *Engine) Configure(slot int, t Trigger) { e.slots[slot] = t }

// Dispatch describes the effect of the lowest-numbered pending slot this
// tick, or Kind==None if nothing fired.
type Kind int

const (
	None Kind = iota
	EmergencyStop
	PausePrint
	RunMacro
)

type Dispatch struct {
	Kind Kind
	Slot int
}

// Tick samples the current endstop vector, computes edges against the
// previous sample, and returns the lowest-numbered pending slot's effect.
// isPrinting gates OnlyWhenPrinting slots. While a macro triggered by a
// prior tick is still running (macroBusy), an edge on a macro slot (2+)
// is dropped: it is not kept pending and does not fire on a later tick.
func (e *Engine) Tick(newVec uint32, isPrinting bool, macroBusy bool) Dispatch {
	risen := newVec &^ e.old
	fallen := e.old &^ newVec
	e.old = newVec

	for slot, t := range e.slots {
		if t.IsUnused() {
			continue
		}
		if t.Cond == OnlyWhenPrinting && !isPrinting {
			continue
		}
		fired := (risen&t.RisingMask) != 0 || (fallen&t.FallingMask) != 0
		if !fired {
			continue
		}
		switch slot {
		case SlotEmergencyStop:
			return Dispatch{Kind: EmergencyStop, Slot: slot}
		case SlotPausePrint:
			return Dispatch{Kind: PausePrint, Slot: slot}
		default:
			if macroBusy {
				continue
			}
			return Dispatch{Kind: RunMacro, Slot: slot}
		}
	}
	return Dispatch{Kind: None}
}

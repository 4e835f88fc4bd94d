// Package state implements the per-channel machine state stack (§4.C):
// a bounded list of frames pushed on macro entry and popped on exit,
// each recording the executor sub-state, open file handle, relative-mode
// flags, and the set of locks held when the frame was pushed.
package state

import (
	"reprapcore/internal/canned"
	"reprapcore/internal/lock"
)

const MaxDepth = 8

// SubState is the executor's per-channel state tag (§4.I).
type SubState int

const (
	Normal SubState = iota
	WaitingForMoveToComplete
	Homing
	SetBed1
	SetBed2
	ToolChange1
	ToolChange2
	ToolChange3
	Pausing1
	Pausing2
	Resuming1
	Resuming2
	Resuming3
	Flashing1
	Flashing2
	Stopping
	Sleeping

	// WaitingForMoveSlot and WaitingForFileLock retry the command that was
	// already pulled off the channel but could not complete on its first
	// attempt (a full move-queue slot, a busy FileSystem lock), instead of
	// dropping it: PendingLine holds the line to re-dispatch.
	WaitingForMoveSlot
	WaitingForFileLock

	// Probing drives a G30 canned probe cycle across ticks; Probe holds
	// the in-progress cycle.
	Probing
)

// Frame is one level of the machine state stack.
type Frame struct {
	SubState        SubState
	File            interface{ Close() error } // nil if no open file
	DrivesRelative  bool
	AxesRelative    bool
	DoingMacro      bool
	LockedWhenPushed lock.Bitmap

	// HomeAxes/ToolChange payloads collapse the canned-cycle / sub-state
	// counters into the frame's variant, per the tagged-variant state
	// machine encoding design note.
	HomeAxes    []int
	ToolOld     int
	ToolNew     int
	CannedPhase int

	// PendingLine is the raw command text retried by WaitingForMoveSlot /
	// WaitingForFileLock.
	PendingLine string
	// Probe is the in-progress G30 cycle retried by Probing.
	Probe *canned.ProbeCycle
}

// Stack is a channel's bounded frame list, backed by a fixed-size pool so
// pushing never allocates past MaxDepth.
type Stack struct {
	frames [MaxDepth]Frame
	depth  int // index of current frame; 0 == only the base frame exists
}

func NewStack() *Stack {
	return &Stack{depth: 0}
}

func (s *Stack) Depth() int { return s.depth }

func (s *Stack) Current() *Frame { return &s.frames[s.depth] }

// Push copies the current frame onto a new one and returns it, recording
// lockedWhenPushed as the set of locks already held by the channel so
// lock.Table.UnlockAllExcept can later tell macro-acquired locks apart from inherited ones.
// Returns false without allocating if the stack is already at MaxDepth.
func (s *Stack) Push(lockedWhenPushed lock.Bitmap) (*Frame, bool) {
	if s.depth+1 >= MaxDepth {
		return nil, false
	}
	s.frames[s.depth+1] = s.frames[s.depth]
	s.depth++
	f := &s.frames[s.depth]
	f.LockedWhenPushed = lockedWhenPushed
	f.File = nil
	return f, true
}

// Pop frees the top frame, closing its file handle if it owned one, and
// returns the now-current frame. Returns false if already at the base.
func (s *Stack) Pop() (*Frame, bool) {
	if s.depth == 0 {
		return &s.frames[0], false
	}
	top := &s.frames[s.depth]
	if top.File != nil {
		top.File.Close()
		top.File = nil
	}
	*top = Frame{}
	s.depth--
	return &s.frames[s.depth], true
}

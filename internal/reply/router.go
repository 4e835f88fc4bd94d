// Package reply implements the reply router (§4.L): formats a response
// per the originating channel's emulation mode and fans it out to one or
// more sinks (HTTP buffer chain, USB stream, Aux UART, display). Follows
// the "single router, pluggable policy" design note instead of scattering
// per-command `if emulating == Marlin` branches.
package reply

import "fmt"

// Emulation selects the reply envelope convention for a channel.
type Emulation int

const (
	Native Emulation = iota // bare RepRap text
	Marlin
	Teacup
	Repetier
)

// Sink is any destination capable of receiving formatted reply text —
// HTTP buffer chain, USB stream, Aux UART, display — modeled as a small
// capability rather than a concrete type, per the polymorphic reply
// sink design note.
type Sink interface {
	WriteString(s string)
	AttachBufferChain(c *Chain)
}

// Chain is a pooled, reference-counted linked list of output buffers.
// The same chain may be enqueued on multiple sinks (e.g. HTTP + Telnet +
// USB simultaneously) via refcount increment rather than copying bytes.
type Chain struct {
	segments [][]byte
	refs     int
}

func NewChain() *Chain { return &Chain{refs: 1} }

func (c *Chain) Append(b []byte) { c.segments = append(c.segments, b) }

func (c *Chain) Retain() *Chain { c.refs++; return c }

// Release decrements the refcount; callers must stop using the chain once
// this returns true (the last reference was dropped and segments are
// eligible for reuse by the pool).
func (c *Chain) Release() bool {
	c.refs--
	return c.refs <= 0
}

func (c *Chain) Bytes() []byte {
	total := 0
	for _, s := range c.segments {
		total += len(s)
	}
	out := make([]byte, 0, total)
	for _, s := range c.segments {
		out = append(out, s...)
	}
	return out
}

// Router formats and dispatches replies to the originating channel's
// sink(s) according to its emulation mode.
type Router struct {
	sinks map[int][]Sink // channel index -> sinks
}

func NewRouter() *Router { return &Router{sinks: map[int][]Sink{}} }

func (r *Router) AddSink(chanIndex int, s Sink) {
	r.sinks[chanIndex] = append(r.sinks[chanIndex], s)
}

// Reply formats text for emu and routes it to chanIndex's sinks. Empty
// replies to macro-issued commands are suppressed to avoid flooding the
// host, per §4.L.
func (r *Router) Reply(chanIndex int, emu Emulation, isMacro bool, isError bool, text string) {
	if text == "" && isMacro {
		return
	}
	formatted := Format(emu, isError, text)
	sinks := r.sinks[chanIndex]
	if len(sinks) == 0 {
		return
	}
	if len(sinks) == 1 {
		sinks[0].WriteString(formatted)
		return
	}
	chain := NewChain()
	chain.Append([]byte(formatted))
	for i, s := range sinks {
		if i > 0 {
			chain.Retain()
		}
		s.AttachBufferChain(chain)
	}
}

// Format wraps text per the emulation convention. Marlin/Teacup/Repetier
// all append "ok" after the body, matching the legacy-host conventions
// the reference firmware fans its replies through a single formatter for.
func Format(emu Emulation, isError bool, text string) string {
	switch emu {
	case Native:
		return text
	case Marlin, Teacup, Repetier:
		if isError {
			return text + "\n"
		}
		if text == "" {
			return "ok\n"
		}
		return fmt.Sprintf("%s\nok\n", text)
	default:
		return text
	}
}

// FileListEnvelope wraps an M20 file listing in Marlin's
// "Begin file list\n...\nEnd file list\nok\n" convention.
func FileListEnvelope(emu Emulation, names []string) string {
	if emu == Native {
		out := ""
		for _, n := range names {
			out += n + "\n"
		}
		return out
	}
	out := "Begin file list\n"
	for _, n := range names {
		out += n + "\n"
	}
	out += "End file list\nok\n"
	return out
}

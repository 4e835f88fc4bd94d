// Package macro implements the macro controller (§4.K): opens a macro
// file, pushes the channel's state frame, streams its bytes through the
// same channel's parser, and pops state on EOF. Macro bodies are rendered
// through pongo2 first (config.g, trigger*.g etc. may reference printer
// state as {{ printer.tool.temperature }}-style template variables),
// grounded on a TemplateWrapper/Render hook: resolve a template string
// against a context map before the result is ever handed to the parser.
package macro

import (
	"bytes"
	"path"

	"github.com/flosch/pongo2/v5"

	"reprapcore/internal/collab"
	"reprapcore/internal/gcodeerr"
	"reprapcore/internal/lock"
	"reprapcore/internal/state"
)

// Controller resolves macro names to files and renders their templated
// bodies before the bytes are fed into the channel's normal parser.
type Controller struct {
	platform collab.Platform
	macroDir string
	sysDir   string
}

func NewController(platform collab.Platform, macroDir, sysDir string) *Controller {
	return &Controller{platform: platform, macroDir: macroDir, sysDir: sysDir}
}

// Context supplies the template variables a macro body may reference.
type Context map[string]interface{}

// Render expands a macro file's pongo2 template against ctx, returning
// the literal G-code text to feed through the channel parser.
func (c *Controller) Render(path string, ctx Context) (string, error) {
	f, err := c.platform.OpenRead(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(asReader(f)); err != nil {
		return "", err
	}

	tpl, err := pongo2.FromString(buf.String())
	if err != nil {
		// Not a template, or a template error: fall back to the literal
		// bytes so plain G-code macros with no {{ }} still work.
		return buf.String(), nil
	}
	out, err := tpl.Execute(pongo2.Context(ctx))
	if err != nil {
		return "", err
	}
	return out, nil
}

type readerAdapter struct{ f collab.File }

func (r readerAdapter) Read(p []byte) (int, error) { return r.f.Read(p) }

func asReader(f collab.File) readerAdapter { return readerAdapter{f} }

// Resolve maps a bare macro name (e.g. "pause", "tpost2") to its path
// under the system directory, adding ".g" when the name has no extension.
// The macro directory is not searched.
func (c *Controller) Resolve(name string) string {
	if path.Ext(name) == "" {
		name += ".g"
	}
	return c.sysDir + "/" + name
}

// Result reports whether the invocation succeeded, was
// skipped (optional macro missing), or failed outright.
type Result int

const (
	Started Result = iota
	Skipped
	Failed
)

// Begin implements DoFileMacro steps 1-4: resolve, push the frame, attach
// the rendered body, and mark the frame as doing-macro. Byte delivery
// into the channel's parser is the caller's responsibility (it already
// owns the Channel/Parser); Begin only hands back the rendered text.
func (c *Controller) Begin(st *state.Stack, locks *lock.Table, ch lock.ChannelID, name string, reportMissing bool, ctx Context) (string, Result, error) {
	path := c.Resolve(name)
	if !c.platform.Exists(path) {
		if reportMissing {
			return "", Failed, gcodeerr.Semanticf("macro file not found: %s", name)
		}
		return "", Skipped, nil
	}

	held := locks.SnapshotHeld(ch)
	frame, ok := st.Push(held)
	if !ok {
		return "", Failed, gcodeerr.New(gcodeerr.ResourceExhausted, "machine state stack overflow pushing macro %s", name)
	}
	frame.DoingMacro = true

	text, err := c.Render(path, ctx)
	if err != nil {
		st.Pop()
		return "", Failed, err
	}
	return text, Started, nil
}

// End implements DoFileMacro step 5: on EOF, pop the frame if the stack
// is deeper than it was at the call's start; otherwise the caller (the
// dispatcher) treats this as the top-level print completing.
func (c *Controller) End(st *state.Stack) (poppedToDepth int, wasTopLevel bool) {
	if st.Depth() == 0 {
		return 0, true
	}
	_, ok := st.Pop()
	if !ok {
		return st.Depth(), true
	}
	return st.Depth(), false
}

// Package channel provides input-channel producers that feed bytes into
// a gcode.Channel's single-slot buffer: an Aux UART line (tarm/serial,
// grounded on the connect/disconnect/poll shape of a line-oriented serial
// peripheral driver) and a plain in-memory/file producer for HTTP,
// Telnet, USB, and SD-file
// sources, which arrive as byte streams the core consumes but does not
// own the transport for.
package channel

import (
	"fmt"
	"time"

	"github.com/tarm/serial"

	"reprapcore/internal/gcode"
)

// AuxLine opens a serial device (an LCD controller or similar) and feeds
// its bytes into an Aux gcode.Channel. Connect/Read mirror AceCommun's
// shape but speak line-oriented G-code rather than ACE's framed JSON.
type AuxLine struct {
	name string
	baud int
	port *serial.Port

	Ch *gcode.Channel
}

func NewAuxLine(name string, baud int, index int) *AuxLine {
	return &AuxLine{name: name, baud: baud, Ch: gcode.NewChannel(gcode.SourceAux, index)}
}

func (a *AuxLine) Connect() error {
	cfg := &serial.Config{Name: a.name, Baud: a.baud, ReadTimeout: 10 * time.Millisecond}
	port, err := serial.OpenPort(cfg)
	if err != nil {
		return fmt.Errorf("unable to open serial port %s: %w", a.name, err)
	}
	a.port = port
	return nil
}

func (a *AuxLine) Disconnect() error {
	if a.port == nil {
		return nil
	}
	err := a.port.Close()
	a.port = nil
	return err
}

// Poll reads whatever bytes are currently available (non-blocking given
// the short ReadTimeout) and feeds them to the channel. Safe to call
// every dispatcher tick; it is a no-op once the channel already holds a
// complete line awaiting consumption.
func (a *AuxLine) Poll() (gcode.PutResult, error) {
	if a.port == nil {
		return gcode.Accepted, fmt.Errorf("aux line %s not connected", a.name)
	}
	return a.Ch.FillFrom(a.port.Read)
}

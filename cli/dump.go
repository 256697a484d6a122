package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/mitchellh/colorstring"
	"golang.org/x/term"

	"github.com/gmelodie/slowperipheral/driver"
)

// Dumper prints one line per packet sent or received, mirroring the
// reference client's dump_packet. Colorization is suppressed when w
// is not an interactive terminal.
type Dumper struct {
	w       io.Writer
	colored bool
}

// NewDumper builds a Dumper writing to w, auto-detecting color
// support when w is an *os.File.
func NewDumper(w io.Writer) *Dumper {
	colored := false
	if f, ok := w.(*os.File); ok {
		colored = term.IsTerminal(int(f.Fd()))
	}
	return &Dumper{w: w, colored: colored}
}

// Handle is an observer.Observable[driver.Event] subscriber: it
// prints TX and RX events, writes every completed inbound payload to
// stdout, and ignores everything else.
func (d *Dumper) Handle(e driver.Event) {
	switch e.Kind {
	case driver.EventTX:
		d.line("»»", "green", e.Tag, &e.Packet)
	case driver.EventRX:
		d.line("««", "red", e.Tag, &e.Packet)
	case driver.EventPayloadDelivered:
		fmt.Fprintf(d.w, "\n### PAYLOAD (%dB) ###\n", len(e.Payload))
		d.w.Write(e.Payload)
		fmt.Fprintf(d.w, "\n################################\n")
	}
}

func (d *Dumper) line(arrow, color, tag string, p interface{ String() string }) {
	if d.colored {
		colorstring.Fprintf(d.w, "[%s]%s[reset] %-10s %s\n", color, arrow, tag, p.String())
		return
	}
	fmt.Fprintf(d.w, "%s %-10s %s\n", arrow, tag, p.String())
}

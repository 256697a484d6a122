// Package cli implements the peripheral's command-line surface: flag
// parsing, message-file reading, colorized packet dumps, and
// fragment-send progress reporting. The driver and session packages
// know nothing about any of this; cli wires them to a terminal.
package cli

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/gmelodie/slowperipheral/common"
)

// Flags holds one run's parsed command-line configuration.
type Flags struct {
	Host   string
	Port   uint16
	Msg    string
	Revive string
	Save   string
	Rto    time.Duration
	RecvTo time.Duration
}

// ParseFlags parses args (excluding argv[0]) into Flags, applying the
// same defaults the reference peripheral uses when a flag is absent.
func ParseFlags(args []string) (*Flags, error) {
	fs := pflag.NewFlagSet("slowperipheral", pflag.ContinueOnError)

	f := &Flags{}
	var rtoMs, recvToMs uint
	fs.StringVar(&f.Host, "host", common.DefaultHost, "central host to dial")
	fs.Uint16Var(&f.Port, "port", common.DefaultPort, "central port to dial")
	fs.StringVarP(&f.Msg, "msg", "m", "", "path to a file whose contents are sent as the payload")
	fs.StringVarP(&f.Revive, "revive", "r", "", "path to a persisted session snapshot to resume")
	fs.StringVarP(&f.Save, "save", "s", "", "path to persist the session snapshot on clean disconnect")
	fs.UintVarP(&rtoMs, "rto", "t", uint(common.DefaultRTO/time.Millisecond), "retransmission timeout in milliseconds")
	fs.UintVarP(&recvToMs, "recvto", "T", uint(common.DefaultRecvTimeout/time.Millisecond), "timeout in milliseconds waiting for the SETUP response")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("cli: %w", err)
	}
	f.Rto = time.Duration(rtoMs) * time.Millisecond
	f.RecvTo = time.Duration(recvToMs) * time.Millisecond
	return f, nil
}

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/gmelodie/slowperipheral/cli"
	"github.com/gmelodie/slowperipheral/common"
	"github.com/gmelodie/slowperipheral/driver"
	"github.com/gmelodie/slowperipheral/netconn"
	"github.com/gmelodie/slowperipheral/persist"
	"github.com/gmelodie/slowperipheral/util/observer"
)

const (
	exitOK                 = 0
	exitSetupTimeout       = 1
	exitConnectionRejected = 2
	exitPersistenceError   = 3
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	flags, err := cli.ParseFlags(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitSetupTimeout
	}

	payload, isRevive, revived, err := loadPayload(flags)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitPersistenceError
	}

	ch, err := netconn.Dial(flags.Host, flags.Port)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitSetupTimeout
	}
	defer ch.Close()

	events := observer.NewObservable[driver.Event]()
	defer events.Close()

	dumper := cli.NewDumper(os.Stdout)
	dumpSub := events.Subscribe()
	go func() {
		for e := range dumpSub {
			dumper.Handle(e)
		}
	}()

	var d *driver.Driver
	if isRevive {
		d = driver.Revive(ch, revived, payload, flags.Rto, events)
	} else {
		d, err = driver.Connect(ch, payload, flags.Rto, flags.RecvTo, events)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			if errors.Is(err, driver.ErrConnectionRejected) {
				return exitConnectionRejected
			}
			return exitSetupTimeout
		}
	}

	progress := cli.NewProgress(d.QueueLen())
	progressSub := events.Subscribe()
	go func() {
		for e := range progressSub {
			progress.Handle(e)
		}
	}()

	if err := d.Run(flags.Save); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitSetupTimeout
	}

	return exitOK
}

func loadPayload(flags *cli.Flags) (payload []byte, isRevive bool, revived persist.Session, err error) {
	if flags.Revive != "" {
		revived, err = persist.Load(flags.Revive)
		if err != nil {
			return nil, false, persist.Session{}, err
		}
		payload, err = readMessage(flags.Msg, true)
		return payload, true, revived, err
	}

	payload, err = readMessage(flags.Msg, false)
	return payload, false, persist.Session{}, err
}

// readMessage reads the --msg file, if given. Absent both --msg and
// --revive, the payload defaults to "Hello\n"; on a bare --revive the
// payload stays empty, producing the zero-data REVIVE|ACK handshake.
func readMessage(path string, isRevive bool) ([]byte, error) {
	if path == "" {
		if isRevive {
			return nil, nil
		}
		return []byte(common.DefaultPayload), nil
	}
	return os.ReadFile(path)
}

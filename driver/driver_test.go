package driver

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/gmelodie/slowperipheral/persist"
	"github.com/gmelodie/slowperipheral/pkt"
	"github.com/gmelodie/slowperipheral/util/observer"
)

// fakeChannel is an in-memory, loopback Channel: writes land on out,
// reads come from in. Pairing two fakeChannels with crossed
// directions gives a peripheral side and a scripted central side a
// shared wire without touching a real socket.
type fakeChannel struct {
	out    chan []byte
	in     chan []byte
	closed chan struct{}
}

func newFakeChannel(out, in chan []byte) *fakeChannel {
	return &fakeChannel{out: out, in: in, closed: make(chan struct{})}
}

func (f *fakeChannel) Send(b []byte) error {
	cp := make([]byte, len(b))
	copy(cp, b)
	select {
	case f.out <- cp:
	case <-f.closed:
	}
	return nil
}

func (f *fakeChannel) Recv(timeout time.Duration) ([]byte, error) {
	select {
	case b := <-f.in:
		return b, nil
	case <-time.After(timeout):
		return nil, errTimeoutForTest{}
	case <-f.closed:
		return nil, errTimeoutForTest{}
	}
}

func (f *fakeChannel) Close() error {
	close(f.closed)
	return nil
}

type errTimeoutForTest struct{}

func (errTimeoutForTest) Error() string { return "fakeChannel: timed out" }
func (errTimeoutForTest) Timeout() bool { return true }

// wirePair builds a peripheral-side and central-side fakeChannel
// sharing two directional buffers.
func wirePair() (peripheral *fakeChannel, central *fakeChannel) {
	toCentral := make(chan []byte, 16)
	toPeripheral := make(chan []byte, 16)
	peripheral = newFakeChannel(toCentral, toPeripheral)
	central = newFakeChannel(toPeripheral, toCentral)
	return peripheral, central
}

// scriptedCentral answers CONNECT with an accepting SETUP, echoes a
// pure ACK for every data packet it receives, and mirrors the
// disconnect packet's seqnum back so the driver's teardown completes.
// It stops once it has sent the disconnect ack.
func scriptedCentral(t *testing.T, ch *fakeChannel, sid pkt.SessionID, done chan struct{}) {
	t.Helper()
	go func() {
		for {
			raw, err := ch.Recv(2 * time.Second)
			if err != nil {
				return
			}
			pk, err := pkt.Deserialize(raw)
			if err != nil {
				continue
			}

			switch {
			case pk.Flags.Has(pkt.FlagConnect) && !pk.Flags.Has(pkt.FlagRevive):
				setup := pkt.Packet{
					SID:    sid,
					Sttl:   5000,
					Flags:  pkt.FlagAccept,
					Seqnum: 100,
					Acknum: 0,
					Window: 4096,
				}
				raw, _ := setup.Serialize()
				_ = ch.Send(raw)

			case pk.Flags.Has(pkt.FlagConnect) && pk.Flags.Has(pkt.FlagRevive):
				ack := pkt.Packet{
					SID:    sid,
					Sttl:   5000,
					Flags:  pkt.FlagAck,
					Seqnum: pk.Seqnum,
					Acknum: pk.Seqnum,
					Window: 4096,
				}
				raw, _ := ack.Serialize()
				_ = ch.Send(raw)
				close(done)
				return

			default:
				ack := pkt.Packet{
					SID:    sid,
					Sttl:   5000,
					Flags:  pkt.FlagAck,
					Seqnum: pk.Seqnum,
					Acknum: pk.Seqnum,
					Window: 4096,
				}
				raw, _ := ack.Serialize()
				_ = ch.Send(raw)
			}
		}
	}()
}

func TestConnectSendAndDisconnectRoundTrip(t *testing.T) {
	peripheral, central := wirePair()
	sid := uuid.New()
	done := make(chan struct{})
	scriptedCentral(t, central, sid, done)

	events := observer.NewObservable[Event]()
	sub := events.Subscribe()

	var sawDisconnect bool
	collected := make(chan struct{})
	go func() {
		for e := range sub {
			if e.Kind == EventDisconnectComplete {
				sawDisconnect = true
			}
		}
		close(collected)
	}()

	d, err := Connect(peripheral, []byte("hello"), 100*time.Millisecond, time.Second, events)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	runErr := make(chan error, 1)
	go func() { runErr <- d.Run("") }()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("scripted central never saw a disconnect")
	}

	select {
	case err := <-runErr:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not return after disconnect completed")
	}

	events.Close()
	<-collected

	if !sawDisconnect {
		t.Fatalf("expected a disconnect-complete event")
	}
}

func TestConnectRejected(t *testing.T) {
	peripheral, central := wirePair()

	go func() {
		raw, err := central.Recv(2 * time.Second)
		if err != nil {
			return
		}
		pk, err := pkt.Deserialize(raw)
		if err != nil {
			return
		}
		reject := pkt.Packet{SID: pk.SID, Flags: 0, Seqnum: 1}
		out, _ := reject.Serialize()
		_ = central.Send(out)
	}()

	_, err := Connect(peripheral, []byte("hi"), 100*time.Millisecond, time.Second, nil)
	if err != ErrConnectionRejected {
		t.Fatalf("got %v, want ErrConnectionRejected", err)
	}
}

func TestConnectSetupTimeout(t *testing.T) {
	peripheral, _ := wirePair()

	_, err := Connect(peripheral, []byte("hi"), 50*time.Millisecond, 100*time.Millisecond, nil)
	if err == nil {
		t.Fatalf("expected a timeout error")
	}
}

func TestReviveSkipsHandshake(t *testing.T) {
	peripheral, central := wirePair()
	sid := uuid.New()
	done := make(chan struct{})
	scriptedCentral(t, central, sid, done)

	ps := persist.Session{SID: sid, SttlMs: 5000, NextSeq: 42, LastAckReceived: 41}
	d := Revive(peripheral, ps, []byte("resumed payload"), 100*time.Millisecond, nil)

	runErr := make(chan error, 1)
	go func() { runErr <- d.Run("") }()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("scripted central never saw a disconnect")
	}

	select {
	case err := <-runErr:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not return after disconnect completed")
	}
}

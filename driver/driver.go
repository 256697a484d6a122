// Package driver implements the session driver: the event loop that
// interleaves transmission, retransmission timers, disconnect
// initiation, datagram reception, acknowledgment processing, fragment
// reassembly, and state persistence. It binds a Channel to a
// session.Session and runs until the disconnect handshake completes.
package driver

import (
	"errors"
	"fmt"
	"time"

	"github.com/gmelodie/slowperipheral/common"
	"github.com/gmelodie/slowperipheral/persist"
	"github.com/gmelodie/slowperipheral/pkt"
	"github.com/gmelodie/slowperipheral/reassembly"
	"github.com/gmelodie/slowperipheral/session"
	"github.com/gmelodie/slowperipheral/util/assert"
	"github.com/gmelodie/slowperipheral/util/logger"
	"github.com/gmelodie/slowperipheral/util/observer"
)

// Channel is the driver's abstraction over a connected, unicast
// datagram socket. netconn.Conn satisfies it.
type Channel interface {
	Send(b []byte) error
	Recv(timeout time.Duration) ([]byte, error)
	Close() error
}

// ErrSetupTimeout is returned when no SETUP datagram arrives within
// the configured receive timeout after a CONNECT.
var ErrSetupTimeout = errors.New("driver: timed out waiting for SETUP")

// ErrConnectionRejected is returned when the central's SETUP response
// has ACCEPT clear.
var ErrConnectionRejected = errors.New("driver: connection rejected")

// EventKind classifies an Event for observers such as the CLI dumper
// and progress bar.
type EventKind int

const (
	EventTX EventKind = iota
	EventRX
	EventAckRetired
	EventPayloadDelivered
	EventDisconnectComplete
	EventPersistenceError
)

// Event is published once per notable driver action. Only the fields
// relevant to Kind are populated.
type Event struct {
	Kind         EventKind
	Packet       pkt.Packet
	Tag          string // classification used for dumps: CONNECT, SETUP, REVIVE, RETX, DATA/FRAG, DISCONNECT, ACK-PURE, RX
	RetiredCount int
	Payload      []byte
	Err          error
}

// Driver owns a Channel, a Session, and the fragment reassembler for
// one connection's lifetime.
type Driver struct {
	channel           Channel
	sess              *session.Session
	reasm             *reassembly.Reassembler
	rto               time.Duration
	disconnectPending bool
	events            *observer.Observable[Event]
}

func (d *Driver) emit(e Event) {
	if d.events == nil {
		return
	}
	d.events.NotifyObservers(e)
}

func (d *Driver) send(p pkt.Packet, tag string) {
	raw, err := p.Serialize()
	assert.IsNil(err, "driver: queued packet violated the 1440-byte payload cap")
	if err := d.channel.Send(raw); err != nil {
		logger.Warnf("failed to send %s packet: %v", tag, err)
	}
	d.emit(Event{Kind: EventTX, Packet: p, Tag: tag})
}

// Connect performs the CONNECT/SETUP handshake for a brand-new
// session: it sends an unqueued CONNECT, blocks for exactly one
// SETUP datagram (bounded by recvTimeout), and on acceptance enqueues
// the user payload. It does not enter the driver loop.
func Connect(ch Channel, payload []byte, rto, recvTimeout time.Duration, events *observer.Observable[Event]) (*Driver, error) {
	sess := session.New(common.DefaultLocalWindow)
	d := &Driver{channel: ch, sess: sess, reasm: reassembly.New(), rto: rto, events: events}

	connectPkt := pkt.Packet{Flags: pkt.FlagConnect, Window: sess.LocalWindowLeft()}
	d.send(connectPkt, "CONNECT")

	raw, err := ch.Recv(recvTimeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSetupTimeout, err)
	}
	setup, err := pkt.Deserialize(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed SETUP: %v", ErrSetupTimeout, err)
	}
	d.emit(Event{Kind: EventRX, Packet: setup, Tag: "SETUP"})

	if !setup.Flags.Has(pkt.FlagAccept) {
		return nil, ErrConnectionRejected
	}

	sess.Establish(setup)
	sess.NoteRxSeq(setup.Seqnum)
	sess.QueueData(payload, false)

	return d, nil
}

// Revive resumes a persisted session without repeating the SETUP
// handshake: it restores next_seq and last_ack_received from ps via a
// synthetic establish packet, then enqueues payload as the
// revive burst (or a bare REVIVE|ACK handshake if payload is empty).
func Revive(ch Channel, ps persist.Session, payload []byte, rto time.Duration, events *observer.Observable[Event]) *Driver {
	sess := session.New(common.DefaultLocalWindow)

	synthetic := pkt.Packet{
		SID:    ps.SID,
		Sttl:   ps.SttlMs,
		Seqnum: ps.NextSeq - 1,
		Acknum: ps.LastAckReceived,
		Window: 0,
	}
	sess.Establish(synthetic)
	sess.NoteRxSeq(ps.LastAckReceived)
	sess.QueueData(payload, true)

	return &Driver{channel: ch, sess: sess, reasm: reassembly.New(), rto: rto, events: events}
}

// Run executes the driver loop (transmit, disconnect-initiation,
// receive) until the disconnect handshake completes, then returns
// nil. If savePath is non-empty the session is snapshotted to disk on
// clean disconnect; a failure to do so is logged but does not change
// the outcome (the peer-side disconnect has already completed).
func (d *Driver) Run(savePath string) error {
	for {
		d.transmitPhase()
		d.disconnectPhase()

		done, err := d.receivePhase(savePath)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

// transmitPhase is phase 1: (re)send everything ready_to_send allows.
func (d *Driver) transmitPhase() {
	for _, e := range d.sess.ReadyToSend(d.rto) {
		wasSent := !e.FirstSentAt.IsZero()
		tag := "DATA/FRAG"
		switch {
		case wasSent:
			tag = "RETX"
		case e.Packet.Flags.Has(pkt.FlagRevive):
			tag = "REVIVE"
		}

		d.send(e.Packet, tag)
		d.sess.MarkSent(e)
	}
}

// disconnectPhase is phase 2: once the transmit queue has drained and
// no disconnect is already in flight, kick off the teardown
// handshake. The disconnect packet bypasses the queue entirely.
func (d *Driver) disconnectPhase() {
	if d.disconnectPending || !d.sess.Empty() {
		return
	}

	dc := pkt.Packet{
		SID:    d.sess.SID(),
		Sttl:   d.sess.Sttl(),
		Flags:  pkt.FlagConnect | pkt.FlagRevive | pkt.FlagAck,
		Seqnum: d.sess.TakeSeq(),
		Acknum: d.sess.LastRxSeq(),
		Window: 0,
	}
	d.send(dc, "DISCONNECT")
	d.disconnectPending = true
}

// receivePhase is phase 3: wait up to one driver tick for a datagram
// and dispatch it. done is true once the disconnect handshake has
// been confirmed by the peer.
func (d *Driver) receivePhase(savePath string) (done bool, err error) {
	raw, recvErr := d.channel.Recv(common.DriverTick)
	if recvErr != nil {
		if isTimeout(recvErr) {
			return false, nil
		}
		logger.Warnf("receive error: %v", recvErr)
		return false, nil
	}

	pk, decodeErr := pkt.Deserialize(raw)
	if decodeErr != nil {
		logger.Warnf("discarding malformed datagram: %v", decodeErr)
		return false, nil
	}
	d.emit(Event{Kind: EventRX, Packet: pk, Tag: "RX"})

	d.sess.NoteRxSeq(pk.Seqnum)

	if pk.Flags.Has(pkt.FlagAck) {
		retired := d.sess.HandleAck(pk.Acknum, pk.Window, pk.Sttl)
		if retired > 0 {
			d.emit(Event{Kind: EventAckRetired, RetiredCount: retired})
		}
	}

	if d.disconnectPending && pk.Flags.Has(pkt.FlagAck) && pk.Seqnum == d.sess.LastAckReceived() {
		d.finishDisconnect(savePath)
		return true, nil
	}

	if len(pk.Data) > 0 {
		d.handleDataPacket(pk)
	}

	return false, nil
}

func (d *Driver) handleDataPacket(pk pkt.Packet) {
	d.sess.ConsumeLocalWindow(len(pk.Data))

	if payload, complete := d.reasm.Feed(pk); complete {
		d.emit(Event{Kind: EventPayloadDelivered, Payload: payload})
		d.sess.ReleaseLocalWindow(len(payload))
	}

	ack := pkt.Packet{
		SID:    d.sess.SID(),
		Sttl:   d.sess.Sttl(),
		Flags:  pkt.FlagAck,
		Seqnum: pk.Seqnum,
		Acknum: pk.Seqnum,
		Window: d.sess.LocalWindowLeft(),
	}
	d.send(ack, "ACK-PURE")
}

func (d *Driver) finishDisconnect(savePath string) {
	if savePath == "" {
		d.emit(Event{Kind: EventDisconnectComplete})
		return
	}

	ps := persist.Session{
		SID:             d.sess.SID(),
		SttlMs:          d.sess.Sttl(),
		NextSeq:         d.sess.NextSeqPeek(),
		LastAckReceived: d.sess.LastAckReceived(),
	}
	if err := persist.Save(savePath, ps); err != nil {
		logger.Warnf("failed to persist session to %s: %v", savePath, err)
		d.emit(Event{Kind: EventPersistenceError, Err: err})
	}
	d.emit(Event{Kind: EventDisconnectComplete})
}

// Close releases the underlying channel. Safe to call once, from
// every exit path of the caller.
func (d *Driver) Close() error {
	return d.channel.Close()
}

// QueueLen returns the number of packets currently queued for
// transmission, used by the CLI to size a fragment-send progress bar.
func (d *Driver) QueueLen() int {
	return d.sess.QueueLen()
}

type timeouter interface{ Timeout() bool }

func isTimeout(err error) bool {
	var t timeouter
	for e := err; e != nil; e = errors.Unwrap(e) {
		if tt, ok := e.(timeouter); ok {
			t = tt
			break
		}
	}
	return t != nil && t.Timeout()
}

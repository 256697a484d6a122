// Package session implements the per-connection book-keeping for a
// SLOW session: identifiers, sequence counters, sliding windows, and
// the outbound transmit queue with fragmentation and cumulative-ACK
// retirement. Session is pure state; it produces packets but never
// performs I/O.
package session

import (
	"time"

	"github.com/gmelodie/slowperipheral/common"
	"github.com/gmelodie/slowperipheral/pkt"
	"github.com/gmelodie/slowperipheral/util/assert"
)

// OutboundEntry is one packet queued for transmission, together with
// the timestamps the retransmission logic needs.
type OutboundEntry struct {
	Packet      pkt.Packet
	FirstSentAt time.Time // zero value means "never sent"
	LastSentAt  time.Time // zero value means "never sent"
}

func (e *OutboundEntry) neverSent() bool { return e.FirstSentAt.IsZero() }

// pendingSend is a payload still being carved into packets, held back
// because the remote window was exhausted mid-carve. It resumes the
// next time remote window frees up, continuing the same fid/fo
// sequence rather than starting a fresh fragmented message.
type pendingSend struct {
	remaining  []byte
	fid        uint8
	fragmented bool
	nextFo     uint8
	isRevive   bool
	startedAny bool // whether any chunk of this payload has been carved yet
}

// Session tracks one SLOW connection's sequencing, windows, and
// outbound queue.
type Session struct {
	sid    pkt.SessionID
	sttlMs uint32

	nextSeq         uint32
	lastAckReceived uint32
	lastRxSeq       uint32

	localWindow  uint16
	remoteWindow uint16

	nextFid uint8

	txQueue []*OutboundEntry
	pending []*pendingSend
}

// New creates an empty session with the given local receive window.
func New(localWindow uint16) *Session {
	return &Session{
		localWindow: localWindow,
		nextFid:     1,
	}
}

// Establish sets sid, sttl, next_seq, remote_window, and
// last_ack_received from a SETUP (or synthetic revive) packet. It
// produces no packets.
func (s *Session) Establish(setup pkt.Packet) {
	s.sid = setup.SID
	s.sttlMs = setup.Sttl
	s.nextSeq = setup.Seqnum + 1
	s.remoteWindow = setup.Window
	s.lastAckReceived = setup.Acknum
}

// SID returns the session identifier.
func (s *Session) SID() pkt.SessionID { return s.sid }

// Sttl returns the most recently advertised session time-to-live.
func (s *Session) Sttl() uint32 { return s.sttlMs }

// LastAckReceived returns the greatest acknum observed from the peer.
func (s *Session) LastAckReceived() uint32 { return s.lastAckReceived }

// LastRxSeq returns the greatest nonzero seqnum observed from the
// peer, used as the acknum on packets we send.
func (s *Session) LastRxSeq() uint32 { return s.lastRxSeq }

// LocalWindowLeft returns the free bytes in the local receive buffer.
func (s *Session) LocalWindowLeft() uint16 { return s.localWindow }

// NextSeqPeek returns the next sequence number without consuming it,
// used when snapshotting a session for persistence.
func (s *Session) NextSeqPeek() uint32 { return s.nextSeq }

// TakeSeq returns the next sequence number and post-increments it.
func (s *Session) TakeSeq() uint32 {
	seq := s.nextSeq
	s.nextSeq++
	return seq
}

// NoteRxSeq records s as the last received sequence number, unless s
// is zero (the CONNECT packet's seqnum, which must not poison the
// acknowledgment field we echo back).
func (s *Session) NoteRxSeq(seq uint32) {
	if seq != 0 {
		s.lastRxSeq = seq
	}
}

// ConsumeLocalWindow decrements the advertised local window by n
// bytes, saturating at zero.
func (s *Session) ConsumeLocalWindow(n int) {
	if n < 0 {
		n = 0
	}
	if uint64(n) > uint64(s.localWindow) {
		s.localWindow = 0
		return
	}
	s.localWindow -= uint16(n)
}

// ReleaseLocalWindow increments the advertised local window by n
// bytes, clamping at common.MaxWindow.
func (s *Session) ReleaseLocalWindow(n int) {
	if n < 0 {
		n = 0
	}
	total := uint64(s.localWindow) + uint64(n)
	if total > common.MaxWindow {
		total = common.MaxWindow
	}
	s.localWindow = uint16(total)
}

// inFlightBytes sums the data size of entries that have been sent at
// least once but not yet retired.
func (s *Session) inFlightBytes() uint64 {
	var total uint64
	for _, e := range s.txQueue {
		if !e.LastSentAt.IsZero() {
			total += uint64(len(e.Packet.Data))
		}
	}
	return total
}

// remoteWindowLeft is max(0, remote_window - in_flight_bytes).
func (s *Session) remoteWindowLeft() uint16 {
	left := int64(s.remoteWindow) - int64(s.inFlightBytes())
	if left < 0 {
		return 0
	}
	if left > common.MaxWindow {
		return common.MaxWindow
	}
	return uint16(left)
}

// QueueData fragments payload into packets of at most
// common.MaxPayloadBytes each and appends them to the transmit queue.
//
// If payload is empty and isRevive is true, a single zero-data
// REVIVE|ACK handshake packet is queued. Otherwise the payload is
// carved against the free remote window; if the window is exhausted
// mid-payload while packets are already queued, the remainder is
// buffered internally and resumed automatically once HandleAck frees
// window (see the fid/fo continuity note on pendingSend).
func (s *Session) QueueData(payload []byte, isRevive bool) {
	if len(payload) == 0 && isRevive {
		s.queueReviveHandshake()
		return
	}
	if len(payload) == 0 {
		return
	}

	fragmented := len(payload) > common.MaxPayloadBytes
	fid := uint8(0)
	if fragmented {
		fid = s.nextFid
	}

	s.pending = append(s.pending, &pendingSend{
		remaining:  payload,
		fid:        fid,
		fragmented: fragmented,
		isRevive:   isRevive,
	})
	s.drainPending()
}

func (s *Session) queueReviveHandshake() {
	p := pkt.Packet{
		SID:    s.sid,
		Sttl:   s.sttlMs,
		Flags:  pkt.FlagRevive | pkt.FlagAck,
		Seqnum: s.TakeSeq(),
		Acknum: s.lastRxSeq,
		Window: s.localWindow,
	}
	s.txQueue = append(s.txQueue, &OutboundEntry{Packet: p})
}

// drainPending carves as much of the pending send queue as the
// remote window currently allows, stopping (without dropping data)
// the moment a chunk no longer fits.
func (s *Session) drainPending() {
	for len(s.pending) > 0 {
		ps := s.pending[0]
		for len(ps.remaining) > 0 {
			avail := s.remoteWindowLeft()
			if avail == 0 && len(s.txQueue) > 0 {
				return // window exhausted mid-payload; resume on next HandleAck
			}

			capacity := int(avail)
			if avail == 0 {
				capacity = common.MaxPayloadBytes
			}
			n := min(capacity, common.MaxPayloadBytes, len(ps.remaining))
			assert.Assert(n > 0, "carve size must be positive")

			flags := pkt.FlagAck
			if ps.isRevive && !ps.startedAny {
				flags |= pkt.FlagRevive
			}
			more := n < len(ps.remaining)
			if more {
				flags |= pkt.FlagMorebits
			}

			data := make([]byte, n)
			copy(data, ps.remaining[:n])

			p := pkt.Packet{
				SID:    s.sid,
				Sttl:   s.sttlMs,
				Flags:  flags,
				Seqnum: s.TakeSeq(),
				Acknum: s.lastRxSeq,
				Window: s.localWindow,
				Fid:    ps.fid,
				Fo:     ps.nextFo,
				Data:   data,
			}
			s.txQueue = append(s.txQueue, &OutboundEntry{Packet: p})

			ps.remaining = ps.remaining[n:]
			ps.nextFo++
			ps.startedAny = true
		}

		if ps.fragmented {
			s.nextFid++
		}
		s.pending = s.pending[1:]
	}
}

// HandleAck applies a received acknowledgment: records the new
// last_ack_received, remote window, and sttl, then pops every queue
// entry whose seqnum is <= acknum (cumulative ACK semantics). Any
// buffered pending payload is re-attempted against the freed window.
// It returns the number of entries retired, for callers that surface
// send progress.
func (s *Session) HandleAck(acknum uint32, remoteWindow uint16, sttlMs uint32) int {
	s.lastAckReceived = acknum
	s.remoteWindow = remoteWindow
	s.sttlMs = sttlMs

	retired := 0
	for len(s.txQueue) > 0 && s.txQueue[0].Packet.Seqnum <= acknum {
		s.txQueue = s.txQueue[1:]
		retired++
	}

	s.drainPending()
	return retired
}

// ReadyToSend scans the transmit queue from the front and returns the
// entries selected for (re)transmission this round: never-sent
// entries, and entries whose last send is older than rto. CONNECT/REVIVE
// entries are always returned (handshake passthrough); any other
// entry is returned only while it fits in the remaining remote
// window, and the scan stops at the first entry that does not fit, to
// preserve in-order delivery.
func (s *Session) ReadyToSend(rto time.Duration) []*OutboundEntry {
	var out []*OutboundEntry
	bytesLeft := s.remoteWindowLeft()
	now := time.Now()

	for _, e := range s.txQueue {
		timedOut := !e.neverSent() && now.Sub(e.LastSentAt) > rto
		if !e.neverSent() && !timedOut {
			continue
		}

		isHandshake := e.Packet.Flags.Has(pkt.FlagConnect) || e.Packet.Flags.Has(pkt.FlagRevive)
		if isHandshake {
			out = append(out, e)
			continue
		}

		size := uint16(len(e.Packet.Data))
		if size > bytesLeft {
			break
		}
		out = append(out, e)
		bytesLeft -= size
	}

	return out
}

// MarkSent records the current time as the entry's most recent send,
// and also as FirstSentAt on the entry's very first transmission.
func (s *Session) MarkSent(e *OutboundEntry) {
	now := time.Now()
	if e.FirstSentAt.IsZero() {
		e.FirstSentAt = now
	}
	e.LastSentAt = now
}

// Empty reports whether the transmit queue holds no entries.
func (s *Session) Empty() bool { return len(s.txQueue) == 0 }

// QueueLen returns the number of entries currently queued for
// transmission, used by the CLI to size a fragment-send progress bar.
func (s *Session) QueueLen() int { return len(s.txQueue) }

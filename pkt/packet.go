// Package pkt implements the SLOW wire packet: a fixed 32-byte header
// (with a packed flags/sttl word) followed by up to 1440 bytes of
// payload. Serialize/Deserialize are pure and stateless.
package pkt

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/gmelodie/slowperipheral/common"
	"github.com/gmelodie/slowperipheral/util/assert"
)

// SessionID is the 16-byte opaque identifier assigned by the central
// during setup and echoed on every subsequent packet of the session.
// It is never generated locally (see the protocol's non-goal on
// cryptographically strong session identifiers); uuid.UUID is used
// only as a typed, 16-byte, printable wrapper.
type SessionID = uuid.UUID

// NoSession is the all-zero SessionID used only on the initial
// CONNECT packet, before a session has been assigned one.
var NoSession SessionID

// Flags is the 5-bit flag set carried in the low bits of the packed
// flags/sttl word.
type Flags uint8

const (
	FlagConnect  Flags = 1 << 4 // C
	FlagRevive   Flags = 1 << 3 // R
	FlagAck      Flags = 1 << 2 // ACK
	FlagAccept   Flags = 1 << 1 // A (1 = accept, 0 = reject)
	FlagMorebits Flags = 1 << 0 // MB

	maxFlags Flags  = 0x1F
	maxSttl  uint32 = 0x07FFFFFF
)

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }

func (f Flags) String() string {
	var b strings.Builder
	set := func(bit Flags, c byte) {
		if f.Has(bit) {
			b.WriteByte(c)
		} else {
			b.WriteByte('-')
		}
	}
	set(FlagConnect, 'C')
	set(FlagRevive, 'R')
	set(FlagAck, 'A')
	set(FlagAccept, 'a')
	set(FlagMorebits, 'M')
	return b.String()
}

// Packet is the logical representation of one SLOW datagram.
type Packet struct {
	SID    SessionID
	Sttl   uint32 // 27 bits: session time-to-live in milliseconds
	Flags  Flags  // 5 bits
	Seqnum uint32
	Acknum uint32
	Window uint16
	Fid    uint8
	Fo     uint8
	Data   []byte // 0..1440 bytes
}

// ErrPayloadTooLarge is returned by Serialize when Data exceeds
// common.MaxPayloadBytes.
var ErrPayloadTooLarge = errors.New("pkt: payload exceeds 1440 bytes")

// ErrPacketTruncated is returned by Deserialize when the input is
// shorter than the fixed 32-byte header.
var ErrPacketTruncated = errors.New("pkt: packet shorter than 32-byte header")

// Serialize renders p in the SLOW wire format: 16 bytes of sid, a
// little-endian packed flags/sttl word, seqnum, acknum, window, fid,
// fo, then Data verbatim. Output is exactly 32+len(Data) bytes.
func (p *Packet) Serialize() ([]byte, error) {
	if len(p.Data) > common.MaxPayloadBytes {
		return nil, ErrPayloadTooLarge
	}
	assert.Assert(p.Sttl <= maxSttl, "sttl must fit in 27 bits, got %d", p.Sttl)
	assert.Assert(Flags(p.Flags)&^maxFlags == 0, "flags must fit in 5 bits, got %#x", p.Flags)

	buf := make([]byte, common.HeaderSizeBytes+len(p.Data))
	copy(buf[0:16], p.SID[:])

	packed := (p.Sttl&maxSttl)<<5 | uint32(p.Flags&maxFlags)
	binary.LittleEndian.PutUint32(buf[16:20], packed)
	binary.LittleEndian.PutUint32(buf[20:24], p.Seqnum)
	binary.LittleEndian.PutUint32(buf[24:28], p.Acknum)
	binary.LittleEndian.PutUint16(buf[28:30], p.Window)
	buf[30] = p.Fid
	buf[31] = p.Fo
	copy(buf[32:], p.Data)

	return buf, nil
}

// Deserialize parses a SLOW packet from buf. Any bytes beyond the
// fixed 32-byte header become Data; the returned Data slice aliases
// buf and should be copied by the caller if buf is reused.
func Deserialize(buf []byte) (Packet, error) {
	if len(buf) < common.HeaderSizeBytes {
		return Packet{}, ErrPacketTruncated
	}

	var p Packet
	copy(p.SID[:], buf[0:16])

	packed := binary.LittleEndian.Uint32(buf[16:20])
	p.Flags = Flags(packed & uint32(maxFlags))
	p.Sttl = packed >> 5

	p.Seqnum = binary.LittleEndian.Uint32(buf[20:24])
	p.Acknum = binary.LittleEndian.Uint32(buf[24:28])
	p.Window = binary.LittleEndian.Uint16(buf[28:30])
	p.Fid = buf[30]
	p.Fo = buf[31]

	if len(buf) > common.HeaderSizeBytes {
		p.Data = buf[common.HeaderSizeBytes:]
	}

	return p, nil
}

// String renders a human-readable, single-line dump of p, used by the
// CLI to print every packet sent or received.
func (p *Packet) String() string {
	preview := previewASCII(p.Data, 64)
	return fmt.Sprintf(
		"sid=%s flags=%s(%#02x) sttl=%dms seq=%d ack=%d win=%d fid=%d fo=%d data=%dB%s",
		p.SID, p.Flags, uint8(p.Flags), p.Sttl, p.Seqnum, p.Acknum, p.Window, p.Fid, p.Fo, len(p.Data), preview,
	)
}

func previewASCII(data []byte, max int) string {
	if len(data) == 0 {
		return ""
	}
	n := len(data)
	truncated := n > max
	if truncated {
		n = max
	}
	var b strings.Builder
	b.WriteString(` -> "`)
	for _, c := range data[:n] {
		if unicode.IsPrint(rune(c)) {
			b.WriteByte(c)
		} else {
			b.WriteByte('.')
		}
	}
	if truncated {
		b.WriteString("...")
	}
	b.WriteByte('"')
	return b.String()
}

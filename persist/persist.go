// Package persist saves and loads the fixed 28-byte on-disk session
// snapshot that backs the "revive" facility: a client can resume a
// logical session after its process has terminated and its datagram
// socket has been destroyed.
package persist

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/gmelodie/slowperipheral/pkt"
)

// recordSize is sid(16) + sttl(4) + next_seq(4) + last_ack_received(4).
const recordSize = 16 + 4 + 4 + 4

// ErrPersistence wraps any save/load I/O failure, including a short
// read or write against the fixed 28-byte layout.
type ErrPersistence struct {
	Op  string
	Err error
}

func (e *ErrPersistence) Error() string { return fmt.Sprintf("persist: %s: %v", e.Op, e.Err) }
func (e *ErrPersistence) Unwrap() error { return e.Err }

// Session is the on-disk tuple (sid, sttl_ms, next_seq,
// last_ack_received), the minimum state needed to resume a session
// without repeating the handshake.
type Session struct {
	SID             pkt.SessionID
	SttlMs          uint32
	NextSeq         uint32
	LastAckReceived uint32
}

// Save writes ps to path as a single 28-byte record.
func Save(path string, ps Session) error {
	buf := make([]byte, recordSize)
	copy(buf[0:16], ps.SID[:])
	binary.LittleEndian.PutUint32(buf[16:20], ps.SttlMs)
	binary.LittleEndian.PutUint32(buf[20:24], ps.NextSeq)
	binary.LittleEndian.PutUint32(buf[24:28], ps.LastAckReceived)

	if err := os.WriteFile(path, buf, 0o600); err != nil {
		return &ErrPersistence{Op: "save", Err: err}
	}
	return nil
}

// Load reads exactly 28 bytes from path and parses them into a
// Session. A short read is reported as ErrPersistence.
func Load(path string) (Session, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return Session{}, &ErrPersistence{Op: "load", Err: err}
	}
	if len(buf) != recordSize {
		return Session{}, &ErrPersistence{Op: "load", Err: fmt.Errorf("expected %d bytes, got %d", recordSize, len(buf))}
	}

	var ps Session
	copy(ps.SID[:], buf[0:16])
	ps.SttlMs = binary.LittleEndian.Uint32(buf[16:20])
	ps.NextSeq = binary.LittleEndian.Uint32(buf[20:24])
	ps.LastAckReceived = binary.LittleEndian.Uint32(buf[24:28])
	return ps, nil
}

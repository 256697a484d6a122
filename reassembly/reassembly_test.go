package reassembly

import (
	"testing"

	"github.com/gmelodie/slowperipheral/pkt"
)

func TestReassemblyOutOfOrder(t *testing.T) {
	r := New()

	payload, complete := r.Feed(pkt.Packet{Fid: 5, Fo: 1, Flags: 0, Data: []byte("B")})
	if complete {
		t.Fatalf("should not be complete after only the last fragment arrived")
	}
	if payload != nil {
		t.Fatalf("expected nil payload, got %q", payload)
	}

	payload, complete = r.Feed(pkt.Packet{Fid: 5, Fo: 0, Flags: pkt.FlagMorebits, Data: []byte("A")})
	if !complete {
		t.Fatalf("expected completion after second fragment arrived")
	}
	if string(payload) != "AB" {
		t.Fatalf("payload = %q, want %q", payload, "AB")
	}

	if _, exists := r.buffers[5]; exists {
		t.Fatalf("fid 5 buffer should be discarded after emission")
	}
}

func TestReassemblySinglePacket(t *testing.T) {
	r := New()
	payload, complete := r.Feed(pkt.Packet{Fid: 0, Fo: 0, Flags: 0, Data: []byte("hello")})
	if !complete || string(payload) != "hello" {
		t.Fatalf("got payload=%q complete=%v", payload, complete)
	}
}

func TestReassemblyInterleavedFids(t *testing.T) {
	r := New()

	_, complete := r.Feed(pkt.Packet{Fid: 1, Fo: 0, Flags: pkt.FlagMorebits, Data: []byte("a1")})
	if complete {
		t.Fatalf("fid 1 should not be complete yet")
	}
	_, complete = r.Feed(pkt.Packet{Fid: 2, Fo: 0, Flags: pkt.FlagMorebits, Data: []byte("b1")})
	if complete {
		t.Fatalf("fid 2 should not be complete yet")
	}

	payload, complete := r.Feed(pkt.Packet{Fid: 2, Fo: 1, Flags: 0, Data: []byte("b2")})
	if !complete || string(payload) != "b1b2" {
		t.Fatalf("fid 2: got payload=%q complete=%v", payload, complete)
	}

	payload, complete = r.Feed(pkt.Packet{Fid: 1, Fo: 1, Flags: 0, Data: []byte("a2")})
	if !complete || string(payload) != "a1a2" {
		t.Fatalf("fid 1: got payload=%q complete=%v", payload, complete)
	}
}

func TestReassemblyDuplicateOffsetOverwrites(t *testing.T) {
	r := New()
	r.Feed(pkt.Packet{Fid: 7, Fo: 0, Flags: pkt.FlagMorebits, Data: []byte("x")})
	payload, complete := r.Feed(pkt.Packet{Fid: 7, Fo: 0, Flags: pkt.FlagMorebits, Data: []byte("y")})
	if complete {
		t.Fatalf("should still be waiting for the last fragment")
	}
	_ = payload

	payload, complete = r.Feed(pkt.Packet{Fid: 7, Fo: 1, Flags: 0, Data: []byte("z")})
	if !complete || string(payload) != "yz" {
		t.Fatalf("expected the later offset-0 write to win: got %q", payload)
	}
}

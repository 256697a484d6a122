package pkt

import (
	"bytes"
	"testing"

	"github.com/google/uuid"
)

func samplePacket() Packet {
	return Packet{
		SID:    uuid.New(),
		Sttl:   123456,
		Flags:  FlagAck | FlagMorebits,
		Seqnum: 42,
		Acknum: 41,
		Window: 4096,
		Fid:    3,
		Fo:     1,
		Data:   []byte("hello world"),
	}
}

func TestRoundTrip(t *testing.T) {
	p := samplePacket()

	raw, err := p.Serialize()
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}

	got, err := Deserialize(raw)
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}

	if got.SID != p.SID || got.Sttl != p.Sttl || got.Flags != p.Flags ||
		got.Seqnum != p.Seqnum || got.Acknum != p.Acknum || got.Window != p.Window ||
		got.Fid != p.Fid || got.Fo != p.Fo || !bytes.Equal(got.Data, p.Data) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, p)
	}
}

func TestRoundTripEmptyData(t *testing.T) {
	p := samplePacket()
	p.Data = nil

	raw, err := p.Serialize()
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	if len(raw) != 32 {
		t.Fatalf("expected 32-byte output for empty data, got %d", len(raw))
	}

	got, err := Deserialize(raw)
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	if len(got.Data) != 0 {
		t.Fatalf("expected empty data, got %d bytes", len(got.Data))
	}
}

func TestSerializeRejectsOversizedPayload(t *testing.T) {
	p := samplePacket()
	p.Data = make([]byte, 1441)

	_, err := p.Serialize()
	if err != ErrPayloadTooLarge {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestDeserializeRejectsTruncated(t *testing.T) {
	_, err := Deserialize(make([]byte, 31))
	if err != ErrPacketTruncated {
		t.Fatalf("expected ErrPacketTruncated, got %v", err)
	}
}

func TestFlagSttlPackingAllOnes(t *testing.T) {
	p := Packet{Sttl: 0x07FFFFFF, Flags: 0x1F}
	raw, err := p.Serialize()
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	want := []byte{0xFF, 0xFF, 0xFF, 0xFF}
	if !bytes.Equal(raw[16:20], want) {
		t.Fatalf("packed word = %x, want %x", raw[16:20], want)
	}
}

func TestFlagSttlPackingSttlOne(t *testing.T) {
	p := Packet{Sttl: 1, Flags: 0}
	raw, err := p.Serialize()
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	want := []byte{0x20, 0x00, 0x00, 0x00}
	if !bytes.Equal(raw[16:20], want) {
		t.Fatalf("packed word = %x, want %x", raw[16:20], want)
	}
}

func TestDeserializeThenSerializeReproducesBytes(t *testing.T) {
	p := samplePacket()
	raw, err := p.Serialize()
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}

	got, err := Deserialize(raw)
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}

	raw2, err := got.Serialize()
	if err != nil {
		t.Fatalf("re-serialize: %v", err)
	}

	if !bytes.Equal(raw, raw2) {
		t.Fatalf("re-serialized bytes differ:\ngot  %x\nwant %x", raw2, raw)
	}
}

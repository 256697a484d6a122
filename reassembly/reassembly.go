// Package reassembly reorders and concatenates inbound fragments,
// grouped by fragment identifier (fid), into complete logical
// payloads. Fragments for different fids are independent and may
// interleave.
package reassembly

import "github.com/gmelodie/slowperipheral/pkt"

type buffer struct {
	parts     map[uint8][]byte
	sawLast   bool
	maxOffset uint8
}

// Reassembler holds one buffer per inbound fid currently in progress.
type Reassembler struct {
	buffers map[uint8]*buffer
}

// New creates an empty Reassembler.
func New() *Reassembler {
	return &Reassembler{buffers: make(map[uint8]*buffer)}
}

// Feed stores p.Data at offset p.Fo within p.Fid's buffer. It returns
// the complete payload and true once every offset from 0 to the
// fragment whose MOREBITS is clear has been received; the fid's
// buffer is discarded at that point.
func (r *Reassembler) Feed(p pkt.Packet) (payload []byte, complete bool) {
	b, ok := r.buffers[p.Fid]
	if !ok {
		b = &buffer{parts: make(map[uint8][]byte)}
		r.buffers[p.Fid] = b
	}

	data := make([]byte, len(p.Data))
	copy(data, p.Data)
	b.parts[p.Fo] = data

	if !p.Flags.Has(pkt.FlagMorebits) {
		b.sawLast = true
		b.maxOffset = p.Fo
	}

	if !b.sawLast || len(b.parts) != int(b.maxOffset)+1 {
		return nil, false
	}

	var out []byte
	for i := 0; i <= int(b.maxOffset); i++ {
		chunk, ok := b.parts[uint8(i)]
		if !ok {
			return nil, false // gap: a required offset hasn't arrived yet
		}
		out = append(out, chunk...)
	}

	delete(r.buffers, p.Fid)
	return out, true
}

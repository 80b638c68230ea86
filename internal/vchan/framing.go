// Package vchan implements the virtual-channel chunking and reassembly
// layer shared by the CLIPRDR and RDPDR clients. A single logical PDU is
// split into fixed-size chunks for the outbound direction and reassembled
// from chunks for the inbound direction; both directions share the same
// 8-byte channel PDU header (total_length, flags).
package vchan

import (
	"encoding/binary"

	"github.com/wfetut/rdpclient/internal/rdperrors"
)

// Flag bits carried on every chunk of a channel PDU.
const (
	FlagFirst        uint32 = 0x00000001
	FlagLast         uint32 = 0x00000002
	FlagShowProtocol uint32 = 0x00000010
)

// ChunkLength is the maximum size of a single chunk's payload.
const ChunkLength = 16384

// MaxMessageSize is the maximum total size of a reassembled logical PDU.
const MaxMessageSize = 2 * 1024 * 1024

// HeaderSize is the size in bytes of the channel PDU header: total_length
// (u32) followed by flags (u32).
const HeaderSize = 8

// EncodeChunks splits inner into a sequence of wire-ready chunks, each
// prefixed with the channel PDU header. extraFlags (e.g. FlagShowProtocol)
// are copied onto every chunk verbatim; FlagFirst and FlagLast are set by
// this function on the first and last chunk respectively. A zero-length
// inner still produces exactly one chunk, carrying both FlagFirst and
// FlagLast.
func EncodeChunks(inner []byte, extraFlags uint32) [][]byte {
	total := uint32(len(inner))

	n := len(inner) / ChunkLength
	if len(inner)%ChunkLength != 0 || len(inner) == 0 {
		n++
	}

	chunks := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		start := i * ChunkLength
		end := start + ChunkLength
		if end > len(inner) {
			end = len(inner)
		}
		payload := inner[start:end]

		flags := extraFlags
		if i == 0 {
			flags |= FlagFirst
		}
		if i == n-1 {
			flags |= FlagLast
		}

		chunk := make([]byte, HeaderSize+len(payload))
		binary.LittleEndian.PutUint32(chunk[0:4], total)
		binary.LittleEndian.PutUint32(chunk[4:8], flags)
		copy(chunk[HeaderSize:], payload)
		chunks = append(chunks, chunk)
	}

	return chunks
}

// Reassembler accumulates chunks for a single virtual channel stream and
// emits the reassembled logical PDU once LAST is observed. Callers own one
// Reassembler per channel; inbound chunks for that channel must be fed in
// wire order.
type Reassembler struct {
	channel     string
	started     bool
	totalLength uint32
	buf         []byte
}

// NewReassembler returns a Reassembler for the named channel, used only to
// annotate PROTOCOL errors raised during reassembly.
func NewReassembler(channel string) *Reassembler {
	return &Reassembler{channel: channel}
}

// Feed consumes one wire chunk. It returns the reassembled payload and true
// once a chunk carrying LAST has been consumed; otherwise it returns
// (nil, false) while more chunks are expected.
func (r *Reassembler) Feed(chunk []byte) ([]byte, bool, error) {
	if len(chunk) < HeaderSize {
		return nil, false, rdperrors.Protocol(r.channel, "channel PDU shorter than header")
	}

	totalLength := binary.LittleEndian.Uint32(chunk[0:4])
	flags := binary.LittleEndian.Uint32(chunk[4:8])
	payload := chunk[HeaderSize:]

	if flags&FlagFirst != 0 {
		if totalLength > MaxMessageSize {
			return nil, false, rdperrors.Protocolf(r.channel, "total_length %d exceeds max message size %d", totalLength, MaxMessageSize)
		}
		r.started = true
		r.totalLength = totalLength
		r.buf = make([]byte, 0, totalLength)
	} else if !r.started {
		return nil, false, rdperrors.Protocol(r.channel, "chunk received without a prior FIRST")
	}

	if uint64(len(r.buf))+uint64(len(payload)) > uint64(r.totalLength) {
		r.started = false
		r.buf = nil
		return nil, false, rdperrors.Protocol(r.channel, "reassembled bytes exceed declared total_length")
	}

	r.buf = append(r.buf, payload...)

	if flags&FlagLast == 0 {
		return nil, false, nil
	}

	if uint32(len(r.buf)) != r.totalLength {
		r.started = false
		r.buf = nil
		return nil, false, rdperrors.Protocolf(r.channel, "LAST chunk reassembled %d bytes, want %d", len(r.buf), r.totalLength)
	}

	out := r.buf
	r.started = false
	r.buf = nil
	return out, true, nil
}

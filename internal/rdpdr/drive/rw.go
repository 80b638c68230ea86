package drive

import (
	"encoding/binary"

	"github.com/wfetut/rdpclient/internal/rdperrors"
	"github.com/wfetut/rdpclient/internal/rdpdr"
)

// readRequestSize is the fixed DR_READ_REQ body: Length, Offset, then 20
// reserved bytes.
const readRequestSize = 32

// ReadRequest is the decoded body of an IRP_MJ_READ.
type ReadRequest struct {
	Length uint32
	Offset uint64
}

// DecodeReadRequest parses a DR_READ_REQ body.
func DecodeReadRequest(body []byte) (ReadRequest, error) {
	if len(body) < readRequestSize {
		return ReadRequest{}, rdperrors.Protocol(rdpdr.ChannelName, "DR_READ_REQ shorter than fixed body")
	}
	return ReadRequest{
		Length: binary.LittleEndian.Uint32(body[0:4]),
		Offset: binary.LittleEndian.Uint64(body[4:12]),
	}, nil
}

// EncodeReadResponse builds the DR_READ_RSP body: Length then ReadData.
func EncodeReadResponse(data []byte) []byte {
	out := make([]byte, 4+len(data))
	binary.LittleEndian.PutUint32(out[0:4], uint32(len(data)))
	copy(out[4:], data)
	return out
}

// writeRequestFixedSize is the DR_WRITE_REQ fixed prefix preceding
// WriteData: Length, Offset, then 20 reserved bytes.
const writeRequestFixedSize = 32

// WriteRequest is the decoded body of an IRP_MJ_WRITE.
type WriteRequest struct {
	Offset uint64
	Data   []byte
}

// DecodeWriteRequest parses a DR_WRITE_REQ body.
func DecodeWriteRequest(body []byte) (WriteRequest, error) {
	if len(body) < writeRequestFixedSize {
		return WriteRequest{}, rdperrors.Protocol(rdpdr.ChannelName, "DR_WRITE_REQ shorter than fixed header")
	}
	length := binary.LittleEndian.Uint32(body[0:4])
	offset := binary.LittleEndian.Uint64(body[4:12])
	if uint32(len(body)-writeRequestFixedSize) < length {
		return WriteRequest{}, rdperrors.Protocol(rdpdr.ChannelName, "DR_WRITE_REQ data shorter than declared length")
	}
	return WriteRequest{
		Offset: offset,
		Data:   body[writeRequestFixedSize : writeRequestFixedSize+length],
	}, nil
}

// EncodeWriteResponse builds the DR_WRITE_RSP body: bytes-written length
// plus a single padding byte.
func EncodeWriteResponse(bytesWritten uint32) []byte {
	out := make([]byte, 5)
	binary.LittleEndian.PutUint32(out[0:4], bytesWritten)
	return out
}

package drive

import (
	"encoding/binary"

	"github.com/wfetut/rdpclient/internal/rdperrors"
	"github.com/wfetut/rdpclient/internal/rdpdr"
)

// setInformationRequestFixedSize is the DR_SET_INFORMATION_REQ fixed
// prefix preceding SetBuffer: FileInformationClass, Length, then 24
// reserved bytes.
const setInformationRequestFixedSize = 32

// SetInformationRequest is the decoded body of an IRP_MJ_SET_INFORMATION.
type SetInformationRequest struct {
	FileInformationClass uint32
	SetBuffer             []byte
}

// DecodeSetInformationRequest parses a DR_SET_INFORMATION_REQ body.
func DecodeSetInformationRequest(body []byte) (SetInformationRequest, error) {
	if len(body) < setInformationRequestFixedSize {
		return SetInformationRequest{}, rdperrors.Protocol(rdpdr.ChannelName, "DR_SET_INFORMATION_REQ shorter than fixed header")
	}
	length := binary.LittleEndian.Uint32(body[4:8])
	if uint32(len(body)-setInformationRequestFixedSize) < length {
		return SetInformationRequest{}, rdperrors.Protocol(rdpdr.ChannelName, "DR_SET_INFORMATION_REQ buffer shorter than declared length")
	}
	return SetInformationRequest{
		FileInformationClass: binary.LittleEndian.Uint32(body[0:4]),
		SetBuffer:             body[setInformationRequestFixedSize : setInformationRequestFixedSize+length],
	}, nil
}

// EncodeSetInformationResponse builds the DR_SET_INFORMATION_RSP body: the
// request's Length, echoed.
func EncodeSetInformationResponse(length uint32) []byte {
	out := make([]byte, 4)
	binary.LittleEndian.PutUint32(out[0:4], length)
	return out
}

// RenameInformation is the decoded FileRenameInformation SetBuffer.
type RenameInformation struct {
	ReplaceIfExists bool
	NewName         string
}

// DecodeRenameInformation parses a FileRenameInformation SetBuffer:
// ReplaceIfExists, RootDirectory, FileNameLength, then the UTF-16LE name.
func DecodeRenameInformation(buf []byte) (RenameInformation, error) {
	const fixed = 9
	if len(buf) < fixed {
		return RenameInformation{}, rdperrors.Protocol(rdpdr.ChannelName, "FileRenameInformation shorter than fixed header")
	}
	nameLen := binary.LittleEndian.Uint32(buf[5:9])
	if uint32(len(buf)-fixed) < nameLen {
		return RenameInformation{}, rdperrors.Protocol(rdpdr.ChannelName, "FileRenameInformation name shorter than declared length")
	}
	return RenameInformation{
		ReplaceIfExists: buf[0] != 0,
		NewName:         decodeUTF16Path(buf[fixed : fixed+nameLen]),
	}, nil
}

// DecodeDispositionInformation parses a FileDispositionInformation
// SetBuffer: a single DeletePending byte (absent means "set pending",
// matching Windows' empty-buffer convention for this class).
func DecodeDispositionInformation(buf []byte) bool {
	if len(buf) == 0 {
		return true
	}
	return buf[0] != 0
}

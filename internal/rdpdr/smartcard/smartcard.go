// Package smartcard implements the RDPDR smart-card IOCTL passthrough
// adapter: it decodes the DR_CONTROL_REQ carried on every
// IRP_MJ_DEVICE_CONTROL directed at the smart-card device id, forwards the
// opaque IOCTL to the embedding host's smart-card emulation over the TDP
// boundary, and encodes the DR_CONTROL_RSP reply. It never inspects the
// APDU bytes it carries; per spec.md §1 the smart-card emulation's
// internals are out of scope for this core.
package smartcard

import (
	"encoding/binary"

	"github.com/wfetut/rdpclient/internal/rdperrors"
	"github.com/wfetut/rdpclient/internal/rdpdr"
	"github.com/wfetut/rdpclient/internal/tdp"
)

// controlReqFixedSize is the DR_CONTROL_REQ fixed prefix: OutputBufferLength,
// InputBufferLength, IoControlCode, then a 20-byte padding block that
// precedes InputBuffer.
const controlReqFixedSize = 32

// DecodeControlRequest parses a DR_CONTROL_REQ body (the bytes following
// the DeviceIORequest header) into the opaque IOCTL record handed to the
// host's smart-card adapter.
func DecodeControlRequest(body []byte) (tdp.SmartCardIOCTL, error) {
	if len(body) < controlReqFixedSize {
		return tdp.SmartCardIOCTL{}, rdperrors.Protocol(rdpdr.ChannelName, "DR_CONTROL_REQ shorter than fixed header")
	}

	inputBufferLength := binary.LittleEndian.Uint32(body[4:8])
	ioControlCode := binary.LittleEndian.Uint32(body[8:12])

	input := body[controlReqFixedSize:]
	if uint32(len(input)) < inputBufferLength {
		return tdp.SmartCardIOCTL{}, rdperrors.Protocol(rdpdr.ChannelName, "DR_CONTROL_REQ input buffer shorter than declared length")
	}

	return tdp.SmartCardIOCTL{
		IOCTLCode: ioControlCode,
		Input:     input[:inputBufferLength],
	}, nil
}

// EncodeControlResponse builds the DR_CONTROL_RSP body: OutputBufferLength
// followed by the output bytes.
func EncodeControlResponse(result tdp.SmartCardIOCTLResult) []byte {
	out := make([]byte, 4+len(result.Output))
	binary.LittleEndian.PutUint32(out[0:4], uint32(len(result.Output)))
	copy(out[4:], result.Output)
	return out
}

// HandleDeviceControl decodes req, forwards it to send (the host's
// smart-card adapter boundary), and returns the DEVICE_IOCOMPLETION body
// (the fixed completion header plus the DR_CONTROL_RSP) to emit in reply.
// send must itself apply any timeout/cancellation; this adapter has no
// opinion on how the host implements the passthrough.
func HandleDeviceControl(deviceID, completionID uint32, req rdpdr.DeviceIORequest, body []byte, send func(tdp.SmartCardIOCTL) (tdp.SmartCardIOCTLResult, error)) ([]byte, error) {
	ioctl, err := DecodeControlRequest(body)
	if err != nil {
		return nil, err
	}

	result, err := send(ioctl)
	if err != nil {
		return nil, rdperrors.TDPOpFailed(rdpdr.ChannelName, "smart-card IOCTL passthrough failed", err)
	}

	completion := rdpdr.EncodeDeviceIOCompletionHeader(deviceID, completionID, result.NTStatus)
	return append(completion, EncodeControlResponse(result)...), nil
}

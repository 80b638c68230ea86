// Package rdpdr implements the RDPDR (MS-RDPEFS) device-redirection
// channel's shared header, capability negotiation, and device I/O request
// framing. The directory/drive IRP dispatch lives in the drive
// subpackage; the smart-card IOCTL passthrough lives in the smartcard
// subpackage.
package rdpdr

import (
	"encoding/binary"

	"github.com/wfetut/rdpclient/internal/rdperrors"
)

// ChannelName is the virtual channel name RDPDR registers under.
const ChannelName = "rdpdr"

// Component values for the shared header.
const (
	ComponentCore    uint16 = 0x4472
	ComponentPrinter uint16 = 0x5052 // always ignored
)

// Packet ids, server→client and client→server.
const (
	PacketIDCoreServerAnnounce     uint16 = 0x496E
	PacketIDCoreClientAnnounceRepl uint16 = 0x4341
	PacketIDCoreClientName         uint16 = 0x434E
	PacketIDCoreServerCapability   uint16 = 0x5350
	PacketIDCoreClientCapability   uint16 = 0x4350
	PacketIDCoreClientIDConfirm    uint16 = 0x4343
	PacketIDCoreDeviceListAnnounce uint16 = 0x4441
	PacketIDCoreDeviceReply        uint16 = 0x6472
	PacketIDCoreDeviceIORequest    uint16 = 0x4952
	PacketIDCoreDeviceIOCompletion uint16 = 0x4943
)

// HeaderSize is the wire size of the RDPDR shared header.
const HeaderSize = 4

// Header is the 4-byte RDPDR shared header: component, packet_id, both
// little-endian.
type Header struct {
	Component uint16
	PacketID  uint16
}

// Encode serializes h followed by body into a single inner PDU.
func (h Header) Encode(body []byte) []byte {
	out := make([]byte, HeaderSize+len(body))
	binary.LittleEndian.PutUint16(out[0:2], h.Component)
	binary.LittleEndian.PutUint16(out[2:4], h.PacketID)
	copy(out[HeaderSize:], body)
	return out
}

// DecodeHeader parses the shared header from the front of buf, returning
// the header and the remaining body bytes.
func DecodeHeader(buf []byte) (Header, []byte, error) {
	if len(buf) < HeaderSize {
		return Header{}, nil, rdperrors.Protocol(ChannelName, "RDPDR PDU shorter than shared header")
	}
	h := Header{
		Component: binary.LittleEndian.Uint16(buf[0:2]),
		PacketID:  binary.LittleEndian.Uint16(buf[2:4]),
	}
	return h, buf[HeaderSize:], nil
}

// IRP major functions relevant to this core.
const (
	IRPMjCreate              uint32 = 0x00000000
	IRPMjClose               uint32 = 0x00000002
	IRPMjRead                uint32 = 0x00000003
	IRPMjWrite               uint32 = 0x00000004
	IRPMjDeviceControl       uint32 = 0x0000000E
	IRPMjQueryVolumeInfo     uint32 = 0x0000000A
	IRPMjSetVolumeInfo       uint32 = 0x0000000B
	IRPMjDirectoryControl    uint32 = 0x0000000C
	IRPMjQueryInformation    uint32 = 0x00000005
	IRPMjSetInformation      uint32 = 0x00000006
	IRPMjLockControl         uint32 = 0x00000011
)

// IRP minor functions, meaningful only under IRPMjDirectoryControl.
const (
	IRPMnQueryDirectory uint32 = 0x00000001
	IRPMnNotifyChange   uint32 = 0x00000002
)

// DeviceIORequestSize is the wire size of the device I/O request header
// that follows the RDPDR shared header on every DEVICE_IOREQUEST PDU.
const DeviceIORequestSize = 20

// DeviceIORequest is the fixed header carried on every inbound
// DEVICE_IOREQUEST. MinorFunction is meaningful only when MajorFunction is
// IRPMjDirectoryControl; DecodeDeviceIORequest forces it to 0 otherwise,
// regardless of the wire value.
type DeviceIORequest struct {
	DeviceID      uint32
	FileID        uint32
	CompletionID  uint32
	MajorFunction uint32
	MinorFunction uint32
}

// DecodeDeviceIORequest parses the 20-byte device I/O request header from
// the front of buf, returning it and the remaining body.
func DecodeDeviceIORequest(buf []byte) (DeviceIORequest, []byte, error) {
	if len(buf) < DeviceIORequestSize {
		return DeviceIORequest{}, nil, rdperrors.Protocol(ChannelName, "DEVICE_IOREQUEST shorter than fixed header")
	}
	r := DeviceIORequest{
		DeviceID:      binary.LittleEndian.Uint32(buf[0:4]),
		FileID:        binary.LittleEndian.Uint32(buf[4:8]),
		CompletionID:  binary.LittleEndian.Uint32(buf[8:12]),
		MajorFunction: binary.LittleEndian.Uint32(buf[12:16]),
		MinorFunction: binary.LittleEndian.Uint32(buf[16:20]),
	}
	if r.MajorFunction != IRPMjDirectoryControl {
		r.MinorFunction = 0
	}
	return r, buf[DeviceIORequestSize:], nil
}

// EncodeDeviceIOCompletionHeader builds the fixed header of a
// DEVICE_IOCOMPLETION reply: device_id, completion_id, io_status.
func EncodeDeviceIOCompletionHeader(deviceID, completionID, ntStatus uint32) []byte {
	out := make([]byte, 12)
	binary.LittleEndian.PutUint32(out[0:4], deviceID)
	binary.LittleEndian.PutUint32(out[4:8], completionID)
	binary.LittleEndian.PutUint32(out[8:12], ntStatus)
	return out
}

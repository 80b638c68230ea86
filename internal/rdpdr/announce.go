package rdpdr

import (
	"encoding/binary"

	"github.com/wfetut/rdpclient/internal/rdperrors"
)

// ServerAnnounce is the decoded SERVER_ANNOUNCE_REQ body.
type ServerAnnounce struct {
	VersionMajor uint16
	VersionMinor uint16
	ClientID     uint32
}

// DecodeServerAnnounce parses a SERVER_ANNOUNCE_REQ body. The client never
// assumes VersionMajor/VersionMinor equal its own fixed version; they are
// only logged.
func DecodeServerAnnounce(body []byte) (ServerAnnounce, error) {
	if len(body) < 8 {
		return ServerAnnounce{}, rdperrors.Protocol(ChannelName, "SERVER_ANNOUNCE_REQ shorter than fixed body")
	}
	return ServerAnnounce{
		VersionMajor: binary.LittleEndian.Uint16(body[0:2]),
		VersionMinor: binary.LittleEndian.Uint16(body[2:4]),
		ClientID:     binary.LittleEndian.Uint32(body[4:8]),
	}, nil
}

// DeviceReply is the decoded SERVER_DEVICE_REPLY body.
type DeviceReply struct {
	DeviceID   uint32
	ResultCode uint32
}

// DecodeDeviceReply parses a SERVER_DEVICE_REPLY body.
func DecodeDeviceReply(body []byte) (DeviceReply, error) {
	if len(body) < 8 {
		return DeviceReply{}, rdperrors.Protocol(ChannelName, "SERVER_DEVICE_REPLY shorter than fixed body")
	}
	return DeviceReply{
		DeviceID:   binary.LittleEndian.Uint32(body[0:4]),
		ResultCode: binary.LittleEndian.Uint32(body[4:8]),
	}, nil
}

// ServerCapabilitySet is one capability set header the server sent during
// the CAPABILITY exchange: type, version, raw body. The client logs these
// but never adapts its own behavior to them, per the Open Question
// resolution in spec.md §9.
type ServerCapabilitySet struct {
	CapabilityType uint16
	Version        uint32
	Body           []byte
}

// DecodeServerCapabilitySets parses the SERVER_CAPABILITY body's list of
// capability set headers.
func DecodeServerCapabilitySets(body []byte) ([]ServerCapabilitySet, error) {
	if len(body) < 4 {
		return nil, rdperrors.Protocol(ChannelName, "SERVER_CAPABILITY shorter than fixed header")
	}
	count := binary.LittleEndian.Uint16(body[0:2])

	sets := make([]ServerCapabilitySet, 0, count)
	offset := 4
	for i := uint16(0); i < count; i++ {
		if offset+8 > len(body) {
			return nil, rdperrors.Protocol(ChannelName, "SERVER_CAPABILITY truncated capability set header")
		}
		capType := binary.LittleEndian.Uint16(body[offset : offset+2])
		length := binary.LittleEndian.Uint16(body[offset+2 : offset+4])
		version := binary.LittleEndian.Uint32(body[offset+4 : offset+8])
		if int(length) < 8 || offset+int(length) > len(body) {
			return nil, rdperrors.Protocol(ChannelName, "SERVER_CAPABILITY capability set length out of range")
		}
		sets = append(sets, ServerCapabilitySet{CapabilityType: capType, Version: version, Body: body[offset+8 : offset+int(length)]})
		offset += int(length)
	}
	return sets, nil
}

// Package cliprdr implements the wire format of the CLIPRDR (MS-RDPECLIP)
// clipboard virtual channel: the PDU header, message type and flag
// constants, and the file-list descriptor codec. The client-side state
// machine lives in the client subpackage.
package cliprdr

import (
	"encoding/binary"
	"unicode/utf16"

	"github.com/wfetut/rdpclient/internal/rdperrors"
)

// ChannelName is the virtual channel name CLIPRDR registers under.
const ChannelName = "cliprdr"

// Message types, per the clipboard PDU header.
const (
	MsgTypeMonitorReady        uint16 = 1
	MsgTypeFormatList          uint16 = 2
	MsgTypeFormatListResponse  uint16 = 3
	MsgTypeFormatDataRequest   uint16 = 4
	MsgTypeFormatDataResponse  uint16 = 5
	MsgTypeTempDirectory       uint16 = 6
	MsgTypeClipCaps            uint16 = 7
	MsgTypeFileContentsRequest uint16 = 8
	MsgTypeFileContentsResp    uint16 = 9
	MsgTypeLockClipData        uint16 = 10
	MsgTypeUnlockClipData      uint16 = 11
)

// Header flags.
const (
	FlagResponseOK   uint16 = 0x0001
	FlagResponseFail uint16 = 0x0002
	FlagASCIINames   uint16 = 0x0004
)

// General capability set flags advertised in CB_CLIP_CAPS.
const (
	CapUseLongFormatNames     uint32 = 0x00000002
	CapStreamFileclipEnabled  uint32 = 0x00000004
	GeneralCapabilityVersion2 uint16 = 2
)

// CFOEMText is the format id this core populates from the host's
// clipboard: OEM (8-bit) text.
const CFOEMText uint32 = 7

// FileListFormatName is the long format name that marks a format as a
// Windows Explorer file-list descriptor set.
const FileListFormatName = "FileGroupDescriptorW"

// HeaderSize is the wire size of the clipboard PDU header.
const HeaderSize = 8

// Header is the 8-byte clipboard PDU header: msg_type, msg_flags, data_len,
// all little-endian.
type Header struct {
	MsgType  uint16
	MsgFlags uint16
	DataLen  uint32
}

// Encode serializes h followed by body into a single inner PDU, ready to be
// handed to vchan.EncodeChunks.
func (h Header) Encode(body []byte) []byte {
	out := make([]byte, HeaderSize+len(body))
	binary.LittleEndian.PutUint16(out[0:2], h.MsgType)
	binary.LittleEndian.PutUint16(out[2:4], h.MsgFlags)
	binary.LittleEndian.PutUint32(out[4:8], uint32(len(body)))
	copy(out[HeaderSize:], body)
	return out
}

// DecodeHeader parses the clipboard PDU header from the front of buf,
// returning the header and the remaining body bytes.
func DecodeHeader(buf []byte) (Header, []byte, error) {
	if len(buf) < HeaderSize {
		return Header{}, nil, rdperrors.Protocol(ChannelName, "clipboard PDU shorter than header")
	}
	h := Header{
		MsgType:  binary.LittleEndian.Uint16(buf[0:2]),
		MsgFlags: binary.LittleEndian.Uint16(buf[2:4]),
		DataLen:  binary.LittleEndian.Uint32(buf[4:8]),
	}
	body := buf[HeaderSize:]
	if uint32(len(body)) < h.DataLen {
		return Header{}, nil, rdperrors.Protocolf(ChannelName, "clipboard PDU declares data_len %d, have %d", h.DataLen, len(body))
	}
	return h, body[:h.DataLen], nil
}

// EncodeFormatListSingle builds the body of a FORMAT_LIST PDU advertising a
// single LongFormatName entry: the 4-byte format id followed by the
// UTF-16LE NUL-terminated name.
func EncodeFormatListSingle(formatID uint32, name string) []byte {
	u16 := utf16Encode(name)
	body := make([]byte, 4+len(u16)*2)
	binary.LittleEndian.PutUint32(body[0:4], formatID)
	for i, c := range u16 {
		binary.LittleEndian.PutUint16(body[4+i*2:4+i*2+2], c)
	}
	return body
}

// utf16Encode encodes s as UTF-16LE code units including a trailing NUL
// terminator.
func utf16Encode(s string) []uint16 {
	units := make([]uint16, 0, len(s)+1)
	for _, r := range s {
		if r < 0x10000 {
			units = append(units, uint16(r))
			continue
		}
		r -= 0x10000
		units = append(units, uint16(0xD800+(r>>10)), uint16(0xDC00+(r&0x3FF)))
	}
	units = append(units, 0)
	return units
}

// FormatListEntry is one (format_id, format_name) pair inside an inbound
// FORMAT_LIST PDU using the long-format-name encoding.
type FormatListEntry struct {
	FormatID   uint32
	FormatName string
}

// DecodeFormatListLong parses the body of a FORMAT_LIST PDU as a sequence
// of long-format-name entries: repeating {format_id u32, name UTF-16LE
// NUL-terminated} until the body is exhausted.
func DecodeFormatListLong(body []byte) ([]FormatListEntry, error) {
	var entries []FormatListEntry
	for len(body) > 0 {
		if len(body) < 4 {
			return nil, rdperrors.Protocol(ChannelName, "format list entry truncated before format id")
		}
		id := binary.LittleEndian.Uint32(body[0:4])
		body = body[4:]

		var units []uint16
		i := 0
		terminated := false
		for i+1 < len(body) {
			u := binary.LittleEndian.Uint16(body[i : i+2])
			i += 2
			if u == 0 {
				terminated = true
				break
			}
			units = append(units, u)
		}
		if !terminated {
			return nil, rdperrors.Protocol(ChannelName, "format list entry name missing NUL terminator")
		}
		body = body[i:]

		entries = append(entries, FormatListEntry{FormatID: id, FormatName: string(utf16.Decode(units))})
	}
	return entries, nil
}

// EncodeFormatListShortName builds the fixed 36-byte short-format-name
// record used by spec.md's short FORMAT_LIST PDU: a 4-byte format id
// followed by a 32-byte, zero-padded slot for the (possibly empty) name.
func EncodeFormatListShortName(formatID uint32, name string) []byte {
	record := make([]byte, 36)
	binary.LittleEndian.PutUint32(record[0:4], formatID)
	u16 := utf16Encode(name)
	for i, c := range u16 {
		if 4+i*2+2 > 36 {
			break
		}
		binary.LittleEndian.PutUint16(record[4+i*2:4+i*2+2], c)
	}
	return record
}

package rdpdr

import "encoding/binary"

// Version constants fixed by [MS-RDPEFS] compatibility.
const (
	VersionMajor uint16 = 1
	VersionMinor uint16 = 13

	GeneralCapabilityVersion2   uint16 = 2
	SmartcardCapabilityVersion1 uint16 = 1
	DriveCapabilityVersion2     uint16 = 2

	ScardDeviceID uint32 = 1

	ClientName = "teleport"
)

// Device types, carried in a DEVICELIST_ANNOUNCE entry.
const (
	DeviceTypeSerial    uint32 = 0x00000001
	DeviceTypeParallel  uint32 = 0x00000002
	DeviceTypePrinter   uint32 = 0x00000004
	DeviceTypeFileSystem uint32 = 0x00000008
	DeviceTypeSmartcard uint32 = 0x00000020
)

// Capability set types.
const (
	CapabilityTypeGeneral   uint16 = 0x0001
	CapabilityTypePrinter   uint16 = 0x0002
	CapabilityTypePort      uint16 = 0x0003
	CapabilityTypeDrive     uint16 = 0x0004
	CapabilityTypeSmartcard uint16 = 0x0005
)

// General capability extendedPDU flags.
const (
	ExtendedPDUDeviceRemove     uint32 = 0x00000001
	ExtendedPDUClientDisplayName uint32 = 0x00000002
)

const generalIOCode1 uint32 = 0x7fff

// EncodeClientAnnounceReply builds the client's ANNOUNCE_REPLY body:
// version and the echoed client id.
func EncodeClientAnnounceReply(clientID uint32) []byte {
	out := make([]byte, 8)
	binary.LittleEndian.PutUint16(out[0:2], VersionMajor)
	binary.LittleEndian.PutUint16(out[2:4], VersionMinor)
	binary.LittleEndian.PutUint32(out[4:8], clientID)
	return out
}

// EncodeClientName builds the CLIENT_NAME body: ASCII encoding flag,
// reserved code page, name length, then the NUL-terminated ASCII computer
// name.
func EncodeClientName(name string) []byte {
	nameBytes := append([]byte(name), 0)
	out := make([]byte, 12+len(nameBytes))
	binary.LittleEndian.PutUint32(out[0:4], 0) // unicodeFlag = 0 (ASCII)
	binary.LittleEndian.PutUint32(out[4:8], 0) // codePage, reserved
	binary.LittleEndian.PutUint32(out[8:12], uint32(len(nameBytes)))
	copy(out[12:], nameBytes)
	return out
}

// EncodeClientCapability builds the client CAPABILITY response body
// containing the General and Smartcard capability sets, plus Drive iff
// directory sharing is enabled.
func EncodeClientCapability(allowDirectorySharing bool) []byte {
	sets := [][]byte{encodeGeneralCapabilitySet(), encodeSmartcardCapabilitySet()}
	if allowDirectorySharing {
		sets = append(sets, encodeDriveCapabilitySet())
	}

	out := make([]byte, 4)
	binary.LittleEndian.PutUint16(out[0:2], uint16(len(sets)))
	binary.LittleEndian.PutUint16(out[2:4], 0) // padding
	for _, s := range sets {
		out = append(out, s...)
	}
	return out
}

func capabilityHeader(capType uint16, length uint16, version uint32) []byte {
	h := make([]byte, 8)
	binary.LittleEndian.PutUint16(h[0:2], capType)
	binary.LittleEndian.PutUint16(h[2:4], length)
	binary.LittleEndian.PutUint32(h[4:8], version)
	return h
}

func encodeGeneralCapabilitySet() []byte {
	const bodyLen = 36
	body := make([]byte, bodyLen)
	// osType, osVersion: 0
	binary.LittleEndian.PutUint16(body[8:10], VersionMajor)
	binary.LittleEndian.PutUint16(body[10:12], VersionMinor)
	binary.LittleEndian.PutUint32(body[12:16], generalIOCode1)
	// ioCode2: 0
	binary.LittleEndian.PutUint32(body[20:24], ExtendedPDUDeviceRemove|ExtendedPDUClientDisplayName)
	// extraFlags1, extraFlags2: 0
	binary.LittleEndian.PutUint32(body[32:36], 1) // specialTypeDeviceCap

	header := capabilityHeader(CapabilityTypeGeneral, 8+bodyLen, uint32(GeneralCapabilityVersion2))
	return append(header, body...)
}

func encodeSmartcardCapabilitySet() []byte {
	return capabilityHeader(CapabilityTypeSmartcard, 8, uint32(SmartcardCapabilityVersion1))
}

func encodeDriveCapabilitySet() []byte {
	return capabilityHeader(CapabilityTypeDrive, 8, uint32(DriveCapabilityVersion2))
}

// DeviceAnnounce is one entry of a DEVICELIST_ANNOUNCE PDU.
type DeviceAnnounce struct {
	DeviceID         uint32
	DeviceType       uint32
	PreferredDosName string // at most 8 bytes, NUL-padded on the wire
	DeviceData       []byte
}

// EncodeDeviceListAnnounce builds a DEVICELIST_ANNOUNCE body from one or
// more device entries.
func EncodeDeviceListAnnounce(devices []DeviceAnnounce) []byte {
	out := make([]byte, 4)
	binary.LittleEndian.PutUint32(out[0:4], uint32(len(devices)))
	for _, d := range devices {
		entry := make([]byte, 20)
		binary.LittleEndian.PutUint32(entry[0:4], d.DeviceType)
		binary.LittleEndian.PutUint32(entry[4:8], d.DeviceID)

		dosName := make([]byte, 8)
		copy(dosName, d.PreferredDosName)
		copy(entry[8:16], dosName)

		binary.LittleEndian.PutUint32(entry[16:20], uint32(len(d.DeviceData)))
		entry = append(entry, d.DeviceData...)
		out = append(out, entry...)
	}
	return out
}

// SmartcardDeviceAnnounce returns the DEVICELIST_ANNOUNCE entry for the
// smart-card device, which is always announced at ScardDeviceID.
func SmartcardDeviceAnnounce() DeviceAnnounce {
	return DeviceAnnounce{
		DeviceID:         ScardDeviceID,
		DeviceType:       DeviceTypeSmartcard,
		PreferredDosName: "SCARD",
	}
}

// DriveDeviceAnnounce returns the DEVICELIST_ANNOUNCE entry for a shared
// directory: device_data is the UTF-8 (no NUL) drive name, and
// preferred_dos_name is the name truncated to 7 characters and NUL-padded
// to 8, per spec.md §4.3.
func DriveDeviceAnnounce(deviceID uint32, name string) DeviceAnnounce {
	dosName := name
	if len(dosName) > 7 {
		dosName = dosName[:7]
	}
	return DeviceAnnounce{
		DeviceID:         deviceID,
		DeviceType:       DeviceTypeFileSystem,
		PreferredDosName: dosName,
		DeviceData:       []byte(name),
	}
}

package drive

import (
	"encoding/binary"
	"unicode/utf16"

	"github.com/wfetut/rdpclient/internal/tdp"
)

const volumeLabel = "TELEPORT"
const volumeSerial uint32 = 0xFFFF

// fsAttributeFlags ([MS-FSCC] 2.5.1): case-sensitive search, case-preserved
// names, Unicode on disk.
const fsAttributeFlags uint32 = 0x00000001 | 0x00000002 | 0x00000004

const fsAttributeName = "FAT32"
const maxComponentLength = 260

// deviceTypeDisk is [MS-FSCC]'s FILE_DEVICE_DISK.
const deviceTypeDisk uint32 = 0x00000007

// EncodeVolumeInformation builds the QUERY_VOLUME_INFORMATION response
// body for one of the five FsInformationClass levels this core supports,
// or reports false if the level is unsupported (caller replies
// STATUS_UNSUCCESSFUL).
func EncodeVolumeInformation(fsInformationClass uint32, fco *FileCacheObject) ([]byte, bool) {
	switch fsInformationClass {
	case FileFsVolumeInformation:
		return encodeVolumeLabel(fco), true
	case FileFsAttributeInformation:
		return encodeAttributeInformation(), true
	case FileFsSizeInformation, FileFsFullSizeInformation:
		return encodeSizeInformation(fsInformationClass), true
	case FileFsDeviceInformation:
		return encodeDeviceInformation(), true
	default:
		return nil, false
	}
}

func encodeVolumeLabel(fco *FileCacheObject) []byte {
	labelUnits := utf16Encode(volumeLabel)
	out := make([]byte, 18+len(labelUnits))
	binary.LittleEndian.PutUint64(out[0:8], tdp.ToWindowsTime(fco.FSO.LastModified))
	binary.LittleEndian.PutUint32(out[8:12], volumeSerial)
	binary.LittleEndian.PutUint32(out[12:16], uint32(len(labelUnits)))
	// SupportsObjects at out[16]: false.
	copy(out[18:], labelUnits)
	return out
}

func encodeAttributeInformation() []byte {
	nameUnits := utf16Encode(fsAttributeName)
	out := make([]byte, 12+len(nameUnits))
	binary.LittleEndian.PutUint32(out[0:4], fsAttributeFlags)
	binary.LittleEndian.PutUint32(out[4:8], maxComponentLength)
	binary.LittleEndian.PutUint32(out[8:12], uint32(len(nameUnits)))
	copy(out[12:], nameUnits)
	return out
}

func encodeSizeInformation(fsInformationClass uint32) []byte {
	if fsInformationClass == FileFsFullSizeInformation {
		out := make([]byte, 32)
		binary.LittleEndian.PutUint64(out[0:8], 0xFFFFFFFF)   // TotalAllocationUnits
		binary.LittleEndian.PutUint64(out[8:16], 0xFFFFFFFF)  // CallerAvailableAllocationUnits
		binary.LittleEndian.PutUint64(out[16:24], 0xFFFFFFFF) // ActualAvailableAllocationUnits
		binary.LittleEndian.PutUint32(out[24:28], 0xFFFFFFFF) // SectorsPerAllocationUnit
		binary.LittleEndian.PutUint32(out[28:32], 1)          // BytesPerSector
		return out
	}
	out := make([]byte, 24)
	binary.LittleEndian.PutUint64(out[0:8], 0xFFFFFFFF)   // TotalAllocationUnits
	binary.LittleEndian.PutUint64(out[8:16], 0xFFFFFFFF)  // AvailableAllocationUnits
	binary.LittleEndian.PutUint32(out[16:20], 0xFFFFFFFF) // SectorsPerAllocationUnit
	binary.LittleEndian.PutUint32(out[20:24], 1)          // BytesPerSector
	return out
}

func encodeDeviceInformation() []byte {
	out := make([]byte, 8)
	binary.LittleEndian.PutUint32(out[0:4], deviceTypeDisk)
	// Characteristics at out[4:8]: 0.
	return out
}

// utf16Encode encodes s as NUL-terminated UTF-16LE byte pairs.
func utf16Encode(s string) []byte {
	units := utf16.Encode([]rune(s))
	units = append(units, 0)
	out := make([]byte, len(units)*2)
	for i, u := range units {
		binary.LittleEndian.PutUint16(out[i*2:i*2+2], u)
	}
	return out
}

package cliprdr

import (
	"encoding/binary"
	"unicode/utf16"

	"github.com/wfetut/rdpclient/internal/rdperrors"
	"github.com/wfetut/rdpclient/internal/tdp"
)

// FileDescriptorSize is the fixed wire size of one file-list descriptor
// inside a FORMAT_DATA_RESPONSE carrying FileGroupDescriptorW data.
const FileDescriptorSize = 592

// Known file-list descriptor bits. Unknown bits observed on the wire are
// dropped rather than rejected (bit-truncate decoding policy).
const (
	FileDescriptorFlagAttributes uint32 = 0x00000004
	FileDescriptorFlagFileSize   uint32 = 0x00000040
	FileDescriptorFlagWriteTime  uint32 = 0x00000020

	knownDescriptorFlags = FileDescriptorFlagAttributes | FileDescriptorFlagFileSize | FileDescriptorFlagWriteTime

	fileAttrDirectory uint32 = 0x00000010
	fileAttrNormal    uint32 = 0x00000080
	knownFileAttrs            = fileAttrDirectory | fileAttrNormal | 0x00000001 | 0x00000002 | 0x00000004 | 0x00000020 | 0x00000100 | 0x00000400 | 0x00000800 | 0x00002000
)

// FileDescriptor is one parsed entry of a FileGroupDescriptorW file list.
type FileDescriptor struct {
	Flags          uint32
	FileAttributes uint32
	LastWriteTime  uint64 // Windows filetime
	FileSize       uint64
	FileName       string
}

// IsDirectory reports whether the descriptor names a directory.
func (d FileDescriptor) IsDirectory() bool {
	return d.FileAttributes&fileAttrDirectory != 0
}

// DecodeFileList parses a FileGroupDescriptorW FORMAT_DATA_RESPONSE body:
// a little-endian count followed by that many fixed 592-byte descriptors.
func DecodeFileList(buf []byte) ([]FileDescriptor, error) {
	if len(buf) < 4 {
		return nil, rdperrors.Protocol(ChannelName, "file list shorter than count field")
	}
	count := binary.LittleEndian.Uint32(buf[0:4])
	buf = buf[4:]

	descriptors := make([]FileDescriptor, 0, count)
	for i := uint32(0); i < count; i++ {
		start := int(i) * FileDescriptorSize
		end := start + FileDescriptorSize
		if end > len(buf) {
			return nil, rdperrors.Protocolf(ChannelName, "file list declares %d descriptors, truncated at %d", count, i)
		}
		d, err := decodeOneDescriptor(buf[start:end])
		if err != nil {
			return nil, err
		}
		descriptors = append(descriptors, d)
	}
	return descriptors, nil
}

// decodeOneDescriptor parses one 592-byte descriptor. Layout: flags(4),
// reserved(32), file_attributes(4), reserved(16), last_write_time(8),
// file_size_high(4), file_size_low(4), file_name UTF-16LE NUL-terminated up
// to 260 code units (520 bytes).
func decodeOneDescriptor(rec []byte) (FileDescriptor, error) {
	if len(rec) != FileDescriptorSize {
		return FileDescriptor{}, rdperrors.Protocol(ChannelName, "file descriptor is not 592 bytes")
	}

	flags := binary.LittleEndian.Uint32(rec[0:4]) & knownDescriptorFlags
	off := 4 + 32

	fileAttrs := binary.LittleEndian.Uint32(rec[off:off+4]) & knownFileAttrs
	off += 4 + 16

	lastWriteTime := binary.LittleEndian.Uint64(rec[off : off+8])
	off += 8

	sizeHigh := binary.LittleEndian.Uint32(rec[off : off+4])
	off += 4
	sizeLow := binary.LittleEndian.Uint32(rec[off : off+4])
	off += 4
	fileSize := (uint64(sizeHigh) << 32) | uint64(sizeLow)

	nameBytes := rec[off:]
	units := make([]uint16, 0, 260)
	for i := 0; i+1 < len(nameBytes) && len(units) < 260; i += 2 {
		u := binary.LittleEndian.Uint16(nameBytes[i : i+2])
		if u == 0 {
			break
		}
		units = append(units, u)
	}

	return FileDescriptor{
		Flags:          flags,
		FileAttributes: fileAttrs,
		LastWriteTime:  lastWriteTime,
		FileSize:       fileSize,
		FileName:       string(utf16.Decode(units)),
	}, nil
}

// ToFileSystemObject converts a FileDescriptor to the FileSystemObject
// shape used at the TDP boundary, given the POSIX path it resolves to.
func (d FileDescriptor) ToFileSystemObject(path tdp.POSIXPath) tdp.FileSystemObject {
	fileType := tdp.FileTypeFile
	if d.IsDirectory() {
		fileType = tdp.FileTypeDirectory
	}
	return tdp.FileSystemObject{
		LastModified: tdp.FromWindowsTime(d.LastWriteTime),
		Size:         d.FileSize,
		FileType:     fileType,
		Path:         path,
	}
}

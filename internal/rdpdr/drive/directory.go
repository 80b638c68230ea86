package drive

import (
	"encoding/binary"
	"unicode/utf16"

	"github.com/wfetut/rdpclient/internal/rdperrors"
	"github.com/wfetut/rdpclient/internal/rdpdr"
	"github.com/wfetut/rdpclient/internal/tdp"
)

// queryDirectoryRequestFixedSize is the DR_DRIVE_QUERY_DIRECTORY_REQ fixed
// prefix preceding the variable-length Path: Flags, FsInformationClass,
// InitialQuery, PathLength, then 19 reserved bytes. Flags is this core's
// extension carrying SL_RESTART_SCAN (see the directory client's
// supplemental iterator-reset feature); [MS-RDPEFS] itself carries that bit
// on the IRP, not in this body, but no other field is free to hold it.
const queryDirectoryRequestFixedSize = 32

// QueryDirectoryRequest is the decoded body of an
// IRP_MN_QUERY_DIRECTORY request.
type QueryDirectoryRequest struct {
	FsInformationClass uint32
	InitialQuery       bool
	RestartScan        bool
	Path               string
}

// DecodeQueryDirectoryRequest parses a DR_DRIVE_QUERY_DIRECTORY_REQ body.
func DecodeQueryDirectoryRequest(body []byte) (QueryDirectoryRequest, error) {
	if len(body) < queryDirectoryRequestFixedSize {
		return QueryDirectoryRequest{}, rdperrors.Protocol(rdpdr.ChannelName, "DR_DRIVE_QUERY_DIRECTORY_REQ shorter than fixed header")
	}
	flags := binary.LittleEndian.Uint32(body[0:4])
	fsInfoClass := binary.LittleEndian.Uint32(body[4:8])
	initialQuery := body[8] != 0
	pathLen := binary.LittleEndian.Uint32(body[9:13])
	if uint32(len(body)-queryDirectoryRequestFixedSize) < pathLen {
		return QueryDirectoryRequest{}, rdperrors.Protocol(rdpdr.ChannelName, "DR_DRIVE_QUERY_DIRECTORY_REQ path shorter than declared length")
	}
	return QueryDirectoryRequest{
		FsInformationClass: fsInfoClass,
		InitialQuery:       initialQuery,
		RestartScan:        flags&RestartScan != 0,
		Path:               decodeUTF16Path(body[queryDirectoryRequestFixedSize : queryDirectoryRequestFixedSize+pathLen]),
	}, nil
}

// nextDirectoryEntry advances fco's lazy ".", "..", contents[*] cursor and
// returns the next FileSystemObject and display name to report, or false
// once exhausted.
func nextDirectoryEntry(fco *FileCacheObject) (tdp.FileSystemObject, string, bool) {
	if !fco.DotSent {
		fco.DotSent = true
		return tdp.FileSystemObject{FileType: fco.FSO.FileType, LastModified: fco.FSO.LastModified, Path: fco.Path}, ".", true
	}
	if !fco.DotDotSent {
		fco.DotDotSent = true
		return tdp.FileSystemObject{FileType: tdp.FileTypeDirectory, LastModified: fco.FSO.LastModified}, "..", true
	}
	if fco.Cursor >= len(fco.Contents) {
		return tdp.FileSystemObject{}, "", false
	}
	entry := fco.Contents[fco.Cursor]
	fco.Cursor++
	return entry, entry.Path.Base(), true
}

// EncodeDirectoryEntry encodes one FileSystemObject as a fixed-base +
// UTF-16LE(name) record for the requested FileInformationClass.
// next_entry_offset and file_index are always 0, per spec.md §4.4.
func EncodeDirectoryEntry(fsInformationClass uint32, entry tdp.FileSystemObject, name string) []byte {
	nameUTF16 := utf16.Encode([]rune(name))
	nameBytes := make([]byte, len(nameUTF16)*2)
	for i, u := range nameUTF16 {
		binary.LittleEndian.PutUint16(nameBytes[i*2:i*2+2], u)
	}

	wt := tdp.ToWindowsTime(entry.LastModified)
	attrs := attributesFor(entry)

	var fixed []byte
	switch fsInformationClass {
	case FileNamesInformation:
		fixed = make([]byte, 12)
		binary.LittleEndian.PutUint32(fixed[8:12], uint32(len(nameBytes)))
	case FileDirectoryInformation:
		fixed = make([]byte, 64)
		writeDirectoryTimestamps(fixed, wt)
		binary.LittleEndian.PutUint64(fixed[40:48], entry.Size)
		binary.LittleEndian.PutUint64(fixed[48:56], entry.Size)
		binary.LittleEndian.PutUint32(fixed[56:60], attrs)
		binary.LittleEndian.PutUint32(fixed[60:64], uint32(len(nameBytes)))
	case FileFullDirectoryInformation:
		fixed = make([]byte, 68)
		writeDirectoryTimestamps(fixed, wt)
		binary.LittleEndian.PutUint64(fixed[40:48], entry.Size)
		binary.LittleEndian.PutUint64(fixed[48:56], entry.Size)
		binary.LittleEndian.PutUint32(fixed[56:60], attrs)
		binary.LittleEndian.PutUint32(fixed[60:64], uint32(len(nameBytes)))
		// EaSize at [64:68] left 0.
	default: // FileBothDirectoryInformation
		fixed = make([]byte, 94)
		writeDirectoryTimestamps(fixed, wt)
		binary.LittleEndian.PutUint64(fixed[40:48], entry.Size)
		binary.LittleEndian.PutUint64(fixed[48:56], entry.Size)
		binary.LittleEndian.PutUint32(fixed[56:60], attrs)
		binary.LittleEndian.PutUint32(fixed[60:64], uint32(len(nameBytes)))
		// EaSize [64:68], ShortNameLength [68:69], ShortName [70:94] left 0.
	}
	return append(fixed, nameBytes...)
}

// writeDirectoryTimestamps fills CreationTime/LastAccessTime/LastWriteTime/
// ChangeTime, all four set to wt, at the fixed offsets shared by
// FileDirectoryInformation and its Full/Both variants.
func writeDirectoryTimestamps(fixed []byte, wt uint64) {
	binary.LittleEndian.PutUint64(fixed[8:16], wt)
	binary.LittleEndian.PutUint64(fixed[16:24], wt)
	binary.LittleEndian.PutUint64(fixed[24:32], wt)
	binary.LittleEndian.PutUint64(fixed[32:40], wt)
}

// EncodeNoMoreFiles builds the STATUS_NO_MORE_FILES response body: a
// single padding byte, per spec.md §4.4.
func EncodeNoMoreFiles() []byte {
	return []byte{0}
}

package drive

import (
	"encoding/binary"
	"unicode/utf16"

	"github.com/wfetut/rdpclient/internal/rdperrors"
	"github.com/wfetut/rdpclient/internal/rdpdr"
	"github.com/wfetut/rdpclient/internal/tdp"
)

// File attribute bits ([MS-FSCC] 2.6).
const (
	FileAttributeNormal    uint32 = 0x00000080
	FileAttributeDirectory uint32 = 0x00000010
)

// attributesFor returns the FILE_ATTRIBUTE_* value for fso.
func attributesFor(fso tdp.FileSystemObject) uint32 {
	if fso.FileType == tdp.FileTypeDirectory {
		return FileAttributeDirectory
	}
	return FileAttributeNormal
}

// FileInformationClass values ([MS-FSCC] 2.4) this core decodes or emits.
const (
	FileDirectoryInformation     uint32 = 1
	FileFullDirectoryInformation uint32 = 2
	FileBothDirectoryInformation uint32 = 3
	FileBasicInformation         uint32 = 4
	FileStandardInformation      uint32 = 5
	FileNamesInformation         uint32 = 12
	FileRenameInformation        uint32 = 10
	FileDispositionInformation   uint32 = 13
	FileAllocationInformation    uint32 = 19
	FileEndOfFileInformation     uint32 = 20
)

// FsInformationClass values for QUERY_VOLUME_INFORMATION.
const (
	FileFsVolumeInformation    uint32 = 1
	FileFsSizeInformation      uint32 = 3
	FileFsDeviceInformation    uint32 = 4
	FileFsAttributeInformation uint32 = 5
	FileFsFullSizeInformation  uint32 = 7
)

// RestartScan marks IRP_MN_QUERY_DIRECTORY requests that reset the FCO's
// iterator without a fresh SharedDirectoryListRequest, per the directory
// client's SL_RESTART_SCAN extension.
const RestartScan uint32 = 0x00000001

// createRequestFixedSize is the DR_CREATE_REQ fixed prefix preceding the
// variable-length Path.
const createRequestFixedSize = 32

// CreateRequest is the decoded body of an IRP_MJ_CREATE.
type CreateRequest struct {
	DesiredAccess  uint32
	FileAttributes uint32
	CreateOptions  uint32
	Disposition    uint32
	Path           string // converted to POSIX by the caller
}

// DecodeCreateRequest parses a DR_CREATE_REQ body.
func DecodeCreateRequest(body []byte) (CreateRequest, error) {
	if len(body) < createRequestFixedSize {
		return CreateRequest{}, rdperrors.Protocol(rdpdr.ChannelName, "DR_CREATE_REQ shorter than fixed header")
	}
	pathLen := binary.LittleEndian.Uint32(body[24:28])
	if uint32(len(body)-createRequestFixedSize) < pathLen {
		return CreateRequest{}, rdperrors.Protocol(rdpdr.ChannelName, "DR_CREATE_REQ path shorter than declared length")
	}
	return CreateRequest{
		DesiredAccess:  binary.LittleEndian.Uint32(body[0:4]),
		FileAttributes: binary.LittleEndian.Uint32(body[12:16]),
		CreateOptions:  binary.LittleEndian.Uint32(body[20:24]),
		Disposition:    binary.LittleEndian.Uint32(body[16:20]),
		Path:           decodeUTF16Path(body[createRequestFixedSize : createRequestFixedSize+pathLen]),
	}, nil
}

func decodeUTF16Path(b []byte) string {
	units := make([]uint16, 0, len(b)/2)
	for i := 0; i+1 < len(b); i += 2 {
		u := binary.LittleEndian.Uint16(b[i : i+2])
		if u == 0 {
			break
		}
		units = append(units, u)
	}
	return string(utf16.Decode(units))
}

// EncodeCreateResponse builds the DR_CREATE_RSP body: FileId then
// Information, following the fixed completion header.
func EncodeCreateResponse(fileID uint32, information byte) []byte {
	out := make([]byte, 5)
	binary.LittleEndian.PutUint32(out[0:4], fileID)
	out[4] = information
	return out
}

// EncodeEmptyControlResponse builds the no-op DR_CONTROL_RSP a drive
// device returns for IRP_MJ_DEVICE_CONTROL: an empty OutputBuffer.
func EncodeEmptyControlResponse() []byte {
	out := make([]byte, 4)
	return out
}

// basicInfoSize is the fixed DR_QUERY_INFORMATION response body for
// FileBasicInformation: four Windows-filetime fields plus FileAttributes.
const basicInfoSize = 36

// EncodeBasicInformation builds a FileBasicInformation record from fso.
func EncodeBasicInformation(fso tdp.FileSystemObject) []byte {
	out := make([]byte, basicInfoSize)
	wt := tdp.ToWindowsTime(fso.LastModified)
	binary.LittleEndian.PutUint64(out[0:8], wt)   // CreationTime
	binary.LittleEndian.PutUint64(out[8:16], wt)  // LastAccessTime
	binary.LittleEndian.PutUint64(out[16:24], wt) // LastWriteTime
	binary.LittleEndian.PutUint64(out[24:32], wt) // ChangeTime
	binary.LittleEndian.PutUint32(out[32:36], attributesFor(fso))
	return out
}

// standardInfoSize is the fixed DR_QUERY_INFORMATION response body for
// FileStandardInformation.
const standardInfoSize = 22

// EncodeStandardInformation builds a FileStandardInformation record.
func EncodeStandardInformation(fso tdp.FileSystemObject) []byte {
	out := make([]byte, standardInfoSize)
	binary.LittleEndian.PutUint64(out[0:8], fso.Size)  // AllocationSize
	binary.LittleEndian.PutUint64(out[8:16], fso.Size) // EndOfFile
	binary.LittleEndian.PutUint32(out[16:20], 1)       // NumberOfLinks
	if fso.FileType == tdp.FileTypeDirectory {
		out[20] = 1 // Directory
	}
	return out
}

package rdpdr

import "fmt"

// NTSTATUS values this core produces on the RDPDR channel. Restricted to
// the set named by the directory-client design; [MS-ERREF] defines many
// more.
const (
	StatusSuccess           uint32 = 0x00000000
	StatusUnsuccessful      uint32 = 0xC0000001
	StatusNotSupported      uint32 = 0xC00000BB
	StatusNoMoreFiles       uint32 = 0x80000006
	StatusObjectNameCollision uint32 = 0xC0000035
	StatusAccessDenied      uint32 = 0xC0000022
	StatusNotADirectory     uint32 = 0xC0000103
	StatusNoSuchFile        uint32 = 0xC000000F
	StatusDirectoryNotEmpty uint32 = 0xC0000101
)

// StatusName returns a human-readable name for logging.
func StatusName(status uint32) string {
	switch status {
	case StatusSuccess:
		return "STATUS_SUCCESS"
	case StatusUnsuccessful:
		return "STATUS_UNSUCCESSFUL"
	case StatusNotSupported:
		return "STATUS_NOT_SUPPORTED"
	case StatusNoMoreFiles:
		return "STATUS_NO_MORE_FILES"
	case StatusObjectNameCollision:
		return "STATUS_OBJECT_NAME_COLLISION"
	case StatusAccessDenied:
		return "STATUS_ACCESS_DENIED"
	case StatusNotADirectory:
		return "STATUS_NOT_A_DIRECTORY"
	case StatusNoSuchFile:
		return "STATUS_NO_SUCH_FILE"
	case StatusDirectoryNotEmpty:
		return "STATUS_DIRECTORY_NOT_EMPTY"
	default:
		return fmt.Sprintf("STATUS_0x%08X", status)
	}
}

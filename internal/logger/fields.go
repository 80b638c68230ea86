package logger

import (
	"fmt"
	"log/slog"
)

// Standard field keys for structured logging across the CLIPRDR and RDPDR
// channel clients. Use these keys consistently so log lines from either
// channel line up under the same column names.
const (
	// Channel & session
	KeyChannel   = "channel"    // virtual channel name: cliprdr, rdpdr, rdpsnd
	KeySessionID = "session_id" // host-assigned session identifier
	KeyState     = "state"      // state-machine state name
	KeyFrom      = "from"       // state-machine transition source
	KeyTo        = "to"         // state-machine transition target
	KeyTrigger   = "trigger"    // state-machine transition trigger

	// Framing
	KeyTotalLength = "total_length" // channel PDU total_length field
	KeyChunkLength = "chunk_length" // length of a single emitted/received chunk
	KeyFlags       = "flags"        // raw channel or clipboard header flags

	// CLIPRDR
	KeyFormatID   = "format_id"   // clipboard format id
	KeyFormatName = "format_name" // clipboard long format name
	KeyMsgType    = "msg_type"    // CLIPRDR message type

	// RDPDR
	KeyDeviceID      = "device_id"      // RDPDR device id
	KeyFileID        = "file_id"        // file cache handle
	KeyCompletionID  = "completion_id"  // CompletionId correlating IRP <-> TDP
	KeyMajorFunction = "major_function" // IRP major function
	KeyMinorFunction = "minor_function" // IRP minor function
	KeyNTStatus      = "ntstatus"       // NTSTATUS value returned to the server
	KeyDisposition   = "disposition"    // CreateDisposition value

	// Paths & files
	KeyPath     = "path"      // POSIX path
	KeyWinPath  = "win_path"  // Windows (backslash) path
	KeyFileSize = "file_size" // file size in bytes

	// Misc
	KeyDurationMs = "duration_ms"
	KeyError      = "error"
	KeyEntries    = "entries" // number of directory entries
)

// Channel returns a slog.Attr for the virtual channel name.
func Channel(name string) slog.Attr {
	return slog.String(KeyChannel, name)
}

// SessionID returns a slog.Attr for the session identifier.
func SessionID(id string) slog.Attr {
	return slog.String(KeySessionID, id)
}

// State returns a slog.Attr for a state-machine state name.
func State(name string) slog.Attr {
	return slog.String(KeyState, name)
}

// Transition returns the three slog.Attrs describing a state transition.
func Transition(from, to, trigger string) []any {
	return []any{KeyFrom, from, KeyTo, to, KeyTrigger, trigger}
}

// TotalLength returns a slog.Attr for a channel PDU's total_length field.
func TotalLength(n uint32) slog.Attr {
	return slog.Uint64(KeyTotalLength, uint64(n))
}

// ChunkLength returns a slog.Attr for an individual chunk's length.
func ChunkLength(n int) slog.Attr {
	return slog.Int(KeyChunkLength, n)
}

// Flags returns a slog.Attr formatting a bitmask in hex.
func Flags(f uint32) slog.Attr {
	return slog.String(KeyFlags, fmt.Sprintf("0x%x", f))
}

// FormatID returns a slog.Attr for a clipboard format id.
func FormatID(id uint32) slog.Attr {
	return slog.Uint64(KeyFormatID, uint64(id))
}

// FormatName returns a slog.Attr for a clipboard long format name.
func FormatName(name string) slog.Attr {
	return slog.String(KeyFormatName, name)
}

// MsgType returns a slog.Attr for a CLIPRDR message type.
func MsgType(t uint16) slog.Attr {
	return slog.Uint64(KeyMsgType, uint64(t))
}

// DeviceID returns a slog.Attr for an RDPDR device id.
func DeviceID(id uint32) slog.Attr {
	return slog.Uint64(KeyDeviceID, uint64(id))
}

// FileID returns a slog.Attr for a file cache handle.
func FileID(id uint32) slog.Attr {
	return slog.Uint64(KeyFileID, uint64(id))
}

// CompletionID returns a slog.Attr for a CompletionId.
func CompletionID(id uint32) slog.Attr {
	return slog.Uint64(KeyCompletionID, uint64(id))
}

// MajorFunction returns a slog.Attr for an IRP major function code.
func MajorFunction(code uint32) slog.Attr {
	return slog.String(KeyMajorFunction, fmt.Sprintf("0x%x", code))
}

// MinorFunction returns a slog.Attr for an IRP minor function code.
func MinorFunction(code uint32) slog.Attr {
	return slog.String(KeyMinorFunction, fmt.Sprintf("0x%x", code))
}

// NTStatus returns a slog.Attr formatting an NTSTATUS value in hex.
func NTStatus(status uint32) slog.Attr {
	return slog.String(KeyNTStatus, fmt.Sprintf("0x%08x", status))
}

// Disposition returns a slog.Attr for a CreateDisposition value.
func Disposition(d uint32) slog.Attr {
	return slog.Uint64(KeyDisposition, uint64(d))
}

// Path returns a slog.Attr for a POSIX path.
func Path(p string) slog.Attr {
	return slog.String(KeyPath, p)
}

// WinPath returns a slog.Attr for a Windows path.
func WinPath(p string) slog.Attr {
	return slog.String(KeyWinPath, p)
}

// FileSize returns a slog.Attr for a file size in bytes.
func FileSize(n uint64) slog.Attr {
	return slog.Uint64(KeyFileSize, n)
}

// DurationMs returns a slog.Attr for an operation duration in milliseconds.
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// Entries returns a slog.Attr for a directory entry count.
func Entries(n int) slog.Attr {
	return slog.Int(KeyEntries, n)
}

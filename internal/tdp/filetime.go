package tdp

// windowsEpochDiffMs is the offset, in Windows filetime's 100-ns intervals,
// between the Windows epoch (1601-01-01 UTC) and the Unix epoch
// (1970-01-01 UTC).
const windowsEpochDiffMs = 116444736000000000

// ToWindowsTime converts a Unix timestamp in milliseconds to a Windows
// filetime: 100-nanosecond intervals since 1601-01-01 UTC.
func ToWindowsTime(unixMs int64) uint64 {
	return uint64(unixMs)*10000 + windowsEpochDiffMs
}

// FromWindowsTime converts a Windows filetime back to a Unix timestamp in
// milliseconds. Values below the epoch offset are clamped to zero.
func FromWindowsTime(filetime uint64) int64 {
	if filetime < windowsEpochDiffMs {
		return 0
	}
	return int64((filetime - windowsEpochDiffMs) / 10000)
}

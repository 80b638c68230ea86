package cliprdr

import (
	"encoding/binary"
	"testing"
	"unicode/utf16"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildDescriptor(t *testing.T, flags, fileAttrs uint32, lastWrite uint64, size uint64, name string) []byte {
	t.Helper()
	rec := make([]byte, FileDescriptorSize)
	binary.LittleEndian.PutUint32(rec[0:4], flags)
	off := 4 + 32
	binary.LittleEndian.PutUint32(rec[off:off+4], fileAttrs)
	off += 4 + 16
	binary.LittleEndian.PutUint64(rec[off:off+8], lastWrite)
	off += 8
	binary.LittleEndian.PutUint32(rec[off:off+4], uint32(size>>32))
	off += 4
	binary.LittleEndian.PutUint32(rec[off:off+4], uint32(size&0xFFFFFFFF))
	off += 4

	units := utf16.Encode([]rune(name))
	for i, u := range units {
		binary.LittleEndian.PutUint16(rec[off+i*2:off+i*2+2], u)
	}
	return rec
}

func TestDecodeFileListSingleEntry(t *testing.T) {
	rec := buildDescriptor(t, FileDescriptorFlagFileSize|0x80000000, fileAttrNormal, 132997197660000000, 1234, "report.txt")

	buf := make([]byte, 4+FileDescriptorSize)
	binary.LittleEndian.PutUint32(buf[0:4], 1)
	copy(buf[4:], rec)

	got, err := DecodeFileList(buf)
	require.NoError(t, err)
	require.Len(t, got, 1)

	d := got[0]
	assert.Equal(t, FileDescriptorFlagFileSize, d.Flags, "unknown top bit must be truncated")
	assert.Equal(t, uint32(fileAttrNormal), d.FileAttributes)
	assert.Equal(t, uint64(1234), d.FileSize)
	assert.Equal(t, "report.txt", d.FileName)
	assert.False(t, d.IsDirectory())
}

func TestDecodeFileListDirectory(t *testing.T) {
	rec := buildDescriptor(t, 0, fileAttrDirectory, 0, 0, "subdir")
	buf := make([]byte, 4+FileDescriptorSize)
	binary.LittleEndian.PutUint32(buf[0:4], 1)
	copy(buf[4:], rec)

	got, err := DecodeFileList(buf)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].IsDirectory())
}

func TestDecodeFileListTruncated(t *testing.T) {
	buf := make([]byte, 4+10)
	binary.LittleEndian.PutUint32(buf[0:4], 1)
	_, err := DecodeFileList(buf)
	assert.Error(t, err)
}

func TestDecodeFileListMultiple(t *testing.T) {
	rec1 := buildDescriptor(t, 0, fileAttrNormal, 0, 1, "a.txt")
	rec2 := buildDescriptor(t, 0, fileAttrNormal, 0, 2, "b.txt")

	buf := make([]byte, 4+2*FileDescriptorSize)
	binary.LittleEndian.PutUint32(buf[0:4], 2)
	copy(buf[4:], rec1)
	copy(buf[4+FileDescriptorSize:], rec2)

	got, err := DecodeFileList(buf)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a.txt", got[0].FileName)
	assert.Equal(t, "b.txt", got[1].FileName)
}

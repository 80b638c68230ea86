package client

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfetut/rdpclient/internal/cliprdr"
)

func clipCapsInboundPDU() []byte {
	return cliprdr.Header{MsgType: cliprdr.MsgTypeClipCaps}.Encode(nil)
}

func monitorReadyInboundPDU() []byte {
	return cliprdr.Header{MsgType: cliprdr.MsgTypeMonitorReady}.Encode(nil)
}

// TestClipboardInit covers the end-to-end scenario: feeding CB_CLIP_CAPS
// then CB_MONITOR_READY must yield exactly the MONITOR_READY step's two
// outbound PDUs: CLIP_CAPS advertising USE_LONG_FORMAT_NAMES and a
// FORMAT_LIST with one LongFormatName(id=0, name=empty, data_len=6).
func TestClipboardInit(t *testing.T) {
	c := New(Callbacks{}, nil)
	ctx := context.Background()

	out, err := c.HandlePDU(ctx, clipCapsInboundPDU())
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Equal(t, StateAwaitingMonitorReady, c.state)

	out, err = c.HandlePDU(ctx, monitorReadyInboundPDU())
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, StateReady, c.state)

	capsHeader, capsBody, err := cliprdr.DecodeHeader(out[0].Bytes)
	require.NoError(t, err)
	assert.Equal(t, cliprdr.MsgTypeClipCaps, capsHeader.MsgType)
	assert.True(t, out[0].ShowProtocol)
	// generalFlags is the last 4 bytes of the capability set body.
	generalFlags := uint32(capsBody[len(capsBody)-4]) |
		uint32(capsBody[len(capsBody)-3])<<8 |
		uint32(capsBody[len(capsBody)-2])<<16 |
		uint32(capsBody[len(capsBody)-1])<<24
	assert.Equal(t, cliprdr.CapUseLongFormatNames|cliprdr.CapStreamFileclipEnabled, generalFlags)

	flHeader, flBody, err := cliprdr.DecodeHeader(out[1].Bytes)
	require.NoError(t, err)
	assert.Equal(t, cliprdr.MsgTypeFormatList, flHeader.MsgType)
	assert.Equal(t, uint32(6), flHeader.DataLen)
	assert.True(t, out[1].ShowProtocol)
	assert.Len(t, flBody, 6)
}

// TestLocalCopy covers: UpdateLocalClipboard("abc") caches "abc\0" and
// advertises format id 7 only.
func TestLocalCopy(t *testing.T) {
	c := New(Callbacks{}, nil)
	out := c.UpdateLocalClipboard([]byte("abc"))

	assert.Equal(t, []byte("abc\x00"), c.oemText)
	require.Len(t, out, 1)

	header, body, err := cliprdr.DecodeHeader(out[0].Bytes)
	require.NoError(t, err)
	assert.Equal(t, cliprdr.MsgTypeFormatList, header.MsgType)
	require.Len(t, body, 36)
	formatID := uint32(body[0]) | uint32(body[1])<<8 | uint32(body[2])<<16 | uint32(body[3])<<24
	assert.Equal(t, cliprdr.CFOEMText, formatID)
}

// TestRemotePasteOfText covers: FORMAT_LIST(id=7) then
// FORMAT_DATA_RESPONSE("abc\0") must deliver "abc" (NUL stripped) to the
// callback.
func TestRemotePasteOfText(t *testing.T) {
	var received []byte
	c := New(Callbacks{OnRemoteClipboard: func(data []byte) { received = data }}, nil)
	c.state = StateReady
	ctx := context.Background()

	flBody := cliprdr.EncodeFormatListSingle(cliprdr.CFOEMText, "")
	flPDU := cliprdr.Header{MsgType: cliprdr.MsgTypeFormatList}.Encode(flBody)
	out, err := c.HandlePDU(ctx, flPDU)
	require.NoError(t, err)
	require.Len(t, out, 2) // FORMAT_LIST_RESPONSE(OK) then FORMAT_DATA_REQUEST

	respHeader, _, err := cliprdr.DecodeHeader(out[0].Bytes)
	require.NoError(t, err)
	assert.Equal(t, cliprdr.MsgTypeFormatListResponse, respHeader.MsgType)

	reqHeader, _, err := cliprdr.DecodeHeader(out[1].Bytes)
	require.NoError(t, err)
	assert.Equal(t, cliprdr.MsgTypeFormatDataRequest, reqHeader.MsgType)

	dataPDU := cliprdr.Header{MsgType: cliprdr.MsgTypeFormatDataResponse, MsgFlags: cliprdr.FlagResponseOK}.Encode([]byte("abc\x00"))
	out, err = c.HandlePDU(ctx, dataPDU)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Equal(t, []byte("abc"), received)
}

// TestLFToCRLFIdempotence is testable property 2: applying
// UpdateLocalClipboard to its own cached output leaves the cache
// unchanged.
func TestLFToCRLFIdempotence(t *testing.T) {
	cases := [][]byte{
		[]byte("line1\nline2\n"),
		[]byte("already\r\ncrlf"),
		[]byte("mixed\r\nand\nlf"),
		[]byte("trailing\x00"),
		{},
	}

	for _, b := range cases {
		c := New(Callbacks{}, nil)
		c.UpdateLocalClipboard(b)
		once := append([]byte{}, c.oemText...)

		c2 := New(Callbacks{}, nil)
		c2.UpdateLocalClipboard(once)
		twice := c2.oemText

		assert.Equal(t, once, twice)
	}
}

func TestFormatDataRequestMiss(t *testing.T) {
	c := New(Callbacks{}, nil)
	ctx := context.Background()

	body := make([]byte, 4)
	body[0] = byte(cliprdr.CFOEMText)
	out, err := c.handleFormatDataRequest(ctx, body)
	require.NoError(t, err)
	require.Len(t, out, 1)

	header, _, err := cliprdr.DecodeHeader(out[0].Bytes)
	require.NoError(t, err)
	assert.Equal(t, cliprdr.MsgTypeFormatDataResponse, header.MsgType)
	assert.Equal(t, cliprdr.FlagResponseFail, header.MsgFlags)
}

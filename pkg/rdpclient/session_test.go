package rdpclient

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfetut/rdpclient/internal/rdpdr"
	"github.com/wfetut/rdpclient/internal/tdp"
	"github.com/wfetut/rdpclient/internal/vchan"
)

// sentPDU records one (channel, packetID, body) tuple handed to
// Callbacks.SendChannelPDU, reassembled back into a logical PDU so tests
// can assert on packet ids without re-deriving chunk framing.
type sentPDU struct {
	channel  string
	packetID uint16
	body     []byte
}

type fakeTransport struct {
	reassemblers map[string]*vchan.Reassembler
	pdus         []sentPDU
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{reassemblers: make(map[string]*vchan.Reassembler)}
}

func (f *fakeTransport) send(channelName string, chunk []byte) error {
	r, ok := f.reassemblers[channelName]
	if !ok {
		r = vchan.NewReassembler(channelName)
		f.reassemblers[channelName] = r
	}
	payload, done, err := r.Feed(chunk)
	if err != nil {
		return err
	}
	if !done {
		return nil
	}

	if channelName != rdpdr.ChannelName {
		f.pdus = append(f.pdus, sentPDU{channel: channelName, body: payload})
		return nil
	}

	header, body, err := rdpdr.DecodeHeader(payload)
	if err != nil {
		return err
	}
	f.pdus = append(f.pdus, sentPDU{channel: channelName, packetID: header.PacketID, body: body})
	return nil
}

func (f *fakeTransport) findByPacketID(packetID uint16) (sentPDU, bool) {
	for _, p := range f.pdus {
		if p.packetID == packetID {
			return p, true
		}
	}
	return sentPDU{}, false
}

func feedChunks(t *testing.T, s *Session, channelName string, inner []byte) error {
	t.Helper()
	var lastErr error
	for _, chunk := range vchan.EncodeChunks(inner, 0) {
		if err := s.HandleChannelPDU(channelName, chunk); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

func serverAnnounceBody(clientID uint32) []byte {
	body := make([]byte, 8)
	binary.LittleEndian.PutUint16(body[0:2], rdpdr.VersionMajor)
	binary.LittleEndian.PutUint16(body[2:4], rdpdr.VersionMinor)
	binary.LittleEndian.PutUint32(body[4:8], clientID)
	return body
}

func serverCapabilityBody() []byte {
	body := make([]byte, 4)
	binary.LittleEndian.PutUint16(body[0:2], 0) // no capability sets, client doesn't negotiate on them
	return body
}

func deviceReplyBody(deviceID, resultCode uint32) []byte {
	body := make([]byte, 8)
	binary.LittleEndian.PutUint32(body[0:4], deviceID)
	binary.LittleEndian.PutUint32(body[4:8], resultCode)
	return body
}

// deviceIORequestBody builds a 20-byte DEVICE_IOREQUEST fixed header
// followed by ioBody. There is no production encoder for this type since
// the real server, not this client, emits it; tests build it by hand.
func deviceIORequestBody(deviceID, fileID, completionID, majorFunction, minorFunction uint32, ioBody []byte) []byte {
	out := make([]byte, 20+len(ioBody))
	binary.LittleEndian.PutUint32(out[0:4], deviceID)
	binary.LittleEndian.PutUint32(out[4:8], fileID)
	binary.LittleEndian.PutUint32(out[8:12], completionID)
	binary.LittleEndian.PutUint32(out[12:16], majorFunction)
	binary.LittleEndian.PutUint32(out[16:20], minorFunction)
	copy(out[20:], ioBody)
	return out
}

func rdpdrPDU(packetID uint16, body []byte) []byte {
	return rdpdr.Header{Component: rdpdr.ComponentCore, PacketID: packetID}.Encode(body)
}

func newTestSession(tr *fakeTransport, cb Callbacks) *Session {
	cb.SendChannelPDU = tr.send
	return NewSession(SessionConfig{AllowClipboard: true, AllowDirectorySharing: true}, cb)
}

// driveHandshake drives s through ANNOUNCE -> CAPABILITY -> CLIENTID_CONFIRM,
// with one shared directory queued beforehand, and returns the resulting
// DEVICELIST_ANNOUNCE body.
func driveHandshake(t *testing.T, s *Session, tr *fakeTransport, directoryID uint32, name string) []byte {
	t.Helper()
	require.NoError(t, s.AnnounceSharedDirectory(directoryID, name))

	require.NoError(t, feedChunks(t, s, rdpdr.ChannelName, rdpdrPDU(rdpdr.PacketIDCoreServerAnnounce, serverAnnounceBody(7))))
	require.NoError(t, feedChunks(t, s, rdpdr.ChannelName, rdpdrPDU(rdpdr.PacketIDCoreServerCapability, serverCapabilityBody())))
	require.NoError(t, feedChunks(t, s, rdpdr.ChannelName, rdpdrPDU(rdpdr.PacketIDCoreClientIDConfirm, nil)))

	pdu, ok := tr.findByPacketID(rdpdr.PacketIDCoreDeviceListAnnounce)
	require.True(t, ok, "expected a DEVICELIST_ANNOUNCE to have been sent")
	return pdu.body
}

func TestNegotiationHandshakeAnnouncesSmartcardAndQueuedDrive(t *testing.T) {
	tr := newFakeTransport()
	s := newTestSession(tr, Callbacks{})

	body := driveHandshake(t, s, tr, 2, "shared")

	count := binary.LittleEndian.Uint32(body[0:4])
	assert.Equal(t, uint32(2), count, "expected the smart-card device plus the queued drive")

	_, hasReply := tr.findByPacketID(rdpdr.PacketIDCoreClientAnnounceRepl)
	assert.True(t, hasReply)
	_, hasName := tr.findByPacketID(rdpdr.PacketIDCoreClientName)
	assert.True(t, hasName)
	_, hasCapability := tr.findByPacketID(rdpdr.PacketIDCoreClientCapability)
	assert.True(t, hasCapability)

	assert.Equal(t, phaseReady, s.phase)
	assert.Contains(t, s.drives, uint32(2))
}

func TestAnnounceSharedDirectoryAfterReadySendsIncrementalAnnounce(t *testing.T) {
	tr := newFakeTransport()
	s := newTestSession(tr, Callbacks{})

	require.NoError(t, feedChunks(t, s, rdpdr.ChannelName, rdpdrPDU(rdpdr.PacketIDCoreServerAnnounce, serverAnnounceBody(1))))
	require.NoError(t, feedChunks(t, s, rdpdr.ChannelName, rdpdrPDU(rdpdr.PacketIDCoreServerCapability, serverCapabilityBody())))
	require.NoError(t, feedChunks(t, s, rdpdr.ChannelName, rdpdrPDU(rdpdr.PacketIDCoreClientIDConfirm, nil)))
	require.Equal(t, phaseReady, s.phase)

	require.NoError(t, s.AnnounceSharedDirectory(5, "late"))

	var announces int
	for _, p := range tr.pdus {
		if p.packetID == rdpdr.PacketIDCoreDeviceListAnnounce {
			announces++
		}
	}
	assert.Equal(t, 2, announces, "one at CLIENTID_CONFIRM for the smart-card device, one incremental for the late drive")
	assert.Contains(t, s.drives, uint32(5))
}

func TestDeviceReplyForDriveSendsAcknowledge(t *testing.T) {
	tr := newFakeTransport()
	var acks []tdp.Acknowledge
	s := newTestSession(tr, Callbacks{
		SendAcknowledge: func(a tdp.Acknowledge) { acks = append(acks, a) },
	})
	driveHandshake(t, s, tr, 2, "shared")

	require.NoError(t, feedChunks(t, s, rdpdr.ChannelName, rdpdrPDU(rdpdr.PacketIDCoreDeviceReply, deviceReplyBody(2, rdpdr.StatusSuccess))))

	require.Len(t, acks, 1)
	assert.Equal(t, tdp.ErrCodeNil, acks[0].ErrCode)
	assert.Equal(t, uint32(2), acks[0].DirectoryID)
}

func TestDeviceReplyForUnannouncedDeviceIsFatal(t *testing.T) {
	tr := newFakeTransport()
	s := newTestSession(tr, Callbacks{})
	driveHandshake(t, s, tr, 2, "shared")

	err := feedChunks(t, s, rdpdr.ChannelName, rdpdrPDU(rdpdr.PacketIDCoreDeviceReply, deviceReplyBody(99, rdpdr.StatusSuccess)))
	assert.Error(t, err)

	// The session should now refuse further traffic.
	err = feedChunks(t, s, rdpdr.ChannelName, rdpdrPDU(rdpdr.PacketIDCoreDeviceReply, deviceReplyBody(2, rdpdr.StatusSuccess)))
	assert.Error(t, err)
}

func TestDeviceIORequestDeviceControlOnDriveCompletesImmediately(t *testing.T) {
	tr := newFakeTransport()
	s := newTestSession(tr, Callbacks{})
	driveHandshake(t, s, tr, 2, "shared")

	ioBody := deviceIORequestBody(2, 0, 55, rdpdr.IRPMjDeviceControl, 0, make([]byte, 32))
	require.NoError(t, feedChunks(t, s, rdpdr.ChannelName, rdpdrPDU(rdpdr.PacketIDCoreDeviceIORequest, ioBody)))

	completion, ok := tr.findByPacketID(rdpdr.PacketIDCoreDeviceIOCompletion)
	require.True(t, ok)
	assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(completion.body[0:4]))
	assert.Equal(t, uint32(55), binary.LittleEndian.Uint32(completion.body[4:8]))
	assert.Equal(t, rdpdr.StatusSuccess, binary.LittleEndian.Uint32(completion.body[8:12]))
}

// utf16LEBytes encodes s as UTF-16LE without a trailing NUL, matching the
// DR_CREATE_REQ Path field's PathLength framing.
func utf16LEBytes(s string) []byte {
	out := make([]byte, 0, len(s)*2)
	for _, r := range s {
		out = append(out, byte(r), 0)
	}
	return out
}

// createRequestBody builds a DR_CREATE_REQ body: the 32-byte fixed prefix
// (disposition at [16:20], createOptions at [20:24], pathLen at [24:28])
// followed by the UTF-16LE path.
func createRequestBody(disposition uint32, path string) []byte {
	pathBytes := utf16LEBytes(path)
	body := make([]byte, 32+len(pathBytes))
	binary.LittleEndian.PutUint32(body[16:20], disposition)
	binary.LittleEndian.PutUint32(body[24:28], uint32(len(pathBytes)))
	copy(body[32:], pathBytes)
	return body
}

func TestDeliverTDPResponseRoutesAcrossMultipleDrives(t *testing.T) {
	tr := newFakeTransport()
	var infoReqs []tdp.InfoRequest
	s := newTestSession(tr, Callbacks{
		SendInfoRequest:   func(r tdp.InfoRequest) { infoReqs = append(infoReqs, r) },
		SendCreateRequest: func(tdp.CreateRequest) {},
	})

	require.NoError(t, s.AnnounceSharedDirectory(2, "one"))
	require.NoError(t, s.AnnounceSharedDirectory(3, "two"))
	driveHandshake2Drives(t, s, tr)

	// IRP_MJ_CREATE on each drive registers a pendingInfo keyed by the
	// IRP's own completion id; both route through the same HandleDeviceIORequest
	// dispatch but land in distinct drive.Client completion tables.
	createBody := createRequestBody(rdpdr.DispositionOpenIf, "report.txt")
	req1 := deviceIORequestBody(2, 0, 100, rdpdr.IRPMjCreate, 0, createBody)
	req2 := deviceIORequestBody(3, 0, 200, rdpdr.IRPMjCreate, 0, createBody)
	require.NoError(t, feedChunks(t, s, rdpdr.ChannelName, rdpdrPDU(rdpdr.PacketIDCoreDeviceIORequest, req1)))
	require.NoError(t, feedChunks(t, s, rdpdr.ChannelName, rdpdrPDU(rdpdr.PacketIDCoreDeviceIORequest, req2)))
	require.Len(t, infoReqs, 2)

	// Deliver the second drive's response first: it must be resolved
	// against drive 3's table, not drive 2's, purely from CompletionID
	// membership.
	require.NoError(t, s.DeliverTDPResponse(TDPResponseInfo, tdp.InfoResponse{
		CompletionID: 200,
		ErrCode:      tdp.ErrCodeNil,
		FSO:          tdp.FileSystemObject{Path: "report.txt", FileType: tdp.FileTypeFile},
	}))
	completion, ok := tr.findByPacketID(rdpdr.PacketIDCoreDeviceIOCompletion)
	require.True(t, ok)
	assert.Equal(t, uint32(3), binary.LittleEndian.Uint32(completion.body[0:4]))
	assert.Equal(t, uint32(200), binary.LittleEndian.Uint32(completion.body[4:8]))

	require.NoError(t, s.DeliverTDPResponse(TDPResponseInfo, tdp.InfoResponse{
		CompletionID: 100,
		ErrCode:      tdp.ErrCodeNil,
		FSO:          tdp.FileSystemObject{Path: "report.txt", FileType: tdp.FileTypeFile},
	}))

	// A completion id that belongs to neither drive is a hard error.
	err := s.DeliverTDPResponse(TDPResponseInfo, tdp.InfoResponse{CompletionID: 999999, ErrCode: tdp.ErrCodeNil})
	assert.Error(t, err)
}

// driveHandshake2Drives is driveHandshake generalized to flush two queued
// directories in one DEVICELIST_ANNOUNCE.
func driveHandshake2Drives(t *testing.T, s *Session, tr *fakeTransport) {
	t.Helper()
	require.NoError(t, feedChunks(t, s, rdpdr.ChannelName, rdpdrPDU(rdpdr.PacketIDCoreServerAnnounce, serverAnnounceBody(7))))
	require.NoError(t, feedChunks(t, s, rdpdr.ChannelName, rdpdrPDU(rdpdr.PacketIDCoreServerCapability, serverCapabilityBody())))
	require.NoError(t, feedChunks(t, s, rdpdr.ChannelName, rdpdrPDU(rdpdr.PacketIDCoreClientIDConfirm, nil)))
	_, ok := tr.findByPacketID(rdpdr.PacketIDCoreDeviceListAnnounce)
	require.True(t, ok)
}

func TestSmartCardIOCTLPassthrough(t *testing.T) {
	tr := newFakeTransport()
	var seenCode uint32
	s := newTestSession(tr, Callbacks{
		HandleSmartCardIOCTL: func(ioctl tdp.SmartCardIOCTL) (tdp.SmartCardIOCTLResult, error) {
			seenCode = ioctl.IOCTLCode
			return tdp.SmartCardIOCTLResult{NTStatus: rdpdr.StatusSuccess, Output: []byte{0x90, 0x00}}, nil
		},
	})
	driveHandshake(t, s, tr, 2, "shared")

	controlBody := make([]byte, 32)
	binary.LittleEndian.PutUint32(controlBody[8:12], 0x00090014)
	ioBody := deviceIORequestBody(rdpdr.ScardDeviceID, 0, 9, rdpdr.IRPMjDeviceControl, 0, controlBody)
	require.NoError(t, feedChunks(t, s, rdpdr.ChannelName, rdpdrPDU(rdpdr.PacketIDCoreDeviceIORequest, ioBody)))

	assert.Equal(t, uint32(0x00090014), seenCode)
	completion, ok := tr.findByPacketID(rdpdr.PacketIDCoreDeviceIOCompletion)
	require.True(t, ok)
	assert.Equal(t, rdpdr.StatusSuccess, binary.LittleEndian.Uint32(completion.body[8:12]))
}

func TestDeviceIORequestForUnannouncedDeviceIsFatal(t *testing.T) {
	tr := newFakeTransport()
	s := newTestSession(tr, Callbacks{})
	driveHandshake(t, s, tr, 2, "shared")

	ioBody := deviceIORequestBody(77, 0, 1, rdpdr.IRPMjDeviceControl, 0, make([]byte, 32))
	err := feedChunks(t, s, rdpdr.ChannelName, rdpdrPDU(rdpdr.PacketIDCoreDeviceIORequest, ioBody))
	assert.Error(t, err)
}

func TestRdpsndChannelIsSilentlyDropped(t *testing.T) {
	tr := newFakeTransport()
	s := newTestSession(tr, Callbacks{})

	err := feedChunks(t, s, "rdpsnd", []byte{1, 2, 3, 4})
	assert.NoError(t, err)
	assert.Empty(t, tr.pdus)
}

func TestUnrecognizedChannelClosesSession(t *testing.T) {
	tr := newFakeTransport()
	s := newTestSession(tr, Callbacks{})

	err := feedChunks(t, s, "unknown", []byte{1, 2, 3, 4})
	assert.Error(t, err)

	// Further traffic on any channel is refused once closed.
	err = feedChunks(t, s, rdpdr.ChannelName, rdpdrPDU(rdpdr.PacketIDCoreServerAnnounce, serverAnnounceBody(1)))
	assert.Error(t, err)
}

func TestUpdateLocalClipboardGatedByConfig(t *testing.T) {
	tr := newFakeTransport()
	s := NewSession(SessionConfig{AllowClipboard: false}, Callbacks{SendChannelPDU: tr.send})

	require.NoError(t, s.UpdateLocalClipboard([]byte("hello")))
	assert.Empty(t, tr.pdus)
}

func TestAnnounceSharedDirectoryGatedByConfig(t *testing.T) {
	tr := newFakeTransport()
	s := NewSession(SessionConfig{AllowDirectorySharing: false}, Callbacks{SendChannelPDU: tr.send})

	require.NoError(t, s.AnnounceSharedDirectory(2, "shared"))
	assert.Empty(t, s.pendingDriveAnnounces)
	assert.Empty(t, s.drives)
}

// Package rdpclient is the public facade of this module: a per-connection
// Session that owns the virtual-channel reassembly, CLIPRDR state machine,
// and RDPDR negotiation/drive/smart-card layers, and exposes the host-side
// API an embedding RDP client drives.
package rdpclient

import (
	"context"
	"strconv"

	"github.com/wfetut/rdpclient/internal/cliprdr"
	cliprdrclient "github.com/wfetut/rdpclient/internal/cliprdr/client"
	"github.com/wfetut/rdpclient/internal/logger"
	"github.com/wfetut/rdpclient/internal/rdperrors"
	"github.com/wfetut/rdpclient/internal/rdpdr"
	"github.com/wfetut/rdpclient/internal/rdpdr/drive"
	"github.com/wfetut/rdpclient/internal/rdpdr/smartcard"
	"github.com/wfetut/rdpclient/internal/tdp"
	"github.com/wfetut/rdpclient/internal/vchan"
	"github.com/wfetut/rdpclient/pkg/metrics"
)

// rdpsndChannelName is the audio-redirection channel. This module has no
// rdpsnd implementation; its traffic is reassembled and silently dropped,
// per spec.md §6.
const rdpsndChannelName = "rdpsnd"

// SessionConfig holds the three host-supplied capability booleans and the
// metrics collector for one Session.
type SessionConfig struct {
	AllowClipboard        bool
	AllowDirectorySharing bool
	ShowDesktopWallpaper  bool

	// Metrics is consulted on every channel chunk and drive table change.
	// A nil Metrics (the zero value, or metrics.Null()) disables
	// instrumentation at no cost.
	Metrics *metrics.Metrics
}

// Callbacks are the host-implemented boundary this module calls out
// through: the seven TDP request kinds (one per completion table), the
// drive-announce acknowledgement, remote clipboard delivery, the
// smart-card IOCTL passthrough, and the transport used to send encoded
// channel chunks back to the server.
type Callbacks struct {
	// SendChannelPDU delivers one wire-ready chunk on the named virtual
	// channel to the server.
	SendChannelPDU func(channelName string, chunk []byte) error

	// OnRemoteClipboard is called with clipboard bytes the server pushed.
	OnRemoteClipboard func(data []byte)

	SendInfoRequest   func(tdp.InfoRequest)
	SendCreateRequest func(tdp.CreateRequest)
	SendDeleteRequest func(tdp.DeleteRequest)
	SendListRequest   func(tdp.ListRequest)
	SendReadRequest   func(tdp.ReadRequest)
	SendWriteRequest  func(tdp.WriteRequest)
	SendMoveRequest   func(tdp.MoveRequest)

	// SendAcknowledge reports the outcome of AnnounceSharedDirectory once
	// the RDPDR device reply for that drive has arrived.
	SendAcknowledge func(tdp.Acknowledge)

	// HandleSmartCardIOCTL forwards an opaque smart-card IOCTL to the
	// host's smart-card emulation.
	HandleSmartCardIOCTL func(tdp.SmartCardIOCTL) (tdp.SmartCardIOCTLResult, error)
}

// TDPResponseKind tags the dynamic type carried by DeliverTDPResponse's
// resp argument, mirroring the seven completion tables.
type TDPResponseKind int

const (
	TDPResponseInfo TDPResponseKind = iota
	TDPResponseCreate
	TDPResponseDelete
	TDPResponseList
	TDPResponseRead
	TDPResponseWrite
	TDPResponseMove
)

// negotiationPhase tracks progress through the server-initiated RDPDR
// handshake described in spec.md §4.3.
type negotiationPhase int

const (
	phaseAwaitingAnnounce negotiationPhase = iota
	phaseAwaitingCapability
	phaseAwaitingClientIDConfirm
	phaseReady
)

// pendingDrive is a shared directory announced before the negotiation
// reached phaseReady; it is flushed into the DEVICELIST_ANNOUNCE sent once
// CLIENTID_CONFIRM arrives.
type pendingDrive struct {
	deviceID uint32
	name     string
}

// Session is the per-connection dispatcher: one vchan.Reassembler per
// channel name, routing reassembled payloads to the CLIPRDR client or the
// RDPDR negotiation/drive/smart-card layers. It is driven by a single
// goroutine; none of its methods are safe to call concurrently, per the
// single-goroutine concurrency model.
type Session struct {
	cfg SessionConfig
	cb  Callbacks
	m   *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc
	closed bool

	reassemblers map[string]*vchan.Reassembler
	cliprdr      *cliprdrclient.Client

	negotiator            *rdpdr.Negotiator
	phase                 negotiationPhase
	pendingDriveAnnounces []pendingDrive
	drives                map[uint32]*drive.Client
}

// NewSession returns a Session ready to receive HandleChannelPDU calls.
func NewSession(cfg SessionConfig, cb Callbacks) *Session {
	return &Session{
		cfg:          cfg,
		cb:           cb,
		m:            cfg.Metrics,
		reassemblers: make(map[string]*vchan.Reassembler),
		cliprdr: cliprdrclient.New(cliprdrclient.Callbacks{
			OnRemoteClipboard: cb.OnRemoteClipboard,
		}, nil),
		negotiator: rdpdr.NewNegotiator(cfg.AllowDirectorySharing),
		phase:      phaseAwaitingAnnounce,
		drives:     make(map[uint32]*drive.Client),
	}
}

// Run blocks until ctx is cancelled, then tears the session down. Callers
// that drive the session purely from HandleChannelPDU (no background
// work of their own) do not need to call this.
func (s *Session) Run(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)
	<-s.ctx.Done()
	s.Close()
	return s.ctx.Err()
}

// Close tears down the session. Pending completion tables are discarded
// along with the drive clients that own them; no further TDP responses
// for this session may be delivered after Close returns.
func (s *Session) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.drives = make(map[uint32]*drive.Client)
	s.pendingDriveAnnounces = nil
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Session) reassemblerFor(channelName string) *vchan.Reassembler {
	r, ok := s.reassemblers[channelName]
	if !ok {
		r = vchan.NewReassembler(channelName)
		s.reassemblers[channelName] = r
	}
	return r
}

func (s *Session) ctxOrBackground() context.Context {
	if s.ctx != nil {
		return s.ctx
	}
	return context.Background()
}

// HandleChannelPDU reassembles one wire chunk on channelName and, once a
// full logical PDU has accumulated, routes it to the matching protocol
// layer. An unrecognized channel name is a PROTOCOL error; the session is
// closed before it is returned.
func (s *Session) HandleChannelPDU(channelName string, chunk []byte) error {
	if s.closed {
		return rdperrors.Protocol(channelName, "session is closed")
	}

	s.m.RecordChunk(channelName, "in")

	payload, done, err := s.reassemblerFor(channelName).Feed(chunk)
	if err != nil {
		return s.handleFatal(err)
	}
	if !done {
		return nil
	}

	switch channelName {
	case cliprdr.ChannelName:
		return s.handleFatal(s.handleCLIPRDR(payload))
	case rdpdr.ChannelName:
		return s.handleFatal(s.handleRDPDR(payload))
	case rdpsndChannelName:
		return nil
	default:
		return s.handleFatal(rdperrors.Protocolf(channelName, "unrecognized virtual channel"))
	}
}

func (s *Session) handleFatal(err error) error {
	if err == nil {
		return nil
	}
	if rdperrors.Is(err, rdperrors.KindProtocol) || rdperrors.Is(err, rdperrors.KindTDPMismatch) || rdperrors.Is(err, rdperrors.KindIO) {
		s.Close()
	}
	return err
}

func (s *Session) send(channelName string, inner []byte, showProtocol bool) error {
	var extraFlags uint32
	if showProtocol {
		extraFlags = vchan.FlagShowProtocol
	}
	for _, chunk := range vchan.EncodeChunks(inner, extraFlags) {
		s.m.RecordChunk(channelName, "out")
		if err := s.cb.SendChannelPDU(channelName, chunk); err != nil {
			return rdperrors.IO(channelName, err)
		}
	}
	return nil
}

func (s *Session) handleCLIPRDR(payload []byte) error {
	out, err := s.cliprdr.HandlePDU(s.ctxOrBackground(), payload)
	if err != nil {
		return err
	}
	for _, pdu := range out {
		if err := s.send(cliprdr.ChannelName, pdu.Bytes, pdu.ShowProtocol); err != nil {
			return err
		}
	}
	return nil
}

// UpdateLocalClipboard pushes a local clipboard change to the server.
// Calls are ignored when clipboard sharing is disabled.
func (s *Session) UpdateLocalClipboard(data []byte) error {
	if !s.cfg.AllowClipboard {
		return nil
	}
	for _, pdu := range s.cliprdr.UpdateLocalClipboard(data) {
		if err := s.send(cliprdr.ChannelName, pdu.Bytes, pdu.ShowProtocol); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) handleRDPDR(payload []byte) error {
	header, body, err := rdpdr.DecodeHeader(payload)
	if err != nil {
		return err
	}
	if header.Component == rdpdr.ComponentPrinter {
		return nil
	}
	if header.Component != rdpdr.ComponentCore {
		return rdperrors.Protocolf(rdpdr.ChannelName, "unrecognized RDPDR component 0x%04x", header.Component)
	}

	switch header.PacketID {
	case rdpdr.PacketIDCoreServerAnnounce:
		return s.handleServerAnnounce(body)
	case rdpdr.PacketIDCoreServerCapability:
		return s.handleServerCapability(body)
	case rdpdr.PacketIDCoreClientIDConfirm:
		return s.handleClientIDConfirm()
	case rdpdr.PacketIDCoreDeviceReply:
		return s.handleDeviceReply(body)
	case rdpdr.PacketIDCoreDeviceIORequest:
		return s.handleDeviceIORequest(body)
	default:
		logger.WarnCtx(s.ctxOrBackground(), "rdpdr: unsupported packet id", logger.Flags(uint32(header.PacketID)))
		return nil
	}
}

func (s *Session) handleServerAnnounce(body []byte) error {
	announce, err := rdpdr.DecodeServerAnnounce(body)
	if err != nil {
		return err
	}
	logger.DebugCtx(s.ctxOrBackground(), "rdpdr: server announce", logger.CompletionID(announce.ClientID))

	reply := rdpdr.Header{Component: rdpdr.ComponentCore, PacketID: rdpdr.PacketIDCoreClientAnnounceRepl}.
		Encode(rdpdr.EncodeClientAnnounceReply(announce.ClientID))
	if err := s.send(rdpdr.ChannelName, reply, false); err != nil {
		return err
	}

	name := rdpdr.Header{Component: rdpdr.ComponentCore, PacketID: rdpdr.PacketIDCoreClientName}.
		Encode(rdpdr.EncodeClientName(rdpdr.ClientName))
	if err := s.send(rdpdr.ChannelName, name, false); err != nil {
		return err
	}

	s.phase = phaseAwaitingCapability
	return nil
}

func (s *Session) handleServerCapability(body []byte) error {
	sets, err := rdpdr.DecodeServerCapabilitySets(body)
	if err != nil {
		return err
	}
	for _, set := range sets {
		logger.DebugCtx(s.ctxOrBackground(), "rdpdr: server capability set",
			logger.Flags(uint32(set.CapabilityType)), logger.NTStatus(set.Version))
	}

	reply := rdpdr.Header{Component: rdpdr.ComponentCore, PacketID: rdpdr.PacketIDCoreClientCapability}.
		Encode(rdpdr.EncodeClientCapability(s.cfg.AllowDirectorySharing))
	if err := s.send(rdpdr.ChannelName, reply, false); err != nil {
		return err
	}

	s.phase = phaseAwaitingClientIDConfirm
	return nil
}

func (s *Session) handleClientIDConfirm() error {
	devices := []rdpdr.DeviceAnnounce{s.negotiator.AnnounceSmartcard()}
	for _, pd := range s.pendingDriveAnnounces {
		devices = append(devices, s.negotiator.AnnounceDrive(pd.deviceID, pd.name))
		s.drives[pd.deviceID] = drive.New(pd.deviceID, s.driveCallbacks())
	}
	s.pendingDriveAnnounces = nil

	announce := rdpdr.Header{Component: rdpdr.ComponentCore, PacketID: rdpdr.PacketIDCoreDeviceListAnnounce}.
		Encode(rdpdr.EncodeDeviceListAnnounce(devices))
	if err := s.send(rdpdr.ChannelName, announce, false); err != nil {
		return err
	}

	s.phase = phaseReady
	return nil
}

func (s *Session) handleDeviceReply(body []byte) error {
	reply, err := rdpdr.DecodeDeviceReply(body)
	if err != nil {
		return err
	}

	if scardID, ok := s.negotiator.SmartcardDeviceID(); ok && reply.DeviceID == scardID {
		logger.DebugCtx(s.ctxOrBackground(), "rdpdr: smart-card device reply", logger.NTStatus(reply.ResultCode))
		return nil
	}

	if _, ok := s.drives[reply.DeviceID]; !ok {
		return rdperrors.TDPMismatch(rdpdr.ChannelName, "device reply for unannounced device id")
	}

	errCode := tdp.ErrCodeNil
	if reply.ResultCode != rdpdr.StatusSuccess {
		errCode = tdp.ErrCodeFailed
	}
	if s.cb.SendAcknowledge != nil {
		s.cb.SendAcknowledge(tdp.Acknowledge{ErrCode: errCode, DirectoryID: reply.DeviceID})
	}
	return nil
}

func (s *Session) handleDeviceIORequest(body []byte) error {
	req, ioBody, err := rdpdr.DecodeDeviceIORequest(body)
	if err != nil {
		return err
	}

	if scardID, ok := s.negotiator.SmartcardDeviceID(); ok && req.DeviceID == scardID {
		if req.MajorFunction != rdpdr.IRPMjDeviceControl {
			logger.WarnCtx(s.ctxOrBackground(), "rdpdr: unsupported major function on smart-card device", logger.MajorFunction(req.MajorFunction))
			return nil
		}
		reply, err := smartcard.HandleDeviceControl(req.DeviceID, req.CompletionID, req, ioBody, s.cb.HandleSmartCardIOCTL)
		if err != nil {
			if rdperrors.Is(err, rdperrors.KindTDPOpFailed) {
				logger.WarnCtx(s.ctxOrBackground(), "rdpdr: smart-card IOCTL failed", logger.Err(err))
				return nil
			}
			return err
		}
		return s.sendRDPDRCompletion(reply)
	}

	dc, ok := s.drives[req.DeviceID]
	if !ok {
		return rdperrors.TDPMismatch(rdpdr.ChannelName, "device I/O request for unannounced device id")
	}

	reply, err := dc.HandleDeviceIORequest(s.ctxOrBackground(), req, ioBody)
	if err != nil {
		return err
	}
	if reply == nil {
		return nil
	}
	return s.sendRDPDRCompletion(reply)
}

func (s *Session) sendRDPDRCompletion(body []byte) error {
	pdu := rdpdr.Header{Component: rdpdr.ComponentCore, PacketID: rdpdr.PacketIDCoreDeviceIOCompletion}.Encode(body)
	return s.send(rdpdr.ChannelName, pdu, false)
}

func (s *Session) driveCallbacks() drive.Callbacks {
	return drive.Callbacks{
		SendInfoRequest:   s.cb.SendInfoRequest,
		SendCreateRequest: s.cb.SendCreateRequest,
		SendDeleteRequest: s.cb.SendDeleteRequest,
		SendListRequest:   s.cb.SendListRequest,
		SendReadRequest:   s.cb.SendReadRequest,
		SendWriteRequest:  s.cb.SendWriteRequest,
		SendMoveRequest:   s.cb.SendMoveRequest,
	}
}

// AnnounceSharedDirectory registers a new shared directory with the
// server. If the RDPDR negotiation handshake has already reached steady
// state, an incremental DEVICELIST_ANNOUNCE is sent immediately;
// otherwise the announcement is queued and flushed once CLIENTID_CONFIRM
// arrives. Calls are ignored when directory sharing is disabled.
func (s *Session) AnnounceSharedDirectory(directoryID uint32, name string) error {
	if !s.cfg.AllowDirectorySharing {
		return nil
	}

	if s.phase != phaseReady {
		s.pendingDriveAnnounces = append(s.pendingDriveAnnounces, pendingDrive{deviceID: directoryID, name: name})
		return nil
	}

	device := s.negotiator.AnnounceDrive(directoryID, name)
	s.drives[directoryID] = drive.New(directoryID, s.driveCallbacks())

	pdu := rdpdr.Header{Component: rdpdr.ComponentCore, PacketID: rdpdr.PacketIDCoreDeviceListAnnounce}.
		Encode(rdpdr.EncodeDeviceListAnnounce([]rdpdr.DeviceAnnounce{device}))
	return s.send(rdpdr.ChannelName, pdu, false)
}

// driveOwning returns the drive.Client that registered completionID, if
// any is currently live. TDP responses carry only a CompletionID, so with
// more than one active shared directory the owner must be found by
// membership rather than a carried directory id.
func (s *Session) driveOwning(completionID uint32) *drive.Client {
	for _, dc := range s.drives {
		if dc.OwnsCompletion(completionID) {
			return dc
		}
	}
	return nil
}

// DeliverTDPResponse completes the drive IRP correlated with resp's
// CompletionID and sends the resulting DEVICE_IOCOMPLETION, if any. An
// unknown CompletionID is a TDP_MISMATCH error, per spec.md §7.
func (s *Session) DeliverTDPResponse(kind TDPResponseKind, resp any) error {
	completionID, err := completionIDOf(kind, resp)
	if err != nil {
		return s.handleFatal(err)
	}

	dc := s.driveOwning(completionID)
	if dc == nil {
		return s.handleFatal(rdperrors.TDPMismatch(rdpdr.ChannelName, "TDP response for unknown completion id"))
	}

	var reply []byte
	switch kind {
	case TDPResponseInfo:
		reply, err = dc.DeliverInfoResponse(resp.(tdp.InfoResponse))
	case TDPResponseCreate:
		reply, err = dc.DeliverCreateResponse(resp.(tdp.CreateResponse))
	case TDPResponseDelete:
		reply, err = dc.DeliverDeleteResponse(resp.(tdp.DeleteResponse))
	case TDPResponseList:
		reply, err = dc.DeliverListResponse(resp.(tdp.ListResponse))
	case TDPResponseRead:
		reply, err = dc.DeliverReadResponse(resp.(tdp.ReadResponse))
	case TDPResponseWrite:
		reply, err = dc.DeliverWriteResponse(resp.(tdp.WriteResponse))
	case TDPResponseMove:
		reply, err = dc.DeliverMoveResponse(resp.(tdp.MoveResponse))
	default:
		return s.handleFatal(rdperrors.Protocolf(rdpdr.ChannelName, "unknown TDP response kind %d", kind))
	}

	s.m.SetDriveOccupancy(deviceIDLabel(dc.DeviceID), dc.OpenHandleCount(), dc.PendingCompletionCount())

	if err != nil {
		return s.handleFatal(err)
	}
	if reply == nil {
		return nil
	}
	return s.handleFatal(s.sendRDPDRCompletion(reply))
}

func deviceIDLabel(deviceID uint32) string {
	return strconv.FormatUint(uint64(deviceID), 10)
}

func completionIDOf(kind TDPResponseKind, resp any) (uint32, error) {
	switch kind {
	case TDPResponseInfo:
		return resp.(tdp.InfoResponse).CompletionID, nil
	case TDPResponseCreate:
		return resp.(tdp.CreateResponse).CompletionID, nil
	case TDPResponseDelete:
		return resp.(tdp.DeleteResponse).CompletionID, nil
	case TDPResponseList:
		return resp.(tdp.ListResponse).CompletionID, nil
	case TDPResponseRead:
		return resp.(tdp.ReadResponse).CompletionID, nil
	case TDPResponseWrite:
		return resp.(tdp.WriteResponse).CompletionID, nil
	case TDPResponseMove:
		return resp.(tdp.MoveResponse).CompletionID, nil
	default:
		return 0, rdperrors.Protocolf(rdpdr.ChannelName, "unknown TDP response kind %d", kind)
	}
}

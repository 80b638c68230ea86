// Package client implements the CLIPRDR client-side state machine: the
// server-driven initialization handshake and the steady-state clipboard
// exchange described by MS-RDPECLIP.
package client

import (
	"context"
	"encoding/binary"

	"github.com/wfetut/rdpclient/internal/cliprdr"
	"github.com/wfetut/rdpclient/internal/logger"
	"github.com/wfetut/rdpclient/internal/rdperrors"
)

// State is one state of the CLIPRDR initialization state machine.
type State int

const (
	StateAwaitingCaps State = iota
	StateAwaitingMonitorReady
	StateReady
)

func (s State) String() string {
	switch s {
	case StateAwaitingCaps:
		return "awaiting_caps"
	case StateAwaitingMonitorReady:
		return "awaiting_monitor_ready"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// OutboundPDU is one CLIPRDR inner PDU (clipboard header + body) the
// session must hand to vchan.EncodeChunks, tagged with whether
// SHOW_PROTOCOL must be set on every emitted chunk.
type OutboundPDU struct {
	Bytes        []byte
	ShowProtocol bool
}

// Callbacks are invoked by the client to surface remote-origin clipboard
// activity to the embedding host.
type Callbacks struct {
	// OnRemoteClipboard is called with the user-visible clipboard bytes
	// whenever a FORMAT_DATA_RESPONSE carrying OEM text arrives.
	OnRemoteClipboard func(data []byte)
}

// Client is the per-session CLIPRDR state machine. It is not safe for
// concurrent use; the owning Session serializes all access.
type Client struct {
	state             State
	oemText           []byte
	expectingFileList bool
	fileList          []cliprdr.FileDescriptor

	callbacks Callbacks
	metrics   *Metrics
}

// New returns a Client in its initial awaiting_caps state.
func New(callbacks Callbacks, metrics *Metrics) *Client {
	return &Client{state: StateAwaitingCaps, callbacks: callbacks, metrics: metrics}
}

func (c *Client) transition(ctx context.Context, to State, trigger string) {
	logger.DebugCtx(ctx, "cliprdr state transition", logger.Transition(c.state.String(), to.String(), trigger)...)
	c.state = to
}

func clipCapsPDU() OutboundPDU {
	body := make([]byte, 0, 16)
	// CLIPRDR_GENERAL_CAPABILITY_SET: capabilitySetType=1, lengthCapability=12,
	// version, generalFlags.
	body = appendU16(body, 1)  // capability set type: general
	body = appendU16(body, 12) // capability set length
	body = appendU32(body, uint32(cliprdr.GeneralCapabilityVersion2))
	body = appendU32(body, cliprdr.CapUseLongFormatNames|cliprdr.CapStreamFileclipEnabled)

	capsBody := make([]byte, 0, 4+len(body))
	capsBody = appendU16(capsBody, 1) // cCapabilitiesSets
	capsBody = appendU16(capsBody, 0) // pad
	capsBody = append(capsBody, body...)

	inner := cliprdr.Header{MsgType: cliprdr.MsgTypeClipCaps}.Encode(capsBody)
	return OutboundPDU{Bytes: inner, ShowProtocol: true}
}

func formatListInitPDU() OutboundPDU {
	body := cliprdr.EncodeFormatListSingle(0, "")
	inner := cliprdr.Header{MsgType: cliprdr.MsgTypeFormatList}.Encode(body)
	return OutboundPDU{Bytes: inner, ShowProtocol: true}
}

func appendU16(b []byte, v uint16) []byte {
	return append(b, byte(v), byte(v>>8))
}

func appendU32(b []byte, v uint32) []byte {
	return append(b, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

// HandlePDU processes one fully reassembled inbound CLIPRDR PDU and returns
// the outbound PDUs it produces, if any.
func (c *Client) HandlePDU(ctx context.Context, payload []byte) ([]OutboundPDU, error) {
	header, body, err := cliprdr.DecodeHeader(payload)
	if err != nil {
		return nil, err
	}

	switch c.state {
	case StateAwaitingCaps:
		return c.handleAwaitingCaps(ctx, header)
	case StateAwaitingMonitorReady:
		return c.handleAwaitingMonitorReady(ctx, header)
	default:
		return c.handleSteadyState(ctx, header, body)
	}
}

func (c *Client) handleAwaitingCaps(ctx context.Context, header cliprdr.Header) ([]OutboundPDU, error) {
	if header.MsgType != cliprdr.MsgTypeClipCaps {
		logger.WarnCtx(ctx, "cliprdr: unexpected message while awaiting caps", logger.MsgType(header.MsgType))
		return nil, nil
	}
	c.transition(ctx, StateAwaitingMonitorReady, "CB_CLIP_CAPS")
	return nil, nil
}

func (c *Client) handleAwaitingMonitorReady(ctx context.Context, header cliprdr.Header) ([]OutboundPDU, error) {
	if header.MsgType != cliprdr.MsgTypeMonitorReady {
		logger.WarnCtx(ctx, "cliprdr: unexpected message while awaiting monitor ready", logger.MsgType(header.MsgType))
		return nil, nil
	}
	out := []OutboundPDU{clipCapsPDU(), formatListInitPDU()}
	c.transition(ctx, StateReady, "CB_MONITOR_READY")
	return out, nil
}

func (c *Client) handleSteadyState(ctx context.Context, header cliprdr.Header, body []byte) ([]OutboundPDU, error) {
	switch header.MsgType {
	case cliprdr.MsgTypeFormatList:
		return c.handleFormatList(ctx, body)
	case cliprdr.MsgTypeFormatListResponse:
		if header.MsgFlags&cliprdr.FlagResponseOK == 0 {
			logger.WarnCtx(ctx, "cliprdr: FORMAT_LIST_RESPONSE without RESPONSE_OK")
		}
		return nil, nil
	case cliprdr.MsgTypeFormatDataRequest:
		return c.handleFormatDataRequest(ctx, body)
	case cliprdr.MsgTypeFormatDataResponse:
		return c.handleFormatDataResponse(ctx, body)
	default:
		logger.WarnCtx(ctx, "cliprdr: unsupported message type", logger.MsgType(header.MsgType))
		return nil, nil
	}
}

func (c *Client) handleFormatList(ctx context.Context, body []byte) ([]OutboundPDU, error) {
	entries, err := cliprdr.DecodeFormatListLong(body)
	if err != nil {
		return nil, err
	}

	out := []OutboundPDU{formatListResponseOK()}

	for _, e := range entries {
		switch {
		case e.FormatID == cliprdr.CFOEMText:
			c.expectingFileList = false
			out = append(out, formatDataRequestPDU(e.FormatID))
		case e.FormatName == cliprdr.FileListFormatName:
			c.expectingFileList = true
			out = append(out, formatDataRequestPDU(e.FormatID))
		default:
			logger.DebugCtx(ctx, "cliprdr: ignoring unrecognized format", logger.FormatID(e.FormatID), logger.FormatName(e.FormatName))
		}
	}

	return out, nil
}

func (c *Client) handleFormatDataRequest(ctx context.Context, body []byte) ([]OutboundPDU, error) {
	if len(body) < 4 {
		return nil, rdperrors.Protocol(cliprdr.ChannelName, "FORMAT_DATA_REQUEST shorter than format id")
	}
	requestedID := binary.LittleEndian.Uint32(body[0:4])

	if requestedID != cliprdr.CFOEMText || c.oemText == nil {
		logger.WarnCtx(ctx, "cliprdr: FORMAT_DATA_REQUEST for uncached format", logger.FormatID(requestedID))
		return []OutboundPDU{formatDataResponseFail()}, nil
	}

	c.metrics.RecordFormatDataBytes("local_to_remote", len(c.oemText))
	return []OutboundPDU{formatDataResponseOK(c.oemText)}, nil
}

func (c *Client) handleFormatDataResponse(ctx context.Context, body []byte) ([]OutboundPDU, error) {
	if c.expectingFileList {
		descriptors, err := cliprdr.DecodeFileList(body)
		if err != nil {
			return nil, err
		}
		c.fileList = descriptors
		c.expectingFileList = false
		logger.DebugCtx(ctx, "cliprdr: decoded file list", logger.Entries(len(descriptors)))
		if c.callbacks.OnRemoteClipboard != nil {
			c.callbacks.OnRemoteClipboard([]byte{})
		}
		return nil, nil
	}

	data := trimTrailingNUL(body)
	c.metrics.RecordFormatDataBytes("remote_to_local", len(data))
	if c.callbacks.OnRemoteClipboard != nil {
		c.callbacks.OnRemoteClipboard(data)
	}
	return nil, nil
}

// UpdateLocalClipboard is invoked by the host when the user's clipboard
// changes. It normalizes line endings, caches the bytes under CF_OEMTEXT,
// and advertises the new format.
func (c *Client) UpdateLocalClipboard(data []byte) []OutboundPDU {
	c.oemText = ensureTrailingNUL(convertLFToCRLF(data))

	body := cliprdr.EncodeFormatListShortName(cliprdr.CFOEMText, "")
	inner := cliprdr.Header{MsgType: cliprdr.MsgTypeFormatList}.Encode(body)
	return []OutboundPDU{{Bytes: inner, ShowProtocol: true}}
}

func formatListResponseOK() OutboundPDU {
	inner := cliprdr.Header{MsgType: cliprdr.MsgTypeFormatListResponse, MsgFlags: cliprdr.FlagResponseOK}.Encode(nil)
	return OutboundPDU{Bytes: inner, ShowProtocol: false}
}

func formatDataRequestPDU(formatID uint32) OutboundPDU {
	body := appendU32(nil, formatID)
	inner := cliprdr.Header{MsgType: cliprdr.MsgTypeFormatDataRequest}.Encode(body)
	return OutboundPDU{Bytes: inner, ShowProtocol: true}
}

func formatDataResponseOK(data []byte) OutboundPDU {
	inner := cliprdr.Header{MsgType: cliprdr.MsgTypeFormatDataResponse, MsgFlags: cliprdr.FlagResponseOK}.Encode(data)
	return OutboundPDU{Bytes: inner, ShowProtocol: true}
}

func formatDataResponseFail() OutboundPDU {
	inner := cliprdr.Header{MsgType: cliprdr.MsgTypeFormatDataResponse, MsgFlags: cliprdr.FlagResponseFail}.Encode(nil)
	return OutboundPDU{Bytes: inner, ShowProtocol: true}
}

// convertLFToCRLF converts any `\n` not already preceded by `\r` to `\r\n`.
// Applying it twice yields the same output as applying it once.
func convertLFToCRLF(b []byte) []byte {
	out := make([]byte, 0, len(b)+len(b)/8)
	var prev byte
	for _, c := range b {
		if c == '\n' && prev != '\r' {
			out = append(out, '\r')
		}
		out = append(out, c)
		prev = c
	}
	return out
}

// ensureTrailingNUL appends a NUL byte unless one is already present.
func ensureTrailingNUL(b []byte) []byte {
	if len(b) > 0 && b[len(b)-1] == 0 {
		return b
	}
	return append(append([]byte{}, b...), 0)
}

// trimTrailingNUL removes exactly one trailing NUL byte, if present.
func trimTrailingNUL(b []byte) []byte {
	if len(b) > 0 && b[len(b)-1] == 0 {
		return b[:len(b)-1]
	}
	return b
}

package drive

import (
	"context"
	"encoding/binary"

	"github.com/wfetut/rdpclient/internal/logger"
	"github.com/wfetut/rdpclient/internal/rdperrors"
	"github.com/wfetut/rdpclient/internal/rdpdr"
	"github.com/wfetut/rdpclient/internal/tdp"
)

// Callbacks emit the seven TDP request kinds this client issues for IRPs
// that require a host round trip, one per completion table.
type Callbacks struct {
	SendInfoRequest   func(tdp.InfoRequest)
	SendCreateRequest func(tdp.CreateRequest)
	SendDeleteRequest func(tdp.DeleteRequest)
	SendListRequest   func(tdp.ListRequest)
	SendReadRequest   func(tdp.ReadRequest)
	SendWriteRequest  func(tdp.WriteRequest)
	SendMoveRequest   func(tdp.MoveRequest)
}

// Client is the per-session directory (drive) client for one announced
// shared directory: it owns that directory's file cache and seven
// completion tables and is the sole place IRPs against DeviceID are
// dispatched from. It is not safe for concurrent use; the owning Session
// serializes all access, per the single-goroutine concurrency model.
type Client struct {
	DirectoryID uint32
	DeviceID    uint32

	cache *Cache
	cb    Callbacks

	infoTable   map[uint32]pendingInfo
	createTable map[uint32]pendingCreate
	deleteTable map[uint32]pendingDelete
	listTable   map[uint32]pendingList
	readTable   map[uint32]pendingRead
	writeTable  map[uint32]pendingWrite
	moveTable   map[uint32]pendingMove
}

// New returns a Client for one announced shared directory. deviceID is
// also used as the TDP directory_id: the host's announce acknowledgement
// correlates the two one-to-one.
func New(deviceID uint32, cb Callbacks) *Client {
	return &Client{
		DirectoryID: deviceID,
		DeviceID:    deviceID,
		cache:       NewCache(),
		cb:          cb,
		infoTable:   make(map[uint32]pendingInfo),
		createTable: make(map[uint32]pendingCreate),
		deleteTable: make(map[uint32]pendingDelete),
		listTable:   make(map[uint32]pendingList),
		readTable:   make(map[uint32]pendingRead),
		writeTable:  make(map[uint32]pendingWrite),
		moveTable:   make(map[uint32]pendingMove),
	}
}

// OwnsCompletion reports whether completionID is registered in one of
// this client's seven pending tables, so the owning Session can route an
// inbound TDP response to the right directory without the TDP response
// types themselves carrying a directory id.
func (c *Client) OwnsCompletion(completionID uint32) bool {
	if _, ok := c.infoTable[completionID]; ok {
		return true
	}
	if _, ok := c.createTable[completionID]; ok {
		return true
	}
	if _, ok := c.deleteTable[completionID]; ok {
		return true
	}
	if _, ok := c.listTable[completionID]; ok {
		return true
	}
	if _, ok := c.readTable[completionID]; ok {
		return true
	}
	if _, ok := c.writeTable[completionID]; ok {
		return true
	}
	if _, ok := c.moveTable[completionID]; ok {
		return true
	}
	return false
}

// OpenHandleCount reports the number of live file cache handles, for the
// active-file-handle gauge.
func (c *Client) OpenHandleCount() int {
	return c.cache.Len()
}

// PendingCompletionCount reports the total number of in-flight
// continuations across all seven tables, for the completion-table
// occupancy gauge.
func (c *Client) PendingCompletionCount() int {
	return len(c.infoTable) + len(c.createTable) + len(c.deleteTable) +
		len(c.listTable) + len(c.readTable) + len(c.writeTable) + len(c.moveTable)
}

func (c *Client) completion(req rdpdr.DeviceIORequest, status uint32, body []byte) []byte {
	header := rdpdr.EncodeDeviceIOCompletionHeader(req.DeviceID, req.CompletionID, status)
	return append(header, body...)
}

// HandleDeviceIORequest routes one inbound DEVICE_IOREQUEST against this
// client's device id. A nil, nil return means the request requires a TDP
// round trip and was already dispatched via Callbacks; the eventual
// DEVICE_IOCOMPLETION is produced later by the matching Deliver*Response.
func (c *Client) HandleDeviceIORequest(ctx context.Context, req rdpdr.DeviceIORequest, body []byte) ([]byte, error) {
	switch req.MajorFunction {
	case rdpdr.IRPMjDeviceControl:
		return c.completion(req, rdpdr.StatusSuccess, EncodeEmptyControlResponse()), nil
	case rdpdr.IRPMjCreate:
		return c.handleCreate(req, body)
	case rdpdr.IRPMjClose:
		return c.handleClose(req)
	case rdpdr.IRPMjQueryInformation:
		return c.handleQueryInformation(req, body)
	case rdpdr.IRPMjDirectoryControl:
		return c.handleDirectoryControl(req, body)
	case rdpdr.IRPMjQueryVolumeInfo:
		return c.handleQueryVolumeInformation(req, body)
	case rdpdr.IRPMjRead:
		return c.handleRead(req, body)
	case rdpdr.IRPMjWrite:
		return c.handleWrite(req, body)
	case rdpdr.IRPMjSetInformation:
		return c.handleSetInformation(req, body)
	default:
		logger.WarnCtx(ctx, "rdpdr: unsupported major function on drive device", logger.MajorFunction(req.MajorFunction), logger.DeviceID(req.DeviceID))
		return c.completion(req, rdpdr.StatusNotSupported, nil), nil
	}
}

// --- IRP_MJ_CREATE ---

func (c *Client) handleCreate(req rdpdr.DeviceIORequest, body []byte) ([]byte, error) {
	createReq, err := DecodeCreateRequest(body)
	if err != nil {
		return nil, err
	}
	path := tdp.WindowsPath(createReq.Path).ToPOSIX()

	c.infoTable[req.CompletionID] = pendingInfo{purpose: infoPurposeCreate, req: req, create: createReq}
	c.cb.SendInfoRequest(tdp.InfoRequest{CompletionID: req.CompletionID, DirectoryID: c.DirectoryID, Path: path})
	return nil, nil
}

func (c *Client) continueCreate(pending pendingInfo, resp tdp.InfoResponse) ([]byte, error) {
	req := pending.req

	switch resp.ErrCode {
	case tdp.ErrCodeNil, tdp.ErrCodeDoesNotExist:
	default:
		return c.completion(req, rdpdr.StatusUnsuccessful, EncodeCreateResponse(0, InfoSuperseded)), nil
	}
	exists := resp.ErrCode == tdp.ErrCodeNil
	var targetType tdp.FileType
	if exists {
		targetType = resp.FSO.FileType
	}

	action, status, information := decideCreate(pending.create.Disposition, exists, targetType, pending.create.CreateOptions)
	if status != rdpdr.StatusSuccess {
		return c.completion(req, status, EncodeCreateResponse(0, information)), nil
	}

	path := tdp.WindowsPath(pending.create.Path).ToPOSIX()

	switch action {
	case actionOpenExisting:
		fileID := c.cache.Insert(&FileCacheObject{Path: path, FSO: resp.FSO})
		return c.completion(req, rdpdr.StatusSuccess, EncodeCreateResponse(fileID, information)), nil

	case actionOverwrite:
		c.deleteTable[req.CompletionID] = pendingDelete{purpose: deletePurposeOverwrite, req: req, path: path, information: information}
		c.cb.SendDeleteRequest(tdp.DeleteRequest{CompletionID: req.CompletionID, DirectoryID: c.DirectoryID, Path: path})
		return nil, nil

	case actionCreateRegular, actionCreateDirectory:
		fileType := tdp.FileTypeFile
		if action == actionCreateDirectory {
			fileType = tdp.FileTypeDirectory
		}
		c.createTable[req.CompletionID] = pendingCreate{req: req, information: information}
		c.cb.SendCreateRequest(tdp.CreateRequest{CompletionID: req.CompletionID, DirectoryID: c.DirectoryID, Path: path, FileType: fileType})
		return nil, nil

	default:
		return c.completion(req, rdpdr.StatusUnsuccessful, EncodeCreateResponse(0, information)), nil
	}
}

// DeliverInfoResponse resumes whichever IRP is awaiting the
// SharedDirectoryInfoResponse identified by resp.CompletionID.
func (c *Client) DeliverInfoResponse(resp tdp.InfoResponse) ([]byte, error) {
	pending, ok := c.infoTable[resp.CompletionID]
	if !ok {
		return nil, rdperrors.TDPMismatch(rdpdr.ChannelName, "SharedDirectoryInfoResponse for unknown completion id")
	}
	delete(c.infoTable, resp.CompletionID)

	switch pending.purpose {
	case infoPurposeCreate:
		return c.continueCreate(pending, resp)
	case infoPurposeRename:
		return c.continueRename(pending, resp)
	default:
		return nil, rdperrors.Protocol(rdpdr.ChannelName, "unknown pending SharedDirectoryInfoRequest purpose")
	}
}

// DeliverCreateResponse resumes the IRP_MJ_CREATE awaiting the
// SharedDirectoryCreateResponse identified by resp.CompletionID.
func (c *Client) DeliverCreateResponse(resp tdp.CreateResponse) ([]byte, error) {
	pending, ok := c.createTable[resp.CompletionID]
	if !ok {
		return nil, rdperrors.TDPMismatch(rdpdr.ChannelName, "SharedDirectoryCreateResponse for unknown completion id")
	}
	delete(c.createTable, resp.CompletionID)

	if resp.ErrCode != tdp.ErrCodeNil {
		return c.completion(pending.req, rdpdr.StatusUnsuccessful, EncodeCreateResponse(0, pending.information)), nil
	}
	fileID := c.cache.Insert(&FileCacheObject{Path: resp.FSO.Path, FSO: resp.FSO})
	return c.completion(pending.req, rdpdr.StatusSuccess, EncodeCreateResponse(fileID, pending.information)), nil
}

// DeliverDeleteResponse resumes whichever IRP is awaiting the
// SharedDirectoryDeleteResponse identified by resp.CompletionID: either
// IRP_MJ_CLOSE's delete_pending cleanup, or the first half of a CREATE
// overwrite.
func (c *Client) DeliverDeleteResponse(resp tdp.DeleteResponse) ([]byte, error) {
	pending, ok := c.deleteTable[resp.CompletionID]
	if !ok {
		return nil, rdperrors.TDPMismatch(rdpdr.ChannelName, "SharedDirectoryDeleteResponse for unknown completion id")
	}
	delete(c.deleteTable, resp.CompletionID)

	if resp.ErrCode != tdp.ErrCodeNil {
		return c.completion(pending.req, rdpdr.StatusUnsuccessful, nil), nil
	}

	switch pending.purpose {
	case deletePurposeClose:
		c.cache.Remove(pending.req.FileID)
		return c.completion(pending.req, rdpdr.StatusSuccess, nil), nil
	case deletePurposeOverwrite:
		c.createTable[pending.req.CompletionID] = pendingCreate{req: pending.req, information: pending.information}
		c.cb.SendCreateRequest(tdp.CreateRequest{CompletionID: pending.req.CompletionID, DirectoryID: c.DirectoryID, Path: pending.path, FileType: tdp.FileTypeFile})
		return nil, nil
	default:
		return nil, rdperrors.Protocol(rdpdr.ChannelName, "unknown pending SharedDirectoryDeleteRequest purpose")
	}
}

// --- IRP_MJ_CLOSE ---

func (c *Client) handleClose(req rdpdr.DeviceIORequest) ([]byte, error) {
	fco, ok := c.cache.Get(req.FileID)
	if !ok {
		return nil, rdperrors.TDPMismatch(rdpdr.ChannelName, "IRP_MJ_CLOSE for unknown file id")
	}
	if !fco.DeletePending {
		c.cache.Remove(req.FileID)
		return c.completion(req, rdpdr.StatusSuccess, nil), nil
	}

	c.deleteTable[req.CompletionID] = pendingDelete{purpose: deletePurposeClose, req: req}
	c.cb.SendDeleteRequest(tdp.DeleteRequest{CompletionID: req.CompletionID, DirectoryID: c.DirectoryID, Path: fco.Path})
	return nil, nil
}

// --- IRP_MJ_QUERY_INFORMATION ---

func (c *Client) handleQueryInformation(req rdpdr.DeviceIORequest, body []byte) ([]byte, error) {
	fco, ok := c.cache.Get(req.FileID)
	if !ok {
		return nil, rdperrors.TDPMismatch(rdpdr.ChannelName, "IRP_MJ_QUERY_INFORMATION for unknown file id")
	}
	if len(body) < 4 {
		return nil, rdperrors.Protocol(rdpdr.ChannelName, "DR_QUERY_INFORMATION_REQ shorter than fixed header")
	}

	switch binary.LittleEndian.Uint32(body[0:4]) {
	case FileBasicInformation:
		return c.completion(req, rdpdr.StatusSuccess, lengthPrefixed(EncodeBasicInformation(fco.FSO))), nil
	case FileStandardInformation:
		return c.completion(req, rdpdr.StatusSuccess, lengthPrefixed(EncodeStandardInformation(fco.FSO))), nil
	default:
		return c.completion(req, rdpdr.StatusNotSupported, nil), nil
	}
}

// --- IRP_MJ_QUERY_VOLUME_INFORMATION ---

func (c *Client) handleQueryVolumeInformation(req rdpdr.DeviceIORequest, body []byte) ([]byte, error) {
	fco, ok := c.cache.Get(req.FileID)
	if !ok {
		return nil, rdperrors.TDPMismatch(rdpdr.ChannelName, "IRP_MJ_QUERY_VOLUME_INFORMATION for unknown file id")
	}
	if len(body) < 4 {
		return nil, rdperrors.Protocol(rdpdr.ChannelName, "DR_QUERY_VOLUME_INFORMATION_REQ shorter than fixed header")
	}

	info, ok := EncodeVolumeInformation(binary.LittleEndian.Uint32(body[0:4]), fco)
	if !ok {
		return c.completion(req, rdpdr.StatusUnsuccessful, nil), nil
	}
	return c.completion(req, rdpdr.StatusSuccess, lengthPrefixed(info)), nil
}

func lengthPrefixed(info []byte) []byte {
	out := make([]byte, 4+len(info))
	binary.LittleEndian.PutUint32(out[0:4], uint32(len(info)))
	copy(out[4:], info)
	return out
}

// --- IRP_MJ_DIRECTORY_CONTROL / IRP_MN_QUERY_DIRECTORY ---

func (c *Client) handleDirectoryControl(req rdpdr.DeviceIORequest, body []byte) ([]byte, error) {
	if req.MinorFunction != rdpdr.IRPMnQueryDirectory {
		return c.completion(req, rdpdr.StatusNotSupported, nil), nil
	}

	qreq, err := DecodeQueryDirectoryRequest(body)
	if err != nil {
		return nil, err
	}
	fco, ok := c.cache.Get(req.FileID)
	if !ok {
		return nil, rdperrors.TDPMismatch(rdpdr.ChannelName, "IRP_MN_QUERY_DIRECTORY for unknown file id")
	}

	if qreq.RestartScan {
		fco.ResetScan()
	}

	if qreq.InitialQuery {
		c.listTable[req.CompletionID] = pendingList{req: req, fsInformationClass: qreq.FsInformationClass}
		c.cb.SendListRequest(tdp.ListRequest{CompletionID: req.CompletionID, DirectoryID: c.DirectoryID, Path: fco.Path})
		return nil, nil
	}
	return c.nextDirectoryReply(req, fco, qreq.FsInformationClass), nil
}

func (c *Client) nextDirectoryReply(req rdpdr.DeviceIORequest, fco *FileCacheObject, fsInformationClass uint32) []byte {
	entry, name, ok := nextDirectoryEntry(fco)
	if !ok {
		return c.completion(req, rdpdr.StatusNoMoreFiles, EncodeNoMoreFiles())
	}
	return c.completion(req, rdpdr.StatusSuccess, EncodeDirectoryEntry(fsInformationClass, entry, name))
}

// DeliverListResponse resumes the QUERY_DIRECTORY IRP awaiting the
// SharedDirectoryListResponse identified by resp.CompletionID.
func (c *Client) DeliverListResponse(resp tdp.ListResponse) ([]byte, error) {
	pending, ok := c.listTable[resp.CompletionID]
	if !ok {
		return nil, rdperrors.TDPMismatch(rdpdr.ChannelName, "SharedDirectoryListResponse for unknown completion id")
	}
	delete(c.listTable, resp.CompletionID)

	if resp.ErrCode != tdp.ErrCodeNil {
		return c.completion(pending.req, rdpdr.StatusUnsuccessful, nil), nil
	}

	fco, ok := c.cache.Get(pending.req.FileID)
	if !ok {
		return nil, rdperrors.TDPMismatch(rdpdr.ChannelName, "SharedDirectoryListResponse for unknown file id")
	}
	fco.Contents = resp.FSOList
	fco.FSO.IsEmpty = len(resp.FSOList) == 0

	return c.nextDirectoryReply(pending.req, fco, pending.fsInformationClass), nil
}

// --- IRP_MJ_READ ---

func (c *Client) handleRead(req rdpdr.DeviceIORequest, body []byte) ([]byte, error) {
	fco, ok := c.cache.Get(req.FileID)
	if !ok {
		return nil, rdperrors.TDPMismatch(rdpdr.ChannelName, "IRP_MJ_READ for unknown file id")
	}
	rreq, err := DecodeReadRequest(body)
	if err != nil {
		return nil, err
	}

	c.readTable[req.CompletionID] = pendingRead{req: req}
	c.cb.SendReadRequest(tdp.ReadRequest{CompletionID: req.CompletionID, DirectoryID: c.DirectoryID, Path: fco.Path, Offset: rreq.Offset, Length: rreq.Length})
	return nil, nil
}

// DeliverReadResponse resumes the IRP_MJ_READ awaiting the
// SharedDirectoryReadResponse identified by resp.CompletionID.
func (c *Client) DeliverReadResponse(resp tdp.ReadResponse) ([]byte, error) {
	pending, ok := c.readTable[resp.CompletionID]
	if !ok {
		return nil, rdperrors.TDPMismatch(rdpdr.ChannelName, "SharedDirectoryReadResponse for unknown completion id")
	}
	delete(c.readTable, resp.CompletionID)

	if resp.ErrCode != tdp.ErrCodeNil {
		return c.completion(pending.req, rdpdr.StatusUnsuccessful, EncodeReadResponse(nil)), nil
	}
	return c.completion(pending.req, rdpdr.StatusSuccess, EncodeReadResponse(resp.ReadData)), nil
}

// --- IRP_MJ_WRITE ---

func (c *Client) handleWrite(req rdpdr.DeviceIORequest, body []byte) ([]byte, error) {
	fco, ok := c.cache.Get(req.FileID)
	if !ok {
		return nil, rdperrors.TDPMismatch(rdpdr.ChannelName, "IRP_MJ_WRITE for unknown file id")
	}
	wreq, err := DecodeWriteRequest(body)
	if err != nil {
		return nil, err
	}

	c.writeTable[req.CompletionID] = pendingWrite{req: req}
	c.cb.SendWriteRequest(tdp.WriteRequest{CompletionID: req.CompletionID, DirectoryID: c.DirectoryID, Path: fco.Path, Offset: wreq.Offset, WriteData: wreq.Data})
	return nil, nil
}

// DeliverWriteResponse resumes the IRP_MJ_WRITE awaiting the
// SharedDirectoryWriteResponse identified by resp.CompletionID.
func (c *Client) DeliverWriteResponse(resp tdp.WriteResponse) ([]byte, error) {
	pending, ok := c.writeTable[resp.CompletionID]
	if !ok {
		return nil, rdperrors.TDPMismatch(rdpdr.ChannelName, "SharedDirectoryWriteResponse for unknown completion id")
	}
	delete(c.writeTable, resp.CompletionID)

	if resp.ErrCode != tdp.ErrCodeNil {
		return c.completion(pending.req, rdpdr.StatusUnsuccessful, EncodeWriteResponse(0)), nil
	}
	return c.completion(pending.req, rdpdr.StatusSuccess, EncodeWriteResponse(resp.BytesWritten)), nil
}

// --- IRP_MJ_SET_INFORMATION ---

func (c *Client) handleSetInformation(req rdpdr.DeviceIORequest, body []byte) ([]byte, error) {
	fco, ok := c.cache.Get(req.FileID)
	if !ok {
		return nil, rdperrors.TDPMismatch(rdpdr.ChannelName, "IRP_MJ_SET_INFORMATION for unknown file id")
	}
	sreq, err := DecodeSetInformationRequest(body)
	if err != nil {
		return nil, err
	}

	successStatus := uint32(rdpdr.StatusSuccess)
	if fco.IsDirectory() && !fco.FSO.IsEmpty {
		successStatus = rdpdr.StatusDirectoryNotEmpty
	}

	switch sreq.FileInformationClass {
	case FileDispositionInformation:
		if successStatus == rdpdr.StatusSuccess {
			fco.DeletePending = DecodeDispositionInformation(sreq.SetBuffer)
		}
		return c.completion(req, successStatus, EncodeSetInformationResponse(uint32(len(sreq.SetBuffer)))), nil

	case FileRenameInformation:
		rename, err := DecodeRenameInformation(sreq.SetBuffer)
		if err != nil {
			return nil, err
		}
		newPath := tdp.WindowsPath(rename.NewName).ToPOSIX()
		if rename.ReplaceIfExists {
			c.sendMove(req, fco.Path, newPath)
			return nil, nil
		}
		c.infoTable[req.CompletionID] = pendingInfo{purpose: infoPurposeRename, req: req, renameFrom: fco.Path, renameTo: newPath}
		c.cb.SendInfoRequest(tdp.InfoRequest{CompletionID: req.CompletionID, DirectoryID: c.DirectoryID, Path: newPath})
		return nil, nil

	case FileBasicInformation, FileEndOfFileInformation, FileAllocationInformation:
		return c.completion(req, successStatus, EncodeSetInformationResponse(uint32(len(sreq.SetBuffer)))), nil

	default:
		return c.completion(req, rdpdr.StatusNotSupported, nil), nil
	}
}

func (c *Client) sendMove(req rdpdr.DeviceIORequest, from, to tdp.POSIXPath) {
	c.moveTable[req.CompletionID] = pendingMove{req: req, newPath: to}
	c.cb.SendMoveRequest(tdp.MoveRequest{CompletionID: req.CompletionID, DirectoryID: c.DirectoryID, OriginalPath: from, NewPath: to})
}

func (c *Client) continueRename(pending pendingInfo, resp tdp.InfoResponse) ([]byte, error) {
	if resp.ErrCode == tdp.ErrCodeNil {
		return c.completion(pending.req, rdpdr.StatusObjectNameCollision, EncodeSetInformationResponse(0)), nil
	}
	if resp.ErrCode != tdp.ErrCodeDoesNotExist {
		return c.completion(pending.req, rdpdr.StatusUnsuccessful, EncodeSetInformationResponse(0)), nil
	}
	c.sendMove(pending.req, pending.renameFrom, pending.renameTo)
	return nil, nil
}

// DeliverMoveResponse resumes the IRP_MJ_SET_INFORMATION rename awaiting
// the SharedDirectoryMoveResponse identified by resp.CompletionID.
func (c *Client) DeliverMoveResponse(resp tdp.MoveResponse) ([]byte, error) {
	pending, ok := c.moveTable[resp.CompletionID]
	if !ok {
		return nil, rdperrors.TDPMismatch(rdpdr.ChannelName, "SharedDirectoryMoveResponse for unknown completion id")
	}
	delete(c.moveTable, resp.CompletionID)

	if resp.ErrCode != tdp.ErrCodeNil {
		return c.completion(pending.req, rdpdr.StatusUnsuccessful, EncodeSetInformationResponse(0)), nil
	}
	if fco, ok := c.cache.Get(pending.req.FileID); ok {
		fco.Path = pending.newPath
	}
	return c.completion(pending.req, rdpdr.StatusSuccess, EncodeSetInformationResponse(0)), nil
}

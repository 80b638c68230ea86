package drive

import (
	"github.com/wfetut/rdpclient/internal/rdpdr"
	"github.com/wfetut/rdpclient/internal/tdp"
)

// infoPurpose distinguishes the two reasons this client probes a path with
// a SharedDirectoryInfoRequest: deciding a CREATE disposition, or checking
// whether a rename's destination already exists.
type infoPurpose int

const (
	infoPurposeCreate infoPurpose = iota
	infoPurposeRename
)

// pendingInfo is the continuation stored while a SharedDirectoryInfoRequest
// is in flight.
type pendingInfo struct {
	purpose    infoPurpose
	req        rdpdr.DeviceIORequest
	create     CreateRequest // meaningful when purpose == infoPurposeCreate
	renameFrom tdp.POSIXPath // meaningful when purpose == infoPurposeRename
	renameTo   tdp.POSIXPath // meaningful when purpose == infoPurposeRename
}

// pendingCreate is the continuation stored while a SharedDirectoryCreateRequest
// is in flight.
type pendingCreate struct {
	req         rdpdr.DeviceIORequest
	information byte
}

// deletePurpose distinguishes a delete issued to honor IRP_MJ_CLOSE's
// delete_pending from one issued as the first half of a CREATE overwrite.
type deletePurpose int

const (
	deletePurposeClose deletePurpose = iota
	deletePurposeOverwrite
)

// pendingDelete is the continuation stored while a SharedDirectoryDeleteRequest
// is in flight.
type pendingDelete struct {
	purpose     deletePurpose
	req         rdpdr.DeviceIORequest
	path        tdp.POSIXPath // meaningful when purpose == deletePurposeOverwrite
	information byte          // meaningful when purpose == deletePurposeOverwrite
}

// pendingList is the continuation stored while a SharedDirectoryListRequest
// is in flight.
type pendingList struct {
	req                rdpdr.DeviceIORequest
	fsInformationClass uint32
}

// pendingRead is the continuation stored while a SharedDirectoryReadRequest
// is in flight.
type pendingRead struct {
	req rdpdr.DeviceIORequest
}

// pendingWrite is the continuation stored while a SharedDirectoryWriteRequest
// is in flight.
type pendingWrite struct {
	req rdpdr.DeviceIORequest
}

// pendingMove is the continuation stored while a SharedDirectoryMoveRequest
// is in flight.
type pendingMove struct {
	req     rdpdr.DeviceIORequest
	newPath tdp.POSIXPath
}

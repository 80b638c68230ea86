package drive

import (
	"github.com/wfetut/rdpclient/internal/rdpdr"
	"github.com/wfetut/rdpclient/internal/tdp"
)

// CreateDisposition values ([MS-FSCC] 2.4.22 CreateDisposition) relevant to
// IRP_MJ_CREATE.
const (
	DispositionSupersede   uint32 = 0
	DispositionOpen        uint32 = 1
	DispositionCreate      uint32 = 2
	DispositionOpenIf      uint32 = 3
	DispositionOverwrite   uint32 = 4
	DispositionOverwriteIf uint32 = 5
)

// CreateOptions bits this core inspects.
const (
	OptionDirectoryFile    uint32 = 0x00000001
	OptionNonDirectoryFile uint32 = 0x00000040
)

// DR_CREATE_RSP Information byte values.
const (
	InfoSuperseded  byte = 0
	InfoOpened      byte = 1
	InfoCreated     byte = 2
	InfoOverwritten byte = 3
)

// createAction is the side effect decideCreate resolves an IRP_MJ_CREATE
// to, once the disposition matrix has been applied.
type createAction int

const (
	actionFail createAction = iota
	actionOpenExisting
	actionCreateRegular
	actionCreateDirectory
	actionOverwrite
)

// decideCreate implements the CREATE disposition matrix: given the
// disposition requested by the IRP, whether a probe found the target
// (exists), its type when found (targetType), and the requested create
// options, it resolves the action to take, the NTSTATUS to report, and
// the DR_CREATE_RSP Information byte.
//
// The orthogonal checks (directory/file-type mismatches, FILE_DIRECTORY_FILE
// against a missing path) are applied before the per-disposition rules;
// either can short-circuit to a failure the per-disposition switch never
// reaches.
func decideCreate(disposition uint32, exists bool, targetType tdp.FileType, createOptions uint32) (createAction, uint32, byte) {
	action, status := resolveCreate(disposition, exists, targetType, createOptions)
	return action, status, informationFor(disposition, status)
}

func resolveCreate(disposition uint32, exists bool, targetType tdp.FileType, createOptions uint32) (createAction, uint32) {
	switch {
	case exists && targetType == tdp.FileTypeDirectory && disposition == DispositionCreate:
		return actionFail, rdpdr.StatusObjectNameCollision
	case exists && targetType == tdp.FileTypeDirectory && createOptions&OptionNonDirectoryFile != 0:
		return actionFail, rdpdr.StatusAccessDenied
	case exists && targetType == tdp.FileTypeFile && createOptions&OptionDirectoryFile != 0:
		return actionFail, rdpdr.StatusNotADirectory
	case !exists && createOptions&OptionDirectoryFile != 0:
		if disposition == DispositionOpenIf || disposition == DispositionCreate {
			return actionCreateDirectory, rdpdr.StatusSuccess
		}
		return actionFail, rdpdr.StatusNoSuchFile
	}

	switch disposition {
	case DispositionSupersede:
		if exists {
			return actionOverwrite, rdpdr.StatusSuccess
		}
		return actionCreateRegular, rdpdr.StatusSuccess
	case DispositionOpen:
		if exists {
			return actionOpenExisting, rdpdr.StatusSuccess
		}
		return actionFail, rdpdr.StatusNoSuchFile
	case DispositionCreate:
		if exists {
			return actionFail, rdpdr.StatusObjectNameCollision
		}
		return actionCreateRegular, rdpdr.StatusSuccess
	case DispositionOpenIf:
		if exists {
			return actionOpenExisting, rdpdr.StatusSuccess
		}
		return actionCreateRegular, rdpdr.StatusSuccess
	case DispositionOverwrite:
		if exists {
			return actionOverwrite, rdpdr.StatusSuccess
		}
		return actionFail, rdpdr.StatusNoSuchFile
	case DispositionOverwriteIf:
		if exists {
			return actionOverwrite, rdpdr.StatusSuccess
		}
		return actionCreateRegular, rdpdr.StatusSuccess
	default:
		return actionFail, rdpdr.StatusNotSupported
	}
}

// informationFor reports the DR_CREATE_RSP Information byte: SUPERSEDED on
// any failure or for {SUPERSEDE, OPEN, CREATE, OVERWRITE}; OPENED for
// OPEN_IF; OVERWRITTEN for OVERWRITE_IF.
func informationFor(disposition, status uint32) byte {
	if status != rdpdr.StatusSuccess {
		return InfoSuperseded
	}
	switch disposition {
	case DispositionOpenIf:
		return InfoOpened
	case DispositionOverwriteIf:
		return InfoOverwritten
	default:
		return InfoSuperseded
	}
}

// Package drive implements the RDPDR directory (drive) client: IRP
// dispatch against a shared directory, mediated by a file cache and an
// async completion table keyed by CompletionId, per [MS-RDPEFS]'s
// directory-redirection IRP surface.
package drive

import "github.com/wfetut/rdpclient/internal/tdp"

// FileCacheObject is the state kept for one open Windows file handle: a
// POSIX path, the cached FileSystemObject, and — for a directory handle —
// the lazily-populated, cursor-driven listing iterator.
type FileCacheObject struct {
	Path          tdp.POSIXPath
	DeletePending bool
	FSO           tdp.FileSystemObject
	Contents      []tdp.FileSystemObject
	Cursor        int
	DotSent       bool
	DotDotSent    bool
}

// IsDirectory reports whether this handle names a directory.
func (f *FileCacheObject) IsDirectory() bool {
	return f.FSO.FileType == tdp.FileTypeDirectory
}

// ResetScan rewinds the QUERY_DIRECTORY iterator to its start without
// discarding the cached Contents, for IRP_MN_QUERY_DIRECTORY requests
// carrying SL_RESTART_SCAN.
func (f *FileCacheObject) ResetScan() {
	f.Cursor = 0
	f.DotSent = false
	f.DotDotSent = false
}

// Cache is the file_id → FileCacheObject arena. file_id is produced by a
// monotonically wrapping, non-zero generator and is never reused while
// the handle it names is live, per the directory client's invariants.
type Cache struct {
	objects map[uint32]*FileCacheObject
	nextID  uint32
}

// NewCache returns an empty file-cache arena.
func NewCache() *Cache {
	return &Cache{objects: make(map[uint32]*FileCacheObject)}
}

// Insert allocates a fresh file_id for fco, stores it, and returns the id.
func (c *Cache) Insert(fco *FileCacheObject) uint32 {
	id := c.allocateID()
	c.objects[id] = fco
	return id
}

func (c *Cache) allocateID() uint32 {
	for {
		c.nextID++
		if c.nextID == 0 {
			continue // skip the reserved zero value on wraparound
		}
		if _, taken := c.objects[c.nextID]; !taken {
			return c.nextID
		}
	}
}

// Get returns the FileCacheObject for fileID, if live.
func (c *Cache) Get(fileID uint32) (*FileCacheObject, bool) {
	fco, ok := c.objects[fileID]
	return fco, ok
}

// Remove destroys the handle, per IRP_MJ_CLOSE.
func (c *Cache) Remove(fileID uint32) {
	delete(c.objects, fileID)
}

// Len reports the number of live handles, for the active-file-handle gauge.
func (c *Cache) Len() int {
	return len(c.objects)
}

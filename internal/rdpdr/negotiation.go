package rdpdr

import "fmt"

// Negotiator drives the server-initiated ANNOUNCE/CAPABILITY/
// CLIENTID_CONFIRM/DEVICELIST_ANNOUNCE exchange described in spec.md §4.3.
// It tracks which device ids and drive names are already active so a
// second announced drive with a colliding name can be disambiguated, and
// so the smart-card device id is always retrievable at index 0.
type Negotiator struct {
	AllowDirectorySharing bool

	activeDeviceIDs   []uint32
	activeDriveNames  map[string]bool
	smartcardDeviceID uint32
	haveSmartcard     bool
}

// NewNegotiator returns a Negotiator for one session.
func NewNegotiator(allowDirectorySharing bool) *Negotiator {
	return &Negotiator{
		AllowDirectorySharing: allowDirectorySharing,
		activeDriveNames:      make(map[string]bool),
	}
}

// AnnounceSmartcard registers the smart-card device id (always the first
// entry in active_device_ids) and returns its DEVICELIST_ANNOUNCE entry.
func (n *Negotiator) AnnounceSmartcard() DeviceAnnounce {
	d := SmartcardDeviceAnnounce()
	n.smartcardDeviceID = d.DeviceID
	n.haveSmartcard = true
	n.activeDeviceIDs = append([]uint32{d.DeviceID}, n.activeDeviceIDs...)
	return d
}

// SmartcardDeviceID returns the smart-card device id and whether one has
// been announced yet.
func (n *Negotiator) SmartcardDeviceID() (uint32, bool) {
	return n.smartcardDeviceID, n.haveSmartcard
}

// AnnounceDrive registers a new shared-directory device, disambiguating
// its 8-byte preferred_dos_name against already-active drive names with a
// numeric "~1"-style suffix, per the original implementation's announce
// path. The 7-character base is trimmed so that base and suffix together
// still fit in 7 characters.
func (n *Negotiator) AnnounceDrive(deviceID uint32, name string) DeviceAnnounce {
	dosBase := name
	if len(dosBase) > 7 {
		dosBase = dosBase[:7]
	}

	dosName := dosBase
	for suffix := 1; n.activeDriveNames[dosName]; suffix++ {
		tag := fmt.Sprintf("~%d", suffix)
		trimmed := dosBase
		if len(trimmed) > 7-len(tag) {
			trimmed = trimmed[:7-len(tag)]
		}
		dosName = trimmed + tag
	}

	n.activeDriveNames[dosName] = true
	n.activeDeviceIDs = append(n.activeDeviceIDs, deviceID)

	return DeviceAnnounce{
		DeviceID:         deviceID,
		DeviceType:       DeviceTypeFileSystem,
		PreferredDosName: dosName,
		DeviceData:       []byte(name),
	}
}

// IsActiveDevice reports whether deviceID has already been announced.
func (n *Negotiator) IsActiveDevice(deviceID uint32) bool {
	for _, id := range n.activeDeviceIDs {
		if id == deviceID {
			return true
		}
	}
	return false
}

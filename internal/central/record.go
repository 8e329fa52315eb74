package central

import (
	"strings"
	"time"

	"github.com/srg/blecentral/internal/transport"
)

// ConnectStatus is the connection lifecycle state of a tracked device.
type ConnectStatus int

const (
	StatusDisconnected ConnectStatus = iota
	StatusScanning
	StatusConnecting
	StatusConnected
)

// MarshalJSON renders the status as its string form.
func (s ConnectStatus) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

func (s ConnectStatus) String() string {
	switch s {
	case StatusScanning:
		return "scanning"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// weight orders statuses by connection progress for snapshot ranking.
// Connected > Connecting > Scanning > Disconnected.
func (s ConnectStatus) weight() int {
	switch s {
	case StatusConnected:
		return 3
	case StatusConnecting:
		return 2
	case StatusScanning:
		return 1
	default:
		return 0
	}
}

// missingRSSI is the sort sentinel for devices that have not reported a
// signal strength yet; it ranks below any real dBm reading.
const missingRSSI = -300

// NormalizeIdentity lowercases an identity so registry lookups are
// case-insensitive across transports that report mixed-case identifiers.
func NormalizeIdentity(identity string) string {
	return strings.ToLower(strings.TrimSpace(identity))
}

// DeviceRecord holds one physical peripheral's observed attributes. Records
// are owned exclusively by the Registry; other components refer to devices
// by identity only and consume read-only DeviceView copies.
type DeviceRecord struct {
	identity string

	status        ConnectStatus
	rssi          *int
	name          string
	mac           string
	advertisement map[string]interface{}
	lastSeen      time.Time

	// handle is the transport-owned peripheral reference. It is never
	// shared outside the registry lookup methods.
	handle transport.Peripheral
}

func newDeviceRecord(identity string, handle transport.Peripheral) *DeviceRecord {
	return &DeviceRecord{
		identity: identity,
		status:   StatusScanning,
		handle:   handle,
		lastSeen: time.Now(),
	}
}

func (r *DeviceRecord) setRSSI(rssi int) {
	v := rssi
	r.rssi = &v
}

// sortRSSI returns the RSSI used for ranking, with the missing sentinel for
// devices that never reported one.
func (r *DeviceRecord) sortRSSI() int {
	if r.rssi == nil {
		return missingRSSI
	}
	return *r.rssi
}

// view copies the externally visible fields. The RSSI pointer is duplicated
// so callers can never reach back into the live record.
func (r *DeviceRecord) view() DeviceView {
	var rssi *int
	if r.rssi != nil {
		v := *r.rssi
		rssi = &v
	}
	return DeviceView{
		Identity: r.identity,
		Name:     r.name,
		MAC:      r.mac,
		RSSI:     rssi,
		Status:   r.status,
		LastSeen: r.lastSeen,
	}
}

// DeviceView is the read-only projection of a DeviceRecord handed to the UI
// collaborator in snapshots.
type DeviceView struct {
	Identity string        `json:"identity"`
	Name     string        `json:"name,omitempty"`
	MAC      string        `json:"mac,omitempty"`
	RSSI     *int          `json:"rssi,omitempty"`
	Status   ConnectStatus `json:"status"`
	LastSeen time.Time     `json:"last_seen"`
}

// sortRSSI mirrors DeviceRecord.sortRSSI for sorting snapshot views.
func (v DeviceView) sortRSSI() int {
	if v.RSSI == nil {
		return missingRSSI
	}
	return *v.RSSI
}

// DisplayName returns the best human-readable label for the device.
func (v DeviceView) DisplayName() string {
	if v.Name != "" {
		return v.Name
	}
	if v.MAC != "" {
		return v.MAC
	}
	return v.Identity
}

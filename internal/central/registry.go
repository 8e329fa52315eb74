package central

import (
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/srg/blecentral/internal/transport"
)

// Registry owns every DeviceRecord. Records live in exactly one of two
// partitions: scanned (discovered but not connect-tracked) or tracked
// (connect requested at some point). An identity appears in at most one
// partition at any instant.
//
// The registry holds no reference to the radio; the ConnectionController
// looks up transport handles here and issues the calls itself.
type Registry struct {
	mu       sync.RWMutex
	scanned  *orderedmap.OrderedMap[string, *DeviceRecord]
	tracked  *orderedmap.OrderedMap[string, *DeviceRecord]
	filter   ScanFilter
	notifier *Notifier
	logger   *logrus.Logger
}

// NewRegistry creates an empty registry publishing changes to notifier.
func NewRegistry(notifier *Notifier, logger *logrus.Logger) *Registry {
	if logger == nil {
		logger = logrus.New()
	}
	return &Registry{
		scanned:  orderedmap.New[string, *DeviceRecord](),
		tracked:  orderedmap.New[string, *DeviceRecord](),
		notifier: notifier,
		logger:   logger,
	}
}

// SetFilter installs the active scan filter. Applied only to first-seen
// devices; existing records keep updating regardless of the filter.
func (r *Registry) SetFilter(f ScanFilter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.filter = f
}

// Filter returns the active scan filter.
func (r *Registry) Filter() ScanFilter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.filter
}

// ClearScanned discards every record in the scanning partition. Called on
// scan start; connect-tracked records survive.
func (r *Registry) ClearScanned() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.scanned.Len() == 0 {
		return
	}
	r.scanned = orderedmap.New[string, *DeviceRecord]()
	r.publishLocked(Event{Kind: EventListReset})
}

// Discovered applies an advertisement to the registry. A known identity is
// updated in place (signal strength, payload, last-seen, opportunistic name);
// an unknown one is matched against the scan filter and, if accepted,
// entered into the scanning partition with status Scanning.
func (r *Registry) Discovered(identity string, handle transport.Peripheral, payload map[string]interface{}, rssi int, name, mac string) {
	id := NormalizeIdentity(identity)
	if id == "" {
		r.logger.Debug("Ignoring discovery with empty identity")
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if rec, ok := r.lookupLocked(id); ok {
		rec.setRSSI(rssi)
		rec.advertisement = payload
		rec.lastSeen = time.Now()
		rec.handle = handle
		if rec.name == "" && name != "" {
			rec.name = name
		}
		r.publishLocked(Event{Kind: EventRSSIChanged, Identity: id})
		return
	}

	if !r.filter.Matches(id, name, mac) {
		r.logger.WithFields(logrus.Fields{
			"identity": id,
			"prefix":   r.filter.Prefix,
		}).Debug("Discovery rejected by scan filter")
		return
	}

	rec := newDeviceRecord(id, handle)
	rec.setRSSI(rssi)
	rec.name = name
	rec.mac = mac
	rec.advertisement = payload
	r.scanned.Set(id, rec)

	r.logger.WithFields(logrus.Fields{
		"identity": id,
		"name":     name,
		"rssi":     rssi,
	}).Info("Discovered new device")
	r.publishLocked(Event{Kind: EventDeviceDiscovered, Identity: id})
}

// ConnectRequested validates and applies the connect precondition: a device
// already connecting or connected is not eligible, an unknown identity is
// not found. On success the record moves into the tracked partition with
// status Connecting and the transport handle is returned for the caller to
// dial.
func (r *Registry) ConnectRequested(identity string) (transport.Peripheral, error) {
	id := NormalizeIdentity(identity)

	r.mu.Lock()
	defer r.mu.Unlock()

	if rec, ok := r.tracked.Get(id); ok {
		if rec.status != StatusDisconnected {
			return nil, &RequestError{State: NotEligible, Identity: id}
		}
		// Retry after a failed or dropped connection.
		rec.status = StatusConnecting
		r.publishLocked(Event{Kind: EventStatusChanged, Identity: id})
		return rec.handle, nil
	}

	rec, ok := r.scanned.Get(id)
	if !ok {
		return nil, &RequestError{State: NotFound, Identity: id}
	}

	r.scanned.Delete(id)
	rec.status = StatusConnecting
	r.tracked.Set(id, rec)
	r.publishLocked(Event{Kind: EventStatusChanged, Identity: id})
	return rec.handle, nil
}

// DisconnectRequested removes the identity from both partitions, terminally.
// The handle is returned so the caller can cancel the radio connection; ok
// is false for an unknown identity (a logged no-op).
func (r *Registry) DisconnectRequested(identity string) (transport.Peripheral, bool) {
	id := NormalizeIdentity(identity)

	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.lookupLocked(id)
	if !ok {
		r.logger.WithField("identity", id).Debug("Disconnect for unknown identity")
		return nil, false
	}

	rec.status = StatusDisconnected
	r.scanned.Delete(id)
	r.tracked.Delete(id)
	r.publishLocked(Event{Kind: EventStatusChanged, Identity: id})
	return rec.handle, true
}

// TransportConnected marks a tracked device Connected. Events for unknown
// or untracked identities are logged no-ops.
func (r *Registry) TransportConnected(identity string) {
	r.setTrackedStatus(identity, StatusConnected)
}

// TransportConnectFailed marks the device Disconnected; the user may retry.
func (r *Registry) TransportConnectFailed(identity string) {
	r.setTrackedStatus(identity, StatusDisconnected)
}

// TransportDisconnected marks the device Disconnected after the radio link
// dropped.
func (r *Registry) TransportDisconnected(identity string) {
	r.setTrackedStatus(identity, StatusDisconnected)
}

func (r *Registry) setTrackedStatus(identity string, status ConnectStatus) {
	id := NormalizeIdentity(identity)

	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.tracked.Get(id)
	if !ok {
		r.logger.WithFields(logrus.Fields{
			"identity": id,
			"status":   status.String(),
		}).Debug("Status event for untracked identity")
		return
	}
	if rec.status == status {
		return
	}
	rec.status = status
	r.publishLocked(Event{Kind: EventStatusChanged, Identity: id})
}

// RSSIUpdated applies a signal strength reading to an existing record.
func (r *Registry) RSSIUpdated(identity string, rssi int) {
	id := NormalizeIdentity(identity)

	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.lookupLocked(id)
	if !ok {
		return
	}
	rec.setRSSI(rssi)
	rec.lastSeen = time.Now()
	r.publishLocked(Event{Kind: EventRSSIChanged, Identity: id})
}

// NameChanged applies a better device name, typically resolved after
// connecting.
func (r *Registry) NameChanged(identity, name string) {
	id := NormalizeIdentity(identity)

	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.lookupLocked(id)
	if !ok || name == "" || rec.name == name {
		return
	}
	rec.name = name
	r.publishLocked(Event{Kind: EventNameChanged, Identity: id})
}

// AdvertisementUpdated replaces the raw advertisement payload wholesale.
func (r *Registry) AdvertisementUpdated(identity string, payload map[string]interface{}) {
	id := NormalizeIdentity(identity)

	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.lookupLocked(id)
	if !ok {
		return
	}
	rec.advertisement = payload
	rec.lastSeen = time.Now()
	r.publishLocked(Event{Kind: EventDeviceDiscovered, Identity: id})
}

// ServiceEvent publishes a diagnostic GATT event (service discovery or write
// completion) for a known identity. No record state changes.
func (r *Registry) ServiceEvent(identity string, kind EventKind) {
	id := NormalizeIdentity(identity)

	r.mu.RLock()
	_, ok := r.lookupLocked(id)
	r.mu.RUnlock()
	if !ok {
		return
	}
	r.notifier.Publish(Event{Kind: kind, Identity: id})
}

// Handle returns the transport handle for an identity, from either
// partition.
func (r *Registry) Handle(identity string) (transport.Peripheral, bool) {
	id := NormalizeIdentity(identity)

	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.lookupLocked(id)
	if !ok {
		return nil, false
	}
	return rec.handle, true
}

// Snapshot merges both partitions into a freshly sorted device list:
// connection progress first, then stronger signal. Recomputed on every call;
// the returned views are copies and safe to use from any goroutine.
func (r *Registry) Snapshot() []DeviceView {
	r.mu.RLock()
	defer r.mu.RUnlock()

	views := make([]DeviceView, 0, r.scanned.Len()+r.tracked.Len())
	collect := func(m *orderedmap.OrderedMap[string, *DeviceRecord]) {
		for pair := m.Oldest(); pair != nil; pair = pair.Next() {
			views = append(views, pair.Value.view())
		}
	}
	collect(r.tracked)
	collect(r.scanned)

	sort.SliceStable(views, func(i, j int) bool {
		if wi, wj := views[i].Status.weight(), views[j].Status.weight(); wi != wj {
			return wi > wj
		}
		return views[i].sortRSSI() > views[j].sortRSSI()
	})
	return views
}

// lookupLocked finds a record in either partition. Caller holds r.mu.
func (r *Registry) lookupLocked(id string) (*DeviceRecord, bool) {
	if rec, ok := r.scanned.Get(id); ok {
		return rec, true
	}
	if rec, ok := r.tracked.Get(id); ok {
		return rec, true
	}
	return nil, false
}

// publishLocked emits an event while holding r.mu. Publish never blocks, so
// holding the lock keeps event order identical to mutation order.
func (r *Registry) publishLocked(ev Event) {
	if r.notifier != nil {
		r.notifier.Publish(ev)
	}
}

// Package goble adapts the go-ble radio stack to the transport contract.
// go-ble delivers scan callbacks and connection events on its own
// goroutines; this adapter snapshots every payload and funnels all events
// through a single dispatch goroutine, so the core sees a serialized stream.
package goble

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/srg/blecentral/internal/groutine"
	"github.com/srg/blecentral/internal/transport"
)

const (
	// DefaultConnectTimeout bounds one dial attempt at the radio layer. The
	// core itself never times out a Connecting device; a timeout here
	// surfaces as a ConnectFailed callback.
	DefaultConnectTimeout = 30 * time.Second

	// writeChunkSize keeps writes within the 20-byte payload every BLE
	// version guarantees (ATT_MTU 23 minus the 3-byte ATT header).
	writeChunkSize = 20

	// writeChunkDelay paces consecutive chunks so slow peripherals keep up.
	writeChunkDelay = 10 * time.Millisecond

	// dispatchBuffer absorbs advertisement bursts between handler turns.
	dispatchBuffer = 256
)

// peripheral is the opaque handle the core receives for a remote device.
type peripheral struct {
	identity string
	address  string
}

func (p *peripheral) Identity() string { return p.identity }
func (p *peripheral) Address() string  { return p.address }

// Transport implements transport.Transport over go-ble.
type Transport struct {
	dev            ble.Device
	logger         *logrus.Logger
	connectTimeout time.Duration

	dispatch chan func()
	done     chan struct{}
	closed   sync.Once

	mu         sync.Mutex
	handler    transport.Handler
	clients    map[string]ble.Client
	profiles   map[string]*ble.Profile
	scanCancel context.CancelFunc
}

var _ transport.Transport = (*Transport)(nil)

// New creates the platform radio device through DeviceFactory and starts
// the dispatch loop.
func New(logger *logrus.Logger) (*Transport, error) {
	if logger == nil {
		logger = logrus.New()
	}

	dev, err := DeviceFactory()
	if err != nil {
		return nil, fmt.Errorf("failed to create BLE device: %w", normalizeError(err))
	}

	t := &Transport{
		dev:            dev,
		logger:         logger,
		connectTimeout: DefaultConnectTimeout,
		dispatch:       make(chan func(), dispatchBuffer),
		done:           make(chan struct{}),
		clients:        make(map[string]ble.Client),
		profiles:       make(map[string]*ble.Profile),
	}

	groutine.Go(nil, "ble-dispatch", func(ctx context.Context) {
		for {
			select {
			case fn := <-t.dispatch:
				fn()
			case <-t.done:
				return
			}
		}
	})

	return t, nil
}

// SetHandler installs the event sink and reports the radio as powered on;
// DeviceFactory fails outright when the radio is unavailable.
func (t *Transport) SetHandler(h transport.Handler) {
	t.mu.Lock()
	t.handler = h
	t.mu.Unlock()

	t.post(func(h transport.Handler) {
		h.StateChanged(transport.StatePoweredOn)
	})
}

// StartScan begins emitting Discovered events. No radio-level service
// filter is applied.
func (t *Transport) StartScan() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.scanCancel != nil {
		return fmt.Errorf("scan already running")
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.scanCancel = cancel

	groutine.Go(ctx, "ble-scan", func(ctx context.Context) {
		err := t.dev.Scan(ctx, true, t.onAdvertisement)
		if err != nil && ctx.Err() == nil {
			err = normalizeError(err)
			t.logger.WithError(err).Error("Scan terminated")
			if isBluetoothOff(err) {
				t.post(func(h transport.Handler) {
					h.StateChanged(transport.StatePoweredOff)
				})
			}
		}
	})
	return nil
}

// StopScan cancels the scan loop. Stopping an idle transport is a no-op.
func (t *Transport) StopScan() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.scanCancel != nil {
		t.scanCancel()
		t.scanCancel = nil
	}
	return nil
}

// onAdvertisement runs on go-ble's scan goroutine: snapshot, then hand off.
func (t *Transport) onAdvertisement(adv ble.Advertisement) {
	addr := adv.Addr().String()
	p := &peripheral{
		identity: strings.ToLower(addr),
		address:  addr,
	}
	snapshot := newAdvertisement(adv)

	t.post(func(h transport.Handler) {
		h.Discovered(p, snapshot)
	})
}

// Connect dials the peripheral asynchronously; the outcome arrives as a
// Connected or ConnectFailed callback.
func (t *Transport) Connect(p transport.Peripheral) error {
	t.mu.Lock()
	if _, ok := t.clients[p.Identity()]; ok {
		t.mu.Unlock()
		return fmt.Errorf("already connected to %q", p.Identity())
	}
	t.mu.Unlock()

	groutine.Go(nil, "ble-connect-"+p.Identity(), func(ctx context.Context) {
		dialCtx, cancel := context.WithTimeout(ctx, t.connectTimeout)
		defer cancel()

		client, err := t.dev.Dial(dialCtx, ble.NewAddr(p.Address()))
		if err != nil {
			t.post(func(h transport.Handler) {
				h.ConnectFailed(p, normalizeError(err))
			})
			return
		}

		t.mu.Lock()
		t.clients[p.Identity()] = client
		t.mu.Unlock()

		t.post(func(h transport.Handler) {
			h.Connected(p)
		})

		t.resolveName(p, client)
		t.watchDisconnect(p, client)
	})
	return nil
}

// resolveName reads the GAP device-name characteristic (service 0x1800,
// characteristic 0x2A00), which is more authoritative than the name carried
// in advertisements.
func (t *Transport) resolveName(p transport.Peripheral, client ble.Client) {
	profile, err := client.DiscoverProfile(true)
	if err != nil {
		t.logger.WithError(err).WithField("identity", p.Identity()).Debug("Profile discovery failed")
		return
	}

	t.mu.Lock()
	t.profiles[p.Identity()] = profile
	t.mu.Unlock()

	char := findCharacteristic(profile, "2a00")
	if char == nil {
		return
	}
	data, err := client.ReadCharacteristic(char)
	if err != nil || len(data) == 0 {
		return
	}

	name := strings.TrimSpace(strings.TrimRight(string(data), "\x00"))
	if !isPlausibleName(name) {
		return
	}
	t.logger.WithFields(logrus.Fields{
		"identity": p.Identity(),
		"name":     name,
	}).Debug("Resolved device name from GAP")
	t.post(func(h transport.Handler) {
		h.NameChanged(p, name)
	})
}

// watchDisconnect blocks until the platform reports the link dropped, then
// forgets the client and notifies the core. Runs on the connect goroutine.
func (t *Transport) watchDisconnect(p transport.Peripheral, client ble.Client) {
	dc, ok := client.(interface{ Disconnected() <-chan struct{} })
	if !ok {
		t.logger.Debug("Client does not expose a Disconnected channel")
		return
	}
	<-dc.Disconnected()

	if t.forgetClient(p.Identity()) {
		t.post(func(h transport.Handler) {
			h.Disconnected(p, nil)
		})
	}
}

// CancelConnection tears the link down. The Disconnected callback fires via
// the disconnect watcher, or directly on platforms without one.
func (t *Transport) CancelConnection(p transport.Peripheral) error {
	t.mu.Lock()
	client, ok := t.clients[p.Identity()]
	t.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotConnected, p.Identity())
	}

	groutine.Go(nil, "ble-disconnect-"+p.Identity(), func(ctx context.Context) {
		if err := client.CancelConnection(); err != nil {
			t.logger.WithError(normalizeError(err)).WithField("identity", p.Identity()).Warn("Cancel connection failed")
		}
		if t.forgetClient(p.Identity()) {
			t.post(func(h transport.Handler) {
				h.Disconnected(p, nil)
			})
		}
	})
	return nil
}

// ReadRSSI reads the link signal strength of a connected peripheral.
func (t *Transport) ReadRSSI(p transport.Peripheral) error {
	client, err := t.client(p)
	if err != nil {
		return err
	}

	groutine.Go(nil, "ble-rssi-"+p.Identity(), func(ctx context.Context) {
		rssi := client.ReadRSSI()
		t.post(func(h transport.Handler) {
			h.RSSIRead(p, rssi, nil)
		})
	})
	return nil
}

// DiscoverServices rediscovers the GATT profile and reports service UUIDs.
func (t *Transport) DiscoverServices(p transport.Peripheral) error {
	client, err := t.client(p)
	if err != nil {
		return err
	}

	groutine.Go(nil, "ble-discover-"+p.Identity(), func(ctx context.Context) {
		profile, err := client.DiscoverProfile(true)
		if err != nil {
			t.post(func(h transport.Handler) {
				h.ServicesDiscovered(p, nil, normalizeError(err))
			})
			return
		}

		t.mu.Lock()
		t.profiles[p.Identity()] = profile
		t.mu.Unlock()

		services := make([]string, 0, len(profile.Services))
		for _, svc := range profile.Services {
			services = append(services, strings.ToLower(svc.UUID.String()))
		}
		t.post(func(h transport.Handler) {
			h.ServicesDiscovered(p, services, nil)
		})
	})
	return nil
}

// ReadCharacteristic reads a raw characteristic value; the bytes arrive via
// ValueUpdated without interpretation.
func (t *Transport) ReadCharacteristic(p transport.Peripheral, characteristic string) error {
	client, char, err := t.characteristic(p, characteristic)
	if err != nil {
		return err
	}

	groutine.Go(nil, "ble-read-"+p.Identity(), func(ctx context.Context) {
		data, err := client.ReadCharacteristic(char)
		t.post(func(h transport.Handler) {
			h.ValueUpdated(p, characteristic, data, normalizeError(err))
		})
	})
	return nil
}

// WriteCharacteristic writes raw bytes in 20-byte chunks, then reports
// completion via ValueWritten.
func (t *Transport) WriteCharacteristic(p transport.Peripheral, characteristic string, data []byte) error {
	client, char, err := t.characteristic(p, characteristic)
	if err != nil {
		return err
	}

	groutine.Go(nil, "ble-write-"+p.Identity(), func(ctx context.Context) {
		payload := append([]byte(nil), data...)
		var writeErr error
		for len(payload) > 0 && writeErr == nil {
			n := len(payload)
			if n > writeChunkSize {
				n = writeChunkSize
			}
			writeErr = client.WriteCharacteristic(char, payload[:n], false)
			payload = payload[n:]
			if len(payload) > 0 {
				time.Sleep(writeChunkDelay)
			}
		}
		t.post(func(h transport.Handler) {
			h.ValueWritten(p, characteristic, normalizeError(writeErr))
		})
	})
	return nil
}

// Close stops scanning, drops all connections, and ends the dispatch loop.
func (t *Transport) Close() error {
	_ = t.StopScan()

	t.mu.Lock()
	clients := t.clients
	t.clients = make(map[string]ble.Client)
	t.profiles = make(map[string]*ble.Profile)
	t.mu.Unlock()

	for identity, client := range clients {
		if err := client.CancelConnection(); err != nil {
			t.logger.WithError(err).WithField("identity", identity).Debug("Cancel connection during close")
		}
	}

	t.closed.Do(func() { close(t.done) })
	return t.dev.Stop()
}

// post schedules fn on the dispatch goroutine, dropping it if the transport
// is closed or no handler is installed.
func (t *Transport) post(fn func(h transport.Handler)) {
	t.mu.Lock()
	h := t.handler
	t.mu.Unlock()
	if h == nil {
		return
	}

	select {
	case t.dispatch <- func() { fn(h) }:
	case <-t.done:
	}
}

func (t *Transport) client(p transport.Peripheral) (ble.Client, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	client, ok := t.clients[p.Identity()]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotConnected, p.Identity())
	}
	return client, nil
}

func (t *Transport) characteristic(p transport.Peripheral, uuid string) (ble.Client, *ble.Characteristic, error) {
	t.mu.Lock()
	client, ok := t.clients[p.Identity()]
	profile := t.profiles[p.Identity()]
	t.mu.Unlock()

	if !ok {
		return nil, nil, fmt.Errorf("%w: %q", ErrNotConnected, p.Identity())
	}
	if profile == nil {
		return nil, nil, fmt.Errorf("no GATT profile discovered for %q", p.Identity())
	}
	char := findCharacteristic(profile, uuid)
	if char == nil {
		return nil, nil, fmt.Errorf("characteristic %q not found on %q", uuid, p.Identity())
	}
	return client, char, nil
}

// forgetClient drops the stored client and profile for an identity,
// reporting whether a client was present. Keeps Disconnected from firing
// twice when the watcher and an explicit cancel race.
func (t *Transport) forgetClient(identity string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.clients[identity]
	delete(t.clients, identity)
	delete(t.profiles, identity)
	return ok
}

// findCharacteristic locates a characteristic by UUID anywhere in the
// profile. UUID comparison is case-insensitive.
func findCharacteristic(profile *ble.Profile, uuid string) *ble.Characteristic {
	target, err := ble.Parse(uuid)
	if err != nil {
		return nil
	}
	for _, svc := range profile.Services {
		for _, char := range svc.Characteristics {
			if char.UUID.Equal(target) {
				return char
			}
		}
	}
	return nil
}

// isPlausibleName filters out garbage reads: a usable name is 1-32 runes
// and contains at least one letter.
func isPlausibleName(name string) bool {
	if len(name) == 0 || len(name) > 32 {
		return false
	}
	for _, r := range name {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

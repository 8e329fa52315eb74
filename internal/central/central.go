package central

import (
	"github.com/sirupsen/logrus"

	"github.com/srg/blecentral/internal/transport"
)

// Central is the facade consumed by the UI layer. It wires the registry,
// connection controller, scan session, and notifier around one transport
// instance. Construct as many independent centrals as needed; there is no
// global state.
type Central struct {
	registry   *Registry
	controller *Controller
	session    *ScanSession
	notifier   *Notifier
	transport  transport.Transport
	logger     *logrus.Logger
}

// New builds a Central on top of t and installs the controller as the
// transport event handler. A nil logger falls back to a default one.
func New(t transport.Transport, logger *logrus.Logger) *Central {
	if logger == nil {
		logger = logrus.New()
	}

	notifier := NewNotifier(logger)
	registry := NewRegistry(notifier, logger)
	controller := NewController(registry, t, logger)
	session := NewScanSession(registry, t, logger)
	t.SetHandler(controller)

	return &Central{
		registry:   registry,
		controller: controller,
		session:    session,
		notifier:   notifier,
		transport:  t,
		logger:     logger,
	}
}

// StartScan begins discovery, filtering first-seen devices by prefix.
func (c *Central) StartScan(prefix string) error {
	return c.session.Start(prefix)
}

// StopScan ends discovery. Discovered devices remain listed.
func (c *Central) StopScan() error {
	return c.session.Stop()
}

// Connect requests a connection by device identity.
func (c *Central) Connect(identity string) error {
	return c.controller.Connect(identity)
}

// Disconnect tears down a connection and forgets the device.
func (c *Central) Disconnect(identity string) {
	c.controller.Disconnect(identity)
}

// ReadRSSI requests a fresh signal reading for a device.
func (c *Central) ReadRSSI(identity string) error {
	return c.controller.ReadRSSI(identity)
}

// DiscoverServices starts GATT discovery on a connected device.
func (c *Central) DiscoverServices(identity string) error {
	return c.controller.DiscoverServices(identity)
}

// ReadCharacteristic forwards a raw characteristic read.
func (c *Central) ReadCharacteristic(identity, characteristic string) error {
	return c.controller.ReadCharacteristic(identity, characteristic)
}

// WriteCharacteristic forwards a raw characteristic write.
func (c *Central) WriteCharacteristic(identity, characteristic string, data []byte) error {
	return c.controller.WriteCharacteristic(identity, characteristic, data)
}

// Snapshot returns the current device list, sorted by connection progress
// then signal strength. Safe from any goroutine.
func (c *Central) Snapshot() []DeviceView {
	return c.registry.Snapshot()
}

// Subscribe registers for list-changed events. Callers must Cancel the
// subscription when done.
func (c *Central) Subscribe() *Subscription {
	return c.notifier.Subscribe()
}

// Close stops scanning and releases the transport.
func (c *Central) Close() error {
	if err := c.session.Stop(); err != nil {
		c.logger.WithError(err).Debug("Stopping scan during close")
	}
	return c.transport.Close()
}

package central

import (
	"github.com/sirupsen/logrus"

	"github.com/srg/blecentral/internal/transport"
)

// Controller drives connect/disconnect requests against the radio and
// translates every asynchronous transport callback into a registry
// mutation. It holds identities only, never records; handles are looked up
// through the registry at call time.
//
// Controller implements transport.Handler.
type Controller struct {
	registry  *Registry
	transport transport.Transport
	logger    *logrus.Logger
}

// NewController wires a controller to its registry and radio transport.
func NewController(registry *Registry, t transport.Transport, logger *logrus.Logger) *Controller {
	if logger == nil {
		logger = logrus.New()
	}
	return &Controller{
		registry:  registry,
		transport: t,
		logger:    logger,
	}
}

// Connect requests a connection to a previously discovered device. The call
// returns once the radio request is issued; the outcome arrives later as a
// Connected or ConnectFailed callback. Returns ErrNotEligible when the
// device is already connecting or connected, ErrNotFound for an unknown
// identity.
func (c *Controller) Connect(identity string) error {
	handle, err := c.registry.ConnectRequested(identity)
	if err != nil {
		return err
	}

	c.logger.WithField("identity", identity).Info("Connecting to device")
	if err := c.transport.Connect(handle); err != nil {
		// Radio refused the request outright; degrade to Disconnected so
		// the user can retry.
		c.logger.WithError(err).WithField("identity", identity).Warn("Transport connect request failed")
		c.registry.TransportConnectFailed(identity)
	}
	return nil
}

// Disconnect tears down a device's connection and forgets the record. An
// unknown identity is a logged no-op.
func (c *Controller) Disconnect(identity string) {
	handle, ok := c.registry.DisconnectRequested(identity)
	if !ok {
		return
	}

	c.logger.WithField("identity", identity).Info("Disconnecting from device")
	if err := c.transport.CancelConnection(handle); err != nil {
		c.logger.WithError(err).WithField("identity", identity).Warn("Transport disconnect request failed")
	}
}

// ReadRSSI requests a fresh signal strength reading for a known device.
func (c *Controller) ReadRSSI(identity string) error {
	handle, ok := c.registry.Handle(identity)
	if !ok {
		return &RequestError{State: NotFound, Identity: NormalizeIdentity(identity)}
	}
	return c.transport.ReadRSSI(handle)
}

// DiscoverServices starts GATT service discovery on a connected device.
// Results are diagnostic; the registry only re-emits them as events.
func (c *Controller) DiscoverServices(identity string) error {
	handle, ok := c.registry.Handle(identity)
	if !ok {
		return &RequestError{State: NotFound, Identity: NormalizeIdentity(identity)}
	}
	return c.transport.DiscoverServices(handle)
}

// ReadCharacteristic forwards a characteristic read; the value arrives as a
// ValueUpdated callback and is passed through without interpretation.
func (c *Controller) ReadCharacteristic(identity, characteristic string) error {
	handle, ok := c.registry.Handle(identity)
	if !ok {
		return &RequestError{State: NotFound, Identity: NormalizeIdentity(identity)}
	}
	return c.transport.ReadCharacteristic(handle, characteristic)
}

// WriteCharacteristic forwards a characteristic write.
func (c *Controller) WriteCharacteristic(identity, characteristic string, data []byte) error {
	handle, ok := c.registry.Handle(identity)
	if !ok {
		return &RequestError{State: NotFound, Identity: NormalizeIdentity(identity)}
	}
	return c.transport.WriteCharacteristic(handle, characteristic, data)
}

// transport.Handler implementation. All callbacks arrive serialized on the
// transport dispatch goroutine.

// StateChanged logs radio readiness transitions.
func (c *Controller) StateChanged(state transport.State) {
	c.logger.WithField("state", state.String()).Info("Radio state changed")
}

// Discovered feeds an advertisement into the registry.
func (c *Controller) Discovered(p transport.Peripheral, adv transport.Advertisement) {
	c.registry.Discovered(p.Identity(), p, adv.Payload(), adv.RSSI(), adv.LocalName(), p.Address())
}

// Connected marks the device Connected.
func (c *Controller) Connected(p transport.Peripheral) {
	c.logger.WithField("identity", p.Identity()).Info("Device connected")
	c.registry.TransportConnected(p.Identity())
}

// ConnectFailed marks the device Disconnected; never fatal, never retried.
func (c *Controller) ConnectFailed(p transport.Peripheral, err error) {
	c.logger.WithError(err).WithField("identity", p.Identity()).Warn("Device connect failed")
	c.registry.TransportConnectFailed(p.Identity())
}

// Disconnected marks the device Disconnected.
func (c *Controller) Disconnected(p transport.Peripheral, err error) {
	entry := c.logger.WithField("identity", p.Identity())
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Info("Device disconnected")
	c.registry.TransportDisconnected(p.Identity())
}

// NameChanged applies a name resolved by the transport after connecting.
func (c *Controller) NameChanged(p transport.Peripheral, name string) {
	c.registry.NameChanged(p.Identity(), name)
}

// RSSIRead applies a signal strength reading; read failures are logged only.
func (c *Controller) RSSIRead(p transport.Peripheral, rssi int, err error) {
	if err != nil {
		c.logger.WithError(err).WithField("identity", p.Identity()).Debug("RSSI read failed")
		return
	}
	c.registry.RSSIUpdated(p.Identity(), rssi)
}

// ServicesDiscovered is diagnostic: logged and re-emitted, no state change.
func (c *Controller) ServicesDiscovered(p transport.Peripheral, services []string, err error) {
	entry := c.logger.WithFields(logrus.Fields{
		"identity": p.Identity(),
		"services": len(services),
	})
	if err != nil {
		entry.WithError(err).Debug("Service discovery failed")
		return
	}
	entry.Debug("Services discovered")
	c.registry.ServiceEvent(p.Identity(), EventServiceUpdated)
}

// ValueUpdated passes a characteristic value through as a diagnostic event.
func (c *Controller) ValueUpdated(p transport.Peripheral, characteristic string, data []byte, err error) {
	entry := c.logger.WithFields(logrus.Fields{
		"identity":       p.Identity(),
		"characteristic": characteristic,
		"bytes":          len(data),
	})
	if err != nil {
		entry.WithError(err).Debug("Characteristic read failed")
		return
	}
	entry.Debug("Characteristic value updated")
	c.registry.ServiceEvent(p.Identity(), EventServiceUpdated)
}

// ValueWritten acknowledges a write completion as a diagnostic event.
func (c *Controller) ValueWritten(p transport.Peripheral, characteristic string, err error) {
	entry := c.logger.WithFields(logrus.Fields{
		"identity":       p.Identity(),
		"characteristic": characteristic,
	})
	if err != nil {
		entry.WithError(err).Debug("Characteristic write failed")
		return
	}
	entry.Debug("Characteristic value written")
	c.registry.ServiceEvent(p.Identity(), EventServiceWritten)
}

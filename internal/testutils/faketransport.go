// Package testutils provides test doubles and assertion helpers shared by
// the package test suites.
package testutils

import (
	"fmt"
	"sync"

	"github.com/srg/blecentral/internal/transport"
)

// FakePeripheral is a minimal transport.Peripheral for tests.
type FakePeripheral struct {
	ID   string
	Addr string
}

func (p *FakePeripheral) Identity() string { return p.ID }
func (p *FakePeripheral) Address() string  { return p.Addr }

// FakeAdvertisement is a fixed-value transport.Advertisement.
type FakeAdvertisement struct {
	Name          string
	Rssi          int
	IsConnectable bool
	ManufData     []byte
	ServiceIDs    []string
	Data          map[string]interface{}
}

func (a *FakeAdvertisement) LocalName() string        { return a.Name }
func (a *FakeAdvertisement) RSSI() int                { return a.Rssi }
func (a *FakeAdvertisement) Connectable() bool        { return a.IsConnectable }
func (a *FakeAdvertisement) ManufacturerData() []byte { return a.ManufData }
func (a *FakeAdvertisement) Services() []string       { return a.ServiceIDs }
func (a *FakeAdvertisement) Payload() map[string]interface{} {
	if a.Data != nil {
		return a.Data
	}
	return map[string]interface{}{"local_name": a.Name}
}

// FakeTransport is a scripted transport.Transport. Requests are recorded;
// asynchronous outcomes are fired explicitly by the test through the Fire*
// helpers, which invoke the installed handler synchronously so tests stay
// deterministic.
type FakeTransport struct {
	mu      sync.Mutex
	handler transport.Handler

	ScanStarts int
	ScanStops  int
	Closed     bool

	ConnectRequests    []string
	CancelRequests     []string
	RSSIRequests       []string
	DiscoverRequests   []string
	ReadRequests       []string
	WriteRequests      []string
	LastWrittenPayload []byte

	// Forced errors for the corresponding request methods.
	StartScanErr error
	ConnectErr   error
}

var _ transport.Transport = (*FakeTransport)(nil)

// NewFakeTransport returns an empty scripted transport.
func NewFakeTransport() *FakeTransport {
	return &FakeTransport{}
}

func (f *FakeTransport) SetHandler(h transport.Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = h
}

// Handler returns the installed event sink for direct callback injection.
func (f *FakeTransport) Handler() transport.Handler {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handler
}

func (f *FakeTransport) StartScan() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.StartScanErr != nil {
		return f.StartScanErr
	}
	f.ScanStarts++
	return nil
}

func (f *FakeTransport) StopScan() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ScanStops++
	return nil
}

func (f *FakeTransport) Connect(p transport.Peripheral) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p == nil {
		return fmt.Errorf("nil peripheral")
	}
	if f.ConnectErr != nil {
		return f.ConnectErr
	}
	f.ConnectRequests = append(f.ConnectRequests, p.Identity())
	return nil
}

func (f *FakeTransport) CancelConnection(p transport.Peripheral) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CancelRequests = append(f.CancelRequests, p.Identity())
	return nil
}

func (f *FakeTransport) ReadRSSI(p transport.Peripheral) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.RSSIRequests = append(f.RSSIRequests, p.Identity())
	return nil
}

func (f *FakeTransport) DiscoverServices(p transport.Peripheral) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.DiscoverRequests = append(f.DiscoverRequests, p.Identity())
	return nil
}

func (f *FakeTransport) ReadCharacteristic(p transport.Peripheral, characteristic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ReadRequests = append(f.ReadRequests, p.Identity()+"/"+characteristic)
	return nil
}

func (f *FakeTransport) WriteCharacteristic(p transport.Peripheral, characteristic string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.WriteRequests = append(f.WriteRequests, p.Identity()+"/"+characteristic)
	f.LastWrittenPayload = append([]byte(nil), data...)
	return nil
}

func (f *FakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// FireDiscovered delivers a discovery callback for a device with the given
// identity, name, and RSSI.
func (f *FakeTransport) FireDiscovered(identity, name string, rssi int) {
	f.FireDiscoveredMAC(identity, name, identity, rssi)
}

// FireDiscoveredMAC delivers a discovery callback with an explicit address.
func (f *FakeTransport) FireDiscoveredMAC(identity, name, mac string, rssi int) {
	f.Handler().Discovered(
		&FakePeripheral{ID: identity, Addr: mac},
		&FakeAdvertisement{Name: name, Rssi: rssi, IsConnectable: true},
	)
}

// FireConnected delivers a connect-success callback.
func (f *FakeTransport) FireConnected(identity string) {
	f.Handler().Connected(&FakePeripheral{ID: identity, Addr: identity})
}

// FireConnectFailed delivers a connect-failure callback.
func (f *FakeTransport) FireConnectFailed(identity string, err error) {
	f.Handler().ConnectFailed(&FakePeripheral{ID: identity, Addr: identity}, err)
}

// FireDisconnected delivers a disconnect callback.
func (f *FakeTransport) FireDisconnected(identity string, err error) {
	f.Handler().Disconnected(&FakePeripheral{ID: identity, Addr: identity}, err)
}

// FireRSSIRead delivers an RSSI reading.
func (f *FakeTransport) FireRSSIRead(identity string, rssi int, err error) {
	f.Handler().RSSIRead(&FakePeripheral{ID: identity, Addr: identity}, rssi, err)
}

// FireNameChanged delivers a transport-resolved name.
func (f *FakeTransport) FireNameChanged(identity, name string) {
	f.Handler().NameChanged(&FakePeripheral{ID: identity, Addr: identity}, name)
}

// FireServicesDiscovered delivers a GATT discovery completion.
func (f *FakeTransport) FireServicesDiscovered(identity string, services []string, err error) {
	f.Handler().ServicesDiscovered(&FakePeripheral{ID: identity, Addr: identity}, services, err)
}

// FireValueUpdated delivers a characteristic value read completion.
func (f *FakeTransport) FireValueUpdated(identity, characteristic string, data []byte, err error) {
	f.Handler().ValueUpdated(&FakePeripheral{ID: identity, Addr: identity}, characteristic, data, err)
}

// FireValueWritten delivers a characteristic write completion.
func (f *FakeTransport) FireValueWritten(identity, characteristic string, err error) {
	f.Handler().ValueWritten(&FakePeripheral{ID: identity, Addr: identity}, characteristic, err)
}

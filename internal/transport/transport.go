// Package transport defines the contract between the central-role core and
// the underlying BLE radio stack. The core never talks to go-ble directly;
// it issues requests through Transport and receives results later as Handler
// callbacks, serialized onto a single dispatch goroutine.
package transport

// Peripheral is an opaque handle to a discovered remote device. Handles are
// owned by the registry and must not be copied or retained by other
// components; look them up by identity when needed.
type Peripheral interface {
	// Identity returns the stable, lowercase identifier used as the
	// registry key for the lifetime of a session.
	Identity() string
	// Address returns the radio address, when the platform exposes one.
	Address() string
}

// Advertisement exposes the fields of a received advertisement that the core
// consumes. Payload returns the raw key-value advertisement data; it is
// replaced wholesale on every advertisement.
type Advertisement interface {
	LocalName() string
	RSSI() int
	Connectable() bool
	ManufacturerData() []byte
	Services() []string
	Payload() map[string]interface{}
}

// State reports the readiness of the local radio.
type State int

const (
	StateUnknown State = iota
	StatePoweredOff
	StatePoweredOn
	StateUnauthorized
	StateUnsupported
)

func (s State) String() string {
	switch s {
	case StatePoweredOff:
		return "powered_off"
	case StatePoweredOn:
		return "powered_on"
	case StateUnauthorized:
		return "unauthorized"
	case StateUnsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

// Handler receives asynchronous transport events. Implementations may assume
// all callbacks arrive on one goroutine, in the order the radio produced
// them; no callback may block for long since it stalls the dispatch loop.
type Handler interface {
	StateChanged(state State)
	Discovered(p Peripheral, adv Advertisement)
	Connected(p Peripheral)
	ConnectFailed(p Peripheral, err error)
	Disconnected(p Peripheral, err error)
	RSSIRead(p Peripheral, rssi int, err error)

	// NameChanged fires when the transport resolves a better device name
	// than the advertisement carried, e.g. from the GAP device-name
	// characteristic after connecting.
	NameChanged(p Peripheral, name string)

	// GATT pass-through completions. Diagnostic for the core: logged and
	// re-emitted as events, never interpreted.
	ServicesDiscovered(p Peripheral, services []string, err error)
	ValueUpdated(p Peripheral, characteristic string, data []byte, err error)
	ValueWritten(p Peripheral, characteristic string, err error)
}

// Transport is the radio collaborator. Every method returns immediately;
// outcomes are delivered through the Handler. A failed request surfaces as
// the corresponding failure callback, never as a fatal condition.
type Transport interface {
	// SetHandler installs the event sink. Must be called before StartScan.
	SetHandler(h Handler)

	// StartScan begins emitting Discovered callbacks. No service filter is
	// applied at the radio layer; prefix filtering happens in the core.
	StartScan() error
	StopScan() error

	Connect(p Peripheral) error
	CancelConnection(p Peripheral) error

	ReadRSSI(p Peripheral) error
	DiscoverServices(p Peripheral) error
	ReadCharacteristic(p Peripheral, characteristic string) error
	WriteCharacteristic(p Peripheral, characteristic string, data []byte) error

	// Close releases the radio and stops the dispatch loop.
	Close() error
}

package goble

import (
	"strings"

	"github.com/go-ble/ble"

	"github.com/srg/blecentral/internal/transport"
)

// txPowerUnset is the go-ble sentinel for "TX power not present".
const txPowerUnset = 127

// advertisement is an immutable snapshot of a ble.Advertisement. go-ble may
// reuse advertisement backing buffers after the scan handler returns, so
// every field is copied up front before crossing onto the dispatch
// goroutine.
type advertisement struct {
	localName   string
	rssi        int
	connectable bool
	manufData   []byte
	services    []string
	payload     map[string]interface{}
}

func newAdvertisement(adv ble.Advertisement) *advertisement {
	services := make([]string, 0, len(adv.Services()))
	for _, u := range adv.Services() {
		services = append(services, strings.ToLower(u.String()))
	}

	manufData := append([]byte(nil), adv.ManufacturerData()...)

	payload := map[string]interface{}{
		"local_name":  adv.LocalName(),
		"connectable": adv.Connectable(),
	}
	if len(manufData) > 0 {
		payload["manufacturer_data"] = manufData
	}
	if len(services) > 0 {
		payload["service_uuids"] = services
	}
	if tx := adv.TxPowerLevel(); tx != txPowerUnset {
		payload["tx_power"] = tx
	}
	if sd := adv.ServiceData(); len(sd) > 0 {
		svcData := make(map[string][]byte, len(sd))
		for _, d := range sd {
			svcData[strings.ToLower(d.UUID.String())] = append([]byte(nil), d.Data...)
		}
		payload["service_data"] = svcData
	}

	return &advertisement{
		localName:   adv.LocalName(),
		rssi:        adv.RSSI(),
		connectable: adv.Connectable(),
		manufData:   manufData,
		services:    services,
		payload:     payload,
	}
}

var _ transport.Advertisement = (*advertisement)(nil)

func (a *advertisement) LocalName() string               { return a.localName }
func (a *advertisement) RSSI() int                       { return a.rssi }
func (a *advertisement) Connectable() bool               { return a.connectable }
func (a *advertisement) ManufacturerData() []byte        { return a.manufData }
func (a *advertisement) Services() []string              { return a.services }
func (a *advertisement) Payload() map[string]interface{} { return a.payload }

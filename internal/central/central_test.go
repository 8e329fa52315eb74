package central_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/srg/blecentral/internal/central"
	"github.com/srg/blecentral/internal/testutils"
)

type CentralSuite struct {
	suite.Suite
	transport *testutils.FakeTransport
	central   *central.Central
	sub       *central.Subscription
}

func (s *CentralSuite) SetupTest() {
	s.transport = testutils.NewFakeTransport()
	s.central = central.New(s.transport, nil)
	s.sub = s.central.Subscribe()
}

func (s *CentralSuite) TearDownTest() {
	s.sub.Cancel()
	s.Require().NoError(s.central.Close())
	s.True(s.transport.Closed)
}

// nextEvent receives one event or fails the test.
func (s *CentralSuite) nextEvent() central.Event {
	select {
	case ev, ok := <-s.sub.Events():
		s.Require().True(ok, "subscription closed unexpectedly")
		return ev
	case <-time.After(time.Second):
		s.Require().FailNow("timed out waiting for event")
		return central.Event{}
	}
}

// noEvent asserts nothing was published.
func (s *CentralSuite) noEvent() {
	select {
	case ev := <-s.sub.Events():
		s.Require().FailNowf("unexpected event", "got %s for %s", ev.Kind, ev.Identity)
	default:
	}
}

func (s *CentralSuite) identities() []string {
	snap := s.central.Snapshot()
	ids := make([]string, len(snap))
	for i, v := range snap {
		ids[i] = v.Identity
	}
	return ids
}

func (s *CentralSuite) TestScanListsDevicesBySignalStrength() {
	// TEST SCENARIO: two advertising devices appear sorted by RSSI while
	// scanning, and every discovery publishes exactly one event.
	s.Require().NoError(s.central.StartScan(""))

	s.transport.FireDiscovered("aa:aa", "A", -60)
	s.transport.FireDiscovered("bb:bb", "B", -40)

	s.Equal([]string{"bb:bb", "aa:aa"}, s.identities())

	ev := s.nextEvent()
	s.Equal(central.EventDeviceDiscovered, ev.Kind)
	s.Equal("aa:aa", ev.Identity)
	ev = s.nextEvent()
	s.Equal(central.EventDeviceDiscovered, ev.Kind)
	s.Equal("bb:bb", ev.Identity)
	s.noEvent()
}

func (s *CentralSuite) TestConnectPromotesDeviceToTopOfList() {
	// TEST SCENARIO: connecting to the strongest device keeps it ranked
	// first through Connecting and Connected, ahead of scanning devices.
	s.Require().NoError(s.central.StartScan(""))
	s.transport.FireDiscovered("aa:aa", "A", -60)
	s.transport.FireDiscovered("bb:bb", "B", -40)

	s.Require().NoError(s.central.Connect("bb:bb"))
	s.Equal([]string{"bb:bb", "aa:aa"}, s.identities())

	s.transport.FireConnected("bb:bb")
	s.Equal([]string{"bb:bb", "aa:aa"}, s.identities())
	s.Equal(central.StatusConnected, s.central.Snapshot()[0].Status)
}

func (s *CentralSuite) TestConnectToWeakDeviceOutranksStrongScanners() {
	// TEST SCENARIO: connection progress dominates signal strength in the
	// snapshot ordering.
	s.Require().NoError(s.central.StartScan(""))
	s.transport.FireDiscovered("aa:aa", "A", -40)
	s.transport.FireDiscovered("bb:bb", "B", -90)

	s.Require().NoError(s.central.Connect("bb:bb"))
	s.Equal([]string{"bb:bb", "aa:aa"}, s.identities())
}

func (s *CentralSuite) TestConnectUnknownIdentityPublishesNothing() {
	// TEST SCENARIO: a failed request must not disturb subscribers.
	err := s.central.Connect("zz:zz")
	s.ErrorIs(err, central.ErrNotFound)
	s.noEvent()
}

func (s *CentralSuite) TestDisconnectForgetsDeviceAndRediscoveryStartsFresh() {
	// TEST SCENARIO: disconnect removes the record entirely; a later
	// advertisement creates a brand-new scanning record.
	s.Require().NoError(s.central.StartScan(""))
	s.transport.FireDiscovered("bb:bb", "B", -40)
	s.Require().NoError(s.central.Connect("bb:bb"))
	s.transport.FireConnected("bb:bb")

	s.central.Disconnect("bb:bb")
	s.Empty(s.central.Snapshot())

	s.transport.FireDiscovered("bb:bb", "B", -42)
	snap := s.central.Snapshot()
	s.Require().Len(snap, 1)
	s.Equal(central.StatusScanning, snap[0].Status)
}

func (s *CentralSuite) TestRepeatAdvertisementUpdatesInPlace() {
	// TEST SCENARIO: re-advertising refreshes RSSI without duplicating the
	// record, and publishes an RSSI-changed event.
	s.Require().NoError(s.central.StartScan(""))
	s.transport.FireDiscovered("aa:aa", "A", -60)
	s.nextEvent()

	s.transport.FireDiscovered("aa:aa", "A", -45)

	snap := s.central.Snapshot()
	s.Require().Len(snap, 1)
	s.Equal(-45, *snap[0].RSSI)
	s.Equal(central.EventRSSIChanged, s.nextEvent().Kind)
}

func (s *CentralSuite) TestScanRestartPublishesListReset() {
	// TEST SCENARIO: restarting a scan clears prior results and tells
	// subscribers to re-pull.
	s.Require().NoError(s.central.StartScan(""))
	s.transport.FireDiscovered("aa:aa", "A", -60)
	s.nextEvent()
	s.Require().NoError(s.central.StopScan())

	s.Require().NoError(s.central.StartScan("ME_"))
	s.Equal(central.EventListReset, s.nextEvent().Kind)
	s.Empty(s.central.Snapshot())
}

func TestCentralSuite(t *testing.T) {
	suite.Run(t, new(CentralSuite))
}

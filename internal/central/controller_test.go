package central_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/blecentral/internal/central"
	"github.com/srg/blecentral/internal/testutils"
)

func newControllerFixture() (*central.Controller, *central.Registry, *testutils.FakeTransport) {
	ft := testutils.NewFakeTransport()
	notifier := central.NewNotifier(nil)
	registry := central.NewRegistry(notifier, nil)
	controller := central.NewController(registry, ft, nil)
	ft.SetHandler(controller)
	return controller, registry, ft
}

func findView(t *testing.T, views []central.DeviceView, identity string) central.DeviceView {
	t.Helper()
	for _, v := range views {
		if v.Identity == identity {
			return v
		}
	}
	t.Fatalf("identity %q not in snapshot", identity)
	return central.DeviceView{}
}

func TestController_ConnectLifecycle(t *testing.T) {
	controller, registry, ft := newControllerFixture()

	ft.FireDiscovered("aa:aa", "Alpha", -60)

	// Connect issues the radio request and moves the device to Connecting.
	require.NoError(t, controller.Connect("aa:aa"))
	assert.Equal(t, []string{"aa:aa"}, ft.ConnectRequests)
	assert.Equal(t, central.StatusConnecting, findView(t, registry.Snapshot(), "aa:aa").Status)

	// Async success promotes to Connected.
	ft.FireConnected("aa:aa")
	assert.Equal(t, central.StatusConnected, findView(t, registry.Snapshot(), "aa:aa").Status)

	// Disconnect cancels the radio connection and forgets the record.
	controller.Disconnect("aa:aa")
	assert.Equal(t, []string{"aa:aa"}, ft.CancelRequests)
	assert.Empty(t, registry.Snapshot())
}

func TestController_ConnectErrors(t *testing.T) {
	controller, _, ft := newControllerFixture()

	err := controller.Connect("zz:zz")
	assert.ErrorIs(t, err, central.ErrNotFound)

	ft.FireDiscovered("aa:aa", "Alpha", -60)
	require.NoError(t, controller.Connect("aa:aa"))

	err = controller.Connect("aa:aa")
	assert.ErrorIs(t, err, central.ErrNotEligible)
}

func TestController_TransportRefusalDegradesToDisconnected(t *testing.T) {
	controller, registry, ft := newControllerFixture()

	ft.FireDiscovered("aa:aa", "Alpha", -60)
	ft.ConnectErr = errors.New("radio busy")

	// A refused dial is not an API error; the device just ends up retryable.
	require.NoError(t, controller.Connect("aa:aa"))
	assert.Equal(t, central.StatusDisconnected, findView(t, registry.Snapshot(), "aa:aa").Status)

	ft.ConnectErr = nil
	require.NoError(t, controller.Connect("aa:aa"))
	assert.Equal(t, central.StatusConnecting, findView(t, registry.Snapshot(), "aa:aa").Status)
}

func TestController_AsyncConnectFailure(t *testing.T) {
	controller, registry, ft := newControllerFixture()

	ft.FireDiscovered("aa:aa", "Alpha", -60)
	require.NoError(t, controller.Connect("aa:aa"))

	ft.FireConnectFailed("aa:aa", errors.New("timeout"))
	assert.Equal(t, central.StatusDisconnected, findView(t, registry.Snapshot(), "aa:aa").Status)
}

func TestController_DroppedLinkMarksDisconnected(t *testing.T) {
	controller, registry, ft := newControllerFixture()

	ft.FireDiscovered("aa:aa", "Alpha", -60)
	require.NoError(t, controller.Connect("aa:aa"))
	ft.FireConnected("aa:aa")

	ft.FireDisconnected("aa:aa", errors.New("link lost"))
	assert.Equal(t, central.StatusDisconnected, findView(t, registry.Snapshot(), "aa:aa").Status)
}

func TestController_DisconnectUnknownIsNoOp(t *testing.T) {
	controller, _, ft := newControllerFixture()

	controller.Disconnect("zz:zz")
	assert.Empty(t, ft.CancelRequests)
}

func TestController_GATTPassThrough(t *testing.T) {
	controller, _, ft := newControllerFixture()

	ft.FireDiscovered("aa:aa", "Alpha", -60)

	require.NoError(t, controller.ReadRSSI("aa:aa"))
	assert.Equal(t, []string{"aa:aa"}, ft.RSSIRequests)

	require.NoError(t, controller.DiscoverServices("aa:aa"))
	assert.Equal(t, []string{"aa:aa"}, ft.DiscoverRequests)

	require.NoError(t, controller.ReadCharacteristic("aa:aa", "2a00"))
	assert.Equal(t, []string{"aa:aa/2a00"}, ft.ReadRequests)

	require.NoError(t, controller.WriteCharacteristic("aa:aa", "2a06", []byte{0x01}))
	assert.Equal(t, []string{"aa:aa/2a06"}, ft.WriteRequests)
	assert.Equal(t, []byte{0x01}, ft.LastWrittenPayload)

	// Every forward refuses unknown identities.
	assert.ErrorIs(t, controller.ReadRSSI("zz:zz"), central.ErrNotFound)
	assert.ErrorIs(t, controller.DiscoverServices("zz:zz"), central.ErrNotFound)
	assert.ErrorIs(t, controller.ReadCharacteristic("zz:zz", "2a00"), central.ErrNotFound)
	assert.ErrorIs(t, controller.WriteCharacteristic("zz:zz", "2a00", nil), central.ErrNotFound)
}

func TestController_DiagnosticCallbacksDoNotMutateState(t *testing.T) {
	controller, registry, ft := newControllerFixture()

	ft.FireDiscovered("aa:aa", "Alpha", -60)
	require.NoError(t, controller.Connect("aa:aa"))
	ft.FireConnected("aa:aa")

	before := findView(t, registry.Snapshot(), "aa:aa")

	ft.FireServicesDiscovered("aa:aa", []string{"180a"}, nil)
	ft.FireValueUpdated("aa:aa", "2a00", []byte("Alpha"), nil)
	ft.FireValueWritten("aa:aa", "2a06", nil)
	ft.FireRSSIRead("aa:aa", 0, errors.New("read failed"))

	after := findView(t, registry.Snapshot(), "aa:aa")
	assert.Equal(t, before.Status, after.Status)
	assert.Equal(t, *before.RSSI, *after.RSSI)
}

func TestController_RSSIReadAndNameResolution(t *testing.T) {
	_, registry, ft := newControllerFixture()

	ft.FireDiscovered("aa:aa", "", -60)

	ft.FireRSSIRead("aa:aa", -45, nil)
	assert.Equal(t, -45, *findView(t, registry.Snapshot(), "aa:aa").RSSI)

	ft.FireNameChanged("aa:aa", "Resolved Name")
	assert.Equal(t, "Resolved Name", findView(t, registry.Snapshot(), "aa:aa").Name)
}

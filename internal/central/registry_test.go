package central

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubHandle struct {
	id   string
	addr string
}

func (h *stubHandle) Identity() string { return h.id }
func (h *stubHandle) Address() string  { return h.addr }

func newTestRegistry() *Registry {
	return NewRegistry(NewNotifier(nil), nil)
}

func discover(r *Registry, identity string, rssi int, name string) {
	r.Discovered(identity, &stubHandle{id: identity, addr: identity}, map[string]interface{}{"local_name": name}, rssi, name, identity)
}

// assertExclusive verifies that no identity appears in both partitions.
func assertExclusive(t *testing.T, r *Registry) {
	t.Helper()
	r.mu.RLock()
	defer r.mu.RUnlock()
	for pair := r.scanned.Oldest(); pair != nil; pair = pair.Next() {
		_, dup := r.tracked.Get(pair.Key)
		assert.False(t, dup, "identity %q present in both partitions", pair.Key)
	}
}

func statusOf(t *testing.T, r *Registry, identity string) ConnectStatus {
	t.Helper()
	for _, v := range r.Snapshot() {
		if v.Identity == identity {
			return v.Status
		}
	}
	t.Fatalf("identity %q not in snapshot", identity)
	return StatusDisconnected
}

func TestRegistry_DiscoveryIsIdempotent(t *testing.T) {
	r := newTestRegistry()

	discover(r, "aa:aa", -60, "Alpha")
	discover(r, "aa:aa", -55, "Alpha")
	discover(r, "aa:aa", -50, "Alpha")

	snap := r.Snapshot()
	require.Len(t, snap, 1)
	require.NotNil(t, snap[0].RSSI)
	assert.Equal(t, -50, *snap[0].RSSI)
	assert.Equal(t, StatusScanning, snap[0].Status)
	assertExclusive(t, r)
}

func TestRegistry_IdentityIsNormalized(t *testing.T) {
	r := newTestRegistry()

	discover(r, "AA:BB:CC", -60, "Alpha")
	discover(r, "aa:bb:cc", -50, "Alpha")

	snap := r.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "aa:bb:cc", snap[0].Identity)
}

func TestRegistry_FilterRejectsNonMatching(t *testing.T) {
	r := newTestRegistry()
	r.SetFilter(ScanFilter{Prefix: "ME_"})

	discover(r, "11:11", -60, "ME_Box")
	discover(r, "22:22", -50, "Other")

	snap := r.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "ME_Box", snap[0].Name)
}

func TestRegistry_FilterDoesNotApplyToUpdates(t *testing.T) {
	r := newTestRegistry()

	// Discovered before the filter was set; later updates must still land.
	discover(r, "11:11", -60, "Other")
	r.SetFilter(ScanFilter{Prefix: "ME_"})
	discover(r, "11:11", -40, "Other")

	snap := r.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, -40, *snap[0].RSSI)
}

func TestRegistry_SnapshotOrdering(t *testing.T) {
	r := newTestRegistry()

	discover(r, "aa:aa", -60, "A")
	discover(r, "bb:bb", -40, "B")
	discover(r, "cc:cc", -80, "C")

	snap := r.Snapshot()
	require.Len(t, snap, 3)
	// Same status: strongest signal first.
	assert.Equal(t, "B", snap[0].Name)
	assert.Equal(t, "A", snap[1].Name)
	assert.Equal(t, "C", snap[2].Name)

	// A connecting device outranks every scanning device regardless of RSSI.
	_, err := r.ConnectRequested("cc:cc")
	require.NoError(t, err)

	snap = r.Snapshot()
	assert.Equal(t, "C", snap[0].Name)
	assert.Equal(t, StatusConnecting, snap[0].Status)
	assert.Equal(t, "B", snap[1].Name)
	assertExclusive(t, r)
}

func TestRegistry_SnapshotRanksMissingRSSIBelowAnyReading(t *testing.T) {
	r := newTestRegistry()

	discover(r, "aa:aa", -95, "Weak")
	r.Discovered("bb:bb", &stubHandle{id: "bb:bb", addr: "bb:bb"}, nil, 0, "NoRSSI", "bb:bb")
	r.mu.Lock()
	if rec, ok := r.scanned.Get("bb:bb"); ok {
		rec.rssi = nil
	}
	r.mu.Unlock()

	snap := r.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "Weak", snap[0].Name)
	assert.Nil(t, snap[1].RSSI)
}

func TestRegistry_ConnectRequested(t *testing.T) {
	r := newTestRegistry()

	// Unknown identity.
	_, err := r.ConnectRequested("zz:zz")
	assert.ErrorIs(t, err, ErrNotFound)

	// Scanned device moves to the tracked partition.
	discover(r, "aa:aa", -60, "Alpha")
	h, err := r.ConnectRequested("aa:aa")
	require.NoError(t, err)
	assert.Equal(t, "aa:aa", h.Identity())
	assert.Equal(t, StatusConnecting, statusOf(t, r, "aa:aa"))
	assertExclusive(t, r)

	// A second connect while in flight is rejected.
	_, err = r.ConnectRequested("aa:aa")
	assert.ErrorIs(t, err, ErrNotEligible)

	// Still not eligible once connected.
	r.TransportConnected("aa:aa")
	_, err = r.ConnectRequested("aa:aa")
	assert.ErrorIs(t, err, ErrNotEligible)
}

func TestRegistry_ConnectRetryAfterFailure(t *testing.T) {
	r := newTestRegistry()

	discover(r, "aa:aa", -60, "Alpha")
	_, err := r.ConnectRequested("aa:aa")
	require.NoError(t, err)

	r.TransportConnectFailed("aa:aa")
	assert.Equal(t, StatusDisconnected, statusOf(t, r, "aa:aa"))

	// A failed attempt leaves the record tracked and retryable.
	_, err = r.ConnectRequested("aa:aa")
	require.NoError(t, err)
	assert.Equal(t, StatusConnecting, statusOf(t, r, "aa:aa"))
	assertExclusive(t, r)
}

func TestRegistry_DisconnectIsTerminal(t *testing.T) {
	r := newTestRegistry()

	discover(r, "aa:aa", -60, "Alpha")
	_, err := r.ConnectRequested("aa:aa")
	require.NoError(t, err)
	r.TransportConnected("aa:aa")

	h, ok := r.DisconnectRequested("aa:aa")
	require.True(t, ok)
	assert.Equal(t, "aa:aa", h.Identity())

	// The record is gone from both partitions.
	assert.Empty(t, r.Snapshot())
	assertExclusive(t, r)

	// Rediscovery starts a fresh scanning record.
	discover(r, "aa:aa", -70, "Alpha")
	assert.Equal(t, StatusScanning, statusOf(t, r, "aa:aa"))
}

func TestRegistry_DisconnectUnknownIdentity(t *testing.T) {
	r := newTestRegistry()

	_, ok := r.DisconnectRequested("zz:zz")
	assert.False(t, ok)
}

func TestRegistry_TransportEventsIgnoreUntrackedDevices(t *testing.T) {
	r := newTestRegistry()

	discover(r, "aa:aa", -60, "Alpha")

	// Scanning-partition records never change status from transport events.
	r.TransportConnected("aa:aa")
	assert.Equal(t, StatusScanning, statusOf(t, r, "aa:aa"))

	r.TransportDisconnected("zz:zz")
	assert.Len(t, r.Snapshot(), 1)
}

func TestRegistry_ClearScannedKeepsTracked(t *testing.T) {
	r := newTestRegistry()

	discover(r, "aa:aa", -60, "Alpha")
	discover(r, "bb:bb", -50, "Beta")
	_, err := r.ConnectRequested("bb:bb")
	require.NoError(t, err)

	r.ClearScanned()

	snap := r.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "Beta", snap[0].Name)
}

func TestRegistry_NameAndRSSIUpdates(t *testing.T) {
	r := newTestRegistry()

	discover(r, "aa:aa", -60, "")
	r.NameChanged("aa:aa", "Resolved")
	r.RSSIUpdated("aa:aa", -42)

	snap := r.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "Resolved", snap[0].Name)
	assert.Equal(t, -42, *snap[0].RSSI)

	// Unknown identities are silent no-ops.
	r.NameChanged("zz:zz", "Ghost")
	r.RSSIUpdated("zz:zz", -10)
	assert.Len(t, r.Snapshot(), 1)
}

func TestRegistry_AdvertisementUpdated(t *testing.T) {
	r := newTestRegistry()

	discover(r, "aa:aa", -60, "Alpha")
	r.AdvertisementUpdated("aa:aa", map[string]interface{}{"local_name": "Alpha", "tx_power": 4})

	r.mu.RLock()
	rec, ok := r.scanned.Get("aa:aa")
	r.mu.RUnlock()
	require.True(t, ok)
	assert.Equal(t, 4, rec.advertisement["tx_power"])

	// Unknown identity is a no-op.
	r.AdvertisementUpdated("zz:zz", map[string]interface{}{})
	assert.Len(t, r.Snapshot(), 1)
}

func TestRegistry_SnapshotIsDetached(t *testing.T) {
	r := newTestRegistry()

	discover(r, "aa:aa", -60, "Alpha")
	snap := r.Snapshot()
	*snap[0].RSSI = -1
	snap[0].Name = "Mutated"

	fresh := r.Snapshot()
	assert.Equal(t, -60, *fresh[0].RSSI)
	assert.Equal(t, "Alpha", fresh[0].Name)
}

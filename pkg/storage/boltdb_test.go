package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	dir := t.TempDir()
	store, err := NewBoltStore(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestBoltStore_Uint32RoundTrip(t *testing.T) {
	store := newTestStore(t)

	v, err := store.GetUint32(NamespaceSecurity, KeySecurityCounter, 7)
	require.NoError(t, err)
	require.Equal(t, uint32(7), v, "default returned when key absent")

	require.NoError(t, store.PutUint32(NamespaceSecurity, KeySecurityCounter, 10500))

	v, err = store.GetUint32(NamespaceSecurity, KeySecurityCounter, 0)
	require.NoError(t, err)
	require.Equal(t, uint32(10500), v)
}

func TestBoltStore_BoolRoundTrip(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.PutBool(NamespacePower, KeyPowerEnabled, true))
	v, err := store.GetBool(NamespacePower, KeyPowerEnabled, false)
	require.NoError(t, err)
	require.True(t, v)
}

func TestBoltStore_StringRoundTrip(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.PutString(NamespaceDiagnostics, "last-boot-reason", "watchdog"))
	v, err := store.GetString(NamespaceDiagnostics, "last-boot-reason", "")
	require.NoError(t, err)
	require.Equal(t, "watchdog", v)
}

func TestBoltStore_JSONRoundTrip(t *testing.T) {
	store := newTestStore(t)

	type sample struct {
		Phase string
		Count int
	}

	found, err := store.GetJSON(NamespaceFirmware, KeyFirmwareState, &sample{})
	require.NoError(t, err)
	require.False(t, found)

	in := sample{Phase: "downloading", Count: 4}
	require.NoError(t, store.PutJSON(NamespaceFirmware, KeyFirmwareState, in))

	var out sample
	found, err = store.GetJSON(NamespaceFirmware, KeyFirmwareState, &out)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, in, out)
}

func TestBoltStore_UnknownNamespace(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetUint32("not-a-namespace", "k", 0)
	require.Error(t, err)

	err = store.PutUint32("not-a-namespace", "k", 1)
	require.Error(t, err)
}

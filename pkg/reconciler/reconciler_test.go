package reconciler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/ecowatt/pkg/netclient"
	"github.com/cuemby/ecowatt/pkg/storage"
	"github.com/cuemby/ecowatt/pkg/types"
)

func intPtr(v int) *int { return &v }

type recordingNotifier struct {
	calls []types.DeviceConfig
}

func (n *recordingNotifier) ConfigChanged(cfg types.DeviceConfig) {
	n.calls = append(n.calls, cfg)
}

func testReconciler(t *testing.T, desired interface{}, ackSink *[]ackEntry) (*Reconciler, storage.Store) {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	mux := http.NewServeMux()
	mux.HandleFunc("/config/device-1", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			if desired == nil {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			json.NewEncoder(w).Encode(desired)
		}
	})
	mux.HandleFunc("/config/device-1/ack", func(w http.ResponseWriter, r *http.Request) {
		var ack wireAck
		json.NewDecoder(r.Body).Decode(&ack)
		if ackSink != nil {
			*ackSink = ack.Entries
		}
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return &Reconciler{
		Client:   netclient.New(server.URL),
		Store:    store,
		DeviceID: "device-1",
		Catalog: map[string]types.Register{
			"v1": {ID: "v1", Address: 1, Type: types.RegisterVoltage},
			"v2": {ID: "v2", Address: 2, Type: types.RegisterVoltage},
			"v3": {ID: "v3", Address: 3, Type: types.RegisterVoltage},
		},
		Logger: zerolog.Nop(),
	}, store
}

func TestReconciler_NoDesiredConfigIsNoop(t *testing.T) {
	r, _ := testReconciler(t, nil, nil)
	accepted, err := r.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, accepted)
}

func TestReconciler_AcceptsValidChangeAndPersists(t *testing.T) {
	var acks []ackEntry
	r, store := testReconciler(t, wireConfig{
		PollPeriodSeconds:   intPtr(60),
		UploadPeriodSeconds: intPtr(120),
	}, &acks)

	notifier := &recordingNotifier{}
	r.Notifiers = []Notifier{notifier}

	accepted, err := r.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, accepted)
	require.Len(t, notifier.calls, 1)

	var persisted types.DeviceConfig
	found, err := store.GetJSON(storage.NamespaceConfig, "device-config", &persisted)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, 60e9, float64(persisted.PollPeriod))

	for _, e := range acks {
		require.True(t, e.Accepted, e.Key)
	}
}

func TestReconciler_RejectsUploadPeriodBelowPollPeriod(t *testing.T) {
	var acks []ackEntry
	r, store := testReconciler(t, wireConfig{
		PollPeriodSeconds:   intPtr(60),
		UploadPeriodSeconds: intPtr(30),
	}, &acks)

	accepted, err := r.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, accepted)

	found, err := store.GetJSON(storage.NamespaceConfig, "device-config", &types.DeviceConfig{})
	require.NoError(t, err)
	require.False(t, found)

	var rejectedUpload bool
	for _, e := range acks {
		if e.Key == "upload-period" {
			require.False(t, e.Accepted)
			rejectedUpload = true
		}
	}
	require.True(t, rejectedUpload)
}

func TestReconciler_RejectsPollPeriodAboveUploadPeriodWhenUploadPeriodUnchanged(t *testing.T) {
	var acks []ackEntry
	r, store := testReconciler(t, wireConfig{
		PollPeriodSeconds: intPtr(3600), // default upload-period is 60s; this batch doesn't touch it
	}, &acks)

	accepted, err := r.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, accepted)

	found, err := store.GetJSON(storage.NamespaceConfig, "device-config", &types.DeviceConfig{})
	require.NoError(t, err)
	require.False(t, found)

	require.Len(t, acks, 1)
	require.Equal(t, "poll-period", acks[0].Key)
	require.False(t, acks[0].Accepted)
}

func TestReconciler_RejectsRegisterSelectionOutsideCatalog(t *testing.T) {
	var acks []ackEntry
	r, _ := testReconciler(t, wireConfig{
		ActiveRegisterSet: &[]string{"v1", "v2", "does-not-exist"},
	}, &acks)

	accepted, err := r.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, accepted)
	require.Len(t, acks, 1)
	require.False(t, acks[0].Accepted)
}

func TestReconciler_PartiallyInvalidBatchRejectsEverything(t *testing.T) {
	var acks []ackEntry
	r, store := testReconciler(t, wireConfig{
		PollPeriodSeconds:   intPtr(3600 * 100), // out of range
		CompressionEnabled:  boolPtr(true),
	}, &acks)

	accepted, err := r.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, accepted)

	found, _ := store.GetJSON(storage.NamespaceConfig, "device-config", &types.DeviceConfig{})
	require.False(t, found)

	for _, e := range acks {
		require.False(t, e.Accepted)
	}
}

func boolPtr(v bool) *bool { return &v }

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister(t *testing.T) {
	r := prometheus.NewRegistry()
	Register(r)
	assert.Same(t, prometheus.Registerer(r), GetRegisterer())

	SnapshotOperations.WithLabelValues(SerializeLabel, SuccessLabel).Inc()
	SnapshotCodecBytes.WithLabelValues("json", EncodeLabel).Observe(128)

	families, err := r.Gather()
	require.NoError(t, err)
	names := make(map[string]struct{}, len(families))
	for _, f := range families {
		names[f.GetName()] = struct{}{}
	}
	assert.Contains(t, names, "graphsnap_snapshot_operations_total")
	assert.Contains(t, names, "graphsnap_snapshot_codec_bytes")

	// 重复注册不会 panic
	assert.NotPanics(t, func() { Register(r) })
}

func TestMarkerCounter(t *testing.T) {
	before := testutil.ToFloat64(SnapshotMarkers.WithLabelValues(CycleMarkerLabel))
	SnapshotMarkers.WithLabelValues(CycleMarkerLabel).Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(SnapshotMarkers.WithLabelValues(CycleMarkerLabel)))
}

package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	snapshotMetricSubsystem = "snapshot"

	SerializeLabel   = "serialize"
	DeserializeLabel = "deserialize"
	EncodeLabel      = "encode"
	DecodeLabel      = "decode"

	CycleMarkerLabel = "cycle"
	DepthMarkerLabel = "depth"
)

var (
	snapshotMetricsRegisterOnce sync.Once

	// SnapshotOperations 统计顶层序列化、反序列化调用次数。
	SnapshotOperations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: graphsnapNamespace,
		Subsystem: snapshotMetricSubsystem,
		Name:      "operations_total",
		Help:      "number of top-level snapshot operations",
	}, []string{operationLabelName, statusLabelName})

	SnapshotLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: graphsnapNamespace,
		Subsystem: snapshotMetricSubsystem,
		Name:      "latency",
		Help:      "latency of top-level snapshot operations in milliseconds",
		Buckets:   buckets,
	}, []string{operationLabelName})

	// SnapshotMarkers 统计环路与深度截断标记的产生次数。
	SnapshotMarkers = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: graphsnapNamespace,
		Subsystem: snapshotMetricSubsystem,
		Name:      "markers_total",
		Help:      "number of cycle and depth markers emitted",
	}, []string{kindLabelName})

	// SnapshotFieldFallbacks 统计字段降级为文本的次数。
	SnapshotFieldFallbacks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: graphsnapNamespace,
		Subsystem: snapshotMetricSubsystem,
		Name:      "field_fallbacks_total",
		Help:      "number of fields replaced by a textual fallback",
	}, []string{typeNameLabelName})

	SnapshotDiscoverySkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: graphsnapNamespace,
		Subsystem: snapshotMetricSubsystem,
		Name:      "discovery_skipped_modules_total",
		Help:      "number of modules skipped during namespace discovery",
	})

	SnapshotCodecBytes = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: graphsnapNamespace,
		Subsystem: snapshotMetricSubsystem,
		Name:      "codec_bytes",
		Help:      "size of encoded or decoded snapshot payloads in bytes",
		Buckets:   sizeBuckets,
	}, []string{codecLabelName, operationLabelName})
)

// RegisterSnapshotMetrics 注册快照引擎相关指标。
func RegisterSnapshotMetrics(registry prometheus.Registerer) {
	snapshotMetricsRegisterOnce.Do(func() {
		registry.MustRegister(SnapshotOperations)
		registry.MustRegister(SnapshotLatency)
		registry.MustRegister(SnapshotMarkers)
		registry.MustRegister(SnapshotFieldFallbacks)
		registry.MustRegister(SnapshotDiscoverySkipped)
		registry.MustRegister(SnapshotCodecBytes)
	})
}

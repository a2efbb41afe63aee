// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	loggingMetricSubsystem = "logging"
)

var (
	LoggingMetricsRegisterOnce sync.Once

	LoggingTruncatedWrites = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: graphsnapNamespace,
		Subsystem: loggingMetricSubsystem,
		Name:      "truncated_writes",
		Help:      "单条日志超过最大字节数而被截断的次数",
	})

	LoggingTruncatedWriteBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: graphsnapNamespace,
		Subsystem: loggingMetricSubsystem,
		Name:      "truncated_write_bytes",
		Help:      "因单条日志超过最大字节数而被截断的总字节数",
	})

	LoggingIOFailure = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: graphsnapNamespace,
		Subsystem: loggingMetricSubsystem,
		Name:      "io_failures",
		Help:      "底层写入或刷新失败的次数",
	})

	LoggingRatedDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: graphsnapNamespace,
		Subsystem: loggingMetricSubsystem,
		Name:      "rated_dropped",
		Help:      "被限流器丢弃的日志条数",
	}, []string{levelLabelName})
)

// RegisterLoggingMetrics 将日志相关的指标注册到 Prometheus Registerer 中。
func RegisterLoggingMetrics(registry prometheus.Registerer) {
	LoggingMetricsRegisterOnce.Do(func() {
		registry.MustRegister(LoggingTruncatedWrites)
		registry.MustRegister(LoggingTruncatedWriteBytes)
		registry.MustRegister(LoggingIOFailure)
		registry.MustRegister(LoggingRatedDropped)
	})
}

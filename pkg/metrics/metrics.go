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
	// graphsnapNamespace 是当前项目所有 Prometheus 指标使用的命名空间。
	graphsnapNamespace = "graphsnap"

	// 以下为当前使用的通用标签名。
	operationLabelName = "operation"
	statusLabelName    = "status"
	kindLabelName      = "kind"
	typeNameLabelName  = "type_name"
	codecLabelName     = "codec"
	levelLabelName     = "level"

	SuccessLabel = "success"
	FailLabel    = "fail"
)

var (
	// buckets 为耗时直方图的桶划分，单位为毫秒。
	// 实际桶分布为：
	// [0.0625 0.125 0.25 0.5 1 2 4 8 16 32 64 128 256 512 1024 2048]
	buckets = prometheus.ExponentialBuckets(0.0625, 2, 16)

	// sizeBuckets 为数据大小的桶划分，单位为字节。
	sizeBuckets = prometheus.ExponentialBuckets(64, 4, 12)

	registerMu       sync.Mutex
	metricRegisterer prometheus.Registerer
)

func GetRegisterer() prometheus.Registerer {
	registerMu.Lock()
	defer registerMu.Unlock()
	if metricRegisterer == nil {
		return prometheus.DefaultRegisterer
	}
	return metricRegisterer
}

// Register 将全部指标注册到 r 上，并记录 r 作为后续 GetRegisterer 的返回值。
func Register(r prometheus.Registerer) {
	RegisterSnapshotMetrics(r)
	RegisterLoggingMetrics(r)
	registerMu.Lock()
	metricRegisterer = r
	registerMu.Unlock()
}

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

package log

import (
	"go.uber.org/zap/zapcore"

	"github.com/lk2023060901/graphsnap-go/pkg/metrics"
)

var _ zapcore.Core = (*bufferedTextCore)(nil)

// NewBufferedTextCore 创建一个经由 zapcore.BufferedWriteSyncer 批量落盘的 Core。
// 单条日志超过 BufferedWriteMaxBytesPerLog 时会被截断。
func NewBufferedTextCore(cfg *Config, ws zapcore.WriteSyncer, enab zapcore.LevelEnabler) *bufferedTextCore {
	bws := &zapcore.BufferedWriteSyncer{
		WS:            ws,
		Size:          cfg.BufferedWriteBufferSize,
		FlushInterval: cfg.BufferedWriteFlushInterval,
	}
	return &bufferedTextCore{
		LevelEnabler:   enab,
		enc:            newZapEncoder(cfg),
		bws:            bws,
		maxBytesPerLog: cfg.BufferedWriteMaxBytesPerLog,
	}
}

type bufferedTextCore struct {
	zapcore.LevelEnabler

	enc            zapcore.Encoder
	bws            *zapcore.BufferedWriteSyncer
	maxBytesPerLog int
}

func (c *bufferedTextCore) With(fields []zapcore.Field) zapcore.Core {
	enc := c.enc.Clone()
	for _, field := range fields {
		field.AddTo(enc)
	}
	return &bufferedTextCore{
		LevelEnabler:   c.LevelEnabler,
		enc:            enc,
		bws:            c.bws,
		maxBytesPerLog: c.maxBytesPerLog,
	}
}

func (c *bufferedTextCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *bufferedTextCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	buf, err := c.enc.EncodeEntry(ent, fields)
	if err != nil {
		return err
	}
	defer buf.Free()

	data := buf.Bytes()
	if length := len(data); c.maxBytesPerLog > 0 && length > c.maxBytesPerLog {
		metrics.LoggingTruncatedWrites.Inc()
		metrics.LoggingTruncatedWriteBytes.Add(float64(length - c.maxBytesPerLog))
		data = append(data[:c.maxBytesPerLog-1:c.maxBytesPerLog-1], '\n')
	}
	if _, err := c.bws.Write(data); err != nil {
		metrics.LoggingIOFailure.Inc()
		return err
	}
	if ent.Level > zapcore.ErrorLevel {
		return c.Sync()
	}
	return nil
}

func (c *bufferedTextCore) Sync() error {
	if err := c.bws.Sync(); err != nil {
		metrics.LoggingIOFailure.Inc()
		return err
	}
	return nil
}

// Stop 刷新剩余缓冲并停止后台刷新协程。
func (c *bufferedTextCore) Stop() {
	if err := c.bws.Stop(); err != nil {
		metrics.LoggingIOFailure.Inc()
	}
}

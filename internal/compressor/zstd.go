package compressor

import (
	"github.com/cockroachdb/errors"
	"github.com/klauspost/compress/zstd"

	"github.com/lk2023060901/graphsnap-go/pkg/util/hardware"
)

var (
	// ErrClosed 表示压缩器已被 Close。
	ErrClosed = errors.New("compressor: used after close")
	// ErrInvalidFrame 表示输入缺少或带有未知的帧头标记。
	ErrInvalidFrame = errors.New("compressor: invalid frame header")
)

// 帧头标记：0 表示原样存储，1 表示 zstd 压缩。
const (
	frameRaw  byte = 0
	frameZstd byte = 1
)

// ZstdCompressor 基于 klauspost/compress/zstd 的压缩实现，持有独立的 encoder/decoder。
//
// 输出首字节为帧头标记，低于 minCompressSize 的输入原样存储，
// 因此 Decompress 可以正确处理两种情况。
type ZstdCompressor struct {
	enc             *zstd.Encoder
	dec             *zstd.Decoder
	minCompressSize int
}

var _ Compressor = (*ZstdCompressor)(nil)

// NewZstdCompressor 创建一个 ZstdCompressor，默认并发度为主机 CPU 核心数。
func NewZstdCompressor() (*ZstdCompressor, error) {
	return NewZstdCompressorWithConcurrency(0)
}

// NewZstdCompressorWithConcurrency 创建一个 ZstdCompressor。
// concurrency <= 0 时使用 hardware.GetCPUNum()。
func NewZstdCompressorWithConcurrency(concurrency int) (*ZstdCompressor, error) {
	if concurrency <= 0 {
		concurrency = hardware.GetCPUNum()
	}

	enc, err := zstd.NewWriter(nil,
		zstd.WithZeroFrames(true),
		zstd.WithEncoderConcurrency(concurrency),
	)
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(concurrency))
	if err != nil {
		enc.Close()
		return nil, err
	}
	return &ZstdCompressor{
		enc: enc,
		dec: dec,
	}, nil
}

func (c *ZstdCompressor) Name() string { return "zstd" }

// SetMinCompressSize 设置触发压缩的最小字节数。
func (c *ZstdCompressor) SetMinCompressSize(n int) {
	if n < 0 {
		n = 0
	}
	c.minCompressSize = n
}

// Compress 实现 Compressor 接口。
func (c *ZstdCompressor) Compress(dst, src []byte) ([]byte, error) {
	if c == nil || c.enc == nil {
		return nil, ErrClosed
	}

	out := dst[:0]
	if c.minCompressSize > 0 && len(src) < c.minCompressSize {
		out = append(out, frameRaw)
		return append(out, src...), nil
	}

	out = append(out, frameZstd)
	return c.enc.EncodeAll(src, out), nil
}

// Decompress 实现 Compressor 接口。
func (c *ZstdCompressor) Decompress(dst, src []byte) ([]byte, error) {
	if c == nil || c.dec == nil {
		return nil, ErrClosed
	}
	if len(src) == 0 {
		return nil, ErrInvalidFrame
	}
	switch src[0] {
	case frameRaw:
		return append(dst[:0], src[1:]...), nil
	case frameZstd:
		return c.dec.DecodeAll(src[1:], dst[:0])
	default:
		return nil, ErrInvalidFrame
	}
}

// Close 释放内部 encoder/decoder，之后的调用返回 ErrClosed。
func (c *ZstdCompressor) Close() {
	if c == nil {
		return
	}
	if c.enc != nil {
		_ = c.enc.Close()
		c.enc = nil
	}
	if c.dec != nil {
		c.dec.Close()
		c.dec = nil
	}
}

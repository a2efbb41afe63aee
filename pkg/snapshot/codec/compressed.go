package codec

import (
	"github.com/lk2023060901/graphsnap-go/internal/compressor"
	"github.com/lk2023060901/graphsnap-go/pkg/snapshot"
)

type compressedCodec struct {
	inner Codec
	c     compressor.Compressor
}

// Compressed 在 inner 的输出上叠加压缩，名称形如 json+zstd。
func Compressed(inner Codec, c compressor.Compressor) Codec {
	return compressedCodec{inner: inner, c: c}
}

func (cc compressedCodec) Name() string {
	return cc.inner.Name() + "+" + cc.c.Name()
}

func (cc compressedCodec) ContentType() string {
	return cc.inner.ContentType()
}

func (cc compressedCodec) Encode(v *snapshot.Value) ([]byte, error) {
	data, err := cc.inner.Encode(v)
	if err != nil {
		return nil, err
	}
	return cc.c.Compress(nil, data)
}

func (cc compressedCodec) Decode(data []byte) (*snapshot.Value, error) {
	plain, err := cc.c.Decompress(nil, data)
	if err != nil {
		return nil, err
	}
	return cc.inner.Decode(plain)
}

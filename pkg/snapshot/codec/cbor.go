package codec

import (
	"reflect"

	cbor "github.com/fxamacker/cbor/v2"

	"github.com/lk2023060901/graphsnap-go/pkg/snapshot"
)

const CBORName = "cbor"

type cborCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

// CBOR 返回确定性的 CBOR 编码（RFC 8949 core deterministic）。
func CBOR() (Codec, error) {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return nil, err
	}
	dm, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		return nil, err
	}
	return cborCodec{enc: em, dec: dm}, nil
}

func (cborCodec) Name() string        { return CBORName }
func (cborCodec) ContentType() string { return "application/cbor" }

func (c cborCodec) Encode(v *snapshot.Value) ([]byte, error) {
	return c.enc.Marshal(snapshot.ToPlain(v))
}

func (c cborCodec) Decode(data []byte) (*snapshot.Value, error) {
	var tree any
	if err := c.dec.Unmarshal(data, &tree); err != nil {
		return nil, err
	}
	return snapshot.FromPlain(tree)
}

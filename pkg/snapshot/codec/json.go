package codec

import (
	"github.com/lk2023060901/graphsnap-go/internal/json"
	"github.com/lk2023060901/graphsnap-go/pkg/snapshot"
)

const (
	JSONName      = "json"
	JSONPlainName = "json-plain"
)

type jsonCodec struct{}

// JSON 返回有序、无损的 JSON 编码。Content-Type: application/json
func JSON() Codec { return jsonCodec{} }

func (jsonCodec) Name() string        { return JSONName }
func (jsonCodec) ContentType() string { return "application/json" }

func (jsonCodec) Encode(v *snapshot.Value) ([]byte, error) {
	return v.MarshalJSON()
}

func (jsonCodec) Decode(data []byte) (*snapshot.Value, error) {
	return snapshot.ParseJSON(data)
}

type jsonPlainCodec struct{}

// JSONPlain 返回经由普通 JSON 树的编码，键按字典序输出，
// 整数值的浮点数会被读回为整数。
func JSONPlain() Codec { return jsonPlainCodec{} }

func (jsonPlainCodec) Name() string        { return JSONPlainName }
func (jsonPlainCodec) ContentType() string { return "application/json" }

func (jsonPlainCodec) Encode(v *snapshot.Value) ([]byte, error) {
	return json.Marshal(snapshot.ToPlain(v))
}

func (jsonPlainCodec) Decode(data []byte) (*snapshot.Value, error) {
	var tree any
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, err
	}
	return snapshot.FromPlain(tree)
}

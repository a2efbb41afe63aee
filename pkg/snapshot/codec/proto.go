package codec

import (
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/lk2023060901/graphsnap-go/pkg/snapshot"
)

const ProtoName = "proto"

type protoCodec struct {
	mo proto.MarshalOptions
	uo proto.UnmarshalOptions
}

// Proto 返回基于 google.protobuf.Value 的编码。
// protobuf 只有双精度数字，读回的数字全部是 Float。
func Proto() Codec {
	return protoCodec{
		mo: proto.MarshalOptions{Deterministic: true},
		uo: proto.UnmarshalOptions{},
	}
}

func (protoCodec) Name() string        { return ProtoName }
func (protoCodec) ContentType() string { return "application/x-protobuf" }

func (p protoCodec) Encode(v *snapshot.Value) ([]byte, error) {
	msg, err := structpb.NewValue(snapshot.ToPlain(v))
	if err != nil {
		return nil, err
	}
	return p.mo.Marshal(msg)
}

func (p protoCodec) Decode(data []byte) (*snapshot.Value, error) {
	var msg structpb.Value
	if err := p.uo.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return snapshot.FromPlain(msg.AsInterface())
}

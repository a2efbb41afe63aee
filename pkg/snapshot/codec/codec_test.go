package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/graphsnap-go/internal/compressor"
	"github.com/lk2023060901/graphsnap-go/pkg/snapshot"
	"github.com/lk2023060901/graphsnap-go/pkg/util/merr"
)

func sample() *snapshot.Value {
	return snapshot.NewObject("Spacecraft",
		snapshot.Entry{Key: "name", Value: snapshot.Str("voyager")},
		snapshot.Entry{Key: "mass", Value: snapshot.Float(721.9)},
		snapshot.Entry{Key: "cells", Value: snapshot.Int(-4)},
		snapshot.Entry{Key: "ok", Value: snapshot.Bool(true)},
		snapshot.Entry{Key: "tags", Value: snapshot.NewContainer(snapshot.ContainerSet, snapshot.Str("deep"), snapshot.Str("space"))},
		snapshot.Entry{Key: "owner", Value: snapshot.NewMarker(snapshot.MarkerCycleDetected, "Spacecraft", "<craft>")},
		snapshot.Entry{Key: "parts", Value: snapshot.Sequence(snapshot.Null(), snapshot.Mapping(
			snapshot.Entry{Key: "b", Value: snapshot.Str("x")},
			snapshot.Entry{Key: "a", Value: snapshot.Str("y")},
		))},
	)
}

func TestRegistry(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)
	assert.Equal(t, []string{CBORName, JSONName, JSONPlainName, ProtoName}, r.Names())

	c, err := r.Get(JSONName)
	require.NoError(t, err)
	assert.Equal(t, "application/json", c.ContentType())

	_, err = r.Get("xml")
	assert.ErrorIs(t, err, merr.ErrCodecNotFound)

	zc, err := compressor.NewZstdCompressor()
	require.NoError(t, err)
	defer zc.Close()
	r.Register(Compressed(c, zc))
	_, err = r.Get("json+zstd")
	assert.NoError(t, err)
}

func TestJSONIsLossless(t *testing.T) {
	in := sample()
	data, err := Encode(JSON(), in)
	require.NoError(t, err)
	out, err := Decode(JSON(), data)
	require.NoError(t, err)
	assert.True(t, in.Equal(out), out.String())
}

func TestPlainCodecs(t *testing.T) {
	cbor, err := CBOR()
	require.NoError(t, err)

	for _, c := range []Codec{JSONPlain(), cbor, Proto()} {
		t.Run(c.Name(), func(t *testing.T) {
			data, err := Encode(c, sample())
			require.NoError(t, err)
			out, err := Decode(c, data)
			require.NoError(t, err)

			obj, err := out.AsObject()
			require.NoError(t, err)
			assert.Equal(t, "Spacecraft", obj.TypeName)
			assert.Equal(t, snapshot.KindContainer, out.Get("tags").Kind())
			assert.Equal(t, 2, out.Get("tags").Len())
			assert.Equal(t, snapshot.KindMarker, out.Get("owner").Kind())
			assert.True(t, out.Get("name").Equal(snapshot.Str("voyager")))
			assert.True(t, out.Get("ok").Equal(snapshot.Bool(true)))

			mass, err := out.Get("mass").AsFloat()
			require.NoError(t, err)
			assert.Equal(t, 721.9, mass)
			cells, err := out.Get("cells").AsFloat()
			require.NoError(t, err)
			assert.Equal(t, -4.0, cells)

			// 普通树中转后键按字典序排列
			entries, err := out.Get("parts").Index(1).AsMapping()
			require.NoError(t, err)
			assert.Equal(t, "a", entries[0].Key)
		})
	}
}

func TestCBORKeepsNumberKinds(t *testing.T) {
	c, err := CBOR()
	require.NoError(t, err)
	in := snapshot.Sequence(snapshot.Int(3), snapshot.Int(-3), snapshot.Float(2))
	data, err := Encode(c, in)
	require.NoError(t, err)
	out, err := Decode(c, data)
	require.NoError(t, err)
	assert.True(t, in.Equal(out), out.String())
}

func TestCompressed(t *testing.T) {
	zc, err := compressor.NewZstdCompressorWithConcurrency(1)
	require.NoError(t, err)
	defer zc.Close()

	c := Compressed(JSON(), zc)
	assert.Equal(t, "json+zstd", c.Name())

	in := sample()
	data, err := Encode(c, in)
	require.NoError(t, err)
	out, err := Decode(c, data)
	require.NoError(t, err)
	assert.True(t, in.Equal(out))

	_, err = Decode(c, []byte{9, 1, 2})
	assert.ErrorIs(t, err, merr.ErrCodecFailed)
	assert.ErrorIs(t, err, compressor.ErrInvalidFrame)
}

func TestDecodeErrors(t *testing.T) {
	cbor, err := CBOR()
	require.NoError(t, err)
	for _, c := range []Codec{JSON(), JSONPlain(), cbor, Proto()} {
		_, err := Decode(c, []byte{0xff, 0x00, 0x7b})
		assert.ErrorIs(t, err, merr.ErrCodecFailed, c.Name())
	}

	_, err = Decode(JSON(), []byte(`{"__type__":"set"}`))
	assert.ErrorIs(t, err, merr.ErrCodecFailed)
}

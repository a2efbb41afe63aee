package snapshot

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lk2023060901/graphsnap-go/pkg/log"
	"github.com/lk2023060901/graphsnap-go/pkg/util/merr"
)

func TestEngineSerializeAll(t *testing.T) {
	e := newTestEngine(WithWorkers(2))
	roots := make([]any, 0, 5)
	for i := 0; i < 5; i++ {
		roots = append(roots, &Battery{Cells: i})
	}
	out, err := e.SerializeAll(context.Background(), roots)
	require.NoError(t, err)
	require.Len(t, out, 5)
	for i, v := range out {
		assert.True(t, v.Get("Cells").Equal(Int(int64(i))))
	}

	out, err = e.SerializeAll(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestEngineSerializeAllFailure(t *testing.T) {
	e := newTestEngine()
	_, err := e.SerializeAll(context.Background(), []any{&Battery{}, func() {}})
	assert.ErrorIs(t, err, merr.ErrSerialization)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.SerializeAll(ctx, []any{&Battery{}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEngineSharesRegistry(t *testing.T) {
	r := NewRegistry()
	e := NewEngine(WithRegistry(r), WithMaxDepth(7), WithLogger(log.With(zap.String("test", "engine"))))
	assert.Same(t, r, e.Registry())
	assert.Equal(t, 7, e.Config().MaxDepth)

	r.MustRegisterType(Battery{})
	data, err := e.SerializeToJSON(&Battery{Cells: 1})
	require.NoError(t, err)
	out, err := e.Deserialize(data)
	require.NoError(t, err)
	assert.Equal(t, &Battery{Cells: 1}, out)

	var b Battery
	require.NoError(t, e.DeserializeInto(data, &b))
	assert.Equal(t, 1, b.Cells)
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultMaxDepth, cfg.MaxDepth)
	assert.Equal(t, DefaultFieldTag, cfg.FieldTag)
	assert.True(t, cfg.SortMapKeys)

	cfg.MaxDepth = -1
	assert.ErrorIs(t, cfg.Validate(), merr.ErrParameterInvalid)
}

func TestCustomFieldTag(t *testing.T) {
	type Reading struct {
		Value float64 `json:"v"`
	}
	e := NewEngine(WithFieldTag("json"))
	e.Registry().MustRegisterType(Reading{})
	data, err := e.SerializeToJSON(&Reading{Value: 1.5})
	require.NoError(t, err)
	assert.Equal(t, `{"__type__":"Reading","v":1.5}`, string(data))
}

func TestInspect(t *testing.T) {
	n := &Node{Name: "a", Children: []*Node{{Name: "b"}}}
	n.Next = n
	v, err := newTestEngine().Serialize(n)
	require.NoError(t, err)

	stats := Inspect(v)
	assert.Equal(t, 2, stats.TypeNames["Node"])
	assert.Equal(t, 1, stats.Markers["cycle"])
	assert.Equal(t, []string{"Node"}, stats.SortedTypeNames())
	assert.Equal(t, 3, stats.MaxDepth)
	assert.Equal(t, 8, stats.Nodes)
}

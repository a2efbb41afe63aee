package snapshot

import (
	"context"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/lk2023060901/graphsnap-go/pkg/log"
	"github.com/lk2023060901/graphsnap-go/pkg/util/conc"
)

// Engine 组合 Registry、Serializer 与 Deserializer，三者共享同一份类型表和配置。
type Engine struct {
	log.Binder

	registry     *Registry
	serializer   *Serializer
	deserializer *Deserializer
	cfg          Config
}

func NewEngine(opts ...Option) *Engine {
	o := buildOptions(opts)
	registry := o.registry
	if registry == nil {
		registry = NewRegistry()
	}
	e := &Engine{
		registry:     registry,
		serializer:   NewSerializer(registry, opts...),
		deserializer: NewDeserializer(registry, opts...),
		cfg:          o.cfg,
	}
	if o.logger != nil {
		e.SetLogger(o.logger)
		registry.SetLogger(o.logger)
	}
	return e
}

func (e *Engine) Registry() *Registry {
	return e.registry
}

func (e *Engine) Serializer() *Serializer {
	return e.serializer
}

func (e *Engine) Deserializer() *Deserializer {
	return e.deserializer
}

func (e *Engine) Config() Config {
	return e.cfg
}

func (e *Engine) Serialize(root any) (*Value, error) {
	return e.serializer.Serialize(root)
}

func (e *Engine) SerializeToJSON(root any) ([]byte, error) {
	return e.serializer.SerializeToJSON(root)
}

func (e *Engine) Deserialize(data any) (any, error) {
	return e.deserializer.Deserialize(data)
}

func (e *Engine) DeserializeFromJSON(text []byte) (any, error) {
	return e.deserializer.DeserializeFromJSON(text)
}

func (e *Engine) DeserializeInto(data any, target any) error {
	return e.deserializer.DeserializeInto(data, target)
}

// SerializeAll 在协程池中并发序列化多个互不相关的根对象，结果与 roots 一一对应。
// 任一根失败或 ctx 结束时返回错误。
func (e *Engine) SerializeAll(ctx context.Context, roots []any) ([]*Value, error) {
	if len(roots) == 0 {
		return []*Value{}, nil
	}
	pool, err := conc.NewPool[*Value](e.cfg.Workers, conc.WithConcealPanic(true))
	if err != nil {
		return nil, errors.Wrap(err, "create serialize pool")
	}
	defer pool.Release()

	futures := make([]*conc.Future[*Value], 0, len(roots))
	for _, root := range roots {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		futures = append(futures, pool.Submit(func() (*Value, error) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return e.serializer.Serialize(root)
		}))
	}

	out := make([]*Value, len(futures))
	for i, f := range futures {
		v, err := f.AwaitCtx(ctx)
		if err != nil {
			e.Logger().Warn("serialize root failed", zap.Int("index", i), zap.Error(err))
			return nil, errors.Wrapf(err, "serialize root %d", i)
		}
		out[i] = v
	}
	return out, nil
}

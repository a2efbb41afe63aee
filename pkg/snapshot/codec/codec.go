// Package codec 提供快照树的多种字节编码，以及按名称查找编码的注册表。
//
// 只有 json 编码是无损的：对象字段顺序、整数与浮点的区分都能原样保留。
// 其它编码经由普通 JSON 兼容树中转，字段按键排序，数字类型可能变化。
package codec

import (
	"slices"
	"sync"

	"github.com/samber/lo"

	"github.com/lk2023060901/graphsnap-go/pkg/metrics"
	"github.com/lk2023060901/graphsnap-go/pkg/snapshot"
	"github.com/lk2023060901/graphsnap-go/pkg/util/merr"
)

// Codec 在快照树与字节之间转换。实现必须是确定性的，可并发使用。
type Codec interface {
	Name() string
	ContentType() string
	Encode(v *snapshot.Value) ([]byte, error)
	Decode(data []byte) (*snapshot.Value, error)
}

// Registry 按名称保存编码。
type Registry struct {
	mu     sync.RWMutex
	byName map[string]Codec
}

// NewRegistry 创建预置了 json、json-plain、cbor、proto 的注册表。
func NewRegistry() (*Registry, error) {
	r := &Registry{byName: make(map[string]Codec)}
	r.Register(JSON())
	r.Register(JSONPlain())
	r.Register(Proto())
	c, err := CBOR()
	if err != nil {
		return nil, merr.WrapErrCodecFailed(CBORName, err, "init")
	}
	r.Register(c)
	return r, nil
}

// Register 添加编码，同名覆盖。
func (r *Registry) Register(c Codec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[c.Name()] = c
}

func (r *Registry) Get(name string) (Codec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byName[name]
	if !ok {
		return nil, merr.WrapErrCodecNotFound(name)
	}
	return c, nil
}

// Names 返回已注册的编码名，按字典序排列。
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := lo.Keys(r.byName)
	r.mu.RUnlock()
	slices.Sort(names)
	return names
}

// Encode 用 c 编码 v，记录编码大小，失败时返回 ErrCodecFailed。
func Encode(c Codec, v *snapshot.Value) ([]byte, error) {
	data, err := c.Encode(v)
	if err != nil {
		return nil, merr.WrapErrCodecFailed(c.Name(), err, metrics.EncodeLabel)
	}
	metrics.SnapshotCodecBytes.WithLabelValues(c.Name(), metrics.EncodeLabel).Observe(float64(len(data)))
	return data, nil
}

// Decode 用 c 解码 data，记录输入大小，失败时返回 ErrCodecFailed。
func Decode(c Codec, data []byte) (*snapshot.Value, error) {
	metrics.SnapshotCodecBytes.WithLabelValues(c.Name(), metrics.DecodeLabel).Observe(float64(len(data)))
	v, err := c.Decode(data)
	if err != nil {
		return nil, merr.WrapErrCodecFailed(c.Name(), err, metrics.DecodeLabel)
	}
	return v, nil
}

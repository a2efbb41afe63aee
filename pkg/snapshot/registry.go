package snapshot

import (
	"reflect"
	"sort"
	"sync"

	"github.com/samber/lo"

	"github.com/lk2023060901/graphsnap-go/pkg/log"
	"github.com/lk2023060901/graphsnap-go/pkg/util/merr"
	"github.com/lk2023060901/graphsnap-go/pkg/util/typeutil"
)

// Descriptor 描述一个可重建的类型。
type Descriptor struct {
	// Name 为线上格式中使用的类型名。
	Name string
	// Type 为结构体类型（非指针）。
	Type reflect.Type
	// Exclude 为类型级别排除的字段名（快照名）。
	Exclude typeutil.Set[string]
}

// Excluded 判断字段是否在类型级别被排除。
func (d Descriptor) Excluded(field string) bool {
	return d.Exclude != nil && d.Exclude.Contain(field)
}

// TypeOption 配置 RegisterType 生成的 Descriptor。
type TypeOption func(desc *Descriptor)

// WithTypeName 覆盖默认的类型名（Go 类型名）。
func WithTypeName(name string) TypeOption {
	return func(desc *Descriptor) {
		desc.Name = name
	}
}

// WithExclude 设置类型级别排除的字段。
func WithExclude(fields ...string) TypeOption {
	return func(desc *Descriptor) {
		if desc.Exclude == nil {
			desc.Exclude = typeutil.NewSet[string]()
		}
		desc.Exclude.Insert(fields...)
	}
}

// Registry 维护类型名到 Descriptor 的映射，并发安全。
type Registry struct {
	log.Binder

	mu     sync.RWMutex
	byName map[string]Descriptor
	byType map[reflect.Type]string
}

func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]Descriptor),
		byType: make(map[reflect.Type]string),
	}
}

// Register 注册或覆盖 name 对应的 Descriptor，后写入者生效。
// 容器标签 set、frozenset、tuple 不能用作类型名。
func (r *Registry) Register(name string, desc Descriptor) error {
	if _, ok := ParseContainerKind(name); ok {
		return merr.WrapErrParameterInvalidMsg("type name %q is reserved for containers", name)
	}
	desc.Name = name
	desc.Type = indirectType(desc.Type)

	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.byName[name]; ok && old.Type != desc.Type {
		if r.byType[old.Type] == name {
			delete(r.byType, old.Type)
		}
	}
	r.byName[name] = desc
	if desc.Type != nil {
		r.byType[desc.Type] = name
	}
	return nil
}

// RegisterType 从原型值推导 Descriptor 并注册。
// 原型可以是结构体值或其指针（包括 nil 指针）。
func (r *Registry) RegisterType(prototype any, opts ...TypeOption) (Descriptor, error) {
	t := indirectType(reflect.TypeOf(prototype))
	if t == nil || t.Kind() != reflect.Struct {
		return Descriptor{}, merr.WrapErrParameterInvalidMsg("prototype %T is not a struct", prototype)
	}
	desc := Descriptor{Name: t.Name(), Type: t}
	for _, opt := range opts {
		opt(&desc)
	}
	if desc.Name == "" {
		return Descriptor{}, merr.WrapErrParameterInvalidMsg("anonymous struct %s needs WithTypeName", t.String())
	}
	if err := r.Register(desc.Name, desc); err != nil {
		return Descriptor{}, err
	}
	return desc, nil
}

// MustRegisterType 与 RegisterType 相同，失败时 panic。
func (r *Registry) MustRegisterType(prototype any, opts ...TypeOption) Descriptor {
	desc, err := r.RegisterType(prototype, opts...)
	if err != nil {
		panic(err)
	}
	return desc
}

// Resolve 按类型名查找 Descriptor。
func (r *Registry) Resolve(name string) (Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	desc, ok := r.byName[name]
	if !ok {
		return Descriptor{}, merr.WrapErrUnknownType(name)
	}
	return desc, nil
}

// Lookup 按 Go 类型查找已注册的 Descriptor。
func (r *Registry) Lookup(t reflect.Type) (Descriptor, bool) {
	t = indirectType(t)
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.byType[t]
	if !ok {
		return Descriptor{}, false
	}
	desc, ok := r.byName[name]
	return desc, ok
}

// NameOf 返回 t 在线上格式中的类型名：已注册时为注册名，否则为 Go 类型名。
func (r *Registry) NameOf(t reflect.Type) string {
	t = indirectType(t)
	if t == nil {
		return "nil"
	}
	if r != nil {
		r.mu.RLock()
		name, ok := r.byType[t]
		r.mu.RUnlock()
		if ok {
			return name
		}
	}
	if t.Name() != "" {
		return t.Name()
	}
	return t.String()
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName)
}

// Names 返回所有已注册的类型名，按字典序排列。
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := lo.Keys(r.byName)
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

func indirectType(t reflect.Type) reflect.Type {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}

package snapshot

import (
	"encoding"
	"encoding/base64"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/lk2023060901/graphsnap-go/pkg/log"
	"github.com/lk2023060901/graphsnap-go/pkg/metrics"
	"github.com/lk2023060901/graphsnap-go/pkg/util/merr"
	"github.com/lk2023060901/graphsnap-go/pkg/util/typeutil"
)

// Serializer 把任意对象图转换为快照树。
//
// 每次 Serialize 调用拥有独立的路径集合与深度计数，同一个 Serializer 可并发使用。
type Serializer struct {
	log.Binder

	registry *Registry
	cfg      Config
}

func NewSerializer(registry *Registry, opts ...Option) *Serializer {
	o := buildOptions(opts)
	if registry == nil {
		registry = NewRegistry()
	}
	s := &Serializer{
		registry: registry,
		cfg:      o.cfg,
	}
	if o.logger != nil {
		s.SetLogger(o.logger)
	}
	return s
}

// Serialize 把 root 转换为快照树。
// 只有根节点本身无法处理时才返回 ErrSerialization，字段级别的失败以文本回退代替。
func (s *Serializer) Serialize(root any) (*Value, error) {
	start := time.Now()
	w := &walker{s: s, path: newAncestors()}
	out, err := w.walk(reflect.ValueOf(root), 0)
	observe(metrics.SerializeLabel, start, err)
	if err != nil {
		return nil, merr.WrapErrSerialization(err, s.registry.NameOf(reflect.TypeOf(root)))
	}
	return out, nil
}

// SerializeToJSON 序列化 root 并编码为有序 JSON。
func (s *Serializer) SerializeToJSON(root any) ([]byte, error) {
	v, err := s.Serialize(root)
	if err != nil {
		return nil, err
	}
	data, err := v.MarshalJSON()
	if err != nil {
		return nil, merr.WrapErrSerialization(err, s.registry.NameOf(reflect.TypeOf(root)), "encode json")
	}
	return data, nil
}

func observe(operation string, start time.Time, err error) {
	status := metrics.SuccessLabel
	if err != nil {
		status = metrics.FailLabel
	}
	metrics.SnapshotOperations.WithLabelValues(operation, status).Inc()
	metrics.SnapshotLatency.WithLabelValues(operation).Observe(float64(time.Since(start).Microseconds()) / 1000)
}

// walker 保存一次顶层调用的状态。
type walker struct {
	s    *Serializer
	path *ancestors
}

func (w *walker) walk(v reflect.Value, depth int) (*Value, error) {
	for v.IsValid() && v.Kind() == reflect.Interface {
		if v.IsNil() {
			return Null(), nil
		}
		v = v.Elem()
	}
	if !v.IsValid() {
		return Null(), nil
	}
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice:
		if v.IsNil() {
			return Null(), nil
		}
	}

	if out, ok, err := w.primitive(v); ok {
		return out, err
	}

	id, tracked := identityOf(v)
	if tracked && w.path.contains(id) {
		metrics.SnapshotMarkers.WithLabelValues(metrics.CycleMarkerLabel).Inc()
		return NewMarker(MarkerCycleDetected, w.s.registry.NameOf(v.Type()), w.describe(v)), nil
	}
	if depth > w.s.cfg.MaxDepth {
		metrics.SnapshotMarkers.WithLabelValues(metrics.DepthMarkerLabel).Inc()
		return NewMarker(MarkerDepthExceeded, w.s.registry.NameOf(v.Type()), w.describe(v)), nil
	}
	if tracked {
		w.path.push(id)
		defer w.path.pop(id)
	}

	switch v.Kind() {
	case reflect.Pointer:
		elem := v.Elem()
		if elem.Kind() == reflect.Struct && elem.Type() != frozenSetType {
			return w.walkStruct(elem, v, depth)
		}
		return w.walk(elem, depth)
	case reflect.Slice:
		items, err := w.walkItems(v, depth)
		if err != nil {
			return nil, err
		}
		if v.Type() == tupleType {
			return NewContainer(ContainerTuple, items...), nil
		}
		return Sequence(items...), nil
	case reflect.Array:
		items, err := w.walkItems(v, depth)
		if err != nil {
			return nil, err
		}
		return NewContainer(ContainerTuple, items...), nil
	case reflect.Map:
		if isSetType(v.Type()) {
			return w.walkSet(ContainerSet, v.MapKeys(), depth)
		}
		return w.walkMap(v, depth)
	case reflect.Struct:
		if v.Type() == frozenSetType {
			if !v.CanInterface() {
				return nil, errors.New("frozenset is not accessible")
			}
			fs := v.Interface().(FrozenSet)
			keys := make([]reflect.Value, 0, fs.Len())
			fs.Range(func(item any) bool {
				keys = append(keys, reflect.ValueOf(&item).Elem())
				return true
			})
			return w.walkSet(ContainerFrozenSet, keys, depth)
		}
		if !v.CanAddr() && v.CanInterface() {
			// 按值传入的结构体复制到可寻址位置，指针接收者的钩子才能生效。
			cp := reflect.New(v.Type())
			cp.Elem().Set(v)
			return w.walkStruct(cp.Elem(), cp, depth)
		}
		return w.walkStruct(v, reflect.Value{}, depth)
	default:
		return nil, merr.WrapErrOperationNotSupported("snapshot of " + v.Type().String())
	}
}

// primitive 处理标量、TextMarshaler 与 []byte。
func (w *walker) primitive(v reflect.Value) (*Value, bool, error) {
	if tm, ok := implementer(v, textMarshalerType); ok {
		text, err := callMarshalText(tm.(encoding.TextMarshaler))
		if err != nil {
			return nil, true, err
		}
		return Str(string(text)), true, nil
	}

	switch v.Kind() {
	case reflect.Bool:
		return Bool(v.Bool()), true, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Int(v.Int()), true, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := v.Uint()
		if u > math.MaxInt64 {
			return nil, true, errors.Newf("integer %d overflows int64", u)
		}
		return Int(int64(u)), true, nil
	case reflect.Float32, reflect.Float64:
		return Float(v.Float()), true, nil
	case reflect.String:
		return Str(v.String()), true, nil
	case reflect.Slice:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return Str(base64.StdEncoding.EncodeToString(v.Bytes())), true, nil
		}
	}
	return nil, false, nil
}

func (w *walker) walkItems(v reflect.Value, depth int) ([]*Value, error) {
	items := make([]*Value, v.Len())
	for i := range items {
		item, err := w.walk(v.Index(i), depth+1)
		if err != nil {
			return nil, errors.Wrapf(err, "item %d", i)
		}
		items[i] = item
	}
	return items, nil
}

func isSetType(t reflect.Type) bool {
	return t.Kind() == reflect.Map && t.Elem().Kind() == reflect.Struct && t.Elem().NumField() == 0
}

// walkSet 输出集合容器，元素按 (种类, 紧凑 JSON) 排序以保证输出稳定。
func (w *walker) walkSet(kind ContainerKind, keys []reflect.Value, depth int) (*Value, error) {
	type sortable struct {
		v   *Value
		key string
	}
	items := make([]sortable, len(keys))
	for i, k := range keys {
		item, err := w.walk(k, depth+1)
		if err != nil {
			return nil, errors.Wrapf(err, "%s item", kind)
		}
		text, err := item.MarshalJSON()
		if err != nil {
			text = []byte(item.String())
		}
		items[i] = sortable{v: item, key: string(text)}
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].v.Kind() != items[j].v.Kind() {
			return items[i].v.Kind() < items[j].v.Kind()
		}
		return items[i].key < items[j].key
	})
	out := make([]*Value, len(items))
	for i, item := range items {
		out[i] = item.v
	}
	return NewContainer(kind, out...), nil
}

func (w *walker) walkMap(v reflect.Value, depth int) (*Value, error) {
	entries := make([]Entry, 0, v.Len())
	seen := typeutil.NewSet[string]()
	iter := v.MapRange()
	for iter.Next() {
		key, err := mapKeyString(iter.Key())
		if err != nil {
			return nil, errors.Wrap(err, "map key")
		}
		if seen.Contain(key) {
			w.s.Logger().Debug("drop duplicated map key after stringify", zap.String("key", key))
			continue
		}
		seen.Insert(key)
		item, err := w.walk(iter.Value(), depth+1)
		if err != nil {
			return nil, errors.Wrapf(err, "map value %q", key)
		}
		entries = append(entries, Entry{Key: key, Value: item})
	}
	if w.s.cfg.SortMapKeys {
		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].Key < entries[j].Key
		})
	}
	return Mapping(entries...), nil
}

func mapKeyString(k reflect.Value) (string, error) {
	for k.Kind() == reflect.Interface {
		if k.IsNil() {
			return "null", nil
		}
		k = k.Elem()
	}
	if tm, ok := implementer(k, textMarshalerType); ok {
		text, err := callMarshalText(tm.(encoding.TextMarshaler))
		return string(text), err
	}
	switch k.Kind() {
	case reflect.String:
		return k.String(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(k.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(k.Uint(), 10), nil
	case reflect.Bool:
		return strconv.FormatBool(k.Bool()), nil
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(k.Float(), 'g', -1, 64), nil
	}
	if k.CanInterface() {
		return fmt.Sprintf("%v", k.Interface()), nil
	}
	return "", errors.Newf("unsupported map key %s", k.Type())
}

// stateField 是字段枚举的结果。
type stateField struct {
	name  string
	value reflect.Value
}

func (w *walker) walkStruct(sv, ptr reflect.Value, depth int) (*Value, error) {
	typeName := w.s.registry.NameOf(sv.Type())
	target := hookTarget(sv, ptr)

	if h, ok := implementer(target, snapshotterType); ok {
		out, err := w.snapshotHook(h.(Snapshotter), sv.Type(), target, depth)
		if err == nil {
			return out, nil
		}
		w.s.Logger().RatedWarn(1, "snapshot hook failed, fall back to fields",
			log.FieldTypeName(typeName), zap.Error(err))
	}

	fields := w.enumerate(sv, target, typeName)
	return w.object(typeName, fields, w.exclusions(sv.Type(), target), depth), nil
}

// object 序列化未被排除的字段，单个字段失败时以文本回退代替。
func (w *walker) object(typeName string, fields []stateField, excluded typeutil.Set[string], depth int) *Value {
	entries := make([]Entry, 0, len(fields))
	for _, f := range fields {
		if excluded.Contain(f.name) {
			continue
		}
		item, err := w.walkField(f.value, depth)
		if err != nil {
			metrics.SnapshotFieldFallbacks.WithLabelValues(typeName).Inc()
			w.s.Logger().RatedWarn(1, "field snapshot failed, use text fallback",
				log.FieldTypeName(typeName), log.FieldField(f.name), zap.Error(err))
			item = Str(w.describe(f.value))
		}
		entries = append(entries, Entry{Key: f.name, Value: item})
	}
	return NewObject(typeName, entries...)
}

// snapshotHook 序列化 Snapshot 的返回值。返回值与对象同类型时直接枚举字段，不再调用钩子，
// 排除字段取原对象与返回值两者的并集。
func (w *walker) snapshotHook(h Snapshotter, self reflect.Type, target reflect.Value, depth int) (*Value, error) {
	res, err := callSnapshot(h)
	if err != nil {
		return nil, err
	}
	rv := reflect.ValueOf(res)
	for rv.IsValid() && rv.Kind() == reflect.Pointer && !rv.IsNil() && rv.Type().Elem() == self {
		rv = rv.Elem()
	}
	if rv.IsValid() && rv.Type() == self {
		if !rv.CanAddr() {
			cp := reflect.New(self).Elem()
			cp.Set(rv)
			rv = cp
		}
		typeName := w.s.registry.NameOf(self)
		excluded := w.exclusions(self, target).Union(w.exclusions(self, rv))
		return w.object(typeName, w.defaultFields(rv, typeName), excluded, depth), nil
	}
	return w.walk(rv, depth+1)
}

func (w *walker) walkField(v reflect.Value, depth int) (out *Value, err error) {
	defer func() {
		if x := recover(); x != nil {
			err = errors.Newf("panic: %v", x)
		}
	}()
	return w.walk(v, depth+1)
}

func hookTarget(sv, ptr reflect.Value) reflect.Value {
	if ptr.IsValid() {
		return ptr
	}
	return sv
}

// enumerate 返回对象的候选字段：StateProvider 优先，失败时退回默认枚举。
func (w *walker) enumerate(sv, target reflect.Value, typeName string) []stateField {
	if h, ok := implementer(target, stateProviderType); ok {
		state, err := callSnapshotState(h.(StateProvider))
		if err == nil {
			fields := make([]stateField, 0, len(state))
			for _, f := range state {
				fields = append(fields, stateField{name: f.Name, value: reflect.ValueOf(f.Value)})
			}
			return fields
		}
		w.s.Logger().RatedWarn(1, "state provider failed, fall back to exported fields",
			log.FieldTypeName(typeName), zap.Error(err))
	}
	return w.defaultFields(sv, typeName)
}

func (w *walker) defaultFields(sv reflect.Value, typeName string) []stateField {
	meta := getStructMeta(sv.Type(), w.s.cfg.FieldTag)
	fields := make([]stateField, 0, len(meta.Fields))
	for _, fm := range meta.Fields {
		if fm.Excluded {
			continue
		}
		fv, err := sv.FieldByIndexErr(fm.Index)
		if err != nil {
			// 嵌入的 nil 指针，提升字段不存在。
			continue
		}
		fields = append(fields, stateField{name: fm.Name, value: fv})
	}
	return fields
}

// exclusions 合并类型级别与实例级别的排除字段。
func (w *walker) exclusions(t reflect.Type, target reflect.Value) typeutil.Set[string] {
	excluded := typeutil.NewSet[string]()
	if desc, ok := w.s.registry.Lookup(t); ok && desc.Exclude != nil {
		excluded = excluded.Union(desc.Exclude)
	}
	if h, ok := implementer(target, excluderType); ok {
		excluded.Insert(callSnapshotExclude(h.(Excluder))...)
	}
	return excluded
}

// describe 返回节点的简短文本描述，用于标记与字段回退。
func (w *walker) describe(v reflect.Value) string {
	s := describeValue(v)
	if limit := w.s.cfg.FallbackMaxLen; limit > 0 && len(s) > limit {
		for limit > 0 && !utf8.RuneStart(s[limit]) {
			limit--
		}
		s = s[:limit] + "..."
	}
	return s
}

func describeValue(v reflect.Value) (out string) {
	if !v.IsValid() {
		return "<nil>"
	}
	defer func() {
		if x := recover(); x != nil {
			out = fmt.Sprintf("<%s>", v.Type())
		}
	}()
	if v.CanInterface() && !(v.Kind() == reflect.Pointer && v.IsNil()) {
		switch t := v.Interface().(type) {
		case error:
			return t.Error()
		case fmt.Stringer:
			return t.String()
		}
	}
	switch v.Kind() {
	case reflect.Pointer, reflect.UnsafePointer, reflect.Chan, reflect.Func:
		return fmt.Sprintf("<%s at %#x>", v.Type(), v.Pointer())
	case reflect.Map, reflect.Slice:
		return fmt.Sprintf("<%s len=%d>", v.Type(), v.Len())
	case reflect.Struct:
		return fmt.Sprintf("<%s>", v.Type())
	}
	if v.CanInterface() {
		return fmt.Sprintf("%v", v.Interface())
	}
	return fmt.Sprintf("<%s>", v.Type())
}

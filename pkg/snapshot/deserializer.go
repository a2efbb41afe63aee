package snapshot

import (
	"encoding"
	"encoding/base64"
	"encoding/json"
	"math"
	"reflect"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/lk2023060901/graphsnap-go/pkg/log"
	"github.com/lk2023060901/graphsnap-go/pkg/metrics"
	"github.com/lk2023060901/graphsnap-go/pkg/util/merr"
	"github.com/lk2023060901/graphsnap-go/pkg/util/typeutil"
)

// Deserializer 根据快照树重建对象。
//
// 对象通过 reflect.New 分配零值后逐字段赋值，不会调用任何构造函数，也不会重新校验类型的不变式。
type Deserializer struct {
	log.Binder

	registry *Registry
	cfg      Config
}

func NewDeserializer(registry *Registry, opts ...Option) *Deserializer {
	o := buildOptions(opts)
	if registry == nil {
		registry = NewRegistry()
	}
	d := &Deserializer{
		registry: registry,
		cfg:      o.cfg,
	}
	if o.logger != nil {
		d.SetLogger(o.logger)
	}
	return d
}

// Deserialize 重建 data 描述的值。
//
// data 可以是 *Value、JSON 文本（[]byte、string、json.RawMessage）或普通 JSON 兼容树。
// 对象重建为指向新分配值的指针 *T。
func (d *Deserializer) Deserialize(data any) (any, error) {
	start := time.Now()
	out, err := d.deserialize(data)
	observe(metrics.DeserializeLabel, start, err)
	return out, err
}

func (d *Deserializer) deserialize(data any) (any, error) {
	v, err := toValue(data)
	if err != nil {
		return nil, err
	}
	out, err := d.build(v, rootPath)
	if err != nil {
		return nil, merr.WrapErrDeserialization(err, rootPath)
	}
	return out, nil
}

// DeserializeFromJSON 解析 JSON 文本并重建。
func (d *Deserializer) DeserializeFromJSON(text []byte) (any, error) {
	return d.Deserialize(text)
}

// DeserializeInto 把 data 重建到 target 指向的值中，target 必须是非 nil 指针。
func (d *Deserializer) DeserializeInto(data any, target any) error {
	start := time.Now()
	err := d.deserializeInto(data, target)
	observe(metrics.DeserializeLabel, start, err)
	return err
}

func (d *Deserializer) deserializeInto(data any, target any) error {
	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return merr.WrapErrParameterInvalidMsg("deserialize target must be a non-nil pointer, got %T", target)
	}
	v, err := toValue(data)
	if err != nil {
		return err
	}
	if err := d.assign(rv.Elem(), v, rootPath); err != nil {
		return merr.WrapErrDeserialization(err, rootPath)
	}
	return nil
}

// DeserializeAs 把 data 重建为 T。
func DeserializeAs[T any](d *Deserializer, data any) (T, error) {
	var out T
	err := d.DeserializeInto(data, &out)
	return out, err
}

func toValue(data any) (*Value, error) {
	var (
		v   *Value
		err error
	)
	switch t := data.(type) {
	case *Value:
		if t == nil {
			return Null(), nil
		}
		return t, nil
	case []byte:
		v, err = ParseJSON(t)
	case json.RawMessage:
		v, err = ParseJSON(t)
	case string:
		v, err = ParseJSON([]byte(t))
	default:
		v, err = FromPlain(data)
	}
	if err != nil {
		return nil, merr.WrapErrDeserialization(err, rootPath, "invalid input")
	}
	return v, nil
}

// build 无类型重建。
func (d *Deserializer) build(v *Value, path string) (any, error) {
	switch v.Kind() {
	case KindNull:
		return nil, nil
	case KindBool:
		return v.boolVal, nil
	case KindInt:
		return v.intVal, nil
	case KindFloat:
		return v.floatVal, nil
	case KindString:
		return v.strVal, nil
	case KindSequence:
		out := make([]any, len(v.seqVal))
		for i, item := range v.seqVal {
			x, err := d.build(item, indexPath(path, i))
			if err != nil {
				return nil, err
			}
			out[i] = x
		}
		return out, nil
	case KindMapping:
		out := make(map[string]any, len(v.mapVal))
		for _, e := range v.mapVal {
			x, err := d.build(e.Value, keyPath(path, e.Key))
			if err != nil {
				return nil, err
			}
			out[e.Key] = x
		}
		return out, nil
	case KindContainer:
		return d.buildContainer(v.containerVal, path)
	case KindObject:
		return d.buildObject(v.objectVal, path)
	case KindMarker:
		m := v.markerVal
		return &Placeholder{Kind: m.Kind, TypeName: m.TypeName, Fallback: m.Fallback}, nil
	default:
		return nil, merr.WrapErrDeserialization(errors.Newf("unknown value kind %d", v.Kind()), path)
	}
}

func (d *Deserializer) buildContainer(c *Container, path string) (any, error) {
	items := make([]any, len(c.Items))
	for i, item := range c.Items {
		x, err := d.build(item, indexPath(path, i))
		if err != nil {
			return nil, err
		}
		items[i] = x
	}
	switch c.Kind {
	case ContainerTuple:
		return Tuple(items), nil
	case ContainerFrozenSet:
		fs, err := newFrozenSetChecked(items)
		if err != nil {
			return nil, merr.WrapErrDeserialization(err, path)
		}
		return fs, nil
	case ContainerSet:
		set := typeutil.NewSet[any]()
		for _, item := range items {
			if !isComparable(item) {
				return nil, merr.WrapErrDeserialization(
					errors.Newf("set item of type %T is not comparable", item), path)
			}
			set.Insert(item)
		}
		return set, nil
	default:
		return nil, merr.WrapErrMalformedContainer(c.Kind.String(), "unknown container kind")
	}
}

func (d *Deserializer) buildObject(obj *Object, path string) (any, error) {
	desc, err := d.registry.Resolve(obj.TypeName)
	if err != nil {
		return nil, err
	}
	ptr := reflect.New(desc.Type)
	if err := d.hydrate(ptr.Elem(), obj.Fields, path); err != nil {
		return nil, err
	}
	return ptr.Interface(), nil
}

// hydrate 逐字段赋值。sv 必须可寻址。
func (d *Deserializer) hydrate(sv reflect.Value, fields []Entry, path string) error {
	meta := getStructMeta(sv.Type(), d.cfg.FieldTag)
	var setter FieldSetter
	if h, ok := implementer(sv, fieldSetterType); ok {
		setter = h.(FieldSetter)
	}

	for _, f := range fields {
		fpath := fieldPath(path, f.Key)
		if setter != nil {
			handled, err := d.callSetter(setter, f, fpath)
			if err != nil {
				return err
			}
			if handled {
				continue
			}
		}

		fm, ok := meta.lookup(f.Key)
		if !ok {
			return merr.WrapErrDeserialization(
				errors.Newf("unknown field %q of %s", f.Key, sv.Type()), fpath)
		}
		slot, err := fieldByIndexAlloc(sv, fm.Index)
		if err != nil {
			return merr.WrapErrDeserialization(err, fpath)
		}
		if !slot.CanSet() {
			return merr.WrapErrDeserialization(errors.Newf("field %s is not settable", fm.GoName), fpath)
		}
		if err := d.assign(slot, f.Value, fpath); err != nil {
			return err
		}
	}
	return nil
}

func (d *Deserializer) callSetter(setter FieldSetter, f Entry, path string) (handled bool, err error) {
	x, err := d.build(f.Value, path)
	if err != nil {
		return false, err
	}
	defer func() {
		if r := recover(); r != nil {
			err = merr.WrapErrDeserialization(errors.Newf("SetSnapshotField panicked: %v", r), path)
		}
	}()
	if err := setter.SetSnapshotField(f.Key, x); err != nil {
		if errors.Is(err, ErrFieldNotHandled) {
			return false, nil
		}
		return false, merr.WrapErrDeserialization(err, path)
	}
	return true, nil
}

// assign 把 v 赋给有类型的 slot，slot 必须可设置。
func (d *Deserializer) assign(slot reflect.Value, v *Value, path string) error {
	t := slot.Type()

	if v.Kind() == KindMarker {
		if t.Kind() == reflect.Interface && placeholderType.AssignableTo(t) {
			m := v.markerVal
			slot.Set(reflect.ValueOf(&Placeholder{Kind: m.Kind, TypeName: m.TypeName, Fallback: m.Fallback}))
			return nil
		}
		d.Logger().Debug("drop marker in typed slot",
			zap.String("path", path),
			zap.Stringer("slot", t),
			zap.Stringer("marker", v.markerVal.Kind))
		slot.Set(reflect.Zero(t))
		return nil
	}
	if v.Kind() == KindNull {
		slot.Set(reflect.Zero(t))
		return nil
	}

	if v.Kind() == KindString && t.Kind() != reflect.Interface && t.Kind() != reflect.Pointer &&
		reflect.PointerTo(t).Implements(textUnmarshalerType) {
		target := reflect.New(t)
		if err := target.Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(v.strVal)); err != nil {
			return merr.WrapErrDeserialization(err, path)
		}
		slot.Set(target.Elem())
		return nil
	}

	switch t.Kind() {
	case reflect.Interface:
		return d.assignInterface(slot, v, path)
	case reflect.Pointer:
		elem := reflect.New(t.Elem())
		if err := d.assign(elem.Elem(), v, path); err != nil {
			return err
		}
		slot.Set(elem)
		return nil
	case reflect.Bool:
		b, err := v.AsBool()
		if err != nil {
			return merr.WrapErrDeserialization(err, path)
		}
		slot.SetBool(b)
		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i, err := integerOf(v)
		if err != nil {
			return merr.WrapErrDeserialization(err, path)
		}
		if slot.OverflowInt(i) {
			return merr.WrapErrDeserialization(errors.Newf("%d overflows %s", i, t), path)
		}
		slot.SetInt(i)
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		i, err := integerOf(v)
		if err != nil {
			return merr.WrapErrDeserialization(err, path)
		}
		if i < 0 || slot.OverflowUint(uint64(i)) {
			return merr.WrapErrDeserialization(errors.Newf("%d overflows %s", i, t), path)
		}
		slot.SetUint(uint64(i))
		return nil
	case reflect.Float32, reflect.Float64:
		f, err := v.AsFloat()
		if err != nil {
			return merr.WrapErrDeserialization(err, path)
		}
		if slot.OverflowFloat(f) {
			return merr.WrapErrDeserialization(errors.Newf("%g overflows %s", f, t), path)
		}
		slot.SetFloat(f)
		return nil
	case reflect.String:
		s, err := v.AsStr()
		if err != nil {
			return merr.WrapErrDeserialization(err, path)
		}
		slot.SetString(s)
		return nil
	case reflect.Slice:
		return d.assignSlice(slot, v, path)
	case reflect.Array:
		return d.assignArray(slot, v, path)
	case reflect.Map:
		return d.assignMap(slot, v, path)
	case reflect.Struct:
		return d.assignStruct(slot, v, path)
	case reflect.Func, reflect.Chan, reflect.UnsafePointer, reflect.Complex64, reflect.Complex128:
		// 这些字段序列化时只留下文本回退，无法还原。
		if v.Kind() == KindString {
			d.Logger().Debug("drop text fallback in opaque slot",
				zap.String("path", path),
				zap.Stringer("slot", t))
			slot.Set(reflect.Zero(t))
			return nil
		}
		fallthrough
	default:
		return merr.WrapErrDeserialization(
			merr.WrapErrOperationNotSupported("deserialize into "+t.String()), path)
	}
}

func (d *Deserializer) assignInterface(slot reflect.Value, v *Value, path string) error {
	x, err := d.build(v, path)
	if err != nil {
		return err
	}
	t := slot.Type()
	if x == nil {
		slot.Set(reflect.Zero(t))
		return nil
	}
	rv := reflect.ValueOf(x)
	if rv.Type().AssignableTo(t) {
		slot.Set(rv)
		return nil
	}
	// 对象重建为 *T，接口只由 T 实现时取值。
	if rv.Kind() == reflect.Pointer && rv.Elem().Type().AssignableTo(t) {
		slot.Set(rv.Elem())
		return nil
	}
	return merr.WrapErrDeserialization(errors.Newf("%s does not satisfy %s", rv.Type(), t), path)
}

// itemsOf 返回 Sequence 或任意容器的元素。
func itemsOf(v *Value) ([]*Value, error) {
	switch v.Kind() {
	case KindSequence:
		return v.seqVal, nil
	case KindContainer:
		return v.containerVal.Items, nil
	default:
		return nil, errors.Newf("expect sequence or container, got %s", v.Kind())
	}
}

func (d *Deserializer) assignSlice(slot reflect.Value, v *Value, path string) error {
	t := slot.Type()
	if t.Elem().Kind() == reflect.Uint8 && v.Kind() == KindString {
		raw, err := base64.StdEncoding.DecodeString(v.strVal)
		if err != nil {
			return merr.WrapErrDeserialization(err, path)
		}
		out := reflect.MakeSlice(t, len(raw), len(raw))
		reflect.Copy(out, reflect.ValueOf(raw))
		slot.Set(out)
		return nil
	}
	items, err := itemsOf(v)
	if err != nil {
		return merr.WrapErrDeserialization(err, path)
	}
	out := reflect.MakeSlice(t, len(items), len(items))
	for i, item := range items {
		if err := d.assign(out.Index(i), item, indexPath(path, i)); err != nil {
			return err
		}
	}
	slot.Set(out)
	return nil
}

func (d *Deserializer) assignArray(slot reflect.Value, v *Value, path string) error {
	items, err := itemsOf(v)
	if err != nil {
		return merr.WrapErrDeserialization(err, path)
	}
	if len(items) > slot.Len() {
		return merr.WrapErrDeserialization(
			errors.Newf("%d items do not fit in %s", len(items), slot.Type()), path)
	}
	slot.Set(reflect.Zero(slot.Type()))
	for i, item := range items {
		if err := d.assign(slot.Index(i), item, indexPath(path, i)); err != nil {
			return err
		}
	}
	return nil
}

func (d *Deserializer) assignMap(slot reflect.Value, v *Value, path string) error {
	t := slot.Type()
	switch v.Kind() {
	case KindContainer:
		elem := t.Elem()
		var present reflect.Value
		switch {
		case elem.Kind() == reflect.Struct && elem.NumField() == 0:
			present = reflect.Zero(elem)
		case elem.Kind() == reflect.Bool:
			present = reflect.ValueOf(true).Convert(elem)
		default:
			return merr.WrapErrDeserialization(
				errors.Newf("%s container cannot fill %s", v.containerVal.Kind, t), path)
		}
		out := reflect.MakeMapWithSize(t, len(v.containerVal.Items))
		for i, item := range v.containerVal.Items {
			ipath := indexPath(path, i)
			key := reflect.New(t.Key()).Elem()
			if err := d.assign(key, item, ipath); err != nil {
				return err
			}
			if !key.Comparable() {
				return merr.WrapErrDeserialization(errors.Newf("set item %s is not comparable", key.Type()), ipath)
			}
			out.SetMapIndex(key, present)
		}
		slot.Set(out)
		return nil
	case KindMapping:
		out := reflect.MakeMapWithSize(t, len(v.mapVal))
		for _, e := range v.mapVal {
			epath := keyPath(path, e.Key)
			key, err := parseMapKey(t.Key(), e.Key)
			if err != nil {
				return merr.WrapErrDeserialization(err, epath)
			}
			val := reflect.New(t.Elem()).Elem()
			if err := d.assign(val, e.Value, epath); err != nil {
				return err
			}
			out.SetMapIndex(key, val)
		}
		slot.Set(out)
		return nil
	default:
		return merr.WrapErrDeserialization(errors.Newf("cannot fill %s from %s", t, v.Kind()), path)
	}
}

func (d *Deserializer) assignStruct(slot reflect.Value, v *Value, path string) error {
	t := slot.Type()
	if t == frozenSetType {
		if v.Kind() != KindContainer {
			return merr.WrapErrDeserialization(errors.Newf("cannot fill frozenset from %s", v.Kind()), path)
		}
		x, err := d.buildContainer(&Container{Kind: ContainerFrozenSet, Items: v.containerVal.Items}, path)
		if err != nil {
			return err
		}
		slot.Set(reflect.ValueOf(x))
		return nil
	}

	// 新分配的值可寻址，FieldSetter 的指针接收者方法可以被调用。
	fresh := reflect.New(t).Elem()
	switch v.Kind() {
	case KindObject:
		desc, err := d.registry.Resolve(v.objectVal.TypeName)
		if err != nil {
			return err
		}
		if desc.Type != t {
			return merr.WrapErrDeserialization(
				errors.Newf("object %s does not match slot %s", v.objectVal.TypeName, t), path)
		}
		if err := d.hydrate(fresh, v.objectVal.Fields, path); err != nil {
			return err
		}
	case KindMapping:
		if err := d.hydrate(fresh, v.mapVal, path); err != nil {
			return err
		}
	default:
		return merr.WrapErrDeserialization(errors.Newf("cannot fill %s from %s", t, v.Kind()), path)
	}
	slot.Set(fresh)
	return nil
}

func integerOf(v *Value) (int64, error) {
	switch v.Kind() {
	case KindInt:
		return v.intVal, nil
	case KindFloat:
		f := v.floatVal
		if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
			return 0, errors.Newf("%g is not an integer", f)
		}
		return int64(f), nil
	default:
		return 0, errors.Newf("value is %s, not int", v.Kind())
	}
}

func parseMapKey(t reflect.Type, s string) (reflect.Value, error) {
	if t.Kind() != reflect.Pointer && reflect.PointerTo(t).Implements(textUnmarshalerType) {
		key := reflect.New(t)
		if err := key.Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(s)); err != nil {
			return reflect.Value{}, err
		}
		return key.Elem(), nil
	}
	key := reflect.New(t).Elem()
	switch t.Kind() {
	case reflect.String:
		key.SetString(s)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i, err := strconv.ParseInt(s, 10, t.Bits())
		if err != nil {
			return reflect.Value{}, err
		}
		key.SetInt(i)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u, err := strconv.ParseUint(s, 10, t.Bits())
		if err != nil {
			return reflect.Value{}, err
		}
		key.SetUint(u)
	case reflect.Bool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return reflect.Value{}, err
		}
		key.SetBool(b)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(s, t.Bits())
		if err != nil {
			return reflect.Value{}, err
		}
		key.SetFloat(f)
	case reflect.Interface:
		if !reflect.TypeOf(s).AssignableTo(t) {
			return reflect.Value{}, errors.Newf("string key does not satisfy %s", t)
		}
		key.Set(reflect.ValueOf(s))
	default:
		return reflect.Value{}, errors.Newf("unsupported map key type %s", t)
	}
	return key, nil
}

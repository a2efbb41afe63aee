package snapshot

import (
	"encoding"
	"reflect"

	"github.com/cockroachdb/errors"
)

// Snapshotter 让类型自行决定快照内容，返回值会替代对象本身继续序列化。
// 返回错误时退回到字段枚举。
type Snapshotter interface {
	Snapshot() (any, error)
}

// Field 是 StateProvider 返回的一个字段。
type Field struct {
	Name  string
	Value any
}

// StateProvider 替代默认的字段枚举，返回错误时退回到默认枚举。
type StateProvider interface {
	SnapshotState() ([]Field, error)
}

// Excluder 提供实例级别的排除字段。
type Excluder interface {
	SnapshotExclude() []string
}

// FieldSetter 在反序列化时接管字段赋值，value 为未带类型的重建结果。
// 返回 ErrFieldNotHandled 时交回默认的反射赋值。
type FieldSetter interface {
	SetSnapshotField(name string, value any) error
}

// ErrFieldNotHandled 由 FieldSetter 返回，表示该字段按默认方式赋值。
var ErrFieldNotHandled = errors.New("snapshot: field not handled by setter")

var (
	snapshotterType     = reflect.TypeOf((*Snapshotter)(nil)).Elem()
	stateProviderType   = reflect.TypeOf((*StateProvider)(nil)).Elem()
	excluderType        = reflect.TypeOf((*Excluder)(nil)).Elem()
	fieldSetterType     = reflect.TypeOf((*FieldSetter)(nil)).Elem()
	textMarshalerType   = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()
	textUnmarshalerType = reflect.TypeOf((*encoding.TextUnmarshaler)(nil)).Elem()
)

// implementer 返回 v 上实现 iface 的接口值，指针接收者的方法通过可寻址的 v 取得。
func implementer(v reflect.Value, iface reflect.Type) (any, bool) {
	if !v.IsValid() || !v.CanInterface() {
		return nil, false
	}
	if v.Type().Implements(iface) {
		if v.Kind() == reflect.Pointer && v.IsNil() {
			return nil, false
		}
		return v.Interface(), true
	}
	if v.Kind() != reflect.Pointer && v.CanAddr() && reflect.PointerTo(v.Type()).Implements(iface) {
		return v.Addr().Interface(), true
	}
	return nil, false
}

func callSnapshot(h Snapshotter) (out any, err error) {
	defer func() {
		if x := recover(); x != nil {
			err = errors.Newf("Snapshot panicked: %v", x)
		}
	}()
	return h.Snapshot()
}

func callSnapshotState(h StateProvider) (out []Field, err error) {
	defer func() {
		if x := recover(); x != nil {
			err = errors.Newf("SnapshotState panicked: %v", x)
		}
	}()
	return h.SnapshotState()
}

func callSnapshotExclude(h Excluder) (out []string) {
	defer func() {
		if x := recover(); x != nil {
			out = nil
		}
	}()
	return h.SnapshotExclude()
}

func callMarshalText(h encoding.TextMarshaler) (out []byte, err error) {
	defer func() {
		if x := recover(); x != nil {
			err = errors.Newf("MarshalText panicked: %v", x)
		}
	}()
	return h.MarshalText()
}

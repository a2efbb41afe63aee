package snapshot

import (
	"encoding/json"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/lk2023060901/graphsnap-go/pkg/util/merr"
)

// 线上格式的保留键。
const (
	TypeKey      = "__type__"
	ItemsKey     = "items"
	RecursionKey = "__recursion__"
	ReprKey      = "__repr__"
)

// escapePrefix 用于转义与保留键或容器标签冲突的键和类型名。
// 形如 "_"*n + 保留字 的文本在输出时多加一个前缀，读入时去掉一个，
// 因此任意键都能无损往返。
const escapePrefix = "_"

var (
	reservedFieldKeys = []string{TypeKey, RecursionKey}
	reservedTypeNames = []string{ContainerSet.String(), ContainerFrozenSet.String(), ContainerTuple.String()}
)

// escapable 判断 s 是否为某个保留字前面加上零个或多个前缀。
func escapable(s string, reserved []string) bool {
	for _, r := range reserved {
		if strings.HasSuffix(s, r) && strings.Trim(s[:len(s)-len(r)], escapePrefix) == "" {
			return true
		}
	}
	return false
}

func escapeName(s string, reserved []string) string {
	if escapable(s, reserved) {
		return escapePrefix + s
	}
	return s
}

// unescapeName 只处理转义过的形式，保留字本身原样返回。
func unescapeName(s string, reserved []string) string {
	if strings.HasPrefix(s, escapePrefix) && escapable(s[len(escapePrefix):], reserved) {
		return s[len(escapePrefix):]
	}
	return s
}

func escapeEntries(entries []Entry, out []Entry) []Entry {
	for _, e := range entries {
		out = append(out, Entry{Key: escapeName(e.Key, reservedFieldKeys), Value: e.Value})
	}
	return out
}

// wireEntries 返回节点在线上格式中的对象条目，非对象形态返回 false。
func wireEntries(v *Value) ([]Entry, bool) {
	switch v.Kind() {
	case KindMapping:
		return escapeEntries(v.mapVal, make([]Entry, 0, len(v.mapVal))), true
	case KindContainer:
		return []Entry{
			{Key: TypeKey, Value: Str(v.containerVal.Kind.String())},
			{Key: ItemsKey, Value: Sequence(v.containerVal.Items...)},
		}, true
	case KindObject:
		entries := make([]Entry, 0, len(v.objectVal.Fields)+1)
		entries = append(entries, Entry{Key: TypeKey, Value: Str(escapeName(v.objectVal.TypeName, reservedTypeNames))})
		return escapeEntries(v.objectVal.Fields, entries), true
	case KindMarker:
		return []Entry{
			{Key: RecursionKey, Value: Str(v.markerVal.Kind.String())},
			{Key: TypeKey, Value: Str(v.markerVal.TypeName)},
			{Key: ReprKey, Value: Str(v.markerVal.Fallback)},
		}, true
	default:
		return nil, false
	}
}

// fromEntries 按保留键把一个 JSON 对象归类为 Mapping、Container、Object 或 Marker。
func fromEntries(entries []Entry) (*Value, error) {
	var typeVal, itemsVal, recursionVal, reprVal *Value
	for _, e := range entries {
		switch e.Key {
		case TypeKey:
			typeVal = e.Value
		case ItemsKey:
			itemsVal = e.Value
		case RecursionKey:
			recursionVal = e.Value
		case ReprKey:
			reprVal = e.Value
		}
	}

	if recursionVal != nil {
		return markerFromEntries(recursionVal, typeVal, reprVal)
	}
	if typeVal == nil {
		return Mapping(unescapeEntries(entries, TypeKey)...), nil
	}

	tag, err := typeVal.AsStr()
	if err != nil {
		return nil, merr.WrapErrMalformedContainer(TypeKey, "type tag is not a string")
	}

	if kind, ok := ParseContainerKind(tag); ok {
		if itemsVal == nil {
			return nil, merr.WrapErrMalformedContainer(tag, "missing items")
		}
		items, err := itemsVal.AsSequence()
		if err != nil {
			return nil, merr.WrapErrMalformedContainer(tag, "items is not a list")
		}
		return NewContainer(kind, items...), nil
	}

	return NewObject(unescapeName(tag, reservedTypeNames), unescapeEntries(entries, TypeKey)...), nil
}

// unescapeEntries 去掉 skip 键并还原被转义的键。
func unescapeEntries(entries []Entry, skip string) []Entry {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.Key == skip {
			continue
		}
		out = append(out, Entry{Key: unescapeName(e.Key, reservedFieldKeys), Value: e.Value})
	}
	return out
}

func markerFromEntries(recursionVal, typeVal, reprVal *Value) (*Value, error) {
	var typeName, fallback string
	if typeVal != nil {
		s, err := typeVal.AsStr()
		if err != nil {
			return nil, merr.WrapErrMalformedContainer(RecursionKey, "type tag is not a string")
		}
		typeName = s
	}
	if reprVal != nil {
		s, err := reprVal.AsStr()
		if err != nil {
			return nil, merr.WrapErrMalformedContainer(RecursionKey, "repr is not a string")
		}
		fallback = s
	}

	switch recursionVal.Kind() {
	case KindString:
		switch recursionVal.strVal {
		case MarkerCycleDetected.String():
			return NewMarker(MarkerCycleDetected, typeName, fallback), nil
		case MarkerDepthExceeded.String():
			return NewMarker(MarkerDepthExceeded, typeName, fallback), nil
		}
	case KindBool:
		// 旧格式：true 且带类型名为循环，否则为超深。
		if recursionVal.boolVal {
			if typeVal != nil {
				return NewMarker(MarkerCycleDetected, typeName, fallback), nil
			}
			return NewMarker(MarkerDepthExceeded, typeName, fallback), nil
		}
	}
	return nil, merr.WrapErrMalformedContainer(RecursionKey, "unknown recursion marker "+recursionVal.String())
}

// ToPlain 把快照树转为由 nil/bool/int64/float64/string/[]any/map[string]any 组成的普通树。
// 普通 map 不保留字段顺序。
func ToPlain(v *Value) any {
	switch v.Kind() {
	case KindNull:
		return nil
	case KindBool:
		return v.boolVal
	case KindInt:
		return v.intVal
	case KindFloat:
		return v.floatVal
	case KindString:
		return v.strVal
	case KindSequence:
		out := make([]any, len(v.seqVal))
		for i, item := range v.seqVal {
			out[i] = ToPlain(item)
		}
		return out
	}

	entries, _ := wireEntries(v)
	out := make(map[string]any, len(entries))
	for _, e := range entries {
		out[e.Key] = ToPlain(e.Value)
	}
	return out
}

// FromPlain 把普通 JSON 兼容树转为快照树，map 的键按字典序排列。
func FromPlain(x any) (*Value, error) {
	switch t := x.(type) {
	case nil:
		return Null(), nil
	case *Value:
		if t == nil {
			return Null(), nil
		}
		return t, nil
	case bool:
		return Bool(t), nil
	case string:
		return Str(t), nil
	case json.Number:
		return parseNumber(string(t))
	case float64:
		return Float(t), nil
	case float32:
		return Float(float64(t)), nil
	case []any:
		items := make([]*Value, len(t))
		for i, item := range t {
			v, err := FromPlain(item)
			if err != nil {
				return nil, err
			}
			items[i] = v
		}
		return Sequence(items...), nil
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		entries := make([]Entry, 0, len(keys))
		for _, k := range keys {
			v, err := FromPlain(t[k])
			if err != nil {
				return nil, err
			}
			entries = append(entries, Entry{Key: k, Value: v})
		}
		return fromEntries(entries)
	}

	rv := reflect.ValueOf(x)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Int(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return nil, errors.Newf("snapshot: integer %d overflows int64", u)
		}
		return Int(int64(u)), nil
	case reflect.Slice, reflect.Array:
		items := make([]any, rv.Len())
		for i := range items {
			items[i] = rv.Index(i).Interface()
		}
		return FromPlain(items)
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}
		m := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			m[iter.Key().String()] = iter.Value().Interface()
		}
		return FromPlain(m)
	}
	return nil, errors.Newf("snapshot: %T is not a plain json value", x)
}

// parseNumber 没有小数点和指数的数字解析为 Int，超出 int64 时退化为 Float。
func parseNumber(s string) (*Value, error) {
	if !strings.ContainsAny(s, ".eE") {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return Int(i), nil
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, errors.Wrapf(err, "snapshot: invalid number %q", s)
	}
	return Float(f), nil
}

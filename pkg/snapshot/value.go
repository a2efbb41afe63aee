package snapshot

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

// Kind 标识 Value 的种类。
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindSequence
	KindMapping
	KindContainer
	KindObject
	KindMarker
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindSequence:
		return "sequence"
	case KindMapping:
		return "mapping"
	case KindContainer:
		return "container"
	case KindObject:
		return "object"
	case KindMarker:
		return "marker"
	default:
		return "unknown"
	}
}

// ContainerKind 区分带标签的集合类容器。
type ContainerKind uint8

const (
	ContainerSet ContainerKind = iota + 1
	ContainerFrozenSet
	ContainerTuple
)

// String 返回容器在线上格式中的标签。
func (c ContainerKind) String() string {
	switch c {
	case ContainerSet:
		return "set"
	case ContainerFrozenSet:
		return "frozenset"
	case ContainerTuple:
		return "tuple"
	default:
		return "unknown"
	}
}

// ParseContainerKind 将线上标签解析为 ContainerKind。
func ParseContainerKind(tag string) (ContainerKind, bool) {
	switch tag {
	case "set":
		return ContainerSet, true
	case "frozenset":
		return ContainerFrozenSet, true
	case "tuple":
		return ContainerTuple, true
	default:
		return 0, false
	}
}

// MarkerKind 区分循环标记与深度标记。
type MarkerKind uint8

const (
	MarkerCycleDetected MarkerKind = iota + 1
	MarkerDepthExceeded
)

func (m MarkerKind) String() string {
	switch m {
	case MarkerCycleDetected:
		return "cycle"
	case MarkerDepthExceeded:
		return "depth"
	default:
		return "unknown"
	}
}

// Entry 是 Mapping 或 Object 中的一个有序键值对。
type Entry struct {
	Key   string
	Value *Value
}

// Container 是 set / frozenset / tuple 容器。
type Container struct {
	Kind  ContainerKind
	Items []*Value
}

// Object 是一个带类型名的对象节点，Fields 保持字段顺序。
type Object struct {
	TypeName string
	Fields   []Entry
}

// Marker 是循环或超深分支的终止节点，Fallback 为原对象的简短文本描述。
type Marker struct {
	Kind     MarkerKind
	TypeName string
	Fallback string
}

// Value 是快照树中的一个节点。
//
// nil *Value 视同 Null。
type Value struct {
	kind Kind

	boolVal  bool
	intVal   int64
	floatVal float64
	strVal   string

	seqVal       []*Value
	mapVal       []Entry
	containerVal *Container
	objectVal    *Object
	markerVal    *Marker
}

// ============================================================
// 构造函数
// ============================================================

// Null 创建一个空值。
func Null() *Value {
	return &Value{kind: KindNull}
}

// Bool 创建一个布尔值。
func Bool(v bool) *Value {
	return &Value{kind: KindBool, boolVal: v}
}

// Int 创建一个整数值。
func Int(v int64) *Value {
	return &Value{kind: KindInt, intVal: v}
}

// Float 创建一个浮点值。
func Float(v float64) *Value {
	return &Value{kind: KindFloat, floatVal: v}
}

// Str 创建一个字符串值。
func Str(v string) *Value {
	return &Value{kind: KindString, strVal: v}
}

// Sequence 创建一个有序列表。
func Sequence(items ...*Value) *Value {
	if items == nil {
		items = []*Value{}
	}
	return &Value{kind: KindSequence, seqVal: items}
}

// Mapping 创建一个有序映射，调用方保证键唯一。
func Mapping(entries ...Entry) *Value {
	if entries == nil {
		entries = []Entry{}
	}
	return &Value{kind: KindMapping, mapVal: entries}
}

// NewContainer 创建一个带标签的容器。
func NewContainer(kind ContainerKind, items ...*Value) *Value {
	if items == nil {
		items = []*Value{}
	}
	return &Value{kind: KindContainer, containerVal: &Container{Kind: kind, Items: items}}
}

// NewObject 创建一个对象节点。
func NewObject(typeName string, fields ...Entry) *Value {
	if fields == nil {
		fields = []Entry{}
	}
	return &Value{kind: KindObject, objectVal: &Object{TypeName: typeName, Fields: fields}}
}

// NewMarker 创建一个标记节点。
func NewMarker(kind MarkerKind, typeName, fallback string) *Value {
	return &Value{kind: KindMarker, markerVal: &Marker{Kind: kind, TypeName: typeName, Fallback: fallback}}
}

// ============================================================
// 访问器
// ============================================================

// Kind 返回节点种类。
func (v *Value) Kind() Kind {
	if v == nil {
		return KindNull
	}
	return v.kind
}

// IsNull 判断节点是否为空值。
func (v *Value) IsNull() bool {
	return v.Kind() == KindNull
}

func (v *Value) kindError(want Kind) error {
	return errors.Newf("snapshot: value is %s, not %s", v.Kind(), want)
}

func (v *Value) AsBool() (bool, error) {
	if v.Kind() != KindBool {
		return false, v.kindError(KindBool)
	}
	return v.boolVal, nil
}

func (v *Value) AsInt() (int64, error) {
	if v.Kind() != KindInt {
		return 0, v.kindError(KindInt)
	}
	return v.intVal, nil
}

// AsFloat 返回浮点值，Int 节点会被转换。
func (v *Value) AsFloat() (float64, error) {
	switch v.Kind() {
	case KindFloat:
		return v.floatVal, nil
	case KindInt:
		return float64(v.intVal), nil
	default:
		return 0, v.kindError(KindFloat)
	}
}

func (v *Value) AsStr() (string, error) {
	if v.Kind() != KindString {
		return "", v.kindError(KindString)
	}
	return v.strVal, nil
}

func (v *Value) AsSequence() ([]*Value, error) {
	if v.Kind() != KindSequence {
		return nil, v.kindError(KindSequence)
	}
	return v.seqVal, nil
}

func (v *Value) AsMapping() ([]Entry, error) {
	if v.Kind() != KindMapping {
		return nil, v.kindError(KindMapping)
	}
	return v.mapVal, nil
}

func (v *Value) AsContainer() (*Container, error) {
	if v.Kind() != KindContainer {
		return nil, v.kindError(KindContainer)
	}
	return v.containerVal, nil
}

func (v *Value) AsObject() (*Object, error) {
	if v.Kind() != KindObject {
		return nil, v.kindError(KindObject)
	}
	return v.objectVal, nil
}

func (v *Value) AsMarker() (*Marker, error) {
	if v.Kind() != KindMarker {
		return nil, v.kindError(KindMarker)
	}
	return v.markerVal, nil
}

// Get 按键查找 Mapping 的条目或 Object 的字段，其余种类返回 nil。
func (v *Value) Get(key string) *Value {
	var entries []Entry
	switch v.Kind() {
	case KindMapping:
		entries = v.mapVal
	case KindObject:
		entries = v.objectVal.Fields
	default:
		return nil
	}
	for _, e := range entries {
		if e.Key == key {
			return e.Value
		}
	}
	return nil
}

// Index 返回 Sequence 或 Container 的第 i 个元素，越界返回 nil。
func (v *Value) Index(i int) *Value {
	var items []*Value
	switch v.Kind() {
	case KindSequence:
		items = v.seqVal
	case KindContainer:
		items = v.containerVal.Items
	}
	if i < 0 || i >= len(items) {
		return nil
	}
	return items[i]
}

// Len 返回子节点数量，标量返回 0。
func (v *Value) Len() int {
	switch v.Kind() {
	case KindSequence:
		return len(v.seqVal)
	case KindMapping:
		return len(v.mapVal)
	case KindContainer:
		return len(v.containerVal.Items)
	case KindObject:
		return len(v.objectVal.Fields)
	default:
		return 0
	}
}

// Equal 深度比较两棵树，Mapping/Object 的字段顺序参与比较。
func (v *Value) Equal(other *Value) bool {
	if v.Kind() != other.Kind() {
		return false
	}
	switch v.Kind() {
	case KindNull:
		return true
	case KindBool:
		return v.boolVal == other.boolVal
	case KindInt:
		return v.intVal == other.intVal
	case KindFloat:
		return v.floatVal == other.floatVal
	case KindString:
		return v.strVal == other.strVal
	case KindSequence:
		return equalItems(v.seqVal, other.seqVal)
	case KindMapping:
		return equalEntries(v.mapVal, other.mapVal)
	case KindContainer:
		return v.containerVal.Kind == other.containerVal.Kind &&
			equalItems(v.containerVal.Items, other.containerVal.Items)
	case KindObject:
		return v.objectVal.TypeName == other.objectVal.TypeName &&
			equalEntries(v.objectVal.Fields, other.objectVal.Fields)
	case KindMarker:
		return *v.markerVal == *other.markerVal
	}
	return false
}

func equalItems(a, b []*Value) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

func equalEntries(a, b []Entry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Key != b[i].Key || !a[i].Value.Equal(b[i].Value) {
			return false
		}
	}
	return true
}

// String 返回便于调试的紧凑表示，不是线上格式。
func (v *Value) String() string {
	var sb strings.Builder
	v.writeDebug(&sb)
	return sb.String()
}

func (v *Value) writeDebug(sb *strings.Builder) {
	switch v.Kind() {
	case KindNull:
		sb.WriteString("null")
	case KindBool:
		fmt.Fprintf(sb, "%t", v.boolVal)
	case KindInt:
		fmt.Fprintf(sb, "%d", v.intVal)
	case KindFloat:
		fmt.Fprintf(sb, "%g", v.floatVal)
	case KindString:
		fmt.Fprintf(sb, "%q", v.strVal)
	case KindSequence:
		writeDebugItems(sb, "[", v.seqVal, "]")
	case KindMapping:
		writeDebugEntries(sb, "{", v.mapVal, "}")
	case KindContainer:
		sb.WriteString(v.containerVal.Kind.String())
		writeDebugItems(sb, "(", v.containerVal.Items, ")")
	case KindObject:
		sb.WriteString(v.objectVal.TypeName)
		writeDebugEntries(sb, "{", v.objectVal.Fields, "}")
	case KindMarker:
		fmt.Fprintf(sb, "<%s %s %q>", v.markerVal.Kind, v.markerVal.TypeName, v.markerVal.Fallback)
	}
}

func writeDebugItems(sb *strings.Builder, open string, items []*Value, end string) {
	sb.WriteString(open)
	for i, item := range items {
		if i > 0 {
			sb.WriteString(", ")
		}
		item.writeDebug(sb)
	}
	sb.WriteString(end)
}

func writeDebugEntries(sb *strings.Builder, open string, entries []Entry, end string) {
	sb.WriteString(open)
	for i, e := range entries {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(e.Key)
		sb.WriteString(": ")
		e.Value.writeDebug(sb)
	}
	sb.WriteString(end)
}

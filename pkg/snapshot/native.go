package snapshot

import (
	"fmt"
	"reflect"

	"github.com/cockroachdb/errors"

	"github.com/lk2023060901/graphsnap-go/pkg/util/typeutil"
)

// Tuple 是定长的有序序列，序列化为 tuple 容器。
type Tuple []any

// FrozenSet 是不可变集合，序列化为 frozenset 容器。
// 零值是一个空集合。
type FrozenSet struct {
	items typeutil.Set[any]
}

// NewFrozenSet 用给定元素创建 FrozenSet，元素必须可比较，否则 panic。
func NewFrozenSet(items ...any) FrozenSet {
	fs, err := newFrozenSetChecked(items)
	if err != nil {
		panic(err)
	}
	return fs
}

func newFrozenSetChecked(items []any) (FrozenSet, error) {
	set := typeutil.NewSet[any]()
	for _, item := range items {
		if !isComparable(item) {
			return FrozenSet{}, errors.Newf("snapshot: set item of type %T is not comparable", item)
		}
		set.Insert(item)
	}
	return FrozenSet{items: set}, nil
}

func (s FrozenSet) Len() int {
	return len(s.items)
}

func (s FrozenSet) Contain(item any) bool {
	if !isComparable(item) {
		return false
	}
	_, ok := s.items[item]
	return ok
}

// Items 返回元素的拷贝，顺序不确定。
func (s FrozenSet) Items() []any {
	return s.items.Collect()
}

func (s FrozenSet) Range(f func(item any) bool) {
	s.items.Range(f)
}

func (s FrozenSet) Equal(other FrozenSet) bool {
	if s.Len() != other.Len() {
		return false
	}
	for item := range s.items {
		if _, ok := other.items[item]; !ok {
			return false
		}
	}
	return true
}

// Placeholder 是反序列化时标记节点的占位对象，不会被展开。
type Placeholder struct {
	Kind     MarkerKind
	TypeName string
	Fallback string
}

func (p *Placeholder) String() string {
	return fmt.Sprintf("<%s placeholder %s: %s>", p.Kind, p.TypeName, p.Fallback)
}

func isComparable(v any) bool {
	if v == nil {
		return true
	}
	return reflect.ValueOf(v).Comparable()
}

var (
	tupleType       = reflect.TypeOf(Tuple(nil))
	frozenSetType   = reflect.TypeOf(FrozenSet{})
	placeholderType = reflect.TypeOf((*Placeholder)(nil))
)

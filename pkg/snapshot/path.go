package snapshot

import (
	"reflect"
	"strconv"

	"github.com/lk2023060901/graphsnap-go/pkg/util/typeutil"
)

// identity 标识一个可能被共享的节点：指针、map 或 slice。
// slice 额外记录长度，同一底层数组上不同长度的切片视为不同节点。
type identity struct {
	typ reflect.Type
	ptr uintptr
	len int
}

func identityOf(v reflect.Value) (identity, bool) {
	switch v.Kind() {
	case reflect.Pointer, reflect.Map:
		return identity{typ: v.Type(), ptr: v.Pointer()}, true
	case reflect.Slice:
		return identity{typ: v.Type(), ptr: v.Pointer(), len: v.Len()}, true
	default:
		return identity{}, false
	}
}

// ancestors 是当前递归路径上的节点集合，进入时压入，返回时弹出。
type ancestors struct {
	set typeutil.Set[identity]
}

func newAncestors() *ancestors {
	return &ancestors{set: typeutil.NewSet[identity]()}
}

func (a *ancestors) contains(id identity) bool {
	return a.set.Contain(id)
}

func (a *ancestors) push(id identity) {
	a.set.Insert(id)
}

func (a *ancestors) pop(id identity) {
	a.set.Remove(id)
}

func (a *ancestors) len() int {
	return a.set.Len()
}

// 字段路径，形如 $.hull.buses[2].mass，用于错误信息。
const rootPath = "$"

func fieldPath(parent, name string) string {
	return parent + "." + name
}

func indexPath(parent string, i int) string {
	return parent + "[" + strconv.Itoa(i) + "]"
}

func keyPath(parent, key string) string {
	return parent + "[" + strconv.Quote(key) + "]"
}

package snapshot

import (
	"reflect"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
)

// structMeta 缓存一个结构体类型在某个 tag 键下的字段信息。
type structMeta struct {
	Type   reflect.Type
	Fields []fieldMeta
	byName map[string]int
}

// fieldMeta 描述一个可快照的导出字段，嵌入结构体的字段会被提升展开。
type fieldMeta struct {
	// Name 为快照中的字段名。
	Name   string
	GoName string
	Index  []int
	Type   reflect.Type
	// Excluded 表示 tag 为 "-"，序列化时跳过，反序列化时仍可按 Go 字段名赋值。
	Excluded bool
	depth    int
	tagged   bool
}

type metaKey struct {
	t   reflect.Type
	tag string
}

var structMetaCache sync.Map // map[metaKey]*structMeta

func getStructMeta(t reflect.Type, tag string) *structMeta {
	key := metaKey{t: t, tag: tag}
	if meta, ok := structMetaCache.Load(key); ok {
		return meta.(*structMeta)
	}
	meta := buildStructMeta(t, tag)
	actual, _ := structMetaCache.LoadOrStore(key, meta)
	return actual.(*structMeta)
}

func (m *structMeta) lookup(name string) (fieldMeta, bool) {
	i, ok := m.byName[name]
	if !ok {
		return fieldMeta{}, false
	}
	return m.Fields[i], true
}

func buildStructMeta(t reflect.Type, tag string) *structMeta {
	candidates := make([]fieldMeta, 0, t.NumField())
	collectFields(t, tag, nil, 0, map[reflect.Type]struct{}{t: {}}, &candidates)

	// 与 encoding/json 相同：同名字段取层级最浅者；同层有多个时，
	// 恰有一个带 tag 名的胜出，否则视为歧义，全部丢弃。
	groups := make(map[string][]int, len(candidates))
	for i, f := range candidates {
		groups[f.Name] = append(groups[f.Name], i)
	}
	best := make(map[string]int, len(groups))
	for name, idx := range groups {
		if i, ok := dominantField(candidates, idx); ok {
			best[name] = i
		}
	}

	meta := &structMeta{
		Type:   t,
		Fields: make([]fieldMeta, 0, len(best)),
		byName: make(map[string]int, len(best)),
	}
	for i, f := range candidates {
		if j, ok := best[f.Name]; !ok || j != i {
			continue
		}
		meta.byName[f.Name] = len(meta.Fields)
		meta.Fields = append(meta.Fields, f)
	}
	return meta
}

func dominantField(candidates []fieldMeta, idx []int) (int, bool) {
	minDepth := candidates[idx[0]].depth
	for _, i := range idx[1:] {
		minDepth = min(minDepth, candidates[i].depth)
	}
	var shallow, tagged []int
	for _, i := range idx {
		if candidates[i].depth != minDepth {
			continue
		}
		shallow = append(shallow, i)
		if candidates[i].tagged {
			tagged = append(tagged, i)
		}
	}
	switch {
	case len(shallow) == 1:
		return shallow[0], true
	case len(tagged) == 1:
		return tagged[0], true
	default:
		return 0, false
	}
}

func collectFields(t reflect.Type, tag string, prefix []int, depth int, visiting map[reflect.Type]struct{}, out *[]fieldMeta) {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tagValue := field.Tag.Get(tag)
		name := strings.TrimSpace(strings.Split(tagValue, ",")[0])

		index := make([]int, len(prefix)+1)
		copy(index, prefix)
		index[len(prefix)] = i

		if field.Anonymous && name == "" && tagValue != "-" {
			ft := field.Type
			if ft.Kind() == reflect.Pointer {
				ft = ft.Elem()
			}
			if ft.Kind() == reflect.Struct {
				if _, seen := visiting[ft]; !seen {
					visiting[ft] = struct{}{}
					collectFields(ft, tag, index, depth+1, visiting, out)
					delete(visiting, ft)
				}
				continue
			}
		}
		if !field.IsExported() {
			continue
		}

		fm := fieldMeta{
			Name:   field.Name,
			GoName: field.Name,
			Index:  index,
			Type:   field.Type,
			depth:  depth,
		}
		if tagValue == "-" {
			fm.Excluded = true
		} else if name != "" {
			fm.Name = name
			fm.tagged = true
		}
		*out = append(*out, fm)
	}
}

// fieldByIndexAlloc 取出嵌套字段，沿途为 nil 的嵌入指针会被分配。
func fieldByIndexAlloc(v reflect.Value, index []int) (reflect.Value, error) {
	for i, x := range index {
		if i > 0 && v.Kind() == reflect.Pointer {
			if v.IsNil() {
				if !v.CanSet() {
					return reflect.Value{}, errors.Newf("cannot allocate embedded pointer %s", v.Type())
				}
				v.Set(reflect.New(v.Type().Elem()))
			}
			v = v.Elem()
		}
		v = v.Field(x)
	}
	return v, nil
}

package snapshot

import "sort"

// Stats 是一棵快照树的统计信息。
type Stats struct {
	Nodes     int            `json:"nodes"`
	MaxDepth  int            `json:"max_depth"`
	Kinds     map[string]int `json:"kinds"`
	Markers   map[string]int `json:"markers"`
	TypeNames map[string]int `json:"type_names"`
}

// SortedTypeNames 返回出现过的对象类型名，按字典序排列。
func (s Stats) SortedTypeNames() []string {
	names := make([]string, 0, len(s.TypeNames))
	for name := range s.TypeNames {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Inspect 遍历快照树并统计节点。
func Inspect(v *Value) Stats {
	s := Stats{
		Kinds:     make(map[string]int),
		Markers:   make(map[string]int),
		TypeNames: make(map[string]int),
	}
	inspect(v, 0, &s)
	return s
}

func inspect(v *Value, depth int, s *Stats) {
	s.Nodes++
	s.Kinds[v.Kind().String()]++
	if depth > s.MaxDepth {
		s.MaxDepth = depth
	}
	switch v.Kind() {
	case KindSequence:
		for _, item := range v.seqVal {
			inspect(item, depth+1, s)
		}
	case KindMapping:
		for _, e := range v.mapVal {
			inspect(e.Value, depth+1, s)
		}
	case KindContainer:
		for _, item := range v.containerVal.Items {
			inspect(item, depth+1, s)
		}
	case KindObject:
		s.TypeNames[v.objectVal.TypeName]++
		for _, e := range v.objectVal.Fields {
			inspect(e.Value, depth+1, s)
		}
	case KindMarker:
		s.Markers[v.markerVal.Kind.String()]++
	}
}

// Package snapshot 将任意（可能带环的）对象图转换为通用值树 Value，
// 并能依据类型注册表从值树重建带类型的对象。
//
// 序列化按路径追踪祖先身份，遇到环或超出最大深度时输出标记节点而不是报错；
// 单个字段失败时只替换该字段为文本回退。反序列化先以 reflect.New 分配零值，
// 再逐字段赋值，不调用任何构造函数。
//
// 值树的 JSON 形式是有序且无损的：
//
//	{"__type__": "Battery", "charge": 0.5, "capacity": 100.0}
//	{"__type__": "set", "items": [1, 2]}
//	{"__recursion__": "cycle", "__type__": "Node", "__repr__": "&{...}"}
package snapshot

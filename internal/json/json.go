// Package json 是对 bytedance/sonic 的薄封装，统一项目内的普通 JSON 编解码入口。
//
// 需要保持对象字段顺序的场景请使用 pkg/snapshot 中的有序编码。
package json

import (
	"github.com/bytedance/sonic"
)

var api = sonic.Config{
	EscapeHTML:       false,
	SortMapKeys:      true,
	CompactMarshaler: true,
	UseNumber:        true,
}.Froze()

// Marshal 将 v 编码为 JSON，map 的键按字典序输出。
func Marshal(v any) ([]byte, error) {
	return api.Marshal(v)
}

// MarshalIndent 与 Marshal 相同，但输出带缩进的 JSON。
func MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return api.MarshalIndent(v, prefix, indent)
}

// Unmarshal 将 data 解码到 v，数字以 json.Number 形式保留。
func Unmarshal(data []byte, v any) error {
	return api.Unmarshal(data, v)
}

// Valid 判断 data 是否为合法 JSON。
func Valid(data []byte) bool {
	return api.Valid(data)
}

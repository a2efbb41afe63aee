package snapshot

import (
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	jsoniter "github.com/json-iterator/go"
)

// maxParseNesting 限制解析时的嵌套层数。
const maxParseNesting = 10000

var (
	jsonAPI = jsoniter.Config{
		EscapeHTML:             false,
		ValidateJsonRawMessage: true,
	}.Froze()

	jsonIndentAPI = jsoniter.Config{
		EscapeHTML:             false,
		ValidateJsonRawMessage: true,
		IndentionStep:          2,
	}.Froze()
)

// MarshalJSON 按线上格式输出紧凑 JSON，保持字段顺序。
func (v *Value) MarshalJSON() ([]byte, error) {
	return encodeWith(jsonAPI, v)
}

// MarshalIndent 与 MarshalJSON 相同，但输出两空格缩进。
func MarshalIndent(v *Value) ([]byte, error) {
	return encodeWith(jsonIndentAPI, v)
}

func encodeWith(api jsoniter.API, v *Value) ([]byte, error) {
	stream := api.BorrowStream(nil)
	defer api.ReturnStream(stream)

	if err := writeValue(stream, v); err != nil {
		return nil, err
	}
	if stream.Error != nil {
		return nil, stream.Error
	}
	buf := stream.Buffer()
	out := make([]byte, len(buf))
	copy(out, buf)
	return out, nil
}

// WriteJSON 把 v 以紧凑 JSON 写入 w。
func WriteJSON(w io.Writer, v *Value) error {
	stream := jsonAPI.BorrowStream(w)
	defer jsonAPI.ReturnStream(stream)

	if err := writeValue(stream, v); err != nil {
		return err
	}
	return stream.Flush()
}

func writeValue(stream *jsoniter.Stream, v *Value) error {
	switch v.Kind() {
	case KindNull:
		stream.WriteNil()
	case KindBool:
		stream.WriteBool(v.boolVal)
	case KindInt:
		stream.WriteInt64(v.intVal)
	case KindFloat:
		s, err := formatFloat(v.floatVal)
		if err != nil {
			return err
		}
		stream.WriteRaw(s)
	case KindString:
		stream.WriteString(v.strVal)
	case KindSequence:
		return writeItems(stream, v.seqVal)
	default:
		entries, _ := wireEntries(v)
		return writeEntries(stream, entries)
	}
	return nil
}

func writeItems(stream *jsoniter.Stream, items []*Value) error {
	if len(items) == 0 {
		stream.WriteEmptyArray()
		return nil
	}
	stream.WriteArrayStart()
	for i, item := range items {
		if i > 0 {
			stream.WriteMore()
		}
		if err := writeValue(stream, item); err != nil {
			return err
		}
	}
	stream.WriteArrayEnd()
	return nil
}

func writeEntries(stream *jsoniter.Stream, entries []Entry) error {
	if len(entries) == 0 {
		stream.WriteEmptyObject()
		return nil
	}
	stream.WriteObjectStart()
	for i, e := range entries {
		if i > 0 {
			stream.WriteMore()
		}
		stream.WriteObjectField(e.Key)
		if err := writeValue(stream, e.Value); err != nil {
			return err
		}
	}
	stream.WriteObjectEnd()
	return nil
}

// formatFloat 输出的浮点数总带小数点或指数，以便与整数区分。
func formatFloat(f float64) (string, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", errors.Newf("snapshot: unsupported float value %v", f)
	}
	format := byte('f')
	if abs := math.Abs(f); abs != 0 && (abs < 1e-6 || abs >= 1e21) {
		format = 'e'
	}
	s := strconv.FormatFloat(f, format, -1, 64)
	if format == 'e' {
		// e-09 -> e-9
		if n := len(s); n >= 4 && s[n-4] == 'e' && s[n-3] == '-' && s[n-2] == '0' {
			s = s[:n-2] + s[n-1:]
		}
	}
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s, nil
}

// ParseJSON 解析线上格式的 JSON 文本，对象字段保持原有顺序。
func ParseJSON(data []byte) (*Value, error) {
	iter := jsonAPI.BorrowIterator(data)
	defer jsonAPI.ReturnIterator(iter)

	v, err := readValue(iter, 0)
	if err != nil {
		return nil, err
	}
	if err := iterError(iter); err != nil {
		return nil, err
	}
	if iter.WhatIsNext() != jsoniter.InvalidValue {
		return nil, errors.New("snapshot: trailing data after json value")
	}
	return v, nil
}

// UnmarshalJSON 实现 json.Unmarshaler。
func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := ParseJSON(data)
	if err != nil {
		return err
	}
	*v = *parsed
	return nil
}

func iterError(iter *jsoniter.Iterator) error {
	if iter.Error != nil && iter.Error != io.EOF {
		return errors.Wrap(iter.Error, "snapshot: invalid json")
	}
	return nil
}

func readValue(iter *jsoniter.Iterator, depth int) (*Value, error) {
	if depth > maxParseNesting {
		return nil, errors.Newf("snapshot: json nesting exceeds %d", maxParseNesting)
	}

	switch iter.WhatIsNext() {
	case jsoniter.NilValue:
		iter.ReadNil()
		return Null(), iterError(iter)
	case jsoniter.BoolValue:
		b := iter.ReadBool()
		return Bool(b), iterError(iter)
	case jsoniter.NumberValue:
		num := iter.ReadNumber()
		if err := iterError(iter); err != nil {
			return nil, err
		}
		return parseNumber(string(num))
	case jsoniter.StringValue:
		s := iter.ReadString()
		return Str(s), iterError(iter)
	case jsoniter.ArrayValue:
		items := make([]*Value, 0)
		var err error
		iter.ReadArrayCB(func(it *jsoniter.Iterator) bool {
			var item *Value
			item, err = readValue(it, depth+1)
			if err != nil {
				return false
			}
			items = append(items, item)
			return true
		})
		if err != nil {
			return nil, err
		}
		if err := iterError(iter); err != nil {
			return nil, err
		}
		return Sequence(items...), nil
	case jsoniter.ObjectValue:
		entries := make([]Entry, 0)
		index := make(map[string]int)
		var err error
		iter.ReadObjectCB(func(it *jsoniter.Iterator, key string) bool {
			var item *Value
			item, err = readValue(it, depth+1)
			if err != nil {
				return false
			}
			// 重复的键以最后一次出现为准，位置保持首次出现处。
			if i, ok := index[key]; ok {
				entries[i].Value = item
				return true
			}
			index[key] = len(entries)
			entries = append(entries, Entry{Key: key, Value: item})
			return true
		})
		if err != nil {
			return nil, err
		}
		if err := iterError(iter); err != nil {
			return nil, err
		}
		return fromEntries(entries)
	default:
		if err := iterError(iter); err != nil {
			return nil, err
		}
		return nil, errors.New("snapshot: invalid json value")
	}
}

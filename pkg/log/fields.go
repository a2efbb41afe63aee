package log

import (
	"go.uber.org/zap"
)

const (
	FieldNameModule    = "module"
	FieldNameComponent = "component"
	FieldNameTypeName  = "typeName"
	FieldNameField     = "field"
	FieldNameCodec     = "codec"
)

// FieldModule 返回一个包含模块名的 zap 字段。
func FieldModule(module string) zap.Field {
	return zap.String(FieldNameModule, module)
}

// FieldComponent 返回一个包含组件名的 zap 字段。
func FieldComponent(component string) zap.Field {
	return zap.String(FieldNameComponent, component)
}

// FieldTypeName 返回一个包含快照类型名的 zap 字段。
func FieldTypeName(name string) zap.Field {
	return zap.String(FieldNameTypeName, name)
}

// FieldField 返回一个包含字段名的 zap 字段。
func FieldField(name string) zap.Field {
	return zap.String(FieldNameField, name)
}

// FieldCodec 返回一个包含编解码器名的 zap 字段。
func FieldCodec(name string) zap.Field {
	return zap.String(FieldNameCodec, name)
}

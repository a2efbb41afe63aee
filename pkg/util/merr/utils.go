// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package merr

import (
	"context"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

// Code 返回给定错误对应的错误码。
// 错误链上最外层的 snapError 决定错误码。
func Code(err error) int32 {
	if err == nil {
		return 0
	}

	var specificErr snapError
	if errors.As(err, &specificErr) {
		return specificErr.code()
	}
	if errors.Is(err, context.Canceled) {
		return CanceledCode
	} else if errors.Is(err, context.DeadlineExceeded) {
		return TimeoutCode
	}
	return errUnexpected.code()
}

func IsRetryableErr(err error) bool {
	var specificErr snapError
	if errors.As(err, &specificErr) {
		return specificErr.retriable
	}
	return false
}

func IsCanceledOrTimeout(err error) bool {
	return errors.IsAny(err, context.Canceled, context.DeadlineExceeded)
}

func GetErrorType(err error) ErrorType {
	var specificErr snapError
	if errors.As(err, &specificErr) {
		return specificErr.errType
	}
	return SystemError
}

// TypeName 返回错误上下文中携带的类型名，不存在时返回空串。
func TypeName(err error) string {
	var specificErr snapError
	if errors.As(err, &specificErr) {
		return specificErr.typeName
	}
	return ""
}

// Tag 返回 MalformedContainer 错误中保留的原始标签。
func Tag(err error) string {
	var specificErr snapError
	if errors.As(err, &specificErr) {
		return specificErr.tag
	}
	return ""
}

// Path 返回反序列化失败时所在的字段路径。
func Path(err error) string {
	var specificErr snapError
	if errors.As(err, &specificErr) {
		return specificErr.path
	}
	return ""
}

// barrier 隐藏 cause 链上的其他错误码，只保留其文本，外层错误因此是调用方看到的唯一错误种类。
// 不带错误码的 cause 保持可 Unwrap。
func barrier(cause error) error {
	var coded snapError
	if cause != nil && errors.As(cause, &coded) {
		return errors.Handled(cause)
	}
	return cause
}

// 序列化相关错误封装。
func WrapErrSerialization(cause error, typeName string, msg ...string) error {
	if cause != nil && errors.Is(cause, ErrSerialization) {
		return cause
	}
	err := ErrSerialization
	err.typeName = typeName
	err.cause = barrier(cause)
	desc := "<nil>"
	if cause != nil {
		desc = cause.Error()
	}
	ret := wrapFieldsWithDesc(err, desc, value("type", typeName))
	if len(msg) > 0 {
		ret = errors.Wrap(ret, strings.Join(msg, "->"))
	}
	return ret
}

// 反序列化相关错误封装。
func WrapErrUnknownType(name string, msg ...string) error {
	err := ErrUnknownType
	err.typeName = name
	ret := wrapFields(err, value("type", name))
	if len(msg) > 0 {
		ret = errors.Wrap(ret, strings.Join(msg, "->"))
	}
	return ret
}

func WrapErrMalformedContainer(tag string, reason string, msg ...string) error {
	err := ErrMalformedContainer
	err.tag = tag
	ret := wrapFieldsWithDesc(err, reason, value("tag", tag))
	if len(msg) > 0 {
		ret = errors.Wrap(ret, strings.Join(msg, "->"))
	}
	return ret
}

// WrapErrDeserialization 包装除 UnknownType/MalformedContainer 之外的所有重建失败。
// cause 本身已经是 UnknownType 或 MalformedContainer 时原样返回，保证调用方只看到一种错误。
func WrapErrDeserialization(cause error, path string, msg ...string) error {
	if cause != nil && errors.IsAny(cause, ErrUnknownType, ErrMalformedContainer, ErrDeserialization) {
		return cause
	}
	err := ErrDeserialization
	err.path = path
	err.cause = barrier(cause)
	desc := "<nil>"
	if cause != nil {
		desc = cause.Error()
	}
	var ret error
	if path != "" {
		ret = wrapFieldsWithDesc(err, desc, value("path", path))
	} else {
		ret = wrapFieldsWithDesc(err, desc)
	}
	if len(msg) > 0 {
		ret = errors.Wrap(ret, strings.Join(msg, "->"))
	}
	return ret
}

// 编解码相关错误封装。
func WrapErrCodecNotFound(name string, msg ...string) error {
	err := wrapFields(ErrCodecNotFound, value("codec", name))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrCodecFailed(name string, cause error, msg ...string) error {
	err := ErrCodecFailed
	err.cause = cause
	ret := wrapFieldsWithDesc(err, cause.Error(), value("codec", name))
	if len(msg) > 0 {
		ret = errors.Wrap(ret, strings.Join(msg, "->"))
	}
	return ret
}

// Parameter 相关错误封装。
func WrapErrParameterInvalid[T any](expected, actual T, msg ...string) error {
	err := wrapFields(ErrParameterInvalid,
		value("expected", expected),
		value("actual", actual),
	)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrParameterInvalidMsg(fmt string, args ...any) error {
	return errors.Wrapf(ErrParameterInvalid, fmt, args...)
}

func WrapErrOperationNotSupported(operation string, msg ...string) error {
	err := wrapFields(ErrOperationNotSupported, value("operation", operation))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func wrapFields(err snapError, fields ...errorField) error {
	for i := range fields {
		err.msg += fmt.Sprintf("[%s]", fields[i].String())
	}
	err.detail = err.msg
	return err
}

func wrapFieldsWithDesc(err snapError, desc string, fields ...errorField) error {
	for i := range fields {
		err.msg += fmt.Sprintf("[%s]", fields[i].String())
	}
	err.msg += ": " + desc
	err.detail = err.msg
	return err
}

type errorField interface {
	String() string
}

type valueField struct {
	name  string
	value any
}

func value(name string, value any) valueField {
	return valueField{
		name,
		value,
	}
}

func (f valueField) String() string {
	return fmt.Sprintf("%s=%v", f.name, f.value)
}

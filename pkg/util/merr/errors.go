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
	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
)

const (
	CanceledCode int32 = 10000
	TimeoutCode  int32 = 10001
)

type ErrorType int32

const (
	SystemError ErrorType = 0
	InputError  ErrorType = 1
)

var ErrorTypeName = map[ErrorType]string{
	SystemError: "system_error",
	InputError:  "input_error",
}

func (err ErrorType) String() string {
	return ErrorTypeName[err]
}

// Define leaf errors here,
// WARN: take care to add new error,
// check whether you can use the errors below before adding a new one.
// Name: Err + related prefix + error name
var (
	// 序列化相关
	// 对象的顶层状态完全无法枚举时返回，单个字段的失败不会走到这里。
	ErrSerialization = newSnapError("serialization failed", 100, false)

	// 反序列化相关
	ErrUnknownType        = newSnapError("unknown type", 200, false, WithErrorType(InputError))
	ErrMalformedContainer = newSnapError("malformed container", 201, false, WithErrorType(InputError))
	ErrDeserialization    = newSnapError("deserialization failed", 202, false)

	// 编解码相关
	ErrCodecNotFound = newSnapError("codec not found", 300, false, WithErrorType(InputError))
	ErrCodecFailed   = newSnapError("codec failed", 301, false)

	// Parameter related
	ErrParameterInvalid = newSnapError("invalid parameter", 1100, false, WithErrorType(InputError))

	// General
	ErrOperationNotSupported = newSnapError("unsupported operation", 3000, false)

	// Do NOT export this,
	// never allow programmer using this, keep only for converting unknown error to snapError
	errUnexpected = newSnapError("unexpected error", (1<<16)-1, false)
)

type errorOption func(*snapError)

func WithDetail(detail string) errorOption {
	return func(err *snapError) {
		err.detail = detail
	}
}

func WithErrorType(etype ErrorType) errorOption {
	return func(err *snapError) {
		err.errType = etype
	}
}

// snapError 是带错误码的叶子错误。
// typeName/tag/path 用于携带诊断上下文，cause 保留被包装的底层错误。
type snapError struct {
	msg       string
	detail    string
	retriable bool
	errCode   int32
	errType   ErrorType

	typeName string
	tag      string
	path     string
	cause    error
}

func newSnapError(msg string, code int32, retriable bool, options ...errorOption) snapError {
	err := snapError{
		msg:       msg,
		detail:    msg,
		retriable: retriable,
		errCode:   code,
	}

	for _, option := range options {
		option(&err)
	}
	return err
}

func (e snapError) code() int32 {
	return e.errCode
}

func (e snapError) Error() string {
	return e.msg
}

func (e snapError) Detail() string {
	return e.detail
}

// Unwrap 暴露被包装的底层错误，使 errors.Is 可以同时命中错误码与原始原因。
func (e snapError) Unwrap() error {
	return e.cause
}

func (e snapError) Is(err error) bool {
	var target snapError
	if errors.As(err, &target) {
		return e.errCode == target.errCode
	}
	return false
}

type multiErrors struct {
	errs []error
}

func (e multiErrors) Unwrap() error {
	if len(e.errs) <= 1 {
		return nil
	}
	// To make merr work for multi errors,
	// we need cause of multi errors, which defined as the last error
	if len(e.errs) == 2 {
		return e.errs[1]
	}

	return multiErrors{
		errs: e.errs[1:],
	}
}

func (e multiErrors) Error() string {
	final := e.errs[0]
	for i := 1; i < len(e.errs); i++ {
		final = errors.Wrap(e.errs[i], final.Error())
	}
	return final.Error()
}

func (e multiErrors) Is(err error) bool {
	for _, item := range e.errs {
		if errors.Is(item, err) {
			return true
		}
	}
	return false
}

func Combine(errs ...error) error {
	errs = lo.Filter(errs, func(err error, _ int) bool { return err != nil })
	if len(errs) == 0 {
		return nil
	}
	return multiErrors{
		errs,
	}
}

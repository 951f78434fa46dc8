// Package xerrors 包装 fix.EngineError 为 xerrors.Error 的增强型错误，
// 给引擎边界之外的调用方提供统一的错误分类/堆栈（spec §11 ambient stack；
// core 引擎自身不依赖本包，见 fix.EngineError 的文档注释；cmd/fixengine
// 也不引用本包）。
package xerrors

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/wyfcoding/pkg/connectivity/fix"
)

// ErrorType 错误的大类，由引擎 ErrorKind 归并而来（多个 ErrorKind 可映射到
// 同一类），外加环境层本身的分类。
type ErrorType uint

const (
	ErrUnknown ErrorType = iota
	ErrInternal
	ErrSessionEnded
	ErrLogonFailed
	ErrLogoutFailed
	ErrInvalidArg
	ErrUnavailable
)

func (t ErrorType) String() string {
	return [...]string{
		"Unknown", "Internal", "SessionEnded", "LogonFailed", "LogoutFailed", "InvalidArg", "Unavailable",
	}[t]
}

// Error 是引擎边界之外使用的增强型错误：携带分类、可读消息与捕获的调用栈。
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Stack   []string
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func (e *Error) captureStack() {
	const depth = 10
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		e.Stack = append(e.Stack, fmt.Sprintf("%s:%d (%s)", frame.File, frame.Line, frame.Function))
		if !more || len(e.Stack) >= depth {
			break
		}
	}
}

// Wrap 将一个 fix.EngineError（或任意错误）转换为分类后的 Error，供
// 上层统一记录与展示。
func Wrap(err error, msg string) *Error {
	if err == nil {
		return nil
	}

	e := &Error{Message: msg, Cause: err}
	e.Type = classify(err)
	e.captureStack()
	return e
}

func classify(err error) ErrorType {
	var engErr *fix.EngineError
	if errors.As(err, &engErr) {
		switch engErr.Kind {
		case fix.ErrKindSessionEnded:
			return ErrSessionEnded
		case fix.ErrKindLogonFailed:
			return ErrLogonFailed
		case fix.ErrKindLogoutFailed:
			return ErrLogoutFailed
		case fix.ErrKindSettingRequired, fix.ErrKindBadString:
			return ErrInvalidArg
		case fix.ErrKindIoError, fix.ErrKindSendMessageFailed:
			return ErrUnavailable
		default:
			return ErrInternal
		}
	}

	var framingErr *fix.FramingError
	if errors.As(err, &framingErr) {
		return ErrInvalidArg
	}

	return ErrUnknown
}

// Package apperr 定义请求边界使用的错误分类，以及分类到 HTTP 状态码的映射。
package apperr

import (
	"errors"
	"net/http"
)

// Kind 是错误分类。
type Kind int

const (
	Internal Kind = iota
	Validation
	Auth
	Forbidden
	NotFound
	Conflict
	Upstream
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case Auth:
		return "auth"
	case Forbidden:
		return "forbidden"
	case NotFound:
		return "not_found"
	case Conflict:
		return "conflict"
	case Upstream:
		return "upstream"
	default:
		return "internal"
	}
}

// Status 返回分类对应的 HTTP 状态码。
// Conflict 沿用现有客户端约定返回 400。
func (k Kind) Status() int {
	switch k {
	case Validation, Conflict:
		return http.StatusBadRequest
	case Auth:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Error 携带分类、稳定的机器可读 code 与面向用户的消息。
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is 让包装后的同 code 错误与哨兵错误相等。
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code != "" && t.Code == e.Code && t.Kind == e.Kind
}

func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap 以 sentinel 的分类与消息包装底层错误。
func Wrap(sentinel *Error, err error) *Error {
	return &Error{Kind: sentinel.Kind, Code: sentinel.Code, Message: sentinel.Message, Err: err}
}

// Invalid 构造一次性的校验错误。
func Invalid(message string) *Error {
	return &Error{Kind: Validation, Code: "validation", Message: message}
}

// KindOf 取错误分类；非 *Error 一律视为 Internal。
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// MessageOf 取面向用户的消息。
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal server error"
}

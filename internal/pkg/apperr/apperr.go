// Package apperr 定义了跨服务统一的错误码，HTTP 层据此决定响应状态码。
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code 是字符串类型的错误码，直接序列化进 API 响应。
type Code string

const (
	CodeNotFound      Code = "NOT_FOUND"
	CodeAlreadyExists Code = "ALREADY_EXISTS"
	CodeConflict      Code = "CONFLICT"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeInvalidInput  Code = "INVALID_INPUT"
	CodeUnprocessable Code = "UNPROCESSABLE"
	CodeRateLimited   Code = "RATE_LIMITED"
	CodeInternal      Code = "INTERNAL"
)

// Error 携带错误码的业务错误。
// 领域层用 New 声明哨兵错误，调用方用 errors.Is 比较。
type Error struct {
	Code    Code
	Message string
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap 给底层错误附加错误码，errors.Is/As 仍可穿透到 cause。
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// HTTPStatus 把错误码映射为 HTTP 状态码。
func (e *Error) HTTPStatus() int {
	return StatusOf(e.Code)
}

func StatusOf(code Code) int {
	switch code {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeAlreadyExists, CodeConflict:
		return http.StatusConflict
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeInvalidInput:
		return http.StatusBadRequest
	case CodeUnprocessable:
		return http.StatusUnprocessableEntity
	case CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// CodeOf 取出错误链上第一个 *Error 的错误码，没有则视为内部错误。
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// MessageOf 返回面向客户端的错误描述，内部错误不暴露细节。
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal server error"
}

func InvalidInput(format string, args ...any) *Error {
	return New(CodeInvalidInput, fmt.Sprintf(format, args...))
}

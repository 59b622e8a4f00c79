package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind 标识错误的类别，边界层据此选择对应的状态码。
type Kind string

const (
	KindValidation      Kind = "validation"      // 输入不合法，在任何 I/O 之前被拒绝
	KindNotFound        Kind = "not_found"       // 引用的记录不存在
	KindConflict        Kind = "conflict"        // 违反唯一约束
	KindStorage         Kind = "storage"         // 数据库连接或事务失败
	KindUnauthenticated Kind = "unauthenticated" // 凭证缺失或无效
	KindUpstream        Kind = "upstream"        // 外部 API 调用失败
)

// Error 是带有类别和操作名的结构化错误。
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

// Error 实现 error 接口。
func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if e.Op == "" {
		return fmt.Sprintf("[%s] %s", e.Kind, msg)
	}
	return fmt.Sprintf("%s: [%s] %s", e.Op, e.Kind, msg)
}

// Unwrap 返回底层错误。
func (e *Error) Unwrap() error {
	return e.Err
}

// Is 让 errors.Is 可以按类别匹配，例如 errors.Is(err, apperr.ErrNotFound)。
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Msg == "" && t.Err == nil && t.Kind == e.Kind
}

// 用于 errors.Is 匹配的哨兵错误。
var (
	ErrValidation      = &Error{Kind: KindValidation}
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrConflict        = &Error{Kind: KindConflict}
	ErrStorage         = &Error{Kind: KindStorage}
	ErrUnauthenticated = &Error{Kind: KindUnauthenticated}
	ErrUpstream        = &Error{Kind: KindUpstream}
)

func Validation(op, msg string) error {
	return &Error{Kind: KindValidation, Op: op, Msg: msg}
}

func NotFound(op, msg string) error {
	return &Error{Kind: KindNotFound, Op: op, Msg: msg}
}

func Conflict(op string, err error) error {
	return &Error{Kind: KindConflict, Op: op, Msg: "natural key already exists", Err: err}
}

func Storage(op string, err error) error {
	return &Error{Kind: KindStorage, Op: op, Err: err}
}

func Unauthenticated(op, msg string, err error) error {
	return &Error{Kind: KindUnauthenticated, Op: op, Msg: msg, Err: err}
}

func Upstream(op string, err error) error {
	return &Error{Kind: KindUpstream, Op: op, Err: err}
}

// KindOf 返回错误链中第一个 *Error 的类别；没有则返回空字符串。
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind 判断错误链中是否包含指定类别的错误。
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// HTTPStatus 把错误类别映射为 HTTP 状态码。
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

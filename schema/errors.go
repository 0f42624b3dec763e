package schema

/*
 * errors.go - 组合与序列化运行时的错误分类
 *
 * 核心组件：
 *   - ValidationError: 构造字段不合法（如密钥标识符不是大写或包含空白）
 *   - ImportError: 加载时命名空间/类型无法解析
 *   - AbortError: 观察到取消信号（调用前或重试边界）
 *
 * 每个错误类型都通过 Is 关联到对应的哨兵错误，调用方使用 errors.Is / errors.As 判断。
 */

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation 所有 ValidationError 的哨兵错误。
	ErrValidation = errors.New("validation error")
	// ErrImport 所有 ImportError 的哨兵错误。
	ErrImport = errors.New("import error")
	// ErrAbort 所有 AbortError 的哨兵错误。
	ErrAbort = errors.New("aborted")
)

// ValidationError 构造字段校验失败。
type ValidationError struct {
	Field  string
	Reason string
}

// NewValidationError 创建字段校验错误。
func NewValidationError(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation error: %s", e.Reason)
	}
	return fmt.Sprintf("validation error: field %q: %s", e.Field, e.Reason)
}

// Is 使 errors.Is(err, ErrValidation) 成立。
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// ImportError 加载时无法解析构造器。
type ImportError struct {
	ID     []string
	Reason string
}

// NewImportError 创建构造器解析失败错误。
func NewImportError(id []string, reason string) error {
	return &ImportError{ID: append([]string(nil), id...), Reason: reason}
}

func (e *ImportError) Error() string {
	msg := fmt.Sprintf("import error: cannot resolve [%s]", strings.Join(e.ID, ", "))
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// Is 使 errors.Is(err, ErrImport) 成立。
func (e *ImportError) Is(target error) bool {
	return target == ErrImport
}

// AbortError 表示观察到了取消信号。
// Cause 通常是 context.Canceled 或 context.DeadlineExceeded。
type AbortError struct {
	Cause error
}

// NewAbortError 用给定原因创建取消错误，cause 已是 AbortError 时原样返回。
func NewAbortError(cause error) error {
	var ae *AbortError
	if errors.As(cause, &ae) {
		return cause
	}
	return &AbortError{Cause: cause}
}

func (e *AbortError) Error() string {
	if e.Cause == nil {
		return "aborted"
	}
	return "aborted: " + e.Cause.Error()
}

// Unwrap 返回取消原因。
func (e *AbortError) Unwrap() error {
	return e.Cause
}

// Is 使 errors.Is(err, ErrAbort) 成立。
func (e *AbortError) Is(target error) bool {
	return target == ErrAbort
}

// IsAbort 判断错误是否为取消错误。
func IsAbort(err error) bool {
	return errors.Is(err, ErrAbort)
}

// CheckAbort 检查点：ctx 已取消时返回 AbortError，否则返回 nil。
func CheckAbort(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return NewAbortError(context.Cause(ctx))
	}
	return nil
}

package diag

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"time"

	"pagepatch/pkg/contract"
)

// Code 是最小错误分类代码。
// 仅用于日志与终端提示，与退出码解耦。
type Code string

const (
	CodeUnknown    Code = "unknown"
	CodeMissing    Code = "missing"
	CodePermission Code = "permission"
	CodeEncoding   Code = "encoding"
	CodePattern    Code = "pattern"
	CodeInvariant  Code = "invariant"
	CodeCancel     Code = "cancel"
	CodeIO         Code = "io"
)

// Classify 将错误归为最小分类。
// 仅依赖哨兵错误与标准库错误类型，不做字符串匹配。
func Classify(err error) Code {
	if err == nil {
		return CodeUnknown
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return CodeCancel
	}
	if errors.Is(err, contract.ErrMissingDocument) || errors.Is(err, fs.ErrNotExist) {
		return CodeMissing
	}
	if errors.Is(err, contract.ErrUnreadable) || errors.Is(err, fs.ErrPermission) {
		return CodePermission
	}
	if errors.Is(err, contract.ErrEncoding) {
		return CodeEncoding
	}
	if errors.Is(err, contract.ErrPatternInvalid) {
		return CodePattern
	}
	if errors.Is(err, contract.ErrInvariantViolation) || errors.Is(err, contract.ErrPathInvalid) {
		return CodeInvariant
	}
	var perr *os.PathError
	if errors.As(err, &perr) {
		return CodeIO
	}
	return CodeUnknown
}

// NowUTC 返回 RFC3339 UTC 时间字符串（用于结构化日志字段 ts）。
func NowUTC() string { return time.Now().UTC().Format(time.RFC3339) }

package contract

import "errors"

// 最小错误分类（均为单任务局部错误，由调用方决定跳过或中止）。
var (
	// ErrMissingDocument: 目标文档不存在。
	ErrMissingDocument = errors.New("document missing")
	// ErrUnreadable: 文档存在但无权限读取/写入。
	ErrUnreadable = errors.New("document unreadable")
	// ErrEncoding: 文档不是合法 UTF-8 文本。
	ErrEncoding = errors.New("document encoding invalid")
	// ErrPatternInvalid: 构造匹配模式的输入非法（例如空组件名）。
	ErrPatternInvalid = errors.New("pattern invalid")
	// ErrPathInvalid: 文档名映射为无效/越界路径（例如绝对路径或 '..' 逃逸）。
	ErrPathInvalid = errors.New("path invalid")
	// ErrInvariantViolation: 领域不变量违例（通用哨兵）。
	ErrInvariantViolation = errors.New("invariant violation")
)

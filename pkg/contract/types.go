package contract

import "strings"

// DocID: 逻辑文档ID（相对基准目录的页面名，需规范化，跨平台一致）。
type DocID string

// Document: 一次处理中的完整页面文本（按行保存）。
// 约束：
// - 值语义，变换不得原地修改；每次变换返回新 Document；
// - 行分隔符统一为 LF，Text() 以 "\n" 重新拼接。
type Document struct {
	lines []string
}

// NewDocument 以原样文本构造 Document（按 "\n" 切分，不做 CRLF 归一）。
func NewDocument(text string) Document {
	return Document{lines: strings.Split(text, "\n")}
}

// DocumentFromLines 复制 lines 构造 Document。
func DocumentFromLines(lines []string) Document {
	out := make([]string, len(lines))
	copy(out, lines)
	return Document{lines: out}
}

// Lines 返回行切片副本。
func (d Document) Lines() []string {
	out := make([]string, len(d.lines))
	copy(out, d.lines)
	return out
}

// Len 返回行数。
func (d Document) Len() int { return len(d.lines) }

// Text 返回完整文本。
func (d Document) Text() string { return strings.Join(d.lines, "\n") }

// Contains 判断全文是否包含子串。
func (d Document) Contains(sub string) bool { return strings.Contains(d.Text(), sub) }

// ImportSpec: 需要注入的服务绑定（标识符 + 模块路径），调用方按文档提供，只读。
type ImportSpec struct {
	ServiceIdentifier string
	ServiceImportPath string
}

// ComponentName: 接收状态片段的组件名。
type ComponentName string

// PageTask: 任务表中的一行。
// MethodName 当前不参与默认模板（保留给服务绑定模板使用）。
// ImportPath 可选，覆盖全局服务导入路径模板。
type PageTask struct {
	Document          DocID  `json:"document" yaml:"document"`
	ServiceIdentifier string `json:"service" yaml:"service"`
	MethodName        string `json:"method" yaml:"method"`
	ImportPath        string `json:"import_path,omitempty" yaml:"import_path,omitempty"`
}

// Outcome: 单次变换的结果类别。
type Outcome int

const (
	// Changed: 产出了新文档。
	Changed Outcome = iota
	// Unchanged: 未匹配到期望结构，原样返回（非错误）。
	Unchanged
	// AlreadyUpdated: 幂等守卫命中，文档此前已处理。
	AlreadyUpdated
)

func (o Outcome) String() string {
	switch o {
	case Changed:
		return "changed"
	case Unchanged:
		return "unchanged"
	case AlreadyUpdated:
		return "already_updated"
	default:
		return "unknown"
	}
}

// Reason: Unchanged 的细分原因。
type Reason string

const (
	ReasonNone              Reason = ""
	ReasonNoImportFound     Reason = "no_import"
	ReasonComponentNotFound Reason = "component_not_found"
)

package contract

import (
	"path"
	"strings"
)

// NormalizeDocID 规范化路径，统一为跨平台稳定的 DocID。
// 规则：
// - 使用正斜杠分隔符
// - 清理多余分隔符与路径片段（.、..）
// - 保留相对/绝对语义，不做隐式绝对化
func NormalizeDocID(p string) DocID {
	s := strings.ReplaceAll(p, "\\", "/")
	return DocID(path.Clean(s))
}

// ComponentOf 由文档名推导组件名：取基名并去掉扩展名（Profile.jsx -> Profile）。
func ComponentOf(id DocID) ComponentName {
	base := path.Base(string(NormalizeDocID(string(id))))
	if ext := path.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	if base == "." || base == "/" {
		return ""
	}
	return ComponentName(base)
}

// RelPath 校验并返回 DocID 对应的相对路径（正斜杠）。
// 禁止空名、绝对路径、父级逃逸与 Windows 卷名。
func RelPath(id DocID) (string, error) {
	rel := string(NormalizeDocID(string(id)))
	switch {
	case rel == "." || rel == "" || rel == "/":
		return "", ErrPathInvalid
	case strings.HasPrefix(rel, "/"):
		return "", ErrPathInvalid
	case rel == ".." || strings.HasPrefix(rel, "../"):
		return "", ErrPathInvalid
	case len(rel) >= 2 && rel[1] == ':':
		return "", ErrPathInvalid
	}
	return rel, nil
}

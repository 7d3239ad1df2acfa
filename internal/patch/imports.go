package patch

import (
	"fmt"
	"strings"

	"pagepatch/pkg/contract"
)

// Result 为单次变换的产出。Outcome 为 Unchanged/AlreadyUpdated 时 Doc 即输入文档。
type Result struct {
	Doc     contract.Document
	Outcome contract.Outcome
	Reason  contract.Reason
}

// RewriteImports 在首个 import 行之前插入固定五行导入，并移除被取代的旧框架导入。
// 行为：
//   - 无 import 行：原样返回（Unchanged/no_import），非错误；
//   - 全文同时包含 useState 与服务标识：AlreadyUpdated；
//   - 仅移除 import 行（trim 后以 import 开头），因此首个 import 之前的行在过滤后位置不变，
//     插入下标无需在过滤后重算。
func RewriteImports(doc contract.Document, spec contract.ImportSpec) (Result, error) {
	if err := validateSpec(spec); err != nil {
		return Result{Doc: doc, Outcome: contract.Unchanged}, err
	}
	lines := doc.Lines()
	first := firstImport(lines)
	if first < 0 {
		return Result{Doc: doc, Outcome: contract.Unchanged, Reason: contract.ReasonNoImportFound}, nil
	}
	if doc.Contains(StateHook) && doc.Contains(spec.ServiceIdentifier) {
		return Result{Doc: doc, Outcome: contract.AlreadyUpdated}, nil
	}

	kept := make([]string, 0, len(lines))
	for _, l := range lines {
		if superseded(l) {
			continue
		}
		kept = append(kept, l)
	}

	add := ImportLines(spec.ServiceIdentifier, spec.ServiceImportPath)
	out := make([]string, 0, len(kept)+len(add))
	out = append(out, kept[:first]...)
	out = append(out, add...)
	out = append(out, kept[first:]...)
	return Result{Doc: contract.DocumentFromLines(out), Outcome: contract.Changed}, nil
}

func firstImport(lines []string) int {
	for i, l := range lines {
		if isImport(l) {
			return i
		}
	}
	return -1
}

func isImport(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), "import")
}

// superseded: 旧的框架导入（裸 React 默认导入，或解构列表不含 useState 的 React 导入）。
// 已含 useState 的行保留。
func superseded(line string) bool {
	if !isImport(line) || strings.Contains(line, StateHook) {
		return false
	}
	return strings.Contains(line, "import React from 'react'") || strings.Contains(line, "import React, { ")
}

func validateSpec(spec contract.ImportSpec) error {
	if strings.TrimSpace(spec.ServiceIdentifier) == "" {
		return fmt.Errorf("%w: empty service identifier", contract.ErrPatternInvalid)
	}
	if strings.ContainsAny(spec.ServiceIdentifier, " \t\r\n{},'\"") {
		return fmt.Errorf("%w: service identifier %q", contract.ErrPatternInvalid, spec.ServiceIdentifier)
	}
	if strings.TrimSpace(spec.ServiceImportPath) == "" || strings.ContainsAny(spec.ServiceImportPath, "'\r\n") {
		return fmt.Errorf("%w: service import path %q", contract.ErrPatternInvalid, spec.ServiceImportPath)
	}
	return nil
}

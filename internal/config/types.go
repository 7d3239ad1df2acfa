package config

import (
	"encoding/json"

	"pagepatch/pkg/contract"
)

// Config: 运行期只读配置（一次解析，运行期不变）。
// JSON/YAML 使用 snake_case；未知字段在解析期失败。
type Config struct {
	// BaseDir: 页面根目录（fs）或根 URL（afs）；未在组件 Options 中给出时注入。
	BaseDir string `json:"base_dir"`
	// Tasks: 任务表（按顺序处理）。
	Tasks []contract.PageTask `json:"tasks"`
	// ServiceImportPath: 服务导入路径模板，{service} 替换为服务标识。
	ServiceImportPath string `json:"service_import_path"`

	// 布尔开关使用指针，以区分“未设置”和“显式 false”。
	DryRun      *bool `json:"dry_run,omitempty"`
	InjectState *bool `json:"inject_state,omitempty"`
	BindService *bool `json:"bind_service,omitempty"`

	Concurrency int     `json:"concurrency"`
	Logging     Logging `json:"logging"`

	// 组件名选择（空则使用默认名）。
	Components Components `json:"components"`
	// 各组件 Options 子树，原样 JSON 传入工厂。
	Options Options `json:"options"`
}

// Logging: 日志等级与目录；目录为空时输出到 stderr。
type Logging struct {
	Level string `json:"level"`
	Dir   string `json:"dir"`
}

// Components: 组件名选择（注册表中的实现名）。
type Components struct {
	Reader string `json:"reader"`
	// Writer 为空时与 Reader 相同。
	Writer string `json:"writer,omitempty"`
}

// Options: 各组件的原样 JSON Options。
type Options struct {
	Reader json.RawMessage `json:"reader,omitempty"`
	Writer json.RawMessage `json:"writer,omitempty"`
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

// BoolPtr 返回 b 的指针（CLI/ENV 覆盖使用）。
func BoolPtr(b bool) *bool { return &b }

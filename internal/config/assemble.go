package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"pagepatch/internal/pipeline"
	"pagepatch/pkg/contract"
	"pagepatch/pkg/registry"
)

// baseKeys: 各组件实现接收根位置的 Options 键。
var baseKeys = map[string]string{
	"fs":  "base_dir",
	"afs": "base_url",
}

// 导入行以单引号包裹路径，服务标识出现在花括号内；与 patch 的运行期校验一致。
const (
	identBadChars = " \t\r\n{},'\""
	pathBadChars  = "'\r\n"
)

// Validate 对最小必要边界做静态校验。
func Validate(cfg Config) error {
	if len(cfg.Tasks) == 0 {
		return errors.New("config: tasks empty")
	}
	seen := make(map[contract.DocID]struct{}, len(cfg.Tasks))
	for i, t := range cfg.Tasks {
		id := contract.NormalizeDocID(string(t.Document))
		if _, err := contract.RelPath(id); err != nil {
			return fmt.Errorf("config: tasks[%d] document %q: %w", i, t.Document, err)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("config: tasks[%d] duplicate document %q", i, t.Document)
		}
		seen[id] = struct{}{}
		if strings.TrimSpace(t.ServiceIdentifier) == "" {
			return fmt.Errorf("config: tasks[%d] service empty", i)
		}
		if strings.ContainsAny(t.ServiceIdentifier, identBadChars) {
			return fmt.Errorf("config: tasks[%d] service %q contains whitespace, brace, comma or quote", i, t.ServiceIdentifier)
		}
		if strings.ContainsAny(t.ImportPath, pathBadChars) {
			return fmt.Errorf("config: tasks[%d] import_path %q contains quote or line break", i, t.ImportPath)
		}
	}
	if cfg.Concurrency < 1 {
		return errors.New("config: concurrency must be >= 1")
	}
	if boolOr(cfg.BindService, false) && !boolOr(cfg.InjectState, false) {
		return errors.New("config: bind_service requires inject_state")
	}
	if s := cfg.ServiceImportPath; strings.ContainsAny(s, pathBadChars) {
		return fmt.Errorf("config: service_import_path %q contains quote or line break", s)
	}
	rn, wn := ComponentNames(cfg)
	if registry.Reader[rn] == nil {
		return fmt.Errorf("config: reader %q not registered", rn)
	}
	if registry.Writer[wn] == nil {
		return fmt.Errorf("config: writer %q not registered", wn)
	}
	if strings.TrimSpace(cfg.BaseDir) == "" && !hasKey(cfg.Options.Reader, baseKeys[rn]) {
		return errors.New("config: base_dir not set")
	}
	// fs 组件按本地路径解释 base_dir，URL 会落到名为 "scheme:" 的相对目录
	if strings.Contains(cfg.BaseDir, "://") {
		if rn == "fs" {
			return fmt.Errorf("config: base_dir %q is a URL; reader \"fs\" needs a local path (use \"afs\")", cfg.BaseDir)
		}
		if wn == "fs" {
			return fmt.Errorf("config: base_dir %q is a URL; writer \"fs\" needs a local path (use \"afs\")", cfg.BaseDir)
		}
	}
	return nil
}

// ComponentNames 返回生效的 reader/writer 实现名；writer 未指定时跟随 reader。
func ComponentNames(cfg Config) (reader, writer string) {
	reader = effName(cfg.Components.Reader, Defaults().Components.Reader)
	writer = effName(cfg.Components.Writer, reader)
	return reader, writer
}

// Assemble 构造 Components 与 Settings。
// 严格 Options 解析在 registry（工厂）层进行；此处只注入 base_dir 并传 raw JSON。
func Assemble(cfg Config) (pipeline.Components, pipeline.Settings, error) {
	if err := Validate(cfg); err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}
	rn, wn := ComponentNames(cfg)

	rraw, err := withBase(cfg.Options.Reader, baseKeys[rn], cfg.BaseDir)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, fmt.Errorf("config: options.reader: %w", err)
	}
	r, err := registry.Reader[rn](rraw)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, fmt.Errorf("config: reader %q: %w", rn, err)
	}
	wraw, err := withBase(cfg.Options.Writer, baseKeys[wn], cfg.BaseDir)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, fmt.Errorf("config: options.writer: %w", err)
	}
	w, err := registry.Writer[wn](wraw)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, fmt.Errorf("config: writer %q: %w", wn, err)
	}

	comp := pipeline.Components{Reader: r, Writer: w}
	set := pipeline.Settings{
		Tasks:       cloneTasks(cfg.Tasks),
		ImportPath:  cfg.ServiceImportPath,
		DryRun:      boolOr(cfg.DryRun, true),
		InjectState: boolOr(cfg.InjectState, false),
		BindService: boolOr(cfg.BindService, false),
		Concurrency: cfg.Concurrency,
	}
	return comp, set, nil
}

// withBase 在 raw 未包含 key 时写入 base；base 为空或 key 已存在时原样返回。
func withBase(raw json.RawMessage, key, base string) (json.RawMessage, error) {
	if key == "" || strings.TrimSpace(base) == "" || hasKey(raw, key) {
		return raw, nil
	}
	m := map[string]json.RawMessage{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
	}
	b, err := json.Marshal(strings.TrimSpace(base))
	if err != nil {
		return nil, err
	}
	m[key] = b
	return json.Marshal(m)
}

func hasKey(raw json.RawMessage, key string) bool {
	if len(raw) == 0 || key == "" {
		return false
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return false
	}
	_, ok := m[key]
	return ok
}

func effName(got, def string) string {
	if got == "" {
		return def
	}
	return got
}

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"pagepatch/pkg/contract"
)

// EnvPrefix 为环境变量覆盖前缀。
const EnvPrefix = "PAGEPATCH_"

// Defaults 返回带有安全默认值的 Config 雏形。
// 注意：默认 dry-run，写回必须显式关闭。
func Defaults() Config {
	return Config{
		ServiceImportPath: "../services/{service}",
		DryRun:            BoolPtr(true),
		InjectState:       BoolPtr(false),
		BindService:       BoolPtr(false),
		Concurrency:       1,
		Logging:           Logging{Level: "info"},
		Components:        Components{Reader: "fs"},
	}
}

// LoadFile 按扩展名解析配置文件：.yaml/.yml 走 YAML，其余按 JSON。
func LoadFile(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return LoadYAML(b)
	default:
		return LoadJSON("", b)
	}
}

// LoadJSON 从文件路径或原始 JSON 解析 Config（严格拒绝未知字段）。
func LoadJSON(path string, raw []byte) (Config, error) {
	var cfg Config
	var r io.Reader
	switch {
	case len(raw) > 0:
		r = bytes.NewReader(raw)
	case path != "":
		f, err := os.Open(path)
		if err != nil {
			return cfg, err
		}
		defer f.Close()
		r = f
	default:
		return cfg, errors.New("no config source provided")
	}
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadYAML 解析 YAML 配置：先解码为通用树，再经严格 JSON 解码，
// 保证两种格式的字段集合与未知字段规则一致（options 子树原样保留为 JSON）。
func LoadYAML(raw []byte) (Config, error) {
	var tree any
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return Config{}, fmt.Errorf("yaml: %w", err)
	}
	if tree == nil {
		return Config{}, errors.New("yaml: empty document")
	}
	b, err := json.Marshal(tree)
	if err != nil {
		// 非字符串键等无法映射到 JSON 的结构
		return Config{}, fmt.Errorf("yaml: %w", err)
	}
	return LoadJSON("", b)
}

// Merge 按优先级合并（后者覆盖前者）。
// 仅标量/字符串/原样 JSON 为“替换”；不做深度合并。任务表整体替换。
func Merge(base, over Config) Config {
	out := base
	if strings.TrimSpace(over.BaseDir) != "" {
		out.BaseDir = strings.TrimSpace(over.BaseDir)
	}
	if len(over.Tasks) > 0 {
		out.Tasks = cloneTasks(over.Tasks)
	}
	if strings.TrimSpace(over.ServiceImportPath) != "" {
		out.ServiceImportPath = strings.TrimSpace(over.ServiceImportPath)
	}
	if over.DryRun != nil {
		out.DryRun = BoolPtr(*over.DryRun)
	}
	if over.InjectState != nil {
		out.InjectState = BoolPtr(*over.InjectState)
	}
	if over.BindService != nil {
		out.BindService = BoolPtr(*over.BindService)
	}
	if over.Concurrency != 0 {
		out.Concurrency = over.Concurrency
	}
	if strings.TrimSpace(over.Logging.Level) != "" {
		out.Logging.Level = strings.TrimSpace(over.Logging.Level)
	}
	if strings.TrimSpace(over.Logging.Dir) != "" {
		out.Logging.Dir = strings.TrimSpace(over.Logging.Dir)
	}

	// 组件名（空不覆盖）
	if over.Components.Reader != "" {
		out.Components.Reader = over.Components.Reader
	}
	if over.Components.Writer != "" {
		out.Components.Writer = over.Components.Writer
	}

	// Options（完整替换对应键）
	if len(over.Options.Reader) > 0 {
		out.Options.Reader = cloneRaw(over.Options.Reader)
	}
	if len(over.Options.Writer) > 0 {
		out.Options.Writer = cloneRaw(over.Options.Writer)
	}
	return out
}

// EnvOverlay 从环境变量构建一个 Config 覆盖（仅解析有限键集合）。
// 规则：前缀 PAGEPATCH_；集合之外的键与空值忽略；数值/布尔解析失败时返回错误。
// 支持：BASE_DIR, SERVICE_IMPORT_PATH, DRY_RUN, INJECT_STATE, BIND_SERVICE, CONCURRENCY,
// LOG_LEVEL, LOG_DIR, COMPONENTS_{READER,WRITER}, OPTIONS_{READER,WRITER}_JSON
func EnvOverlay(environ []string) (Config, error) {
	var over Config
	for _, kv := range environ {
		if !strings.HasPrefix(kv, EnvPrefix) {
			continue
		}
		eq := strings.IndexByte(kv, '=')
		if eq <= len(EnvPrefix) {
			continue
		}
		key := strings.TrimPrefix(kv[:eq], EnvPrefix)
		val := kv[eq+1:]
		// 空值视为未设置（.env 模板中的占位键）
		if strings.TrimSpace(val) == "" {
			continue
		}
		switch key {
		case "BASE_DIR":
			over.BaseDir = strings.TrimSpace(val)
		case "SERVICE_IMPORT_PATH":
			over.ServiceImportPath = strings.TrimSpace(val)
		case "DRY_RUN", "INJECT_STATE", "BIND_SERVICE":
			b, err := strconv.ParseBool(strings.TrimSpace(val))
			if err != nil {
				return Config{}, fmt.Errorf("env %s%s: %w", EnvPrefix, key, err)
			}
			switch key {
			case "DRY_RUN":
				over.DryRun = BoolPtr(b)
			case "INJECT_STATE":
				over.InjectState = BoolPtr(b)
			default:
				over.BindService = BoolPtr(b)
			}
		case "CONCURRENCY":
			v, err := strconv.Atoi(strings.TrimSpace(val))
			if err != nil {
				return Config{}, fmt.Errorf("env %s%s: %w", EnvPrefix, key, err)
			}
			over.Concurrency = v
		case "LOG_LEVEL":
			over.Logging.Level = strings.TrimSpace(val)
		case "LOG_DIR":
			over.Logging.Dir = strings.TrimSpace(val)
		case "COMPONENTS_READER":
			over.Components.Reader = strings.TrimSpace(val)
		case "COMPONENTS_WRITER":
			over.Components.Writer = strings.TrimSpace(val)
		case "OPTIONS_READER_JSON":
			over.Options.Reader = json.RawMessage(val)
		case "OPTIONS_WRITER_JSON":
			over.Options.Writer = json.RawMessage(val)
		}
	}
	return over, nil
}

func cloneTasks(in []contract.PageTask) []contract.PageTask {
	if len(in) == 0 {
		return nil
	}
	out := make([]contract.PageTask, len(in))
	copy(out, in)
	return out
}

func cloneRaw(in json.RawMessage) json.RawMessage {
	if len(in) == 0 {
		return nil
	}
	out := make([]byte, len(in))
	copy(out, in)
	return out
}

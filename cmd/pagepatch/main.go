package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	flags "github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"

	cfgpkg "pagepatch/internal/config"
	"pagepatch/internal/diag"
	"pagepatch/internal/pipeline"
	"pagepatch/pkg/contract"
)

var pipelineRun = pipeline.Run

// Options 定义 CLI 旗标。位置参数为页面名，用于从任务表中筛选子集。
type Options struct {
	Config      string `short:"c" long:"config" description:"配置文件路径（JSON 或 YAML）；缺省读取 ./pagepatch.json|.yaml|.yml（若存在）"`
	BaseDir     string `short:"d" long:"base-dir" description:"页面根目录或 AFS URL（覆盖配置）"`
	Write       bool   `short:"w" long:"write" description:"写回文件（默认仅 dry-run）"`
	InjectState bool   `long:"inject-state" description:"在组件函数体起始处注入状态片段"`
	BindService bool   `long:"bind-service" description:"状态片段调用 <service>.<method>() 代替占位（需 --inject-state）"`
	Concurrency int    `long:"concurrency" description:"并发度（覆盖配置）"`
	LogLevel    string `long:"log-level" description:"日志级别 debug|info|warn|error（覆盖配置）"`
	LogDir      string `long:"log-dir" description:"日志目录；为空时写 stderr（覆盖配置）"`
	InitConfig  string `long:"init-config" optional:"yes" optional-value:"." description:"在指定目录生成默认配置 pagepatch.json 和 .env 模板（已存在则跳过）；不带值时为当前目录；指定目录需写成 --init-config=DIR"`
	NoStatus    bool   `long:"no-status" description:"关闭终端状态提示（stderr）"`
}

func main() {
	os.Exit(run(os.Args[1:]))
}

// run 返回退出码：0 运行完成（含 missing/skipped/failed 任务）；1 运行期错误；
// 2 参数错误；3 配置/装配错误；130 被中断。
func run(args []string) int {
	start := time.Now()
	corrID := uuid.NewString()
	// 在任何 ENV 读取前，尝试加载工作目录下的 .env（不覆盖已有 ENV）。
	_ = loadDotEnv(".env")
	logLevel := "info"
	// 先占位默认，稍后在解析/合并配置后重建 logger 以使用最终 level/dir
	logger := diag.NewLogger(corrID, logLevel, "")

	var opts Options
	parser := flags.NewParser(&opts, flags.Default)
	parser.Usage = "[OPTIONS] [PAGE...]"
	pages, err := parser.ParseArgs(args)
	if err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			return 0
		}
		return 2
	}

	// --init-config: 生成模板并退出
	if dir := strings.TrimSpace(opts.InitConfig); dir != "" {
		if err := initConfig(dir); err != nil {
			fprintf(os.Stderr, "生成默认配置失败: %v\n", err)
			logger.Error("config", string(diag.Classify(err)), "init config", &start)
			return 3
		}
		return 0
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		fprintf(os.Stderr, "配置解析失败: %v\n", err)
		logger.Error("config", string(diag.Classify(err)), "first error", &start)
		return 3
	}
	if len(pages) > 0 {
		tasks, err := selectTasks(cfg.Tasks, pages)
		if err != nil {
			fprintf(os.Stderr, "页面筛选失败: %v\n", err)
			logger.Error("config", string(diag.Classify(err)), "first error", &start)
			return 3
		}
		cfg.Tasks = tasks
	}

	if err := cfgpkg.Validate(cfg); err != nil {
		fprintf(os.Stderr, "配置校验失败: %v\n", err)
		// 提示打印有效配置，便于诊断
		_ = dumpConfig(cfg)
		logger.Error("config", string(diag.Classify(err)), "first error", &start)
		return 3
	}

	// 使用最终配置中的日志级别与目录重建 logger
	if strings.TrimSpace(cfg.Logging.Level) != "" {
		logLevel = strings.TrimSpace(cfg.Logging.Level)
	}
	logger = diag.NewLogger(corrID, logLevel, cfg.Logging.Dir)
	defer func() { _ = logger.Close() }()

	comp, set, err := cfgpkg.Assemble(cfg)
	if err != nil {
		fprintf(os.Stderr, "装配失败: %v\n", err)
		logger.Error("config", string(diag.Classify(err)), "first error", &start)
		return 3
	}
	// 终端信息提示（非日志）：默认开启
	comp.Terminal = diag.NewTerminal(os.Stderr, !opts.NoStatus)

	rn, wn := cfgpkg.ComponentNames(cfg)
	logger.DebugStart("config", "effective", "", map[string]string{
		"base_dir":     cfg.BaseDir,
		"tasks":        fmt.Sprint(len(set.Tasks)),
		"dry_run":      fmt.Sprint(set.DryRun),
		"inject_state": fmt.Sprint(set.InjectState),
		"bind_service": fmt.Sprint(set.BindService),
		"concurrency":  fmt.Sprint(set.Concurrency),
		"reader":       rn,
		"writer":       wn,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if _, err := pipelineRun(ctx, comp, set, logger); err != nil {
		code := diag.Classify(err)
		logger.Error("pipeline", string(code), "first error", &start)
		if code == diag.CodeCancel {
			return 130
		}
		fprintf(os.Stderr, "运行失败: %v\n", err)
		return 1
	}
	return 0
}

// loadConfig 按优先级合并：Defaults < 配置文件/PAGEPATCH_CONFIG_JSON < ENV < CLI。
func loadConfig(opts Options) (cfgpkg.Config, error) {
	path := opts.Config
	if path == "" {
		path = os.Getenv(cfgpkg.EnvPrefix + "CONFIG_FILE")
	}
	// 默认读取工作目录下 pagepatch.*（若存在）
	if path == "" {
		for _, name := range []string{"pagepatch.json", "pagepatch.yaml", "pagepatch.yml"} {
			if _, err := os.Stat(name); err == nil {
				path = name
				break
			}
		}
	}

	cfg := cfgpkg.Defaults()
	switch {
	case path != "":
		base, err := cfgpkg.LoadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("%s: %w", path, err)
		}
		cfg = cfgpkg.Merge(cfg, base)
	case os.Getenv(cfgpkg.EnvPrefix+"CONFIG_JSON") != "":
		base, err := cfgpkg.LoadJSON("", []byte(os.Getenv(cfgpkg.EnvPrefix+"CONFIG_JSON")))
		if err != nil {
			return cfg, err
		}
		cfg = cfgpkg.Merge(cfg, base)
	}

	overEnv, err := cfgpkg.EnvOverlay(os.Environ())
	if err != nil {
		return cfg, err
	}
	cfg = cfgpkg.Merge(cfg, overEnv)

	var overCLI cfgpkg.Config
	overCLI.BaseDir = opts.BaseDir
	overCLI.Concurrency = opts.Concurrency
	overCLI.Logging = cfgpkg.Logging{Level: opts.LogLevel, Dir: opts.LogDir}
	// 开关只做“打开”覆盖；未给出时沿用配置
	if opts.Write {
		overCLI.DryRun = cfgpkg.BoolPtr(false)
	}
	if opts.InjectState {
		overCLI.InjectState = cfgpkg.BoolPtr(true)
	}
	if opts.BindService {
		overCLI.BindService = cfgpkg.BoolPtr(true)
	}
	return cfgpkg.Merge(cfg, overCLI), nil
}

// selectTasks 按位置参数筛选任务，保持任务表顺序；未知页面为错误。
func selectTasks(all []contract.PageTask, pages []string) ([]contract.PageTask, error) {
	want := make(map[contract.DocID]bool, len(pages))
	for _, p := range pages {
		want[contract.NormalizeDocID(p)] = false
	}
	var out []contract.PageTask
	for _, t := range all {
		id := contract.NormalizeDocID(string(t.Document))
		if _, ok := want[id]; ok {
			want[id] = true
			out = append(out, t)
		}
	}
	for _, p := range pages {
		if !want[contract.NormalizeDocID(p)] {
			return nil, fmt.Errorf("page %q not in task table", p)
		}
	}
	return out, nil
}

func fprintf(w *os.File, format string, a ...any) { _, _ = fmt.Fprintf(w, format, a...) }

func dumpConfig(c cfgpkg.Config) error {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	_, _ = os.Stderr.Write(append([]byte("有效配置:\n"), b...))
	_, _ = os.Stderr.Write([]byte("\n"))
	return nil
}

func initConfig(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := writeConfig(filepath.Join(dir, "pagepatch.json"), cfgpkg.DefaultTemplateConfig()); err != nil && !os.IsExist(err) {
		return err
	}
	// .env 模板失败不影响主配置
	if err := writeDotEnv(filepath.Join(dir, ".env")); err != nil {
		fprintf(os.Stderr, "提示：.env 生成失败（已跳过）：%v\n", err)
	}
	return nil
}

func writeConfig(path string, c cfgpkg.Config) error {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	if path == "-" {
		_, err = os.Stdout.Write(append(b, '\n'))
		return err
	}
	// 不覆盖已存在文件
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(b); err != nil {
		return err
	}
	_, _ = f.Write([]byte("\n"))
	return nil
}

// loadDotEnv 加载 .env；文件不存在时忽略，已存在的环境变量不被覆盖。
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return godotenv.Load(path)
}

// writeDotEnv 生成 .env 模板（若文件已存在则跳过）。
func writeDotEnv(path string) error {
	var b strings.Builder
	b.WriteString("# pagepatch .env 模板（由 --init-config 生成）\n")
	b.WriteString("# 优先级：CLI > ENV(.env) > 配置文件\n")
	b.WriteString("# 空值表示未设置。\n\n")

	b.WriteString("# 配置来源（可二选一）\n")
	b.WriteString("PAGEPATCH_CONFIG_FILE=\n")
	b.WriteString("PAGEPATCH_CONFIG_JSON=\n\n")

	b.WriteString("# 运行参数覆盖\n")
	for _, k := range []string{"BASE_DIR", "SERVICE_IMPORT_PATH", "DRY_RUN", "INJECT_STATE", "BIND_SERVICE", "CONCURRENCY", "LOG_LEVEL", "LOG_DIR"} {
		b.WriteString(cfgpkg.EnvPrefix + k + "=\n")
	}
	b.WriteString("\n# 组件选择与选项（原样 JSON）\n")
	for _, k := range []string{"COMPONENTS_READER", "COMPONENTS_WRITER", "OPTIONS_READER_JSON", "OPTIONS_WRITER_JSON"} {
		b.WriteString(cfgpkg.EnvPrefix + k + "=\n")
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()
	_, err = f.WriteString(b.String())
	return err
}

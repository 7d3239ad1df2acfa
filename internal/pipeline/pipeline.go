package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"pagepatch/internal/diag"
	"pagepatch/internal/patch"
	"pagepatch/pkg/contract"
)

// - 任务相互独立：每个任务独占自己的 Document，不共享可变状态。
// - 顺序门闩：并发执行时结果按任务表顺序提交给终端与汇总；乱序结果暂存，连续冲刷。
// - 局部失败：缺失/不可读/模式非法只影响当前任务；仅取消会中止整体。

// DefaultImportPath 为服务导入路径模板；{service} 替换为服务标识。
const DefaultImportPath = "../services/{service}"

// Components 聚合运行所需的组件。
type Components struct {
	Reader contract.Reader
	// Writer 在 DryRun=false 时必需。
	Writer contract.Writer
	// Terminal 可为 nil（不输出终端提示）。
	Terminal *diag.Terminal
}

// Settings 运行期配置。
type Settings struct {
	Tasks []contract.PageTask
	// ImportPath: 服务导入路径模板；空则使用 DefaultImportPath。
	ImportPath string
	// DryRun: 只计算不写回。
	DryRun bool
	// InjectState: 对改写后的文档追加状态片段。
	InjectState bool
	// BindService: 状态片段使用 <service>.<method>() 代替占位调用（需 InjectState）。
	BindService bool
	Concurrency int
}

// Status 为单个任务的最终状态。
type Status string

const (
	StatusUpdated   Status = "updated"
	StatusSkipped   Status = "skipped"
	StatusUnchanged Status = "unchanged"
	StatusMissing   Status = "missing"
	StatusFailed    Status = "failed"
)

// TaskResult 为单个任务的处理结果。
type TaskResult struct {
	Task   contract.PageTask
	Status Status
	Reason contract.Reason
	// State: 状态注入结果（仅 InjectState 时有意义）。
	State contract.Outcome
	// Doc: 最终文档（updated 时为改写结果，其他情况为输入或零值）。
	Doc     contract.Document
	Written bool
	Err     error
}

// Summary 为整次运行的汇总。Results 与 Settings.Tasks 同序。
type Summary struct {
	Results   []TaskResult
	Updated   int
	Skipped   int
	Unchanged int
	Missing   int
	Failed    int
	Total     int
}

// Tally 转换为终端汇总计数。
func (s Summary) Tally() diag.Tally {
	return diag.Tally{Updated: s.Updated, Skipped: s.Skipped, Unchanged: s.Unchanged, Missing: s.Missing, Failed: s.Failed, Total: s.Total}
}

// Run 执行任务表：Reader → ImportRewriter →（AlreadyUpdated 即止）→ StateInjector（可选）→ Writer（非 dry-run）。
// 单任务错误记录在 TaskResult 中并计入汇总；仅当 ctx 取消时返回错误（附带已完成部分的汇总）。
func Run(ctx context.Context, comp Components, set Settings, logger *diag.Logger) (Summary, error) {
	if err := sanity(comp, set); err != nil {
		return Summary{}, fmt.Errorf("sanity: %w", err)
	}
	start := time.Now()
	t := logger.Start("pipeline", "run")
	comp.Terminal.RunStart(len(set.Tasks), set.DryRun)

	n := len(set.Tasks)
	results := make([]TaskResult, n)
	done := make([]bool, n)
	next := 0
	var mu sync.Mutex
	commit := func(i int, r TaskResult) {
		mu.Lock()
		defer mu.Unlock()
		results[i] = r
		done[i] = true
		for next < n && done[next] {
			report(comp.Terminal, set, results[next])
			next++
		}
	}

	workers := set.Concurrency
	if workers < 1 {
		workers = 1
	}
	if workers > n {
		workers = n
	}
	idx := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range idx {
				commit(i, process(ctx, comp, set, set.Tasks[i], logger))
			}
		}()
	}
feed:
	for i := range set.Tasks {
		select {
		case idx <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(idx)
	wg.Wait()

	// 取消后未派发的任务记为失败
	cerr := ctx.Err()
	for i := range set.Tasks {
		if !done[i] {
			commit(i, TaskResult{Task: set.Tasks[i], Status: StatusFailed, Err: cerr})
		}
	}

	sum := Summary{Results: results, Total: n}
	for _, r := range results {
		switch r.Status {
		case StatusUpdated:
			sum.Updated++
		case StatusSkipped:
			sum.Skipped++
		case StatusUnchanged:
			sum.Unchanged++
		case StatusMissing:
			sum.Missing++
		default:
			sum.Failed++
		}
	}
	logger.InfoFinish("pipeline", "summary", start, int64(n), map[string]string{
		"updated":   fmt.Sprint(sum.Updated),
		"skipped":   fmt.Sprint(sum.Skipped),
		"unchanged": fmt.Sprint(sum.Unchanged),
		"missing":   fmt.Sprint(sum.Missing),
		"failed":    fmt.Sprint(sum.Failed),
		"dry_run":   fmt.Sprint(set.DryRun),
	})
	comp.Terminal.RunFinish(cerr == nil && sum.Failed == 0, sum.Tally(), time.Since(start))
	if cerr != nil {
		logger.Error("pipeline", string(diag.CodeCancel), "run canceled", &start)
		return sum, cerr
	}
	t.Finish("run", int64(n))
	return sum, nil
}

// process 处理单个任务：读取、变换、按需写回。
func process(ctx context.Context, comp Components, set Settings, task contract.PageTask, logger *diag.Logger) TaskResult {
	id := contract.NormalizeDocID(string(task.Document))
	res := TaskResult{Task: task}
	if err := ctx.Err(); err != nil {
		res.Status, res.Err = StatusFailed, err
		return res
	}

	rt := logger.StartWith("reader", "read", string(id))
	doc, err := comp.Reader.Read(ctx, id)
	if err != nil {
		code := diag.Classify(err)
		res.Err = err
		if code == diag.CodeMissing {
			res.Status = StatusMissing
			logger.Skip("reader", string(code), "document missing", string(id))
		} else {
			res.Status = StatusFailed
			logger.ErrorWith("reader", string(code), "read failed", string(id), map[string]string{"err": err.Error()})
		}
		return res
	}
	rt.Finish("read", int64(doc.Len()))

	res = Transform(doc, task, set)
	switch res.Status {
	case StatusFailed:
		logger.ErrorWith("patch", string(diag.Classify(res.Err)), "transform failed", string(id), map[string]string{"err": res.Err.Error()})
		return res
	case StatusSkipped:
		logger.Skip("patch", "already_updated", "already updated", string(id))
		return res
	case StatusUnchanged:
		logger.Skip("patch", string(res.Reason), "no import found", string(id))
		// 无 import 但注入了状态片段时仍需写回
		if res.State != contract.Changed {
			return res
		}
	}
	if res.Reason == contract.ReasonComponentNotFound {
		logger.Skip("patch", string(res.Reason), "component declaration not found", string(id))
	}

	if set.DryRun {
		return res
	}
	wt := logger.StartWith("writer", "write", string(id))
	if err := comp.Writer.Write(ctx, id, res.Doc); err != nil {
		logger.ErrorWith("writer", string(diag.Classify(err)), "write failed", string(id), map[string]string{"err": err.Error()})
		res.Status, res.Err = StatusFailed, fmt.Errorf("writer write: %w", err)
		return res
	}
	wt.Finish("write", int64(res.Doc.Len()))
	res.Written = true
	return res
}

// Transform 为无 I/O 的单文档变换，返回的 TaskResult 未写回（Written=false）。
// - 导入改写 AlreadyUpdated → skipped；Unchanged（无 import）→ unchanged，原文继续参与状态注入；
// - InjectState 时对当前文档注入状态片段，组件名取文档基名（去扩展名）；未找到组件不算失败。
// - 无 import 的文档若已含 state hook 则不再注入，保证重复运行不叠加片段。
func Transform(doc contract.Document, task contract.PageTask, set Settings) TaskResult {
	res := TaskResult{Task: task, Doc: doc, State: contract.Unchanged}
	spec := contract.ImportSpec{
		ServiceIdentifier: task.ServiceIdentifier,
		ServiceImportPath: set.importPath(task),
	}
	ir, err := patch.RewriteImports(doc, spec)
	if err != nil {
		res.Status, res.Err = StatusFailed, fmt.Errorf("rewrite imports: %w", err)
		return res
	}
	switch ir.Outcome {
	case contract.AlreadyUpdated:
		res.Status = StatusSkipped
		return res
	case contract.Unchanged:
		res.Status, res.Reason = StatusUnchanged, ir.Reason
		if !set.InjectState || doc.Contains(patch.StateHook) {
			return res
		}
		sr, err := injectState(doc, task, set)
		if err != nil {
			res.Status, res.Err = StatusFailed, err
			return res
		}
		res.State, res.Doc = sr.Outcome, sr.Doc
		return res
	}
	res.Status, res.Doc = StatusUpdated, ir.Doc

	if !set.InjectState {
		return res
	}
	sr, err := injectState(ir.Doc, task, set)
	if err != nil {
		res.Status, res.Doc, res.Err = StatusFailed, doc, err
		return res
	}
	res.State, res.Reason, res.Doc = sr.Outcome, sr.Reason, sr.Doc
	return res
}

func injectState(doc contract.Document, task contract.PageTask, set Settings) (patch.Result, error) {
	var opts []patch.Option
	if set.BindService {
		opts = append(opts, patch.WithServiceBinding(task.ServiceIdentifier, task.MethodName))
	}
	sr, err := patch.InjectState(doc, contract.ComponentOf(task.Document), opts...)
	if err != nil {
		return sr, fmt.Errorf("inject state: %w", err)
	}
	return sr, nil
}

func (s Settings) importPath(task contract.PageTask) string {
	if task.ImportPath != "" {
		return task.ImportPath
	}
	tpl := s.ImportPath
	if strings.TrimSpace(tpl) == "" {
		tpl = DefaultImportPath
	}
	return strings.ReplaceAll(tpl, "{service}", task.ServiceIdentifier)
}

// report 输出单个任务的终端状态行。调用方持锁，保证按任务表顺序。
func report(term *diag.Terminal, set Settings, r TaskResult) {
	if term == nil {
		return
	}
	var detail string
	switch r.Status {
	case StatusUpdated:
		detail = "dry-run"
		if r.Written {
			detail = "written"
		}
		if set.InjectState {
			detail += " | state " + r.State.String()
			if r.Reason != "" {
				detail += " (" + string(r.Reason) + ")"
			}
		}
	case StatusSkipped:
		detail = "already updated"
	case StatusUnchanged:
		detail = string(r.Reason)
		if r.State == contract.Changed {
			detail += " | state changed"
			if r.Written {
				detail += " | written"
			}
		}
	case StatusMissing:
		detail = "not found"
	case StatusFailed:
		detail = string(diag.Classify(r.Err))
		if r.Err != nil {
			detail += ": " + r.Err.Error()
		}
	}
	term.Task(string(r.Task.Document), string(r.Status), detail)
}

func sanity(c Components, s Settings) error {
	if c.Reader == nil {
		return errors.New("pipeline: missing reader")
	}
	if !s.DryRun && c.Writer == nil {
		return errors.New("pipeline: writer required when dry_run is false")
	}
	if s.BindService && !s.InjectState {
		return errors.New("pipeline: bind_service requires inject_state")
	}
	if len(s.Tasks) == 0 {
		return errors.New("pipeline: empty task table")
	}
	return nil
}

package diag

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Terminal: 终端信息提示（非日志）。
// - 输出到提供的 io.Writer（默认 stderr）。
// - TTY: 进度单行 \r 覆盖；非 TTY: 仅分行打印任务状态。
// - 并发安全；写失败后进入禁用态为 no-op。
type Terminal struct {
	w       io.Writer
	enabled bool
	isTTY   bool

	total    int
	done     int
	dryRun   bool
	runStart time.Time

	lastLen   int
	lastFlush time.Time

	mu sync.Mutex
}

// Tally 为终端汇总行所需计数。
type Tally struct {
	Updated   int
	Skipped   int
	Unchanged int
	Missing   int
	Failed    int
	Total     int
}

// NewTerminal 构造终端提示器。
// enabled=false 时总是 no-op。
func NewTerminal(w io.Writer, enabled bool) *Terminal {
	if w == nil {
		w = os.Stderr
	}
	t := &Terminal{w: w, enabled: enabled}
	// CI 环境视为非 TTY
	if os.Getenv("CI") != "" {
		t.isTTY = false
	} else if f, ok := w.(*os.File); ok {
		if fi, err := f.Stat(); err == nil {
			t.isTTY = fi.Mode()&os.ModeCharDevice != 0
		}
	}
	return t
}

// RunStart: 记录任务总数与是否 dry-run。
func (t *Terminal) RunStart(total int, dryRun bool) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	t.total = total
	t.done = 0
	t.dryRun = dryRun
	t.runStart = time.Now()
	mode := "write"
	if dryRun {
		mode = "dry-run"
	}
	t.println(fmt.Sprintf("[run] 任务=%d | 模式=%s", total, mode))
}

// Task: 打印单个任务的最终状态；detail 可为空。
func (t *Terminal) Task(docID, status, detail string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	t.done++
	if t.isTTY && t.lastLen > 0 {
		t.printInline("")
	}
	line := fmt.Sprintf("[%s] %s", status, shortenBase(docID, 48))
	if detail != "" {
		line += " | " + safe(detail)
	}
	t.println(line)
	if t.isTTY && t.done < t.total {
		t.progress()
	}
}

// progress: TTY 下的进度行（≥100ms 节流）。调用方持锁。
func (t *Terminal) progress() {
	now := time.Now()
	if now.Sub(t.lastFlush) < 100*time.Millisecond {
		return
	}
	t.lastFlush = now
	t.printInline(fmt.Sprintf("[run] 进度 %d/%d | 用时 %s", t.done, t.total, formatSince(t.runStart)))
}

// RunFinish: 结束汇总。
func (t *Terminal) RunFinish(ok bool, s Tally, dur time.Duration) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	if t.isTTY && t.lastLen > 0 {
		t.printInline("")
	}
	tag := "ok"
	if !ok {
		tag = "fail"
	}
	t.println(fmt.Sprintf("[%s] 汇总 | 更新 %d | 跳过 %d | 未变更 %d | 缺失 %d | 失败 %d | 总计 %d | 用时 %s",
		tag, s.Updated, s.Skipped, s.Unchanged, s.Missing, s.Failed, s.Total, formatDur(dur)))
	if t.dryRun && s.Updated > 0 {
		t.println("[note] dry-run：未写回任何文件（使用 --write 落盘）")
	}
}

func (t *Terminal) println(s string) {
	if _, err := io.WriteString(t.w, s+"\n"); err != nil {
		t.enabled = false
	}
	t.lastLen = 0
}

func (t *Terminal) printInline(s string) {
	// 若新行比旧短，填充空格覆盖
	pad := 0
	if l := visLen(s); t.lastLen > l {
		pad = t.lastLen - l
	}
	var b strings.Builder
	b.WriteByte('\r')
	b.WriteString(s)
	if pad > 0 {
		b.WriteString(strings.Repeat(" ", pad))
	}
	if pad > 0 || s == "" {
		b.WriteByte('\r')
	}
	if _, err := io.WriteString(t.w, b.String()); err != nil {
		t.enabled = false
		return
	}
	t.lastLen = visLen(s)
}

// shortenBase: 取基名并按可见宽度截断（尾部省略号）。
func shortenBase(s string, max int) string {
	if max <= 0 {
		return ""
	}
	base := filepath.Base(strings.TrimSpace(s))
	if visLen(base) <= max {
		return base
	}
	rs := []rune(base)
	return string(rs[:max-1]) + "…"
}

func visLen(s string) int { return len([]rune(s)) }

func safe(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	return s
}

func formatSince(t0 time.Time) string { return formatDur(time.Since(t0)) }

func formatDur(d time.Duration) string {
	if d < time.Second {
		ms := d.Milliseconds()
		if ms < 0 {
			ms = 0
		}
		return fmt.Sprintf("%dms", ms)
	}
	return fmt.Sprintf("%.1fs", float64(d.Milliseconds())/1000.0)
}

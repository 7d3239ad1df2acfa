package diag

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// 级别定义
type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
)

func (l Level) String() string {
	switch l {
	case Debug:
		return "debug"
	case Info:
		return "info"
	case Warn:
		return "warn"
	case Error:
		return "error"
	default:
		return "info"
	}
}

// lineSink 为日志落地目标（轮转文件或任意 io.Writer）。
type lineSink interface {
	WriteLine(b []byte) error
}

// Logger 为最小结构化日志器：单行 JSON 事件。
type Logger struct {
	corrID string
	level  Level
	sink   lineSink
	mu     sync.Mutex
}

// NewLogger 通过配置的 level 初始化。
// dir 非空时写入 dir 下的轮转文件（10MB）；为空时写 stderr。
func NewLogger(corrID, level, dir string) *Logger {
	lvl := parseLevel(strings.TrimSpace(level))
	var sink lineSink
	if strings.TrimSpace(dir) != "" {
		sink = NewRotatingFile(dir, 10)
	}
	return &Logger{corrID: corrID, level: lvl, sink: sink}
}

// NewWriterLogger 将事件写入 w（测试或管道场景）。
func NewWriterLogger(corrID, level string, w io.Writer) *Logger {
	return &Logger{corrID: corrID, level: parseLevel(strings.TrimSpace(level)), sink: writerSink{w: w}}
}

type writerSink struct{ w io.Writer }

func (s writerSink) WriteLine(b []byte) error {
	_, err := s.w.Write(append(b, '\n'))
	return err
}

func parseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return Debug
	case "warn":
		return Warn
	case "error":
		return Error
	default:
		return Info
	}
}

// Event 为标准事件结构。
type Event struct {
	Level  string            `json:"level"`
	TS     string            `json:"ts"`
	CorrID string            `json:"corr_id"`
	Comp   string            `json:"comp"`
	Stage  string            `json:"stage"` // start|finish|skip|error
	Code   string            `json:"code,omitempty"`
	DurMS  int64             `json:"dur_ms,omitempty"`
	Count  int64             `json:"count,omitempty"`
	DocID  string            `json:"doc_id,omitempty"`
	Msg    string            `json:"msg"`
	KV     map[string]string `json:"kv,omitempty"`
}

func (l *Logger) log(lv Level, ev Event) {
	if l == nil || lv < l.level {
		return
	}
	ev.Level = lv.String()
	ev.TS = NowUTC()
	ev.CorrID = l.corrID
	b, _ := json.Marshal(ev)
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sink == nil {
		_, _ = os.Stderr.Write(append(b, '\n'))
		return
	}
	if err := l.sink.WriteLine(b); err != nil {
		fmt.Fprintf(os.Stderr, "logger sink error: %v\n", err)
		_, _ = os.Stderr.Write(append(b, '\n'))
	}
}

// Close 关闭可关闭的落地目标（轮转文件）；stderr 与外部 writer 不关闭。
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if c, ok := l.sink.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Start 记录 start 事件；返回计时器用于 Finish。
func (l *Logger) Start(comp, msg string) *Timer {
	l.log(Info, Event{Comp: comp, Stage: "start", Msg: msg})
	return &Timer{l: l, comp: comp, t0: time.Now()}
}

// StartWith 记录带 doc_id 的 start。
func (l *Logger) StartWith(comp, msg, docID string) *Timer {
	l.log(Debug, Event{Comp: comp, Stage: "start", DocID: docID, Msg: msg})
	return &Timer{l: l, comp: comp, docID: docID, t0: time.Now()}
}

// Skip 记录非错误的跳过（缺失文档、已更新、结构未匹配）。
func (l *Logger) Skip(comp, code, msg, docID string) {
	l.log(Warn, Event{Comp: comp, Stage: "skip", Code: code, DocID: docID, Msg: msg})
}

// Error 记录 error 事件。
func (l *Logger) Error(comp, code, msg string, durSince *time.Time) {
	var dur int64
	if durSince != nil {
		dur = time.Since(*durSince).Milliseconds()
	}
	l.log(Error, Event{Comp: comp, Stage: "error", Code: code, DurMS: dur, Msg: msg})
}

// ErrorWith 支持 doc_id 与附加键值。
func (l *Logger) ErrorWith(comp, code, msg, docID string, kv map[string]string) {
	l.log(Error, Event{Comp: comp, Stage: "error", Code: code, Msg: msg, DocID: docID, KV: kv})
}

// InfoFinish 在已有起点的情况下记录 finish。
func (l *Logger) InfoFinish(comp, msg string, start time.Time, count int64, kv map[string]string) {
	l.log(Info, Event{Comp: comp, Stage: "finish", DurMS: time.Since(start).Milliseconds(), Count: count, Msg: msg, KV: kv})
}

// DebugStart 输出调试级别的 start 事件（仅在 level=debug 时生效）。
func (l *Logger) DebugStart(comp, msg, docID string, kv map[string]string) {
	l.log(Debug, Event{Comp: comp, Stage: "start", DocID: docID, Msg: msg, KV: kv})
}

// Timer 用于 start→finish 计时。
type Timer struct {
	l     *Logger
	comp  string
	docID string
	t0    time.Time
}

// Finish 记录 finish；可选 count。带 doc_id 的计时器按 debug 级别输出。
func (t *Timer) Finish(msg string, count int64) {
	if t == nil || t.l == nil {
		return
	}
	lv := Info
	if t.docID != "" {
		lv = Debug
	}
	t.l.log(lv, Event{Comp: t.comp, Stage: "finish", DurMS: time.Since(t.t0).Milliseconds(), Count: count, DocID: t.docID, Msg: msg})
}

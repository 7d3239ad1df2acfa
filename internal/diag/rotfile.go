package diag

import (
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

const logPrefix = "pagepatch"

// RotatingFile 将日志行追加到 dir/pagepatch.log，超过 maxMB 时轮转。
// 轮转文件名 pagepatch-<UTC 时间戳>.log；仅保留最近 keep 个（<=0 不清理）。
type RotatingFile struct {
	lj *lumberjack.Logger
}

func NewRotatingFile(dir string, maxMB int) *RotatingFile {
	if maxMB <= 0 {
		maxMB = 10
	}
	return &RotatingFile{lj: &lumberjack.Logger{
		Filename:   filepath.Join(dir, logPrefix+".log"),
		MaxSize:    maxMB,
		MaxBackups: 5,
	}}
}

// WithKeep 调整保留的历史文件数；须在首次写入前调用。
func (w *RotatingFile) WithKeep(n int) *RotatingFile {
	if n < 0 {
		n = 0
	}
	w.lj.MaxBackups = n
	return w
}

func (w *RotatingFile) WriteLine(b []byte) error {
	line := make([]byte, 0, len(b)+1)
	line = append(line, b...)
	_, err := w.lj.Write(append(line, '\n'))
	return err
}

// Rotate 立即轮转当前文件。
func (w *RotatingFile) Rotate() error { return w.lj.Rotate() }

// Path 返回当前写入的文件路径。
func (w *RotatingFile) Path() string { return w.lj.Filename }

func (w *RotatingFile) Close() error { return w.lj.Close() }

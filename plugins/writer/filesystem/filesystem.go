package filesystem

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"pagepatch/pkg/contract"
)

// Options: 最小必要选项。
type Options struct {
	// BaseDir: 写回根目录（必需）；通常与 Reader 的 base_dir 相同。
	BaseDir string `json:"base_dir"`
	// Atomic: 是否使用原子替换（同目录临时文件 + rename）。
	// 未提供该字段时采用原子写；显式 false 可关闭。
	Atomic *bool `json:"atomic,omitempty"`
	// BackupSuffix: 非空时在覆盖前将原文件复制为 <name><suffix>（例如 ".bak"）。
	BackupSuffix string `json:"backup_suffix,omitempty"`
	// PermFile/PermDir: 可选权限；为 0 表示使用默认 0644/0755。
	PermFile os.FileMode `json:"perm_file,omitempty"`
	PermDir  os.FileMode `json:"perm_dir,omitempty"`
}

type FS struct {
	root   string
	atomic bool
	backup string
	permF  os.FileMode
	permD  os.FileMode
}

// New 创建文件系统 Writer 实现。
func New(opts *Options) (*FS, error) {
	if opts == nil || strings.TrimSpace(opts.BaseDir) == "" {
		return nil, os.ErrInvalid
	}
	pf := opts.PermFile
	if pf == 0 {
		pf = 0o644
	}
	pd := opts.PermDir
	if pd == 0 {
		pd = 0o755
	}
	atomic := true
	if opts.Atomic != nil {
		atomic = *opts.Atomic
	}
	return &FS{root: opts.BaseDir, atomic: atomic, backup: opts.BackupSuffix, permF: pf, permD: pd}, nil
}

var _ contract.Writer = (*FS)(nil)

// Write 将 doc 全文写入 id 映射的目标路径。
func (w *FS) Write(ctx context.Context, id contract.DocID, doc contract.Document) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	rel, err := contract.RelPath(id)
	if err != nil {
		return err
	}
	dest := filepath.Join(w.root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(dest), w.permD); err != nil {
		return mapErr(id, err)
	}
	if w.backup != "" {
		if err := w.writeBackup(dest); err != nil {
			return mapErr(id, err)
		}
	}
	r := strings.NewReader(doc.Text())
	if w.atomic {
		err = w.writeAtomic(ctx, dest, r)
	} else {
		err = w.writeOverwrite(ctx, dest, r)
	}
	return mapErr(id, err)
}

// writeBackup 复制现有文件；目标不存在时跳过。
func (w *FS) writeBackup(dest string) error {
	b, err := os.ReadFile(dest)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	return os.WriteFile(dest+w.backup, b, w.permF)
}

// openTrunc 打开非原子写的目标文件；测试可替换。
var openTrunc = func(dest string, perm os.FileMode) (io.WriteCloser, error) {
	return os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
}

// writeOverwrite 直接截断写入；Close 的错误同样视为写失败。
func (w *FS) writeOverwrite(ctx context.Context, dest string, r io.Reader) error {
	f, err := openTrunc(dest, w.permF)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(f)
	if _, err := io.Copy(bw, readerWithCtx(ctx, r)); err != nil {
		_ = f.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func (w *FS) writeAtomic(ctx context.Context, dest string, r io.Reader) error {
	dir := filepath.Dir(dest)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	_ = os.Chmod(tmpPath, w.permF)

	fail := func(err error) error {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	bw := bufio.NewWriter(tmp)
	if _, err := io.Copy(bw, readerWithCtx(ctx, r)); err != nil {
		return fail(err)
	}
	if err := bw.Flush(); err != nil {
		return fail(err)
	}
	if err := tmp.Sync(); err != nil {
		return fail(err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	// Windows 上 os.Rename 同样以 MOVEFILE_REPLACE_EXISTING 覆盖
	if err := os.Rename(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	syncDir(dir)
	return nil
}

// syncDir: POSIX 下尽力同步父目录元数据。
func syncDir(dir string) {
	if runtime.GOOS == "windows" {
		return
	}
	f, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = f.Sync()
	_ = f.Close()
}

func mapErr(id contract.DocID, err error) error {
	if err != nil && errors.Is(err, fs.ErrPermission) {
		return fmt.Errorf("%w: %s: %w", contract.ErrUnreadable, id, err)
	}
	return err
}

// readerWithCtx: 在每次 Read 前检查 ctx 是否已取消。
func readerWithCtx(ctx context.Context, r io.Reader) io.Reader {
	return &ctxReader{ctx: ctx, r: r}
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr *ctxReader) Read(p []byte) (int, error) {
	select {
	case <-cr.ctx.Done():
		return 0, cr.ctx.Err()
	default:
	}
	return cr.r.Read(p)
}

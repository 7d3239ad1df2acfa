package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"pagepatch/pkg/contract"
)

// Options 为 FileSystem Reader 的配置。
type Options struct {
	// BaseDir: 页面根目录（必需）；DocID 相对该目录解析。
	BaseDir string `json:"base_dir"`
	// MaxBytes: 单个文档读取上限（字节）。默认 4MiB；超过视为不可读。
	MaxBytes int64 `json:"max_bytes,omitempty"`
}

// FileSystem 基于本地文件系统读取页面文档。
type FileSystem struct {
	root     string
	maxBytes int64
}

// New 创建 FileSystem Reader。
func New(opts *Options) (*FileSystem, error) {
	if opts == nil || strings.TrimSpace(opts.BaseDir) == "" {
		return nil, os.ErrInvalid
	}
	max := opts.MaxBytes
	if max <= 0 {
		max = 4 << 20
	}
	return &FileSystem{root: opts.BaseDir, maxBytes: max}, nil
}

var _ contract.Reader = (*FileSystem)(nil)

// Read 读取 id 对应的文件；缺失/权限/编码错误分别映射为对应哨兵错误。
func (r *FileSystem) Read(ctx context.Context, id contract.DocID) (contract.Document, error) {
	select {
	case <-ctx.Done():
		return contract.Document{}, ctx.Err()
	default:
	}
	rel, err := contract.RelPath(id)
	if err != nil {
		return contract.Document{}, err
	}
	p := filepath.Join(r.root, filepath.FromSlash(rel))

	// 跟随符号链接；仅接受常规文件
	info, err := os.Stat(p)
	if err != nil {
		return contract.Document{}, mapErr(id, err)
	}
	if !info.Mode().IsRegular() {
		return contract.Document{}, fmt.Errorf("%w: %s is not a regular file", contract.ErrUnreadable, id)
	}
	if info.Size() > r.maxBytes {
		return contract.Document{}, fmt.Errorf("%w: %s exceeds %d bytes", contract.ErrUnreadable, id, r.maxBytes)
	}

	f, err := os.Open(p)
	if err != nil {
		return contract.Document{}, mapErr(id, err)
	}
	defer f.Close()
	b, err := io.ReadAll(io.LimitReader(f, r.maxBytes+1))
	if err != nil {
		return contract.Document{}, mapErr(id, err)
	}
	if int64(len(b)) > r.maxBytes {
		return contract.Document{}, fmt.Errorf("%w: %s exceeds %d bytes", contract.ErrUnreadable, id, r.maxBytes)
	}
	return contract.DecodeDocument(id, b)
}

func mapErr(id contract.DocID, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %s: %w", contract.ErrMissingDocument, id, err)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%w: %s: %w", contract.ErrUnreadable, id, err)
	default:
		return err
	}
}

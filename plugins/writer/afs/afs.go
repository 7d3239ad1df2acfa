// Package afs 通过 viant/afs 写回页面文档。
package afs

import (
	"context"
	"os"
	"strings"

	"github.com/viant/afs"
	"github.com/viant/afs/url"

	"pagepatch/pkg/contract"
)

// Options 为 AFS Writer 的配置。
type Options struct {
	// BaseURL: 写回根 URL（必需）。
	BaseURL string `json:"base_url"`
	// PermFile: 文件权限；0 使用 0644。
	PermFile os.FileMode `json:"perm_file,omitempty"`
}

type Writer struct {
	fs    afs.Service
	base  string
	permF os.FileMode
}

// New 创建 AFS Writer；fs 为空时使用 afs.New()。
func New(opts *Options, fs afs.Service) (*Writer, error) {
	if opts == nil || strings.TrimSpace(opts.BaseURL) == "" {
		return nil, os.ErrInvalid
	}
	if fs == nil {
		fs = afs.New()
	}
	pf := opts.PermFile
	if pf == 0 {
		pf = 0o644
	}
	return &Writer{fs: fs, base: strings.TrimRight(opts.BaseURL, "/"), permF: pf}, nil
}

var _ contract.Writer = (*Writer)(nil)

func (w *Writer) Write(ctx context.Context, id contract.DocID, doc contract.Document) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	rel, err := contract.RelPath(id)
	if err != nil {
		return err
	}
	return w.fs.Upload(ctx, url.Join(w.base, rel), w.permF, strings.NewReader(doc.Text()))
}

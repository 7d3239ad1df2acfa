// Package afs 通过 viant/afs 读取页面文档，支持 file:// 与 mem:// 等 URL 方案。
package afs

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/viant/afs"
	"github.com/viant/afs/url"

	"pagepatch/pkg/contract"
)

// Options 为 AFS Reader 的配置。
type Options struct {
	// BaseURL: 页面根 URL（必需），例如 file:///srv/portal/src/pages 或 mem://localhost/pages。
	BaseURL string `json:"base_url"`
}

// Reader 基于 afs.Service 读取文档。
type Reader struct {
	fs   afs.Service
	base string
}

// New 创建 AFS Reader；fs 为空时使用 afs.New()。
func New(opts *Options, fs afs.Service) (*Reader, error) {
	if opts == nil || strings.TrimSpace(opts.BaseURL) == "" {
		return nil, os.ErrInvalid
	}
	if fs == nil {
		fs = afs.New()
	}
	return &Reader{fs: fs, base: strings.TrimRight(opts.BaseURL, "/")}, nil
}

var _ contract.Reader = (*Reader)(nil)

func (r *Reader) Read(ctx context.Context, id contract.DocID) (contract.Document, error) {
	select {
	case <-ctx.Done():
		return contract.Document{}, ctx.Err()
	default:
	}
	rel, err := contract.RelPath(id)
	if err != nil {
		return contract.Document{}, err
	}
	u := url.Join(r.base, rel)
	ok, err := r.fs.Exists(ctx, u)
	if err != nil {
		return contract.Document{}, fmt.Errorf("%w: %s: %w", contract.ErrUnreadable, id, err)
	}
	if !ok {
		return contract.Document{}, fmt.Errorf("%w: %s", contract.ErrMissingDocument, id)
	}
	rc, err := r.fs.OpenURL(ctx, u)
	if err != nil {
		return contract.Document{}, fmt.Errorf("%w: %s: %w", contract.ErrUnreadable, id, err)
	}
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		return contract.Document{}, fmt.Errorf("%w: %s: %w", contract.ErrUnreadable, id, err)
	}
	return contract.DecodeDocument(id, b)
}

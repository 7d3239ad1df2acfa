package contract

import "context"

// Reader: 文档来源抽象（本地文件系统 / AFS URL）。
// 约束：
// 1) 按 DocID 整篇读取，不做业务解析；
// 2) 不存在返回 ErrMissingDocument（可 errors.Is 判定）；
// 3) 权限不足返回 ErrUnreadable，非 UTF-8 返回 ErrEncoding；
// 4) 不在内部起并发。
type Reader interface {
	Read(ctx context.Context, id DocID) (Document, error)
}

package contract

import "context"

// Writer: 将变换后的文档写回目标介质。
// 约束：
//  1. 同一 DocID 单写者；
//  2. 整篇覆盖写，不读取/修改业务内容；
//  3. ctx 取消/超时需尽快返回；
//  4. 错误直接上抛（不做重试/回退）。
type Writer interface {
	Write(ctx context.Context, id DocID, doc Document) error
}

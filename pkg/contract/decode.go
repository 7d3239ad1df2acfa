package contract

import (
	"bytes"
	"fmt"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// DecodeDocument 将原始字节解码为 Document：
// - 非 UTF-8 返回 ErrEncoding；
// - 去除 UTF-8 BOM；CRLF→LF 归一。
func DecodeDocument(id DocID, b []byte) (Document, error) {
	if !utf8.Valid(b) {
		return Document{}, fmt.Errorf("%w: %s", ErrEncoding, id)
	}
	b = bytes.TrimPrefix(b, utf8BOM)
	b = bytes.ReplaceAll(b, []byte("\r\n"), []byte("\n"))
	return NewDocument(string(b)), nil
}

package contract

import "io"

// Codec: 文档格式的编解码。
// Decode 必须拒绝根不是对象的输入；Encode 输出需可被同一 Codec 重新解析，
// 且不转义非 ASCII 字符。
type Codec interface {
	Name() string
	Decode(r io.Reader) (Document, error)
	Encode(w io.Writer, doc Document) error
}

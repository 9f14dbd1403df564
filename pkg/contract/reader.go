package contract

import (
	"context"
	"io"
)

// Reader: 输入源抽象（文件或 STDIN）。
// 约束：
// 1) 一次打开一个源，返回规范化的 FileID；
// 2) 不做解码，仅提供字节流；
// 3) 调用方负责 Close。
type Reader interface {
	Open(ctx context.Context, src string) (FileID, io.ReadCloser, error)
}

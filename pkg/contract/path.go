package contract

import (
	"path"
	"strings"
)

// NormalizeFileID 规范化路径，统一为跨平台稳定的 FileID。
// 规则：
// - 使用正斜杠分隔符
// - 清理多余分隔符与路径片段（.、..）
// - "-" 保持原样（标准流）
func NormalizeFileID(p string) FileID {
	if p == string(StdStream) {
		return StdStream
	}
	return FileID(path.Clean(strings.ReplaceAll(p, "\\", "/")))
}

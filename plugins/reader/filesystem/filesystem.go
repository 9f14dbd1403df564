package filesystem

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"notefix/pkg/contract"
)

// Options 为 FileSystem Reader 的可选配置（最小必要）。
type Options struct {
	// BufSize 为读缓冲区大小（字节）。默认 64KiB。
	BufSize int `json:"buf_size" yaml:"buf_size"`
}

// FileSystem 实现基于文件系统与 STDIN 的 Reader。
// 仅接受常规文件（允许指向常规文件的符号链接）；目录与设备文件视为无效输入。
type FileSystem struct {
	bufSize int
	stdin   io.Reader
}

// New 创建 FileSystem Reader。
func New(opts *Options) *FileSystem {
	const defaultBuf = 64 * 1024
	b := defaultBuf
	if opts != nil && opts.BufSize > 0 {
		b = opts.BufSize
	}
	return &FileSystem{bufSize: b, stdin: os.Stdin}
}

var _ contract.Reader = (*FileSystem)(nil)

// Open 打开 src；"-" 表示 STDIN。
func (r *FileSystem) Open(ctx context.Context, src string) (contract.FileID, io.ReadCloser, error) {
	select {
	case <-ctx.Done():
		return "", nil, ctx.Err()
	default:
	}

	if src == string(contract.StdStream) {
		// 统一缓冲策略：STDIN 也使用 bufio.Reader 封装；不关闭进程级 STDIN
		return contract.StdStream, newBufferedCloser(io.NopCloser(r.stdin), r.bufSize), nil
	}
	// os.Stat 跟随符号链接
	info, err := os.Stat(src)
	if err != nil {
		return "", nil, err
	}
	if !info.Mode().IsRegular() {
		return "", nil, fmt.Errorf("%w: %s is not a regular file", contract.ErrInvalidInput, src)
	}
	f, err := os.Open(src)
	if err != nil {
		return "", nil, err
	}
	return contract.NormalizeFileID(src), newBufferedCloser(f, r.bufSize), nil
}

// bufferedCloser 将 bufio.Reader 与底层 Closer 组合为 ReadCloser。
type bufferedCloser struct {
	*bufio.Reader
	c io.Closer
}

func newBufferedCloser(c io.ReadCloser, bufSize int) *bufferedCloser {
	if bufSize <= 0 {
		bufSize = 64 * 1024
	}
	return &bufferedCloser{Reader: bufio.NewReaderSize(c, bufSize), c: c}
}

func (b *bufferedCloser) Close() error { return b.c.Close() }

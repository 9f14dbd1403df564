package diag

import (
	"context"
	"errors"
	"os"

	"notefix/pkg/contract"
)

// Code 是最小错误分类代码，用于日志与退出码映射。
type Code string

const (
	CodeUnknown  Code = "unknown"
	CodeConfig   Code = "config"
	CodeLoad     Code = "load"
	CodeGroupKey Code = "group_key"
	CodeShape    Code = "shape"
	CodeSave     Code = "save"
	CodeCancel   Code = "cancel"
	CodeIO       Code = "io"
)

// ConfigError 标记配置/用法阶段的错误（早于任何文档读取）。
type ConfigError struct{ Err error }

func (e *ConfigError) Error() string { return e.Err.Error() }
func (e *ConfigError) Unwrap() error { return e.Err }

// Classify 将错误归为最小分类。
// 仅依赖哨兵错误与类型，不做字符串匹配；按文档阶段优先于底层 I/O 原因。
func Classify(err error) Code {
	if err == nil {
		return CodeUnknown
	}
	var cerr *ConfigError
	switch {
	case errors.As(err, &cerr):
		return CodeConfig
	case errors.Is(err, contract.ErrGroupKey):
		return CodeGroupKey
	case errors.Is(err, contract.ErrShape):
		return CodeShape
	case errors.Is(err, contract.ErrLoad):
		return CodeLoad
	case errors.Is(err, contract.ErrSave):
		return CodeSave
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return CodeCancel
	}
	var perr *os.PathError
	if errors.As(err, &perr) {
		return CodeIO
	}
	return CodeUnknown
}

// ExitCode 把分类映射为进程退出码（0 仅用于成功，不由此函数返回）。
func ExitCode(c Code) int {
	switch c {
	case CodeConfig:
		return 3
	case CodeLoad:
		return 4
	case CodeGroupKey:
		return 5
	case CodeShape:
		return 6
	case CodeSave:
		return 7
	default:
		return 1
	}
}

// Headline 返回面向用户的一行错误前缀。
func Headline(c Code) string {
	switch c {
	case CodeConfig:
		return "配置错误"
	case CodeLoad:
		return "读取失败"
	case CodeGroupKey:
		return "分组键无效"
	case CodeShape:
		return "文档结构不符"
	case CodeSave:
		return "保存失败"
	case CodeCancel:
		return "已取消"
	default:
		return "运行失败"
	}
}

package contract

import (
	"errors"
	"fmt"
)

// 最小错误分类哨兵。类型化错误通过 Is 匹配对应哨兵，通过 Unwrap 暴露底层原因。
var (
	// ErrLoad: 源文档缺失/不可读，或内容不是合法文档。
	ErrLoad = errors.New("load failed")
	// ErrGroupKey: 分组集合的键无法解析为整数。
	ErrGroupKey = errors.New("group key not an integer")
	// ErrShape: 分组集合/记录的形状不符合两种已知结构。
	ErrShape = errors.New("unexpected document shape")
	// ErrSave: 目标不可写或编码失败。
	ErrSave = errors.New("save failed")
	// ErrInvalidInput: 调用参数不合法（例如输入为目录、输出与输入相同）。
	ErrInvalidInput = errors.New("invalid input")
	// ErrPathInvalid: 目标标识映射为无效路径。
	ErrPathInvalid = errors.New("path invalid")
)

// LoadError 携带源标识。
type LoadError struct {
	Source FileID
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Source, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

func (e *LoadError) Is(target error) bool { return target == ErrLoad }

// GroupKeyError 携带集合名与原始键。
type GroupKeyError struct {
	Collection string
	Key        string
	Err        error
}

func (e *GroupKeyError) Error() string {
	return fmt.Sprintf("%s: group key %q is not an integer", e.Collection, e.Key)
}

func (e *GroupKeyError) Unwrap() error { return e.Err }

func (e *GroupKeyError) Is(target error) bool { return target == ErrGroupKey }

// ShapeError 描述出现非预期结构的位置（如 "customerNotes.5[2]"）。
type ShapeError struct {
	Path string
	Want string
	Got  string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("%s: want %s, got %s", e.Path, e.Want, e.Got)
}

func (e *ShapeError) Is(target error) bool { return target == ErrShape }

// SaveError 携带目标标识。
type SaveError struct {
	Dest FileID
	Err  error
}

func (e *SaveError) Error() string {
	return fmt.Sprintf("save %s: %v", e.Dest, e.Err)
}

func (e *SaveError) Unwrap() error { return e.Err }

func (e *SaveError) Is(target error) bool { return target == ErrSave }

// KindOf 返回值的简短类型名，用于 ShapeError.Got。
func KindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case *Object, map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case bool:
		return "bool"
	default:
		return "number"
	}
}

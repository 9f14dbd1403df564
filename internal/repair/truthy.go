package repair

import (
	"encoding/json"
	"strconv"

	"notefix/pkg/contract"
)

// Truthy 判定值是否“有值”：nil、false、数值 0、空串、空序列、空映射均为假。
// 用于扁平集合的宽松检查。
func Truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case json.Number:
		f, err := strconv.ParseFloat(t.String(), 64)
		if err != nil {
			// 无法解析的字面量按非空字符串处理
			return t != ""
		}
		return f != 0
	case int:
		return t != 0
	case int64:
		return t != 0
	case int32:
		return t != 0
	case uint64:
		return t != 0
	case float64:
		return t != 0
	case float32:
		return t != 0
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	case *contract.Object:
		return t.Len() > 0
	default:
		return true
	}
}

package contract

// FileID: 逻辑文档ID（通常为路径，需规范化，跨平台一致）。
// "-" 表示标准输入/输出。
type FileID string

// ArtifactID: 输出工件标识，与 FileID 复用同一表示。
type ArtifactID = FileID

// StdStream 表示 STDIN/STDOUT 的保留标识。
const StdStream FileID = "-"

// Document: 备份文档的内存表示（根对象）。
// 约束：
// - 值仅由 *Object / []any / string / bool / nil / 数值 组成；
// - 对象保留源文档的键顺序，Codec 按该顺序写出；
// - 数值类型由 Codec 决定（JSON 为 json.Number，YAML 为 int/float64），修复时写入 int64；
// - 未识别字段原样透传，不做校验。
type Document = *Object

package config

import "gopkg.in/yaml.v3"

// Config: 运行期只读配置（一次解析，运行期不变）。
// 文件格式为 YAML（JSON 作为其子集同样可读）；键使用 snake_case；未知字段在解析期失败。
// 布尔项使用指针：nil 表示“未设置”，以便 Merge 区分未覆盖与显式 false。
type Config struct {
	// Input: 源文档路径；"-" 表示 STDIN。
	Input string `yaml:"input,omitempty"`
	// Output: 目标路径；为空时由 Input 推导（见 DeriveOutput）。
	Output string `yaml:"output,omitempty"`
	DryRun *bool  `yaml:"dry_run,omitempty"`
	// Codec: 文档格式（json|yaml|auto）；auto 按输入扩展名选择。
	Codec   string  `yaml:"codec,omitempty"`
	Logging Logging `yaml:"logging,omitempty"`
	Repair  Repair  `yaml:"repair,omitempty"`

	// 组件名选择（空则使用默认名）。
	Components Components `yaml:"components,omitempty"`
	// 各组件 Options 子树，原样传入工厂做严格解码。
	Options Options `yaml:"options,omitempty"`
}

// Logging: 日志级别与落盘目录（"-" 表示 stderr）。
type Logging struct {
	Level    string `yaml:"level,omitempty"`
	Dir      string `yaml:"dir,omitempty"`
	MaxBytes int64  `yaml:"max_bytes,omitempty"`
}

// Repair: 修复规则（字段名与两个开关）。
type Repair struct {
	GroupedField        string `yaml:"grouped_field,omitempty"`
	FlatField           string `yaml:"flat_field,omitempty"`
	IDField             string `yaml:"id_field,omitempty"`
	LabelField          string `yaml:"label_field,omitempty"`
	SkipMalformedGroups *bool  `yaml:"skip_malformed_groups,omitempty"`
	StrictFlatCheck     *bool  `yaml:"strict_flat_check,omitempty"`
}

// Components: 组件名选择（注册表中的实现名）。
type Components struct {
	Reader string `yaml:"reader,omitempty"`
	Writer string `yaml:"writer,omitempty"`
}

// Options: 各组件的原样 Options 子树。
type Options struct {
	Reader *yaml.Node `yaml:"reader,omitempty"`
	Codec  *yaml.Node `yaml:"codec,omitempty"`
	Writer *yaml.Node `yaml:"writer,omitempty"`
}

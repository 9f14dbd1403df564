package config

import "gopkg.in/yaml.v3"

// DefaultTemplateConfig 返回一个“可运行”的默认配置模板：
// 列出全部配置键与组件选项键（值为默认），便于用户按需修改。
func DefaultTemplateConfig() Config {
	d := Defaults()
	f := false
	cfg := Config{
		Input:   d.Input,
		Codec:   d.Codec,
		DryRun:  &f,
		Logging: d.Logging,
		Repair: Repair{
			GroupedField:        d.Repair.GroupedField,
			FlatField:           d.Repair.FlatField,
			IDField:             d.Repair.IDField,
			LabelField:          d.Repair.LabelField,
			SkipMalformedGroups: &f,
			StrictFlatCheck:     &f,
		},
		Components: d.Components,
	}
	cfg.Options.Reader = mapNode("buf_size", "65536")
	cfg.Options.Codec = mapNode("indent", "2")
	cfg.Options.Writer = mapNode("atomic", "true", "buf_size", "65536")
	return cfg
}

// TemplateYAML 渲染默认模板为 YAML 文本。
func TemplateYAML() ([]byte, error) {
	return yaml.Marshal(DefaultTemplateConfig())
}

// TemplateEnv 返回 .env 模板（全部注释掉，仅作说明）。
func TemplateEnv() string {
	return `# notefix 环境变量（优先级：flags > env > 配置文件 > 默认值）
# NOTEFIX_CONFIG_FILE=notefix.yaml
# NOTEFIX_INPUT=backup.json
# NOTEFIX_OUTPUT=
# NOTEFIX_CODEC=auto
# NOTEFIX_DRY_RUN=false
# NOTEFIX_LOG_LEVEL=info
# NOTEFIX_LOG_DIR=off
# NOTEFIX_LOG_MAX_BYTES=10485760
# NOTEFIX_GROUPED_FIELD=customerNotes
# NOTEFIX_FLAT_FIELD=notes
# NOTEFIX_ID_FIELD=customerId
# NOTEFIX_LABEL_FIELD=id
# NOTEFIX_SKIP_MALFORMED_GROUPS=false
# NOTEFIX_STRICT_FLAT_CHECK=false
# NOTEFIX_COMPONENTS_READER=fs
# NOTEFIX_COMPONENTS_WRITER=fs
`
}

// mapNode 以成对的 key/value 标量构造映射节点（值按 YAML 规则推断类型）。
func mapNode(kv ...string) *yaml.Node {
	n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for i := 0; i+1 < len(kv); i += 2 {
		n.Content = append(n.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: kv[i]},
			&yaml.Node{Kind: yaml.ScalarNode, Value: kv[i+1]},
		)
	}
	return n
}

package config

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"notefix/internal/diag"
	"notefix/internal/repair"
)

// EnvPrefix 为环境变量前缀（NOTEFIX_*）。
const EnvPrefix = "NOTEFIX"

// DefaultFile 为工作目录下自动加载的配置文件名（若存在）。
const DefaultFile = "notefix.yaml"

// Defaults 返回带有安全默认值的 Config 雏形。
// 结构化日志默认关闭：一次运行只产生输出文档，需要时以 logging.dir 开启。
func Defaults() Config {
	return Config{
		Input: "backup.json",
		Codec: "auto",
		Logging: Logging{
			Level:    "info",
			Dir:      diag.LogOff,
			MaxBytes: 10 * 1024 * 1024,
		},
		Repair: Repair{
			GroupedField: repair.DefaultGroupedField,
			FlatField:    repair.DefaultFlatField,
			IDField:      repair.DefaultIDField,
			LabelField:   repair.DefaultLabelField,
		},
		Components: Components{
			Reader: "fs",
			Writer: "fs",
		},
	}
}

// LoadFile 从文件路径或原始内容解析 Config（严格拒绝未知字段）。
func LoadFile(path string, raw []byte) (Config, error) {
	var cfg Config
	var r io.Reader
	switch {
	case len(raw) > 0:
		r = bytes.NewReader(raw)
	case path != "":
		f, err := os.Open(path)
		if err != nil {
			return cfg, err
		}
		defer f.Close()
		r = f
	default:
		return cfg, errors.New("no config source provided")
	}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			// 空文件等价于空配置
			return Config{}, nil
		}
		return cfg, err
	}
	return cfg, nil
}

// Merge 按优先级合并（后者覆盖前者）。
// 字符串空值与 nil 指针视为未设置；Options 子树整体替换，不做深度合并。
func Merge(base, over Config) Config {
	out := base
	setStr(&out.Input, over.Input)
	setStr(&out.Output, over.Output)
	setStr(&out.Codec, over.Codec)
	setBool(&out.DryRun, over.DryRun)

	setStr(&out.Logging.Level, over.Logging.Level)
	setStr(&out.Logging.Dir, over.Logging.Dir)
	if over.Logging.MaxBytes > 0 {
		out.Logging.MaxBytes = over.Logging.MaxBytes
	}

	setStr(&out.Repair.GroupedField, over.Repair.GroupedField)
	setStr(&out.Repair.FlatField, over.Repair.FlatField)
	setStr(&out.Repair.IDField, over.Repair.IDField)
	setStr(&out.Repair.LabelField, over.Repair.LabelField)
	setBool(&out.Repair.SkipMalformedGroups, over.Repair.SkipMalformedGroups)
	setBool(&out.Repair.StrictFlatCheck, over.Repair.StrictFlatCheck)

	setStr(&out.Components.Reader, over.Components.Reader)
	setStr(&out.Components.Writer, over.Components.Writer)

	if over.Options.Reader != nil {
		out.Options.Reader = over.Options.Reader
	}
	if over.Options.Codec != nil {
		out.Options.Codec = over.Options.Codec
	}
	if over.Options.Writer != nil {
		out.Options.Writer = over.Options.Writer
	}
	return out
}

func setStr(dst *string, v string) {
	if s := strings.TrimSpace(v); s != "" {
		*dst = s
	}
}

func setBool(dst **bool, v *bool) {
	if v != nil {
		b := *v
		*dst = &b
	}
}

// envVars: 支持的环境变量集合（NOTEFIX_ 前缀）。
// 使用 split_words 生成键名而非显式 envconfig 标签：显式标签会额外回退读取无前缀的同名变量。
type envVars struct {
	ConfigFile          string `split_words:"true"`
	Input               string
	Output              string
	Codec               string
	DryRun              *bool  `split_words:"true"`
	LogLevel            string `split_words:"true"`
	LogDir              string `split_words:"true"`
	LogMaxBytes         int64  `split_words:"true"`
	GroupedField        string `split_words:"true"`
	FlatField           string `split_words:"true"`
	IDField             string `split_words:"true"`
	LabelField          string `split_words:"true"`
	SkipMalformedGroups *bool  `split_words:"true"`
	StrictFlatCheck     *bool  `split_words:"true"`
	ComponentsReader    string `split_words:"true"`
	ComponentsWriter    string `split_words:"true"`
}

// EnvOverlay 从进程环境构建一个 Config 覆盖，并返回 NOTEFIX_CONFIG_FILE（若设置）。
// 值无法解析（如布尔写错）时返回错误。
func EnvOverlay() (Config, string, error) {
	var ev envVars
	if err := envconfig.Process(EnvPrefix, &ev); err != nil {
		return Config{}, "", err
	}
	over := Config{
		Input:  ev.Input,
		Output: ev.Output,
		Codec:  ev.Codec,
		DryRun: ev.DryRun,
		Logging: Logging{
			Level:    ev.LogLevel,
			Dir:      ev.LogDir,
			MaxBytes: ev.LogMaxBytes,
		},
		Repair: Repair{
			GroupedField:        ev.GroupedField,
			FlatField:           ev.FlatField,
			IDField:             ev.IDField,
			LabelField:          ev.LabelField,
			SkipMalformedGroups: ev.SkipMalformedGroups,
			StrictFlatCheck:     ev.StrictFlatCheck,
		},
		Components: Components{Reader: ev.ComponentsReader, Writer: ev.ComponentsWriter},
	}
	return over, strings.TrimSpace(ev.ConfigFile), nil
}

// DeriveOutput 由输入路径推导输出路径：在扩展名前插入 "_fixed"。
//
//	backup.json      => backup_fixed.json
//	dir/backup.YAML  => dir/backup_fixed.YAML
//	backup           => backup_fixed
//	-                => -（STDOUT）
func DeriveOutput(input string) string {
	if input == "-" {
		return "-"
	}
	ext := filepath.Ext(input)
	// 隐藏文件（如 ".json"）没有主名，整体视为主名
	if ext == filepath.Base(input) {
		ext = ""
	}
	return strings.TrimSuffix(input, ext) + "_fixed" + ext
}

// ResolveCodec 计算生效的 codec 名：auto 时按输入扩展名选择 yaml，其余为 json。
func ResolveCodec(name, input string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	if n != "" && n != "auto" {
		return n
	}
	switch strings.ToLower(filepath.Ext(input)) {
	case ".yaml", ".yml":
		return "yaml"
	default:
		return "json"
	}
}

// Effective 返回布尔项的生效值。
func Effective(p *bool) bool { return p != nil && *p }

package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"notefix/internal/diag"
	"notefix/internal/pipeline"
	"notefix/internal/repair"
	"notefix/pkg/registry"
)

// Validate 对最小必要边界做静态校验。
func Validate(cfg Config) error {
	in := strings.TrimSpace(cfg.Input)
	if in == "" {
		return errors.New("config: input not set")
	}
	out := strings.TrimSpace(cfg.Output)
	if out == "" {
		out = DeriveOutput(in)
	}
	// 输出不得覆盖输入（"-" 对应不同的流，允许）
	if in != "-" && filepath.Clean(in) == filepath.Clean(out) {
		return fmt.Errorf("config: output %q would overwrite input", out)
	}
	if !diag.ValidLevel(cfg.Logging.Level) {
		return fmt.Errorf("config: unknown log level %q", cfg.Logging.Level)
	}
	if cfg.Logging.MaxBytes < 0 {
		return errors.New("config: logging.max_bytes must be >= 0")
	}
	d := Defaults()
	if name := ResolveCodec(cfg.Codec, in); registry.Codec[name] == nil {
		return fmt.Errorf("config: codec %q not registered (have %s)", name, strings.Join(registry.Names(registry.Codec), ", "))
	}
	if name := effName(cfg.Components.Reader, d.Components.Reader); registry.Reader[name] == nil {
		return fmt.Errorf("config: reader %q not registered", name)
	}
	if name := effName(cfg.Components.Writer, d.Components.Writer); registry.Writer[name] == nil {
		return fmt.Errorf("config: writer %q not registered", name)
	}
	ro := repairOptions(cfg.Repair)
	if ro.GroupedField == ro.FlatField {
		return fmt.Errorf("config: grouped_field and flat_field must differ (both %q)", ro.GroupedField)
	}
	return nil
}

// Assemble 构造 Components 与 Settings。
// 严格 Options 解析在 registry（工厂）层进行；此处只传原样 YAML 节点。
func Assemble(cfg Config) (pipeline.Components, pipeline.Settings, error) {
	if err := Validate(cfg); err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}

	d := Defaults()
	in := strings.TrimSpace(cfg.Input)
	rn := effName(cfg.Components.Reader, d.Components.Reader)
	cn := ResolveCodec(cfg.Codec, in)
	wn := effName(cfg.Components.Writer, d.Components.Writer)

	r, err := registry.Reader[rn](cfg.Options.Reader)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, fmt.Errorf("config: options.reader: %w", err)
	}
	c, err := registry.Codec[cn](cfg.Options.Codec)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, fmt.Errorf("config: options.codec: %w", err)
	}
	w, err := registry.Writer[wn](cfg.Options.Writer)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, fmt.Errorf("config: options.writer: %w", err)
	}

	out := strings.TrimSpace(cfg.Output)
	if out == "" {
		out = DeriveOutput(in)
	}
	set := pipeline.Settings{
		Input:  in,
		Output: out,
		DryRun: Effective(cfg.DryRun),
		Repair: repairOptions(cfg.Repair),
	}
	return pipeline.Components{Reader: r, Codec: c, Writer: w}, set, nil
}

func repairOptions(r Repair) repair.Options {
	d := Defaults().Repair
	return repair.Options{
		GroupedField:        effName(r.GroupedField, d.GroupedField),
		FlatField:           effName(r.FlatField, d.FlatField),
		IDField:             effName(r.IDField, d.IDField),
		LabelField:          effName(r.LabelField, d.LabelField),
		SkipMalformedGroups: Effective(r.SkipMalformedGroups),
		StrictFlatCheck:     Effective(r.StrictFlatCheck),
	}
}

func effName(got, def string) string {
	if s := strings.TrimSpace(got); s != "" {
		return s
	}
	return def
}

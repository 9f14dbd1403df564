package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	cfgpkg "notefix/internal/config"
	"notefix/internal/diag"
	"notefix/internal/pipeline"
)

var pipelineRun = pipeline.Run

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// cliFlags: 命令行旗标。仅 Changed 的旗标参与覆盖。
type cliFlags struct {
	config              string
	codec               string
	logLevel            string
	logDir              string
	dryRun              bool
	skipMalformedGroups bool
	strictFlatCheck     bool
	status              bool
	initDir             string
}

// app 持有一次调用的运行态；错误统一在 run 中收口。
type app struct {
	stdout   io.Writer
	stderr   io.Writer
	corrID   string
	flags    cliFlags
	logger   *zap.Logger
	closeLog func() error
	term     *diag.Terminal
	start    time.Time
}

func run(args []string, stdout, stderr io.Writer) int {
	a := &app{
		stdout: stdout,
		stderr: stderr,
		corrID: uuid.NewString(),
		start:  time.Now(),
	}
	// 在任何 ENV 读取前，尝试加载工作目录下的 .env（不覆盖已有 ENV）。
	if err := loadDotEnv(".env"); err != nil {
		fmt.Fprintf(stderr, "提示：.env 读取失败（已跳过）：%v\n", err)
	}
	cmd := a.rootCmd()
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	defer func() {
		if a.closeLog != nil {
			_ = a.closeLog()
		}
	}()
	if err == nil {
		return 0
	}
	return a.fail(err)
}

// fail 是唯一的错误出口：分类、记录、输出一行提示并返回退出码。
func (a *app) fail(err error) int {
	code := diag.Classify(err)
	if a.logger != nil {
		a.logger.Error("first error",
			zap.String("comp", "pipeline"),
			zap.String("code", string(code)),
			zap.Error(err),
			zap.Duration("dur_ms", time.Since(a.start)),
		)
	}
	a.term.RunFinish(false, 0, time.Since(a.start))
	if code != diag.CodeCancel {
		fmt.Fprintf(a.stderr, "%s: %v\n", diag.Headline(code), err)
	}
	return diag.ExitCode(code)
}

func (a *app) rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notefix [input] [output]",
		Short: "Fill in missing customerId fields in a notes backup",
		Long: `notefix repairs a notes backup exported by the browser app.

Records under customerNotes (keyed by customer id) that lack customerId, or
carry null, receive the integer value of their group key. Records in the flat
notes array are only reported. The repaired document is written to
<input>_fixed<ext> unless an output path is given; "-" means stdin/stdout.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.MaximumNArgs(2)(cmd, args); err != nil {
				return &diag.ConfigError{Err: err}
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.execute(cmd, args)
		},
	}
	cmd.SetOut(a.stdout)
	cmd.SetErr(a.stderr)
	// 用法错误（未知旗标、参数过多）归为配置错误
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &diag.ConfigError{Err: err}
	})

	f := cmd.Flags()
	f.StringVar(&a.flags.config, "config", "", "配置文件路径（YAML/JSON）；缺省读取 ./notefix.yaml（若存在）")
	f.StringVar(&a.flags.codec, "codec", "", "文档格式：json|yaml|auto（覆盖配置）")
	f.StringVar(&a.flags.logLevel, "log-level", "", "日志级别：debug|info|warn|error")
	f.StringVar(&a.flags.logDir, "log-dir", "", `日志目录；"-" 表示 stderr，"off"（默认）不记录`)
	f.BoolVar(&a.flags.dryRun, "dry-run", false, "仅读取与修复，不写出")
	f.BoolVar(&a.flags.skipMalformedGroups, "skip-malformed-groups", false, "分组键无法解析时跳过该组而非失败")
	f.BoolVar(&a.flags.strictFlatCheck, "strict-flat-check", false, "扁平集合仅把缺失/null 视为缺少标识")
	f.BoolVar(&a.flags.status, "status", true, "终端状态提示（stderr）")
	f.StringVar(&a.flags.initDir, "init-config", "", "在指定目录生成 notefix.yaml 与 .env 模板（不覆盖已存在文件）；不带值时为当前目录")
	f.Lookup("init-config").NoOptDefVal = "."
	return cmd
}

func (a *app) execute(cmd *cobra.Command, args []string) error {
	a.term = diag.NewTerminal(a.stderr, a.flags.status)

	// --init-config: 生成模板并退出
	if dir := strings.TrimSpace(a.flags.initDir); dir != "" {
		if err := writeTemplates(dir); err != nil {
			return &diag.ConfigError{Err: fmt.Errorf("init-config: %w", err)}
		}
		fmt.Fprintf(a.stdout, "已生成配置模板: %s\n", filepath.Join(dir, cfgpkg.DefaultFile))
		return nil
	}

	cfg, err := a.resolveConfig(cmd, args)
	if err != nil {
		return &diag.ConfigError{Err: err}
	}
	comp, set, err := cfgpkg.Assemble(cfg)
	if err != nil {
		return &diag.ConfigError{Err: err}
	}

	a.logger, a.closeLog = diag.NewLogger(a.corrID, diag.LogOptions{
		Level:    cfg.Logging.Level,
		Dir:      cfg.Logging.Dir,
		MaxBytes: cfg.Logging.MaxBytes,
	})
	a.logger.Debug("effective config",
		zap.String("comp", "config"),
		zap.String("input", set.Input),
		zap.String("output", set.Output),
		zap.String("codec", comp.Codec.Name()),
		zap.Bool("dry_run", set.DryRun),
		zap.String("grouped_field", set.Repair.GroupedField),
		zap.String("flat_field", set.Repair.FlatField),
		zap.String("id_field", set.Repair.IDField),
		zap.Bool("skip_malformed_groups", set.Repair.SkipMalformedGroups),
		zap.Bool("strict_flat_check", set.Repair.StrictFlatCheck),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	out, err := pipelineRun(ctx, comp, set, a.logger, a.term)
	if err != nil {
		return err
	}
	a.logger.Info("run finished",
		zap.String("comp", "pipeline"),
		zap.String("file_id", string(out.Dest)),
		zap.Int("fixed", out.Fixed),
		zap.Int("flat_missing", out.FlatMissing),
		zap.Strings("skipped_groups", out.Skipped),
		zap.Bool("written", out.Written),
		zap.Duration("dur_ms", time.Since(a.start)),
	)
	a.term.RunFinish(true, out.Fixed, time.Since(a.start))
	return nil
}

// resolveConfig 按 Defaults → 配置文件 → ENV → CLI 的顺序合并。
func (a *app) resolveConfig(cmd *cobra.Command, args []string) (cfgpkg.Config, error) {
	overEnv, envFile, err := cfgpkg.EnvOverlay()
	if err != nil {
		return cfgpkg.Config{}, fmt.Errorf("env: %w", err)
	}

	path := strings.TrimSpace(a.flags.config)
	if path == "" {
		path = envFile
	}
	if path == "" {
		if st, err := os.Stat(cfgpkg.DefaultFile); err == nil && st.Mode().IsRegular() {
			path = cfgpkg.DefaultFile
		}
	}

	cfg := cfgpkg.Defaults()
	if path != "" {
		base, err := cfgpkg.LoadFile(path, nil)
		if err != nil {
			return cfgpkg.Config{}, fmt.Errorf("load %s: %w", path, err)
		}
		cfg = cfgpkg.Merge(cfg, base)
	}
	cfg = cfgpkg.Merge(cfg, overEnv)

	var over cfgpkg.Config
	if len(args) > 0 {
		over.Input = args[0]
	}
	if len(args) > 1 {
		over.Output = args[1]
	}
	f := cmd.Flags()
	over.Codec = a.flags.codec
	over.Logging.Level = a.flags.logLevel
	over.Logging.Dir = a.flags.logDir
	if f.Changed("dry-run") {
		over.DryRun = &a.flags.dryRun
	}
	if f.Changed("skip-malformed-groups") {
		over.Repair.SkipMalformedGroups = &a.flags.skipMalformedGroups
	}
	if f.Changed("strict-flat-check") {
		over.Repair.StrictFlatCheck = &a.flags.strictFlatCheck
	}
	// 位置参数只给出输入时，输出按新输入重新推导，而非沿用配置中的 output
	if len(args) == 1 {
		cfg.Output = ""
	}
	return cfgpkg.Merge(cfg, over), nil
}

// writeTemplates 在 dir 下生成 notefix.yaml 与 .env（均不覆盖）。
func writeTemplates(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	b, err := cfgpkg.TemplateYAML()
	if err != nil {
		return err
	}
	if err := writeNew(filepath.Join(dir, cfgpkg.DefaultFile), b); err != nil {
		return err
	}
	return writeNew(filepath.Join(dir, ".env"), []byte(cfgpkg.TemplateEnv()))
}

// writeNew 仅创建文件；已存在则跳过。
func writeNew(path string, b []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil
		}
		return err
	}
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// loadDotEnv 读取简单的 .env 文件格式并注入进程环境。
// 规则：
// - 忽略不存在的文件；
// - 跳过空行与以 # 开头的行；支持可选的前缀 "export "；
// - 仅按首个 '=' 分割；若 value 被成对的单/双引号包裹，则去除外层引号；
// - 不覆盖已存在的环境变量（保持系统/调用者优先）。
func loadDotEnv(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()
	s := bufio.NewScanner(f)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		key, val, ok := strings.Cut(line, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		val = strings.TrimSpace(val)
		if len(val) >= 2 {
			if q := val[0]; (q == '\'' || q == '"') && val[len(val)-1] == q {
				val = val[1 : len(val)-1]
			}
		}
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		_ = os.Setenv(key, val)
	}
	return s.Err()
}

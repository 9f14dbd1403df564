package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"notefix/internal/diag"
	"notefix/internal/pipeline"
	"notefix/pkg/contract"
)

// chdir 切换到临时目录并在测试结束时恢复。
func chdir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(cwd) })
	return dir
}

func runCLI(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

const sampleBackup = `{
  "customerNotes": {
    "5": [{"id": "n1", "text": "call back"}],
    "12": [{"id": "n2", "customerId": null}, {"id": "n3", "customerId": 99}]
  },
  "notes": [{"id": "n1"}, {"id": "n4", "customerId": 5}],
  "version": 1.0
}`

// 端到端：读取、修复、写出 backup_fixed.json
func TestRunEndToEnd(t *testing.T) {
	dir := chdir(t)
	require.NoError(t, os.WriteFile("backup.json", []byte(sampleBackup), 0o644))

	code, _, stderr := runCLI("--log-dir", filepath.Join(dir, "logs"))
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stderr, "成功修复 2 条记录")
	assert.Contains(t, stderr, "n1 同样缺少 customerId")

	b, err := os.ReadFile("backup_fixed.json")
	require.NoError(t, err)
	var doc struct {
		CustomerNotes map[string][]map[string]any `json:"customerNotes"`
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	require.NoError(t, dec.Decode(&doc))
	assert.Equal(t, json.Number("5"), doc.CustomerNotes["5"][0]["customerId"])
	assert.Equal(t, json.Number("12"), doc.CustomerNotes["12"][0]["customerId"])
	assert.Equal(t, json.Number("99"), doc.CustomerNotes["12"][1]["customerId"])
	assert.Contains(t, string(b), `"version": 1.0`)

	// 输入保持不变
	orig, err := os.ReadFile("backup.json")
	require.NoError(t, err)
	assert.Equal(t, sampleBackup, string(orig))

	// 日志落盘
	_, err = os.Stat(filepath.Join(dir, "logs", "notefix-current.log"))
	assert.NoError(t, err)
}

// 默认配置下除输出文档外不产生任何文件
func TestRunDefaultWritesOnlyOutput(t *testing.T) {
	dir := chdir(t)
	require.NoError(t, os.WriteFile("backup.json", []byte(sampleBackup), 0o644))
	code, _, stderr := runCLI()
	require.Equal(t, 0, code, stderr)
	ents, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range ents {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"backup.json", "backup_fixed.json"}, names)
}

// --status=false 时不输出终端提示；显式输出路径
func TestRunQuietExplicitOutput(t *testing.T) {
	dir := chdir(t)
	require.NoError(t, os.WriteFile("in.json", []byte(sampleBackup), 0o644))
	code, stdout, stderr := runCLI("in.json", "out/fixed.json", "--status=false", "--log-dir", filepath.Join(dir, "logs"))
	require.Equal(t, 0, code, stderr)
	assert.Empty(t, stderr)
	assert.Empty(t, stdout)
	_, err := os.Stat(filepath.Join("out", "fixed.json"))
	assert.NoError(t, err)
}

func TestRunDryRun(t *testing.T) {
	dir := chdir(t)
	require.NoError(t, os.WriteFile("backup.json", []byte(sampleBackup), 0o644))
	code, _, stderr := runCLI("--dry-run", "--log-dir", filepath.Join(dir, "logs"))
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stderr, "演练模式")
	_, err := os.Stat("backup_fixed.json")
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

// 退出码按错误分类
func TestRunExitCodes(t *testing.T) {
	cases := []struct {
		name string
		doc  string
		args []string
		want int
	}{
		{"missing input", "", []string{"absent.json"}, 4},
		{"invalid json", `{"customerNotes":`, nil, 4},
		{"invalid utf-8", "{\"customers\":[{\"name\":\"Chi\xffka\"}]}", nil, 4},
		{"malformed key", `{"customerNotes":{"temp-new-customer":[{"id":"x"}]}}`, nil, 5},
		{"group not array", `{"customerNotes":{"5":{"id":"x"}}}`, nil, 6},
		{"output is input", sampleBackup, []string{"backup.json", "backup.json"}, 3},
		{"unknown flag", sampleBackup, []string{"--bogus"}, 3},
		{"too many args", sampleBackup, []string{"a", "b", "c"}, 3},
		{"bad codec", sampleBackup, []string{"--codec", "xml"}, 3},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			dir := chdir(t)
			if c.doc != "" {
				require.NoError(t, os.WriteFile("backup.json", []byte(c.doc), 0o644))
			}
			args := append([]string{"--log-dir", filepath.Join(dir, "logs")}, c.args...)
			code, _, stderr := runCLI(args...)
			assert.Equal(t, c.want, code, stderr)
			assert.NotEmpty(t, stderr)
			// 失败时不产生输出文件
			_, err := os.Stat("backup_fixed.json")
			assert.True(t, errors.Is(err, os.ErrNotExist))
		})
	}
}

// 分组键无效时可选择跳过
func TestRunSkipMalformedGroups(t *testing.T) {
	dir := chdir(t)
	doc := `{"customerNotes":{"temp-new-customer":[{"id":"x"}],"3":[{"id":"y"}]}}`
	require.NoError(t, os.WriteFile("backup.json", []byte(doc), 0o644))
	code, _, stderr := runCLI("--skip-malformed-groups", "--log-dir", filepath.Join(dir, "logs"))
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stderr, `跳过分组 "temp-new-customer"`)
	b, err := os.ReadFile("backup_fixed.json")
	require.NoError(t, err)
	assert.Contains(t, string(b), `"customerId": 3`)
}

// 合并优先级：配置文件 < ENV < CLI
func TestRunPrecedence(t *testing.T) {
	chdir(t)
	require.NoError(t, os.WriteFile("notefix.yaml", []byte("input: file.json\ncodec: yaml\nlogging:\n  dir: \"-\"\n  level: error\nrepair:\n  strict_flat_check: true\n"), 0o644))
	t.Setenv("NOTEFIX_INPUT", "env.json")
	t.Setenv("NOTEFIX_DRY_RUN", "true")

	var got pipeline.Settings
	var codec string
	orig := pipelineRun
	pipelineRun = func(ctx context.Context, comp pipeline.Components, set pipeline.Settings, l *zap.Logger, term *diag.Terminal) (pipeline.Outcome, error) {
		got, codec = set, comp.Codec.Name()
		return pipeline.Outcome{}, nil
	}
	t.Cleanup(func() { pipelineRun = orig })

	code, _, stderr := runCLI("--strict-flat-check=false", "--codec", "json")
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "env.json", got.Input)
	assert.Equal(t, "env_fixed.json", got.Output)
	assert.True(t, got.DryRun)
	assert.False(t, got.Repair.StrictFlatCheck)
	assert.Equal(t, "json", codec)

	// 位置参数覆盖 ENV
	code, _, stderr = runCLI("cli.yaml")
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "cli.yaml", got.Input)
	assert.Equal(t, "cli_fixed.yaml", got.Output)
	assert.Equal(t, "yaml", codec)
	assert.True(t, got.Repair.StrictFlatCheck)
}

// 运行期错误经统一出口映射退出码
func TestRunPipelineError(t *testing.T) {
	dir := chdir(t)
	orig := pipelineRun
	pipelineRun = func(ctx context.Context, comp pipeline.Components, set pipeline.Settings, l *zap.Logger, term *diag.Terminal) (pipeline.Outcome, error) {
		return pipeline.Outcome{}, &contract.SaveError{Dest: "x", Err: errors.New("disk full")}
	}
	t.Cleanup(func() { pipelineRun = orig })
	code, _, stderr := runCLI("--log-dir", filepath.Join(dir, "logs"))
	assert.Equal(t, 7, code)
	assert.Contains(t, stderr, "保存失败")
	assert.Contains(t, stderr, "disk full")
}

func TestRunCanceled(t *testing.T) {
	dir := chdir(t)
	orig := pipelineRun
	pipelineRun = func(ctx context.Context, comp pipeline.Components, set pipeline.Settings, l *zap.Logger, term *diag.Terminal) (pipeline.Outcome, error) {
		return pipeline.Outcome{}, context.Canceled
	}
	t.Cleanup(func() { pipelineRun = orig })
	code, _, stderr := runCLI("--status=false", "--log-dir", filepath.Join(dir, "logs"))
	assert.Equal(t, 1, code)
	assert.Empty(t, stderr)
}

// --init-config 生成模板且不覆盖
func TestRunInitConfig(t *testing.T) {
	dir := chdir(t)
	out := filepath.Join(dir, "conf")
	code, stdout, stderr := runCLI("--init-config=" + out)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "notefix.yaml")
	for _, name := range []string{"notefix.yaml", ".env"} {
		_, err := os.Stat(filepath.Join(out, name))
		require.NoError(t, err, name)
	}

	marker := []byte("input: keep.json\n")
	require.NoError(t, os.WriteFile(filepath.Join(out, "notefix.yaml"), marker, 0o644))
	code, _, _ = runCLI("--init-config=" + out)
	require.Equal(t, 0, code)
	b, err := os.ReadFile(filepath.Join(out, "notefix.yaml"))
	require.NoError(t, err)
	assert.Equal(t, marker, b)

	// 裸开关使用当前目录；生成的模板可直接运行
	code, _, stderr = runCLI("--init-config")
	require.Equal(t, 0, code, stderr)
	require.NoError(t, os.WriteFile("backup.json", []byte(sampleBackup), 0o644))
	code, _, stderr = runCLI("--log-dir", filepath.Join(dir, "logs"))
	require.Equal(t, 0, code, stderr)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "# comment\nexport NOTEFIX_TEST_A=\"quoted\"\nNOTEFIX_TEST_B = 'single'\nNOTEFIX_TEST_C=keep\nbroken-line\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("NOTEFIX_TEST_C", "env")
	// 注册清理，避免污染其他测试
	t.Setenv("NOTEFIX_TEST_A", "")
	t.Setenv("NOTEFIX_TEST_B", "")
	os.Unsetenv("NOTEFIX_TEST_A")
	os.Unsetenv("NOTEFIX_TEST_B")

	require.NoError(t, loadDotEnv(path))
	assert.Equal(t, "quoted", os.Getenv("NOTEFIX_TEST_A"))
	assert.Equal(t, "single", os.Getenv("NOTEFIX_TEST_B"))
	assert.Equal(t, "env", os.Getenv("NOTEFIX_TEST_C"))
	assert.NoError(t, loadDotEnv(filepath.Join(dir, "missing")))
}

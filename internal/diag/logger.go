package diag

import (
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogOff 作为日志目录时关闭结构化日志（不写任何文件）。
const LogOff = "off"

// LogOptions: 日志输出位置与级别。
type LogOptions struct {
	Level string
	// Dir: 轮转日志目录；"-" 表示直接写 stderr；"off" 或空串不记录。
	Dir      string
	MaxBytes int64
}

// ParseLevel 解析级别字符串；未知值按 info 处理。
func ParseLevel(s string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// ValidLevel 报告 s 是否为支持的级别（空串视为默认 info）。
func ValidLevel(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "debug", "info", "warn", "error":
		return true
	}
	return false
}

// encoderConfig: 单行 JSON，字段名与事件结构保持一致（ts/level/msg，UTC RFC3339）。
func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		MessageKey:     "msg",
		NameKey:        zapcore.OmitKey,
		CallerKey:      zapcore.OmitKey,
		StacktraceKey:  zapcore.OmitKey,
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     func(t time.Time, enc zapcore.PrimitiveArrayEncoder) { enc.AppendString(t.UTC().Format(time.RFC3339)) },
		EncodeDuration: zapcore.MillisDurationEncoder,
	}
}

// NewLogger 构造结构化日志器：写入 opts.Dir 下的轮转文件（10MiB 轮转），
// 每条事件带 corr_id。返回的 close 负责 Sync 并关闭文件。
func NewLogger(corrID string, opts LogOptions) (*zap.Logger, func() error) {
	var (
		sink      zapcore.WriteSyncer
		closeSink = func() error { return nil }
	)
	dir := strings.TrimSpace(opts.Dir)
	switch strings.ToLower(dir) {
	case "", LogOff:
		return zap.NewNop(), closeSink
	case "-":
		sink = zapcore.Lock(os.Stderr)
	default:
		rf := NewRotatingFile(dir, opts.MaxBytes)
		sink = rf
		closeSink = rf.Close
	}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig()), sink, zap.NewAtomicLevelAt(ParseLevel(opts.Level)))
	// sink 写失败时退回 stderr
	logger := zap.New(core, zap.ErrorOutput(zapcore.Lock(os.Stderr))).With(zap.String("corr_id", corrID))
	return logger, func() error {
		_ = logger.Sync()
		return closeSink()
	}
}

// Timer 用于 start→finish 计时，字段与 Event 约定一致（comp/stage/dur_ms/count/file_id）。
type Timer struct {
	l      *zap.Logger
	comp   string
	fileID string
	t0     time.Time
}

// Start 记录 start 事件；返回计时器用于 Finish。
func Start(l *zap.Logger, comp, msg, fileID string) *Timer {
	if l == nil {
		return nil
	}
	l.Info(msg, stageFields(comp, "start", fileID)...)
	return &Timer{l: l, comp: comp, fileID: fileID, t0: time.Now()}
}

// Finish 记录 finish；可选 count。
func (t *Timer) Finish(msg string, count int64) {
	if t == nil || t.l == nil {
		return
	}
	fields := append(stageFields(t.comp, "finish", t.fileID), zap.Int64("dur_ms", time.Since(t.t0).Milliseconds()))
	if count > 0 {
		fields = append(fields, zap.Int64("count", count))
	}
	t.l.Info(msg, fields...)
}

// Fail 记录该阶段的 error 事件（不采样），code 由 Classify 得出。
func (t *Timer) Fail(err error) {
	if t == nil || t.l == nil {
		return
	}
	fields := append(stageFields(t.comp, "error", t.fileID),
		zap.String("code", string(Classify(err))),
		zap.Int64("dur_ms", time.Since(t.t0).Milliseconds()),
		zap.Error(err))
	t.l.Error(t.comp+" failed", fields...)
}

func stageFields(comp, stage, fileID string) []zap.Field {
	fields := []zap.Field{zap.String("comp", comp), zap.String("stage", stage)}
	if fileID != "" {
		fields = append(fields, zap.String("file_id", fileID))
	}
	return fields
}

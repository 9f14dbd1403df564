package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"notefix/internal/diag"
	"notefix/internal/repair"
	"notefix/pkg/contract"
)

// - 单写者：文档整体读入内存，修复与编码完成后才开始写出；
// - 阶段错误按文档阶段包装（LoadError/SaveError），GroupKey/Shape 错误原样上抛；
// - 失败时不产生输出文件（Writer 原子替换；编码失败发生在写出之前）。

// Components 聚合运行所需的原子组件。
type Components struct {
	Reader contract.Reader
	Codec  contract.Codec
	Writer contract.Writer
}

// Settings 运行期配置（最小必要）。
type Settings struct {
	Input  string
	Output string
	// DryRun: 仅读取/修复/编码，不写出。
	DryRun bool
	Repair repair.Options
}

// Outcome 为一次运行的结果。
type Outcome struct {
	repair.Result
	Source  contract.FileID
	Dest    contract.ArtifactID
	Written bool
	Elapsed time.Duration
}

// Run 执行：Reader → Codec.Decode → Repairer → Codec.Encode → Writer。
// term 可为 nil（不输出终端提示）。
func Run(ctx context.Context, comp Components, set Settings, logger *zap.Logger, term *diag.Terminal) (Outcome, error) {
	start := time.Now()
	out := Outcome{Dest: contract.NormalizeFileID(set.Output)}
	if err := sanity(comp, set); err != nil {
		return out, fmt.Errorf("sanity: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	// 读取 + 解码
	term.Loading(set.Input)
	doc, src, err := load(ctx, comp, set.Input, logger)
	out.Source = src
	if err != nil {
		return out, err
	}

	// 修复（原地）
	term.RepairStart()
	rtimer := diag.Start(logger, "repair", "run", string(src))
	var rep repair.Reporter
	if term != nil {
		rep = term
	}
	res, err := repair.New(set.Repair, rep, logger).Repair(doc)
	out.Result = res
	if err != nil {
		rtimer.Fail(err)
		return out, fmt.Errorf("repair: %w", err)
	}
	rtimer.Finish("run", int64(res.Fixed))
	term.Repaired(res.Fixed, res.FlatMissing)

	// 编码在写出之前完成：编码失败不会留下半截文件
	etimer := diag.Start(logger, "codec", "encode", string(out.Dest))
	var buf bytes.Buffer
	if err := comp.Codec.Encode(&buf, doc); err != nil {
		err = &contract.SaveError{Dest: out.Dest, Err: err}
		etimer.Fail(err)
		return out, err
	}
	etimer.Finish("encode", int64(buf.Len()))

	term.Saving(set.Output, set.DryRun)
	if set.DryRun {
		logger.Info("dry run, output skipped", zap.String("comp", "writer"), zap.String("file_id", string(out.Dest)))
		out.Elapsed = time.Since(start)
		return out, nil
	}
	wtimer := diag.Start(logger, "writer", "write", string(out.Dest))
	if err := comp.Writer.Write(ctx, out.Dest, &buf); err != nil {
		err = &contract.SaveError{Dest: out.Dest, Err: err}
		wtimer.Fail(err)
		return out, err
	}
	wtimer.Finish("write", 0)
	out.Written = true
	out.Elapsed = time.Since(start)
	return out, nil
}

func load(ctx context.Context, comp Components, input string, logger *zap.Logger) (contract.Document, contract.FileID, error) {
	src := contract.NormalizeFileID(input)
	ltimer := diag.Start(logger, "reader", "open", string(src))
	id, rc, err := comp.Reader.Open(ctx, input)
	if err != nil {
		// 取消不归为读取失败
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			ltimer.Fail(err)
			return nil, src, err
		}
		err = &contract.LoadError{Source: src, Err: err}
		ltimer.Fail(err)
		return nil, src, err
	}
	defer rc.Close()
	doc, err := comp.Codec.Decode(rc)
	if err != nil {
		err = &contract.LoadError{Source: id, Err: fmt.Errorf("decode %s: %w", comp.Codec.Name(), err)}
		ltimer.Fail(err)
		return nil, id, err
	}
	ltimer.Finish("decoded", int64(doc.Len()))
	return doc, id, nil
}

func sanity(c Components, s Settings) error {
	if c.Reader == nil || c.Codec == nil || c.Writer == nil {
		return errors.New("missing component")
	}
	if s.Input == "" {
		return errors.New("input not set")
	}
	if s.Output == "" {
		return errors.New("output not set")
	}
	return nil
}

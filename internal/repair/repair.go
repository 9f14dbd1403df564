// Package repair 为备份文档补齐缺失的客户标识字段。
//
// 分组集合（默认 customerNotes）以客户 ID 为键，组内记录缺少 customerId（缺失或 null）时
// 补为该键解析出的整数；扁平集合（默认 notes）仅扫描并报告缺失项，不做修改。
// 已有非 null 的 customerId 永不改动，即使与所在分组键不一致（不做一致性检查）。
package repair

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"notefix/pkg/contract"
)

// Options: 字段名与行为开关。空字段名使用默认值。
type Options struct {
	GroupedField string
	FlatField    string
	IDField      string
	// LabelField: 仅用于诊断输出的记录标签字段（默认 "id"）。
	LabelField string
	// SkipMalformedGroups: 分组键不可解析时跳过该组并继续；默认 false 即整体失败。
	SkipMalformedGroups bool
	// StrictFlatCheck: 扁平集合仅把缺失/null 视为缺少标识；默认宽松判定（0、""、false、空容器也算）。
	StrictFlatCheck bool
}

// 默认字段名。
const (
	DefaultGroupedField = "customerNotes"
	DefaultFlatField    = "notes"
	DefaultIDField      = "customerId"
	DefaultLabelField   = "id"
)

func (o Options) withDefaults() Options {
	if o.GroupedField == "" {
		o.GroupedField = DefaultGroupedField
	}
	if o.FlatField == "" {
		o.FlatField = DefaultFlatField
	}
	if o.IDField == "" {
		o.IDField = DefaultIDField
	}
	if o.LabelField == "" {
		o.LabelField = DefaultLabelField
	}
	return o
}

// Fix 描述一次补齐。
type Fix struct {
	Group string
	Label string
	Field string
	Value int64
}

// Reporter 接收人类可读的诊断（修复、扁平缺失、跳过分组）。
type Reporter interface {
	Fixed(f Fix)
	FlatMissing(index int, label, field string)
	GroupSkipped(key string, err error)
}

// Result 汇总一次修复。Fixed 即修复计数。
type Result struct {
	Fixed       int
	Groups      int
	Records     int
	FlatChecked int
	FlatMissing int
	Skipped     []string
}

// Repairer 对单个文档执行一次线性修复，无内部状态，可重复使用。
type Repairer struct {
	opts   Options
	rep    Reporter
	logger *zap.Logger
}

// New 创建 Repairer；rep 与 logger 可为 nil。
func New(opts Options, rep Reporter, logger *zap.Logger) *Repairer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repairer{opts: opts.withDefaults(), rep: rep, logger: logger.With(zap.String("comp", "repair"))}
}

type group struct {
	key     string
	id      int64
	records []any
}

// Repair 原地修改 doc 并返回统计。
// 错误：
// - 分组键不可解析：*contract.GroupKeyError（未开启跳过时），此时文档未被修改；
// - 结构不符：*contract.ShapeError。
func (r *Repairer) Repair(doc contract.Document) (Result, error) {
	var res Result
	groups, err := r.collectGroups(doc, &res)
	if err != nil {
		return res, err
	}
	for _, g := range groups {
		res.Groups++
		for i, item := range g.records {
			rec, ok := item.(*contract.Object)
			if !ok {
				return res, &contract.ShapeError{
					Path: fmt.Sprintf("%s.%s[%d]", r.opts.GroupedField, g.key, i),
					Want: "object",
					Got:  contract.KindOf(item),
				}
			}
			res.Records++
			if v, present := rec.Get(r.opts.IDField); present && v != nil {
				continue
			}
			// 缺失时追加在记录末尾；为 null 时原位替换
			rec.Set(r.opts.IDField, g.id)
			res.Fixed++
			f := Fix{Group: g.key, Label: label(rec, r.opts.LabelField), Field: r.opts.IDField, Value: g.id}
			r.logger.Debug("fixed", zap.String("group", f.Group), zap.String("record", f.Label), zap.Int64("value", f.Value))
			if r.rep != nil {
				r.rep.Fixed(f)
			}
		}
	}
	r.scanFlat(doc, &res)
	r.logger.Info("repair done",
		zap.String("stage", "finish"),
		zap.Int("fixed", res.Fixed),
		zap.Int("groups", res.Groups),
		zap.Int("records", res.Records),
		zap.Int("flat_missing", res.FlatMissing),
		zap.Int("skipped", len(res.Skipped)))
	return res, nil
}

// collectGroups 先整体校验分组集合（键可解析、值为序列），再返回按键排序的分组。
// 校验在任何修改之前完成，失败时文档保持原样。
func (r *Repairer) collectGroups(doc contract.Document, res *Result) ([]group, error) {
	raw, present := doc.Get(r.opts.GroupedField)
	if !present || raw == nil {
		return nil, nil
	}
	m, ok := raw.(*contract.Object)
	if !ok {
		return nil, &contract.ShapeError{Path: r.opts.GroupedField, Want: "object", Got: contract.KindOf(raw)}
	}
	out := make([]group, 0, m.Len())
	for _, key := range m.Keys() {
		val, _ := m.Get(key)
		id, err := ParseGroupKey(key)
		if err != nil {
			gerr := &contract.GroupKeyError{Collection: r.opts.GroupedField, Key: key, Err: err}
			if !r.opts.SkipMalformedGroups {
				return nil, gerr
			}
			res.Skipped = append(res.Skipped, key)
			r.logger.Warn("group skipped", zap.String("group", key), zap.Error(gerr))
			if r.rep != nil {
				r.rep.GroupSkipped(key, gerr)
			}
			continue
		}
		var recs []any
		switch v := val.(type) {
		case nil:
		case []any:
			recs = v
		default:
			return nil, &contract.ShapeError{Path: r.opts.GroupedField + "." + key, Want: "array", Got: contract.KindOf(val)}
		}
		out = append(out, group{key: key, id: id, records: recs})
	}
	slices.SortFunc(out, func(a, b group) int {
		if c := cmp.Compare(a.id, b.id); c != 0 {
			return c
		}
		return strings.Compare(a.key, b.key)
	})
	slices.Sort(res.Skipped)
	return out, nil
}

// scanFlat 仅报告，不修改、不计入 Fixed。字段缺失或不是序列时跳过。
func (r *Repairer) scanFlat(doc contract.Document, res *Result) {
	raw, _ := doc.Get(r.opts.FlatField)
	list, ok := raw.([]any)
	if !ok {
		return
	}
	for i, item := range list {
		res.FlatChecked++
		rec, isObj := item.(*contract.Object)
		var v any
		if isObj {
			v, _ = rec.Get(r.opts.IDField)
		}
		if r.opts.StrictFlatCheck {
			if v != nil {
				continue
			}
		} else if Truthy(v) {
			continue
		}
		res.FlatMissing++
		lbl := "?"
		if isObj {
			lbl = label(rec, r.opts.LabelField)
		}
		r.logger.Warn("flat record missing id", zap.Int("index", i), zap.String("record", lbl))
		if r.rep != nil {
			r.rep.FlatMissing(i, lbl, r.opts.IDField)
		}
	}
}

// ParseGroupKey 把分组键解析为整数，允许首尾空白与正负号。
// 不接受下划线分隔（如 "1_000"），超出 int64 范围的整数同样视为无效键。
func ParseGroupKey(key string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(key), 10, 64)
}

func label(rec *contract.Object, field string) string {
	v, ok := rec.Get(field)
	if !ok || v == nil {
		return "?"
	}
	return fmt.Sprint(v)
}

package repair

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"notefix/pkg/contract"
	jsd "notefix/plugins/codec/jsondoc"
)

type recordingReporter struct {
	fixes   []Fix
	missing []string
	skipped []string
}

func (r *recordingReporter) Fixed(f Fix) { r.fixes = append(r.fixes, f) }
func (r *recordingReporter) FlatMissing(index int, label, field string) {
	r.missing = append(r.missing, label)
}
func (r *recordingReporter) GroupSkipped(key string, err error) { r.skipped = append(r.skipped, key) }

func decode(t *testing.T, s string) contract.Document {
	t.Helper()
	doc, err := jsd.New(nil).Decode(strings.NewReader(s))
	require.NoError(t, err)
	return doc
}

// field 取对象字段；v 必须是 *contract.Object。
func field(v any, key string) any {
	got, _ := v.(*contract.Object).Get(key)
	return got
}

func notes(doc contract.Document, key string) []any {
	return field(field(doc, "customerNotes"), key).([]any)
}

func TestRepairScenario(t *testing.T) {
	doc := decode(t, `{"customerNotes": {"5": [{"id": "a"}, {"id": "b", "customerId": 7}]}}`)
	rep := &recordingReporter{}
	res, err := New(Options{}, rep, nil).Repair(doc)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Fixed)
	assert.Equal(t, 1, res.Groups)
	assert.Equal(t, 2, res.Records)
	ns := notes(doc, "5")
	assert.Equal(t, int64(5), field(ns[0], "customerId"))
	assert.Equal(t, json.Number("7"), field(ns[1], "customerId"))
	require.Len(t, rep.fixes, 1)
	assert.Equal(t, Fix{Group: "5", Label: "a", Field: "customerId", Value: 5}, rep.fixes[0])
}

func TestRepairEmptyAndAbsent(t *testing.T) {
	for name, in := range map[string]string{
		"空分组":     `{"customerNotes": {}}`,
		"无分组字段":   `{"customers": [{"id": 1}]}`,
		"分组为null": `{"customerNotes": null}`,
		"组为null":  `{"customerNotes": {"3": null}}`,
		"组为空数组":   `{"customerNotes": {"3": []}}`,
	} {
		t.Run(name, func(t *testing.T) {
			doc := decode(t, in)
			before := decode(t, in)
			res, err := New(Options{}, nil, nil).Repair(doc)
			require.NoError(t, err)
			assert.Equal(t, 0, res.Fixed)
			if diff := cmp.Diff(before, doc); diff != "" {
				t.Fatalf("document changed (-want +got):\n%s", diff)
			}
		})
	}
}

// 非整数键：默认整体失败，且文档不被修改。
func TestRepairMalformedKeyAborts(t *testing.T) {
	in := `{"customerNotes": {"1": [{"id": "n1"}], "temp-new-customer": [{"id": "n2"}]}}`
	doc := decode(t, in)
	rep := &recordingReporter{}
	_, err := New(Options{}, rep, nil).Repair(doc)
	require.ErrorIs(t, err, contract.ErrGroupKey)
	var gk *contract.GroupKeyError
	require.ErrorAs(t, err, &gk)
	assert.Equal(t, "temp-new-customer", gk.Key)
	assert.Empty(t, rep.fixes)
	if diff := cmp.Diff(decode(t, in), doc); diff != "" {
		t.Fatalf("aborted repair mutated document:\n%s", diff)
	}
}

func TestRepairMalformedKeySkipped(t *testing.T) {
	doc := decode(t, `{"customerNotes": {"x": [{"id": "n0"}], "1": [{"id": "n1"}]}}`)
	rep := &recordingReporter{}
	res, err := New(Options{SkipMalformedGroups: true}, rep, nil).Repair(doc)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Fixed)
	assert.Equal(t, []string{"x"}, res.Skipped)
	assert.Equal(t, []string{"x"}, rep.skipped)
	_, has := notes(doc, "x")[0].(*contract.Object).Get("customerId")
	assert.False(t, has, "skipped group must stay untouched")
}

func TestRepairShapeErrors(t *testing.T) {
	for name, in := range map[string]string{
		"分组不是对象": `{"customerNotes": [1,2]}`,
		"组不是数组":  `{"customerNotes": {"1": {"id": "a"}}}`,
		"记录不是对象": `{"customerNotes": {"1": ["a"]}}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := New(Options{}, nil, nil).Repair(decode(t, in))
			require.ErrorIs(t, err, contract.ErrShape)
		})
	}
}

// 键允许空白与符号，按数值顺序处理。
func TestRepairKeyParsingAndOrder(t *testing.T) {
	doc := decode(t, `{"customerNotes": {"10": [{"id": "c"}], " 2 ": [{"id": "b"}], "-1": [{"id": "a"}], "+3": [{"id": "d", "customerId": null}]}}`)
	rep := &recordingReporter{}
	res, err := New(Options{}, rep, nil).Repair(doc)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Fixed)
	var order []string
	for _, f := range rep.fixes {
		order = append(order, f.Label)
	}
	assert.Equal(t, []string{"a", "b", "d", "c"}, order)
	assert.Equal(t, int64(2), field(notes(doc, " 2 ")[0], "customerId"))
	assert.Equal(t, int64(3), field(notes(doc, "+3")[0], "customerId"))
}

// 幂等、完整、计数正确、不干扰已有值。
func TestRepairProperties(t *testing.T) {
	in := `{
	  "customerNotes": {
	    "1": [{"id": "a"}, {"id": "b", "customerId": null}, {"id": "c", "customerId": 99}],
	    "2": [{"customerId": 0}, {"id": "e", "customerId": ""}],
	    "3": []
	  },
	  "notes": [{"id": "f"}, {"id": "g", "customerId": 0}, {"id": "h", "customerId": 4}],
	  "customers": [{"id": 1, "name": "千夏"}]
	}`
	doc := decode(t, in)
	original := decode(t, in)
	res, err := New(Options{}, nil, nil).Repair(doc)
	require.NoError(t, err)

	// 计数：仅缺失或 null 的分组记录
	assert.Equal(t, 2, res.Fixed)

	// 完整性 + 不干扰
	for _, key := range field(doc, "customerNotes").(*contract.Object).Keys() {
		id, err := ParseGroupKey(key)
		require.NoError(t, err)
		for i, item := range notes(doc, key) {
			got := field(item, "customerId")
			require.NotNil(t, got)
			was := field(notes(original, key)[i], "customerId")
			if was != nil {
				assert.Equal(t, was, got)
			} else {
				assert.Equal(t, id, got)
			}
		}
	}
	assert.Equal(t, json.Number("99"), field(notes(doc, "1")[2], "customerId"))

	// 扁平集合与其他字段不变
	for _, k := range []string{"notes", "customers"} {
		if diff := cmp.Diff(field(original, k), field(doc, k)); diff != "" {
			t.Fatalf("%s changed:\n%s", k, diff)
		}
	}

	// 幂等
	snapshot := decode(t, mustJSON(t, doc))
	res2, err := New(Options{}, nil, nil).Repair(snapshot)
	require.NoError(t, err)
	assert.Equal(t, 0, res2.Fixed)
	if diff := cmp.Diff(decode(t, mustJSON(t, doc)), snapshot); diff != "" {
		t.Fatalf("second run changed document:\n%s", diff)
	}
}

func TestFlatScanLooseAndStrict(t *testing.T) {
	in := `{"notes": [{"id": "a"}, {"id": "b", "customerId": null}, {"id": "c", "customerId": 0}, {"id": "d", "customerId": ""}, {"id": "e", "customerId": 3}, "junk"]}`

	loose := &recordingReporter{}
	res, err := New(Options{}, loose, nil).Repair(decode(t, in))
	require.NoError(t, err)
	assert.Equal(t, 0, res.Fixed)
	assert.Equal(t, 6, res.FlatChecked)
	assert.Equal(t, []string{"a", "b", "c", "d", "?"}, loose.missing)

	strict := &recordingReporter{}
	res, err = New(Options{StrictFlatCheck: true}, strict, nil).Repair(decode(t, in))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "?"}, strict.missing)
	assert.Equal(t, 3, res.FlatMissing)
}

// 扁平字段不是序列时直接跳过。
func TestFlatScanIgnoresNonSequence(t *testing.T) {
	rep := &recordingReporter{}
	res, err := New(Options{}, rep, nil).Repair(decode(t, `{"notes": {"id": "a"}}`))
	require.NoError(t, err)
	assert.Zero(t, res.FlatChecked)
	assert.Empty(t, rep.missing)
}

func TestCustomFieldNames(t *testing.T) {
	doc := decode(t, `{"groups": {"8": [{"key": "k1"}]}, "flat": [{"key": "k2"}]}`)
	rep := &recordingReporter{}
	opts := Options{GroupedField: "groups", FlatField: "flat", IDField: "owner", LabelField: "key"}
	res, err := New(opts, rep, nil).Repair(doc)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Fixed)
	assert.Equal(t, int64(8), field(field(field(doc, "groups"), "8").([]any)[0], "owner"))
	assert.Equal(t, []string{"k2"}, rep.missing)
}

func TestRepairLogsSummary(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	_, err := New(Options{}, nil, zap.New(core)).Repair(decode(t, `{"customerNotes": {"5": [{"id": "a"}]}}`))
	require.NoError(t, err)
	done := logs.FilterMessage("repair done").All()
	require.Len(t, done, 1)
	assert.Equal(t, int64(1), done[0].ContextMap()["fixed"])
	assert.Equal(t, "repair", done[0].ContextMap()["comp"])
	assert.Equal(t, 1, logs.FilterMessage("fixed").Len())
}

func TestTruthy(t *testing.T) {
	falsy := []any{nil, false, "", json.Number("0"), json.Number("0.0"), 0, int64(0), 0.0, []any{}, map[string]any{}, contract.NewObject()}
	for _, v := range falsy {
		assert.False(t, Truthy(v), "%#v", v)
	}
	truthy := []any{true, "x", json.Number("7"), 1, int64(-1), 0.5, []any{1}, map[string]any{"a": 1}, contract.ObjectOf("a", 1)}
	for _, v := range truthy {
		assert.True(t, Truthy(v), "%#v", v)
	}
}

func mustJSON(t *testing.T, doc contract.Document) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jsd.New(nil).Encode(&buf, doc))
	return buf.String()
}

// 补齐的字段：缺失时追加到记录末尾，为 null 时保持原位置；其他记录的键顺序不变。
func TestRepairKeepsKeyOrder(t *testing.T) {
	doc := decode(t, `{"notes": [{"text": "x", "id": "n1"}], "customerNotes": {"5": [{"text": "a", "id": "a"}, {"customerId": null, "id": "b"}]}}`)
	_, err := New(Options{}, nil, nil).Repair(doc)
	require.NoError(t, err)
	ns := notes(doc, "5")
	assert.Equal(t, []string{"text", "id", "customerId"}, ns[0].(*contract.Object).Keys())
	assert.Equal(t, []string{"customerId", "id"}, ns[1].(*contract.Object).Keys())
	assert.Equal(t, []string{"text", "id"}, field(doc, "notes").([]any)[0].(*contract.Object).Keys())
	assert.Equal(t, []string{"notes", "customerNotes"}, doc.Keys())
}

// 分组键解析与 strconv 一致：不接受下划线分隔，超出 int64 的整数视为无效键。
func TestParseGroupKeyBounds(t *testing.T) {
	for _, ok := range []string{"0", " 42 ", "-7", "+3", "9223372036854775807"} {
		_, err := ParseGroupKey(ok)
		assert.NoError(t, err, ok)
	}
	for _, bad := range []string{"1_000", "99999999999999999999", "", "1.0", "0x10"} {
		_, err := ParseGroupKey(bad)
		assert.Error(t, err, bad)
	}
	doc := decode(t, `{"customerNotes": {"1_000": [{"id": "a"}]}}`)
	_, err := New(Options{}, nil, nil).Repair(doc)
	require.ErrorIs(t, err, contract.ErrGroupKey)
}

package jsondoc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"notefix/pkg/contract"
)

// Options: JSON 编码选项。
type Options struct {
	// Indent: 每级缩进的空格数；<=0 使用默认 2。
	Indent int `json:"indent" yaml:"indent"`
}

// Codec 以 JSON 读写备份文档。
// - 输入必须是合法 UTF-8；数值字面量原样保留（1.0 不会变成 1）；
// - 对象键按源文档顺序读写，未改动的记录逐字节不变；
// - 编码不转义 HTML 与非 ASCII 字符。
type Codec struct {
	indent string
}

var _ contract.Codec = (*Codec)(nil)

// New 创建 JSON Codec。
func New(opts *Options) *Codec {
	n := 2
	if opts != nil && opts.Indent > 0 {
		n = opts.Indent
	}
	ind := make([]byte, n)
	for i := range ind {
		ind[i] = ' '
	}
	return &Codec{indent: string(ind)}
}

func (c *Codec) Name() string { return "json" }

// Decode 读取单个 JSON 对象；根必须是对象，且其后不得有多余内容。
func (c *Codec) Decode(r io.Reader) (contract.Document, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(b) {
		return nil, errors.New("input is not valid UTF-8")
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	root, err := readValue(dec)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty document")
		}
		return nil, err
	}
	obj, ok := root.(*contract.Object)
	if !ok {
		return nil, fmt.Errorf("document root must be an object, got %s", contract.KindOf(root))
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after document")
	}
	return obj, nil
}

// readValue 按 token 流构建值；对象保序，重复键后者覆盖前者的值但保留首次位置。
func readValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	d, ok := tok.(json.Delim)
	if !ok {
		return tok, nil
	}
	switch d {
	case '{':
		obj := contract.NewObject()
		for dec.More() {
			kt, err := dec.Token()
			if err != nil {
				return nil, truncated(err)
			}
			key, ok := kt.(string)
			if !ok {
				return nil, fmt.Errorf("object key: unexpected %v", kt)
			}
			v, err := readValue(dec)
			if err != nil {
				return nil, truncated(err)
			}
			obj.Set(key, v)
		}
		if _, err := dec.Token(); err != nil {
			return nil, truncated(err)
		}
		return obj, nil
	case '[':
		arr := []any{}
		for dec.More() {
			v, err := readValue(dec)
			if err != nil {
				return nil, truncated(err)
			}
			arr = append(arr, v)
		}
		if _, err := dec.Token(); err != nil {
			return nil, truncated(err)
		}
		return arr, nil
	default:
		return nil, fmt.Errorf("unexpected delimiter %v", d)
	}
}

// 值内部遇到 EOF 即为截断。
func truncated(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

// Encode 以缩进格式写出文档，末尾带换行。
func (c *Codec) Encode(w io.Writer, doc contract.Document) error {
	e := newEncoder()
	if err := e.value(doc); err != nil {
		return err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, e.buf.Bytes(), "", c.indent); err != nil {
		return err
	}
	out.WriteByte('\n')
	_, err := out.WriteTo(w)
	return err
}

// encoder 先写紧凑形式，再统一缩进。
type encoder struct {
	buf bytes.Buffer
	enc *json.Encoder
}

func newEncoder() *encoder {
	e := &encoder{}
	e.enc = json.NewEncoder(&e.buf)
	e.enc.SetEscapeHTML(false)
	return e
}

func (e *encoder) value(v any) error {
	switch t := v.(type) {
	case *contract.Object:
		e.buf.WriteByte('{')
		for i, k := range t.Keys() {
			if i > 0 {
				e.buf.WriteByte(',')
			}
			if err := e.scalar(k); err != nil {
				return err
			}
			e.buf.WriteByte(':')
			val, _ := t.Get(k)
			if err := e.value(val); err != nil {
				return fmt.Errorf("%s: %w", k, err)
			}
		}
		e.buf.WriteByte('}')
	case []any:
		e.buf.WriteByte('[')
		for i, item := range t {
			if i > 0 {
				e.buf.WriteByte(',')
			}
			if err := e.value(item); err != nil {
				return err
			}
		}
		e.buf.WriteByte(']')
	default:
		return e.scalar(v)
	}
	return nil
}

func (e *encoder) scalar(v any) error {
	if err := e.enc.Encode(v); err != nil {
		return err
	}
	// json.Encoder 在每个值后追加换行
	e.buf.Truncate(e.buf.Len() - 1)
	return nil
}

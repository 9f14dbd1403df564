package yamldoc

import (
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"notefix/pkg/contract"
)

// Options: YAML 编码选项。
type Options struct {
	// Indent: 缩进空格数；<=0 使用默认 2。
	Indent int `json:"indent" yaml:"indent"`
}

// Codec 以 YAML 读写备份文档。
// 映射键一律取其字面文本（未加引号的 5 与 "5" 均为 "5"），使分组键与 JSON 形态一致；
// 映射按源文档顺序读写。
type Codec struct {
	indent int
}

var _ contract.Codec = (*Codec)(nil)

// New 创建 YAML Codec。
func New(opts *Options) *Codec {
	n := 2
	if opts != nil && opts.Indent > 0 {
		n = opts.Indent
	}
	return &Codec{indent: n}
}

func (c *Codec) Name() string { return "yaml" }

// Decode 读取首个 YAML 文档；根必须是映射。
func (c *Codec) Decode(r io.Reader) (contract.Document, error) {
	var root yaml.Node
	if err := yaml.NewDecoder(r).Decode(&root); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty document")
		}
		return nil, err
	}
	v, err := fromNode(&root)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(*contract.Object)
	if !ok {
		return nil, fmt.Errorf("document root must be a mapping, got %s", contract.KindOf(v))
	}
	return obj, nil
}

// Encode 按对象中的键顺序写出文档。
func (c *Codec) Encode(w io.Writer, doc contract.Document) error {
	n, err := toNode(doc)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(c.indent)
	if err := enc.Encode(n); err != nil {
		_ = enc.Close()
		return err
	}
	return enc.Close()
}

// fromNode 把节点树转为文档值。
// 同一映射中字面文本相同的键（如 5 与 "5"）视为冲突并报错；合并键 "<<" 的条目不覆盖显式键。
func fromNode(n *yaml.Node) (any, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil, nil
		}
		return fromNode(n.Content[0])
	case yaml.AliasNode:
		return fromNode(n.Alias)
	case yaml.SequenceNode:
		arr := make([]any, 0, len(n.Content))
		for _, item := range n.Content {
			v, err := fromNode(item)
			if err != nil {
				return nil, err
			}
			arr = append(arr, v)
		}
		return arr, nil
	case yaml.MappingNode:
		return fromMapping(n)
	case yaml.ScalarNode:
		var v any
		if err := n.Decode(&v); err != nil {
			return nil, err
		}
		return v, nil
	default:
		return nil, fmt.Errorf("line %d: unsupported node kind %v", n.Line, n.Kind)
	}
}

func fromMapping(n *yaml.Node) (*contract.Object, error) {
	obj := contract.NewObject()
	merged := map[string]bool{}
	for i := 0; i+1 < len(n.Content); i += 2 {
		kn, vn := resolve(n.Content[i]), n.Content[i+1]
		if kn.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("line %d: mapping key must be a scalar", kn.Line)
		}
		v, err := fromNode(vn)
		if err != nil {
			return nil, err
		}
		if kn.ShortTag() == "!!merge" {
			if err := merge(obj, merged, v, kn.Line); err != nil {
				return nil, err
			}
			continue
		}
		key := kn.Value
		if _, dup := obj.Get(key); dup && !merged[key] {
			return nil, fmt.Errorf("line %d: duplicate mapping key %q", kn.Line, key)
		}
		delete(merged, key)
		obj.Set(key, v)
	}
	return obj, nil
}

// merge 处理 "<<: *base" 与 "<<: [*a, *b]"；已有键保持不变。
func merge(obj *contract.Object, merged map[string]bool, v any, line int) error {
	var srcs []*contract.Object
	switch t := v.(type) {
	case *contract.Object:
		srcs = append(srcs, t)
	case []any:
		for _, item := range t {
			o, ok := item.(*contract.Object)
			if !ok {
				return fmt.Errorf("line %d: merge value must be a mapping", line)
			}
			srcs = append(srcs, o)
		}
	default:
		return fmt.Errorf("line %d: merge value must be a mapping", line)
	}
	for _, src := range srcs {
		for _, k := range src.Keys() {
			if _, exists := obj.Get(k); exists {
				continue
			}
			val, _ := src.Get(k)
			obj.Set(k, val)
			merged[k] = true
		}
	}
	return nil
}

func resolve(n *yaml.Node) *yaml.Node {
	for n.Kind == yaml.AliasNode && n.Alias != nil {
		n = n.Alias
	}
	return n
}

// toNode 把文档值转为节点树；对象键一律以字符串写出。
func toNode(v any) (*yaml.Node, error) {
	switch t := v.(type) {
	case *contract.Object:
		n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		for _, k := range t.Keys() {
			val, _ := t.Get(k)
			vn, err := toNode(val)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			n.Content = append(n.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k}, vn)
		}
		return n, nil
	case []any:
		n := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, item := range t {
			vn, err := toNode(item)
			if err != nil {
				return nil, err
			}
			n.Content = append(n.Content, vn)
		}
		return n, nil
	default:
		n := &yaml.Node{}
		if err := n.Encode(v); err != nil {
			return nil, err
		}
		return n, nil
	}
}

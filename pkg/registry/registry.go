package registry

import (
	"bytes"
	"errors"
	"io"
	"sort"

	"gopkg.in/yaml.v3"

	"notefix/pkg/contract"
	jsd "notefix/plugins/codec/jsondoc"
	ymd "notefix/plugins/codec/yamldoc"
	rfs "notefix/plugins/reader/filesystem"
	wfs "notefix/plugins/writer/filesystem"
)

// strictDecode: 使用 KnownFields 严格解码组件 Options 子树，拒绝未知字段。
// raw 为空时保持零值（默认选项）。
func strictDecode(raw *yaml.Node, v any) error {
	if raw == nil || raw.Kind == 0 {
		return nil
	}
	b, err := yaml.Marshal(raw)
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// NewReader 工厂签名：接收原样 Options 子树。
type NewReader func(raw *yaml.Node) (contract.Reader, error)

// NewCodec 工厂签名：接收原样 Options 子树。
type NewCodec func(raw *yaml.Node) (contract.Codec, error)

// NewWriter 工厂签名：接收原样 Options 子树。
type NewWriter func(raw *yaml.Node) (contract.Writer, error)

// Reader 工厂注册表（显式、零反射）。
var Reader = map[string]NewReader{
	// fs: 文件系统/STDIN Reader
	"fs": func(raw *yaml.Node) (contract.Reader, error) {
		var opts rfs.Options
		if err := strictDecode(raw, &opts); err != nil {
			return nil, err
		}
		return rfs.New(&opts), nil
	},
}

// Codec 工厂注册表。
var Codec = map[string]NewCodec{
	// json: 默认格式（与浏览器端导出的备份一致）
	"json": func(raw *yaml.Node) (contract.Codec, error) {
		var opts jsd.Options
		if err := strictDecode(raw, &opts); err != nil {
			return nil, err
		}
		return jsd.New(&opts), nil
	},
	"yaml": func(raw *yaml.Node) (contract.Codec, error) {
		var opts ymd.Options
		if err := strictDecode(raw, &opts); err != nil {
			return nil, err
		}
		return ymd.New(&opts), nil
	},
}

// Writer 工厂注册表。
var Writer = map[string]NewWriter{
	// fs: 文件系统/STDOUT Writer（默认原子替换）
	"fs": func(raw *yaml.Node) (contract.Writer, error) {
		var opts wfs.Options
		if err := strictDecode(raw, &opts); err != nil {
			return nil, err
		}
		return wfs.New(&opts), nil
	},
}

// Names 返回注册表中的实现名（排序），用于错误提示与帮助文本。
func Names[F any](m map[string]F) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func node(t *testing.T, s string) *yaml.Node {
	t.Helper()
	var n yaml.Node
	require.NoError(t, yaml.Unmarshal([]byte(s), &n))
	return &n
}

// TestStrictDecode 验证严格解码逻辑。
func TestStrictDecode(t *testing.T) {
	type opt struct {
		A int `yaml:"a"`
	}
	var o opt
	require.NoError(t, strictDecode(nil, &o))
	assert.Zero(t, o.A)

	require.NoError(t, strictDecode(node(t, "a: 1"), &o))
	assert.Equal(t, 1, o.A)

	assert.Error(t, strictDecode(node(t, "a: 1\nb: 2"), &o), "未知字段应报错")
}

// TestFactories 遍历注册表入口。
func TestFactories(t *testing.T) {
	t.Run("reader", func(t *testing.T) {
		r, err := Reader["fs"](node(t, "buf_size: 1024"))
		require.NoError(t, err)
		assert.NotNil(t, r)
		_, err = Reader["fs"](node(t, "x: 1"))
		assert.Error(t, err)
	})
	t.Run("codec", func(t *testing.T) {
		for _, name := range []string{"json", "yaml"} {
			c, err := Codec[name](nil)
			require.NoError(t, err)
			assert.Equal(t, name, c.Name())
		}
		_, err := Codec["json"](node(t, "indent: 2\nsort: true"))
		assert.Error(t, err)
	})
	t.Run("writer", func(t *testing.T) {
		w, err := Writer["fs"](node(t, "atomic: false\nbuf_size: 4096"))
		require.NoError(t, err)
		assert.NotNil(t, w)
		_, err = Writer["fs"](node(t, "output_dir: out"))
		assert.Error(t, err)
	})
}

func TestNames(t *testing.T) {
	assert.Equal(t, []string{"json", "yaml"}, Names(Codec))
	assert.Equal(t, []string{"fs"}, Names(Writer))
}

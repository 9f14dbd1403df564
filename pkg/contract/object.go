package contract

import (
	"fmt"
	"reflect"
	"slices"
)

// Object: 保序对象，键按首次出现的顺序排列。
// Set 已存在的键时原位替换值；新键追加到末尾。零值可直接使用，nil 视为空对象（只读）。
type Object struct {
	keys []string
	vals map[string]any
}

// NewObject 创建空对象。
func NewObject() *Object { return &Object{vals: map[string]any{}} }

// ObjectOf 按给定顺序由 key, value 对构造对象；参数个数为奇数或键不是字符串时 panic。
func ObjectOf(kv ...any) *Object {
	if len(kv)%2 != 0 {
		panic("contract: ObjectOf needs key/value pairs")
	}
	o := NewObject()
	for i := 0; i < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			panic(fmt.Sprintf("contract: ObjectOf key %v is %T", kv[i], kv[i]))
		}
		o.Set(k, kv[i+1])
	}
	return o
}

// Len 返回键数量。
func (o *Object) Len() int {
	if o == nil {
		return 0
	}
	return len(o.keys)
}

// Keys 返回键的副本，顺序即输出顺序。
func (o *Object) Keys() []string {
	if o == nil {
		return nil
	}
	return slices.Clone(o.keys)
}

// Get 返回键对应的值；present 区分“缺失”与“值为 null”。
func (o *Object) Get(key string) (v any, present bool) {
	if o == nil {
		return nil, false
	}
	v, present = o.vals[key]
	return v, present
}

func (o *Object) Set(key string, v any) {
	if o.vals == nil {
		o.vals = map[string]any{}
	}
	if _, ok := o.vals[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.vals[key] = v
}

// Equal 比较键顺序与值；嵌套对象递归比较。
func (o *Object) Equal(p *Object) bool {
	if o.Len() != p.Len() {
		return false
	}
	for i, k := range o.Keys() {
		if p.keys[i] != k {
			return false
		}
		a, _ := o.Get(k)
		b, _ := p.Get(k)
		if !valueEqual(a, b) {
			return false
		}
	}
	return true
}

func valueEqual(a, b any) bool {
	switch x := a.(type) {
	case *Object:
		y, ok := b.(*Object)
		return ok && x.Equal(y)
	case []any:
		y, ok := b.([]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !valueEqual(x[i], y[i]) {
				return false
			}
		}
		return true
	default:
		return reflect.DeepEqual(a, b)
	}
}

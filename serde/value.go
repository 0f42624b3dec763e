package serde

/*
 * value.go - kwargs 普通值的线上规整
 *
 * 嵌套结构体按字段名展开为对象，名称规则在编码与解码两侧一致：
 *
 *	serde 标签名 > json 标签名 > Go 字段名
 *
 * serde:"-" 或仅有 json:"-" 的字段不参与编码；任一标签带 omitempty 时零值被省略。
 */

import (
	"encoding"
	"encoding/json"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"sync"

	"github.com/mitchellh/mapstructure"

	"github.com/favbox/chainkit/internal/generic"
)

const maxValueDepth = 64

var (
	jsonMarshalerType = generic.TypeOf[json.Marshaler]()
	textMarshalerType = generic.TypeOf[encoding.TextMarshaler]()
	renameCache       sync.Map // reflect.Type -> map[string]string
)

// wireValue 把普通字段值规整为可直接编码的结构。
// 值内部出现可序列化对象时返回错误：它只能由字段直接持有，才会被提升为构造节点。
func wireValue(v reflect.Value) (any, error) {
	return toWire(v, 0)
}

// wireValueOf 同 wireValue，先复制到可寻址的值上，使指针接收者的编码方法可见。
func wireValueOf(val any) (any, error) {
	if val == nil {
		return nil, nil
	}
	rv := reflect.New(reflect.TypeOf(val)).Elem()
	rv.Set(reflect.ValueOf(val))
	return toWire(rv, 0)
}

func toWire(v reflect.Value, depth int) (any, error) {
	if depth > maxValueDepth {
		return nil, fmt.Errorf("value nested deeper than %d levels", maxValueDepth)
	}
	if !v.IsValid() {
		return nil, nil
	}
	switch v.Kind() {
	case reflect.Interface, reflect.Ptr, reflect.Map, reflect.Slice:
		if v.IsNil() {
			return nil, nil
		}
	}
	if s, ok := asSerializable(v); ok {
		return nil, fmt.Errorf("nested %T must be held directly by a tagged field", s)
	}
	if t := v.Type(); t.Implements(jsonMarshalerType) || t.Implements(textMarshalerType) {
		return v.Interface(), nil
	}
	if pt := reflect.PointerTo(v.Type()); v.CanAddr() && (pt.Implements(jsonMarshalerType) || pt.Implements(textMarshalerType)) {
		return v.Addr().Interface(), nil
	}

	switch v.Kind() {
	case reflect.Interface, reflect.Ptr:
		return toWire(v.Elem(), depth+1)
	case reflect.Struct:
		return structToWire(v, depth)
	case reflect.Slice:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return v.Interface(), nil
		}
		return listToWire(v, depth)
	case reflect.Array:
		return listToWire(v, depth)
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			iter := v.MapRange()
			for iter.Next() {
				if _, err := toWire(iter.Value(), depth+1); err != nil {
					return nil, err
				}
			}
			return v.Interface(), nil
		}
		out := make(map[string]any, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			w, err := toWire(iter.Value(), depth+1)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", iter.Key().String(), err)
			}
			out[iter.Key().String()] = w
		}
		return out, nil
	default:
		return v.Interface(), nil
	}
}

func listToWire(v reflect.Value, depth int) (any, error) {
	out := make([]any, v.Len())
	for i := range out {
		w, err := toWire(v.Index(i), depth+1)
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		out[i] = w
	}
	return out, nil
}

func structToWire(v reflect.Value, depth int) (any, error) {
	t := v.Type()
	out := make(map[string]any, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		name, omitEmpty, ok := nestedFieldName(sf)
		if !ok {
			continue
		}
		fv := v.Field(i)
		if omitEmpty && fv.IsZero() {
			continue
		}
		w, err := toWire(fv, depth+1)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		out[name] = w
	}
	return out, nil
}

// nestedFieldName 嵌套结构体字段的线上名称，ok 为 false 表示字段不参与编码。
func nestedFieldName(sf reflect.StructField) (name string, omitEmpty, ok bool) {
	if tag, has := sf.Tag.Lookup("serde"); has {
		if tag == "-" {
			return "", false, false
		}
		spec := parseTag(tag)
		name, omitEmpty = spec.name, spec.omitEmpty
	}
	if tag, has := sf.Tag.Lookup("json"); has {
		parts := strings.Split(tag, ",")
		if parts[0] == "-" && len(parts) == 1 && name == "" {
			return "", false, false
		}
		if name == "" && parts[0] != "-" {
			name = parts[0]
		}
		omitEmpty = omitEmpty || slices.Contains(parts[1:], "omitempty")
	}
	if name == "" {
		name = sf.Name
	}
	return name, omitEmpty, true
}

// ====== 解码侧 ======

// wireNamesHook 把嵌套结构体对象中的线上名称还原为 mapstructure 按 serde 标签匹配的名称。
func wireNamesHook() mapstructure.DecodeHookFuncType {
	return func(_ reflect.Type, to reflect.Type, data any) (any, error) {
		m, ok := data.(map[string]any)
		if !ok || to.Kind() != reflect.Struct {
			return data, nil
		}
		renames := nestedRenames(to)
		if len(renames) == 0 {
			return data, nil
		}
		out := make(map[string]any, len(m))
		for k, val := range m {
			if target, ok := renames[k]; ok {
				k = target
			}
			out[k] = val
		}
		return out, nil
	}
}

// nestedRenames 线上名称 -> mapstructure 字段名，只包含两者不同的字段。
func nestedRenames(t reflect.Type) map[string]string {
	if cached, ok := renameCache.Load(t); ok {
		return cached.(map[string]string)
	}
	renames := make(map[string]string)
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		wire, _, ok := nestedFieldName(sf)
		if !ok {
			continue
		}
		decoded := sf.Name
		if tag := parseTag(sf.Tag.Get("serde")); tag.name != "" {
			decoded = tag.name
		}
		if wire != decoded {
			renames[wire] = decoded
		}
	}
	actual, _ := renameCache.LoadOrStore(t, renames)
	return actual.(map[string]string)
}

package serde

import (
	"context"
	"fmt"
	"reflect"
	"sort"

	"github.com/mitchellh/mapstructure"

	"github.com/favbox/chainkit/internal/generic"
	"github.com/favbox/chainkit/schema"
)

// Decode 把重组后的字段解码到结构体指针 out 中。
// 线上别名按 out 类型的 serde 标签还原为字段名，未知字段（包括嵌套结构体中的）返回 ValidationError。
func Decode(fields Fields, out any) error {
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return fmt.Errorf("decode target must be a non-nil pointer, got %T", out)
	}
	elem := generic.Deref(rv)
	if !elem.IsValid() || elem.Kind() != reflect.Struct {
		return fmt.Errorf("decode target must point to a struct, got %T", out)
	}

	specs := fieldsOf(elem.Type())
	byWire := make(map[string]fieldSpec, len(specs))
	byName := make(map[string]fieldSpec, len(specs))
	for _, spec := range specs {
		byWire[spec.wireName()] = spec
		byWire[spec.name] = spec
		byName[spec.name] = spec
	}
	if ao, ok := out.(AliasesOverrider); ok {
		for name, wire := range ao.SerdeAliases() {
			if spec, ok := byName[name]; ok {
				byWire[wire] = spec
			}
		}
	}

	input := make(map[string]any, len(fields))
	var unknown []string
	for k, v := range fields {
		spec, ok := byWire[k]
		if !ok {
			unknown = append(unknown, k)
			continue
		}
		input[spec.name] = v
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return schema.NewValidationError(unknown[0], "unknown field for %s", elem.Type().Name())
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:     "serde",
		Result:      out,
		ErrorUnused: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.TextUnmarshallerHookFunc(),
			mapstructure.StringToTimeDurationHookFunc(),
			wireNamesHook(),
		),
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(input); err != nil {
		return schema.NewValidationError("", "%v", err)
	}
	return nil
}

// StructFactory 返回解码到 *T 的构造函数。*T 必须实现 Serializable，
// 若实现了 Initializer，解码后调用 SerdeInit。
func StructFactory[T any]() Factory {
	return func(ctx context.Context, fields Fields) (Serializable, error) {
		out := new(T)
		if err := Decode(fields, out); err != nil {
			return nil, err
		}
		if in, ok := any(out).(Initializer); ok {
			if err := in.SerdeInit(); err != nil {
				return nil, err
			}
		}
		s, ok := any(out).(Serializable)
		if !ok {
			return nil, fmt.Errorf("%T does not implement Serializable", out)
		}
		return s, nil
	}
}

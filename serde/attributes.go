package serde

/*
 * attributes.go - 属性捕获：从实例的结构体标签与钩子接口中提取构造字段
 *
 * 核心组件：
 *   - Serializable: 可序列化类型的最小契约（命名空间标识）
 *   - SecretsOverrider / AliasesOverrider / KwargsSelector: 可选的覆盖钩子
 *   - Attributes: kwargs、secrets、aliases、metadata 四张映射的快照
 *   - GetAttributes / Validate: 遍历实例并校验密钥标识符
 *
 * 标签语法：
 *
 *	serde:"<name>[,alias=<wire>][,secret=<ENV>][,omitempty]"
 *
 * 未打标签的字段不参与捕获；值本身可序列化（或由其组成的切片、映射）的字段
 * 被提升到 metadata.callables，而不是内联到 kwargs。静态类型为接口的字段按当前值判断。
 * 普通字段中更深层嵌套的可序列化值会被拒绝，避免其密钥随 kwargs 明文写出。
 */

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/favbox/chainkit/internal/generic"
	"github.com/favbox/chainkit/schema"
)

// ====== 契约与钩子 ======

// Serializable 可序列化类型的契约。
// 实现者通常是结构体指针，通过 serde 标签声明构造字段。
type Serializable interface {
	SerdeID() ID
}

// SecretsOverrider 覆盖（合并到）标签中声明的密钥字段：字段名 -> 环境变量名。
type SecretsOverrider interface {
	SerdeSecrets() map[string]string
}

// AliasesOverrider 覆盖（合并到）标签中声明的别名：字段名 -> 线上字段名。
type AliasesOverrider interface {
	SerdeAliases() map[string]string
}

// KwargsSelector 限定哪些字段是规范的构造字段，未列出的字段不被捕获。
type KwargsSelector interface {
	SerdeKwargs() []string
}

// Initializer 在 Decode 完成后调用，用于校验与补齐运行时默认值。
type Initializer interface {
	SerdeInit() error
}

// ====== 属性快照 ======

// Attributes 实例构造状态的快照，与线上编码无关。
type Attributes struct {
	// Kwargs 普通构造字段：字段名 -> 当前值
	Kwargs map[string]any
	// Secrets 密钥字段：字段名 -> 环境变量名
	Secrets map[string]string
	// Aliases 重命名字段：字段名 -> 线上字段名
	Aliases map[string]string
	// Metadata 类型标签与嵌套的可序列化对象
	Metadata Metadata
}

// Metadata 属性中的元信息。
type Metadata struct {
	// Type 注册的类型名
	Type string
	// Callables 字段名 -> Serializable | []Serializable | map[string]Serializable
	Callables map[string]any
}

// WireName 返回字段在线上使用的名称。
func (a *Attributes) WireName(field string) string {
	if alias, ok := a.Aliases[field]; ok && alias != "" {
		return alias
	}
	return field
}

// secretIDPattern 密钥标识符必须是大写的环境变量风格名称。
var secretIDPattern = regexp.MustCompile(`^[A-Z][A-Z0-9_]*$`)

// GetAttributes 遍历实例，计算其属性快照。
// 快照是当前字段值的纯函数，不修改实例。
func GetAttributes(v Serializable) (*Attributes, error) {
	if v == nil {
		return nil, schema.NewValidationError("", "nil serializable")
	}
	id := v.SerdeID()
	if err := id.Validate(); err != nil {
		return nil, err
	}

	rv := generic.Deref(reflect.ValueOf(v))
	attrs := &Attributes{
		Kwargs:   map[string]any{},
		Secrets:  map[string]string{},
		Aliases:  map[string]string{},
		Metadata: Metadata{Type: id.Name(), Callables: map[string]any{}},
	}
	if !rv.IsValid() {
		return nil, schema.NewValidationError("", "nil %T", v)
	}
	if rv.Kind() != reflect.Struct {
		return attrs, nil
	}

	specs := fieldsOf(rv.Type())
	selected := selectedFields(v)

	for _, spec := range specs {
		if selected != nil && !selected[spec.name] {
			continue
		}
		if spec.alias != "" {
			attrs.Aliases[spec.name] = spec.alias
		}
		if spec.secret != "" {
			attrs.Secrets[spec.name] = spec.secret
			continue
		}

		fv := rv.FieldByIndex(spec.index)
		if spec.callable {
			if c, ok := liftCallables(fv); ok {
				attrs.Metadata.Callables[spec.name] = c
			}
			continue
		}
		if spec.dynamic {
			c, ok, err := liftDynamic(fv)
			if err != nil {
				return nil, schema.NewValidationError(spec.name, "%v", err)
			}
			if ok {
				attrs.Metadata.Callables[spec.name] = c
				continue
			}
		}
		if spec.omitEmpty && fv.IsZero() {
			continue
		}
		if _, err := wireValue(fv); err != nil {
			return nil, schema.NewValidationError(spec.name, "%v", err)
		}
		attrs.Kwargs[spec.name] = fv.Interface()
	}

	if o, ok := v.(SecretsOverrider); ok {
		for name, env := range o.SerdeSecrets() {
			delete(attrs.Kwargs, name)
			attrs.Secrets[name] = env
		}
	}
	if o, ok := v.(AliasesOverrider); ok {
		for name, wire := range o.SerdeAliases() {
			attrs.Aliases[name] = wire
		}
	}

	for name, env := range attrs.Secrets {
		if !secretIDPattern.MatchString(env) {
			return nil, schema.NewValidationError(name,
				"secret identifier %q must be upper-case and contain no whitespace", env)
		}
	}
	return attrs, nil
}

// Validate 在构造时执行与 GetAttributes 相同的检查，并递归校验嵌套对象。
func Validate(v Serializable) error {
	attrs, err := GetAttributes(v)
	if err != nil {
		return err
	}
	for _, c := range attrs.Metadata.Callables {
		for _, nested := range flattenCallables(c) {
			if err := Validate(nested); err != nil {
				return err
			}
		}
	}
	return nil
}

func selectedFields(v Serializable) map[string]bool {
	ks, ok := v.(KwargsSelector)
	if !ok {
		return nil
	}
	selected := make(map[string]bool)
	for _, name := range ks.SerdeKwargs() {
		selected[name] = true
	}
	return selected
}

// ====== 字段描述与缓存 ======

type fieldSpec struct {
	index     []int
	name      string
	alias     string
	secret    string
	omitEmpty bool
	// callable 字段静态类型是 Serializable 或其切片、字符串映射
	callable bool
	// dynamic 字段静态类型是接口或接口的切片、字符串映射，需按当前值判断
	dynamic bool
}

// wireName 字段在线上的名称。
func (f fieldSpec) wireName() string {
	if f.alias != "" {
		return f.alias
	}
	return f.name
}

var (
	serializableType = generic.TypeOf[Serializable]()
	fieldCache       sync.Map // reflect.Type -> []fieldSpec
)

func fieldsOf(t reflect.Type) []fieldSpec {
	if cached, ok := fieldCache.Load(t); ok {
		return cached.([]fieldSpec)
	}

	specs := make([]fieldSpec, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		tag, ok := sf.Tag.Lookup("serde")
		if !ok || tag == "-" || !sf.IsExported() {
			continue
		}
		spec := parseTag(tag)
		if spec.name == "" {
			spec.name = sf.Name
		}
		spec.index = sf.Index
		spec.callable = isCallableType(sf.Type)
		spec.dynamic = !spec.callable && isDynamicType(sf.Type)
		specs = append(specs, spec)
	}

	actual, _ := fieldCache.LoadOrStore(t, specs)
	return actual.([]fieldSpec)
}

func parseTag(tag string) fieldSpec {
	parts := strings.Split(tag, ",")
	spec := fieldSpec{name: strings.TrimSpace(parts[0])}
	for _, p := range parts[1:] {
		p = strings.TrimSpace(p)
		switch {
		case p == "omitempty":
			spec.omitEmpty = true
		case strings.HasPrefix(p, "alias="):
			spec.alias = strings.TrimPrefix(p, "alias=")
		case strings.HasPrefix(p, "secret="):
			spec.secret = strings.TrimPrefix(p, "secret=")
		}
	}
	return spec
}

func isCallableType(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Slice, reflect.Array:
		return implementsSerializable(t.Elem())
	case reflect.Map:
		return t.Key().Kind() == reflect.String && implementsSerializable(t.Elem())
	default:
		return implementsSerializable(t)
	}
}

func isDynamicType(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Slice, reflect.Array:
		return t.Elem().Kind() == reflect.Interface
	case reflect.Map:
		return t.Key().Kind() == reflect.String && t.Elem().Kind() == reflect.Interface
	default:
		return t.Kind() == reflect.Interface
	}
}

func implementsSerializable(t reflect.Type) bool {
	if t.Kind() != reflect.Interface && t.Kind() != reflect.Ptr {
		return false
	}
	return t.Implements(serializableType)
}

// liftCallables 把字段值转换为 Serializable、[]Serializable 或 map[string]Serializable。
// 单个 nil 值返回 false；nil 切片与空切片都视为空列表。
func liftCallables(fv reflect.Value) (any, bool) {
	switch fv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]Serializable, 0, fv.Len())
		for i := 0; i < fv.Len(); i++ {
			if s, ok := asSerializable(fv.Index(i)); ok {
				out = append(out, s)
			}
		}
		return out, true
	case reflect.Map:
		out := make(map[string]Serializable, fv.Len())
		iter := fv.MapRange()
		for iter.Next() {
			if s, ok := asSerializable(iter.Value()); ok {
				out[iter.Key().String()] = s
			}
		}
		return out, true
	default:
		return asSerializable(fv)
	}
}

// liftDynamic 按当前值提升接口类型的字段。
// 容器中的非 nil 元素必须全部可序列化或全部不可序列化，混合时返回错误。
func liftDynamic(fv reflect.Value) (any, bool, error) {
	switch fv.Kind() {
	case reflect.Interface:
		s, ok := asSerializable(fv)
		return s, ok, nil
	case reflect.Slice, reflect.Array:
		var plain, lifted int
		for i := 0; i < fv.Len(); i++ {
			countElem(fv.Index(i), &plain, &lifted)
		}
		if err := checkMixed(plain, lifted); err != nil || lifted == 0 {
			return nil, false, err
		}
		c, ok := liftCallables(fv)
		return c, ok, nil
	case reflect.Map:
		var plain, lifted int
		iter := fv.MapRange()
		for iter.Next() {
			countElem(iter.Value(), &plain, &lifted)
		}
		if err := checkMixed(plain, lifted); err != nil || lifted == 0 {
			return nil, false, err
		}
		c, ok := liftCallables(fv)
		return c, ok, nil
	default:
		return nil, false, nil
	}
}

func countElem(v reflect.Value, plain, lifted *int) {
	if v.IsNil() {
		return
	}
	if _, ok := asSerializable(v); ok {
		*lifted++
	} else {
		*plain++
	}
}

func checkMixed(plain, lifted int) error {
	if plain > 0 && lifted > 0 {
		return fmt.Errorf("container mixes serializable and plain values")
	}
	return nil
}

func asSerializable(v reflect.Value) (Serializable, bool) {
	if !v.IsValid() || ((v.Kind() == reflect.Interface || v.Kind() == reflect.Ptr) && v.IsNil()) {
		return nil, false
	}
	s, ok := v.Interface().(Serializable)
	return s, ok
}

func flattenCallables(c any) []Serializable {
	switch cv := c.(type) {
	case Serializable:
		return []Serializable{cv}
	case []Serializable:
		return cv
	case map[string]Serializable:
		out := make([]Serializable, 0, len(cv))
		for _, s := range cv {
			out = append(out, s)
		}
		return out
	default:
		panic(fmt.Sprintf("unexpected callable container %T", c))
	}
}

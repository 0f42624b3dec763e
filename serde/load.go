package serde

/*
 * load.go - 加载引擎：由序列化构造树、密钥表与注册表重建对象图
 *
 * 算法：
 *   1. 解析文本为通用树
 *   2. 对每个构造器节点，先内置注册表、后可选导入表解析构造函数，找不到返回 ImportError
 *   3. kwargs 深度优先处理：密钥节点替换为密钥表中的值（缺失时不设置该字段），
 *      嵌套构造器节点先递归加载，其余值原样保留
 *   4. 以重组后的字段调用构造函数
 *
 * 性质：在相同密钥下，Serialize(Load(text)) == text。
 */

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/favbox/chainkit/internal/logging"
	"github.com/favbox/chainkit/schema"
)

// LoadOption 加载选项。
type LoadOption func(*loadOptions)

type loadOptions struct {
	registry *Registry
	imports  ImportMap
}

// WithRegistry 使用指定注册表替代进程级默认注册表。
func WithRegistry(r *Registry) LoadOption {
	return func(o *loadOptions) {
		o.registry = r
	}
}

// WithOptionalImports 指定可选导入表，内置注册表未命中时查找。
func WithOptionalImports(m ImportMap) LoadOption {
	return func(o *loadOptions) {
		o.imports = m
	}
}

// Load 解析序列化文本并重建实例。
func Load(ctx context.Context, text string, secrets map[string]string, opts ...LoadOption) (Serializable, error) {
	node, err := Unmarshal(text)
	if err != nil {
		return nil, err
	}
	return LoadTree(ctx, node, secrets, opts...)
}

// LoadAs 加载并断言为具体类型。
func LoadAs[T any](ctx context.Context, text string, secrets map[string]string, opts ...LoadOption) (T, error) {
	var zero T
	v, err := Load(ctx, text, secrets, opts...)
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("loaded %T is not %T", v, zero)
	}
	return t, nil
}

// LoadTree 从已解析的通用树重建实例，根节点必须是构造器节点。
func LoadTree(ctx context.Context, node any, secrets map[string]string, opts ...LoadOption) (Serializable, error) {
	o := &loadOptions{registry: Default()}
	for _, opt := range opts {
		opt(o)
	}

	l := &loader{opts: o, secrets: secrets}
	m, ok := node.(map[string]any)
	if !ok || !isNode(m, NodeConstructor) {
		return nil, fmt.Errorf("root is not a serialized constructor")
	}
	return l.construct(ctx, m)
}

type loader struct {
	opts    *loadOptions
	secrets map[string]string
}

// revive 递归处理任意值，第二个返回值为 false 表示该值应被省略（缺失的密钥）。
func (l *loader) revive(ctx context.Context, v any) (any, bool, error) {
	switch tv := v.(type) {
	case map[string]any:
		if isNode(tv, NodeSecret) {
			return l.secret(ctx, tv)
		}
		if isNode(tv, NodeConstructor) {
			inst, err := l.construct(ctx, tv)
			return inst, err == nil, err
		}
		out := make(map[string]any, len(tv))
		for k, item := range tv {
			rv, ok, err := l.revive(ctx, item)
			if err != nil {
				return nil, false, err
			}
			if ok {
				out[k] = rv
			}
		}
		return out, true, nil
	case []any:
		out := make([]any, 0, len(tv))
		for _, item := range tv {
			rv, ok, err := l.revive(ctx, item)
			if err != nil {
				return nil, false, err
			}
			if ok {
				out = append(out, rv)
			}
		}
		return out, true, nil
	default:
		return v, true, nil
	}
}

func (l *loader) secret(ctx context.Context, m map[string]any) (any, bool, error) {
	id, err := parseID(m["id"])
	if err != nil || len(id) != 1 {
		return nil, false, schema.NewValidationError("id", "malformed secret node")
	}
	env := id[0]
	val, ok := l.secrets[env]
	if !ok {
		logging.FromContext(ctx).Debug("secret not supplied", "secret", env)
		return nil, false, nil
	}
	logging.FromContext(ctx).Debug("secret substituted", "secret", env)
	return val, true, nil
}

func (l *loader) construct(ctx context.Context, m map[string]any) (Serializable, error) {
	if err := schema.CheckAbort(ctx); err != nil {
		return nil, err
	}

	id, err := parseID(m["id"])
	if err != nil {
		return nil, err
	}
	factory, err := resolve(l.opts.registry, l.opts.imports, id)
	if err != nil {
		logging.FromContext(ctx).Debug("constructor not resolved", "id", id.Key())
		return nil, err
	}

	fields := Fields{}
	if raw, ok := m["kwargs"]; ok && raw != nil {
		kwargs, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("kwargs of %v must be an object, got %T", id, raw)
		}
		for k, v := range kwargs {
			rv, keep, err := l.revive(ctx, v)
			if err != nil {
				return nil, err
			}
			if keep {
				fields[k] = rv
			}
		}
	}

	inst, err := factory(ctx, fields)
	if err != nil {
		return nil, fmt.Errorf("construct %v: %w", id, err)
	}
	return inst, nil
}

// isNode 判断通用对象是否为指定类型的线上节点。
func isNode(m map[string]any, typ string) bool {
	if t, ok := m["type"].(string); !ok || t != typ {
		return false
	}
	if _, ok := m["id"]; !ok {
		return false
	}
	switch g := m["grp"].(type) {
	case json.Number:
		return g.String() == "1"
	case float64:
		return g == Version
	case int:
		return g == Version
	default:
		return false
	}
}

package prompt

/*
 * prompt.go - 字符串提示模板
 *
 * PromptTemplate 是一个可序列化的 Callable：输入变量映射，输出渲染后的字符串。
 * 支持 f-string（pyfmt）、Go text/template 与 Jinja2（gonja）三种格式。
 */

import (
	"context"
	"fmt"
	"slices"

	"github.com/eino-contrib/jsonschema"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/favbox/chainkit/compose"
	"github.com/favbox/chainkit/internal/gmap"
	"github.com/favbox/chainkit/schema"
	"github.com/favbox/chainkit/serde"
)

// ID 注册标识。
var ID = serde.ID{"record", "prompts", "PromptTemplate"}

func init() {
	serde.Default().MustRegister(ID, serde.StructFactory[PromptTemplate]())
}

// PromptTemplate 字符串提示模板。
type PromptTemplate struct {
	Template         string            `serde:"template"`
	InputVariables   []string          `serde:"input_variables"`
	TemplateFormat   schema.FormatType `serde:"template_format"`
	PartialVariables map[string]any    `serde:"partial_variables,omitempty"`
}

// Option 创建模板的选项。
type Option func(*PromptTemplate)

// WithInputVariables 显式指定输入变量，覆盖自动推断的结果。
func WithInputVariables(vars ...string) Option {
	return func(p *PromptTemplate) {
		p.InputVariables = vars
	}
}

// WithPartialVariables 预先填充部分变量，这些变量不再是必需输入。
func WithPartialVariables(vs map[string]any) Option {
	return func(p *PromptTemplate) {
		p.PartialVariables = gmap.Concat(p.PartialVariables, vs)
	}
}

// NewPromptTemplate 创建模板。未显式指定输入变量时从模板中推断（Jinja2 除外），
// 推断结果去掉已预填的变量。
func NewPromptTemplate(template string, format schema.FormatType, opts ...Option) (*PromptTemplate, error) {
	p := &PromptTemplate{Template: template, TemplateFormat: format}
	for _, opt := range opts {
		opt(p)
	}

	if p.InputVariables == nil {
		vars, err := inferVariables(template, format)
		if err != nil {
			return nil, err
		}
		p.InputVariables = slices.DeleteFunc(vars, func(v string) bool {
			_, ok := p.PartialVariables[v]
			return ok
		})
	}
	if err := p.SerdeInit(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *PromptTemplate) SerdeID() serde.ID { return ID }

// SerdeInit 校验模板格式与模板内容。
func (p *PromptTemplate) SerdeInit() error {
	switch p.TemplateFormat {
	case schema.FString, schema.GoTemplate, schema.Jinja2:
	default:
		return schema.NewValidationError("template_format", "unsupported format %d", p.TemplateFormat)
	}
	if p.Template == "" {
		return schema.NewValidationError("template", "template must not be empty")
	}
	return nil
}

// Format 合并预填变量与 vs 后渲染模板，缺少任何输入变量时返回错误。
func (p *PromptTemplate) Format(vs map[string]any) (string, error) {
	all := gmap.Concat(p.PartialVariables, vs)
	for _, name := range p.InputVariables {
		if _, ok := all[name]; !ok {
			return "", fmt.Errorf("prompt template: missing variable %q", name)
		}
	}
	return schema.FormatContent(p.Template, all, p.TemplateFormat)
}

// Invoke 输入为 map[string]any；只有一个输入变量时也可以直接传入该变量的值。
func (p *PromptTemplate) Invoke(ctx context.Context, input any, opts ...compose.Option) (any, error) {
	return compose.RunInvoke(ctx, ID.Name(), compose.GetConfig(opts...), input, func(context.Context) (any, error) {
		vs, err := p.variables(input)
		if err != nil {
			return nil, err
		}
		return p.Format(vs)
	})
}

func (p *PromptTemplate) Stream(ctx context.Context, input any, opts ...compose.Option) (*schema.StreamReader[any], error) {
	out, err := p.Invoke(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]any{out}), nil
}

func (p *PromptTemplate) variables(input any) (map[string]any, error) {
	switch v := input.(type) {
	case map[string]any:
		return v, nil
	case map[string]string:
		vs := make(map[string]any, len(v))
		for k, s := range v {
			vs[k] = s
		}
		return vs, nil
	default:
		if len(p.InputVariables) == 1 {
			return map[string]any{p.InputVariables[0]: input}, nil
		}
		return nil, fmt.Errorf("prompt template: expected map[string]any input, got %T", input)
	}
}

// InputSchema 返回输入变量的 JSON Schema：输入变量为必填，预填变量带默认值。
func (p *PromptTemplate) InputSchema() *jsonschema.Schema {
	props := orderedmap.New[string, *jsonschema.Schema]()
	for _, name := range p.InputVariables {
		props.Set(name, &jsonschema.Schema{Type: "string"})
	}
	for _, name := range gmap.SortedKeys(p.PartialVariables) {
		if _, ok := props.Get(name); ok {
			continue
		}
		props.Set(name, &jsonschema.Schema{Type: "string", Default: p.PartialVariables[name]})
	}

	return &jsonschema.Schema{
		Type:       "object",
		Title:      ID.Name(),
		Properties: props,
		Required:   slices.Clone(p.InputVariables),
	}
}

var (
	_ compose.Callable   = (*PromptTemplate)(nil)
	_ serde.Initializer = (*PromptTemplate)(nil)
)

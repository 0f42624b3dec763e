package model

/*
 * chat_model.go - 对话模型 Callable
 *
 * ChatModel 序列化时只保存请求参数，API Key 以密钥占位节点输出。
 * Transport 与 Caller 是运行时依赖，不参与序列化：
 *   - 直接构造时通过 WithTransport / WithCaller 指定
 *   - 加载时从 ctx 中读取（WithDefaultTransport / WithDefaultCaller）
 */

import (
	"context"
	"errors"
	"fmt"

	"github.com/favbox/chainkit/caller"
	"github.com/favbox/chainkit/compose"
	"github.com/favbox/chainkit/schema"
	"github.com/favbox/chainkit/serde"
)

// ID 注册标识。
var ID = serde.ID{"record", "chat_models", "ChatModel"}

// ErrNoTransport 模型未配置 Transport。
var ErrNoTransport = errors.New("chat model has no transport")

func init() {
	serde.Default().MustRegister(ID, factory)
}

// ChatModel 对话模型。
type ChatModel struct {
	ModelName   string  `serde:"model_name,alias=model"`
	Temperature float64 `serde:"temperature,omitempty"`
	MaxTokens   int     `serde:"max_tokens,omitempty"`
	APIKey      string  `serde:"api_key,secret=CHAT_MODEL_API_KEY"`
	BaseURL     string  `serde:"base_url,omitempty"`

	transport Transport
	caller    *caller.Caller
}

// Option 创建模型的选项。
type Option func(*ChatModel)

// WithTransport 指定发送请求的 Transport。
func WithTransport(t Transport) Option {
	return func(m *ChatModel) {
		m.transport = t
	}
}

// WithCaller 指定重试调用器，未指定时使用默认策略的调用器。
func WithCaller(c *caller.Caller) Option {
	return func(m *ChatModel) {
		m.caller = c
	}
}

// WithTemperature 采样温度。
func WithTemperature(t float64) Option {
	return func(m *ChatModel) {
		m.Temperature = t
	}
}

// WithMaxTokens 最大生成 token 数。
func WithMaxTokens(n int) Option {
	return func(m *ChatModel) {
		m.MaxTokens = n
	}
}

// WithAPIKey 显式指定 API Key，未指定时读取环境变量 CHAT_MODEL_API_KEY。
func WithAPIKey(key string) Option {
	return func(m *ChatModel) {
		m.APIKey = key
	}
}

// WithBaseURL 提供方地址。
func WithBaseURL(url string) Option {
	return func(m *ChatModel) {
		m.BaseURL = url
	}
}

// NewChatModel 创建对话模型。
func NewChatModel(modelName string, opts ...Option) (*ChatModel, error) {
	m := &ChatModel{ModelName: modelName}
	for _, opt := range opts {
		opt(m)
	}
	serde.FillSecretsFromEnv(m)

	if err := m.SerdeInit(); err != nil {
		return nil, err
	}
	if err := serde.Validate(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *ChatModel) SerdeID() serde.ID { return ID }

// SerdeInit 校验参数并补齐运行时默认值。
func (m *ChatModel) SerdeInit() error {
	if m.ModelName == "" {
		return schema.NewValidationError("model_name", "model name must not be empty")
	}
	if m.Temperature < 0 {
		return schema.NewValidationError("temperature", "must not be negative, got %v", m.Temperature)
	}
	if m.MaxTokens < 0 {
		return schema.NewValidationError("max_tokens", "must not be negative, got %d", m.MaxTokens)
	}
	if m.caller == nil {
		m.caller = caller.New(caller.WithName(m.ModelName))
	}
	return nil
}

// Generate 发送消息并返回模型回复，失败时按调用器策略重试。
func (m *ChatModel) Generate(ctx context.Context, msgs []*schema.Message) (*schema.Message, error) {
	if m.transport == nil {
		return nil, ErrNoTransport
	}
	req := m.request(msgs)
	return caller.Do(ctx, m.caller, func(ctx context.Context) (*schema.Message, error) {
		return m.transport.Generate(ctx, req)
	})
}

// StreamMessages 流式生成。只有建立流的过程会重试，流建立后的错误原样传给读取方。
func (m *ChatModel) StreamMessages(ctx context.Context, msgs []*schema.Message) (*schema.StreamReader[*schema.Message], error) {
	if m.transport == nil {
		return nil, ErrNoTransport
	}
	req := m.request(msgs)
	return caller.Do(ctx, m.caller, func(ctx context.Context) (*schema.StreamReader[*schema.Message], error) {
		return m.transport.Stream(ctx, req)
	})
}

// Invoke 输入为 string、*schema.Message 或 []*schema.Message，输出 *schema.Message。
func (m *ChatModel) Invoke(ctx context.Context, input any, opts ...compose.Option) (any, error) {
	return compose.RunInvoke(ctx, ID.Name(), m.config(opts), input, func(ctx context.Context) (any, error) {
		msgs, err := toMessages(input)
		if err != nil {
			return nil, err
		}
		return m.Generate(ctx, msgs)
	})
}

// Stream 输出的每个数据块都是 *schema.Message。
func (m *ChatModel) Stream(ctx context.Context, input any, opts ...compose.Option) (*schema.StreamReader[any], error) {
	return compose.RunStream(ctx, ID.Name(), m.config(opts), input, func(ctx context.Context) (*schema.StreamReader[any], error) {
		msgs, err := toMessages(input)
		if err != nil {
			return nil, err
		}
		sr, err := m.StreamMessages(ctx, msgs)
		if err != nil {
			return nil, err
		}
		return schema.StreamReaderWithConvert(sr, func(msg *schema.Message) (any, error) {
			return msg, nil
		}), nil
	})
}

func (m *ChatModel) config(opts []compose.Option) compose.Config {
	cfg := compose.GetConfig(opts...)
	if cfg.RunName == "" {
		cfg.RunName = m.ModelName
	}
	return cfg
}

func (m *ChatModel) request(msgs []*schema.Message) *Request {
	return &Request{
		Model:       m.ModelName,
		Messages:    msgs,
		Temperature: m.Temperature,
		MaxTokens:   m.MaxTokens,
		APIKey:      m.APIKey,
		BaseURL:     m.BaseURL,
	}
}

func toMessages(input any) ([]*schema.Message, error) {
	switch v := input.(type) {
	case string:
		return []*schema.Message{schema.UserMessage(v)}, nil
	case *schema.Message:
		return []*schema.Message{v}, nil
	case []*schema.Message:
		return v, nil
	case []any:
		msgs := make([]*schema.Message, 0, len(v))
		for i, item := range v {
			msg, ok := item.(*schema.Message)
			if !ok {
				return nil, fmt.Errorf("chat model: input[%d] is %T, want *schema.Message", i, item)
			}
			msgs = append(msgs, msg)
		}
		return msgs, nil
	default:
		return nil, fmt.Errorf("chat model: unsupported input %T", input)
	}
}

// ====== 加载时的运行时依赖 ======

type transportKey struct{}

type callerKey struct{}

// WithDefaultTransport 加载 ChatModel 时使用的 Transport。
func WithDefaultTransport(ctx context.Context, t Transport) context.Context {
	return context.WithValue(ctx, transportKey{}, t)
}

// WithDefaultCaller 加载 ChatModel 时使用的调用器。
func WithDefaultCaller(ctx context.Context, c *caller.Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

func factory(ctx context.Context, fields serde.Fields) (serde.Serializable, error) {
	m := &ChatModel{}
	if err := serde.Decode(fields, m); err != nil {
		return nil, err
	}
	if t, ok := ctx.Value(transportKey{}).(Transport); ok {
		m.transport = t
	}
	if c, ok := ctx.Value(callerKey{}).(*caller.Caller); ok {
		m.caller = c
	}
	if err := m.SerdeInit(); err != nil {
		return nil, err
	}
	return m, nil
}

var (
	_ compose.Callable  = (*ChatModel)(nil)
	_ serde.Initializer = (*ChatModel)(nil)
)

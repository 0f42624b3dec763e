package model

import (
	"context"

	"github.com/favbox/chainkit/schema"
)

// Request 一次对话请求，由 ChatModel 的字段与输入消息组成。
type Request struct {
	Model       string
	Messages    []*schema.Message
	Temperature float64
	MaxTokens   int
	APIKey      string
	BaseURL     string
}

// Transport 负责把请求发送给模型提供方。
// ChatModel 只定义请求内容与重试策略，具体的网络协议由 Transport 实现。
//
//go:generate mockgen -destination ../../internal/mock/components/model/transport_mock.go --package model -source interface.go
type Transport interface {
	Generate(ctx context.Context, req *Request) (*schema.Message, error)
	Stream(ctx context.Context, req *Request) (*schema.StreamReader[*schema.Message], error)
}

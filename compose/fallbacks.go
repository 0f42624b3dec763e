package compose

import (
	"context"

	"github.com/favbox/chainkit/internal/logging"
	"github.com/favbox/chainkit/schema"
	"github.com/favbox/chainkit/serde"
)

// Fallbacks 主 Callable 加有序的备选列表。
// 依次尝试，返回第一个成功的结果；全部失败时返回最后一个备选的错误，之前的错误被丢弃。
type Fallbacks struct {
	Primary   Callable   `serde:"callable"`
	Fallbacks []Callable `serde:"fallbacks"`
}

// WithFallbacks 为 c 添加备选。
func WithFallbacks(c Callable, fallbacks ...Callable) *Fallbacks {
	return &Fallbacks{Primary: c, Fallbacks: fallbacks}
}

func (f *Fallbacks) SerdeID() serde.ID { return callableID("CallableWithFallbacks") }

func (f *Fallbacks) SerdeInit() error {
	if f.Primary == nil {
		return schema.NewValidationError("callable", "fallbacks require a primary callable")
	}
	return nil
}

func (f *Fallbacks) alternatives() []Callable {
	return append([]Callable{f.Primary}, f.Fallbacks...)
}

func (f *Fallbacks) Invoke(ctx context.Context, input any, opts ...Option) (any, error) {
	cfg := GetConfig(opts...)
	return RunInvoke(ctx, f.SerdeID().Name(), cfg, input, func(ctx context.Context) (any, error) {
		child := cfg.child()
		var lastErr error
		for i, alt := range f.alternatives() {
			if err := schema.CheckAbort(ctx); err != nil {
				return nil, err
			}
			out, err := alt.Invoke(ctx, input, WithConfig(child))
			if err == nil {
				return out, nil
			}
			logging.FromContext(ctx).Debug("fallback alternative failed", "index", i, "error", err)
			lastErr = err
		}
		return nil, lastErr
	})
}

// Stream 在创建流失败时切换到下一个备选；流创建成功后的错误不再切换。
func (f *Fallbacks) Stream(ctx context.Context, input any, opts ...Option) (*schema.StreamReader[any], error) {
	cfg := GetConfig(opts...)
	return RunStream(ctx, f.SerdeID().Name(), cfg, input, func(ctx context.Context) (*schema.StreamReader[any], error) {
		child := cfg.child()
		var lastErr error
		for i, alt := range f.alternatives() {
			if err := schema.CheckAbort(ctx); err != nil {
				return nil, err
			}
			sr, err := alt.Stream(ctx, input, WithConfig(child))
			if err == nil {
				return sr, nil
			}
			logging.FromContext(ctx).Debug("fallback alternative failed", "index", i, "error", err)
			lastErr = err
		}
		return nil, lastErr
	})
}

package compose

import (
	"context"

	"github.com/favbox/chainkit/schema"
	"github.com/favbox/chainkit/serde"
)

// Binding 绑定了部分配置的 Callable。
// 调用时绑定配置在下、调用方配置在上合并，然后委托给被绑定的 Callable。
type Binding struct {
	Bound  Callable `serde:"bound"`
	Config Config   `serde:"config"`
}

// Bind 用给定选项绑定 c。
func Bind(c Callable, opts ...Option) *Binding {
	return &Binding{Bound: c, Config: GetConfig(opts...)}
}

func (b *Binding) SerdeID() serde.ID { return callableID("CallableBinding") }

func (b *Binding) SerdeInit() error {
	if b.Bound == nil {
		return schema.NewValidationError("bound", "binding requires a callable")
	}
	return nil
}

func (b *Binding) Invoke(ctx context.Context, input any, opts ...Option) (any, error) {
	return b.Bound.Invoke(ctx, input, WithConfig(b.Config.Merge(GetConfig(opts...))))
}

func (b *Binding) Stream(ctx context.Context, input any, opts ...Option) (*schema.StreamReader[any], error) {
	return b.Bound.Stream(ctx, input, WithConfig(b.Config.Merge(GetConfig(opts...))))
}

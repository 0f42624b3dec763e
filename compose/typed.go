package compose

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/favbox/chainkit/schema"
)

// Runnable 类型化的 Callable 门面，在边界处完成 any 与 I/O 之间的转换。
//
// 示例：
//
//	upper := compose.Typed[string, string](compose.TypedLambda("upper", toUpper))
//	out, err := upper.Invoke(ctx, "hi")
type Runnable[I, O any] struct {
	c Callable
}

// Typed 包装 c。
func Typed[I, O any](c Callable) *Runnable[I, O] {
	return &Runnable[I, O]{c: c}
}

// Callable 返回底层 Callable，用于组合与序列化。
func (r *Runnable[I, O]) Callable() Callable {
	return r.c
}

func (r *Runnable[I, O]) Invoke(ctx context.Context, input I, opts ...Option) (O, error) {
	out, err := r.c.Invoke(ctx, input, opts...)
	if err != nil {
		var zero O
		return zero, err
	}
	return convertInput[O](out)
}

func (r *Runnable[I, O]) Stream(ctx context.Context, input I, opts ...Option) (*schema.StreamReader[O], error) {
	sr, err := r.c.Stream(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderWithConvert(sr, convertInput[O]), nil
}

// Batch 并发地对每个输入执行 Invoke，结果顺序与输入一致，MaxConcurrency 限制并发数。
func (r *Runnable[I, O]) Batch(ctx context.Context, inputs []I, opts ...Option) ([]O, error) {
	cfg := GetConfig(opts...)
	out := make([]O, len(inputs))

	g, gctx := errgroup.WithContext(ctx)
	if cfg.MaxConcurrency > 0 {
		g.SetLimit(cfg.MaxConcurrency)
	}
	for i, in := range inputs {
		g.Go(func() error {
			if err := schema.CheckAbort(gctx); err != nil {
				return err
			}
			o, err := r.Invoke(gctx, in, opts...)
			if err != nil {
				return err
			}
			out[i] = o
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

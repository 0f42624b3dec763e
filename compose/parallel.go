package compose

import (
	"context"
	"runtime/debug"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/favbox/chainkit/internal/safe"
	"github.com/favbox/chainkit/schema"
	"github.com/favbox/chainkit/serde"
)

// Parallel 把同一输入并发地交给每个命名步骤，输出为 步骤名 -> 结果。
type Parallel struct {
	Steps map[string]Callable `serde:"steps"`
}

// NewParallel 创建 Parallel。
func NewParallel(steps map[string]Callable) *Parallel {
	return &Parallel{Steps: steps}
}

func (p *Parallel) SerdeID() serde.ID { return callableID("CallableMap") }

func (p *Parallel) SerdeInit() error {
	if len(p.Steps) == 0 {
		return schema.NewValidationError("steps", "parallel requires at least one step")
	}
	return nil
}

func (p *Parallel) Invoke(ctx context.Context, input any, opts ...Option) (any, error) {
	cfg := GetConfig(opts...)
	return RunInvoke(ctx, p.SerdeID().Name(), cfg, input, func(ctx context.Context) (any, error) {
		var mu sync.Mutex
		out := make(map[string]any, len(p.Steps))
		child := cfg.child()

		g, gctx := errgroup.WithContext(ctx)
		if cfg.MaxConcurrency > 0 {
			g.SetLimit(cfg.MaxConcurrency)
		}
		for name, step := range p.Steps {
			g.Go(func() (err error) {
				defer func() {
					if r := recover(); r != nil {
						err = safe.NewPanicErr(r, debug.Stack())
					}
				}()
				if err := schema.CheckAbort(gctx); err != nil {
					return err
				}
				o, err := step.Invoke(gctx, input, WithConfig(child))
				if err != nil {
					return err
				}
				mu.Lock()
				out[name] = o
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return out, nil
	})
}

func (p *Parallel) Stream(ctx context.Context, input any, opts ...Option) (*schema.StreamReader[any], error) {
	return invokeAsStream(ctx, p, input, opts...)
}

// Passthrough 恒等 Callable，原样返回输入。常与 Parallel 一起保留原始输入。
type Passthrough struct{}

// NewPassthrough 创建 Passthrough。
func NewPassthrough() *Passthrough {
	return &Passthrough{}
}

func (*Passthrough) SerdeID() serde.ID { return callableID("CallablePassthrough") }

func (pt *Passthrough) Invoke(ctx context.Context, input any, opts ...Option) (any, error) {
	return RunInvoke(ctx, pt.SerdeID().Name(), GetConfig(opts...), input, func(context.Context) (any, error) {
		return input, nil
	})
}

func (pt *Passthrough) Stream(ctx context.Context, input any, opts ...Option) (*schema.StreamReader[any], error) {
	return invokeAsStream(ctx, pt, input, opts...)
}

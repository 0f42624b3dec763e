package compose

import (
	"context"
	"fmt"
	"reflect"
	"runtime/debug"

	"golang.org/x/sync/errgroup"

	"github.com/favbox/chainkit/internal/safe"
	"github.com/favbox/chainkit/schema"
	"github.com/favbox/chainkit/serde"
)

// Each 把被包装的 Callable 并发地应用到输入集合的每个元素上。
// 输出顺序与输入顺序一致；任一元素失败则整体失败，不返回部分结果。
type Each struct {
	Bound Callable `serde:"bound"`
}

// MapEach 创建 Each。
func MapEach(c Callable) *Each {
	return &Each{Bound: c}
}

func (e *Each) SerdeID() serde.ID { return callableID("CallableEach") }

func (e *Each) SerdeInit() error {
	if e.Bound == nil {
		return schema.NewValidationError("bound", "map-each requires a callable")
	}
	return nil
}

// Invoke 输入可以是任意切片或数组，输出为 []any。
func (e *Each) Invoke(ctx context.Context, input any, opts ...Option) (any, error) {
	items, err := toSlice(input)
	if err != nil {
		return nil, err
	}
	cfg := GetConfig(opts...)
	return RunInvoke(ctx, e.SerdeID().Name(), cfg, input, func(ctx context.Context) (any, error) {
		out := make([]any, len(items))
		child := cfg.child()

		g, gctx := errgroup.WithContext(ctx)
		if cfg.MaxConcurrency > 0 {
			g.SetLimit(cfg.MaxConcurrency)
		}
		for i, item := range items {
			g.Go(func() (err error) {
				defer func() {
					if p := recover(); p != nil {
						err = safe.NewPanicErr(p, debug.Stack())
					}
				}()
				if err := schema.CheckAbort(gctx); err != nil {
					return err
				}
				o, err := e.Bound.Invoke(gctx, item, WithConfig(child))
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
	})
}

func (e *Each) Stream(ctx context.Context, input any, opts ...Option) (*schema.StreamReader[any], error) {
	return invokeAsStream(ctx, e, input, opts...)
}

func toSlice(input any) ([]any, error) {
	if items, ok := input.([]any); ok {
		return items, nil
	}
	rv := reflect.ValueOf(input)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("map-each input must be a slice, got %T", input)
	}
	items := make([]any, rv.Len())
	for i := range items {
		items[i] = rv.Index(i).Interface()
	}
	return items, nil
}

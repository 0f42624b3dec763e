package compose

import (
	"context"
	"fmt"

	"github.com/favbox/chainkit/schema"
	"github.com/favbox/chainkit/serde"
)

// Sequence 有序链：每一步的输出作为下一步的输入。
// 为了序列化形状稳定，步骤按 first、middle、last 存储。
type Sequence struct {
	First  Callable   `serde:"first"`
	Middle []Callable `serde:"middle"`
	Last   Callable   `serde:"last"`
}

// Pipe 按顺序串联至少两个 Callable，嵌套的 Sequence 被展开。
func Pipe(first Callable, rest ...Callable) (*Sequence, error) {
	var steps []Callable
	for _, c := range append([]Callable{first}, rest...) {
		if c == nil {
			return nil, fmt.Errorf("pipe: nil step")
		}
		if seq, ok := c.(*Sequence); ok {
			steps = append(steps, seq.Steps()...)
			continue
		}
		steps = append(steps, c)
	}
	if len(steps) < 2 {
		return nil, fmt.Errorf("pipe: a sequence needs at least 2 steps, got %d", len(steps))
	}
	return &Sequence{
		First:  steps[0],
		Middle: steps[1 : len(steps)-1],
		Last:   steps[len(steps)-1],
	}, nil
}

// MustPipe 与 Pipe 相同，出错时 panic。
func MustPipe(first Callable, rest ...Callable) *Sequence {
	seq, err := Pipe(first, rest...)
	if err != nil {
		panic(err)
	}
	return seq
}

// Steps 返回全部步骤。
func (s *Sequence) Steps() []Callable {
	steps := make([]Callable, 0, len(s.Middle)+2)
	steps = append(steps, s.First)
	steps = append(steps, s.Middle...)
	return append(steps, s.Last)
}

func (s *Sequence) SerdeID() serde.ID { return callableID("CallableSequence") }

func (s *Sequence) SerdeInit() error {
	if s.First == nil || s.Last == nil {
		return schema.NewValidationError("first", "sequence requires first and last steps")
	}
	return nil
}

// Invoke 严格按顺序执行；第 k 步失败时后续步骤不会执行，错误原样返回。
func (s *Sequence) Invoke(ctx context.Context, input any, opts ...Option) (any, error) {
	cfg := GetConfig(opts...)
	return RunInvoke(ctx, s.SerdeID().Name(), cfg, input, func(ctx context.Context) (any, error) {
		return s.invokeSteps(ctx, s.Steps(), input, cfg.child())
	})
}

// Stream 前面的步骤同步执行，最后一步流式执行。
func (s *Sequence) Stream(ctx context.Context, input any, opts ...Option) (*schema.StreamReader[any], error) {
	cfg := GetConfig(opts...)
	return RunStream(ctx, s.SerdeID().Name(), cfg, input, func(ctx context.Context) (*schema.StreamReader[any], error) {
		steps := s.Steps()
		child := cfg.child()
		cur, err := s.invokeSteps(ctx, steps[:len(steps)-1], input, child)
		if err != nil {
			return nil, err
		}
		if err := schema.CheckAbort(ctx); err != nil {
			return nil, err
		}
		return steps[len(steps)-1].Stream(ctx, cur, WithConfig(child))
	})
}

func (s *Sequence) invokeSteps(ctx context.Context, steps []Callable, input any, cfg Config) (any, error) {
	cur := input
	for _, step := range steps {
		if err := schema.CheckAbort(ctx); err != nil {
			return nil, err
		}
		out, err := step.Invoke(ctx, cur, WithConfig(cfg))
		if err != nil {
			return nil, err
		}
		cur = out
	}
	return cur, nil
}

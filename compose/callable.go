package compose

/*
 * callable.go - Callable 抽象与执行包装
 *
 * 核心组件：
 *   - Callable: 可序列化、单输入单输出、可配置的执行单元
 *   - RunInvoke / RunStream: 统一的取消检查点与回调包装
 *
 * 与其他文件关系：
 *   - binding.go、each.go、sequence.go、fallbacks.go、parallel.go、lambda.go 中的组合子都实现 Callable
 *   - serde.go 把组合子注册到默认注册表
 */

import (
	"context"
	"runtime/debug"

	"github.com/google/uuid"

	"github.com/favbox/chainkit/callbacks"
	"github.com/favbox/chainkit/internal/safe"
	"github.com/favbox/chainkit/schema"
	"github.com/favbox/chainkit/serde"
)

// Callable 基础执行单元。
// 所有组合子本身也是 Callable，因此可以任意嵌套并整体序列化。
type Callable interface {
	serde.Serializable

	// Invoke 同步执行。
	Invoke(ctx context.Context, input any, opts ...Option) (any, error)
	// Stream 流式执行，调用方必须 Close 返回的读取器。
	Stream(ctx context.Context, input any, opts ...Option) (*schema.StreamReader[any], error)
}

// callableID 所有组合子注册在 ["record","callable",<Name>] 下。
func callableID(name string) serde.ID {
	return serde.ID{"record", "callable", name}
}

func runInfo(typ string, cfg *Config) *callbacks.RunInfo {
	name := cfg.RunName
	if name == "" {
		name = typ
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}
	return &callbacks.RunInfo{Name: name, Type: typ, Tags: cfg.Tags, RunID: cfg.RunID}
}

// RunInvoke 在执行前检查取消信号，并在有回调时触发 OnStart/OnEnd/OnError。
// fn 的错误原样返回。组合子与 components 下的 Callable 都通过它执行。
func RunInvoke(ctx context.Context, typ string, cfg Config, input any,
	fn func(ctx context.Context) (any, error)) (any, error) {

	if err := schema.CheckAbort(ctx); err != nil {
		return nil, err
	}
	if !callbacks.Active(cfg.Callbacks) {
		return fn(ctx)
	}

	info := runInfo(typ, &cfg)
	ctx = callbacks.OnStart(ctx, info, cfg.Callbacks, input)
	out, err := fn(ctx)
	if err != nil {
		callbacks.OnError(ctx, info, cfg.Callbacks, err)
		return nil, err
	}
	callbacks.OnEnd(ctx, info, cfg.Callbacks, out)
	return out, nil
}

// RunStream 与 RunInvoke 相同，但流被复制为两份：一份返回给调用方，
// 另一份在独立 goroutine 中读完后以全部数据块触发 OnEnd（或以流中错误触发 OnError）。
// 回调副本读到末尾或两份都关闭后，原始流才被关闭。
func RunStream(ctx context.Context, typ string, cfg Config, input any,
	fn func(ctx context.Context) (*schema.StreamReader[any], error)) (*schema.StreamReader[any], error) {

	if err := schema.CheckAbort(ctx); err != nil {
		return nil, err
	}
	if !callbacks.Active(cfg.Callbacks) {
		return fn(ctx)
	}

	info := runInfo(typ, &cfg)
	ctx = callbacks.OnStart(ctx, info, cfg.Callbacks, input)
	sr, err := fn(ctx)
	if err != nil {
		callbacks.OnError(ctx, info, cfg.Callbacks, err)
		return nil, err
	}

	srs := sr.Copy(2)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				callbacks.OnError(ctx, info, cfg.Callbacks, safe.NewPanicErr(p, debug.Stack()))
			}
		}()

		chunks, err := schema.ConcatStream(srs[1])
		if err != nil {
			callbacks.OnError(ctx, info, cfg.Callbacks, err)
			return
		}
		callbacks.OnEnd(ctx, info, cfg.Callbacks, chunks)
	}()
	return srs[0], nil
}

// singleChunk 把同步结果包装为单块流。
func singleChunk(out any) *schema.StreamReader[any] {
	return schema.StreamReaderFromArray([]any{out})
}

// invokeAsStream 对没有原生流式实现的 Callable，执行 Invoke 并返回单块流。
func invokeAsStream(ctx context.Context, c Callable, input any, opts ...Option) (*schema.StreamReader[any], error) {
	out, err := c.Invoke(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return singleChunk(out), nil
}

package callbacks

/*
 * interface.go - Callable 执行生命周期的回调
 *
 * 核心组件：
 *   - RunInfo: 一次执行的名称、类型、标签与运行 ID
 *   - Handler: OnStart / OnEnd / OnError 三个回调时机
 *   - TimingChecker: 可选接口，跳过不需要的时机
 *   - 全局处理器：进程初始化时追加，先于调用方指定的处理器执行
 */

import (
	"context"

	"github.com/favbox/chainkit/internal/generic"
)

// RunInfo 回调运行信息，在处理器中描述正在执行的 Callable。
type RunInfo struct {
	// Name 显示名称，来自 compose.WithRunName，未设置时为类型名
	Name string
	// Type 注册的类型名，如 CallableSequence
	Type string
	// Tags 调用配置中的标签
	Tags []string
	// RunID 本次执行的唯一标识
	RunID string
}

// CallbackInput 回调输入，即 Callable 的输入。
type CallbackInput any

// CallbackOutput 回调输出；流式执行时为按顺序收集的全部数据块 []any。
type CallbackOutput any

// Handler 回调处理器。
// 返回的 context 会传递给同一次执行的后续回调。
type Handler interface {
	OnStart(ctx context.Context, info *RunInfo, input CallbackInput) context.Context
	OnEnd(ctx context.Context, info *RunInfo, output CallbackOutput) context.Context
	OnError(ctx context.Context, info *RunInfo, err error) context.Context
}

// CallbackTiming 回调时机。
type CallbackTiming uint8

const (
	TimingOnStart CallbackTiming = iota
	TimingOnEnd
	TimingOnError
)

// TimingChecker 判断处理器是否需要在给定时机执行。
// 由 HandlerBuilder 构建的处理器自动实现该接口。
type TimingChecker interface {
	Needed(ctx context.Context, info *RunInfo, timing CallbackTiming) bool
}

// GlobalHandlers 全局回调处理器。
var GlobalHandlers []Handler

// AppendGlobalHandlers 追加全局回调处理器。
// 非线程安全，只应在进程初始化期间调用。
func AppendGlobalHandlers(handlers ...Handler) {
	GlobalHandlers = append(GlobalHandlers, handlers...)
}

// ====== 分发 ======

// OnStart 依次调用处理器的 OnStart：全局处理器在前。
func OnStart(ctx context.Context, info *RunInfo, handlers []Handler, input CallbackInput) context.Context {
	for _, h := range withGlobal(handlers) {
		if needed(ctx, info, h, TimingOnStart) {
			ctx = h.OnStart(ctx, info, input)
		}
	}
	return ctx
}

// OnEnd 以与 OnStart 相反的顺序调用处理器的 OnEnd。
func OnEnd(ctx context.Context, info *RunInfo, handlers []Handler, output CallbackOutput) context.Context {
	for _, h := range generic.Reverse(withGlobal(handlers)) {
		if needed(ctx, info, h, TimingOnEnd) {
			ctx = h.OnEnd(ctx, info, output)
		}
	}
	return ctx
}

// OnError 以与 OnStart 相反的顺序调用处理器的 OnError。
func OnError(ctx context.Context, info *RunInfo, handlers []Handler, err error) context.Context {
	for _, h := range generic.Reverse(withGlobal(handlers)) {
		if needed(ctx, info, h, TimingOnError) {
			ctx = h.OnError(ctx, info, err)
		}
	}
	return ctx
}

// Active 判断是否存在需要执行的处理器。
func Active(handlers []Handler) bool {
	return len(handlers) > 0 || len(GlobalHandlers) > 0
}

func withGlobal(handlers []Handler) []Handler {
	if len(GlobalHandlers) == 0 {
		return handlers
	}
	hs := make([]Handler, 0, len(GlobalHandlers)+len(handlers))
	hs = append(hs, GlobalHandlers...)
	return append(hs, handlers...)
}

func needed(ctx context.Context, info *RunInfo, h Handler, timing CallbackTiming) bool {
	if tc, ok := h.(TimingChecker); ok {
		return tc.Needed(ctx, info, timing)
	}
	return true
}

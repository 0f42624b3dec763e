package callbacks

import (
	"context"
	"log/slog"
)

// HandlerBuilder 回调处理器构建器，只设置需要的时机即可。
type HandlerBuilder struct {
	onStartFn func(ctx context.Context, info *RunInfo, input CallbackInput) context.Context
	onEndFn   func(ctx context.Context, info *RunInfo, output CallbackOutput) context.Context
	onErrorFn func(ctx context.Context, info *RunInfo, err error) context.Context
}

// NewHandlerBuilder 创建构建器。
func NewHandlerBuilder() *HandlerBuilder {
	return &HandlerBuilder{}
}

// OnStartFn 设置开始回调。
func (hb *HandlerBuilder) OnStartFn(
	fn func(ctx context.Context, info *RunInfo, input CallbackInput) context.Context) *HandlerBuilder {

	hb.onStartFn = fn
	return hb
}

// OnEndFn 设置结束回调。
func (hb *HandlerBuilder) OnEndFn(
	fn func(ctx context.Context, info *RunInfo, output CallbackOutput) context.Context) *HandlerBuilder {

	hb.onEndFn = fn
	return hb
}

// OnErrorFn 设置错误回调。
func (hb *HandlerBuilder) OnErrorFn(
	fn func(ctx context.Context, info *RunInfo, err error) context.Context) *HandlerBuilder {

	hb.onErrorFn = fn
	return hb
}

// Build 返回处理器，未设置的时机被跳过。
func (hb *HandlerBuilder) Build() Handler {
	return &handlerImpl{*hb}
}

type handlerImpl struct {
	HandlerBuilder
}

func (h *handlerImpl) OnStart(ctx context.Context, info *RunInfo, input CallbackInput) context.Context {
	return h.onStartFn(ctx, info, input)
}

func (h *handlerImpl) OnEnd(ctx context.Context, info *RunInfo, output CallbackOutput) context.Context {
	return h.onEndFn(ctx, info, output)
}

func (h *handlerImpl) OnError(ctx context.Context, info *RunInfo, err error) context.Context {
	return h.onErrorFn(ctx, info, err)
}

func (h *handlerImpl) Needed(_ context.Context, _ *RunInfo, timing CallbackTiming) bool {
	switch timing {
	case TimingOnStart:
		return h.onStartFn != nil
	case TimingOnEnd:
		return h.onEndFn != nil
	case TimingOnError:
		return h.onErrorFn != nil
	default:
		return false
	}
}

// NewLogHandler 返回把执行生命周期写入 slog 的处理器。
// 开始与结束记为 debug，错误记为 warn，只记录名称与类型，不记录输入输出内容。
func NewLogHandler(logger *slog.Logger) Handler {
	attrs := func(info *RunInfo) []any {
		return []any{"name", info.Name, "type", info.Type, "run_id", info.RunID}
	}
	return NewHandlerBuilder().
		OnStartFn(func(ctx context.Context, info *RunInfo, _ CallbackInput) context.Context {
			logger.DebugContext(ctx, "callable start", attrs(info)...)
			return ctx
		}).
		OnEndFn(func(ctx context.Context, info *RunInfo, _ CallbackOutput) context.Context {
			logger.DebugContext(ctx, "callable end", attrs(info)...)
			return ctx
		}).
		OnErrorFn(func(ctx context.Context, info *RunInfo, err error) context.Context {
			logger.WarnContext(ctx, "callable failed", append(attrs(info), "error", err)...)
			return ctx
		}).
		Build()
}

package callbacks

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/favbox/chainkit/internal/logging"
)

type ctxKey string

func TestHandlerOrder(t *testing.T) {
	var trace []string
	mk := func(name string) Handler {
		return NewHandlerBuilder().
			OnStartFn(func(ctx context.Context, _ *RunInfo, _ CallbackInput) context.Context {
				trace = append(trace, "start:"+name)
				return context.WithValue(ctx, ctxKey(name), true)
			}).
			OnEndFn(func(ctx context.Context, _ *RunInfo, _ CallbackOutput) context.Context {
				trace = append(trace, "end:"+name)
				return ctx
			}).
			Build()
	}

	info := &RunInfo{Name: "n", Type: "T"}
	ctx := OnStart(context.Background(), info, []Handler{mk("a"), mk("b")}, 1)
	assert.Equal(t, true, ctx.Value(ctxKey("a")))
	assert.Equal(t, true, ctx.Value(ctxKey("b")))

	OnEnd(ctx, info, []Handler{mk("a"), mk("b")}, 2)
	// 未设置 OnErrorFn 的处理器在错误时机被跳过
	OnError(ctx, info, []Handler{mk("a")}, errors.New("x"))
	assert.Equal(t, []string{"start:a", "start:b", "end:b", "end:a"}, trace)
}

func TestGlobalHandlers(t *testing.T) {
	defer func(old []Handler) { GlobalHandlers = old }(GlobalHandlers)
	GlobalHandlers = nil

	assert.False(t, Active(nil))

	var got []string
	AppendGlobalHandlers(NewHandlerBuilder().
		OnStartFn(func(ctx context.Context, info *RunInfo, _ CallbackInput) context.Context {
			got = append(got, "global:"+info.Name)
			return ctx
		}).Build())
	assert.True(t, Active(nil))

	OnStart(context.Background(), &RunInfo{Name: "seq"}, []Handler{NewHandlerBuilder().
		OnStartFn(func(ctx context.Context, info *RunInfo, _ CallbackInput) context.Context {
			got = append(got, "local:"+info.Name)
			return ctx
		}).Build()}, nil)
	assert.Equal(t, []string{"global:seq", "local:seq"}, got)
}

func TestLogHandler(t *testing.T) {
	var buf bytes.Buffer
	h := NewLogHandler(logging.NewWithWriter(&buf, slog.LevelDebug))
	info := &RunInfo{Name: "pipe", Type: "CallableSequence", RunID: "r1"}

	ctx := context.Background()
	h.OnStart(ctx, info, "in")
	h.OnEnd(ctx, info, "out")
	h.OnError(ctx, info, errors.New("boom"))

	out := buf.String()
	assert.Contains(t, out, "callable start")
	assert.Contains(t, out, "callable end")
	assert.Contains(t, out, "err=boom")
	assert.Contains(t, out, "type=CallableSequence")
}

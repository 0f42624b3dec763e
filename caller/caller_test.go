package caller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/smartystreets/goconvey/convey"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/favbox/chainkit/internal/generic"
	"github.com/favbox/chainkit/internal/logging"
	"github.com/favbox/chainkit/schema"
)

type statusErr struct{ code int }

func (e *statusErr) Error() string { return fmt.Sprintf("status %d", e.code) }
func (e *statusErr) StatusCode() int { return e.code }

func fast(opts ...Option) *Caller {
	base := []Option{
		WithInitialDelay(time.Millisecond),
		WithMaxDelay(2 * time.Millisecond),
		WithLogger(logging.NewNop()),
	}
	return New(append(base, opts...)...)
}

// failing 前 n 次返回 err，之后返回 "ok"。
func failing(n int32, err error) (Operation, *atomic.Int32) {
	var calls atomic.Int32
	return func(context.Context) (any, error) {
		if calls.Add(1) <= n {
			return nil, err
		}
		return "ok", nil
	}, &calls
}

func TestCall(t *testing.T) {
	convey.Convey("重试调用器", t, func() {
		ctx := context.Background()
		transient := errors.New("transient")

		convey.Convey("失败两次后成功，共调用 3 次", func() {
			op, calls := failing(2, transient)
			out, err := fast().Call(ctx, op)
			convey.So(err, convey.ShouldBeNil)
			convey.So(out, convey.ShouldEqual, "ok")
			convey.So(calls.Load(), convey.ShouldEqual, 3)
		})

		convey.Convey("取消信号已触发时返回 AbortError，操作不被调用", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			op, calls := failing(0, nil)
			_, err := fast().Call(cctx, op)
			convey.So(schema.IsAbort(err), convey.ShouldBeTrue)
			convey.So(calls.Load(), convey.ShouldEqual, 0)
		})

		convey.Convey("重试耗尽后原样返回最后一次的错误", func() {
			op, calls := failing(100, transient)
			_, err := fast(WithMaxRetries(2)).Call(ctx, op)
			convey.So(err, convey.ShouldEqual, transient)
			convey.So(calls.Load(), convey.ShouldEqual, 3)
		})

		convey.Convey("客户端错误不重试", func() {
			for _, code := range []int{400, 401, 403, 404, 405, 406, 407, 409} {
				op, calls := failing(100, &statusErr{code: code})
				_, err := fast().Call(ctx, op)
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(calls.Load(), convey.ShouldEqual, 1)
			}

			op, calls := failing(1, &statusErr{code: 503})
			_, err := fast().Call(ctx, op)
			convey.So(err, convey.ShouldBeNil)
			convey.So(calls.Load(), convey.ShouldEqual, 2)
		})

		convey.Convey("Permanent 标记的错误不重试，返回时去掉标记", func() {
			op, calls := failing(100, Permanent(transient))
			_, err := fast().Call(ctx, op)
			convey.So(err, convey.ShouldEqual, transient)
			convey.So(calls.Load(), convey.ShouldEqual, 1)
		})

		convey.Convey("操作自身返回 context.Canceled 时包装为 AbortError，不重试", func() {
			op, calls := failing(100, fmt.Errorf("request: %w", context.Canceled))
			_, err := fast().Call(ctx, op)
			convey.So(schema.IsAbort(err), convey.ShouldBeTrue)
			convey.So(errors.Is(err, context.Canceled), convey.ShouldBeTrue)
			convey.So(calls.Load(), convey.ShouldEqual, 1)
		})

		convey.Convey("WithRetryIf 可以禁止重试", func() {
			op, calls := failing(100, transient)
			_, err := fast(WithRetryIf(func(err error) bool { return false })).Call(ctx, op)
			convey.So(err, convey.ShouldEqual, transient)
			convey.So(calls.Load(), convey.ShouldEqual, 1)
		})
	})
}

func TestCancelDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	op, calls := failing(100, errors.New("transient"))

	c := New(WithInitialDelay(time.Hour), WithLogger(logging.NewNop()),
		WithOnFailedAttempt(func(context.Context, int, error) error {
			cancel()
			return nil
		}))

	_, err := c.Call(ctx, op)
	assert.True(t, schema.IsAbort(err))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(1), calls.Load())
}

func TestOnFailedAttempt(t *testing.T) {
	var attempts []int
	stop := errors.New("stop")
	op, calls := failing(100, errors.New("transient"))

	_, err := fast(WithOnFailedAttempt(func(_ context.Context, attempt int, _ error) error {
		attempts = append(attempts, attempt)
		if attempt == 2 {
			return stop
		}
		return nil
	})).Call(context.Background(), op)

	assert.Same(t, stop, err)
	assert.Equal(t, []int{1, 2}, attempts)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCallWithOptions(t *testing.T) {
	ctx := context.Background()

	op, calls := failing(100, errors.New("transient"))
	_, err := fast().CallWithOptions(ctx, CallOptions{MaxRetries: generic.PtrOf(0)}, op)
	assert.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())

	blocking := func(ctx context.Context) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	_, err = fast().CallWithOptions(ctx, CallOptions{Timeout: 10 * time.Millisecond}, blocking)
	assert.True(t, schema.IsAbort(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDo(t *testing.T) {
	n, err := Do(context.Background(), fast(), func(context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	_, err = Do(context.Background(), fast(WithMaxRetries(0)), func(context.Context) (int, error) {
		return 0, errors.New("nope")
	})
	assert.EqualError(t, err, "nope")

	// 接口类型的 nil 结果返回零值
	r, err := Do(context.Background(), fast(), func(context.Context) (io.Reader, error) {
		return nil, nil
	})
	require.NoError(t, err)
	assert.Nil(t, r)
}

func TestMaxConcurrency(t *testing.T) {
	c := fast(WithMaxConcurrency(1))
	var cur, peak atomic.Int32

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.Call(context.Background(), func(context.Context) (any, error) {
				n := cur.Add(1)
				if n > peak.Load() {
					peak.Store(n)
				}
				time.Sleep(2 * time.Millisecond)
				cur.Add(-1)
				return nil, nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), peak.Load())
}

func TestBackoff(t *testing.T) {
	c := New(WithJitter(0))
	assert.Equal(t, time.Second, c.backoff(1))
	assert.Equal(t, 2*time.Second, c.backoff(2))
	assert.Equal(t, 4*time.Second, c.backoff(3))
	assert.Equal(t, 30*time.Second, c.backoff(10))

	c = New()
	c.rand = func() float64 { return 0 }
	assert.Equal(t, 750*time.Millisecond, c.backoff(1))
	c.rand = func() float64 { return 1 }
	assert.Equal(t, 1250*time.Millisecond, c.backoff(1))
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, "chainkit")

	op, _ := failing(2, errors.New("transient"))
	_, err := fast(WithName("model"), WithMetrics(m)).Call(context.Background(), op)
	require.NoError(t, err)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.attempts.WithLabelValues("model", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.attempts.WithLabelValues("model", "success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.retries.WithLabelValues("model")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.latency))
}

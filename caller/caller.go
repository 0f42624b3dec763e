package caller

/*
 * caller.go - 带指数退避与抖动的重试调用器
 *
 * 所有执行外部 I/O 的 Callable 都通过同一个 Caller 发起调用，重试策略集中配置。
 *
 * 不重试的错误：
 *   - AbortError、context.Canceled、context.DeadlineExceeded
 *   - 实现 StatusCode() 且状态码属于客户端错误（400、401、403、404、405、406、407、409）
 *   - 用 Permanent 标记的错误
 *   - WithRetryIf 判断为 false 的错误
 *
 * 取消检查点：调用前、每次失败后、退避等待期间。观察到取消时返回 AbortError，
 * 操作自身返回的 context.Canceled 同样包装为 AbortError。
 */

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/favbox/chainkit/internal/logging"
	"github.com/favbox/chainkit/schema"
)

// Caller 重试调用器，可被多个 goroutine 共享。
type Caller struct {
	opts options
	sem  *semaphore.Weighted
	// rand 返回 [0,1) 的随机数
	rand func() float64
}

// New 创建调用器。
func New(opts ...Option) *Caller {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	c := &Caller{opts: o, rand: rand.Float64}
	if o.maxConcurrency > 0 {
		c.sem = semaphore.NewWeighted(o.maxConcurrency)
	}
	return c
}

// CallOptions 单次调用的覆盖选项。
type CallOptions struct {
	// Timeout 整个调用（含重试）的超时，0 表示不限制
	Timeout time.Duration
	// MaxRetries 覆盖调用器的最大重试次数，nil 表示不覆盖
	MaxRetries *int
}

// Operation 被重试的操作。
type Operation func(ctx context.Context) (any, error)

// Call 执行 op，失败时按策略重试。重试耗尽后原样返回最后一次的错误。
func (c *Caller) Call(ctx context.Context, op Operation) (any, error) {
	return c.CallWithOptions(ctx, CallOptions{}, op)
}

// CallWithOptions 与 Call 相同，可覆盖超时与重试次数。
func (c *Caller) CallWithOptions(ctx context.Context, co CallOptions, op Operation) (any, error) {
	if err := schema.CheckAbort(ctx); err != nil {
		return nil, err
	}
	if co.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, co.Timeout)
		defer cancel()
	}
	if c.sem != nil {
		if err := c.sem.Acquire(ctx, 1); err != nil {
			return nil, schema.NewAbortError(context.Cause(ctx))
		}
		defer c.sem.Release(1)
	}

	maxRetries := c.opts.maxRetries
	if co.MaxRetries != nil {
		maxRetries = max(*co.MaxRetries, 0)
	}
	logger := c.logger(ctx)

	for attempt := 1; ; attempt++ {
		start := time.Now()
		out, err := op(ctx)
		c.opts.metrics.observe(c.opts.name, err, time.Since(start))
		if err == nil {
			return out, nil
		}

		if abortErr := schema.CheckAbort(ctx); abortErr != nil {
			return nil, abortErr
		}
		if c.opts.onFailedAttempt != nil {
			if hookErr := c.opts.onFailedAttempt(ctx, attempt, err); hookErr != nil {
				return nil, hookErr
			}
		}
		if !c.retryable(err) {
			if errors.Is(err, context.Canceled) {
				return nil, schema.NewAbortError(err)
			}
			return nil, unwrapPermanent(err)
		}
		if attempt > maxRetries {
			return nil, err
		}

		delay := c.backoff(attempt)
		logger.Warn("call failed, retrying",
			"caller", c.opts.name, "attempt", attempt, "delay", delay, "error", err)
		c.opts.metrics.retry(c.opts.name)

		if err := sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

// Do 类型化的 Call。
func Do[T any](ctx context.Context, c *Caller, op func(ctx context.Context) (T, error)) (T, error) {
	out, err := c.Call(ctx, func(ctx context.Context) (any, error) {
		return op(ctx)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	t, _ := out.(T)
	return t, nil
}

func (c *Caller) logger(ctx context.Context) *slog.Logger {
	if c.opts.logger != nil {
		return c.opts.logger
	}
	return logging.FromContext(ctx)
}

// backoff 第 attempt 次失败后的等待时间：initial * factor^(attempt-1)，上限 maxDelay，再加对称抖动。
func (c *Caller) backoff(attempt int) time.Duration {
	d := float64(c.opts.initialDelay) * math.Pow(c.opts.factor, float64(attempt-1))
	if c.opts.maxDelay > 0 && d > float64(c.opts.maxDelay) {
		d = float64(c.opts.maxDelay)
	}
	if c.opts.jitter > 0 {
		d *= 1 + c.opts.jitter*(2*c.rand()-1)
	}
	return time.Duration(d)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return schema.CheckAbort(ctx)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return schema.NewAbortError(context.Cause(ctx))
	case <-t.C:
		return nil
	}
}

// ====== 错误分类 ======

// statusCoder 由传输层错误实现，暴露 HTTP 状态码。
type statusCoder interface {
	StatusCode() int
}

// 客户端错误，重试无意义。
var nonRetryableStatus = map[int]bool{
	400: true, 401: true, 403: true, 404: true, 405: true, 406: true, 407: true, 409: true,
}

func (c *Caller) retryable(err error) bool {
	if errors.Is(err, schema.ErrAbort) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var pe *permanentError
	if errors.As(err, &pe) {
		return false
	}
	var sc statusCoder
	if errors.As(err, &sc) && nonRetryableStatus[sc.StatusCode()] {
		return false
	}
	if c.opts.retryIf != nil && !c.opts.retryIf(err) {
		return false
	}
	return true
}

type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }

func (p *permanentError) Unwrap() error { return p.err }

// Permanent 标记不应重试的错误，Caller 返回时去掉该标记。
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func unwrapPermanent(err error) error {
	var pe *permanentError
	if errors.As(err, &pe) {
		return pe.err
	}
	return err
}

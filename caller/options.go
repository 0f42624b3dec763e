package caller

import (
	"context"
	"log/slog"
	"time"
)

// 默认重试策略。
const (
	DefaultMaxRetries   = 6
	DefaultInitialDelay = time.Second
	DefaultMaxDelay     = 30 * time.Second
	DefaultFactor       = 2.0
	DefaultJitter       = 0.25
)

type options struct {
	name            string
	maxRetries      int
	initialDelay    time.Duration
	maxDelay        time.Duration
	factor          float64
	jitter          float64
	maxConcurrency  int64
	retryIf         func(error) bool
	onFailedAttempt func(ctx context.Context, attempt int, err error) error
	logger          *slog.Logger
	metrics         *Metrics
}

func defaultOptions() options {
	return options{
		name:         "default",
		maxRetries:   DefaultMaxRetries,
		initialDelay: DefaultInitialDelay,
		maxDelay:     DefaultMaxDelay,
		factor:       DefaultFactor,
		jitter:       DefaultJitter,
	}
}

// Option 重试调用器选项。
type Option func(*options)

// WithName 设置调用器名称，用于日志与指标标签。
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithMaxRetries 设置最大重试次数（不含首次调用），0 表示不重试。
func WithMaxRetries(n int) Option {
	return func(o *options) {
		o.maxRetries = max(n, 0)
	}
}

// WithInitialDelay 设置第一次重试前的等待时间。
func WithInitialDelay(d time.Duration) Option {
	return func(o *options) {
		o.initialDelay = d
	}
}

// WithMaxDelay 设置单次等待的上限。
func WithMaxDelay(d time.Duration) Option {
	return func(o *options) {
		o.maxDelay = d
	}
}

// WithFactor 设置指数退避的倍数。
func WithFactor(f float64) Option {
	return func(o *options) {
		o.factor = f
	}
}

// WithJitter 设置对称抖动比例，0.25 表示在 [0.75d, 1.25d] 之间随机。
func WithJitter(j float64) Option {
	return func(o *options) {
		o.jitter = min(max(j, 0), 1)
	}
}

// WithMaxConcurrency 限制同时进行的调用数，0 表示不限制。
func WithMaxConcurrency(n int) Option {
	return func(o *options) {
		o.maxConcurrency = int64(max(n, 0))
	}
}

// WithRetryIf 追加可重试判断，返回 false 的错误不再重试。
func WithRetryIf(fn func(error) bool) Option {
	return func(o *options) {
		o.retryIf = fn
	}
}

// WithOnFailedAttempt 每次调用失败后执行；返回非 nil 错误时停止重试并返回该错误。
func WithOnFailedAttempt(fn func(ctx context.Context, attempt int, err error) error) Option {
	return func(o *options) {
		o.onFailedAttempt = fn
	}
}

// WithLogger 设置日志器，未设置时使用 context 中的日志器。
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics 设置指标收集器。
func WithMetrics(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

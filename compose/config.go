package compose

import (
	"slices"

	"github.com/favbox/chainkit/callbacks"
	"github.com/favbox/chainkit/internal/gmap"
)

// Config 一次调用的配置，与实例绑定的默认配置在调用时合并。
//
// Tags、Metadata、RunName、MaxConcurrency、Configurable 可被序列化（Bind 的 config 字段），
// RunID 与 Callbacks 只在运行时有效。
type Config struct {
	Tags           []string       `json:"tags,omitempty" serde:"tags"`
	Metadata       map[string]any `json:"metadata,omitempty" serde:"metadata"`
	RunName        string         `json:"run_name,omitempty" serde:"run_name"`
	MaxConcurrency int            `json:"max_concurrency,omitempty" serde:"max_concurrency"`
	Configurable   map[string]any `json:"configurable,omitempty" serde:"configurable"`

	RunID     string              `json:"-" serde:"-"`
	Callbacks []callbacks.Handler `json:"-" serde:"-"`
}

// Merge 返回合并后的新配置：override 的非零值优先，标签取并集，映射按键合并，回调追加。
func (c Config) Merge(override Config) Config {
	ret := Config{
		Tags:           mergeTags(c.Tags, override.Tags),
		Metadata:       mergeMaps(c.Metadata, override.Metadata),
		RunName:        c.RunName,
		MaxConcurrency: c.MaxConcurrency,
		Configurable:   mergeMaps(c.Configurable, override.Configurable),
		RunID:          c.RunID,
	}
	if override.RunName != "" {
		ret.RunName = override.RunName
	}
	if override.MaxConcurrency != 0 {
		ret.MaxConcurrency = override.MaxConcurrency
	}
	if override.RunID != "" {
		ret.RunID = override.RunID
	}
	if len(c.Callbacks)+len(override.Callbacks) > 0 {
		ret.Callbacks = append(slices.Clip(slices.Clone(c.Callbacks)), override.Callbacks...)
	}
	return ret
}

// child 传给嵌套 Callable 的配置：运行名称与运行 ID 只属于当前层。
func (c Config) child() Config {
	c.RunName = ""
	c.RunID = ""
	return c
}

func mergeTags(a, b []string) []string {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	ret := make([]string, 0, len(a)+len(b))
	for _, t := range slices.Concat(a, b) {
		if !slices.Contains(ret, t) {
			ret = append(ret, t)
		}
	}
	return ret
}

func mergeMaps(a, b map[string]any) map[string]any {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	return gmap.Concat(a, b)
}

// ====== 调用选项 ======

// Option 调用选项。
type Option func(*Config)

// GetConfig 应用选项得到配置。
func GetConfig(opts ...Option) Config {
	var c Config
	for _, opt := range opts {
		if opt != nil {
			opt(&c)
		}
	}
	return c
}

// WithTags 追加标签。
func WithTags(tags ...string) Option {
	return func(c *Config) {
		c.Tags = mergeTags(c.Tags, tags)
	}
}

// WithMetadata 合并元数据。
func WithMetadata(md map[string]any) Option {
	return func(c *Config) {
		c.Metadata = mergeMaps(c.Metadata, md)
	}
}

// WithRunName 设置本次运行在回调中显示的名称。
func WithRunName(name string) Option {
	return func(c *Config) {
		c.RunName = name
	}
}

// WithRunID 设置本次运行的 ID，未设置时在需要回调时自动生成。
func WithRunID(id string) Option {
	return func(c *Config) {
		c.RunID = id
	}
}

// WithMaxConcurrency 限制 MapEach、Parallel、Batch 的并发数，0 表示不限制。
func WithMaxConcurrency(n int) Option {
	return func(c *Config) {
		c.MaxConcurrency = n
	}
}

// WithConfigurable 合并运行时可配置字段。
func WithConfigurable(kv map[string]any) Option {
	return func(c *Config) {
		c.Configurable = mergeMaps(c.Configurable, kv)
	}
}

// WithCallbacks 追加回调处理器。
func WithCallbacks(handlers ...callbacks.Handler) Option {
	return func(c *Config) {
		c.Callbacks = append(c.Callbacks, handlers...)
	}
}

// WithConfig 把完整配置合并到当前配置。
func WithConfig(cfg Config) Option {
	return func(c *Config) {
		*c = c.Merge(cfg)
	}
}

// Package redis 基于 Redis 的 Store 实现。
//
// 每个名称保存为一个 hash（text、revision），另有一个 ZSET 作为名称索引，
// 分值为过期时间戳，List 时惰性清理已过期的名称。
package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	backend "github.com/redis/go-redis/v9"

	"github.com/favbox/chainkit/store"
)

// DefaultPrefix 默认键前缀。
const DefaultPrefix = "chainkit:"

// 未设置 TTL 时索引中使用的分值（2100-01-01）。
const neverExpires = 4102444800

// Store Redis 存储。
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

// Option 存储选项。
type Option func(*Store)

// WithTTL 条目过期时间，0 表示不过期。
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix 键前缀。
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New 连接 addr 并创建存储。
func New(addr, password string, db int, opts ...Option) *Store {
	client := backend.NewClient(&backend.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return NewFromClient(client, opts...)
}

// NewFromClient 使用已有客户端创建存储。
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	s := &Store{client: client, prefix: DefaultPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) key(name string) string {
	return s.prefix + "tree:" + name
}

func (s *Store) indexKey() string {
	return s.prefix + "index"
}

func (s *Store) Put(ctx context.Context, name, text string) (string, error) {
	if err := store.ValidateName(name); err != nil {
		return "", err
	}
	rev := uuid.NewString()
	score := float64(neverExpires)
	if s.ttl > 0 {
		score = float64(time.Now().Add(s.ttl).Unix())
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key(name))
	pipe.HSet(ctx, s.key(name), "text", text, "revision", rev)
	if s.ttl > 0 {
		pipe.Expire(ctx, s.key(name), s.ttl)
	}
	pipe.ZAdd(ctx, s.indexKey(), backend.Z{Score: score, Member: name})
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("redis put %s: %w", name, err)
	}
	return rev, nil
}

func (s *Store) Get(ctx context.Context, name string) (string, error) {
	text, err := s.client.HGet(ctx, s.key(name), "text").Result()
	if errors.Is(err, backend.Nil) {
		return "", store.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("redis get %s: %w", name, err)
	}
	return text, nil
}

// Revision 返回 name 当前的修订号。
func (s *Store) Revision(ctx context.Context, name string) (string, error) {
	rev, err := s.client.HGet(ctx, s.key(name), "revision").Result()
	if errors.Is(err, backend.Nil) {
		return "", store.ErrNotFound
	}
	return rev, err
}

func (s *Store) Delete(ctx context.Context, name string) error {
	pipe := s.client.TxPipeline()
	del := pipe.Del(ctx, s.key(name))
	pipe.ZRem(ctx, s.indexKey(), name)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis delete %s: %w", name, err)
	}
	if del.Val() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) List(ctx context.Context) ([]string, error) {
	now := strconv.FormatInt(time.Now().Unix(), 10)
	if err := s.client.ZRemRangeByScore(ctx, s.indexKey(), "-inf", "("+now).Err(); err != nil {
		return nil, fmt.Errorf("redis prune index: %w", err)
	}
	names, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list: %w", err)
	}

	// 条目可能先于索引分值过期
	pipe := s.client.Pipeline()
	exists := make([]*backend.IntCmd, len(names))
	for i, name := range names {
		exists[i] = pipe.Exists(ctx, s.key(name))
	}
	if len(names) > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, fmt.Errorf("redis list: %w", err)
		}
	}

	live := make([]string, 0, len(names))
	var stale []any
	for i, name := range names {
		if exists[i].Val() > 0 {
			live = append(live, name)
		} else {
			stale = append(stale, name)
		}
	}
	if len(stale) > 0 {
		if err := s.client.ZRem(ctx, s.indexKey(), stale...).Err(); err != nil {
			return nil, fmt.Errorf("redis prune index: %w", err)
		}
	}
	sort.Strings(live)
	return live, nil
}

// Close 关闭客户端。
func (s *Store) Close() error {
	return s.client.Close()
}

var _ store.Store = (*Store)(nil)

package store

/*
 * store.go - 序列化构造树的持久化
 *
 * Store 只保存序列化文本，不理解其结构；密钥始终以占位节点存储。
 * Save / Restore 把 serde 的序列化与加载接到任意 Store 实现上。
 */

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/favbox/chainkit/internal/logging"
	"github.com/favbox/chainkit/schema"
	"github.com/favbox/chainkit/serde"
)

// ErrNotFound 名称不存在。
var ErrNotFound = errors.New("store: not found")

// ErrSecretLeak 序列化文本中出现了密钥值。
var ErrSecretLeak = errors.New("store: serialized text contains a secret value")

// Store 按名称保存序列化文本。
type Store interface {
	// Put 写入或覆盖 name 对应的文本，返回新的修订号。
	Put(ctx context.Context, name, text string) (string, error)
	// Get 读取文本，不存在时返回 ErrNotFound。
	Get(ctx context.Context, name string) (string, error)
	// Delete 删除，不存在时返回 ErrNotFound。
	Delete(ctx context.Context, name string) error
	// List 按名称升序返回全部名称。
	List(ctx context.Context) ([]string, error)
	Close() error
}

// ValidateName 名称不能为空，且不能包含空白字符。
func ValidateName(name string) error {
	if name == "" {
		return schema.NewValidationError("name", "must not be empty")
	}
	if strings.ContainsAny(name, " \t\r\n") {
		return schema.NewValidationError("name", "must not contain whitespace: %q", name)
	}
	return nil
}

// Save 序列化 v 并写入 s。序列化文本中若出现 v 的任何密钥值则拒绝写入。
func Save(ctx context.Context, s Store, name string, v serde.Serializable) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	text, err := serde.Serialize(v)
	if err != nil {
		return "", err
	}
	for env, val := range serde.SecretValues(v) {
		if strings.Contains(text, val) {
			return "", fmt.Errorf("%w: %s", ErrSecretLeak, env)
		}
	}

	rev, err := s.Put(ctx, name, text)
	if err != nil {
		return "", err
	}
	logging.FromContext(ctx).Debug("tree saved", "name", name, "revision", rev, "type", v.SerdeID().Name())
	return rev, nil
}

// Restore 读取 name 对应的文本并加载。
func Restore(ctx context.Context, s Store, name string, secrets map[string]string, opts ...serde.LoadOption) (serde.Serializable, error) {
	text, err := s.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	return serde.Load(ctx, text, secrets, opts...)
}

package serde

import (
	"fmt"
	"strings"

	"github.com/favbox/chainkit/schema"
)

// ID 命名空间标识：若干命名空间段，最后一段是注册的类型名。
//
// 示例：
//
//	ID{"record", "callable", "CallableSequence"}
type ID []string

// Name 返回类型名（最后一段）。
func (id ID) Name() string {
	if len(id) == 0 {
		return ""
	}
	return id[len(id)-1]
}

// Namespace 返回去掉类型名后的命名空间段。
func (id ID) Namespace() []string {
	if len(id) == 0 {
		return nil
	}
	return id[:len(id)-1]
}

// NamespaceKey 返回以 "/" 连接的命名空间，用作可选导入表的键。
func (id ID) NamespaceKey() string {
	return strings.Join(id.Namespace(), "/")
}

// Key 返回以 "/" 连接的完整标识，用作注册表的键。
func (id ID) Key() string {
	return strings.Join(id, "/")
}

func (id ID) String() string {
	return "[" + strings.Join(id, ", ") + "]"
}

// Equal 判断两个标识是否完全一致。
func (id ID) Equal(other ID) bool {
	if len(id) != len(other) {
		return false
	}
	for i := range id {
		if id[i] != other[i] {
			return false
		}
	}
	return true
}

// Validate 要求至少一段命名空间加类型名，且各段非空、不含 "/"。
func (id ID) Validate() error {
	if len(id) < 2 {
		return schema.NewValidationError("id", "namespace id %v needs at least a namespace and a type name", []string(id))
	}
	for _, seg := range id {
		if seg == "" || strings.Contains(seg, "/") {
			return schema.NewValidationError("id", "invalid namespace segment %q in %v", seg, []string(id))
		}
	}
	return nil
}

// parseID 从反序列化得到的 []any 中解析标识。
func parseID(raw any) (ID, error) {
	arr, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("id must be an array of strings, got %T", raw)
	}
	id := make(ID, 0, len(arr))
	for _, seg := range arr {
		s, ok := seg.(string)
		if !ok {
			return nil, fmt.Errorf("id segment must be a string, got %T", seg)
		}
		id = append(id, s)
	}
	return id, nil
}

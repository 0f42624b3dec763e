package serde

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/favbox/chainkit/internal/gmap"
	"github.com/favbox/chainkit/schema"
)

// Fields 重组后的构造字段，键为线上字段名。嵌套节点已经被加载为实例。
type Fields map[string]any

// Factory 根据字段构造具体类型的实例。
type Factory func(ctx context.Context, fields Fields) (Serializable, error)

// ImportMap 可选导入表：以 "/" 连接的命名空间 -> 类型名 -> 构造函数。
// 用于在加载时补充内置注册表中没有的类型。
type ImportMap map[string]map[string]Factory

// Registry 命名空间标识到构造函数的注册表。
// 进程启动时由各组件包的 init 填充，之后只读。
type Registry struct {
	mu        sync.RWMutex
	factories map[string]registered
}

type registered struct {
	id      ID
	factory Factory
}

// NewRegistry 创建空注册表。
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]registered)}
}

var defaultRegistry = NewRegistry()

// Default 返回进程级注册表，compose、components 等包在 init 中向其注册。
func Default() *Registry {
	return defaultRegistry
}

// Register 注册构造函数，重复注册同一标识返回错误。
func (r *Registry) Register(id ID, factory Factory) error {
	if err := id.Validate(); err != nil {
		return err
	}
	if factory == nil {
		return fmt.Errorf("nil factory for %v", id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := id.Key()
	if _, ok := r.factories[key]; ok {
		return fmt.Errorf("id %v already registered", id)
	}
	r.factories[key] = registered{id: slices.Clone(id), factory: factory}
	return nil
}

// MustRegister 注册失败时 panic，用于 init。
func (r *Registry) MustRegister(id ID, factory Factory) {
	if err := r.Register(id, factory); err != nil {
		panic(err)
	}
}

// Lookup 查找构造函数，未注册时返回 ImportError。
func (r *Registry) Lookup(id ID) (Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.factories[id.Key()]
	if !ok {
		return nil, schema.NewImportError(id, "not registered")
	}
	return reg.factory, nil
}

// IDs 返回按键排序的全部已注册标识。
func (r *Registry) IDs() []ID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]ID, 0, len(r.factories))
	for _, reg := range r.factories {
		ids = append(ids, slices.Clone(reg.id))
	}
	slices.SortFunc(ids, func(a, b ID) int {
		return strings.Compare(a.Key(), b.Key())
	})
	return ids
}

// Clone 复制注册表，便于测试在默认注册表基础上追加类型而不污染进程状态。
func (r *Registry) Clone() *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return &Registry{factories: gmap.Clone(r.factories)}
}

// RegisterStruct 以 StructFactory[T] 注册结构体类型，*T 必须实现 Serializable。
func RegisterStruct[T any](r *Registry, id ID) error {
	return r.Register(id, StructFactory[T]())
}

// resolve 先查内置注册表，再查可选导入表。
func resolve(r *Registry, imports ImportMap, id ID) (Factory, error) {
	f, err := r.Lookup(id)
	if err == nil {
		return f, nil
	}
	if byName, ok := imports[id.NamespaceKey()]; ok {
		if f, ok := byName[id.Name()]; ok && f != nil {
			return f, nil
		}
	}
	return nil, schema.NewImportError(id, "not found in registry or optional imports")
}

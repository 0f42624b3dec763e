package serde

/*
 * wire.go - 序列化构造树的线上格式
 *
 *	Constructor := {"grp":1,"type":"constructor","id":[...],"kwargs":{...}}
 *	Secret      := {"grp":1,"type":"secret","id":[ENV_VAR_NAME]}
 *
 * kwargs 的值可以是 JSON 原始值、Secret、Constructor 或由它们组成的数组/对象。
 * 普通结构体值先经 wireValue 展开为对象，名称与 Decode 读取时一致。
 * 编码使用 sonic 并对映射键排序，保证同一棵树总是得到相同的字节。
 */

import (
	"fmt"

	"github.com/bytedance/sonic"

	"github.com/favbox/chainkit/schema"
)

const (
	// Version 线上格式版本，写入每个节点的 grp 字段
	Version = 1

	NodeConstructor = "constructor"
	NodeSecret      = "secret"
)

// Constructor 构造器调用节点。
type Constructor struct {
	Grp    int            `json:"grp"`
	Type   string         `json:"type"`
	ID     ID             `json:"id"`
	Kwargs map[string]any `json:"kwargs"`
}

// Secret 密钥占位节点，只携带查找键，不携带值。
type Secret struct {
	Grp  int      `json:"grp"`
	Type string   `json:"type"`
	ID   []string `json:"id"`
}

// NewSecret 创建指定环境变量名的密钥占位节点。
func NewSecret(env string) *Secret {
	return &Secret{Grp: Version, Type: NodeSecret, ID: []string{env}}
}

// wireAPI 排序键、保留数字字面量、不转义 HTML 字符。
var wireAPI = sonic.Config{
	SortMapKeys:    true,
	UseNumber:      true,
	EscapeHTML:     false,
	ValidateString: true,
}.Froze()

// ToTree 把实例转换为序列化构造树，嵌套对象递归转换，密钥替换为占位节点。
func ToTree(v Serializable) (*Constructor, error) {
	attrs, err := GetAttributes(v)
	if err != nil {
		return nil, err
	}

	kwargs := make(map[string]any, len(attrs.Kwargs)+len(attrs.Secrets)+len(attrs.Metadata.Callables))
	for name, val := range attrs.Kwargs {
		w, err := wireValueOf(val)
		if err != nil {
			return nil, schema.NewValidationError(name, "%v", err)
		}
		kwargs[attrs.WireName(name)] = w
	}
	for name, env := range attrs.Secrets {
		kwargs[attrs.WireName(name)] = NewSecret(env)
	}
	for name, c := range attrs.Metadata.Callables {
		node, err := callablesToTree(c)
		if err != nil {
			return nil, fmt.Errorf("serialize %s.%s: %w", attrs.Metadata.Type, name, err)
		}
		kwargs[attrs.WireName(name)] = node
	}

	return &Constructor{
		Grp:    Version,
		Type:   NodeConstructor,
		ID:     v.SerdeID(),
		Kwargs: kwargs,
	}, nil
}

func callablesToTree(c any) (any, error) {
	switch cv := c.(type) {
	case Serializable:
		return ToTree(cv)
	case []Serializable:
		nodes := make([]any, 0, len(cv))
		for _, s := range cv {
			node, err := ToTree(s)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, node)
		}
		return nodes, nil
	case map[string]Serializable:
		nodes := make(map[string]any, len(cv))
		for k, s := range cv {
			node, err := ToTree(s)
			if err != nil {
				return nil, err
			}
			nodes[k] = node
		}
		return nodes, nil
	default:
		return nil, fmt.Errorf("unexpected callable container %T", c)
	}
}

// Serialize 返回实例的序列化文本。
func Serialize(v Serializable) (string, error) {
	tree, err := ToTree(v)
	if err != nil {
		return "", err
	}
	return Marshal(tree)
}

// Marshal 按线上格式编码任意树节点。
func Marshal(node any) (string, error) {
	return wireAPI.MarshalToString(node)
}

// Unmarshal 把文本解析为通用树：map[string]any、[]any、json.Number 等。
func Unmarshal(text string) (any, error) {
	var node any
	if err := wireAPI.UnmarshalFromString(text, &node); err != nil {
		return nil, fmt.Errorf("parse serialized tree: %w", err)
	}
	return node, nil
}

package schema

import (
	"fmt"
	"strings"
	"sync"
	"text/template"

	"github.com/nikolalohinski/gonja"
	"github.com/nikolalohinski/gonja/config"
	"github.com/nikolalohinski/gonja/nodes"
	"github.com/nikolalohinski/gonja/parser"
	"github.com/slongfield/pyfmt"
)

// FormatType 模板的格式化类型。
type FormatType uint8

const (
	// FString Python 风格的字符串格式化 (PEP-3101)，由 pyfmt 实现。
	FString FormatType = 0
	// GoTemplate Go 标准库的 text/template 格式化。
	GoTemplate FormatType = 1
	// Jinja2 Jinja2 模板格式化，由 gonja 实现。
	Jinja2 FormatType = 2
)

// String 返回格式类型在序列化中使用的名称。
func (f FormatType) String() string {
	switch f {
	case FString:
		return "f-string"
	case GoTemplate:
		return "go-template"
	case Jinja2:
		return "jinja2"
	default:
		return fmt.Sprintf("FormatType(%d)", uint8(f))
	}
}

// ParseFormatType 将名称解析为格式类型。
func ParseFormatType(s string) (FormatType, error) {
	switch s {
	case "", "f-string":
		return FString, nil
	case "go-template":
		return GoTemplate, nil
	case "jinja2":
		return Jinja2, nil
	default:
		return 0, fmt.Errorf("unknown format type: %q", s)
	}
}

// MarshalText 以名称形式编码，序列化树中保存的是 "f-string" 等名称。
func (f FormatType) MarshalText() ([]byte, error) {
	switch f {
	case FString, GoTemplate, Jinja2:
		return []byte(f.String()), nil
	default:
		return nil, fmt.Errorf("unknown format type: %d", uint8(f))
	}
}

// UnmarshalText 从名称解码。
func (f *FormatType) UnmarshalText(text []byte) error {
	ft, err := ParseFormatType(string(text))
	if err != nil {
		return err
	}
	*f = ft
	return nil
}

// RoleType 消息角色类型。
type RoleType string

const (
	// Assistant 模型生成的消息。
	Assistant RoleType = "assistant"
	// User 用户输入的消息。
	User RoleType = "user"
	// System 系统提示消息。
	System RoleType = "system"
)

// Message 对话中的一条消息。
type Message struct {
	Role    RoleType `json:"role"`
	Content string   `json:"content"`
	Name    string   `json:"name,omitempty"`

	// Extra 提供方附加的信息，不参与格式化。
	Extra map[string]any `json:"extra,omitempty"`
}

// String 返回便于日志输出的消息文本。
func (m *Message) String() string {
	if m == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s: %s", m.Role, m.Content)
}

// SystemMessage 创建系统消息。
func SystemMessage(content string) *Message {
	return &Message{Role: System, Content: content}
}

// UserMessage 创建用户消息。
func UserMessage(content string) *Message {
	return &Message{Role: User, Content: content}
}

// AssistantMessage 创建助手消息。
func AssistantMessage(content string) *Message {
	return &Message{Role: Assistant, Content: content}
}

// ConcatMessages 合并同一角色的流式消息块，内容按顺序拼接。
func ConcatMessages(msgs []*Message) (*Message, error) {
	if len(msgs) == 0 {
		return nil, fmt.Errorf("no message to concat")
	}

	ret := &Message{}
	var sb strings.Builder
	for _, m := range msgs {
		if m == nil {
			continue
		}
		if ret.Role == "" {
			ret.Role = m.Role
		} else if m.Role != "" && m.Role != ret.Role {
			return nil, fmt.Errorf("cannot concat messages with different roles: %s, %s", ret.Role, m.Role)
		}
		if m.Name != "" {
			ret.Name = m.Name
		}
		sb.WriteString(m.Content)
		for k, v := range m.Extra {
			if ret.Extra == nil {
				ret.Extra = make(map[string]any)
			}
			ret.Extra[k] = v
		}
	}
	ret.Content = sb.String()
	return ret, nil
}

// FormatContent 根据格式化类型渲染模板字符串。
func FormatContent(content string, vs map[string]any, formatType FormatType) (string, error) {
	switch formatType {
	case FString:
		return pyfmt.Fmt(content, vs)
	case GoTemplate:
		parsedTmpl, err := template.New("template").
			Option("missingkey=error").
			Parse(content)
		if err != nil {
			return "", err
		}
		sb := new(strings.Builder)
		err = parsedTmpl.Execute(sb, vs)
		if err != nil {
			return "", err
		}
		return sb.String(), nil
	case Jinja2:
		env, err := getJinjaEnv()
		if err != nil {
			return "", err
		}
		tpl, err := env.FromString(content)
		if err != nil {
			return "", err
		}
		return tpl.Execute(vs)
	default:
		return "", fmt.Errorf("unknown format type: %v", formatType)
	}
}

var (
	jinjaEnvOnce sync.Once
	jinjaEnv     *gonja.Environment
	envInitErr   error
)

// 模板中禁用的 jinja 关键字，避免访问文件系统。
var disabledJinjaKeywords = []string{"include", "extends", "import", "from"}

// getJinjaEnv 获取禁用了 include、extends、import、from 的 jinja 环境。
func getJinjaEnv() (*gonja.Environment, error) {
	jinjaEnvOnce.Do(func() {
		jinjaEnv = gonja.NewEnvironment(config.DefaultConfig, gonja.DefaultLoader)
		for _, keyword := range disabledJinjaKeywords {
			if !jinjaEnv.Statements.Exists(keyword) {
				continue
			}
			kw := keyword
			err := jinjaEnv.Statements.Replace(kw, func(parser *parser.Parser, args *parser.Parser) (nodes.Statement, error) {
				return nil, fmt.Errorf("keyword[%s] has been disabled", kw)
			})
			if err != nil {
				envInitErr = fmt.Errorf("init jinja env fail: %w", err)
				return
			}
		}
	})
	return jinjaEnv, envInitErr
}

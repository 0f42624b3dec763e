package prompt

import (
	"fmt"
	"slices"
	"strings"
	"text/template/parse"

	"github.com/favbox/chainkit/schema"
)

// inferVariables 按出现顺序返回模板引用的顶层变量名，去重。
// Jinja2 模板不推断，返回空列表。
func inferVariables(tpl string, format schema.FormatType) ([]string, error) {
	switch format {
	case schema.FString:
		return fstringVariables(tpl)
	case schema.GoTemplate:
		return goTemplateVariables(tpl)
	default:
		return []string{}, nil
	}
}

func fstringVariables(tpl string) ([]string, error) {
	vars := []string{}
	for i := 0; i < len(tpl); i++ {
		switch tpl[i] {
		case '{':
			if i+1 < len(tpl) && tpl[i+1] == '{' {
				i++
				continue
			}
			end := strings.IndexByte(tpl[i:], '}')
			if end < 0 {
				return nil, fmt.Errorf("prompt template: unclosed '{' at offset %d", i)
			}
			field := tpl[i+1 : i+end]
			if cut := strings.IndexAny(field, ":!.["); cut >= 0 {
				field = field[:cut]
			}
			if field == "" {
				return nil, fmt.Errorf("prompt template: positional placeholder at offset %d is not supported", i)
			}
			if !slices.Contains(vars, field) {
				vars = append(vars, field)
			}
			i += end
		case '}':
			if i+1 < len(tpl) && tpl[i+1] == '}' {
				i++
				continue
			}
			return nil, fmt.Errorf("prompt template: single '}' at offset %d", i)
		}
	}
	return vars, nil
}

func goTemplateVariables(tpl string) ([]string, error) {
	// 只收集字段引用，函数是否定义留给渲染阶段检查
	tree := parse.New("prompt")
	tree.Mode = parse.SkipFuncCheck
	if _, err := tree.Parse(tpl, "", "", map[string]*parse.Tree{}); err != nil {
		return nil, err
	}
	vars := []string{}
	add := func(name string) {
		if !slices.Contains(vars, name) {
			vars = append(vars, name)
		}
	}

	var walkPipe func(p *parse.PipeNode)
	var walk func(n parse.Node)
	walkPipe = func(p *parse.PipeNode) {
		if p == nil {
			return
		}
		for _, cmd := range p.Cmds {
			for _, arg := range cmd.Args {
				switch a := arg.(type) {
				case *parse.FieldNode:
					add(a.Ident[0])
				case *parse.PipeNode:
					walkPipe(a)
				}
			}
		}
	}
	walk = func(n parse.Node) {
		switch node := n.(type) {
		case *parse.ListNode:
			if node == nil {
				return
			}
			for _, child := range node.Nodes {
				walk(child)
			}
		case *parse.ActionNode:
			walkPipe(node.Pipe)
		case *parse.IfNode:
			walkPipe(node.Pipe)
			walk(node.List)
			walk(node.ElseList)
		case *parse.RangeNode:
			// range 与 with 内部的 "." 不再指向顶层变量
			walkPipe(node.Pipe)
		case *parse.WithNode:
			walkPipe(node.Pipe)
		}
	}

	if tree.Root != nil {
		walk(tree.Root)
	}
	return vars, nil
}

package compose

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

// testFuncs 测试用的函数注册表，避免污染进程级注册表。
func testFuncs(t *testing.T) *FuncRegistry {
	fr := NewFuncRegistry()
	require.NoError(t, fr.Register("upper", TypedFunc(func(_ context.Context, s string) (string, error) {
		return strings.ToUpper(s), nil
	})))
	require.NoError(t, fr.Register("exclaim", TypedFunc(func(_ context.Context, s string) (string, error) {
		return s + "!", nil
	})))
	require.NoError(t, fr.Register("split", TypedFunc(func(_ context.Context, s string) ([]any, error) {
		var out []any
		for _, f := range strings.Fields(s) {
			out = append(out, f)
		}
		return out, nil
	})))
	require.NoError(t, fr.Register("join", TypedFunc(func(_ context.Context, parts []string) (string, error) {
		return strings.Join(parts, " "), nil
	})))
	require.NoError(t, fr.Register("fail", func(context.Context, any, Config) (any, error) {
		return nil, errors.New("always fails")
	}))
	return fr
}

func mustLambda(t *testing.T, fr *FuncRegistry, name string) *Lambda {
	l, err := fr.Lambda(name)
	require.NoError(t, err)
	return l
}

// counting 记录调用次数并返回固定结果的 Lambda。
func counting(name string, out any, err error) (*Lambda, *atomic.Int32) {
	var n atomic.Int32
	return NewLambda(name, func(context.Context, any, Config) (any, error) {
		n.Add(1)
		return out, err
	}), &n
}

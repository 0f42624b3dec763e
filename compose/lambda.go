package compose

/*
 * lambda.go - 把普通函数适配为 Callable
 *
 * Lambda 序列化为已注册函数的名称（kwargs.func），加载时在函数注册表中按名称解析，
 * 不序列化函数源码。名称未注册时加载返回 ImportError。
 */

import (
	"context"
	"fmt"
	"reflect"
	"runtime/debug"
	"sync"

	"github.com/favbox/chainkit/internal/generic"
	"github.com/favbox/chainkit/internal/safe"
	"github.com/favbox/chainkit/schema"
	"github.com/favbox/chainkit/serde"
)

// LambdaFunc 同步函数，cfg 是合并后的调用配置。
type LambdaFunc func(ctx context.Context, input any, cfg Config) (any, error)

// LambdaStreamFunc 流式函数。
type LambdaStreamFunc func(ctx context.Context, input any, cfg Config) (*schema.StreamReader[any], error)

// ====== Lambda 选项 ======

type lambdaOpts struct {
	stream LambdaStreamFunc
}

// LambdaOpt 创建或注册 Lambda 时的选项。
type LambdaOpt func(*lambdaOpts)

// WithLambdaStream 提供原生流式实现，未提供时 Stream 返回 Invoke 结果的单块流。
func WithLambdaStream(fn LambdaStreamFunc) LambdaOpt {
	return func(o *lambdaOpts) {
		o.stream = fn
	}
}

// ====== Lambda ======

// Lambda 函数适配器。
type Lambda struct {
	Func string `serde:"func"`

	fn     LambdaFunc
	stream LambdaStreamFunc
}

// NewLambda 用给定名称与函数创建 Lambda。
// 需要加载序列化结果时，同名函数必须已在加载所用的函数注册表中注册。
func NewLambda(name string, fn LambdaFunc, opts ...LambdaOpt) *Lambda {
	o := &lambdaOpts{}
	for _, opt := range opts {
		opt(o)
	}
	return &Lambda{Func: name, fn: fn, stream: o.stream}
}

// TypedFunc 把强类型函数适配为 LambdaFunc，输入类型不匹配时返回错误。
func TypedFunc[I, O any](fn func(ctx context.Context, input I) (O, error)) LambdaFunc {
	return func(ctx context.Context, input any, _ Config) (any, error) {
		in, err := convertInput[I](input)
		if err != nil {
			return nil, err
		}
		return fn(ctx, in)
	}
}

// TypedLambda 用强类型函数创建 Lambda。
func TypedLambda[I, O any](name string, fn func(ctx context.Context, input I) (O, error), opts ...LambdaOpt) *Lambda {
	return NewLambda(name, TypedFunc(fn), opts...)
}

func (l *Lambda) SerdeID() serde.ID { return callableID("CallableLambda") }

func (l *Lambda) Invoke(ctx context.Context, input any, opts ...Option) (any, error) {
	if l.fn == nil {
		return nil, fmt.Errorf("lambda %q has no function bound", l.Func)
	}
	cfg := GetConfig(opts...)
	if cfg.RunName == "" {
		cfg.RunName = l.Func
	}
	return RunInvoke(ctx, l.SerdeID().Name(), cfg, input, func(ctx context.Context) (out any, err error) {
		defer func() {
			if p := recover(); p != nil {
				err = safe.NewPanicErr(p, debug.Stack())
			}
		}()
		return l.fn(ctx, input, cfg.child())
	})
}

func (l *Lambda) Stream(ctx context.Context, input any, opts ...Option) (*schema.StreamReader[any], error) {
	if l.stream == nil {
		return invokeAsStream(ctx, l, input, opts...)
	}
	cfg := GetConfig(opts...)
	if cfg.RunName == "" {
		cfg.RunName = l.Func
	}
	return RunStream(ctx, l.SerdeID().Name(), cfg, input, func(ctx context.Context) (sr *schema.StreamReader[any], err error) {
		defer func() {
			if p := recover(); p != nil {
				err = safe.NewPanicErr(p, debug.Stack())
			}
		}()
		return l.stream(ctx, input, cfg.child())
	})
}

// ====== 函数注册表 ======

type registeredFunc struct {
	fn     LambdaFunc
	stream LambdaStreamFunc
}

// FuncRegistry 函数名到函数的注册表，加载 Lambda 时使用。
type FuncRegistry struct {
	mu    sync.RWMutex
	funcs map[string]registeredFunc
}

// NewFuncRegistry 创建空函数注册表。
func NewFuncRegistry() *FuncRegistry {
	return &FuncRegistry{funcs: make(map[string]registeredFunc)}
}

var defaultFuncRegistry = NewFuncRegistry()

// DefaultFuncRegistry 返回进程级函数注册表。
func DefaultFuncRegistry() *FuncRegistry {
	return defaultFuncRegistry
}

// Register 注册函数，名称重复时返回错误。
func (r *FuncRegistry) Register(name string, fn LambdaFunc, opts ...LambdaOpt) error {
	if name == "" || fn == nil {
		return fmt.Errorf("lambda registration requires a name and a function")
	}
	o := &lambdaOpts{}
	for _, opt := range opts {
		opt(o)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.funcs[name]; ok {
		return fmt.Errorf("lambda %q already registered", name)
	}
	r.funcs[name] = registeredFunc{fn: fn, stream: o.stream}
	return nil
}

// Lambda 返回已注册函数对应的 Lambda，未注册时返回 ImportError。
func (r *FuncRegistry) Lambda(name string) (*Lambda, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.funcs[name]
	if !ok {
		return nil, schema.NewImportError(append(callableID("CallableLambda"), name), "lambda function not registered")
	}
	return &Lambda{Func: name, fn: f.fn, stream: f.stream}, nil
}

// RegisterFunc 在进程级函数注册表中注册函数，并返回对应的 Lambda。
func RegisterFunc(name string, fn LambdaFunc, opts ...LambdaOpt) (*Lambda, error) {
	if err := defaultFuncRegistry.Register(name, fn, opts...); err != nil {
		return nil, err
	}
	return defaultFuncRegistry.Lambda(name)
}

// MustRegisterFunc 注册失败时 panic，用于 init。
func MustRegisterFunc(name string, fn LambdaFunc, opts ...LambdaOpt) *Lambda {
	l, err := RegisterFunc(name, fn, opts...)
	if err != nil {
		panic(err)
	}
	return l
}

type funcRegistryKey struct{}

// WithFuncRegistry 返回携带函数注册表的 context，加载 Lambda 时优先使用。
func WithFuncRegistry(ctx context.Context, fr *FuncRegistry) context.Context {
	return context.WithValue(ctx, funcRegistryKey{}, fr)
}

func funcRegistryFrom(ctx context.Context) *FuncRegistry {
	if fr, ok := ctx.Value(funcRegistryKey{}).(*FuncRegistry); ok && fr != nil {
		return fr
	}
	return defaultFuncRegistry
}

func lambdaFactory(ctx context.Context, fields serde.Fields) (serde.Serializable, error) {
	var spec Lambda
	if err := serde.Decode(fields, &spec); err != nil {
		return nil, err
	}
	return funcRegistryFrom(ctx).Lambda(spec.Func)
}

// ====== 类型转换 ======

// convertInput 把 any 转换为 I：nil 转为零值，[]any 与 map[string]any 按元素转换。
func convertInput[I any](input any) (I, error) {
	if in, ok := input.(I); ok {
		return in, nil
	}
	var zero I
	typ := generic.TypeOf[I]()
	if input == nil {
		if typ.Kind() == reflect.Interface || typ.Kind() == reflect.Ptr ||
			typ.Kind() == reflect.Slice || typ.Kind() == reflect.Map {
			return zero, nil
		}
		return zero, fmt.Errorf("unexpected nil input, want %s", typ)
	}

	rv, err := convertValue(reflect.ValueOf(input), typ)
	if err != nil {
		return zero, err
	}
	return rv.Interface().(I), nil
}

func convertValue(v reflect.Value, typ reflect.Type) (reflect.Value, error) {
	if v.Kind() == reflect.Interface {
		if v.IsNil() {
			return reflect.Zero(typ), nil
		}
		v = v.Elem()
	}
	if v.Type().AssignableTo(typ) {
		return v, nil
	}

	switch {
	case v.Kind() == reflect.Slice && typ.Kind() == reflect.Slice:
		out := reflect.MakeSlice(typ, v.Len(), v.Len())
		for i := 0; i < v.Len(); i++ {
			ev, err := convertValue(v.Index(i), typ.Elem())
			if err != nil {
				return reflect.Value{}, err
			}
			out.Index(i).Set(ev)
		}
		return out, nil
	case v.Kind() == reflect.Map && typ.Kind() == reflect.Map && v.Type().Key() == typ.Key():
		out := reflect.MakeMapWithSize(typ, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			ev, err := convertValue(iter.Value(), typ.Elem())
			if err != nil {
				return reflect.Value{}, err
			}
			out.SetMapIndex(iter.Key(), ev)
		}
		return out, nil
	default:
		return reflect.Value{}, fmt.Errorf("unexpected input type %s, want %s", v.Type(), typ)
	}
}

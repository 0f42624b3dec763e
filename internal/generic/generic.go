package generic

import "reflect"

// TypeOf 返回 T 的 reflect.Type。
//
// 示例:
//
//	TypeOf[int]()     // reflect.TypeOf(int)
//	TypeOf[*int]()    // reflect.TypeOf(*int)
func TypeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// PtrOf 返回传入值 v 的指针。
// 用于需要获取值指针的场景，如配置结构体字段初始化。
func PtrOf[T any](v T) *T {
	return &v
}

// Deref 解开所有指针层，返回最终的值与类型。
// 遇到 nil 指针时返回无效的 reflect.Value。
func Deref(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

// Reverse 返回元素顺序反转的新切片。
func Reverse[S ~[]E, E any](s S) S {
	d := make(S, len(s))
	for i := 0; i < len(s); i++ {
		d[i] = s[len(s)-i-1]
	}

	return d
}

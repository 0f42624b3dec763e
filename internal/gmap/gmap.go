package gmap

/*
 * gmap.go - Map 工具函数包
 *
 * 核心功能：
 *   1. Concat：合并多个 Map，取并集，后者覆盖前者
 *   2. Clone：浅拷贝 Map
 *   3. SortedKeys：按字典序返回 Map 的键，用于确定性输出
 *
 * 注意事项：
 *   - 所有函数返回新 Map，不修改原 Map（浅拷贝）
 */

import (
	"cmp"
	"slices"
)

// Concat 合并多个 Map 为一个新 Map - 取所有 Map 的并集
//
// 键冲突时后面的值覆盖前面的值，总是返回非 nil 的 Map。
//
// 示例：
//
//	m := map[int]int{1: 1, 2: 2}
//	Concat(m, nil)             ⏩ map[int]int{1: 1, 2: 2}
//	Concat(m, map[int]{2: -1}) ⏩ map[int]int{1: 1, 2: -1}
func Concat[K comparable, V any](ms ...map[K]V) map[K]V {
	var maxLen int
	for _, m := range ms {
		if len(m) > maxLen {
			maxLen = len(m)
		}
	}

	ret := make(map[K]V, maxLen)
	for _, m := range ms {
		for k, v := range m {
			ret[k] = v
		}
	}
	return ret
}

// Clone 浅拷贝 Map，nil 输入返回 nil。
//
// 示例：
//
//	Clone(map[int]int{1: 1, 2: 2}) ⏩ map[int]int{1: 1, 2: 2}
//	Clone[int, int](nil)           ⏩ nil
func Clone[K comparable, V any, M ~map[K]V](m M) M {
	if m == nil {
		return nil
	}
	r := make(M, len(m))
	for k, v := range m {
		r[k] = v
	}
	return r
}

// SortedKeys 返回按升序排列的键切片。
func SortedKeys[K cmp.Ordered, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

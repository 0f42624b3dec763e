package gmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConcat(t *testing.T) {
	m := map[int]int{1: 1, 2: 2}
	assert.Equal(t, map[int]int{1: 1, 2: 2}, Concat(m, nil))
	assert.Equal(t, map[int]int{1: 1, 2: -1, 3: 3}, Concat(m, map[int]int{2: -1, 3: 3}))
	assert.NotNil(t, Concat[int, int]())
	assert.Equal(t, map[int]int{1: 1, 2: 2}, m)
}

func TestClone(t *testing.T) {
	assert.Nil(t, Clone[int, int, map[int]int](nil))
	src := map[string]int{"a": 1}
	dst := Clone(src)
	dst["b"] = 2
	assert.Len(t, src, 1)
}

func TestSortedKeys(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, SortedKeys(map[string]bool{"c": true, "a": true, "b": false}))
	assert.Empty(t, SortedKeys(map[string]int{}))
}

package generic

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
)

type user struct{ Name string }

func TestDeref(t *testing.T) {
	u := &user{Name: "a"}
	var i any = u
	v := Deref(reflect.ValueOf(&i))
	assert.Equal(t, reflect.Struct, v.Kind())

	var nilUser *user
	assert.False(t, Deref(reflect.ValueOf(nilUser)).IsValid())
}

func TestReverse(t *testing.T) {
	assert.Equal(t, []int{3, 2, 1}, Reverse([]int{1, 2, 3}))
}

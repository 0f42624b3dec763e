package safe

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewPanicErr(t *testing.T) {
	err := NewPanicErr("info", []byte("stack"))
	assert.Equal(t, "panic error: info, \nstack: stack", err.Error())

	cause := errors.New("boom")
	err = NewPanicErr(cause, nil)
	assert.ErrorIs(t, err, cause)
}

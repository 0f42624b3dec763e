package schema

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationError(t *testing.T) {
	err := NewValidationError("secret1", "identifier %q must be upper-case", "bad key")
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, `validation error: field "secret1": identifier "bad key" must be upper-case`, err.Error())

	var ve *ValidationError
	assert.True(t, errors.As(err, &ve))
	assert.Equal(t, "secret1", ve.Field)
}

func TestImportError(t *testing.T) {
	err := NewImportError([]string{"ns", "C"}, "not registered")
	assert.ErrorIs(t, err, ErrImport)
	assert.Equal(t, "import error: cannot resolve [ns, C]: not registered", err.Error())
}

func TestAbortError(t *testing.T) {
	err := NewAbortError(context.Canceled)
	assert.True(t, IsAbort(err))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Same(t, err, NewAbortError(err))
	assert.Equal(t, "aborted", (&AbortError{}).Error())

	ctx, cancel := context.WithCancel(context.Background())
	assert.NoError(t, CheckAbort(ctx))
	cancel()
	err = CheckAbort(ctx)
	assert.True(t, IsAbort(err))
	assert.ErrorIs(t, err, context.Canceled)
}

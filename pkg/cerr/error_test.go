package cerr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kazz187/issuelab/pkg/storage"
)

func TestError_Format(t *testing.T) {
	err := NewError(InvalidArgument, "missing app id", nil)
	assert.Equal(t, "[InvalidArgument] missing app id", err.Error())
	assert.Empty(t, err.Stack)

	wrapped := NewError(Internal, "dispatch failed", errors.New("boom"))
	assert.Equal(t, "[Internal] dispatch failed: boom", wrapped.Error())
	assert.NotEmpty(t, wrapped.Stack)
}

func TestIsCodeAndCodeOf(t *testing.T) {
	base := NewError(AlreadyExists, "duplicate", nil)
	err := fmt.Errorf("load: %w", base)

	assert.True(t, IsCode(err, AlreadyExists))
	assert.False(t, IsCode(err, NotFound))
	assert.Equal(t, AlreadyExists, CodeOf(err))
	assert.Equal(t, OK, CodeOf(nil))
	assert.Equal(t, Unknown, CodeOf(errors.New("plain")))
	assert.Equal(t, Canceled, CodeOf(context.Canceled))
}

func TestWrapStorageReadError(t *testing.T) {
	err := WrapStorageReadError("rate ledger", fmt.Errorf("x: %w", storage.ErrNotFound))
	assert.True(t, IsCode(err, NotFound))

	err = WrapStorageReadError("rate ledger", errors.New("disk"))
	assert.True(t, IsCode(err, Internal))
}

func TestCode_ExitCode(t *testing.T) {
	assert.Equal(t, 0, OK.ExitCode())
	assert.Equal(t, 1, InvalidArgument.ExitCode())
	assert.Equal(t, 2, Internal.ExitCode())
}

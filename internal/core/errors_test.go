package core

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/douit-app/douit/internal/docstore"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want Kind
	}{
		{nil, ""},
		{notFound("fragment", "x"), KindNotFound},
		{fmt.Errorf("wrap: %w", ErrConflict), KindConflict},
		{ErrValidation, KindValidation},
		{storeErr("op", docstore.ErrBusy), KindStoreFailure},
		{errors.New("boom"), KindUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, KindOf(tt.err), "%v", tt.err)
	}
}

func TestStoreErr(t *testing.T) {
	assert.NoError(t, storeErr("op", nil))

	err := storeErr("op", docstore.ErrUnavailable)
	assert.ErrorIs(t, err, ErrStoreFailure)
	assert.ErrorIs(t, err, docstore.ErrUnavailable)

	err = storeErr("op", notFound("term set", "s"))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrStoreFailure)

	err = storeErr("op", context.Canceled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrStoreFailure)
}

package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap("Find", CodeNotFound, cause, nil)

	assert.Equal(t, "Find: boom", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "Find", (&Error{Op: "Find"}).Error())

	var appErr *Error
	require.ErrorAs(t, err, &appErr)
	assert.NotNil(t, appErr.Metadata)
}

func TestCodeOf(t *testing.T) {
	inner := WrapErrorWithReason("Click", CodeIntercepted, "click_intercepted")
	outer := Wrap("execute", CodeTimeout, inner, nil)

	assert.Equal(t, CodeTimeout, CodeOf(fmt.Errorf("run: %w", outer)))
	assert.Empty(t, CodeOf(errors.New("plain")))
	assert.Empty(t, CodeOf(nil))
}

func TestHasCode(t *testing.T) {
	inner := WrapErrorWithReason("Click", CodeIntercepted, "click_intercepted")
	outer := Wrap("execute", CodeTimeout, fmt.Errorf("step: %w", inner), nil)

	assert.True(t, HasCode(outer, CodeTimeout))
	assert.True(t, HasCode(outer, CodeIntercepted))
	assert.False(t, HasCode(outer, CodeNotFound))
	assert.False(t, HasCode(errors.New("plain"), CodeInternal))
	assert.False(t, HasCode(nil, CodeInternal))
}

func TestReason(t *testing.T) {
	assert.Equal(t, "invalid_request", Reason(InvalidReqError("Type", "text", errors.New("empty"))))
	assert.Equal(t, "not_found", Reason(NotFoundError("Find", errors.New("gone"))))
	assert.Equal(t, "post_failed", Reason(WrapWithReason("Deliver", CodeDeliveryFailed, errors.New("eof"), "post_failed")))
	assert.Empty(t, Reason(Wrap("op", CodeInternal, errors.New("x"), nil)))
	assert.Empty(t, Reason(errors.New("plain")))
}

func TestWithStage(t *testing.T) {
	t.Run("sets a missing stage", func(t *testing.T) {
		err := WithStage(WrapErrorWithReason("Find", CodeNotFound, "element_not_found"), StageExport)

		assert.Equal(t, StageExport, Stage(err))
	})

	t.Run("keeps an existing stage", func(t *testing.T) {
		err := Wrap("Deliver", CodeDeliveryFailed, errors.New("eof"), map[string]any{MetaStage: StageDelivery})

		assert.Equal(t, StageDelivery, Stage(WithStage(err, StageExport)))
	})

	t.Run("nil metadata", func(t *testing.T) {
		err := WithStage(&Error{Op: "Find", Code: CodeNotFound}, StageFilter)

		assert.Equal(t, StageFilter, Stage(err))
	})

	t.Run("plain error", func(t *testing.T) {
		plain := errors.New("plain")

		assert.Same(t, plain, WithStage(plain, StageExport))
		assert.Empty(t, Stage(plain))
	})
}

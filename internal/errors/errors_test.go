package errors

import (
	"fmt"
	"testing"

	crdberrors "github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
)

func TestErrorFormatting(t *testing.T) {
	err := EstimationFailedError("Aggregate", fmt.Errorf("bad key"))
	assert.Equal(t, "Aggregate: statistics estimation failed: bad key (SQLSTATE XXE01)", err.Error())

	err = UndefinedColumnError("id", "orders").WithDetail("dropped")
	assert.Equal(t, "column orders.id does not exist (SQLSTATE 42703) DETAIL: dropped", err.Error())
	assert.Equal(t, "42", CodeCategory(err.Code))
}

func TestIsErrorThroughWrapping(t *testing.T) {
	inner := UnsupportedOperatorError("Sink")
	wrapped := crdberrors.Wrap(inner, "estimating group 3")

	assert.True(t, IsError(wrapped, FeatureNotSupported))
	assert.False(t, IsError(wrapped, InternalError))
	assert.Same(t, inner, GetError(wrapped))
}

func TestGetErrorWrapsGenericErrors(t *testing.T) {
	cause := fmt.Errorf("plain")
	err := GetError(cause)
	assert.Equal(t, InternalError, err.Code)
	assert.ErrorIs(t, err, cause)
	assert.Nil(t, GetError(nil))
}

func TestIsAssertionFailure(t *testing.T) {
	assert.True(t, IsAssertionFailure(crdberrors.AssertionFailedf("missing producer %d", 1)))
	assert.True(t, IsAssertionFailure(EstimationFailedError("CTEConsumer", crdberrors.AssertionFailedf("x"))))
	assert.False(t, IsAssertionFailure(EstimationFailedError("Filter", fmt.Errorf("x"))))
	assert.False(t, IsAssertionFailure(nil))
}

package util

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsClientError(t *testing.T) {
	for _, err := range []error{
		ValidationError("score is required"),
		ErrNotAssigned,
		ErrWindowClosed,
		ErrAlreadyCompleted,
		fmt.Errorf("submit: %w", ErrAttemptsExhausted),
	} {
		assert.True(t, IsClientError(err), err.Error())
	}

	assert.False(t, IsClientError(Persistence("insert attempt record", errors.New("disk full"))))
	assert.False(t, IsClientError(ErrNotFound))
	assert.False(t, IsClientError(nil))
}

func TestValidationErrorMessage(t *testing.T) {
	err := ValidationError("%s must be at least %d", "timeTaken", 0)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, "invalid submission: timeTaken must be at least 0", err.Error())
}

func TestPersistenceWrapsOnce(t *testing.T) {
	assert.NoError(t, Persistence("noop", nil))

	inner := Persistence("update remediation target", ErrConcurrentUpdate)
	outer := Persistence("submit retest", inner)
	assert.Same(t, inner, outer)
	assert.ErrorIs(t, outer, ErrConcurrentUpdate)

	var pe *PersistenceError
	assert.True(t, errors.As(outer, &pe))
	assert.Equal(t, "update remediation target", pe.Op)
}

func TestRejectionReason(t *testing.T) {
	assert.Equal(t, "validation", RejectionReason(ValidationError("x")))
	assert.Equal(t, "not_assigned", RejectionReason(ErrNotAssigned))
	assert.Equal(t, "window_closed", RejectionReason(ErrWindowClosed))
	assert.Equal(t, "already_completed", RejectionReason(ErrAlreadyCompleted))
	assert.Equal(t, "attempts_exhausted", RejectionReason(ErrAttemptsExhausted))
	assert.Equal(t, "error", RejectionReason(errors.New("boom")))
}

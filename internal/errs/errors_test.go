package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationErrorMatchesInvalidInput(t *testing.T) {
	err := Invalid("quantity", "must not be negative, got %v", -1.5)

	assert.True(t, errors.Is(err, ErrInvalidInput))
	assert.True(t, IsInvalidInput(fmt.Errorf("record 3: %w", err)))
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, "quantity: must not be negative, got -1.5", err.Error())
	assert.Equal(t, "quantity", FieldOf(fmt.Errorf("wrapped: %w", err)))
}

func TestValidationErrorUnwrapsCause(t *testing.T) {
	cause := errors.New("strconv failure")
	err := &ValidationError{Field: "period", Message: "malformed", Cause: cause}

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "period: malformed: strconv failure", err.Error())
	assert.Equal(t, "", FieldOf(cause))
}

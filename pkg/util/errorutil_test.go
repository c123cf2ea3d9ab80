package util

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRetryability(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.False(t, IsRetryable(NewNormalizationError("bad payload", nil)))
	assert.False(t, IsRetryable(NewDeliveryPermanent(errors.New("bad address"))))

	assert.True(t, IsRetryable(NewResponderTimeout(errors.New("deadline"))))
	assert.True(t, IsRetryable(NewResponderFailure(errors.New("502"))))
	assert.True(t, IsRetryable(NewDeliveryTransient(errors.New("reset"))))
	assert.True(t, IsRetryable(NewIdentityConflict(errors.New("race"))))

	// Unknown errors default to retryable.
	assert.True(t, IsRetryable(errors.New("who knows")))
}

func TestHasCodeSeesThroughWrapping(t *testing.T) {
	err := fmt.Errorf("processing: %w", NewDeliveryPermanent(errors.New("rejected")))
	assert.True(t, HasCode(err, CodeDeliveryPermanent))
	assert.False(t, HasCode(err, CodeDeliveryTransient))
	assert.False(t, HasCode(errors.New("plain"), CodeDeliveryPermanent))
}

func TestToDomainErrorPassthrough(t *testing.T) {
	original := NewNormalizationError("bad", map[string]any{"field": "body"})
	converted := ToDomainError(original)
	assert.Equal(t, CodeNormalizationFailed, converted.Code)
	assert.Equal(t, "body", converted.Details["field"])

	wrapped := ToDomainError(errors.New("boom"))
	assert.Equal(t, "INTERNAL_ERROR", wrapped.Code)
	assert.True(t, wrapped.Retryable)
}

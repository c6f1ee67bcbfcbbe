package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInvalidInput(t *testing.T) {
	err := InvalidInput("confidence %v out of range", 1.5)
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, "invalid input: confidence 1.5 out of range", err.Error())
	assert.False(t, IsUpstreamFailure(err))
}

func TestIsUpstreamFailure(t *testing.T) {
	assert.True(t, IsUpstreamFailure(fmt.Errorf("detect: %w", ErrUpstreamUnavailable)))
	assert.True(t, IsUpstreamFailure(ErrUpstreamRejected))
	assert.True(t, IsUpstreamFailure(ErrMalformedPayload))
	assert.False(t, IsUpstreamFailure(errors.New("disk full")))
	assert.False(t, IsUpstreamFailure(nil))
}

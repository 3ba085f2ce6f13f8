package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOfWrapped(t *testing.T) {
	err := fmt.Errorf("save route: %w", NotFound("Vehicle", int64(7)))
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.Equal(t, "Vehicle with id '7' was not found", Message(err))
	assert.Equal(t, http.StatusNotFound, KindOf(err).HTTPStatus())
}

func TestPlainErrorsAreInternal(t *testing.T) {
	err := errors.New("connection reset")
	assert.Equal(t, KindInternal, KindOf(err))
	assert.Equal(t, "Internal server error", Message(err))
	assert.Equal(t, http.StatusInternalServerError, KindOf(err).HTTPStatus())
}

func TestBadRequest(t *testing.T) {
	err := BadRequest("Limit must be positive")
	assert.True(t, Is(err, KindBadRequest))
	assert.False(t, Is(nil, KindBadRequest))
	assert.Equal(t, "Limit must be positive", err.Error())
}

func TestInternalKeepsCause(t *testing.T) {
	cause := errors.New("boom")
	err := Internal(cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "Internal server error", Message(err))
}

func TestNotFoundMessages(t *testing.T) {
	assert.Equal(t, "Resource not found", NotFound("", nil).Error())
	assert.Equal(t, "Route was not found", NotFound("Route", nil).Error())
}

package apperr

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusAndCode_CodedError(t *testing.T) {
	err := New("hitl.decide", KindValidation, "BAD_REQUEST", "title required", nil)
	status, code := StatusAndCode(err)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "BAD_REQUEST", code)
}

func TestStatusAndCode_Sentinels(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{ErrNotFound, http.StatusNotFound},
		{ErrAlreadyTerminal, http.StatusBadRequest},
		{ErrUnauthorized, http.StatusForbidden},
		{ErrQuotaExceeded, http.StatusTooManyRequests},
		{ErrBlocked, http.StatusForbidden},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		status, _ := StatusAndCode(c.err)
		assert.Equal(t, c.status, status)
	}
}

func TestCodedError_Unwrap(t *testing.T) {
	cause := errors.New("underlying")
	err := New("op", KindTransport, "TRANSPORT", "failed", cause)
	assert.True(t, errors.Is(err, cause))
}

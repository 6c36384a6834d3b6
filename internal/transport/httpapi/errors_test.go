package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kgellert/hodatay-chat/internal/chats"
	"github.com/kgellert/hodatay-chat/internal/hub/auth"
	response "github.com/kgellert/hodatay-chat/internal/lib"
	"github.com/kgellert/hodatay-chat/internal/uploads"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("op: %w", chats.ErrChatNotFound), http.StatusNotFound, response.CodeChatNotFound},
		{chats.ErrInvalidRecipient, http.StatusBadRequest, response.CodeInvalidRecipient},
		{uploads.ErrInvalidContentType, http.StatusBadRequest, response.CodeInvalidContentType},
		{auth.ErrInvalidToken, http.StatusUnauthorized, response.CodeUnauthorized},
		{fmt.Errorf("db down"), http.StatusInternalServerError, response.CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			status, code, _ := MapError(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, code)
		})
	}
}

func TestWriteError_HidesInternalMessage(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	WriteError(w, r, fmt.Errorf("pq: password authentication failed"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var body response.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, response.ErrorBody{Code: response.CodeInternal, Message: "internal server error"}, body.Error)
}

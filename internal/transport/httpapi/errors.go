package httpapi

import (
	"errors"
	"net/http"

	"github.com/kgellert/hodatay-chat/internal/chats"
	"github.com/kgellert/hodatay-chat/internal/hub/auth"
	response "github.com/kgellert/hodatay-chat/internal/lib"
	"github.com/kgellert/hodatay-chat/internal/messages"
	"github.com/kgellert/hodatay-chat/internal/uploads"
)

var ErrBadRequest = errors.New("bad request")

func MapError(err error) (status int, code, msg string) {
	switch {
	case errors.Is(err, chats.ErrChatNotFound):
		return http.StatusNotFound, response.CodeChatNotFound, err.Error()

	case errors.Is(err, chats.ErrNotAMember):
		return http.StatusForbidden, response.CodeNotAMember, err.Error()

	case errors.Is(err, chats.ErrEmptyParticipants):
		return http.StatusBadRequest, response.CodeEmptyParticipants, err.Error()

	case errors.Is(err, chats.ErrInvalidRecipient):
		return http.StatusBadRequest, response.CodeInvalidRecipient, err.Error()

	case errors.Is(err, chats.ErrGroupNameRequired):
		return http.StatusBadRequest, response.CodeGroupNameRequired, err.Error()

	case errors.Is(err, messages.ErrMessageIsNotExist):
		return http.StatusNotFound, response.CodeMessageNotFound, err.Error()
	case errors.Is(err, messages.ErrTextOrAttachmentsIsRequired):
		return http.StatusBadRequest, response.CodeTextOrAttachmentsRequired, err.Error()

	case errors.Is(err, uploads.ErrContentTypeIsRequired):
		return http.StatusBadRequest, response.CodeContentTypeRequired, err.Error()

	case errors.Is(err, uploads.ErrInvalidContentType), errors.Is(err, uploads.ErrExtensionMismatch):
		return http.StatusBadRequest, response.CodeInvalidContentType, err.Error()

	case errors.Is(err, uploads.ErrInvalidFileID):
		return http.StatusBadRequest, response.CodeInvalidFileID, err.Error()

	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrMissingToken):
		return http.StatusUnauthorized, response.CodeUnauthorized, err.Error()

	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, response.CodeBadRequest, err.Error()
	}

	return http.StatusInternalServerError, response.CodeInternal, "internal server error"
}

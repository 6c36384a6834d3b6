// Package httpapi is the hub's HTTP surface: the websocket endpoint plus the
// request/response calls that do not fit the event stream.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kgellert/hodatay-chat/internal/attachments"
	"github.com/kgellert/hodatay-chat/internal/chats"
	"github.com/kgellert/hodatay-chat/internal/directchat"
	"github.com/kgellert/hodatay-chat/internal/hub/auth"
	apierrors "github.com/kgellert/hodatay-chat/internal/transport/httpapi"
	"github.com/kgellert/hodatay-chat/internal/uploads"
)

type DirectChatCreator interface {
	CreateDirectChat(ctx context.Context, userID, recipientID string) (chats.Chat, error)
}

type UploadPresigner interface {
	PresignUpload(ctx context.Context, filename, contentType string) (uploads.Presigned, error)
	PresignDownload(ctx context.Context, fileID string) (uploads.Presigned, error)
}

type Deps struct {
	Auth   *auth.Authenticator
	WS     http.Handler
	Direct DirectChatCreator
	// Uploads is optional; without it the upload routes are not mounted.
	Uploads UploadPresigner
	// Config is served as JSON on GET /config.
	Config any
	Log    *slog.Logger
}

func NewRouter(d Deps) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(Logger(d.Log))
	router.Use(middleware.Recoverer)

	router.Get("/config", getConfig(d.Config, d.Log))

	// the websocket handler answers 401 itself before upgrading
	router.Get("/ws", d.WS.ServeHTTP)

	router.Group(func(r chi.Router) {
		r.Use(d.Auth.Middleware(apierrors.WriteError))

		r.Post(directchat.Path, createDirectChat(d.Direct, d.Log))

		if d.Uploads != nil {
			r.Post(attachments.PresignUploadPath, presignUpload(d.Uploads, d.Log))
			r.Post(attachments.PresignDownloadPath, presignDownload(d.Uploads, d.Log))
		}
	})

	return router
}

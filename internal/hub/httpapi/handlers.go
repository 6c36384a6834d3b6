package httpapi

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/kgellert/hodatay-chat/internal/chats"
	"github.com/kgellert/hodatay-chat/internal/hub/auth"
	"github.com/kgellert/hodatay-chat/internal/lib/logger/sl"
	apierrors "github.com/kgellert/hodatay-chat/internal/transport/httpapi"
	"github.com/kgellert/hodatay-chat/internal/uploads"
)

type configResponse struct {
	Config any `json:"config"`
}

func getConfig(cfg any, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "httpapi.GetConfig"

		log.Debug("config requested",
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		render.JSON(w, r, configResponse{Config: cfg})
	}
}

func createDirectChat(direct DirectChatCreator, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "httpapi.CreateDirectChat"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		id, _ := auth.FromContext(r.Context())

		var req chats.CreateDirectChatRequest
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			log.Info("invalid body", sl.Err(err))
			apierrors.WriteError(w, r, fmt.Errorf("%w: invalid body", apierrors.ErrBadRequest))
			return
		}

		chat, err := direct.CreateDirectChat(r.Context(), id.UserID, req.RecipientID)
		if err != nil {
			log.Error("failed to create direct chat", sl.Err(err))
			apierrors.WriteError(w, r, err)
			return
		}

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, chats.CreateDirectChatResponse{Chat: chat})
	}
}

func presignUpload(presigner UploadPresigner, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "httpapi.PresignUpload"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req uploads.PresignUploadRequest
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			log.Info("invalid body", sl.Err(err))
			apierrors.WriteError(w, r, fmt.Errorf("%w: invalid body", apierrors.ErrBadRequest))
			return
		}

		ps, err := presigner.PresignUpload(r.Context(), req.Filename, req.ContentType)
		if err != nil {
			log.Error("presign upload error", sl.Err(err))
			apierrors.WriteError(w, r, err)
			return
		}

		render.JSON(w, r, uploads.PresignUploadResponse{
			FileID:    ps.FileID,
			UploadURL: ps.URL,
			ExpiresIn: int(ps.ExpiresIn.Seconds()),
		})
	}
}

func presignDownload(presigner UploadPresigner, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "httpapi.PresignDownload"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req uploads.PresignDownloadRequest
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			log.Info("invalid body", sl.Err(err))
			apierrors.WriteError(w, r, fmt.Errorf("%w: invalid body", apierrors.ErrBadRequest))
			return
		}

		ps, err := presigner.PresignDownload(r.Context(), req.FileID)
		if err != nil {
			log.Error("presign download error", sl.Err(err))
			apierrors.WriteError(w, r, err)
			return
		}

		render.JSON(w, r, uploads.PresignDownloadResponse{
			URL:       ps.URL,
			ExpiresIn: int(ps.ExpiresIn.Seconds()),
		})
	}
}

// Package attachments uploads local files through presigned URLs issued by
// the hub and turns them into message attachments.
package attachments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/render"

	response "github.com/kgellert/hodatay-chat/internal/lib"
	"github.com/kgellert/hodatay-chat/internal/messages"
	"github.com/kgellert/hodatay-chat/internal/uploads"
)

const (
	PresignUploadPath   = "/uploads/presign-upload"
	PresignDownloadPath = "/uploads/presign-download"
)

var (
	ErrUnsupportedFile = errors.New("unsupported file type")
	ErrUploadFailed    = errors.New("upload failed")
)

type Uploader struct {
	baseURL string
	session string
	http    *http.Client
}

func NewUploader(baseURL, session string, timeout time.Duration) *Uploader {
	return &Uploader{
		baseURL: strings.TrimRight(baseURL, "/"),
		session: session,
		http:    &http.Client{Timeout: timeout},
	}
}

// Upload sends the file at path to object storage and returns the attachment
// to put on a message.
func (u *Uploader) Upload(ctx context.Context, path string) (messages.Attachment, error) {
	const op = "attachments.Uploader.Upload"

	data, err := os.ReadFile(path)
	if err != nil {
		return messages.Attachment{}, fmt.Errorf("%s: %w", op, err)
	}

	filename := filepath.Base(path)
	contentType, ok := uploads.ContentTypeForExt(strings.ToLower(filepath.Ext(filename)))
	if !ok {
		contentType = http.DetectContentType(data)
		if i := strings.IndexByte(contentType, ';'); i >= 0 {
			contentType = contentType[:i]
		}
		if !uploads.IsValidContentType(contentType) {
			return messages.Attachment{}, fmt.Errorf("%s: %w: %s", op, ErrUnsupportedFile, contentType)
		}
		filename = ""
	}

	var presigned uploads.PresignUploadResponse
	err = u.postJSON(ctx, PresignUploadPath, uploads.PresignUploadRequest{
		Filename:    filename,
		ContentType: contentType,
	}, &presigned)
	if err != nil {
		return messages.Attachment{}, fmt.Errorf("%s: presign: %w", op, err)
	}

	if err := u.put(ctx, presigned.UploadURL, contentType, data); err != nil {
		return messages.Attachment{}, fmt.Errorf("%s: %w", op, err)
	}

	return messages.Attachment{
		FileID:      presigned.FileID,
		ContentType: contentType,
		Filename:    filepath.Base(path),
		Size:        int64(len(data)),
	}, nil
}

// DownloadURL returns a short-lived URL for an attachment.
func (u *Uploader) DownloadURL(ctx context.Context, fileID string) (string, error) {
	const op = "attachments.Uploader.DownloadURL"

	var out uploads.PresignDownloadResponse
	if err := u.postJSON(ctx, PresignDownloadPath, uploads.PresignDownloadRequest{FileID: fileID}, &out); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return out.URL, nil
}

func (u *Uploader) postJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+u.session)

	resp, err := u.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e response.ErrorResponse
		if derr := render.DecodeJSON(resp.Body, &e); derr != nil || e.Error.Message == "" {
			return fmt.Errorf("%w: status %d", ErrUploadFailed, resp.StatusCode)
		}
		return fmt.Errorf("%w: %s: %s", ErrUploadFailed, e.Error.Code, e.Error.Message)
	}

	return render.DecodeJSON(resp.Body, out)
}

func (u *Uploader) put(ctx context.Context, url, contentType string, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	req.ContentLength = int64(len(data))

	resp, err := u.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("%w: storage returned %d", ErrUploadFailed, resp.StatusCode)
	}
	return nil
}

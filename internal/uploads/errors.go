package uploads

import (
	"errors"
)

var (
	ErrInvalidFileID         = errors.New("invalid file id")
	ErrContentTypeIsRequired = errors.New("contentType is required")
	ErrInvalidContentType    = errors.New("invalid contentType")
	ErrExtensionMismatch     = errors.New("file extension does not match content type")
)

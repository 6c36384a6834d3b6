package uploads

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const keyPrefix = "uploads/"

// GenerateKey returns a fresh object key "uploads/<uuidv7><ext>" for a file
// of contentType.
func GenerateKey(filename, contentType string) (string, error) {
	const op = "uploads.GenerateKey"

	if contentType == "" {
		return "", ErrContentTypeIsRequired
	}
	ext, ok := ExtForContentType(contentType)
	if !ok {
		return "", ErrInvalidContentType
	}

	if filename != "" {
		if fExt := strings.ToLower(filepath.Ext(filename)); fExt != "" && fExt != ext {
			return "", ErrExtensionMismatch
		}
	}

	u, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return keyPrefix + u.String() + ext, nil
}

// ValidateKey accepts only keys GenerateKey could have produced.
func ValidateKey(key string) error {
	if !strings.HasPrefix(key, keyPrefix) || strings.Contains(key, "..") {
		return ErrInvalidFileID
	}
	id := strings.TrimSuffix(strings.TrimPrefix(key, keyPrefix), filepath.Ext(key))
	if _, err := uuid.Parse(id); err != nil {
		return ErrInvalidFileID
	}
	return nil
}

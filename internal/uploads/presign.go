package uploads

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/kgellert/hodatay-chat/internal/messages"
)

const DefaultPresignTTL = 15 * time.Minute

// Presigner is the subset of *s3.PresignClient the service uses.
type Presigner interface {
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// ObjectHeader is the subset of *s3.Client the service uses.
type ObjectHeader interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

type Service struct {
	bucket    string
	presigner Presigner
	objects   ObjectHeader
	ttl       time.Duration
}

func NewService(bucket string, presigner Presigner, objects ObjectHeader, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultPresignTTL
	}
	return &Service{bucket: bucket, presigner: presigner, objects: objects, ttl: ttl}
}

type Presigned struct {
	FileID    string
	URL       string
	Method    string
	ExpiresIn time.Duration
}

func (s *Service) PresignUpload(ctx context.Context, filename, contentType string) (Presigned, error) {
	const op = "uploads.Service.PresignUpload"

	key, err := GenerateKey(filename, contentType)
	if err != nil {
		return Presigned{}, fmt.Errorf("%s: %w", op, err)
	}

	req := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}
	if filename != "" {
		req.Metadata = map[string]string{"original-filename": filename}
	}

	ps, err := s.presigner.PresignPutObject(ctx, req, func(po *s3.PresignOptions) {
		po.Expires = s.ttl
	})
	if err != nil {
		return Presigned{}, fmt.Errorf("%s: %w", op, err)
	}

	return Presigned{FileID: key, URL: ps.URL, Method: http.MethodPut, ExpiresIn: s.ttl}, nil
}

func (s *Service) PresignDownload(ctx context.Context, fileID string) (Presigned, error) {
	const op = "uploads.Service.PresignDownload"

	if err := ValidateKey(fileID); err != nil {
		return Presigned{}, fmt.Errorf("%s: %w", op, err)
	}

	ps, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(fileID),
	}, func(po *s3.PresignOptions) {
		po.Expires = s.ttl
	})
	if err != nil {
		return Presigned{}, fmt.Errorf("%s: %w", op, err)
	}

	return Presigned{FileID: fileID, URL: ps.URL, Method: http.MethodGet, ExpiresIn: s.ttl}, nil
}

// FileInfo reads the stored object's metadata. The hub uses it to fill in
// attachments of outgoing messages from what was actually uploaded.
func (s *Service) FileInfo(ctx context.Context, fileID string) (messages.Attachment, error) {
	const op = "uploads.Service.FileInfo"

	if err := ValidateKey(fileID); err != nil {
		return messages.Attachment{}, fmt.Errorf("%s: %w", op, err)
	}

	head, err := s.objects.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(fileID),
	})
	if err != nil {
		return messages.Attachment{}, fmt.Errorf("%s: %w", op, err)
	}

	att := messages.Attachment{FileID: fileID, Filename: fileID}
	if name, ok := head.Metadata["original-filename"]; ok {
		att.Filename = name
	}
	if head.ContentType != nil {
		att.ContentType = *head.ContentType
	}
	if head.ContentLength != nil {
		att.Size = *head.ContentLength
	}
	return att, nil
}

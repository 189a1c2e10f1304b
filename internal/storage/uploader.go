// Package storage hands out presigned S3 URLs for file-field uploads.
// Submitters upload straight to the bucket; the API never proxies file
// bytes.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/formloom/formloom/pkg/config"
)

var (
	ErrFileTooLarge = errors.New("file exceeds the upload size limit")
	ErrInvalidKey   = errors.New("invalid storage key")
)

const (
	presignTTL  = 15 * time.Minute
	keyPrefix   = "forms/"
	maxNameLen  = 64
	defaultName = "upload"
)

// PresignAPI is the slice of s3.PresignClient the uploader uses.
type PresignAPI interface {
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// NewClient builds an S3 client for cfg. A non-empty endpoint switches
// to path-style addressing for MinIO and friends.
func NewClient(ctx context.Context, cfg *config.StorageConfig) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return client, nil
}

type Uploader struct {
	presign  PresignAPI
	bucket   string
	maxBytes int64
}

func NewUploader(client *s3.Client, cfg *config.StorageConfig) *Uploader {
	return &Uploader{
		presign:  s3.NewPresignClient(client),
		bucket:   cfg.Bucket,
		maxBytes: cfg.MaxUploadBytes,
	}
}

// NewUploaderWithPresign injects a presign implementation. Tests use it.
func NewUploaderWithPresign(presign PresignAPI, bucket string, maxBytes int64) *Uploader {
	return &Uploader{presign: presign, bucket: bucket, maxBytes: maxBytes}
}

// Upload is a presigned PUT the client performs directly against the
// bucket.
type Upload struct {
	Key       string    `json:"key"`
	URL       string    `json:"url"`
	Method    string    `json:"method"`
	ExpiresAt time.Time `json:"expires_at"`
}

// PresignUpload issues a one-shot upload slot under the form's prefix.
// The signed request pins content type and length, so the client cannot
// upload something bigger than it declared.
func (u *Uploader) PresignUpload(ctx context.Context, formID uuid.UUID, filename, contentType string, size int64) (*Upload, error) {
	if size <= 0 || size > u.maxBytes {
		return nil, ErrFileTooLarge
	}

	key := fmt.Sprintf("%s%s/%s/%s", keyPrefix, formID, uuid.New(), sanitizeFilename(filename))

	input := &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(key),
		ContentLength: aws.Int64(size),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	req, err := u.presign.PresignPutObject(ctx, input, s3.WithPresignExpires(presignTTL))
	if err != nil {
		return nil, fmt.Errorf("presigning upload: %w", err)
	}

	return &Upload{
		Key:       key,
		URL:       req.URL,
		Method:    req.Method,
		ExpiresAt: time.Now().Add(presignTTL),
	}, nil
}

// PresignDownload issues a read URL for a previously uploaded object.
// Keys outside the upload prefix are refused.
func (u *Uploader) PresignDownload(ctx context.Context, key string) (string, error) {
	if !strings.HasPrefix(key, keyPrefix) || strings.Contains(key, "..") {
		return "", ErrInvalidKey
	}

	req, err := u.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(presignTTL))
	if err != nil {
		return "", fmt.Errorf("presigning download: %w", err)
	}

	return req.URL, nil
}

func sanitizeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))

	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}

	clean := strings.Trim(b.String(), "-.")
	if clean == "" {
		return defaultName
	}
	if len(clean) > maxNameLen {
		clean = clean[len(clean)-maxNameLen:]
	}
	return clean
}

package storage_test

import (
	"context"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formloom/formloom/internal/storage"
)

// fakePresign records inputs and returns canned URLs.
type fakePresign struct {
	lastPut *s3.PutObjectInput
	lastGet *s3.GetObjectInput
}

func (f *fakePresign) PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	f.lastPut = params
	return &v4.PresignedHTTPRequest{
		URL:    "https://bucket.example.com/" + aws.ToString(params.Key) + "?signed",
		Method: "PUT",
	}, nil
}

func (f *fakePresign) PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	f.lastGet = params
	return &v4.PresignedHTTPRequest{
		URL:    "https://bucket.example.com/" + aws.ToString(params.Key) + "?signed",
		Method: "GET",
	}, nil
}

func TestUploader_PresignUpload(t *testing.T) {
	fake := &fakePresign{}
	uploader := storage.NewUploaderWithPresign(fake, "formloom-uploads", 10<<20)
	formID := uuid.New()

	upload, err := uploader.PresignUpload(context.Background(), formID, "résumé final.pdf", "application/pdf", 1024)
	require.NoError(t, err)

	assert.Equal(t, "PUT", upload.Method)
	assert.Contains(t, upload.URL, "?signed")
	assert.True(t, strings.HasPrefix(upload.Key, "forms/"+formID.String()+"/"), "key lives under the form prefix")
	assert.True(t, strings.HasSuffix(upload.Key, ".pdf"), "extension survives sanitizing")
	assert.NotContains(t, upload.Key, " ")

	require.NotNil(t, fake.lastPut)
	assert.Equal(t, "formloom-uploads", aws.ToString(fake.lastPut.Bucket))
	assert.Equal(t, "application/pdf", aws.ToString(fake.lastPut.ContentType))
	assert.Equal(t, int64(1024), aws.ToInt64(fake.lastPut.ContentLength))
}

func TestUploader_PresignUpload_UniqueKeys(t *testing.T) {
	fake := &fakePresign{}
	uploader := storage.NewUploaderWithPresign(fake, "formloom-uploads", 10<<20)
	formID := uuid.New()
	ctx := context.Background()

	first, err := uploader.PresignUpload(ctx, formID, "file.txt", "text/plain", 10)
	require.NoError(t, err)
	second, err := uploader.PresignUpload(ctx, formID, "file.txt", "text/plain", 10)
	require.NoError(t, err)

	assert.NotEqual(t, first.Key, second.Key, "same filename never collides")
}

func TestUploader_PresignUpload_SizeLimit(t *testing.T) {
	uploader := storage.NewUploaderWithPresign(&fakePresign{}, "formloom-uploads", 1024)
	ctx := context.Background()
	formID := uuid.New()

	_, err := uploader.PresignUpload(ctx, formID, "big.bin", "application/octet-stream", 2048)
	assert.ErrorIs(t, err, storage.ErrFileTooLarge)

	_, err = uploader.PresignUpload(ctx, formID, "empty.bin", "application/octet-stream", 0)
	assert.ErrorIs(t, err, storage.ErrFileTooLarge)
}

func TestUploader_PresignDownload(t *testing.T) {
	fake := &fakePresign{}
	uploader := storage.NewUploaderWithPresign(fake, "formloom-uploads", 10<<20)
	ctx := context.Background()

	url, err := uploader.PresignDownload(ctx, "forms/abc/def/file.pdf")
	require.NoError(t, err)
	assert.Contains(t, url, "forms/abc/def/file.pdf")

	t.Run("foreign keys are refused", func(t *testing.T) {
		_, err := uploader.PresignDownload(ctx, "secrets/backup.sql")
		assert.ErrorIs(t, err, storage.ErrInvalidKey)

		_, err = uploader.PresignDownload(ctx, "forms/../secrets/backup.sql")
		assert.ErrorIs(t, err, storage.ErrInvalidKey)
	})
}

func TestUploader_SanitizedFilenames(t *testing.T) {
	fake := &fakePresign{}
	uploader := storage.NewUploaderWithPresign(fake, "formloom-uploads", 10<<20)
	ctx := context.Background()
	formID := uuid.New()

	tests := []struct {
		filename string
		contains string
	}{
		{"../../etc/passwd", "passwd"},
		{"C:\\Users\\me\\doc.docx", "doc.docx"},
		{"....", "upload"},
		{"", "upload"},
	}

	for _, tt := range tests {
		upload, err := uploader.PresignUpload(ctx, formID, tt.filename, "application/octet-stream", 10)
		require.NoError(t, err)
		assert.NotContains(t, upload.Key, "..")
		assert.Contains(t, upload.Key, tt.contains)
	}
}

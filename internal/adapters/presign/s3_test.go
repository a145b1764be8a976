package presign

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/bnema/primedictation-export/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPresigner(t *testing.T) *S3Presigner {
	t.Helper()
	presigner, err := NewS3Presigner(context.Background(), S3Config{
		Bucket:    "pdx-exports",
		Region:    "us-east-1",
		Endpoint:  "http://127.0.0.1:9000",
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
		Expiry:    5 * time.Minute,
	})
	require.NoError(t, err)
	return presigner
}

func TestS3PresignerSignsPut(t *testing.T) {
	presigner := newTestPresigner(t)

	upload, err := presigner.Presign(context.Background(), domain.PresignRequest{
		Key:           "recordings/memo.m4a",
		ContentType:   "audio/mp4",
		ContentLength: 10,
	})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPut, upload.Method)
	assert.Equal(t, "pdx-exports", upload.Bucket)
	assert.Equal(t, int64(300), upload.ExpiresIn)
	assert.Equal(t, "audio/mp4", upload.Headers["Content-Type"])
	assert.NotContains(t, upload.Headers, "Host")

	parsed, err := url.Parse(upload.URL)
	require.NoError(t, err)
	assert.Equal(t, "/pdx-exports/recordings/memo.m4a", parsed.Path)
	assert.NotEmpty(t, parsed.Query().Get("X-Amz-Signature"))
	assert.Equal(t, "300", parsed.Query().Get("X-Amz-Expires"))
}

func TestS3PresignerRejectsForeignKeys(t *testing.T) {
	presigner := newTestPresigner(t)

	_, err := presigner.Presign(context.Background(), domain.PresignRequest{Key: "users/1/secret"})
	require.ErrorIs(t, err, ErrKeyNotAllowed)
}

func TestS3PresignerRequiresBucket(t *testing.T) {
	_, err := NewS3Presigner(context.Background(), S3Config{Region: "us-east-1"})
	require.Error(t, err)
}

func TestS3PresignerPropagatesPresignError(t *testing.T) {
	orig := presignPutObject
	t.Cleanup(func() { presignPutObject = orig })

	presignPutObject = func(*s3.PresignClient, context.Context, *s3.PutObjectInput, ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return nil, errors.New("presign-put-fail")
	}

	presigner := newTestPresigner(t)
	_, err := presigner.Presign(context.Background(), domain.PresignRequest{Key: "transcriptions/memo.txt"})
	require.ErrorContains(t, err, "presign-put-fail")
}

func TestS3PresignerPropagatesConfigError(t *testing.T) {
	orig := loadDefaultAWSConfig
	t.Cleanup(func() { loadDefaultAWSConfig = orig })

	loadDefaultAWSConfig = func(context.Context, ...func(*config.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, errors.New("no config")
	}

	_, err := NewS3Presigner(context.Background(), S3Config{Bucket: "b"})
	require.ErrorContains(t, err, "load aws config")
}

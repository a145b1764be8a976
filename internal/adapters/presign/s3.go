package presign

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/bnema/primedictation-export/internal/domain"
)

const DefaultExpiry = 15 * time.Minute

var ErrKeyNotAllowed = errors.New("object key not allowed")

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignPutObject(ctx, in, optFns...)
	}
)

type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	Expiry    time.Duration
}

// S3Presigner signs PUT requests for objects in one bucket.
type S3Presigner struct {
	cfg    S3Config
	client *s3.PresignClient
}

func NewS3Presigner(ctx context.Context, cfg S3Config) (*S3Presigner, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 presigner: bucket is required")
	}
	if cfg.Expiry <= 0 {
		cfg.Expiry = DefaultExpiry
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := newS3ClientFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Presigner{cfg: cfg, client: newS3PresignClient(client)}, nil
}

// Presign signs a PUT for req.Key. Keys outside the recording and
// transcription prefixes are rejected.
func (p *S3Presigner) Presign(ctx context.Context, req domain.PresignRequest) (domain.PresignedUpload, error) {
	if !strings.HasPrefix(req.Key, domain.RecordingKeyPrefix) && !strings.HasPrefix(req.Key, domain.TranscriptionKeyPrefix) {
		return domain.PresignedUpload{}, fmt.Errorf("%w: key %q", ErrKeyNotAllowed, req.Key)
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(p.cfg.Bucket),
		Key:    aws.String(req.Key),
	}
	if req.ContentType != "" {
		input.ContentType = aws.String(req.ContentType)
	}
	if req.ContentLength > 0 {
		input.ContentLength = aws.Int64(req.ContentLength)
	}

	signed, err := presignPutObject(p.client, ctx, input, s3.WithPresignExpires(p.cfg.Expiry))
	if err != nil {
		return domain.PresignedUpload{}, fmt.Errorf("presign put object: %w", err)
	}

	return domain.PresignedUpload{
		URL:       signed.URL,
		Method:    signed.Method,
		Headers:   flattenHeaders(signed.SignedHeader),
		Key:       req.Key,
		Bucket:    p.cfg.Bucket,
		Region:    p.cfg.Region,
		ExpiresIn: int64(p.cfg.Expiry / time.Second),
	}, nil
}

// flattenHeaders keeps the headers the uploader must replay. Host is set by
// the HTTP client from the URL.
func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for key, values := range h {
		if strings.EqualFold(key, "Host") || len(values) == 0 {
			continue
		}
		out[key] = values[0]
	}
	return out
}

// Package presign issues and consumes presigned S3 upload URLs for email
// export: an HTTP client for the signing service, the S3 presigner and the
// development signing server.
package presign

import "github.com/bnema/primedictation-export/internal/domain"

type presignRequest struct {
	Key           string `json:"key"`
	ContentType   string `json:"contentType"`
	ContentLength int64  `json:"contentLength"`
}

type presignResponse struct {
	URL       string            `json:"url"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers"`
	Key       string            `json:"key"`
	Bucket    string            `json:"bucket"`
	Region    string            `json:"region"`
	ExpiresIn int64             `json:"expiresIn"`
}

func (r presignRequest) domain() domain.PresignRequest {
	return domain.PresignRequest{Key: r.Key, ContentType: r.ContentType, ContentLength: r.ContentLength}
}

func (r presignResponse) domain() domain.PresignedUpload {
	return domain.PresignedUpload{
		URL:       r.URL,
		Method:    r.Method,
		Headers:   r.Headers,
		Key:       r.Key,
		Bucket:    r.Bucket,
		Region:    r.Region,
		ExpiresIn: r.ExpiresIn,
	}
}

func responseFrom(upload domain.PresignedUpload) presignResponse {
	return presignResponse{
		URL:       upload.URL,
		Method:    upload.Method,
		Headers:   upload.Headers,
		Key:       upload.Key,
		Bucket:    upload.Bucket,
		Region:    upload.Region,
		ExpiresIn: upload.ExpiresIn,
	}
}

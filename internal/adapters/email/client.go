// Package email talks to the first-party email export service: it PUTs
// objects to presigned URLs and asks the service to mail the recording.
package email

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bnema/primedictation-export/internal/adapters/cloud/transport"
	"github.com/bnema/primedictation-export/internal/domain"
	"github.com/bnema/primedictation-export/internal/logging"
	"github.com/bnema/primedictation-export/internal/ports"
)

const (
	objectUploadTimeout = 2 * time.Minute
	sendTimeout         = 30 * time.Second
)

type Client struct {
	sendURL string
	api     transport.Client
}

var (
	_ ports.ObjectUploader = (*Client)(nil)
	_ ports.EmailSender    = (*Client)(nil)
)

func NewClient(sendURL string, httpClient *http.Client, log logging.Logger) *Client {
	return &Client{
		sendURL: sendURL,
		api:     transport.Client{HTTPClient: httpClient, Logger: log},
	}
}

// PutObject replays the presigned method and headers exactly; the signature
// covers them.
func (c *Client) PutObject(ctx context.Context, upload domain.PresignedUpload, body io.Reader, size int64) error {
	method := upload.Method
	if method == "" {
		method = http.MethodPut
	}

	headers := make(map[string]string, len(upload.Headers))
	for key, value := range upload.Headers {
		headers[key] = value
	}

	resp, release, err := c.api.Do(ctx, transport.Request{
		Op:            "upload object",
		Method:        method,
		URL:           upload.URL,
		Body:          body,
		Headers:       headers,
		ContentLength: size,
		Timeout:       objectUploadTimeout,
	})
	if err != nil {
		return err
	}
	defer release()

	return transport.CheckStatus("upload object "+upload.Key, resp)
}

type sendRequest struct {
	ToEmail          string `json:"toEmail"`
	RecordingKey     string `json:"recordingKey"`
	TranscriptionKey string `json:"transcriptionKey,omitempty"`
}

func (c *Client) SendRecording(ctx context.Context, bearer string, req domain.EmailRequest) error {
	if c.sendURL == "" {
		return errors.New("send recording: send url is not configured")
	}
	body, err := transport.JSONBody(sendRequest{
		ToEmail:          req.ToEmail,
		RecordingKey:     req.RecordingKey,
		TranscriptionKey: req.TranscriptionKey,
	})
	if err != nil {
		return err
	}

	err = c.api.DoJSON(ctx, transport.Request{
		Op:     "send recording",
		Method: http.MethodPost,
		URL:    c.sendURL,
		Body:   body,
		Headers: map[string]string{
			"Authorization": "Bearer " + bearer,
			"Content-Type":  "application/json",
		},
		Timeout: sendTimeout,
	}, nil)
	if err != nil {
		return fmt.Errorf("send recording to %s: %w", req.ToEmail, err)
	}
	return nil
}

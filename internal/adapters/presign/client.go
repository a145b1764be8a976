package presign

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bnema/primedictation-export/internal/adapters/cloud/transport"
	"github.com/bnema/primedictation-export/internal/domain"
	"github.com/bnema/primedictation-export/internal/logging"
	"github.com/bnema/primedictation-export/internal/ports"
)

const defaultSignerTimeout = 30 * time.Second

// Client requests presigned uploads from a remote signing service.
type Client struct {
	url string
	api transport.Client
}

var _ ports.UploadSigner = (*Client)(nil)

func NewClient(signerURL string, httpClient *http.Client, log logging.Logger) *Client {
	return &Client{
		url: signerURL,
		api: transport.Client{HTTPClient: httpClient, Logger: log, RequestTimeout: defaultSignerTimeout},
	}
}

// PresignUpload returns a *domain.StatusError matching domain.ErrUnauthorized
// when the service rejects the bearer token.
func (c *Client) PresignUpload(ctx context.Context, bearer string, req domain.PresignRequest) (domain.PresignedUpload, error) {
	if c.url == "" {
		return domain.PresignedUpload{}, errors.New("presign upload: signer url is not configured")
	}

	body, err := transport.JSONBody(presignRequest{Key: req.Key, ContentType: req.ContentType, ContentLength: req.ContentLength})
	if err != nil {
		return domain.PresignedUpload{}, err
	}

	var out presignResponse
	err = c.api.DoJSON(ctx, transport.Request{
		Op:     "presign upload",
		Method: http.MethodPost,
		URL:    c.url,
		Body:   body,
		Headers: map[string]string{
			"Authorization": "Bearer " + bearer,
			"Content-Type":  "application/json",
		},
	}, &out)
	if err != nil {
		return domain.PresignedUpload{}, err
	}
	if out.URL == "" {
		return domain.PresignedUpload{}, fmt.Errorf("presign upload %q: empty url in response", req.Key)
	}
	if out.Method == "" {
		out.Method = http.MethodPut
	}
	if out.Key == "" {
		out.Key = req.Key
	}
	return out.domain(), nil
}

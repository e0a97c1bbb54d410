package client

import (
	"context"
	"encoding/base64"
	"time"
)

// ExtractionClient calls the document-extraction service which turns raw
// uploaded bytes into plain text.
type ExtractionClient struct {
	httpClient
}

func NewExtractionClient(base string, timeout time.Duration) *ExtractionClient {
	return &ExtractionClient{newHTTPClient(base, "extraction", timeout)}
}

type extractRequest struct {
	Content string `json:"content"` // base64 encoded raw document
}

type extractResponse struct {
	Text string `json:"text"`
}

func (c *ExtractionClient) Extract(ctx context.Context, raw []byte) (string, error) {
	var out extractResponse
	in := extractRequest{Content: base64.StdEncoding.EncodeToString(raw)}
	if err := c.postJSON(ctx, "/v1/extract", in, &out); err != nil {
		return "", err
	}
	return out.Text, nil
}

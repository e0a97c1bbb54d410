package client

import (
	"context"
	"time"
)

// JobSearchClient queries the external job-search data provider.
type JobSearchClient struct {
	httpClient
}

func NewJobSearchClient(base string, timeout time.Duration) *JobSearchClient {
	return &JobSearchClient{newHTTPClient(base, "job_search", timeout)}
}

type JobQuery struct {
	Category string `json:"category"`
	Location string `json:"location,omitempty"`
}

type JobResult struct {
	ExternalID string    `json:"external_id"`
	SourceID   string    `json:"source_id"`
	Title      string    `json:"title"`
	Company    string    `json:"company"`
	Location   string    `json:"location"`
	PostedAt   time.Time `json:"posted_at"`
}

type searchResponse struct {
	Results []JobResult `json:"results"`
}

func (c *JobSearchClient) Search(ctx context.Context, query JobQuery) ([]JobResult, error) {
	var out searchResponse
	if err := c.postJSON(ctx, "/v1/search", query, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

package client

import (
	"context"
	"time"

	"github.com/careerforge/careerforge/internal/store/model"
)

// AnalysisClient calls the AI-analysis service which turns resume text into
// structured insight and writes job-tailored variants.
type AnalysisClient struct {
	httpClient
}

func NewAnalysisClient(base string, timeout time.Duration) *AnalysisClient {
	return &AnalysisClient{newHTTPClient(base, "analysis", timeout)}
}

type analyzeRequest struct {
	Text string `json:"text"`
}

func (c *AnalysisClient) Analyze(ctx context.Context, text string) (*model.ResumeData, error) {
	var out model.ResumeData
	if err := c.postJSON(ctx, "/v1/analyze", analyzeRequest{Text: text}, &out); err != nil {
		return nil, err
	}
	out.Text = text
	return &out, nil
}

type tailorRequest struct {
	Resume model.ResumeData `json:"resume"`
	JobID  string           `json:"job_id"`
}

type tailorResponse struct {
	Content string `json:"content"`
}

func (c *AnalysisClient) Tailor(ctx context.Context, resume model.ResumeData, jobID string) (string, error) {
	var out tailorResponse
	if err := c.postJSON(ctx, "/v1/tailor", tailorRequest{Resume: resume, JobID: jobID}, &out); err != nil {
		return "", err
	}
	return out.Content, nil
}

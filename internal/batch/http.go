package batch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// HTTPClient is a Client over the backend's JSON REST interface.
//
// Terminal statuses never change, so they are memoized in a small LRU; a
// collection round that has already seen a job succeed will not hit the
// backend for it again (the blocking-compute path and the collector can both
// observe the same job).
type HTTPClient struct {
	base     string
	hc       *http.Client
	terminal *lru.Cache[string, Status]
}

// NewHTTPClient creates a client for the backend at endpoint.
func NewHTTPClient(endpoint string) (*HTTPClient, error) {
	memo, err := lru.New[string, Status](1024)
	if err != nil {
		return nil, fmt.Errorf("failed to create status memo: %w", err)
	}
	return &HTTPClient{
		base:     strings.TrimRight(endpoint, "/"),
		hc:       &http.Client{Timeout: 30 * time.Second},
		terminal: memo,
	}, nil
}

type submitRequest struct {
	JobName            string             `json:"jobName"`
	JobQueue           string             `json:"jobQueue"`
	JobDefinition      string             `json:"jobDefinition"`
	ContainerOverrides containerOverrides `json:"containerOverrides"`
}

type containerOverrides struct {
	Command []string `json:"command"`
}

type submitResponse struct {
	JobID   string `json:"jobId"`
	JobName string `json:"jobName"`
}

type describeResponse struct {
	Jobs []struct {
		JobID   string `json:"jobId"`
		JobName string `json:"jobName"`
		Status  Status `json:"status"`
	} `json:"jobs"`
}

// SubmitJob submits a job and returns its backend-assigned id.
func (c *HTTPClient) SubmitJob(ctx context.Context, in SubmitInput) (string, error) {
	body, err := json.Marshal(submitRequest{
		JobName:            in.JobName,
		JobQueue:           in.JobQueue,
		JobDefinition:      in.JobDefinition,
		ContainerOverrides: containerOverrides{Command: in.Command},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/v1/submitjob", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("submit request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("submit rejected: %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}

	var sr submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return "", fmt.Errorf("failed to decode submit response: %w", err)
	}
	if sr.JobID == "" {
		return "", fmt.Errorf("backend returned empty job id")
	}
	return sr.JobID, nil
}

// DescribeJob returns the current status of a job.
func (c *HTTPClient) DescribeJob(ctx context.Context, jobID string) (Status, error) {
	if s, ok := c.terminal.Get(jobID); ok {
		return s, nil
	}

	u := fmt.Sprintf("%s/v1/describejobs?jobs=%s", c.base, url.QueryEscape(jobID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("describe request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("describe rejected: %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}

	var dr describeResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return "", fmt.Errorf("failed to decode describe response: %w", err)
	}
	if len(dr.Jobs) == 0 {
		return "", fmt.Errorf("job %s not known to backend", jobID)
	}

	s := dr.Jobs[0].Status
	if s.Terminal() {
		c.terminal.Add(jobID, s)
	}
	return s, nil
}

// ABOUTME: HTTPDelegator performs a blocking build/edit request against a worker's
// ABOUTME: /api/build endpoint for workers reachable by direct call.

package delegate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/2389/forge-hub/internal/task"
)

// BuildRequest is the JSON body of a direct delegation call.
type BuildRequest struct {
	Command string            `json:"command"`
	Args    map[string]string `json:"args"`
}

// BuildResponse is the JSON body a worker answers with.
type BuildResponse struct {
	Content  string `json:"content,omitempty"`
	Response string `json:"response,omitempty"`
	Error    string `json:"error,omitempty"`
}

// HTTPDelegator calls a worker's build endpoint directly.
type HTTPDelegator struct {
	url    string
	client *http.Client
}

// NewHTTPDelegator creates a delegator for the worker endpoint at url.
func NewHTTPDelegator(url string, timeout time.Duration) *HTTPDelegator {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &HTTPDelegator{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Delegate posts the request and blocks for the worker's answer.
func (d *HTTPDelegator) Delegate(ctx context.Context, req *task.DelegationRequest) (*task.DelegationResult, error) {
	t := req.Task
	body, err := json.Marshal(BuildRequest{
		Command: string(req.Action),
		Args: map[string]string{
			"taskId":      t.ID,
			"name":        t.Name,
			"type":        t.Type,
			"network":     t.Network,
			"features":    t.Features,
			"editRequest": t.EditRequest,
			"version":     strconv.Itoa(t.Version),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("encoding build request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("calling worker: %w", err)
	}
	defer resp.Body.Close()

	var out BuildResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding worker response: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrWorkerFailed, out.Error)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("worker returned status %d", resp.StatusCode)
	}

	return &task.DelegationResult{
		Content:  out.Content,
		FileName: t.ArtifactName(),
		Response: out.Response,
	}, nil
}

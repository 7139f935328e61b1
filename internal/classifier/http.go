package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/telhawk-systems/feedgen/internal/models"
)

// HTTP delegates classification to a remote evaluator.
type HTTP struct {
	url        string
	httpClient *http.Client
}

// NewHTTP posts batches to url with the given request timeout.
func NewHTTP(url string, timeout time.Duration) *HTTP {
	return &HTTP{
		url: url,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// ClassifyRequest is the body sent to the evaluator.
type ClassifyRequest struct {
	Events []models.PostItem `json:"events"`
}

// ClassifyResponse lists the accepted URIs.
type ClassifyResponse struct {
	Accepted []string `json:"accepted"`
}

func (c *HTTP) Classify(ctx context.Context, events []*models.Event) ([]*models.Event, error) {
	if len(events) == 0 {
		return nil, nil
	}

	reqBody := ClassifyRequest{Events: make([]models.PostItem, len(events))}
	for i, e := range events {
		reqBody.Events[i] = models.NewPostItem(e, false)
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errBody map[string]string
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		return nil, fmt.Errorf("classifier response status %d: %s", resp.StatusCode, errBody["error"])
	}

	var result ClassifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	keep := make(map[string]struct{}, len(result.Accepted))
	for _, uri := range result.Accepted {
		keep[uri] = struct{}{}
	}
	accepted := make([]*models.Event, 0, len(keep))
	for _, e := range events {
		if _, ok := keep[e.URI]; ok {
			accepted = append(accepted, e)
		}
	}
	return accepted, nil
}

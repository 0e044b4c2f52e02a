package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/guregu/null/v6"
)

// HTTPClient talks to the ranking data vendor's REST API and implements every
// provider contract. One vendor account serves rankings, listings, citations and
// reviews, so a single client covers all four.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type submitTaskRequest struct {
	Domain   string   `json:"domain"`
	Keywords []string `json:"keywords"`
}

type submitTaskResponse struct {
	TaskID string `json:"task_id"`
}

func (h *HTTPClient) SubmitRankingTask(ctx context.Context, domain string, keywords []string) (string, error) {
	var resp submitTaskResponse
	err := h.postJson(ctx, "/v1/ranking-tasks", submitTaskRequest{Domain: domain, Keywords: keywords}, &resp)
	if err != nil {
		return "", err
	}
	return resp.TaskID, nil
}

type taskStatusResponse struct {
	Status string `json:"status"`
}

func (h *HTTPClient) TaskReady(ctx context.Context, taskID string) (bool, error) {
	var resp taskStatusResponse
	path := "/v1/ranking-tasks/" + url.PathEscape(taskID)
	if err := h.getJson(ctx, path, nil, &resp); err != nil {
		return false, err
	}
	return resp.Status == "ready", nil
}

type positionResponse struct {
	Position null.Int `json:"position"`
}

func (h *HTTPClient) FetchPosition(ctx context.Context, taskID, keyword string) (null.Int, error) {
	var resp positionResponse
	path := "/v1/ranking-tasks/" + url.PathEscape(taskID) + "/positions"
	err := h.getJson(ctx, path, url.Values{"keyword": {keyword}}, &resp)
	if err != nil {
		return null.Int{}, err
	}
	return resp.Position, nil
}

func (h *HTTPClient) FetchListing(ctx context.Context, domain string) (*Listing, error) {
	var listing Listing
	err := h.getJson(ctx, "/v1/listings", url.Values{"domain": {domain}}, &listing)
	if err != nil {
		return nil, err
	}
	return &listing, nil
}

func (h *HTTPClient) FetchCitations(ctx context.Context, domain string) ([]Citation, error) {
	var citations []Citation
	err := h.getJson(ctx, "/v1/citations", url.Values{"domain": {domain}}, &citations)
	if err != nil {
		return nil, err
	}
	return citations, nil
}

func (h *HTTPClient) FetchReviews(ctx context.Context, domain string) (*ReviewSummary, error) {
	var summary ReviewSummary
	err := h.getJson(ctx, "/v1/reviews", url.Values{"domain": {domain}}, &summary)
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

func (h *HTTPClient) getJson(ctx context.Context, path string, query url.Values, dest any) error {
	endpoint := h.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("could not build request for %s: %w", path, err)
	}
	return h.do(req, dest)
}

func (h *HTTPClient) postJson(ctx context.Context, path string, payload, dest any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("could not encode payload for %s: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("could not build request for %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return h.do(req, dest)
}

func (h *HTTPClient) do(req *http.Request, dest any) error {
	if h.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.apiKey)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNoData
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &Error{
			StatusCode: resp.StatusCode,
			Message:    string(bytes.TrimSpace(raw)),
			Transient:  resp.StatusCode == http.StatusServiceUnavailable,
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("could not decode response from %s: %w", req.URL.Path, err)
	}
	return nil
}

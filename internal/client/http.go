package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// HTTPClient implements ScuttleClient using the scuttlestore HTTP/JSON REST API.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// Compile-time check that HTTPClient implements ScuttleClient.
var _ ScuttleClient = (*HTTPClient)(nil)

// NewHTTPClient creates a new HTTP client targeting the given base URL
// (e.g. "http://localhost:8080"). When token is non-empty, an Authorization
// header is set on every request.
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{},
	}
}

// Close is a no-op for the HTTP client.
func (c *HTTPClient) Close() error { return nil }

func (c *HTTPClient) Append(ctx context.Context, messages []json.RawMessage) ([]uint64, error) {
	var resp struct {
		Seqs []uint64 `json:"seqs"`
	}
	body := map[string]any{"messages": messages}
	if err := c.doJSON(ctx, http.MethodPost, "/v1/messages", body, &resp); err != nil {
		return nil, err
	}
	return resp.Seqs, nil
}

func (c *HTTPClient) GetMessage(ctx context.Context, key string) (json.RawMessage, error) {
	var msg json.RawMessage
	if err := c.doJSON(ctx, http.MethodGet, "/v1/messages/"+url.PathEscape(key), nil, &msg); err != nil {
		return nil, err
	}
	return msg, nil
}

func (c *HTTPClient) GetFeedMessage(ctx context.Context, feed string, seq int64) (json.RawMessage, error) {
	var msg json.RawMessage
	path := "/v1/feeds/" + url.PathEscape(feed) + "/messages/" + strconv.FormatInt(seq, 10)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &msg); err != nil {
		return nil, err
	}
	return msg, nil
}

func (c *HTTPClient) FeedMessages(ctx context.Context, req *FeedMessagesRequest) (*FeedMessagesResponse, error) {
	q := url.Values{}
	if req.After > 0 {
		q.Set("after", strconv.FormatInt(req.After, 10))
	}
	if req.Limit > 0 {
		q.Set("limit", strconv.FormatInt(req.Limit, 10))
	}
	q.Set("keys", strconv.FormatBool(req.IncludeKeys))
	q.Set("values", strconv.FormatBool(req.IncludeValues))

	path := "/v1/feeds/" + url.PathEscape(req.Feed) + "/messages?" + q.Encode()
	var resp FeedMessagesResponse
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) FeedLatest(ctx context.Context, feed string) (*int64, error) {
	var resp struct {
		Sequence *int64 `json:"sequence"`
	}
	path := "/v1/feeds/" + url.PathEscape(feed) + "/latest"
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Sequence, nil
}

func (c *HTTPClient) RebuildIndexes(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodPost, "/v1/indexes/rebuild", nil, nil)
}

func (c *HTTPClient) Status(ctx context.Context) (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.doJSON(ctx, http.MethodGet, "/v1/status", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) Health(ctx context.Context) (string, error) {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/health", nil, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

// APIError represents an error response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// doJSON performs an HTTP request with optional JSON body and decodes the JSON response.
// If result is nil, the response body is discarded.
func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body any, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	// 204 No Content — success with no body.
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}

	return nil
}

package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Static errors for pipeline client operations.
var (
	// ErrBaseURLRequired is returned when the sidecar base URL is not provided.
	ErrBaseURLRequired = errors.New("pipeline: base URL is required")
	// ErrLoadFailed is returned when the sidecar reports a pipeline load failure.
	ErrLoadFailed = errors.New("pipeline: load failed")
	// ErrRenderFailed is returned when the sidecar reports a render failure.
	ErrRenderFailed = errors.New("pipeline: render failed")
	// ErrServerError is returned when the sidecar returns a 5xx status code.
	ErrServerError = errors.New("pipeline: server error")
	// ErrRateLimited is returned when the sidecar returns a 429 status code.
	ErrRateLimited = errors.New("pipeline: rate limited")
	// ErrRequestFailed is returned when a request fails with a non-2xx status code.
	ErrRequestFailed = errors.New("pipeline: request failed")
)

// Client defines the interface for interacting with the inference sidecar.
type Client interface {
	// Load instructs the sidecar to load a pipeline onto the device.
	Load(ctx context.Context, req LoadRequest) error

	// Render runs one generation and leaves the encoded file at req.OutputPath.
	// Render is never retried; a failed render is reported to the caller.
	Render(ctx context.Context, req RenderRequest) error

	// Release asks the sidecar to free device memory held by the loaded pipeline.
	Release(ctx context.Context) error

	// Ping checks sidecar health and returns accelerator stats.
	Ping(ctx context.Context) (DeviceInfo, error)
}

// HTTPClient is the HTTP implementation of the sidecar Client interface.
type HTTPClient struct {
	baseURL     string
	apiKey      string
	httpClient  *http.Client
	maxRetries  int
	baseBackoff time.Duration
}

// ClientOption is a function that configures an HTTPClient.
type ClientOption func(*HTTPClient)

// WithAPIKey sets a bearer token for sidecar authentication.
func WithAPIKey(key string) ClientOption {
	return func(hc *HTTPClient) {
		hc.apiKey = key
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(hc *HTTPClient) {
		hc.httpClient = c
	}
}

// WithMaxRetries sets the maximum number of retries for transient failures.
func WithMaxRetries(n int) ClientOption {
	return func(hc *HTTPClient) {
		hc.maxRetries = n
	}
}

// WithBaseBackoff sets the initial backoff duration for retries.
func WithBaseBackoff(d time.Duration) ClientOption {
	return func(hc *HTTPClient) {
		hc.baseBackoff = d
	}
}

// NewClient creates a new sidecar HTTP client.
// The base URL must be provided. The default HTTP client allows long
// render calls; callers bound individual operations via context.
func NewClient(baseURL string, opts ...ClientOption) (*HTTPClient, error) {
	if baseURL == "" {
		return nil, ErrBaseURLRequired
	}

	c := &HTTPClient{
		baseURL:     baseURL,
		httpClient:  &http.Client{Timeout: 30 * time.Minute},
		maxRetries:  3,
		baseBackoff: 1 * time.Second,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Load instructs the sidecar to load a pipeline onto the device.
// Transient failures are retried with exponential backoff.
func (c *HTTPClient) Load(ctx context.Context, req LoadRequest) error {
	bodyBytes, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("pipeline: marshal load request: %w", err)
	}

	var resp loadResponse
	if err := c.doRequestWithRetry(ctx, http.MethodPost, c.baseURL+"/pipelines/load", bodyBytes, &resp); err != nil {
		return err
	}

	if resp.Error != "" {
		return fmt.Errorf("%w: %s", ErrLoadFailed, resp.Error)
	}

	return nil
}

// Render runs one generation. Unlike Load, it is issued exactly once:
// generations are expensive and the task layer treats a failure as final.
func (c *HTTPClient) Render(ctx context.Context, req RenderRequest) error {
	bodyBytes, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("pipeline: marshal render request: %w", err)
	}

	var resp renderResponse
	if err := c.doRequest(ctx, http.MethodPost, c.baseURL+"/pipelines/render", bodyBytes, &resp); err != nil {
		return err
	}

	if resp.Error != "" {
		return fmt.Errorf("%w: %s", ErrRenderFailed, resp.Error)
	}

	return nil
}

// Release asks the sidecar to free device memory. Best effort; retried on
// transient failures.
func (c *HTTPClient) Release(ctx context.Context) error {
	return c.doRequestWithRetry(ctx, http.MethodPost, c.baseURL+"/pipelines/release", nil, nil)
}

// Ping checks sidecar health and returns accelerator stats.
func (c *HTTPClient) Ping(ctx context.Context) (DeviceInfo, error) {
	var resp pingResponse
	if err := c.doRequestWithRetry(ctx, http.MethodGet, c.baseURL+"/healthz", nil, &resp); err != nil {
		return DeviceInfo{}, err
	}
	return resp.Device, nil
}

// doRequestWithRetry performs an HTTP request with exponential backoff retry.
func (c *HTTPClient) doRequestWithRetry(ctx context.Context, method, url string, body []byte, result interface{}) error {
	var lastErr error
	backoff := c.baseBackoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("pipeline: context cancelled: %w", ctx.Err())
			case <-time.After(backoff):
				backoff *= 2
			}
		}

		err := c.doRequest(ctx, method, url, body, result)
		if err == nil {
			return nil
		}

		if !isRetryable(err) {
			return err
		}

		lastErr = err
	}

	return fmt.Errorf("pipeline: max retries exceeded: %w", lastErr)
}

// doRequest performs a single HTTP request.
func (c *HTTPClient) doRequest(ctx context.Context, method, url string, body []byte, result interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return fmt.Errorf("pipeline: create request: %w", err)
	}

	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &retryableError{err: fmt.Errorf("pipeline: request failed: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &retryableError{err: fmt.Errorf("pipeline: read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if resp.StatusCode >= 500 {
			return &retryableError{err: fmt.Errorf("%w %d: %s", ErrServerError, resp.StatusCode, string(respBody))}
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			return &retryableError{err: fmt.Errorf("%w: %s", ErrRateLimited, string(respBody))}
		}
		return fmt.Errorf("%w with status %d: %s", ErrRequestFailed, resp.StatusCode, string(respBody))
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("pipeline: unmarshal response: %w", err)
		}
	}

	return nil
}

// retryableError wraps errors that should be retried.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	return e.err
}

// isRetryable returns true if the error should be retried.
func isRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}

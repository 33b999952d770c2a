package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"
)

const (
	defaultOllamaBaseURL  = "http://127.0.0.1:11434"
	defaultMaxConcurrent  = 8
	maxErrorBodyBytes     = 4 << 10
	defaultRequestTimeout = 60 * time.Second
)

// OllamaOptions tunes an OllamaClient.
type OllamaOptions struct {
	MaxConcurrent int
	HTTPClient    *http.Client
	Observer      func(mode string, elapsed time.Duration, err error)
}

type OllamaOption func(*OllamaOptions)

// WithMaxConcurrent caps the number of in-flight upstream calls.
func WithMaxConcurrent(n int) OllamaOption {
	return func(opts *OllamaOptions) {
		opts.MaxConcurrent = n
	}
}

// WithHTTPClient replaces the default transport.
func WithHTTPClient(client *http.Client) OllamaOption {
	return func(opts *OllamaOptions) {
		opts.HTTPClient = client
	}
}

// WithObserver registers a callback invoked once per finished upstream call.
func WithObserver(fn func(mode string, elapsed time.Duration, err error)) OllamaOption {
	return func(opts *OllamaOptions) {
		opts.Observer = fn
	}
}

// OllamaClient calls the Ollama /api/generate endpoint.
type OllamaClient struct {
	baseURL    string
	httpClient *http.Client
	slots      *semaphore.Weighted
	observe    func(mode string, elapsed time.Duration, err error)
}

// NewOllamaClient constructs a client with the provided base URL.
func NewOllamaClient(baseURL string, options ...OllamaOption) *OllamaClient {
	opts := OllamaOptions{}
	for _, option := range options {
		if option != nil {
			option(&opts)
		}
	}
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = defaultMaxConcurrent
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		// Deadlines come from the per-request context; a client-wide
		// timeout would cut long streams short.
		httpClient = &http.Client{}
	}
	observe := opts.Observer
	if observe == nil {
		observe = func(string, time.Duration, error) {}
	}
	return &OllamaClient{
		baseURL:    baseURL,
		httpClient: httpClient,
		slots:      semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		observe:    observe,
	}
}

// Generate issues a non-streaming completion and returns the full text.
func (c *OllamaClient) Generate(ctx context.Context, req Request) (string, error) {
	ctx, cancel := withTimeout(ctx, req.Timeout)
	defer cancel()
	start := time.Now()

	text, err := c.generate(ctx, req)
	c.observe("generate", time.Since(start), err)
	return text, err
}

func (c *OllamaClient) generate(ctx context.Context, req Request) (string, error) {
	if err := c.slots.Acquire(ctx, 1); err != nil {
		return "", transportError(err)
	}
	defer c.slots.Release(1)

	resp, err := c.post(ctx, req, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		if ctx.Err() != nil {
			return "", transportError(ctx.Err())
		}
		return "", &ProtocolError{Err: fmt.Errorf("decode generate response: %w", err)}
	}
	if out.Error != "" {
		return "", &StatusError{Code: resp.StatusCode, Body: out.Error}
	}
	return out.Response, nil
}

// Stream opens a streaming completion. It never fails up front: transport and
// status errors surface as the terminal chunk of the returned stream.
func (c *OllamaClient) Stream(ctx context.Context, req Request) *Stream {
	ctx, cancel := withTimeout(ctx, req.Timeout)
	start := time.Now()
	finish := func(err error) {
		c.observe("stream", time.Since(start), err)
	}

	if err := c.slots.Acquire(ctx, 1); err != nil {
		cancel()
		return failedStream(transportError(err), finish)
	}
	release := func() {
		c.slots.Release(1)
		cancel()
	}
	resp, err := c.post(ctx, req, true)
	if err != nil {
		release()
		return failedStream(err, finish)
	}
	return newStream(ctx, resp.Body, func(err error) {
		release()
		finish(err)
	})
}

func (c *OllamaClient) post(ctx context.Context, req Request, stream bool) (*http.Response, error) {
	body, err := json.Marshal(generateRequest{
		Model:  req.Model,
		Prompt: req.Prompt,
		Stream: stream,
	})
	if err != nil {
		return nil, fmt.Errorf("encode generate request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build generate request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, transportError(err)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		return nil, &StatusError{Code: resp.StatusCode, Body: readErrorBody(resp.Body)}
	}
	return resp, nil
}

func readErrorBody(r io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(r, maxErrorBodyBytes))
	var errResp ollamaErrorResponse
	if err := json.Unmarshal(raw, &errResp); err == nil && errResp.Error != "" {
		return errResp.Error
	}
	return strings.TrimSpace(string(raw))
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

// IsTimeout reports whether err is an upstream timeout.
func IsTimeout(err error) bool {
	var unavailable *UnavailableError
	return errors.As(err, &unavailable) && unavailable.Timeout
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error"`
}

type ollamaErrorResponse struct {
	Error string `json:"error"`
}

package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/Egham-7/substreams-bridge/internal/models"

	fiberlog "github.com/gofiber/fiber/v2/log"
)

// Client is the outbound HTTP client shared by rpc calls, api calls and
// package fetches. BaseURL is optional; absolute URLs are used as-is.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Headers    map[string]string
	retries    int
	retryDelay time.Duration
}

// RequestOptions provides options for API requests
type RequestOptions struct {
	Headers      map[string]string
	QueryParams  map[string]string
	Timeout      time.Duration
	ResponseType string // "json", "text", "binary"
	// Retries overrides the client default; a negative value disables retries.
	Retries    int
	RetryDelay time.Duration
	// AcceptAnyStatus returns non-2xx bodies instead of failing the request.
	AcceptAnyStatus bool
}

// ClientConfig holds configuration for the API client
type ClientConfig struct {
	BaseURL             string
	Timeout             time.Duration
	Retries             int
	RetryDelay          time.Duration
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration
	DialTimeout         time.Duration
	KeepAlive           time.Duration
	TLSHandshakeTimeout time.Duration
}

// StatusError reports a non-2xx response
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API request failed with status code %d: %s", e.StatusCode, e.Body)
}

// DefaultClientConfig returns optimized defaults for the API client
func DefaultClientConfig(baseURL string) *ClientConfig {
	return &ClientConfig{
		BaseURL:             baseURL,
		Timeout:             30 * time.Second,
		Retries:             3,
		RetryDelay:          1 * time.Second,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		DialTimeout:         10 * time.Second,
		KeepAlive:           30 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
}

// ClientConfigFromModel derives a client configuration from the bridge HTTP settings
func ClientConfigFromModel(cfg models.HTTPConfig) *ClientConfig {
	config := DefaultClientConfig("")
	if cfg.Timeout > 0 {
		config.Timeout = cfg.Timeout
	}
	if cfg.Retries > 0 {
		config.Retries = cfg.Retries
	}
	if cfg.RetryDelay > 0 {
		config.RetryDelay = cfg.RetryDelay
	}
	return config
}

// NewClient creates a new API client with default settings
func NewClient(baseURL string) *Client {
	return NewClientWithConfig(DefaultClientConfig(baseURL))
}

// NewClientWithConfig creates a new API client with custom configuration
func NewClientWithConfig(config *ClientConfig) *Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   config.DialTimeout,
			KeepAlive: config.KeepAlive,
		}).DialContext,
		MaxIdleConns:        config.MaxIdleConns,
		MaxIdleConnsPerHost: config.MaxIdleConnsPerHost,
		IdleConnTimeout:     config.IdleConnTimeout,
		TLSHandshakeTimeout: config.TLSHandshakeTimeout,
		ForceAttemptHTTP2:   true,
		DisableCompression:  false,
	}

	return &Client{
		BaseURL: config.BaseURL,
		HTTPClient: &http.Client{
			Timeout:   config.Timeout,
			Transport: transport,
		},
		Headers: map[string]string{
			"Accept":     "application/json",
			"User-Agent": "substreams-bridge/1.0",
		},
		retries:    config.Retries,
		retryDelay: config.RetryDelay,
	}
}

// Get performs a GET request
func (c *Client) Get(ctx context.Context, path string, result any, opts *RequestOptions) error {
	return c.doRequest(ctx, http.MethodGet, path, nil, result, opts)
}

// Post performs a POST request with a JSON body
func (c *Client) Post(ctx context.Context, path string, body, result any, opts *RequestOptions) error {
	return c.doRequest(ctx, http.MethodPost, path, body, result, opts)
}

// doRequest performs an HTTP request with retries
func (c *Client) doRequest(ctx context.Context, method, path string, body, result any, opts *RequestOptions) error {
	url := c.resolveURL(path)

	if opts == nil {
		opts = &RequestOptions{}
	}
	retries := opts.Retries
	if retries == 0 {
		retries = c.retries
	}
	if retries < 0 {
		retries = 0
	}
	retryDelay := opts.RetryDelay
	if retryDelay == 0 {
		retryDelay = c.retryDelay
	}

	// Marshal once so retries replay identical bytes
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("error marshaling request body: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(attempt) * retryDelay
			fiberlog.Debugf("Retrying %s %s in %v (attempt %d/%d)", method, url, delay, attempt+1, retries+1)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		err := c.executeRequest(ctx, method, url, payload, result, opts)
		if err == nil {
			return nil
		}

		lastErr = err

		if !c.isRetryableError(err) {
			break
		}
	}

	if retries == 0 {
		return lastErr
	}
	return fmt.Errorf("request failed after %d attempts: %w", retries+1, lastErr)
}

// executeRequest performs a single HTTP request
func (c *Client) executeRequest(ctx context.Context, method, url string, payload []byte, result any, opts *RequestOptions) error {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}

	if payload != nil {
		req.ContentLength = int64(len(payload))
		req.Header.Set("Content-Type", "application/json")
	}

	for k, v := range c.Headers {
		req.Header.Set(k, v)
	}

	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}

	if len(opts.QueryParams) > 0 {
		q := req.URL.Query()
		for k, v := range opts.QueryParams {
			q.Add(k, v)
		}
		req.URL.RawQuery = q.Encode()
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("error executing request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			fiberlog.Errorf("Error closing response body: %v", err)
		}
	}()

	if !opts.AcceptAnyStatus && (resp.StatusCode < 200 || resp.StatusCode >= 300) {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(bodyBytes)}
	}

	return c.handleResponse(resp, result, opts)
}

// handleResponse processes the HTTP response based on the expected type
func (c *Client) handleResponse(resp *http.Response, result any, opts *RequestOptions) error {
	responseType := "json"
	if opts.ResponseType != "" {
		responseType = opts.ResponseType
	}

	switch responseType {
	case "json":
		return c.handleJSONResponse(resp, result)
	case "text":
		return c.handleTextResponse(resp, result)
	case "binary":
		return c.handleBinaryResponse(resp, result)
	default:
		return fmt.Errorf("unsupported response type: %s", responseType)
	}
}

// handleJSONResponse processes JSON responses
func (c *Client) handleJSONResponse(resp *http.Response, result any) error {
	if result == nil {
		_, err := io.Copy(io.Discard, resp.Body)
		return err
	}

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error reading response body: %w", err)
	}

	if err := json.Unmarshal(bodyBytes, result); err != nil {
		return fmt.Errorf("error unmarshaling response: %w", err)
	}

	return nil
}

// handleTextResponse processes text responses
func (c *Client) handleTextResponse(resp *http.Response, result any) error {
	stringResult, ok := result.(*string)
	if !ok {
		return fmt.Errorf("result must be *string for text response")
	}

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error reading response body: %w", err)
	}

	*stringResult = string(bodyBytes)
	return nil
}

// handleBinaryResponse processes binary responses
func (c *Client) handleBinaryResponse(resp *http.Response, result any) error {
	bytesResult, ok := result.(*[]byte)
	if !ok {
		return fmt.Errorf("result must be *[]byte for binary response")
	}

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error reading response body: %w", err)
	}

	*bytesResult = bodyBytes
	return nil
}

// isRetryableError determines if an error is retryable
func (c *Client) isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case 500, 502, 503, 504, 520, 521, 522, 523, 524:
			return true
		}
	}

	return false
}

func (c *Client) resolveURL(path string) string {
	if c.BaseURL == "" || strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return c.BaseURL + path
}

// Close closes the underlying HTTP client
func (c *Client) Close() {
	if transport, ok := c.HTTPClient.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
}

// EnsureScheme prefixes endpoints lacking an http(s) scheme with https://
func EnsureScheme(endpoint string) string {
	if strings.HasPrefix(endpoint, "http") {
		return endpoint
	}
	return "https://" + endpoint
}

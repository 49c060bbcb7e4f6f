// Package api provides the shelfdrop server API client: multipart upload
// orchestration endpoints and the session claim/login call.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	nethttp "net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/shelfdrop/shelfdrop-cli/internal/config"
	"github.com/shelfdrop/shelfdrop-cli/internal/http"
	"github.com/shelfdrop/shelfdrop-cli/internal/logging"
)

// retryLogger adapts our logger to the retryablehttp.LeveledLogger interface.
// Only errors and warnings are forwarded; retryablehttp is chatty at info.
type retryLogger struct {
	logger *logging.Logger
}

func (l *retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Error().Fields(fieldMap(keysAndValues)).Msg(msg)
}

func (l *retryLogger) Info(msg string, keysAndValues ...interface{}) {}

func (l *retryLogger) Debug(msg string, keysAndValues ...interface{}) {}

func (l *retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warn().Fields(fieldMap(keysAndValues)).Msg(msg)
}

func fieldMap(keysAndValues []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		fields[key] = keysAndValues[i+1]
	}
	return fields
}

// Client talks to the shelfdrop server's JSON endpoints. Raw chunk and part
// bodies never pass through here; the transfer strategies own those wires
// and their retry schedules.
type Client struct {
	httpClient *nethttp.Client
	baseURL    string
	logger     *logging.Logger
}

// NewClient creates a new server API client with proxy support and
// transport-level retries for the JSON control plane.
func NewClient(cfg *config.Config, logger *logging.Logger) (*Client, error) {
	httpClient, err := http.ConfigureHTTPClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to configure HTTP client: %w", err)
	}

	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient = httpClient
	retryClient.RetryMax = 5
	retryClient.RetryWaitMin = 1 * time.Second
	retryClient.RetryWaitMax = 15 * time.Second
	retryClient.Logger = &retryLogger{logger: logger}

	return &Client{
		httpClient: retryClient.StandardClient(),
		baseURL:    strings.TrimSuffix(cfg.ServerURL, "/"),
		logger:     logger,
	}, nil
}

// doRequest performs a JSON request and decodes the response into out.
func (c *Client) doRequest(ctx context.Context, method, path string, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := nethttp.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{
			StatusCode: resp.StatusCode,
			Method:     method,
			Path:       path,
			Body:       string(data),
		}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
		}
	}
	return nil
}

// CreateMultipartUpload requests a multipart upload handle, supplying the
// filename, MIME type, and arbitrary metadata (session context such as the
// target password travels here, never in part requests).
func (c *Client) CreateMultipartUpload(ctx context.Context, filename, mimeType string, metadata map[string]string) (*MultipartUpload, error) {
	req := createMultipartRequest{
		Filename: filename,
		Type:     mimeType,
		Metadata: metadata,
	}
	var upload MultipartUpload
	if err := c.doRequest(ctx, nethttp.MethodPost, "/api/upload/multipart", req, &upload); err != nil {
		return nil, fmt.Errorf("failed to create multipart upload: %w", err)
	}
	if upload.UploadID == "" || upload.Key == "" {
		return nil, fmt.Errorf("server returned incomplete multipart handle (uploadId=%q key=%q)", upload.UploadID, upload.Key)
	}
	return &upload, nil
}

// SignPart fetches a presigned URL for one (uploadId, key, partNumber)
// triple. The part bytes then go directly to storage; the server never sees
// them.
func (c *Client) SignPart(ctx context.Context, uploadID, key string, partNumber int) (string, error) {
	q := url.Values{}
	q.Set("key", key)
	q.Set("partNumber", strconv.Itoa(partNumber))
	path := "/api/upload/multipart/" + url.PathEscape(uploadID) + "?" + q.Encode()

	var resp signPartResponse
	if err := c.doRequest(ctx, nethttp.MethodGet, path, nil, &resp); err != nil {
		return "", fmt.Errorf("failed to sign part %d: %w", partNumber, err)
	}
	if resp.URL == "" {
		return "", fmt.Errorf("server returned empty signed URL for part %d", partNumber)
	}
	return resp.URL, nil
}

// CompleteMultipartUpload finalizes the object. Parts must be sorted by
// part number; storage reassembles the object in that order regardless of
// upload completion order.
func (c *Client) CompleteMultipartUpload(ctx context.Context, uploadID, key string, parts []CompletedPart) (*CompleteResult, error) {
	req := completeMultipartRequest{Key: key, Parts: parts}
	path := "/api/upload/multipart/" + url.PathEscape(uploadID) + "/complete"

	var result CompleteResult
	if err := c.doRequest(ctx, nethttp.MethodPost, path, req, &result); err != nil {
		return nil, fmt.Errorf("failed to complete multipart upload: %w", err)
	}
	return &result, nil
}

// Login performs the password-authenticated claim call that associates the
// uploaded objects (and notes) with a user account. The server reports
// first-time use via the FirstLogin flag; forced credential rotation on
// first use is handled downstream, not here.
func (c *Client) Login(ctx context.Context, secret, notes string) (*LoginResult, error) {
	form := url.Values{}
	form.Set("password", secret)
	if notes != "" {
		form.Set("notes", notes)
	}

	req, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodPost, c.baseURL+"/api/login", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("login request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == 401 || resp.StatusCode == 403 {
		return nil, ErrBadSecret
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Method:     nethttp.MethodPost,
			Path:       "/api/login",
			Body:       string(data),
		}
	}

	var result LoginResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode login response: %w", err)
	}
	return &result, nil
}
